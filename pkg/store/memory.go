package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicedesk/voicedesk/pkg/booking"
)

// Memory is an in-memory Store for tests and single-process development.
type Memory struct {
	mu            sync.RWMutex
	assistants    map[string]Assistant
	conversations map[string]Conversation
	transcripts   map[string][]TranscriptEntry
	bookings      map[string]Booking
}

func NewMemory() *Memory {
	return &Memory{
		assistants:    make(map[string]Assistant),
		conversations: make(map[string]Conversation),
		transcripts:   make(map[string][]TranscriptEntry),
		bookings:      make(map[string]Booking),
	}
}

// PutAssistant inserts or replaces an assistant profile, assigning an id when
// missing.
func (m *Memory) PutAssistant(a Assistant) Assistant {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.assistants[a.ID] = a
	return a
}

func (m *Memory) LoadAssistantProfile(_ context.Context, id string) (Assistant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assistants[id]
	if !ok {
		return Assistant{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) AssistantByNumber(_ context.Context, number string) (Assistant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assistants {
		if a.PhoneNumber == number {
			return a, nil
		}
	}
	return Assistant{}, ErrNotFound
}

func (m *Memory) FindOrCreateConversation(_ context.Context, assistantID, callerNumber string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.AssistantID == assistantID && c.CallerNumber == callerNumber {
			return c, nil
		}
	}
	c := Conversation{
		ID:           uuid.NewString(),
		AssistantID:  assistantID,
		CallerNumber: callerNumber,
		CreatedAt:    time.Now().UTC(),
	}
	m.conversations[c.ID] = c
	return c, nil
}

func (m *Memory) Conversation(_ context.Context, id string) (Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) LoadTranscript(_ context.Context, conversationID string) ([]TranscriptEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.transcripts[conversationID]
	out := make([]TranscriptEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *Memory) AppendTranscript(_ context.Context, conversationID, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts[conversationID] = append(m.transcripts[conversationID], TranscriptEntry{
		Role:    role,
		Content: content,
	})
	return nil
}

func (m *Memory) PersistBooking(_ context.Context, assistantID string, date, timeOfDay time.Time, name, details string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := Booking{
		ID:           uuid.NewString(),
		AssistantID:  assistantID,
		Date:         date,
		Time:         timeOfDay,
		CustomerName: name,
		Details:      details,
	}
	m.bookings[b.ID] = b
	return b.ID, nil
}

func (m *Memory) LoadBookedSlots(_ context.Context, assistantID string, date time.Time) (map[string]Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Booking)
	for _, b := range m.bookings {
		if b.AssistantID != assistantID {
			continue
		}
		if !sameDate(b.Date, date) {
			continue
		}
		out[booking.SlotLabel(b.Time)] = b
	}
	return out, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
