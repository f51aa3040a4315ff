// Package store defines the persistence collaborators consumed by the call
// bridge: assistant profiles, conversations, transcripts, and bookings.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Assistant is the profile a call is answered as. StartTime and EndTime are
// 24-hour "HH:MM" strings; a nil AvailableDays map means the default
// Monday-through-Friday schedule.
type Assistant struct {
	ID                  string
	Name                string
	BusinessName        string
	Description         string
	StartTime           string
	EndTime             string
	SlotDurationMinutes int
	AvailableDays       map[string]bool
	VoiceType           string
	PhoneNumber         string
}

// Conversation ties a caller number to an assistant across calls.
type Conversation struct {
	ID           string
	AssistantID  string
	CallerNumber string
	CreatedAt    time.Time
}

// TranscriptEntry is one append-only transcript line. Role is "user" or
// "assistant"; ordering is creation order.
type TranscriptEntry struct {
	Role    string
	Content string
}

// Booking is a persisted appointment.
type Booking struct {
	ID           string
	AssistantID  string
	Date         time.Time
	Time         time.Time
	CustomerName string
	Details      string
}

type AssistantStore interface {
	LoadAssistantProfile(ctx context.Context, id string) (Assistant, error)
	AssistantByNumber(ctx context.Context, number string) (Assistant, error)
}

type ConversationStore interface {
	FindOrCreateConversation(ctx context.Context, assistantID, callerNumber string) (Conversation, error)
	Conversation(ctx context.Context, id string) (Conversation, error)
}

type TranscriptStore interface {
	LoadTranscript(ctx context.Context, conversationID string) ([]TranscriptEntry, error)
	AppendTranscript(ctx context.Context, conversationID, role, content string) error
}

type BookingStore interface {
	// PersistBooking inserts one appointment and returns its id.
	PersistBooking(ctx context.Context, assistantID string, date, timeOfDay time.Time, name, details string) (string, error)
	// LoadBookedSlots returns the bookings for one assistant and date keyed by
	// pretty slot label ("9:00 AM").
	LoadBookedSlots(ctx context.Context, assistantID string, date time.Time) (map[string]Booking, error)
}

// Store is the full persistence surface the bridge needs.
type Store interface {
	AssistantStore
	ConversationStore
	TranscriptStore
	BookingStore
}
