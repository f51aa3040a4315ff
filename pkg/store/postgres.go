package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicedesk/voicedesk/pkg/booking"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) LoadAssistantProfile(ctx context.Context, id string) (Assistant, error) {
	return p.assistantRow(ctx, `SELECT id, name, business_name, description, start_time, end_time,
		slot_duration_minutes, available_days, voice_type, COALESCE(phone_number, '')
		FROM assistants WHERE id = $1`, id)
}

func (p *Postgres) AssistantByNumber(ctx context.Context, number string) (Assistant, error) {
	return p.assistantRow(ctx, `SELECT id, name, business_name, description, start_time, end_time,
		slot_duration_minutes, available_days, voice_type, COALESCE(phone_number, '')
		FROM assistants WHERE phone_number = $1`, number)
}

func (p *Postgres) assistantRow(ctx context.Context, query, arg string) (Assistant, error) {
	var (
		a       Assistant
		rawDays []byte
	)
	err := p.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Name, &a.BusinessName, &a.Description, &a.StartTime, &a.EndTime,
		&a.SlotDurationMinutes, &rawDays, &a.VoiceType, &a.PhoneNumber,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Assistant{}, ErrNotFound
	}
	if err != nil {
		return Assistant{}, fmt.Errorf("load assistant: %w", err)
	}
	if len(rawDays) > 0 {
		if err := json.Unmarshal(rawDays, &a.AvailableDays); err != nil {
			return Assistant{}, fmt.Errorf("decode available_days for assistant %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func (p *Postgres) FindOrCreateConversation(ctx context.Context, assistantID, callerNumber string) (Conversation, error) {
	var c Conversation
	err := p.pool.QueryRow(ctx, `INSERT INTO conversations (assistant_id, caller_number)
		VALUES ($1, $2)
		ON CONFLICT (assistant_id, caller_number) DO UPDATE SET caller_number = EXCLUDED.caller_number
		RETURNING id, assistant_id, caller_number, created_at`,
		assistantID, callerNumber,
	).Scan(&c.ID, &c.AssistantID, &c.CallerNumber, &c.CreatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("find or create conversation: %w", err)
	}
	return c, nil
}

func (p *Postgres) Conversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := p.pool.QueryRow(ctx, `SELECT id, assistant_id, caller_number, created_at
		FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.AssistantID, &c.CallerNumber, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	return c, nil
}

func (p *Postgres) LoadTranscript(ctx context.Context, conversationID string) ([]TranscriptEntry, error) {
	rows, err := p.pool.Query(ctx, `SELECT role, content FROM messages
		WHERE conversation_id = $1 ORDER BY id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var entries []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.Role, &e.Content); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	return entries, nil
}

func (p *Postgres) AppendTranscript(ctx context.Context, conversationID, role, content string) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO messages (conversation_id, role, content)
		VALUES ($1, $2, $3)`, conversationID, role, content)
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (p *Postgres) PersistBooking(ctx context.Context, assistantID string, date, timeOfDay time.Time, name, details string) (string, error) {
	var id string
	err := p.pool.QueryRow(ctx, `INSERT INTO bookings (assistant_id, booking_date, booking_time, customer_name, details)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		assistantID, date.Format("2006-01-02"), timeOfDay.Format("15:04"), name, details,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("persist booking: %w", err)
	}
	return id, nil
}

func (p *Postgres) LoadBookedSlots(ctx context.Context, assistantID string, date time.Time) (map[string]Booking, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, assistant_id, booking_date, booking_time, customer_name, details
		FROM bookings WHERE assistant_id = $1 AND booking_date = $2`,
		assistantID, date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Booking)
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.AssistantID, &b.Date, &b.Time, &b.CustomerName, &b.Details); err != nil {
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		out[booking.SlotLabel(b.Time)] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking rows: %w", err)
	}
	return out, nil
}
