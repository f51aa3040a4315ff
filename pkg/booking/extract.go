package booking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	fenceOpen  = "```json"
	fenceClose = "```"

	legacyOpen  = "[BOOKING:"
	legacyClose = "]"
)

// Draft is unvalidated appointment data parsed out of one assistant reply.
// It exists only until it is handed to the booking store.
type Draft struct {
	Date    time.Time
	Time    time.Time
	Name    string
	Details string
}

// SlotLabel returns the draft's start time in the same pretty form emitted by
// GenerateSlots, for matching against current availability.
func (d *Draft) SlotLabel() string {
	return SlotLabel(d.Time)
}

// ParseError reports a structured block whose time or date field could not be
// parsed. The caller is expected to discard the draft and carry on; the model
// retries naturally on a later turn.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("booking block has invalid %s %q", e.Field, e.Value)
}

type confirmedBlock struct {
	Time    string `json:"time"`
	Date    string `json:"date"`
	Name    string `json:"name"`
	Details string `json:"details"`
}

type bookingPayload struct {
	BookingConfirmed *confirmedBlock `json:"booking_confirmed"`
}

// Extract scans text for a fenced ```json block carrying a booking_confirmed
// object and, failing that, the legacy [BOOKING: {...}] tag. When a block with
// at least a time field is found it is stripped from the text and a Draft is
// returned. An absent or unparseable block is the common case (no booking
// yet): the text comes back unchanged with no draft and no error. A block
// whose time or date fields do not parse yields a *ParseError and no draft.
//
// today supplies the date used when the block omits one.
func Extract(text string, today time.Time) (string, *Draft, error) {
	if clean, payload, ok := cutBlock(text, fenceOpen, fenceClose, false); ok {
		return buildDraft(text, clean, payload, today)
	}
	if clean, payload, ok := cutBlock(text, legacyOpen, legacyClose, true); ok {
		return buildDraft(text, clean, payload, today)
	}
	return text, nil, nil
}

// cutBlock finds the openTag..closeTag region, returning the surrounding text
// and the raw payload between the delimiters. lastClose matches the final
// closeTag instead of the first; the legacy bracket tag needs it because the
// JSON payload may itself contain "]".
func cutBlock(text, openTag, closeTag string, lastClose bool) (clean, payload string, ok bool) {
	start := strings.Index(text, openTag)
	if start < 0 {
		return "", "", false
	}
	rest := text[start+len(openTag):]
	end := strings.Index(rest, closeTag)
	if lastClose {
		end = strings.LastIndex(rest, closeTag)
	}
	if end < 0 {
		return "", "", false
	}
	payload = strings.TrimSpace(rest[:end])
	clean = strings.TrimSpace(text[:start] + rest[end+len(closeTag):])
	return clean, payload, true
}

func buildDraft(original, clean, payload string, today time.Time) (string, *Draft, error) {
	var parsed bookingPayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		// Malformed payload is treated as no booking, not a failure.
		return original, nil, nil
	}
	b := parsed.BookingConfirmed
	if b == nil || strings.TrimSpace(b.Time) == "" {
		return original, nil, nil
	}

	rawTime := strings.TrimSpace(b.Time)
	timeOfDay, err := time.Parse("3:04 PM", rawTime)
	if err != nil {
		timeOfDay, err = time.Parse("15:04", rawTime)
	}
	if err != nil {
		return original, nil, &ParseError{Field: "time", Value: rawTime}
	}

	date := today
	if raw := strings.TrimSpace(b.Date); raw != "" {
		date, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return original, nil, &ParseError{Field: "date", Value: raw}
		}
	}

	name := strings.TrimSpace(b.Name)
	if name == "" {
		name = "Unknown"
	}

	return clean, &Draft{
		Date:    time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		Time:    timeOfDay,
		Name:    name,
		Details: strings.TrimSpace(b.Details),
	}, nil
}
