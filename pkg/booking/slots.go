// Package booking implements the deterministic slot-availability calculator
// and the extractor that pulls a confirmed-booking block out of assistant text.
package booking

import (
	"fmt"
	"strings"
	"time"
)

// SlotLabel renders a slot start in the pretty 12-hour form used everywhere a
// slot is named: prompts, availability checks, and the booked-slot lookup keys.
func SlotLabel(t time.Time) string {
	return t.Format("3:04 PM")
}

// defaultDays is used when an assistant profile carries no explicit schedule.
func defaultDays() map[string]bool {
	return map[string]bool{
		"monday":    true,
		"tuesday":   true,
		"wednesday": true,
		"thursday":  true,
		"friday":    true,
		"saturday":  false,
		"sunday":    false,
	}
}

// GenerateSlots walks from startTime to endTime ("HH:MM", 24-hour) in
// durationMinutes steps and returns the pretty-printed start labels for the
// given date. A slot is emitted only when the whole slot fits before endTime,
// so a final partial slot is excluded. If the weekday of forDate is closed in
// availableDays the result is empty. A nil availableDays map means Monday
// through Friday open, weekend closed.
func GenerateSlots(startTime, endTime string, durationMinutes int, availableDays map[string]bool, forDate time.Time) ([]string, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("slot duration must be > 0, got %d", durationMinutes)
	}
	start, err := time.Parse("15:04", strings.TrimSpace(startTime))
	if err != nil {
		return nil, fmt.Errorf("parse start time %q: %w", startTime, err)
	}
	end, err := time.Parse("15:04", strings.TrimSpace(endTime))
	if err != nil {
		return nil, fmt.Errorf("parse end time %q: %w", endTime, err)
	}

	if availableDays == nil {
		availableDays = defaultDays()
	}
	weekday := strings.ToLower(forDate.Weekday().String())
	if !availableDays[weekday] {
		return []string{}, nil
	}

	cur := time.Date(forDate.Year(), forDate.Month(), forDate.Day(), start.Hour(), start.Minute(), 0, 0, forDate.Location())
	cutoff := time.Date(forDate.Year(), forDate.Month(), forDate.Day(), end.Hour(), end.Minute(), 0, 0, forDate.Location())

	step := time.Duration(durationMinutes) * time.Minute
	var slots []string
	for !cur.Add(step).After(cutoff) {
		slots = append(slots, SlotLabel(cur))
		cur = cur.Add(step)
	}
	if slots == nil {
		slots = []string{}
	}
	return slots, nil
}
