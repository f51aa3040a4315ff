package call

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/voicedesk/voicedesk/pkg/store"
)

// BuildInstructions assembles the system instructions for one call: business
// identity, today's availability split into free and taken slots, prior
// conversation history, and the booking workflow that ends a confirmed
// booking with the fenced json block.
func BuildInstructions(a store.Assistant, history []store.TranscriptEntry, available, booked []string) string {
	start12 := to12Hour(a.StartTime)
	end12 := to12Hour(a.EndTime)

	historyJSON, err := json.Marshal(history)
	if err != nil {
		historyJSON = []byte("[]")
	}

	availableLine := "None"
	if len(available) > 0 {
		availableLine = strings.Join(available, ", ")
	}
	bookedLine := "None"
	if len(booked) > 0 {
		bookedLine = strings.Join(booked, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a warm, conversational voice assistant for %s. %s\n\n",
		a.Name, a.BusinessName, a.Description)
	b.WriteString("Your capabilities are:\n")
	b.WriteString("- Greet callers with a friendly tone.\n")
	b.WriteString("- Share business hours and basic service info.\n")
	b.WriteString("- Book, reschedule, or cancel appointments.\n")
	b.WriteString("- Politely take a message for anything outside your scope.\n\n")

	b.WriteString("BUSINESS HOURS & SLOTS\n")
	fmt.Fprintf(&b, "- Open: %s\n", start12)
	fmt.Fprintf(&b, "- Close: %s\n", end12)
	fmt.Fprintf(&b, "- Appointments last %d minutes.\n", a.SlotDurationMinutes)
	fmt.Fprintf(&b, "- Available slots today: %s.\n", availableLine)
	fmt.Fprintf(&b, "- Booked slots today: %s.\n\n", bookedLine)

	fmt.Fprintf(&b, "Conversation history:\n%s\n\n", historyJSON)

	b.WriteString("Response guidelines:\n")
	b.WriteString("- Keep responses brief and focused (30-60 words when possible).\n")
	b.WriteString("- Use simple sentence structures that are easy to follow when heard.\n")
	b.WriteString("- Keep a human-like tone and be conversational.\n\n")

	b.WriteString("TIME-SLOT RULES\n")
	b.WriteString("1. Never dump all slots at once.\n")
	fmt.Fprintf(&b, "2. If asked about availability, remind them you're open %s-%s, note each appointment is %d minutes, and ask which slot they want.\n",
		start12, end12, a.SlotDurationMinutes)
	b.WriteString("3. If the requested slot is taken, apologize and offer the nearest free slot. Never reveal who holds a booked slot.\n\n")

	b.WriteString("Booking workflow:\n")
	b.WriteString("1. Ask for the caller's full name and the reason for their visit before finalizing. Ask for one piece of information at a time.\n")
	b.WriteString("2. When a booking is confirmed, end your response with only a fenced code block labeled `json`:\n\n")
	b.WriteString("```json\n{\n  \"booking_confirmed\": {\n    \"time\": \"HH:MM\",\n    \"date\": \"YYYY-MM-DD\",\n    \"name\": \"User Name\",\n    \"details\": \"Any additional booking details\"\n  }\n}\n```\n\n")
	b.WriteString("3. Do NOT include this JSON if no booking was confirmed.\n")
	b.WriteString("4. Do not engage in conversation unrelated to the business or the booking workflow.\n")

	return b.String()
}

// to12Hour converts "HH:MM" to the pretty form used when speaking hours
// aloud. Unparseable input is passed through untouched.
func to12Hour(hhmm string) string {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}
