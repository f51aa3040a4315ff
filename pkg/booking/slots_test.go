package booking

import (
	"testing"
	"time"
)

// 2024-05-01 is a Wednesday.
var wednesday = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestGenerateSlots_FullBusinessDay(t *testing.T) {
	t.Parallel()

	slots, err := GenerateSlots("09:00", "17:00", 30, nil, wednesday)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if got, want := len(slots), 16; got != want {
		t.Fatalf("len(slots)=%d, want %d", got, want)
	}
	wantFirst := []string{"9:00 AM", "9:30 AM", "10:00 AM"}
	for i, want := range wantFirst {
		if slots[i] != want {
			t.Fatalf("slots[%d]=%q, want %q", i, slots[i], want)
		}
	}
	if got, want := slots[len(slots)-1], "4:30 PM"; got != want {
		t.Fatalf("last slot=%q, want %q", got, want)
	}
}

func TestGenerateSlots_CountSpacingAndBound(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		start    string
		end      string
		duration int
		want     int
	}{
		{"even split", "09:00", "12:00", 30, 6},
		{"partial final slot excluded", "09:00", "10:45", 30, 3},
		{"single slot", "09:00", "09:45", 45, 1},
		{"duration equals window", "09:00", "09:30", 30, 1},
		{"hour steps", "08:00", "18:00", 60, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			slots, err := GenerateSlots(tc.start, tc.end, tc.duration, nil, wednesday)
			if err != nil {
				t.Fatalf("GenerateSlots error: %v", err)
			}
			if len(slots) != tc.want {
				t.Fatalf("len(slots)=%d, want %d", len(slots), tc.want)
			}

			end, _ := time.Parse("15:04", tc.end)
			var prev time.Time
			for i, label := range slots {
				at, err := time.Parse("3:04 PM", label)
				if err != nil {
					t.Fatalf("slot %q does not parse: %v", label, err)
				}
				if i > 0 {
					if got := at.Sub(prev); got != time.Duration(tc.duration)*time.Minute {
						t.Fatalf("gap between %q and %q is %v, want %dm", slots[i-1], label, got, tc.duration)
					}
				}
				if at.Add(time.Duration(tc.duration) * time.Minute).After(end) {
					t.Fatalf("slot %q extends past end %q", label, tc.end)
				}
				prev = at
			}
		})
	}
}

func TestGenerateSlots_ClosedDayIsEmpty(t *testing.T) {
	t.Parallel()

	saturday := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)

	slots, err := GenerateSlots("09:00", "17:00", 30, nil, saturday)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("len(slots)=%d for default-closed saturday, want 0", len(slots))
	}

	closedWednesday := map[string]bool{"wednesday": false}
	slots, err = GenerateSlots("09:00", "17:00", 30, closedWednesday, wednesday)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("len(slots)=%d for explicitly closed day, want 0", len(slots))
	}
}

func TestGenerateSlots_MissingWeekdayKeyMeansClosed(t *testing.T) {
	t.Parallel()

	// Explicit map without the target weekday: closed, not defaulted.
	slots, err := GenerateSlots("09:00", "17:00", 30, map[string]bool{"monday": true}, wednesday)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("len(slots)=%d, want 0 when weekday absent from explicit map", len(slots))
	}
}

func TestGenerateSlots_RejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := GenerateSlots("09:00", "17:00", 0, nil, wednesday); err == nil {
		t.Fatalf("expected error for zero duration")
	}
	if _, err := GenerateSlots("9am", "17:00", 30, nil, wednesday); err == nil {
		t.Fatalf("expected error for malformed start time")
	}
	if _, err := GenerateSlots("09:00", "bogus", 30, nil, wednesday); err == nil {
		t.Fatalf("expected error for malformed end time")
	}
}
