package reminder_test

import (
	"testing"
	"time"

	"regdesk/internal/reminder"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		due  time.Time
		want reminder.Urgency
	}{
		{"past day", time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC), reminder.Overdue},
		{"earlier today", time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC), reminder.Overdue},
		{"later today", time.Date(2024, 6, 15, 18, 0, 0, 0, time.UTC), reminder.DueToday},
		{"end of today", time.Date(2024, 6, 15, 23, 59, 59, 0, time.UTC), reminder.DueToday},
		{"tomorrow", time.Date(2024, 6, 16, 0, 0, 1, 0, time.UTC), reminder.Upcoming},
		{"next week", time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC), reminder.Upcoming},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := reminder.Classify(tc.due, now); got != tc.want {
				t.Fatalf("Classify(%s) = %s, want %s", tc.due, got, tc.want)
			}
		})
	}
}

func TestClassifyExactNowIsDueToday(t *testing.T) {
	if got := reminder.Classify(now, now); got != reminder.DueToday {
		t.Fatalf("Classify(now, now) = %s, want due_today", got)
	}
}

func TestClassifyReclassifiesAsClockAdvances(t *testing.T) {
	due := time.Date(2024, 6, 16, 9, 0, 0, 0, time.UTC)
	if got := reminder.Classify(due, now); got != reminder.Upcoming {
		t.Fatalf("before due day: got %s", got)
	}
	if got := reminder.Classify(due, due.Add(-time.Hour)); got != reminder.DueToday {
		t.Fatalf("on due day: got %s", got)
	}
	if got := reminder.Classify(due, due.Add(time.Hour)); got != reminder.Overdue {
		t.Fatalf("after due: got %s", got)
	}
}

func TestParseDue(t *testing.T) {
	cases := []string{
		"2024-06-15T18:00:00Z",
		"2024-06-15T18:00:00",
		"2024-06-15 18:00",
		"2024-06-15",
	}
	for _, value := range cases {
		if _, err := reminder.ParseDue(value); err != nil {
			t.Fatalf("ParseDue(%q): %v", value, err)
		}
	}
	if _, err := reminder.ParseDue("next tuesday"); err == nil {
		t.Fatalf("expected parse failure")
	}
}
