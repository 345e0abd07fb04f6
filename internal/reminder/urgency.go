package reminder

import "time"

// Urgency buckets a reminder's due time against the current wall clock.
type Urgency string

const (
	Overdue  Urgency = "overdue"
	DueToday Urgency = "due_today"
	Upcoming Urgency = "upcoming"
)

// Classify is a pure function of dueAt vs now and must be recomputed at each
// read; caching the result lets an Upcoming reminder silently go Overdue.
// Calendar-day comparison uses now's location.
func Classify(dueAt, now time.Time) Urgency {
	if dueAt.Before(now) {
		return Overdue
	}
	dy, dm, dd := dueAt.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	if dy == ny && dm == nm && dd == nd {
		return DueToday
	}
	return Upcoming
}

// ParseDue parses a user-supplied due timestamp. RFC3339 first, then the
// date-time and date forms the back-office forms produce.
func ParseDue(value string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"}
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
