package market

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On anchors the time of day to the calendar date of ref in loc.
func (t TimeOfDay) On(ref time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = ref.Location()
	}
	y, m, d := ref.In(loc).Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}

// Before reports whether t is strictly earlier in the day than o.
func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.Hour*60+t.Minute < o.Hour*60+o.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Window is the half-open opening-range window [Start, End).
type Window struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// Bounds returns the absolute window for the session containing ref.
func (w Window) Bounds(ref time.Time) (time.Time, time.Time) {
	return w.Start.On(ref, w.Location), w.End.On(ref, w.Location)
}
