package domain

import (
	"fmt"
	"time"
)

// DayLayout is the date format used for day file names and configuration.
const DayLayout = "2006-01-02"

// MillisPerDay is the length of a UTC calendar day in milliseconds.
const MillisPerDay = 86_400_000

// Day is a UTC calendar day. The zero value means "not set".
type Day struct {
	start time.Time
}

// ParseDay parses a YYYY-MM-DD string as a UTC day.
func ParseDay(s string) (Day, error) {
	t, err := time.ParseInLocation(DayLayout, s, time.UTC)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q (want YYYY-MM-DD): %w", s, err)
	}
	return Day{start: t}, nil
}

// DayOf returns the UTC day containing t.
func DayOf(t time.Time) Day {
	y, m, d := t.UTC().Date()
	return Day{start: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DayFromTimestamp returns the UTC day containing the unix millisecond timestamp ms.
func DayFromTimestamp(ms int64) Day {
	return DayOf(time.UnixMilli(ms))
}

// DayToTimestamp returns the unix millisecond timestamp of the start of d.
func DayToTimestamp(d Day) int64 {
	return d.start.UnixMilli()
}

// Start returns midnight UTC of the day.
func (d Day) Start() time.Time { return d.start }

// Timestamp is DayToTimestamp(d).
func (d Day) Timestamp() int64 { return DayToTimestamp(d) }

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool { return d.start.IsZero() }

// AddDays returns the day n days after d (n may be negative).
func (d Day) AddDays(n int) Day { return Day{start: d.start.AddDate(0, 0, n)} }

// Next returns the following day.
func (d Day) Next() Day { return d.AddDays(1) }

// Before reports whether d is strictly earlier than o.
func (d Day) Before(o Day) bool { return d.start.Before(o.start) }

// Equal reports whether d and o are the same day.
func (d Day) Equal(o Day) bool { return d.start.Equal(o.start) }

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.start.Format(DayLayout)
}
