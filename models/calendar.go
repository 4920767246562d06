package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day wire format used for dates and counter keys.
const DateLayout = "2006-01-02"

// CalendarDay is a UTC calendar day. Quota counters and date chunks are keyed by it.
type CalendarDay struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the UTC calendar day containing t.
func DayOf(t time.Time) CalendarDay {
	u := t.UTC()
	return CalendarDay{Year: u.Year(), Month: u.Month(), Day: u.Day()}
}

// ParseDay parses a YYYY-MM-DD string into a CalendarDay.
func ParseDay(s string) (CalendarDay, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return CalendarDay{}, &ValidationError{Field: "date", Message: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	return DayOf(t), nil
}

// Start returns midnight UTC at the beginning of the day.
func (d CalendarDay) Start() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// End returns the last representable second of the day.
func (d CalendarDay) End() time.Time {
	return d.Start().Add(24*time.Hour - time.Second)
}

// Next returns the following calendar day.
func (d CalendarDay) Next() CalendarDay {
	return d.AddDays(1)
}

// AddDays shifts the day by n days.
func (d CalendarDay) AddDays(n int) CalendarDay {
	return DayOf(d.Start().AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
func (d CalendarDay) Before(other CalendarDay) bool {
	return d.Start().Before(other.Start())
}

// After reports whether d is strictly later than other.
func (d CalendarDay) After(other CalendarDay) bool {
	return d.Start().After(other.Start())
}

// String returns the YYYY-MM-DD form used as the counter key.
func (d CalendarDay) String() string {
	return d.Start().Format(DateLayout)
}

// NextUTCMidnight returns the instant the current quota day ends.
func NextUTCMidnight(now time.Time) time.Time {
	return DayOf(now).Next().Start()
}

// DateChunk is an inclusive range of calendar days.
type DateChunk struct {
	Start CalendarDay
	End   CalendarDay
}

// Days returns the number of days covered by the chunk.
func (c DateChunk) Days() int {
	return int(c.End.Start().Sub(c.Start.Start()).Hours()/24) + 1
}

// String renders the chunk as "start..end".
func (c DateChunk) String() string {
	return c.Start.String() + ".." + c.End.String()
}

// ChunkDateRange splits the inclusive range [start, end] into contiguous chunks of at
// most size days. Chunks never overlap and leave no gaps.
func ChunkDateRange(start, end CalendarDay, size int) ([]DateChunk, error) {
	if size <= 0 {
		return nil, &ValidationError{Field: "chunk_days", Message: "must be positive"}
	}
	if end.Before(start) {
		return nil, &ValidationError{Field: "end_date", Message: fmt.Sprintf("%s is before start date %s", end, start)}
	}

	var chunks []DateChunk
	for cursor := start; !cursor.After(end); {
		chunkEnd := cursor.AddDays(size - 1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, DateChunk{Start: cursor, End: chunkEnd})
		cursor = chunkEnd.Next()
	}
	return chunks, nil
}
