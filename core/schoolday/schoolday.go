// Package schoolday implements the class-day calendar: classes run on a single
// configured weekday (Saturday by default) and every attendance date must fall
// on it. All helpers are pure and operate on dates normalized to UTC midnight.
package schoolday

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the single accepted input/output date format.
const DateLayout = "2006-01-02"

var ErrInvalidFormat = errors.New("invalid date format, expected YYYY-MM-DD")

// WrongWeekdayError reports a well-formed date that does not fall on the class
// day. It carries the rejected date so callers can suggest the next valid one.
type WrongWeekdayError struct {
	Date time.Time
	Want time.Weekday
}

func (e *WrongWeekdayError) Error() string {
	return fmt.Sprintf("%s is a %s, classes are held on %s", e.Date.Format(DateLayout), e.Date.Weekday(), e.Want)
}

// Calendar knows which weekday classes are held on.
type Calendar struct {
	day time.Weekday
}

func New(day time.Weekday) Calendar {
	return Calendar{day: day}
}

// Default returns the Saturday calendar.
func Default() Calendar {
	return Calendar{day: time.Saturday}
}

func (c Calendar) Day() time.Weekday {
	return c.day
}

// Normalize truncates t to UTC midnight so dates compare and map-key cleanly.
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Key returns the canonical YYYY-MM-DD key for a date.
func Key(t time.Time) string {
	return t.Format(DateLayout)
}

func (c Calendar) IsClassDay(d time.Time) bool {
	return d.Weekday() == c.day
}

// Validate parses input as YYYY-MM-DD and accepts it only if it falls on the
// class day.
func (c Calendar) Validate(input string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, input, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidFormat
	}
	return c.ValidateDate(d)
}

// ValidateDate accepts an already-parsed date only if it falls on the class day.
func (c Calendar) ValidateDate(d time.Time) (time.Time, error) {
	d = Normalize(d)
	if !c.IsClassDay(d) {
		return time.Time{}, &WrongWeekdayError{Date: d, Want: c.day}
	}
	return d, nil
}

// Next returns the next class day strictly after from.
func (c Calendar) Next(from time.Time) time.Time {
	from = Normalize(from)
	ahead := (int(c.day) - int(from.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return from.AddDate(0, 0, ahead)
}

// Previous returns the class day strictly before from.
func (c Calendar) Previous(from time.Time) time.Time {
	from = Normalize(from)
	back := (int(from.Weekday()) - int(c.day) + 7) % 7
	if back == 0 {
		back = 7
	}
	return from.AddDate(0, 0, -back)
}

// Last returns the most recent class day on or before from (from itself when
// it is a class day).
func (c Calendar) Last(from time.Time) time.Time {
	from = Normalize(from)
	if c.IsClassDay(from) {
		return from
	}
	return c.Previous(from)
}

// InRange returns every class day between start and end inclusive, ascending.
func (c Calendar) InRange(start, end time.Time) []time.Time {
	start, end = Normalize(start), Normalize(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0)
	d := start
	if !c.IsClassDay(d) {
		d = c.Next(d)
	}
	for !d.After(end) {
		days = append(days, d)
		d = d.AddDate(0, 0, 7)
	}
	return days
}

// Count counts class days between start and end inclusive.
func (c Calendar) Count(start, end time.Time) int {
	return len(c.InRange(start, end))
}

// InMonth returns every class day of the given month, ascending.
func (c Calendar) InMonth(year int, month time.Month) []time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return c.InRange(first, last)
}

// LastN returns the n most recent class days on or before from, most recent
// first.
func (c Calendar) LastN(n int, from time.Time) []time.Time {
	if n <= 0 {
		return nil
	}
	days := make([]time.Time, 0, n)
	d := c.Last(from)
	for i := 0; i < n; i++ {
		days = append(days, d)
		d = d.AddDate(0, 0, -7)
	}
	return days
}
