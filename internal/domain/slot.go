package domain

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Overlaps is the half-open interval test: [s1,e1) and [s2,e2) overlap iff
// s1 < e2 and s2 < e1. Adjacent windows do not overlap.
func Overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

// ParseClock converts HH:MM into minutes after midnight.
func ParseClock(v string) (int, error) {
	t, err := time.Parse(ClockLayout, v)
	if err != nil {
		return 0, NewError(CodeValidation, "invalid time %q, expected HH:MM", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseWindow parses a same-day window and requires start < end.
func ParseWindow(start, end string) (int, int, error) {
	s, err := ParseClock(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return 0, 0, err
	}
	if e <= s {
		return 0, 0, NewError(CodeValidation, "end time %s must be after start time %s", end, start)
	}
	return s, e, nil
}

func ParseDate(v string) (time.Time, error) {
	d, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, NewError(CodeValidation, "invalid date %q, expected YYYY-MM-DD", v)
	}
	return d, nil
}

// FormatClock renders minutes after midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Slot is a validated booking window on one date.
type Slot struct {
	Date        string
	Start       string
	End         string
	StartMinute int
	EndMinute   int
}

func NewSlot(date, start, end string) (Slot, error) {
	if _, err := ParseDate(date); err != nil {
		return Slot{}, err
	}
	s, e, err := ParseWindow(start, end)
	if err != nil {
		return Slot{}, err
	}
	return Slot{Date: date, Start: FormatClock(s), End: FormatClock(e), StartMinute: s, EndMinute: e}, nil
}

func (s Slot) Minutes() int {
	return s.EndMinute - s.StartMinute
}
