// Package shift parses volunteer shift labels such as "20u30-22u" and decides
// whether a wall-clock moment falls inside the check-in window of a shift.
package shift

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EarlyBuffer is how long before the start of a shift a runner may check in.
const EarlyBuffer = 30

const minutesPerDay = 24 * 60

// Slot is a parsed shift label. Minutes are counted from midnight.
type Slot struct {
	Label           string
	StartMinute     int
	EndMinute       int
	CrossesMidnight bool
}

// Normalize removes spaces and turns en and em dashes into a plain dash so that
// labels typed by staff in different ways end up identical.
func Normalize(label string) string {
	label = strings.ReplaceAll(label, "–", "-")
	label = strings.ReplaceAll(label, "—", "-")
	label = strings.ReplaceAll(label, " ", "")
	return label
}

// Parse reads "<start>-<end>" where each side is "H", "HH", "HuMM" or "Hu".
func Parse(label string) (Slot, error) {
	label = Normalize(label)
	parts := strings.Split(label, "-")
	if len(parts) != 2 {
		return Slot{}, fmt.Errorf("invalid time slot %q: expected <start>-<end>", label)
	}
	start, err := parseSide(parts[0])
	if err != nil {
		return Slot{}, fmt.Errorf("invalid time slot %q: %w", label, err)
	}
	end, err := parseSide(parts[1])
	if err != nil {
		return Slot{}, fmt.Errorf("invalid time slot %q: %w", label, err)
	}
	return Slot{
		Label:           label,
		StartMinute:     start,
		EndMinute:       end,
		CrossesMidnight: end < start,
	}, nil
}

func parseSide(s string) (int, error) {
	hourPart, minutePart, hasU := strings.Cut(strings.ToLower(s), "u")
	if hourPart == "" || len(hourPart) > 2 || !allDigits(hourPart) {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	hour, _ := strconv.Atoi(hourPart)
	if hour > 24 {
		return 0, fmt.Errorf("hour out of range in %q", s)
	}
	minute := 0
	if hasU && minutePart != "" {
		if len(minutePart) != 2 || !allDigits(minutePart) {
			return 0, fmt.Errorf("bad minute in %q", s)
		}
		minute, _ = strconv.Atoi(minutePart)
		if minute > 59 {
			return 0, fmt.Errorf("minute out of range in %q", s)
		}
	}
	if hour == 24 && minute != 0 {
		return 0, fmt.Errorf("minutes past 24u in %q", s)
	}
	return hour*60 + minute, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Contains reports whether the wall-clock minute of day falls inside the slot
// once the early buffer is applied to its start. The end is inclusive.
func (s Slot) Contains(minuteOfDay int) bool {
	start := s.StartMinute - EarlyBuffer
	crosses := s.CrossesMidnight
	if start < 0 {
		start += minutesPerDay
		crosses = true
	}
	if crosses {
		return minuteOfDay >= start || minuteOfDay <= s.EndMinute
	}
	return minuteOfDay >= start && minuteOfDay <= s.EndMinute
}

// ContainsTime converts t to wall-clock time in loc before checking the slot.
func (s Slot) ContainsTime(t time.Time, loc *time.Location) bool {
	return s.Contains(MinuteOfDay(t, loc))
}

// MinuteOfDay is the civil minute since midnight of t in loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}
