// Package laptime converts lap durations between integer milliseconds and the
// "M:SS.HH" display form (minutes unpadded, seconds and hundredths two digits).
package laptime

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// Unparseable is the ranking value of a string that is not a valid lap time.
// It sorts after every real duration.
const Unparseable int64 = math.MaxInt64

var lapTimePattern = regexp.MustCompile(`^(\d+):(\d{2})\.(\d{2})$`)

// Truncate drops everything below hundredths of a second, which is the
// resolution lap times are stored and shown with.
func Truncate(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms - ms%10
}

// Elapsed returns the truncated milliseconds between start and now.
func Elapsed(start, now time.Time) int64 {
	return Truncate(now.Sub(start).Milliseconds())
}

// Format renders milliseconds as "M:SS.HH". 78230 becomes "1:18.23".
func Format(ms int64) string {
	ms = Truncate(ms)
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	hundredths := (ms % 1000) / 10
	return fmt.Sprintf("%d:%02d.%02d", minutes, seconds, hundredths)
}

// Parse reads a "M:SS.HH" string. Anything of a different shape is rejected.
func Parse(s string) (int64, error) {
	m := lapTimePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid lap time %q: expected M:SS.HH", s)
	}
	minutes, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid lap time %q: %w", s, err)
	}
	seconds, _ := strconv.ParseInt(m[2], 10, 64)
	hundredths, _ := strconv.ParseInt(m[3], 10, 64)
	return minutes*60000 + seconds*1000 + hundredths*10, nil
}

// RankValue is Parse for sorting: unparseable input ranks as infinitely slow.
func RankValue(s string) int64 {
	ms, err := Parse(s)
	if err != nil {
		return Unparseable
	}
	return ms
}
