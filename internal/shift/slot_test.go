package shift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		label      string
		start, end int
		crosses    bool
	}{
		{"20u30-22u", 20*60 + 30, 22 * 60, false},
		{"20u-22u", 20 * 60, 22 * 60, false},
		{"20-22", 20 * 60, 22 * 60, false},
		{"1u00-2u00", 60, 120, false},
		{"23u00-01u00", 23 * 60, 60, true},
		{"22u30 – 23u30", 22*60 + 30, 23*60 + 30, false},
	}
	for _, tc := range cases {
		s, err := Parse(tc.label)
		require.NoError(t, err, tc.label)
		assert.Equal(t, tc.start, s.StartMinute, tc.label)
		assert.Equal(t, tc.end, s.EndMinute, tc.label)
		assert.Equal(t, tc.crosses, s.CrossesMidnight, tc.label)
	}
}

func TestParseNormalizesLabel(t *testing.T) {
	s, err := Parse("20u30 — 22u")
	require.NoError(t, err)
	assert.Equal(t, "20u30-22u", s.Label)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, label := range []string{"", "20u30", "20u30-22u-23u", "xx-22u", "20u3-22u", "25u-26u", "20u75-22u", "123-130", "u30-22u", "23u-24u30"} {
		_, err := Parse(label)
		assert.Error(t, err, label)
	}
}

func TestSlotEndingAtMidnight(t *testing.T) {
	s, err := Parse("23u-24u")
	require.NoError(t, err)
	assert.Equal(t, 1440, s.EndMinute)
	assert.False(t, s.CrossesMidnight)
	assert.True(t, s.Contains(at(23, 59)))
	assert.False(t, s.Contains(at(0, 15)))
}

func at(hour, minute int) int { return hour*60 + minute }

func TestContainsRegularSlot(t *testing.T) {
	s, err := Parse("20u30-22u")
	require.NoError(t, err)

	assert.True(t, s.Contains(at(20, 5)))
	assert.True(t, s.Contains(at(20, 0)))
	assert.True(t, s.Contains(at(22, 0)))
	assert.False(t, s.Contains(at(19, 55)))
	assert.False(t, s.Contains(at(22, 1)))
}

func TestContainsOvernightSlot(t *testing.T) {
	s, err := Parse("23u00-01u00")
	require.NoError(t, err)

	assert.True(t, s.Contains(at(22, 30)))
	assert.True(t, s.Contains(at(23, 45)))
	assert.True(t, s.Contains(at(0, 30)))
	assert.False(t, s.Contains(at(12, 0)))
	assert.False(t, s.Contains(at(1, 1)))
}

func TestContainsBufferWrapsPastMidnight(t *testing.T) {
	s, err := Parse("0u15-2u")
	require.NoError(t, err)

	assert.True(t, s.Contains(at(23, 50)))
	assert.True(t, s.Contains(at(1, 0)))
	assert.False(t, s.Contains(at(23, 40)))
}

func TestContainsTimeUsesEventZone(t *testing.T) {
	brussels, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	s, err := Parse("20u30-22u")
	require.NoError(t, err)

	// 18:05 UTC is 20:05 in Brussels during summer time.
	instant := time.Date(2025, 7, 1, 18, 5, 0, 0, time.UTC)
	assert.True(t, s.ContainsTime(instant, brussels))
	assert.False(t, s.ContainsTime(instant, time.UTC))
}
