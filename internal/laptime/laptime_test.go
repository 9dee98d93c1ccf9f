package laptime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	cases := map[int64]string{
		0:       "0:00.00",
		78230:   "1:18.23",
		78239:   "1:18.23",
		9990:    "0:09.99",
		600000:  "10:00.00",
		3723450: "62:03.45",
	}
	for ms, want := range cases {
		assert.Equal(t, want, Format(ms), "Format(%d)", ms)
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, e := range []int64{0, 5, 78230, 78239, 61001, 3599999} {
		got, err := Parse(Format(e))
		require.NoError(t, err)
		assert.InDelta(t, e, got, 10, "round trip of %d", e)
	}
}

func TestParseRejectsOtherShapes(t *testing.T) {
	for _, s := range []string{"", "null", "1:18", "1:8.23", "1:18.2", "01:18.234", "a:bc.de", " 1:18.23"} {
		_, err := Parse(s)
		assert.Error(t, err, "Parse(%q)", s)
		assert.Equal(t, Unparseable, RankValue(s))
	}
}

func TestRankValueOrdersUnparseableLast(t *testing.T) {
	assert.Less(t, RankValue("1:10.00"), RankValue("1:15.50"))
	assert.Less(t, RankValue("99:59.99"), RankValue("garbage"))
}

func TestElapsedTruncatesToHundredths(t *testing.T) {
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(78230), Elapsed(start, start.Add(78237*time.Millisecond)))
	assert.Equal(t, int64(0), Elapsed(start, start.Add(-time.Second)))
}
