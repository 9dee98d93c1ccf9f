package race

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointsForHour(t *testing.T) {
	want := map[int]int{
		20: 1, 23: 1, 0: 1, 1: 1,
		2: 3, 3: 3,
		4: 10, 8: 10,
		9: 5, 11: 5,
		12: 1, 17: 1,
		18: 3, 19: 3,
	}
	for hour, points := range want {
		assert.Equal(t, points, PointsForHour(hour), "hour %d", hour)
	}
}

// finishedLap stores a finished lap started at the given civil time on the fixture's day.
func (f *fixture) finishedLap(t *testing.T, runnerID int64, start time.Time, ms int64) {
	t.Helper()
	lap, err := f.store.CreateLap(f.ctx, f.store.DB(), runnerID, start, false)
	require.NoError(t, err)
	require.NoError(t, f.store.FinalizeLap(f.ctx, f.store.DB(), lap.ID, ms))
}

func TestStatisticsSnapshot(t *testing.T) {
	f := newFixture(t)
	a := f.runner(t, "Ann", "A")
	b := f.runner(t, "Bob", "B")
	c := f.runner(t, "Cas", "C")

	day := func(hour int) time.Time { return time.Date(2025, 5, 14, hour, 0, 0, 0, f.zone) }
	f.finishedLap(t, a.ID, day(5), 90000)
	f.finishedLap(t, b.ID, day(3), 70000)
	f.finishedLap(t, b.ID, day(19), 85000)
	f.enqueue(t, c.ID)

	stats, err := f.ctrl.StatisticsSnapshot(f.ctx)
	require.NoError(t, err)

	assert.Nil(t, stats.Current)
	require.Len(t, stats.RecentLaps, 3)
	assert.Equal(t, b.ID, stats.RecentLaps[0].RunnerID)

	require.Len(t, stats.Fastest, 2)
	assert.Equal(t, b.ID, stats.Fastest[0].Runner.ID)
	assert.Equal(t, int64(70000), stats.Fastest[0].BestMs)

	require.Len(t, stats.Queue, 1)
	assert.Equal(t, c.ID, stats.Queue[0].RunnerID)

	require.Len(t, stats.TopRunners, 2)
	assert.Equal(t, b.ID, stats.TopRunners[0].Runner.ID)
	assert.Equal(t, 2, stats.TopRunners[0].Laps)
	assert.Empty(t, stats.TopFirstYears)
	assert.Empty(t, stats.Groups)

	require.Len(t, stats.Points, 2)
	assert.Equal(t, a.ID, stats.Points[0].Runner.ID)
	assert.Equal(t, 10, stats.Points[0].Points)
	assert.Equal(t, 6, stats.Points[1].Points)
}

func TestAverageLapTime(t *testing.T) {
	f := newFixture(t)
	a := f.runner(t, "Ann", "A")

	avg, err := f.ctrl.AverageLapTime(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, avg)

	now := f.clock.now()
	f.finishedLap(t, a.ID, now.Add(-2*time.Hour), 300000)
	f.finishedLap(t, a.ID, now.Add(-30*time.Minute), 60000)
	f.finishedLap(t, a.ID, now.Add(-10*time.Minute), 90010)

	avg, err = f.ctrl.AverageLapTime(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.Equal(t, 2, avg.Laps)
	assert.Equal(t, int64(75000), avg.AverageMs)
}
