package race

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/intermernet/relayrace/internal/database"
	"github.com/intermernet/relayrace/internal/laptime"
)

// LeaderboardSize is the length of every statistics list.
const LeaderboardSize = 7

// AverageWindow is how far back AverageLapTime looks.
const AverageWindow = time.Hour

// PointsForHour is what a lap started at the given civil hour is worth.
// Night laps are worth more.
func PointsForHour(hour int) int {
	switch {
	case hour >= 20 || hour < 2:
		return 1
	case hour < 4:
		return 3
	case hour < 9:
		return 10
	case hour < 12:
		return 5
	case hour < 18:
		return 1
	default:
		return 3
	}
}

// RunnerPoints is a runner's total on the points leaderboard.
type RunnerPoints struct {
	Runner database.Runner
	Points int
}

// Statistics is the aggregate view shown on the dashboards.
type Statistics struct {
	Current          *database.Lap
	CurrentElapsedMs int64
	RecentLaps       []database.Lap
	Fastest          []database.RunnerBest
	Queue            []database.QueueEntry
	Groups           []database.GroupLapCount
	TopRunners       []database.RunnerLapCount
	TopFirstYears    []database.RunnerLapCount
	Points           []RunnerPoints
}

// StatisticsSnapshot gathers every dashboard list. Missing data shows up as
// empty lists and a nil current lap.
func (c *Controller) StatisticsSnapshot(ctx context.Context) (*Statistics, error) {
	db := c.store.DB()
	stats := &Statistics{}

	current, err := c.store.GetInProgressLap(ctx, db)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		stats.Current = current
		stats.CurrentElapsedMs = elapsed(current.StartedAt, c.now())
	}

	if stats.RecentLaps, err = c.store.RecentLaps(ctx, db, LeaderboardSize); err != nil {
		return nil, err
	}
	if stats.Fastest, err = c.store.FastestRunners(ctx, db, LeaderboardSize); err != nil {
		return nil, err
	}
	if stats.Queue, err = c.store.QueueHead(ctx, db, LeaderboardSize); err != nil {
		return nil, err
	}
	if stats.Groups, err = c.store.GroupLapTotals(ctx, db, LeaderboardSize); err != nil {
		return nil, err
	}
	if stats.TopRunners, err = c.store.TopRunnersByLaps(ctx, db, LeaderboardSize, false); err != nil {
		return nil, err
	}
	if stats.TopFirstYears, err = c.store.TopRunnersByLaps(ctx, db, LeaderboardSize, true); err != nil {
		return nil, err
	}
	if stats.Points, err = c.pointsLeaderboard(ctx, db, LeaderboardSize); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Controller) pointsLeaderboard(ctx context.Context, db database.DBorTx, n int) ([]RunnerPoints, error) {
	starts, err := c.store.FinishedLapStarts(ctx, db)
	if err != nil {
		return nil, err
	}

	totals := make(map[int64]int)
	for _, s := range starts {
		totals[s.RunnerID] += PointsForHour(s.StartedAt.In(c.zone).Hour())
	}

	ids := make([]int64, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if totals[ids[i]] != totals[ids[j]] {
			return totals[ids[i]] > totals[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}

	board := make([]RunnerPoints, 0, len(ids))
	for _, id := range ids {
		runner, err := c.store.GetRunnerByID(ctx, db, id)
		if err != nil {
			return nil, err
		}
		board = append(board, RunnerPoints{Runner: *runner, Points: totals[id]})
	}
	return board, nil
}

// AverageLap is the mean duration of recent laps.
type AverageLap struct {
	Laps      int
	AverageMs int64
}

// AverageLapTime averages the finished laps started within AverageWindow.
// It returns nil when there are none.
func (c *Controller) AverageLapTime(ctx context.Context) (*AverageLap, error) {
	total, count, err := c.store.LapDurationTotals(ctx, c.store.DB(), c.now().Add(-AverageWindow))
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return &AverageLap{Laps: count, AverageMs: laptime.Truncate(total / int64(count))}, nil
}
