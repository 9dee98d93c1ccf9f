package database

import (
	"context"
	"database/sql"
	"time"
)

// --- Lap Queries ---

const lapWithRunnerQuery = `SELECT ` + runnerColumns + `, l.id, l.started_at_ms, l.state, l.duration_ms, l.raining
	FROM laps l
	JOIN runners r ON r.id = l.runner_id`

func scanLap(row rowScanner) (*Lap, error) {
	l := &Lap{}
	var (
		startedMs int64
		duration  sql.NullInt64
	)
	runner, err := scanRunner(row, &l.ID, &startedMs, &l.State, &duration, &l.Raining)
	if err != nil {
		return nil, err
	}
	l.RunnerID = runner.ID
	l.Runner = runner
	l.StartedAt = msToTime(startedMs)
	l.DurationMs = duration.Int64
	return l, nil
}

func (s *Service) queryLaps(ctx context.Context, db DBorTx, query string, args ...any) ([]Lap, error) {
	rows, err := db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	laps := []Lap{}
	for rows.Next() {
		l, err := scanLap(rows)
		if err != nil {
			return nil, err
		}
		laps = append(laps, *l)
	}
	return laps, rows.Err()
}

// CreateLap starts a lap for runnerID. The partial unique index on state
// makes this fail while another lap is in progress.
func (s *Service) CreateLap(ctx context.Context, db DBorTx, runnerID int64, startedAt time.Time, raining bool) (*Lap, error) {
	query := `INSERT INTO laps (runner_id, started_at_ms, state, raining) VALUES (?, ?, ?, ?) RETURNING id;`
	l := &Lap{
		RunnerID:  runnerID,
		StartedAt: msToTime(startedAt.UnixMilli()),
		State:     LapInProgress,
		Raining:   raining,
	}
	err := db.QueryRowContext(ctx, s.rebind(query), runnerID, startedAt.UnixMilli(), LapInProgress, raining).Scan(&l.ID)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// GetLap returns the lap with its runner joined in, or sql.ErrNoRows.
func (s *Service) GetLap(ctx context.Context, db DBorTx, id int64) (*Lap, error) {
	return scanLap(db.QueryRowContext(ctx, s.rebind(lapWithRunnerQuery+` WHERE l.id = ?;`), id))
}

// GetInProgressLap returns the lap currently on the track, or sql.ErrNoRows when idle.
func (s *Service) GetInProgressLap(ctx context.Context, db DBorTx) (*Lap, error) {
	return scanLap(db.QueryRowContext(ctx, s.rebind(lapWithRunnerQuery+` WHERE l.state = ?;`), LapInProgress))
}

// FinalizeLap writes the duration of an in-progress lap. A lap that is
// already finalized is left untouched and ErrNoRowsAffected is returned.
func (s *Service) FinalizeLap(ctx context.Context, db DBorTx, id, durationMs int64) error {
	query := `UPDATE laps SET state = ?, duration_ms = ? WHERE id = ? AND state = ?;`
	res, err := db.ExecContext(ctx, s.rebind(query), LapFinalized, durationMs, id, LapInProgress)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ReopenLap puts a finalized lap back on the track.
func (s *Service) ReopenLap(ctx context.Context, db DBorTx, id int64) error {
	query := `UPDATE laps SET state = ?, duration_ms = NULL WHERE id = ? AND state = ?;`
	res, err := db.ExecContext(ctx, s.rebind(query), LapInProgress, id, LapFinalized)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteLap removes a lap outright. It is only used to roll back a lap that
// undo takes off the track; it returns ErrNoRowsAffected for an unknown id.
func (s *Service) DeleteLap(ctx context.Context, db DBorTx, id int64) error {
	res, err := db.ExecContext(ctx, s.rebind(`DELETE FROM laps WHERE id = ?;`), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// BestFinishedLap returns the runner's fastest finalized lap other than excludeLapID.
// Valid is false when there is none.
func (s *Service) BestFinishedLap(ctx context.Context, db DBorTx, runnerID, excludeLapID int64) (sql.NullInt64, error) {
	query := `SELECT MIN(duration_ms) FROM laps WHERE runner_id = ? AND state = ? AND id <> ?;`
	var best sql.NullInt64
	err := db.QueryRowContext(ctx, s.rebind(query), runnerID, LapFinalized, excludeLapID).Scan(&best)
	return best, err
}

// LatestFinalizedLap returns the most recently started finished lap.
func (s *Service) LatestFinalizedLap(ctx context.Context, db DBorTx) (*Lap, error) {
	query := lapWithRunnerQuery + ` WHERE l.state = ? ORDER BY l.started_at_ms DESC, l.id DESC LIMIT 1;`
	return scanLap(db.QueryRowContext(ctx, s.rebind(query), LapFinalized))
}

// RecentLaps returns the last n finished laps, newest first.
func (s *Service) RecentLaps(ctx context.Context, db DBorTx, n int) ([]Lap, error) {
	query := lapWithRunnerQuery + ` WHERE l.state = ? ORDER BY l.started_at_ms DESC, l.id DESC LIMIT ?;`
	return s.queryLaps(ctx, db, query, LapFinalized, n)
}

// RunnerLaps returns every lap of a runner in the order they were run.
func (s *Service) RunnerLaps(ctx context.Context, db DBorTx, runnerID int64) ([]Lap, error) {
	query := lapWithRunnerQuery + ` WHERE l.runner_id = ? ORDER BY l.started_at_ms, l.id;`
	return s.queryLaps(ctx, db, query, runnerID)
}

// FastestRunners returns the n runners with the quickest finished lap, one row per runner.
func (s *Service) FastestRunners(ctx context.Context, db DBorTx, n int) ([]RunnerBest, error) {
	query := `SELECT ` + runnerColumns + `, b.best_ms
		FROM (SELECT runner_id, MIN(duration_ms) AS best_ms FROM laps WHERE state = ? GROUP BY runner_id) b
		JOIN runners r ON r.id = b.runner_id
		ORDER BY b.best_ms, r.id LIMIT ?;`
	rows, err := db.QueryContext(ctx, s.rebind(query), LapFinalized, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bests := []RunnerBest{}
	for rows.Next() {
		var b RunnerBest
		runner, err := scanRunner(rows, &b.BestMs)
		if err != nil {
			return nil, err
		}
		b.Runner = *runner
		bests = append(bests, b)
	}
	return bests, rows.Err()
}

// TopRunnersByLaps ranks runners by finished lap count. With firstYearOnly
// only first-year runners are considered.
func (s *Service) TopRunnersByLaps(ctx context.Context, db DBorTx, n int, firstYearOnly bool) ([]RunnerLapCount, error) {
	filter := ""
	if firstYearOnly {
		filter = ` WHERE r.first_year = TRUE`
	}
	query := `SELECT ` + runnerColumns + `, c.laps
		FROM (SELECT runner_id, COUNT(*) AS laps FROM laps WHERE state = ? GROUP BY runner_id) c
		JOIN runners r ON r.id = c.runner_id` + filter + `
		ORDER BY c.laps DESC, r.id LIMIT ?;`
	rows, err := db.QueryContext(ctx, s.rebind(query), LapFinalized, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []RunnerLapCount{}
	for rows.Next() {
		var c RunnerLapCount
		runner, err := scanRunner(rows, &c.Laps)
		if err != nil {
			return nil, err
		}
		c.Runner = *runner
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// GroupLapTotals returns the n groups with the most finished laps.
func (s *Service) GroupLapTotals(ctx context.Context, db DBorTx, n int) ([]GroupLapCount, error) {
	query := `SELECT r.group_number, COALESCE(g.name, ''), COUNT(*) AS laps
		FROM laps l
		JOIN runners r ON r.id = l.runner_id
		LEFT JOIN runner_groups g ON g.group_number = r.group_number
		WHERE l.state = ? AND r.group_number IS NOT NULL
		GROUP BY r.group_number, g.name
		ORDER BY laps DESC, r.group_number LIMIT ?;`
	rows, err := db.QueryContext(ctx, s.rebind(query), LapFinalized, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []GroupLapCount{}
	for rows.Next() {
		var g GroupLapCount
		if err := rows.Scan(&g.GroupNumber, &g.Name, &g.Laps); err != nil {
			return nil, err
		}
		totals = append(totals, g)
	}
	return totals, rows.Err()
}

// LapStart is the runner and start instant of a finished lap.
type LapStart struct {
	RunnerID  int64
	StartedAt time.Time
}

// FinishedLapStarts lists the start instant of every finished lap.
func (s *Service) FinishedLapStarts(ctx context.Context, db DBorTx) ([]LapStart, error) {
	rows, err := db.QueryContext(ctx, s.rebind(`SELECT runner_id, started_at_ms FROM laps WHERE state = ?;`), LapFinalized)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	starts := []LapStart{}
	for rows.Next() {
		var (
			ls        LapStart
			startedMs int64
		)
		if err := rows.Scan(&ls.RunnerID, &startedMs); err != nil {
			return nil, err
		}
		ls.StartedAt = msToTime(startedMs)
		starts = append(starts, ls)
	}
	return starts, rows.Err()
}

// LapDurationTotals sums the durations of finished laps started at or after since.
func (s *Service) LapDurationTotals(ctx context.Context, db DBorTx, since time.Time) (totalMs int64, count int, err error) {
	query := `SELECT COALESCE(SUM(duration_ms), 0), COUNT(*) FROM laps WHERE state = ? AND started_at_ms >= ?;`
	err = db.QueryRowContext(ctx, s.rebind(query), LapFinalized, since.UnixMilli()).Scan(&totalMs, &count)
	return totalMs, count, err
}

// --- Global State Queries ---

// GetRaining reads the global weather flag. Laps copy it when they start, so
// changing it never rewrites laps already on the track or finished.
func (s *Service) GetRaining(ctx context.Context, db DBorTx) (bool, error) {
	var raining bool
	err := db.QueryRowContext(ctx, `SELECT raining FROM global_state WHERE id = 1;`).Scan(&raining)
	return raining, err
}

// SetRaining stores the global weather flag.
func (s *Service) SetRaining(ctx context.Context, db DBorTx, raining bool) error {
	res, err := db.ExecContext(ctx, s.rebind(`UPDATE global_state SET raining = ? WHERE id = 1;`), raining)
	if err != nil {
		return err
	}
	return checkAffected(res)
}
