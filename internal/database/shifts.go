package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// --- Shift Check-In Queries ---

const shiftWithRunnerQuery = `SELECT ` + runnerColumns + `, s.id, s.time_slot, s.start_minute, s.end_minute,
	s.checked_in, s.already_called, s.created_at_ms
	FROM shift_checkins s
	JOIN runners r ON r.id = s.runner_id`

func scanShiftCheckIn(row rowScanner) (*ShiftCheckIn, error) {
	c := &ShiftCheckIn{}
	var createdMs int64
	runner, err := scanRunner(row, &c.ID, &c.TimeSlot, &c.StartMinute, &c.EndMinute, &c.CheckedIn, &c.AlreadyCalled, &createdMs)
	if err != nil {
		return nil, err
	}
	c.RunnerID = runner.ID
	c.Runner = runner
	c.CreatedAt = msToTime(createdMs)
	return c, nil
}

func (s *Service) queryShiftCheckIns(ctx context.Context, db DBorTx, query string, args ...any) ([]ShiftCheckIn, error) {
	rows, err := db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checkIns := []ShiftCheckIn{}
	for rows.Next() {
		c, err := scanShiftCheckIn(rows)
		if err != nil {
			return nil, err
		}
		checkIns = append(checkIns, *c)
	}
	return checkIns, rows.Err()
}

// PendingShiftCheckIns returns the runner's shifts that are not checked in yet.
func (s *Service) PendingShiftCheckIns(ctx context.Context, db DBorTx, runnerID int64) ([]ShiftCheckIn, error) {
	query := shiftWithRunnerQuery + ` WHERE s.runner_id = ? AND s.checked_in = FALSE ORDER BY s.start_minute, s.id;`
	return s.queryShiftCheckIns(ctx, db, query, runnerID)
}

// RunnerShiftCheckIns returns every shift of the runner.
func (s *Service) RunnerShiftCheckIns(ctx context.Context, db DBorTx, runnerID int64) ([]ShiftCheckIn, error) {
	query := shiftWithRunnerQuery + ` WHERE s.runner_id = ? ORDER BY s.start_minute, s.id;`
	return s.queryShiftCheckIns(ctx, db, query, runnerID)
}

// ListShiftCheckIns returns the check-ins of a slot, or of every slot when
// timeSlot is empty.
func (s *Service) ListShiftCheckIns(ctx context.Context, db DBorTx, timeSlot string) ([]ShiftCheckIn, error) {
	if timeSlot == "" {
		return s.queryShiftCheckIns(ctx, db, shiftWithRunnerQuery+` ORDER BY s.start_minute, r.last_name, r.first_name;`)
	}
	query := shiftWithRunnerQuery + ` WHERE s.time_slot = ? ORDER BY r.last_name, r.first_name;`
	return s.queryShiftCheckIns(ctx, db, query, timeSlot)
}

// GetShiftCheckIn returns one check-in with its runner, or sql.ErrNoRows.
func (s *Service) GetShiftCheckIn(ctx context.Context, db DBorTx, id int64) (*ShiftCheckIn, error) {
	return scanShiftCheckIn(db.QueryRowContext(ctx, s.rebind(shiftWithRunnerQuery+` WHERE s.id = ?;`), id))
}

// InsertShiftCheckIn assigns a runner to a slot. Re-adding an existing
// (runner, slot) pair is a no-op and reports created == false.
func (s *Service) InsertShiftCheckIn(ctx context.Context, db DBorTx, runnerID int64, timeSlot string, startMinute, endMinute int, now time.Time) (created bool, err error) {
	query := `INSERT INTO shift_checkins (runner_id, time_slot, start_minute, end_minute, created_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (runner_id, time_slot) DO NOTHING
		RETURNING id;`
	var id int64
	err = db.QueryRowContext(ctx, s.rebind(query), runnerID, timeSlot, startMinute, endMinute, now.UnixMilli()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetShiftCheckedIn marks a check-in as present or absent.
func (s *Service) SetShiftCheckedIn(ctx context.Context, db DBorTx, id int64, checkedIn bool) error {
	res, err := db.ExecContext(ctx, s.rebind(`UPDATE shift_checkins SET checked_in = ? WHERE id = ?;`), checkedIn, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ToggleShiftCalled flips the flag staff use to remember they already phoned
// a runner who has not shown up for their shift.
func (s *Service) ToggleShiftCalled(ctx context.Context, db DBorTx, id int64) error {
	res, err := db.ExecContext(ctx, s.rebind(`UPDATE shift_checkins SET already_called = NOT already_called WHERE id = ?;`), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteShiftCheckIn removes a runner from a shift.
func (s *Service) DeleteShiftCheckIn(ctx context.Context, db DBorTx, id int64) error {
	res, err := db.ExecContext(ctx, s.rebind(`DELETE FROM shift_checkins WHERE id = ?;`), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}
