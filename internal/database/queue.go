package database

import (
	"context"
	"time"
)

// --- Queue Queries ---

const queueHeadQuery = `SELECT ` + runnerColumns + `, q.id, q.queue_place, q.created_at_ms, ` + lastLapSubquery + `
	FROM queue_entries q
	JOIN runners r ON r.id = q.runner_id`

func scanQueueEntry(row rowScanner) (*QueueEntry, error) {
	e := &QueueEntry{}
	var createdMs int64
	runner, err := scanRunner(row, &e.ID, &e.QueuePlace, &createdMs, &e.LastLapMs)
	if err != nil {
		return nil, err
	}
	e.RunnerID = runner.ID
	e.Runner = runner
	e.CreatedAt = msToTime(createdMs)
	return e, nil
}

// MaxQueuePlace returns the highest place in the queue, or 0 when it is empty.
func (s *Service) MaxQueuePlace(ctx context.Context, db DBorTx) (int64, error) {
	var place int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(queue_place), 0) FROM queue_entries;`).Scan(&place)
	return place, err
}

// MinQueuePlace returns the lowest place in the queue, or 0 when it is empty.
func (s *Service) MinQueuePlace(ctx context.Context, db DBorTx) (int64, error) {
	var place int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MIN(queue_place), 0) FROM queue_entries;`).Scan(&place)
	return place, err
}

// CountQueueEntries returns how many runners are waiting.
func (s *Service) CountQueueEntries(ctx context.Context, db DBorTx) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries;`).Scan(&n)
	return n, err
}

// InsertQueueEntry places runnerID at place. The unique constraint on
// runner_id rejects a runner that is already waiting.
func (s *Service) InsertQueueEntry(ctx context.Context, db DBorTx, runnerID, place int64, createdAt time.Time) (*QueueEntry, error) {
	query := `INSERT INTO queue_entries (runner_id, queue_place, created_at_ms) VALUES (?, ?, ?) RETURNING id;`
	e := &QueueEntry{RunnerID: runnerID, QueuePlace: place, CreatedAt: msToTime(createdAt.UnixMilli())}
	if err := db.QueryRowContext(ctx, s.rebind(query), runnerID, place, createdAt.UnixMilli()).Scan(&e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

// GetQueueEntry returns sql.ErrNoRows if the entry does not exist.
func (s *Service) GetQueueEntry(ctx context.Context, db DBorTx, id int64) (*QueueEntry, error) {
	return scanQueueEntry(db.QueryRowContext(ctx, s.rebind(queueHeadQuery+` WHERE q.id = ?;`), id))
}

// GetQueueEntryByRunner returns the runner's entry, or sql.ErrNoRows when the
// runner is not waiting. A runner holds at most one entry.
func (s *Service) GetQueueEntryByRunner(ctx context.Context, db DBorTx, runnerID int64) (*QueueEntry, error) {
	return scanQueueEntry(db.QueryRowContext(ctx, s.rebind(queueHeadQuery+` WHERE q.runner_id = ?;`), runnerID))
}

// QueueHead returns the n lowest-place entries in ascending place order, each
// joined with its runner and that runner's last finished lap. Entries sharing
// a place are ordered by id so the result is stable.
func (s *Service) QueueHead(ctx context.Context, db DBorTx, n int) ([]QueueEntry, error) {
	rows, err := db.QueryContext(ctx, s.rebind(queueHeadQuery+` ORDER BY q.queue_place, q.id LIMIT ?;`), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []QueueEntry{}
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// DeleteQueueEntry removes one entry. Places of the remaining entries are left
// as they are, so gaps are normal; order only depends on relative place.
// It returns ErrNoRowsAffected when the entry does not exist.
func (s *Service) DeleteQueueEntry(ctx context.Context, db DBorTx, id int64) error {
	res, err := db.ExecContext(ctx, s.rebind(`DELETE FROM queue_entries WHERE id = ?;`), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// UpdateQueuePlace moves an entry to place. It does not check for a clash with
// another entry; callers validate the whole reorder with
// CountDuplicateQueuePlaces before committing.
func (s *Service) UpdateQueuePlace(ctx context.Context, db DBorTx, id, place int64) error {
	res, err := db.ExecContext(ctx, s.rebind(`UPDATE queue_entries SET queue_place = ? WHERE id = ?;`), place, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// CountDuplicateQueuePlaces returns how many places are held by more than one entry.
func (s *Service) CountDuplicateQueuePlaces(ctx context.Context, db DBorTx) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (
		SELECT queue_place FROM queue_entries GROUP BY queue_place HAVING COUNT(*) > 1
	) dup;`).Scan(&n)
	return n, err
}
