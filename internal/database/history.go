package database

import (
	"context"
	"time"
)

// --- Control History Queries ---

// SaveControlHistory replaces the stored undo snapshot.
func (s *Service) SaveControlHistory(ctx context.Context, db DBorTx, operation string, snapshot []byte, at time.Time) error {
	query := `INSERT INTO control_history (id, operation, snapshot, created_at_ms) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET operation = excluded.operation, snapshot = excluded.snapshot,
		created_at_ms = excluded.created_at_ms;`
	_, err := db.ExecContext(ctx, s.rebind(query), operation, snapshot, at.UnixMilli())
	return err
}

// PopControlHistory returns and removes the stored snapshot. It returns
// sql.ErrNoRows when there is nothing to undo.
func (s *Service) PopControlHistory(ctx context.Context, db DBorTx) (operation string, snapshot []byte, err error) {
	err = db.QueryRowContext(ctx, `SELECT operation, snapshot FROM control_history WHERE id = 1;`).Scan(&operation, &snapshot)
	if err != nil {
		return "", nil, err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM control_history WHERE id = 1;`); err != nil {
		return "", nil, err
	}
	return operation, snapshot, nil
}
