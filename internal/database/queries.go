package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DBorTx is an interface that allows functions to accept either a `*sql.DB` for single queries
// or a `*sql.Tx` for operations within a transaction.
type DBorTx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// RunnerSummary is a runner with aggregates computed from their laps.
type RunnerSummary struct {
	Runner        Runner
	LastLapMs     sql.NullInt64
	CompletedLaps int
}

const runnerColumns = `r.id, r.identification, r.first_name, r.last_name, r.phone_number, r.faculty_id,
	r.group_number, r.test_time, r.first_year, r.reward1_collected, r.reward2_collected,
	r.reward3_collected, r.registered_at_ms`

const lastLapSubquery = `(SELECT l.duration_ms FROM laps l
	WHERE l.runner_id = r.id AND l.state = 'finalized'
	ORDER BY l.started_at_ms DESC LIMIT 1)`

const completedLapsSubquery = `(SELECT COUNT(*) FROM laps l WHERE l.runner_id = r.id AND l.state = 'finalized')`

// scanRunner reads the runnerColumns, followed by any extra destinations.
func scanRunner(row rowScanner, extra ...any) (*Runner, error) {
	r := &Runner{}
	var registeredMs int64
	dest := []any{
		&r.ID, &r.Identification, &r.FirstName, &r.LastName, &r.PhoneNumber, &r.FacultyID,
		&r.GroupNumber, &r.TestTime, &r.FirstYear, &r.Reward1Collected, &r.Reward2Collected,
		&r.Reward3Collected, &registeredMs,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.RegisteredAt = msToTime(registeredMs)
	return r, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// --- Runner Queries ---

// CreateRunner inserts r and returns the stored record.
func (s *Service) CreateRunner(ctx context.Context, db DBorTx, r *Runner) (*Runner, error) {
	registered := r.RegisteredAt
	if registered.IsZero() {
		registered = time.Now()
	}
	query := `INSERT INTO runners (identification, first_name, last_name, phone_number, faculty_id,
		group_number, test_time, first_year, registered_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id;`
	var id int64
	err := db.QueryRowContext(ctx, s.rebind(query),
		r.Identification, r.FirstName, r.LastName, r.PhoneNumber, r.FacultyID,
		r.GroupNumber, r.TestTime, r.FirstYear, registered.UnixMilli(),
	).Scan(&id)
	if err != nil {
		return nil, err
	}
	return s.GetRunnerByID(ctx, db, id)
}

// GetRunnerByID returns sql.ErrNoRows if the runner does not exist.
func (s *Service) GetRunnerByID(ctx context.Context, db DBorTx, id int64) (*Runner, error) {
	query := `SELECT ` + runnerColumns + ` FROM runners r WHERE r.id = ?;`
	return scanRunner(db.QueryRowContext(ctx, s.rebind(query), id))
}

// GetRunnerByIdentification looks a runner up by student number or generated
// identification. It returns sql.ErrNoRows if there is no match.
func (s *Service) GetRunnerByIdentification(ctx context.Context, db DBorTx, identification string) (*Runner, error) {
	query := `SELECT ` + runnerColumns + ` FROM runners r WHERE r.identification = ?;`
	return scanRunner(db.QueryRowContext(ctx, s.rebind(query), identification))
}

// FindRunnerByName matches first and last name case-insensitively.
func (s *Service) FindRunnerByName(ctx context.Context, db DBorTx, firstName, lastName string) (*Runner, error) {
	query := `SELECT ` + runnerColumns + ` FROM runners r
		WHERE LOWER(r.first_name) = LOWER(?) AND LOWER(r.last_name) = LOWER(?)
		ORDER BY r.id LIMIT 1;`
	return scanRunner(db.QueryRowContext(ctx, s.rebind(query), firstName, lastName))
}

// SearchRunners returns runners whose first name, last name or identification
// contains any of the terms, together with their last finished lap.
func (s *Service) SearchRunners(ctx context.Context, db DBorTx, terms []string, limit int) ([]RunnerSummary, error) {
	var (
		clauses []string
		args    []any
	)
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		like := "%" + strings.ToLower(term) + "%"
		clauses = append(clauses, `(LOWER(r.first_name) LIKE ? OR LOWER(r.last_name) LIKE ? OR LOWER(r.identification) LIKE ?)`)
		args = append(args, like, like, like)
	}
	if len(clauses) == 0 {
		return []RunnerSummary{}, nil
	}
	args = append(args, limit)

	query := `SELECT ` + runnerColumns + `, ` + lastLapSubquery + `, ` + completedLapsSubquery + `
		FROM runners r WHERE ` + strings.Join(clauses, " OR ") + `
		ORDER BY r.first_name, r.last_name LIMIT ?;`
	return s.queryRunnerSummaries(ctx, db, query, args...)
}

// ListRunnerSummaries returns every runner ordered by last name, with their
// completed lap count.
func (s *Service) ListRunnerSummaries(ctx context.Context, db DBorTx) ([]RunnerSummary, error) {
	query := `SELECT ` + runnerColumns + `, ` + lastLapSubquery + `, ` + completedLapsSubquery + `
		FROM runners r ORDER BY r.last_name, r.first_name;`
	return s.queryRunnerSummaries(ctx, db, query)
}

func (s *Service) queryRunnerSummaries(ctx context.Context, db DBorTx, query string, args ...any) ([]RunnerSummary, error) {
	rows, err := db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []RunnerSummary{}
	for rows.Next() {
		var sum RunnerSummary
		runner, err := scanRunner(rows, &sum.LastLapMs, &sum.CompletedLaps)
		if err != nil {
			return nil, err
		}
		sum.Runner = *runner
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// SetRewardCollected sets one of the three reward flags.
func (s *Service) SetRewardCollected(ctx context.Context, db DBorTx, runnerID int64, reward int, collected bool) error {
	if reward < 1 || reward > 3 {
		return fmt.Errorf("unknown reward %d", reward)
	}
	query := fmt.Sprintf(`UPDATE runners SET reward%d_collected = ? WHERE id = ?;`, reward)
	res, err := db.ExecContext(ctx, s.rebind(query), collected, runnerID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// --- Group & Faculty Queries ---

// CreateGroup inserts a group. Group numbers are unique.
func (s *Service) CreateGroup(ctx context.Context, db DBorTx, groupNumber int64, name string) (*Group, error) {
	query := `INSERT INTO runner_groups (group_number, name) VALUES (?, ?) RETURNING id;`
	g := &Group{GroupNumber: groupNumber, Name: name}
	if err := db.QueryRowContext(ctx, s.rebind(query), groupNumber, name).Scan(&g.ID); err != nil {
		return nil, err
	}
	return g, nil
}

// ListGroups returns every group ordered by number.
func (s *Service) ListGroups(ctx context.Context, db DBorTx) ([]Group, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, group_number, name FROM runner_groups ORDER BY group_number;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []Group{}
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.GroupNumber, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CreateFaculty inserts a faculty. Names are unique.
func (s *Service) CreateFaculty(ctx context.Context, db DBorTx, name string) (*Faculty, error) {
	query := `INSERT INTO faculties (name) VALUES (?) RETURNING id;`
	f := &Faculty{Name: name}
	if err := db.QueryRowContext(ctx, s.rebind(query), name).Scan(&f.ID); err != nil {
		return nil, err
	}
	return f, nil
}

// ListFaculties returns every faculty ordered by name.
func (s *Service) ListFaculties(ctx context.Context, db DBorTx) ([]Faculty, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM faculties ORDER BY name;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	faculties := []Faculty{}
	for rows.Next() {
		var f Faculty
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, err
		}
		faculties = append(faculties, f)
	}
	return faculties, rows.Err()
}
