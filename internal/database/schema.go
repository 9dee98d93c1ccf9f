package database

import (
	"context"
	"database/sql"
	"strings"
)

// schemaStatements use {{id}} and {{blob}} for the column types that differ
// between sqlite and postgres.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS faculties (
		id {{id}},
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS runner_groups (
		id {{id}},
		group_number INTEGER NOT NULL UNIQUE,
		name TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS runners (
		id {{id}},
		identification TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone_number TEXT NOT NULL DEFAULT '',
		faculty_id BIGINT REFERENCES faculties (id) ON DELETE SET NULL,
		group_number INTEGER,
		test_time TEXT NOT NULL DEFAULT '',
		first_year BOOLEAN NOT NULL DEFAULT FALSE,
		reward1_collected BOOLEAN NOT NULL DEFAULT FALSE,
		reward2_collected BOOLEAN NOT NULL DEFAULT FALSE,
		reward3_collected BOOLEAN NOT NULL DEFAULT FALSE,
		registered_at_ms BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS queue_entries (
		id {{id}},
		runner_id BIGINT NOT NULL UNIQUE REFERENCES runners (id) ON DELETE CASCADE,
		queue_place INTEGER NOT NULL,
		created_at_ms BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS queue_entries_place ON queue_entries (queue_place);`,
	`CREATE TABLE IF NOT EXISTS laps (
		id {{id}},
		runner_id BIGINT NOT NULL REFERENCES runners (id) ON DELETE CASCADE,
		started_at_ms BIGINT NOT NULL,
		state TEXT NOT NULL CHECK (state IN ('in_progress', 'finalized')),
		duration_ms BIGINT,
		raining BOOLEAN NOT NULL DEFAULT FALSE
	);`,
	// Only one lap may be on the track at any time.
	`CREATE UNIQUE INDEX IF NOT EXISTS laps_single_in_progress ON laps (state) WHERE state = 'in_progress';`,
	`CREATE INDEX IF NOT EXISTS laps_runner ON laps (runner_id, state);`,
	`CREATE INDEX IF NOT EXISTS laps_started ON laps (started_at_ms);`,
	`CREATE TABLE IF NOT EXISTS shift_checkins (
		id {{id}},
		runner_id BIGINT NOT NULL REFERENCES runners (id) ON DELETE CASCADE,
		time_slot TEXT NOT NULL,
		start_minute INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		checked_in BOOLEAN NOT NULL DEFAULT FALSE,
		already_called BOOLEAN NOT NULL DEFAULT FALSE,
		created_at_ms BIGINT NOT NULL,
		UNIQUE (runner_id, time_slot)
	);`,
	`CREATE TABLE IF NOT EXISTS global_state (
		id INTEGER PRIMARY KEY,
		raining BOOLEAN NOT NULL DEFAULT FALSE
	);`,
	`INSERT INTO global_state (id, raining) VALUES (1, FALSE) ON CONFLICT DO NOTHING;`,
	// Holds at most one row (id = 1): the state needed to undo the last promotion.
	`CREATE TABLE IF NOT EXISTS control_history (
		id INTEGER PRIMARY KEY,
		operation TEXT NOT NULL,
		snapshot {{blob}} NOT NULL,
		created_at_ms BIGINT NOT NULL
	);`,
}

// InitSchema creates the tables if they don't exist. It is idempotent and
// safe to run on every start.
func (s *Service) InitSchema(ctx context.Context) error {
	types := strings.NewReplacer("{{id}}", "INTEGER PRIMARY KEY", "{{blob}}", "BLOB")
	if s.driver == DriverPostgres {
		types = strings.NewReplacer("{{id}}", "BIGSERIAL PRIMARY KEY", "{{blob}}", "BYTEA")
	}

	return s.Write(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, types.Replace(stmt)); err != nil {
				return err
			}
		}
		return nil
	})
}
