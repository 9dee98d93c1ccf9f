package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // The pure Go SQLite driver
)

// Driver names accepted by NewService.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// maxSerializationRetries bounds how often a postgres write transaction is
// replayed after a serialization failure.
const maxSerializationRetries = 5

// ErrNoRowsAffected is returned by updates and deletes that matched nothing.
var ErrNoRowsAffected = errors.New("no matching record")

// Service is the Persistent Store. It owns the connection pool and runs every
// state-changing operation inside a serializable write transaction.
type Service struct {
	driver string
	db     *sql.DB

	// sqlite has a single writer; holding this mutex for the whole transaction
	// keeps writers from failing with SQLITE_BUSY and makes them serial.
	writeMu sync.Mutex
}

// NewService opens the store. For sqlite, dsn is a file path; for postgres,
// a connection URL understood by lib/pq.
func NewService(driver, dsn string) (*Service, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		// _txlock=immediate takes the write lock at BEGIN, so a transaction that
		// reads MAX(queue_place) cannot be overtaken by another writer.
		db, err = sql.Open("sqlite", dsn+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate")
	case DriverPostgres:
		db, err = sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("could not open %s database: %w", driver, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to %s database: %w", driver, err)
	}

	return &Service{driver: driver, db: db}, nil
}

// Driver reports which backend the service talks to.
func (s *Service) Driver() string {
	return s.driver
}

// DB provides the pool for read-only queries.
func (s *Service) DB() *sql.DB {
	return s.db
}

// Write executes writeFunc inside one transaction. Either every statement in
// writeFunc is committed or none is. On postgres the transaction runs at
// SERIALIZABLE and writeFunc may be invoked again after a serialization
// failure, so it must not have effects outside the transaction.
func (s *Service) Write(ctx context.Context, writeFunc func(tx *sql.Tx) error) error {
	if s.driver == DriverSQLite {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return s.runTx(ctx, nil, writeFunc)
	}

	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	var err error
	for attempt := 1; attempt <= maxSerializationRetries; attempt++ {
		err = s.runTx(ctx, opts, writeFunc)
		if !isSerializationFailure(err) {
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("serialization failure, retrying transaction")
	}
	return err
}

func (s *Service) runTx(ctx context.Context, opts *sql.TxOptions, writeFunc func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := writeFunc(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// Close closes the connection pool.
func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
		return
	}
	log.Info().Msg("database connections closed")
}

// rebind rewrites the ? placeholders used throughout this package into the
// $1, $2, ... form postgres expects.
func (s *Service) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
