// Package history keeps an append-only SQL log of every navigation step
// taken in a portal session.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// registered database/sql drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicateEntry is returned when a (session, version) pair is appended twice
	ErrDuplicateEntry = errors.New("navigation entry already recorded")

	// ErrUnsupportedDriver is returned by Open for drivers other than sqlite3, postgres and pgx
	ErrUnsupportedDriver = errors.New("unsupported history driver")
)

// Record is one navigation step of one session
type Record struct {
	SessionID string    `json:"session_id"`
	Version   uint64    `json:"version"`
	View      string    `json:"view"`
	Kind      string    `json:"kind"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder persists navigation records
type Recorder interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, sessionID string) ([]Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Nop is the recorder used when history is disabled
type Nop struct{}

func (Nop) Append(context.Context, Record) error           { return nil }
func (Nop) List(context.Context, string) ([]Record, error) { return []Record{}, nil }
func (Nop) Recent(context.Context, int) ([]Record, error)  { return []Record{}, nil }
func (Nop) Close() error                                   { return nil }

const tableName = "navigation_history"

// Store is a Recorder over database/sql
type Store struct {
	db     *sql.DB
	ownsDB bool
}

// Open connects with the given driver ("sqlite3", "postgres" or "pgx"),
// pings the database and creates the table if needed
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case "sqlite3", "postgres", "pgx":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// a single writer avoids "database is locked" and keeps :memory: on one connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping %s: %w", driver, err)
	}

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an open database and creates the table if needed. The caller
// keeps ownership of db.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.createTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", tableName, err)
	}
	return s, nil
}

func (s *Store) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			session_id VARCHAR(64) NOT NULL,
			version BIGINT NOT NULL,
			view VARCHAR(255) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			query TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, version)
		)
	`, tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return err
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at)
	`, tableName, tableName)

	_, err := s.db.ExecContext(ctx, indexQuery)
	return err
}

// Append inserts rec. Records are never updated.
func (s *Store) Append(ctx context.Context, rec Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, version, view, kind, query, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tableName)

	_, err := s.db.ExecContext(ctx, query,
		rec.SessionID,
		int64(rec.Version),
		rec.View,
		rec.Kind,
		rec.Query,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("history insert error: %w", convertError(err))
	}
	return nil
}

// List returns the records of one session, oldest first
func (s *Store) List(ctx context.Context, sessionID string) ([]Record, error) {
	query := fmt.Sprintf(`
		SELECT session_id, version, view, kind, query, created_at
		FROM %s
		WHERE session_id = $1
		ORDER BY version
	`, tableName)

	return s.query(ctx, query, sessionID)
}

// Recent returns the latest records across sessions, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT session_id, version, view, kind, query, created_at
		FROM %s
		ORDER BY created_at DESC, session_id, version DESC
		LIMIT $1
	`, tableName)

	return s.query(ctx, query, limit)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history query error: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var version int64
		if err := rows.Scan(&rec.SessionID, &version, &rec.View, &rec.Kind, &rec.Query, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("history scan error: %w", err)
		}
		rec.Version = uint64(version)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history query error: %w", err)
	}
	return records, nil
}

// Close closes the database if Open created it
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
