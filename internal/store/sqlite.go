// Package store persists simulation run reports
package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"blackswan/internal/report"
	apperrors "blackswan/pkg/errors"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	symbol     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	num_paths  INTEGER NOT NULL,
	num_steps  INTEGER NOT NULL,
	data       TEXT NOT NULL,
	checksum   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC);
`

// RunSummary is a row of the run listing
type RunSummary struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
	NumPaths  int       `json:"num_paths"`
	NumSteps  int       `json:"num_steps"`
}

// SQLiteStore keeps run reports in a sqlite database in WAL mode
type SQLiteStore struct {
	db    *sql.DB
	retry failsafe.Executor[any]
}

// NewSQLiteStore opens (creating if needed) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	policy := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return isBusy(err)
		}).
		WithBackoff(20*time.Millisecond, time.Second).
		WithMaxRetries(5).
		ReturnLastFailure().
		Build()

	return &SQLiteStore{
		db:    db,
		retry: failsafe.With[any](policy),
	}, nil
}

// SaveRun writes a report, replacing any earlier report with the same ID
func (s *SQLiteStore) SaveRun(ctx context.Context, r *report.RunReport) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: run report needs an id", apperrors.ErrInvalidInput)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	checksum := sha256.Sum256(data)

	return s.retry.WithContext(ctx).Run(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		query := `INSERT OR REPLACE INTO runs (id, symbol, created_at, num_paths, num_steps, data, checksum)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, query, r.ID, r.Symbol, r.CreatedAt.UnixNano(), r.NumPaths, r.NumSteps, string(data), checksum[:]); err != nil {
			return fmt.Errorf("failed to write run to db: %w", err)
		}
		return tx.Commit()
	})
}

// GetRun loads a report by ID. The stored checksum is verified.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*report.RunReport, error) {
	var data string
	var storedChecksum []byte
	err := s.db.QueryRowContext(ctx, `SELECT data, checksum FROM runs WHERE id = ?`, id).Scan(&data, &storedChecksum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to read run from db: %w", err)
	}

	computed := sha256.Sum256([]byte(data))
	if !bytes.Equal(storedChecksum, computed[:]) {
		return nil, fmt.Errorf("%w: checksum mismatch for run %s", apperrors.ErrMalformedData, id)
	}

	var r report.RunReport
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &r, nil
}

// ListRuns returns the newest runs first. limit <= 0 means 50.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, created_at, num_paths, num_steps FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var created int64
		if err := rows.Scan(&rs.ID, &rs.Symbol, &created, &rs.NumPaths, &rs.NumSteps); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rs.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
