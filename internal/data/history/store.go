package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Run is one gate invocation as recorded in the ledger.
type Run struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	Status          string
	FailedStage     string
	Reason          string
	RequiredSymbols int
	RequiredModules int
	ApprovedSymbols int
	MissingSymbols  int
	GKIMismatches   int
	OKIMismatches   int
}

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

// Open opens (creating if needed) the ledger at path. busyTimeout <= 0 uses 2s.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	if busyTimeout <= 0 {
		busyTimeout = 2 * time.Second
	}
	// busy_timeout + WAL reduce lock conflicts when watch-mode reruns overlap with readers.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun upserts run by ID.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id must not be empty")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	finished := ""
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	query := `
INSERT INTO runs (
  run_id, started_at_utc, finished_at_utc, status, failed_stage, reason,
  required_symbols, required_modules, approved_symbols, missing_symbols,
  gki_mismatches, oki_mismatches
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  started_at_utc=excluded.started_at_utc,
  finished_at_utc=excluded.finished_at_utc,
  status=excluded.status,
  failed_stage=excluded.failed_stage,
  reason=excluded.reason,
  required_symbols=excluded.required_symbols,
  required_modules=excluded.required_modules,
  approved_symbols=excluded.approved_symbols,
  missing_symbols=excluded.missing_symbols,
  gki_mismatches=excluded.gki_mismatches,
  oki_mismatches=excluded.oki_mismatches
`
	return s.withRetry("save run", func() error {
		_, err := s.db.ExecContext(
			ctx,
			query,
			run.ID,
			run.StartedAt.UTC().Format(time.RFC3339Nano),
			finished,
			run.Status,
			run.FailedStage,
			run.Reason,
			run.RequiredSymbols,
			run.RequiredModules,
			run.ApprovedSymbols,
			run.MissingSymbols,
			run.GKIMismatches,
			run.OKIMismatches,
		)
		return err
	})
}

// LoadRuns returns runs started at or after since, oldest first. limit <= 0 means no limit
// and otherwise keeps the newest limit runs.
func (s *Store) LoadRuns(ctx context.Context, since time.Time, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := `
SELECT
  run_id, started_at_utc, finished_at_utc, status, failed_stage, reason,
  required_symbols, required_modules, approved_symbols, missing_symbols,
  gki_mismatches, oki_mismatches
FROM runs
`
	args := make([]any, 0, 2)
	if !since.IsZero() {
		base += " WHERE started_at_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	base += " ORDER BY started_at_utc DESC, run_id DESC"
	if limit > 0 {
		base += " LIMIT ?"
		args = append(args, limit)
	}

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, base, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			startedRaw  string
			finishedRaw string
			run         Run
		)
		if err := rows.Scan(
			&run.ID,
			&startedRaw,
			&finishedRaw,
			&run.Status,
			&run.FailedStage,
			&run.Reason,
			&run.RequiredSymbols,
			&run.RequiredModules,
			&run.ApprovedSymbols,
			&run.MissingSymbols,
			&run.GKIMismatches,
			&run.OKIMismatches,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		started, err := time.Parse(time.RFC3339Nano, startedRaw)
		if err != nil {
			return nil, fmt.Errorf("parse started_at_utc %q: %w", startedRaw, err)
		}
		run.StartedAt = started
		if finishedRaw != "" {
			finished, err := time.Parse(time.RFC3339Nano, finishedRaw)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at_utc %q: %w", finishedRaw, err)
			}
			run.FinishedAt = finished
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
