// Package ledger records what previous backup runs uploaded so later runs
// can skip unchanged files and reuse remote folders. State lives in a SQLite
// database whose schema is managed by embedded goose migrations.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Run status values.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

const dbDirPerms = 0o700

const pragmas = "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"

// uriPathEscaper escapes the characters SQLite's URI parser would otherwise
// read as the start of the query, a fragment or an escape.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// dsn builds the SQLite URI for the database file at path.
func dsn(path string) string {
	return "file:" + uriPathEscaper.Replace(path) + "?" + pragmas
}

// FileRecord is the last successful upload of a local file.
type FileRecord struct {
	Path     string
	RemoteID string
	Size     int64
	ModTime  time.Time
}

// Unchanged reports whether a local file with the given size and
// modification time matches the record.
func (r *FileRecord) Unchanged(size int64, modTime time.Time) bool {
	return r.Size == size && r.ModTime.Equal(modTime)
}

// RunStats are the counters stored when a run finishes.
type RunStats struct {
	Uploaded int
	Skipped  int
	Failed   int
	Bytes    int64
}

// Run is one backup run.
type Run struct {
	ID         string
	Root       string
	FolderID   string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Stats      RunStats
	Error      string
}

// Store is the SQLite-backed ledger.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the ledger database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dbDirPerms); err != nil {
		return nil, fmt.Errorf("ledger: creating directory for %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database %s: %w", path, err)
	}

	// Sole-writer: parallel uploads record through one connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("ledger opened", slog.String("db_path", path))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records the start of a backup of root into folderID and returns
// the new run ID.
func (s *Store) StartRun(ctx context.Context, root, folderID string) (string, error) {
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, root, folder_id, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, root, folderID, s.nowFunc().UnixNano(), RunRunning)
	if err != nil {
		return "", fmt.Errorf("ledger: starting run: %w", err)
	}

	return id, nil
}

// FinishRun stores the run's counters. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, runID string, stats RunStats, runErr error) error {
	status := RunComplete
	var errText sql.NullString
	if runErr != nil {
		status = RunFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, uploaded = ?, skipped = ?, failed = ?, bytes = ?, error = ?
		 WHERE id = ?`,
		s.nowFunc().UnixNano(), status, stats.Uploaded, stats.Skipped, stats.Failed, stats.Bytes, errText, runID)
	if err != nil {
		return fmt.Errorf("ledger: finishing run %s: %w", runID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("ledger: finishing run %s: no such run", runID)
	}

	return nil
}

// GetRun loads a run by ID. It returns (nil, nil) when there is no such run.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		r          Run
		startedAt  int64
		finishedAt sql.NullInt64
		errText    sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, root, folder_id, started_at, finished_at, status, uploaded, skipped, failed, bytes, error
		 FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.Root, &r.FolderID, &startedAt, &finishedAt, &r.Status,
			&r.Stats.Uploaded, &r.Stats.Skipped, &r.Stats.Failed, &r.Stats.Bytes, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: loading run %s: %w", runID, err)
	}

	r.StartedAt = time.Unix(0, startedAt)
	if finishedAt.Valid {
		r.FinishedAt = time.Unix(0, finishedAt.Int64)
	}
	r.Error = errText.String

	return &r, nil
}

// LookupFile returns the last upload of path under scope, or (nil, nil) if
// it was never uploaded.
func (s *Store) LookupFile(ctx context.Context, scope, path string) (*FileRecord, error) {
	var (
		rec   = FileRecord{Path: path}
		mtime int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT remote_id, size, mtime_ns FROM files WHERE scope = ? AND path = ?`, scope, path).
		Scan(&rec.RemoteID, &rec.Size, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: looking up file %s: %w", path, err)
	}

	rec.ModTime = time.Unix(0, mtime)
	return &rec, nil
}

// RecordFile stores a successful upload, replacing any previous record for
// the same path.
func (s *Store) RecordFile(ctx context.Context, scope, runID string, rec FileRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (scope, path, remote_id, size, mtime_ns, run_id, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (scope, path) DO UPDATE SET
		   remote_id = excluded.remote_id,
		   size = excluded.size,
		   mtime_ns = excluded.mtime_ns,
		   run_id = excluded.run_id,
		   uploaded_at = excluded.uploaded_at`,
		scope, rec.Path, rec.RemoteID, rec.Size, rec.ModTime.UnixNano(), runID, s.nowFunc().UnixNano())
	if err != nil {
		return fmt.Errorf("ledger: recording file %s: %w", rec.Path, err)
	}

	return nil
}

// LookupFolder returns the remote ID of the folder created for path under
// scope, or "" if none was recorded.
func (s *Store) LookupFolder(ctx context.Context, scope, path string) (string, error) {
	var id string

	err := s.db.QueryRowContext(ctx,
		`SELECT remote_id FROM folders WHERE scope = ? AND path = ?`, scope, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: looking up folder %s: %w", path, err)
	}

	return id, nil
}

// RecordFolder stores the remote ID of the folder created for path.
func (s *Store) RecordFolder(ctx context.Context, scope, path, remoteID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (scope, path, remote_id) VALUES (?, ?, ?)
		 ON CONFLICT (scope, path) DO UPDATE SET remote_id = excluded.remote_id`,
		scope, path, remoteID)
	if err != nil {
		return fmt.Errorf("ledger: recording folder %s: %w", path, err)
	}

	return nil
}
