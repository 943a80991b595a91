// Package backup mirrors a local directory tree into a Drive folder.
//
// Folders are created with the Drive client and remembered in the ledger;
// files are uploaded in parallel and skipped on later runs while their size
// and modification time are unchanged.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/teemow/drivebkup/internal/drive"
	"github.com/teemow/drivebkup/internal/instrumentation"
	"github.com/teemow/drivebkup/internal/ledger"
	"github.com/teemow/drivebkup/internal/logging"
)

// Result values recorded for each visited file.
const (
	ResultUploaded = "uploaded"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
)

// Properties stored on every uploaded file.
const (
	PropertyPath = "drivebkup_path"
	PropertyRun  = "drivebkup_run"
)

const dryRunIDPrefix = "dry-run:"

// Uploader is the part of the Drive client a backup needs.
type Uploader interface {
	Upload(ctx context.Context, folderID, localPath string, extra map[string]string) (string, error)
	UpdateContent(ctx context.Context, fileID, localPath string) (string, error)
	MakeDirectoryIn(ctx context.Context, name, parentID string) (string, error)
}

// Ledger remembers earlier uploads. *ledger.Store implements it.
type Ledger interface {
	StartRun(ctx context.Context, root, folderID string) (string, error)
	FinishRun(ctx context.Context, runID string, stats ledger.RunStats, runErr error) error
	LookupFile(ctx context.Context, scope, path string) (*ledger.FileRecord, error)
	RecordFile(ctx context.Context, scope, runID string, rec ledger.FileRecord) error
	LookupFolder(ctx context.Context, scope, path string) (string, error)
	RecordFolder(ctx context.Context, scope, path, remoteID string) error
}

// Options select what to back up and where.
type Options struct {
	// Root is the local directory to back up.
	Root string

	// FolderID is the Drive folder that receives a copy of Root.
	FolderID string

	// Parallelism bounds concurrent uploads (default 1).
	Parallelism int

	// Exclude holds filepath.Match patterns tested against base names.
	Exclude []string

	// DryRun walks and reports without uploading or touching the ledger.
	DryRun bool
}

// Summary reports what a run did.
type Summary struct {
	RunID    string
	Folders  int
	Uploaded int
	Skipped  int
	Failed   int
	Bytes    int64
}

// FileError is a per-file failure that did not stop the run.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *FileError) Unwrap() error { return e.Err }

// Runner performs backups.
type Runner struct {
	Client Uploader

	// Ledger may be nil, in which case every file is uploaded and every
	// folder created.
	Ledger Ledger

	Logger  logging.Logger
	Metrics *instrumentation.Metrics
}

// run holds the state of one Run call.
type run struct {
	*Runner
	opts  Options
	scope string
	runID string

	folders map[string]string // NFC relative path -> remote ID

	mu      sync.Mutex
	summary Summary
	errs    []error
}

// Run backs up opts.Root into opts.FolderID. A folder named after Root is
// created (or reused) inside FolderID and the tree is mirrored beneath it.
// Per-file failures are counted and the run continues; they are returned
// joined once the walk completes. Authentication and configuration errors
// stop the run.
func (r *Runner) Run(ctx context.Context, opts Options) (summary Summary, err error) {
	if r.Client == nil {
		return Summary{}, fmt.Errorf("backup: client is required")
	}
	if opts.FolderID == "" {
		return Summary{}, fmt.Errorf("backup: destination folder ID is required")
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	for _, pattern := range opts.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return Summary{}, fmt.Errorf("backup: invalid exclude pattern %q: %w", pattern, err)
		}
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return Summary{}, fmt.Errorf("backup: resolving %s: %w", opts.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return Summary{}, fmt.Errorf("backup: %w", err)
	}
	if !info.IsDir() {
		return Summary{}, fmt.Errorf("backup: %s is not a directory", root)
	}
	opts.Root = root

	ctx, span := instrumentation.StartSpan(ctx, "backup.run")
	defer func() { instrumentation.EndSpan(span, err) }()

	rn := &run{
		Runner:  r,
		opts:    opts,
		scope:   opts.FolderID,
		folders: make(map[string]string),
	}

	if r.Ledger != nil && !opts.DryRun {
		rn.runID, err = r.Ledger.StartRun(ctx, root, opts.FolderID)
		if err != nil {
			return Summary{}, err
		}
		defer func() {
			stats := ledger.RunStats{
				Uploaded: summary.Uploaded,
				Skipped:  summary.Skipped,
				Failed:   summary.Failed,
				Bytes:    summary.Bytes,
			}
			if finishErr := r.Ledger.FinishRun(context.WithoutCancel(ctx), rn.runID, stats, err); finishErr != nil {
				r.logger().Warn("failed to record run result", logging.Err(finishErr))
			}
		}()
	}

	r.logger().Info("backup started",
		logging.Path(root), slog.String("folder_id", opts.FolderID),
		slog.String("run_id", rn.runID), slog.Bool("dry_run", opts.DryRun))

	walkErr := rn.walk(ctx)

	rn.mu.Lock()
	summary = rn.summary
	summary.RunID = rn.runID
	failures := rn.errs
	rn.mu.Unlock()

	r.logger().Info("backup finished",
		slog.Int("folders", summary.Folders),
		slog.Int("uploaded", summary.Uploaded),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Int64("bytes", summary.Bytes))

	if walkErr != nil {
		return summary, walkErr
	}
	return summary, errors.Join(failures...)
}

func (r *Runner) logger() logging.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logging.DefaultLogger()
}

// walk mirrors the tree. Folders are created inline, in walk order, so a
// parent always exists before its children; uploads are dispatched to a
// bounded pool.
func (rn *run) walk(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rn.opts.Parallelism)

	top := norm.NFC.String(filepath.Base(rn.opts.Root))

	walkErr := filepath.WalkDir(rn.opts.Root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := gctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(rn.opts.Root, p)
		if relErr != nil {
			return relErr
		}
		key := top
		if rel != "." {
			key = path.Join(top, norm.NFC.String(filepath.ToSlash(rel)))
		}

		if err != nil {
			if rel == "." {
				return err
			}
			rn.fail(key, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if rel != "." && rn.excluded(d.Name()) {
			rn.logger().Debug("excluded", logging.Path(p))
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case d.IsDir():
			parentID := rn.opts.FolderID
			if rel != "." {
				parentID = rn.folders[path.Dir(key)]
			}
			if err := rn.ensureFolder(gctx, key, norm.NFC.String(d.Name()), parentID); err != nil {
				if fatal(err) || rel == "." {
					return err
				}
				rn.fail(key, err)
				return filepath.SkipDir
			}
			return nil

		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				rn.fail(key, err)
				return nil
			}
			return rn.handleFile(gctx, g, p, key, info)

		default:
			rn.logger().Debug("skipping non-regular file", logging.Path(p))
			return nil
		}
	})

	// A fatal upload error cancels gctx, which then surfaces from the walk
	// as a context error; report the cause instead.
	if waitErr := g.Wait(); waitErr != nil {
		return waitErr
	}
	return walkErr
}

func (rn *run) excluded(name string) bool {
	for _, pattern := range rn.opts.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// ensureFolder makes sure the remote folder for key exists, reusing the
// ledger's record when there is one.
func (rn *run) ensureFolder(ctx context.Context, key, name, parentID string) error {
	if rn.Ledger != nil {
		id, err := rn.Ledger.LookupFolder(ctx, rn.scope, key)
		if err != nil {
			return err
		}
		if id != "" {
			rn.folders[key] = id
			return nil
		}
	}

	if rn.opts.DryRun {
		rn.logger().Info("would create folder", logging.Path(key))
		rn.folders[key] = dryRunIDPrefix + key
		rn.count(func(s *Summary) { s.Folders++ })
		return nil
	}

	id, err := rn.Client.MakeDirectoryIn(ctx, name, parentID)
	if err != nil {
		return err
	}
	rn.folders[key] = id
	rn.count(func(s *Summary) { s.Folders++ })

	if rn.Ledger != nil {
		if err := rn.Ledger.RecordFolder(ctx, rn.scope, key, id); err != nil {
			return err
		}
	}
	return nil
}

// handleFile skips an unchanged file or schedules its upload. A changed
// file that was uploaded before has its remote content replaced.
func (rn *run) handleFile(ctx context.Context, g *errgroup.Group, localPath, key string, info fs.FileInfo) error {
	var rec *ledger.FileRecord
	if rn.Ledger != nil {
		var err error
		rec, err = rn.Ledger.LookupFile(ctx, rn.scope, key)
		if err != nil {
			return err
		}
		if rec != nil && rec.Unchanged(info.Size(), info.ModTime()) {
			rn.Metrics.RecordBackupFile(ctx, ResultSkipped)
			rn.count(func(s *Summary) { s.Skipped++ })
			return nil
		}
	}

	folderID := rn.folders[path.Dir(key)]

	if rn.opts.DryRun {
		rn.logger().Info("would upload", logging.Path(localPath), slog.Int64("bytes", info.Size()))
		rn.count(func(s *Summary) {
			s.Uploaded++
			s.Bytes += info.Size()
		})
		return nil
	}

	g.Go(func() error {
		extra := map[string]string{PropertyPath: key}
		if rn.runID != "" {
			extra[PropertyRun] = rn.runID
		}

		id, err := rn.send(ctx, rec, folderID, localPath, extra)
		if err != nil {
			if fatal(err) {
				return err
			}
			rn.Metrics.RecordBackupFile(ctx, ResultFailed)
			rn.fail(key, err)
			return nil
		}

		rn.Metrics.RecordBackupFile(ctx, ResultUploaded)
		rn.count(func(s *Summary) {
			s.Uploaded++
			s.Bytes += info.Size()
		})

		if rn.Ledger != nil {
			uploaded := ledger.FileRecord{Path: key, RemoteID: id, Size: info.Size(), ModTime: info.ModTime()}
			if err := rn.Ledger.RecordFile(ctx, rn.scope, rn.runID, uploaded); err != nil {
				// The file is uploaded; the next run will upload it again.
				rn.logger().Warn("failed to record upload", logging.Path(key), logging.Err(err))
			}
		}
		return nil
	})

	return nil
}

func (rn *run) count(update func(*Summary)) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	update(&rn.summary)
}

func (rn *run) fail(key string, err error) {
	rn.logger().Warn("backup item failed", logging.Path(key), logging.Err(err))

	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.summary.Failed++
	rn.errs = append(rn.errs, &FileError{Path: key, Err: err})
}

// fatal reports errors that would fail every remaining item as well.
func fatal(err error) bool {
	var authErr *drive.AuthError
	var cfgErr *drive.ConfigurationError
	return errors.As(err, &authErr) || errors.As(err, &cfgErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// send replaces the content of the file recorded in rec, or uploads a new
// file when there is no record or the recorded file is gone.
func (rn *run) send(ctx context.Context, rec *ledger.FileRecord, folderID, localPath string, extra map[string]string) (string, error) {
	if rec != nil && rec.RemoteID != "" {
		id, err := rn.Client.UpdateContent(ctx, rec.RemoteID, localPath)
		var notFound *drive.NotFoundError
		if !errors.As(err, &notFound) {
			return id, err
		}
		rn.logger().Warn("recorded file is gone, uploading a new copy",
			logging.Path(rec.Path), logging.FileID(rec.RemoteID))
	}
	return rn.Client.Upload(ctx, folderID, localPath, extra)
}
