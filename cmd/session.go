package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/teemow/drivebkup/internal/config"
	"github.com/teemow/drivebkup/internal/drive"
	"github.com/teemow/drivebkup/internal/google"
	"github.com/teemow/drivebkup/internal/instrumentation"
	"github.com/teemow/drivebkup/internal/logging"
)

const instrumentationShutdownTimeout = 5 * time.Second

// session is everything a command needs to talk to Drive. It is built from
// the resolved configuration and torn down with Close.
type session struct {
	cfg      *config.Resolved
	logger   *slog.Logger
	provider *instrumentation.Provider
	client   *drive.Client

	closers []func() error
}

type sessionOptions struct {
	// stderr receives log records and, when progress is set, progress lines.
	stderr io.Writer

	// progress, when set, is installed as the client's progress callback.
	progress func(name string, percent int)
}

// openSession resolves configuration, sets up logging and instrumentation
// and constructs the Drive client. On error everything opened so far is
// closed again.
func openSession(ctx context.Context, opts sessionOptions) (_ *session, err error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{
		ConfigPath:       globals.configPath,
		TokenFile:        globals.tokenFile,
		RegistrationFile: globals.registrationFile,
		LogDir:           globals.logDir,
		LogLevel:         globals.logLevel,
		DownloadDir:      globals.downloadDir,
	})
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	logger, closeLog, err := logging.Setup(logging.Options{
		Dir:    cfg.LogDir,
		Level:  cfg.LogLevel,
		Stderr: opts.stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	s.logger = logger
	s.closers = append(s.closers, closeLog)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	s.provider = provider
	s.closers = append(s.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), instrumentationShutdownTimeout)
		defer cancel()
		return provider.Shutdown(shutdownCtx)
	})

	var uploadLog io.Writer
	if cfg.UploadLog != "" {
		f, err := logging.OpenUploadLog(cfg.UploadLog)
		if err != nil {
			return nil, err
		}
		uploadLog = f
		s.closers = append(s.closers, f.Close)
	}

	client, err := drive.New(drive.Config{
		TokenFile:        cfg.TokenFile,
		RegistrationFile: cfg.RegistrationFile,
		Scopes:           cfg.Scopes,
		DownloadDir:      cfg.DownloadDir,
		ChunkSize:        cfg.ChunkSize,
		Logger:           logging.NewSlogAdapter(logger),
		UploadLog:        uploadLog,
		Progress:         opts.progress,
		Metrics:          provider.Metrics(),
		Flow: &google.BrowserFlow{
			OpenURL: openBrowser,
			Prompt:  opts.stderr,
			Logger:  logger,
		},
	})
	if err != nil {
		return nil, err
	}
	s.client = client

	return s, nil
}

// Close releases everything in reverse order of acquisition.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// withSession opens a session for the duration of fn.
func withSession(ctx context.Context, opts sessionOptions, fn func(*session) error) (err error) {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(s)
}
