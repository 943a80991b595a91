package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/drivebkup/internal/backup"
	"github.com/teemow/drivebkup/internal/ledger"
	"github.com/teemow/drivebkup/internal/logging"
	"github.com/teemow/drivebkup/internal/server"
)

type backupFlags struct {
	folderID    string
	parallelism int
	exclude     []string
	ledgerPath  string
	noLedger    bool
	dryRun      bool
	metricsAddr string
}

func newBackupCmd() *cobra.Command {
	var flags backupFlags

	cmd := &cobra.Command{
		Use:   "backup --folder FOLDER_ID DIR",
		Short: "Back up a directory tree into a Drive folder",
		Long: `Mirror DIR into a folder of the same name inside the given Drive folder.

Files whose size and modification time match the previous run are skipped;
the record of earlier uploads lives in a local SQLite ledger. Failed uploads
are reported at the end and do not stop the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.folderID, "folder", "", "ID of the destination folder (required)")
	cmd.Flags().IntVar(&flags.parallelism, "parallel", 0, "Number of concurrent uploads (default from config)")
	cmd.Flags().StringArrayVar(&flags.exclude, "exclude", nil, "Skip files and directories whose name matches this glob (repeatable)")
	cmd.Flags().StringVar(&flags.ledgerPath, "ledger", "", "Ledger database path (default from config)")
	cmd.Flags().BoolVar(&flags.noLedger, "no-ledger", false, "Upload everything and keep no record of the run")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Report what would be uploaded without uploading")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the backup runs (e.g. "+server.DefaultMetricsAddr+")")
	_ = cmd.MarkFlagRequired("folder")

	return cmd
}

func runBackup(cmd *cobra.Command, dir string, flags backupFlags) error {
	ctx := cmd.Context()
	opts := sessionOptions{
		stderr:   cmd.ErrOrStderr(),
		progress: progressFunc(cmd.ErrOrStderr(), "Upload", true),
	}

	return withSession(ctx, opts, func(s *session) error {
		if flags.metricsAddr != "" {
			stop, err := startMetricsServer(s, flags.metricsAddr)
			if err != nil {
				return err
			}
			defer stop()
		}

		runner := &backup.Runner{
			Client:  s.client,
			Logger:  logging.NewSlogAdapter(s.logger),
			Metrics: s.provider.Metrics(),
		}

		if !flags.noLedger {
			path := s.cfg.Backup.Ledger
			if flags.ledgerPath != "" {
				path = flags.ledgerPath
			}
			store, err := ledger.Open(ctx, path, s.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					s.logger.Warn("failed to close ledger", logging.Err(err))
				}
			}()
			runner.Ledger = store
		}

		parallelism := s.cfg.Backup.Parallelism
		if flags.parallelism > 0 {
			parallelism = flags.parallelism
		}

		start := time.Now()
		summary, err := runner.Run(ctx, backup.Options{
			Root:        dir,
			FolderID:    flags.folderID,
			Parallelism: parallelism,
			Exclude:     append(append([]string(nil), s.cfg.Backup.Exclude...), flags.exclude...),
			DryRun:      flags.dryRun,
		})

		printSummary(cmd, summary, time.Since(start), flags.dryRun)
		return err
	})
}

func printSummary(cmd *cobra.Command, s backup.Summary, elapsed time.Duration, dryRun bool) {
	w := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintln(w, "Dry run, nothing was uploaded.")
	}
	if s.RunID != "" {
		fmt.Fprintf(w, "Run:      %s\n", s.RunID)
	}
	fmt.Fprintf(w, "Folders:  %d\n", s.Folders)
	fmt.Fprintf(w, "Uploaded: %d (%d bytes)\n", s.Uploaded, s.Bytes)
	fmt.Fprintf(w, "Skipped:  %d\n", s.Skipped)
	fmt.Fprintf(w, "Failed:   %d\n", s.Failed)
	fmt.Fprintf(w, "Elapsed:  %s\n", elapsed.Round(time.Millisecond))
}

// startMetricsServer serves /metrics for the duration of the backup and
// returns a func that stops it.
func startMetricsServer(s *session, addr string) (func(), error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: s.provider,
		Logger:                  s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}
	if err := metricsServer.Start(); err != nil {
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	}
	s.logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown failed", logging.Err(err))
		}
	}, nil
}
