package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/drivebkup/internal/batch"
	"github.com/teemow/drivebkup/internal/drive"
)

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize drivebkup to access Google Drive",
		Long: `Load the stored credential, refreshing it if needed. When there is no
usable credential, open the browser for an interactive authorization and store
the new credential in the token file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withSession(ctx, sessionOptions{stderr: cmd.ErrOrStderr()}, func(s *session) error {
				if err := s.client.Authenticate(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Authorized. Token stored in %s\n", s.cfg.TokenFile)
				return nil
			})
		},
	}
}

func newMetaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "meta FILE_ID",
		Short: "Print a file's metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withSession(ctx, sessionOptions{stderr: cmd.ErrOrStderr()}, func(s *session) error {
				meta, err := s.client.GetMetadata(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), meta)
			})
		},
	}
}

func newDownloadCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "download FILE_ID...",
		Short: "Download files into the download directory",
		Long: `Download each file into the download directory, named after its Drive
display name. Google Docs, Sheets and Slides are exported to their
OpenDocument equivalents. Progress is printed to stderr when it is a terminal.

A failed download does not stop the remaining ones; the command exits with an
error if any failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := sessionOptions{
				stderr:   cmd.ErrOrStderr(),
				progress: progressFunc(cmd.ErrOrStderr(), "Download", len(args) > 1),
			}
			return withSession(ctx, opts, func(s *session) error {
				results := runBatch(ctx, args, s.client.Download)
				return reportBatch(cmd, s, results, asJSON, func(r batch.Result) string {
					return r.Result
				})
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON report of every download")

	return cmd
}

func newUploadCmd() *cobra.Command {
	var (
		folderID    string
		description string
		properties  []string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "upload --folder FOLDER_ID PATH...",
		Short: "Upload files into a Drive folder",
		Long: `Upload each file into the given folder using resumable uploads. For every
uploaded file a "<path>\t<id>" line is printed and appended to the upload log.

A failed upload does not stop the remaining ones; the command exits with an
error if any failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseProperties(properties)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("description") {
				extra["description"] = description
			}

			ctx := cmd.Context()
			opts := sessionOptions{
				stderr:   cmd.ErrOrStderr(),
				progress: progressFunc(cmd.ErrOrStderr(), "Upload", len(args) > 1),
			}
			return withSession(ctx, opts, func(s *session) error {
				results := runBatch(ctx, args, func(ctx context.Context, path string) (string, error) {
					return s.client.Upload(ctx, folderID, path, extra)
				})
				return reportBatch(cmd, s, results, asJSON, func(r batch.Result) string {
					return r.ID + "\t" + r.Result
				})
			})
		},
	}

	cmd.Flags().StringVar(&folderID, "folder", "", "ID of the destination folder (required)")
	cmd.Flags().StringVar(&description, "description", "", "Description stored on the uploaded files")
	cmd.Flags().StringArrayVar(&properties, "property", nil, "Custom property KEY=VALUE stored on the uploaded files (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON report of every upload")
	_ = cmd.MarkFlagRequired("folder")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	var parentID string

	cmd := &cobra.Command{
		Use:   "mkdir NAME",
		Short: "Create a folder and print its ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withSession(ctx, sessionOptions{stderr: cmd.ErrOrStderr()}, func(s *session) error {
				id, err := s.client.MakeDirectoryIn(ctx, args[0], parentID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&parentID, "parent", "", "ID of the parent folder (default: My Drive root)")

	return cmd
}

func newSharedDrivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shared-drives",
		Short: "List the shared drives you can access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withSession(ctx, sessionOptions{stderr: cmd.ErrOrStderr()}, func(s *session) error {
				drives, err := s.client.ListSharedDrives(ctx)
				if err != nil {
					return err
				}
				for _, id := range sortedKeys(drives) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, drives[id])
				}
				return nil
			})
		},
	}
}

func newListFilesCmd() *cobra.Command {
	var (
		keyBy  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list-files DRIVE_ID",
		Short: "List every file in a shared drive",
		Long: `List every file in a shared drive, keyed by file ID or by display
name. With --key-by name, files sharing a name collapse to the one
listed last.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withSession(ctx, sessionOptions{stderr: cmd.ErrOrStderr()}, func(s *session) error {
				files, err := s.client.ListSharedDriveFiles(ctx, args[0], keyBy)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), files)
				}
				for _, key := range sortedKeys(files) {
					f := files[key]
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", key, f.ID, f.MimeType)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&keyBy, "key-by", drive.KeyByID, "Map key: id or name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the listing as a JSON object")

	return cmd
}

// parseProperties turns KEY=VALUE flags into a map. Keys may not be empty;
// values may.
func parseProperties(props []string) (map[string]string, error) {
	out := make(map[string]string, len(props))
	for _, p := range props {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q: expected KEY=VALUE", p)
		}
		out[key] = value
	}
	return out, nil
}

// runBatch applies fn to every input. Authentication and configuration
// errors would repeat for every remaining input, so they skip the rest.
func runBatch(ctx context.Context, inputs []string, fn func(context.Context, string) (string, error)) []batch.Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	return batch.ProcessBatch(ctx, inputs, func(ctx context.Context, input string) (string, error) {
		out, err := fn(ctx, input)
		var authErr *drive.AuthError
		var cfgErr *drive.ConfigurationError
		if errors.As(err, &authErr) || errors.As(err, &cfgErr) {
			cancel()
		}
		return out, err
	})
}

// reportBatch prints successful items with line (or everything as JSON) and
// returns the joined errors of the failed ones.
func reportBatch(cmd *cobra.Command, s *session, results []batch.Result, asJSON bool, line func(batch.Result) string) error {
	summary := batch.Summarize(results)

	if asJSON {
		if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Status == batch.StatusSuccess {
				fmt.Fprintln(cmd.OutOrStdout(), line(r))
			}
		}
	}

	if summary.Total > 1 && summary.Successful != summary.Total {
		s.logger.Warn("batch finished with failures",
			slog.Int("total", summary.Total),
			slog.Int("failed", summary.Failed),
			slog.Int("skipped", summary.Skipped))
	}

	return summary.Err()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
