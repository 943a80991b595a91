// Package logging provides structured logging utilities for drivebkup.
//
// The package centralizes logging patterns on top of the standard library's
// slog package so every component logs with the same attribute names.
//
// # Key Features
//
//   - Process logger setup with a caller-owned lifecycle (Setup)
//   - Consistent attribute naming (file_id, drive_id, path, operation)
//   - Logger adapter interface for components that take a logger dependency
//   - The tab-delimited upload log (OpenUploadLog)
//
// # Usage Patterns
//
//	logger, closeLogs, err := logging.Setup(logging.Options{Dir: dir, Level: "info"})
//	if err != nil {
//	    return err
//	}
//	defer closeLogs()
//
//	logging.WithOperation(logger, "drive.download").Info("download complete",
//	    logging.FileID(id))
//
// # Security Considerations
//
// OAuth tokens are never logged directly; use SanitizeToken.
package logging
