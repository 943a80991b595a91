package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrOperation = "operation"
	attrStatus    = "status"
	attrResult    = "result"
	attrDirection = "direction"
)

// Metrics provides methods for recording observability metrics.
// The zero value is usable and records nothing.
type Metrics struct {
	// Drive API metrics
	driveOperationsTotal   metric.Int64Counter
	driveOperationDuration metric.Float64Histogram
	transferBytesTotal     metric.Int64Counter

	// OAuth metrics
	oauthAuthTotal metric.Int64Counter

	// Backup metrics
	backupFilesTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.driveOperationsTotal, err = meter.Int64Counter(
		"drive_api_operations_total",
		metric.WithDescription("Total number of Drive API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive_api_operations_total counter: %w", err)
	}

	m.driveOperationDuration, err = meter.Float64Histogram(
		"drive_api_operation_duration_seconds",
		metric.WithDescription("Drive API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 120.0, 600.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive_api_operation_duration_seconds histogram: %w", err)
	}

	m.transferBytesTotal, err = meter.Int64Counter(
		"drive_transfer_bytes_total",
		metric.WithDescription("Total number of bytes transferred to or from Drive"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive_transfer_bytes_total counter: %w", err)
	}

	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of OAuth authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.backupFilesTotal, err = meter.Int64Counter(
		"backup_files_total",
		metric.WithDescription("Total number of files visited by backup runs"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup_files_total counter: %w", err)
	}

	return m, nil
}

// RecordDriveOperation records a Drive API operation with its status and duration.
//
// Parameters:
//   - operation: one of the Operation* constants
//   - status: StatusSuccess or StatusError
//   - duration: time taken for the operation
func (m *Metrics) RecordDriveOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.driveOperationsTotal == nil || m.driveOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.driveOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.driveOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTransferBytes adds n bytes to the transfer counter for direction
// (DirectionDownload or DirectionUpload).
func (m *Metrics) RecordTransferBytes(ctx context.Context, direction string, n int64) {
	if m == nil || m.transferBytesTotal == nil || n <= 0 {
		return
	}

	m.transferBytesTotal.Add(ctx, n, metric.WithAttributes(attribute.String(attrDirection, direction)))
}

// RecordOAuthAuth records an OAuth authentication attempt with result.
// Result should be one of: "cached", "refreshed", "interactive", "failure"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordBackupFile records the outcome of one file in a backup run.
// Result should be one of: "uploaded", "skipped", "failed"
func (m *Metrics) RecordBackupFile(ctx context.Context, result string) {
	if m == nil || m.backupFilesTotal == nil {
		return
	}

	m.backupFilesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}
