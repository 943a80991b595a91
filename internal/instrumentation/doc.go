// Package instrumentation provides OpenTelemetry instrumentation for drivebkup.
//
// # Metrics
//
// Drive API Metrics:
//   - drive_api_operations_total: Counter of Drive API operations by operation and status
//   - drive_api_operation_duration_seconds: Histogram of Drive API operation durations
//   - drive_transfer_bytes_total: Counter of bytes moved, by direction (download, upload)
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of authentication attempts by result
//     (cached, refreshed, interactive, failure)
//
// Backup Metrics:
//   - backup_files_total: Counter of files visited by backup runs by result
//     (uploaded, skipped, failed)
//
// # Tracing
//
// Every Drive client operation runs inside a drive.<operation> client span.
// Errors are recorded on the span.
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_EXPORTER_OTLP_INSECURE: Use plain HTTP for OTLP (default: false)
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: drivebkup)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(context.Background())
//
//	metrics := provider.Metrics()
//	metrics.RecordDriveOperation(ctx, instrumentation.OperationUpload, instrumentation.StatusSuccess, elapsed)
//
// A nil or zero *Metrics is safe to use and records nothing.
package instrumentation
