package instrumentation

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

// sumByAttr returns the int64 sum data points of the metric keyed by the
// value of attribute key.
func sumByAttr(t *testing.T, m metricdata.Metrics, key string) map[string]int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, not an int64 sum", m.Name, m.Data)
	}

	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestMetrics_RecordDriveOperation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDriveOperation(ctx, OperationUpload, StatusSuccess, 200*time.Millisecond)
	m.RecordDriveOperation(ctx, OperationUpload, StatusSuccess, 300*time.Millisecond)
	m.RecordDriveOperation(ctx, OperationGet, StatusError, 50*time.Millisecond)

	got := collect(t, reader)

	ops := sumByAttr(t, got["drive_api_operations_total"], attrOperation)
	if ops[OperationUpload] != 2 {
		t.Errorf("expected 2 upload operations, got %d", ops[OperationUpload])
	}
	if ops[OperationGet] != 1 {
		t.Errorf("expected 1 get operation, got %d", ops[OperationGet])
	}

	hist, ok := got["drive_api_operation_duration_seconds"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("expected duration histogram")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("expected 3 duration samples, got %d", count)
	}
}

func TestMetrics_RecordTransferBytes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransferBytes(ctx, DirectionUpload, 1024)
	m.RecordTransferBytes(ctx, DirectionUpload, 1024)
	m.RecordTransferBytes(ctx, DirectionDownload, 10)
	m.RecordTransferBytes(ctx, DirectionDownload, 0)

	bytes := sumByAttr(t, collect(t, reader)["drive_transfer_bytes_total"], attrDirection)
	if bytes[DirectionUpload] != 2048 {
		t.Errorf("expected 2048 uploaded bytes, got %d", bytes[DirectionUpload])
	}
	if bytes[DirectionDownload] != 10 {
		t.Errorf("expected 10 downloaded bytes, got %d", bytes[DirectionDownload])
	}
}

func TestMetrics_RecordOAuthAndBackup(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOAuthAuth(ctx, "cached")
	m.RecordOAuthAuth(ctx, "failure")
	m.RecordBackupFile(ctx, "uploaded")
	m.RecordBackupFile(ctx, "skipped")
	m.RecordBackupFile(ctx, "skipped")

	got := collect(t, reader)

	auth := sumByAttr(t, got["oauth_auth_total"], attrResult)
	if auth["cached"] != 1 || auth["failure"] != 1 {
		t.Errorf("unexpected oauth counts: %v", auth)
	}

	files := sumByAttr(t, got["backup_files_total"], attrResult)
	if files["uploaded"] != 1 || files["skipped"] != 2 {
		t.Errorf("unexpected backup counts: %v", files)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	nilMetrics.RecordDriveOperation(ctx, OperationGet, StatusSuccess, time.Second)
	nilMetrics.RecordTransferBytes(ctx, DirectionDownload, 1)
	nilMetrics.RecordOAuthAuth(ctx, "cached")
	nilMetrics.RecordBackupFile(ctx, "uploaded")

	zero := &Metrics{}
	zero.RecordDriveOperation(ctx, OperationGet, StatusSuccess, time.Second)
	zero.RecordTransferBytes(ctx, DirectionDownload, 1)
	zero.RecordOAuthAuth(ctx, "cached")
	zero.RecordBackupFile(ctx, "uploaded")
}
