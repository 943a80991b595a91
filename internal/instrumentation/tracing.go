package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the drivebkup packages.
const TracerName = "github.com/teemow/drivebkup"

// Span attribute keys for operations.
const (
	// SpanAttrOperation is the Drive operation attribute.
	SpanAttrOperation = "drive.operation"

	// SpanAttrFileID is the Drive file identifier.
	SpanAttrFileID = "drive.file_id"

	// SpanAttrDriveID is the shared drive identifier.
	SpanAttrDriveID = "drive.drive_id"

	// SpanAttrParentID is the parent folder identifier.
	SpanAttrParentID = "drive.parent_id"

	// SpanAttrMimeType is the source MIME type of a file.
	SpanAttrMimeType = "drive.mime_type"

	// SpanAttrPath is the local filesystem path.
	SpanAttrPath = "local.path"

	// SpanAttrBytes is the number of bytes transferred.
	SpanAttrBytes = "transfer.bytes"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming. Empty values are skipped.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 6),
	}
}

func (b *SpanAttributeBuilder) add(key, value string) *SpanAttributeBuilder {
	if value != "" {
		b.attrs = append(b.attrs, attribute.String(key, value))
	}
	return b
}

// WithFileID adds the file ID attribute.
func (b *SpanAttributeBuilder) WithFileID(id string) *SpanAttributeBuilder {
	return b.add(SpanAttrFileID, id)
}

// WithDriveID adds the shared drive ID attribute.
func (b *SpanAttributeBuilder) WithDriveID(id string) *SpanAttributeBuilder {
	return b.add(SpanAttrDriveID, id)
}

// WithParentID adds the parent folder ID attribute.
func (b *SpanAttributeBuilder) WithParentID(id string) *SpanAttributeBuilder {
	return b.add(SpanAttrParentID, id)
}

// WithPath adds the local path attribute.
func (b *SpanAttributeBuilder) WithPath(path string) *SpanAttributeBuilder {
	return b.add(SpanAttrPath, path)
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span with the given name and attributes.
// The caller is responsible for ending the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartDriveSpan starts a client span named "drive.<operation>" for a Drive
// API operation.
func StartDriveSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrOperation, operation))
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "drive."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		SetSpanError(span, err)
	} else {
		SetSpanSuccess(span)
	}
	span.End()
}

// AddSpanEvent adds an event to the span with optional attributes.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
