package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span for a service operation.
// This is a convenience wrapper around otel.Tracer().Start() with common patterns.
//
// Usage in services:
//
//	ctx, span := telemetry.StartSpan(ctx, "annotator/services/images", "images.Delete",
//	    attribute.Int64(telemetry.AttrImageID, id),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and sets the span status to error.
// This is a convenience wrapper to ensure consistent error recording.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span with optional attributes.
// Use for business events like validation failures, policy checks, etc.
//
// Example:
//
//	telemetry.AddEvent(span, "authentication.failed",
//	    attribute.String("auth.method", "token"),
//	)
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Common attribute keys for annotator services
const (
	// IAM service attributes
	AttrPrincipalID     = "principal.id"
	AttrPrincipalKind   = "principal.kind"
	AttrPrincipalMethod = "principal.method"

	// Policy attributes
	AttrPolicyAction   = "policy.action"
	AttrPolicyResource = "policy.resource"
	AttrPolicyAllowed  = "policy.allowed"

	// Image service attributes
	AttrImageID   = "image.id"
	AttrDatasetID = "dataset.id"

	// Render cache attributes
	AttrRenderThumbnail = "render.thumbnail"
	AttrRenderCacheHit  = "render.cache_hit"
)
