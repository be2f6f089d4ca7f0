package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "helmsman"

// StartSessionSpan starts a span covering one agent session.
func StartSessionSpan(ctx context.Context, sessionID, projectID, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("project.id", projectID),
			attribute.String("task.id", taskID),
		),
	)
}

// StartTurnSpan starts a span for one conversation turn within a session.
func StartTurnSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "turn",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
		),
	)
}
