package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Spans opened by the client.
const (
	SpanSetUsername = "bootstrap.set_username"
	SpanSessionOpen = "session.open"
)

// AttrSessionID tags spans with the backend session id.
const AttrSessionID = attribute.Key("voxchat.session_id")

type sessionKey struct{}

// WithSession returns a copy of ctx carrying the backend session id. Spans
// started from it and loggers derived from it are tagged with the id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFrom returns the session id carried by ctx, or "".
func SessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func tracer() trace.Tracer { return otel.Tracer(meterName) }

// StartSpan opens a client span on the global tracer provider. The session
// id carried by ctx, if any, is added to attrs.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if id := SessionFrom(ctx); id != "" {
		attrs = append(attrs, AttrSessionID.String(id))
	}
	return tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan marks span failed when err is non-nil, then ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceID returns the hex trace id of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger tagged with the session id and trace id
// found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := SessionFrom(ctx); id != "" {
		l = l.With(slog.String("session_id", id))
	}
	if tid := TraceID(ctx); tid != "" {
		l = l.With(slog.String("trace_id", tid))
	}
	return l
}
