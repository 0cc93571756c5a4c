package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// installTracer points the global tracer provider at an in-memory exporter
// for the duration of the test.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLog redirects the default logger into a buffer.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func spanAttr(s tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestWithSession(t *testing.T) {
	ctx := context.Background()
	if got := SessionFrom(ctx); got != "" {
		t.Errorf("SessionFrom(background) = %q", got)
	}
	ctx = WithSession(ctx, "sess-alice")
	if got := SessionFrom(ctx); got != "sess-alice" {
		t.Errorf("SessionFrom = %q, want sess-alice", got)
	}
}

func TestStartSpan_TagsSession(t *testing.T) {
	exp := installTracer(t)

	ctx := WithSession(context.Background(), "sess-bob")
	_, span := StartSpan(ctx, SpanSessionOpen, attribute.String("server.address", "ws://localhost/ws"))
	EndSpan(span, nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != SpanSessionOpen {
		t.Errorf("name = %q, want %q", s.Name, SpanSessionOpen)
	}
	if s.SpanKind != trace.SpanKindClient {
		t.Errorf("kind = %v, want client", s.SpanKind)
	}
	if v, ok := spanAttr(s, AttrSessionID); !ok || v.AsString() != "sess-bob" {
		t.Errorf("session attribute = %v (present %v), want sess-bob", v.AsString(), ok)
	}
	if v, ok := spanAttr(s, "server.address"); !ok || v.AsString() != "ws://localhost/ws" {
		t.Errorf("server.address = %q", v.AsString())
	}
	if s.Status.Code == codes.Error {
		t.Error("successful span marked as error")
	}
}

func TestStartSpan_NoSessionAttributeWithoutSession(t *testing.T) {
	exp := installTracer(t)

	_, span := StartSpan(context.Background(), SpanSetUsername)
	span.End()

	if _, ok := spanAttr(exp.GetSpans()[0], AttrSessionID); ok {
		t.Error("span without a session must not carry a session id")
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	exp := installTracer(t)

	_, span := StartSpan(context.Background(), SpanSetUsername)
	EndSpan(span, errors.New("username already taken"))

	s := exp.GetSpans()[0]
	if s.Status.Code != codes.Error || s.Status.Description != "username already taken" {
		t.Errorf("status = %v %q", s.Status.Code, s.Status.Description)
	}
	if len(s.Events) == 0 || s.Events[0].Name != "exception" {
		t.Error("error was not recorded as a span event")
	}
}

func TestTraceID(t *testing.T) {
	installTracer(t)

	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID(background) = %q, want empty", got)
	}
	ctx, span := StartSpan(context.Background(), SpanSessionOpen)
	defer span.End()
	if got := TraceID(ctx); len(got) != 32 || got != span.SpanContext().TraceID().String() {
		t.Errorf("TraceID = %q, want the span's 32-char trace id", got)
	}
}

func TestLogger(t *testing.T) {
	installTracer(t)
	buf := captureLog(t)

	Logger(context.Background()).Info("bare")
	if line := buf.String(); strings.Contains(line, "session_id") || strings.Contains(line, "trace_id") {
		t.Errorf("bare context produced tagged line: %s", line)
	}

	buf.Reset()
	ctx, span := StartSpan(WithSession(context.Background(), "sess-carol"), SpanSessionOpen)
	defer span.End()
	Logger(ctx).Info("tagged")
	line := buf.String()
	if !strings.Contains(line, "session_id=sess-carol") {
		t.Errorf("missing session_id: %s", line)
	}
	if !strings.Contains(line, "trace_id="+TraceID(ctx)) {
		t.Errorf("missing trace_id: %s", line)
	}
}
