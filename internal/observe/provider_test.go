package observe

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestInitProvider(t *testing.T) {
	prevTP, prevMP, prevProp := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		otel.SetTextMapPropagator(prevProp)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		InstanceID:     "instance-1",
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})

	t.Run("metrics reach prometheus", func(t *testing.T) {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			t.Fatalf("NewMetrics: %v", err)
		}
		m.RecordFrameSent(context.Background())
		m.RecordFrameDropped(context.Background(), DropPlayback)

		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("Gather: %v", err)
		}
		var names []string
		for _, f := range families {
			names = append(names, f.GetName())
		}
		for _, want := range []string{"voxchat_capture_frames_sent", "voxchat_capture_frames_dropped"} {
			if !slices.ContainsFunc(names, func(n string) bool { return strings.HasPrefix(n, want) }) {
				t.Errorf("gathered families %v missing %s", names, want)
			}
		}
	})

	t.Run("spans are sampled", func(t *testing.T) {
		ctx, span := StartSpan(WithSession(context.Background(), "sess-1"), SpanSessionOpen)
		defer span.End()
		if !span.SpanContext().IsValid() || TraceID(ctx) == "" {
			t.Error("installed tracer provider should produce valid spans")
		}
	})

	t.Run("trace context is propagated", func(t *testing.T) {
		if !slices.Contains(otel.GetTextMapPropagator().Fields(), "traceparent") {
			t.Errorf("propagator fields = %v, want traceparent", otel.GetTextMapPropagator().Fields())
		}
	})
}
