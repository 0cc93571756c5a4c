package observe

import (
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader is set on every status server response.
const TraceHeader = "X-Trace-ID"

// otherRoute labels requests for paths the status server does not serve.
const otherRoute = "other"

// codeWriter remembers the status code written through it.
type codeWriter struct {
	http.ResponseWriter
	code int
}

func (w *codeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the local status server. routes lists the paths it
// serves; anything else is labelled "other" in spans and metrics. Each
// request continues the caller's W3C trace context in a server span, gets a
// [TraceHeader] response header, and is recorded on
// [Metrics.HTTPRequestDuration].
func Middleware(m *Metrics, routes ...string) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}
	route := func(path string) string {
		if slices.Contains(routes, path) {
			return path
		}
		return otherRoute
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := route(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer().Start(ctx, r.Method+" "+path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(path),
				),
			)
			defer span.End()
			if tid := TraceID(ctx); tid != "" {
				w.Header().Set(TraceHeader, tid)
			}

			cw := &codeWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(cw, r.WithContext(ctx))

			took := time.Since(start)
			span.SetAttributes(semconv.HTTPResponseStatusCode(cw.code))
			m.HTTPRequestDuration.Record(ctx, took.Seconds(), metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", path),
				attribute.Int("status", cw.code),
			))
			Logger(ctx).Debug("status: request", "method", r.Method, "path", r.URL.Path, "status", cw.code, "took", took)
		})
	}
}
