package observe

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTestTracer registers an in-memory tracer provider globally and
// restores the previous one after the test.
func installTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func captureLogs(t *testing.T) *strings.Builder {
	t.Helper()
	var buf strings.Builder
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID_NoSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID() = %q, want empty without a span", got)
	}
}

func TestStartSpan_RecordsNamedSpan(t *testing.T) {
	exp := installTestTracer(t)

	ctx, span := StartSpan(context.Background(), "enrich ingredient")
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 {
		t.Errorf("trace ID %q has length %d, want 32", cid, len(cid))
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "enrich ingredient" {
		t.Fatalf("spans = %+v, want one named span", spans)
	}
}

func TestCorrelationID_DistinctPerTrace(t *testing.T) {
	installTestTracer(t)

	seen := make(map[string]struct{}, 50)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "probe")
		cid := CorrelationID(ctx)
		span.End()
		if _, dup := seen[cid]; dup {
			t.Fatalf("trace ID %s repeated", cid)
		}
		seen[cid] = struct{}{}
	}
}

func TestLogger_AnnotatesWithSpanContext(t *testing.T) {
	installTestTracer(t)
	buf := captureLogs(t)

	ctx, span := StartSpan(context.Background(), "log-span")
	defer span.End()
	Logger(ctx).Info("saved ingredient")

	out := buf.String()
	if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("log line missing trace annotations: %s", out)
	}
}

func TestLogger_PlainWithoutSpan(t *testing.T) {
	buf := captureLogs(t)

	Logger(context.Background()).Info("saved ingredient")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log line should carry no trace annotations: %s", buf.String())
	}
}
