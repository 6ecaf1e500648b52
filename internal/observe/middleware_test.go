package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newInstrumentedHandler wires the middleware around next with in-memory
// metric and span sinks.
func newInstrumentedHandler(t *testing.T, next http.HandlerFunc) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := installTestTracer(t)
	return Middleware(m)(next), reader, exp
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	var inHandler string
	handler, _, _ := newInstrumentedHandler(t, func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/ingredients", nil))

	if len(inHandler) != 32 {
		t.Errorf("handler saw trace ID %q, want a 32-char hex ID", inHandler)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inHandler {
		t.Errorf("X-Correlation-ID = %q, want %q", got, inHandler)
	}
}

func TestMiddleware_SpanPerRequest(t *testing.T) {
	handler, _, exp := newInstrumentedHandler(t, func(http.ResponseWriter, *http.Request) {})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/preps", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /v1/preps" {
		t.Errorf("span name = %q", spans[0].Name)
	}
}

func TestMiddleware_DurationHistogram(t *testing.T) {
	handler, reader, _ := newInstrumentedHandler(t, func(http.ResponseWriter, *http.Request) {})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/sales", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "mise.http.request.duration")
	if met == nil {
		t.Fatal("mise.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("histogram data = %+v", met.Data)
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	var method, path string
	for _, kv := range dp.Attributes.ToSlice() {
		switch string(kv.Key) {
		case "method":
			method = kv.Value.AsString()
		case "path":
			path = kv.Value.AsString()
		}
	}
	if method != "GET" || path != "/v1/sales" {
		t.Errorf("attributes = %s %s", method, path)
	}
}

func TestMiddleware_RecordsStatusOnSpan(t *testing.T) {
	handler, _, exp := newInstrumentedHandler(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/ingredients/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 404 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code=404")
	}
}

func TestMiddleware_HonoursIncomingTraceparent(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inHandler string
	handler, _, _ := newInstrumentedHandler(t, func(_ http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
	})

	req := httptest.NewRequest("GET", "/v1/suggestions", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if inHandler != traceID {
		t.Errorf("handler trace ID = %q, want the incoming one", inHandler)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
}
