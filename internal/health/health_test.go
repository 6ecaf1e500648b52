package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func pass(_ context.Context) error { return nil }

func fail(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func probe(t *testing.T, fn http.HandlerFunc, path string) (int, report) {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest("GET", path, nil))
	var rep report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s body: %v", path, err)
	}
	return rec.Code, rep
}

func TestHealthz_AlwaysOK(t *testing.T) {
	h := New(Checker{Name: "database", Check: fail("down")})

	code, rep := probe(t, h.Healthz, "/healthz")
	if code != http.StatusOK || rep.Status != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok even with failing checkers", code, rep.Status)
	}
}

func TestReadyz_AllPass(t *testing.T) {
	h := New(
		Checker{Name: "database", Check: pass},
		Checker{Name: "stt", Check: pass},
		Checker{Name: "usage", Check: pass},
	)

	code, rep := probe(t, h.Readyz, "/readyz")
	if code != http.StatusOK || rep.Status != "ok" {
		t.Fatalf("readyz = %d %q", code, rep.Status)
	}
	for _, name := range []string{"database", "stt", "usage"} {
		if rep.Checks[name] != "ok" {
			t.Errorf("check %s = %q, want ok", name, rep.Checks[name])
		}
	}
}

func TestReadyz_OneFailure(t *testing.T) {
	h := New(
		Checker{Name: "database", Check: fail("connection refused")},
		Checker{Name: "stt", Check: pass},
	)

	code, rep := probe(t, h.Readyz, "/readyz")
	if code != http.StatusServiceUnavailable || rep.Status != "fail" {
		t.Fatalf("readyz = %d %q, want 503 fail", code, rep.Status)
	}
	if rep.Checks["database"] != "fail: connection refused" {
		t.Errorf("database check = %q", rep.Checks["database"])
	}
	if rep.Checks["stt"] != "ok" {
		t.Errorf("stt check = %q, want ok", rep.Checks["stt"])
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	code, rep := probe(t, New().Readyz, "/readyz")
	if code != http.StatusOK || rep.Status != "ok" {
		t.Errorf("readyz with no checkers = %d %q", code, rep.Status)
	}
}

func TestReadyz_ContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	New().Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz_CancelledRequestFails(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRegister_ServesBothProbes(t *testing.T) {
	mux := http.NewServeMux()
	New(Checker{Name: "database", Check: pass}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
