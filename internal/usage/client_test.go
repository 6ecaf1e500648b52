package usage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestValidate_AllowsWithinQuota(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != statusEndpoint {
			t.Errorf("path = %q, want %q", r.URL.Path, statusEndpoint)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"can_use": true, "current_usage": 120, "quota": 3600, "remaining": 3480}`))
	})

	c, err := New(srv.URL, "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_QuotaExceeded(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"can_use": false, "current_usage": 3600, "quota": 3600, "remaining": 0}`))
	})

	c, err := New(srv.URL, "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.Validate(context.Background())
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestFetch_CachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"can_use": true, "remaining": 10, "quota": 100}`))
	})

	c, err := New(srv.URL, "tok", WithCacheTTL(time.Minute))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(context.Background()); err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("collaborator calls = %d, want 1 (cached)", got)
	}

	c.InvalidateCache()
	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch after invalidate: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("collaborator calls = %d, want 2 after invalidate", got)
	}
}

func TestAPIKey_FetchedOnceAndCached(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != keyEndpoint {
			t.Errorf("path = %q, want %q", r.URL.Path, keyEndpoint)
		}
		calls.Add(1)
		w.Write([]byte(`{"api_key": "dg-secret"}`))
	})

	c, err := New(srv.URL, "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 2; i++ {
		key, err := c.APIKey(context.Background())
		if err != nil {
			t.Fatalf("APIKey: %v", err)
		}
		if key != "dg-secret" {
			t.Errorf("key = %q", key)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("collaborator calls = %d, want 1", got)
	}
}

func TestFetch_CollaboratorError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c, err := New(srv.URL, "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected error on 500 response")
	}
}
