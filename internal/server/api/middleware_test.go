package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequireOwner(t *testing.T) {
	e := echo.New()
	handler := RequireOwner()(func(c echo.Context) error {
		return c.String(http.StatusOK, ownerID(c))
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		if err := handler(e.NewContext(req, rec)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("header value reaches the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Owner-ID", "owner-42")
		rec := httptest.NewRecorder()

		if err := handler(e.NewContext(req, rec)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Body.String() != "owner-42" {
			t.Errorf("expected owner-42, got %q", rec.Body.String())
		}
	})
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request past burst should be denied")
	}

	// A different IP has its own bucket.
	if !rl.allow("10.0.0.2") {
		t.Error("fresh IP should be allowed")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	defer rl.Stop()

	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")

	// Age one visitor past the eviction cutoff.
	rl.mu.Lock()
	rl.visitors["10.0.0.1"].lastCheck = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["10.0.0.1"]; ok {
		t.Error("stale visitor should have been evicted")
	}
	if _, ok := rl.visitors["10.0.0.2"]; !ok {
		t.Error("recent visitor should have been kept")
	}
}

func TestRateLimiterStop(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Stop()

	select {
	case <-rl.stop:
	case <-time.After(time.Second):
		t.Fatal("stop channel should be closed")
	}
}

func TestHumanizeBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}

	for _, tt := range tests {
		if got := humanizeBytes(tt.in); got != tt.want {
			t.Errorf("humanizeBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
