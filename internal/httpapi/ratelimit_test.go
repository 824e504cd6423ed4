package httpapi

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/erauner12/syncline/internal/eventbus"
)

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(10, 1) // one-deep bucket refilling 10/s
	base := time.Now()
	current := base
	rl.now = func() time.Time { return current }

	if ok, _, _ := rl.Allow("k"); !ok {
		t.Fatal("first request must pass")
	}
	ok, _, wait := rl.Allow("k")
	if ok {
		t.Fatal("empty bucket must deny")
	}
	if wait <= 0 || wait > 100*time.Millisecond {
		t.Errorf("expected wait up to 100ms, got %v", wait)
	}

	// One token exists again after 150ms at 10/s.
	current = base.Add(150 * time.Millisecond)
	if ok, _, _ := rl.Allow("k"); !ok {
		t.Error("refilled bucket must allow")
	}
	if ok, _, _ := rl.Allow("k"); ok {
		t.Error("capacity caps the refill at one token")
	}
}

func TestRateLimiterRemainingCountsDown(t *testing.T) {
	rl := NewRateLimiter(0.001, 3)
	for want := 2; want >= 0; want-- {
		ok, remaining, _ := rl.Allow("k")
		if !ok {
			t.Fatalf("expected allow with %d remaining", want)
		}
		if remaining != want {
			t.Errorf("expected remaining %d, got %d", want, remaining)
		}
	}
	if ok, _, _ := rl.Allow("k"); ok {
		t.Error("expected denial after burst")
	}
}

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	base := time.Now()
	current := base
	rl.now = func() time.Time { return current }

	rl.Allow("old")

	current = base.Add(2 * time.Hour)
	rl.Allow("fresh")

	rl.mu.Lock()
	_, oldKept := rl.buckets["old"]
	_, freshKept := rl.buckets["fresh"]
	rl.mu.Unlock()
	if oldKept {
		t.Error("idle bucket must be swept")
	}
	if !freshKept {
		t.Error("active bucket must survive the sweep")
	}
}

func TestRateLimiting_429Response(t *testing.T) {
	srv, _, _ := newTestServer(t, eventbus.Config{}, Config{
		DevMode:   true,
		RateRPS:   0.001, // no meaningful refill within the test
		RateBurst: 2,
	})
	router := srv.Routes()

	mutation := map[string]any{
		"op":    "insert",
		"table": "notes",
		"rows":  map[string]any{"title": "x"},
	}
	alice := map[string]string{"X-Debug-Sub": "alice"}

	// The burst admits two writes, the third is refused.
	for i := 1; i <= 2; i++ {
		rec := doJSON(t, router, "POST", "/v1/sync/mutate", mutation, alice)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, body: %s", i, rec.Code, rec.Body.String())
		}
		if rec.Header().Get("X-RateLimit-Remaining") == "" {
			t.Errorf("request %d: X-RateLimit-Remaining header missing", i)
		}
		if rec.Header().Get("X-RateLimit-Burst") != "2" {
			t.Errorf("request %d: expected burst header 2, got %q", i, rec.Header().Get("X-RateLimit-Burst"))
		}
	}

	rec := doJSON(t, router, "POST", "/v1/sync/mutate", mutation, alice)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on denial")
	}
	// Denials are plain text, not the mutation error envelope.
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Errorf("expected plain denial body, got %q", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"code"`) {
		t.Errorf("denial must not use the error envelope, got %q", rec.Body.String())
	}

	// Budgets are per caller.
	rec = doJSON(t, router, "POST", "/v1/sync/mutate", mutation, map[string]string{"X-Debug-Sub": "bob"})
	if rec.Code != http.StatusOK {
		t.Errorf("other caller must have its own budget, got %d", rec.Code)
	}

	// Reads are not rate limited.
	rec = doJSON(t, router, "POST", "/v1/sync/select", map[string]any{"table": "notes"}, alice)
	if rec.Code != http.StatusOK {
		t.Errorf("select must bypass the limiter, got %d", rec.Code)
	}
}

func TestRateLimitingDisabledByDefault(t *testing.T) {
	srv, _, _ := newTestServer(t, eventbus.Config{}, Config{})
	router := srv.Routes()

	for i := 0; i < 30; i++ {
		rec := doJSON(t, router, "POST", "/v1/sync/mutate", map[string]any{
			"op":    "insert",
			"table": "notes",
			"rows":  map[string]any{"n": i},
		}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d", i, rec.Code)
		}
	}
}
