package httpapi

import (
	"testing"

	"github.com/erauner12/syncline/internal/eventbus"
)

func TestCorrelationIDEcho(t *testing.T) {
	srv, _, _ := newTestServer(t, eventbus.Config{}, Config{})
	router := srv.Routes()

	rec := doJSON(t, router, "GET", "/healthz", nil, map[string]string{"X-Correlation-ID": "corr-42"})
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-42" {
		t.Errorf("expected client id echoed back, got %q", got)
	}

	rec = doJSON(t, router, "GET", "/healthz", nil, nil)
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected a generated correlation id")
	}
}
