package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erauner12/syncline/internal/engine"
	"github.com/erauner12/syncline/internal/eventbus"
	"github.com/erauner12/syncline/internal/idempotency"
	"github.com/erauner12/syncline/internal/memstore"
)

// newTestServer wires a full stack on the memory adapter. Ring and transport
// knobs come from the caller so scenario tests can shrink buffers and
// heartbeat intervals.
func newTestServer(t *testing.T, ringCfg eventbus.Config, cfg Config) (*Server, *engine.Engine, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	ring := eventbus.NewRing(ringCfg)
	eng := engine.New(engine.Config{
		Adapter:     store,
		Ring:        ring,
		Idempotency: idempotency.NewMemory(10 * time.Minute),
	})
	return New(eng, ring, store, cfg), eng, store
}

// doJSON performs one request against the router and records the response.
func doJSON(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// bodyMap decodes a JSON response body.
func bodyMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return m
}

// seedRows writes fully stamped rows straight into the store, bypassing the
// engine. Use it when a test needs deterministic updatedAt values.
func seedRows(t *testing.T, store *memstore.Store, table string, rows ...map[string]any) {
	t.Helper()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin seed tx: %v", err)
	}
	for _, row := range rows {
		if _, err := tx.Insert(ctx, table, row); err != nil {
			tx.Rollback(ctx)
			t.Fatalf("seed insert %v: %v", row["id"], err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit seed tx: %v", err)
	}
}
