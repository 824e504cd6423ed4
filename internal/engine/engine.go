// Package engine is the transactional mutation executor. It dispatches
// insert/update/upsert/delete batches and named mutators under one transaction
// each, enforces CAS versioning and idempotent replay, stamps rows, and turns
// every commit into exactly one change frame on the event ring.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/syncline/internal/eventbus"
	"github.com/erauner12/syncline/internal/idempotency"
	"github.com/erauner12/syncline/internal/storage"
	"github.com/erauner12/syncline/internal/syncerr"
	"github.com/erauner12/syncline/internal/syncx"
)

// DefaultBatchMax caps insert/upsert batch sizes.
const DefaultBatchMax = 100

// Config wires an Engine. Adapter, Ring, and Idempotency are required.
type Config struct {
	Adapter     storage.Adapter
	Ring        *eventbus.Ring
	Idempotency idempotency.Store
	// BatchMax overrides the insert/upsert batch cap. Default 100.
	BatchMax int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine executes mutations. Safe for concurrent use; registration of schemas
// and mutators must finish before serving starts.
type Engine struct {
	adapter  storage.Adapter
	ring     *eventbus.Ring
	idem     idempotency.Store
	ids      *syncx.IDGen
	now      func() time.Time
	batchMax int

	schemas  map[string]RowSchema
	mutators map[string]*mutatorEntry
	ordering []string

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = DefaultBatchMax
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		adapter:  cfg.Adapter,
		ring:     cfg.Ring,
		idem:     cfg.Idempotency,
		ids:      syncx.NewIDGenAt(cfg.Now),
		now:      cfg.Now,
		batchMax: cfg.BatchMax,
		schemas:  make(map[string]RowSchema),
		mutators: make(map[string]*mutatorEntry),
	}
}

// BatchMax reports the insert/upsert batch cap.
func (e *Engine) BatchMax() int { return e.batchMax }

// Close stops accepting new mutations, waits for in-flight transactions, and
// severs the event ring so sessions receive their terminal marker.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	e.ring.Close()
}

// gate admits one mutation into the in-flight set. Callers must e.wg.Done().
func (e *Engine) gate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return syncerr.New(syncerr.CodeInternal, "engine is shutting down", nil)
	}
	e.wg.Add(1)
	return nil
}

// replay returns the cached response for key, marked duplicated, when a live
// idempotency entry exists. A store failure is INTERNAL: guessing here would
// risk executing the mutation twice.
func (e *Engine) replay(ctx context.Context, key string) (map[string]any, bool, error) {
	cached, ok, err := e.idem.Get(ctx, key)
	if err != nil {
		return nil, false, syncerr.Wrap(err, syncerr.CodeInternal, "idempotency lookup failed")
	}
	if !ok {
		return nil, false, nil
	}
	var body map[string]any
	if err := json.Unmarshal(cached, &body); err != nil {
		return nil, false, syncerr.Wrap(err, syncerr.CodeInternal, "idempotency entry corrupt")
	}
	body["duplicated"] = true
	replaysTotal.Inc()
	return body, true, nil
}

// remember caches the committed response under key. Runs post-commit: a
// failed write only costs replay protection, the commit already won.
func (e *Engine) remember(ctx context.Context, key string, body map[string]any) {
	if key == "" {
		return
	}
	data, err := json.Marshal(body)
	if err == nil {
		err = e.idem.Set(ctx, key, data)
	}
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("idempotency_key", key).Msg("idempotency write failed")
	}
}

// publish appends the transaction's frame to the ring. Failures are logged,
// not surfaced: the commit is durable and the response must say so.
func (e *Engine) publish(ctx context.Context, rec *recorder) {
	frame := rec.frame()
	if frame == nil {
		return
	}
	if _, err := e.ring.Append(frame); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("tx_id", frame.TxID).Msg("frame append failed")
	}
}
