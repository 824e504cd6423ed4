package engine

import (
	"context"
	"fmt"

	"github.com/erauner12/syncline/internal/storage"
	"github.com/erauner12/syncline/internal/syncerr"
)

// Mutator is a named transactional procedure. Validate, when set, rejects
// args before any transaction opens. Handle runs inside the transaction and
// its return value becomes the response's result field.
type Mutator struct {
	Validate func(args map[string]any) error
	Handle   func(ctx context.Context, m *MutatorCtx) (any, error)
}

type mutatorEntry struct {
	name string
	m    Mutator
}

// RegisterMutator adds a mutator under name. Call before serving starts.
func (e *Engine) RegisterMutator(name string, m Mutator) error {
	if name == "" {
		return fmt.Errorf("mutator name cannot be empty")
	}
	if m.Handle == nil {
		return fmt.Errorf("mutator %s has no handler", name)
	}
	if _, exists := e.mutators[name]; exists {
		return fmt.Errorf("mutator %s already registered", name)
	}
	e.mutators[name] = &mutatorEntry{name: name, m: m}
	e.ordering = append(e.ordering, name)
	return nil
}

// MustRegisterMutator registers or panics, for init-time wiring.
func (e *Engine) MustRegisterMutator(name string, m Mutator) {
	if err := e.RegisterMutator(name, m); err != nil {
		panic(err)
	}
}

// MutatorNames lists registered mutators in registration order. Never nil, so
// the info endpoint renders an empty array rather than null.
func (e *Engine) MutatorNames() []string {
	names := make([]string, 0, len(e.ordering))
	return append(names, e.ordering...)
}

// MutatorCtx is what a handler runs against. Tx is the raw transaction:
// writes through it are invisible to the event stream. The Insert, Update,
// and Delete methods go through the executor instead, so they are validated,
// stamped, and folded into the commit's change frame. Caller identity travels
// on the request context.
type MutatorCtx struct {
	Args map[string]any
	Tx   storage.Tx

	eng *Engine
	rec *recorder
}

// Insert writes one row through the executor path.
func (m *MutatorCtx) Insert(ctx context.Context, table string, row storage.Row) (storage.Row, error) {
	return m.eng.insertRow(ctx, m.Tx, m.rec, table, row)
}

// Update writes set under an optional CAS guard through the executor path.
func (m *MutatorCtx) Update(ctx context.Context, table string, pk any, set storage.Row, ifVersion *int64) (storage.Row, error) {
	cpk, err := canonicalPK(pk)
	if err != nil {
		return nil, err
	}
	if err := m.eng.validateSet(table, set); err != nil {
		return nil, err
	}
	return m.eng.updateRow(ctx, m.Tx, m.rec, table, cpk, set, ifVersion)
}

// Delete removes a row through the executor path.
func (m *MutatorCtx) Delete(ctx context.Context, table string, pk any) error {
	cpk, err := canonicalPK(pk)
	if err != nil {
		return err
	}
	return m.eng.deleteRow(ctx, m.Tx, m.rec, table, cpk)
}

// RunMutator resolves and executes a registered mutator under one
// transaction, with the same idempotency and emission rules as Mutate.
func (e *Engine) RunMutator(ctx context.Context, name string, args map[string]any, clientOpID string) (map[string]any, error) {
	if err := e.gate(); err != nil {
		return nil, err
	}
	defer e.wg.Done()

	start := e.now()
	body, err := e.runMutator(ctx, name, args, clientOpID)
	observeMutator(name, err, e.now().Sub(start))
	return body, err
}

func (e *Engine) runMutator(ctx context.Context, name string, args map[string]any, clientOpID string) (map[string]any, error) {
	entry, ok := e.mutators[name]
	if !ok {
		return nil, syncerr.Newf(syncerr.CodeNotFound, "unknown mutator %q", name)
	}
	if entry.m.Validate != nil {
		if err := entry.m.Validate(args); err != nil {
			return nil, syncerr.Wrap(err, syncerr.CodeBadRequest, "invalid args")
		}
	}
	if clientOpID != "" {
		body, hit, err := e.replay(ctx, clientOpID)
		if err != nil {
			return nil, err
		}
		if hit {
			return body, nil
		}
	}

	tx, err := e.adapter.Begin(ctx)
	if err != nil {
		return nil, syncerr.Wrap(err, syncerr.CodeInternal, "begin failed")
	}
	rec := newRecorder(e.ids.Next())

	result, err := entry.m.Handle(ctx, &MutatorCtx{Args: args, Tx: tx, eng: e, rec: rec})
	if err != nil {
		tx.Rollback(ctx)
		return nil, syncerr.Wrap(err, syncerr.CodeInternal, "mutator failed")
	}
	if err := tx.Commit(ctx); err != nil {
		tx.Rollback(ctx)
		return nil, syncerr.Wrap(err, syncerr.CodeInternal, "commit failed")
	}

	e.publish(ctx, rec)
	body := map[string]any{"result": result}
	e.remember(ctx, clientOpID, body)
	return body, nil
}
