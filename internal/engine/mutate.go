package engine

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/erauner12/syncline/internal/eventbus"
	"github.com/erauner12/syncline/internal/storage"
	"github.com/erauner12/syncline/internal/syncerr"
	"github.com/erauner12/syncline/internal/syncx"
)

// Op names accepted by Mutate.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Rows accepts either one row object or an array of rows on the wire and
// remembers which shape arrived, so the response echoes it back.
type Rows struct {
	Items  []storage.Row
	Single bool
}

func (r *Rows) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*r = Rows{}
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &r.Items)
	}
	var row storage.Row
	if err := json.Unmarshal(b, &row); err != nil {
		return err
	}
	r.Items = []storage.Row{row}
	r.Single = true
	return nil
}

// MutateRequest is one discriminated mutation op. ClientOpID is the effective
// idempotency key; the transport resolves header precedence before calling.
type MutateRequest struct {
	Op         string      `json:"op"`
	Table      string      `json:"table"`
	Rows       Rows        `json:"rows"`
	PK         any         `json:"pk"`
	Set        storage.Row `json:"set"`
	IfVersion  *int64      `json:"ifVersion"`
	Merge      []string    `json:"merge"`
	ClientOpID string      `json:"clientOpId"`
}

// Mutate runs one dispatched operation inside a single transaction. The whole
// batch commits or nothing does; on commit exactly one frame reaches the ring
// and the response is cached under the idempotency key.
func (e *Engine) Mutate(ctx context.Context, req *MutateRequest) (map[string]any, error) {
	if err := e.gate(); err != nil {
		return nil, err
	}
	defer e.wg.Done()

	start := e.now()
	body, err := e.mutate(ctx, req)
	observeMutation(req.Op, err, e.now().Sub(start))
	return body, err
}

func (e *Engine) mutate(ctx context.Context, req *MutateRequest) (map[string]any, error) {
	if req.Table == "" {
		return nil, syncerr.New(syncerr.CodeBadRequest, "table is required", nil)
	}
	if key := req.ClientOpID; key != "" {
		body, hit, err := e.replay(ctx, key)
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

	body, err := e.applyOp(ctx, tx, rec, req)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		tx.Rollback(ctx)
		return nil, syncerr.Wrap(err, syncerr.CodeInternal, "commit failed")
	}

	e.publish(ctx, rec)
	e.remember(ctx, req.ClientOpID, body)
	return body, nil
}

func (e *Engine) applyOp(ctx context.Context, tx storage.Tx, rec *recorder, req *MutateRequest) (map[string]any, error) {
	switch req.Op {
	case OpInsert:
		return e.applyInsert(ctx, tx, rec, req)
	case OpUpdate:
		return e.applyUpdate(ctx, tx, rec, req)
	case OpUpsert:
		return e.applyUpsert(ctx, tx, rec, req)
	case OpDelete:
		return e.applyDelete(ctx, tx, rec, req)
	default:
		return nil, syncerr.Newf(syncerr.CodeBadRequest, "unknown op %q", req.Op)
	}
}

func (e *Engine) checkBatch(rows []storage.Row) error {
	if len(rows) == 0 {
		return syncerr.New(syncerr.CodeBadRequest, "rows is required", nil)
	}
	if len(rows) > e.batchMax {
		return syncerr.New(syncerr.CodeBadRequest, "batch exceeds maximum", map[string]any{
			"constraint": "batchMaxCount",
			"max":        e.batchMax,
			"got":        len(rows),
		})
	}
	return nil
}

func (e *Engine) applyInsert(ctx context.Context, tx storage.Tx, rec *recorder, req *MutateRequest) (map[string]any, error) {
	if err := e.checkBatch(req.Rows.Items); err != nil {
		return nil, err
	}
	out := make([]storage.Row, 0, len(req.Rows.Items))
	for _, row := range req.Rows.Items {
		persisted, err := e.insertRow(ctx, tx, rec, req.Table, row)
		if err != nil {
			return nil, err
		}
		out = append(out, persisted)
	}
	return rowsBody(out, req.Rows.Single), nil
}

func (e *Engine) applyUpdate(ctx context.Context, tx storage.Tx, rec *recorder, req *MutateRequest) (map[string]any, error) {
	pk, err := canonicalPK(req.PK)
	if err != nil {
		return nil, err
	}
	if req.Set == nil {
		return nil, syncerr.New(syncerr.CodeBadRequest, "set is required", nil)
	}
	if err := e.validateSet(req.Table, req.Set); err != nil {
		return nil, err
	}
	updated, err := e.updateRow(ctx, tx, rec, req.Table, pk, req.Set, req.IfVersion)
	if err != nil {
		return nil, err
	}
	return map[string]any{"row": updated}, nil
}

func (e *Engine) applyUpsert(ctx context.Context, tx storage.Tx, rec *recorder, req *MutateRequest) (map[string]any, error) {
	if err := e.checkBatch(req.Rows.Items); err != nil {
		return nil, err
	}
	out := make([]storage.Row, 0, len(req.Rows.Items))
	for _, row := range req.Rows.Items {
		persisted, err := e.upsertRow(ctx, tx, rec, req.Table, row, req.Merge)
		if err != nil {
			return nil, err
		}
		out = append(out, persisted)
	}
	return rowsBody(out, req.Rows.Single), nil
}

func (e *Engine) applyDelete(ctx context.Context, tx storage.Tx, rec *recorder, req *MutateRequest) (map[string]any, error) {
	pk, err := canonicalPK(req.PK)
	if err != nil {
		return nil, err
	}
	if err := e.deleteRow(ctx, tx, rec, req.Table, pk); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// insertRow validates, stamps id/updatedAt/version, and persists one row.
func (e *Engine) insertRow(ctx context.Context, tx storage.Tx, rec *recorder, table string, row storage.Row) (storage.Row, error) {
	if err := e.validateInsert(table, row); err != nil {
		return nil, err
	}
	stamped := syncx.CloneMap(row)
	id, _ := e.ids.StampRowID(stamped["id"])
	stamped["id"] = id
	stamped["updatedAt"] = e.now().UnixMilli()
	stamped["version"] = int64(1)

	persisted, err := tx.Insert(ctx, table, stamped)
	if err != nil {
		return nil, syncerr.Wrap(err, syncerr.CodeInternal, "insert failed")
	}
	rec.recordWrite(table, id, 1, persisted)
	return persisted, nil
}

// updateRow reads the current version inside the transaction, then writes
// set plus the stamps under the caller's CAS guard. Caller-supplied id,
// version, and updatedAt in set are discarded; the executor owns the stamps.
func (e *Engine) updateRow(ctx context.Context, tx storage.Tx, rec *recorder, table, pk string, set storage.Row, ifVersion *int64) (storage.Row, error) {
	cur, ok, err := tx.SelectByPk(ctx, table, pk, nil)
	if err != nil {
		return nil, syncerr.Wrap(err, syncerr.CodeInternal, "select failed")
	}
	if !ok {
		return nil, syncerr.New(syncerr.CodeNotFound, "row not found", map[string]any{"pk": pk})
	}
	var current int64
	if v, ok := syncx.AsInt64(cur["version"]); ok {
		current = v
	}
	next := current + 1

	write := syncx.CloneMap(set)
	delete(write, "id")
	delete(write, "version")
	delete(write, "updatedAt")
	write["updatedAt"] = e.now().UnixMilli()
	write["version"] = next

	updated, err := tx.UpdateByPk(ctx, table, pk, write, storage.UpdateOpts{IfVersion: ifVersion})
	if err != nil {
		return nil, syncerr.Wrap(err, syncerr.CodeInternal, "update failed")
	}
	rec.recordWrite(table, pk, next, write)
	return updated, nil
}

// upsertRow looks the row up by id. Absent inserts; present updates under the
// merge restriction. An explicitly empty merge means insert-only, so finding
// an existing row is a conflict.
func (e *Engine) upsertRow(ctx context.Context, tx storage.Tx, rec *recorder, table string, row storage.Row, merge []string) (storage.Row, error) {
	id, generated := e.ids.StampRowID(row["id"])
	if !generated {
		if _, ok, err := tx.SelectByPk(ctx, table, id, nil); err != nil {
			return nil, syncerr.Wrap(err, syncerr.CodeInternal, "select failed")
		} else if ok {
			if merge != nil && len(merge) == 0 {
				return nil, syncerr.New(syncerr.CodeConflict, "row already exists", map[string]any{"pk": id})
			}
			set := mergeSet(row, merge)
			if err := e.validateSet(table, set); err != nil {
				return nil, err
			}
			return e.updateRow(ctx, tx, rec, table, id, set, nil)
		}
	}
	return e.insertRow(ctx, tx, rec, table, row)
}

func (e *Engine) deleteRow(ctx context.Context, tx storage.Tx, rec *recorder, table, pk string) error {
	if err := tx.DeleteByPk(ctx, table, pk); err != nil {
		return syncerr.Wrap(err, syncerr.CodeInternal, "delete failed")
	}
	rec.recordDelete(table, pk)
	return nil
}

// mergeSet picks the fields an upsert-as-update writes. A nil merge takes
// every input field; the stamps and id are always the executor's to write.
func mergeSet(row storage.Row, merge []string) storage.Row {
	set := make(storage.Row)
	if merge == nil {
		for k, v := range row {
			set[k] = v
		}
	} else {
		for _, k := range merge {
			if v, ok := row[k]; ok {
				set[k] = v
			}
		}
	}
	delete(set, "id")
	delete(set, "version")
	delete(set, "updatedAt")
	return set
}

func rowsBody(rows []storage.Row, single bool) map[string]any {
	if single {
		return map[string]any{"row": rows[0]}
	}
	return map[string]any{"rows": rows}
}

func canonicalPK(v any) (string, error) {
	if v == nil {
		return "", syncerr.New(syncerr.CodeBadRequest, "pk is required", nil)
	}
	pk, err := syncx.CanonicalKey(v)
	if err != nil {
		return "", syncerr.Wrap(err, syncerr.CodeBadRequest, "invalid pk")
	}
	return pk, nil
}

// recorder accumulates what one transaction changed and folds it into a
// single frame at commit time. Later writes to the same pk win; a delete
// clears the version entry and leaves an empty diff.
type recorder struct {
	txID   string
	order  []string
	tables map[string]*tableChanges
}

type tableChanges struct {
	order    []string
	versions map[string]int64
	diffs    map[string]eventbus.Diff
}

func newRecorder(txID string) *recorder {
	return &recorder{txID: txID, tables: make(map[string]*tableChanges)}
}

func (r *recorder) table(name string) *tableChanges {
	tc, ok := r.tables[name]
	if !ok {
		tc = &tableChanges{
			versions: make(map[string]int64),
			diffs:    make(map[string]eventbus.Diff),
		}
		r.tables[name] = tc
		r.order = append(r.order, name)
	}
	return tc
}

func (tc *tableChanges) touch(pk string) {
	if _, ok := tc.diffs[pk]; !ok {
		tc.order = append(tc.order, pk)
	}
}

func (r *recorder) recordWrite(table, pk string, version int64, set storage.Row) {
	tc := r.table(table)
	tc.touch(pk)
	tc.versions[pk] = version
	tc.diffs[pk] = eventbus.Diff{Set: syncx.CloneMap(set)}
}

func (r *recorder) recordDelete(table, pk string) {
	tc := r.table(table)
	tc.touch(pk)
	delete(tc.versions, pk)
	tc.diffs[pk] = eventbus.Diff{}
}

func (r *recorder) frame() *eventbus.Frame {
	if len(r.order) == 0 {
		return nil
	}
	f := &eventbus.Frame{TxID: r.txID, Tables: make([]eventbus.TableChange, 0, len(r.order))}
	for _, name := range r.order {
		tc := r.tables[name]
		change := eventbus.TableChange{
			Name:  name,
			PKs:   append([]string(nil), tc.order...),
			Diffs: tc.diffs,
		}
		if len(tc.versions) > 0 {
			change.RowVersions = tc.versions
		}
		f.Tables = append(f.Tables, change)
	}
	return f
}
