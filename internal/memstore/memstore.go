// Package memstore is the in-memory storage adapter. It keeps committed rows
// and the version side table in plain maps guarded by a RWMutex, and serializes
// writers with a single-transaction lock so commits apply atomically.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/erauner12/syncline/internal/storage"
	"github.com/erauner12/syncline/internal/syncerr"
	"github.com/erauner12/syncline/internal/syncx"
)

// Store implements storage.Adapter over process memory.
type Store struct {
	txMu sync.Mutex // held for the lifetime of an open transaction

	mu       sync.RWMutex
	tables   map[string]map[string]storage.Row
	versions map[string]map[string]int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tables:   make(map[string]map[string]storage.Row),
		versions: make(map[string]map[string]int64),
	}
}

// EnsureMeta is a no-op for the memory adapter; the side table always exists.
func (s *Store) EnsureMeta(ctx context.Context) error { return nil }

// Wipe discards every table and version entry. It waits for any open
// transaction to finish first.
func (s *Store) Wipe(ctx context.Context) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]map[string]storage.Row)
	s.versions = make(map[string]map[string]int64)
	return nil
}

// SelectByPk reads committed state.
func (s *Store) SelectByPk(ctx context.Context, table, pk string, fields []string) (storage.Row, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tables[table][pk]
	if !ok {
		return nil, false, nil
	}
	return project(syncx.CloneMap(row), fields), true, nil
}

// SelectWindow returns an ordered page of committed rows with keyset
// pagination. The id ASC tiebreak always applies last, so equal sort keys
// never produce duplicate or skipped rows across pages.
func (s *Store) SelectWindow(ctx context.Context, table string, q storage.WindowQuery) (storage.Window, error) {
	order := q.Order
	if len(order) == 0 {
		order = syncx.DefaultOrder()
	}
	limit := clampLimit(q.Limit)

	var pos *syncx.Position
	if q.Cursor != "" {
		if c, ok := syncx.DecodeCursor(q.Cursor); ok && c.Table == table {
			p := c.Last
			pos = &p
			if !c.Order.Equal(order) {
				// Ordering changed since the cursor was issued;
				// degrade to id ascending after the last seen id.
				order = syncx.OrderBy{{Field: "id"}}
			}
		}
	}

	s.mu.RLock()
	rows := make([]storage.Row, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		rows = append(rows, row)
	}
	s.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		return cmpRows(rows[i], rows[j], order) < 0
	})
	if pos != nil {
		kept := rows[:0]
		for _, row := range rows {
			if cmpToPosition(row, *pos, order) > 0 {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	more := len(rows) > limit
	if more {
		rows = rows[:limit]
	}

	out := storage.Window{Data: make([]storage.Row, 0, len(rows))}
	for _, row := range rows {
		out.Data = append(out.Data, project(syncx.CloneMap(row), q.Fields))
	}
	if more && len(rows) > 0 {
		last := rows[len(rows)-1]
		id, _ := syncx.GetString(last, "id")
		c := syncx.Cursor{Table: table, Order: order, Last: syncx.Position{
			Keys: make(map[string]any, len(order)),
			ID:   id,
		}}
		for _, term := range order {
			c.Last.Keys[term.Field] = last[term.Field]
		}
		out.NextCursor = syncx.EncodeCursor(c)
	}
	return out, nil
}

// Begin opens the single writer transaction. The returned Tx holds the writer
// lock until Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	s.txMu.Lock()
	return &memTx{store: s, pending: make(map[string]map[string]pendingRow)}, nil
}

// pendingRow is a transaction-local overwrite; deleted marks a tombstone.
type pendingRow struct {
	row     storage.Row
	deleted bool
}

type memTx struct {
	store   *Store
	pending map[string]map[string]pendingRow
	done    bool
}

func (tx *memTx) stage(table, pk string, p pendingRow) {
	t := tx.pending[table]
	if t == nil {
		t = make(map[string]pendingRow)
		tx.pending[table] = t
	}
	t[pk] = p
}

// lookup reads through the overlay, then committed state.
func (tx *memTx) lookup(table, pk string) (storage.Row, bool) {
	if p, ok := tx.pending[table][pk]; ok {
		if p.deleted {
			return nil, false
		}
		return p.row, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	row, ok := tx.store.tables[table][pk]
	return row, ok
}

func (tx *memTx) version(table, pk string) int64 {
	if p, ok := tx.pending[table][pk]; ok && !p.deleted {
		if v, ok := syncx.AsInt64(p.row["version"]); ok {
			return v
		}
		return 1
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.versions[table][pk]
}

func (tx *memTx) Insert(ctx context.Context, table string, row storage.Row) (storage.Row, error) {
	if tx.done {
		return nil, syncerr.New(syncerr.CodeInternal, "transaction already closed", nil)
	}
	pk, ok := syncx.GetString(row, "id")
	if !ok || pk == "" {
		return nil, syncerr.New(syncerr.CodeInternal, "insert row missing id", nil)
	}
	if _, exists := tx.lookup(table, pk); exists {
		return nil, syncerr.Newf(syncerr.CodeConflict, "row %q already exists in %q", pk, table)
	}
	stored := syncx.CloneMap(row)
	tx.stage(table, pk, pendingRow{row: stored})
	return syncx.CloneMap(stored), nil
}

func (tx *memTx) UpdateByPk(ctx context.Context, table, pk string, set storage.Row, opts storage.UpdateOpts) (storage.Row, error) {
	if tx.done {
		return nil, syncerr.New(syncerr.CodeInternal, "transaction already closed", nil)
	}
	cur, ok := tx.lookup(table, pk)
	if !ok {
		return nil, syncerr.Newf(syncerr.CodeNotFound, "row %q not found in %q", pk, table)
	}
	if opts.IfVersion != nil {
		actual := tx.version(table, pk)
		if actual != *opts.IfVersion {
			return nil, syncerr.New(syncerr.CodeConflict, "version mismatch", map[string]any{
				"expectedVersion": *opts.IfVersion,
				"actualVersion":   actual,
			})
		}
	}
	merged := syncx.CloneMap(cur)
	for k, v := range syncx.CloneMap(set) {
		merged[k] = v
	}
	merged["id"] = pk
	tx.stage(table, pk, pendingRow{row: merged})
	return syncx.CloneMap(merged), nil
}

func (tx *memTx) DeleteByPk(ctx context.Context, table, pk string) error {
	if tx.done {
		return syncerr.New(syncerr.CodeInternal, "transaction already closed", nil)
	}
	if _, ok := tx.lookup(table, pk); !ok {
		return syncerr.Newf(syncerr.CodeNotFound, "row %q not found in %q", pk, table)
	}
	tx.stage(table, pk, pendingRow{deleted: true})
	return nil
}

func (tx *memTx) SelectByPk(ctx context.Context, table, pk string, fields []string) (storage.Row, bool, error) {
	row, ok := tx.lookup(table, pk)
	if !ok {
		return nil, false, nil
	}
	return project(syncx.CloneMap(row), fields), true, nil
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	s := tx.store
	s.mu.Lock()
	for table, rows := range tx.pending {
		t := s.tables[table]
		if t == nil {
			t = make(map[string]storage.Row)
			s.tables[table] = t
		}
		vt := s.versions[table]
		if vt == nil {
			vt = make(map[string]int64)
			s.versions[table] = vt
		}
		for pk, p := range rows {
			if p.deleted {
				delete(t, pk)
				delete(vt, pk)
				continue
			}
			t[pk] = p.row
			if v, ok := syncx.AsInt64(p.row["version"]); ok {
				vt[pk] = v
			} else {
				vt[pk] = 1
			}
		}
	}
	s.mu.Unlock()
	s.txMu.Unlock()
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.pending = nil
	tx.store.txMu.Unlock()
	return nil
}

func clampLimit(n int) int {
	switch {
	case n == 0:
		return 100
	case n < 1:
		return 1
	case n > 1000:
		return 1000
	}
	return n
}

// project trims row to the requested fields. id is always retained so every
// returned row stays addressable.
func project(row storage.Row, fields []string) storage.Row {
	if len(fields) == 0 {
		return row
	}
	out := make(storage.Row, len(fields)+1)
	if id, ok := row["id"]; ok {
		out["id"] = id
	}
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

// cmpRows orders two rows by the sort terms, then id ascending.
func cmpRows(a, b storage.Row, order syncx.OrderBy) int {
	for _, term := range order {
		c := cmpValues(a[term.Field], b[term.Field])
		if term.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	aid, _ := syncx.GetString(a, "id")
	bid, _ := syncx.GetString(b, "id")
	return strings.Compare(aid, bid)
}

// cmpToPosition compares a row against a cursor position in the same total
// order as cmpRows. Rows strictly after the position belong to the next page.
func cmpToPosition(row storage.Row, pos syncx.Position, order syncx.OrderBy) int {
	for _, term := range order {
		c := cmpValues(row[term.Field], pos.Keys[term.Field])
		if term.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	id, _ := syncx.GetString(row, "id")
	return strings.Compare(id, pos.ID)
}

// cmpValues imposes a total order across JSON scalar kinds: nil, then bools,
// then numbers, then strings. Numbers compare numerically regardless of the
// concrete Go type they decoded into.
func cmpValues(a, b any) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		av, bv := a.(bool), b.(bool)
		switch {
		case av == bv:
			return 0
		case bv:
			return -1
		}
		return 1
	case 2:
		av, _ := syncx.AsFloat64(a)
		bv, _ := syncx.AsFloat64(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	default:
		as, _ := a.(string)
		bs, _ := b.(string)
		return strings.Compare(as, bs)
	}
}

func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	default:
		if _, ok := syncx.AsFloat64(v); ok {
			return 2
		}
		return 3
	}
}
