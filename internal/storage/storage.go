// Package storage defines the adapter contract the mutation executor depends
// on. Implementations provide transactional writes, pk lookup, ordered keyset
// windows, and a version side table; the executor never reaches around this
// interface.
package storage

import (
	"context"

	"github.com/erauner12/syncline/internal/syncx"
)

// Row is an application-defined row. The pk field is "id" (canonical string);
// the executor stamps "updatedAt" (int64 ms) and "version" (int64 >= 1) on
// every write. The body is otherwise opaque to the core.
type Row = map[string]any

// UpdateOpts carries the optional CAS guard for UpdateByPk. When IfVersion is
// set the update fails with CONFLICT unless the stored version equals it.
type UpdateOpts struct {
	IfVersion *int64
}

// WindowQuery selects an ordered page of rows.
type WindowQuery struct {
	// Order lists the sort keys; empty means the default ordering
	// (updatedAt desc). The id ASC tiebreak is always applied last.
	Order syncx.OrderBy
	// Limit is clamped to [1, 1000]; zero means the default of 100.
	Limit int
	// Cursor is the opaque position from a previous Window. Malformed
	// cursors are ignored; a cursor issued under a different ordering
	// degrades to id-ASC strictly after its last id.
	Cursor string
	// Fields optionally projects the returned rows; id is always kept.
	Fields []string
}

// Window is one page of an ordered read.
type Window struct {
	Data []Row `json:"data"`
	// NextCursor is empty when the window is exhausted.
	NextCursor string `json:"nextCursor"`
}

// Reader is the non-transactional read surface over committed state.
type Reader interface {
	// SelectByPk returns the row stored under pk, or ok=false when absent.
	// fields optionally projects the row; id is always kept.
	SelectByPk(ctx context.Context, table, pk string, fields []string) (Row, bool, error)

	// SelectWindow returns an ordered page with keyset pagination.
	SelectWindow(ctx context.Context, table string, q WindowQuery) (Window, error)
}

// Adapter is the storage contract. Implementations must support at least one
// active transaction per executor invocation; nested begin is not required.
type Adapter interface {
	Reader

	// EnsureMeta performs one-time setup of the version side table.
	EnsureMeta(ctx context.Context) error

	// Begin opens a transaction. Callers must resolve it with Commit or
	// Rollback; Rollback after Commit is a no-op.
	Begin(ctx context.Context) (Tx, error)
}

// Wiper is an optional adapter capability: drop every row and version entry.
// Only the dev-mode wipe endpoint uses it.
type Wiper interface {
	Wipe(ctx context.Context) error
}

// Tx is an open transaction. Reads observe the transaction's own uncommitted
// writes. Every failure is reported through the shared error taxonomy:
// CONFLICT for pk collisions and version mismatches, NOT_FOUND for missing
// rows, INTERNAL otherwise.
type Tx interface {
	// Insert persists a new row and returns the stored shape. A pk
	// collision is a CONFLICT.
	Insert(ctx context.Context, table string, row Row) (Row, error)

	// UpdateByPk merges set into the stored row and returns the updated
	// shape. Absent row is NOT_FOUND; an IfVersion mismatch is CONFLICT
	// with expectedVersion/actualVersion details.
	UpdateByPk(ctx context.Context, table, pk string, set Row, opts UpdateOpts) (Row, error)

	// DeleteByPk removes the row and its version entry. Absent is
	// NOT_FOUND.
	DeleteByPk(ctx context.Context, table, pk string) error

	// SelectByPk reads through the transaction, observing its writes.
	SelectByPk(ctx context.Context, table, pk string, fields []string) (Row, bool, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
