// Package eventbus buffers committed change frames in a bounded in-memory ring
// and fans them out to live stream subscribers. The ring is the source of
// truth for event ordering and for resume decisions.
package eventbus

// Frame describes everything one committed transaction changed. A transaction
// touching several tables still produces exactly one frame.
type Frame struct {
	EventID string        `json:"eventId"`
	TxID    string        `json:"txId"`
	At      int64         `json:"at"`
	Tables  []TableChange `json:"tables"`
}

// TableChange lists the touched pks of one table. Deleted pks appear in PKs
// with an empty diff and no rowVersions entry.
type TableChange struct {
	Name        string           `json:"name"`
	PKs         []string         `json:"pks"`
	RowVersions map[string]int64 `json:"rowVersions,omitempty"`
	Diffs       map[string]Diff  `json:"diffs,omitempty"`
}

// Diff carries the written fields of one row. Unset is reserved for explicit
// field removal; writes today only populate Set.
type Diff struct {
	Set   map[string]any `json:"set,omitempty"`
	Unset []string       `json:"unset,omitempty"`
}
