package syncx

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Cursor is an opaque keyset-pagination position: the table and ordering it
// was issued for, plus the last row's sort-key values and id. The encoded
// form is base64 over JSON; callers must treat it as a black box.
type Cursor struct {
	Table string   `json:"table"`
	Order OrderBy  `json:"orderBy"`
	Last  Position `json:"last"`
}

// Position identifies the last row of a page: the values of its orderBy
// fields keyed by field name, and its id for the ASC tiebreak.
type Position struct {
	Keys map[string]any `json:"keys"`
	ID   string         `json:"id"`
}

// EncodeCursor returns the opaque string form of c, or "" for a cursor with
// no position.
func EncodeCursor(c Cursor) string {
	if c.Last.ID == "" {
		return ""
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque cursor string. Malformed or truncated input
// is a soft failure: the second return is false and callers proceed as if no
// cursor was sent.
func DecodeCursor(s string) (Cursor, bool) {
	if s == "" {
		return Cursor{}, false
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, false
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, false
	}
	if c.Table == "" || c.Last.ID == "" {
		return Cursor{}, false
	}
	return c, true
}

// RFC3339 converts Unix milliseconds to an RFC3339 timestamp string.
func RFC3339(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// NowMs returns the current Unix milliseconds timestamp (UTC).
func NowMs() int64 {
	return time.Now().UTC().UnixMilli()
}
