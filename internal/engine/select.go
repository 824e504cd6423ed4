package engine

import (
	"context"
	"encoding/json"

	"github.com/erauner12/syncline/internal/storage"
	"github.com/erauner12/syncline/internal/syncerr"
	"github.com/erauner12/syncline/internal/syncx"
)

// SelectRequest reads rows by pk or as an ordered window. Where is accepted
// for wire compatibility but filtering happens client-side; the server honors
// pk, ordering, limit, and cursor only.
type SelectRequest struct {
	Table   string          `json:"table"`
	PK      any             `json:"pk"`
	Select  []string        `json:"select"`
	OrderBy syncx.OrderBy   `json:"orderBy"`
	Limit   int             `json:"limit"`
	Cursor  string          `json:"cursor"`
	Where   json.RawMessage `json:"where"`
}

// Select serves point lookups and keyset windows over committed state.
func (e *Engine) Select(ctx context.Context, req *SelectRequest) (map[string]any, error) {
	if req.Table == "" {
		return nil, syncerr.New(syncerr.CodeBadRequest, "table is required", nil)
	}

	if req.PK != nil {
		pk, err := canonicalPK(req.PK)
		if err != nil {
			return nil, err
		}
		row, ok, err := e.adapter.SelectByPk(ctx, req.Table, pk, req.Select)
		if err != nil {
			return nil, syncerr.Wrap(err, syncerr.CodeInternal, "select failed")
		}
		data := []storage.Row{}
		if ok {
			data = append(data, row)
		}
		return map[string]any{"data": data, "nextCursor": nil}, nil
	}

	w, err := e.adapter.SelectWindow(ctx, req.Table, storage.WindowQuery{
		Order:  req.OrderBy,
		Limit:  req.Limit,
		Cursor: req.Cursor,
		Fields: req.Select,
	})
	if err != nil {
		return nil, syncerr.Wrap(err, syncerr.CodeInternal, "select failed")
	}
	body := map[string]any{"data": w.Data}
	if w.NextCursor == "" {
		body["nextCursor"] = nil
	} else {
		body["nextCursor"] = w.NextCursor
	}
	return body, nil
}
