package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/syncline/internal/storage"
	"github.com/erauner12/syncline/internal/syncerr"
)

type wipeRequest struct {
	Confirm string `json:"confirm"` // must be "WIPE"
}

// Wipe handles POST /v1/admin/wipe. Dev mode only; the route is not even
// mounted otherwise. Drops every row from the adapter and clears the ring,
// which pushes a recover marker to all attached sessions: continuity is gone,
// every client must resnapshot.
func (s *Server) Wipe(w http.ResponseWriter, r *http.Request) {
	var req wipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	if req.Confirm != "WIPE" {
		badRequest(w, r, `confirmation required: send {"confirm":"WIPE"}`)
		return
	}

	wiper, ok := s.store.(storage.Wiper)
	if !ok {
		writeError(w, r, syncerr.New(syncerr.CodeInternal, "adapter does not support wipe", nil))
		return
	}
	if err := wiper.Wipe(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	s.ring.Clear()

	log.Ctx(r.Context()).Warn().Msg("all data wiped")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
