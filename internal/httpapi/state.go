package httpapi

import (
	"net/http"
	"time"

	"github.com/erauner12/syncline/internal/eventbus"
	"github.com/erauner12/syncline/internal/syncx"
)

// stateResponse is a point-in-time snapshot of the live pipeline: what the
// ring retains, who is attached, and the server clock for drift checks.
type stateResponse struct {
	Ring          eventbus.Stats `json:"ring"`
	Now           int64          `json:"now"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
}

// State handles GET /v1/state. Clients use it to decide whether a resume
// attempt can possibly succeed (their last event id against oldestId) without
// opening a stream.
func (s *Server) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		Ring:          s.ring.Stats(),
		Now:           syncx.NowMs(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}
