package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/syncline/internal/engine"
)

// Mutate handles POST {base}/mutate: one discriminated op per request, the
// whole batch inside one transaction.
func (s *Server) Mutate(w http.ResponseWriter, r *http.Request) {
	var req engine.MutateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	req.ClientOpID = clientOpID(r, req.ClientOpID)

	body, err := s.engine.Mutate(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Ctx(r.Context()).Debug().Str("op", req.Op).Str("table", req.Table).Msg("mutation committed")
	writeJSON(w, http.StatusOK, body)
}

// Select handles POST {base}/select: a pk point lookup or an ordered keyset
// window. A where clause is accepted for wire compatibility and ignored.
func (s *Server) Select(w http.ResponseWriter, r *http.Request) {
	var req engine.SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}

	body, err := s.engine.Select(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type mutatorRequest struct {
	Args       map[string]any `json:"args"`
	ClientOpID string         `json:"clientOpId"`
}

// RunMutator handles POST {base}/mutators/{name}.
func (s *Server) RunMutator(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req mutatorRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, r, "invalid request body")
			return
		}
	}

	body, err := s.engine.RunMutator(r.Context(), name, req.Args, clientOpID(r, req.ClientOpID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Ctx(r.Context()).Debug().Str("mutator", name).Msg("mutator committed")
	writeJSON(w, http.StatusOK, body)
}
