package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/syncline/internal/syncerr"
)

// errorEnvelope is the wire shape for every surfaced failure.
type errorEnvelope struct {
	Code      syncerr.Code   `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError maps err onto the error envelope and its HTTP status. Uncoded
// errors surface as INTERNAL with the message preserved and the stack hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	env := errorEnvelope{
		Code:      syncerr.CodeInternal,
		Message:   err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	}
	if se, ok := syncerr.As(err); ok {
		env.Code = se.Code
		env.Message = se.Message
		env.Details = se.Details
	}

	status := syncerr.HTTPStatus(env.Code)
	if status >= http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		log.Ctx(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	}
	writeJSON(w, status, env)
}

// badRequest is a shortcut for transport-level decode failures.
func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, syncerr.New(syncerr.CodeBadRequest, msg, nil))
}
