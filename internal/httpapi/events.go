package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/syncline/internal/eventbus"
	"github.com/erauner12/syncline/internal/syncerr"
)

// Events handles GET {base}/events: a long-lived SSE stream of change frames.
// The session replays the suffix after the client's last seen event id (or
// sends a recover marker when that id is gone), then stays attached for live
// frames and heartbeats until the client disconnects or the server shuts down.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, syncerr.New(syncerr.CodeInternal, "streaming not supported", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)

	// First bytes on the wire: proves the stream is open before any event.
	if err := writeKeepalive(w, flusher); err != nil {
		return
	}

	// Header wins over the query parameter when both are present.
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("since")
	}

	replay, sub := s.ring.Subscribe(lastEventID, s.cfg.SessionBuffer)
	for _, d := range replay {
		if err := writeDelivery(w, flusher, d); err != nil {
			s.ring.Unsubscribe(sub)
			return
		}
	}
	if sub == nil {
		// Ring already closed; the recover marker above is the whole stream.
		return
	}
	defer s.ring.Unsubscribe(sub)

	logger := log.Ctx(r.Context())
	logger.Debug().Str("lastEventId", lastEventID).Int("replayed", len(replay)).Msg("stream attached")

	ticker := time.NewTicker(s.cfg.Keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Msg("stream client disconnected")
			return
		case <-ticker.C:
			if err := writeKeepalive(w, flusher); err != nil {
				return
			}
		case d, open := <-sub.C():
			if !open {
				// Severed: overflow on this session, or server shutdown.
				// Either way the client must resync before trusting us.
				writeDelivery(w, flusher, eventbus.Recovery())
				if sub.Dropped() {
					logger.Warn().Msg("stream subscriber fell behind, severed")
				}
				return
			}
			if err := writeDelivery(w, flusher, d); err != nil {
				return
			}
		}
	}
}

// writeDelivery frames one message: an id line when the delivery has one, the
// event type, and the data line, terminated by a blank line.
func writeDelivery(w http.ResponseWriter, flusher http.Flusher, d eventbus.Delivery) error {
	if d.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", d.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", d.Event, d.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeKeepalive(w http.ResponseWriter, flusher http.Flusher) error {
	if _, err := fmt.Fprint(w, ":keepalive\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
