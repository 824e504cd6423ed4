package httpapi

import (
	"net/http"
	"time"

	"github.com/erauner12/syncline/internal/syncx"
)

// serverInfo describes the running instance and its limits so clients can
// discover capabilities without trial requests.
type serverInfo struct {
	Service       string         `json:"service"`
	Version       string         `json:"version,omitempty"`
	ServerTime    string         `json:"serverTime"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
	Limits        limitsInfo     `json:"limits"`
	Mutators      []string       `json:"mutators"`
	RateLimit     *rateLimitInfo `json:"rateLimit,omitempty"`
}

type limitsInfo struct {
	BatchMaxCount int   `json:"batchMaxCount"`
	BufferMs      int64 `json:"bufferMs"`
	BufferCap     int   `json:"bufferCap"`
	KeepaliveMs   int64 `json:"keepaliveMs"`
	SessionBuffer int   `json:"sessionBuffer"`
}

type rateLimitInfo struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

// Info handles GET /v1/info. Unauthenticated so clients can discover limits
// before configuring themselves.
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	ringLimits := s.ring.Limits()
	info := serverInfo{
		Service:       "syncline",
		Version:       s.cfg.Version,
		ServerTime:    syncx.RFC3339(syncx.NowMs()),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Limits: limitsInfo{
			BatchMaxCount: s.engine.BatchMax(),
			BufferMs:      ringLimits.BufferAge.Milliseconds(),
			BufferCap:     ringLimits.BufferCap,
			KeepaliveMs:   s.cfg.Keepalive.Milliseconds(),
			SessionBuffer: s.cfg.SessionBuffer,
		},
		Mutators: s.engine.MutatorNames(),
	}
	if s.cfg.RateRPS > 0 {
		info.RateLimit = &rateLimitInfo{RPS: s.cfg.RateRPS, Burst: s.cfg.RateBurst}
	}
	writeJSON(w, http.StatusOK, info)
}
