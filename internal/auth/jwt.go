package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Config holds identity extraction settings.
type Config struct {
	// HS256Secret enables Bearer token validation when non-empty.
	HS256Secret string
	// DevMode accepts the X-Debug-Sub header in place of a token.
	// DANGEROUS: only for local development.
	DevMode bool
}

// Middleware extracts caller identity from the request and attaches it to the
// context. Requests without credentials pass through anonymous; a presented
// token that fails validation is rejected with 401. No authorization decision
// is made here.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if cfg.DevMode {
		log.Warn().Msg("SECURITY WARNING: DevMode enabled - X-Debug-Sub header will bypass token validation")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := ""
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				tok = h[len("Bearer "):]
			}

			var caller Caller

			// Development mode: accept X-Debug-Sub only when no token present.
			if cfg.DevMode && tok == "" {
				if sub := r.Header.Get("X-Debug-Sub"); sub != "" {
					log.Debug().Str("sub", sub).Msg("using X-Debug-Sub header (dev mode)")
					caller = Caller{Subject: sub}
				}
			}

			if tok != "" && cfg.HS256Secret != "" {
				claims := jwt.MapClaims{}
				t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, jwt.ErrSignatureInvalid
					}
					return []byte(cfg.HS256Secret), nil
				})
				if err != nil || !t.Valid {
					log.Warn().Err(err).Msg("jwt validation failed")
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				sub, _ := claims["sub"].(string)
				caller = Caller{Subject: sub, Claims: claims}
			}

			if !caller.Anonymous() {
				r = r.WithContext(WithCaller(r.Context(), caller))
			}
			next.ServeHTTP(w, r)
		})
	}
}
