package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

// callerCapture runs the middleware and records what identity the inner
// handler observed.
func callerCapture(cfg Config, r *http.Request) (Caller, *httptest.ResponseRecorder) {
	var seen Caller
	h := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CallerFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return seen, rec
}

func TestMiddlewareValidToken(t *testing.T) {
	tok := signHS256(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)

	caller, rec := callerCapture(Config{HS256Secret: testSecret}, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if caller.Subject != "user-1" {
		t.Fatalf("subject = %q", caller.Subject)
	}
	if caller.Claims["sub"] != "user-1" {
		t.Fatalf("claims = %v", caller.Claims)
	}
}

func TestMiddlewareRejectsBadSignature(t *testing.T) {
	tok := signHS256(t, "some-other-secret", jwt.MapClaims{"sub": "user-1"})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)

	_, rec := callerCapture(Config{HS256Secret: testSecret}, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	tok := signHS256(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)

	_, rec := callerCapture(Config{HS256Secret: testSecret}, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareRejectsWrongAlgorithm(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)

	_, rec := callerCapture(Config{HS256Secret: testSecret}, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareAnonymousPassesThrough(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	caller, rec := callerCapture(Config{HS256Secret: testSecret}, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !caller.Anonymous() {
		t.Fatalf("caller = %+v, want anonymous", caller)
	}
}

func TestMiddlewareDebugHeader(t *testing.T) {
	t.Run("honored in dev mode", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Debug-Sub", "dev-user")
		caller, rec := callerCapture(Config{DevMode: true}, r)
		if rec.Code != http.StatusOK || caller.Subject != "dev-user" {
			t.Fatalf("status = %d, caller = %+v", rec.Code, caller)
		}
	})

	t.Run("ignored in production", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Debug-Sub", "dev-user")
		caller, rec := callerCapture(Config{HS256Secret: testSecret}, r)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !caller.Anonymous() {
			t.Fatalf("caller = %+v, want anonymous", caller)
		}
	})

	t.Run("real token outranks debug header", func(t *testing.T) {
		tok := signHS256(t, testSecret, jwt.MapClaims{
			"sub": "real-user",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		r.Header.Set("X-Debug-Sub", "dev-user")
		caller, _ := callerCapture(Config{HS256Secret: testSecret, DevMode: true}, r)
		if caller.Subject != "real-user" {
			t.Fatalf("subject = %q", caller.Subject)
		}
	})
}

func TestWithCallerRoundTrip(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithCaller(r.Context(), Caller{Subject: "injected"})
	if got := CallerFrom(ctx); got.Subject != "injected" {
		t.Fatalf("caller = %+v", got)
	}
	if got := CallerFrom(r.Context()); !got.Anonymous() {
		t.Fatalf("caller = %+v, want anonymous", got)
	}
}
