package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/syncline/internal/auth"
	"github.com/erauner12/syncline/internal/db"
	"github.com/erauner12/syncline/internal/engine"
	"github.com/erauner12/syncline/internal/eventbus"
	"github.com/erauner12/syncline/internal/httpapi"
	"github.com/erauner12/syncline/internal/idempotency"
	"github.com/erauner12/syncline/internal/memstore"
)

// version is stamped by the build; "dev" otherwise.
var version = "dev"

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatal().Str("key", k).Str("value", v).Msg("invalid integer in environment")
	}
	return n
}

func envMs(k string, def time.Duration) time.Duration {
	return time.Duration(envInt(k, int(def.Milliseconds()))) * time.Millisecond
}

func envFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatal().Str("key", k).Str("value", v).Msg("invalid number in environment")
	}
	return f
}

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.With().Str("service", "syncline").Logger()

	devMode := env("ENV", "development") == "development"
	if devMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	idemTTL := envMs("SYNC_IDEM_TTL_MS", 10*time.Minute)

	// The idempotency store is shared across replicas when Postgres is
	// configured; otherwise replay protection is per-process.
	var idem idempotency.Store
	if pgURL := env("DATABASE_URL", ""); pgURL != "" {
		pool, err := db.Open(ctx, pgURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()

		pg := idempotency.NewPG(pool, idemTTL)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure idempotency schema")
		}
		idem = pg
		log.Info().Msg("idempotency backed by postgres")
	} else {
		idem = idempotency.NewMemory(idemTTL)
	}

	store := memstore.New()
	if err := store.EnsureMeta(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare storage")
	}

	ring := eventbus.NewRing(eventbus.Config{
		BufferAge: envMs("SYNC_BUFFER_MS", 60*time.Second),
		BufferCap: envInt("SYNC_BUFFER_CAP", 10000),
	})

	eng := engine.New(engine.Config{
		Adapter:     store,
		Ring:        ring,
		Idempotency: idem,
		BatchMax:    envInt("SYNC_BATCH_MAX", engine.DefaultBatchMax),
	})

	srv := httpapi.New(eng, ring, store, httpapi.Config{
		BasePath:      env("SYNC_BASE_PATH", "/v1/sync"),
		Keepalive:     envMs("SYNC_KEEPALIVE_MS", 15*time.Second),
		SessionBuffer: envInt("SYNC_SESSION_BUFFER", 64),
		DevMode:       devMode,
		Auth: auth.Config{
			HS256Secret: env("SYNC_JWT_SECRET", ""),
			DevMode:     devMode,
		},
		RateRPS:   envFloat("SYNC_RATE_RPS", 0),
		RateBurst: envInt("SYNC_RATE_BURST", 0),
		Version:   version,
	})

	addr := ":" + env("PORT", "8080")
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Routes(),
		// No ReadTimeout/WriteTimeout: the events stream is a long-lived
		// response and mutation bodies are small. Header reads stay bounded.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Stop intake, drain in-flight transactions, then sever the stream
	// sessions with their terminal recover marker.
	eng.Close()

	log.Info().Msg("server stopped")
}
