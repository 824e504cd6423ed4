package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/erauner12/syncline/internal/syncerr"
)

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_mutations_total",
		Help: "the number of mutation requests processed, by op and outcome",
	}, []string{"op", "outcome"})
	mutationDurations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_mutation_duration_seconds",
		Help:    "the time spent executing one mutation request",
		Buckets: prometheus.DefBuckets,
	})
	mutatorRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_mutator_runs_total",
		Help: "the number of named mutator invocations, by name and outcome",
	}, []string{"name", "outcome"})
	replaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_idempotent_replays_total",
		Help: "the number of responses served from the idempotency cache",
	})
)

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(syncerr.CodeOf(err))
}

func observeMutation(op string, err error, d time.Duration) {
	mutationsTotal.WithLabelValues(op, outcomeLabel(err)).Inc()
	mutationDurations.Observe(d.Seconds())
}

func observeMutator(name string, err error, d time.Duration) {
	mutatorRunsTotal.WithLabelValues(name, outcomeLabel(err)).Inc()
	mutationDurations.Observe(d.Seconds())
}
