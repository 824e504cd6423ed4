package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "the number of change frames appended to the ring",
	})
	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_ring_evictions_total",
		Help: "the number of frames pruned from the ring by age or capacity",
	})
	ringSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "events_ring_size",
		Help: "the number of frames currently held in the ring",
	})
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "events_subscribers",
		Help: "the number of live stream subscribers",
	})
	overflowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_subscriber_overflows_total",
		Help: "the number of subscribers severed for falling behind",
	})
)
