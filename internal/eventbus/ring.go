package eventbus

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/erauner12/syncline/internal/syncx"
)

// Event names carried on the stream.
const (
	EventMutation = "mutation"
	EventRecover  = "recover"
)

var recoverData = []byte("{}")

// Delivery is one stream-ready message. Synthetic recover markers carry no ID.
type Delivery struct {
	ID    string
	Event string
	Data  []byte
}

// Recovery returns the marker that tells a client its resume position is gone
// and a full refetch is required.
func Recovery() Delivery {
	return Delivery{Event: EventRecover, Data: recoverData}
}

// Config bounds the ring. Zero values take the defaults.
type Config struct {
	// BufferAge is how long an event stays replayable. Default 60s.
	BufferAge time.Duration
	// BufferCap is the maximum retained event count. Default 10000.
	BufferCap int
}

// Ring is the bounded event buffer. Every mutating method holds mu; because
// event ids are allocated under the same lock that appends and fans out,
// buffer order, id order, and delivery order always agree.
type Ring struct {
	maxAge   time.Duration
	maxCount int
	now      func() time.Time
	ids      *syncx.IDGen

	mu     sync.Mutex
	buf    []entry
	subs   map[*Subscriber]struct{}
	closed bool
}

type entry struct {
	id   string
	at   time.Time
	data []byte
}

// NewRing builds a ring with the wall clock.
func NewRing(cfg Config) *Ring {
	return NewRingAt(cfg, time.Now)
}

// NewRingAt injects the clock.
func NewRingAt(cfg Config, now func() time.Time) *Ring {
	if cfg.BufferAge <= 0 {
		cfg.BufferAge = 60 * time.Second
	}
	if cfg.BufferCap <= 0 {
		cfg.BufferCap = 10000
	}
	return &Ring{
		maxAge:   cfg.BufferAge,
		maxCount: cfg.BufferCap,
		now:      now,
		ids:      syncx.NewIDGenAt(now),
		subs:     make(map[*Subscriber]struct{}),
	}
}

// Subscriber receives deliveries on a bounded channel. The ring is the only
// sender and the only closer of the channel.
type Subscriber struct {
	ch      chan Delivery
	dropped bool // written before close(ch); read only after the channel closes
}

// C is the delivery channel. It closes when the subscriber is severed.
func (s *Subscriber) C() <-chan Delivery { return s.ch }

// Dropped reports whether the ring severed this subscriber for falling
// behind. Meaningful only after C() has closed.
func (s *Subscriber) Dropped() bool { return s.dropped }

// Append stamps the frame with its event id and timestamp, buffers the
// serialized form, and fans it out to live subscribers without blocking.
// Returns the allocated event id.
func (r *Ring) Append(f *Frame) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	f.EventID = r.ids.Next()
	f.At = now.UnixMilli()
	data, err := json.Marshal(f)
	if err != nil {
		return f.EventID, err
	}
	if r.closed {
		return f.EventID, nil
	}
	r.buf = append(r.buf, entry{id: f.EventID, at: now, data: data})
	r.pruneLocked(now)

	d := Delivery{ID: f.EventID, Event: EventMutation, Data: data}
	for sub := range r.subs {
		r.offerLocked(sub, d)
	}
	publishedTotal.Inc()
	ringSize.Set(float64(len(r.buf)))
	return f.EventID, nil
}

// Subscribe registers a subscriber and atomically snapshots the replay slice
// for lastEventID, so events appended afterwards can be neither missed nor
// duplicated. Empty lastEventID means no replay. An id no longer buffered
// yields a single recover marker. A nil subscriber means the ring is closed.
func (r *Ring) Subscribe(lastEventID string, bufSize int) ([]Delivery, *Subscriber) {
	if bufSize < 1 {
		bufSize = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return []Delivery{Recovery()}, nil
	}

	var replay []Delivery
	if lastEventID != "" {
		// Ids are allocated monotonically, so the buffer is sorted.
		i := sort.Search(len(r.buf), func(i int) bool { return r.buf[i].id >= lastEventID })
		if i < len(r.buf) && r.buf[i].id == lastEventID {
			for _, e := range r.buf[i+1:] {
				replay = append(replay, Delivery{ID: e.id, Event: EventMutation, Data: e.data})
			}
		} else {
			replay = []Delivery{Recovery()}
		}
	}

	sub := &Subscriber{ch: make(chan Delivery, bufSize)}
	r.subs[sub] = struct{}{}
	subscribersGauge.Set(float64(len(r.subs)))
	return replay, sub
}

// Unsubscribe severs the subscriber. Safe to call after the ring already
// dropped or closed it.
func (r *Ring) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub]; !ok {
		return
	}
	delete(r.subs, sub)
	close(sub.ch)
	subscribersGauge.Set(float64(len(r.subs)))
}

// Clear drops every buffered event and pushes a recover marker to live
// subscribers. Resumes against pre-clear ids will miss and recover too.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = nil
	ringSize.Set(0)
	d := Recovery()
	for sub := range r.subs {
		r.offerLocked(sub, d)
	}
}

// Close severs all subscribers and stops buffering. Appends after Close still
// allocate ids but deliver nowhere.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for sub := range r.subs {
		close(sub.ch)
	}
	r.subs = make(map[*Subscriber]struct{})
	r.buf = nil
	subscribersGauge.Set(0)
	ringSize.Set(0)
}

// Limits reports the normalized retention bounds the ring was built with.
func (r *Ring) Limits() Config {
	return Config{BufferAge: r.maxAge, BufferCap: r.maxCount}
}

// Stats is a point-in-time snapshot for the state endpoint.
type Stats struct {
	Size        int    `json:"size"`
	OldestID    string `json:"oldestId,omitempty"`
	NewestID    string `json:"newestId,omitempty"`
	Subscribers int    `json:"subscribers"`
}

func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Size: len(r.buf), Subscribers: len(r.subs)}
	if len(r.buf) > 0 {
		s.OldestID = r.buf[0].id
		s.NewestID = r.buf[len(r.buf)-1].id
	}
	return s
}

func (r *Ring) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.maxAge)
	dropped := 0
	for len(r.buf) > 0 && (len(r.buf) > r.maxCount || r.buf[0].at.Before(cutoff)) {
		r.buf = r.buf[1:]
		dropped++
	}
	if dropped > 0 {
		evictionsTotal.Add(float64(dropped))
	}
}

// offerLocked delivers without blocking. A full channel severs the subscriber:
// dropped is set before the close so the reader can tell overflow from a
// normal shutdown once it drains the channel.
func (r *Ring) offerLocked(sub *Subscriber, d Delivery) {
	select {
	case sub.ch <- d:
	default:
		sub.dropped = true
		delete(r.subs, sub)
		close(sub.ch)
		overflowsTotal.Inc()
		subscribersGauge.Set(float64(len(r.subs)))
	}
}
