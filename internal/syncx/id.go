package syncx

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGen produces lexicographically sortable ids that are strictly monotonic
// within a single process: a wall-clock millisecond prefix with monotonic
// entropy breaking ties inside the same millisecond. Used for event ids,
// transaction ids, and as the fallback row id generator.
type IDGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMs  uint64
	now     func() time.Time
}

// NewIDGen creates a generator backed by crypto/rand entropy.
func NewIDGen() *IDGen {
	return NewIDGenAt(time.Now)
}

// NewIDGenAt creates a generator with an injected clock.
func NewIDGenAt(now func() time.Time) *IDGen {
	return &IDGen{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     now,
	}
}

// Next returns a fresh id strictly greater than every id this generator has
// returned before, even if the wall clock steps backwards.
func (g *IDGen) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(g.now())
	if ms < g.lastMs {
		// Clock stepped back; keep issuing under the last millisecond so the
		// monotonic entropy preserves ordering.
		ms = g.lastMs
	}

	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		// Entropy overflow within one millisecond. Move to the next
		// millisecond with fresh entropy; still strictly greater.
		ms++
		g.entropy = ulid.Monotonic(rand.Reader, 0)
		id = ulid.MustNew(ms, g.entropy)
	}
	g.lastMs = ms
	return id.String()
}

// IsID reports whether s is a well-formed generated id.
func IsID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// StampRowID picks the id a row is persisted under. A caller-provided id is
// preserved when it is usable as a primary key (a generated id, a scalar
// token, a number, or a composite map canonicalized via CanonicalKey);
// anything else is replaced with a fresh generated id. The second return
// reports whether a fresh id was generated.
func (g *IDGen) StampRowID(provided any) (string, bool) {
	if provided == nil {
		return g.Next(), true
	}
	if s, err := CanonicalKey(provided); err == nil {
		return s, false
	}
	return g.Next(), true
}
