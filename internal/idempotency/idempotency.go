// Package idempotency stores committed responses keyed by client operation id
// so replays return the original bytes instead of re-executing. Entries expire
// after a TTL; expired entries are reaped lazily on access.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Store is the replay cache contract. Set never overwrites: the first response
// recorded under a key wins for the rest of its TTL.
type Store interface {
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, response []byte) error
}

type entry struct {
	body      []byte
	expiresAt time.Time
}

// Memory is the in-process Store. Expired entries are dropped when touched,
// and a full sweep runs at most once per TTL window during writes.
type Memory struct {
	mu        sync.Mutex
	entries   map[string]entry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewMemory returns a memory store whose entries live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return NewMemoryAt(ttl, time.Now)
}

// NewMemoryAt injects the clock.
func NewMemoryAt(ttl time.Duration, now func() time.Time) *Memory {
	return &Memory{
		entries:   make(map[string]entry),
		ttl:       ttl,
		now:       now,
		lastSweep: now(),
	}
}

func (m *Memory) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.body, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, response []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	if e, ok := m.entries[key]; ok && m.now().Before(e.expiresAt) {
		return nil
	}
	m.entries[key] = entry{
		body:      append([]byte(nil), response...),
		expiresAt: m.now().Add(m.ttl),
	}
	return nil
}

// Len reports the live entry count, dropping anything already expired.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	return len(m.entries)
}

func (m *Memory) sweepLocked() {
	now := m.now()
	if now.Sub(m.lastSweep) < m.ttl {
		return
	}
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.lastSweep = now
}
