package order

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/candle-checkout/internal/obs"
)

type memoryEntry struct {
	order     Order
	expiresAt time.Time
	timer     *time.Timer
}

// MemoryStore keeps receipts in process memory. Entries disappear after the
// retention period or on restart.
type MemoryStore struct {
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryStore constructs a store. retention <= 0 uses DefaultRetention.
func NewMemoryStore(retention time.Duration, now func() time.Time) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{retention: retention, now: now, entries: make(map[string]*memoryEntry)}
}

// Set stores o under key, replacing any previous entry and its timer.
func (s *MemoryStore) Set(_ context.Context, key string, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[key]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	e := &memoryEntry{order: o, expiresAt: s.now().Add(s.retention)}
	e.timer = time.AfterFunc(s.retention, func() { s.expire(key, e) })
	s.entries[key] = e
	obs.CountOrderStoreOp("memory", "set", nil)
	return nil
}

func (s *MemoryStore) expire(key string, e *memoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[key]; ok && cur == e {
		delete(s.entries, key)
	}
}

// lookup returns the live entry for key. Caller holds s.mu.
func (s *MemoryStore) lookup(key string) (*memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expiresAt) {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, key)
		return nil, false
	}
	return e, true
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok {
		obs.CountOrderStoreOp("memory", "get", ErrNotFound)
		return Order{}, ErrNotFound
	}
	obs.CountOrderStoreOp("memory", "get", nil)
	return e.order, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, key)
	}
	obs.CountOrderStoreOp("memory", "delete", nil)
	return nil
}

// Has implements Store.
func (s *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(key)
	return ok, nil
}

// Size returns the number of stored keys, including ones past retention that
// have not been collected yet.
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
