// Package ratelimit provides the fixed-window request limiter guarding the
// payment endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default window and cap per identifier.
const (
	DefaultWindow = time.Minute
	DefaultMax    = 5
)

// Policy is the window length and number of requests allowed per window.
type Policy struct {
	Window time.Duration
	Max    int
}

// DefaultPolicy allows 5 requests per minute.
func DefaultPolicy() Policy {
	return Policy{Window: DefaultWindow, Max: DefaultMax}
}

func (p Policy) normalize() Policy {
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	if p.Max <= 0 {
		p.Max = DefaultMax
	}
	return p
}

// Result is the outcome of a Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
}

// RetryAfter is the time left until ResetAt, never negative.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Limiter records a request for identifier and reports whether it fits the budget.
type Limiter interface {
	Check(ctx context.Context, identifier string) (Result, error)
}

type entry struct {
	count   int
	resetAt time.Time
}

// Memory is a single-process fixed-window limiter. State is lost on restart;
// use Redis when running more than one instance.
type Memory struct {
	policy Policy
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewMemory constructs a limiter. now defaults to time.Now.
func NewMemory(p Policy, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{policy: p.normalize(), now: now, entries: make(map[string]entry)}
}

// Check implements Limiter. The first request of a window resets the count to
// one; requests past the cap are denied without moving the window.
func (m *Memory) Check(_ context.Context, identifier string) (Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[identifier]
	if !ok || now.After(e.resetAt) {
		e = entry{count: 1, resetAt: now.Add(m.policy.Window)}
		m.entries[identifier] = e
		return Result{Allowed: true, Remaining: m.policy.Max - 1, ResetAt: e.resetAt, Limit: m.policy.Max}, nil
	}
	if e.count >= m.policy.Max {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.resetAt, Limit: m.policy.Max}, nil
	}
	e.count++
	m.entries[identifier] = e
	return Result{Allowed: true, Remaining: m.policy.Max - e.count, ResetAt: e.resetAt, Limit: m.policy.Max}, nil
}

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.entries {
		if now.After(e.resetAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (m *Memory) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Len returns the number of tracked identifiers.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
