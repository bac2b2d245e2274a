// Package ratelimit implements the per client request ceilings applied by the
// admin web server. State lives behind the Store interface so a single
// instance can run on the in-memory store while multi instance deployments
// swap in the Redis store.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Route classes with independent ceilings.
const (
	ClassAuth    = "auth"
	ClassUpload  = "upload"
	ClassDefault = "default"
)

// Limit is one class ceiling: at most MaxRequests per Window.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
	// RetryAfter is the whole seconds until the window resets, zero when
	// the request was allowed.
	RetryAfter int
}

// Store counts requests per key within a window. Keys are
// "class:clientIP".
type Store interface {
	Allow(ctx context.Context, key string, limit Limit) (Result, error)
	// Sweep drops expired entries to bound memory. A no-op for stores
	// with native expiry.
	Sweep()
}

type memoryEntry struct {
	count     int
	resetTime time.Time
}

// MemoryStore is a mutex guarded fixed-window counter table. Windows reset
// lazily: the first request after resetTime restarts the counter at 1.
// Restarting the process resets all counters.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit Limit) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || e.resetTime.Before(now) {
		e = &memoryEntry{count: 1, resetTime: now.Add(limit.Window)}
		s.entries[key] = e
		return Result{
			Allowed:   true,
			Remaining: limit.MaxRequests - 1,
			ResetTime: e.resetTime,
		}, nil
	}

	e.count++
	remaining := limit.MaxRequests - e.count
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:   e.count <= limit.MaxRequests,
		Remaining: remaining,
		ResetTime: e.resetTime,
	}
	if !res.Allowed {
		res.RetryAfter = int(math.Ceil(e.resetTime.Sub(now).Seconds()))
		if res.RetryAfter < 1 {
			res.RetryAfter = 1
		}
	}
	return res, nil
}

// Sweep removes entries whose window has passed.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, e := range s.entries {
		if e.resetTime.Before(now) {
			delete(s.entries, key)
		}
	}
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
