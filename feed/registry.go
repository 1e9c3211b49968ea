package feed

import (
	"sync"
	"time"
)

type registryEntry struct {
	pager    *Pager
	lastUsed time.Time
}

// Registry keeps one Pager per visitor session. Idle pagers expire after ttl
// and the least recently used one is evicted when max is reached.
type Registry struct {
	mu      sync.Mutex
	src     Source
	size    int
	max     int
	ttl     time.Duration
	entries map[string]*registryEntry
	now     func() time.Time
}

// NewRegistry creates a registry of pagers over src.
func NewRegistry(src Source, size, max int, ttl time.Duration) *Registry {
	return &Registry{
		src:     src,
		size:    size,
		max:     max,
		ttl:     ttl,
		entries: make(map[string]*registryEntry),
		now:     time.Now,
	}
}

// Pager returns the pager for key, creating it when missing or expired.
func (r *Registry) Pager(key string) *Pager {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if e, ok := r.entries[key]; ok && now.Sub(e.lastUsed) < r.ttl {
		e.lastUsed = now
		return e.pager
	}
	r.prune(now)
	p := NewPager(r.src, r.size)
	r.entries[key] = &registryEntry{pager: p, lastUsed: now}
	return p
}

// Forget drops the pager for key.
func (r *Registry) Forget(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Len returns the number of live pagers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// prune drops expired entries and, when still full, the least recently used one.
func (r *Registry) prune(now time.Time) {
	for k, e := range r.entries {
		if now.Sub(e.lastUsed) >= r.ttl {
			delete(r.entries, k)
		}
	}
	if r.max <= 0 || len(r.entries) < r.max {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, e := range r.entries {
		if oldestKey == "" || e.lastUsed.Before(oldest) {
			oldestKey, oldest = k, e.lastUsed
		}
	}
	delete(r.entries, oldestKey)
}
