package engage

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCooldown is the pause enforced after each toggle click.
const DefaultCooldown = 700 * time.Millisecond

type cooldownEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Cooldown allows one action per key per interval. An interval of zero
// allows everything.
type Cooldown struct {
	mu       sync.Mutex
	entries  map[string]*cooldownEntry
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewCooldown creates a Cooldown and starts its cleanup loop.
func NewCooldown(interval time.Duration) *Cooldown {
	c := &Cooldown{
		entries:  make(map[string]*cooldownEntry),
		interval: interval,
		stop:     make(chan struct{}),
	}
	if interval > 0 {
		go c.cleanup()
	}
	return c
}

func (c *Cooldown) cleanup() {
	ticker := time.NewTicker(max(c.interval*10, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.entries {
				if now.Sub(e.seen) > c.interval {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Allow reports whether key may act now and records the attempt.
func (c *Cooldown) Allow(key string) bool {
	if c.interval <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &cooldownEntry{limiter: rate.NewLimiter(rate.Every(c.interval), 1)}
		c.entries[key] = e
	}
	e.seen = time.Now()
	return e.limiter.Allow()
}

// Stop ends the cleanup loop.
func (c *Cooldown) Stop() {
	c.once.Do(func() { close(c.stop) })
}
