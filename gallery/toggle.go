package gallery

import (
	"fmt"
	"sync"
)

// ToggleState is the lifecycle of an optimistic toggle.
type ToggleState int

const (
	Pending ToggleState = iota
	Committed
	Reverted
)

func (s ToggleState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Reverted:
		return "reverted"
	}
	return fmt.Sprintf("ToggleState(%d)", int(s))
}

// Toggle is an optimistic boolean change. The UI shows Desired while the
// remote write is pending and falls back to Before when it is reverted.
type Toggle struct {
	Before  bool
	Desired bool
	State   ToggleState
	Err     error
}

// BeginToggle starts a pending change from before to desired.
func BeginToggle(before, desired bool) Toggle {
	return Toggle{Before: before, Desired: desired, State: Pending}
}

// Commit marks the change as applied remotely. Only a pending toggle moves.
func (t *Toggle) Commit() {
	if t.State == Pending {
		t.State = Committed
	}
}

// Revert marks the change as abandoned, recording why. err may be nil for a
// user cancellation. Only a pending toggle moves.
func (t *Toggle) Revert(err error) {
	if t.State == Pending {
		t.State = Reverted
		t.Err = err
	}
}

// Value is the state the control should display.
func (t Toggle) Value() bool {
	if t.State == Reverted {
		return t.Before
	}
	return t.Desired
}

// Guard disables a control while its remote round-trip is in flight.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewGuard creates an empty Guard.
func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// Acquire claims key. It returns false when key is already claimed; otherwise
// the caller must call release when the round-trip ends.
func (g *Guard) Acquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return nil, false
	}
	g.inflight[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		})
	}, true
}

// Busy reports whether key is claimed.
func (g *Guard) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inflight[key]
	return busy
}
