package engage

import (
	"context"
	"strconv"
	"sync"

	"github.com/eringen/pixelprompt/prefs"
)

// Counts are the header badge numbers.
type Counts struct {
	Liked int `json:"liked"`
	Saved int `json:"saved"`
}

// BadgeLabel formats a badge count: empty for zero, "99+" above 99.
func BadgeLabel(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 99:
		return "99+"
	}
	return strconv.Itoa(n)
}

// GuestCounts derives the counts from local preferences.
func GuestCounts(p *prefs.Store) Counts {
	if p == nil {
		return Counts{}
	}
	return Counts{Liked: len(p.Liked()), Saved: len(p.Saved())}
}

// CountStore lists a user's positive engagement records.
type CountStore interface {
	LikedIDs(ctx context.Context, uid string) ([]string, error)
	SavedIDs(ctx context.Context, uid string) ([]string, error)
}

// Badges caches per-user counts in process memory. Counts are recomputed by
// query, never adjusted incrementally.
type Badges struct {
	store  CountStore
	mu     sync.RWMutex
	counts map[string]Counts
}

// NewBadges creates an empty cache over store.
func NewBadges(store CountStore) *Badges {
	return &Badges{store: store, counts: make(map[string]Counts)}
}

// Refresh recomputes and caches the counts of uid.
func (b *Badges) Refresh(ctx context.Context, uid string) (Counts, error) {
	saved, err := b.store.SavedIDs(ctx, uid)
	if err != nil {
		return Counts{}, err
	}
	liked, err := b.store.LikedIDs(ctx, uid)
	if err != nil {
		return Counts{}, err
	}
	c := Counts{Liked: len(liked), Saved: len(saved)}
	b.mu.Lock()
	b.counts[uid] = c
	b.mu.Unlock()
	return c, nil
}

// Get returns the cached counts of uid.
func (b *Badges) Get(uid string) (Counts, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.counts[uid]
	return c, ok
}

// Forget drops uid from the cache, typically on sign-out.
func (b *Badges) Forget(uid string) {
	b.mu.Lock()
	delete(b.counts, uid)
	b.mu.Unlock()
}
