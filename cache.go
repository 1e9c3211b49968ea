package pixelprompt

import (
	"context"
	"sync"
	"time"

	"github.com/eringen/pixelprompt/gallery"
)

// topLiked is the length of the "most liked" strip on the home page.
const topLiked = 5

// GalleryCache is an in-memory cache of the home page strips: hero slides and
// the most liked items. Admin writes invalidate it; likes only age out.
type GalleryCache struct {
	mu      sync.RWMutex
	heroes  []gallery.Item
	top     []gallery.Item
	fetched time.Time
	ttl     time.Duration
	repo    *gallery.Repo
}

// NewGalleryCache creates a GalleryCache backed by repo.
func NewGalleryCache(repo *gallery.Repo, ttl time.Duration) *GalleryCache {
	return &GalleryCache{repo: repo, ttl: ttl}
}

func (c *GalleryCache) valid() bool {
	return c.heroes != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *GalleryCache) Invalidate() {
	c.mu.Lock()
	c.heroes = nil
	c.top = nil
	c.mu.Unlock()
}

func (c *GalleryCache) load(ctx context.Context) error {
	if c.valid() {
		return nil
	}
	heroes, err := c.repo.Heroes(ctx, gallery.MaxHeroes)
	if err != nil {
		return err
	}
	top, err := c.repo.TopLiked(ctx, topLiked)
	if err != nil {
		return err
	}
	if heroes == nil {
		heroes = []gallery.Item{}
	}
	c.heroes = heroes
	c.top = top
	c.fetched = time.Now()
	return nil
}

// ensureLoaded returns the cached strips after ensuring the cache is fresh.
// It tries a read lock first; only takes a write lock if a reload is needed.
func (c *GalleryCache) ensureLoaded(ctx context.Context) ([]gallery.Item, []gallery.Item, error) {
	c.mu.RLock()
	if c.valid() {
		heroes, top := c.heroes, c.top
		c.mu.RUnlock()
		return heroes, top, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return nil, nil, err
	}
	return c.heroes, c.top, nil
}

// Heroes returns the hero slides, newest first. With no hero items in the
// store the demo heroes are shown instead.
func (c *GalleryCache) Heroes(ctx context.Context) ([]gallery.Item, error) {
	heroes, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if len(heroes) == 0 {
		return demoHeroes(), nil
	}
	return heroes, nil
}

// TopLiked returns the most liked items.
func (c *GalleryCache) TopLiked(ctx context.Context) ([]gallery.Item, error) {
	_, top, err := c.ensureLoaded(ctx)
	return top, err
}

func demoHeroes() []gallery.Item {
	items := gallery.DemoItems()[:gallery.MaxHeroes]
	for i := range items {
		items[i].Hero = true
	}
	return items
}
