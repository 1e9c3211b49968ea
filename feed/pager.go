// Package feed implements the two catalog views: the cursor-paginated public
// feed and the full-scan admin table.
package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/gallery"
)

var (
	// ErrInFlight is returned by Next while another fetch is outstanding. The
	// request is dropped, not queued.
	ErrInFlight = errors.New("feed: fetch already in flight")
	// ErrStale is returned when the category or search term changed while the
	// fetch was running; its results are discarded.
	ErrStale = errors.New("feed: results discarded after reset")
)

// Source returns one page of items newest first.
type Source interface {
	FeedPage(ctx context.Context, category string, limit int, after *docstore.Cursor) ([]gallery.Item, *docstore.Cursor, error)
}

// Page is the result of one Next call.
type Page struct {
	Items []gallery.Item `json:"items"`
	// Done is true once a short page has been seen.
	Done bool `json:"done"`
}

// Pager walks the public feed for one visitor.
type Pager struct {
	src  Source
	size int

	inflight atomic.Bool

	mu       sync.Mutex
	category string
	search   string
	cursor   *docstore.Cursor
	items    []gallery.Item
	done     bool
	gen      uint64
}

// NewPager creates a pager over src. size <= 0 uses gallery.FeedPageSize.
func NewPager(src Source, size int) *Pager {
	if size <= 0 {
		size = gallery.FeedPageSize
	}
	return &Pager{src: src, size: size, category: gallery.CategoryAll}
}

func (p *Pager) reset() {
	p.gen++
	p.cursor = nil
	p.items = nil
	p.done = false
}

// Reset forgets the cursor and loaded items. A fetch in flight is discarded.
func (p *Pager) Reset() {
	p.mu.Lock()
	p.reset()
	p.mu.Unlock()
}

// SetCategory selects a category and reports whether it changed. A change
// resets the cursor and discards loaded items.
func (p *Pager) SetCategory(category string) bool {
	category = strings.TrimSpace(category)
	if category == "" {
		category = gallery.CategoryAll
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if category == p.category {
		return false
	}
	p.category = category
	p.reset()
	return true
}

// SetSearch sets the search term and reports whether it changed. A change
// resets the cursor and discards loaded items.
func (p *Pager) SetSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	p.mu.Lock()
	defer p.mu.Unlock()
	if term == p.search {
		return false
	}
	p.search = term
	p.reset()
	return true
}

// Next fetches the page after the last one loaded. The search term filters
// fetched pages; while a search hides every item of a page, Next keeps
// fetching until something matches or the feed is exhausted, so a non-final
// page is never empty.
func (p *Pager) Next(ctx context.Context) (Page, error) {
	if !p.inflight.CompareAndSwap(false, true) {
		return Page{}, ErrInFlight
	}
	defer p.inflight.Store(false)

	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return Page{Items: []gallery.Item{}, Done: true}, nil
	}
	gen, category, search, cursor := p.gen, p.category, p.search, p.cursor
	p.mu.Unlock()

	visible := make([]gallery.Item, 0, p.size)
	for {
		items, next, err := p.src.FeedPage(ctx, category, p.size, cursor)
		if err != nil {
			return Page{}, err
		}

		p.mu.Lock()
		if gen != p.gen {
			p.mu.Unlock()
			return Page{}, ErrStale
		}
		if len(items) < p.size {
			p.done = true
		}
		if next != nil {
			p.cursor = next
		}
		n := len(visible)
		for _, it := range items {
			if it.Matches(search) {
				visible = append(visible, it)
			}
		}
		p.items = append(p.items, visible[n:]...)
		done := p.done
		cursor = p.cursor
		p.mu.Unlock()

		if len(visible) > 0 || done || next == nil {
			return Page{Items: visible, Done: done}, nil
		}
	}
}

// Items returns every item loaded since the last reset.
func (p *Pager) Items() []gallery.Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]gallery.Item(nil), p.items...)
}

// Category returns the selected category.
func (p *Pager) Category() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.category
}

// Done reports whether the feed is exhausted.
func (p *Pager) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
