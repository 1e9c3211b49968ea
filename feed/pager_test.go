package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/gallery"
)

type call struct {
	category string
	after    *docstore.Cursor
}

// fakeSource serves items newest first; items[i].ID is "item<i>".
type fakeSource struct {
	mu    sync.Mutex
	items []gallery.Item
	calls []call
	gate  chan struct{}
	err   error
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{}
	for i := 0; i < n; i++ {
		cat := "Art"
		if i%2 == 1 {
			cat = "Funny"
		}
		s.items = append(s.items, gallery.Item{ID: fmt.Sprintf("item%d", i), Title: fmt.Sprintf("Title %d", i), Category: cat})
	}
	return s
}

func (s *fakeSource) FeedPage(ctx context.Context, category string, limit int, after *docstore.Cursor) ([]gallery.Item, *docstore.Cursor, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{category: category, after: after})
	gate, err := s.gate, s.err
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, nil, err
	}

	start := 0
	var out []gallery.Item
	if after != nil {
		for i, it := range s.items {
			if it.ID == after.ID {
				start = i + 1
			}
		}
	}
	for _, it := range s.items[start:] {
		if category != gallery.CategoryAll && it.Category != category {
			continue
		}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	var next *docstore.Cursor
	if len(out) > 0 {
		next = &docstore.Cursor{ID: out[len(out)-1].ID}
	}
	return out, next, nil
}

func (s *fakeSource) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func TestPagerWalksFeed(t *testing.T) {
	src := newFakeSource(25)
	p := NewPager(src, 10)
	ctx := context.Background()

	page, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.False(t, page.Done)

	page, err = p.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, "item10", page.Items[0].ID)

	page, err = p.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.True(t, page.Done)

	page, err = p.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.True(t, page.Done)
	assert.Len(t, src.Calls(), 3)
	assert.Len(t, p.Items(), 25)
}

func TestPagerSecondPageStartsAfterFirst(t *testing.T) {
	src := newFakeSource(30)
	p := NewPager(src, 10)

	_, err := p.Next(context.Background())
	require.NoError(t, err)
	_, err = p.Next(context.Background())
	require.NoError(t, err)

	calls := src.Calls()
	require.Len(t, calls, 2)
	assert.Nil(t, calls[0].after)
	require.NotNil(t, calls[1].after)
	assert.Equal(t, "item9", calls[1].after.ID)
}

func TestPagerDropsConcurrentFetch(t *testing.T) {
	src := newFakeSource(30)
	src.gate = make(chan struct{})
	p := NewPager(src, 10)

	done := make(chan error, 1)
	go func() {
		_, err := p.Next(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return len(src.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	_, err := p.Next(context.Background())
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Len(t, src.Calls(), 1)

	close(src.gate)
	require.NoError(t, <-done)

	src.mu.Lock()
	src.gate = nil
	src.mu.Unlock()
	_, err = p.Next(context.Background())
	require.NoError(t, err)
	calls := src.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "item9", calls[1].after.ID)
}

func TestPagerResetStartsOver(t *testing.T) {
	src := newFakeSource(15)
	p := NewPager(src, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.Next(ctx)
		require.NoError(t, err)
	}
	require.True(t, p.Done())

	p.Reset()
	assert.False(t, p.Done())
	assert.Empty(t, p.Items())

	page, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "item0", page.Items[0].ID)
	calls := src.Calls()
	assert.Nil(t, calls[len(calls)-1].after)
}

func TestPagerCategoryResets(t *testing.T) {
	src := newFakeSource(30)
	p := NewPager(src, 10)
	ctx := context.Background()

	_, err := p.Next(ctx)
	require.NoError(t, err)

	assert.True(t, p.SetCategory("Funny"))
	assert.False(t, p.SetCategory("Funny"))
	assert.Empty(t, p.Items())

	page, err := p.Next(ctx)
	require.NoError(t, err)
	require.Len(t, page.Items, 10)
	for _, it := range page.Items {
		assert.Equal(t, "Funny", it.Category)
	}
	calls := src.Calls()
	assert.Nil(t, calls[len(calls)-1].after)
	assert.Equal(t, "Funny", calls[len(calls)-1].category)

	assert.True(t, p.SetCategory(""))
	assert.Equal(t, gallery.CategoryAll, p.Category())
}

func TestPagerDiscardsStaleResults(t *testing.T) {
	src := newFakeSource(30)
	src.gate = make(chan struct{})
	p := NewPager(src, 10)

	done := make(chan error, 1)
	go func() {
		_, err := p.Next(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return len(src.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	p.SetSearch("title 1")
	close(src.gate)
	assert.ErrorIs(t, <-done, ErrStale)
	assert.Empty(t, p.Items())
}

func TestPagerSearchFiltersPage(t *testing.T) {
	src := newFakeSource(10)
	p := NewPager(src, 10)
	p.SetSearch("Title 3")

	page, err := p.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "item3", page.Items[0].ID)
}

func TestPagerSearchSkipsEmptyPages(t *testing.T) {
	src := newFakeSource(30)
	p := NewPager(src, 10)
	p.SetSearch("Title 25")

	page, err := p.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "item25", page.Items[0].ID)
	assert.False(t, page.Done)
	calls := src.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "item19", calls[2].after.ID)
}

func TestPagerSearchWithoutMatchesEndsFeed(t *testing.T) {
	src := newFakeSource(30)
	p := NewPager(src, 10)
	p.SetSearch("no such title")

	page, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.True(t, page.Done)
	assert.Empty(t, p.Items())
}

func TestPagerErrorKeepsCursor(t *testing.T) {
	src := newFakeSource(30)
	p := NewPager(src, 10)
	ctx := context.Background()

	_, err := p.Next(ctx)
	require.NoError(t, err)

	src.err = errors.New("unavailable")
	_, err = p.Next(ctx)
	require.Error(t, err)

	src.err = nil
	page, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "item10", page.Items[0].ID)
}

func TestRegistry(t *testing.T) {
	src := newFakeSource(1)
	r := NewRegistry(src, 10, 2, time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	a := r.Pager("a")
	assert.Same(t, a, r.Pager("a"))

	now = now.Add(time.Second)
	r.Pager("b")
	now = now.Add(time.Second)
	r.Pager("c")
	assert.Equal(t, 2, r.Len())
	assert.NotSame(t, a, r.Pager("a"), "least recently used pager should have been evicted")

	now = now.Add(2 * time.Minute)
	b := r.Pager("b")
	assert.Equal(t, 1, r.Len())
	assert.NotNil(t, b)

	r.Forget("b")
	assert.Equal(t, 0, r.Len())
}
