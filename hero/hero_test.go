package hero_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/docstore/docstoretest"
	"github.com/eringen/pixelprompt/gallery"
	"github.com/eringen/pixelprompt/hero"
)

type fixture struct {
	repo   *gallery.Repo
	faulty *docstoretest.Faulty
	policy *hero.Policy
	ids    []string
}

// setup creates n items, oldest first, the first heroes of which are flagged hero.
func setup(t *testing.T, n, heroes int) *fixture {
	t.Helper()
	faulty := docstoretest.NewFaulty(docstoretest.New(t))
	repo := gallery.NewRepo(faulty, nil)
	f := &fixture{repo: repo, faulty: faulty, policy: hero.NewPolicy(repo, nil)}
	for i := 0; i < n; i++ {
		id, err := repo.CreateItem(context.Background(), gallery.Item{Title: string(rune('A' + i))})
		require.NoError(t, err)
		if i < heroes {
			require.NoError(t, repo.SetHero(context.Background(), id, true))
		}
		f.ids = append(f.ids, id)
	}
	return f
}

func (f *fixture) heroIDs(t *testing.T) []string {
	t.Helper()
	members, err := f.repo.HeroMembers(context.Background())
	require.NoError(t, err)
	var out []string
	for _, m := range members {
		out = append(out, m.ID)
	}
	return out
}

func TestPromoteWithRoom(t *testing.T) {
	f := setup(t, 3, 1)

	tg, err := f.policy.Toggle(context.Background(), f.ids[2], true, hero.Decline)
	require.NoError(t, err)
	assert.Equal(t, gallery.Committed, tg.State)
	assert.True(t, tg.Value())
	assert.ElementsMatch(t, []string{f.ids[0], f.ids[2]}, f.heroIDs(t))
}

func TestPromoteFullAsksAboutOldest(t *testing.T) {
	f := setup(t, 4, 3)

	var asked gallery.Item
	var count int
	c := hero.ConfirmFunc(func(_ context.Context, oldest gallery.Item, n int) bool {
		asked, count = oldest, n
		return false
	})

	f.faulty.Reset()
	tg, err := f.policy.Toggle(context.Background(), f.ids[3], true, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, hero.ErrConfirmationRequired)
	assert.Equal(t, f.ids[0], asked.ID)
	assert.Equal(t, 3, count)

	assert.Equal(t, gallery.Reverted, tg.State)
	assert.False(t, tg.Value())
	assert.ElementsMatch(t, f.ids[:3], f.heroIDs(t))
	for _, call := range f.faulty.Calls() {
		assert.NotContains(t, call, "update", "declined promotion must not write")
	}

	var ce *hero.ConfirmationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, `There are already 3 hero images. If you proceed the oldest hero "A" will be removed from Hero and this image will be promoted. Proceed?`, ce.Prompt())
}

func TestPromoteFullConfirmed(t *testing.T) {
	f := setup(t, 4, 3)

	tg, err := f.policy.Toggle(context.Background(), f.ids[3], true, hero.ConfirmID(f.ids[0]))
	require.NoError(t, err)
	assert.Equal(t, gallery.Committed, tg.State)
	assert.ElementsMatch(t, []string{f.ids[1], f.ids[2], f.ids[3]}, f.heroIDs(t))
}

func TestConfirmIDMismatchAsksAgain(t *testing.T) {
	f := setup(t, 4, 3)

	_, err := f.policy.Toggle(context.Background(), f.ids[3], true, hero.ConfirmID(f.ids[1]))
	assert.ErrorIs(t, err, hero.ErrConfirmationRequired)
	assert.ElementsMatch(t, f.ids[:3], f.heroIDs(t))
}

func TestPromoteExistingHeroNotCounted(t *testing.T) {
	f := setup(t, 3, 3)

	tg, err := f.policy.Toggle(context.Background(), f.ids[1], true, hero.Decline)
	require.NoError(t, err)
	assert.Equal(t, gallery.Committed, tg.State)
	assert.Len(t, f.heroIDs(t), 3)
}

func TestEvictionFailureIsSwallowed(t *testing.T) {
	f := setup(t, 4, 3)
	f.faulty.FailOnce("update", gallery.ColImages, f.ids[0], errors.New("permission denied"))

	tg, err := f.policy.Toggle(context.Background(), f.ids[3], true, hero.ConfirmID(f.ids[0]))
	require.NoError(t, err)
	assert.Equal(t, gallery.Committed, tg.State)
	assert.Len(t, f.heroIDs(t), 4)
}

func TestPromoteFailureReverts(t *testing.T) {
	f := setup(t, 2, 0)
	f.faulty.Fail("update", gallery.ColImages, f.ids[1], errors.New("connection reset"))

	tg, err := f.policy.Toggle(context.Background(), f.ids[1], true, hero.Decline)
	require.Error(t, err)
	assert.Equal(t, docstore.KindUnavailable, docstore.KindOf(err))
	assert.Equal(t, gallery.Reverted, tg.State)
	assert.False(t, tg.Value())
	assert.Empty(t, f.heroIDs(t))
}

func TestMembershipReadFailureReverts(t *testing.T) {
	f := setup(t, 2, 0)
	f.faulty.FailOnce("query", gallery.ColImages, "", errors.New("connection reset"))

	tg, err := f.policy.Toggle(context.Background(), f.ids[0], true, hero.Decline)
	require.Error(t, err)
	assert.Equal(t, gallery.Reverted, tg.State)
	assert.Empty(t, f.heroIDs(t))
}

func TestDemoteIsUnconditional(t *testing.T) {
	f := setup(t, 3, 3)

	tg, err := f.policy.Toggle(context.Background(), f.ids[1], false, nil)
	require.NoError(t, err)
	assert.Equal(t, gallery.Committed, tg.State)
	assert.False(t, tg.Value())
	assert.ElementsMatch(t, []string{f.ids[0], f.ids[2]}, f.heroIDs(t))
}

type blockingStore struct {
	gate    chan struct{}
	entered chan struct{}
}

func (s *blockingStore) HeroMembers(context.Context) ([]gallery.Item, error) {
	return nil, nil
}

func (s *blockingStore) SetHero(context.Context, string, bool) error {
	s.entered <- struct{}{}
	<-s.gate
	return nil
}

func TestToggleRejectsReentry(t *testing.T) {
	st := &blockingStore{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	p := hero.NewPolicy(st, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Toggle(context.Background(), "img", true, nil)
		done <- err
	}()
	select {
	case <-st.entered:
	case <-time.After(time.Second):
		t.Fatal("toggle did not start")
	}

	assert.True(t, p.Busy("img"))
	tg, err := p.Toggle(context.Background(), "img", false, nil)
	assert.ErrorIs(t, err, hero.ErrBusy)
	assert.Equal(t, gallery.Reverted, tg.State)

	close(st.gate)
	require.NoError(t, <-done)
	assert.False(t, p.Busy("img"))
}

func TestOldest(t *testing.T) {
	now := time.Now()
	items := []gallery.Item{
		{ID: "b", CreatedAt: now},
		{ID: "z"},
		{ID: "a", CreatedAt: now.Add(-time.Hour)},
	}
	assert.Equal(t, "z", hero.Oldest(items).ID)
	assert.Equal(t, "a", hero.Oldest(items[2:]).ID)
	assert.Equal(t, "a", hero.Oldest([]gallery.Item{{ID: "b", CreatedAt: now}, {ID: "a", CreatedAt: now}}).ID)
}
