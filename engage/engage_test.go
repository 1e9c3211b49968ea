package engage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pixelprompt/docstore/docstoretest"
	"github.com/eringen/pixelprompt/engage"
	"github.com/eringen/pixelprompt/gallery"
	"github.com/eringen/pixelprompt/prefs"
)

type fixture struct {
	repo    *gallery.Repo
	faulty  *docstoretest.Faulty
	badges  *engage.Badges
	toggler *engage.Toggler
	item    string
}

func setup(t *testing.T, hosted bool) *fixture {
	t.Helper()
	faulty := docstoretest.NewFaulty(docstoretest.New(t))
	repo := gallery.NewRepo(faulty, nil)
	id, err := repo.CreateItem(context.Background(), gallery.Item{Title: "Abstract Nebula"})
	require.NoError(t, err)
	badges := engage.NewBadges(repo)
	return &fixture{
		repo:    repo,
		faulty:  faulty,
		badges:  badges,
		toggler: engage.NewToggler(repo, hosted, nil, badges, nil),
		item:    id,
	}
}

func (f *fixture) likes(t *testing.T) int64 {
	t.Helper()
	it, err := f.repo.Item(context.Background(), f.item)
	require.NoError(t, err)
	return it.LikesCount
}

func TestHostedLikeRequiresUser(t *testing.T) {
	f := setup(t, true)

	_, err := f.toggler.ToggleLike(context.Background(), engage.Actor{GuestKey: "g1"}, f.item, 0)
	assert.ErrorIs(t, err, engage.ErrSignInRequired)
	_, err = f.toggler.ToggleSave(context.Background(), engage.Actor{GuestKey: "g1"}, f.item)
	assert.ErrorIs(t, err, engage.ErrSignInRequired)
	assert.Equal(t, int64(0), f.likes(t))
}

func TestHostedLikeAlternates(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	a := engage.Actor{UserID: "u1"}

	var shown int64
	for i := 1; i <= 5; i++ {
		res, err := f.toggler.ToggleLike(ctx, a, f.item, shown)
		require.NoError(t, err)
		assert.Equal(t, gallery.Committed, res.Toggle.State)
		assert.Equal(t, i%2 == 1, res.Active)
		shown = res.Count
	}

	rec, err := f.repo.Like(ctx, f.item, "u1")
	require.NoError(t, err)
	assert.True(t, rec.Liked)
	assert.Equal(t, int64(1), f.likes(t))
	assert.Equal(t, int64(1), shown)

	counts, ok := f.badges.Get("u1")
	require.True(t, ok)
	assert.Equal(t, 1, counts.Liked)
}

func TestHostedLikeStampsCreatedAtOnce(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	a := engage.Actor{UserID: "u1"}

	_, err := f.toggler.ToggleLike(ctx, a, f.item, 0)
	require.NoError(t, err)
	first, err := f.repo.Like(ctx, f.item, "u1")
	require.NoError(t, err)

	_, err = f.toggler.ToggleLike(ctx, a, f.item, 1)
	require.NoError(t, err)
	_, err = f.toggler.ToggleLike(ctx, a, f.item, 0)
	require.NoError(t, err)

	again, err := f.repo.Like(ctx, f.item, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, again.CreatedAt)
}

func TestHostedCounterFailureIsSwallowed(t *testing.T) {
	f := setup(t, true)
	f.faulty.FailOnce("update", gallery.ColImages, f.item, errors.New("permission denied"))

	res, err := f.toggler.ToggleLike(context.Background(), engage.Actor{UserID: "u1"}, f.item, 4)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, gallery.Committed, res.Toggle.State)
	assert.Equal(t, int64(4), res.Count, "displayed counter unchanged when the increment failed")
	assert.Equal(t, int64(0), f.likes(t))

	rec, err := f.repo.Like(context.Background(), f.item, "u1")
	require.NoError(t, err)
	assert.True(t, rec.Liked)
}

func TestHostedLikeReturnsStoredCounter(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	require.NoError(t, f.repo.AdjustLikes(ctx, f.item, 88))

	res, err := f.toggler.ToggleLike(ctx, engage.Actor{UserID: "u1"}, f.item, 0)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, int64(89), res.Count)

	res, err = f.toggler.ToggleLike(ctx, engage.Actor{UserID: "u1"}, f.item, 1000)
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.Equal(t, int64(88), res.Count)
}

func TestHostedLikeCounterReadFailureFallsBack(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	require.NoError(t, f.repo.AdjustLikes(ctx, f.item, 10))
	f.faulty.FailOnce("get", gallery.ColImages, f.item, errors.New("connection refused"))

	res, err := f.toggler.ToggleLike(ctx, engage.Actor{UserID: "u1"}, f.item, 10)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, int64(11), res.Count)
	assert.Equal(t, int64(11), f.likes(t))
}

func TestHostedFlagFailureReverts(t *testing.T) {
	f := setup(t, true)
	f.faulty.FailOnce("set", gallery.ColLikes, "", errors.New("connection refused"))

	res, err := f.toggler.ToggleLike(context.Background(), engage.Actor{UserID: "u1"}, f.item, 2)
	require.Error(t, err)
	assert.Equal(t, gallery.Reverted, res.Toggle.State)
	assert.False(t, res.Active)
	assert.Equal(t, int64(2), res.Count)
	assert.Equal(t, int64(0), f.likes(t))
}

func TestHostedSaveHasNoCounter(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	a := engage.Actor{UserID: "u1"}

	res, err := f.toggler.ToggleSave(ctx, a, f.item)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, 1, res.Badges.Saved)

	res, err = f.toggler.ToggleSave(ctx, a, f.item)
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.Equal(t, 0, res.Badges.Saved)
	assert.Equal(t, int64(0), f.likes(t))

	liked, saved, err := f.toggler.State(ctx, a, f.item)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.False(t, saved)
}

func TestGuestLikeNeverNegative(t *testing.T) {
	f := setup(t, false)
	p := prefs.New(prefs.MemoryStorage{})
	a := engage.Actor{GuestKey: "g1", Prefs: p}

	// The item is not liked locally, so the first click likes it.
	res, err := f.toggler.ToggleLike(context.Background(), a, "demo1", 0)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, int64(1), res.Count)

	// Unlike while the page shows 0.
	res, err = f.toggler.ToggleLike(context.Background(), a, "demo1", 0)
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.Equal(t, int64(0), res.Count)
	assert.Empty(t, p.Liked())
	assert.Empty(t, f.faulty.Calls()[1:], "guest mode never touches the store")
}

func TestGuestSave(t *testing.T) {
	f := setup(t, false)
	p := prefs.New(prefs.MemoryStorage{})
	a := engage.Actor{GuestKey: "g1", Prefs: p}

	res, err := f.toggler.ToggleSave(context.Background(), a, "demo2")
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, engage.Counts{Saved: 1}, res.Badges)

	liked, saved, err := f.toggler.State(context.Background(), a, "demo2")
	require.NoError(t, err)
	assert.False(t, liked)
	assert.True(t, saved)
}

func TestCooldownRejectsRepeatClick(t *testing.T) {
	f := setup(t, true)
	cd := engage.NewCooldown(time.Hour)
	defer cd.Stop()
	toggler := engage.NewToggler(f.repo, true, cd, f.badges, nil)
	a := engage.Actor{UserID: "u1"}

	_, err := toggler.ToggleLike(context.Background(), a, f.item, 0)
	require.NoError(t, err)
	_, err = toggler.ToggleLike(context.Background(), a, f.item, 1)
	assert.ErrorIs(t, err, engage.ErrCoolingDown)

	// Other items and kinds have their own cooldown.
	_, err = toggler.ToggleSave(context.Background(), a, f.item)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), f.likes(t))
}

func TestBadgeLabel(t *testing.T) {
	assert.Equal(t, "", engage.BadgeLabel(0))
	assert.Equal(t, "7", engage.BadgeLabel(7))
	assert.Equal(t, "99", engage.BadgeLabel(99))
	assert.Equal(t, "99+", engage.BadgeLabel(100))
}

func TestBadgesForget(t *testing.T) {
	f := setup(t, true)
	_, err := f.badges.Refresh(context.Background(), "u1")
	require.NoError(t, err)
	_, ok := f.badges.Get("u1")
	assert.True(t, ok)
	f.badges.Forget("u1")
	_, ok = f.badges.Get("u1")
	assert.False(t, ok)
}
