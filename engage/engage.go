// Package engage implements like/save toggling, the per-user badge counts and
// the one-time migration of guest preferences into per-user records.
package engage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/eringen/pixelprompt/gallery"
	"github.com/eringen/pixelprompt/prefs"
)

var (
	// ErrSignInRequired is returned in hosted mode when there is no user.
	ErrSignInRequired = errors.New("engage: sign in required")
	// ErrCoolingDown is returned for a repeat click inside the cooldown.
	ErrCoolingDown = errors.New("engage: toggle cooling down")
	// ErrBusy is returned while the previous toggle of the same control is in flight.
	ErrBusy = errors.New("engage: toggle in progress")
)

// Store is the engagement backend. *gallery.Repo implements it.
type Store interface {
	Like(ctx context.Context, itemID, uid string) (gallery.LikeRecord, error)
	SetLiked(ctx context.Context, itemID, uid string, liked, stamp bool) error
	AdjustLikes(ctx context.Context, itemID string, delta int64) error
	Item(ctx context.Context, id string) (gallery.Item, error)
	Save(ctx context.Context, itemID, uid string) (gallery.SaveRecord, error)
	SetSaved(ctx context.Context, itemID, uid string, saved, stamp bool) error
	LikedIDs(ctx context.Context, uid string) ([]string, error)
	SavedIDs(ctx context.Context, uid string) ([]string, error)
}

// Actor is who clicked: a signed-in user, or a guest identified by their
// session key with their local preferences.
type Actor struct {
	UserID   string
	GuestKey string
	Prefs    *prefs.Store
}

func (a Actor) key() string {
	if a.UserID != "" {
		return "u:" + a.UserID
	}
	return "g:" + a.GuestKey
}

// Result is the outcome of a toggle.
type Result struct {
	Toggle gallery.Toggle `json:"-"`
	// Active is the displayed liked/saved state.
	Active bool `json:"active"`
	// Count is the displayed like counter; unused for saves.
	Count  int64  `json:"count"`
	Badges Counts `json:"badges"`
	State  string `json:"state"`
}

// Toggler runs the like/save protocol.
type Toggler struct {
	store    Store
	hosted   bool
	cooldown *Cooldown
	badges   *Badges
	guard    *gallery.Guard
	log      *slog.Logger
}

// NewToggler creates a Toggler. hosted selects signed-in mode; otherwise every
// toggle goes to the actor's local preferences.
func NewToggler(store Store, hosted bool, cooldown *Cooldown, badges *Badges, log *slog.Logger) *Toggler {
	if log == nil {
		log = slog.Default()
	}
	if cooldown == nil {
		cooldown = NewCooldown(0)
	}
	return &Toggler{store: store, hosted: hosted, cooldown: cooldown, badges: badges, guard: gallery.NewGuard(), log: log}
}

// Hosted reports whether toggles go to the remote store.
func (t *Toggler) Hosted() bool { return t.hosted }

func (t *Toggler) begin(a Actor, kind, itemID string) (func(), error) {
	if t.hosted && a.UserID == "" {
		return nil, ErrSignInRequired
	}
	if !t.hosted && a.Prefs == nil {
		return nil, errors.New("engage: guest toggle without preferences")
	}
	key := a.key() + "|" + kind + "|" + itemID
	release, ok := t.guard.Acquire(key)
	if !ok {
		return nil, ErrBusy
	}
	if !t.cooldown.Allow(key) {
		release()
		return nil, ErrCoolingDown
	}
	return release, nil
}

// ToggleLike flips the actor's like of itemID. displayed is the like counter
// the client currently shows. In hosted mode the returned count is the stored
// counter read back after the write; displayed is only a fallback.
func (t *Toggler) ToggleLike(ctx context.Context, a Actor, itemID string, displayed int64) (Result, error) {
	release, err := t.begin(a, "like", itemID)
	if err != nil {
		return Result{Count: displayed}, err
	}
	defer release()

	if !t.hosted {
		liked := a.Prefs.ToggleLiked(itemID)
		tg := gallery.BeginToggle(!liked, liked)
		tg.Commit()
		count := displayed + 1
		if !liked {
			count = max(0, displayed-1)
		}
		return t.result(tg, count, GuestCounts(a.Prefs)), nil
	}

	rec, err := t.store.Like(ctx, itemID, a.UserID)
	if err != nil {
		t.log.Error("read like failed", "op", "like.read", "item", itemID, "user", a.UserID, "error", err)
		tg := gallery.BeginToggle(false, true)
		tg.Revert(err)
		return t.result(tg, displayed, t.cached(a.UserID)), err
	}

	tg := gallery.BeginToggle(rec.Liked, !rec.Liked)
	delta := int64(1)
	if rec.Liked {
		delta = -1
	}
	if err := t.store.SetLiked(ctx, itemID, a.UserID, !rec.Liked, !rec.Exists); err != nil {
		t.log.Error("write like failed", "op", "like.write", "item", itemID, "user", a.UserID, "error", err)
		tg.Revert(err)
		return t.result(tg, displayed, t.cached(a.UserID)), err
	}
	tg.Commit()

	count := displayed
	if err := t.store.AdjustLikes(ctx, itemID, delta); err != nil {
		t.log.Warn("adjust like counter failed", "op", "like.counter", "item", itemID, "user", a.UserID, "delta", delta, "error", err)
	} else if it, err := t.store.Item(ctx, itemID); err != nil {
		t.log.Warn("read like counter failed", "op", "like.count", "item", itemID, "error", err)
		count = max(0, displayed+delta)
	} else {
		count = it.LikesCount
	}
	return t.result(tg, count, t.refresh(ctx, a.UserID)), nil
}

// ToggleSave flips the actor's save of itemID.
func (t *Toggler) ToggleSave(ctx context.Context, a Actor, itemID string) (Result, error) {
	release, err := t.begin(a, "save", itemID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	if !t.hosted {
		saved := a.Prefs.ToggleSaved(itemID)
		tg := gallery.BeginToggle(!saved, saved)
		tg.Commit()
		return t.result(tg, 0, GuestCounts(a.Prefs)), nil
	}

	rec, err := t.store.Save(ctx, itemID, a.UserID)
	if err != nil {
		t.log.Error("read save failed", "op", "save.read", "item", itemID, "user", a.UserID, "error", err)
		tg := gallery.BeginToggle(false, true)
		tg.Revert(err)
		return t.result(tg, 0, t.cached(a.UserID)), err
	}
	tg := gallery.BeginToggle(rec.Saved, !rec.Saved)
	if err := t.store.SetSaved(ctx, itemID, a.UserID, !rec.Saved, !rec.Exists); err != nil {
		t.log.Error("write save failed", "op", "save.write", "item", itemID, "user", a.UserID, "error", err)
		tg.Revert(err)
		return t.result(tg, 0, t.cached(a.UserID)), err
	}
	tg.Commit()
	return t.result(tg, 0, t.refresh(ctx, a.UserID)), nil
}

func (t *Toggler) result(tg gallery.Toggle, count int64, badges Counts) Result {
	return Result{Toggle: tg, Active: tg.Value(), Count: count, Badges: badges, State: tg.State.String()}
}

func (t *Toggler) refresh(ctx context.Context, uid string) Counts {
	if t.badges == nil {
		return Counts{}
	}
	c, err := t.badges.Refresh(ctx, uid)
	if err != nil {
		t.log.Warn("refresh badge counts failed", "op", "badges.refresh", "user", uid, "error", err)
		return t.cached(uid)
	}
	return c
}

func (t *Toggler) cached(uid string) Counts {
	if t.badges == nil {
		return Counts{}
	}
	c, _ := t.badges.Get(uid)
	return c
}

// State reports whether the actor currently likes and saves itemID.
func (t *Toggler) State(ctx context.Context, a Actor, itemID string) (liked, saved bool, err error) {
	if !t.hosted {
		if a.Prefs == nil {
			return false, false, nil
		}
		return a.Prefs.IsLiked(itemID), a.Prefs.IsSaved(itemID), nil
	}
	if a.UserID == "" {
		return false, false, nil
	}
	like, err := t.store.Like(ctx, itemID, a.UserID)
	if err != nil {
		return false, false, err
	}
	save, err := t.store.Save(ctx, itemID, a.UserID)
	if err != nil {
		return like.Liked, false, err
	}
	return like.Liked, save.Saved, nil
}
