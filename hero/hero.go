// Package hero keeps the set of promoted items shown in the home slider
// bounded to gallery.MaxHeroes.
package hero

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eringen/pixelprompt/gallery"
)

var (
	// ErrBusy is returned while a toggle for the same item is in flight.
	ErrBusy = errors.New("hero: toggle already in progress")
	// ErrConfirmationRequired matches a *ConfirmationError.
	ErrConfirmationRequired = errors.New("hero: demotion of the oldest hero not confirmed")
)

// ConfirmationError reports that promotion needs the oldest hero demoted and
// that the demotion was not confirmed. Nothing was written.
type ConfirmationError struct {
	Oldest gallery.Item
	Count  int
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("hero: %d heroes already, demoting %q not confirmed", e.Count, e.Oldest.Title)
}

func (e *ConfirmationError) Is(target error) bool { return target == ErrConfirmationRequired }

// Prompt is the question put to the admin before the oldest hero is demoted.
func (e *ConfirmationError) Prompt() string {
	return Prompt(e.Oldest, e.Count)
}

// Prompt builds the confirmation question naming oldest.
func Prompt(oldest gallery.Item, count int) string {
	return fmt.Sprintf("There are already %d hero images. If you proceed the oldest hero %q will be removed from Hero and this image will be promoted. Proceed?", count, oldest.Title)
}

// Store is the hero membership backend.
type Store interface {
	HeroMembers(ctx context.Context) ([]gallery.Item, error)
	SetHero(ctx context.Context, id string, hero bool) error
}

// Confirmer decides whether the oldest hero may be demoted.
type Confirmer interface {
	ConfirmDemotion(ctx context.Context, oldest gallery.Item, count int) bool
}

// ConfirmFunc adapts a func to Confirmer.
type ConfirmFunc func(ctx context.Context, oldest gallery.Item, count int) bool

func (f ConfirmFunc) ConfirmDemotion(ctx context.Context, oldest gallery.Item, count int) bool {
	return f(ctx, oldest, count)
}

// ConfirmID accepts the demotion only when the oldest hero is id. HTTP
// clients echo back the id they were asked about, so a hero set that changed
// in between asks again.
func ConfirmID(id string) Confirmer {
	return ConfirmFunc(func(_ context.Context, oldest gallery.Item, _ int) bool {
		return id != "" && oldest.ID == id
	})
}

// Decline never confirms.
var Decline Confirmer = ConfirmFunc(func(context.Context, gallery.Item, int) bool { return false })

// Policy promotes and demotes hero items.
type Policy struct {
	store Store
	guard *gallery.Guard
	log   *slog.Logger
	max   int
}

// NewPolicy creates a policy over store.
func NewPolicy(store Store, log *slog.Logger) *Policy {
	if log == nil {
		log = slog.Default()
	}
	return &Policy{store: store, guard: gallery.NewGuard(), log: log, max: gallery.MaxHeroes}
}

// Toggle sets the hero flag of id to enable. Promotion re-reads the hero set
// and, when it is full, demotes the oldest hero only if c confirms. The
// returned toggle is committed on success and reverted otherwise.
func (p *Policy) Toggle(ctx context.Context, id string, enable bool, c Confirmer) (gallery.Toggle, error) {
	t := gallery.BeginToggle(!enable, enable)
	release, ok := p.guard.Acquire(id)
	if !ok {
		t.Revert(ErrBusy)
		return t, ErrBusy
	}
	defer release()

	if !enable {
		if err := p.store.SetHero(ctx, id, false); err != nil {
			p.log.Error("demote hero failed", "op", "hero.demote", "item", id, "error", err)
			t.Revert(err)
			return t, err
		}
		t.Commit()
		return t, nil
	}

	members, err := p.store.HeroMembers(ctx)
	if err != nil {
		p.log.Error("read hero set failed", "op", "hero.members", "item", id, "error", err)
		t.Revert(err)
		return t, err
	}
	others := make([]gallery.Item, 0, len(members))
	for _, m := range members {
		if m.ID != id {
			others = append(others, m)
		}
	}

	if len(others) >= p.max {
		oldest := Oldest(others)
		if c == nil || !c.ConfirmDemotion(ctx, oldest, len(others)) {
			err := &ConfirmationError{Oldest: oldest, Count: len(others)}
			t.Revert(err)
			return t, err
		}
		if err := p.store.SetHero(ctx, oldest.ID, false); err != nil {
			p.log.Warn("demote oldest hero failed", "op", "hero.evict", "item", oldest.ID, "promoting", id, "error", err)
		}
	}

	if err := p.store.SetHero(ctx, id, true); err != nil {
		p.log.Error("promote hero failed", "op", "hero.promote", "item", id, "error", err)
		t.Revert(err)
		return t, err
	}
	t.Commit()
	return t, nil
}

// Busy reports whether a toggle for id is in flight.
func (p *Policy) Busy(id string) bool { return p.guard.Busy(id) }

// Oldest returns the item with the earliest creation time. Items without one
// count as oldest; ties go to the smaller id.
func Oldest(items []gallery.Item) gallery.Item {
	var oldest gallery.Item
	for i, it := range items {
		if i == 0 || it.CreatedAt.Before(oldest.CreatedAt) ||
			(it.CreatedAt.Equal(oldest.CreatedAt) && it.ID < oldest.ID) {
			oldest = it
		}
	}
	return oldest
}
