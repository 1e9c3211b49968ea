package engage

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Report summarises one migration run.
type Report struct {
	Likes         int `json:"likes"`
	Saves         int `json:"saves"`
	Skipped       int `json:"skipped"`
	CounterErrors int `json:"counterErrors"`
}

// Migrator copies guest likes and saves into a user's records on sign-in.
// It only adds: records already positive are left alone and local
// preferences are never cleared, so running it again is harmless.
type Migrator struct {
	store Store
	group singleflight.Group
	log   *slog.Logger
}

// NewMigrator creates a Migrator over store.
func NewMigrator(store Store, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{store: store, log: log}
}

// Migrate merges the liked and saved ids into uid's records. Concurrent calls
// for the same user share one run. The first failed read or flag write stops
// the run; counter failures are logged and skipped.
func (m *Migrator) Migrate(ctx context.Context, uid string, liked, saved []string) (Report, error) {
	v, err, _ := m.group.Do(uid, func() (any, error) {
		return m.migrate(ctx, uid, liked, saved)
	})
	r, _ := v.(Report)
	return r, err
}

func (m *Migrator) migrate(ctx context.Context, uid string, liked, saved []string) (Report, error) {
	var r Report
	for _, id := range liked {
		rec, err := m.store.Like(ctx, id, uid)
		if err != nil {
			return r, fmt.Errorf("migrate like %s: %w", id, err)
		}
		if rec.Liked {
			r.Skipped++
			continue
		}
		if err := m.store.SetLiked(ctx, id, uid, true, true); err != nil {
			return r, fmt.Errorf("migrate like %s: %w", id, err)
		}
		r.Likes++
		if err := m.store.AdjustLikes(ctx, id, 1); err != nil {
			r.CounterErrors++
			m.log.Warn("migrate like counter failed", "op", "migrate.counter", "item", id, "user", uid, "error", err)
		}
	}
	for _, id := range saved {
		rec, err := m.store.Save(ctx, id, uid)
		if err != nil {
			return r, fmt.Errorf("migrate save %s: %w", id, err)
		}
		if rec.Saved {
			r.Skipped++
			continue
		}
		if err := m.store.SetSaved(ctx, id, uid, true, true); err != nil {
			return r, fmt.Errorf("migrate save %s: %w", id, err)
		}
		r.Saves++
	}
	m.log.Info("migrated local preferences", "user", uid, "likes", r.Likes, "saves", r.Saves, "skipped", r.Skipped)
	return r, nil
}
