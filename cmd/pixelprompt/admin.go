package main

import (
	"context"
	"fmt"
	"time"

	"github.com/eringen/pixelprompt/auth"
	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/gallery"
)

// openRepo opens the configured database for a one-off command.
func openRepo() (*gallery.Repo, func() error, error) {
	cfg := siteConfig()
	log := newLogger()
	store, err := docstore.Open(cfg.DatabasePath, docstore.WithLogger(log))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return gallery.NewRepo(store, log), store.Close, nil
}

func runSeed() error {
	repo, closeFn, err := openRepo()
	if err != nil {
		return err
	}
	defer closeFn()
	n, err := repo.SeedDemo(context.Background())
	if err != nil {
		return fmt.Errorf("seed demo catalog (%d written): %w", n, err)
	}
	fmt.Printf("Seeded %d demo images.\n", n)
	return nil
}

func runGrantAdmin(uid string) error {
	repo, closeFn, err := openRepo()
	if err != nil {
		return err
	}
	defer closeFn()
	if err := repo.GrantAdmin(context.Background(), uid); err != nil {
		return fmt.Errorf("grant admin: %w", err)
	}
	fmt.Printf("Granted admin to %s.\n", uid)
	return nil
}

func runToken(uid string, admin bool) error {
	cfg := siteConfig()
	v := auth.NewVerifier(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthAudience)
	token, err := v.Issue(auth.Identity{UID: uid, AdminClaim: admin}, time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
