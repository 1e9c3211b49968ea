package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eringen/pixelprompt"
	"github.com/eringen/pixelprompt/views"
)

func runServe() error {
	cfg := siteConfig()
	cfg.SessionSecret = pixelprompt.MustEnv("SESSION_SECRET")
	log := newLogger()

	pages, err := views.New(cfg)
	if err != nil {
		return err
	}
	app := pixelprompt.New(cfg, pages, pixelprompt.WithLogger(log))
	defer app.Close()
	if err := app.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("pixelprompt listening", "addr", cfg.Addr, "hosted", cfg.Hosted(), "version", version)
		errc <- app.Echo.Start(cfg.Addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Echo.Shutdown(shutdownCtx)
}
