package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/eringen/pixelprompt"
)

func siteConfig() pixelprompt.SiteConfig {
	return pixelprompt.SiteConfig{
		Name:           pixelprompt.EnvOr("SITE_NAME", "PixelPrompt"),
		URL:            pixelprompt.EnvOr("SITE_URL", "http://localhost:3000"),
		Description:    pixelprompt.EnvOr("SITE_DESCRIPTION", "AI images and the prompts behind them"),
		Addr:           pixelprompt.EnvOr("ADDR", ":3000"),
		DatabasePath:   pixelprompt.EnvOr("DATABASE_PATH", "data/pixelprompt.db"),
		UploadDir:      pixelprompt.EnvOr("UPLOAD_DIR", "data/uploads"),
		AuthSecret:     os.Getenv("AUTH_SECRET"),
		AuthIssuer:     os.Getenv("AUTH_ISSUER"),
		AuthAudience:   os.Getenv("AUTH_AUDIENCE"),
		LoginURL:       os.Getenv("LOGIN_URL"),
		SessionSecret:  os.Getenv("SESSION_SECRET"),
		CookieSecure:   os.Getenv("COOKIE_SECURE") == "true",
		RedisURL:       os.Getenv("REDIS_URL"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(pixelprompt.EnvOr("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
