package main

import (
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnv loads .env.local and .env. godotenv.Load does not overwrite
// variables that are already set, so the process environment wins and
// .env.local wins over .env.
func loadDotEnv() []string {
	var loaded []string
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}
