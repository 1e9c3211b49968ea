package pixelprompt

import "embed"

// EmbeddedAssets holds the page script served at /public/pixelprompt.js.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
