package pixelprompt

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/eringen/pixelprompt/blob"
	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/engage"
)

// SiteConfig holds all configuration for a PixelPrompt site.
type SiteConfig struct {
	Name        string // Site name (default "PixelPrompt")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for RSS and meta tags

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/pixelprompt.db")
	UploadDir    string // Directory for uploaded images (default "data/uploads")

	// Identity provider. An empty AuthSecret runs the site in guest mode:
	// likes and saves are kept per guest key, not per user.
	AuthSecret   string
	AuthIssuer   string
	AuthAudience string
	LoginURL     string // Sign-in page of the identity provider

	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	RedisURL       string   // Optional: share change notifications between instances
	AllowedOrigins []string // Websocket origins; empty allows any

	GalleryCacheTTL time.Duration // Hero and top-liked cache TTL (default 1min)
	ToggleCooldown  time.Duration // Repeat-click window for like/save (default 700ms)
	MaxPagers       int           // Feed pagers kept in memory (default 1000)
	PagerTTL        time.Duration // Idle feed pager lifetime (default 30min)

	SignInAttempts int           // Failed sign-in callbacks allowed per IP (default 5)
	SignInLockout  time.Duration // Lockout after SignInAttempts failures (default 1min)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "PixelPrompt"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/pixelprompt.db"
	}
	if c.UploadDir == "" {
		c.UploadDir = "data/uploads"
	}
	if c.GalleryCacheTTL == 0 {
		c.GalleryCacheTTL = time.Minute
	}
	if c.ToggleCooldown == 0 {
		c.ToggleCooldown = engage.DefaultCooldown
	}
	if c.MaxPagers == 0 {
		c.MaxPagers = 1000
	}
	if c.PagerTTL == 0 {
		c.PagerTTL = 30 * time.Minute
	}
	if c.SignInAttempts == 0 {
		c.SignInAttempts = 5
	}
	if c.SignInLockout == 0 {
		c.SignInLockout = time.Minute
	}
}

// Hosted reports whether an identity provider is configured.
func (c SiteConfig) Hosted() bool {
	return c.AuthSecret != ""
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithLogger sets the logger used by the domain components.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

// WithClient uses db instead of opening the SQLite database at
// SiteConfig.DatabasePath. The caller keeps ownership of db.
func WithClient(db docstore.Client) Option {
	return func(a *App) {
		a.Store = db
	}
}

// WithBlobStore stores uploads in bs instead of SiteConfig.UploadDir.
func WithBlobStore(bs blob.Store) Option {
	return func(a *App) {
		a.Blobs = bs
	}
}

// WithRedis shares change notifications through rdb. It overrides
// SiteConfig.RedisURL.
func WithRedis(rdb *redis.Client) Option {
	return func(a *App) {
		a.rdb = rdb
	}
}

// WithRegistry registers metrics on reg and serves it at /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) {
		a.registry = reg
	}
}
