// Package pixelprompt is the PixelPrompt image gallery server, built with Go,
// Echo, and templ. It serves the public gallery (hero slider, paginated feed,
// image viewer with comments, likes and saves) and the admin dashboard.
//
// Users provide their own templ components via the ViewFuncs struct, and
// pixelprompt handles the handler logic, middleware, and storage.
package pixelprompt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/eringen/pixelprompt/auth"
	"github.com/eringen/pixelprompt/blob"
	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/engage"
	"github.com/eringen/pixelprompt/feed"
	"github.com/eringen/pixelprompt/gallery"
	"github.com/eringen/pixelprompt/hero"
)

const uploadsPrefix = "/uploads/"

// ViewFuncs holds user-provided templ components that the framework calls
// when rendering pages.
type ViewFuncs struct {
	Home        func(p HomePage) templ.Component
	Item        func(p ItemPage) templ.Component
	Collection  func(p CollectionPage) templ.Component
	Admin       func(p AdminPage) templ.Component
	AdminForm   func(p AdminFormPage) templ.Component
	AdminLogin  func(p AdminLoginPage) templ.Component
	NotFound    func() templ.Component
	ServerError func() templ.Component
}

// App is the central application state. It wires together the document
// store, the gallery components, handlers and middleware, and is torn down
// by Close.
type App struct {
	Config SiteConfig
	Echo   *echo.Echo
	Store  docstore.Client
	Repo   *gallery.Repo
	Cache  *GalleryCache
	Views  ViewFuncs

	Heroes   *hero.Policy
	Toggler  *engage.Toggler
	Migrator *engage.Migrator
	Badges   *engage.Badges
	Pagers   *feed.Registry
	Blobs    blob.Store
	Verifier *auth.Verifier
	Metrics  *Metrics

	log           *slog.Logger
	registry      *prometheus.Registry
	signInLimiter *SignInLimiter
	cooldown      *engage.Cooldown
	sqlite        *docstore.SQLite
	rdb           *redis.Client
	ownsRedis     bool
	stopBroker    context.CancelFunc
	customRoutes  []func(*App)
	staticDir     string
	ready         bool
}

// New creates a new App with the given configuration and view functions.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     views,
		staticDir: "public",
	}

	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}

	return a
}

// Init opens the store and wires components, middleware and routes. Start
// calls it; tests call it directly and drive a.Echo with httptest.
func (a *App) Init() error {
	if a.ready {
		return nil
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("pixelprompt: SessionSecret is required")
	}
	if a.Config.Hosted() && a.Config.LoginURL == "" {
		return fmt.Errorf("pixelprompt: LoginURL is required when AuthSecret is set")
	}

	if a.rdb == nil && a.Config.RedisURL != "" {
		opt, err := redis.ParseURL(a.Config.RedisURL)
		if err != nil {
			return fmt.Errorf("pixelprompt: parse redis url: %w", err)
		}
		a.rdb = redis.NewClient(opt)
		a.ownsRedis = true
	}

	// Initialize store
	if a.Store == nil {
		var opts []docstore.Option
		opts = append(opts, docstore.WithLogger(a.log))
		if a.rdb != nil {
			broker := docstore.NewRedisBroker(a.rdb, a.log)
			ctx, cancel := context.WithCancel(context.Background())
			if err := broker.Start(ctx); err != nil {
				cancel()
				return fmt.Errorf("pixelprompt: start change broker: %w", err)
			}
			a.stopBroker = cancel
			opts = append(opts, docstore.WithBroker(broker))
		}
		store, err := docstore.Open(a.Config.DatabasePath, opts...)
		if err != nil {
			return fmt.Errorf("pixelprompt: init store: %w", err)
		}
		a.sqlite = store
		a.Store = store
	}
	if a.Blobs == nil {
		a.Blobs = blob.NewDir(a.Config.UploadDir, uploadsPrefix)
	}

	a.Metrics = NewMetrics(a.registry)
	a.Repo = gallery.NewRepo(a.Metrics.Instrument(a.Store), a.log)
	a.Cache = NewGalleryCache(a.Repo, a.Config.GalleryCacheTTL)
	a.Heroes = hero.NewPolicy(a.Repo, a.log)
	a.Badges = engage.NewBadges(a.Repo)
	a.cooldown = engage.NewCooldown(a.Config.ToggleCooldown)
	a.Toggler = engage.NewToggler(a.Repo, a.Config.Hosted(), a.cooldown, a.Badges, a.log)
	a.Migrator = engage.NewMigrator(a.Repo, a.log)
	a.Pagers = feed.NewRegistry(a.Repo, gallery.FeedPageSize, a.Config.MaxPagers, a.Config.PagerTTL)
	a.Verifier = auth.NewVerifier(a.Config.AuthSecret, a.Config.AuthIssuer, a.Config.AuthAudience)

	a.signInLimiter = NewSignInLimiter(a.Config.SignInAttempts, a.Config.SignInLockout)

	a.setupMiddleware()
	a.setupRoutes()

	// Apply custom routes
	for _, fn := range a.customRoutes {
		fn(a)
	}

	a.ready = true
	return nil
}

// Start initializes the app and starts the server.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}
	a.log.Info("pixelprompt listening", "addr", a.Config.Addr, "hosted", a.Config.Hosted())
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	// Embedded page script, then the user's static assets.
	embeddedFS, _ := fs.Sub(EmbeddedAssets, "embedded")
	embeddedHandler := http.FileServer(http.FS(embeddedFS))
	e.GET("/public/pixelprompt.js", echo.WrapHandler(http.StripPrefix("/public/", embeddedHandler)))
	e.Static("/public", a.staticDir)
	if dir, ok := a.Blobs.(*blob.Dir); ok {
		e.Static(strings.TrimSuffix(uploadsPrefix, "/"), dir.Root())
	}
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/metrics", echo.WrapHandler(MetricsHandler(a.registry)))

	// Public pages
	e.GET("/", a.handleHome)
	e.GET("/images/:id/", a.handleItem)
	e.GET("/liked/", a.handleLikedPage)
	e.GET("/saved/", a.handleSavedPage)
	e.GET("/learn/", a.handleLearn)
	e.POST("/theme/", a.handleTheme)

	// Public API
	e.GET("/api/feed/", a.handleFeedPage)
	e.GET("/api/items/:id/", a.handleItemJSON)
	e.POST("/api/items/:id/like/", a.handleLike)
	e.POST("/api/items/:id/save/", a.handleSave)
	e.GET("/api/me/badges/", a.handleBadges)
	e.GET("/api/me/liked/", a.handleLikedJSON)
	e.GET("/api/me/saved/", a.handleSavedJSON)
	e.GET("/api/notifications/", a.handleNotifications)
	e.GET("/api/news/", a.handleNews)
	e.GET("/api/site/about/", a.handleAbout)

	// Comments
	e.POST("/images/:id/comments/", a.handleAddComment)
	e.GET("/images/:id/comments/ws", a.handleCommentsWS)

	// Sign-in
	e.GET("/auth/login/", a.handleLogin)
	e.GET("/auth/callback/", a.handleCallback)
	e.POST("/auth/callback/", a.handleCallback)
	e.POST("/auth/logout/", a.handleLogout)

	// Admin
	e.GET("/admin/", a.handleAdmin)
	e.GET("/api/admin/items/", a.handleAdminItems, a.requireAdmin)
	e.GET("/admin/item/:id/", a.handleAdminItem, a.requireAdmin)
	e.POST("/admin/save/", a.handleAdminSave, a.requireAdmin)
	e.DELETE("/admin/item/:id/", a.handleAdminDelete, a.requireAdmin)
	e.POST("/admin/item/:id/hero/", a.handleAdminHero, a.requireAdmin)
	e.POST("/admin/site/", a.handleAdminSite, a.requireAdmin)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.cooldown != nil {
		a.cooldown.Stop()
	}
	if a.signInLimiter != nil {
		a.signInLimiter.Stop()
	}
	if a.stopBroker != nil {
		a.stopBroker()
	}
	var err error
	if a.sqlite != nil {
		err = a.sqlite.Close()
	}
	if a.rdb != nil && a.ownsRedis {
		a.rdb.Close()
	}
	return err
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("pixelprompt: required environment variable %s is not set", key)
	}
	return v
}
