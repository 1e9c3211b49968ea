package pixelprompt

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/eringen/pixelprompt/auth"
	"github.com/eringen/pixelprompt/engage"
	"github.com/eringen/pixelprompt/gallery"
	"github.com/eringen/pixelprompt/prefs"
)

const sessionName = "pp_session"

// Session value keys.
const (
	keyUID    = "uid"
	keyName   = "name"
	keyEmail  = "email"
	keyAdmin  = "admin"
	keySynced = "synced"
	keyGuest  = "guest"
	keyState  = "state"
	keyNext   = "next"
)

const visitorContextKey = "pp_visitor"

func (a *App) setupMiddleware() {
	e := a.Echo

	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)

	e.HTTPErrorHandler = a.httpErrorHandler
	e.Validator = newFormValidator()

	e.Pre(middleware.NonWWWRedirect())

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			c.Logger().Infof("%s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	e.Use(middleware.Recover())

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/public/") ||
				strings.HasPrefix(path, uploadsPrefix) ||
				strings.HasSuffix(path, "/ws")
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' https: data: blob:; font-src 'self'; connect-src 'self' ws: wss:; media-src 'self' data:",
		HSTSMaxAge:            31536000,
		HSTSExcludeSubdomains: false,
	}))

	e.Use(session.Middleware(a.newSessionStore()))

	e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		ContextKey:  middleware.DefaultCSRFConfig.ContextKey,
		TokenLookup: "header:X-CSRF-Token,form:_csrf",
		CookieName:  "_csrf",
		CookiePath:  "/",
		CookieSameSite: func() http.SameSite {
			return http.SameSiteLaxMode
		}(),
		CookieSecure: a.Config.CookieSecure,
		Skipper: func(c echo.Context) bool {
			// The identity provider posts back cross-site; the sign-in state
			// parameter protects the callback instead.
			return c.Request().URL.Path == "/auth/callback/"
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return c.String(http.StatusForbidden, "Forbidden")
		},
	}))

	e.Use(middleware.AddTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		RedirectCode: http.StatusMovedPermanently,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/public") ||
				strings.HasPrefix(path, uploadsPrefix) ||
				strings.HasPrefix(path, "/api/") ||
				strings.HasSuffix(path, "/ws") ||
				path == "/sitemap.xml" || path == "/feed.xml" || path == "/robots.txt" || path == "/metrics"
		},
	}))

	e.Use(cacheControlMiddleware)
}

func cacheControlMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		switch {
		case strings.HasPrefix(path, "/public/"), strings.HasPrefix(path, uploadsPrefix):
			c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		case path == "/sitemap.xml" || path == "/feed.xml" || path == "/robots.txt":
			c.Response().Header().Set("Cache-Control", "public, max-age=86400")
		case strings.HasPrefix(path, "/admin"), strings.HasPrefix(path, "/api/"), strings.HasPrefix(path, "/auth/"):
			c.Response().Header().Set("Cache-Control", "no-store")
		default:
			// Pages carry the visitor's likes, saves and theme.
			c.Response().Header().Set("Cache-Control", "private, no-cache")
		}
		return next(c)
	}
}

func (a *App) newSessionStore() *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   60 * 60 * 24 * 365,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

// visitor is the session state of one request: identity and guest key in
// the cookie, preferences in the guests collection.
type visitor struct {
	sess  *sessions.Session
	prefs *prefs.Store
	store *guestPrefs
	dirty bool

	adminChecked bool
	admin        bool
}

// guestPrefs is the prefs.Storage of one request. It loads the guest's
// document on first use and writes changed values back on save, so the id
// sets never travel in the cookie.
type guestPrefs struct {
	v    *visitor
	ctx  context.Context
	repo *gallery.Repo
	log  *slog.Logger

	values map[string]string
	loaded bool
	err    error
	dirty  bool
}

func (g *guestPrefs) load() {
	if g.loaded {
		return
	}
	g.loaded = true
	key := g.v.guestKey()
	values, err := g.repo.GuestPrefs(g.ctx, key)
	if err != nil {
		g.log.Warn("load guest prefs failed", "op", "prefs.load", "guest", key, "error", err)
		g.err = err
		values = map[string]string{}
	}
	g.values = values
}

func (g *guestPrefs) Get(key string) (string, bool) {
	g.load()
	v, ok := g.values[key]
	return v, ok
}

func (g *guestPrefs) Set(key, value string) {
	g.load()
	g.values[key] = value
	g.dirty = true
}

// flush writes changed values. Values read after a failed load are not
// written back over the stored document.
func (g *guestPrefs) flush() error {
	if !g.dirty {
		return nil
	}
	if g.err != nil {
		return g.err
	}
	if err := g.repo.SetGuestPrefs(g.ctx, g.v.guestKey(), g.values); err != nil {
		return err
	}
	g.dirty = false
	return nil
}

// visitor returns the request's session state, loading it once per request.
// A session cookie that fails to decode is replaced by a fresh one.
func (a *App) visitor(c echo.Context) (*visitor, error) {
	if v, ok := c.Get(visitorContextKey).(*visitor); ok {
		return v, nil
	}
	sess, err := session.Get(sessionName, c)
	if sess == nil {
		return nil, err
	}
	if err != nil {
		c.Logger().Warnf("session reset: %v", err)
	}
	v := &visitor{sess: sess}
	v.store = &guestPrefs{v: v, ctx: c.Request().Context(), repo: a.Repo, log: a.log}
	v.prefs = prefs.New(v.store)
	c.Set(visitorContextKey, v)
	return v, nil
}

// save writes changed preferences and, if anything changed, the session
// cookie. Call before the response body is written.
func (v *visitor) save(c echo.Context) error {
	if err := v.store.flush(); err != nil {
		return err
	}
	if !v.dirty {
		return nil
	}
	v.dirty = false
	return v.sess.Save(c.Request(), c.Response())
}

func (v *visitor) str(key string) string {
	s, _ := v.sess.Values[key].(string)
	return s
}

func (v *visitor) flag(key string) bool {
	b, _ := v.sess.Values[key].(bool)
	return b
}

func (v *visitor) set(key string, value any) {
	v.sess.Values[key] = value
	v.dirty = true
}

func (v *visitor) unset(keys ...string) {
	for _, k := range keys {
		if _, ok := v.sess.Values[k]; ok {
			delete(v.sess.Values, k)
			v.dirty = true
		}
	}
}

func (v *visitor) identity() auth.Identity {
	return auth.Identity{
		UID:        v.str(keyUID),
		Name:       v.str(keyName),
		Email:      v.str(keyEmail),
		AdminClaim: v.flag(keyAdmin),
	}
}

func (v *visitor) uid() string { return v.str(keyUID) }

func (v *visitor) signIn(id auth.Identity) {
	v.set(keyUID, id.UID)
	v.set(keyName, id.Name)
	v.set(keyEmail, id.Email)
	v.set(keyAdmin, id.AdminClaim)
	v.unset(keySynced)
}

func (v *visitor) signOut() {
	v.unset(keyUID, keyName, keyEmail, keyAdmin, keySynced)
	v.adminChecked = false
	v.admin = false
}

// guestKey identifies an anonymous visitor for pagers and cooldowns.
func (v *visitor) guestKey() string {
	if k := v.str(keyGuest); k != "" {
		return k
	}
	k := uuid.NewString()
	v.set(keyGuest, k)
	return k
}

// pagerKey keys the session's feed pager.
func (v *visitor) pagerKey() string {
	return v.guestKey()
}

func (v *visitor) actor() engage.Actor {
	return engage.Actor{UserID: v.uid(), GuestKey: v.guestKey(), Prefs: v.prefs}
}

// isAdmin resolves admin access for the visitor once per request.
func (a *App) isAdmin(c echo.Context, v *visitor) (bool, error) {
	if v.adminChecked {
		return v.admin, nil
	}
	ok, err := auth.IsAdmin(c.Request().Context(), v.identity(), a.Repo)
	if err != nil {
		return false, err
	}
	v.adminChecked = true
	v.admin = ok
	return ok, nil
}

func (a *App) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := a.visitor(c)
		if err != nil {
			return err
		}
		ok, err := a.isAdmin(c, v)
		if err != nil {
			return a.remoteError(c, "admin.check", err)
		}
		if !ok {
			if c.Request().Method == http.MethodGet && !strings.HasPrefix(c.Request().URL.Path, "/api/") {
				return c.Redirect(http.StatusSeeOther, "/admin/")
			}
			return c.JSON(http.StatusForbidden, errorBody{Error: "Admin access required."})
		}
		return next(c)
	}
}

// CsrfToken extracts the CSRF token from the Echo context.
func CsrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}
