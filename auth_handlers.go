package pixelprompt

import (
	"context"
	"crypto/subtle"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/eringen/pixelprompt/auth"
)

// safeNext keeps redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}

// handleLogin sends the visitor to the identity provider with a fresh state
// value that the callback must echo.
func (a *App) handleLogin(c echo.Context) error {
	if !a.Config.Hosted() {
		return echo.ErrNotFound
	}
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	state := uuid.NewString()
	v.set(keyState, state)
	v.set(keyNext, safeNext(c.QueryParam("next")))
	if err := v.save(c); err != nil {
		return err
	}

	target, err := url.Parse(a.Config.LoginURL)
	if err != nil {
		return err
	}
	q := target.Query()
	q.Set("state", state)
	q.Set("redirect_uri", BuildURL(a.Config.URL, "auth", "callback"))
	target.RawQuery = q.Encode()
	return c.Redirect(http.StatusSeeOther, target.String())
}

// handleCallback accepts the identity token, starts the user session and
// migrates the guest preferences once.
func (a *App) handleCallback(c echo.Context) error {
	if !a.Config.Hosted() {
		return echo.ErrNotFound
	}
	ip := c.RealIP()
	if wait := a.signInLimiter.RetryAfter(ip); wait > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		return c.String(http.StatusTooManyRequests, "Too many sign-in attempts. Try again later.")
	}
	v, err := a.visitor(c)
	if err != nil {
		return err
	}

	want := v.str(keyState)
	got := c.FormValue("state")
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		a.signInLimiter.Fail(ip)
		return c.String(http.StatusBadRequest, "Sign-in expired. Please try again.")
	}
	id, err := a.Verifier.Verify(c.FormValue("token"))
	if err != nil {
		a.signInLimiter.Fail(ip)
		msg := "Sign-in failed."
		if errors.Is(err, auth.ErrExpiredToken) {
			msg = "Sign-in expired. Please try again."
		}
		a.log.Info("sign-in rejected", "op", "auth.callback", "ip", ip, "error", err)
		return c.String(http.StatusUnauthorized, msg)
	}

	a.signInLimiter.Clear(ip)
	next := safeNext(v.str(keyNext))
	v.unset(keyState, keyNext)
	if v.uid() != id.UID {
		v.signIn(id)
	}
	a.syncGuestPrefs(c.Request().Context(), v)
	if err := v.save(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, next)
}

// syncGuestPrefs runs the migration of local likes and saves for the signed-in
// user unless this session already did. A failed run is retried on the next
// sign-in; the local sets are kept either way.
func (a *App) syncGuestPrefs(ctx context.Context, v *visitor) {
	uid := v.uid()
	if uid == "" || v.flag(keySynced) {
		return
	}
	report, err := a.Migrator.Migrate(ctx, uid, v.prefs.Liked(), v.prefs.Saved())
	a.Metrics.RecordMigration(report, err)
	if err != nil {
		a.log.Error("migrate guest preferences failed", "op", "migrate", "user", uid, "error", err)
	} else {
		v.set(keySynced, true)
	}
	if _, err := a.Badges.Refresh(ctx, uid); err != nil {
		a.log.Warn("refresh badge counts failed", "op", "badges.refresh", "user", uid, "error", err)
	}
}

func (a *App) handleLogout(c echo.Context) error {
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	if uid := v.uid(); uid != "" {
		a.Badges.Forget(uid)
		a.Pagers.Forget(v.pagerKey())
	}
	v.signOut()
	if err := v.save(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/")
}
