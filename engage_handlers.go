package pixelprompt

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pixelprompt/engage"
)

type badgesResponse struct {
	engage.Counts
	LikedLabel string `json:"likedLabel"`
	SavedLabel string `json:"savedLabel"`
}

func newBadgesResponse(c engage.Counts) badgesResponse {
	return badgesResponse{
		Counts:     c,
		LikedLabel: engage.BadgeLabel(c.Liked),
		SavedLabel: engage.BadgeLabel(c.Saved),
	}
}

type toggleResponse struct {
	engage.Result
	Error string         `json:"error,omitempty"`
	Label badgesResponse `json:"labels"`
}

func (a *App) handleLike(c echo.Context) error {
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	displayed, _ := strconv.ParseInt(c.FormValue("count"), 10, 64)
	res, err := a.Toggler.ToggleLike(c.Request().Context(), v.actor(), c.Param("id"), displayed)
	return a.toggleReply(c, v, "like", res, err)
}

func (a *App) handleSave(c echo.Context) error {
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	res, err := a.Toggler.ToggleSave(c.Request().Context(), v.actor(), c.Param("id"))
	return a.toggleReply(c, v, "save", res, err)
}

// toggleReply answers a like or save. Reverted toggles still carry the
// result so the client can restore the previous state.
func (a *App) toggleReply(c echo.Context, v *visitor, kind string, res engage.Result, err error) error {
	hosted := a.Toggler.Hosted()
	switch {
	case errors.Is(err, engage.ErrSignInRequired):
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "Sign in to like and save images.", LoginURL: "/auth/login/"})
	case errors.Is(err, engage.ErrCoolingDown), errors.Is(err, engage.ErrBusy):
		return c.JSON(http.StatusTooManyRequests, errorBody{Error: "Slow down a little."})
	case err != nil:
		a.Metrics.RecordToggle(kind, hosted, res.State)
		code, msg := remoteStatus(err)
		return c.JSON(code, toggleResponse{Result: res, Error: msg, Label: newBadgesResponse(res.Badges)})
	}
	a.Metrics.RecordToggle(kind, hosted, res.State)
	if err := v.save(c); err != nil {
		return a.remoteError(c, "prefs.save", err)
	}
	return c.JSON(http.StatusOK, toggleResponse{Result: res, Label: newBadgesResponse(res.Badges)})
}

func (a *App) handleBadges(c echo.Context) error {
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	if !a.Config.Hosted() {
		return c.JSON(http.StatusOK, newBadgesResponse(engage.GuestCounts(v.prefs)))
	}
	uid := v.uid()
	if uid == "" {
		return c.JSON(http.StatusOK, newBadgesResponse(engage.Counts{}))
	}
	if counts, ok := a.Badges.Get(uid); ok && c.QueryParam("refresh") == "" {
		return c.JSON(http.StatusOK, newBadgesResponse(counts))
	}
	counts, err := a.Badges.Refresh(c.Request().Context(), uid)
	if err != nil {
		return a.remoteError(c, "badges.refresh", err)
	}
	return c.JSON(http.StatusOK, newBadgesResponse(counts))
}
