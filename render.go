package pixelprompt

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/engage"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

type errorBody struct {
	Error    string `json:"error"`
	LoginURL string `json:"loginUrl,omitempty"`
}

// remoteStatus maps a document store failure to a status and the inline text
// shown to the user.
func remoteStatus(err error) (int, string) {
	switch docstore.KindOf(err) {
	case docstore.KindPermission:
		return http.StatusForbidden, "Permission denied. Sign in again or check that your account may do this."
	case docstore.KindNotFound:
		return http.StatusNotFound, "Not found."
	case docstore.KindInvalid:
		return http.StatusBadRequest, "The request was rejected."
	}
	return http.StatusBadGateway, "Couldn't reach the gallery. Please try again."
}

// remoteError logs a failed remote operation and answers with JSON.
func (a *App) remoteError(c echo.Context, op string, err error) error {
	code, msg := remoteStatus(err)
	if code == http.StatusNotFound {
		a.log.Info("remote not found", "op", op, "path", c.Path(), "error", err)
	} else {
		a.log.Error("remote operation failed", "op", op, "path", c.Path(), "error", err)
	}
	return c.JSON(code, errorBody{Error: msg})
}

// viewer builds the page header data for v.
func (a *App) viewer(c echo.Context, v *visitor) Viewer {
	vw := Viewer{
		Hosted:   a.Config.Hosted(),
		Theme:    v.prefs.Theme(),
		CSRF:     CsrfToken(c),
		LoginURL: "/auth/login/",
	}
	uid := v.uid()
	if !vw.Hosted {
		vw.Badges = engage.GuestCounts(v.prefs)
		return vw
	}
	if uid == "" {
		return vw
	}
	vw.SignedIn = true
	vw.Name = v.identity().DisplayName()
	if ok, err := a.isAdmin(c, v); err == nil {
		vw.Admin = ok
	}
	if counts, ok := a.Badges.Get(uid); ok {
		vw.Badges = counts
	} else if counts, err := a.Badges.Refresh(c.Request().Context(), uid); err == nil {
		vw.Badges = counts
	} else {
		a.log.Warn("refresh badge counts failed", "op", "badges.refresh", "user", uid, "error", err)
	}
	return vw
}
