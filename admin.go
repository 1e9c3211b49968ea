package pixelprompt

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/feed"
	"github.com/eringen/pixelprompt/gallery"
	"github.com/eringen/pixelprompt/hero"
)

// itemForm is the admin create/update form.
type itemForm struct {
	ID          string `form:"id"`
	Title       string `form:"title" validate:"required,max=200"`
	Prompt      string `form:"prompt" validate:"max=4000"`
	Suggestions string `form:"suggestions" validate:"max=2000"`
	Tags        string `form:"tags" validate:"max=1000"`
	Category    string `form:"filter" validate:"max=60"`
	Credits     string `form:"credits" validate:"max=200"`
	CreditsLink string `form:"creditsLink" validate:"omitempty,url,max=500"`
}

func (f itemForm) item() gallery.Item {
	return gallery.Item{
		Title:       strings.TrimSpace(f.Title),
		Prompt:      strings.TrimSpace(f.Prompt),
		Suggestions: SplitCSV(f.Suggestions),
		Tags:        SplitCSV(f.Tags),
		Category:    strings.TrimSpace(f.Category),
		Credits:     strings.TrimSpace(f.Credits),
		CreditsLink: strings.TrimSpace(f.CreditsLink),
	}
}

func (a *App) handleAdmin(c echo.Context) error {
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	vw := a.viewer(c, v)
	if v.uid() == "" {
		return Render(c, a.Views.AdminLogin(AdminLoginPage{Viewer: vw}))
	}
	ok, err := a.isAdmin(c, v)
	if err != nil {
		code, _ := remoteStatus(err)
		return echo.NewHTTPError(code).SetInternal(err)
	}
	if !ok {
		a.log.Info("admin access denied", "op", "admin.check", "user", v.uid())
		return Render(c, a.Views.AdminLogin(AdminLoginPage{Viewer: vw, Denied: true, UID: v.uid()}))
	}

	page := AdminPage{
		Meta:    PageMeta{Title: "Admin | " + a.Config.Name, URL: BuildURL(a.Config.URL, "admin"), OGType: "website"},
		Viewer:  vw,
		Message: c.QueryParam("msg"),
	}
	t, err := a.adminTable(c)
	if err != nil {
		a.log.Error("load catalog failed", "op", "admin.items", "error", err)
		_, msg := remoteStatus(err)
		page.Error = "Failed to load: " + msg
	}
	page.Rows = t.Rows()
	page.Categories = t.Categories()
	page.Category = categoryParam(c)
	page.Search = c.QueryParam("q")
	page.Sort, page.Desc = t.Sort()
	return Render(c, a.Views.Admin(page))
}

// adminTable loads the whole catalog and applies the filter, search and sort
// query parameters. click applies a column header click on top of sort/dir.
func (a *App) adminTable(c echo.Context) (*feed.Table, error) {
	t := feed.NewTable()
	items, err := a.Repo.AllItems(c.Request().Context())
	if err != nil {
		return t, err
	}
	t.Load(items)
	t.SetCategory(categoryParam(c))
	t.SetSearch(c.QueryParam("q"))
	t.SetSort(c.QueryParam("sort"), c.QueryParam("dir") == "desc")
	t.ClickSort(c.QueryParam("click"))
	return t, nil
}

type adminItemsResponse struct {
	Rows       []gallery.Item `json:"rows"`
	Categories []string       `json:"categories"`
	Sort       string         `json:"sort"`
	Dir        string         `json:"dir"`
}

func (a *App) handleAdminItems(c echo.Context) error {
	t, err := a.adminTable(c)
	if err != nil {
		return a.remoteError(c, "admin.items", err)
	}
	field, desc := t.Sort()
	dir := "asc"
	if desc {
		dir = "desc"
	}
	return c.JSON(http.StatusOK, adminItemsResponse{Rows: t.Rows(), Categories: t.Categories(), Sort: field, Dir: dir})
}

func (a *App) handleAdminItem(c echo.Context) error {
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	page := AdminFormPage{Viewer: a.viewer(c, v), Categories: gallery.Categories}
	if id := c.Param("id"); id != "new" {
		page.Item, err = a.Repo.Item(c.Request().Context(), id)
		if docstore.IsNotFound(err) {
			return c.NoContent(http.StatusNotFound)
		}
		if err != nil {
			return err
		}
	}
	return Render(c, a.Views.AdminForm(page))
}

func (a *App) handleAdminSave(c echo.Context) error {
	ctx := c.Request().Context()
	var form itemForm
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid form."})
	}
	if err := c.Validate(&form); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	it := form.item()

	var previous gallery.Item
	if form.ID != "" {
		var err error
		if previous, err = a.Repo.Item(ctx, form.ID); err != nil {
			return a.remoteError(c, "admin.load", err)
		}
	}

	file, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid upload."})
	case file.Size > maxUploadSize:
		return c.JSON(http.StatusBadRequest, errorBody{Error: "File too large (max 10MB)"})
	default:
		src, err := file.Open()
		if err != nil {
			return err
		}
		up, err := storeImage(ctx, a.Blobs, src)
		src.Close()
		if errors.Is(err, errInvalidImage) {
			return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid image: " + err.Error()})
		}
		if err != nil {
			a.log.Error("store upload failed", "op", "admin.upload", "item", form.ID, "error", err)
			code, msg := remoteStatus(err)
			msg = "Error uploading file: " + msg
			if code == http.StatusForbidden {
				msg += " Check the upload directory permissions and that you are signed in as an admin."
			}
			return c.JSON(code, errorBody{Error: msg})
		}
		it.ImageURL, it.StorageRef = up.URL, up.Ref
	}

	id, msg := form.ID, "Updated"
	if id != "" {
		err = a.Repo.UpdateItem(ctx, id, it)
	} else {
		msg = "Uploaded"
		id, err = a.Repo.CreateItem(ctx, it)
	}
	if err != nil {
		if it.StorageRef != "" {
			a.deleteBlob(c, it.StorageRef)
		}
		return a.remoteError(c, "admin.save", err)
	}
	if it.StorageRef != "" && previous.StorageRef != "" && previous.StorageRef != it.StorageRef {
		a.deleteBlob(c, previous.StorageRef)
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, map[string]string{"id": id, "message": msg})
}

// deleteBlob removes an uploaded file. Failures are logged and ignored.
func (a *App) deleteBlob(c echo.Context, ref string) {
	if err := a.Blobs.Delete(c.Request().Context(), ref); err != nil {
		a.log.Warn("delete blob failed", "op", "blob.delete", "ref", ref, "error", err)
	}
}

func (a *App) handleAdminDelete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	it, err := a.Repo.Item(ctx, id)
	if err != nil {
		return a.remoteError(c, "admin.delete", err)
	}
	if err := a.Repo.DeleteItem(ctx, id); err != nil {
		return a.remoteError(c, "admin.delete", err)
	}
	if it.StorageRef != "" {
		a.deleteBlob(c, it.StorageRef)
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, map[string]string{"deleted": id})
}

type heroResponse struct {
	ID    string `json:"id"`
	Hero  bool   `json:"hero"`
	State string `json:"state"`
}

type heroConflict struct {
	Error       string `json:"error"`
	OldestID    string `json:"oldestId"`
	OldestTitle string `json:"oldestTitle"`
	Count       int    `json:"count"`
	Prompt      string `json:"prompt"`
}

// handleAdminHero sets the hero flag. Promoting into a full hero set answers
// 409 naming the oldest hero; the client repeats the request with
// confirm=<oldest id> to demote it.
func (a *App) handleAdminHero(c echo.Context) error {
	id := c.Param("id")
	enable, err := strconv.ParseBool(c.FormValue("hero"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "hero must be true or false"})
	}
	tg, err := a.Heroes.Toggle(c.Request().Context(), id, enable, hero.ConfirmID(c.FormValue("confirm")))

	var ce *hero.ConfirmationError
	switch {
	case errors.As(err, &ce):
		a.Metrics.RecordHeroToggle(enable, "unconfirmed")
		return c.JSON(http.StatusConflict, heroConflict{
			Error:       "Confirmation required.",
			OldestID:    ce.Oldest.ID,
			OldestTitle: ce.Oldest.Title,
			Count:       ce.Count,
			Prompt:      ce.Prompt(),
		})
	case errors.Is(err, hero.ErrBusy):
		a.Metrics.RecordHeroToggle(enable, "busy")
		return c.JSON(http.StatusTooManyRequests, errorBody{Error: "Hero update already in progress."})
	case err != nil:
		a.Metrics.RecordHeroToggle(enable, "failed")
		code, _ := remoteStatus(err)
		return c.JSON(code, errorBody{Error: "Failed to update hero status."})
	}
	a.Metrics.RecordHeroToggle(enable, "ok")
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, heroResponse{ID: id, Hero: tg.Value(), State: tg.State.String()})
}

type siteForm struct {
	LearnURL string `form:"learnUrl" validate:"omitempty,url,max=500"`
}

// handleAdminSite updates the learn link and, when socialName fields are
// posted, the about page links.
func (a *App) handleAdminSite(c echo.Context) error {
	ctx := c.Request().Context()
	var form siteForm
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid form."})
	}
	if err := c.Validate(&form); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	if form.LearnURL != "" {
		if err := a.Repo.SetLearnURL(ctx, form.LearnURL); err != nil {
			return a.remoteError(c, "site.learn", err)
		}
	}
	params, err := c.FormParams()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid form."})
	}
	if names, ok := params["socialName"]; ok {
		links := params["socialLink"]
		var socials []gallery.Social
		for i, name := range names {
			name = strings.TrimSpace(name)
			if name == "" || i >= len(links) {
				continue
			}
			socials = append(socials, gallery.Social{Name: name, Link: strings.TrimSpace(links[i])})
		}
		if err := a.Repo.SetSocials(ctx, socials); err != nil {
			return a.remoteError(c, "site.about", err)
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Saved"})
}
