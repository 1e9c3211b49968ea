package pixelprompt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/engage"
	"github.com/eringen/pixelprompt/feed"
	"github.com/eringen/pixelprompt/gallery"
	"github.com/eringen/pixelprompt/prefs"
)

const (
	notificationCount = 5
	newsCount         = 50
)

func categoryParam(c echo.Context) string {
	if f := strings.TrimSpace(c.QueryParam("filter")); f != "" {
		return f
	}
	return gallery.CategoryAll
}

func (a *App) handleHome(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	page := HomePage{
		Meta: PageMeta{
			Title:       a.Config.Name,
			Description: a.Config.Description,
			URL:         BuildURL(a.Config.URL),
			OGType:      "website",
		},
		Categories: append([]string{gallery.CategoryAll}, gallery.Categories...),
		Category:   categoryParam(c),
		Search:     strings.TrimSpace(c.QueryParam("q")),
	}

	page.Heroes, err = a.Cache.Heroes(ctx)
	if err != nil {
		a.log.Warn("load heroes failed", "op", "home.heroes", "error", err)
		page.Heroes = demoHeroes()
	}
	page.Top, err = a.Cache.TopLiked(ctx)
	if err != nil {
		a.log.Warn("load top liked failed", "op", "home.top", "error", err)
		page.Top = gallery.DemoItems()
	}

	// A full page load starts the visitor's feed over.
	p := a.Pagers.Pager(v.pagerKey())
	p.Reset()
	p.SetCategory(page.Category)
	p.SetSearch(page.Search)
	first, err := p.Next(ctx)
	switch {
	case err == nil:
		page.Feed, page.FeedDone = first.Items, first.Done
		if len(first.Items) == 0 && page.Category == gallery.CategoryAll && page.Search == "" {
			// Empty catalog.
			page.Feed = gallery.DemoItems()
		}
		a.Metrics.RecordFeedPage("ok")
	case errors.Is(err, feed.ErrInFlight), errors.Is(err, feed.ErrStale):
		// The page script loads the first page itself.
		a.Metrics.RecordFeedPage("dropped")
	default:
		a.log.Error("load feed failed", "op", "home.feed", "category", page.Category, "error", err)
		_, page.FeedError = remoteStatus(err)
		page.Feed, page.FeedDone = gallery.DemoItems(), true
		a.Metrics.RecordFeedPage("error")
	}

	page.Liked, page.Saved = a.engagedSets(ctx, v)
	page.Viewer = a.viewer(c, v)
	if err := v.save(c); err != nil {
		return err
	}
	return Render(c, a.Views.Home(page))
}

func (a *App) handleItem(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	it, ok, err := a.openItem(ctx, c.Param("id"))
	if err != nil {
		code, _ := remoteStatus(err)
		return echo.NewHTTPError(code).SetInternal(err)
	}
	if !ok {
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}

	page := ItemPage{
		Meta: PageMeta{
			Title:       it.Title + " | " + a.Config.Name,
			Description: it.Prompt,
			URL:         BuildURL(a.Config.URL, "images", it.ID),
			OGType:      "article",
			Image:       it.ImageURL,
		},
		Item: it,
	}
	if !it.Demo {
		page.Liked, page.Saved, err = a.Toggler.State(ctx, v.actor(), it.ID)
		if err != nil {
			a.log.Warn("read engagement state failed", "op", "item.state", "item", it.ID, "error", err)
		}
		page.Comments, err = a.Repo.Comments(ctx, it.ID)
		if err != nil {
			a.log.Warn("load comments failed", "op", "comments.list", "item", it.ID, "error", err)
			_, page.CommentsError = remoteStatus(err)
		}
	} else {
		page.Liked, page.Saved = v.prefs.IsLiked(it.ID), v.prefs.IsSaved(it.ID)
	}
	page.Viewer = a.viewer(c, v)
	if err := v.save(c); err != nil {
		return err
	}
	return Render(c, a.Views.Item(page))
}

// openItem loads an item for viewing and counts the view. A missing item is
// reported with ok false and logged; demo ids resolve to the demo catalog.
func (a *App) openItem(ctx context.Context, id string) (gallery.Item, bool, error) {
	it, err := a.Repo.Item(ctx, id)
	if docstore.IsNotFound(err) {
		if demo, ok := gallery.DemoItem(id); ok {
			return demo, true, nil
		}
		a.log.Info("open missing item", "op", "item.open", "item", id)
		return gallery.Item{}, false, nil
	}
	if err != nil {
		a.log.Error("open item failed", "op", "item.open", "item", id, "error", err)
		return gallery.Item{}, false, err
	}
	if err := a.Repo.IncrementViews(ctx, id); err != nil {
		a.log.Warn("count view failed", "op", "item.views", "item", id, "error", err)
	} else {
		it.Views++
	}
	return it, true, nil
}

type itemResponse struct {
	Item  gallery.Item `json:"item"`
	Liked bool         `json:"liked"`
	Saved bool         `json:"saved"`
}

func (a *App) handleItemJSON(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	it, ok, err := a.openItem(ctx, c.Param("id"))
	if err != nil {
		return a.remoteError(c, "item.open", err)
	}
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody{Error: "Not found."})
	}
	resp := itemResponse{Item: it}
	if it.Demo {
		resp.Liked, resp.Saved = v.prefs.IsLiked(it.ID), v.prefs.IsSaved(it.ID)
	} else if resp.Liked, resp.Saved, err = a.Toggler.State(ctx, v.actor(), it.ID); err != nil {
		a.log.Warn("read engagement state failed", "op", "item.state", "item", it.ID, "error", err)
	}
	if err := v.save(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

type feedResponse struct {
	feed.Page
	Category string   `json:"category"`
	Liked    []string `json:"liked"`
	Saved    []string `json:"saved"`
}

func (a *App) handleFeedPage(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	p := a.Pagers.Pager(v.pagerKey())
	if c.QueryParam("reset") != "" {
		p.Reset()
	}
	p.SetCategory(categoryParam(c))
	p.SetSearch(strings.TrimSpace(c.QueryParam("q")))

	page, err := p.Next(ctx)
	switch {
	case errors.Is(err, feed.ErrInFlight), errors.Is(err, feed.ErrStale):
		a.Metrics.RecordFeedPage("dropped")
		return c.JSON(http.StatusConflict, errorBody{Error: "A page is already loading."})
	case err != nil:
		a.Metrics.RecordFeedPage("error")
		return a.remoteError(c, "feed.next", err)
	}
	a.Metrics.RecordFeedPage("ok")

	liked, saved := a.engagedSets(ctx, v)
	resp := feedResponse{Page: page, Category: p.Category(), Liked: []string{}, Saved: []string{}}
	for _, it := range page.Items {
		if liked[it.ID] {
			resp.Liked = append(resp.Liked, it.ID)
		}
		if saved[it.ID] {
			resp.Saved = append(resp.Saved, it.ID)
		}
	}
	if err := v.save(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// engagedSets returns the ids the visitor likes and saves. Lookup failures
// are logged and yield empty sets.
func (a *App) engagedSets(ctx context.Context, v *visitor) (liked, saved map[string]bool) {
	var likedIDs, savedIDs []string
	if !a.Config.Hosted() {
		likedIDs, savedIDs = v.prefs.Liked(), v.prefs.Saved()
	} else if uid := v.uid(); uid != "" {
		var err error
		if likedIDs, err = a.Repo.LikedIDs(ctx, uid); err != nil {
			a.log.Warn("list liked ids failed", "op", "likes.list", "user", uid, "error", err)
		}
		if savedIDs, err = a.Repo.SavedIDs(ctx, uid); err != nil {
			a.log.Warn("list saved ids failed", "op", "saves.list", "user", uid, "error", err)
		}
	}
	return idSet(likedIDs), idSet(savedIDs)
}

func idSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// collection returns the visitor's liked or saved items.
func (a *App) collection(ctx context.Context, v *visitor, kind string) ([]gallery.Item, error) {
	var ids []string
	switch {
	case !a.Config.Hosted() && kind == "liked":
		ids = v.prefs.Liked()
	case !a.Config.Hosted():
		ids = v.prefs.Saved()
	case v.uid() == "":
		return nil, engage.ErrSignInRequired
	case kind == "liked":
		var err error
		if ids, err = a.Repo.LikedIDs(ctx, v.uid()); err != nil {
			return nil, err
		}
	default:
		var err error
		if ids, err = a.Repo.SavedIDs(ctx, v.uid()); err != nil {
			return nil, err
		}
	}
	items, err := a.Repo.ItemsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	// Guests may hold demo ids from a store that had no items yet.
	if !a.Config.Hosted() && len(items) < len(ids) {
		found := make(map[string]bool, len(items))
		for _, it := range items {
			found[it.ID] = true
		}
		for _, id := range ids {
			if demo, ok := gallery.DemoItem(id); ok && !found[id] {
				items = append(items, demo)
			}
		}
	}
	return items, nil
}

func (a *App) renderCollection(c echo.Context, kind, title string) error {
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	items, err := a.collection(c.Request().Context(), v, kind)
	if errors.Is(err, engage.ErrSignInRequired) {
		return c.Redirect(http.StatusSeeOther, "/auth/login/?next=/"+kind+"/")
	}
	page := CollectionPage{
		Meta: PageMeta{Title: title + " | " + a.Config.Name, URL: BuildURL(a.Config.URL, kind), OGType: "website"},
		Kind: kind,
	}
	if err != nil {
		a.log.Error("load collection failed", "op", kind+".list", "user", v.uid(), "error", err)
		_, page.Error = remoteStatus(err)
	}
	page.Items = items
	page.Viewer = a.viewer(c, v)
	if err := v.save(c); err != nil {
		return err
	}
	return Render(c, a.Views.Collection(page))
}

func (a *App) handleLikedPage(c echo.Context) error {
	return a.renderCollection(c, "liked", "Liked")
}

func (a *App) handleSavedPage(c echo.Context) error {
	return a.renderCollection(c, "saved", "Collections")
}

func (a *App) collectionJSON(c echo.Context, kind string) error {
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	items, err := a.collection(c.Request().Context(), v, kind)
	if errors.Is(err, engage.ErrSignInRequired) {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "Sign in to see your " + kind + " images.", LoginURL: "/auth/login/"})
	}
	if err != nil {
		return a.remoteError(c, kind+".list", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (a *App) handleLikedJSON(c echo.Context) error { return a.collectionJSON(c, "liked") }

func (a *App) handleSavedJSON(c echo.Context) error { return a.collectionJSON(c, "saved") }

func (a *App) latestJSON(c echo.Context, op string, n int) error {
	items, err := a.Repo.Latest(c.Request().Context(), n)
	if err != nil {
		return a.remoteError(c, op, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (a *App) handleNotifications(c echo.Context) error {
	return a.latestJSON(c, "notifications", notificationCount)
}

func (a *App) handleNews(c echo.Context) error {
	return a.latestJSON(c, "news", newsCount)
}

func (a *App) handleAbout(c echo.Context) error {
	socials, err := a.Repo.Socials(c.Request().Context())
	if err != nil {
		return a.remoteError(c, "site.about", err)
	}
	if socials == nil {
		socials = []gallery.Social{}
	}
	return c.JSON(http.StatusOK, map[string]any{"socials": socials})
}

func (a *App) handleLearn(c echo.Context) error {
	return c.Redirect(http.StatusFound, a.Repo.LearnURL(c.Request().Context()))
}

func (a *App) handleTheme(c echo.Context) error {
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	var theme string
	switch t := c.FormValue("theme"); t {
	case prefs.ThemeLight, prefs.ThemeDark:
		v.prefs.SetTheme(t)
		theme = t
	default:
		theme = v.prefs.ToggleTheme()
	}
	if err := v.save(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"theme": theme})
}

func (a *App) handleSitemap(c echo.Context) error {
	items, err := a.Repo.AllItems(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderSitemap(c, items)
}

func (a *App) handleFeed(c echo.Context) error {
	items, err := a.Repo.Latest(c.Request().Context(), newsCount)
	if err != nil {
		return err
	}
	return a.renderRSS(c, items)
}

func (a *App) handleRobots(c echo.Context) error {
	body := fmt.Sprintf("User-agent: *\nDisallow: /admin/\nDisallow: /api/\nDisallow: /auth/\nSitemap: %s\n",
		strings.TrimRight(a.Config.URL, "/")+"/sitemap.xml")
	return c.String(http.StatusOK, body)
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
