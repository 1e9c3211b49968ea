package pixelprompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pixelprompt/auth"
	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/docstore/docstoretest"
	"github.com/eringen/pixelprompt/gallery"
	"github.com/eringen/pixelprompt/prefs"
)

const (
	testSessionSecret = "test-session-secret-0123456789abcdef"
	testAuthSecret    = "test-auth-secret"
	testLoginURL      = "https://id.example.com/login"
)

var errUnavailable = errors.New("connection refused")

func text(format string, args ...any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, format, args...)
		return err
	})
}

func stubViews() ViewFuncs {
	return ViewFuncs{
		Home: func(p HomePage) templ.Component {
			return text("home heroes=%d feed=%d error=%q", len(p.Heroes), len(p.Feed), p.FeedError)
		},
		Item: func(p ItemPage) templ.Component {
			return text("item %s liked=%t comments=%d", p.Item.ID, p.Liked, len(p.Comments))
		},
		Collection: func(p CollectionPage) templ.Component {
			return text("%s items=%d", p.Kind, len(p.Items))
		},
		Admin: func(p AdminPage) templ.Component {
			return text("admin rows=%d", len(p.Rows))
		},
		AdminForm: func(p AdminFormPage) templ.Component {
			return text("form %s", p.Item.ID)
		},
		AdminLogin: func(p AdminLoginPage) templ.Component {
			return text("login denied=%t", p.Denied)
		},
		NotFound:    func() templ.Component { return text("not found") },
		ServerError: func() templ.Component { return text("server error") },
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, db docstore.Client, hosted bool) *App {
	t.Helper()
	cfg := SiteConfig{
		URL:            "http://example.com",
		SessionSecret:  testSessionSecret,
		UploadDir:      t.TempDir(),
		ToggleCooldown: time.Nanosecond,
	}
	if hosted {
		cfg.AuthSecret = testAuthSecret
		cfg.LoginURL = testLoginURL
	}
	a := New(cfg, stubViews(), WithClient(db), WithStaticDir(t.TempDir()), WithLogger(quietLogger()))
	require.NoError(t, a.Init())
	t.Cleanup(func() { a.Close() })
	return a
}

// client drives an App through ServeHTTP and carries cookies between requests.
type client struct {
	t       *testing.T
	app     *App
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, a *App) *client {
	return &client{t: t, app: a, cookies: map[string]*http.Cookie{}}
}

func (cl *client) send(req *http.Request) *httptest.ResponseRecorder {
	cl.t.Helper()
	for _, ck := range cl.cookies {
		req.AddCookie(ck)
	}
	if req.Method != http.MethodGet {
		if ck, ok := cl.cookies["_csrf"]; ok {
			req.Header.Set("X-CSRF-Token", ck.Value)
		}
	}
	rec := httptest.NewRecorder()
	cl.app.Echo.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(cl.cookies, ck.Name)
			continue
		}
		cl.cookies[ck.Name] = ck
	}
	return rec
}

func (cl *client) get(target string) *httptest.ResponseRecorder {
	cl.t.Helper()
	return cl.send(httptest.NewRequest(http.MethodGet, target, nil))
}

func (cl *client) post(target string, form url.Values) *httptest.ResponseRecorder {
	cl.t.Helper()
	if _, ok := cl.cookies["_csrf"]; !ok {
		cl.get("/robots.txt")
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return cl.send(req)
}

func (cl *client) signIn(id auth.Identity) {
	cl.t.Helper()
	rec := cl.get("/auth/login/")
	require.Equal(cl.t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(cl.t, err)
	token, err := cl.app.Verifier.Issue(id, time.Minute)
	require.NoError(cl.t, err)
	rec = cl.post("/auth/callback/", url.Values{"state": {loc.Query().Get("state")}, "token": {token}})
	require.Equal(cl.t, http.StatusSeeOther, rec.Code, rec.Body.String())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestHomeShowsDemoCatalogWhenEmpty(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	cl := newClient(t, a)

	rec := cl.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "heroes=3")
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("feed=%d", len(gallery.DemoItems())))
	assert.Equal(t, "private, no-cache", rec.Header().Get("Cache-Control"))
}

func TestHomeFeedErrorFallsBackToDemo(t *testing.T) {
	db := docstoretest.NewFaulty(docstoretest.New(t))
	a := newTestApp(t, db, false)
	db.Fail("query", gallery.ColImages, "", errUnavailable)

	rec := newClient(t, a).get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("feed=%d", len(gallery.DemoItems())))
	assert.Contains(t, rec.Body.String(), "Couldn't reach the gallery")
}

func TestFeedAPIFiltersByCategory(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	_, err := a.Repo.SeedDemo(context.Background())
	require.NoError(t, err)
	cl := newClient(t, a)

	rec := cl.get("/api/feed/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["items"], len(gallery.DemoItems()))
	assert.Equal(t, true, body["done"])

	rec = cl.get("/api/feed/?filter=Funny")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "demo4", items[0].(map[string]any)["id"])
	assert.Equal(t, "Funny", body["category"])
}

func TestGuestLikeToggle(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	_, err := a.Repo.SeedDemo(context.Background())
	require.NoError(t, err)
	cl := newClient(t, a)

	rec := cl.post("/api/items/demo1/like/", url.Values{"count": {"45"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["active"])
	assert.EqualValues(t, 46, body["count"])
	assert.Equal(t, "committed", body["state"])
	assert.Equal(t, "1", body["labels"].(map[string]any)["likedLabel"])

	rec = cl.get("/api/me/badges/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["liked"])

	rec = cl.get("/api/me/liked/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	rec = cl.post("/api/items/demo1/like/", url.Values{"count": {"46"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["active"])
	assert.EqualValues(t, 45, body["count"])

	// Guest likes stay local.
	it, err := a.Repo.Item(context.Background(), "demo1")
	require.NoError(t, err)
	assert.EqualValues(t, 45, it.LikesCount)
}

func TestGuestPreferencesOutgrowCookie(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	cl := newClient(t, a)

	const n = 120
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
		rec := cl.post("/api/items/"+ids[i]+"/like/", url.Values{"count": {"0"}})
		require.Equal(t, http.StatusOK, rec.Code, "like #%d: %s", i+1, rec.Body.String())
	}
	for i, id := range ids {
		rec := cl.post("/api/items/"+id+"/save/", nil)
		require.Equal(t, http.StatusOK, rec.Code, "save #%d: %s", i+1, rec.Body.String())
	}
	require.Equal(t, http.StatusOK, cl.post("/theme/", url.Values{"theme": {"dark"}}).Code)

	rec := cl.get("/api/me/badges/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, n, body["liked"])
	assert.EqualValues(t, n, body["saved"])

	ck, ok := cl.cookies[sessionName]
	require.True(t, ok)
	assert.Less(t, len(ck.Value), 1024)

	// Nothing was dropped: the oldest like is still there.
	doc, err := a.Repo.GuestPrefs(context.Background(), guestKeyOf(t, a, cl))
	require.NoError(t, err)
	assert.Contains(t, doc[prefs.KeyLiked], ids[0])
}

func TestGuestPreferencesSurviveFailedLoad(t *testing.T) {
	db := docstoretest.NewFaulty(docstoretest.New(t))
	a := newTestApp(t, db, false)
	cl := newClient(t, a)

	require.Equal(t, http.StatusOK, cl.post("/api/items/demo1/like/", url.Values{"count": {"0"}}).Code)

	db.FailOnce("get", gallery.ColGuests, "", errUnavailable)
	rec := cl.post("/api/items/demo2/like/", url.Values{"count": {"0"}})
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = cl.get("/api/me/liked/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)
}

// guestKeyOf reads the guest key from the client's session cookie.
func guestKeyOf(t *testing.T, a *App, cl *client) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cl.cookies[sessionName])
	sess, err := a.newSessionStore().Get(req, sessionName)
	require.NoError(t, err)
	key, _ := sess.Values[keyGuest].(string)
	require.NotEmpty(t, key)
	return key
}

func TestGuestSaveShowsInCollection(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	cl := newClient(t, a)

	// Demo ids resolve even before the catalog is seeded.
	rec := cl.post("/api/items/demo2/save/", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = cl.get("/saved/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "saved items=1", rec.Body.String())
}

func TestPostWithoutCSRFTokenIsForbidden(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	req := httptest.NewRequest(http.MethodPost, "/api/items/demo1/like/", nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHostedToggleRequiresSignIn(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	cl := newClient(t, a)

	rec := cl.post("/api/items/demo1/like/", url.Values{"count": {"3"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/auth/login/", decode(t, rec)["loginUrl"])

	rec = cl.get("/liked/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login/?next=/liked/", rec.Header().Get("Location"))
}

func TestHostedLikeWritesRecordAndCounter(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	ctx := context.Background()
	_, err := a.Repo.SeedDemo(ctx)
	require.NoError(t, err)
	cl := newClient(t, a)
	cl.signIn(auth.Identity{UID: "u1", Name: "Ada"})

	rec := cl.post("/api/items/demo3/like/", url.Values{"count": {"88"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["active"])
	assert.EqualValues(t, 89, body["count"])
	assert.EqualValues(t, 1, body["badges"].(map[string]any)["liked"])

	ids, err := a.Repo.LikedIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"demo3"}, ids)
	it, err := a.Repo.Item(ctx, "demo3")
	require.NoError(t, err)
	assert.EqualValues(t, 89, it.LikesCount)
}

func TestHostedLikeCountComesFromStore(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	ctx := context.Background()
	_, err := a.Repo.SeedDemo(ctx)
	require.NoError(t, err)
	cl := newClient(t, a)
	cl.signIn(auth.Identity{UID: "u1", Name: "Ada"})

	rec := cl.post("/api/items/demo3/like/", url.Values{"count": {"0"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 89, decode(t, rec)["count"])

	rec = cl.post("/api/items/demo3/like/", url.Values{"count": {"5000"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 88, decode(t, rec)["count"])
}

func TestHostedToggleRevertsOnRemoteFailure(t *testing.T) {
	db := docstoretest.NewFaulty(docstoretest.New(t))
	a := newTestApp(t, db, true)
	_, err := a.Repo.SeedDemo(context.Background())
	require.NoError(t, err)
	cl := newClient(t, a)
	cl.signIn(auth.Identity{UID: "u1"})

	db.FailOnce("set", gallery.ColLikes, "", fs.ErrPermission)
	rec := cl.post("/api/items/demo1/like/", url.Values{"count": {"45"}})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, false, body["active"])
	assert.EqualValues(t, 45, body["count"])
	assert.Equal(t, "reverted", body["state"])
	assert.NotEmpty(t, body["error"])
}

func TestSignInMigratesGuestPreferences(t *testing.T) {
	db := docstoretest.New(t)
	ctx := context.Background()

	// Preferences collected while the site ran in guest mode.
	guest := newTestApp(t, db, false)
	_, err := guest.Repo.SeedDemo(ctx)
	require.NoError(t, err)
	gc := newClient(t, guest)
	require.Equal(t, http.StatusOK, gc.post("/api/items/demo1/like/", url.Values{"count": {"45"}}).Code)
	require.Equal(t, http.StatusOK, gc.post("/api/items/demo2/save/", nil).Code)

	hosted := newTestApp(t, db, true)
	hc := newClient(t, hosted)
	hc.cookies = gc.cookies

	rec := hc.get("/auth/login/?next=/liked/")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "id.example.com", loc.Host)
	assert.Equal(t, "http://example.com/auth/callback/", loc.Query().Get("redirect_uri"))

	token, err := hosted.Verifier.Issue(auth.Identity{UID: "u1", Email: "ada@example.com"}, time.Minute)
	require.NoError(t, err)
	rec = hc.post("/auth/callback/", url.Values{"state": {loc.Query().Get("state")}, "token": {token}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/liked/", rec.Header().Get("Location"))

	liked, err := hosted.Repo.LikedIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"demo1"}, liked)
	saved, err := hosted.Repo.SavedIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"demo2"}, saved)
	it, err := hosted.Repo.Item(ctx, "demo1")
	require.NoError(t, err)
	assert.EqualValues(t, 46, it.LikesCount)

	rec = hc.get("/api/me/badges/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["liked"])
	assert.EqualValues(t, 1, body["saved"])

	// A second sign-in in the same session does not migrate again.
	hc.signIn(auth.Identity{UID: "u1"})
	it, err = hosted.Repo.Item(ctx, "demo1")
	require.NoError(t, err)
	assert.EqualValues(t, 46, it.LikesCount)
}

func TestCallbackRejectsBadState(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	cl := newClient(t, a)
	cl.get("/auth/login/")

	token, err := a.Verifier.Issue(auth.Identity{UID: "u1"}, time.Minute)
	require.NoError(t, err)
	rec := cl.post("/auth/callback/", url.Values{"state": {"forged"}, "token": {token}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = cl.get("/api/me/badges/")
	assert.EqualValues(t, 0, decode(t, rec)["liked"])
}

func TestCallbackLocksOutAfterRepeatedFailures(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	cl := newClient(t, a)
	cl.get("/auth/login/")

	for i := 0; i < a.Config.SignInAttempts; i++ {
		rec := cl.post("/auth/callback/", url.Values{"state": {"forged"}, "token": {"junk"}})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := cl.post("/auth/callback/", url.Values{"state": {"forged"}, "token": {"junk"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestLogoutClearsIdentity(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	cl := newClient(t, a)
	cl.signIn(auth.Identity{UID: "u1"})

	rec := cl.post("/auth/logout/", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = cl.post("/api/items/demo1/like/", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestItemPages(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	ctx := context.Background()
	id, err := a.Repo.CreateItem(ctx, gallery.Item{Title: "Lighthouse", Prompt: "storm"})
	require.NoError(t, err)
	cl := newClient(t, a)

	rec := cl.get("/images/" + id + "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "item "+id)

	rec = cl.get("/api/items/" + id + "/")
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode(t, rec)["item"].(map[string]any)
	assert.EqualValues(t, 2, item["views"])

	rec = cl.get("/images/demo5/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "item demo5")

	rec = cl.get("/images/missing/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", rec.Body.String())
}

func TestAddComment(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	ctx := context.Background()
	id, err := a.Repo.CreateItem(ctx, gallery.Item{Title: "Lighthouse"})
	require.NoError(t, err)
	cl := newClient(t, a)

	rec := cl.post("/images/"+id+"/comments/", url.Values{"text": {"<b>nice</b> &amp; <script>alert(1)</script>"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	comments, err := a.Repo.Comments(ctx, id)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "nice &", comments[0].Text)
	assert.Equal(t, "Guest", comments[0].UserName)
	assert.True(t, strings.HasPrefix(comments[0].UserID, "guest:"))

	tests := []struct {
		name string
		id   string
		text string
		code int
	}{
		{"markup only", id, "<img src=x>", http.StatusBadRequest},
		{"too long", id, strings.Repeat("a", maxCommentLength+1), http.StatusBadRequest},
		{"demo item", "demo1", "hello", http.StatusBadRequest},
		{"missing item", "missing", "hello", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := cl.post("/images/"+tt.id+"/comments/", url.Values{"text": {tt.text}})
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestHostedCommentNeedsSignIn(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	id, err := a.Repo.CreateItem(context.Background(), gallery.Item{Title: "Lighthouse"})
	require.NoError(t, err)
	cl := newClient(t, a)

	rec := cl.post("/images/"+id+"/comments/", url.Values{"text": {"hi"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cl.signIn(auth.Identity{UID: "u1", Email: "ada@example.com"})
	rec = cl.post("/images/"+id+"/comments/", url.Values{"text": {"hi"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	comments, err := a.Repo.Comments(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "ada", comments[0].UserName)
}

func TestAdminRequiresAdmin(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	cl := newClient(t, a)

	rec := cl.get("/admin/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "login denied=false", rec.Body.String())

	cl.signIn(auth.Identity{UID: "u1"})
	rec = cl.get("/admin/")
	assert.Equal(t, "login denied=true", rec.Body.String())

	rec = cl.post("/admin/item/demo1/hero/", url.Values{"hero": {"true"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = cl.get("/admin/item/new/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	require.NoError(t, a.Repo.GrantAdmin(context.Background(), "u1"))
	rec = cl.get("/admin/")
	assert.Equal(t, "admin rows=0", rec.Body.String())
}

func TestAdminHeroConfirmation(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	ctx := context.Background()
	_, err := a.Repo.SeedDemo(ctx)
	require.NoError(t, err)
	id, err := a.Repo.CreateItem(ctx, gallery.Item{Title: "New hero"})
	require.NoError(t, err)
	cl := newClient(t, a)
	cl.signIn(auth.Identity{UID: "admin", AdminClaim: true})

	rec := cl.post("/admin/item/"+id+"/hero/", url.Values{"hero": {"true"}})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	body := decode(t, rec)
	oldest, _ := body["oldestId"].(string)
	assert.Contains(t, []string{"demo1", "demo2", "demo3"}, oldest)
	assert.EqualValues(t, 3, body["count"])
	assert.Contains(t, body["prompt"], body["oldestTitle"])

	members, err := a.Repo.HeroMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 3, "nothing written before confirmation")

	// Confirming a different hero than the one asked about asks again.
	rec = cl.post("/admin/item/"+id+"/hero/", url.Values{"hero": {"true"}, "confirm": {"demo5"}})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = cl.post("/admin/item/"+id+"/hero/", url.Values{"hero": {"true"}, "confirm": {oldest}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, true, body["hero"])
	assert.Equal(t, "committed", body["state"])

	members, err = a.Repo.HeroMembers(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	assert.Len(t, ids, 3)
	assert.Contains(t, ids, id)
	assert.NotContains(t, ids, oldest)

	rec = cl.post("/admin/item/"+id+"/hero/", url.Values{"hero": {"false"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["hero"])

	rec = cl.post("/admin/item/"+id+"/hero/", url.Values{"hero": {"maybe"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartForm(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("image", "upload.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestAdminSaveUploadsImage(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	ctx := context.Background()
	cl := newClient(t, a)
	cl.signIn(auth.Identity{UID: "admin", AdminClaim: true})

	body, ctype := multipartForm(t, map[string]string{
		"title":  "Harbor",
		"prompt": "foggy harbor at dawn",
		"tags":   "sea, fog, ",
		"filter": "Nature",
	}, testPNG(t, 2000, 100))
	req := httptest.NewRequest(http.MethodPost, "/admin/save/", body)
	req.Header.Set("Content-Type", ctype)
	rec := cl.send(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.Equal(t, "Uploaded", resp["message"])

	it, err := a.Repo.Item(ctx, resp["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Harbor", it.Title)
	assert.Equal(t, []string{"sea", "fog"}, it.Tags)
	assert.Equal(t, "Nature", it.Category)
	require.True(t, strings.HasPrefix(it.ImageURL, uploadsPrefix), it.ImageURL)

	rec = cl.get(it.ImageURL)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, maxImageWidth, cfg.Width)

	rec = cl.post("/admin/save/", url.Values{"id": {it.ID}, "title": {"Harbor at dawn"}, "filter": {"Nature"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Updated", decode(t, rec)["message"])
	updated, err := a.Repo.Item(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "Harbor at dawn", updated.Title)
	assert.Equal(t, it.ImageURL, updated.ImageURL, "image kept without a new upload")

	rec = cl.get("/api/admin/items/?sort=title")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["rows"], 1)

	req = httptest.NewRequest(http.MethodDelete, "/admin/item/"+it.ID+"/", nil)
	rec = cl.send(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, err = a.Repo.Item(ctx, it.ID)
	assert.True(t, docstore.IsNotFound(err))
	assert.Equal(t, http.StatusNotFound, cl.get(it.ImageURL).Code)
}

func TestAdminSaveValidation(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	cl := newClient(t, a)
	cl.signIn(auth.Identity{UID: "admin", AdminClaim: true})

	rec := cl.post("/admin/save/", url.Values{"prompt": {"no title"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "title is required", decode(t, rec)["error"])

	rec = cl.post("/admin/save/", url.Values{"title": {"x"}, "creditsLink": {"not a url"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "creditsLink must be a valid URL", decode(t, rec)["error"])

	body, ctype := multipartForm(t, map[string]string{"title": "Broken"}, []byte("not an image"))
	req := httptest.NewRequest(http.MethodPost, "/admin/save/", body)
	req.Header.Set("Content-Type", ctype)
	rec = cl.send(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSiteSettings(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), true)
	cl := newClient(t, a)
	cl.signIn(auth.Identity{UID: "admin", AdminClaim: true})

	rec := cl.post("/admin/site/", url.Values{
		"learnUrl":   {"https://learn.example.com/"},
		"socialName": {"Mastodon", ""},
		"socialLink": {"https://mastodon.example/@pp", "https://ignored.example"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = cl.get("/learn/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://learn.example.com/", rec.Header().Get("Location"))

	rec = cl.get("/api/site/about/")
	require.Equal(t, http.StatusOK, rec.Code)
	socials := decode(t, rec)["socials"].([]any)
	require.Len(t, socials, 1)
	assert.Equal(t, "Mastodon", socials[0].(map[string]any)["name"])
}

func TestThemeToggle(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	cl := newClient(t, a)

	rec := cl.post("/theme/", url.Values{"theme": {"dark"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dark", decode(t, rec)["theme"])

	rec = cl.post("/theme/", nil)
	assert.Equal(t, "light", decode(t, rec)["theme"])
}

func TestFeedsAndRobots(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	_, err := a.Repo.SeedDemo(context.Background())
	require.NoError(t, err)
	cl := newClient(t, a)

	rec := cl.get("/sitemap.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<loc>http://example.com/images/demo1/</loc>")

	rec = cl.get("/feed.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>Cyberpunk Alley</title>")

	rec = cl.get("/robots.txt")
	assert.Contains(t, rec.Body.String(), "Sitemap: http://example.com/sitemap.xml")
}

func TestRemoteStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{docstore.Wrap("get", "images", "x", fs.ErrPermission), http.StatusForbidden},
		{docstore.Wrap("get", "images", "x", fs.ErrNotExist), http.StatusNotFound},
		{docstore.Wrap("set", "images", "x", errors.New("invalid value")), http.StatusBadRequest},
		{docstore.Wrap("query", "images", "", errUnavailable), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		code, msg := remoteStatus(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.NotEmpty(t, msg)
	}
}

func TestCommentsWebsocketStreamsSnapshots(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	ctx := context.Background()
	id, err := a.Repo.CreateItem(ctx, gallery.Item{Title: "Harbor"})
	require.NoError(t, err)

	srv := httptest.NewServer(a.Echo)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/images/" + id + "/comments/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg commentsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Empty(t, msg.Comments)
	assert.Empty(t, msg.Error)

	_, err = a.Repo.AddComment(ctx, id, gallery.Comment{UserName: "Guest", Text: "first"})
	require.NoError(t, err)
	require.NoError(t, conn.ReadJSON(&msg))
	require.Len(t, msg.Comments, 1)
	assert.Equal(t, "first", msg.Comments[0].Text)
}

func TestCommentsWebsocketRejectsForeignOrigin(t *testing.T) {
	a := newTestApp(t, docstoretest.New(t), false)
	a.Config.AllowedOrigins = []string{"http://example.com"}
	srv := httptest.NewServer(a.Echo)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/images/demo1/comments/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
