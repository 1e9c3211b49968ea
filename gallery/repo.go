package gallery

import (
	"context"
	"log/slog"

	"github.com/eringen/pixelprompt/docstore"
)

// Repo is the typed gateway over a docstore.Client.
type Repo struct {
	db  docstore.Client
	log *slog.Logger
}

// NewRepo wraps db. A nil logger uses slog.Default.
func NewRepo(db docstore.Client, log *slog.Logger) *Repo {
	if log == nil {
		log = slog.Default()
	}
	return &Repo{db: db, log: log}
}

// Client returns the underlying store.
func (r *Repo) Client() docstore.Client { return r.db }

func itemsOf(docs []docstore.Doc) []Item {
	items := make([]Item, 0, len(docs))
	for _, d := range docs {
		items = append(items, ItemFromDoc(d))
	}
	return items
}

// Item loads one item.
func (r *Repo) Item(ctx context.Context, id string) (Item, error) {
	d, err := r.db.Get(ctx, ColImages, id)
	if err != nil {
		return Item{}, err
	}
	return ItemFromDoc(d), nil
}

// AllItems loads the whole catalog in store order.
func (r *Repo) AllItems(ctx context.Context) ([]Item, error) {
	page, err := r.db.Query(ctx, docstore.Query{Collection: ColImages})
	if err != nil {
		return nil, err
	}
	return itemsOf(page.Docs), nil
}

// FeedPage returns up to limit items newest first, after the given cursor.
// An empty category or CategoryAll applies no filter.
func (r *Repo) FeedPage(ctx context.Context, category string, limit int, after *docstore.Cursor) ([]Item, *docstore.Cursor, error) {
	q := docstore.Query{
		Collection: ColImages,
		OrderBy:    "createdAt",
		Desc:       true,
		Limit:      limit,
		StartAfter: after,
	}
	if category != "" && category != CategoryAll {
		q.Where = []docstore.Filter{docstore.Where("filter", docstore.OpEq, category)}
	}
	page, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	return itemsOf(page.Docs), page.Next, nil
}

// Heroes returns the newest hero items for the home slider.
func (r *Repo) Heroes(ctx context.Context, limit int) ([]Item, error) {
	page, err := r.db.Query(ctx, docstore.Query{
		Collection: ColImages,
		Where:      []docstore.Filter{docstore.Where("hero", docstore.OpEq, true)},
		OrderBy:    "createdAt",
		Desc:       true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	return itemsOf(page.Docs), nil
}

// HeroMembers returns every item flagged hero, including ones without a
// creation time.
func (r *Repo) HeroMembers(ctx context.Context) ([]Item, error) {
	page, err := r.db.Query(ctx, docstore.Query{
		Collection: ColImages,
		Where:      []docstore.Filter{docstore.Where("hero", docstore.OpEq, true)},
	})
	if err != nil {
		return nil, err
	}
	return itemsOf(page.Docs), nil
}

// TopLiked returns the n most liked items.
func (r *Repo) TopLiked(ctx context.Context, n int) ([]Item, error) {
	page, err := r.db.Query(ctx, docstore.Query{Collection: ColImages, OrderBy: "likesCount", Desc: true, Limit: n})
	if err != nil {
		return nil, err
	}
	return itemsOf(page.Docs), nil
}

// Latest returns the n newest items.
func (r *Repo) Latest(ctx context.Context, n int) ([]Item, error) {
	page, err := r.db.Query(ctx, docstore.Query{Collection: ColImages, OrderBy: "createdAt", Desc: true, Limit: n})
	if err != nil {
		return nil, err
	}
	return itemsOf(page.Docs), nil
}

// CreateItem stores a new item with zero counters and hero off.
func (r *Repo) CreateItem(ctx context.Context, it Item) (string, error) {
	f := it.content()
	f["views"] = 0
	f["likesCount"] = 0
	f["hero"] = false
	f["createdAt"] = docstore.ServerTimestamp
	return r.db.Create(ctx, ColImages, f)
}

// UpdateItem rewrites the editable fields of an existing item. Counters,
// hero and createdAt are kept; the image is kept when it.ImageURL is empty.
func (r *Repo) UpdateItem(ctx context.Context, id string, it Item) error {
	return r.db.Update(ctx, ColImages, id, it.content())
}

// SetHero writes the hero flag of one item.
func (r *Repo) SetHero(ctx context.Context, id string, hero bool) error {
	return r.db.Update(ctx, ColImages, id, docstore.Fields{"hero": hero, "updatedAt": docstore.ServerTimestamp})
}

// DeleteItem removes the item document.
func (r *Repo) DeleteItem(ctx context.Context, id string) error {
	return r.db.Delete(ctx, ColImages, id)
}

// IncrementViews adds one view.
func (r *Repo) IncrementViews(ctx context.Context, id string) error {
	return r.db.Update(ctx, ColImages, id, docstore.Fields{"views": docstore.Increment(1)})
}

// AdjustLikes adds delta to the like counter.
func (r *Repo) AdjustLikes(ctx context.Context, id string, delta int64) error {
	return r.db.Update(ctx, ColImages, id, docstore.Fields{"likesCount": docstore.Increment(delta)})
}

// Like reads the like record of (itemID, uid). A missing record is not an error.
func (r *Repo) Like(ctx context.Context, itemID, uid string) (LikeRecord, error) {
	rec := LikeRecord{ItemID: itemID, UserID: uid}
	d, err := r.db.Get(ctx, ColLikes, LikeID(itemID, uid))
	if docstore.IsNotFound(err) {
		return rec, nil
	}
	if err != nil {
		return rec, err
	}
	rec.Exists = true
	rec.Liked = d.Data.Bool("liked")
	rec.CreatedAt = d.Data.Time("createdAt")
	return rec, nil
}

// SetLiked merge-writes the like flag. Liking also records the user and item;
// stamp sets createdAt.
func (r *Repo) SetLiked(ctx context.Context, itemID, uid string, liked, stamp bool) error {
	f := docstore.Fields{"liked": liked}
	if liked {
		f["userId"] = uid
		f["imageId"] = itemID
	}
	if stamp {
		f["createdAt"] = docstore.ServerTimestamp
	}
	return r.db.Set(ctx, ColLikes, LikeID(itemID, uid), f, true)
}

// Save reads the save record of (uid, itemID). A missing record is not an error.
func (r *Repo) Save(ctx context.Context, itemID, uid string) (SaveRecord, error) {
	rec := SaveRecord{ItemID: itemID}
	d, err := r.db.Get(ctx, SavedCollection(uid), itemID)
	if docstore.IsNotFound(err) {
		return rec, nil
	}
	if err != nil {
		return rec, err
	}
	rec.Exists = true
	rec.Saved = d.Data.Bool("saved")
	rec.CreatedAt = d.Data.Time("createdAt")
	return rec, nil
}

// SetSaved merge-writes the save flag; stamp sets createdAt.
func (r *Repo) SetSaved(ctx context.Context, itemID, uid string, saved, stamp bool) error {
	f := docstore.Fields{"saved": saved}
	if stamp {
		f["createdAt"] = docstore.ServerTimestamp
	}
	return r.db.Set(ctx, SavedCollection(uid), itemID, f, true)
}

// LikedIDs returns the ids of items uid currently likes.
func (r *Repo) LikedIDs(ctx context.Context, uid string) ([]string, error) {
	page, err := r.db.Query(ctx, docstore.Query{
		Collection: ColLikes,
		Where: []docstore.Filter{
			docstore.Where("userId", docstore.OpEq, uid),
			docstore.Where("liked", docstore.OpEq, true),
		},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page.Docs))
	for _, d := range page.Docs {
		ids = append(ids, d.Data.String("imageId"))
	}
	return ids, nil
}

// SavedIDs returns the ids of items uid currently has saved.
func (r *Repo) SavedIDs(ctx context.Context, uid string) ([]string, error) {
	page, err := r.db.Query(ctx, docstore.Query{
		Collection: SavedCollection(uid),
		Where:      []docstore.Filter{docstore.Where("saved", docstore.OpEq, true)},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page.Docs))
	for _, d := range page.Docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// ItemsByID loads the listed items, skipping ones that no longer exist.
func (r *Repo) ItemsByID(ctx context.Context, ids []string) ([]Item, error) {
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		it, err := r.Item(ctx, id)
		if docstore.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// AddComment stores a comment on itemID.
func (r *Repo) AddComment(ctx context.Context, itemID string, c Comment) (string, error) {
	return r.db.Create(ctx, CommentsCollection(itemID), docstore.Fields{
		"userId":    c.UserID,
		"userName":  c.UserName,
		"text":      c.Text,
		"createdAt": docstore.ServerTimestamp,
	})
}

func commentsQuery(itemID string) docstore.Query {
	return docstore.Query{Collection: CommentsCollection(itemID), OrderBy: "createdAt", Desc: true}
}

// Comments returns the comments of itemID, newest first.
func (r *Repo) Comments(ctx context.Context, itemID string) ([]Comment, error) {
	page, err := r.db.Query(ctx, commentsQuery(itemID))
	if err != nil {
		return nil, err
	}
	return CommentsOf(page.Docs), nil
}

// SubscribeComments streams the comments of itemID, newest first.
func (r *Repo) SubscribeComments(ctx context.Context, itemID string) (*docstore.Subscription, error) {
	return r.db.Subscribe(ctx, commentsQuery(itemID))
}

// CommentsOf decodes comment documents.
func CommentsOf(docs []docstore.Doc) []Comment {
	out := make([]Comment, 0, len(docs))
	for _, d := range docs {
		out = append(out, CommentFromDoc(d))
	}
	return out
}

// IsAdmin reports whether uid has an admins entry.
func (r *Repo) IsAdmin(ctx context.Context, uid string) (bool, error) {
	if uid == "" {
		return false, nil
	}
	_, err := r.db.Get(ctx, ColAdmins, uid)
	if docstore.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GrantAdmin adds uid to the admins allow-list.
func (r *Repo) GrantAdmin(ctx context.Context, uid string) error {
	return r.db.Set(ctx, ColAdmins, uid, docstore.Fields{"role": "admin", "createdAt": docstore.ServerTimestamp}, true)
}

// Socials returns the about page links from siteConfig/about.
func (r *Repo) Socials(ctx context.Context) ([]Social, error) {
	d, err := r.db.Get(ctx, ColSiteConfig, "about")
	if docstore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, _ := d.Data["socials"].([]any)
	out := make([]Social, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		s := docstore.Fields(m)
		out = append(out, Social{Name: s.String("name"), Link: s.String("link")})
	}
	return out, nil
}

// SetSocials replaces the about page links.
func (r *Repo) SetSocials(ctx context.Context, socials []Social) error {
	list := make([]any, 0, len(socials))
	for _, s := range socials {
		list = append(list, map[string]any{"name": s.Name, "link": s.Link})
	}
	return r.db.Set(ctx, ColSiteConfig, "about", docstore.Fields{"socials": list}, true)
}

// LearnURL returns the learn link, falling back to DefaultLearnURL when the
// document is missing or unreadable.
func (r *Repo) LearnURL(ctx context.Context) string {
	d, err := r.db.Get(ctx, ColSiteConfig, "learn")
	if err != nil {
		if !docstore.IsNotFound(err) {
			r.log.Warn("learn url lookup failed", "error", err)
		}
		return DefaultLearnURL
	}
	if u := d.Data.String("url"); u != "" {
		return u
	}
	return DefaultLearnURL
}

// SetLearnURL stores the learn link.
func (r *Repo) SetLearnURL(ctx context.Context, url string) error {
	return r.db.Set(ctx, ColSiteConfig, "learn", docstore.Fields{"url": url}, true)
}

// GuestPrefs returns the stored preference values of a guest key. A guest
// with no document has no values.
func (r *Repo) GuestPrefs(ctx context.Context, key string) (map[string]string, error) {
	values := map[string]string{}
	d, err := r.db.Get(ctx, ColGuests, key)
	if docstore.IsNotFound(err) {
		return values, nil
	}
	if err != nil {
		return nil, err
	}
	for k, v := range d.Data {
		if s, ok := v.(string); ok {
			values[k] = s
		}
	}
	return values, nil
}

// SetGuestPrefs merges values into the guest key's document.
func (r *Repo) SetGuestPrefs(ctx context.Context, key string, values map[string]string) error {
	f := make(docstore.Fields, len(values)+1)
	for k, v := range values {
		f[k] = v
	}
	f["updatedAt"] = docstore.ServerTimestamp
	return r.db.Set(ctx, ColGuests, key, f, true)
}
