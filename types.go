package pixelprompt

import (
	"github.com/eringen/pixelprompt/engage"
	"github.com/eringen/pixelprompt/gallery"
)

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
	Image       string // og:image
}

// Viewer describes who is looking at a page.
type Viewer struct {
	Hosted   bool
	SignedIn bool
	Name     string
	Admin    bool
	Theme    string
	CSRF     string
	LoginURL string
	Badges   engage.Counts
}

// HomePage is the data behind the gallery home page.
type HomePage struct {
	Meta       PageMeta
	Viewer     Viewer
	Heroes     []gallery.Item
	Top        []gallery.Item
	Categories []string
	Category   string
	Search     string
	Feed       []gallery.Item
	FeedDone   bool
	FeedError  string
	Liked      map[string]bool
	Saved      map[string]bool
}

// ItemPage is the data behind the single image viewer.
type ItemPage struct {
	Meta          PageMeta
	Viewer        Viewer
	Item          gallery.Item
	Liked         bool
	Saved         bool
	Comments      []gallery.Comment
	CommentsError string
}

// CollectionPage lists the viewer's liked or saved items.
type CollectionPage struct {
	Meta   PageMeta
	Viewer Viewer
	Kind   string // "liked" or "saved"
	Items  []gallery.Item
	Error  string
}

// AdminPage is the admin dashboard with the catalog table.
type AdminPage struct {
	Meta       PageMeta
	Viewer     Viewer
	Rows       []gallery.Item
	Categories []string
	Category   string
	Search     string
	Sort       string
	Desc       bool
	Message    string
	Error      string
}

// AdminFormPage is the create/edit form for one item.
type AdminFormPage struct {
	Viewer     Viewer
	Item       gallery.Item
	Categories []string
}

// AdminLoginPage is shown to visitors without admin access.
type AdminLoginPage struct {
	Viewer Viewer
	// Denied is set when the visitor is signed in but not on the allow-list.
	Denied bool
	UID    string
}
