// Package views renders the PixelPrompt pages. The gallery and admin pages
// are html/template sets (the shared layout plus one page file) exposed as
// templ components; the small status pages are templ components rendered
// into the same layout.
package views

import (
	"embed"
	"fmt"
	"html/template"

	"github.com/a-h/templ"

	"github.com/eringen/pixelprompt"
)

//go:embed templates/*.html
var templateFS embed.FS

// page is what every template executes against.
type page struct {
	Site   pixelprompt.SiteConfig
	Meta   pixelprompt.PageMeta
	Viewer pixelprompt.Viewer
	JSONLD template.JS
	Data   any
}

type renderer struct {
	site  pixelprompt.SiteConfig
	pages map[string]*template.Template
}

var pageFiles = []string{
	"home", "item", "collection", "admin", "admin_form", "status",
}

// New parses the page templates and returns the view functions for cfg.
func New(cfg pixelprompt.SiteConfig) (pixelprompt.ViewFuncs, error) {
	r := &renderer{site: cfg, pages: make(map[string]*template.Template, len(pageFiles))}
	for _, name := range pageFiles {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return pixelprompt.ViewFuncs{}, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return pixelprompt.ViewFuncs{
		Home:        r.home,
		Item:        r.item,
		Collection:  r.collection,
		Admin:       r.admin,
		AdminForm:   r.adminForm,
		AdminLogin:  r.adminLogin,
		NotFound:    r.notFound,
		ServerError: r.serverError,
	}, nil
}

// Must is New that panics on a template error.
func Must(cfg pixelprompt.SiteConfig) pixelprompt.ViewFuncs {
	v, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return v
}

func (r *renderer) render(name string, meta pixelprompt.PageMeta, viewer pixelprompt.Viewer, jsonLD string, data any) templ.Component {
	if meta.Title == "" {
		meta.Title = r.site.Name
	}
	return templ.FromGoHTML(r.pages[name], page{
		Site:   r.site,
		Meta:   meta,
		Viewer: viewer,
		JSONLD: template.JS(jsonLD),
		Data:   data,
	})
}

func (r *renderer) home(p pixelprompt.HomePage) templ.Component {
	return r.render("home", p.Meta, p.Viewer, pixelprompt.WebsiteJsonLD(r.site), p)
}

func (r *renderer) item(p pixelprompt.ItemPage) templ.Component {
	return r.render("item", p.Meta, p.Viewer, pixelprompt.ItemJsonLD(p.Item, r.site), p)
}

func (r *renderer) collection(p pixelprompt.CollectionPage) templ.Component {
	return r.render("collection", p.Meta, p.Viewer, "", p)
}

func (r *renderer) admin(p pixelprompt.AdminPage) templ.Component {
	return r.render("admin", p.Meta, p.Viewer, "", p)
}

func (r *renderer) adminForm(p pixelprompt.AdminFormPage) templ.Component {
	title := "New image"
	if p.Item.ID != "" {
		title = "Edit " + p.Item.Title
	}
	return r.render("admin_form", pixelprompt.PageMeta{Title: title + " | " + r.site.Name}, p.Viewer, "", p)
}
