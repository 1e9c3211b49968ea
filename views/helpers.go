package views

import (
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eringen/pixelprompt"
	"github.com/eringen/pixelprompt/engage"
	"github.com/eringen/pixelprompt/gallery"
)

var funcs = template.FuncMap{
	"itemURL":    ItemURL,
	"pathEscape": url.PathEscape,
	"tagClass":   TagClass,
	"badge":      engage.BadgeLabel,
	"joinTags":   JoinTags,
	"compact":    CompactCount,
	"has":        has,
	"sortLink":   SortLink,
	"date":       formatDate,
}

// ItemURL is the viewer page path of an item.
func ItemURL(it gallery.Item) string {
	return "/images/" + url.PathEscape(it.ID) + "/"
}

// TagClass returns CSS classes for a category pill, with active variant.
func TagClass(active bool) string {
	base := "inline-flex items-center rounded-full border border-ink dark:border-white/30 bg-stone-100 dark:bg-neutral-700 px-3 py-1 text-xs font-semibold hover:-translate-y-0.5 hover:shadow-sm transition"
	if active {
		base += " bg-ink dark:bg-white text-white dark:text-ink"
	}
	return base
}

// JoinTags formats a tag slice as a comma-separated string for form fields.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

// CompactCount shortens large counters: 1234 -> 1.2k.
func CompactCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "k"
	}
	return strconv.FormatInt(n, 10)
}

// SortLink builds the admin table link for a column header click.
func SortLink(p pixelprompt.AdminPage, field string) string {
	q := url.Values{}
	if p.Category != "" && p.Category != gallery.CategoryAll {
		q.Set("filter", p.Category)
	}
	if p.Search != "" {
		q.Set("q", p.Search)
	}
	q.Set("sort", p.Sort)
	if p.Desc {
		q.Set("dir", "desc")
	}
	q.Set("click", field)
	return "/admin/?" + q.Encode()
}

func has(m map[string]bool, id string) bool { return m[id] }

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}
