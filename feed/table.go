package feed

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/eringen/pixelprompt/gallery"
)

// Sortable table columns.
const (
	SortTitle     = "title"
	SortCategory  = "filter"
	SortCreatedAt = "createdAt"
	SortUpdatedAt = "updatedAt"
	SortViews     = "views"
	SortLikes     = "likesCount"
	SortHero      = "hero"
)

// Table is the admin catalog view: the full catalog filtered by category and
// search term, then stably sorted on one column.
type Table struct {
	items     []gallery.Item
	category  string
	search    string
	sortField string
	desc      bool
}

// NewTable returns an empty table sorted by creation time, newest first.
func NewTable() *Table {
	return &Table{category: gallery.CategoryAll, sortField: SortCreatedAt, desc: true}
}

// Load replaces the catalog.
func (t *Table) Load(items []gallery.Item) {
	t.items = append([]gallery.Item(nil), items...)
}

// SetCategory selects a category. "All" or "" shows everything and "Hero"
// shows hero items.
func (t *Table) SetCategory(category string) {
	category = strings.TrimSpace(category)
	if category == "" {
		category = gallery.CategoryAll
	}
	t.category = category
}

// SetSearch sets the free-text filter.
func (t *Table) SetSearch(term string) {
	t.search = strings.ToLower(strings.TrimSpace(term))
}

// SetSort sets the sort column and direction. An empty field keeps the current one.
func (t *Table) SetSort(field string, desc bool) {
	if field == "" {
		return
	}
	t.sortField = field
	t.desc = desc
}

// ClickSort applies a header click: the same column flips direction, a
// different column sorts ascending.
func (t *Table) ClickSort(field string) {
	if field == "" {
		return
	}
	if field == t.sortField {
		t.desc = !t.desc
		return
	}
	t.sortField = field
	t.desc = false
}

// Sort returns the current sort column and direction.
func (t *Table) Sort() (field string, desc bool) {
	return t.sortField, t.desc
}

func (t *Table) keep(it gallery.Item) bool {
	switch {
	case strings.EqualFold(t.category, gallery.CategoryAll):
	case strings.EqualFold(t.category, gallery.CategoryHero):
		if !it.Hero {
			return false
		}
	default:
		if !strings.EqualFold(it.Category, t.category) {
			return false
		}
	}
	if t.search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(it.Title), t.search) ||
		strings.Contains(strings.ToLower(strings.Join(it.Tags, ", ")), t.search) ||
		strings.Contains(strings.ToLower(it.Category), t.search)
}

// Rows returns the filtered, sorted rows.
func (t *Table) Rows() []gallery.Item {
	rows := make([]gallery.Item, 0, len(t.items))
	for _, it := range t.items {
		if t.keep(it) {
			rows = append(rows, it)
		}
	}
	field, desc := t.sortField, t.desc
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareValues(fieldValue(rows[i], field), fieldValue(rows[j], field))
		if desc {
			return c > 0
		}
		return c < 0
	})
	return rows
}

// Categories returns the filter options: All, Hero, then every label in the
// catalog in sorted order.
func (t *Table) Categories() []string {
	seen := map[string]struct{}{}
	var labels []string
	for _, it := range t.items {
		c := it.DisplayCategory()
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		labels = append(labels, c)
	}
	slices.Sort(labels)
	return append([]string{gallery.CategoryAll, gallery.CategoryHero}, labels...)
}

// fieldValue returns the sort key of it for field: a float64 for numbers and
// timestamps (epoch milliseconds), a string or bool otherwise, nil when missing.
func fieldValue(it gallery.Item, field string) any {
	switch field {
	case SortTitle:
		return it.Title
	case SortCategory:
		return it.Category
	case "prompt":
		return it.Prompt
	case SortCreatedAt:
		if it.CreatedAt.IsZero() {
			return nil
		}
		return float64(it.CreatedAt.UnixMilli())
	case SortUpdatedAt:
		if it.UpdatedAt.IsZero() {
			return nil
		}
		return float64(it.UpdatedAt.UnixMilli())
	case SortViews:
		return float64(it.Views)
	case SortLikes:
		return float64(it.LikesCount)
	case SortHero:
		return it.Hero
	}
	return nil
}

// compareValues orders two sort keys: numerically when both are numbers,
// otherwise as lower-cased strings with missing and false-like values as "".
func compareValues(a, b any) int {
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(sortString(a), sortString(b))
}

func sortString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
		return strings.ToLower(fmt.Sprint(t))
	case string:
		return strings.ToLower(t)
	}
	return strings.ToLower(fmt.Sprint(v))
}
