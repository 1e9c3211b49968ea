// Package docstore is the document database behind PixelPrompt.
//
// It exposes a small hosted-store style API (get, query, create, set, update,
// delete, subscribe) over named collections of JSON documents. Collection
// names may be nested paths such as "users/{uid}/saved". Callers depend on the
// Client interface so tests can substitute a fake or a failing store.
package docstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Client is the gateway every component talks to.
type Client interface {
	// Get returns a single document or a RemoteError of KindNotFound.
	Get(ctx context.Context, collection, id string) (Doc, error)
	// Query returns documents matching q in order, plus the cursor of the last one.
	Query(ctx context.Context, q Query) (Page, error)
	// Create stores a new document under a store-assigned id.
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	// Set writes a document, creating it when missing. With merge, fields not
	// named in the call are kept.
	Set(ctx context.Context, collection, id string, fields Fields, merge bool) error
	// Update changes the named fields of an existing document.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Subscribe streams ordered snapshots of q until the subscription is closed
	// or ctx is done.
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
}

// Path joins collection and document segments: Path("images", id, "comments").
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

// Fields is the body of a document.
type Fields map[string]any

// Doc is a stored document.
type Doc struct {
	ID         string
	Collection string
	Data       Fields
	CreateTime time.Time
	UpdateTime time.Time
}

// String returns the string value of key, or "".
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Bool returns the boolean value of key. Missing or non-bool values are false.
func (f Fields) Bool(key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	}
	return false
}

// Int returns the integer value of key, or 0.
func (f Fields) Int(key string) int64 {
	n, _ := toInt(f[key])
	return n
}

// Time returns the timestamp stored under key, or the zero time.
func (f Fields) Time(key string) time.Time {
	switch v := f[key].(type) {
	case time.Time:
		return v.UTC()
	case nil:
		return time.Time{}
	default:
		if n, ok := toInt(v); ok {
			return time.UnixMicro(n).UTC()
		}
	}
	return time.Time{}
}

// Strings returns the string list stored under key.
func (f Fields) Strings(key string) []string {
	switch v := f[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Has reports whether key is present with a non-nil value.
func (f Fields) Has(key string) bool {
	v, ok := f[key]
	return ok && v != nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

type increment struct{ delta int64 }

// Increment is a field transform that adds n to the stored number (missing counts as 0).
func Increment(n int64) any { return increment{delta: n} }

type serverTimestamp struct{}

// ServerTimestamp is a field transform replaced by the store's commit time.
// Commit times are strictly increasing within one store.
var ServerTimestamp any = serverTimestamp{}

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "=="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Filter constrains a query on one field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query describes an ordered, filtered read of one collection. Documents
// without the OrderBy field are not returned. Ties on the order field are
// broken by document id in the same direction.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Desc       bool
	Limit      int
	StartAfter *Cursor
}

// Cursor marks a position in an ordered query: the order value and id of the
// last document seen.
type Cursor struct {
	Value any    `json:"value,omitempty"`
	ID    string `json:"id"`
}

// CursorOf returns the cursor positioned on d for a query ordered by field.
func CursorOf(d Doc, field string) *Cursor {
	c := &Cursor{ID: d.ID}
	if field != "" {
		c.Value = d.Data[field]
	}
	return c
}

// Page is one query result.
type Page struct {
	Docs []Doc
	// Next is the cursor of the last returned document; nil for an empty page.
	Next *Cursor
}
