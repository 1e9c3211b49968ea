// Package docstoretest provides docstore fixtures for tests.
package docstoretest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/eringen/pixelprompt/docstore"
)

// New opens a SQLite store in a temp dir that is closed when the test ends.
func New(t testing.TB, opts ...docstore.Option) *docstore.SQLite {
	t.Helper()
	s, err := docstore.Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("failed to open docstore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fault struct {
	op, collection, id string
	err                error
	remaining          int // <0 means forever
}

func (f *fault) matches(op, collection, id string) bool {
	return (f.op == "" || f.op == op) &&
		(f.collection == "" || f.collection == collection) &&
		(f.id == "" || f.id == id)
}

// Faulty wraps a Client and fails selected calls. Empty match fields act as wildcards.
type Faulty struct {
	docstore.Client

	mu     sync.Mutex
	faults []*fault
	calls  []string
}

// NewFaulty wraps c.
func NewFaulty(c docstore.Client) *Faulty {
	return &Faulty{Client: c}
}

// Fail makes every matching call return err, wrapped as a RemoteError.
func (f *Faulty) Fail(op, collection, id string, err error) {
	f.add(op, collection, id, err, -1)
}

// FailOnce makes the next matching call return err.
func (f *Faulty) FailOnce(op, collection, id string, err error) {
	f.add(op, collection, id, err, 1)
}

// Reset removes all faults and forgets recorded calls.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = nil
	f.calls = nil
}

// Calls returns "op collection/id" for every call made so far.
func (f *Faulty) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Faulty) add(op, collection, id string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, &fault{op: op, collection: collection, id: id, err: err, remaining: n})
}

func (f *Faulty) check(op, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+" "+docstore.Path(collection, id))
	for _, ft := range f.faults {
		if ft.remaining == 0 || !ft.matches(op, collection, id) {
			continue
		}
		if ft.remaining > 0 {
			ft.remaining--
		}
		return docstore.Wrap(op, collection, id, ft.err)
	}
	return nil
}

func (f *Faulty) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	if err := f.check("get", collection, id); err != nil {
		return docstore.Doc{}, err
	}
	return f.Client.Get(ctx, collection, id)
}

func (f *Faulty) Query(ctx context.Context, q docstore.Query) (docstore.Page, error) {
	if err := f.check("query", q.Collection, ""); err != nil {
		return docstore.Page{}, err
	}
	return f.Client.Query(ctx, q)
}

func (f *Faulty) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if err := f.check("create", collection, ""); err != nil {
		return "", err
	}
	return f.Client.Create(ctx, collection, fields)
}

func (f *Faulty) Set(ctx context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	if err := f.check("set", collection, id); err != nil {
		return err
	}
	return f.Client.Set(ctx, collection, id, fields, merge)
}

func (f *Faulty) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := f.check("update", collection, id); err != nil {
		return err
	}
	return f.Client.Update(ctx, collection, id, fields)
}

func (f *Faulty) Delete(ctx context.Context, collection, id string) error {
	if err := f.check("delete", collection, id); err != nil {
		return err
	}
	return f.Client.Delete(ctx, collection, id)
}

func (f *Faulty) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	if err := f.check("subscribe", q.Collection, ""); err != nil {
		return nil, err
	}
	return f.Client.Subscribe(ctx, q)
}
