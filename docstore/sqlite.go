package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite is a Client that keeps every collection in one SQLite table of JSON
// documents. Writes are serialised inside the process so read-modify-write
// transforms (merge, Increment, ServerTimestamp) are atomic per document.
type SQLite struct {
	db     *sql.DB
	broker Broker
	log    *slog.Logger

	writeMu  sync.Mutex
	lastTime int64
}

// Option configures a SQLite store.
type Option func(*SQLite)

// WithBroker sets the change broker used to wake subscriptions. Defaults to a LocalBroker.
func WithBroker(b Broker) Option {
	return func(s *SQLite) { s.broker = b }
}

// WithLogger sets the logger for best-effort failures such as broker publishes.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLite) { s.log = l }
}

// Open opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the documents table.
func Open(path string, opts ...Option) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// WAL lets readers run next to the writer; busy_timeout makes writers from
	// other processes wait instead of failing with SQLITE_BUSY. Pragmas go in
	// the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	s := &SQLite{db: db, broker: NewLocalBroker(), log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.QueryRow(`SELECT COALESCE(MAX(update_time), 0) FROM documents`).Scan(&s.lastTime); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data TEXT NOT NULL,
    create_time INTEGER NOT NULL,
    update_time INTEGER NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, create_time);
`)
	return err
}

// tick returns the next commit time in unix microseconds. Caller holds writeMu.
func (s *SQLite) tick() int64 {
	now := time.Now().UnixMicro()
	if now <= s.lastTime {
		now = s.lastTime + 1
	}
	s.lastTime = now
	return now
}

func (s *SQLite) publish(ctx context.Context, collection string) {
	if err := s.broker.Publish(context.WithoutCancel(ctx), collection); err != nil {
		s.log.Warn("docstore: publish change failed", "collection", collection, "error", err)
	}
}

// Get implements Client.
func (s *SQLite) Get(ctx context.Context, collection, id string) (Doc, error) {
	var data string
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, create_time, update_time FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Doc{}, &RemoteError{Op: "get", Collection: collection, ID: id, Kind: KindNotFound}
	}
	if err != nil {
		return Doc{}, Wrap("get", collection, id, err)
	}
	fields, err := decodeFields(data)
	if err != nil {
		return Doc{}, Wrap("get", collection, id, err)
	}
	return Doc{
		ID:         id,
		Collection: collection,
		Data:       fields,
		CreateTime: time.UnixMicro(created).UTC(),
		UpdateTime: time.UnixMicro(updated).UTC(),
	}, nil
}

// load returns the current fields of a document; found is false when it is missing.
func (s *SQLite) load(ctx context.Context, collection, id string) (Fields, bool, error) {
	doc, err := s.Get(ctx, collection, id)
	if IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc.Data, true, nil
}

// Create implements Client.
func (s *SQLite) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := checkCollection(collection); err != nil {
		return "", Wrap("create", collection, "", err)
	}
	id := uuid.NewString()
	err := func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		now := s.tick()
		data, err := resolve(nil, nil, fields, now)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO documents (collection, id, data, create_time, update_time) VALUES (?, ?, ?, ?, ?)`,
			collection, id, string(encoded), now, now)
		return err
	}()
	if err != nil {
		return "", Wrap("create", collection, id, err)
	}
	s.publish(ctx, collection)
	return id, nil
}

// Set implements Client.
func (s *SQLite) Set(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	if err := checkCollection(collection); err != nil {
		return Wrap("set", collection, id, err)
	}
	err := func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		existing, _, err := s.load(ctx, collection, id)
		if err != nil {
			return err
		}
		base := Fields(nil)
		if merge {
			base = existing
		}
		now := s.tick()
		data, err := resolve(base, existing, fields, now)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (collection, id, data, create_time, update_time) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, update_time = excluded.update_time`,
			collection, id, string(encoded), now, now)
		return err
	}()
	if err != nil {
		return Wrap("set", collection, id, err)
	}
	s.publish(ctx, collection)
	return nil
}

// Update implements Client.
func (s *SQLite) Update(ctx context.Context, collection, id string, fields Fields) error {
	err := func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		existing, found, err := s.load(ctx, collection, id)
		if err != nil {
			return err
		}
		if !found {
			return &RemoteError{Op: "update", Collection: collection, ID: id, Kind: KindNotFound}
		}
		now := s.tick()
		data, err := resolve(existing, existing, fields, now)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE documents SET data = ?, update_time = ? WHERE collection = ? AND id = ?`,
			string(encoded), now, collection, id)
		return err
	}()
	if err != nil {
		return Wrap("update", collection, id, err)
	}
	s.publish(ctx, collection)
	return nil
}

// Delete implements Client.
func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	s.writeMu.Lock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	s.writeMu.Unlock()
	if err != nil {
		return Wrap("delete", collection, id, err)
	}
	s.publish(ctx, collection)
	return nil
}

// Query implements Client.
func (s *SQLite) Query(ctx context.Context, q Query) (Page, error) {
	stmt, args, err := buildQuery(q)
	if err != nil {
		return Page{}, Wrap("query", q.Collection, "", err)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return Page{}, Wrap("query", q.Collection, "", err)
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var id, data string
		var created, updated int64
		if err := rows.Scan(&id, &data, &created, &updated); err != nil {
			return Page{}, Wrap("query", q.Collection, "", err)
		}
		fields, err := decodeFields(data)
		if err != nil {
			return Page{}, Wrap("query", q.Collection, id, err)
		}
		docs = append(docs, Doc{
			ID:         id,
			Collection: q.Collection,
			Data:       fields,
			CreateTime: time.UnixMicro(created).UTC(),
			UpdateTime: time.UnixMicro(updated).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return Page{}, Wrap("query", q.Collection, "", err)
	}
	page := Page{Docs: docs}
	if n := len(docs); n > 0 {
		page.Next = CursorOf(docs[n-1], q.OrderBy)
	}
	return page, nil
}

// Subscribe implements Client.
func (s *SQLite) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if _, _, err := buildQuery(q); err != nil {
		return nil, Wrap("subscribe", q.Collection, "", err)
	}
	changes, unsubscribe := s.broker.Subscribe(q.Collection)
	return newSubscription(ctx, changes, unsubscribe, func(ctx context.Context) ([]Doc, error) {
		page, err := s.Query(ctx, q)
		return page.Docs, err
	}), nil
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkField(name string) error {
	if !fieldName.MatchString(name) {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}

func checkCollection(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "//") {
		return fmt.Errorf("invalid collection %q", name)
	}
	return nil
}

func jsonPath(field string) string { return "$." + field }

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

func buildQuery(q Query) (string, []any, error) {
	if err := checkCollection(q.Collection); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString(`SELECT id, data, create_time, update_time FROM documents WHERE collection = ?`)

	for _, f := range q.Where {
		if err := checkField(f.Field); err != nil {
			return "", nil, err
		}
		op, ok := sqlOps[f.Op]
		if !ok {
			return "", nil, fmt.Errorf("invalid operator %q", f.Op)
		}
		v, err := sqlValue(f.Value)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" AND json_extract(data, ?) " + op + " ?")
		args = append(args, jsonPath(f.Field), v)
	}

	dir, cmp := "ASC", ">"
	if q.Desc {
		dir, cmp = "DESC", "<"
	}

	var path string
	if q.OrderBy != "" {
		if err := checkField(q.OrderBy); err != nil {
			return "", nil, err
		}
		path = jsonPath(q.OrderBy)
		b.WriteString(" AND json_extract(data, ?) IS NOT NULL")
		args = append(args, path)
	}

	if c := q.StartAfter; c != nil {
		if q.OrderBy == "" {
			b.WriteString(" AND id " + cmp + " ?")
			args = append(args, c.ID)
		} else {
			v, err := sqlValue(c.Value)
			if err != nil {
				return "", nil, err
			}
			fmt.Fprintf(&b, " AND (json_extract(data, ?) %s ? OR (json_extract(data, ?) = ? AND id %s ?))", cmp, cmp)
			args = append(args, path, v, path, v, c.ID)
		}
	}

	if q.OrderBy != "" {
		b.WriteString(" ORDER BY json_extract(data, ?) " + dir + ", id " + dir)
		args = append(args, path)
	} else {
		b.WriteString(" ORDER BY id " + dir)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}

// sqlValue converts a filter or cursor value to what json_extract yields for it.
func sqlValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case string, int64, float64:
		return t, nil
	case time.Time:
		return t.UnixMicro(), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	}
	if n, ok := toInt(v); ok {
		return n, nil
	}
	return nil, fmt.Errorf("unsupported filter value %T", v)
}

// resolve applies updates on top of base. prior holds the stored values that
// Increment transforms add to.
func resolve(base, prior, updates Fields, now int64) (Fields, error) {
	out := make(Fields, len(base)+len(updates))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range updates {
		if err := checkField(k); err != nil {
			return nil, err
		}
		switch t := v.(type) {
		case increment:
			cur, _ := toInt(prior[k])
			out[k] = cur + t.delta
		case serverTimestamp:
			out[k] = now
		default:
			nv, err := normalize(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			out[k] = nv
		}
	}
	return out, nil
}

// normalize maps Go values onto the JSON shapes stored in documents.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int64, float64, []string:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case time.Time:
		return t.UnixMicro(), nil
	case Fields:
		return normalize(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ne, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ne, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return numbers(out), nil
}

func decodeFields(data string) (Fields, error) {
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	out := make(Fields, len(raw))
	for k, v := range raw {
		out[k] = numbers(v)
	}
	return out, nil
}

// numbers replaces json.Number values with int64 or float64.
func numbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = numbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = numbers(e)
		}
		return t
	}
	return v
}
