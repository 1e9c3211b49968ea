// Package blob stores uploaded image files and issues their public URLs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/eringen/pixelprompt/docstore"
)

// Store holds blobs addressed by a slash-separated reference.
type Store interface {
	Put(ctx context.Context, ref string, data []byte) error
	URL(ref string) string
	Delete(ctx context.Context, ref string) error
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRef returns a fresh reference for an uploaded image:
// images/{unix ms}_{random}.jpg.
func NewRef(now time.Time) (string, error) {
	id, err := gonanoid.Generate(idAlphabet, 10)
	if err != nil {
		return "", fmt.Errorf("generate blob id: %w", err)
	}
	return fmt.Sprintf("images/%d_%s.jpg", now.UnixMilli(), id), nil
}

var errBadRef = errors.New("invalid blob reference")

func checkRef(ref string) error {
	if ref == "" || strings.HasPrefix(ref, "/") || strings.Contains(ref, "\\") {
		return errBadRef
	}
	if clean := path.Clean(ref); clean != ref || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return errBadRef
	}
	return nil
}

// Dir stores blobs as files under a directory served at a URL prefix.
type Dir struct {
	root   string
	prefix string
}

// NewDir creates a Dir rooted at root whose files are served under prefix,
// e.g. "/uploads/".
func NewDir(root, prefix string) *Dir {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Dir{root: root, prefix: prefix}
}

// Root returns the directory blobs are written to.
func (d *Dir) Root() string { return d.root }

func (d *Dir) path(ref string) string {
	return filepath.Join(d.root, filepath.FromSlash(ref))
}

// Put writes data under ref, creating parent directories.
func (d *Dir) Put(ctx context.Context, ref string, data []byte) error {
	if err := checkRef(ref); err != nil {
		return &docstore.RemoteError{Op: "put", Collection: "blob", ID: ref, Kind: docstore.KindInvalid, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return docstore.Wrap("put", "blob", ref, err)
	}
	p := d.path(ref)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return docstore.Wrap("put", "blob", ref, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return docstore.Wrap("put", "blob", ref, err)
	}
	return nil
}

// URL returns the public URL of ref.
func (d *Dir) URL(ref string) string {
	return d.prefix + ref
}

// Delete removes ref. A missing blob is not an error.
func (d *Dir) Delete(ctx context.Context, ref string) error {
	if err := checkRef(ref); err != nil {
		return &docstore.RemoteError{Op: "delete", Collection: "blob", ID: ref, Kind: docstore.KindInvalid, Err: err}
	}
	if err := os.Remove(d.path(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return docstore.Wrap("delete", "blob", ref, err)
	}
	return nil
}
