package blob

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pixelprompt/docstore"
)

func TestNewRef(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	a, err := NewRef(now)
	require.NoError(t, err)
	b, err := NewRef(now)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^images/1700000000123_[0-9a-z]{10}\.jpg$`), a)
	assert.NotEqual(t, a, b)
}

func TestDirPutURLDelete(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root, "/uploads")
	ctx := context.Background()

	require.NoError(t, d.Put(ctx, "images/1_abc.jpg", []byte("jpeg")))
	data, err := os.ReadFile(filepath.Join(root, "images", "1_abc.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
	assert.Equal(t, "/uploads/images/1_abc.jpg", d.URL("images/1_abc.jpg"))

	require.NoError(t, d.Delete(ctx, "images/1_abc.jpg"))
	require.NoError(t, d.Delete(ctx, "images/1_abc.jpg"))
	_, err = os.Stat(filepath.Join(root, "images", "1_abc.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestDirRejectsEscapingRefs(t *testing.T) {
	d := NewDir(t.TempDir(), "/uploads/")
	for _, ref := range []string{"", "../etc/passwd", "/abs.jpg", "images/../../x", `images\x.jpg`} {
		err := d.Put(context.Background(), ref, []byte("x"))
		assert.Equal(t, docstore.KindInvalid, docstore.KindOf(err), ref)
	}
}
