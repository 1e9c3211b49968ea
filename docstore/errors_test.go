package docstore

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapClassifies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"canceled", context.Canceled, KindUnavailable},
		{"permission", fs.ErrPermission, KindPermission},
		{"readonly", errors.New("attempt to write a readonly database"), KindPermission},
		{"busy", errors.New("database is locked (SQLITE_BUSY)"), KindUnavailable},
		{"constraint", errors.New("UNIQUE constraint failed"), KindInvalid},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Wrap("get", "images", "x", tt.err)
			assert.Equal(t, tt.want, KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestWrapKeepsRemoteError(t *testing.T) {
	orig := &RemoteError{Op: "update", Collection: "images", ID: "a", Kind: KindNotFound}
	assert.Same(t, orig, Wrap("get", "other", "b", orig))
	assert.Nil(t, Wrap("get", "images", "a", nil))
}

func TestRemoteErrorIs(t *testing.T) {
	err := error(&RemoteError{Op: "set", Collection: "images", Kind: KindPermission})
	assert.ErrorIs(t, err, ErrPermission)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "docstore set images: permission", err.Error())
}
