package prefs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyStore(t *testing.T) {
	s := New(MemoryStorage{})
	assert.Equal(t, []string{}, s.Liked())
	assert.Equal(t, []string{}, s.Saved())
	assert.False(t, s.IsLiked("a"))
	assert.Equal(t, ThemeLight, s.Theme())
}

func TestToggleLiked(t *testing.T) {
	st := MemoryStorage{}
	s := New(st)

	assert.True(t, s.ToggleLiked("a"))
	assert.True(t, s.ToggleLiked("b"))
	assert.Equal(t, []string{"a", "b"}, s.Liked())
	assert.Equal(t, `["a","b"]`, st[KeyLiked])

	assert.False(t, s.ToggleLiked("a"))
	assert.Equal(t, []string{"b"}, s.Liked())
	assert.True(t, s.IsLiked("b"))
}

func TestToggleSavedIndependent(t *testing.T) {
	s := New(MemoryStorage{})
	s.ToggleSaved("a")
	assert.True(t, s.IsSaved("a"))
	assert.False(t, s.IsLiked("a"))
}

func TestReadRepair(t *testing.T) {
	st := MemoryStorage{KeyLiked: "{not json", KeySaved: `["x","x","y"]`}
	s := New(st)

	assert.Equal(t, []string{}, s.Liked())
	assert.Equal(t, "[]", st[KeyLiked])
	assert.Equal(t, []string{"x", "y"}, s.Saved())
}

func TestLargeSetsKeepEveryEntry(t *testing.T) {
	s := New(MemoryStorage{})
	for i := 0; i < 500; i++ {
		s.ToggleLiked(fmt.Sprintf("id%d", i))
	}
	liked := s.Liked()
	assert.Len(t, liked, 500)
	assert.Equal(t, "id0", liked[0])
	assert.Equal(t, "id499", liked[499])
}

func TestTheme(t *testing.T) {
	st := MemoryStorage{}
	s := New(st)

	assert.Equal(t, ThemeDark, s.ToggleTheme())
	assert.Equal(t, `"dark"`, st[KeyTheme])
	assert.Equal(t, ThemeLight, s.ToggleTheme())

	s.SetTheme("purple")
	assert.Equal(t, ThemeLight, s.Theme())

	st[KeyTheme] = "garbage"
	assert.Equal(t, ThemeLight, s.Theme())
}
