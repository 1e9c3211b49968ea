// Package prefs is the visitor's local preference store: the liked and saved
// item id sets used in guest mode, and the theme choice.
//
// Values are JSON encoded under fixed keys in a Storage, which in the server
// is the guest's document in the guests collection. Unreadable values are
// repaired to the empty set on read, so a corrupted value never breaks a page.
// The sets are never truncated: every entry stays until the visitor removes it.
package prefs

import (
	"encoding/json"
	"slices"
)

// Storage keys.
const (
	KeyLiked = "pp_liked_ids"
	KeySaved = "pp_saved_ids"
	KeyTheme = "theme"
)

// Themes.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Storage is a string key/value store.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Store reads and writes preferences in a Storage.
type Store struct {
	st Storage
}

// New wraps st.
func New(st Storage) *Store {
	return &Store{st: st}
}

func (s *Store) list(key string) []string {
	raw, ok := s.st.Get(key)
	if !ok || raw == "" {
		return []string{}
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		s.st.Set(key, "[]")
		return []string{}
	}
	return dedupe(ids)
}

func (s *Store) setList(key string, ids []string) {
	b, _ := json.Marshal(dedupe(ids))
	s.st.Set(key, string(b))
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// toggle flips membership of id in the set under key and reports the new membership.
func (s *Store) toggle(key, id string) bool {
	ids := s.list(key)
	if i := slices.Index(ids, id); i >= 0 {
		s.setList(key, slices.Delete(ids, i, i+1))
		return false
	}
	s.setList(key, append(ids, id))
	return true
}

// Liked returns the liked ids in insertion order.
func (s *Store) Liked() []string { return s.list(KeyLiked) }

// Saved returns the saved ids in insertion order.
func (s *Store) Saved() []string { return s.list(KeySaved) }

// IsLiked reports whether id is in the liked set.
func (s *Store) IsLiked(id string) bool { return slices.Contains(s.Liked(), id) }

// IsSaved reports whether id is in the saved set.
func (s *Store) IsSaved(id string) bool { return slices.Contains(s.Saved(), id) }

// ToggleLiked flips id in the liked set and reports whether it is now liked.
func (s *Store) ToggleLiked(id string) bool { return s.toggle(KeyLiked, id) }

// ToggleSaved flips id in the saved set and reports whether it is now saved.
func (s *Store) ToggleSaved(id string) bool { return s.toggle(KeySaved, id) }

// Theme returns the stored theme, or ThemeLight.
func (s *Store) Theme() string {
	raw, ok := s.st.Get(KeyTheme)
	if !ok {
		return ThemeLight
	}
	var theme string
	if err := json.Unmarshal([]byte(raw), &theme); err != nil || (theme != ThemeLight && theme != ThemeDark) {
		return ThemeLight
	}
	return theme
}

// SetTheme stores theme; unknown values store ThemeLight.
func (s *Store) SetTheme(theme string) {
	if theme != ThemeDark {
		theme = ThemeLight
	}
	b, _ := json.Marshal(theme)
	s.st.Set(KeyTheme, string(b))
}

// ToggleTheme switches between light and dark and returns the new theme.
func (s *Store) ToggleTheme() string {
	next := ThemeDark
	if s.Theme() == ThemeDark {
		next = ThemeLight
	}
	s.SetTheme(next)
	return next
}

// MemoryStorage is an in-memory Storage.
type MemoryStorage map[string]string

func (m MemoryStorage) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MemoryStorage) Set(key, value string) { m[key] = value }
