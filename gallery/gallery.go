// Package gallery holds the PixelPrompt domain types and the typed repository
// over the document store.
package gallery

import (
	"strings"
	"time"

	"github.com/eringen/pixelprompt/docstore"
)

// Collection names.
const (
	ColImages     = "images"
	ColLikes      = "imageLikes"
	ColUsers      = "users"
	ColAdmins     = "admins"
	ColSiteConfig = "siteConfig"
	ColGuests     = "guests"
)

// Category labels with special meaning.
const (
	CategoryAll     = "All"
	CategoryHero    = "Hero"
	DefaultCategory = "Uncategorized"
)

const (
	// MaxHeroes is the number of hero items the policy keeps.
	MaxHeroes = 3
	// FeedPageSize is the public feed page size.
	FeedPageSize = 10
	// MaxDisplayTags caps the tags shown for an item.
	MaxDisplayTags = 5
	// DefaultCredits is shown when an item carries no credits text.
	DefaultCredits = "Generated by PixelPrompt"
)

// DefaultSuggestions is shown when an item has no refinement suggestions.
var DefaultSuggestions = []string{"Increase contrast", "Try 35mm film look", "Add a cinematic light"}

// Categories offered as filter chips next to the labels found in the catalog.
var Categories = []string{"Trending", "People", "Design", "Funny", "Couples", "Nature", "Sci-Fi", "Fantasy", "Art", "Vehicles", "Animals", "Food"}

// SavedCollection is the per-user collection of save records.
func SavedCollection(uid string) string {
	return docstore.Path(ColUsers, uid, "saved")
}

// CommentsCollection is the per-item comment collection.
func CommentsCollection(itemID string) string {
	return docstore.Path(ColImages, itemID, "comments")
}

// LikeID is the deterministic id of a like record.
func LikeID(itemID, uid string) string {
	return itemID + "_" + uid
}

// Item is one gallery image.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Prompt      string    `json:"prompt"`
	Suggestions []string  `json:"suggestions"`
	Tags        []string  `json:"tags"`
	Category    string    `json:"filter"`
	Credits     string    `json:"credits,omitempty"`
	CreditsLink string    `json:"creditsLink,omitempty"`
	Views       int64     `json:"views"`
	LikesCount  int64     `json:"likesCount"`
	Hero        bool      `json:"hero"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	StorageRef  string    `json:"storageRef,omitempty"`
	ImageURL    string    `json:"storagePath"`
	Demo        bool      `json:"demo,omitempty"`
}

// ItemFromDoc decodes an images document.
func ItemFromDoc(d docstore.Doc) Item {
	f := d.Data
	return Item{
		ID:          d.ID,
		Title:       f.String("title"),
		Prompt:      f.String("prompt"),
		Suggestions: f.Strings("suggestions"),
		Tags:        f.Strings("tags"),
		Category:    f.String("filter"),
		Credits:     f.String("credits"),
		CreditsLink: f.String("creditsLink"),
		Views:       f.Int("views"),
		LikesCount:  f.Int("likesCount"),
		Hero:        f.Bool("hero"),
		CreatedAt:   f.Time("createdAt"),
		UpdatedAt:   f.Time("updatedAt"),
		StorageRef:  f.String("storageRef"),
		ImageURL:    f.String("storagePath"),
	}
}

// content returns the editable fields of it.
func (it Item) content() docstore.Fields {
	category := strings.TrimSpace(it.Category)
	if category == "" {
		category = DefaultCategory
	}
	f := docstore.Fields{
		"title":       it.Title,
		"prompt":      it.Prompt,
		"suggestions": nonNil(it.Suggestions),
		"tags":        nonNil(it.Tags),
		"filter":      category,
		"credits":     it.Credits,
		"creditsLink": it.CreditsLink,
		"updatedAt":   docstore.ServerTimestamp,
	}
	if it.ImageURL != "" {
		f["storagePath"] = it.ImageURL
		f["storageRef"] = it.StorageRef
	}
	return f
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// DisplayCategory returns the category label, defaulting to Uncategorized.
func (it Item) DisplayCategory() string {
	if it.Category == "" {
		return DefaultCategory
	}
	return it.Category
}

// DisplaySuggestions returns the suggestions or the defaults.
func (it Item) DisplaySuggestions() []string {
	if len(it.Suggestions) == 0 {
		return DefaultSuggestions
	}
	return it.Suggestions
}

// DisplayTags returns at most MaxDisplayTags tags.
func (it Item) DisplayTags() []string {
	if len(it.Tags) > MaxDisplayTags {
		return it.Tags[:MaxDisplayTags]
	}
	return it.Tags
}

// DisplayCredits returns the credits text or DefaultCredits.
func (it Item) DisplayCredits() string {
	if it.Credits == "" {
		return DefaultCredits
	}
	return it.Credits
}

// Matches reports whether term (lower-cased) occurs in the title, category or tags.
func (it Item) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(it.Title), term) || strings.Contains(strings.ToLower(it.Category), term) {
		return true
	}
	for _, tag := range it.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// LikeRecord is a per-(item, user) like flag.
type LikeRecord struct {
	ItemID    string
	UserID    string
	Liked     bool
	CreatedAt time.Time
	// Exists is false when no record has ever been written.
	Exists bool
}

// SaveRecord is a per-(user, item) save flag.
type SaveRecord struct {
	ItemID    string
	Saved     bool
	CreatedAt time.Time
	Exists    bool
}

// Comment is a viewer comment on an item.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentFromDoc decodes a comment document.
func CommentFromDoc(d docstore.Doc) Comment {
	name := d.Data.String("userName")
	if name == "" {
		name = "User"
	}
	return Comment{
		ID:        d.ID,
		UserID:    d.Data.String("userId"),
		UserName:  name,
		Text:      d.Data.String("text"),
		CreatedAt: d.Data.Time("createdAt"),
	}
}

// Social is a link on the about page.
type Social struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// DefaultLearnURL is used when siteConfig/learn has no url.
const DefaultLearnURL = "https://youtube.com/"
