package gallery

import (
	"context"

	"github.com/eringen/pixelprompt/docstore"
)

// DemoItems is the built-in catalog shown when the store holds no items.
func DemoItems() []Item {
	return []Item{
		{ID: "demo1", Title: "Cyberpunk Alley", Prompt: "A cinematic rainy cyberpunk alley, neon.", Views: 120, LikesCount: 45, Category: "Trending", Tags: []string{"cyberpunk", "city"}, ImageURL: "https://placehold.co/800x500/4a0553/a8a29e?text=Cyberpunk", CreditsLink: "https://example.com", Demo: true},
		{ID: "demo2", Title: "Forest Spirit", Prompt: "Mysterious forest spirit, vibrant forest.", Views: 98, LikesCount: 30, Category: "People", Tags: []string{"fantasy", "spirit"}, ImageURL: "https://placehold.co/800x500/035921/a8a29e?text=Forest", CreditsLink: "https://example.com", Demo: true},
		{ID: "demo3", Title: "Abstract Nebula", Prompt: "Abstract nebula, vibrant colors.", Views: 210, LikesCount: 88, Category: "Design", Tags: []string{"abstract", "space"}, ImageURL: "https://placehold.co/800x500/223769/a8a29e?text=Abstract", CreditsLink: "https://example.com", Demo: true},
		{ID: "demo4", Title: "Funny Dog Astronaut", Prompt: "Pug in an astronaut suit.", Views: 150, LikesCount: 75, Category: "Funny", Tags: []string{"funny", "animal"}, ImageURL: "https://placehold.co/800x500/7a2741/a8a29e?text=Pug", CreditsLink: "https://example.com", Demo: true},
		{ID: "demo5", Title: "Couple at Sunset", Prompt: "Silhouette couple on a beach.", Views: 110, LikesCount: 40, Category: "Couples", Tags: []string{"couple", "sunset"}, ImageURL: "https://placehold.co/800x500/4a2c5a/a8a29e?text=Couple", CreditsLink: "https://example.com", Demo: true},
	}
}

// DemoItem returns the demo item with id.
func DemoItem(id string) (Item, bool) {
	for _, it := range DemoItems() {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// SeedDemo writes the demo catalog under its fixed ids, last item first so
// the newest-first feed lists them in catalog order. The first MaxHeroes items
// become heroes. Existing documents are overwritten.
func (r *Repo) SeedDemo(ctx context.Context) (int, error) {
	items := DemoItems()
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		f := it.content()
		f["views"] = it.Views
		f["likesCount"] = it.LikesCount
		f["hero"] = i < MaxHeroes
		f["createdAt"] = docstore.ServerTimestamp
		if err := r.db.Set(ctx, ColImages, it.ID, f, false); err != nil {
			return len(items) - 1 - i, err
		}
	}
	return len(items), nil
}
