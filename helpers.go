package pixelprompt

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"

	"github.com/eringen/pixelprompt/gallery"
)

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// absoluteURL resolves ref, typically an /uploads/ path, against base.
func absoluteURL(base, ref string) string {
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// FilterEmpty removes empty/whitespace-only strings from a slice.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SplitCSV splits a comma separated form value, dropping blanks.
func SplitCSV(s string) []string {
	return FilterEmpty(strings.Split(s, ","))
}

// PathEscape escapes a string for use in a URL path.
func PathEscape(s string) string {
	return url.PathEscape(s)
}

// WebsiteJsonLD returns a JSON-LD string for a WebSite schema using SiteConfig.
func WebsiteJsonLD(cfg SiteConfig) string {
	data := map[string]interface{}{
		"@context":    "https://schema.org",
		"@type":       "WebSite",
		"name":        cfg.Name,
		"url":         BuildURL(cfg.URL),
		"description": cfg.Description,
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ItemJsonLD returns a JSON-LD string for an ImageObject schema.
func ItemJsonLD(it gallery.Item, cfg SiteConfig) string {
	pageURL := BuildURL(cfg.URL, "images", it.ID)
	data := map[string]interface{}{
		"@context":    "https://schema.org",
		"@type":       "ImageObject",
		"name":        it.Title,
		"description": it.Prompt,
		"url":         pageURL,
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   pageURL,
		},
		"interactionStatistic": map[string]interface{}{
			"@type":                "InteractionCounter",
			"interactionType":      "https://schema.org/LikeAction",
			"userInteractionCount": it.LikesCount,
		},
	}
	if it.ImageURL != "" {
		data["contentUrl"] = absoluteURL(cfg.URL, it.ImageURL)
	}
	if !it.CreatedAt.IsZero() {
		data["datePublished"] = it.CreatedAt.UTC().Format("2006-01-02")
	}
	if credits := it.DisplayCredits(); credits != "" {
		data["creditText"] = credits
	}
	if len(it.Tags) > 0 {
		data["keywords"] = strings.Join(it.Tags, ", ")
	}
	if cfg.Name != "" {
		data["publisher"] = map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
