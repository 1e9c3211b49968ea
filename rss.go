package pixelprompt

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pixelprompt/gallery"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	Link        string        `xml:"link"`
	Description string        `xml:"description"`
	Category    string        `xml:"category,omitempty"`
	PubDate     string        `xml:"pubDate,omitempty"`
	GUID        string        `xml:"guid"`
	Enclosure   *rssEnclosure `xml:"enclosure,omitempty"`
}

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

func (a *App) renderRSS(c echo.Context, images []gallery.Item) error {
	base := a.Config.URL
	items := make([]rssItem, 0, len(images))
	for _, it := range images {
		link := BuildURL(base, "images", it.ID)
		ri := rssItem{
			Title:       it.Title,
			Link:        link,
			Description: it.Prompt,
			Category:    it.DisplayCategory(),
			GUID:        link,
		}
		if !it.CreatedAt.IsZero() {
			ri.PubDate = it.CreatedAt.UTC().Format(time.RFC1123Z)
		}
		if it.ImageURL != "" {
			ri.Enclosure = &rssEnclosure{URL: absoluteURL(base, it.ImageURL), Type: "image/jpeg"}
		}
		items = append(items, ri)
	}
	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       a.Config.Name,
			Link:        base,
			Description: a.Config.Description,
			Items:       items,
		},
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(feed)
}
