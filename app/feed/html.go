package feed

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// HTMLScraper is the fallback for sources whose payload is not a feed.
type HTMLScraper struct{}

func NewHTMLScraper() *HTMLScraper {
	return &HTMLScraper{}
}

// DiscoverFeed returns the first advertised RSS/Atom link of an HTML page,
// resolved against pageURL.
func (s *HTMLScraper) DiscoverFeed(data []byte, pageURL string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", false
	}

	var found string
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		typ := strings.ToLower(sel.AttrOr("type", ""))
		if typ != "application/rss+xml" && typ != "application/atom+xml" && typ != "application/feed+json" {
			return true
		}
		if href := strings.TrimSpace(sel.AttrOr("href", "")); href != "" {
			found = resolveURL(pageURL, href)
			return false
		}
		return true
	})

	return found, found != ""
}

// Run scrapes <article> blocks into items.
func (s *HTMLScraper) Run(data []byte, pageURL string) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var items []Item
	seen := make(map[string]bool)

	doc.Find("article").Each(func(_ int, sel *goquery.Selection) {
		heading := sel.Find("h1, h2, h3").First()
		title := strings.Join(strings.Fields(heading.Text()), " ")

		link := heading.Find("a[href]").First()
		if link.Length() == 0 {
			link = sel.Find("a[href]").First()
		}
		href := resolveURL(pageURL, strings.TrimSpace(link.AttrOr("href", "")))

		if title == "" || href == "" || seen[href] {
			return
		}
		seen[href] = true

		item := Item{
			GUID:  href,
			Title: title,
			Link:  href,
		}

		summary := sel.Find("p")
		var parts []string
		summary.Each(func(_ int, p *goquery.Selection) {
			if text := strings.TrimSpace(p.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		item.Description = strings.Join(parts, "\n\n")

		if t, ok := parseTime(sel.Find("time").First()); ok {
			item.PublishedAt = t
		}

		if img, ok := sel.Find("img[src]").First().Attr("src"); ok {
			item.ImageURL = resolveURL(pageURL, img)
		}

		items = append(items, item)
	})

	if len(items) == 0 {
		return nil, fmt.Errorf("no articles found in HTML")
	}

	return items, nil
}

func parseTime(sel *goquery.Selection) (time.Time, bool) {
	if sel.Length() == 0 {
		return time.Time{}, false
	}
	for _, candidate := range []string{sel.AttrOr("datetime", ""), strings.TrimSpace(sel.Text())} {
		if candidate == "" {
			continue
		}
		if t, err := dateparse.ParseAny(candidate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Scheme == "" {
		return refURL.String()
	}
	return baseURL.ResolveReference(refURL).String()
}
