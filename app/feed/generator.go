package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/lysyi3m/news-bot/app/database"
)

// Generator renders published translations of one language as RSS.
type Generator struct {
	baseURL string
}

func NewGenerator(baseURL string) *Generator {
	return &Generator{baseURL: strings.TrimRight(baseURL, "/")}
}

func (g *Generator) Run(lang string, items []database.PublishedTranslation) (string, error) {
	updated := time.Now().UTC()
	if len(items) > 0 && items[0].PublishedAt != nil {
		updated = *items[0].PublishedAt
	}

	out := &feeds.Feed{
		Title:       fmt.Sprintf("News (%s)", lang),
		Link:        &feeds.Link{Href: g.articleURL(lang, "")},
		Description: fmt.Sprintf("Latest published articles in %s", lang),
		Updated:     updated,
		Created:     updated,
	}

	for _, item := range items {
		entry := &feeds.Item{
			Id:          item.ID,
			Title:       item.Title,
			Link:        &feeds.Link{Href: g.articleURL(lang, item.Slug)},
			Description: item.Summary,
			Content:     item.Body,
			Created:     item.CreatedAt,
		}
		if item.PublishedAt != nil {
			entry.Created = *item.PublishedAt
		}
		if item.Author != "" {
			entry.Author = &feeds.Author{Name: item.Author}
		}
		if item.SourceURL != "" {
			entry.Source = &feeds.Link{Href: item.SourceURL}
		}
		out.Items = append(out.Items, entry)
	}

	rss, err := out.ToRss()
	if err != nil {
		return "", fmt.Errorf("failed to render RSS: %w", err)
	}

	return rss, nil
}

func (g *Generator) articleURL(lang, slug string) string {
	base := g.baseURL
	if base == "" {
		base = "http://localhost"
	}
	if slug == "" {
		return fmt.Sprintf("%s/%s", base, lang)
	}
	return fmt.Sprintf("%s/%s/%s", base, lang, slug)
}
