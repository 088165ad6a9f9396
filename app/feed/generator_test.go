package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/news-bot/app/database"
)

func TestGenerateRSS(t *testing.T) {
	published := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	items := []database.PublishedTranslation{
		{
			Translation: database.Translation{
				ID:          "t-1",
				Lang:        "en",
				Slug:        "ai-news",
				Title:       "AI News & Updates",
				Summary:     "Short summary",
				Body:        "Full body",
				Author:      "Editorial Desk",
				PublishedAt: &published,
			},
			SourceURL: "https://source.example.com/story",
		},
	}

	rss, err := NewGenerator("https://news.example.com/").Run("en", items)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	checks := []string{
		`<rss version="2.0"`,
		"<title>News (en)</title>",
		"https://news.example.com/en/ai-news",
		"AI News &amp; Updates",
		"Short summary",
		"Editorial Desk",
	}
	for _, check := range checks {
		if !strings.Contains(rss, check) {
			t.Errorf("Expected RSS to contain %q", check)
		}
	}
}

func TestGenerateWithEmptyItems(t *testing.T) {
	rss, err := NewGenerator("").Run("nl", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.Contains(rss, "<item>") {
		t.Error("Expected no items")
	}
	if !strings.Contains(rss, "http://localhost/nl") {
		t.Error("Expected localhost fallback link")
	}
}
