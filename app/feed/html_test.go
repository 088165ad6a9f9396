package feed

import (
	"testing"
)

func TestHTMLScraper_DiscoverFeed(t *testing.T) {
	page := `<html><head>
		<link rel="stylesheet" href="/style.css">
		<link rel="alternate" type="application/rss+xml" href="/feeds/main.xml">
	</head><body></body></html>`

	url, ok := NewHTMLScraper().DiscoverFeed([]byte(page), "https://news.example.com/home")
	if !ok {
		t.Fatal("Expected feed link to be discovered")
	}
	if url != "https://news.example.com/feeds/main.xml" {
		t.Errorf("Expected resolved feed URL, got: %s", url)
	}

	if _, ok := NewHTMLScraper().DiscoverFeed([]byte("<html></html>"), "https://x.example.com"); ok {
		t.Error("Expected no feed link")
	}
}

func TestHTMLScraper_Run(t *testing.T) {
	page := `<html><body>
		<article>
			<h2><a href="/2025/03/01/budget">Budget passes parliament</a></h2>
			<time datetime="2025-03-01T08:00:00Z">1 March</time>
			<img src="/img/budget.jpg">
			<p>The budget passed after a long debate.</p>
			<p>Opposition parties voted against.</p>
		</article>
		<article>
			<h2>Second story</h2>
			<a href="https://other.example.com/story">Read more</a>
			<time>March 2, 2025</time>
		</article>
		<article><p>No heading here</p></article>
	</body></html>`

	items, err := NewHTMLScraper().Run([]byte(page), "https://news.example.com/")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got: %d", len(items))
	}

	first := items[0]
	if first.Title != "Budget passes parliament" {
		t.Errorf("Expected title 'Budget passes parliament', got: %s", first.Title)
	}
	if first.Link != "https://news.example.com/2025/03/01/budget" {
		t.Errorf("Expected resolved link, got: %s", first.Link)
	}
	if first.PublishedAt.IsZero() || first.PublishedAt.Day() != 1 {
		t.Errorf("Expected published on the 1st, got: %v", first.PublishedAt)
	}
	if first.ImageURL != "https://news.example.com/img/budget.jpg" {
		t.Errorf("Expected resolved image URL, got: %s", first.ImageURL)
	}
	if first.Body() != "The budget passed after a long debate. Opposition parties voted against." {
		t.Errorf("Unexpected body: '%s'", first.Body())
	}

	if items[1].Link != "https://other.example.com/story" {
		t.Errorf("Expected absolute link preserved, got: %s", items[1].Link)
	}
	if items[1].PublishedAt.IsZero() {
		t.Error("Expected textual date to be parsed")
	}
}

func TestHTMLScraper_NoArticles(t *testing.T) {
	if _, err := NewHTMLScraper().Run([]byte("<html><body><p>hi</p></body></html>"), ""); err == nil {
		t.Error("Expected error when no articles are found")
	}
}
