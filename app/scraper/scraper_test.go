package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/dedup"
)

type fakeFeeds struct {
	mu        sync.Mutex
	feeds     []database.FeedSource
	successes map[string]int
	failures  map[string]string
}

func newFakeFeeds(feeds ...database.FeedSource) *fakeFeeds {
	return &fakeFeeds{feeds: feeds, successes: map[string]int{}, failures: map[string]string{}}
}

func (f *fakeFeeds) ListActiveFeeds(_ context.Context, priority database.Priority) ([]database.FeedSource, error) {
	var out []database.FeedSource
	for _, feed := range f.feeds {
		if feed.Priority == priority && feed.Status == database.FeedStatusActive {
			out = append(out, feed)
		}
	}
	return out, nil
}

func (f *fakeFeeds) RecordFetchSuccess(_ context.Context, id string, fetched int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes[id] += fetched
	return nil
}

func (f *fakeFeeds) RecordFetchFailure(_ context.Context, id string, message string) (database.FeedStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = message
	return database.FeedStatusActive, nil
}

type fakeIngested map[string]bool

func (f fakeIngested) ExistingSourceFingerprints(_ context.Context, fps []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, fp := range fps {
		if f[fp] {
			out[fp] = true
		}
	}
	return out, nil
}

type entry struct {
	title, link, body string
}

func rss(entries ...entry) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>T</title><link>https://example.com</link><description>D</description>`)
	for _, e := range entries {
		fmt.Fprintf(&b, `<item><title>%s</title><link>%s</link><description>%s</description><pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate></item>`,
			e.title, e.link, e.body)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func source(id, url string) database.FeedSource {
	return database.FeedSource{
		ID: id, Name: id, URL: url, Priority: database.PriorityHigh,
		Status: database.FeedStatusActive, Language: "en", MaxItemsPerFetch: 20,
	}
}

func settings(crossSource bool) database.Settings {
	return database.Settings{
		IsEnabled:        true,
		SimHashThreshold: 3,
		CrossSourceDedup: crossSource,
	}
}

const sharedBody = "The central bank raised interest rates by a quarter point on Thursday citing persistent inflation."

func TestScraper_CrossSourceDedup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rss(entry{"Rates rise", "https://a.example.com/rates", sharedBody}))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rss(entry{"Rates rise", "https://b.example.com/rates", sharedBody}))
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rss(entry{"Rates rise", "https://c.example.com/rates", sharedBody + " Markets"}))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tests := []struct {
		name                string
		second              string
		crossSource         bool
		expectedNew         int
		expectedCrossSource int
	}{
		{"identical with cross source enabled", "/b", true, 1, 1},
		{"identical with cross source disabled", "/b", false, 1, 1},
		{"near copy with cross source enabled", "/c", true, 1, 1},
		{"near copy with cross source disabled", "/c", false, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feeds := newFakeFeeds(source("a", server.URL+"/a"), source("b", server.URL+tt.second))
			s := New(feeds, fakeIngested{}, dedup.NewMemoryIndex(time.Hour), server.Client(), Options{Concurrency: 2})

			result, err := s.Run(context.Background(), database.PriorityHigh, settings(tt.crossSource))
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if len(result.Items) != tt.expectedNew {
				t.Errorf("Expected %d items, got %d", tt.expectedNew, len(result.Items))
			}
			if result.Stats.ItemsFetched != 2 {
				t.Errorf("Expected 2 fetched items, got %d", result.Stats.ItemsFetched)
			}
			if result.Stats.ItemsCrossSourceDuplicate != tt.expectedCrossSource {
				t.Errorf("Expected %d cross-source duplicates, got %d", tt.expectedCrossSource, result.Stats.ItemsCrossSourceDuplicate)
			}
			if len(result.Items) > 0 && result.Items[0].SourceID != "a" {
				t.Errorf("Expected the first feed to win, got %s", result.Items[0].SourceID)
			}
		})
	}
}

var distinctBodies = []string{
	"Parliament approved the annual budget after a marathon overnight session",
	"Storm warnings issued along the northern coast as ferries cancel crossings",
	"Local museum reopens with restored medieval tapestries and new lighting",
	"Football club signs young striker from rival league on five year contract",
	"Researchers publish genome of rare orchid found in mountain valley",
}

func TestScraper_PartialFailureIsolation(t *testing.T) {
	mux := http.NewServeMux()
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("/feed%d", i)
		if i == 2 {
			mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			})
			continue
		}
		body := distinctBodies[i]
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, rss(entry{body[:20], fmt.Sprintf("https://example.com/%d", i), body}))
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	var sources []database.FeedSource
	for i := 0; i < 5; i++ {
		sources = append(sources, source(fmt.Sprintf("feed%d", i), fmt.Sprintf("%s/feed%d", server.URL, i)))
	}
	feeds := newFakeFeeds(sources...)
	s := New(feeds, fakeIngested{}, dedup.NewMemoryIndex(time.Hour), server.Client(), Options{Concurrency: 3})

	result, err := s.Run(context.Background(), database.PriorityHigh, settings(true))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Stats.FeedsChecked != 5 {
		t.Errorf("Expected 5 feeds checked, got %d", result.Stats.FeedsChecked)
	}
	if len(result.Stats.Errors) != 1 {
		t.Errorf("Expected 1 error, got %v", result.Stats.Errors)
	}
	if len(result.Items) != 4 {
		t.Errorf("Expected 4 items from healthy feeds, got %d", len(result.Items))
	}
	if _, ok := feeds.failures["feed2"]; !ok {
		t.Error("Expected failure recorded for feed2")
	}
	if feeds.successes["feed0"] != 1 {
		t.Errorf("Expected success recorded for feed0, got %d", feeds.successes["feed0"])
	}
}

func TestScraper_IndexSharedAcrossRuns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rss(entry{"Rates rise", "https://a.example.com/rates", sharedBody}))
	}))
	defer server.Close()

	index := dedup.NewMemoryIndex(time.Hour)
	high := source("a", server.URL)
	medium := source("b", server.URL+"/?other")
	medium.Priority = database.PriorityMedium
	feeds := newFakeFeeds(high, medium)
	s := New(feeds, fakeIngested{}, index, server.Client(), Options{})

	first, _ := s.Run(context.Background(), database.PriorityHigh, settings(true))
	second, _ := s.Run(context.Background(), database.PriorityMedium, settings(true))

	if len(first.Items) != 1 {
		t.Fatalf("Expected 1 item in first run, got %d", len(first.Items))
	}
	if len(second.Items) != 0 || second.Stats.ItemsDuplicate != 1 {
		t.Errorf("Expected the later tier to see the item as duplicate, got %d items, %d duplicates",
			len(second.Items), second.Stats.ItemsDuplicate)
	}
}

func TestScraper_AlreadyIngestedAndPaywall(t *testing.T) {
	long := strings.Repeat("Full reporting with many details and quotes. ", 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rss(
			entry{"Known story", "https://example.com/known?utm_source=rss", long + " known"},
			entry{"Teaser", "https://example.com/teaser", "Subscribe to continue reading."},
			entry{"Fresh story", "https://example.com/fresh", long + " fresh and different"},
		))
	}))
	defer server.Close()

	ingested := fakeIngested{dedup.SourceFingerprint("https://example.com/known"): true}
	s := New(newFakeFeeds(source("a", server.URL)), ingested, dedup.NewMemoryIndex(time.Hour), server.Client(), Options{})

	cfg := settings(true)
	cfg.EnablePaywallFilter = true
	result, err := s.Run(context.Background(), database.PriorityHigh, cfg)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Stats.ItemsAlreadyIngested != 1 {
		t.Errorf("Expected 1 already ingested, got %d", result.Stats.ItemsAlreadyIngested)
	}
	if result.Stats.ItemsFiltered != 1 {
		t.Errorf("Expected 1 filtered, got %d", result.Stats.ItemsFiltered)
	}
	if len(result.Items) != 1 || result.Items[0].Title != "Fresh story" {
		t.Errorf("Expected only the fresh story, got %+v", result.Items)
	}
}

func TestScraper_HTMLFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<article><h2><a href="/story-1">Story one</a></h2><p>First story text.</p></article>
			<article><h2><a href="/story-2">Story two</a></h2><p>Second story is about something else.</p></article>
		</body></html>`)
	})
	mux.HandleFunc("/discover", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><link rel="alternate" type="application/rss+xml" href="/rss"></head></html>`)
	})
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rss(entry{"From discovered feed", "https://example.com/discovered", sharedBody}))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	feeds := newFakeFeeds(source("page", server.URL+"/page"), source("discover", server.URL+"/discover"))
	s := New(feeds, fakeIngested{}, dedup.NewMemoryIndex(time.Hour), server.Client(), Options{})

	result, err := s.Run(context.Background(), database.PriorityHigh, settings(true))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(result.Stats.Errors) != 0 {
		t.Errorf("Expected no errors, got %v", result.Stats.Errors)
	}
	if len(result.Items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(result.Items))
	}
	if result.Items[0].URL != server.URL+"/story-1" {
		t.Errorf("Expected resolved story URL, got %s", result.Items[0].URL)
	}
	if result.Items[2].Title != "From discovered feed" {
		t.Errorf("Expected item from discovered feed, got %s", result.Items[2].Title)
	}
}

func TestScraper_MaxItemsPerFetchAndUserAgent(t *testing.T) {
	var (
		mu    sync.Mutex
		agent string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agent = r.Header.Get("User-Agent")
		mu.Unlock()
		fmt.Fprint(w, rss(
			entry{"One", "https://example.com/1", "first unique body about apples"},
			entry{"Two", "https://example.com/2", "second unique body about oranges"},
			entry{"Three", "https://example.com/3", "third unique body about pears"},
		))
	}))
	defer server.Close()

	src := source("a", server.URL)
	src.MaxItemsPerFetch = 2
	s := New(newFakeFeeds(src), fakeIngested{}, dedup.NewMemoryIndex(time.Hour), server.Client(), Options{UserAgent: "TestBot/2.0"})

	result, _ := s.Run(context.Background(), database.PriorityHigh, settings(true))
	if result.Stats.ItemsFetched != 2 {
		t.Errorf("Expected 2 fetched items, got %d", result.Stats.ItemsFetched)
	}
	mu.Lock()
	defer mu.Unlock()
	if agent != "TestBot/2.0" {
		t.Errorf("Expected user agent 'TestBot/2.0', got '%s'", agent)
	}
}

func TestScraper_NoFeeds(t *testing.T) {
	s := New(newFakeFeeds(), fakeIngested{}, dedup.NewMemoryIndex(time.Hour), nil, Options{})

	result, err := s.Run(context.Background(), database.PriorityLow, settings(true))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Stats.FeedsChecked != 0 || len(result.Items) != 0 {
		t.Errorf("Expected empty result, got %+v", result.Stats)
	}
}
