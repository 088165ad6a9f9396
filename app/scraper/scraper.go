package scraper

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/dedup"
	"github.com/lysyi3m/news-bot/app/feed"
)

const maxBodyBytes = 10 << 20

type FeedStore interface {
	ListActiveFeeds(ctx context.Context, priority database.Priority) ([]database.FeedSource, error)
	RecordFetchSuccess(ctx context.Context, id string, fetched int) error
	RecordFetchFailure(ctx context.Context, id string, message string) (database.FeedStatus, error)
}

type IngestedChecker interface {
	ExistingSourceFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error)
}

// Item is a scraped entry that survived filtering and deduplication.
type Item struct {
	SourceID          string
	SourceName        string
	Category          string
	Categories        []string
	URL               string
	Title             string
	Summary           string
	Body              string
	ImageURL          string
	PublishedAt       time.Time
	Language          string
	WordCount         int
	Fingerprint       dedup.Fingerprint
	SourceFingerprint string
}

type Stats struct {
	FeedsChecked              int      `json:"feedsChecked"`
	ItemsFetched              int      `json:"itemsFetched"`
	ItemsNew                  int      `json:"itemsNew"`
	ItemsDuplicate            int      `json:"itemsDuplicate"`
	ItemsCrossSourceDuplicate int      `json:"itemsCrossSourceDuplicate"`
	ItemsAlreadyIngested      int      `json:"itemsAlreadyIngested"`
	ItemsFiltered             int      `json:"itemsFiltered"`
	Errors                    []string `json:"errors"`
}

type Result struct {
	Items []Item
	Stats Stats
}

type Options struct {
	UserAgent   string
	Timeout     time.Duration
	Concurrency int
}

type Scraper struct {
	feeds     FeedStore
	ingested  IngestedChecker
	index     dedup.Index
	client    *http.Client
	parser    *feed.Parser
	html      *feed.HTMLScraper
	extractor *feed.ContentExtractor
	opts      Options
}

func New(feeds FeedStore, ingested IngestedChecker, index dedup.Index, client *http.Client, opts Options) *Scraper {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	opts.UserAgent = cmp.Or(opts.UserAgent, "NewsBot/1.0")

	return &Scraper{
		feeds:     feeds,
		ingested:  ingested,
		index:     index,
		client:    client,
		parser:    feed.NewParser(),
		html:      feed.NewHTMLScraper(),
		extractor: feed.NewContentExtractor(),
		opts:      opts,
	}
}

type fetchResult struct {
	items []feed.Item
	err   error
}

// Run fetches every active feed of the tier and returns the new items. Feed
// failures are recorded in the stats; only a failure to list feeds is returned.
func (s *Scraper) Run(ctx context.Context, priority database.Priority, settings database.Settings) (*Result, error) {
	sources, err := s.feeds.ListActiveFeeds(ctx, priority)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	result := &Result{Stats: Stats{FeedsChecked: len(sources), Errors: []string{}}}
	if len(sources) == 0 {
		return result, nil
	}

	fetched := make([]fetchResult, len(sources))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, source := range sources {
		g.Go(func() error {
			items, err := s.fetchFeed(ctx, source, settings.MinWordCount)
			fetched[i] = fetchResult{items: items, err: err}
			return nil
		})
	}
	g.Wait()

	// Dedup runs sequentially in feed order so results do not depend on
	// which fetch finished first.
	var candidates []Item
	for i, source := range sources {
		res := fetched[i]
		if res.err != nil {
			result.Stats.Errors = append(result.Stats.Errors, fmt.Sprintf("feed %s: %v", source.Name, res.err))
			status, recErr := s.feeds.RecordFetchFailure(ctx, source.ID, res.err.Error())
			if recErr != nil {
				slog.Error("Failed to record fetch failure", "feed", source.Name, "error", recErr)
			} else if status == database.FeedStatusError {
				slog.Warn("Feed moved to error status", "feed", source.Name, "url", source.URL)
			}
			continue
		}

		result.Stats.ItemsFetched += len(res.items)
		if err := s.feeds.RecordFetchSuccess(ctx, source.ID, len(res.items)); err != nil {
			slog.Error("Failed to record fetch success", "feed", source.Name, "error", err)
		}

		for _, it := range res.items {
			candidates = append(candidates, newItem(source, it))
		}
	}

	known, err := s.ingested.ExistingSourceFingerprints(ctx, sourceFingerprints(candidates))
	if err != nil {
		return nil, fmt.Errorf("failed to check ingested items: %w", err)
	}

	var filterer *feed.Filterer
	if settings.EnablePaywallFilter {
		filterer = feed.NewFilterer(nil, feed.DefaultMinBodyLength)
	}
	opts := dedup.MatchOptions{CrossSource: settings.CrossSourceDedup, Threshold: settings.SimHashThreshold}
	seenSources := make(map[string]bool)

	for _, item := range candidates {
		if item.Title == "" || item.URL == "" {
			result.Stats.ItemsFiltered++
			continue
		}

		if filterer != nil {
			if filtered, reason := filterer.Check(item.Title, item.Body); filtered {
				slog.Debug("Item filtered", "feed", item.SourceName, "url", item.URL, "reason", reason)
				result.Stats.ItemsFiltered++
				continue
			}
		}

		if known[item.SourceFingerprint] {
			result.Stats.ItemsAlreadyIngested++
			continue
		}
		if seenSources[item.SourceFingerprint] {
			result.Stats.ItemsDuplicate++
			continue
		}

		match, err := s.index.MatchOrAdd(ctx, item.Fingerprint, item.SourceID, opts)
		if err != nil {
			result.Stats.Errors = append(result.Stats.Errors, fmt.Sprintf("dedup %s: %v", item.URL, err))
			continue
		}
		if match.Duplicate() {
			result.Stats.ItemsDuplicate++
			if match.CrossSource {
				result.Stats.ItemsCrossSourceDuplicate++
			}
			slog.Debug("Duplicate item skipped", "feed", item.SourceName, "url", item.URL,
				"match", match.Kind.String(), "distance", match.Distance, "cross_source", match.CrossSource)
			continue
		}

		seenSources[item.SourceFingerprint] = true

		result.Items = append(result.Items, item)
		result.Stats.ItemsNew++
	}

	return result, nil
}

func newItem(source database.FeedSource, it feed.Item) Item {
	body := it.Body()
	summary := ""
	if it.Content != "" && it.Description != "" {
		summary = feed.PlainText(it.Description)
	}

	link := strings.TrimSpace(it.Link)
	return Item{
		SourceID:          source.ID,
		SourceName:        source.Name,
		Category:          source.Category,
		Categories:        it.Categories,
		URL:               link,
		Title:             strings.TrimSpace(it.Title),
		Summary:           summary,
		Body:              body,
		ImageURL:          it.ImageURL,
		PublishedAt:       it.PublishedAt,
		Language:          source.Language,
		WordCount:         feed.WordCount(body),
		Fingerprint:       dedup.Compute(it.Title, body),
		SourceFingerprint: dedup.SourceFingerprint(link),
	}
}

func sourceFingerprints(items []Item) []string {
	fps := make([]string, 0, len(items))
	for _, item := range items {
		fps = append(fps, item.SourceFingerprint)
	}
	return fps
}

// fetchFeed downloads and parses one feed, falling back to HTML discovery and
// scraping when the payload is not a feed.
func (s *Scraper) fetchFeed(ctx context.Context, source database.FeedSource, minWords int) ([]feed.Item, error) {
	start := time.Now()

	data, err := s.get(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	_, items, parseErr := s.parser.Run(data)
	if parseErr != nil {
		items, err = s.fallback(ctx, source, data)
		if err != nil {
			return nil, fmt.Errorf("%v; html fallback: %w", parseErr, err)
		}
	}

	if source.MaxItemsPerFetch > 0 && len(items) > source.MaxItemsPerFetch {
		items = items[:source.MaxItemsPerFetch]
	}

	if source.ExtractContent {
		s.enrich(ctx, items, minWords)
	}

	slog.Debug("Feed fetched", "feed", source.Name, "items", len(items), "duration", time.Since(start))
	return items, nil
}

func (s *Scraper) fallback(ctx context.Context, source database.FeedSource, data []byte) ([]feed.Item, error) {
	if link, ok := s.html.DiscoverFeed(data, source.URL); ok && link != source.URL {
		discovered, err := s.get(ctx, link)
		if err == nil {
			if _, items, err := s.parser.Run(discovered); err == nil {
				slog.Info("Using discovered feed", "feed", source.Name, "url", link)
				return items, nil
			}
		}
	}
	return s.html.Run(data, source.URL)
}

// enrich replaces short bodies with the readable text of the linked page.
func (s *Scraper) enrich(ctx context.Context, items []feed.Item, minWords int) {
	for i := range items {
		if ctx.Err() != nil {
			return
		}
		if items[i].Link == "" || feed.WordCount(items[i].Body()) >= max(minWords, 1) {
			continue
		}

		page, err := s.get(ctx, items[i].Link)
		if err != nil {
			slog.Debug("Content fetch failed", "url", items[i].Link, "error", err)
			continue
		}
		text, err := s.extractor.Run(page, items[i].Link)
		if err != nil {
			slog.Debug("Content extraction failed", "url", items[i].Link, "error", err)
			continue
		}
		// the original description stays as summary
		items[i].Content = text
	}
}

func (s *Scraper) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/html;q=0.9, */*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return data, nil
}
