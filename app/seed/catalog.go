package seed

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/news-bot/app/database"
)

//go:embed default_feeds.yml
var defaultFeeds []byte

// Catalog is the list of feeds a fresh installation starts with
type Catalog struct {
	Feeds []CatalogFeed `yaml:"feeds"`
}

// CatalogFeed describes one feed source in the catalog
type CatalogFeed struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	Category       string `yaml:"category"`
	Priority       string `yaml:"priority"`
	Language       string `yaml:"language"`
	MaxItems       int    `yaml:"max_items"`
	ExtractContent bool   `yaml:"extract_content"`
}

// DefaultCatalog returns the catalog embedded in the binary
func DefaultCatalog() (*Catalog, error) {
	return parseCatalog(defaultFeeds)
}

// LoadCatalog reads a catalog from a YAML file. An empty path yields the
// embedded default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seen := make(map[string]bool, len(catalog.Feeds))
	for i := range catalog.Feeds {
		feed := &catalog.Feeds[i]
		setDefaults(feed)
		if err := validate(feed); err != nil {
			return nil, fmt.Errorf("invalid feed at index %d: %w", i, err)
		}
		if seen[feed.URL] {
			return nil, fmt.Errorf("duplicate feed URL: %s", feed.URL)
		}
		seen[feed.URL] = true
	}

	return &catalog, nil
}

// setDefaults applies default values to a catalog entry
func setDefaults(feed *CatalogFeed) {
	feed.Priority = strings.ToLower(strings.TrimSpace(feed.Priority))
	if feed.Priority == "" {
		feed.Priority = string(database.PriorityMedium)
	}
	if feed.MaxItems == 0 {
		feed.MaxItems = 20
	}
	feed.Language = strings.ToLower(strings.TrimSpace(feed.Language))
}

// validate validates a catalog entry
func validate(feed *CatalogFeed) error {
	if feed.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	if feed.Name == "" {
		return fmt.Errorf("feed name is required")
	}
	if feed.Language == "" {
		return fmt.Errorf("feed language is required")
	}
	if _, err := database.ParsePriority(feed.Priority); err != nil {
		return err
	}
	if feed.MaxItems < 0 {
		return fmt.Errorf("max items must be non-negative")
	}
	return nil
}

// Sources converts the catalog into feed sources ready for insertion
func (c *Catalog) Sources() []database.FeedSource {
	sources := make([]database.FeedSource, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		sources = append(sources, database.FeedSource{
			Name:             f.Name,
			URL:              f.URL,
			Category:         f.Category,
			Priority:         database.Priority(f.Priority),
			Status:           database.FeedStatusActive,
			Language:         f.Language,
			MaxItemsPerFetch: f.MaxItems,
			ExtractContent:   f.ExtractContent,
		})
	}
	return sources
}
