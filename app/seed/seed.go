package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/news-bot/app/cfg"
	"github.com/lysyi3m/news-bot/app/database"
)

type FeedStore interface {
	InsertFeed(ctx context.Context, feed *database.FeedSource) (bool, error)
	GetFeedCount(ctx context.Context) (int, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (*database.Settings, error)
	EnsureSettings(ctx context.Context, defaults database.Settings) (bool, error)
}

type Result struct {
	FeedsInserted   int  `json:"feedsInserted"`
	FeedsSkipped    int  `json:"feedsSkipped"`
	SettingsCreated bool `json:"settingsCreated"`
}

type Status struct {
	FeedsInDatabase int  `json:"feedsInDatabase"`
	NeedsSeeding    bool `json:"needsSeeding"`
}

// Seeder installs the feed catalog and the settings row. Running it again is
// harmless: existing feeds (by URL) and an existing settings row are left alone.
type Seeder struct {
	feeds    FeedStore
	settings SettingsStore
	catalog  *Catalog
	defaults database.Settings
}

func NewSeeder(feeds FeedStore, settings SettingsStore, catalog *Catalog, defaults database.Settings) *Seeder {
	return &Seeder{feeds: feeds, settings: settings, catalog: catalog, defaults: defaults}
}

func (s *Seeder) Seed(ctx context.Context) (*Result, error) {
	result := &Result{}

	for _, source := range s.catalog.Sources() {
		inserted, err := s.feeds.InsertFeed(ctx, &source)
		if err != nil {
			return result, fmt.Errorf("failed to seed feed %s: %w", source.URL, err)
		}
		if inserted {
			result.FeedsInserted++
		} else {
			result.FeedsSkipped++
		}
	}

	created, err := s.settings.EnsureSettings(ctx, s.defaults)
	if err != nil {
		return result, err
	}
	result.SettingsCreated = created

	slog.Info("Seed completed", "inserted", result.FeedsInserted, "skipped", result.FeedsSkipped, "settings_created", created)
	return result, nil
}

func (s *Seeder) Status(ctx context.Context) (*Status, error) {
	count, err := s.feeds.GetFeedCount(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{FeedsInDatabase: count, NeedsSeeding: count == 0 || settings == nil}, nil
}

// DefaultSettings converts the static configuration defaults into a settings
// row. The persisted row wins once it exists.
func DefaultSettings(d cfg.BotDefaults) database.Settings {
	return database.Settings{
		IsEnabled:              true,
		HighPriorityInterval:   d.HighPriorityInterval,
		MediumPriorityInterval: d.MediumPriorityInterval,
		LowPriorityInterval:    d.LowPriorityInterval,
		DailyArticleTarget:     d.DailyArticleTarget,
		MaxArticlesPerHour:     d.MaxArticlesPerHour,
		MaxItemsPerCycle:       d.MaxItemsPerCycle,
		MinQAScore:             d.MinQAScore,
		AutoPublish:            d.AutoPublish,
		SimHashThreshold:       d.SimHashThreshold,
		CrossSourceDedup:       d.CrossSourceDedup,
		EnablePaywallFilter:    d.EnablePaywallFilter,
		MinWordCount:           d.MinWordCount,
	}
}
