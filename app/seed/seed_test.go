package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lysyi3m/news-bot/app/cfg"
	"github.com/lysyi3m/news-bot/app/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}

func testDefaults() database.Settings {
	return DefaultSettings(cfg.BotDefaults{
		HighPriorityInterval:   15,
		MediumPriorityInterval: 60,
		LowPriorityInterval:    240,
		MaxArticlesPerHour:     10,
		MinQAScore:             0.8,
		SimHashThreshold:       3,
	})
}

func TestDefaultCatalog(t *testing.T) {
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("Expected embedded catalog to parse, got: %v", err)
	}
	if len(catalog.Feeds) == 0 {
		t.Fatal("Expected feeds in the default catalog")
	}

	languages := make(map[string]bool)
	for _, f := range catalog.Feeds {
		languages[f.Language] = true
		if f.MaxItems == 0 {
			t.Errorf("Expected max items default for %s", f.Name)
		}
	}
	for _, lang := range []string{"tr", "en", "nl"} {
		if !languages[lang] {
			t.Errorf("Expected a feed in language %s", lang)
		}
	}
}

func TestLoadCatalog_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", "feeds:\n  - name: A\n    url: https://a.example/rss\n    language: EN\n    priority: High\n", false},
		{"missing url", "feeds:\n  - name: A\n    language: en\n", true},
		{"bad priority", "feeds:\n  - name: A\n    url: https://a.example/rss\n    language: en\n    priority: urgent\n", true},
		{"duplicate url", "feeds:\n  - name: A\n    url: https://a.example/rss\n    language: en\n  - name: B\n    url: https://a.example/rss\n    language: en\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "feeds.yml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("Failed to write catalog: %v", err)
			}

			catalog, err := LoadCatalog(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got: %v", tt.wantErr, err)
			}
			if !tt.wantErr {
				f := catalog.Feeds[0]
				if f.Language != "en" || f.Priority != "high" {
					t.Errorf("Expected normalized language and priority, got %+v", f)
				}
			}
		})
	}
}

func TestSeeder_Idempotent(t *testing.T) {
	db := newTestDB(t)
	feeds := database.NewFeedRepository(db)
	settings := database.NewSettingsRepository(db)
	catalog, _ := DefaultCatalog()
	seeder := NewSeeder(feeds, settings, catalog, testDefaults())
	ctx := context.Background()

	status, err := seeder.Status(ctx)
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if !status.NeedsSeeding || status.FeedsInDatabase != 0 {
		t.Errorf("Expected empty database to need seeding, got %+v", status)
	}

	first, err := seeder.Seed(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if first.FeedsInserted != len(catalog.Feeds) || !first.SettingsCreated {
		t.Errorf("Expected all feeds inserted and settings created, got %+v", first)
	}

	changed := testDefaults()
	changed.MinQAScore = 0.95
	if err := settings.UpdateSettings(ctx, changed); err != nil {
		t.Fatalf("Failed to update settings: %v", err)
	}

	second, err := seeder.Seed(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if second.FeedsInserted != 0 || second.FeedsSkipped != len(catalog.Feeds) || second.SettingsCreated {
		t.Errorf("Expected second seed to be a no-op, got %+v", second)
	}

	current, _ := settings.GetSettings(ctx)
	if current.MinQAScore != 0.95 {
		t.Errorf("Expected seeding to keep existing settings, got %v", current.MinQAScore)
	}

	status, _ = seeder.Status(ctx)
	if status.NeedsSeeding || status.FeedsInDatabase != len(catalog.Feeds) {
		t.Errorf("Expected seeded status, got %+v", status)
	}
}
