package cfg

import (
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadArgs_Flags(t *testing.T) {
	cfg, err := LoadArgs([]string{
		"--db-path", "/tmp/test.db",
		"--port", "9090",
		"--languages", "tr, EN,nl,en",
		"--default-language", "en",
		"--max-per-hour", "12",
		"--min-qa-score", "0.85",
		"--dedup-ttl", "48h",
		"--no-cross-source-dedup",
		"--auto-publish",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected configuration, got nil")
	}

	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("Expected DB path '/tmp/test.db', got '%s'", cfg.DBPath)
	}
	if cfg.Port != "9090" {
		t.Errorf("Expected port '9090', got '%s'", cfg.Port)
	}
	if len(cfg.Languages) != 3 || cfg.Languages[0] != "tr" || cfg.Languages[1] != "en" || cfg.Languages[2] != "nl" {
		t.Errorf("Expected languages [tr en nl], got %v", cfg.Languages)
	}
	if cfg.DefaultLanguage != "en" {
		t.Errorf("Expected default language 'en', got '%s'", cfg.DefaultLanguage)
	}
	if cfg.Defaults.MaxArticlesPerHour != 12 {
		t.Errorf("Expected max per hour 12, got %d", cfg.Defaults.MaxArticlesPerHour)
	}
	if cfg.Defaults.MinQAScore != 0.85 {
		t.Errorf("Expected min QA score 0.85, got %v", cfg.Defaults.MinQAScore)
	}
	if cfg.DedupTTL != 48*time.Hour {
		t.Errorf("Expected dedup TTL 48h, got %v", cfg.DedupTTL)
	}
	if cfg.Defaults.CrossSourceDedup {
		t.Error("Expected cross-source dedup to be disabled")
	}
	if !cfg.Defaults.AutoPublish {
		t.Error("Expected auto publish to be enabled")
	}
}

func TestLoadArgs_InvalidDefaultLanguage(t *testing.T) {
	_, err := LoadArgs([]string{"--languages", "tr,en", "--default-language", "de"})
	if err == nil {
		t.Fatal("Expected error for default language outside the language list")
	}
}

func TestLoadArgs_InvalidQAScore(t *testing.T) {
	_, err := LoadArgs([]string{"--languages", "tr", "--default-language", "tr", "--min-qa-score", "1.5"})
	if err == nil {
		t.Fatal("Expected error for QA score above 1")
	}
}

func TestSplitLanguages(t *testing.T) {
	langs := splitLanguages(" tr ,,EN, en ,nl")
	expected := []string{"tr", "en", "nl"}
	if len(langs) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, langs)
	}
	for i := range expected {
		if langs[i] != expected[i] {
			t.Errorf("Expected %s at %d, got %s", expected[i], i, langs[i])
		}
	}
}
