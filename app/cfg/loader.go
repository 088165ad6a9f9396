package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/newsbot.db" description:"SQLite database file"`

	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://news.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	BotDisabled  bool   `long:"bot-disabled" env:"BOT_DISABLED" description:"Globally disable the ingestion bot at process start"`
	FeedsFile    string `long:"feeds-file" env:"FEEDS_FILE" description:"YAML feed catalog used for seeding (defaults to the embedded catalog)"`

	// Shared dedup store
	RedisAddr     string        `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the shared near-duplicate index (empty = in-process)"`
	RedisPassword string        `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int           `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`
	DedupTTL      time.Duration `long:"dedup-ttl" env:"DEDUP_TTL" default:"36h" description:"How long fingerprints stay in the near-duplicate index"`

	// AI backend
	AIEndpoint string        `long:"ai-endpoint" env:"AI_ENDPOINT" default:"https://api.openai.com/v1/chat/completions" description:"OpenAI-compatible chat completions endpoint"`
	AIAPIKey   string        `long:"ai-api-key" env:"AI_API_KEY" description:"API key for the AI backend"`
	AIModel    string        `long:"ai-model" env:"AI_MODEL" default:"gpt-4o-mini" description:"Model name for rewrite and translation"`
	AITimeout  time.Duration `long:"ai-timeout" env:"AI_TIMEOUT" default:"60s" description:"Timeout for a single AI call"`

	// Fetching
	FetchTimeout     time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30s" description:"Timeout for a single feed or article fetch"`
	FetchConcurrency int           `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"5" description:"Number of feeds fetched concurrently"`

	// Content
	Languages       string `long:"languages" env:"LANGUAGES" default:"tr,en,nl" description:"Comma-separated list of published languages"`
	DefaultLanguage string `long:"default-language" env:"DEFAULT_LANGUAGE" default:"tr" description:"Language used for the article-level slug"`
	ArticleAuthor   string `long:"article-author" env:"ARTICLE_AUTHOR" default:"Editorial Desk" description:"Author name stamped on generated translations"`

	// Static bot defaults
	HighPriorityInterval   int     `long:"high-interval" env:"BOT_HIGH_INTERVAL" default:"15" description:"High priority poll interval in minutes"`
	MediumPriorityInterval int     `long:"medium-interval" env:"BOT_MEDIUM_INTERVAL" default:"60" description:"Medium priority poll interval in minutes"`
	LowPriorityInterval    int     `long:"low-interval" env:"BOT_LOW_INTERVAL" default:"240" description:"Low priority poll interval in minutes"`
	DailyArticleTarget     int     `long:"daily-target" env:"BOT_DAILY_TARGET" default:"50" description:"Daily article target"`
	MaxArticlesPerHour     int     `long:"max-per-hour" env:"BOT_MAX_PER_HOUR" default:"10" description:"Maximum auto-published articles per rolling hour"`
	MaxItemsPerCycle       int     `long:"max-per-cycle" env:"BOT_MAX_PER_CYCLE" default:"0" description:"Maximum candidates processed per cycle (0 = max per hour)"`
	MinQAScore             float64 `long:"min-qa-score" env:"BOT_MIN_QA_SCORE" default:"0.7" description:"Minimum QA score for accepting a rewrite"`
	AutoPublish            bool    `long:"auto-publish" env:"BOT_AUTO_PUBLISH" description:"Publish accepted drafts without review"`
	SimHashThreshold       int     `long:"simhash-threshold" env:"BOT_SIMHASH_THRESHOLD" default:"3" description:"Maximum hamming distance treated as near-duplicate"`
	NoCrossSourceDedup     bool    `long:"no-cross-source-dedup" env:"BOT_NO_CROSS_SOURCE_DEDUP" description:"Only compare fingerprints within the same feed"`
	NoPaywallFilter        bool    `long:"no-paywall-filter" env:"BOT_NO_PAYWALL_FILTER" description:"Disable the paywall heuristic filter"`
	MinWordCount           int     `long:"min-word-count" env:"BOT_MIN_WORD_COUNT" default:"80" description:"Minimum body word count before any AI call"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"NewsBot/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Istanbul)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load reads .env (if present), environment variables and command-line flags.
// It returns nil, nil when help was requested.
func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("Warning: failed to load .env file: %v\n", err)
	}

	cfg, err := LoadArgs(os.Args[1:])
	if err != nil || cfg == nil {
		return cfg, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:           raw.DBPath,
		Port:             raw.Port,
		BaseUrl:          raw.BaseUrl,
		APIAccessKey:     raw.APIAccessKey,
		BotDisabled:      raw.BotDisabled,
		FeedsFile:        raw.FeedsFile,
		RedisAddr:        raw.RedisAddr,
		RedisPassword:    raw.RedisPassword,
		RedisDB:          raw.RedisDB,
		DedupTTL:         raw.DedupTTL,
		AIEndpoint:       raw.AIEndpoint,
		AIAPIKey:         raw.AIAPIKey,
		AIModel:          raw.AIModel,
		AITimeout:        raw.AITimeout,
		FetchTimeout:     raw.FetchTimeout,
		FetchConcurrency: raw.FetchConcurrency,
		Languages:        splitLanguages(raw.Languages),
		DefaultLanguage:  strings.ToLower(strings.TrimSpace(raw.DefaultLanguage)),
		ArticleAuthor:    raw.ArticleAuthor,
		Defaults: BotDefaults{
			HighPriorityInterval:   raw.HighPriorityInterval,
			MediumPriorityInterval: raw.MediumPriorityInterval,
			LowPriorityInterval:    raw.LowPriorityInterval,
			DailyArticleTarget:     raw.DailyArticleTarget,
			MaxArticlesPerHour:     raw.MaxArticlesPerHour,
			MaxItemsPerCycle:       raw.MaxItemsPerCycle,
			MinQAScore:             raw.MinQAScore,
			AutoPublish:            raw.AutoPublish,
			SimHashThreshold:       raw.SimHashThreshold,
			CrossSourceDedup:       !raw.NoCrossSourceDedup,
			EnablePaywallFilter:    !raw.NoPaywallFilter,
			MinWordCount:           raw.MinWordCount,
		},
		UserAgent: raw.UserAgent,
		Timezone:  raw.Timezone,
		Debug:     raw.Debug,
		Version:   GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	if len(cfg.Languages) == 0 {
		return fmt.Errorf("at least one language is required")
	}

	found := false
	for _, lang := range cfg.Languages {
		if lang == cfg.DefaultLanguage {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default language %q is not in languages %v", cfg.DefaultLanguage, cfg.Languages)
	}

	if cfg.Defaults.MinQAScore < 0 || cfg.Defaults.MinQAScore > 1 {
		return fmt.Errorf("min QA score must be within [0,1], got %v", cfg.Defaults.MinQAScore)
	}

	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 1
	}

	return nil
}

func splitLanguages(value string) []string {
	var langs []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(value, ",") {
		lang := strings.ToLower(strings.TrimSpace(part))
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		langs = append(langs, lang)
	}
	return langs
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
