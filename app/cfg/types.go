package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	Port         string
	BaseUrl      string
	APIAccessKey string
	BotDisabled  bool
	FeedsFile    string

	// Shared dedup store
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DedupTTL      time.Duration

	// AI backend
	AIEndpoint string
	AIAPIKey   string
	AIModel    string
	AITimeout  time.Duration

	// Fetching
	FetchTimeout     time.Duration
	FetchConcurrency int

	// Content
	Languages       []string
	DefaultLanguage string
	ArticleAuthor   string

	// Static bot defaults, overridden by the persisted settings row
	Defaults BotDefaults

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

// BotDefaults seed the settings row when none exists yet.
type BotDefaults struct {
	HighPriorityInterval   int
	MediumPriorityInterval int
	LowPriorityInterval    int
	DailyArticleTarget     int
	MaxArticlesPerHour     int
	MaxItemsPerCycle       int
	MinQAScore             float64
	AutoPublish            bool
	SimHashThreshold       int
	CrossSourceDedup       bool
	EnablePaywallFilter    bool
	MinWordCount           int
}
