package database

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists the tiers in scheduling order.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func ParsePriority(value string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(value))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("invalid priority %q", value)
	}
}

type FeedStatus string

const (
	FeedStatusActive FeedStatus = "active"
	FeedStatusPaused FeedStatus = "paused"
	FeedStatusError  FeedStatus = "error"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type FeedSource struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	URL                 string     `json:"url"`
	Category            string     `json:"category"`
	Priority            Priority   `json:"priority"`
	Status              FeedStatus `json:"status"`
	Language            string     `json:"language"`
	MaxItemsPerFetch    int        `json:"maxItemsPerFetch"`
	ExtractContent      bool       `json:"extractContent"`
	TotalFetched        int        `json:"totalFetched"`
	TotalPublished      int        `json:"totalPublished"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastFetchedAt       *time.Time `json:"lastFetchedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type FeedStats struct {
	Total      int              `json:"total"`
	Active     int              `json:"active"`
	Paused     int              `json:"paused"`
	Error      int              `json:"error"`
	ByPriority map[Priority]int `json:"byPriority"`
}

type Article struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Translation struct {
	ID              string     `json:"id"`
	ArticleID       string     `json:"articleId"`
	Lang            string     `json:"lang"`
	Slug            string     `json:"slug"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Body            string     `json:"body"`
	Author          string     `json:"author"`
	SEOTitle        string     `json:"seoTitle"`
	MetaDescription string     `json:"metaDescription"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Source is the provenance record of an article; written once.
type Source struct {
	ArticleID         string `json:"articleId"`
	FeedID            string `json:"feedId"`
	OriginalSource    string `json:"originalSource"`
	SourceURL         string `json:"sourceUrl"`
	SourceFingerprint string `json:"sourceFingerprint"`
	Language          string `json:"language"`
	WordCount         int    `json:"wordCount"`
}

type ApprovalItem struct {
	ID            string         `json:"id"`
	TranslationID string         `json:"translationId"`
	ArticleID     string         `json:"articleId"`
	Lang          string         `json:"lang"`
	Title         string         `json:"title"`
	Status        ApprovalStatus `json:"status"`
	ReviewerID    string         `json:"reviewerId,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// NewArticle is the write model handed to CreateArticle. Slug bases are
// already slugified; uniqueness suffixes are resolved inside the transaction.
type NewArticle struct {
	SlugBase     string
	Category     string
	Tags         []string
	ImageURL     string
	Published    bool
	Translations []NewTranslation
	Source       *Source
}

type NewTranslation struct {
	Lang            string
	SlugBase        string
	Title           string
	Summary         string
	Body            string
	Author          string
	SEOTitle        string
	MetaDescription string
}

type CreatedArticle struct {
	Article      Article
	Translations []Translation
	Queued       int
}

// PublishedTranslation joins a published translation with its article.
type PublishedTranslation struct {
	Translation
	Category  string
	Tags      []string
	ImageURL  string
	SourceURL string
}

type Settings struct {
	IsEnabled              bool      `json:"isEnabled"`
	HighPriorityInterval   int       `json:"highPriorityInterval"`
	MediumPriorityInterval int       `json:"mediumPriorityInterval"`
	LowPriorityInterval    int       `json:"lowPriorityInterval"`
	DailyArticleTarget     int       `json:"dailyArticleTarget"`
	MaxArticlesPerHour     int       `json:"maxArticlesPerHour"`
	MaxItemsPerCycle       int       `json:"maxItemsPerCycle"`
	MinQAScore             float64   `json:"minQaScore"`
	AutoPublish            bool      `json:"autoPublish"`
	SimHashThreshold       int       `json:"simHashThreshold"`
	CrossSourceDedup       bool      `json:"crossSourceDedup"`
	EnablePaywallFilter    bool      `json:"enablePaywallFilter"`
	MinWordCount           int       `json:"minWordCount"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// Interval returns the poll interval of a tier; non-positive values fall back to one hour.
func (s Settings) Interval(p Priority) time.Duration {
	var minutes int
	switch p {
	case PriorityHigh:
		minutes = s.HighPriorityInterval
	case PriorityMedium:
		minutes = s.MediumPriorityInterval
	case PriorityLow:
		minutes = s.LowPriorityInterval
	}
	if minutes <= 0 {
		return time.Hour
	}
	return time.Duration(minutes) * time.Minute
}

// CycleCap is the number of candidates a single cycle may hand to the writer.
func (s Settings) CycleCap() int {
	if s.MaxItemsPerCycle > 0 {
		return s.MaxItemsPerCycle
	}
	return s.MaxArticlesPerHour
}

func (s Settings) Validate() error {
	if s.MinQAScore < 0 || s.MinQAScore > 1 {
		return fmt.Errorf("minQaScore must be within [0,1]")
	}
	if s.HighPriorityInterval <= 0 || s.MediumPriorityInterval <= 0 || s.LowPriorityInterval <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	if s.MaxArticlesPerHour < 0 || s.MaxItemsPerCycle < 0 || s.DailyArticleTarget < 0 {
		return fmt.Errorf("caps must be non-negative")
	}
	if s.SimHashThreshold < 0 || s.SimHashThreshold > 64 {
		return fmt.Errorf("simHashThreshold must be within [0,64]")
	}
	return nil
}

type RunLog struct {
	ID             string     `json:"id"`
	Priority       Priority   `json:"priority"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	FeedsChecked   int        `json:"feedsChecked"`
	ItemsFetched   int        `json:"itemsFetched"`
	ItemsProcessed int        `json:"itemsProcessed"`
	ItemsPublished int        `json:"itemsPublished"`
	ItemsQueued    int        `json:"itemsQueued"`
	ItemsSkipped   int        `json:"itemsSkipped"`
	Errors         []string   `json:"errors"`
}

type RunTotals struct {
	Runs           int `json:"runs"`
	ItemsFetched   int `json:"itemsFetched"`
	ItemsProcessed int `json:"itemsProcessed"`
	ItemsPublished int `json:"itemsPublished"`
	ItemsQueued    int `json:"itemsQueued"`
	ItemsSkipped   int `json:"itemsSkipped"`
	Errors         int `json:"errors"`
}
