package database

import (
	"context"
	"time"
)

type FeedStore interface {
	ListActiveFeeds(ctx context.Context, priority Priority) ([]FeedSource, error)
	ListFeeds(ctx context.Context, priority Priority, status FeedStatus) ([]FeedSource, error)
	GetFeedByURL(ctx context.Context, url string) (*FeedSource, error)
	InsertFeed(ctx context.Context, feed *FeedSource) (bool, error)
	SetFeedStatus(ctx context.Context, id string, status FeedStatus) error

	RecordFetchSuccess(ctx context.Context, id string, fetched int) error
	RecordFetchFailure(ctx context.Context, id string, message string) (FeedStatus, error)
	IncrementPublished(ctx context.Context, id string, count int) error

	GetFeedCount(ctx context.Context) (int, error)
	GetFeedStats(ctx context.Context) (FeedStats, error)
}

type ArticleStore interface {
	CreateArticle(ctx context.Context, in NewArticle) (*CreatedArticle, error)
	CountPublishedSince(ctx context.Context, since time.Time) (int, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
	ExistingSourceFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error)
	ListPublishedTranslations(ctx context.Context, lang string, limit int) ([]PublishedTranslation, error)

	ListTranslations(ctx context.Context) ([]Translation, error)
	RewriteTranslationSlug(ctx context.Context, id, lang, slugBase string) (string, bool, error)
}

type ApprovalStore interface {
	ListApprovals(ctx context.Context, status ApprovalStatus, limit int) ([]ApprovalItem, error)
	ApproveTranslation(ctx context.Context, translationID, reviewerID, notes string) (*ApprovalItem, error)
	RejectTranslation(ctx context.Context, translationID, reviewerID, notes string) (*ApprovalItem, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (*Settings, error)
	EnsureSettings(ctx context.Context, defaults Settings) (bool, error)
	UpdateSettings(ctx context.Context, settings Settings) error
}

type RunLogStore interface {
	CreateRunLog(ctx context.Context, priority Priority, startedAt time.Time) (*RunLog, error)
	CompleteRunLog(ctx context.Context, run *RunLog) error
	ListRecentRuns(ctx context.Context, priority Priority, limit int) ([]RunLog, error)
	TotalsSince(ctx context.Context, since time.Time) (RunTotals, error)
}
