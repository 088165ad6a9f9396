package api

import (
	"context"

	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/dedup"
	"github.com/lysyi3m/news-bot/app/feed"
	"github.com/lysyi3m/news-bot/app/pipeline"
	"github.com/lysyi3m/news-bot/app/publisher"
	"github.com/lysyi3m/news-bot/app/seed"
	"github.com/lysyi3m/news-bot/app/tasks"
)

type GeneratorInterface interface {
	Run(lang string, items []database.PublishedTranslation) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type CycleRunner interface {
	RunCycle(ctx context.Context, priority database.Priority) (*pipeline.Result, error)
	Running(priority database.Priority) bool
}

var _ CycleRunner = (*pipeline.Pipeline)(nil)

type SeederInterface interface {
	Seed(ctx context.Context) (*seed.Result, error)
	Status(ctx context.Context) (*seed.Status, error)
}

var _ SeederInterface = (*seed.Seeder)(nil)

type IndexInterface interface {
	Len(ctx context.Context) (int, error)
}

var _ IndexInterface = (dedup.Index)(nil)

type BackfillInterface interface {
	Run(ctx context.Context) (*publisher.BackfillResult, error)
}

var _ BackfillInterface = (*publisher.SlugBackfill)(nil)

// Services groups the collaborators of the HTTP handlers. Scheduler is nil
// when the bot is disabled at process start.
type Services struct {
	Runner    CycleRunner
	Seeder    SeederInterface
	Backfill  BackfillInterface
	Generator GeneratorInterface
	Scheduler tasks.TaskSchedulerInterface
	Index     IndexInterface

	Feeds     database.FeedStore
	Articles  database.ArticleStore
	Approvals database.ApprovalStore
	Settings  database.SettingsStore
	Runs      database.RunLogStore
}

type Handler struct {
	Services
	languages   []string
	botDisabled bool
	version     string
}

type triggerRequest struct {
	Priority string `json:"priority" binding:"required"`
}

type reviewRequest struct {
	ReviewerID string `json:"reviewerId"`
	Notes      string `json:"notes"`
}

type dailyStats struct {
	database.RunTotals
	ArticlesCreated    int `json:"articlesCreated"`
	ArticlesPublished  int `json:"articlesPublished"`
	DailyArticleTarget int `json:"dailyArticleTarget"`
}
