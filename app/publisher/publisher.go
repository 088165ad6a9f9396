package publisher

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/slug"
	"github.com/lysyi3m/news-bot/app/writer"
)

// Store persists an article with its translations, source and approval rows
// atomically and counts recent publications for the hourly cap.
type Store interface {
	CreateArticle(ctx context.Context, in database.NewArticle) (*database.CreatedArticle, error)
	CountPublishedSince(ctx context.Context, since time.Time) (int, error)
}

type FeedCounter interface {
	IncrementPublished(ctx context.Context, id string, count int) error
}

type Status string

const (
	StatusPublished Status = "published"
	StatusQueued    Status = "queued"
	StatusFailed    Status = "failed"
)

type Outcome struct {
	URL       string
	ArticleID string
	Status    Status
	Err       error
}

type Stats struct {
	Published    int      `json:"published"`
	Queued       int      `json:"queued"`
	ApprovalRows int      `json:"approvalRows"`
	Failed       int      `json:"failed"`
	Aborted      int      `json:"aborted"`
	Errors       []string `json:"errors"`
}

type Result struct {
	Articles []*database.CreatedArticle
	Outcomes []Outcome
	Stats    Stats
}

type Options struct {
	Languages       []string
	DefaultLanguage string
	Author          string
}

type Publisher struct {
	store Store
	feeds FeedCounter
	opts  Options
	now   func() time.Time
}

func New(store Store, feeds FeedCounter, opts Options) *Publisher {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"tr", "en", "nl"}
	}
	opts.DefaultLanguage = cmp.Or(opts.DefaultLanguage, opts.Languages[0])
	return &Publisher{store: store, feeds: feeds, opts: opts, now: time.Now}
}

// Run persists the drafts one article per transaction. An item failure is
// recorded and the batch continues; a systemic storage failure stops the
// remaining drafts and is returned together with the partial result.
func (p *Publisher) Run(ctx context.Context, drafts []writer.Draft, settings database.Settings) (*Result, error) {
	result := &Result{Stats: Stats{Errors: []string{}}}
	if len(drafts) == 0 {
		return result, nil
	}

	publishedThisHour := 0
	if settings.AutoPublish {
		count, err := p.store.CountPublishedSince(ctx, p.now().Add(-time.Hour))
		if err != nil {
			result.Stats.Aborted = len(drafts)
			result.Stats.Errors = append(result.Stats.Errors, err.Error())
			return result, fmt.Errorf("failed to read hourly publish count: %w", err)
		}
		publishedThisHour = count
	}

	for i, draft := range drafts {
		publish := settings.AutoPublish &&
			(settings.MaxArticlesPerHour <= 0 || publishedThisHour < settings.MaxArticlesPerHour)

		created, err := p.store.CreateArticle(ctx, p.buildArticle(draft, publish))
		if err != nil {
			result.Outcomes = append(result.Outcomes, Outcome{URL: draft.Item.URL, Status: StatusFailed, Err: err})
			result.Stats.Failed++
			result.Stats.Errors = append(result.Stats.Errors, fmt.Sprintf("%s: %v", draft.Item.URL, err))

			if database.IsSystemic(err) {
				result.Stats.Aborted = len(drafts) - i - 1
				slog.Error("Publisher aborted", "error", err, "remaining", result.Stats.Aborted)
				return result, fmt.Errorf("failed to persist article: %w", err)
			}
			slog.Warn("Failed to persist article", "url", draft.Item.URL, "error", err)
			continue
		}

		result.Articles = append(result.Articles, created)
		outcome := Outcome{URL: draft.Item.URL, ArticleID: created.Article.ID}

		if created.Article.Published {
			publishedThisHour++
			result.Stats.Published++
			outcome.Status = StatusPublished
			if draft.Item.SourceID != "" {
				if err := p.feeds.IncrementPublished(ctx, draft.Item.SourceID, 1); err != nil {
					slog.Warn("Failed to update feed counters", "feed_id", draft.Item.SourceID, "error", err)
				}
			}
		} else {
			result.Stats.Queued++
			result.Stats.ApprovalRows += created.Queued
			outcome.Status = StatusQueued
		}
		result.Outcomes = append(result.Outcomes, outcome)

		slog.Info("Article persisted",
			"article_id", created.Article.ID,
			"slug", created.Article.Slug,
			"status", outcome.Status,
			"translations", len(created.Translations))
	}

	return result, nil
}

// buildArticle derives every translation slug from that language's own title.
// The article slug follows the default language.
func (p *Publisher) buildArticle(draft writer.Draft, publish bool) database.NewArticle {
	in := database.NewArticle{
		Category:  draft.Item.Category,
		Tags:      draft.Tags,
		ImageURL:  draft.Item.ImageURL,
		Published: publish,
	}

	for _, lang := range p.opts.Languages {
		localized, ok := draft.Translations[lang]
		if !ok {
			continue
		}
		in.Translations = append(in.Translations, database.NewTranslation{
			Lang:            lang,
			SlugBase:        slug.Make(localized.Title),
			Title:           localized.Title,
			Summary:         localized.Lead,
			Body:            localized.Body,
			Author:          p.opts.Author,
			SEOTitle:        localized.SEOTitle,
			MetaDescription: localized.MetaDescription,
		})
	}

	articleTitle := draft.Translations[p.opts.DefaultLanguage].Title
	if articleTitle == "" {
		articleTitle = draft.Translations[draft.SourceLang].Title
	}
	in.SlugBase = slug.Make(cmp.Or(articleTitle, draft.Item.Title))

	if draft.Item.URL != "" {
		in.Source = &database.Source{
			FeedID:            draft.Item.SourceID,
			OriginalSource:    draft.Item.SourceName,
			SourceURL:         draft.Item.URL,
			SourceFingerprint: draft.Item.SourceFingerprint,
			Language:          draft.SourceLang,
			WordCount:         draft.Item.WordCount,
		}
	}
	return in
}
