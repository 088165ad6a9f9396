package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/slug"
)

type BackfillStore interface {
	ListTranslations(ctx context.Context) ([]database.Translation, error)
	RewriteTranslationSlug(ctx context.Context, id, lang, slugBase string) (string, bool, error)
}

type BackfillResult struct {
	Checked int      `json:"checked"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// SlugBackfill recomputes every translation slug from its own title with the
// same rules new articles use. Oldest translations are handled first so they
// keep the unsuffixed slug.
type SlugBackfill struct {
	store BackfillStore
}

func NewSlugBackfill(store BackfillStore) *SlugBackfill {
	return &SlugBackfill{store: store}
}

func (b *SlugBackfill) Run(ctx context.Context) (*BackfillResult, error) {
	translations, err := b.store.ListTranslations(ctx)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{Errors: []string{}}
	for _, tr := range translations {
		result.Checked++

		next, changed, err := b.store.RewriteTranslationSlug(ctx, tr.ID, tr.Lang, slug.Make(tr.Title))
		if err != nil {
			if database.IsSystemic(err) {
				return result, fmt.Errorf("failed to backfill slugs: %w", err)
			}
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", tr.ID, err))
			continue
		}
		if changed {
			result.Updated++
			slog.Debug("Translation slug rewritten", "id", tr.ID, "lang", tr.Lang, "from", tr.Slug, "to", next)
		}
	}

	slog.Info("Slug backfill completed", "checked", result.Checked, "updated", result.Updated, "failed", result.Failed)
	return result, nil
}
