package writer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/news-bot/app/ai"
	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/scraper"
)

var ErrMalformedResponse = ai.ErrMalformedResponse

const (
	seoTitleLength        = 60
	metaDescriptionLength = 160
)

// AI is the rewrite/translate backend. Both calls are billed, rate limited and
// may fail at any time.
type AI interface {
	Rewrite(ctx context.Context, req ai.RewriteRequest) (*ai.Rewrite, error)
	Translate(ctx context.Context, req ai.TranslateRequest) (map[string]ai.Localized, error)
}

type Status string

const (
	StatusAccepted          Status = "accepted"
	StatusPreFiltered       Status = "pre_filtered"
	StatusRewriteFailed     Status = "rewrite_failed"
	StatusQARejected        Status = "qa_rejected"
	StatusTranslationFailed Status = "translation_failed"
)

// Draft is a rewritten item with complete coverage of every configured language.
type Draft struct {
	Item         scraper.Item
	SourceLang   string
	Tags         []string
	QAScore      float64
	Translations map[string]ai.Localized
}

type Outcome struct {
	URL     string
	Status  Status
	QAScore float64
	Err     error
}

type Stats struct {
	Processed         int      `json:"processed"`
	Accepted          int      `json:"accepted"`
	PreFiltered       int      `json:"preFiltered"`
	RewriteFailed     int      `json:"rewriteFailed"`
	QARejected        int      `json:"qaRejected"`
	TranslationFailed int      `json:"translationFailed"`
	Interrupted       int      `json:"interrupted"`
	Errors            []string `json:"errors"`
}

type Result struct {
	Drafts   []Draft
	Outcomes []Outcome
	Stats    Stats
}

type Options struct {
	Languages       []string
	DefaultLanguage string
	// Timeout bounds every single AI call.
	Timeout time.Duration
}

type Writer struct {
	ai   AI
	opts Options
}

func New(client AI, opts Options) *Writer {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"tr", "en", "nl"}
	}
	opts.DefaultLanguage = cmp.Or(opts.DefaultLanguage, opts.Languages[0])
	return &Writer{ai: client, opts: opts}
}

// Run turns scraped items into drafts one item at a time. An item failure never
// stops the batch. Cancelling ctx stops before the next item; the item in
// progress is finished.
func (w *Writer) Run(ctx context.Context, items []scraper.Item, settings database.Settings) *Result {
	result := &Result{Stats: Stats{Errors: []string{}}}

	for i, item := range items {
		if ctx.Err() != nil {
			result.Stats.Interrupted = len(items) - i
			result.Stats.Errors = append(result.Stats.Errors,
				fmt.Sprintf("writer interrupted: %d items not processed", len(items)-i))
			break
		}

		draft, outcome := w.process(context.WithoutCancel(ctx), item, settings)
		result.Outcomes = append(result.Outcomes, outcome)
		result.Stats.Processed++

		switch outcome.Status {
		case StatusAccepted:
			result.Stats.Accepted++
			result.Drafts = append(result.Drafts, *draft)
		case StatusPreFiltered:
			result.Stats.PreFiltered++
		case StatusRewriteFailed:
			result.Stats.RewriteFailed++
		case StatusQARejected:
			result.Stats.QARejected++
		case StatusTranslationFailed:
			result.Stats.TranslationFailed++
		}

		if outcome.Err != nil {
			result.Stats.Errors = append(result.Stats.Errors, fmt.Sprintf("%s: %v", item.URL, outcome.Err))
		}
	}

	return result
}

func (w *Writer) process(ctx context.Context, item scraper.Item, settings database.Settings) (*Draft, Outcome) {
	outcome := Outcome{URL: item.URL}
	lang := cmp.Or(item.Language, w.opts.DefaultLanguage)

	if reason := w.preFilter(item, lang, settings); reason != "" {
		slog.Debug("Item pre-filtered", "url", item.URL, "reason", reason)
		outcome.Status = StatusPreFiltered
		return nil, outcome
	}

	rewrite, err := w.rewrite(ctx, item, lang)
	if err != nil {
		slog.Warn("Rewrite failed", "url", item.URL, "error", err)
		outcome.Status = StatusRewriteFailed
		outcome.Err = fmt.Errorf("rewrite: %w", err)
		return nil, outcome
	}
	outcome.QAScore = rewrite.QAScore

	if rewrite.QAScore < settings.MinQAScore {
		slog.Debug("Item rejected by QA gate", "url", item.URL, "score", rewrite.QAScore, "min", settings.MinQAScore)
		outcome.Status = StatusQARejected
		return nil, outcome
	}

	translations, err := w.translate(ctx, rewrite, lang)
	if err != nil {
		slog.Warn("Translation failed", "url", item.URL, "error", err)
		outcome.Status = StatusTranslationFailed
		outcome.Err = fmt.Errorf("translate: %w", err)
		return nil, outcome
	}

	outcome.Status = StatusAccepted
	return &Draft{
		Item:         item,
		SourceLang:   lang,
		Tags:         draftTags(rewrite.Tags, item.Categories),
		QAScore:      rewrite.QAScore,
		Translations: translations,
	}, outcome
}

// draftTags falls back to the feed's own categories when the rewrite has no tags.
func draftTags(tags, categories []string) []string {
	if len(tags) > 0 {
		return tags
	}
	var out []string
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func (w *Writer) preFilter(item scraper.Item, lang string, settings database.Settings) string {
	if item.WordCount < settings.MinWordCount {
		return fmt.Sprintf("body has %d words, minimum is %d", item.WordCount, settings.MinWordCount)
	}
	if !slices.Contains(w.opts.Languages, lang) {
		return fmt.Sprintf("unsupported language %q", lang)
	}
	return ""
}

func (w *Writer) rewrite(ctx context.Context, item scraper.Item, lang string) (*ai.Rewrite, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	rewrite, err := w.ai.Rewrite(ctx, ai.RewriteRequest{
		Title:    item.Title,
		Body:     item.Body,
		Language: lang,
		Category: item.Category,
	})
	if err != nil {
		return nil, err
	}
	if math.IsNaN(rewrite.QAScore) || rewrite.QAScore < 0 || rewrite.QAScore > 1 {
		return nil, fmt.Errorf("%w: qa score %v outside [0,1]", ErrMalformedResponse, rewrite.QAScore)
	}
	return rewrite, nil
}

// translate produces one localized version per configured language. The source
// language comes from the rewrite itself; every other language is requested
// concurrently with its own timeout. Any missing language fails the item.
func (w *Writer) translate(ctx context.Context, rewrite *ai.Rewrite, sourceLang string) (map[string]ai.Localized, error) {
	out := make(map[string]ai.Localized, len(w.opts.Languages))
	out[sourceLang] = ai.Localized{
		Title:           rewrite.Title,
		Lead:            rewrite.Summary,
		Body:            rewrite.Body,
		SEOTitle:        truncate(rewrite.Title, seoTitleLength),
		MetaDescription: truncate(cmp.Or(rewrite.Summary, rewrite.Body), metaDescriptionLength),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, lang := range w.opts.Languages {
		if lang == sourceLang {
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, w.opts.Timeout)
			defer cancel()

			res, err := w.ai.Translate(callCtx, ai.TranslateRequest{
				Title:      rewrite.Title,
				Summary:    rewrite.Summary,
				Body:       rewrite.Body,
				SourceLang: sourceLang,
				Languages:  []string{lang},
			})
			if err != nil {
				return fmt.Errorf("%s: %w", lang, err)
			}

			localized, ok := res[lang]
			if !ok || strings.TrimSpace(localized.Title) == "" || strings.TrimSpace(localized.Body) == "" {
				return fmt.Errorf("%s: %w: translation missing", lang, ErrMalformedResponse)
			}
			localized.SEOTitle = truncate(cmp.Or(localized.SEOTitle, localized.Title), seoTitleLength)
			localized.MetaDescription = truncate(cmp.Or(localized.MetaDescription, localized.Lead, localized.Body), metaDescriptionLength)

			mu.Lock()
			out[lang] = localized
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(out) != len(w.opts.Languages) {
		return nil, errors.New("incomplete language coverage")
	}
	return out, nil
}

// truncate cuts s to at most n runes, preferring a word boundary.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := string(runes[:n])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
