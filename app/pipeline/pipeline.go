package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/publisher"
	"github.com/lysyi3m/news-bot/app/scraper"
	"github.com/lysyi3m/news-bot/app/writer"
)

var ErrAlreadyRunning = errors.New("cycle already running")

type SettingsStore interface {
	GetSettings(ctx context.Context) (*database.Settings, error)
}

type RunLogStore interface {
	CreateRunLog(ctx context.Context, priority database.Priority, startedAt time.Time) (*database.RunLog, error)
	CompleteRunLog(ctx context.Context, run *database.RunLog) error
}

type Scraper interface {
	Run(ctx context.Context, priority database.Priority, settings database.Settings) (*scraper.Result, error)
}

type Writer interface {
	Run(ctx context.Context, items []scraper.Item, settings database.Settings) *writer.Result
}

type Publisher interface {
	Run(ctx context.Context, drafts []writer.Draft, settings database.Settings) (*publisher.Result, error)
}

type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Stats is the aggregate of one cycle across all stages.
type Stats struct {
	FeedsChecked              int      `json:"feedsChecked"`
	ItemsFetched              int      `json:"itemsFetched"`
	ItemsNew                  int      `json:"itemsNew"`
	ItemsDuplicate            int      `json:"itemsDuplicate"`
	ItemsCrossSourceDuplicate int      `json:"itemsCrossSourceDuplicate"`
	ItemsAlreadyIngested      int      `json:"itemsAlreadyIngested"`
	ItemsFiltered             int      `json:"itemsFiltered"`
	ItemsCapped               int      `json:"itemsCapped"`
	ItemsProcessed            int      `json:"itemsProcessed"`
	PreFiltered               int      `json:"preFiltered"`
	RewriteFailed             int      `json:"rewriteFailed"`
	QARejected                int      `json:"qaRejected"`
	TranslationFailed         int      `json:"translationFailed"`
	ItemsPublished            int      `json:"itemsPublished"`
	ItemsQueued               int      `json:"itemsQueued"`
	PublishFailed             int      `json:"publishFailed"`
	ItemsSkipped              int      `json:"itemsSkipped"`
	Errors                    []string `json:"errors"`
}

type Result struct {
	Priority database.Priority `json:"priority"`
	RunLogID string            `json:"runLogId,omitempty"`
	// Skipped is set when the cycle was a no-op (bot disabled or not seeded).
	Skipped  bool   `json:"skipped"`
	Reason   string `json:"reason,omitempty"`
	Systemic bool   `json:"systemic"`
	Stats    Stats  `json:"stats"`
}

type Options struct {
	// Disabled is the process-level kill switch.
	Disabled bool
}

type tier struct {
	mu      sync.Mutex
	running atomic.Bool
}

type Pipeline struct {
	settings  SettingsStore
	runs      RunLogStore
	scraper   Scraper
	writer    Writer
	publisher Publisher
	index     Pruner
	opts      Options
	tiers     map[database.Priority]*tier
	now       func() time.Time
}

func New(settings SettingsStore, runs RunLogStore, scraper Scraper, writer Writer, publisher Publisher, index Pruner, opts Options) *Pipeline {
	tiers := make(map[database.Priority]*tier, len(database.Priorities))
	for _, p := range database.Priorities {
		tiers[p] = &tier{}
	}
	return &Pipeline{
		settings:  settings,
		runs:      runs,
		scraper:   scraper,
		writer:    writer,
		publisher: publisher,
		index:     index,
		opts:      opts,
		tiers:     tiers,
		now:       time.Now,
	}
}

// Running reports whether a cycle of the tier is in flight.
func (p *Pipeline) Running(priority database.Priority) bool {
	t, ok := p.tiers[priority]
	return ok && t.running.Load()
}

// RunCycle executes one scrape, write and publish cycle for a tier. A second
// call for a tier that is already running returns ErrAlreadyRunning without
// doing any work. Item and feed failures end up in the result; only failures
// to read settings or to write the run log are returned as errors.
func (p *Pipeline) RunCycle(ctx context.Context, priority database.Priority) (*Result, error) {
	t, ok := p.tiers[priority]
	if !ok {
		return nil, fmt.Errorf("unknown priority %q", priority)
	}
	if !t.mu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer t.mu.Unlock()
	t.running.Store(true)
	defer t.running.Store(false)

	if p.opts.Disabled {
		return &Result{Priority: priority, Skipped: true, Reason: "bot disabled by configuration"}, nil
	}

	settings, err := p.settings.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if settings == nil {
		return &Result{Priority: priority, Skipped: true, Reason: "bot settings not seeded"}, nil
	}
	if !settings.IsEnabled {
		return &Result{Priority: priority, Skipped: true, Reason: "bot disabled"}, nil
	}

	started := p.now()
	run, err := p.runs.CreateRunLog(ctx, priority, started)
	if err != nil {
		return nil, err
	}

	result := &Result{Priority: priority, RunLogID: run.ID, Stats: Stats{Errors: []string{}}}
	p.execute(ctx, priority, *settings, result)

	run.FeedsChecked = result.Stats.FeedsChecked
	run.ItemsFetched = result.Stats.ItemsFetched
	run.ItemsProcessed = result.Stats.ItemsProcessed
	run.ItemsPublished = result.Stats.ItemsPublished
	run.ItemsQueued = result.Stats.ItemsQueued
	run.ItemsSkipped = result.Stats.ItemsSkipped
	run.Errors = result.Stats.Errors

	if err := p.runs.CompleteRunLog(context.WithoutCancel(ctx), run); err != nil {
		return result, fmt.Errorf("failed to finalize run log: %w", err)
	}

	if p.index != nil {
		if pruned, err := p.index.Prune(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to prune dedup index", "error", err)
		} else if pruned > 0 {
			slog.Debug("Pruned dedup index", "entries", pruned)
		}
	}

	slog.Info("Cycle completed",
		"priority", priority,
		"run_id", run.ID,
		"feeds", result.Stats.FeedsChecked,
		"fetched", result.Stats.ItemsFetched,
		"new", result.Stats.ItemsNew,
		"published", result.Stats.ItemsPublished,
		"queued", result.Stats.ItemsQueued,
		"skipped", result.Stats.ItemsSkipped,
		"errors", len(result.Stats.Errors),
		"duration", time.Since(started))

	return result, nil
}

// execute runs the stages and records every failure, including panics, into
// the result.
func (p *Pipeline) execute(ctx context.Context, priority database.Priority, settings database.Settings, result *Result) {
	stats := &result.Stats
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Cycle panicked", "priority", priority, "panic", r)
			stats.Errors = append(stats.Errors, fmt.Sprintf("panic: %v", r))
			result.Systemic = true
		}
	}()

	scraped, err := p.scraper.Run(ctx, priority, settings)
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		result.Systemic = true
		return
	}

	s := scraped.Stats
	stats.FeedsChecked = s.FeedsChecked
	stats.ItemsFetched = s.ItemsFetched
	stats.ItemsNew = s.ItemsNew
	stats.ItemsDuplicate = s.ItemsDuplicate
	stats.ItemsCrossSourceDuplicate = s.ItemsCrossSourceDuplicate
	stats.ItemsAlreadyIngested = s.ItemsAlreadyIngested
	stats.ItemsFiltered = s.ItemsFiltered
	stats.Errors = append(stats.Errors, s.Errors...)

	items := scraped.Items
	if len(items) == 0 {
		return
	}

	if limit := settings.CycleCap(); limit > 0 && len(items) > limit {
		stats.ItemsCapped = len(items) - limit
		items = items[:limit]
		slog.Debug("Clamped cycle candidates", "priority", priority, "limit", limit, "dropped", stats.ItemsCapped)
	}
	stats.ItemsSkipped += stats.ItemsCapped

	written := p.writer.Run(ctx, items, settings)
	w := written.Stats
	stats.ItemsProcessed = w.Processed
	stats.PreFiltered = w.PreFiltered
	stats.RewriteFailed = w.RewriteFailed
	stats.QARejected = w.QARejected
	stats.TranslationFailed = w.TranslationFailed
	stats.ItemsSkipped += w.PreFiltered + w.RewriteFailed + w.QARejected + w.TranslationFailed + w.Interrupted
	stats.Errors = append(stats.Errors, w.Errors...)

	if len(written.Drafts) == 0 {
		return
	}

	published, err := p.publisher.Run(context.WithoutCancel(ctx), written.Drafts, settings)
	if published != nil {
		ps := published.Stats
		stats.ItemsPublished = ps.Published
		stats.ItemsQueued = ps.Queued
		stats.PublishFailed = ps.Failed
		stats.ItemsSkipped += ps.Failed + ps.Aborted
		stats.Errors = append(stats.Errors, ps.Errors...)
	}
	if err != nil {
		result.Systemic = true
	}
}
