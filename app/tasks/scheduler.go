package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/news-bot/app/database"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	// MaxBackoff caps how far a failing tier stretches its interval.
	MaxBackoff = 8

	defaultStagger     = 30 * time.Second
	defaultTaskTimeout = 15 * time.Minute
	pruneSpec          = "@every 1h"
)

type SchedulerOptions struct {
	Location *time.Location
	// Stagger spaces the first tick of each tier; a random jitter of up to one
	// stagger is added on top.
	Stagger     time.Duration
	TaskTimeout time.Duration
}

type Scheduler struct {
	runner   CycleRunner
	index    Pruner
	settings SettingsStore
	cron     *cron.Cron
	tiers    map[database.Priority]*tierSchedule
	timeout  time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewScheduler(runner CycleRunner, index Pruner, settings SettingsStore, opts SchedulerOptions) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Stagger <= 0 {
		opts.Stagger = defaultStagger
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = defaultTaskTimeout
	}

	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())

	tiers := make(map[database.Priority]*tierSchedule, len(database.Priorities))
	for i, p := range database.Priorities {
		tiers[p] = newTierSchedule(time.Hour, time.Duration(i)*opts.Stagger+rand.N(opts.Stagger))
	}

	return &Scheduler{
		runner:   runner,
		index:    index,
		settings: settings,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		tiers:   tiers,
		timeout: opts.TaskTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers one timer per tier plus the periodic index prune and starts
// the cron loop. Tier intervals come from the persisted settings.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}

	for _, p := range database.Priorities {
		s.cron.Schedule(s.tiers[p], s.tierJob(p))
	}

	if s.index != nil {
		if _, err := s.cron.AddFunc(pruneSpec, func() {
			s.executeTask(NewPruneIndexTask(s.index))
		}); err != nil {
			return fmt.Errorf("failed to schedule index pruning: %w", err)
		}
	}

	s.cron.Start()
	slog.Info("Scheduler started",
		"high", s.tiers[database.PriorityHigh].Interval(),
		"medium", s.tiers[database.PriorityMedium].Interval(),
		"low", s.tiers[database.PriorityLow].Interval())
	return nil
}

// Stop cancels running tasks and waits for them. A cycle in flight finishes
// the item it is working on.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

// Reload re-reads tier intervals from the settings row. Missing settings keep
// the current intervals.
func (s *Scheduler) Reload(ctx context.Context) error {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if settings == nil {
		slog.Warn("Bot settings not seeded, using default intervals")
		return nil
	}

	for p, tier := range s.tiers {
		tier.SetInterval(settings.Interval(p))
	}
	return nil
}

func (s *Scheduler) tierJob(priority database.Priority) cron.Job {
	tier := s.tiers[priority]
	return cron.FuncJob(func() {
		task := NewRunCycleTask(priority, s.runner)
		err := s.executeTask(task)
		tier.Record(err != nil || task.Systemic())
	})
}

func (s *Scheduler) executeTask(task TaskInterface) error {
	s.wg.Add(1)
	defer s.wg.Done()

	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	base := task.Base()
	base.begin()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		slog.Debug("Task completed", append(base.logAttrs(), "duration", base.elapsed())...)
		return nil
	}

	slog.Error("Task execution failed", append(base.logAttrs(), "retry_count", base.Retries, "error", err)...)

	retryDelay, ok := base.nextRetry()
	if !ok {
		if base.MaxRetries > 0 {
			slog.Error("Task failed after maximum retries", append(base.logAttrs(), "max_retries", base.MaxRetries, "last_error", err)...)
		}
		return err
	}

	slog.Warn("Task retry scheduled", append(base.logAttrs(), "retry_count", base.Retries, "delay", retryDelay.String())...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", base.logAttrs()...)
		case <-time.After(retryDelay):
			s.executeTask(task)
		}
	}()
	return err
}

// tierSchedule is a cron.Schedule firing every interval after a one-off
// initial delay. Failed cycles double the effective interval up to
// MaxBackoff times. cron computes the next tick when a job starts, so a
// changed backoff takes effect from the tick after the next one.
type tierSchedule struct {
	mu           sync.Mutex
	interval     time.Duration
	initialDelay time.Duration
	started      bool
	backoff      int
}

func newTierSchedule(interval, initialDelay time.Duration) *tierSchedule {
	return &tierSchedule{interval: interval, initialDelay: initialDelay, backoff: 1}
}

func (t *tierSchedule) Next(now time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		t.started = true
		return now.Add(t.initialDelay)
	}
	return now.Add(t.interval * time.Duration(t.backoff))
}

func (t *tierSchedule) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *tierSchedule) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
}

func (t *tierSchedule) Record(failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !failed {
		t.backoff = 1
		return
	}
	t.backoff = min(t.backoff*2, MaxBackoff)
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
