package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/pipeline"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  map[database.Priority]int
	err    error
	result *pipeline.Result
	ran    chan database.Priority
}

func (f *fakeRunner) RunCycle(ctx context.Context, priority database.Priority) (*pipeline.Result, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[database.Priority]int)
	}
	f.calls[priority]++
	f.mu.Unlock()

	if f.ran != nil {
		select {
		case f.ran <- priority:
		default:
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &pipeline.Result{Priority: priority}, nil
}

type fakeSettings struct {
	settings *database.Settings
	err      error
}

func (f fakeSettings) GetSettings(ctx context.Context) (*database.Settings, error) {
	return f.settings, f.err
}

type fakePruner struct {
	calls int
	err   error
}

func (f *fakePruner) Prune(ctx context.Context) (int, error) {
	f.calls++
	return 0, f.err
}

func TestTierSchedule_InitialDelayThenInterval(t *testing.T) {
	schedule := newTierSchedule(10*time.Minute, 45*time.Second)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if next := schedule.Next(now); next != now.Add(45*time.Second) {
		t.Errorf("Expected initial delay, got %v", next.Sub(now))
	}
	if next := schedule.Next(now); next != now.Add(10*time.Minute) {
		t.Errorf("Expected interval, got %v", next.Sub(now))
	}

	schedule.SetInterval(5 * time.Minute)
	if next := schedule.Next(now); next != now.Add(5*time.Minute) {
		t.Errorf("Expected updated interval, got %v", next.Sub(now))
	}
}

func TestTierSchedule_Backoff(t *testing.T) {
	schedule := newTierSchedule(time.Minute, 0)
	now := time.Now()
	schedule.Next(now)

	expected := []time.Duration{2, 4, 8, 8}
	for i, multiplier := range expected {
		schedule.Record(true)
		if next := schedule.Next(now); next.Sub(now) != multiplier*time.Minute {
			t.Errorf("Failure %d: expected %v, got %v", i+1, multiplier*time.Minute, next.Sub(now))
		}
	}

	schedule.Record(false)
	if next := schedule.Next(now); next.Sub(now) != time.Minute {
		t.Errorf("Expected backoff reset, got %v", next.Sub(now))
	}
}

func TestRunCycleTask_AlreadyRunningIsNotAFailure(t *testing.T) {
	task := NewRunCycleTask(database.PriorityHigh, &fakeRunner{err: pipeline.ErrAlreadyRunning})
	if err := task.Execute(context.Background()); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if _, ok := task.nextRetry(); ok {
		t.Error("Expected run cycle tasks not to retry")
	}
}

func TestRunCycleTask_Systemic(t *testing.T) {
	task := NewRunCycleTask(database.PriorityLow, &fakeRunner{result: &pipeline.Result{Systemic: true}})
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !task.Systemic() {
		t.Error("Expected systemic result to be reported")
	}

	failing := NewRunCycleTask(database.PriorityLow, &fakeRunner{err: errors.New("run log unwritable")})
	if err := failing.Execute(context.Background()); err == nil {
		t.Error("Expected error to propagate")
	}
}

func TestTask_RetryDelays(t *testing.T) {
	task := NewTask(TaskTypePruneIndex, "dedup")
	task.MaxRetries = 7

	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, want := range expected {
		delay, ok := task.nextRetry()
		if !ok || delay != want {
			t.Errorf("Retry %d: expected %v, got %v (ok=%v)", i+1, want, delay, ok)
		}
	}
	if _, ok := task.nextRetry(); ok {
		t.Error("Expected retries to be exhausted")
	}
}

func TestScheduler_FiresEveryTier(t *testing.T) {
	runner := &fakeRunner{ran: make(chan database.Priority, 10)}
	settings := fakeSettings{settings: &database.Settings{
		HighPriorityInterval: 60, MediumPriorityInterval: 120, LowPriorityInterval: 240,
	}}

	scheduler := NewScheduler(runner, &fakePruner{}, settings, SchedulerOptions{Stagger: 20 * time.Millisecond})
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	if got := scheduler.tiers[database.PriorityMedium].Interval(); got != 2*time.Hour {
		t.Errorf("Expected medium interval 2h, got %v", got)
	}

	seen := make(map[database.Priority]bool)
	timeout := time.After(3 * time.Second)
	for len(seen) < 3 {
		select {
		case p := <-runner.ran:
			seen[p] = true
		case <-timeout:
			t.Fatalf("Expected all tiers to fire, got %v", seen)
		}
	}
}

func TestScheduler_ReloadWithoutSettingsKeepsIntervals(t *testing.T) {
	scheduler := NewScheduler(&fakeRunner{}, nil, fakeSettings{}, SchedulerOptions{})
	if err := scheduler.Reload(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := scheduler.tiers[database.PriorityHigh].Interval(); got != time.Hour {
		t.Errorf("Expected default interval, got %v", got)
	}

	failing := NewScheduler(&fakeRunner{}, nil, fakeSettings{err: errors.New("db down")}, SchedulerOptions{})
	if err := failing.Start(context.Background()); err == nil {
		t.Error("Expected start to fail when settings cannot be read")
	}
}

func TestScheduler_RetriesPrune(t *testing.T) {
	pruner := &fakePruner{err: errors.New("redis down")}
	scheduler := NewScheduler(&fakeRunner{}, pruner, fakeSettings{}, SchedulerOptions{})

	task := NewPruneIndexTask(pruner)
	if err := scheduler.executeTask(task); err == nil {
		t.Error("Expected prune error")
	}
	if task.Retries != 1 {
		t.Errorf("Expected retry to be scheduled, got retry count %d", task.Retries)
	}

	scheduler.Stop()
}
