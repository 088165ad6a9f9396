package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/pipeline"
)

type RunCycleTask struct {
	Task
	Priority database.Priority
	runner   CycleRunner
	result   *pipeline.Result
}

// NewRunCycleTask is never retried: the next tick of the tier is the retry.
func NewRunCycleTask(priority database.Priority, runner CycleRunner) *RunCycleTask {
	task := NewTask(TaskTypeRunCycle, string(priority))
	task.MaxRetries = 0

	return &RunCycleTask{
		Task:     task,
		Priority: priority,
		runner:   runner,
	}
}

func (t *RunCycleTask) Execute(ctx context.Context) error {
	result, err := t.runner.RunCycle(ctx, t.Priority)
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		slog.Debug("Cycle already running, skipping tick", "priority", t.Priority)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run %s cycle: %w", t.Priority, err)
	}

	t.result = result
	if result.Skipped {
		slog.Debug("Cycle skipped", "priority", t.Priority, "reason", result.Reason)
	}
	return nil
}

// Systemic reports whether the last execution hit a storage-level failure.
func (t *RunCycleTask) Systemic() bool {
	return t.result != nil && t.result.Systemic
}
