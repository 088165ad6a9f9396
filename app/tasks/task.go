package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeRunCycle   TaskType = "run_cycle"
	TaskTypePruneIndex TaskType = "prune_index"
)

const (
	DefaultMaxRetries = 3
	maxRetryDelay     = 30 * time.Second
)

// TaskInterface is a unit of scheduled work. Base exposes the bookkeeping
// the scheduler keeps for every task.
type TaskInterface interface {
	Execute(ctx context.Context) error
	Base() *Task
}

type Task struct {
	ID         string
	Type       TaskType
	Target     string
	Retries    int
	MaxRetries int
	StartedAt  time.Time
}

func NewTask(taskType TaskType, target string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Target:     target,
		MaxRetries: DefaultMaxRetries,
	}
}

func (t *Task) Base() *Task {
	return t
}

func (t *Task) begin() {
	t.StartedAt = time.Now()
}

func (t *Task) elapsed() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	return time.Since(t.StartedAt)
}

// nextRetry books another attempt and returns how long to wait before it:
// 1s doubling per retry, capped at 30s. It reports false once the retries
// are used up.
func (t *Task) nextRetry() (time.Duration, bool) {
	if t.Retries >= t.MaxRetries {
		return 0, false
	}
	t.Retries++
	return min(time.Second<<(t.Retries-1), maxRetryDelay), true
}

func (t *Task) logAttrs() []any {
	return []any{"type", string(t.Type), "target", t.Target, "id", t.ID}
}
