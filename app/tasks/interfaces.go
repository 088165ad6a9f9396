package tasks

import (
	"context"

	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/pipeline"
)

// CycleRunner runs one cycle of a priority tier.
type CycleRunner interface {
	RunCycle(ctx context.Context, priority database.Priority) (*pipeline.Result, error)
}

type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (*database.Settings, error)
}

// TaskSchedulerInterface is what the application and the API need from the
// scheduler: lifecycle control and reloading tier intervals after a settings change.
type TaskSchedulerInterface interface {
	Start(ctx context.Context) error
	Stop()
	Reload(ctx context.Context) error
}
