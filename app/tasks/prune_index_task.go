package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

type PruneIndexTask struct {
	Task
	index Pruner
}

func NewPruneIndexTask(index Pruner) *PruneIndexTask {
	return &PruneIndexTask{
		Task:  NewTask(TaskTypePruneIndex, "dedup"),
		index: index,
	}
}

func (t *PruneIndexTask) Execute(ctx context.Context) error {
	pruned, err := t.index.Prune(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune dedup index: %w", err)
	}
	slog.Debug("Dedup index pruned", "entries", pruned)
	return nil
}
