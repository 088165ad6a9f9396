package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

type RunLogRepository struct {
	db *DB
}

func NewRunLogRepository(db *DB) *RunLogRepository {
	return &RunLogRepository{db: db}
}

func (r *RunLogRepository) CreateRunLog(ctx context.Context, priority Priority, startedAt time.Time) (*RunLog, error) {
	run := &RunLog{
		ID:        uuid.NewString(),
		Priority:  priority,
		StartedAt: startedAt.UTC(),
		Errors:    []string{},
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bot_run_logs (id, priority, started_at) VALUES (?, ?, ?)`,
		run.ID, string(priority), toMillis(startedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create run log: %w", err)
	}
	return run, nil
}

// CompleteRunLog writes the final counters; the row is not touched afterwards.
func (r *RunLogRepository) CompleteRunLog(ctx context.Context, run *RunLog) error {
	if run.CompletedAt == nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
	if run.Errors == nil {
		run.Errors = []string{}
	}
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE bot_run_logs
		SET completed_at = ?, feeds_checked = ?, items_fetched = ?, items_processed = ?,
		    items_published = ?, items_queued = ?, items_skipped = ?, errors = ?
		WHERE id = ? AND completed_at IS NULL
	`, nullMillis(run.CompletedAt), run.FeedsChecked, run.ItemsFetched, run.ItemsProcessed,
		run.ItemsPublished, run.ItemsQueued, run.ItemsSkipped, string(errorsJSON), run.ID)
	if err != nil {
		return fmt.Errorf("failed to complete run log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run log %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// ListRecentRuns returns the newest runs first. An empty priority lists all tiers.
func (r *RunLogRepository) ListRecentRuns(ctx context.Context, priority Priority, limit int) ([]RunLog, error) {
	query := psql.Select("id", "priority", "started_at", "completed_at", "feeds_checked",
		"items_fetched", "items_processed", "items_published", "items_queued", "items_skipped", "errors").
		From("bot_run_logs").
		OrderBy("started_at DESC", "id DESC")
	if priority != "" {
		query = query.Where(sq.Eq{"priority": string(priority)})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build run log query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	var runs []RunLog
	for rows.Next() {
		var (
			run         RunLog
			priority    string
			startedAt   int64
			completedAt sql.NullInt64
			errorsJSON  string
		)
		err := rows.Scan(&run.ID, &priority, &startedAt, &completedAt, &run.FeedsChecked,
			&run.ItemsFetched, &run.ItemsProcessed, &run.ItemsPublished, &run.ItemsQueued,
			&run.ItemsSkipped, &errorsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		run.Priority = Priority(priority)
		run.StartedAt = fromMillis(startedAt)
		run.CompletedAt = fromNullMillis(completedAt)
		if err := json.Unmarshal([]byte(errorsJSON), &run.Errors); err != nil || run.Errors == nil {
			run.Errors = []string{}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// TotalsSince aggregates the counters of runs started at or after since
func (r *RunLogRepository) TotalsSince(ctx context.Context, since time.Time) (RunTotals, error) {
	var t RunTotals
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(items_fetched), 0),
		       COALESCE(SUM(items_processed), 0),
		       COALESCE(SUM(items_published), 0),
		       COALESCE(SUM(items_queued), 0),
		       COALESCE(SUM(items_skipped), 0),
		       COALESCE(SUM(json_array_length(errors)), 0)
		FROM bot_run_logs
		WHERE started_at >= ?
	`, toMillis(since)).Scan(&t.Runs, &t.ItemsFetched, &t.ItemsProcessed, &t.ItemsPublished,
		&t.ItemsQueued, &t.ItemsSkipped, &t.Errors)
	if err != nil {
		return t, fmt.Errorf("failed to aggregate run logs: %w", err)
	}
	return t, nil
}
