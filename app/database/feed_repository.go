package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// MaxConsecutiveFailures is the number of failed fetches after which a feed is
// moved to the error status and no longer polled.
const MaxConsecutiveFailures = 5

const feedColumns = `id, name, url, category, priority, status, language, max_items_per_fetch,
	extract_content, total_fetched, total_published, consecutive_failures, last_error,
	last_fetched_at, created_at, updated_at`

// FeedRepository handles database operations for feed sources
type FeedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*FeedSource, error) {
	var (
		feed                 FeedSource
		priority, status     string
		extract              int
		lastFetched          sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&feed.ID, &feed.Name, &feed.URL, &feed.Category, &priority, &status, &feed.Language,
		&feed.MaxItemsPerFetch, &extract, &feed.TotalFetched, &feed.TotalPublished,
		&feed.ConsecutiveFailures, &feed.LastError, &lastFetched, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	feed.Priority = Priority(priority)
	feed.Status = FeedStatus(status)
	feed.ExtractContent = extract != 0
	feed.LastFetchedAt = fromNullMillis(lastFetched)
	feed.CreatedAt = fromMillis(createdAt)
	feed.UpdatedAt = fromMillis(updatedAt)
	return &feed, nil
}

// ListActiveFeeds returns the active feeds of a tier in a stable order
func (r *FeedRepository) ListActiveFeeds(ctx context.Context, priority Priority) ([]FeedSource, error) {
	return r.ListFeeds(ctx, priority, FeedStatusActive)
}

// ListFeeds returns feeds filtered by priority and status; empty values match everything
func (r *FeedRepository) ListFeeds(ctx context.Context, priority Priority, status FeedStatus) ([]FeedSource, error) {
	query := psql.Select(feedColumns).From("feed_sources").OrderBy("created_at ASC", "id ASC")
	if priority != "" {
		query = query.Where(sq.Eq{"priority": string(priority)})
	}
	if status != "" {
		query = query.Where(sq.Eq{"status": string(status)})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build feed query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []FeedSource
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

// GetFeedByURL returns nil, nil when no feed has the URL
func (r *FeedRepository) GetFeedByURL(ctx context.Context, url string) (*FeedSource, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feed_sources WHERE url = ?`, url)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed by URL: %w", err)
	}
	return feed, nil
}

// InsertFeed stores a new feed source. Feeds whose URL already exists are left
// untouched and false is returned.
func (r *FeedRepository) InsertFeed(ctx context.Context, feed *FeedSource) (bool, error) {
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}
	if feed.Status == "" {
		feed.Status = FeedStatusActive
	}
	if feed.MaxItemsPerFetch <= 0 {
		feed.MaxItemsPerFetch = 20
	}
	now := time.Now().UTC()
	feed.CreatedAt, feed.UpdatedAt = now, now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_sources (id, name, url, category, priority, status, language,
		                          max_items_per_fetch, extract_content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING
	`, feed.ID, feed.Name, feed.URL, feed.Category, string(feed.Priority), string(feed.Status),
		feed.Language, feed.MaxItemsPerFetch, boolToInt(feed.ExtractContent),
		toMillis(now), toMillis(now))
	if err != nil {
		return false, fmt.Errorf("failed to insert feed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *FeedRepository) SetFeedStatus(ctx context.Context, id string, status FeedStatus) error {
	query := `UPDATE feed_sources SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{string(status), toMillis(time.Now()), id}
	if status == FeedStatusActive {
		query = `UPDATE feed_sources SET status = ?, consecutive_failures = 0, last_error = '', updated_at = ? WHERE id = ?`
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update feed status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFetchSuccess resets the failure streak and adds to the fetched counter
func (r *FeedRepository) RecordFetchSuccess(ctx context.Context, id string, fetched int) error {
	now := toMillis(time.Now())
	_, err := r.db.ExecContext(ctx, `
		UPDATE feed_sources
		SET total_fetched = total_fetched + ?, consecutive_failures = 0, last_error = '',
		    last_fetched_at = ?, updated_at = ?
		WHERE id = ?
	`, fetched, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to record fetch success: %w", err)
	}
	return nil
}

// RecordFetchFailure bumps the failure streak and returns the resulting status.
func (r *FeedRepository) RecordFetchFailure(ctx context.Context, id string, message string) (FeedStatus, error) {
	now := toMillis(time.Now())

	var status string
	err := r.db.QueryRowContext(ctx, `
		UPDATE feed_sources
		SET consecutive_failures = consecutive_failures + 1,
		    last_error = ?,
		    last_fetched_at = ?,
		    updated_at = ?,
		    status = CASE
		        WHEN status = 'active' AND consecutive_failures + 1 >= ? THEN 'error'
		        ELSE status
		    END
		WHERE id = ?
		RETURNING status
	`, message, now, now, MaxConsecutiveFailures, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to record fetch failure: %w", err)
	}
	return FeedStatus(status), nil
}

func (r *FeedRepository) IncrementPublished(ctx context.Context, id string, count int) error {
	if id == "" || count == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE feed_sources SET total_published = total_published + ?, updated_at = ? WHERE id = ?`,
		count, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to increment published count: %w", err)
	}
	return nil
}

func (r *FeedRepository) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feed_sources`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

func (r *FeedRepository) GetFeedStats(ctx context.Context) (FeedStats, error) {
	stats := FeedStats{ByPriority: map[Priority]int{}}

	rows, err := r.db.QueryContext(ctx, `
		SELECT priority, status, COUNT(*)
		FROM feed_sources
		GROUP BY priority, status
	`)
	if err != nil {
		return stats, fmt.Errorf("failed to get feed stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var priority, status string
		var count int
		if err := rows.Scan(&priority, &status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan feed stats: %w", err)
		}
		stats.Total += count
		switch FeedStatus(status) {
		case FeedStatusActive:
			stats.Active += count
			stats.ByPriority[Priority(priority)] += count
		case FeedStatusPaused:
			stats.Paused += count
		case FeedStatusError:
			stats.Error += count
		}
	}
	return stats, rows.Err()
}
