package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type SettingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetSettings returns nil, nil when the settings row has not been created yet.
func (r *SettingsRepository) GetSettings(ctx context.Context) (*Settings, error) {
	var (
		s                                                     Settings
		enabled, autoPublish, crossSource, paywall, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT is_enabled, high_priority_interval, medium_priority_interval, low_priority_interval,
		       daily_article_target, max_articles_per_hour, max_items_per_cycle, min_qa_score,
		       auto_publish, simhash_threshold, cross_source_dedup, enable_paywall_filter,
		       min_word_count, updated_at
		FROM bot_settings WHERE id = 1
	`).Scan(&enabled, &s.HighPriorityInterval, &s.MediumPriorityInterval, &s.LowPriorityInterval,
		&s.DailyArticleTarget, &s.MaxArticlesPerHour, &s.MaxItemsPerCycle, &s.MinQAScore,
		&autoPublish, &s.SimHashThreshold, &crossSource, &paywall, &s.MinWordCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	s.IsEnabled = enabled != 0
	s.AutoPublish = autoPublish != 0
	s.CrossSourceDedup = crossSource != 0
	s.EnablePaywallFilter = paywall != 0
	s.UpdatedAt = fromMillis(updatedAt)
	return &s, nil
}

// EnsureSettings creates the settings row from defaults if it is missing and
// reports whether it did.
func (r *SettingsRepository) EnsureSettings(ctx context.Context, defaults Settings) (bool, error) {
	res, err := r.db.ExecContext(ctx, upsertSettingsSQL+` ON CONFLICT (id) DO NOTHING`, settingsArgs(defaults)...)
	if err != nil {
		return false, fmt.Errorf("failed to ensure settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *SettingsRepository) UpdateSettings(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	_, err := r.db.ExecContext(ctx, upsertSettingsSQL+`
		ON CONFLICT (id) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			high_priority_interval = excluded.high_priority_interval,
			medium_priority_interval = excluded.medium_priority_interval,
			low_priority_interval = excluded.low_priority_interval,
			daily_article_target = excluded.daily_article_target,
			max_articles_per_hour = excluded.max_articles_per_hour,
			max_items_per_cycle = excluded.max_items_per_cycle,
			min_qa_score = excluded.min_qa_score,
			auto_publish = excluded.auto_publish,
			simhash_threshold = excluded.simhash_threshold,
			cross_source_dedup = excluded.cross_source_dedup,
			enable_paywall_filter = excluded.enable_paywall_filter,
			min_word_count = excluded.min_word_count,
			updated_at = excluded.updated_at
	`, settingsArgs(s)...)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}

const upsertSettingsSQL = `
	INSERT INTO bot_settings (id, is_enabled, high_priority_interval, medium_priority_interval,
	                          low_priority_interval, daily_article_target, max_articles_per_hour,
	                          max_items_per_cycle, min_qa_score, auto_publish, simhash_threshold,
	                          cross_source_dedup, enable_paywall_filter, min_word_count, updated_at)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func settingsArgs(s Settings) []any {
	return []any{
		boolToInt(s.IsEnabled), s.HighPriorityInterval, s.MediumPriorityInterval, s.LowPriorityInterval,
		s.DailyArticleTarget, s.MaxArticlesPerHour, s.MaxItemsPerCycle, s.MinQAScore,
		boolToInt(s.AutoPublish), s.SimHashThreshold, boolToInt(s.CrossSourceDedup),
		boolToInt(s.EnablePaywallFilter), s.MinWordCount, toMillis(time.Now()),
	}
}
