package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const approvalColumns = `q.id, q.translation_id, t.article_id, t.lang, t.title, q.status,
	q.reviewer_id, q.notes, q.created_at, q.updated_at`

type ApprovalRepository struct {
	db *DB
}

func NewApprovalRepository(db *DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

func scanApproval(row rowScanner) (*ApprovalItem, error) {
	var (
		item                 ApprovalItem
		status               string
		createdAt, updatedAt int64
	)
	err := row.Scan(&item.ID, &item.TranslationID, &item.ArticleID, &item.Lang, &item.Title,
		&status, &item.ReviewerID, &item.Notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	item.Status = ApprovalStatus(status)
	item.CreatedAt = fromMillis(createdAt)
	item.UpdatedAt = fromMillis(updatedAt)
	return &item, nil
}

// ListApprovals returns queue entries, oldest first. An empty status lists all.
func (r *ApprovalRepository) ListApprovals(ctx context.Context, status ApprovalStatus, limit int) ([]ApprovalItem, error) {
	query := psql.Select(approvalColumns).
		From("approval_queue q").
		Join("translations t ON t.id = q.translation_id").
		OrderBy("q.created_at ASC", "t.lang ASC")
	if status != "" {
		query = query.Where(sq.Eq{"q.status": string(status)})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build approval query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var items []ApprovalItem
	for rows.Next() {
		item, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval row: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ApproveTranslation moves a pending entry to approved, stamps the translation
// as published and publishes its article if it was not published yet.
func (r *ApprovalRepository) ApproveTranslation(ctx context.Context, translationID, reviewerID, notes string) (*ApprovalItem, error) {
	return r.transition(ctx, translationID, reviewerID, notes, ApprovalApproved)
}

// RejectTranslation moves a pending entry to the terminal rejected state
func (r *ApprovalRepository) RejectTranslation(ctx context.Context, translationID, reviewerID, notes string) (*ApprovalItem, error) {
	return r.transition(ctx, translationID, reviewerID, notes, ApprovalRejected)
}

func (r *ApprovalRepository) transition(ctx context.Context, translationID, reviewerID, notes string, to ApprovalStatus) (*ApprovalItem, error) {
	tx, err := r.db.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	get := func() (*ApprovalItem, error) {
		row := tx.QueryRowContext(ctx, `SELECT `+approvalColumns+`
			FROM approval_queue q JOIN translations t ON t.id = q.translation_id
			WHERE q.translation_id = ?`, translationID)
		return scanApproval(row)
	}

	item, err := get()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load approval: %w", err)
	}
	if item.Status != ApprovalPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, item.Status, to)
	}

	now := toMillis(time.Now())
	_, err = tx.ExecContext(ctx, `
		UPDATE approval_queue SET status = ?, reviewer_id = ?, notes = ?, updated_at = ?
		WHERE translation_id = ?
	`, string(to), reviewerID, notes, now, translationID)
	if err != nil {
		return nil, fmt.Errorf("failed to update approval: %w", err)
	}

	if to == ApprovalApproved {
		if err := publishApproved(ctx, tx, item, now); err != nil {
			return nil, err
		}
	}

	item, err = get()
	if err != nil {
		return nil, fmt.Errorf("failed to reload approval: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	return item, nil
}

func publishApproved(ctx context.Context, tx *sql.Tx, item *ApprovalItem, now int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE translations SET published_at = ? WHERE id = ? AND published_at IS NULL`,
		now, item.TranslationID)
	if err != nil {
		return fmt.Errorf("failed to publish translation: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE articles SET published = 1, published_at = ?, updated_at = ?
		WHERE id = ? AND published = 0
	`, now, now, item.ArticleID)
	if err != nil {
		return fmt.Errorf("failed to publish article: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE feed_sources SET total_published = total_published + 1, updated_at = ?
		WHERE id = (SELECT feed_id FROM sources WHERE article_id = ?)
	`, now, item.ArticleID)
	if err != nil {
		return fmt.Errorf("failed to update feed counters: %w", err)
	}
	return nil
}
