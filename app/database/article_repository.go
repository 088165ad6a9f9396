package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/lysyi3m/news-bot/app/slug"
)

// MaxSlugAttempts bounds the -N suffix search for a free slug.
const MaxSlugAttempts = 100

var ErrSlugExhausted = slug.ErrExhausted

// ArticleRepository handles articles together with their translations and provenance
type ArticleRepository struct {
	db *DB
}

func NewArticleRepository(db *DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// CreateArticle persists an article, one translation per language, its source
// and, for unpublished articles, one pending approval row per translation.
// Everything is written in a single transaction.
func (r *ArticleRepository) CreateArticle(ctx context.Context, in NewArticle) (*CreatedArticle, error) {
	if len(in.Translations) == 0 {
		return nil, fmt.Errorf("article has no translations")
	}

	tx, err := r.db.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	articleSlug, err := slug.Unique(in.SlugBase, func(candidate string) (bool, error) {
		return exists(ctx, tx, `SELECT 1 FROM articles WHERE slug = ?`, candidate)
	}, MaxSlugAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve article slug: %w", err)
	}

	article := Article{
		ID:        uuid.NewString(),
		Slug:      articleSlug,
		Category:  in.Category,
		Tags:      tags,
		ImageURL:  in.ImageURL,
		Published: in.Published,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Published {
		article.PublishedAt = &now
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO articles (id, slug, category, tags, image_url, published, published_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, article.ID, article.Slug, article.Category, string(tagsJSON), article.ImageURL,
		boolToInt(article.Published), nullMillis(article.PublishedAt), toMillis(now), toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert article: %w", err)
	}

	result := &CreatedArticle{Article: article}

	for _, nt := range in.Translations {
		lang := nt.Lang
		translationSlug, err := slug.Unique(nt.SlugBase, func(candidate string) (bool, error) {
			return exists(ctx, tx, `SELECT 1 FROM translations WHERE lang = ? AND slug = ?`, lang, candidate)
		}, MaxSlugAttempts)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s slug: %w", lang, err)
		}

		tr := Translation{
			ID:              uuid.NewString(),
			ArticleID:       article.ID,
			Lang:            lang,
			Slug:            translationSlug,
			Title:           nt.Title,
			Summary:         nt.Summary,
			Body:            nt.Body,
			Author:          nt.Author,
			SEOTitle:        nt.SEOTitle,
			MetaDescription: nt.MetaDescription,
			PublishedAt:     article.PublishedAt,
			CreatedAt:       now,
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO translations (id, article_id, lang, slug, title, summary, body, author,
			                          seo_title, meta_description, published_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, tr.ID, tr.ArticleID, tr.Lang, tr.Slug, tr.Title, tr.Summary, tr.Body, tr.Author,
			tr.SEOTitle, tr.MetaDescription, nullMillis(tr.PublishedAt), toMillis(now))
		if err != nil {
			return nil, fmt.Errorf("failed to insert %s translation: %w", lang, err)
		}

		if !in.Published {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO approval_queue (id, translation_id, status, created_at, updated_at)
				VALUES (?, ?, 'pending', ?, ?)
			`, uuid.NewString(), tr.ID, toMillis(now), toMillis(now))
			if err != nil {
				return nil, fmt.Errorf("failed to queue %s translation: %w", lang, err)
			}
			result.Queued++
		}

		result.Translations = append(result.Translations, tr)
	}

	if src := in.Source; src != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sources (article_id, feed_id, original_source, source_url, source_fingerprint, language, word_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, article.ID, src.FeedID, src.OriginalSource, src.SourceURL, src.SourceFingerprint, src.Language, src.WordCount)
		if err != nil {
			return nil, fmt.Errorf("failed to insert source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit article: %w", err)
	}

	return result, nil
}

func (r *ArticleRepository) CountPublishedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE published = 1 AND published_at >= ?`,
		toMillis(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count published articles: %w", err)
	}
	return count, nil
}

func (r *ArticleRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE created_at >= ?`, toMillis(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count created articles: %w", err)
	}
	return count, nil
}

// ExistingSourceFingerprints returns the subset of fingerprints already
// recorded in the sources table.
func (r *ArticleRepository) ExistingSourceFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(fingerprints) == 0 {
		return found, nil
	}

	stmt, args, err := psql.Select("DISTINCT source_fingerprint").
		From("sources").
		Where(sq.Eq{"source_fingerprint": fingerprints}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build fingerprint query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		found[fp] = true
	}
	return found, rows.Err()
}

// ListPublishedTranslations returns the newest published translations of a language
func (r *ArticleRepository) ListPublishedTranslations(ctx context.Context, lang string, limit int) ([]PublishedTranslation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.article_id, t.lang, t.slug, t.title, t.summary, t.body, t.author,
		       t.seo_title, t.meta_description, t.published_at, t.created_at,
		       a.category, a.tags, a.image_url, COALESCE(s.source_url, '')
		FROM translations t
		JOIN articles a ON a.id = t.article_id
		LEFT JOIN sources s ON s.article_id = a.id
		WHERE t.lang = ? AND a.published = 1 AND t.published_at IS NOT NULL
		ORDER BY t.published_at DESC, t.id
		LIMIT ?
	`, lang, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list published translations: %w", err)
	}
	defer rows.Close()

	var items []PublishedTranslation
	for rows.Next() {
		var (
			item        PublishedTranslation
			publishedAt sql.NullInt64
			createdAt   int64
			tags        string
		)
		err := rows.Scan(
			&item.ID, &item.ArticleID, &item.Lang, &item.Slug, &item.Title, &item.Summary, &item.Body,
			&item.Author, &item.SEOTitle, &item.MetaDescription, &publishedAt, &createdAt,
			&item.Category, &tags, &item.ImageURL, &item.SourceURL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan translation row: %w", err)
		}
		item.PublishedAt = fromNullMillis(publishedAt)
		item.CreatedAt = fromMillis(createdAt)
		if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
			item.Tags = nil
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating translation rows: %w", err)
	}

	return items, nil
}

// ListTranslations returns every translation, oldest first
func (r *ArticleRepository) ListTranslations(ctx context.Context) ([]Translation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, article_id, lang, slug, title, summary, body, author, seo_title,
		       meta_description, published_at, created_at
		FROM translations
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list translations: %w", err)
	}
	defer rows.Close()

	var items []Translation
	for rows.Next() {
		var (
			tr          Translation
			publishedAt sql.NullInt64
			createdAt   int64
		)
		err := rows.Scan(&tr.ID, &tr.ArticleID, &tr.Lang, &tr.Slug, &tr.Title, &tr.Summary, &tr.Body,
			&tr.Author, &tr.SEOTitle, &tr.MetaDescription, &publishedAt, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan translation row: %w", err)
		}
		tr.PublishedAt = fromNullMillis(publishedAt)
		tr.CreatedAt = fromMillis(createdAt)
		items = append(items, tr)
	}
	return items, rows.Err()
}

// RewriteTranslationSlug assigns a translation the first free slug derived from
// slugBase within its language. It reports whether the slug changed.
func (r *ArticleRepository) RewriteTranslationSlug(ctx context.Context, id, lang, slugBase string) (string, bool, error) {
	tx, err := r.db.begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT slug FROM translations WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, ErrNotFound
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load translation: %w", err)
	}

	next, err := slug.Unique(slugBase, func(candidate string) (bool, error) {
		return exists(ctx, tx, `SELECT 1 FROM translations WHERE lang = ? AND slug = ? AND id <> ?`, lang, candidate, id)
	}, MaxSlugAttempts)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve slug: %w", err)
	}
	if next == current {
		return current, false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE translations SET slug = ? WHERE id = ?`, next, id); err != nil {
		return "", false, fmt.Errorf("failed to update slug: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit slug: %w", err)
	}

	return next, true, nil
}
