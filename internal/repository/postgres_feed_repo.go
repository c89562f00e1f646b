package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feednest/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	feed := &model.Feed{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, url, title, description, site_url, image_url, last_fetched, created_at, updated_at
		 FROM feeds WHERE id = $1`,
		id,
	).Scan(
		&feed.ID, &feed.URL, &feed.Title, &feed.Description, &feed.SiteURL, &feed.ImageURL,
		&feed.LastFetched, &feed.CreatedAt, &feed.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	return feed, nil
}

// FindByURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByURL(ctx context.Context, url string) (*model.Feed, error) {
	feed := &model.Feed{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, url, title, description, site_url, image_url, last_fetched, created_at, updated_at
		 FROM feeds WHERE url = $1`,
		url,
	).Scan(
		&feed.ID, &feed.URL, &feed.Title, &feed.Description, &feed.SiteURL, &feed.ImageURL,
		&feed.LastFetched, &feed.CreatedAt, &feed.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによるフィードの検索に失敗しました: %w", err)
	}

	return feed, nil
}

// Upsert はURLをキーにフィードを作成または更新し、確定後の行を返す。
// 更新時、取得結果のdescription/site_url/image_urlが空の場合は既存の値を維持する。
// 同一URLへの並行UpsertはUNIQUE(url)制約により単一のINSERT ON CONFLICTで1行に収束する。
func (r *PostgresFeedRepo) Upsert(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
	result := &model.Feed{}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO feeds (id, url, title, description, site_url, image_url, last_fetched, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (url) DO UPDATE SET
		     title = EXCLUDED.title,
		     description = COALESCE(NULLIF(EXCLUDED.description, ''), feeds.description),
		     site_url = COALESCE(NULLIF(EXCLUDED.site_url, ''), feeds.site_url),
		     image_url = COALESCE(NULLIF(EXCLUDED.image_url, ''), feeds.image_url),
		     last_fetched = EXCLUDED.last_fetched,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id, url, title, description, site_url, image_url, last_fetched, created_at, updated_at`,
		feed.ID, feed.URL, feed.Title, feed.Description, feed.SiteURL, feed.ImageURL,
		feed.LastFetched, feed.CreatedAt, feed.UpdatedAt,
	).Scan(
		&result.ID, &result.URL, &result.Title, &result.Description, &result.SiteURL, &result.ImageURL,
		&result.LastFetched, &result.CreatedAt, &result.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("フィードのUpsertに失敗しました: %w", err)
	}

	return result, nil
}

// compile-time interface check
var _ FeedRepository = (*PostgresFeedRepo)(nil)
