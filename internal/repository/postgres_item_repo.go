package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feednest/internal/model"
)

// PostgresItemRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByID(ctx context.Context, id string) (*model.FeedItem, error) {
	item := &model.FeedItem{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, feed_id, guid, title, link, description, content, author, categories, published_at, created_at
		 FROM feed_items WHERE id = $1`,
		id,
	).Scan(
		&item.ID, &item.FeedID, &item.GUID, &item.Title, &item.Link,
		&item.Description, &item.Content, &item.Author, &item.Categories,
		&item.PublishedAt, &item.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}

	return item, nil
}

// FindWithState は指定IDの記事をユーザーの状態・フィードタイトル付きで取得する。
// 見つからない場合はnilを返す。状態行が無い場合は未読・スター無しとして返す。
func (r *PostgresItemRepo) FindWithState(ctx context.Context, userID, itemID string) (*model.ItemWithState, error) {
	item := &model.FeedItem{}
	result := &model.ItemWithState{Item: item}

	err := r.db.QueryRowContext(ctx,
		`SELECT i.id, i.feed_id, i.guid, i.title, i.link, i.description, i.content,
		        i.author, i.categories, i.published_at, i.created_at,
		        f.title,
		        COALESCE(rs.is_read, false), COALESCE(rs.is_starred, false)
		 FROM feed_items i
		 INNER JOIN feeds f ON f.id = i.feed_id
		 LEFT JOIN read_statuses rs ON rs.feed_item_id = i.id AND rs.user_id = $1
		 WHERE i.id = $2`,
		userID, itemID,
	).Scan(
		&item.ID, &item.FeedID, &item.GUID, &item.Title, &item.Link,
		&item.Description, &item.Content, &item.Author, &item.Categories,
		&item.PublishedAt, &item.CreatedAt,
		&result.FeedTitle,
		&result.IsRead, &result.IsStarred,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}

	return result, nil
}

// CreateBatch は記事群を単一トランザクションで挿入し、新規挿入件数を返す。
// UNIQUE(feed_id, guid)制約を利用したON CONFLICT DO NOTHINGで既存記事をスキップし、
// 既存行は一切変更しない。途中で失敗した場合は全件ロールバックされる。
func (r *PostgresItemRepo) CreateBatch(ctx context.Context, items []*model.FeedItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, item := range items {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO feed_items (id, feed_id, guid, title, link, description, content, author, categories, published_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (feed_id, guid) DO NOTHING`,
			item.ID, item.FeedID, item.GUID, item.Title, item.Link,
			item.Description, item.Content, item.Author, item.Categories,
			item.PublishedAt, item.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("記事の挿入に失敗しました: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("挿入件数の取得に失敗しました: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return inserted, nil
}

// CountUnreadByFeed は指定フィード内でユーザーが未読の記事数を返す。
// 状態行が存在しない記事は未読として数える。
func (r *PostgresItemRepo) CountUnreadByFeed(ctx context.Context, userID, feedID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*)
		 FROM feed_items i
		 LEFT JOIN read_statuses rs ON rs.feed_item_id = i.id AND rs.user_id = $1
		 WHERE i.feed_id = $2 AND COALESCE(rs.is_read, false) = false`,
		userID, feedID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("未読数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListUnread はユーザーの購読フィード全体から未読記事をpublished_at降順で返す。
// 状態行が存在しない記事は未読として扱う。
func (r *PostgresItemRepo) ListUnread(ctx context.Context, userID string, limit int) ([]model.ItemWithState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.feed_id, i.guid, i.title, i.link, i.description, i.content,
		        i.author, i.categories, i.published_at, i.created_at,
		        f.title,
		        COALESCE(rs.is_read, false), COALESCE(rs.is_starred, false)
		 FROM feed_items i
		 INNER JOIN feeds f ON f.id = i.feed_id
		 INNER JOIN subscriptions s ON s.feed_id = i.feed_id AND s.user_id = $1
		 LEFT JOIN read_statuses rs ON rs.feed_item_id = i.id AND rs.user_id = $1
		 WHERE COALESCE(rs.is_read, false) = false
		 ORDER BY i.published_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("未読記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanItemsWithState(rows)
}

// ListStarred はユーザーのスター付き記事をpublished_at降順で返す。
func (r *PostgresItemRepo) ListStarred(ctx context.Context, userID string, limit int) ([]model.ItemWithState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.feed_id, i.guid, i.title, i.link, i.description, i.content,
		        i.author, i.categories, i.published_at, i.created_at,
		        f.title,
		        rs.is_read, rs.is_starred
		 FROM feed_items i
		 INNER JOIN feeds f ON f.id = i.feed_id
		 INNER JOIN read_statuses rs ON rs.feed_item_id = i.id AND rs.user_id = $1
		 WHERE rs.is_starred = true
		 ORDER BY i.published_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("スター付き記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanItemsWithState(rows)
}

// ListByFeed は指定フィードの記事をユーザーの状態付きでpublished_at降順で返す。
func (r *PostgresItemRepo) ListByFeed(ctx context.Context, userID, feedID string, limit int) ([]model.ItemWithState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.feed_id, i.guid, i.title, i.link, i.description, i.content,
		        i.author, i.categories, i.published_at, i.created_at,
		        f.title,
		        COALESCE(rs.is_read, false), COALESCE(rs.is_starred, false)
		 FROM feed_items i
		 INNER JOIN feeds f ON f.id = i.feed_id
		 LEFT JOIN read_statuses rs ON rs.feed_item_id = i.id AND rs.user_id = $1
		 WHERE i.feed_id = $2
		 ORDER BY i.published_at DESC
		 LIMIT $3`,
		userID, feedID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("フィード記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanItemsWithState(rows)
}

// scanItemsWithState は記事＋状態の結果セットを走査する。
func scanItemsWithState(rows *sql.Rows) ([]model.ItemWithState, error) {
	var results []model.ItemWithState
	for rows.Next() {
		item := &model.FeedItem{}
		var state model.ItemWithState
		state.Item = item

		if err := rows.Scan(
			&item.ID, &item.FeedID, &item.GUID, &item.Title, &item.Link,
			&item.Description, &item.Content, &item.Author, &item.Categories,
			&item.PublishedAt, &item.CreatedAt,
			&state.FeedTitle,
			&state.IsRead, &state.IsStarred,
		); err != nil {
			return nil, fmt.Errorf("記事の読み取りに失敗しました: %w", err)
		}

		results = append(results, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事の走査に失敗しました: %w", err)
	}

	return results, nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
