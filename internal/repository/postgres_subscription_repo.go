package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/feednest/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した購読リポジトリ。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

// FindByUserAndFeed はユーザーIDとフィードIDで購読を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByUserAndFeed(ctx context.Context, userID, feedID string) (*model.Subscription, error) {
	sub := &model.Subscription{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, feed_id, custom_title, folder, sort_order, created_at, updated_at
		 FROM subscriptions WHERE user_id = $1 AND feed_id = $2`,
		userID, feedID,
	).Scan(
		&sub.ID, &sub.UserID, &sub.FeedID, &sub.CustomTitle,
		&sub.Folder, &sub.SortOrder, &sub.CreatedAt, &sub.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("購読の検索に失敗しました: %w", err)
	}

	return sub, nil
}

// Create は購読を作成する。(user_id, feed_id)の重複はユニーク制約違反になる。
func (r *PostgresSubscriptionRepo) Create(ctx context.Context, subscription *model.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, user_id, feed_id, custom_title, folder, sort_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		subscription.ID, subscription.UserID, subscription.FeedID,
		subscription.CustomTitle, subscription.Folder, subscription.SortOrder,
		subscription.CreatedAt, subscription.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("購読の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUserIDWithFeed はユーザーの購読一覧をフィード情報と未読数付きで返す。
// folder昇順、sort_order昇順で並べる。未読数は状態行が無い記事も未読として数える。
func (r *PostgresSubscriptionRepo) ListByUserIDWithFeed(ctx context.Context, userID string) ([]model.SubscriptionWithFeed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.feed_id, s.custom_title, s.folder, s.sort_order, s.created_at, s.updated_at,
		        f.id, f.url, f.title, f.description, f.site_url, f.image_url, f.last_fetched, f.created_at, f.updated_at,
		        (SELECT count(*)
		         FROM feed_items i
		         LEFT JOIN read_statuses rs ON rs.feed_item_id = i.id AND rs.user_id = s.user_id
		         WHERE i.feed_id = s.feed_id AND COALESCE(rs.is_read, false) = false) AS unread_count
		 FROM subscriptions s
		 INNER JOIN feeds f ON f.id = s.feed_id
		 WHERE s.user_id = $1
		 ORDER BY s.folder ASC, s.sort_order ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var results []model.SubscriptionWithFeed
	for rows.Next() {
		sub := &model.Subscription{}
		feed := &model.Feed{}
		var unreadCount int

		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.FeedID, &sub.CustomTitle,
			&sub.Folder, &sub.SortOrder, &sub.CreatedAt, &sub.UpdatedAt,
			&feed.ID, &feed.URL, &feed.Title, &feed.Description, &feed.SiteURL, &feed.ImageURL,
			&feed.LastFetched, &feed.CreatedAt, &feed.UpdatedAt,
			&unreadCount,
		); err != nil {
			return nil, fmt.Errorf("購読一覧の読み取りに失敗しました: %w", err)
		}

		results = append(results, model.SubscriptionWithFeed{
			Subscription: sub,
			Feed:         feed,
			UnreadCount:  unreadCount,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読一覧の走査に失敗しました: %w", err)
	}

	return results, nil
}

// UpdatePartial は購読を部分更新する。nilのフィールドは変更しない。
// 対象が存在しない場合は更新件数0を返す。
func (r *PostgresSubscriptionRepo) UpdatePartial(ctx context.Context, userID, feedID string, update *model.SubscriptionUpdate) (int64, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{userID, feedID}
	idx := 3

	if update.CustomTitle != nil {
		sets = append(sets, fmt.Sprintf("custom_title = $%d", idx))
		args = append(args, *update.CustomTitle)
		idx++
	}
	if update.Folder != nil {
		sets = append(sets, fmt.Sprintf("folder = $%d", idx))
		args = append(args, *update.Folder)
		idx++
	}
	if update.SortOrder != nil {
		sets = append(sets, fmt.Sprintf("sort_order = $%d", idx))
		args = append(args, *update.SortOrder)
		idx++
	}

	query := fmt.Sprintf(
		`UPDATE subscriptions SET %s WHERE user_id = $1 AND feed_id = $2`,
		strings.Join(sets, ", "),
	)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("購読の更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}

	return affected, nil
}

// Delete はユーザーの指定フィード購読を削除し、削除件数を返す。
func (r *PostgresSubscriptionRepo) Delete(ctx context.Context, userID, feedID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND feed_id = $2`,
		userID, feedID,
	)
	if err != nil {
		return 0, fmt.Errorf("購読の削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	return affected, nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
