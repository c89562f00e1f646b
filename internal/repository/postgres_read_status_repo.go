package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/feednest/internal/model"
)

// PostgresReadStatusRepo はPostgreSQLを使用した記事状態リポジトリ。
type PostgresReadStatusRepo struct {
	db *sql.DB
}

// NewPostgresReadStatusRepo はPostgresReadStatusRepoを生成する。
func NewPostgresReadStatusRepo(db *sql.DB) *PostgresReadStatusRepo {
	return &PostgresReadStatusRepo{db: db}
}

// FindByUserAndItem はユーザーIDと記事IDで記事状態を取得する。見つからない場合はnilを返す。
func (r *PostgresReadStatusRepo) FindByUserAndItem(ctx context.Context, userID, itemID string) (*model.ReadStatus, error) {
	status := &model.ReadStatus{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, feed_item_id, is_read, is_starred, created_at, updated_at
		 FROM read_statuses WHERE user_id = $1 AND feed_item_id = $2`,
		userID, itemID,
	).Scan(
		&status.ID, &status.UserID, &status.FeedItemID,
		&status.IsRead, &status.IsStarred,
		&status.CreatedAt, &status.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事状態の取得に失敗しました: %w", err)
	}

	return status, nil
}

// Upsert は記事状態を冪等にUPSERTする。
// nilフィールドは変更せず、既存の値を維持する部分更新を行う。
// UNIQUE(user_id, feed_item_id)制約を利用した単一のINSERT ON CONFLICTで実装し、
// 並行リクエストが同一キーで競合しても指定フィールド以外を上書きしない。
func (r *PostgresReadStatusRepo) Upsert(
	ctx context.Context,
	userID, itemID string,
	isRead *bool,
	isStarred *bool,
) (*model.ReadStatus, error) {
	now := time.Now().UTC()
	status := &model.ReadStatus{}

	// 新規行ではnilフィールドをfalseで初期化し、既存行では維持する。
	// RETURNINGで実際に確定した行を返すため、挿入競合に負けた場合も
	// 勝った行のIDと値が返る。
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO read_statuses (id, user_id, feed_item_id, is_read, is_starred, created_at, updated_at)
		 VALUES ($1, $2, $3, COALESCE($4::boolean, false), COALESCE($5::boolean, false), $6, $6)
		 ON CONFLICT (user_id, feed_item_id) DO UPDATE SET
		     is_read = COALESCE($4::boolean, read_statuses.is_read),
		     is_starred = COALESCE($5::boolean, read_statuses.is_starred),
		     updated_at = EXCLUDED.updated_at
		 RETURNING id, user_id, feed_item_id, is_read, is_starred, created_at, updated_at`,
		uuid.New().String(), userID, itemID, isRead, isStarred, now,
	).Scan(
		&status.ID, &status.UserID, &status.FeedItemID,
		&status.IsRead, &status.IsStarred,
		&status.CreatedAt, &status.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("記事状態の更新に失敗しました: %w", err)
	}

	return status, nil
}

// compile-time interface check
var _ ReadStatusRepository = (*PostgresReadStatusRepo)(nil)
