// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/feednest/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。emailの重複はユニーク制約違反になる。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れまたは未存在の場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// FeedRepository はフィードデータの永続化インターフェース。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Feed, error)

	// FindByURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, url string) (*model.Feed, error)

	// Upsert はURLをキーにフィードを作成または更新し、確定後の行を返す。
	// 更新時、取得結果のdescription/site_url/image_urlが空の場合は既存の値を維持する。
	// 同一URLへの並行Upsertはユニーク制約により1行に収束する。
	Upsert(ctx context.Context, feed *model.Feed) (*model.Feed, error)
}

// ItemRepository は記事データの永続化インターフェース。
type ItemRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.FeedItem, error)

	// FindWithState は指定IDの記事をユーザーの状態・フィードタイトル付きで取得する。
	// 見つからない場合はnilを返す。
	FindWithState(ctx context.Context, userID, itemID string) (*model.ItemWithState, error)

	// CreateBatch は記事群を単一トランザクションで挿入し、新規挿入件数を返す。
	// (feed_id, guid)が既存の行はON CONFLICT DO NOTHINGでスキップされ、
	// 既存記事は一切変更されない。
	CreateBatch(ctx context.Context, items []*model.FeedItem) (int, error)

	// ListUnread はユーザーの購読フィード全体から未読記事をpublished_at降順で返す。
	// 状態行が存在しない記事は未読として扱う。
	ListUnread(ctx context.Context, userID string, limit int) ([]model.ItemWithState, error)

	// ListStarred はユーザーのスター付き記事をpublished_at降順で返す。
	ListStarred(ctx context.Context, userID string, limit int) ([]model.ItemWithState, error)

	// ListByFeed は指定フィードの記事をユーザーの状態付きでpublished_at降順で返す。
	ListByFeed(ctx context.Context, userID, feedID string, limit int) ([]model.ItemWithState, error)
}

// SubscriptionRepository は購読データの永続化インターフェース。
type SubscriptionRepository interface {
	// FindByUserAndFeed はユーザーIDとフィードIDで購読を検索する。見つからない場合はnilを返す。
	FindByUserAndFeed(ctx context.Context, userID, feedID string) (*model.Subscription, error)

	// Create は購読を作成する。(user_id, feed_id)の重複はユニーク制約違反になる。
	Create(ctx context.Context, subscription *model.Subscription) error

	// ListByUserIDWithFeed はユーザーの購読一覧をフィード情報と未読数付きで返す。
	// folder昇順、sort_order昇順で並べる。
	ListByUserIDWithFeed(ctx context.Context, userID string) ([]model.SubscriptionWithFeed, error)

	// UpdatePartial は購読を部分更新する。nilのフィールドは変更しない。
	// 対象が存在しない場合は更新件数0を返す。
	UpdatePartial(ctx context.Context, userID, feedID string, update *model.SubscriptionUpdate) (int64, error)

	// Delete はユーザーの指定フィード購読を削除し、削除件数を返す。
	Delete(ctx context.Context, userID, feedID string) (int64, error)
}

// ReadStatusRepository はユーザーごとの記事状態（既読/スター）の永続化インターフェース。
type ReadStatusRepository interface {
	// FindByUserAndItem はユーザーIDと記事IDで記事状態を取得する。見つからない場合はnilを返す。
	FindByUserAndItem(ctx context.Context, userID, itemID string) (*model.ReadStatus, error)

	// Upsert は記事状態を冪等にUPSERTする。
	// nilフィールドは変更せず、既存の値を維持する部分更新を行う。
	// 行が存在しない場合はnilフィールドをfalseとして新規作成する。
	Upsert(ctx context.Context, userID, itemID string, isRead *bool, isStarred *bool) (*model.ReadStatus, error)
}
