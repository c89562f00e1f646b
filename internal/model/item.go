package model

import "time"

// FeedItem はフィードから取り込んだ記事を表す。
// (FeedID, GUID) で一意。取り込み後は不変で、再取り込みで上書きされない。
type FeedItem struct {
	ID          string    // UUID
	FeedID      string    // 所属フィードID
	GUID        string    // 記事の一意識別子（元のguid、無ければlink）
	Title       string    // 記事タイトル
	Link        string    // 記事URL
	Description string    // 概要（空可）
	Content     string    // 本文HTML（サニタイズ済み、空可）
	Author      string    // 著者名（空可）
	Categories  string    // カテゴリのカンマ区切り（空可）
	PublishedAt time.Time // 公開日時
	CreatedAt   time.Time // 取り込み日時
}

// ReadStatus はユーザー単位の記事状態を表す。
// (UserID, FeedItemID) で一意。記事を開く・スターを付けると行が作られる。
type ReadStatus struct {
	ID         string    // UUID
	UserID     string    // ユーザーID
	FeedItemID string    // 記事ID
	IsRead     bool      // 既読フラグ
	IsStarred  bool      // スターフラグ
	CreatedAt  time.Time // 作成日時
	UpdatedAt  time.Time // 更新日時
}

// ItemWithState は記事とユーザー視点の状態をまとめた読み取りモデル。
// 状態行が無い記事は未読・スター無しとして扱う。
type ItemWithState struct {
	Item      *FeedItem
	FeedTitle string
	IsRead    bool
	IsStarred bool
}

// ItemFilter は記事一覧の絞り込み条件。
type ItemFilter string

const (
	// FilterUnread は未読記事のみを対象とする。
	FilterUnread ItemFilter = "unread"
	// FilterStarred はスター付き記事のみを対象とする。
	FilterStarred ItemFilter = "starred"
)

// Valid はフィルタ値が定義済みかどうかを返す。
func (f ItemFilter) Valid() bool {
	return f == FilterUnread || f == FilterStarred
}

// StateChange は記事状態の部分更新内容を表す。nilのフィールドは変更しない。
type StateChange struct {
	IsRead    *bool
	IsStarred *bool
}
