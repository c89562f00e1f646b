package model

import "time"

// DefaultFolder は購読作成時のデフォルトフォルダ名。
const DefaultFolder = "未分类"

// Feed は購読対象のフィードを表す。URLで一意。
// 複数ユーザーが同一フィードを購読した場合も行は1つだけ存在する。
type Feed struct {
	ID          string    // UUID
	URL         string    // フィードURL（一意キー）
	Title       string    // フィードタイトル
	Description string    // 説明（空可）
	SiteURL     string    // フィード元サイトのURL（空可）
	ImageURL    string    // アイキャッチ画像URL（空可）
	LastFetched time.Time // 最終取得日時
	CreatedAt   time.Time // 作成日時
	UpdatedAt   time.Time // 更新日時
}

// Subscription はユーザーとフィードの購読関係を表す。
// (UserID, FeedID) で一意。
type Subscription struct {
	ID          string    // UUID
	UserID      string    // 購読ユーザーID
	FeedID      string    // フィードID
	CustomTitle string    // ユーザー独自のタイトル（空ならフィードのタイトルを使う）
	Folder      string    // フォルダ名
	SortOrder   int       // フォルダ内の並び順
	CreatedAt   time.Time // 作成日時
	UpdatedAt   time.Time // 更新日時
}

// DisplayTitle は表示用タイトルを返す。CustomTitleが優先される。
func (s *Subscription) DisplayTitle(feed *Feed) string {
	if s.CustomTitle != "" {
		return s.CustomTitle
	}
	if feed != nil {
		return feed.Title
	}
	return ""
}

// SubscriptionWithFeed は購読とそのフィード情報、未読数をまとめた読み取りモデル。
type SubscriptionWithFeed struct {
	Subscription *Subscription
	Feed         *Feed
	UnreadCount  int
}

// SubscriptionUpdate は購読の部分更新内容を表す。nilのフィールドは変更しない。
type SubscriptionUpdate struct {
	CustomTitle *string
	Folder      *string
	SortOrder   *int
}
