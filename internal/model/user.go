package model

import "time"

// User は登録ユーザーを表す。
type User struct {
	ID           string    // UUID
	Email        string    // メールアドレス（一意）
	PasswordHash string    // bcryptハッシュ
	Name         string    // 表示名（空可）
	CreatedAt    time.Time // 作成日時
	UpdatedAt    time.Time // 更新日時
}

// Session はCookieベースのログインセッションを表す。
type Session struct {
	ID        string    // ランダム16進トークン
	UserID    string    // 所有ユーザーID
	ExpiresAt time.Time // 失効日時
	CreatedAt time.Time // 作成日時
}

// Expired はセッションが失効しているかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
