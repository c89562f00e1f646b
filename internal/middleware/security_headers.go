package middleware

import "net/http"

// NewSecurityHeadersMiddleware は全レスポンスにセキュリティ関連ヘッダーを付与する
// ミドルウェアを返す。セッションCookie認証のJSON APIのため、レスポンスの
// キャッシュも無効化する。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// 認証済みユーザーの購読・記事情報を共有キャッシュに残さない
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
