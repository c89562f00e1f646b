package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/feednest/internal/middleware"
	"github.com/hitoshi/feednest/internal/model"
)

type mockSessionFinder struct {
	session *model.Session
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.session, nil
}

func newTestRouter(finder middleware.SessionFinder) http.Handler {
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 10))

	return NewRouter(&RouterDeps{
		SessionFinder:       finder,
		CORSAllowedOrigin:   "http://localhost:3000",
		RateLimiter:         rl,
		Logger:              slog.New(slog.NewJSONHandler(io.Discard, nil)),
		AuthService:         &mockAuthService{},
		AuthConfig:          testAuthConfig(),
		SubscriptionService: &mockSubscriptionService{},
		ItemService:         &mockItemService{},
		HealthHandler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	})
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(&mockSessionFinder{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRouter_ProtectedRouteRequiresSession(t *testing.T) {
	router := newTestRouter(&mockSessionFinder{})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/me"},
		{http.MethodGet, "/feeds"},
		{http.MethodPost, "/feeds"},
		{http.MethodGet, "/feeds/feed-1"},
		{http.MethodGet, "/items"},
		{http.MethodGet, "/items/item-1"},
	}

	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestRouter_ValidSessionReachesHandler(t *testing.T) {
	finder := &mockSessionFinder{
		session: &model.Session{ID: "session-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
	}
	router := newTestRouter(finder)

	req := httptest.NewRequest(http.MethodGet, "/feeds", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-1"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRouter_AuthRoutesArePublic(t *testing.T) {
	router := newTestRouter(&mockSessionFinder{})

	svcPaths := []string{"/register", "/login", "/logout"}
	for _, path := range svcPaths {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		// セッション未検証で到達する（401以外）
		if w.Code == http.StatusUnauthorized && path != "/logout" {
			// register/loginはボディ不正で400になる
			t.Errorf("%s: status = %d, should not require session", path, w.Code)
		}
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(&mockSessionFinder{})

	req := httptest.NewRequest(http.MethodOptions, "/feeds", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(&mockSessionFinder{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}
