package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feednest/internal/ingest"
	"github.com/hitoshi/feednest/internal/middleware"
	"github.com/hitoshi/feednest/internal/model"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	Subscribe(ctx context.Context, userID, feedURL, customTitle, folder string) (*model.SubscriptionWithFeed, error)
	List(ctx context.Context, userID string) ([]model.SubscriptionWithFeed, error)
	Get(ctx context.Context, userID, feedID string) (*model.SubscriptionWithFeed, error)
	Update(ctx context.Context, userID, feedID string, update *model.SubscriptionUpdate) (*model.Subscription, error)
	Unsubscribe(ctx context.Context, userID, feedID string) error
	Refresh(ctx context.Context, userID, feedID string) (*ingest.Result, error)
}

// FeedHandler はフィード購読管理のHTTPハンドラー。
// フィード詳細では記事一覧も返すため記事サービスにも依存する。
type FeedHandler struct {
	service SubscriptionServiceInterface
	items   ItemServiceInterface
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service SubscriptionServiceInterface, items ItemServiceInterface) *FeedHandler {
	return &FeedHandler{
		service: service,
		items:   items,
	}
}

// subscribeRequest はフィード購読リクエストのボディ。
type subscribeRequest struct {
	URL         string `json:"url"`
	CustomTitle string `json:"custom_title,omitempty"`
	Folder      string `json:"folder,omitempty"`
}

// subscriptionResponse は購読情報のAPIレスポンス。
type subscriptionResponse struct {
	FeedID      string    `json:"feed_id"`
	FeedURL     string    `json:"feed_url"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	SiteURL     string    `json:"site_url,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Folder      string    `json:"folder"`
	SortOrder   int       `json:"sort_order"`
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// subscriptionUpdateRequest は購読設定更新リクエストのボディ。
// camelCaseとsnake_caseのどちらのキーでも指定でき、含まれないフィールドは変更されない。
type subscriptionUpdateRequest struct {
	CustomTitle      *string `json:"customTitle,omitempty"`
	Folder           *string `json:"folder,omitempty"`
	SortOrder        *int    `json:"sortOrder,omitempty"`
	CustomTitleSnake *string `json:"custom_title,omitempty"`
	SortOrderSnake   *int    `json:"sort_order,omitempty"`
}

// customTitle はキー表記に関わらず指定されたカスタムタイトルを返す。camelCase優先。
func (r *subscriptionUpdateRequest) customTitle() *string {
	if r.CustomTitle != nil {
		return r.CustomTitle
	}
	return r.CustomTitleSnake
}

// sortOrder はキー表記に関わらず指定された表示順を返す。camelCase優先。
func (r *subscriptionUpdateRequest) sortOrder() *int {
	if r.SortOrder != nil {
		return r.SortOrder
	}
	return r.SortOrderSnake
}

// feedDetailResponse はフィード詳細のAPIレスポンス。購読情報と注釈付き記事一覧を含む。
type feedDetailResponse struct {
	subscriptionResponse
	Items []itemSummaryResponse `json:"items"`
}

// refreshResponse はフィード再取り込み結果のAPIレスポンス。
type refreshResponse struct {
	FeedID        string `json:"feed_id"`
	ItemsTotal    int    `json:"items_total"`
	ItemsInserted int    `json:"items_inserted"`
}

// Subscribe はフィードを取り込んで購読を作成する。
// POST /feeds
func (h *FeedHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました。"))
		return
	}

	sub, err := h.service.Subscribe(r.Context(), userID, req.URL, req.CustomTitle, req.Folder)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSubscriptionResponse(sub))
}

// Detail は購読中フィードの購読情報と注釈付き記事一覧を返す。
// GET /feeds/:feedID
func (h *FeedHandler) Detail(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	feedID := chi.URLParam(r, "feedID")

	sub, err := h.service.Get(r.Context(), userID, feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items, err := h.items.ListByFeed(r.Context(), userID, feedID, parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	summaries := make([]itemSummaryResponse, len(items))
	unread := 0
	for i := range items {
		summaries[i] = toItemSummaryResponse(&items[i])
		if !items[i].IsRead {
			unread++
		}
	}
	sub.UnreadCount = unread

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(feedDetailResponse{
		subscriptionResponse: toSubscriptionResponse(sub),
		Items:                summaries,
	})
}

// List はユーザーの購読一覧を返す。
// GET /feeds
func (h *FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	subs, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]subscriptionResponse, len(subs))
	for i := range subs {
		results[i] = toSubscriptionResponse(&subs[i])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Update は購読の表示設定を部分更新する。
// PATCH /feeds/:feedID
func (h *FeedHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	feedID := chi.URLParam(r, "feedID")

	var req subscriptionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました。"))
		return
	}

	sub, err := h.service.Update(r.Context(), userID, feedID, &model.SubscriptionUpdate{
		CustomTitle: req.customTitle(),
		Folder:      req.Folder,
		SortOrder:   req.sortOrder(),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"feed_id":      sub.FeedID,
		"custom_title": sub.CustomTitle,
		"folder":       sub.Folder,
		"sort_order":   sub.SortOrder,
	})
}

// Unsubscribe は購読を解除する。
// DELETE /feeds/:feedID
func (h *FeedHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	feedID := chi.URLParam(r, "feedID")

	if err := h.service.Unsubscribe(r.Context(), userID, feedID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Refresh は購読中フィードを再取り込みする。
// POST /feeds/:feedID/refresh
func (h *FeedHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	feedID := chi.URLParam(r, "feedID")

	result, err := h.service.Refresh(r.Context(), userID, feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(refreshResponse{
		FeedID:        result.Feed.ID,
		ItemsTotal:    result.ItemsTotal,
		ItemsInserted: result.ItemsInserted,
	})
}

// toSubscriptionResponse はドメインの購読情報をAPIレスポンスに変換する。
func toSubscriptionResponse(sub *model.SubscriptionWithFeed) subscriptionResponse {
	resp := subscriptionResponse{
		Title:       sub.Subscription.DisplayTitle(sub.Feed),
		Folder:      sub.Subscription.Folder,
		SortOrder:   sub.Subscription.SortOrder,
		UnreadCount: sub.UnreadCount,
		CreatedAt:   sub.Subscription.CreatedAt,
	}
	if sub.Feed != nil {
		resp.FeedID = sub.Feed.ID
		resp.FeedURL = sub.Feed.URL
		resp.Description = sub.Feed.Description
		resp.SiteURL = sub.Feed.SiteURL
		resp.ImageURL = sub.Feed.ImageURL
	}
	return resp
}
