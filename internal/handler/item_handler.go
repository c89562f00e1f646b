package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feednest/internal/middleware"
	"github.com/hitoshi/feednest/internal/model"
)

// ItemServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ItemServiceInterface interface {
	ListByFilter(ctx context.Context, userID string, filter model.ItemFilter, limit int) ([]model.ItemWithState, error)
	ListByFeed(ctx context.Context, userID, feedID string, limit int) ([]model.ItemWithState, error)
	Get(ctx context.Context, userID, itemID string) (*model.ItemWithState, error)
	ApplyState(ctx context.Context, userID, itemID string, change *model.StateChange) (*model.ReadStatus, error)
	ToggleStar(ctx context.Context, userID, itemID string, explicit *bool) (*model.ReadStatus, error)
}

// ItemHandler は記事閲覧・状態管理のHTTPハンドラー。
type ItemHandler struct {
	service ItemServiceInterface
}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler(service ItemServiceInterface) *ItemHandler {
	return &ItemHandler{
		service: service,
	}
}

// itemSummaryResponse は記事一覧用のAPIレスポンス。本文は含まない。
type itemSummaryResponse struct {
	ID          string    `json:"id"`
	FeedID      string    `json:"feed_id"`
	FeedTitle   string    `json:"feed_title"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	IsRead      bool      `json:"is_read"`
	IsStarred   bool      `json:"is_starred"`
}

// itemDetailResponse は記事詳細用のAPIレスポンス。本文を含む。
type itemDetailResponse struct {
	itemSummaryResponse
	Content    string `json:"content,omitempty"`
	Categories string `json:"categories,omitempty"`
}

// stateChangeRequest は記事状態更新リクエストのボディ。
// {action: "read"|"star"} 形式と {isRead?, isStarred?} 形式の両方を受け付ける。
// フィールド形式ではcamelCaseとsnake_caseのどちらのキーでも指定でき、
// 含まれないフィールドは変更されない。
type stateChangeRequest struct {
	Action         string `json:"action,omitempty"`
	IsRead         *bool  `json:"isRead,omitempty"`
	IsStarred      *bool  `json:"isStarred,omitempty"`
	IsReadSnake    *bool  `json:"is_read,omitempty"`
	IsStarredSnake *bool  `json:"is_starred,omitempty"`
}

// isRead はキー表記に関わらず指定された既読フラグを返す。camelCase優先。
func (r *stateChangeRequest) isRead() *bool {
	if r.IsRead != nil {
		return r.IsRead
	}
	return r.IsReadSnake
}

// isStarred はキー表記に関わらず指定されたスターフラグを返す。camelCase優先。
func (r *stateChangeRequest) isStarred() *bool {
	if r.IsStarred != nil {
		return r.IsStarred
	}
	return r.IsStarredSnake
}

// toggleStarRequest はスター操作リクエストのボディ。
// starred未指定（ボディ無しを含む）なら現在値を反転する。
type toggleStarRequest struct {
	Starred *bool `json:"starred,omitempty"`
}

// readStatusResponse は記事状態のAPIレスポンス。
type readStatusResponse struct {
	ItemID    string `json:"item_id"`
	IsRead    bool   `json:"is_read"`
	IsStarred bool   `json:"is_starred"`
}

// List はフィルタに応じた記事一覧を返す。
// GET /items?filter=unread|starred&limit=N
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	filter := model.ItemFilter(r.URL.Query().Get("filter"))
	limit := parseLimit(r.URL.Query().Get("limit"))

	items, err := h.service.ListByFilter(r.Context(), userID, filter, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeItemList(w, items)
}

// Get は記事本文を返す。閲覧した記事は既読になる。
// GET /items/:itemID
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	itemID := chi.URLParam(r, "itemID")

	item, err := h.service.Get(r.Context(), userID, itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(itemDetailResponse{
		itemSummaryResponse: toItemSummaryResponse(item),
		Content:             item.Item.Content,
		Categories:          item.Item.Categories,
	})
}

// UpdateState は記事の既読・スター状態を部分更新する。
// PATCH /items/:itemID
func (h *ItemHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	itemID := chi.URLParam(r, "itemID")

	var req stateChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました。"))
		return
	}

	var status *model.ReadStatus
	switch req.Action {
	case "read":
		isRead := true
		status, err = h.service.ApplyState(r.Context(), userID, itemID, &model.StateChange{
			IsRead: &isRead,
		})
	case "star":
		status, err = h.service.ToggleStar(r.Context(), userID, itemID, nil)
	case "":
		status, err = h.service.ApplyState(r.Context(), userID, itemID, &model.StateChange{
			IsRead:    req.isRead(),
			IsStarred: req.isStarred(),
		})
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("不明なactionです。"))
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeReadStatus(w, status)
}

// ToggleStar は記事のスター状態を反転する。ボディでstarredを指定すると直接設定になる。
// POST /items/:itemID/star
func (h *ItemHandler) ToggleStar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	itemID := chi.URLParam(r, "itemID")

	// ボディは省略可能
	var req toggleStarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました。"))
		return
	}

	status, err := h.service.ToggleStar(r.Context(), userID, itemID, req.Starred)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeReadStatus(w, status)
}

// --- ヘルパー関数 ---

// parseLimit はクエリパラメータのlimitを解釈する。不正値は0（デフォルト扱い）になる。
func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func writeItemList(w http.ResponseWriter, items []model.ItemWithState) {
	results := make([]itemSummaryResponse, len(items))
	for i := range items {
		results[i] = toItemSummaryResponse(&items[i])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

func writeReadStatus(w http.ResponseWriter, status *model.ReadStatus) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(readStatusResponse{
		ItemID:    status.FeedItemID,
		IsRead:    status.IsRead,
		IsStarred: status.IsStarred,
	})
}

// toItemSummaryResponse はドメインの記事情報をAPIレスポンスに変換する。
func toItemSummaryResponse(item *model.ItemWithState) itemSummaryResponse {
	return itemSummaryResponse{
		ID:          item.Item.ID,
		FeedID:      item.Item.FeedID,
		FeedTitle:   item.FeedTitle,
		Title:       item.Item.Title,
		Link:        item.Item.Link,
		Description: item.Item.Description,
		Author:      item.Item.Author,
		PublishedAt: item.Item.PublishedAt,
		IsRead:      item.IsRead,
		IsStarred:   item.IsStarred,
	}
}
