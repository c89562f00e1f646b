// Package item は記事の閲覧と既読・スター状態のドメインロジックを提供する。
package item

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/feednest/internal/model"
	"github.com/hitoshi/feednest/internal/repository"
)

// DefaultListLimit は一覧取得のデフォルト件数。
const DefaultListLimit = 50

// MaxListLimit は一覧取得の上限件数。
const MaxListLimit = 200

// Service は記事閲覧と状態管理のサービス層。
type Service struct {
	itemRepo       repository.ItemRepository
	subRepo        repository.SubscriptionRepository
	readStatusRepo repository.ReadStatusRepository
	logger         *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	itemRepo repository.ItemRepository,
	subRepo repository.SubscriptionRepository,
	readStatusRepo repository.ReadStatusRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		itemRepo:       itemRepo,
		subRepo:        subRepo,
		readStatusRepo: readStatusRepo,
		logger:         logger,
	}
}

// normalizeLimit は件数指定を有効範囲に丸める。
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// ListByFilter はフィルタに応じた記事一覧を返す。
// filter未指定はunread扱い。無効なフィルタはINVALID_FILTERを返す。
func (s *Service) ListByFilter(ctx context.Context, userID string, filter model.ItemFilter, limit int) ([]model.ItemWithState, error) {
	if filter == "" {
		filter = model.FilterUnread
	}
	if !filter.Valid() {
		return nil, model.NewInvalidFilterError(string(filter))
	}

	limit = normalizeLimit(limit)

	var (
		items []model.ItemWithState
		err   error
	)
	switch filter {
	case model.FilterUnread:
		items, err = s.itemRepo.ListUnread(ctx, userID, limit)
	case model.FilterStarred:
		items, err = s.itemRepo.ListStarred(ctx, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	return items, nil
}

// ListByFeed は購読中フィードの記事一覧をユーザーの状態付きで返す。
// 未購読のフィードはSUBSCRIPTION_NOT_FOUNDを返す。
func (s *Service) ListByFeed(ctx context.Context, userID, feedID string, limit int) ([]model.ItemWithState, error) {
	sub, err := s.subRepo.FindByUserAndFeed(ctx, userID, feedID)
	if err != nil {
		return nil, fmt.Errorf("購読の確認に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubscriptionNotFoundError(feedID)
	}

	items, err := s.itemRepo.ListByFeed(ctx, userID, feedID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	return items, nil
}

// Get は記事本文をユーザーの状態付きで返し、閲覧した記事を既読にする。
func (s *Service) Get(ctx context.Context, userID, itemID string) (*model.ItemWithState, error) {
	item, err := s.itemRepo.FindWithState(ctx, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}

	// 閲覧時に既読化する。失敗しても本文の返却は妨げない。
	if !item.IsRead {
		isRead := true
		if _, err := s.readStatusRepo.Upsert(ctx, userID, itemID, &isRead, nil); err != nil {
			s.logger.Warn("既読化に失敗しました",
				slog.String("user_id", userID),
				slog.String("item_id", itemID),
				slog.String("error", err.Error()),
			)
		} else {
			item.IsRead = true
		}
	}

	return item, nil
}

// ApplyState は記事の既読・スター状態を部分更新する。
// nilのフィールドは変更しない。冪等であり同じ変更を繰り返しても結果は変わらない。
func (s *Service) ApplyState(ctx context.Context, userID, itemID string, change *model.StateChange) (*model.ReadStatus, error) {
	if change == nil || (change.IsRead == nil && change.IsStarred == nil) {
		return nil, model.NewValidationError("更新する項目がありません。")
	}

	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}

	status, err := s.readStatusRepo.Upsert(ctx, userID, itemID, change.IsRead, change.IsStarred)
	if err != nil {
		return nil, fmt.Errorf("記事状態の更新に失敗しました: %w", err)
	}
	return status, nil
}

// ToggleStar は記事のスター状態を反転する。状態行が無い場合はスター付きで新規作成する。
// explicitが非nilの場合は反転せず、その値を直接設定する。
func (s *Service) ToggleStar(ctx context.Context, userID, itemID string, explicit *bool) (*model.ReadStatus, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}

	current, err := s.readStatusRepo.FindByUserAndItem(ctx, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("記事状態の取得に失敗しました: %w", err)
	}

	starred := true
	if explicit != nil {
		starred = *explicit
	} else if current != nil {
		starred = !current.IsStarred
	}

	status, err := s.readStatusRepo.Upsert(ctx, userID, itemID, nil, &starred)
	if err != nil {
		return nil, fmt.Errorf("記事状態の更新に失敗しました: %w", err)
	}
	return status, nil
}
