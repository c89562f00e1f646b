// Package subscription は購読管理のドメインロジックを提供する。
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feednest/internal/ingest"
	"github.com/hitoshi/feednest/internal/model"
	"github.com/hitoshi/feednest/internal/repository"
)

// Ingester はフィードの取り込みを行うインターフェース。
type Ingester interface {
	Ingest(ctx context.Context, feedURL string) (*ingest.Result, error)
}

// UnreadCounter はユーザーごとのフィード未読数を数えるインターフェース。
type UnreadCounter interface {
	CountUnreadByFeed(ctx context.Context, userID, feedID string) (int, error)
}

// Service は購読管理のサービス層。
// 購読追加、一覧取得、設定更新、購読解除のビジネスロジックを提供する。
type Service struct {
	ingester      Ingester
	subRepo       repository.SubscriptionRepository
	feedRepo      repository.FeedRepository
	unreadCounter UnreadCounter
	logger        *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	ingester Ingester,
	subRepo repository.SubscriptionRepository,
	feedRepo repository.FeedRepository,
	unreadCounter UnreadCounter,
	logger *slog.Logger,
) *Service {
	return &Service{
		ingester:      ingester,
		subRepo:       subRepo,
		feedRepo:      feedRepo,
		unreadCounter: unreadCounter,
		logger:        logger,
	}
}

// Subscribe はフィードを取り込んだうえでユーザーの購読を作成する。
// 取り込みに成功したフィードを既に購読している場合はDUPLICATE_SUBSCRIPTIONを返す。
// フォルダ未指定の場合はデフォルトフォルダに配置される。
func (s *Service) Subscribe(ctx context.Context, userID, feedURL, customTitle, folder string) (*model.SubscriptionWithFeed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, model.NewValidationError("フィードURLは必須です。")
	}

	// 購読作成の前にフィードを取り込む。取り込み失敗時は購読を作成しない。
	result, err := s.ingester.Ingest(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	feed := result.Feed

	existing, err := s.subRepo.FindByUserAndFeed(ctx, userID, feed.ID)
	if err != nil {
		return nil, fmt.Errorf("購読の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateSubscriptionError()
	}

	if folder == "" {
		folder = model.DefaultFolder
	}

	now := time.Now().UTC()
	sub := &model.Subscription{
		ID:          uuid.New().String(),
		UserID:      userID,
		FeedID:      feed.ID,
		CustomTitle: customTitle,
		Folder:      folder,
		SortOrder:   0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		// 並行リクエストがユニーク制約で衝突した場合も重複購読として扱う
		if repository.IsUniqueViolation(err) {
			return nil, model.NewDuplicateSubscriptionError()
		}
		return nil, fmt.Errorf("購読の作成に失敗しました: %w", err)
	}

	s.logger.Info("購読を作成しました",
		slog.String("user_id", userID),
		slog.String("feed_id", feed.ID),
		slog.String("feed_url", feed.URL),
		slog.Int("items_inserted", result.ItemsInserted),
	)

	// 既に取り込み済みのフィードを購読した場合も正しい未読数を返すため、
	// 今回の挿入件数ではなく記事テーブルから数える
	unread, err := s.unreadCounter.CountUnreadByFeed(ctx, userID, feed.ID)
	if err != nil {
		s.logger.Warn("未読数の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		unread = result.ItemsInserted
	}

	return &model.SubscriptionWithFeed{
		Subscription: sub,
		Feed:         feed,
		UnreadCount:  unread,
	}, nil
}

// List はユーザーの購読一覧をフィード情報と未読数付きで返す。
// フォルダ昇順、表示順昇順で並ぶ。
func (s *Service) List(ctx context.Context, userID string) ([]model.SubscriptionWithFeed, error) {
	subs, err := s.subRepo.ListByUserIDWithFeed(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	return subs, nil
}

// Get はユーザーの指定フィードの購読情報をフィード情報付きで返す。
// 未購読の場合はSubscriptionNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, userID, feedID string) (*model.SubscriptionWithFeed, error) {
	sub, err := s.subRepo.FindByUserAndFeed(ctx, userID, feedID)
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubscriptionNotFoundError(feedID)
	}

	feed, err := s.feedRepo.FindByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if feed == nil {
		return nil, model.NewSubscriptionNotFoundError(feedID)
	}

	return &model.SubscriptionWithFeed{
		Subscription: sub,
		Feed:         feed,
	}, nil
}

// Update は購読の表示設定（カスタムタイトル、フォルダ、表示順）を部分更新する。
// nilのフィールドは変更しない。
func (s *Service) Update(ctx context.Context, userID, feedID string, update *model.SubscriptionUpdate) (*model.Subscription, error) {
	if update == nil || (update.CustomTitle == nil && update.Folder == nil && update.SortOrder == nil) {
		return nil, model.NewValidationError("更新する項目がありません。")
	}

	affected, err := s.subRepo.UpdatePartial(ctx, userID, feedID, update)
	if err != nil {
		return nil, fmt.Errorf("購読の更新に失敗しました: %w", err)
	}
	if affected == 0 {
		return nil, model.NewSubscriptionNotFoundError(feedID)
	}

	sub, err := s.subRepo.FindByUserAndFeed(ctx, userID, feedID)
	if err != nil {
		return nil, fmt.Errorf("購読の再取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubscriptionNotFoundError(feedID)
	}
	return sub, nil
}

// Unsubscribe はユーザーの指定フィード購読を解除する。
// 記事状態は削除せず、再購読時に既読・スターが復元される。
func (s *Service) Unsubscribe(ctx context.Context, userID, feedID string) error {
	affected, err := s.subRepo.Delete(ctx, userID, feedID)
	if err != nil {
		return fmt.Errorf("購読の削除に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewSubscriptionNotFoundError(feedID)
	}

	s.logger.Info("購読を解除しました",
		slog.String("user_id", userID),
		slog.String("feed_id", feedID),
	)
	return nil
}

// Refresh は購読中フィードを再取り込みし、新規記事件数を返す。
func (s *Service) Refresh(ctx context.Context, userID, feedID string) (*ingest.Result, error) {
	sub, err := s.subRepo.FindByUserAndFeed(ctx, userID, feedID)
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubscriptionNotFoundError(feedID)
	}

	feed, err := s.feedRepo.FindByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if feed == nil {
		return nil, model.NewSubscriptionNotFoundError(feedID)
	}

	return s.ingester.Ingest(ctx, feed.URL)
}
