// Package ingest はアグリゲーターからのフィード取り込みを提供する。
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"

	"github.com/hitoshi/feednest/internal/aggregator"
	"github.com/hitoshi/feednest/internal/model"
	"github.com/hitoshi/feednest/internal/repository"
)

// Fetcher はアグリゲーターからのドキュメント取得のインターフェース。
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) (*aggregator.Document, error)
}

// Sanitizer はHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Recorder は取り込みメトリクス記録のインターフェース。
type Recorder interface {
	RecordIngestSuccess(feedURL string)
	RecordIngestFailure(feedURL string, reason string)
	RecordParseFailure(feedURL string)
	RecordIngestLatency(duration time.Duration)
	RecordItemsInserted(count int)
}

// Result は1回の取り込み結果。
type Result struct {
	Feed          *model.Feed
	ItemsTotal    int // アグリゲーターが返した記事数
	ItemsInserted int // 新規挿入された記事数
}

// Service はフィード取り込みサービス。
// アグリゲーターからのフェッチ、フィードのUpsert、記事の重複排除挿入を行う。
// 同一URLに対して何度実行しても結果が変わらない（冪等）。
type Service struct {
	fetcher   Fetcher
	feedRepo  repository.FeedRepository
	itemRepo  repository.ItemRepository
	sanitizer Sanitizer
	metrics   Recorder
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	fetcher Fetcher,
	feedRepo repository.FeedRepository,
	itemRepo repository.ItemRepository,
	sanitizer Sanitizer,
	metrics Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		fetcher:   fetcher,
		feedRepo:  feedRepo,
		itemRepo:  itemRepo,
		sanitizer: sanitizer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Ingest は指定URLのフィードをアグリゲーターから取得して保存する。
// フィード行はドキュメントのlink（無ければ取得元URL）をキーにUpsertされ、
// 記事は(feed_id, guid)で重複排除される。
// guidの無い記事はlinkをguidとして扱い、guidもlinkも無い記事はスキップされる。
func (s *Service) Ingest(ctx context.Context, feedURL string) (*Result, error) {
	start := time.Now()

	doc, err := s.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		var parseErr *aggregator.ParseError
		if errors.As(err, &parseErr) {
			s.metrics.RecordParseFailure(feedURL)
			s.logger.Warn("アグリゲーター応答の解析に失敗しました",
				slog.String("feed_url", feedURL),
				slog.String("error", err.Error()),
			)
			return nil, model.NewParseFailedError()
		}

		s.metrics.RecordIngestFailure(feedURL, "fetch")
		s.logger.Warn("アグリゲーターからの取得に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError(feedURL)
	}

	now := time.Now().UTC()

	// フィード行はドキュメントのlinkをキーにする。linkを返さないアグリゲーターでは
	// 取得元URLで代替する。
	feedKey := doc.Link
	if feedKey == "" {
		feedKey = feedURL
	}

	feed, err := s.feedRepo.Upsert(ctx, &model.Feed{
		ID:          uuid.New().String(),
		URL:         feedKey,
		Title:       feedTitle(doc, feedURL),
		Description: doc.Description,
		SiteURL:     doc.Link,
		ImageURL:    doc.Image,
		LastFetched: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		s.metrics.RecordIngestFailure(feedURL, "feed_upsert")
		return nil, err
	}

	items := s.convertItems(feed.ID, doc.Items, now)

	inserted, err := s.itemRepo.CreateBatch(ctx, items)
	if err != nil {
		s.metrics.RecordIngestFailure(feedURL, "item_insert")
		return nil, err
	}

	duration := time.Since(start)
	s.metrics.RecordIngestSuccess(feedURL)
	s.metrics.RecordIngestLatency(duration)
	s.metrics.RecordItemsInserted(inserted)

	s.logger.Info("フィードを取り込みました",
		slog.String("feed_id", feed.ID),
		slog.String("feed_url", feedURL),
		slog.Int("items_total", len(doc.Items)),
		slog.Int("items_inserted", inserted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return &Result{
		Feed:          feed,
		ItemsTotal:    len(doc.Items),
		ItemsInserted: inserted,
	}, nil
}

// convertItems はアグリゲーターの記事を保存用のモデルに変換する。
// guid優先でlinkにフォールバックし、どちらも無い記事は除外する。
// content/descriptionはサニタイズし、公開日時が解釈できない場合は取得時刻を使う。
func (s *Service) convertItems(feedID string, items []aggregator.Item, fetchedAt time.Time) []*model.FeedItem {
	converted := make([]*model.FeedItem, 0, len(items))

	for _, item := range items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			s.logger.Debug("guidもlinkも無い記事をスキップします",
				slog.String("feed_id", feedID),
				slog.String("title", item.Title),
			)
			continue
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}

		converted = append(converted, &model.FeedItem{
			ID:          uuid.New().String(),
			FeedID:      feedID,
			GUID:        guid,
			Title:       item.Title,
			Link:        item.Link,
			Description: s.sanitizer.Sanitize(item.Description),
			Content:     s.sanitizer.Sanitize(content),
			Author:      item.Author,
			Categories:  strings.Join(item.Category, ","),
			PublishedAt: parsePubDate(item.PubDate, fetchedAt),
			CreatedAt:   fetchedAt,
		})
	}

	return converted
}

// feedTitle はフィードのタイトルを決める。アグリゲーターが空を返した場合はURLで代替する。
func feedTitle(doc *aggregator.Document, feedURL string) string {
	if doc.Title != "" {
		return doc.Title
	}
	return feedURL
}

// parsePubDate は記事の公開日時文字列を解釈する。
// RFC1123やISO 8601など多様なフォーマットをdateparseで受け付け、
// 解釈できない・空の場合は取得時刻にフォールバックする。
func parsePubDate(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}

	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		return fallback
	}

	return parsed.UTC()
}
