package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/feednest/internal/aggregator"
	"github.com/hitoshi/feednest/internal/model"
)

// --- モック ---

type mockFetcher struct {
	fetchFn func(ctx context.Context, feedURL string) (*aggregator.Document, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, feedURL string) (*aggregator.Document, error) {
	return m.fetchFn(ctx, feedURL)
}

type mockFeedRepo struct {
	upsertFn func(ctx context.Context, feed *model.Feed) (*model.Feed, error)
}

func (m *mockFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	return nil, nil
}
func (m *mockFeedRepo) FindByURL(ctx context.Context, url string) (*model.Feed, error) {
	return nil, nil
}
func (m *mockFeedRepo) Upsert(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
	return m.upsertFn(ctx, feed)
}

type mockItemRepo struct {
	createBatchFn func(ctx context.Context, items []*model.FeedItem) (int, error)
}

func (m *mockItemRepo) FindByID(ctx context.Context, id string) (*model.FeedItem, error) {
	return nil, nil
}
func (m *mockItemRepo) FindWithState(ctx context.Context, userID, itemID string) (*model.ItemWithState, error) {
	return nil, nil
}
func (m *mockItemRepo) CreateBatch(ctx context.Context, items []*model.FeedItem) (int, error) {
	return m.createBatchFn(ctx, items)
}
func (m *mockItemRepo) ListUnread(ctx context.Context, userID string, limit int) ([]model.ItemWithState, error) {
	return nil, nil
}
func (m *mockItemRepo) ListStarred(ctx context.Context, userID string, limit int) ([]model.ItemWithState, error) {
	return nil, nil
}
func (m *mockItemRepo) ListByFeed(ctx context.Context, userID, feedID string, limit int) ([]model.ItemWithState, error) {
	return nil, nil
}

// passthroughSanitizer は入力をそのまま返すサニタイザー。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(rawHTML string) string { return rawHTML }

// markingSanitizer はサニタイズ済みであることを確認するためのサニタイザー。
type markingSanitizer struct{}

func (markingSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return "sanitized:" + rawHTML
}

type noopMetrics struct{}

func (noopMetrics) RecordIngestSuccess(feedURL string)                {}
func (noopMetrics) RecordIngestFailure(feedURL string, reason string) {}
func (noopMetrics) RecordParseFailure(feedURL string)                 {}
func (noopMetrics) RecordIngestLatency(duration time.Duration)        {}
func (noopMetrics) RecordItemsInserted(count int)                     {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestService はテスト用のServiceを組み立てる。
func newTestService(fetcher Fetcher, feedRepo *mockFeedRepo, itemRepo *mockItemRepo) *Service {
	return NewService(fetcher, feedRepo, itemRepo, passthroughSanitizer{}, noopMetrics{}, discardLogger())
}

// --- テスト ---

func TestIngest_Success(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return &aggregator.Document{
				Title:       "テストフィード",
				Link:        "https://www.zhihu.com/hot",
				Description: "説明",
				Image:       "https://example.com/logo.png",
				Items: []aggregator.Item{
					{Title: "記事1", Link: "https://example.com/1", GUID: "guid-1", PubDate: "Mon, 02 Jan 2006 15:04:05 GMT"},
					{Title: "記事2", Link: "https://example.com/2", GUID: "guid-2", PubDate: "2024-05-01T12:00:00Z"},
				},
			}, nil
		},
	}

	var upserted *model.Feed
	feedRepo := &mockFeedRepo{
		upsertFn: func(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
			upserted = feed
			return feed, nil
		},
	}

	var batch []*model.FeedItem
	itemRepo := &mockItemRepo{
		createBatchFn: func(ctx context.Context, items []*model.FeedItem) (int, error) {
			batch = items
			return len(items), nil
		},
	}

	svc := newTestService(fetcher, feedRepo, itemRepo)

	result, err := svc.Ingest(context.Background(), "/zhihu/hotlist")
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if upserted == nil {
		t.Fatal("expected feed upsert to be called")
	}
	// フィード行はドキュメントのlinkをキーにする
	if upserted.URL != "https://www.zhihu.com/hot" {
		t.Errorf("feed URL = %q", upserted.URL)
	}
	if upserted.SiteURL != "https://www.zhihu.com/hot" {
		t.Errorf("feed SiteURL = %q", upserted.SiteURL)
	}
	if upserted.Title != "テストフィード" {
		t.Errorf("feed Title = %q", upserted.Title)
	}

	if len(batch) != 2 {
		t.Fatalf("len(batch) = %d, want 2", len(batch))
	}
	if result.ItemsTotal != 2 || result.ItemsInserted != 2 {
		t.Errorf("result = %+v", result)
	}

	// 公開日時が解釈されていること
	want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
	if !batch[0].PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", batch[0].PublishedAt, want)
	}
}

func TestIngest_MissingDocLink_KeyedBySourceURL(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return &aggregator.Document{Title: "リンク無しフィード"}, nil
		},
	}

	var upserted *model.Feed
	feedRepo := &mockFeedRepo{
		upsertFn: func(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
			upserted = feed
			return feed, nil
		},
	}

	svc := newTestService(fetcher, feedRepo, &mockItemRepo{})

	if _, err := svc.Ingest(context.Background(), "/weibo/search/hot"); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if upserted == nil {
		t.Fatal("expected feed upsert to be called")
	}
	if upserted.URL != "/weibo/search/hot" {
		t.Errorf("feed URL = %q, want source URL fallback", upserted.URL)
	}
	if upserted.SiteURL != "" {
		t.Errorf("feed SiteURL = %q, want empty", upserted.SiteURL)
	}
}

func TestIngest_GUIDFallsBackToLink(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return &aggregator.Document{
				Title: "Feed",
				Items: []aggregator.Item{
					{Title: "guidあり", GUID: "guid-1", Link: "https://example.com/1"},
					{Title: "guidなし", Link: "https://example.com/2"},
					{Title: "guidもlinkもなし"},
				},
			}, nil
		},
	}

	feedRepo := &mockFeedRepo{
		upsertFn: func(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
			return feed, nil
		},
	}

	var batch []*model.FeedItem
	itemRepo := &mockItemRepo{
		createBatchFn: func(ctx context.Context, items []*model.FeedItem) (int, error) {
			batch = items
			return len(items), nil
		},
	}

	svc := newTestService(fetcher, feedRepo, itemRepo)

	result, err := svc.Ingest(context.Background(), "/feed")
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	// guidもlinkも無い記事は除外される
	if len(batch) != 2 {
		t.Fatalf("len(batch) = %d, want 2", len(batch))
	}
	if batch[0].GUID != "guid-1" {
		t.Errorf("batch[0].GUID = %q", batch[0].GUID)
	}
	if batch[1].GUID != "https://example.com/2" {
		t.Errorf("batch[1].GUID = %q, want link fallback", batch[1].GUID)
	}
	if result.ItemsTotal != 3 {
		t.Errorf("ItemsTotal = %d, want 3", result.ItemsTotal)
	}
}

func TestIngest_ContentFallsBackToDescription(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return &aggregator.Document{
				Title: "Feed",
				Items: []aggregator.Item{
					{GUID: "g1", Content: "<p>本文</p>", Description: "<p>概要</p>"},
					{GUID: "g2", Description: "<p>概要のみ</p>"},
				},
			}, nil
		},
	}

	feedRepo := &mockFeedRepo{
		upsertFn: func(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
			return feed, nil
		},
	}

	var batch []*model.FeedItem
	itemRepo := &mockItemRepo{
		createBatchFn: func(ctx context.Context, items []*model.FeedItem) (int, error) {
			batch = items
			return len(items), nil
		},
	}

	svc := newTestService(fetcher, feedRepo, itemRepo)

	if _, err := svc.Ingest(context.Background(), "/feed"); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if batch[0].Content != "<p>本文</p>" {
		t.Errorf("batch[0].Content = %q", batch[0].Content)
	}
	if batch[1].Content != "<p>概要のみ</p>" {
		t.Errorf("batch[1].Content = %q, want description fallback", batch[1].Content)
	}
}

func TestIngest_SanitizesContentAndDescription(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return &aggregator.Document{
				Title: "Feed",
				Items: []aggregator.Item{
					{GUID: "g1", Content: "<p>raw</p>", Description: "<p>desc</p>"},
				},
			}, nil
		},
	}

	feedRepo := &mockFeedRepo{
		upsertFn: func(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
			return feed, nil
		},
	}

	var batch []*model.FeedItem
	itemRepo := &mockItemRepo{
		createBatchFn: func(ctx context.Context, items []*model.FeedItem) (int, error) {
			batch = items
			return len(items), nil
		},
	}

	svc := NewService(fetcher, feedRepo, itemRepo, markingSanitizer{}, noopMetrics{}, discardLogger())

	if _, err := svc.Ingest(context.Background(), "/feed"); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if batch[0].Content != "sanitized:<p>raw</p>" {
		t.Errorf("Content = %q, expected sanitized", batch[0].Content)
	}
	if batch[0].Description != "sanitized:<p>desc</p>" {
		t.Errorf("Description = %q, expected sanitized", batch[0].Description)
	}
}

func TestIngest_CategoriesJoinedWithComma(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return &aggregator.Document{
				Title: "Feed",
				Items: []aggregator.Item{
					{GUID: "g1", Category: aggregator.StringList{"tech", "news"}},
					{GUID: "g2"},
				},
			}, nil
		},
	}

	feedRepo := &mockFeedRepo{
		upsertFn: func(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
			return feed, nil
		},
	}

	var batch []*model.FeedItem
	itemRepo := &mockItemRepo{
		createBatchFn: func(ctx context.Context, items []*model.FeedItem) (int, error) {
			batch = items
			return len(items), nil
		},
	}

	svc := newTestService(fetcher, feedRepo, itemRepo)

	if _, err := svc.Ingest(context.Background(), "/feed"); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if batch[0].Categories != "tech,news" {
		t.Errorf("Categories = %q, want %q", batch[0].Categories, "tech,news")
	}
	if batch[1].Categories != "" {
		t.Errorf("Categories = %q, want empty", batch[1].Categories)
	}
}

func TestIngest_InvalidPubDate_FallsBackToFetchTime(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return &aggregator.Document{
				Title: "Feed",
				Items: []aggregator.Item{
					{GUID: "g1", PubDate: "not-a-date"},
					{GUID: "g2"},
				},
			}, nil
		},
	}

	feedRepo := &mockFeedRepo{
		upsertFn: func(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
			return feed, nil
		},
	}

	var batch []*model.FeedItem
	itemRepo := &mockItemRepo{
		createBatchFn: func(ctx context.Context, items []*model.FeedItem) (int, error) {
			batch = items
			return len(items), nil
		},
	}

	svc := newTestService(fetcher, feedRepo, itemRepo)

	before := time.Now().UTC()
	if _, err := svc.Ingest(context.Background(), "/feed"); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	after := time.Now().UTC()

	for i, item := range batch {
		if item.PublishedAt.Before(before) || item.PublishedAt.After(after) {
			t.Errorf("batch[%d].PublishedAt = %v, expected fetch-time fallback", i, item.PublishedAt)
		}
	}
}

func TestIngest_EmptyTitle_FallsBackToURL(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return &aggregator.Document{Title: ""}, nil
		},
	}

	var upserted *model.Feed
	feedRepo := &mockFeedRepo{
		upsertFn: func(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
			upserted = feed
			return feed, nil
		},
	}

	itemRepo := &mockItemRepo{
		createBatchFn: func(ctx context.Context, items []*model.FeedItem) (int, error) {
			return 0, nil
		},
	}

	svc := newTestService(fetcher, feedRepo, itemRepo)

	if _, err := svc.Ingest(context.Background(), "/untitled/feed"); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if upserted.Title != "/untitled/feed" {
		t.Errorf("Title = %q, want URL fallback", upserted.Title)
	}
}

func TestIngest_FetchFailure_ReturnsFetchFailedError(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return nil, &aggregator.FetchError{URL: feedURL, Status: 502}
		},
	}

	svc := newTestService(fetcher, &mockFeedRepo{}, &mockItemRepo{})

	_, err := svc.Ingest(context.Background(), "/broken")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeFetchFailed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeFetchFailed)
	}
}

func TestIngest_ParseFailure_ReturnsParseFailedError(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return nil, &aggregator.ParseError{URL: feedURL, Err: errors.New("invalid json")}
		},
	}

	svc := newTestService(fetcher, &mockFeedRepo{}, &mockItemRepo{})

	_, err := svc.Ingest(context.Background(), "/xml-feed")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeParseFailed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeParseFailed)
	}
}

// TestIngest_Idempotent は同一ドキュメントの再取り込みで新規挿入が0件になることを検証する。
func TestIngest_Idempotent(t *testing.T) {
	doc := &aggregator.Document{
		Title: "Feed",
		Items: []aggregator.Item{
			{GUID: "g1", Title: "記事1"},
			{GUID: "g2", Title: "記事2"},
		},
	}
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, feedURL string) (*aggregator.Document, error) {
			return doc, nil
		},
	}

	feedRepo := &mockFeedRepo{
		upsertFn: func(ctx context.Context, feed *model.Feed) (*model.Feed, error) {
			return feed, nil
		},
	}

	// 2回目の呼び出しでは全件が既存扱い
	call := 0
	itemRepo := &mockItemRepo{
		createBatchFn: func(ctx context.Context, items []*model.FeedItem) (int, error) {
			call++
			if call == 1 {
				return len(items), nil
			}
			return 0, nil
		},
	}

	svc := newTestService(fetcher, feedRepo, itemRepo)

	first, err := svc.Ingest(context.Background(), "/feed")
	if err != nil {
		t.Fatalf("first Ingest returned error: %v", err)
	}
	second, err := svc.Ingest(context.Background(), "/feed")
	if err != nil {
		t.Fatalf("second Ingest returned error: %v", err)
	}

	if first.ItemsInserted != 2 {
		t.Errorf("first ItemsInserted = %d, want 2", first.ItemsInserted)
	}
	if second.ItemsInserted != 0 {
		t.Errorf("second ItemsInserted = %d, want 0", second.ItemsInserted)
	}
}
