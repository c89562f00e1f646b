package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolve(t *testing.T) {
	client := NewClient("https://rsshub.example.com", nil, nil, nil, 1<<20)

	tests := []struct {
		name    string
		feedURL string
		want    string
		wantErr bool
	}{
		{
			name:    "スラッシュ始まりのパスは基底URLに解決される",
			feedURL: "/zhihu/hotlist",
			want:    "https://rsshub.example.com/zhihu/hotlist",
		},
		{
			name:    "絶対URLはそのまま使われる",
			feedURL: "https://other.example.com/feed",
			want:    "https://other.example.com/feed",
		},
		{
			name:    "空のURLはエラー",
			feedURL: "",
			wantErr: true,
		},
		{
			name:    "未対応スキームはエラー",
			feedURL: "ftp://example.com/feed",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.Resolve(tt.feedURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Resolve(%q) expected error, got %q", tt.feedURL, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) returned error: %v", tt.feedURL, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.feedURL, got, tt.want)
			}
		})
	}
}

// TestResolve_TrailingSlashBase は基底URL末尾のスラッシュが二重にならないことを検証する。
func TestResolve_TrailingSlashBase(t *testing.T) {
	client := NewClient("https://rsshub.example.com/", nil, nil, nil, 1<<20)

	got, err := client.Resolve("/weibo/search/hot")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "https://rsshub.example.com/weibo/search/hot" {
		t.Errorf("Resolve = %q", got)
	}
}

// mockValidator はURLValidatorのテスト用実装。
type mockValidator struct {
	validateFunc func(rawURL string) error
}

func (m *mockValidator) ValidateURL(rawURL string) error {
	return m.validateFunc(rawURL)
}

// TestResolve_ValidatorRejectsAbsoluteURL はバリデーターが絶対URLを拒否できることを検証する。
func TestResolve_ValidatorRejectsAbsoluteURL(t *testing.T) {
	validator := &mockValidator{
		validateFunc: func(rawURL string) error {
			return errors.New("blocked host")
		},
	}
	client := NewClient("https://rsshub.example.com", nil, nil, validator, 1<<20)

	// 絶対URLはバリデーターを通す
	if _, err := client.Resolve("https://evil.example.com/feed"); err == nil {
		t.Error("expected validation error for absolute URL")
	}

	// 基底URLに対する相対パスはバリデーターを通さない
	if _, err := client.Resolve("/safe/path"); err != nil {
		t.Errorf("relative path should not be validated: %v", err)
	}
}

func TestFetch_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/zhihu/hotlist" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "Feednest/1.0 RSS Reader" {
			t.Errorf("User-Agent = %q", ua)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"title":       "知乎热榜",
			"link":        "https://www.zhihu.com/hot",
			"description": "知乎热榜说明",
			"image":       "https://example.com/logo.png",
			"items": []map[string]interface{}{
				{
					"title":    "記事1",
					"link":     "https://example.com/1",
					"guid":     "guid-1",
					"pubDate":  "Mon, 02 Jan 2006 15:04:05 GMT",
					"author":   "著者",
					"category": []string{"tech", "news"},
					"content":  "<p>本文</p>",
				},
			},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, ts.Client(), nil, nil, 1<<20)

	doc, err := client.Fetch(context.Background(), "/zhihu/hotlist")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if doc.Title != "知乎热榜" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.Image != "https://example.com/logo.png" {
		t.Errorf("Image = %q", doc.Image)
	}
	if len(doc.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(doc.Items))
	}

	item := doc.Items[0]
	if item.GUID != "guid-1" {
		t.Errorf("GUID = %q", item.GUID)
	}
	if len(item.Category) != 2 || item.Category[0] != "tech" {
		t.Errorf("Category = %v", item.Category)
	}
}

func TestFetch_Non2xxStatus_ReturnsFetchError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, ts.Client(), nil, nil, 1<<20)

	_, err := client.Fetch(context.Background(), "/broken/route")
	if err == nil {
		t.Fatal("expected error for 502 response")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fetchErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want %d", fetchErr.Status, http.StatusBadGateway)
	}
}

func TestFetch_NonJSONBody_ReturnsParseError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"></rss>`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, ts.Client(), nil, nil, 1<<20)

	_, err := client.Fetch(context.Background(), "/xml/route")
	if err == nil {
		t.Fatal("expected error for XML response")
	}

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestFetch_OversizedBody_ReturnsParseError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title": "`))
		for i := 0; i < 1024; i++ {
			w.Write([]byte("aaaaaaaaaa"))
		}
		w.Write([]byte(`"}`))
	}))
	defer ts.Close()

	// 応答サイズの上限を本文より小さく設定
	client := NewClient(ts.URL, ts.Client(), nil, nil, 128)

	_, err := client.Fetch(context.Background(), "/big/route")
	if err == nil {
		t.Fatal("expected error for oversized response")
	}

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestStringList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "配列", input: `["a","b"]`, want: []string{"a", "b"}},
		{name: "単一文字列", input: `"solo"`, want: []string{"solo"}},
		{name: "空文字列", input: `""`, want: nil},
		{name: "空配列", input: `[]`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StringList
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("Unmarshal(%q) returned error: %v", tt.input, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// blockingTransport はすべてのリクエストを拒否するRoundTripper。
type blockingTransport struct{}

func (blockingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("request blocked")
}

// TestFetch_ClientSelection は基底URL配下のパスが通常クライアントで、
// 絶対URLがSSRF防止用クライアントで取得されることを検証する。
func TestFetch_ClientSelection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"title": "フィード"})
	}))
	defer ts.Close()

	// SSRF防止側はすべて拒否する設定にして経路を区別する
	safe := &http.Client{Transport: blockingTransport{}}
	client := NewClient(ts.URL, ts.Client(), safe, nil, 1<<20)

	// 基底URL配下のパスは通常クライアントで取得できる
	doc, err := client.Fetch(context.Background(), "/zhihu/hotlist")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if doc.Title != "フィード" {
		t.Errorf("Title = %q", doc.Title)
	}

	// 絶対URLはSSRF防止用クライアントを通る
	if _, err := client.Fetch(context.Background(), ts.URL+"/zhihu/hotlist"); err == nil {
		t.Fatal("expected absolute URL to go through the safe client")
	}
}
