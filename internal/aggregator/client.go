// Package aggregator はフィードアグリゲーターのJSON APIクライアントを提供する。
//
// アグリゲーターはRSSHub互換のエンドポイントを想定しており、
// フィードのメタデータと記事一覧を単一のJSONドキュメントとして返す。
// 本体側ではXML/Atomのパースは行わず、JSON以外の応答はすべて解析エラーとして扱う。
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// userAgent はアグリゲーターへのリクエストで送信するUser-Agent。
const userAgent = "Feednest/1.0 RSS Reader"

// Document はアグリゲーターが返すフィードドキュメント。
type Document struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Items       []Item `json:"items"`
}

// Item はアグリゲーターが返す個々の記事。
type Item struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Description string     `json:"description"`
	Content     string     `json:"content"`
	PubDate     string     `json:"pubDate"`
	GUID        string     `json:"guid"`
	Author      string     `json:"author"`
	Category    StringList `json:"category"`
}

// StringList は単一文字列と文字列配列の両方を受け付けるJSONフィールド。
// アグリゲーターはカテゴリを配列で返すが、経路によっては単一文字列のこともある。
type StringList []string

// UnmarshalJSON はstring / []string のどちらの形式もStringListに取り込む。
func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*s = nil
		} else {
			*s = StringList{single}
		}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = StringList(list)
	return nil
}

// FetchError はアグリゲーターへのリクエスト自体の失敗を表す。
type FetchError struct {
	URL    string
	Status int
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("aggregator fetch failed: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("aggregator fetch failed: %s: status %d", e.URL, e.Status)
}

// Unwrap はラップされたエラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError はアグリゲーター応答がJSONとして解釈できない場合を表す。
type ParseError struct {
	URL string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *ParseError) Error() string {
	return fmt.Sprintf("aggregator response parse failed: %s: %v", e.URL, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *ParseError) Unwrap() error {
	return e.Err
}

// URLValidator は絶対URLの事前検証のインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Client はアグリゲーターのHTTPクライアント。
//
// 基底URL配下に解決されるパスは運用者が設定した信頼済みのアグリゲーター宛のため
// 通常のプールされたクライアントで取得し、ユーザー指定の絶対URLのみ
// SSRF防止付きクライアントで取得する。これにより自前ホストした
// プライベートアドレス上のアグリゲーターもそのまま利用できる。
type Client struct {
	baseURL    string
	baseClient *http.Client // 基底URL配下のパス用
	safeClient *http.Client // ユーザー指定の絶対URL用
	validator  URLValidator
	maxSize    int64
}

// NewClient はClientを生成する。
// baseURLは "/" 始まりのフィードパスを解決する基底URL。
// safeClientとvalidatorは絶対URL指定時のSSRF防止に使用する
// （それぞれnilの場合はbaseClientでの取得・検証なしになる）。
func NewClient(baseURL string, baseClient, safeClient *http.Client, validator URLValidator, maxSize int64) *Client {
	if baseClient == nil {
		baseClient = &http.Client{Timeout: 10 * time.Second}
	}
	if safeClient == nil {
		safeClient = baseClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		baseClient: baseClient,
		safeClient: safeClient,
		validator:  validator,
		maxSize:    maxSize,
	}
}

// Resolve はフィードURLをリクエスト先の絶対URLに解決する。
// "/" 始まりのパスは基底URLに対して解決し、それ以外はそのまま絶対URLとして扱う。
func (c *Client) Resolve(feedURL string) (string, error) {
	if feedURL == "" {
		return "", fmt.Errorf("empty feed URL")
	}

	if strings.HasPrefix(feedURL, "/") {
		return c.baseURL + feedURL, nil
	}

	parsed, err := url.Parse(feedURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", parsed.Scheme)
	}

	if c.validator != nil {
		if err := c.validator.ValidateURL(feedURL); err != nil {
			return "", fmt.Errorf("URL validation failed: %w", err)
		}
	}

	return feedURL, nil
}

// Fetch はフィードURLに対応するドキュメントをアグリゲーターから取得する。
// リクエスト失敗・非2xx応答は*FetchError、JSON解析失敗は*ParseErrorを返す。
func (c *Client) Fetch(ctx context.Context, feedURL string) (*Document, error) {
	target, err := c.Resolve(feedURL)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}

	// 基底URLに解決されたパスは信頼済み、絶対URLはSSRF防止付きで取得する
	httpClient := c.safeClient
	if strings.HasPrefix(feedURL, "/") {
		httpClient = c.baseClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: target, Status: resp.StatusCode}
	}

	// 過大応答の防止。maxSizeを超えた時点でJSONが途切れ、ParseErrorになる。
	body := io.LimitReader(resp.Body, c.maxSize)

	doc := &Document{}
	if err := json.NewDecoder(body).Decode(doc); err != nil {
		return nil, &ParseError{URL: target, Err: err}
	}

	return doc, nil
}
