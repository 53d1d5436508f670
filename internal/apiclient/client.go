// Package apiclient はバックエンドREST APIを呼び出す共有HTTPクライアントを提供する。
// すべてのドメインサービスはこのクライアントを経由してバックエンドにアクセスする。
// 認証切れ（401）を受けた場合は認証情報を破棄し、無効化イベントを1回だけ発行する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/blogclient/internal/metrics"
	"github.com/hitoshi/blogclient/internal/model"
)

const (
	// maxResponseSize はレスポンスボディの最大読み取りサイズ（10MB）。
	maxResponseSize = 10 * 1024 * 1024
	// userAgent はバックエンドへ送るUser-Agent。
	userAgent = "blogclient/1.0"
)

// TokenSource はリクエストに付与するアクセストークンを提供する。
// credential.Store が実装する。
type TokenSource interface {
	AccessToken() (string, bool)
	StoredAccessToken() string
	ClearIfCurrent(token string) bool
}

// Invalidation は401応答によって認証情報が破棄されたことを表すイベント。
type Invalidation struct {
	Method string
	Path   string
	At     time.Time
}

// Config はClientの設定。
type Config struct {
	BaseURL   string
	RateLimit float64 // req/sec。0以下の場合は制限しない
	RateBurst int
}

// Client はバックエンドREST APIのクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
	logger     *slog.Logger

	mu        sync.RWMutex
	listeners []func(Invalidation)
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, tokens TokenSource, cfg Config, m metrics.MetricsCollector, logger *slog.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:     tokens,
		limiter:    limiter,
		metrics:    m,
		logger:     logger,
	}
}

// OnUnauthorized は無効化イベントのリスナーを登録する。
// リスナーは失敗したリクエストが呼び出し元に返る前に同期的に呼ばれる。
func (c *Client) OnUnauthorized(fn func(Invalidation)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// BaseURL はバックエンドのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOption はリクエスト単位のオプション。
type RequestOption func(*requestOptions)

type requestOptions struct {
	query            url.Values
	skipInvalidation bool
}

// WithQuery はクエリパラメータを付与する。
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for k, vs := range q {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

// WithPage はpage/pageSizeのクエリパラメータを付与する。
// ゼロ値はpage=1とdefaultSizeで補完する。
func WithPage(page model.Page, defaultSize int) RequestOption {
	page = page.Normalize(defaultSize)
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		o.query.Set("page", strconv.Itoa(page.Number))
		o.query.Set("pageSize", strconv.Itoa(page.Size))
	}
}

// WithoutAuthInvalidation は401応答を受けても認証情報を破棄しない。
// ログイン・登録・ログアウトなど、401が想定内の応答であるエンドポイントで使う。
func WithoutAuthInvalidation() RequestOption {
	return func(o *requestOptions) {
		o.skipInvalidation = true
	}
}

// Get はGETリクエストを送信し、レスポンスをoutにデコードする。
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post はPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Put はPUTリクエストを送信する。
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

// Delete はDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do はJSONリクエストを送信する。bodyがnilの場合はボディなしで送信する。
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, reader, contentType, out, opts...)
}

// Upload はmultipart/form-dataでファイルを送信する。
func (c *Client) Upload(ctx context.Context, path, field, filename string, content io.Reader, out any, opts ...RequestOption) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("failed to write multipart content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return c.send(ctx, http.MethodPost, path, &buf, mw.FormDataContentType(), out, opts...)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string, out any, opts ...RequestOption) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return model.NewTransportError(err.Error())
	}

	reqURL := c.baseURL + path
	if len(o.query) > 0 {
		reqURL += "?" + o.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	token, hasToken := c.tokens.AccessToken()
	if hasToken {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordTransportFailure(method)
		c.logger.Error("backend request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("request canceled: %w", err)
		}
		return model.NewTransportError(err.Error())
	}
	defer resp.Body.Close()

	c.metrics.RecordAPIRequest(method, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Error("failed to read response body",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewTransportError(err.Error())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			c.logger.Error("failed to decode response body",
				slog.String("method", method),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return model.NewBackendError(resp.StatusCode, "レスポンスの形式が不正です。")
		}
		return nil
	}

	c.logger.Warn("backend returned error status",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("http_status", resp.StatusCode),
	)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if !o.skipInvalidation {
			used := token
			if !hasToken {
				used = c.tokens.StoredAccessToken()
			}
			c.invalidate(used, method, path)
		}
		apiErr := model.NewUnauthorizedError()
		if msg := errorMessage(data); msg != "" && o.skipInvalidation {
			apiErr.Message = msg
		}
		return apiErr
	case http.StatusForbidden:
		return model.NewForbiddenError(orDefault(errorMessage(data), "この操作は許可されていません。"))
	case http.StatusNotFound:
		return model.NewNotFoundError("リソース", path)
	default:
		return model.NewBackendError(resp.StatusCode, errorMessage(data))
	}
}

// invalidate は認証情報を破棄し、破棄できた場合のみリスナーへ通知する。
// 同じ認証情報で並行に受けた複数の401からは1回だけ通知される。
func (c *Client) invalidate(token, method, path string) {
	if !c.tokens.ClearIfCurrent(token) {
		return
	}

	c.metrics.RecordAuthInvalidation()
	c.logger.Info("credential invalidated by unauthorized response",
		slog.String("method", method),
		slog.String("path", path),
	)

	c.mu.RLock()
	listeners := append([]func(Invalidation){}, c.listeners...)
	c.mu.RUnlock()

	ev := Invalidation{Method: method, Path: path, At: time.Now()}
	for _, fn := range listeners {
		fn(ev)
	}
}

// errorBody はバックエンドのエラーレスポンスの代表的な形。
type errorBody struct {
	Message string          `json:"message"`
	Title   string          `json:"title"`
	Errors  json.RawMessage `json:"errors"`
}

// errorMessage はエラーレスポンスからユーザー向けメッセージを取り出す。
func errorMessage(data []byte) string {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	if msgs := flattenErrors(body.Errors); len(msgs) > 0 {
		return strings.Join(msgs, " ")
	}
	return body.Title
}

// flattenErrors は配列形式とフィールド別マップ形式の両方のerrorsを平坦化する。
func flattenErrors(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var byField map[string][]string
	if err := json.Unmarshal(raw, &byField); err != nil {
		return nil
	}
	keys := make([]string, 0, len(byField))
	for k := range byField {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		out = append(out, byField[k]...)
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// PathEscape はパスセグメントをエスケープする。
func PathEscape(segment string) string {
	return url.PathEscape(segment)
}
