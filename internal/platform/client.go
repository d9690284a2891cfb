// Package platform はホスティングプラットフォーム（認証・データ・ストレージを
// 提供する外部サービス）のクライアントSDKを提供する。
// 本アプリケーションの永続データはすべてこのプラットフォーム側にあり、
// ここが唯一の外部境界となる。
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/minato/clinicport/internal/model"
)

// MetricsRecorder はプラットフォーム呼び出しのメトリクス記録インターフェース。
// nilを渡した場合は記録しない。
type MetricsRecorder interface {
	// RecordPlatformStatus はプラットフォームAPIのHTTPステータスコードを記録する。
	RecordPlatformStatus(statusCode int)
	// RecordPlatformLatency はプラットフォームAPI呼び出しのレイテンシを記録する。
	RecordPlatformLatency(duration time.Duration)
}

// Client はプラットフォームAPIの共通HTTPクライアント。
// 認証API・テーブルAPI・ストレージAPIの各クライアントから共有される。
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    MetricsRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはsecurity.OutboundGuardServiceが生成するSSRF防止付きクライアントを
// 渡すことを想定している。metricsはnil可。
func NewClient(baseURL, anonKey string, httpClient *http.Client, logger *slog.Logger, metrics MetricsRecorder) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
	}
}

// platformError はプラットフォームAPIのエラーレスポンスボディを表す。
// 認証APIとテーブルAPIでフィールド名が異なるため、両方を受ける。
type platformError struct {
	Code             string `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
}

// reason はエラーレスポンスから人間可読な理由を1つ取り出す。
func (e *platformError) reason() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.ErrorCode, e.Code} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}

// do はプラットフォームAPIへのHTTPリクエストを実行する。
// apikeyヘッダーを常に付与し、accessTokenが空でない場合はBearerトークンを付与する。
// 通信エラーはNETWORK_ERRORにマッピングして返す。
// レスポンスボディとステータスコードを返し、ステータスの解釈は呼び出し元が行う。
func (c *Client) do(ctx context.Context, method, path, accessToken string, headers map[string]string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build platform request: %w", err)
	}

	req.Header.Set("apikey", c.anonKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordPlatformLatency(duration)
	}

	if err != nil {
		c.logger.Error("プラットフォームAPIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, 0, model.NewNetworkError("接続できませんでした")
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordPlatformStatus(resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, model.NewNetworkError("レスポンスの読み取りに失敗しました")
	}

	return respBody, resp.StatusCode, nil
}

// doJSON はJSONボディ付きリクエストを実行する。
func (c *Client) doJSON(ctx context.Context, method, path, accessToken string, headers map[string]string, payload interface{}) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers["Content-Type"]; !ok && payload != nil {
		headers["Content-Type"] = "application/json"
	}

	return c.do(ctx, method, path, accessToken, headers, body)
}

// decodeError はエラーレスポンスボディをplatformErrorにデコードする。
// デコードできない場合はゼロ値を返す（reasonが"unknown error"になる）。
func decodeError(body []byte) *platformError {
	perr := &platformError{}
	_ = json.Unmarshal(body, perr)
	return perr
}
