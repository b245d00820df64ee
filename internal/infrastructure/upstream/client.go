// Package upstream 提供目录平台远程 API 客户端
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"directory-assistant-api/internal/config"
	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/pkg/errors"
	"directory-assistant-api/pkg/metrics"
)

var tracer = otel.Tracer("upstream")

// Client 目录平台 API 客户端，实现 repository.DirectoryAPI 和 repository.Streamer
type Client struct {
	baseURL           string
	apiKey            string
	httpClient        *http.Client
	streamClient      *http.Client
	streamIdleTimeout time.Duration
}

// NewClient 创建上游客户端
func NewClient(cfg *config.UpstreamConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		// 流式请求不能设置整体超时，空闲检测由 watchdog 处理
		streamClient:      &http.Client{},
		streamIdleTimeout: cfg.StreamIdleTimeout,
	}
}

// CreateThread 创建服务端线程
func (c *Client) CreateThread(ctx context.Context, creds entity.Credentials, threadID string) error {
	body := map[string]string{"threadId": threadID}
	return c.post(ctx, "create_thread", "/threads", creds, body, nil)
}

// GenerateTitle 为线程首个问题生成标题
func (c *Client) GenerateTitle(ctx context.Context, creds entity.Credentials, threadID, question string) error {
	body := map[string]string{"question": question}
	path := fmt.Sprintf("/threads/%s/title", threadID)
	return c.post(ctx, "generate_title", path, creds, body, nil)
}

// ListThreads 拉取访客的线程摘要列表
func (c *Client) ListThreads(ctx context.Context, creds entity.Credentials) ([]*entity.ThreadSummary, error) {
	var threads []*entity.ThreadSummary
	if err := c.get(ctx, "list_threads", "/threads", creds, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// GetThread 按需拉取完整线程内容
func (c *Client) GetThread(ctx context.Context, creds entity.Credentials, threadID string) (*entity.FullThread, error) {
	var thread entity.FullThread
	path := fmt.Sprintf("/threads/%s", threadID)
	if err := c.get(ctx, "get_thread", path, creds, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// post 发送 JSON POST 请求
func (c *Client) post(ctx context.Context, operation, path string, creds entity.Credentials, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "failed to encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, errors.CodeUpstreamError, "failed to build upstream request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(ctx, operation, req, creds, out)
}

// get 发送 GET 请求
func (c *Client) get(ctx context.Context, operation, path string, creds entity.Credentials, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeUpstreamError, "failed to build upstream request")
	}

	return c.do(ctx, operation, req, creds, out)
}

// do 执行请求并解析响应
func (c *Client) do(ctx context.Context, operation string, req *http.Request, creds entity.Credentials, out interface{}) error {
	ctx, span := tracer.Start(ctx, "upstream."+operation,
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.URL.Path),
		))
	defer span.End()

	c.authorize(req, creds)

	start := time.Now()
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	metrics.UpstreamRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		metrics.UpstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		return errors.Wrap(err, errors.CodeUpstreamError, "upstream request failed")
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	metrics.UpstreamRequestsTotal.WithLabelValues(operation, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotFound {
		return errors.ErrThreadNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.New(errors.CodeUpstreamError,
			fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, errors.CodeUpstreamError, "failed to decode upstream response")
	}
	return nil
}

// authorize 注入访客令牌与服务密钥
func (c *Client) authorize(req *http.Request, creds entity.Credentials) {
	if creds.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.AuthToken)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
