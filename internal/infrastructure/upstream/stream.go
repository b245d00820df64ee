// Package upstream 提供流式问答客户端
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/internal/domain/repository"
	"directory-assistant-api/pkg/errors"
	"directory-assistant-api/pkg/logger"
	"directory-assistant-api/pkg/metrics"
)

// Start 打开一次流式问答
// 上游以 SSE 帧下发同一个结构化对象的渐进快照，流关闭即结束
func (c *Client) Start(ctx context.Context, creds entity.Credentials, chatReq repository.ChatRequest) (repository.StreamHandle, error) {
	ctx, span := tracer.Start(ctx, "upstream.chat_stream",
		trace.WithAttributes(
			attribute.String("chat.thread_id", chatReq.ThreadID),
			attribute.String("chat.chat_id", chatReq.ChatID),
		))

	payload, err := json.Marshal(chatReq)
	if err != nil {
		span.End()
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "failed to encode chat request")
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(payload))
	if err != nil {
		cancel()
		span.End()
		return nil, errors.Wrap(err, errors.CodeUpstreamError, "failed to build stream request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req, creds)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		span.RecordError(err)
		span.End()
		metrics.UpstreamRequestsTotal.WithLabelValues("chat_stream", "error").Inc()
		return nil, errors.Wrap(err, errors.CodeStreamFailed, "failed to open answer stream")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		span.End()
		metrics.UpstreamRequestsTotal.WithLabelValues("chat_stream", fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return nil, errors.New(errors.CodeStreamFailed,
			fmt.Sprintf("answer stream rejected with %d: %s", resp.StatusCode, string(msg)))
	}

	metrics.UpstreamRequestsTotal.WithLabelValues("chat_stream", fmt.Sprintf("%d", resp.StatusCode)).Inc()
	metrics.ActiveStreams.Inc()

	h := &streamHandle{
		ch:     make(chan entity.AnswerSnapshot),
		ctx:    streamCtx,
		cancel: cancel,
	}

	go h.consume(resp.Body, span, c.streamIdleTimeout)

	return h, nil
}

// streamHandle 流式问答句柄
// 消费 goroutine 先写入 err 再关闭 ch，通道关闭对读方构成同步点，
// 因此 Err 只保证在通道关闭后可读
type streamHandle struct {
	ch     chan entity.AnswerSnapshot
	ctx    context.Context
	cancel context.CancelFunc
	err    error
}

// Snapshots 返回结构化快照序列
func (h *streamHandle) Snapshots() <-chan entity.AnswerSnapshot {
	return h.ch
}

// Err 返回终止原因，取消与正常结束均为 nil
func (h *streamHandle) Err() error {
	return h.err
}

// Cancel 中止底层传输，可重复调用
func (h *streamHandle) Cancel() {
	h.cancel()
}

// consume 读取 SSE 帧并转发快照，结束时封存终态
func (h *streamHandle) consume(body io.ReadCloser, span trace.Span, idleTimeout time.Duration) {
	start := time.Now()
	outcome := "completed"

	// 空闲看门狗：两帧之间超过上限视为断流
	var idle *time.Timer
	var idleFired atomic.Bool
	if idleTimeout > 0 {
		idle = time.AfterFunc(idleTimeout, func() {
			idleFired.Store(true)
			h.cancel()
		})
	}

	defer func() {
		if idle != nil {
			idle.Stop()
		}
		body.Close()
		close(h.ch)
		h.cancel()
		metrics.ActiveStreams.Dec()
		metrics.StreamDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		if h.err != nil {
			span.RecordError(h.err)
		}
		span.SetAttributes(attribute.String("stream.outcome", outcome))
		span.End()
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		// 空行表示一帧结束
		if line == "" {
			if data.Len() > 0 {
				h.dispatch(data.String())
				data.Reset()
				if idle != nil {
					idle.Reset(idleTimeout)
				}
			}
			continue
		}

		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(payload, " "))
		}
		// 其余字段（event/id/retry/注释）对本协议无意义，忽略
	}

	// 收尾：缺少终结空行的最后一帧
	if data.Len() > 0 && h.ctx.Err() == nil {
		h.dispatch(data.String())
	}

	if err := scanner.Err(); err != nil {
		if h.ctx.Err() != nil && !idleFired.Load() {
			// 主动取消不是错误
			outcome = "cancelled"
			return
		}
		if idleFired.Load() {
			outcome = "error"
			h.err = errors.Wrap(err, errors.CodeStreamFailed, "answer stream idle timeout")
			return
		}
		outcome = "error"
		h.err = errors.Wrap(err, errors.CodeStreamFailed, "answer stream transport failed")
		return
	}

	if h.ctx.Err() != nil && !idleFired.Load() {
		outcome = "cancelled"
	}
}

// dispatch 解码并转发一帧快照
func (h *streamHandle) dispatch(raw string) {
	if raw == "[DONE]" {
		return
	}

	var snap entity.AnswerSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		// 坏帧跳过，不中断流
		logger.Warn(h.ctx, "skipping malformed stream frame", "error", err.Error())
		return
	}

	select {
	case h.ch <- snap:
	case <-h.ctx.Done():
	}
}
