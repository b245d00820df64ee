package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"directory-assistant-api/internal/application/assistant"
	"directory-assistant-api/internal/interfaces/http/dto"
	"directory-assistant-api/internal/interfaces/http/middleware"
)

// 事件流心跳间隔，防止中间代理掐断空闲连接
const historyHeartbeat = 25 * time.Second

// HistoryHandler 历史线程处理器
type HistoryHandler struct {
	browser *assistant.HistoryBrowser
	hub     *assistant.SignalHub
}

// NewHistoryHandler 创建历史处理器
func NewHistoryHandler(browser *assistant.HistoryBrowser, hub *assistant.SignalHub) *HistoryHandler {
	return &HistoryHandler{browser: browser, hub: hub}
}

// List 查询按近期分桶的历史线程列表
// @Summary 查询历史线程
// @Description 摘要列表走短时缓存，完整内容需通过会话加载
// @Tags History
// @Produce json
// @Success 200 {object} dto.Response[dto.HistoryResponse]
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/assistant/history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	visitor := middleware.VisitorFromContext(c)

	threads, err := h.browser.ListThreads(c.Request.Context(), visitor)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	buckets := assistant.GroupByRecency(threads, time.Now())
	dto.Success(c, dto.HistoryResponse{Buckets: buckets})
}

// Events 历史变更事件流
// @Summary 订阅历史变更信号
// @Description SSE 长连接，historyChanged 帧提示客户端重新拉取列表
// @Tags History
// @Produce text/event-stream
// @Success 200 "SSE stream"
// @Router /v1/assistant/history/events [get]
func (h *HistoryHandler) Events(c *gin.Context) {
	visitor := middleware.VisitorFromContext(c)

	signals, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(historyHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case _, ok := <-signals:
			if !ok {
				return false
			}
			// 信号落地时同步失效该访客的列表缓存，下一次拉取必然回源
			h.browser.Invalidate(visitor.VisitorID)
			c.SSEvent("historyChanged", gin.H{"at": time.Now().UTC().Format(time.RFC3339)})
			return true

		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{})
			return true

		case <-c.Request.Context().Done():
			return false
		}
	})
}
