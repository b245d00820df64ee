// Package handler 提供 HTTP 请求处理器
package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"directory-assistant-api/internal/application/assistant"
	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/internal/interfaces/http/dto"
	"directory-assistant-api/internal/interfaces/http/middleware"
)

// SessionHandler 会话处理器
type SessionHandler struct {
	orchestrator *assistant.Orchestrator
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(orchestrator *assistant.Orchestrator) *SessionHandler {
	return &SessionHandler{orchestrator: orchestrator}
}

// CreateSession 创建会话
// @Summary 创建会话
// @Description 创建新的问答会话，可预置线程 ID 与历史摘要
// @Tags Sessions
// @Accept json
// @Produce json
// @Success 201 {object} dto.Response[dto.SessionResponse]
// @Router /v1/assistant/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	visitor := middleware.VisitorFromContext(c)

	directoryID := req.DirectoryID
	if directoryID == "" {
		directoryID = middleware.DirectoryFromContext(c)
	}

	origin := ""
	if req.Seeded && req.ThreadID != "" {
		origin = entity.OriginSeeded
	}

	snap := h.orchestrator.CreateSession(visitor, assistant.SessionOptions{
		ThreadID:    req.ThreadID,
		Origin:      origin,
		DirectoryID: directoryID,
		ChatSummary: req.ChatSummary,
	})
	dto.Created(c, dto.NewSessionResponse(snap))
}

// GetSession 查询会话快照
// @Summary 查询会话
// @Tags Sessions
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/assistant/sessions/{sid} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	visitor := middleware.VisitorFromContext(c)

	snap, err := h.orchestrator.GetSession(c.Param("sid"), visitor)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.NewSessionResponse(snap))
}

// DeleteSession 移除会话
// @Summary 移除会话
// @Tags Sessions
// @Param sid path string true "会话 ID"
// @Success 204
// @Router /v1/assistant/sessions/{sid} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	visitor := middleware.VisitorFromContext(c)

	if err := h.orchestrator.RemoveSession(c.Param("sid"), visitor); err != nil {
		dto.FromError(c, err)
		return
	}
	dto.NoContent(c)
}

// Submit 提交问题并以 SSE 流式返回回答快照
// @Summary 提交问题
// @Description 准入通过后返回 SSE 流：accepted 帧带横幅分级与线程 ID，
// @Description snapshot 帧为全量回答快照，终态为 done 或 error 之一
// @Tags Sessions
// @Accept json
// @Produce text/event-stream
// @Param sid path string true "会话 ID"
// @Success 200 "SSE stream"
// @Failure 409 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /v1/assistant/sessions/{sid}/messages [post]
func (h *SessionHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "question is required")
		return
	}

	kind := entity.SubmissionKind(req.Kind)
	if kind == "" {
		kind = entity.SubmissionKindUserInput
	}

	visitor := middleware.VisitorFromContext(c)

	sub, err := h.orchestrator.Submit(c.Request.Context(), c.Param("sid"), visitor, req.Question, kind)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("accepted", gin.H{
		"threadId": sub.ThreadID,
		"banner":   string(sub.Banner),
	})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-sub.Snapshots():
			if !ok {
				// 通道关闭即终态，error 与 done 二选一
				if err := sub.Err(); err != nil {
					c.SSEvent("error", gin.H{"message": err.Error()})
				} else {
					c.SSEvent("done", gin.H{"threadId": sub.ThreadID})
				}
				return false
			}
			c.SSEvent("snapshot", snap)
			return true

		case <-c.Request.Context().Done():
			// 客户端断开不终止回答流，中止只能显式调用 stop
			return false
		}
	})
}

// Stop 中止在途的回答流
// @Summary 中止回答
// @Description 已累积的部分回答保留在会话中
// @Tags Sessions
// @Param sid path string true "会话 ID"
// @Success 204
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/assistant/sessions/{sid}/stop [post]
func (h *SessionHandler) Stop(c *gin.Context) {
	visitor := middleware.VisitorFromContext(c)

	if err := h.orchestrator.Stop(c.Param("sid"), visitor); err != nil {
		dto.FromError(c, err)
		return
	}
	dto.NoContent(c)
}

// SelectThread 把历史线程装入会话
// @Summary 加载历史线程
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/assistant/sessions/{sid}/thread [post]
func (h *SessionHandler) SelectThread(c *gin.Context) {
	var req dto.SelectThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "thread_id is required")
		return
	}

	visitor := middleware.VisitorFromContext(c)

	snap, err := h.orchestrator.SelectHistoryThread(c.Request.Context(), c.Param("sid"), visitor, req.ThreadID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.NewSessionResponse(snap))
}

// Quota 查询访客当日配额状态
// @Summary 查询配额
// @Tags Sessions
// @Produce json
// @Success 200 {object} dto.Response[dto.QuotaResponse]
// @Router /v1/assistant/quota [get]
func (h *SessionHandler) Quota(c *gin.Context) {
	visitor := middleware.VisitorFromContext(c)

	state := h.orchestrator.QuotaState(c.Request.Context(), visitor)
	dto.Success(c, dto.QuotaResponse{
		Count:          state.Count,
		Day:            state.Day.Format("2006-01-02"),
		Classification: string(state.Classification),
	})
}
