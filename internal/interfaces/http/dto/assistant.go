package dto

import (
	"directory-assistant-api/internal/application/assistant"
	"directory-assistant-api/internal/domain/entity"
)

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	// ThreadID 外部预置的线程 ID，可为空
	ThreadID string `json:"thread_id"`
	// Seeded 为 true 时该线程 ID 为外部预置，首条消息需在服务端创建线程
	Seeded bool `json:"seeded"`
	// DirectoryID 会话所属目录
	DirectoryID string `json:"directory_id"`
	// ChatSummary 预置的历史摘要
	ChatSummary string `json:"chat_summary"`
}

// SubmitRequest 提交问题请求
type SubmitRequest struct {
	Question string `json:"question" binding:"required"`
	// Kind 提问来源：user-input 或 follow-up，缺省按 user-input 处理
	Kind string `json:"kind"`
}

// SelectThreadRequest 加载历史线程请求
type SelectThreadRequest struct {
	ThreadID string `json:"thread_id" binding:"required"`
}

// SessionResponse 会话快照响应
type SessionResponse struct {
	ID               string            `json:"id"`
	ThreadID         string            `json:"thread_id,omitempty"`
	Phase            string            `json:"phase"`
	AdmissionBlocked bool              `json:"admission_blocked"`
	Exchanges        []entity.Exchange `json:"exchanges"`
}

// NewSessionResponse 由会话快照构建响应
func NewSessionResponse(snap assistant.SessionSnapshot) SessionResponse {
	return SessionResponse{
		ID:               snap.ID,
		ThreadID:         snap.ThreadID,
		Phase:            string(snap.Phase),
		AdmissionBlocked: snap.AdmissionBlocked,
		Exchanges:        snap.Exchanges,
	}
}

// HistoryResponse 按近期分桶的历史线程列表
type HistoryResponse struct {
	Buckets []assistant.RecencyBucket `json:"buckets"`
}

// QuotaResponse 访客当日配额状态
type QuotaResponse struct {
	Count          int    `json:"count"`
	Day            string `json:"day"`
	Classification string `json:"classification"`
}
