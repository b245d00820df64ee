package repository

import (
	"context"

	"directory-assistant-api/internal/domain/entity"
)

// ChatRequest 流式问答请求
type ChatRequest struct {
	ThreadID    string `json:"threadId"`
	ChatID      string `json:"chatId"`
	Question    string `json:"question"`
	Kind        string `json:"kind,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	DirectoryID string `json:"directoryId,omitempty"`
	ChatSummary string `json:"chatSummary,omitempty"`
}

// StreamHandle 一次流式问答的句柄
// Snapshots 关闭即终止，终止原因通过 Err 获取；通道关闭后不会再有任何回调，
// 取消、完成、出错三者有且只有一个终态
type StreamHandle interface {
	// Snapshots 返回结构化快照序列，流结束时关闭
	Snapshots() <-chan entity.AnswerSnapshot

	// Err 返回终止原因；通道关闭前调用结果未定义
	// 正常完成与主动取消均返回 nil
	Err() error

	// Cancel 中止底层传输，可重复调用
	Cancel()
}

// Streamer 流式问答端口
type Streamer interface {
	Start(ctx context.Context, creds entity.Credentials, req ChatRequest) (StreamHandle, error)
}
