// Package repository 定义领域端口
package repository

import (
	"context"

	"directory-assistant-api/internal/domain/entity"
)

// DirectoryAPI 目录平台远程接口
// 服务端是外部协作方，这里只约定语义，不约定线上报文细节
type DirectoryAPI interface {
	// CreateThread 创建服务端线程，threadID 由本地铸造后上送
	CreateThread(ctx context.Context, creds entity.Credentials, threadID string) error

	// GenerateTitle 为线程首个问题生成标题
	// 必须在 CreateThread 成功之后调用
	GenerateTitle(ctx context.Context, creds entity.Credentials, threadID, question string) error

	// ListThreads 拉取访客的线程摘要列表
	ListThreads(ctx context.Context, creds entity.Credentials) ([]*entity.ThreadSummary, error)

	// GetThread 按需拉取完整线程内容
	GetThread(ctx context.Context, creds entity.Credentials, threadID string) (*entity.FullThread, error)
}
