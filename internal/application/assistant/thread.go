package assistant

import (
	"context"

	"github.com/google/uuid"

	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/internal/domain/repository"
	"directory-assistant-api/pkg/errors"
	"directory-assistant-api/pkg/logger"
)

// ThreadAssignment 线程归属判定结果
type ThreadAssignment struct {
	ThreadID string
	IsNew    bool
}

// ThreadCoordinator 线程生命周期协调器
// 判定消息应落入哪个线程，按需串行执行创建与标题生成，
// 并在远程调用落定后发出历史变更信号
type ThreadCoordinator struct {
	api      repository.DirectoryAPI
	notifier repository.HistoryNotifier
}

// NewThreadCoordinator 创建线程协调器
func NewThreadCoordinator(api repository.DirectoryAPI, notifier repository.HistoryNotifier) *ThreadCoordinator {
	return &ThreadCoordinator{api: api, notifier: notifier}
}

// EnsureThread 保证消息有可用的线程归属
//
// 规则：已有线程且已有问答轮次则复用；外部预置线程的首条消息沿用预置 ID
// 但按新线程处理；其余情况铸造新 ID。匿名访客不触发远程创建，
// 本地 ID 仅用于关联请求，服务端创建推迟到登录之后。
//
// 创建与标题调用运行在脱离取消的 context 上：提交方中途离开也让它们
// 跑完，否则远程会留下一个没有标题的线程。
func (c *ThreadCoordinator) EnsureThread(ctx context.Context, state *entity.SessionState, creds entity.Credentials, question string) (ThreadAssignment, error) {
	assignment := c.assign(state)
	if !creds.Authenticated {
		return assignment, nil
	}
	if !assignment.IsNew {
		// 复用线程无需创建，信号由编排器在消息被接受后发出
		return assignment, nil
	}

	detached := context.WithoutCancel(ctx)

	if err := c.api.CreateThread(detached, creds, assignment.ThreadID); err != nil {
		return ThreadAssignment{}, errors.Wrap(err, errors.CodeThreadSetupError, "failed to create thread")
	}

	// 标题生成失败可容忍：线程已存在，消息路径继续，仅跳过信号
	if err := c.api.GenerateTitle(detached, creds, assignment.ThreadID, question); err != nil {
		logger.Warn(detached, "title generation failed, thread left untitled",
			"thread_id", assignment.ThreadID, "error", err.Error())
		return assignment, nil
	}

	c.notifier.HistoryChanged(detached)
	return assignment, nil
}

// assign 判定线程归属
func (c *ThreadCoordinator) assign(state *entity.SessionState) ThreadAssignment {
	switch {
	case state.ThreadID != "" && len(state.Exchanges) > 0:
		// 会话已在该线程上对话过
		return ThreadAssignment{ThreadID: state.ThreadID, IsNew: false}
	case state.ThreadID != "" && state.Origin == entity.OriginSeeded:
		// 外部预置会话的首条消息：ID 已定，但远程线程尚不存在
		return ThreadAssignment{ThreadID: state.ThreadID, IsNew: true}
	case state.ThreadID != "":
		// 线程已存在于远程（如刚加载的空线程）
		return ThreadAssignment{ThreadID: state.ThreadID, IsNew: false}
	default:
		return ThreadAssignment{ThreadID: uuid.New().String(), IsNew: true}
	}
}
