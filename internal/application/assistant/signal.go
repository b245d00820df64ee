// Package assistant 实现会话编排核心
package assistant

import (
	"context"
	"sync"

	"directory-assistant-api/internal/domain/repository"
)

// SignalHub 历史变更信号集线器
// 显式的订阅/通知接口：历史面板订阅后收到信号即重新拉取线程列表。
// 实现 repository.HistoryNotifier，可与跨实例广播器组合使用
type SignalHub struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

// NewSignalHub 创建信号集线器
func NewSignalHub() *SignalHub {
	return &SignalHub{
		subs: make(map[int]chan struct{}),
	}
}

// Subscribe 订阅历史变更信号，返回信号通道和退订函数
func (h *SignalHub) Subscribe() (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++

	// 容量为 1：信号无载荷，排队多次与一次等价
	ch := make(chan struct{}, 1)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// HistoryChanged 向所有订阅者发出信号
// 订阅者已有待处理信号时直接合并，不阻塞发送方
func (h *SignalHub) HistoryChanged(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Notify 进程内触发入口，跨实例监听循环桥接时使用
func (h *SignalHub) Notify() {
	h.HistoryChanged(context.Background())
}

// MultiNotifier 组合多个通知端，依次触发
type MultiNotifier []repository.HistoryNotifier

// HistoryChanged 实现 repository.HistoryNotifier
func (m MultiNotifier) HistoryChanged(ctx context.Context) {
	for _, n := range m {
		n.HistoryChanged(ctx)
	}
}
