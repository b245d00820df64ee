package repository

import "context"

// HistoryNotifier 历史变更通知端口
// 信号不携带载荷，监听方收到后自行重新拉取线程列表；
// 信号只在依赖的线程创建/标题调用落定之后发出
type HistoryNotifier interface {
	HistoryChanged(ctx context.Context)
}
