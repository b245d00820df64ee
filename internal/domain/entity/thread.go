package entity

import "time"

// ThreadSummary 线程摘要，历史列表的只读投影
// 字段标签与上游目录 API 的线程表示保持一致
type ThreadSummary struct {
	ThreadID  string    `json:"threadId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FullThread 完整线程内容，按需拉取后整体替换会话
type FullThread struct {
	ThreadID  string      `json:"threadId"`
	Title     string      `json:"title"`
	Exchanges []*Exchange `json:"exchanges"`
}
