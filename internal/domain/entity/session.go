package entity

// SubmissionKind 提问来源类型，原样透传给上游
type SubmissionKind string

const (
	SubmissionKindUserInput SubmissionKind = "user-input"
	SubmissionKindFollowUp  SubmissionKind = "follow-up"
)

// OriginSeeded 外部预置线程 ID 的会话来源
// 此类会话首条消息即使已带 threadId 也需要在服务端创建线程
const OriginSeeded = "seeded"

// SessionState 会话聚合，由编排器独占持有
type SessionState struct {
	// ThreadID 惰性分配；除非显式加载其他线程，否则会话期内稳定
	ThreadID string `json:"thread_id,omitempty"`
	// Exchanges 按时间升序排列，最多一条处于 pending 状态
	Exchanges []*Exchange `json:"exchanges"`
	// Origin 会话起点标记，仅用于判定特殊提交路径
	Origin string `json:"origin,omitempty"`
	// DirectoryID 会话所属目录，透传给聊天接口
	DirectoryID string `json:"directory_id,omitempty"`
	// ChatSummary 历史摘要，透传给聊天接口
	ChatSummary string `json:"chat_summary,omitempty"`
}

// PendingExchange 返回处于 pending 状态的问答轮次，没有则为 nil
func (s *SessionState) PendingExchange() *Exchange {
	if n := len(s.Exchanges); n > 0 && s.Exchanges[n-1].Pending {
		return s.Exchanges[n-1]
	}
	return nil
}
