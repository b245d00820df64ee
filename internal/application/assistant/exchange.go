package assistant

import (
	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/pkg/errors"
)

// ExchangeHandle 指向会话内一条问答轮次的句柄，仅供流式消费方使用
type ExchangeHandle int

// ExchangeStore 会话内问答记录
// 追加式有序列表，仅尾部一条可变；单飞约束由编排器保证，
// Append 在仍有 pending 轮次时快速失败作为兜底
type ExchangeStore struct {
	state *entity.SessionState
}

// NewExchangeStore 在给定会话聚合上创建问答记录
func NewExchangeStore(state *entity.SessionState) *ExchangeStore {
	return &ExchangeStore{state: state}
}

// Append 追加一条待回答的问答轮次
func (s *ExchangeStore) Append(question string) (ExchangeHandle, error) {
	if s.state.PendingExchange() != nil {
		return -1, errors.ErrPendingExchange
	}
	s.state.Exchanges = append(s.state.Exchanges, entity.NewExchange(question))
	return ExchangeHandle(len(s.state.Exchanges) - 1), nil
}

// Update 把一帧快照合并进 pending 轮次
// 答案只增不减：比当前内容短的快照视为乱序帧丢弃
func (s *ExchangeStore) Update(h ExchangeHandle, snap entity.AnswerSnapshot) {
	ex := s.at(h)
	if ex == nil || !ex.Pending {
		return
	}

	if len(snap.Content) >= len(ex.Answer) {
		ex.Answer = snap.Content
	}
	if len(snap.FollowUpQuestions) > 0 {
		ex.FollowUpQuestions = snap.FollowUpQuestions
	}
	if len(snap.Sources) > 0 {
		ex.Sources = snap.Sources
	}
	if len(snap.Actions) > 0 {
		ex.Actions = snap.Actions
	}
}

// Finalize 结束 pending 状态，保留已累积的部分内容
func (s *ExchangeStore) Finalize(h ExchangeHandle) {
	if ex := s.at(h); ex != nil {
		ex.Pending = false
	}
}

// Replace 整体替换会话内容与线程指向（加载历史线程时的原子换入）
func (s *ExchangeStore) Replace(threadID string, exchanges []*entity.Exchange) {
	for _, ex := range exchanges {
		ex.Pending = false
	}
	s.state.ThreadID = threadID
	s.state.Exchanges = exchanges
}

// at 解析句柄
func (s *ExchangeStore) at(h ExchangeHandle) *entity.Exchange {
	if int(h) < 0 || int(h) >= len(s.state.Exchanges) {
		return nil
	}
	return s.state.Exchanges[int(h)]
}
