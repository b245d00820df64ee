package assistant

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/internal/domain/repository"
	"directory-assistant-api/pkg/errors"
	"directory-assistant-api/pkg/logger"
	"directory-assistant-api/pkg/metrics"
)

// Phase 会话所处阶段
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseStreaming  Phase = "streaming"
)

// Session 单个访客会话
// 互斥锁保护聚合状态；远程调用与流消费均在锁外进行，
// 阶段标记保证同一时刻至多一次提交在途
type Session struct {
	mu sync.Mutex

	id      string
	visitor entity.Visitor
	state   *entity.SessionState
	store   *ExchangeStore

	phase            Phase
	admissionBlocked bool
	cancelStream     func()
	selectSeq        uint64
}

// SessionOptions 会话创建参数
type SessionOptions struct {
	// ThreadID 外部预置的线程 ID，可为空
	ThreadID string
	// Origin 会话来源标记，预置线程时为 entity.OriginSeeded
	Origin string
	// DirectoryID 会话所属目录
	DirectoryID string
	// ChatSummary 预置的历史摘要
	ChatSummary string
}

// SessionSnapshot 会话状态快照，锁内深拷贝后返回
type SessionSnapshot struct {
	ID               string            `json:"id"`
	ThreadID         string            `json:"thread_id,omitempty"`
	Phase            Phase             `json:"phase"`
	AdmissionBlocked bool              `json:"admission_blocked"`
	Exchanges        []entity.Exchange `json:"exchanges"`
}

// Submission 一次被接受的提交
// 快照通道只保留最新一帧，消费慢时中间帧被覆盖；
// 通道关闭后 Err 返回终止原因，正常完成与主动停止均为 nil
type Submission struct {
	Banner   entity.QuotaLevel
	ThreadID string

	ch  chan entity.AnswerSnapshot
	err error
}

// Snapshots 返回快照序列，流终止时关闭
func (s *Submission) Snapshots() <-chan entity.AnswerSnapshot {
	return s.ch
}

// Err 返回终止原因，仅在通道关闭后有效
func (s *Submission) Err() error {
	return s.err
}

// Orchestrator 会话编排器
// 所有会话操作的唯一入口，串起配额、线程归属、问答记录与流式消费
type Orchestrator struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ledger   *QuotaLedger
	threads  *ThreadCoordinator
	streamer repository.Streamer
	browser  *HistoryBrowser
	notifier repository.HistoryNotifier
}

// NewOrchestrator 创建会话编排器
func NewOrchestrator(
	ledger *QuotaLedger,
	threads *ThreadCoordinator,
	streamer repository.Streamer,
	browser *HistoryBrowser,
	notifier repository.HistoryNotifier,
) *Orchestrator {
	return &Orchestrator{
		sessions: make(map[string]*Session),
		ledger:   ledger,
		threads:  threads,
		streamer: streamer,
		browser:  browser,
		notifier: notifier,
	}
}

// CreateSession 创建新会话并返回快照
func (o *Orchestrator) CreateSession(visitor entity.Visitor, opts SessionOptions) SessionSnapshot {
	state := &entity.SessionState{
		ThreadID:    opts.ThreadID,
		Origin:      opts.Origin,
		DirectoryID: opts.DirectoryID,
		ChatSummary: opts.ChatSummary,
	}
	sess := &Session{
		id:      uuid.New().String(),
		visitor: visitor,
		state:   state,
		store:   NewExchangeStore(state),
		phase:   PhaseIdle,
	}

	o.mu.Lock()
	o.sessions[sess.id] = sess
	o.mu.Unlock()

	return sess.snapshot()
}

// GetSession 返回会话快照
func (o *Orchestrator) GetSession(sessionID string, visitor entity.Visitor) (SessionSnapshot, error) {
	sess, err := o.lookup(sessionID, visitor)
	if err != nil {
		return SessionSnapshot{}, err
	}
	return sess.snapshot(), nil
}

// RemoveSession 移除会话，提交在途时拒绝
func (o *Orchestrator) RemoveSession(sessionID string, visitor entity.Visitor) error {
	sess, err := o.lookup(sessionID, visitor)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.phase != PhaseIdle {
		sess.mu.Unlock()
		return errors.ErrSessionBusy
	}
	sess.mu.Unlock()

	o.mu.Lock()
	delete(o.sessions, sessionID)
	o.mu.Unlock()
	return nil
}

// Submit 提交一个问题
//
// 顺序固定：准入判定在任何远程调用之前，被拦截的提交不产生任何副作用；
// 横幅分级取记账前的余量；线程归属与创建在消息被接受前落定。
// 返回的 Submission 仅在提交被接受时非 nil
func (o *Orchestrator) Submit(ctx context.Context, sessionID string, visitor entity.Visitor, question string, kind entity.SubmissionKind) (*Submission, error) {
	sess, err := o.lookup(sessionID, visitor)
	if err != nil {
		return nil, err
	}

	// 占据提交阶段，拦下并发提交
	sess.mu.Lock()
	if sess.phase != PhaseIdle {
		sess.mu.Unlock()
		return nil, errors.ErrSessionBusy
	}
	sess.phase = PhaseSubmitting
	sess.mu.Unlock()

	abort := func() {
		sess.mu.Lock()
		sess.phase = PhaseIdle
		sess.mu.Unlock()
	}

	// 匿名访客走配额准入；会员不记账
	banner := entity.QuotaOK
	creds := visitor.Credentials
	if !creds.Authenticated {
		banner = o.ledger.Classify(ctx, visitor.VisitorID)
		if banner == entity.QuotaWarn {
			metrics.AdmissionBlockedTotal.Inc()
			sess.mu.Lock()
			sess.admissionBlocked = true
			sess.phase = PhaseIdle
			sess.mu.Unlock()
			return nil, errors.ErrQuotaExceeded
		}
		o.ledger.RecordUsage(ctx, visitor.VisitorID)
	}

	// phase=submitting 期间没有其他写入方，锁外读写聚合是安全的
	assignment, err := o.threads.EnsureThread(ctx, sess.state, creds, question)
	if err != nil {
		abort()
		metrics.SubmissionsTotal.WithLabelValues("setup_failed").Inc()
		return nil, err
	}

	sess.mu.Lock()
	sess.admissionBlocked = false
	sess.state.ThreadID = assignment.ThreadID
	handle, err := sess.store.Append(question)
	if err != nil {
		sess.phase = PhaseIdle
		sess.mu.Unlock()
		return nil, err
	}
	sess.mu.Unlock()

	// 复用线程的消息被接受即代表远程更新在途，此时发信号让历史面板刷新
	if creds.Authenticated && !assignment.IsNew {
		o.notifier.HistoryChanged(context.WithoutCancel(ctx))
	}

	req := repository.ChatRequest{
		ThreadID:    assignment.ThreadID,
		ChatID:      uuid.New().String(),
		Question:    question,
		Kind:        string(kind),
		Name:        creds.Name,
		Email:       creds.Email,
		DirectoryID: sess.state.DirectoryID,
		ChatSummary: sess.state.ChatSummary,
	}

	// 流的生命周期不跟随请求：提交方断开后继续累积，停止只走 Cancel
	stream, err := o.streamer.Start(context.WithoutCancel(ctx), creds, req)
	if err != nil {
		sess.mu.Lock()
		sess.store.Finalize(handle)
		sess.phase = PhaseIdle
		sess.mu.Unlock()
		metrics.SubmissionsTotal.WithLabelValues("start_failed").Inc()
		return nil, errors.Wrap(err, errors.CodeStreamFailed, "failed to start answer stream")
	}

	sess.mu.Lock()
	sess.phase = PhaseStreaming
	sess.cancelStream = stream.Cancel
	sess.mu.Unlock()

	sub := &Submission{
		Banner:   banner,
		ThreadID: assignment.ThreadID,
		ch:       make(chan entity.AnswerSnapshot, 1),
	}
	go o.pump(ctx, sess, stream, handle, sub)
	return sub, nil
}

// pump 把流式快照合并进会话并转发给提交方
func (o *Orchestrator) pump(ctx context.Context, sess *Session, stream repository.StreamHandle, handle ExchangeHandle, sub *Submission) {
	for snap := range stream.Snapshots() {
		sess.mu.Lock()
		sess.store.Update(handle, snap)
		sess.mu.Unlock()

		// 只保留最新一帧：快照自含全量，跳帧无损
		select {
		case sub.ch <- snap:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
	}

	streamErr := stream.Err()

	sess.mu.Lock()
	sess.store.Finalize(handle)
	sess.phase = PhaseIdle
	sess.cancelStream = nil
	sess.mu.Unlock()

	if streamErr != nil {
		logger.Error(ctx, "answer stream terminated abnormally", streamErr, "session_id", sess.id)
		sub.err = errors.Wrap(streamErr, errors.CodeStreamFailed, "answer stream failed")
		metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.SubmissionsTotal.WithLabelValues("completed").Inc()
	}
	// 先写 err 再关通道，通道关闭对读取方可见时 err 一定就绪
	close(sub.ch)
}

// Stop 中止在途的回答流，已累积的部分内容保留
func (o *Orchestrator) Stop(sessionID string, visitor entity.Visitor) error {
	sess, err := o.lookup(sessionID, visitor)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.phase != PhaseStreaming {
		sess.mu.Unlock()
		return errors.ErrInvalidState
	}
	cancel := sess.cancelStream
	sess.mu.Unlock()

	cancel()
	return nil
}

// SelectHistoryThread 把历史线程装入会话
//
// 解析在锁外进行；装入前复核序号与阶段，期间有新提交或更晚的选择
// 则本次结果整体丢弃，绝不与在途内容交错
func (o *Orchestrator) SelectHistoryThread(ctx context.Context, sessionID string, visitor entity.Visitor, threadID string) (SessionSnapshot, error) {
	sess, err := o.lookup(sessionID, visitor)
	if err != nil {
		return SessionSnapshot{}, err
	}

	sess.mu.Lock()
	if sess.phase != PhaseIdle {
		sess.mu.Unlock()
		return SessionSnapshot{}, errors.ErrSessionBusy
	}
	sess.selectSeq++
	seq := sess.selectSeq
	sess.mu.Unlock()

	full, err := o.browser.ResolveThread(ctx, visitor.Credentials, threadID)
	if err != nil {
		return SessionSnapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.selectSeq != seq || sess.phase != PhaseIdle {
		logger.Debug(ctx, "stale thread selection discarded",
			"session_id", sess.id, "thread_id", threadID)
		return sess.snapshotLocked(), nil
	}
	sess.store.Replace(full.ThreadID, full.Exchanges)
	sess.state.Origin = ""
	return sess.snapshotLocked(), nil
}

// QuotaState 返回访客当日配额状态
func (o *Orchestrator) QuotaState(ctx context.Context, visitor entity.Visitor) entity.QuotaState {
	return o.ledger.State(ctx, visitor.VisitorID)
}

// lookup 查找会话并校验归属，不属于该访客的会话按不存在处理
func (o *Orchestrator) lookup(sessionID string, visitor entity.Visitor) (*Session, error) {
	o.mu.RLock()
	sess, ok := o.sessions[sessionID]
	o.mu.RUnlock()
	if !ok || sess.visitor.VisitorID != visitor.VisitorID {
		return nil, errors.ErrSessionNotFound
	}
	return sess, nil
}

// snapshot 加锁取快照
func (s *Session) snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshotLocked 深拷贝聚合状态，调用方必须持锁
func (s *Session) snapshotLocked() SessionSnapshot {
	exchanges := make([]entity.Exchange, len(s.state.Exchanges))
	for i, ex := range s.state.Exchanges {
		exchanges[i] = *ex
	}
	return SessionSnapshot{
		ID:               s.id,
		ThreadID:         s.state.ThreadID,
		Phase:            s.phase,
		AdmissionBlocked: s.admissionBlocked,
		Exchanges:        exchanges,
	}
}
