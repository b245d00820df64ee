package assistant

import (
	"context"
	"sync"
	"sync/atomic"

	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/internal/domain/repository"
)

// fakeAPI 可编程的目录 API 替身
type fakeAPI struct {
	mu sync.Mutex

	createCalls int
	titleCalls  int
	listCalls   int
	getCalls    int

	createdIDs []string

	createErr error
	titleErr  error
	listErr   error
	getErr    error

	threads     []*entity.ThreadSummary
	fullThreads map[string]*entity.FullThread

	// getGate 非 nil 时 GetThread 阻塞到通道关闭
	getGate chan struct{}
}

func (f *fakeAPI) CreateThread(ctx context.Context, creds entity.Credentials, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	f.createdIDs = append(f.createdIDs, threadID)
	return nil
}

func (f *fakeAPI) GenerateTitle(ctx context.Context, creds entity.Credentials, threadID, question string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleCalls++
	return f.titleErr
}

func (f *fakeAPI) ListThreads(ctx context.Context, creds entity.Credentials) ([]*entity.ThreadSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.threads, nil
}

func (f *fakeAPI) GetThread(ctx context.Context, creds entity.Credentials, threadID string) (*entity.FullThread, error) {
	f.mu.Lock()
	gate := f.getGate
	f.getCalls++
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if t, ok := f.fullThreads[threadID]; ok {
		return t, nil
	}
	return &entity.FullThread{ThreadID: threadID}, nil
}

// fakeStream 手动驱动的流句柄
type fakeStream struct {
	ch        chan entity.AnswerSnapshot
	err       error
	closeOnce sync.Once
	cancelled atomic.Bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan entity.AnswerSnapshot, 16)}
}

func (s *fakeStream) Snapshots() <-chan entity.AnswerSnapshot { return s.ch }
func (s *fakeStream) Err() error                              { return s.err }

func (s *fakeStream) Cancel() {
	s.cancelled.Store(true)
	s.closeOnce.Do(func() { close(s.ch) })
}

// push 下发一帧快照
func (s *fakeStream) push(snap entity.AnswerSnapshot) {
	s.ch <- snap
}

// finish 以给定终态结束流
func (s *fakeStream) finish(err error) {
	s.err = err
	s.closeOnce.Do(func() { close(s.ch) })
}

// fakeStreamer 可编程的流式问答替身
type fakeStreamer struct {
	mu       sync.Mutex
	startErr error
	// autoFinish 为 true 时流在 Start 后立即正常结束
	autoFinish bool

	streams  []*fakeStream
	requests []repository.ChatRequest
}

func (f *fakeStreamer) Start(ctx context.Context, creds entity.Credentials, req repository.ChatRequest) (repository.StreamHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	s := newFakeStream()
	f.streams = append(f.streams, s)
	f.requests = append(f.requests, req)
	if f.autoFinish {
		s.finish(nil)
	}
	return s, nil
}

func (f *fakeStreamer) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeStreamer) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[len(f.streams)-1]
}

// countingNotifier 信号计数替身
type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) HistoryChanged(ctx context.Context) {
	c.n.Add(1)
}

func (c *countingNotifier) count() int {
	return int(c.n.Load())
}
