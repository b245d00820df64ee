package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"directory-assistant-api/internal/config"
	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/internal/infrastructure/persistence/memory"
	apperrors "directory-assistant-api/pkg/errors"
)

func newTestOrchestrator(api *fakeAPI, streamer *fakeStreamer) (*Orchestrator, *countingNotifier) {
	ledger := NewQuotaLedger(memory.NewKVStore(), &config.QuotaConfig{
		DailyLimit:    5,
		InfoRemaining: 2,
		Timezone:      "UTC",
	})
	notifier := &countingNotifier{}
	threads := NewThreadCoordinator(api, notifier)
	browser := NewHistoryBrowser(api, time.Minute)
	return NewOrchestrator(ledger, threads, streamer, browser, notifier), notifier
}

// drain 读空快照通道，返回最后一帧
func drain(sub *Submission) (last entity.AnswerSnapshot) {
	for snap := range sub.Snapshots() {
		last = snap
	}
	return last
}

func TestSubmitAnonymousQuotaExhaustion(t *testing.T) {
	api := &fakeAPI{}
	streamer := &fakeStreamer{autoFinish: true}
	orch, _ := newTestOrchestrator(api, streamer)

	visitor := entity.Visitor{VisitorID: "anon-1"}
	sess := orch.CreateSession(visitor, SessionOptions{})
	ctx := context.Background()

	wantBanners := []entity.QuotaLevel{
		entity.QuotaOK, entity.QuotaOK, entity.QuotaOK,
		entity.QuotaInfo, entity.QuotaFinalRequest,
	}
	for i, want := range wantBanners {
		sub, err := orch.Submit(ctx, sess.ID, visitor, "question", entity.SubmissionKindUserInput)
		require.NoError(t, err, "submission %d", i+1)
		require.Equal(t, want, sub.Banner, "submission %d", i+1)
		drain(sub)
		require.NoError(t, sub.Err())
	}

	// 第六次被拦截，且没有任何远程副作用
	_, err := orch.Submit(ctx, sess.ID, visitor, "question", entity.SubmissionKindUserInput)
	require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	require.Equal(t, 5, streamer.startCalls())
	require.Zero(t, api.createCalls)

	snap, err := orch.GetSession(sess.ID, visitor)
	require.NoError(t, err)
	require.True(t, snap.AdmissionBlocked)
	require.Len(t, snap.Exchanges, 5)
}

func TestSubmitSingleFlight(t *testing.T) {
	api := &fakeAPI{}
	streamer := &fakeStreamer{}
	orch, _ := newTestOrchestrator(api, streamer)

	visitor := entity.Visitor{VisitorID: "anon-1"}
	sess := orch.CreateSession(visitor, SessionOptions{})
	ctx := context.Background()

	sub, err := orch.Submit(ctx, sess.ID, visitor, "q1", entity.SubmissionKindUserInput)
	require.NoError(t, err)

	// 流未结束时并发提交被拒绝
	_, err = orch.Submit(ctx, sess.ID, visitor, "q2", entity.SubmissionKindUserInput)
	require.ErrorIs(t, err, apperrors.ErrSessionBusy)

	streamer.last().finish(nil)
	drain(sub)

	sub2, err := orch.Submit(ctx, sess.ID, visitor, "q2", entity.SubmissionKindUserInput)
	require.NoError(t, err)
	streamer.last().finish(nil)
	drain(sub2)

	snap, err := orch.GetSession(sess.ID, visitor)
	require.NoError(t, err)
	require.Len(t, snap.Exchanges, 2)
}

func TestSubmitAuthenticatedFirstMessage(t *testing.T) {
	api := &fakeAPI{}
	streamer := &fakeStreamer{}
	orch, notifier := newTestOrchestrator(api, streamer)

	visitor := entity.Visitor{VisitorID: "user-1", Credentials: memberCreds}
	sess := orch.CreateSession(visitor, SessionOptions{DirectoryID: "dir-7"})

	sub, err := orch.Submit(context.Background(), sess.ID, visitor, "who builds bridges?", entity.SubmissionKindUserInput)
	require.NoError(t, err)

	// 会员不走配额，横幅恒为 ok
	require.Equal(t, entity.QuotaOK, sub.Banner)
	require.Equal(t, 1, api.createCalls)
	require.Equal(t, 1, api.titleCalls)
	require.Equal(t, 1, notifier.count())

	req := streamer.requests[0]
	require.Equal(t, sub.ThreadID, req.ThreadID)
	require.Equal(t, "who builds bridges?", req.Question)
	require.Equal(t, "Ada", req.Name)
	require.Equal(t, "dir-7", req.DirectoryID)

	stream := streamer.last()
	stream.push(entity.AnswerSnapshot{Content: "Sev"})
	stream.push(entity.AnswerSnapshot{Content: "Several members build bridges", Sources: []string{"member/9"}})
	stream.finish(nil)

	drain(sub)
	require.NoError(t, sub.Err())

	snap, err := orch.GetSession(sess.ID, visitor)
	require.NoError(t, err)
	require.Equal(t, PhaseIdle, snap.Phase)
	require.Equal(t, sub.ThreadID, snap.ThreadID)
	require.Len(t, snap.Exchanges, 1)
	require.Equal(t, "Several members build bridges", snap.Exchanges[0].Answer)
	require.Equal(t, []string{"member/9"}, snap.Exchanges[0].Sources)
	require.False(t, snap.Exchanges[0].Pending)
}

func TestSubmitReuseEmitsSignal(t *testing.T) {
	api := &fakeAPI{}
	streamer := &fakeStreamer{autoFinish: true}
	orch, notifier := newTestOrchestrator(api, streamer)

	visitor := entity.Visitor{VisitorID: "user-1", Credentials: memberCreds}
	sess := orch.CreateSession(visitor, SessionOptions{})
	ctx := context.Background()

	sub, err := orch.Submit(ctx, sess.ID, visitor, "q1", entity.SubmissionKindUserInput)
	require.NoError(t, err)
	drain(sub)
	require.Equal(t, 1, notifier.count())

	// 第二条消息复用线程：不再创建，但仍然发信号
	sub, err = orch.Submit(ctx, sess.ID, visitor, "q2", entity.SubmissionKindFollowUp)
	require.NoError(t, err)
	drain(sub)
	require.Equal(t, 1, api.createCalls)
	require.Equal(t, 2, notifier.count())
}

func TestStopPreservesPartialAnswer(t *testing.T) {
	api := &fakeAPI{}
	streamer := &fakeStreamer{}
	orch, _ := newTestOrchestrator(api, streamer)

	visitor := entity.Visitor{VisitorID: "anon-1"}
	sess := orch.CreateSession(visitor, SessionOptions{})
	ctx := context.Background()

	sub, err := orch.Submit(ctx, sess.ID, visitor, "q", entity.SubmissionKindUserInput)
	require.NoError(t, err)

	stream := streamer.last()
	stream.push(entity.AnswerSnapshot{Content: "partial answer"})

	// 等第一帧穿过泵，保证合并已发生
	first, ok := <-sub.Snapshots()
	require.True(t, ok)
	require.Equal(t, "partial answer", first.Content)

	require.NoError(t, orch.Stop(sess.ID, visitor))
	require.True(t, stream.cancelled.Load())

	drain(sub)
	require.NoError(t, sub.Err())

	snap, err := orch.GetSession(sess.ID, visitor)
	require.NoError(t, err)
	require.Equal(t, PhaseIdle, snap.Phase)
	require.Equal(t, "partial answer", snap.Exchanges[0].Answer)
	require.False(t, snap.Exchanges[0].Pending)
}

func TestStopOnlyValidWhileStreaming(t *testing.T) {
	orch, _ := newTestOrchestrator(&fakeAPI{}, &fakeStreamer{})
	visitor := entity.Visitor{VisitorID: "anon-1"}
	sess := orch.CreateSession(visitor, SessionOptions{})

	err := orch.Stop(sess.ID, visitor)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestSubmitStartFailureResetsSession(t *testing.T) {
	api := &fakeAPI{}
	streamer := &fakeStreamer{startErr: apperrors.ErrUpstreamError}
	orch, _ := newTestOrchestrator(api, streamer)

	visitor := entity.Visitor{VisitorID: "anon-1"}
	sess := orch.CreateSession(visitor, SessionOptions{})

	_, err := orch.Submit(context.Background(), sess.ID, visitor, "q", entity.SubmissionKindUserInput)
	require.Error(t, err)
	require.Equal(t, apperrors.CodeStreamFailed, apperrors.AsAppError(err).Code)

	snap, err := orch.GetSession(sess.ID, visitor)
	require.NoError(t, err)
	require.Equal(t, PhaseIdle, snap.Phase)
	require.Len(t, snap.Exchanges, 1)
	require.False(t, snap.Exchanges[0].Pending)

	// 会话可继续提交
	streamer2 := &fakeStreamer{autoFinish: true}
	orch2, _ := newTestOrchestrator(api, streamer2)
	sess2 := orch2.CreateSession(visitor, SessionOptions{})
	sub, err := orch2.Submit(context.Background(), sess2.ID, visitor, "q", entity.SubmissionKindUserInput)
	require.NoError(t, err)
	drain(sub)
}

func TestSelectHistoryThreadLoadsExchanges(t *testing.T) {
	api := &fakeAPI{
		fullThreads: map[string]*entity.FullThread{
			"t9": {
				ThreadID: "t9",
				Title:    "old chat",
				Exchanges: []*entity.Exchange{
					{Question: "a", Answer: "1", Pending: true},
					{Question: "b", Answer: "2"},
				},
			},
		},
	}
	orch, _ := newTestOrchestrator(api, &fakeStreamer{})

	visitor := entity.Visitor{VisitorID: "user-1", Credentials: memberCreds}
	sess := orch.CreateSession(visitor, SessionOptions{})

	snap, err := orch.SelectHistoryThread(context.Background(), sess.ID, visitor, "t9")
	require.NoError(t, err)
	require.Equal(t, "t9", snap.ThreadID)
	require.Len(t, snap.Exchanges, 2)
	for _, ex := range snap.Exchanges {
		require.False(t, ex.Pending)
	}
}

func TestSelectHistoryThreadStaleResultDiscarded(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{
		getGate: gate,
		fullThreads: map[string]*entity.FullThread{
			"slow": {ThreadID: "slow"},
			"fast": {ThreadID: "fast"},
		},
	}
	orch, _ := newTestOrchestrator(api, &fakeStreamer{})

	visitor := entity.Visitor{VisitorID: "user-1", Credentials: memberCreds}
	sess := orch.CreateSession(visitor, SessionOptions{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := orch.SelectHistoryThread(ctx, sess.ID, visitor, "slow")
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.getCalls == 1
	}, time.Second, 5*time.Millisecond)

	// 更晚的选择先完成
	api.mu.Lock()
	api.getGate = nil
	api.mu.Unlock()
	snap, err := orch.SelectHistoryThread(ctx, sess.ID, visitor, "fast")
	require.NoError(t, err)
	require.Equal(t, "fast", snap.ThreadID)

	// 放行慢请求，其结果必须被丢弃
	close(gate)
	<-done

	final, err := orch.GetSession(sess.ID, visitor)
	require.NoError(t, err)
	require.Equal(t, "fast", final.ThreadID)
}

func TestSessionOwnershipEnforced(t *testing.T) {
	orch, _ := newTestOrchestrator(&fakeAPI{}, &fakeStreamer{})

	owner := entity.Visitor{VisitorID: "owner"}
	other := entity.Visitor{VisitorID: "other"}
	sess := orch.CreateSession(owner, SessionOptions{})

	_, err := orch.GetSession(sess.ID, other)
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	_, err = orch.Submit(context.Background(), sess.ID, other, "q", entity.SubmissionKindUserInput)
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestRemoveSessionRejectedWhileStreaming(t *testing.T) {
	streamer := &fakeStreamer{}
	orch, _ := newTestOrchestrator(&fakeAPI{}, streamer)

	visitor := entity.Visitor{VisitorID: "anon-1"}
	sess := orch.CreateSession(visitor, SessionOptions{})

	sub, err := orch.Submit(context.Background(), sess.ID, visitor, "q", entity.SubmissionKindUserInput)
	require.NoError(t, err)

	require.ErrorIs(t, orch.RemoveSession(sess.ID, visitor), apperrors.ErrSessionBusy)

	streamer.last().finish(nil)
	drain(sub)

	require.NoError(t, orch.RemoveSession(sess.ID, visitor))
	_, err = orch.GetSession(sess.ID, visitor)
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}
