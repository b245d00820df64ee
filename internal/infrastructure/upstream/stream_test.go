package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"directory-assistant-api/internal/config"
	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/internal/domain/repository"
)

func newStreamServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.UpstreamConfig{
		BaseURL:           srv.URL,
		Timeout:           5 * time.Second,
		StreamIdleTimeout: 5 * time.Second,
	})
}

func sseWrite(t *testing.T, w http.ResponseWriter, data string) {
	t.Helper()
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	require.NoError(t, err)
	w.(http.Flusher).Flush()
}

func collect(handle repository.StreamHandle) []entity.AnswerSnapshot {
	var snaps []entity.AnswerSnapshot
	for snap := range handle.Snapshots() {
		snaps = append(snaps, snap)
	}
	return snaps
}

func TestStreamDeliversProgressiveSnapshots(t *testing.T) {
	client := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		sseWrite(t, w, `{"content":"Hel"}`)
		sseWrite(t, w, `{"content":"Hello there","sources":["member/1"]}`)
		sseWrite(t, w, "[DONE]")
	})

	handle, err := client.Start(context.Background(), entity.Credentials{}, repository.ChatRequest{
		ThreadID: "t1", ChatID: "c1", Question: "hi",
	})
	require.NoError(t, err)

	snaps := collect(handle)
	require.NoError(t, handle.Err())
	require.Len(t, snaps, 2)
	require.Equal(t, "Hel", snaps[0].Content)
	require.Equal(t, "Hello there", snaps[1].Content)
	require.Equal(t, []string{"member/1"}, snaps[1].Sources)
}

func TestStreamMalformedFrameSkipped(t *testing.T) {
	client := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseWrite(t, w, `{not json`)
		sseWrite(t, w, `{"content":"ok"}`)
	})

	handle, err := client.Start(context.Background(), entity.Credentials{}, repository.ChatRequest{})
	require.NoError(t, err)

	snaps := collect(handle)
	require.NoError(t, handle.Err())
	require.Len(t, snaps, 1)
	require.Equal(t, "ok", snaps[0].Content)
}

func TestStreamCancelIsNotAnError(t *testing.T) {
	client := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseWrite(t, w, `{"content":"partial"}`)
		// 挂住连接直到客户端取消
		<-r.Context().Done()
	})

	handle, err := client.Start(context.Background(), entity.Credentials{}, repository.ChatRequest{})
	require.NoError(t, err)

	snap, ok := <-handle.Snapshots()
	require.True(t, ok)
	require.Equal(t, "partial", snap.Content)

	handle.Cancel()
	collect(handle)

	// 主动取消不是错误终态
	require.NoError(t, handle.Err())
}

func TestStreamIdleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseWrite(t, w, `{"content":"first"}`)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	client := NewClient(&config.UpstreamConfig{
		BaseURL:           srv.URL,
		Timeout:           5 * time.Second,
		StreamIdleTimeout: 50 * time.Millisecond,
	})

	handle, err := client.Start(context.Background(), entity.Credentials{}, repository.ChatRequest{})
	require.NoError(t, err)

	collect(handle)
	require.Error(t, handle.Err())
}

func TestStreamRejectedStatus(t *testing.T) {
	client := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	})

	_, err := client.Start(context.Background(), entity.Credentials{}, repository.ChatRequest{})
	require.Error(t, err)
}
