// Package messaging 提供历史变更信号的跨实例广播
// 信号经 Redis Stream 扇出：本实例发布，所有实例的监听循环
// 把流上的事件桥接进各自的进程内信号集线器
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"directory-assistant-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// HistoryEvent 历史变更事件
// 不携带业务载荷，监听方收到后自行重新拉取线程列表
type HistoryEvent struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// HistorySignalProducer 历史变更信号生产者，实现 repository.HistoryNotifier
type HistorySignalProducer struct {
	client *redis.Client
	stream string
	origin string
	maxLen int64
}

// NewHistorySignalProducer 创建信号生产者
// origin 标识本实例，监听循环据此跳过自己发布的事件
func NewHistorySignalProducer(client *redis.Client, stream, origin string, maxLen int64) *HistorySignalProducer {
	if maxLen <= 0 {
		maxLen = 10000
	}
	if origin == "" {
		origin = uuid.New().String()
	}
	return &HistorySignalProducer{
		client: client,
		stream: stream,
		origin: origin,
		maxLen: maxLen,
	}
}

// Origin 返回本实例标识
func (p *HistorySignalProducer) Origin() string {
	return p.origin
}

// HistoryChanged 发布历史变更事件
// 广播失败只记录日志：信号是尽力而为的，不能反过来破坏消息主路径
func (p *HistorySignalProducer) HistoryChanged(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "messaging.HistoryChanged",
		trace.WithAttributes(attribute.String("stream", p.stream)))
	defer span.End()

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":     uuid.New().String(),
			"origin": p.origin,
			"at":     time.Now().UnixMilli(),
		},
	}).Err()
	if err != nil {
		span.RecordError(err)
		logger.Error(ctx, "failed to publish history signal", err, "stream", p.stream)
	}
}

// HistorySignalListener 历史变更信号监听循环
type HistorySignalListener struct {
	client       *redis.Client
	stream       string
	skipOrigin   string
	blockTimeout time.Duration
	forward      func()
	stopCh       chan struct{}
}

// NewHistorySignalListener 创建监听循环
// forward 在收到其他实例的事件时被调用（通常桥接到进程内集线器）
func NewHistorySignalListener(client *redis.Client, stream, skipOrigin string, forward func()) *HistorySignalListener {
	return &HistorySignalListener{
		client:       client,
		stream:       stream,
		skipOrigin:   skipOrigin,
		blockTimeout: 5 * time.Second,
		forward:      forward,
		stopCh:       make(chan struct{}),
	}
}

// Start 启动监听
func (l *HistorySignalListener) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop 停止监听
func (l *HistorySignalListener) Stop() {
	close(l.stopCh)
}

// run 监听循环
// 从 "$" 开始只关心新事件：错过的信号无需补投，监听方反正会整表重拉
func (l *HistorySignalListener) run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("history signal listener started", "stream", l.stream)

	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			log.Info("history signal listener stopped due to context cancellation")
			return
		case <-l.stopCh:
			log.Info("history signal listener stopped")
			return
		default:
		}

		streams, err := l.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{l.stream, lastID},
			Count:   16,
			Block:   l.blockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to read history signal stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				if origin, ok := msg.Values["origin"].(string); ok && origin == l.skipOrigin {
					continue
				}
				l.forward()
			}
		}
	}
}
