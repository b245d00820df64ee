// Package redis 提供 Redis 键值存储实现
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var kvTracer = otel.Tracer("redis.kv")

// KVStore Redis 键值存储
// 配额账本的持久化后端，实现 repository.KVStore
type KVStore struct {
	client *Client
}

// NewKVStore 创建键值存储
func NewKVStore(client *Client) *KVStore {
	return &KVStore{client: client}
}

// Get 读取键值；键不存在时 ok 为 false
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, span := kvTracer.Start(ctx, "kv.Get",
		trace.WithAttributes(attribute.String("kv.key", key)))
	defer span.End()

	val, err := s.client.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		span.RecordError(err)
		return "", false, err
	}
	return val, true, nil
}

// Set 写入键值；ttl 为 0 表示不过期
func (s *KVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, span := kvTracer.Start(ctx, "kv.Set",
		trace.WithAttributes(
			attribute.String("kv.key", key),
			attribute.Int64("kv.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	err := s.client.rdb.Set(ctx, key, value, ttl).Err()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Incr 原子自增；键首次创建时应用 ttl
func (s *KVStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, span := kvTracer.Start(ctx, "kv.Incr",
		trace.WithAttributes(attribute.String("kv.key", key)))
	defer span.End()

	val, err := s.client.rdb.Incr(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	if val == 1 && ttl > 0 {
		if err := s.client.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			span.RecordError(err)
		}
	}

	span.SetAttributes(attribute.Int64("kv.value", val))
	return val, nil
}

// Del 删除键
func (s *KVStore) Del(ctx context.Context, keys ...string) error {
	ctx, span := kvTracer.Start(ctx, "kv.Del",
		trace.WithAttributes(attribute.Int("kv.key_count", len(keys))))
	defer span.End()

	err := s.client.rdb.Del(ctx, keys...).Err()
	if err != nil {
		span.RecordError(err)
	}
	return err
}
