package repository

import (
	"context"
	"time"
)

// KVStore 小型键值端口
// 配额账本的持久化抽象，可注入 Redis 或内存实现
type KVStore interface {
	// Get 读取键值；键不存在时 ok 为 false，不视为错误
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set 写入键值；ttl 为 0 表示不过期
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr 原子自增并返回新值；键首次创建时应用 ttl
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Del 删除键
	Del(ctx context.Context, keys ...string) error
}
