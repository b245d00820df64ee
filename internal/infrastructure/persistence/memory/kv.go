// Package memory 提供进程内键值存储实现
// 本地开发和测试时替代 Redis，实现 repository.KVStore
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// KVStore 进程内键值存储
type KVStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewKVStore 创建进程内键值存储
func NewKVStore() *KVStore {
	return &KVStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// NewKVStoreWithClock 创建带自定义时钟的存储（测试用）
func NewKVStoreWithClock(now func() time.Time) *KVStore {
	return &KVStore{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Get 读取键值；键不存在或已过期时 ok 为 false
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || e.expired(s.now()) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set 写入键值；ttl 为 0 表示不过期
func (s *KVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Incr 原子自增；键首次创建时应用 ttl
func (s *KVStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, exists := s.entries[key]
	if !exists || e.expired(now) {
		e = entry{value: "0"}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
	}

	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.entries[key] = e
	return n, nil
}

// Del 删除键
func (s *KVStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}
