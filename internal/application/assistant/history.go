package assistant

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/internal/domain/repository"
	"directory-assistant-api/pkg/metrics"
)

// 固定的近期分桶键
const (
	BucketToday     = "today"
	BucketYesterday = "yesterday"
	BucketLastWeek  = "lastWeek"
	BucketLastMonth = "lastMonth"
)

// RecencyBucket 按时间窗分组的线程列表
type RecencyBucket struct {
	Key     string                  `json:"key"`
	Threads []*entity.ThreadSummary `json:"threads"`
}

type cachedThreads struct {
	threads   []*entity.ThreadSummary
	fetchedAt time.Time
}

// HistoryBrowser 历史线程浏览器
// 列表走短时缓存并用 singleflight 合并并发拉取；
// 完整线程内容只在用户选中时按需解析，从不预取
type HistoryBrowser struct {
	api      repository.DirectoryAPI
	cacheTTL time.Duration
	group    singleflight.Group

	mu    sync.Mutex
	cache map[string]cachedThreads

	now func() time.Time
}

// NewHistoryBrowser 创建历史浏览器
func NewHistoryBrowser(api repository.DirectoryAPI, cacheTTL time.Duration) *HistoryBrowser {
	return &HistoryBrowser{
		api:      api,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cachedThreads),
		now:      time.Now,
	}
}

// ListThreads 拉取访客的线程摘要列表
func (b *HistoryBrowser) ListThreads(ctx context.Context, visitor entity.Visitor) ([]*entity.ThreadSummary, error) {
	b.mu.Lock()
	cached, ok := b.cache[visitor.VisitorID]
	b.mu.Unlock()

	if ok && b.now().Sub(cached.fetchedAt) < b.cacheTTL {
		metrics.HistoryFetchesTotal.WithLabelValues("cache").Inc()
		return cached.threads, nil
	}

	v, err, _ := b.group.Do(visitor.VisitorID, func() (interface{}, error) {
		threads, err := b.api.ListThreads(ctx, visitor.Credentials)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.cache[visitor.VisitorID] = cachedThreads{threads: threads, fetchedAt: b.now()}
		b.mu.Unlock()
		return threads, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.HistoryFetchesTotal.WithLabelValues("upstream").Inc()
	return v.([]*entity.ThreadSummary), nil
}

// Invalidate 丢弃访客的列表缓存（收到历史变更信号时调用）
func (b *HistoryBrowser) Invalidate(visitorID string) {
	b.mu.Lock()
	delete(b.cache, visitorID)
	b.mu.Unlock()
}

// ResolveThread 按需拉取完整线程内容
func (b *HistoryBrowser) ResolveThread(ctx context.Context, creds entity.Credentials, threadID string) (*entity.FullThread, error) {
	return b.api.GetThread(ctx, creds, threadID)
}

// GroupByRecency 把线程按创建时间分入近期桶
//
// 桶序固定：today, yesterday, lastWeek（≤7 天，不含前两者）,
// lastMonth（≤30 天，不含前三者）, 之后按年份降序各一桶。
// 空桶不输出；桶内按 createdAt 降序
func GroupByRecency(threads []*entity.ThreadSummary, now time.Time) []RecencyBucket {
	grouped := make(map[string][]*entity.ThreadSummary)
	var years []int
	seenYears := make(map[int]bool)

	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, t := range threads {
		created := t.CreatedAt.In(now.Location())
		startOfDay := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, now.Location())
		daysAgo := int(startOfToday.Sub(startOfDay).Hours() / 24)

		var key string
		switch {
		case daysAgo <= 0:
			key = BucketToday
		case daysAgo == 1:
			key = BucketYesterday
		case daysAgo <= 7:
			key = BucketLastWeek
		case daysAgo <= 30:
			key = BucketLastMonth
		default:
			year := created.Year()
			key = strconv.Itoa(year)
			if !seenYears[year] {
				seenYears[year] = true
				years = append(years, year)
			}
		}
		grouped[key] = append(grouped[key], t)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	keys := []string{BucketToday, BucketYesterday, BucketLastWeek, BucketLastMonth}
	for _, y := range years {
		keys = append(keys, strconv.Itoa(y))
	}

	var buckets []RecencyBucket
	for _, key := range keys {
		threads := grouped[key]
		if len(threads) == 0 {
			continue
		}
		sort.SliceStable(threads, func(i, j int) bool {
			return threads[i].CreatedAt.After(threads[j].CreatedAt)
		})
		buckets = append(buckets, RecencyBucket{Key: key, Threads: threads})
	}
	return buckets
}
