package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"directory-assistant-api/internal/domain/entity"
)

func summaryAt(id string, createdAt time.Time) *entity.ThreadSummary {
	return &entity.ThreadSummary{ThreadID: id, Title: id, CreatedAt: createdAt, UpdatedAt: createdAt}
}

func TestGroupByRecencyBuckets(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)

	threads := []*entity.ThreadSummary{
		summaryAt("today-old", now.Add(-6*time.Hour)),
		summaryAt("today-new", now.Add(-1*time.Hour)),
		summaryAt("yesterday", now.Add(-24*time.Hour)),
		summaryAt("last-week", now.Add(-5*24*time.Hour)),
		summaryAt("last-month", now.Add(-20*24*time.Hour)),
		summaryAt("this-year", now.Add(-100*24*time.Hour)),
		summaryAt("2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
	}

	buckets := GroupByRecency(threads, now)

	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = b.Key
	}
	require.Equal(t, []string{
		BucketToday, BucketYesterday, BucketLastWeek, BucketLastMonth, "2026", "2024",
	}, keys)

	// 桶内按创建时间降序
	require.Equal(t, "today-new", buckets[0].Threads[0].ThreadID)
	require.Equal(t, "today-old", buckets[0].Threads[1].ThreadID)
}

func TestGroupByRecencyBoundaries(t *testing.T) {
	now := time.Date(2026, 8, 29, 0, 30, 0, 0, time.UTC)

	threads := []*entity.ThreadSummary{
		// 一小时前但已是昨天的日历日
		summaryAt("calendar-yesterday", now.Add(-time.Hour)),
		// 恰好 7 个日历日前仍算上周
		summaryAt("week-edge", now.AddDate(0, 0, -7)),
		// 第 8 天滑入上月桶
		summaryAt("month-start", now.AddDate(0, 0, -8)),
		// 恰好 30 个日历日前仍算上月
		summaryAt("month-edge", now.AddDate(0, 0, -30)),
		summaryAt("beyond", now.AddDate(0, 0, -31)),
	}

	buckets := GroupByRecency(threads, now)
	byKey := make(map[string][]string)
	for _, b := range buckets {
		for _, th := range b.Threads {
			byKey[b.Key] = append(byKey[b.Key], th.ThreadID)
		}
	}

	require.Equal(t, []string{"calendar-yesterday"}, byKey[BucketYesterday])
	require.Equal(t, []string{"week-edge"}, byKey[BucketLastWeek])
	require.ElementsMatch(t, []string{"month-start", "month-edge"}, byKey[BucketLastMonth])
	require.Equal(t, []string{"beyond"}, byKey["2026"])
}

func TestGroupByRecencyOmitsEmptyBuckets(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	buckets := GroupByRecency([]*entity.ThreadSummary{summaryAt("only", now)}, now)

	require.Len(t, buckets, 1)
	require.Equal(t, BucketToday, buckets[0].Key)
}

func TestHistoryBrowserCachesList(t *testing.T) {
	api := &fakeAPI{threads: []*entity.ThreadSummary{summaryAt("t1", time.Now())}}
	browser := NewHistoryBrowser(api, time.Minute)
	visitor := entity.Visitor{VisitorID: "v1", Credentials: memberCreds}

	ctx := context.Background()
	_, err := browser.ListThreads(ctx, visitor)
	require.NoError(t, err)
	_, err = browser.ListThreads(ctx, visitor)
	require.NoError(t, err)

	require.Equal(t, 1, api.listCalls)

	// 失效后回源
	browser.Invalidate("v1")
	_, err = browser.ListThreads(ctx, visitor)
	require.NoError(t, err)
	require.Equal(t, 2, api.listCalls)
}

func TestHistoryBrowserCacheExpires(t *testing.T) {
	api := &fakeAPI{}
	browser := NewHistoryBrowser(api, 30*time.Second)

	current := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	browser.now = func() time.Time { return current }

	visitor := entity.Visitor{VisitorID: "v1", Credentials: memberCreds}
	ctx := context.Background()

	_, err := browser.ListThreads(ctx, visitor)
	require.NoError(t, err)

	current = current.Add(time.Minute)
	_, err = browser.ListThreads(ctx, visitor)
	require.NoError(t, err)
	require.Equal(t, 2, api.listCalls)
}
