package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"directory-assistant-api/internal/config"
	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/internal/infrastructure/persistence/memory"
)

type failingKV struct{}

func (failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("kv down")
}
func (failingKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("kv down")
}
func (failingKV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errors.New("kv down")
}
func (failingKV) Del(ctx context.Context, keys ...string) error {
	return errors.New("kv down")
}

func newTestLedger(t *testing.T, now func() time.Time) *QuotaLedger {
	t.Helper()
	store := memory.NewKVStore()
	ledger := NewQuotaLedger(store, &config.QuotaConfig{
		DailyLimit:    5,
		InfoRemaining: 2,
		Timezone:      "UTC",
	})
	if now != nil {
		ledger.WithClock(now)
	}
	return ledger
}

func TestQuotaClassificationProgression(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, nil)

	expected := []entity.QuotaLevel{
		entity.QuotaOK,           // 已用 0，剩 5
		entity.QuotaOK,           // 已用 1，剩 4
		entity.QuotaOK,           // 已用 2，剩 3
		entity.QuotaInfo,         // 已用 3，剩 2
		entity.QuotaFinalRequest, // 已用 4，剩 1
		entity.QuotaWarn,         // 已用 5，剩 0
	}

	for i, want := range expected {
		require.Equal(t, want, ledger.Classify(ctx, "v1"), "after %d uses", i)
		if i < len(expected)-1 {
			ledger.RecordUsage(ctx, "v1")
		}
	}
}

func TestQuotaCountMonotonicWithinDay(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, nil)

	for i := 1; i <= 3; i++ {
		ledger.RecordUsage(ctx, "v1")
		require.Equal(t, i, ledger.State(ctx, "v1").Count)
	}
}

func TestQuotaRolloverResetsCount(t *testing.T) {
	ctx := context.Background()

	current := time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)
	ledger := newTestLedger(t, func() time.Time { return current })

	for i := 0; i < 5; i++ {
		ledger.RecordUsage(ctx, "v1")
	}
	require.Equal(t, entity.QuotaWarn, ledger.Classify(ctx, "v1"))

	// 跨日后余量恢复
	current = current.Add(2 * time.Hour)
	require.Equal(t, entity.QuotaOK, ledger.Classify(ctx, "v1"))
	require.Equal(t, 0, ledger.State(ctx, "v1").Count)
}

func TestQuotaVisitorsIndependent(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, nil)

	for i := 0; i < 5; i++ {
		ledger.RecordUsage(ctx, "v1")
	}

	require.Equal(t, entity.QuotaWarn, ledger.Classify(ctx, "v1"))
	require.Equal(t, entity.QuotaOK, ledger.Classify(ctx, "v2"))
}

func TestQuotaStoreFailureDegradesToOK(t *testing.T) {
	ctx := context.Background()
	ledger := NewQuotaLedger(failingKV{}, &config.QuotaConfig{
		DailyLimit:    5,
		InfoRemaining: 2,
		Timezone:      "UTC",
	})

	// 存储故障不拦提问
	require.Equal(t, entity.QuotaOK, ledger.Classify(ctx, "v1"))
	require.NotPanics(t, func() { ledger.RecordUsage(ctx, "v1") })
}
