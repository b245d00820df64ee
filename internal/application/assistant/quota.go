package assistant

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"directory-assistant-api/internal/config"
	"directory-assistant-api/internal/domain/entity"
	"directory-assistant-api/internal/domain/repository"
	"directory-assistant-api/pkg/logger"
)

// 配额键在跨日后自然过期的兜底时长
const quotaKeyTTL = 48 * time.Hour

// QuotaLedger 匿名访客每日配额账本
// 纯准入控制组件：计数单调递增，跨日读取时隐式归零，从不向调用方返回错误
type QuotaLedger struct {
	store         repository.KVStore
	limit         int
	infoRemaining int
	loc           *time.Location
	now           func() time.Time
}

// NewQuotaLedger 创建配额账本
func NewQuotaLedger(store repository.KVStore, cfg *config.QuotaConfig) *QuotaLedger {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}

	limit := cfg.DailyLimit
	if limit <= 0 {
		limit = 5
	}

	return &QuotaLedger{
		store:         store,
		limit:         limit,
		infoRemaining: cfg.InfoRemaining,
		loc:           loc,
		now:           time.Now,
	}
}

// WithClock 注入自定义时钟（测试用）
func (l *QuotaLedger) WithClock(now func() time.Time) *QuotaLedger {
	l.now = now
	return l
}

func quotaCountKey(visitorID string) string {
	return fmt.Sprintf("quota:cnt:%s", visitorID)
}

func quotaDayKey(visitorID string) string {
	return fmt.Sprintf("quota:day:%s", visitorID)
}

// today 返回配置时区下的当日标识
func (l *QuotaLedger) today() string {
	return l.now().In(l.loc).Format("2006-01-02")
}

// rollover 检测跨日并归零，返回当日计数
func (l *QuotaLedger) rollover(ctx context.Context, visitorID string) (int, error) {
	today := l.today()

	day, ok, err := l.store.Get(ctx, quotaDayKey(visitorID))
	if err != nil {
		return 0, err
	}
	if !ok || day != today {
		if err := l.store.Del(ctx, quotaCountKey(visitorID)); err != nil {
			return 0, err
		}
		if err := l.store.Set(ctx, quotaDayKey(visitorID), today, quotaKeyTTL); err != nil {
			return 0, err
		}
		return 0, nil
	}

	raw, ok, err := l.store.Get(ctx, quotaCountKey(visitorID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return count, nil
}

// RecordUsage 记录一次当日用量
// 账本故障只记日志：记账失败不能拦住正常提问
func (l *QuotaLedger) RecordUsage(ctx context.Context, visitorID string) {
	if _, err := l.rollover(ctx, visitorID); err != nil {
		logger.Error(ctx, "quota rollover failed", err, "visitor_id", visitorID)
		return
	}
	if _, err := l.store.Incr(ctx, quotaCountKey(visitorID), quotaKeyTTL); err != nil {
		logger.Error(ctx, "quota increment failed", err, "visitor_id", visitorID)
	}
}

// Classify 对当日用量分级
// 账本故障时退化为 ok：配额是软保护，存储抖动不应硬拦会员
func (l *QuotaLedger) Classify(ctx context.Context, visitorID string) entity.QuotaLevel {
	count, err := l.rollover(ctx, visitorID)
	if err != nil {
		logger.Error(ctx, "quota classify failed", err, "visitor_id", visitorID)
		return entity.QuotaOK
	}
	return l.classify(count)
}

// classify 按剩余量分级
func (l *QuotaLedger) classify(count int) entity.QuotaLevel {
	remaining := l.limit - count
	switch {
	case remaining <= 0:
		return entity.QuotaWarn
	case remaining == 1:
		return entity.QuotaFinalRequest
	case remaining <= l.infoRemaining:
		return entity.QuotaInfo
	default:
		return entity.QuotaOK
	}
}

// State 返回当日配额状态快照
func (l *QuotaLedger) State(ctx context.Context, visitorID string) entity.QuotaState {
	count, err := l.rollover(ctx, visitorID)
	if err != nil {
		logger.Error(ctx, "quota state failed", err, "visitor_id", visitorID)
		count = 0
	}
	day, _ := time.ParseInLocation("2006-01-02", l.today(), l.loc)
	return entity.QuotaState{
		Count:          count,
		Day:            day,
		Classification: l.classify(count),
	}
}
