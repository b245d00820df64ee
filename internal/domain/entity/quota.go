package entity

import "time"

// QuotaLevel 配额分级结果
type QuotaLevel string

const (
	// QuotaOK 远未达到上限
	QuotaOK QuotaLevel = "ok"
	// QuotaInfo 接近上限的提示，不拦截
	QuotaInfo QuotaLevel = "info"
	// QuotaFinalRequest 仅剩最后一次，不拦截
	QuotaFinalRequest QuotaLevel = "finalRequest"
	// QuotaWarn 已达或超过上限，拒绝提交
	QuotaWarn QuotaLevel = "warn"
)

// QuotaState 匿名访客当日用量状态
// Count 在一个自然日内单调不减，跨日读取时隐式归零
type QuotaState struct {
	Count          int        `json:"count"`
	Day            time.Time  `json:"day"`
	Classification QuotaLevel `json:"classification"`
}
