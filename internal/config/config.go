// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream" mapstructure:"upstream"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Quota         QuotaConfig         `yaml:"quota" mapstructure:"quota"`
	History       HistoryConfig       `yaml:"history" mapstructure:"history"`
	Signal        SignalConfig        `yaml:"signal" mapstructure:"signal"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// UpstreamConfig 上游目录 API 配置
type UpstreamConfig struct {
	// BaseURL 目录平台 API 根地址
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// APIKey 服务间调用密钥（可选，透传会员令牌时不需要）
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// Timeout 非流式调用超时
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// StreamIdleTimeout 流式响应两帧之间的最大间隔
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout" mapstructure:"stream_idle_timeout"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	// Enabled 为 false 时退化为进程内存储（本地开发）
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// QuotaConfig 匿名访客每日配额配置
type QuotaConfig struct {
	// DailyLimit 每日提问上限 L
	DailyLimit int `yaml:"daily_limit" mapstructure:"daily_limit"`
	// InfoRemaining 剩余量小于等于该值时返回 info 级提示
	InfoRemaining int `yaml:"info_remaining" mapstructure:"info_remaining"`
	// Timezone 判定"今天"使用的 IANA 时区
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// HistoryConfig 历史列表配置
type HistoryConfig struct {
	// CacheTTL 线程列表缓存时长
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// SignalConfig 历史变更信号配置
type SignalConfig struct {
	// RedisFanout 是否通过 Redis Stream 跨实例广播
	RedisFanout bool `yaml:"redis_fanout" mapstructure:"redis_fanout"`
	// Stream Redis Stream 名称
	Stream string `yaml:"stream" mapstructure:"stream"`
	// MaxLen Stream 最大长度（近似裁剪）
	MaxLen int64 `yaml:"max_len" mapstructure:"max_len"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT  JWTConfig  `yaml:"jwt" mapstructure:"jwt"`
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret string `yaml:"secret" mapstructure:"secret"`
	Issuer string `yaml:"issuer" mapstructure:"issuer"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
