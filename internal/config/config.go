// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Recovery      RecoveryConfig      `yaml:"recovery" mapstructure:"recovery"`
	Billing       BillingConfig       `yaml:"billing" mapstructure:"billing"`
	Safety        SafetyConfig        `yaml:"safety" mapstructure:"safety"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// IsTest 是否运行在测试环境（测试环境下关闭恢复层日志）
func (a AppConfig) IsTest() bool {
	return a.Env == "test"
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

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	MongoDB  MongoDBConfig  `yaml:"mongodb" mapstructure:"mongodb"`
}

// PostgresConfig PostgreSQL 配置（积分流水账本）
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// MongoDBConfig MongoDB 配置（站点产物存储）
type MongoDBConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	URI            string        `yaml:"uri" mapstructure:"uri"`
	Database       string        `yaml:"database" mapstructure:"database"`
	Collection     string        `yaml:"collection" mapstructure:"collection"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis         RedisConfig   `yaml:"redis" mapstructure:"redis"`
	GenerationTTL time.Duration `yaml:"generation_ttl" mapstructure:"generation_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	// FallbackChain model=auto 时的提供商优先级
	FallbackChain []string `yaml:"fallback_chain" mapstructure:"fallback_chain"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	APIKey        string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens     int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature   float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	StreamTimeout time.Duration `yaml:"stream_timeout" mapstructure:"stream_timeout"`
}

// RecoveryConfig AI 调用恢复层配置
type RecoveryConfig struct {
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`
	Jitter       bool          `yaml:"jitter" mapstructure:"jitter"`
}

// BillingConfig 计费配置（积分与套餐）
type BillingConfig struct {
	StartingBalance int64            `yaml:"starting_balance" mapstructure:"starting_balance"`
	CostPerUnit     float64          `yaml:"cost_per_unit" mapstructure:"cost_per_unit"`
	OperationCosts  map[string]int64 `yaml:"operation_costs" mapstructure:"operation_costs"`
	DailyLimits     map[string]int64 `yaml:"daily_limits" mapstructure:"daily_limits"`
	PlanCredits     map[string]int64 `yaml:"plan_credits" mapstructure:"plan_credits"`
	// WebhookSecret 积分发放回调的共享密钥，为空时关闭该接口
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
}

// SafetyConfig 内容安全配置
type SafetyConfig struct {
	// Level strict | moderate | minimal
	Level           string `yaml:"level" mapstructure:"level"`
	Sanitizer       bool   `yaml:"sanitizer" mapstructure:"sanitizer"`
	StructuralAudit bool   `yaml:"structural_audit" mapstructure:"structural_audit"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxLen       int64         `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	RetryLimit   int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	// DLQAlertThreshold 死信队列积压告警阈值，0 表示不监控
	DLQAlertThreshold int64 `yaml:"dlq_alert_threshold" mapstructure:"dlq_alert_threshold"`
}

// BackoffConfig 消费重试退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
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
	Output string `yaml:"output" mapstructure:"output"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter   string  `yaml:"exporter" mapstructure:"exporter"`
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
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// AuthConfig 认证配置；关闭时信任 X-User-ID 请求头
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
	Issuer  string `yaml:"issuer" mapstructure:"issuer"`
}

// RateLimitConfig 限流配置（滑动窗口）
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Window      time.Duration `yaml:"window" mapstructure:"window"`
	MaxRequests int64         `yaml:"max_requests" mapstructure:"max_requests"`
	KeyPrefix   string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
