// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// 支持的 LLM 后端
const (
	ProviderOpenAI      = "openai"
	ProviderFalcon      = "falcon"
	ProviderHuggingFace = "huggingface"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
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
	HTTP           HTTPServerConfig `yaml:"http" mapstructure:"http"`
	// TrustedProxies 可信反向代理（IP 或 CIDR）；为空时不采信任何转发头
	TrustedProxies []string         `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// LLMConfig LLM 配置
//
// Provider 在启动时选定一次，运行期间不再切换。
type LLMConfig struct {
	Provider       string                    `yaml:"provider" mapstructure:"provider"`
	Timeout        time.Duration             `yaml:"timeout" mapstructure:"timeout"`
	MaxConcurrency int                       `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	Providers      map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// Active 返回当前选中的提供商配置
func (c LLMConfig) Active() ProviderConfig {
	return c.Providers[strings.ToLower(c.Provider)]
}

// PipelineConfig 生成流水线配置
type PipelineConfig struct {
	RateLimit   RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Quota       QuotaConfig       `yaml:"quota" mapstructure:"quota"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Validation  ValidationConfig  `yaml:"validation" mapstructure:"validation"`
	PostProcess PostProcessConfig `yaml:"postprocess" mapstructure:"postprocess"`
	// JanitorInterval 后台清理过期桶/缓存的周期
	JanitorInterval time.Duration `yaml:"janitor_interval" mapstructure:"janitor_interval"`
}

// RateLimitConfig 滑动窗口限流配置
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxRequests int           `yaml:"max_requests" mapstructure:"max_requests"`
	Window      time.Duration `yaml:"window" mapstructure:"window"`
}

// QuotaConfig 每日配额配置
type QuotaConfig struct {
	Enabled           bool  `yaml:"enabled" mapstructure:"enabled"`
	MaxRequestsPerDay int64 `yaml:"max_requests_per_day" mapstructure:"max_requests_per_day"`
	MaxTokensPerDay   int64 `yaml:"max_tokens_per_day" mapstructure:"max_tokens_per_day"`
}

// CacheConfig 响应缓存配置
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
	// MaxEntries 为 0 表示不限制条目数
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// ValidationConfig 请求校验配置
type ValidationConfig struct {
	MinWordCount int `yaml:"min_word_count" mapstructure:"min_word_count"`
}

// PostProcessConfig 后处理配置
type PostProcessConfig struct {
	WordCountTolerance float64  `yaml:"word_count_tolerance" mapstructure:"word_count_tolerance"`
	WordsPerMinute     int      `yaml:"words_per_minute" mapstructure:"words_per_minute"`
	MaxKeywords        int      `yaml:"max_keywords" mapstructure:"max_keywords"`
	ArtifactPatterns   []string `yaml:"artifact_patterns" mapstructure:"artifact_patterns"`
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
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// Validate 校验启动配置，返回第一个发现的问题
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case ProviderOpenAI, ProviderFalcon, ProviderHuggingFace:
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.LLM.Active().BaseURL == "" && strings.ToLower(c.LLM.Provider) == ProviderFalcon {
		return fmt.Errorf("llm.providers.falcon.base_url is required for the falcon provider")
	}
	for _, p := range c.Server.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			return fmt.Errorf("server.trusted_proxies: invalid address %q", p)
		}
	}
	rl := c.Pipeline.RateLimit
	if rl.Enabled && (rl.MaxRequests <= 0 || rl.Window <= 0) {
		return fmt.Errorf("rate limit requires positive max_requests and window")
	}
	q := c.Pipeline.Quota
	if q.Enabled && (q.MaxRequestsPerDay <= 0 || q.MaxTokensPerDay <= 0) {
		return fmt.Errorf("quota requires positive daily request and token caps")
	}
	if c.Pipeline.Cache.TTL <= 0 {
		return fmt.Errorf("pipeline.cache.ttl must be positive")
	}
	if c.Pipeline.Cache.MaxEntries < 0 {
		return fmt.Errorf("pipeline.cache.max_entries must not be negative")
	}
	if c.Pipeline.Validation.MinWordCount <= 0 {
		return fmt.Errorf("pipeline.validation.min_word_count must be positive")
	}
	return nil
}
