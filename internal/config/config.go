package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config represents the global configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Assistant    AssistantConfig    `mapstructure:"assistant"`
	Chat         ChatConfig         `mapstructure:"chat"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	CircuitBreak CircuitBreakConfig `mapstructure:"circuit_break"`
	Cache        CacheConfig        `mapstructure:"cache"`
	CORS         CORSConfig         `mapstructure:"cors"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderMB     int           `mapstructure:"max_header_mb"`
}

// BackendConfig is the storefront API the assistant reads from
type BackendConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	MaxBody   int64         `mapstructure:"max_body"`
}

// AssistantConfig is the OpenAI-compatible fallback for unmatched messages.
// An empty APIKey disables it.
type AssistantConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	HistoryTurns int           `mapstructure:"history_turns"`
}

// ChatConfig tunes conversations
type ChatConfig struct {
	MaxPages       int           `mapstructure:"max_pages"`
	RecentLimit    int           `mapstructure:"recent_limit"`
	MaxFAQs        int           `mapstructure:"max_faqs"`
	RewardCode     string        `mapstructure:"reward_code"`
	SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	Reminder       struct {
		Default time.Duration `mapstructure:"default"`
		Min     time.Duration `mapstructure:"min"`
		Max     time.Duration `mapstructure:"max"`
	} `mapstructure:"reminder"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	Charset         string        `mapstructure:"charset"`
	ParseTime       bool          `mapstructure:"parse_time"`
	Loc             string        `mapstructure:"loc"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// QueueConfig represents the in-process transcript queue
type QueueConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	Topic         string        `mapstructure:"topic"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig controls transcript archiving
type ArchiveConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Retention time.Duration `mapstructure:"retention"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Path            string        `mapstructure:"path"`
	CollectInterval time.Duration `mapstructure:"collect_interval"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	PerIP   struct {
		RPS   float64 `mapstructure:"rps"`
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"per_ip"`
	PerSession struct {
		Limit  int           `mapstructure:"limit"`
		Window time.Duration `mapstructure:"window"`
	} `mapstructure:"per_session"`
}

// CircuitBreakConfig represents circuit breaker configuration
type CircuitBreakConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// CacheConfig represents the catalog cache
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxSizeMB  int           `mapstructure:"max_size_mb"`
	MaxResults int           `mapstructure:"max_results"`
}

// CORSConfig represents cross-origin settings for the chat widget
type CORSConfig struct {
	AllowOrigins     []string      `mapstructure:"allow_origins"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// GetAddr returns the server address
func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetDSN returns the database DSN
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, d.Charset, d.ParseTime, url.QueryEscape(d.Loc))
}

// GetAddr returns the Redis address
func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base_url is required")
	}
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || !u.IsAbs() {
		return fmt.Errorf("backend base_url must be an absolute URL: %q", c.Backend.BaseURL)
	}

	if c.Chat.MaxPages <= 0 {
		return fmt.Errorf("chat max_pages must be positive: %d", c.Chat.MaxPages)
	}
	if c.Chat.Reminder.Min > c.Chat.Reminder.Max {
		return fmt.Errorf("chat reminder min %s exceeds max %s", c.Chat.Reminder.Min, c.Chat.Reminder.Max)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	return nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxHeaderMB == 0 {
		c.Server.MaxHeaderMB = 1
	}

	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 8 * time.Second
	}
	if c.Backend.UserAgent == "" {
		c.Backend.UserAgent = "storebot/1.0"
	}
	if c.Backend.MaxBody <= 0 {
		c.Backend.MaxBody = 4 << 20
	}

	if c.Assistant.Model == "" {
		c.Assistant.Model = "gpt-3.5-turbo"
	}
	if c.Assistant.MaxTokens == 0 {
		c.Assistant.MaxTokens = 300
	}
	if c.Assistant.Timeout == 0 {
		c.Assistant.Timeout = 15 * time.Second
	}
	if c.Assistant.HistoryTurns == 0 {
		c.Assistant.HistoryTurns = 6
	}

	if c.Chat.MaxPages == 0 {
		c.Chat.MaxPages = 5
	}
	if c.Chat.RecentLimit == 0 {
		c.Chat.RecentLimit = 3
	}
	if c.Chat.MaxFAQs == 0 {
		c.Chat.MaxFAQs = 5
	}
	if c.Chat.RewardCode == "" {
		c.Chat.RewardCode = "READMORE10"
	}
	if c.Chat.SessionIdleTTL == 0 {
		c.Chat.SessionIdleTTL = 30 * time.Minute
	}
	if c.Chat.SweepInterval == 0 {
		c.Chat.SweepInterval = time.Minute
	}
	if c.Chat.MaxSessions == 0 {
		c.Chat.MaxSessions = 10000
	}
	if c.Chat.SendTimeout == 0 {
		c.Chat.SendTimeout = 20 * time.Second
	}
	if c.Chat.Reminder.Default == 0 {
		c.Chat.Reminder.Default = 30 * time.Minute
	}
	if c.Chat.Reminder.Min == 0 {
		c.Chat.Reminder.Min = time.Minute
	}
	if c.Chat.Reminder.Max == 0 {
		c.Chat.Reminder.Max = 24 * time.Hour
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "Local"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 10 * time.Minute
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.MaxRetries == 0 {
		c.Redis.MaxRetries = 3
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.PoolTimeout == 0 {
		c.Redis.PoolTimeout = 4 * time.Second
	}

	if c.Queue.BufferSize == 0 {
		c.Queue.BufferSize = 256
	}
	if c.Queue.Topic == "" {
		c.Queue.Topic = "chat.transcripts"
	}
	if c.Queue.ConsumerGroup == "" {
		c.Queue.ConsumerGroup = "archive"
	}
	if c.Queue.Timeout == 0 {
		c.Queue.Timeout = 2 * time.Second
	}

	if c.Archive.Retention == 0 {
		c.Archive.Retention = 90 * 24 * time.Hour
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.CollectInterval == 0 {
		c.Metrics.CollectInterval = 15 * time.Second
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "storebot"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 0.1
	}

	if c.RateLimit.PerIP.RPS == 0 {
		c.RateLimit.PerIP.RPS = 5
	}
	if c.RateLimit.PerIP.Burst == 0 {
		c.RateLimit.PerIP.Burst = 20
	}
	if c.RateLimit.PerSession.Limit == 0 {
		c.RateLimit.PerSession.Limit = 20
	}
	if c.RateLimit.PerSession.Window == 0 {
		c.RateLimit.PerSession.Window = time.Minute
	}

	if c.CircuitBreak.MaxRequests == 0 {
		c.CircuitBreak.MaxRequests = 1
	}
	if c.CircuitBreak.Interval == 0 {
		c.CircuitBreak.Interval = time.Minute
	}
	if c.CircuitBreak.Timeout == 0 {
		c.CircuitBreak.Timeout = 30 * time.Second
	}
	if c.CircuitBreak.ConsecutiveFailures == 0 {
		c.CircuitBreak.ConsecutiveFailures = 5
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = 2 * time.Minute
	}
	if c.Cache.MaxResults == 0 {
		c.Cache.MaxResults = 5
	}

	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"*"}
	}
	if c.CORS.MaxAge == 0 {
		c.CORS.MaxAge = 12 * time.Hour
	}
}
