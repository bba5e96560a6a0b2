package config

import (
	"fmt"
	"time"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Session   SessionConfig   `mapstructure:"session"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	DLP       DLPConfig       `mapstructure:"dlp"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EnablePprof     bool          `mapstructure:"enable_pprof"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

type RedisConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Addresses    []string `mapstructure:"addresses"`
	Password     string   `mapstructure:"password"`
	DB           int      `mapstructure:"db"`
	PoolSize     int      `mapstructure:"pool_size"`
	MinIdleConns int      `mapstructure:"min_idle_conns"`
}

// SessionConfig controls how authenticated identities are resolved from
// inbound requests. Tokens are HMAC-signed session JWTs issued by the
// storefront's auth collaborator.
type SessionConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
	Issuer        string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Store               string        `mapstructure:"store"` // "memory" or "redis"
	SuspiciousThreshold int           `mapstructure:"suspicious_threshold"`
	BlockThreshold      int           `mapstructure:"block_threshold"`
	BlockDuration       time.Duration `mapstructure:"block_duration"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	Retention           time.Duration `mapstructure:"retention"`
}

type DLPConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	RedactSensitiveData bool     `mapstructure:"redact_sensitive_data"`
	ScanResponses       bool     `mapstructure:"scan_responses"`
	AutoQuarantine      bool     `mapstructure:"auto_quarantine"`
	QuarantineDir       string   `mapstructure:"quarantine_dir"`
	ExemptPaths         []string `mapstructure:"exempt_paths"`
	Whitelist           []string `mapstructure:"whitelist"`
	CustomPatternsFile  string   `mapstructure:"custom_patterns_file"`
	WebhookURL          string   `mapstructure:"webhook_url"`
}

type AuditConfig struct {
	QueueSize int            `mapstructure:"queue_size"`
	Database  DatabaseConfig `mapstructure:"database"`
	Kafka     KafkaConfig    `mapstructure:"kafka"`
}

type DatabaseConfig struct {
	Dialect string `mapstructure:"dialect"` // "sqlite" or "postgres"
	DSN     string `mapstructure:"dsn"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	AuditTopic   string        `mapstructure:"audit_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.BlockThreshold <= c.RateLimit.SuspiciousThreshold {
			return fmt.Errorf("block_threshold (%d) must exceed suspicious_threshold (%d)",
				c.RateLimit.BlockThreshold, c.RateLimit.SuspiciousThreshold)
		}
		if c.RateLimit.Store == "redis" && !c.Redis.Enabled {
			return fmt.Errorf("rate_limit.store is redis but redis is not enabled")
		}
	}
	if c.DLP.AutoQuarantine && c.DLP.QuarantineDir == "" {
		return fmt.Errorf("dlp.quarantine_dir is required when auto_quarantine is enabled")
	}
	if c.Audit.Kafka.Enabled && len(c.Audit.Kafka.Brokers) == 0 {
		return fmt.Errorf("audit.kafka.brokers is required when kafka is enabled")
	}
	return nil
}
