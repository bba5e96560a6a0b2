package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
)

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load from config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/aegis/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to read config file")
		}
	}

	// Load from environment variables
	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "invalid configuration")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.enable_pprof", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "aegis")
	v.SetDefault("tracing.sampling_rate", 0.1)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.store", "memory")
	v.SetDefault("rate_limit.suspicious_threshold", constants.DefaultSuspiciousThreshold)
	v.SetDefault("rate_limit.block_threshold", constants.DefaultBlockThreshold)
	v.SetDefault("rate_limit.block_duration", constants.DefaultBlockDuration)
	v.SetDefault("rate_limit.sweep_interval", constants.DefaultSweepInterval)
	v.SetDefault("rate_limit.retention", constants.DefaultStateRetention)

	v.SetDefault("dlp.enabled", true)
	v.SetDefault("dlp.redact_sensitive_data", true)
	v.SetDefault("dlp.scan_responses", true)
	v.SetDefault("dlp.auto_quarantine", false)
	v.SetDefault("dlp.exempt_paths", []string{"/health", "/metrics"})

	v.SetDefault("audit.queue_size", constants.DefaultAuditQueueSize)
	v.SetDefault("audit.database.dialect", "sqlite")
	v.SetDefault("audit.database.dsn", "file:aegis_audit.db?cache=shared")
	v.SetDefault("audit.kafka.enabled", false)
	v.SetDefault("audit.kafka.audit_topic", "aegis.audit.events")
	v.SetDefault("audit.kafka.write_timeout", "10s")
	v.SetDefault("audit.kafka.read_timeout", "10s")
	v.SetDefault("audit.kafka.batch_size", 100)
	v.SetDefault("audit.kafka.batch_timeout", "1s")
}
