package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const DefaultJWTSecret = "change-me-in-production"

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/orchestrator")
	}

	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no file: defaults and env only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "elastic-orchestrator")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "orchestrator")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "1m")
	v.SetDefault("database.ping_timeout", "5s")
	v.SetDefault("database.migration_timeout", "30s")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "orchestrator")

	v.SetDefault("collector.type", "http")
	v.SetDefault("collector.endpoint", "http://localhost:9000")
	v.SetDefault("collector.interval", "5s")
	v.SetDefault("collector.timeout", "2s")
	v.SetDefault("collector.retry_attempts", 3)
	v.SetDefault("collector.retry_delay", "200ms")
	v.SetDefault("collector.circuit_breaker.max_failures", 5)
	v.SetDefault("collector.circuit_breaker.timeout", "30s")

	v.SetDefault("watch.size", 30)
	v.SetDefault("watch.aggregation", "last")

	v.SetDefault("policy.default_min_services", 1)
	v.SetDefault("policy.default_max_services", -1)
	v.SetDefault("policy.request_timeout", "10s")
	v.SetDefault("policy.reschedule_delay", "1s")

	v.SetDefault("provision.delay", "0s")
	v.SetDefault("provision.max_retries", 3)
	v.SetDefault("provision.retry_delay", "2s")
	v.SetDefault("provision.ledger", "memory")
	v.SetDefault("provision.launcher.startup_time", "2s")
	v.SetDefault("provision.launcher.failure_rate", 0.0)
	v.SetDefault("provision.launcher.host", "127.0.0.1")

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.jwt_secret", DefaultJWTSecret)
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.jwt_issuer", "elastic-orchestrator")
	v.SetDefault("api.admin_user", "admin")
	v.SetDefault("api.default_limit", 50)
	v.SetDefault("api.max_limit", 500)
	v.SetDefault("api.cors.allowed_origins", []string{"*"})
	v.SetDefault("api.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("api.cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"})
	v.SetDefault("api.cors.exposed_headers", []string{"X-Trace-ID"})

	v.SetDefault("websocket.max_connections", 1000)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.max_message_size", 512)
	v.SetDefault("websocket.broadcast_buffer", 256)
	v.SetDefault("websocket.client_buffer", 256)

	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.port", 9090)

	v.SetDefault("events.buffer_size", 100)
	v.SetDefault("events.history", 500)
	v.SetDefault("events.write_timeout", "5s")
}
