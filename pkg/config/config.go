package config

import (
	"fmt"
	"time"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Provision  ProvisionConfig  `mapstructure:"provision"`
	Deploy     DeployConfig     `mapstructure:"deploy"`
	API        APIConfig        `mapstructure:"api"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Events     EventsConfig     `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Name             string        `mapstructure:"name"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	MaxConnections   int           `mapstructure:"max_connections"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	MigrationTimeout time.Duration `mapstructure:"migration_timeout"`
}

func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslMode,
	)
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// CollectorConfig selects the metric source samplers read from.
type CollectorConfig struct {
	Type           string               `mapstructure:"type"`
	Endpoint       string               `mapstructure:"endpoint"`
	Interval       time.Duration        `mapstructure:"interval"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	RetryAttempts  int                  `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration        `mapstructure:"retry_delay"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	// MockValues seeds the mock source, keyed by "opstring/service/sla".
	MockValues map[string]float64 `mapstructure:"mock_values"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type WatchConfig struct {
	Size        int    `mapstructure:"size"`
	Aggregation string `mapstructure:"aggregation"`
}

// PolicyConfig carries the SLA defaults applied to op-string descriptors
// and the handler timing knobs.
type PolicyConfig struct {
	DefaultMinServices int           `mapstructure:"default_min_services"`
	DefaultMaxServices int           `mapstructure:"default_max_services"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	RescheduleDelay    time.Duration `mapstructure:"reschedule_delay"`
}

type ProvisionConfig struct {
	Delay      time.Duration  `mapstructure:"delay"`
	MaxRetries int            `mapstructure:"max_retries"`
	RetryDelay time.Duration  `mapstructure:"retry_delay"`
	Ledger     string         `mapstructure:"ledger"`
	Launcher   LauncherConfig `mapstructure:"launcher"`
}

type LauncherConfig struct {
	StartupTime time.Duration `mapstructure:"startup_time"`
	FailureRate float64       `mapstructure:"failure_rate"`
	Host        string        `mapstructure:"host"`
}

type DeployConfig struct {
	Files []string `mapstructure:"files"`
}

type APIConfig struct {
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	RateLimit     int           `mapstructure:"rate_limit"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTDuration   time.Duration `mapstructure:"jwt_duration"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassHash string        `mapstructure:"admin_password_hash"`
	DefaultLimit  int           `mapstructure:"default_limit"`
	MaxLimit      int           `mapstructure:"max_limit"`
	CORS          CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type WebSocketConfig struct {
	MaxConnections  int           `mapstructure:"max_connections"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	ClientBuffer    int           `mapstructure:"client_buffer"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type EventsConfig struct {
	BufferSize   int           `mapstructure:"buffer_size"`
	History      int           `mapstructure:"history"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}
