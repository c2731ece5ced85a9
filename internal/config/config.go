package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for compass.
// Values are loaded from environment variables; see the CLI help for the full list.
type Config struct {
	StoreDriver string `json:"store_driver"`
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	// N8NAPIKey guards the machine routes under /api/n8n. When empty those
	// routes answer 500.
	N8NAPIKey string `json:"-"`
	// AdminAPIKey guards the dashboard and admin routes. Empty leaves them open.
	AdminAPIKey string `json:"-"`

	N8NWebhookBaseURL string        `json:"n8n_webhook_base_url,omitempty"`
	WebhookSecret     string        `json:"-"`
	WebhookTimeout    time.Duration `json:"-"`
	WebhookTimeoutStr string        `json:"webhook_timeout"`

	WordPressTimeout    time.Duration `json:"-"`
	WordPressTimeoutStr string        `json:"wordpress_timeout"`
	// WordPressRateLimit is requests per second per WordPress host; 0 disables.
	WordPressRateLimit float64 `json:"wordpress_rate_limit"`

	ScheduleTimezone string         `json:"schedule_timezone"`
	ScheduleLocation *time.Location `json:"-"`

	// APIRateLimit is inbound requests per second per client IP; 0 disables.
	APIRateLimit float64 `json:"api_rate_limit"`
	APIRateBurst int     `json:"api_rate_burst"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	TriggerEnabled     bool   `json:"trigger_enabled"`
	TriggerSpec        string `json:"trigger_spec"`
	TriggerConcurrency int    `json:"trigger_concurrency"`

	ReaperEnabled      bool          `json:"reaper_enabled"`
	ReaperSpec         string        `json:"reaper_spec"`
	ReaperThreshold    time.Duration `json:"-"`
	ReaperThresholdStr string        `json:"reaper_threshold"`
	ReaperBatchSize    int           `json:"reaper_batch_size"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderLockKey int64 `json:"leader_lock_key"`

	// LeaderRetryInterval determines the maximum failover gap.
	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	// LeaderHeartbeatInterval: pings the dedicated connection to detect local
	// connection death. Does NOT renew the advisory lock.
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// Load reads configuration from environment variables with defaults.
// Unparseable durations are left zero; Validate reports them.
func Load() Config {
	cfg := Config{
		StoreDriver:       envOr("STORE_DRIVER", StoreDriverPostgres),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		HTTPAddr:          os.Getenv("HTTP_ADDR"),
		N8NAPIKey:         os.Getenv("N8N_API_KEY"),
		AdminAPIKey:       os.Getenv("ADMIN_API_KEY"),
		N8NWebhookBaseURL: os.Getenv("N8N_WEBHOOK_BASE_URL"),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		ScheduleTimezone:  envOr("SCHEDULE_TIMEZONE", "UTC"),
		MetricsEnabled:    os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:       envOr("METRICS_PATH", "/metrics"),
		MetricsPort:       envOr("METRICS_PORT", "9090"),
		TriggerEnabled:    os.Getenv("TRIGGER_ENABLED") == "true",
		TriggerSpec:       envOr("TRIGGER_SPEC", "@every 1m"),
		ReaperEnabled:     os.Getenv("REAPER_ENABLED") == "true",
		ReaperSpec:        envOr("REAPER_SPEC", "@every 5m"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "json"),

		DBOpTimeoutStr:             envOr("DB_OP_TIMEOUT", "5s"),
		DBConnMaxLifetimeStr:       envOr("DB_CONN_MAX_LIFETIME", "30m"),
		DBConnMaxIdleTimeStr:       envOr("DB_CONN_MAX_IDLE_TIME", "5m"),
		HTTPShutdownTimeoutStr:     envOr("HTTP_SHUTDOWN_TIMEOUT", "10s"),
		WebhookTimeoutStr:          envOr("WEBHOOK_TIMEOUT", "30s"),
		WordPressTimeoutStr:        envOr("WORDPRESS_TIMEOUT", "15s"),
		ReaperThresholdStr:         envOr("REAPER_THRESHOLD", "30m"),
		CircuitBreakerCooldownStr:  envOr("CIRCUIT_BREAKER_COOLDOWN", "2m"),
		LeaderRetryIntervalStr:     envOr("LEADER_RETRY_INTERVAL", "5s"),
		LeaderHeartbeatIntervalStr: envOr("LEADER_HEARTBEAT_INTERVAL", "2s"),

		DBMaxOpenConns:     envPositiveInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:     envPositiveInt("DB_MAX_IDLE_CONNS", 5),
		TriggerConcurrency: envPositiveInt("TRIGGER_CONCURRENCY", 4),
		ReaperBatchSize:    envPositiveInt("REAPER_BATCH_SIZE", 100),
		APIRateBurst:       envPositiveInt("API_RATE_BURST", 20),
		LeaderLockKey:      int64(envPositiveInt("LEADER_LOCK_KEY", 728380)),

		WordPressRateLimit: envRate("WORDPRESS_RATE_LIMIT", 2),
		APIRateLimit:       envRate("API_RATE_LIMIT", 10),
	}

	if s := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Warn().Str("value", s).Msg("config: invalid CIRCUIT_BREAKER_THRESHOLD, using default 5")
			cfg.CircuitBreakerThreshold = 5
		}
	} else {
		cfg.CircuitBreakerThreshold = 5
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}

	// Parse durations; validation is handled separately by Validate().
	for _, d := range cfg.durations() {
		if v, err := time.ParseDuration(*d.raw); err == nil {
			*d.dst = v
		}
	}
	if loc, err := time.LoadLocation(cfg.ScheduleTimezone); err == nil {
		cfg.ScheduleLocation = loc
	}

	return cfg
}

type durationField struct {
	env string
	raw *string
	dst *time.Duration
}

func (c *Config) durations() []durationField {
	return []durationField{
		{"DB_OP_TIMEOUT", &c.DBOpTimeoutStr, &c.DBOpTimeout},
		{"DB_CONN_MAX_LIFETIME", &c.DBConnMaxLifetimeStr, &c.DBConnMaxLifetime},
		{"DB_CONN_MAX_IDLE_TIME", &c.DBConnMaxIdleTimeStr, &c.DBConnMaxIdleTime},
		{"HTTP_SHUTDOWN_TIMEOUT", &c.HTTPShutdownTimeoutStr, &c.HTTPShutdownTimeout},
		{"WEBHOOK_TIMEOUT", &c.WebhookTimeoutStr, &c.WebhookTimeout},
		{"WORDPRESS_TIMEOUT", &c.WordPressTimeoutStr, &c.WordPressTimeout},
		{"REAPER_THRESHOLD", &c.ReaperThresholdStr, &c.ReaperThreshold},
		{"CIRCUIT_BREAKER_COOLDOWN", &c.CircuitBreakerCooldownStr, &c.CircuitBreakerCooldown},
		{"LEADER_RETRY_INTERVAL", &c.LeaderRetryIntervalStr, &c.LeaderRetryInterval},
		{"LEADER_HEARTBEAT_INTERVAL", &c.LeaderHeartbeatIntervalStr, &c.LeaderHeartbeatInterval},
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envPositiveInt(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		log.Warn().Str("value", s).Int("default", def).Msgf("config: invalid %s (must be a positive integer), using default", name)
		return def
	}
	return n
}

// envRate parses a non-negative requests-per-second value; 0 disables.
func envRate(name string, def float64) float64 {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		log.Warn().Str("value", s).Float64("default", def).Msgf("config: invalid %s (must be a non-negative number), using default", name)
		return def
	}
	return f
}

// UsesPostgres reports whether the Postgres store is selected.
func (c Config) UsesPostgres() bool {
	return c.StoreDriver == StoreDriverPostgres
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	type alias Config
	masked := struct {
		alias
		DatabaseURL   string `json:"database_url"`
		N8NAPIKey     string `json:"n8n_api_key"`
		AdminAPIKey   string `json:"admin_api_key"`
		WebhookSecret string `json:"webhook_secret"`
	}{
		alias:         alias(c),
		DatabaseURL:   maskSecret(c.DatabaseURL),
		N8NAPIKey:     maskSecret(c.N8NAPIKey),
		AdminAPIKey:   maskSecret(c.AdminAPIKey),
		WebhookSecret: maskSecret(c.WebhookSecret),
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
