package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Queue       QueueConfig
	Scheduler   SchedulerConfig
	Execution   ExecutionConfig
	Sources     SourcesConfig
	Fees        FeesConfig
	Credentials CredentialsConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
	MaxBodyBytes   int64
	// RateLimitPerMinute is the per-tenant request budget of the operator API
	RateLimitPerMinute int
	RateLimitBurst     int
}

// Queue modes
const (
	QueueModeQueue  = "queue"
	QueueModeInline = "inline"
)

// QueueConfig holds job queue settings
type QueueConfig struct {
	Mode        string // queue (Redis-backed) or inline (in-process worker pool)
	Concurrency int
	Name        string
	BufferSize  int // inline mode only
	MaxRetry    int
	// Retention keeps finished jobs inspectable by the stale sweep
	Retention time.Duration
}

// SchedulerConfig holds cron trigger and stale sweep configuration
type SchedulerConfig struct {
	Enabled            bool
	CronCheckInterval  time.Duration
	StaleThreshold     time.Duration
	SweepInterval      time.Duration
	SweepBatchSize     int
	MaxCatchUpPerCheck int
}

// ExecutionConfig holds execution processor tunables
type ExecutionConfig struct {
	// CancelPollInterval bounds how often the persisted status is read; 0 reads on every checkpoint
	CancelPollInterval time.Duration
	ProgressTTL        time.Duration
}

// SourcesConfig holds external source client settings
type SourcesConfig struct {
	RetryBackoff    []time.Duration
	AdsDelay        time.Duration
	POSDelay        time.Duration
	HTTPTimeout     time.Duration
	MetaBaseURL     string
	MetaAPIVersion  string
	MetaPageLimit   int
	PancakeBaseURL  string
	PancakePageSize int
	MaxResponseSize int64
}

// FeesConfig holds the fee constants used for reconciled rows
type FeesConfig struct {
	ShippingFee              float64
	FulfillmentFee           float64
	InsuranceFee             float64
	SettlementShippingFee    float64
	SettlementFulfillmentFee float64
	SettlementInsuranceFee   float64
	CODFeeRate               float64
	DeliveredCODFeeRate      float64
}

// CredentialsConfig holds the key used to open sealed provider credentials
type CredentialsConfig struct {
	// SecretKey is a 32-byte key, hex or base64 encoded
	SecretKey string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	// Database tracing options
	DBTraceEnabled bool // Enable database query tracing (otelgorm)
	DBLogFullSQL   bool // Log full SQL statements (dev only)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with RECON_ prefix (e.g., RECON_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	backoff, err := parseDurations(v.GetStringSlice("sources.retry_backoff"))
	if err != nil {
		return nil, fmt.Errorf("sources.retry_backoff: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			MaxBodyBytes:   v.GetInt64("http.max_body_bytes"),

			RateLimitPerMinute: v.GetInt("http.rate_limit_per_minute"),
			RateLimitBurst:     v.GetInt("http.rate_limit_burst"),
		},
		Queue: QueueConfig{
			Mode:        v.GetString("queue.mode"),
			Concurrency: v.GetInt("queue.concurrency"),
			Name:        v.GetString("queue.name"),
			BufferSize:  v.GetInt("queue.buffer_size"),
			MaxRetry:    v.GetInt("queue.max_retry"),
			Retention:   v.GetDuration("queue.retention"),
		},
		Scheduler: SchedulerConfig{
			Enabled:            v.GetBool("scheduler.enabled"),
			CronCheckInterval:  v.GetDuration("scheduler.cron_check_interval"),
			StaleThreshold:     v.GetDuration("scheduler.stale_threshold"),
			SweepInterval:      v.GetDuration("scheduler.sweep_interval"),
			SweepBatchSize:     v.GetInt("scheduler.sweep_batch_size"),
			MaxCatchUpPerCheck: v.GetInt("scheduler.max_catch_up_per_check"),
		},
		Execution: ExecutionConfig{
			CancelPollInterval: v.GetDuration("execution.cancel_poll_interval"),
			ProgressTTL:        v.GetDuration("execution.progress_ttl"),
		},
		Sources: SourcesConfig{
			RetryBackoff:    backoff,
			AdsDelay:        v.GetDuration("sources.ads_delay"),
			POSDelay:        v.GetDuration("sources.pos_delay"),
			HTTPTimeout:     v.GetDuration("sources.http_timeout"),
			MetaBaseURL:     v.GetString("sources.meta_base_url"),
			MetaAPIVersion:  v.GetString("sources.meta_api_version"),
			MetaPageLimit:   v.GetInt("sources.meta_page_limit"),
			PancakeBaseURL:  v.GetString("sources.pancake_base_url"),
			PancakePageSize: v.GetInt("sources.pancake_page_size"),
			MaxResponseSize: v.GetInt64("sources.max_response_size"),
		},
		Fees: FeesConfig{
			ShippingFee:              v.GetFloat64("fees.shipping_fee"),
			FulfillmentFee:           v.GetFloat64("fees.fulfillment_fee"),
			InsuranceFee:             v.GetFloat64("fees.insurance_fee"),
			SettlementShippingFee:    v.GetFloat64("fees.settlement_shipping_fee"),
			SettlementFulfillmentFee: v.GetFloat64("fees.settlement_fulfillment_fee"),
			SettlementInsuranceFee:   v.GetFloat64("fees.settlement_insurance_fee"),
			CODFeeRate:               v.GetFloat64("fees.cod_fee_rate"),
			DeliveredCODFeeRate:      v.GetFloat64("fees.delivered_cod_fee_rate"),
		},
		Credentials: CredentialsConfig{
			SecretKey: v.GetString("credentials.secret_key"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
		},
	}

	if !v.IsSet("scheduler.enabled") {
		cfg.Scheduler.Enabled = true
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseDurations accepts "2s,5s,10s" as a single element as well as a list
func parseDurations(raw []string) ([]time.Duration, error) {
	var out []time.Duration
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			d, err := time.ParseDuration(part)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "adrecon-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "adrecon"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 1 << 20
	}
	if cfg.HTTP.RateLimitPerMinute == 0 {
		cfg.HTTP.RateLimitPerMinute = 120
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 20
	}
	if cfg.Queue.Mode == "" {
		if cfg.Redis.Enabled {
			cfg.Queue.Mode = QueueModeQueue
		} else {
			cfg.Queue.Mode = QueueModeInline
		}
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "reconciliation"
	}
	if cfg.Queue.BufferSize == 0 {
		cfg.Queue.BufferSize = 100
	}
	if cfg.Queue.Retention == 0 {
		cfg.Queue.Retention = 24 * time.Hour
	}
	if cfg.Scheduler.CronCheckInterval == 0 {
		cfg.Scheduler.CronCheckInterval = time.Minute
	}
	if cfg.Scheduler.StaleThreshold == 0 {
		cfg.Scheduler.StaleThreshold = 15 * time.Minute
	}
	if cfg.Scheduler.SweepInterval == 0 {
		cfg.Scheduler.SweepInterval = 5 * time.Minute
	}
	if cfg.Scheduler.SweepBatchSize == 0 {
		cfg.Scheduler.SweepBatchSize = 100
	}
	if cfg.Scheduler.MaxCatchUpPerCheck == 0 {
		cfg.Scheduler.MaxCatchUpPerCheck = 1
	}
	if cfg.Execution.ProgressTTL == 0 {
		cfg.Execution.ProgressTTL = 24 * time.Hour
	}
	if len(cfg.Sources.RetryBackoff) == 0 {
		cfg.Sources.RetryBackoff = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}
	}
	if cfg.Sources.AdsDelay == 0 {
		cfg.Sources.AdsDelay = time.Second
	}
	if cfg.Sources.POSDelay == 0 {
		cfg.Sources.POSDelay = time.Second
	}
	if cfg.Sources.HTTPTimeout == 0 {
		cfg.Sources.HTTPTimeout = 30 * time.Second
	}
	if cfg.Sources.MetaBaseURL == "" {
		cfg.Sources.MetaBaseURL = "https://graph.facebook.com"
	}
	if cfg.Sources.MetaAPIVersion == "" {
		cfg.Sources.MetaAPIVersion = "v19.0"
	}
	if cfg.Sources.MetaPageLimit == 0 {
		cfg.Sources.MetaPageLimit = 500
	}
	if cfg.Sources.PancakeBaseURL == "" {
		cfg.Sources.PancakeBaseURL = "https://pos.pages.fm/api/v1"
	}
	if cfg.Sources.PancakePageSize == 0 {
		cfg.Sources.PancakePageSize = 100
	}
	if cfg.Sources.MaxResponseSize == 0 {
		cfg.Sources.MaxResponseSize = 20 << 20 // 20MB
	}
	applyFeeDefaults(&cfg.Fees)
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "adrecon-backend"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
}

func applyFeeDefaults(f *FeesConfig) {
	if f.ShippingFee == 0 {
		f.ShippingFee = 30000
	}
	if f.FulfillmentFee == 0 {
		f.FulfillmentFee = 5000
	}
	if f.InsuranceFee == 0 {
		f.InsuranceFee = 2000
	}
	if f.SettlementShippingFee == 0 {
		f.SettlementShippingFee = 30000
	}
	if f.SettlementFulfillmentFee == 0 {
		f.SettlementFulfillmentFee = 5000
	}
	if f.SettlementInsuranceFee == 0 {
		f.SettlementInsuranceFee = 2000
	}
	if f.CODFeeRate == 0 {
		f.CODFeeRate = 0.01
	}
	if f.DeliveredCODFeeRate == 0 {
		f.DeliveredCODFeeRate = 0.01
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Queue.Mode {
	case QueueModeInline:
	case QueueModeQueue:
		if !c.Redis.Enabled {
			return fmt.Errorf("queue.mode=queue requires redis.enabled=true")
		}
	default:
		return fmt.Errorf("queue.mode must be %q or %q, got %q", QueueModeQueue, QueueModeInline, c.Queue.Mode)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be positive")
	}
	if c.Execution.CancelPollInterval < 0 {
		return fmt.Errorf("execution.cancel_poll_interval cannot be negative")
	}
	if c.Scheduler.StaleThreshold < time.Minute {
		return fmt.Errorf("scheduler.stale_threshold must be at least 1m")
	}
	for _, d := range c.Sources.RetryBackoff {
		if d < 0 {
			return fmt.Errorf("sources.retry_backoff cannot contain negative durations")
		}
	}
	if c.Fees.CODFeeRate < 0 || c.Fees.CODFeeRate > 1 || c.Fees.DeliveredCODFeeRate < 0 || c.Fees.DeliveredCODFeeRate > 1 {
		return fmt.Errorf("fee rates must be between 0 and 1")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Credentials.SecretKey == "" {
			return fmt.Errorf("credentials.secret_key is required in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values.
// The session time zone is pinned to UTC so date columns compare against UTC midnights.
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	q.Set("TimeZone", "UTC")
	u.RawQuery = q.Encode()
	return u.String()
}
