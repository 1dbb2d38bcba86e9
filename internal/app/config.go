package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	redisbus "github.com/Ladvien/self-sensored-sub003/internal/clients/redis"
	"github.com/Ladvien/self-sensored-sub003/internal/data/db"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
	"github.com/Ladvien/self-sensored-sub003/internal/jobs/sweeper"
	"github.com/Ladvien/self-sensored-sub003/internal/jobs/worker"
	"github.com/Ladvien/self-sensored-sub003/internal/modules/ingest"
	"github.com/Ladvien/self-sensored-sub003/internal/observability"
)

type LogConfig struct {
	Mode string
}

type RedisConfig struct {
	// Empty Addr disables the wake-up bus; workers fall back to polling.
	Addr     string
	Password string
	DB       int
	Channel  string
}

type BatchConfig struct {
	ParamCeiling          int
	SafetyMargin          float64
	ChunkOverrides        map[string]int
	MaxConcurrentChunks   int
	ChunkTimeout          time.Duration
	Retry                 ingest.RetryPolicy
	AsyncThresholdMetrics int
	AsyncThresholdBytes   int64
	MaxErrorSamples       int
	MaxRetries            int
	JobTimeout            time.Duration
}

type JobsConfig struct {
	Concurrency       int
	PollInterval      time.Duration
	RetryDelay        time.Duration
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	SweepInterval     time.Duration
	Retention         time.Duration
}

type OpsConfig struct {
	Addr            string
	CollectInterval time.Duration
}

type Config struct {
	Log      LogConfig
	Postgres db.PostgresConfig
	Redis    RedisConfig
	Batch    BatchConfig
	Jobs     JobsConfig
	Ops      OpsConfig
	Otel     observability.OtelConfig
}

func setDefaults(v *viper.Viper) {
	retry := ingest.DefaultRetryPolicy()
	wk := worker.DefaultConfig()

	v.SetDefault("log.mode", "development")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.name", "health")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("postgres.slow_query", time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", redisbus.DefaultChannel)

	v.SetDefault("batch.param_ceiling", ingest.DefaultParamCeiling)
	v.SetDefault("batch.safety_margin", ingest.DefaultSafetyMargin)
	v.SetDefault("batch.chunk_overrides", map[string]int{})
	v.SetDefault("batch.max_concurrent_chunks", ingest.DefaultMaxConcurrentChunks)
	v.SetDefault("batch.chunk_timeout", time.Duration(0))
	v.SetDefault("batch.retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("batch.retry.initial_backoff", retry.InitialBackoff)
	v.SetDefault("batch.retry.max_backoff", retry.MaxBackoff)
	v.SetDefault("batch.retry.jitter", retry.Jitter)
	v.SetDefault("batch.async_threshold_metrics", ingest.DefaultAsyncThresholdMetrics)
	v.SetDefault("batch.async_threshold_bytes", ingest.DefaultAsyncThresholdBytes)
	v.SetDefault("batch.max_error_samples", ingest.DefaultMaxErrorSamples)
	v.SetDefault("batch.max_retries", jobs.DefaultMaxRetries)
	v.SetDefault("batch.job_timeout", time.Duration(jobs.DefaultIngestBatchConfig().TimeoutSeconds)*time.Second)

	v.SetDefault("jobs.concurrency", wk.Concurrency)
	v.SetDefault("jobs.poll_interval", wk.PollInterval)
	v.SetDefault("jobs.retry_delay", wk.RetryDelay)
	v.SetDefault("jobs.heartbeat_interval", wk.HeartbeatInterval)
	v.SetDefault("jobs.stale_after", time.Duration(0))
	v.SetDefault("jobs.sweep_interval", sweeper.DefaultInterval)
	v.SetDefault("jobs.retention", sweeper.DefaultRetention)

	v.SetDefault("ops.addr", ":9090")
	v.SetDefault("ops.collect_interval", 15*time.Second)

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.service_name", "healthingest")
	v.SetDefault("otel.environment", "development")
	v.SetDefault("otel.version", "")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.headers", map[string]string{})
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.sample_ratio", 1.0)
}

// NewViper returns a viper instance with every default registered and env
// binding on: key batch.max_retries reads BATCH_MAX_RETRIES.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads defaults, then the optional file at path, then the
// environment. It does not validate.
func LoadConfig(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Log: LogConfig{Mode: v.GetString("log.mode")},
		Postgres: db.PostgresConfig{
			DSN:             v.GetString("postgres.dsn"),
			Host:            v.GetString("postgres.host"),
			Port:            v.GetInt("postgres.port"),
			User:            v.GetString("postgres.user"),
			Password:        v.GetString("postgres.password"),
			Name:            v.GetString("postgres.name"),
			SSLMode:         v.GetString("postgres.sslmode"),
			MaxOpenConns:    v.GetInt("postgres.max_open_conns"),
			MaxIdleConns:    v.GetInt("postgres.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("postgres.conn_max_lifetime"),
			SlowQuery:       v.GetDuration("postgres.slow_query"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
		Batch: BatchConfig{
			ParamCeiling:        v.GetInt("batch.param_ceiling"),
			SafetyMargin:        v.GetFloat64("batch.safety_margin"),
			MaxConcurrentChunks: v.GetInt("batch.max_concurrent_chunks"),
			ChunkTimeout:        v.GetDuration("batch.chunk_timeout"),
			Retry: ingest.RetryPolicy{
				MaxAttempts:    v.GetInt("batch.retry.max_attempts"),
				InitialBackoff: v.GetDuration("batch.retry.initial_backoff"),
				MaxBackoff:     v.GetDuration("batch.retry.max_backoff"),
				Jitter:         v.GetFloat64("batch.retry.jitter"),
			},
			AsyncThresholdMetrics: v.GetInt("batch.async_threshold_metrics"),
			AsyncThresholdBytes:   v.GetInt64("batch.async_threshold_bytes"),
			MaxErrorSamples:       v.GetInt("batch.max_error_samples"),
			MaxRetries:            v.GetInt("batch.max_retries"),
			JobTimeout:            v.GetDuration("batch.job_timeout"),
		},
		Jobs: JobsConfig{
			Concurrency:       v.GetInt("jobs.concurrency"),
			PollInterval:      v.GetDuration("jobs.poll_interval"),
			RetryDelay:        v.GetDuration("jobs.retry_delay"),
			HeartbeatInterval: v.GetDuration("jobs.heartbeat_interval"),
			StaleAfter:        v.GetDuration("jobs.stale_after"),
			SweepInterval:     v.GetDuration("jobs.sweep_interval"),
			Retention:         v.GetDuration("jobs.retention"),
		},
		Ops: OpsConfig{
			Addr:            v.GetString("ops.addr"),
			CollectInterval: v.GetDuration("ops.collect_interval"),
		},
		Otel: observability.OtelConfig{
			Enabled:     v.GetBool("otel.enabled"),
			ServiceName: v.GetString("otel.service_name"),
			Environment: v.GetString("otel.environment"),
			Version:     v.GetString("otel.version"),
			Endpoint:    v.GetString("otel.endpoint"),
			Headers:     v.GetStringMapString("otel.headers"),
			Insecure:    v.GetBool("otel.insecure"),
			SampleRatio: v.GetFloat64("otel.sample_ratio"),
		},
	}
	overrides := map[string]int{}
	if err := v.UnmarshalKey("batch.chunk_overrides", &overrides); err != nil {
		return Config{}, fmt.Errorf("batch.chunk_overrides: %w", err)
	}
	cfg.Batch.ChunkOverrides = overrides
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Name == "") {
		add("postgres: dsn or host and name are required")
	}
	if c.Postgres.MaxOpenConns <= 0 {
		add("postgres.max_open_conns must be positive, got %d", c.Postgres.MaxOpenConns)
	}
	if c.Batch.MaxConcurrentChunks <= 0 {
		add("batch.max_concurrent_chunks must be positive, got %d", c.Batch.MaxConcurrentChunks)
	} else if c.Postgres.MaxOpenConns > 0 && c.Batch.MaxConcurrentChunks >= c.Postgres.MaxOpenConns {
		add("batch.max_concurrent_chunks (%d) must be below postgres.max_open_conns (%d)",
			c.Batch.MaxConcurrentChunks, c.Postgres.MaxOpenConns)
	}
	if err := c.Batch.Retry.Validate(); err != nil {
		add("batch.retry: %v", err)
	}
	if _, err := c.Planner(); err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				add("batch: %v", e)
			}
		} else {
			add("batch: %v", err)
		}
	}
	if c.Batch.AsyncThresholdMetrics <= 0 {
		add("batch.async_threshold_metrics must be positive, got %d", c.Batch.AsyncThresholdMetrics)
	}
	if c.Batch.AsyncThresholdBytes <= 0 {
		add("batch.async_threshold_bytes must be positive, got %d", c.Batch.AsyncThresholdBytes)
	}
	if c.Batch.MaxRetries < 0 {
		add("batch.max_retries must not be negative, got %d", c.Batch.MaxRetries)
	}
	if c.Jobs.Concurrency <= 0 {
		add("jobs.concurrency must be positive, got %d", c.Jobs.Concurrency)
	}
	if c.Jobs.PollInterval <= 0 {
		add("jobs.poll_interval must be positive")
	}
	if c.Jobs.StaleAfter < 0 {
		add("jobs.stale_after must not be negative")
	}
	if c.Jobs.StaleAfter > 0 && c.Jobs.StaleAfter <= c.Jobs.HeartbeatInterval {
		add("jobs.stale_after (%s) must exceed jobs.heartbeat_interval (%s)", c.Jobs.StaleAfter, c.Jobs.HeartbeatInterval)
	}
	if c.Jobs.Retention <= 0 {
		add("jobs.retention must be positive")
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		add("otel.sample_ratio must be in [0, 1], got %v", c.Otel.SampleRatio)
	}
	return result.ErrorOrNil()
}

// Planner builds the chunk planner from the batch section.
func (c Config) Planner() (*ingest.Planner, error) {
	overrides := make(map[health.MetricType]int, len(c.Batch.ChunkOverrides))
	for name, size := range c.Batch.ChunkOverrides {
		overrides[health.MetricType(name)] = size
	}
	return ingest.NewPlanner(ingest.PlannerConfig{
		ParamCeiling:   c.Batch.ParamCeiling,
		SafetyMargin:   c.Batch.SafetyMargin,
		ChunkOverrides: overrides,
	})
}
