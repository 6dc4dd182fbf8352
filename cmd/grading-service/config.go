package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"autograde/internal/common/cache"
	"autograde/internal/common/db"
	"autograde/internal/common/mq"
	"autograde/internal/common/storage"
	"autograde/internal/grading/executor"
	"autograde/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr          = "0.0.0.0:8090"
	defaultReadTimeout       = 10 * time.Second
	defaultWriteTimeout      = 120 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultShutdownTimeout   = 15 * time.Second
	defaultMaxParallel       = 4
	defaultMaxConcurrentJobs = 8
	defaultSlotTimeout       = 2 * time.Second
	defaultStatusTimeout     = 3 * time.Second
	defaultResultTTL         = 24 * time.Hour
	defaultEmptyResultTTL    = 30 * time.Second
	defaultJobTopic          = "grading.jobs"
	defaultResultTopic       = "grading.results"
	defaultPackBucket        = "testpacks"
	defaultLanguage          = "python"
	defaultIssuer            = "autograde"
	defaultMetricsPath       = "/metrics"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// ExecutorConfig holds execution service settings.
type ExecutorConfig struct {
	BaseURL         string         `yaml:"baseURL"`
	AuthHeader      string         `yaml:"authHeader"`
	AuthToken       string         `yaml:"authToken"`
	RequestTimeout  time.Duration  `yaml:"requestTimeout"`
	DefaultLanguage string         `yaml:"defaultLanguage"`
	Languages       map[string]int `yaml:"languages"`
}

// GradingConfig holds orchestration settings.
type GradingConfig struct {
	MaxParallel       int           `yaml:"maxParallel"`
	CallTimeoutPad    time.Duration `yaml:"callTimeoutPad"`
	MinCallTimeout    time.Duration `yaml:"minCallTimeout"`
	MaxConcurrentJobs int           `yaml:"maxConcurrentJobs"`
	SlotTimeout       time.Duration `yaml:"slotTimeout"`
	StatusTimeout     time.Duration `yaml:"statusTimeout"`
	ResultTTL         time.Duration `yaml:"resultTTL"`
	EmptyResultTTL    time.Duration `yaml:"emptyResultTTL"`
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
}

// KafkaConfig holds Kafka settings. An empty broker list disables the job queue.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	JobTopic      string        `yaml:"jobTopic"`
	ResultTopic   string        `yaml:"resultTopic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
	MessageTTL    time.Duration `yaml:"messageTTL"`
}

// TestPackConfig holds test pack storage settings. An empty MinIO endpoint disables it.
type TestPackConfig struct {
	Bucket   string        `yaml:"bucket"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"maxBytes"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AppConfig holds grading-service config.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Executor ExecutorConfig      `yaml:"executor"`
	Grading  GradingConfig       `yaml:"grading"`
	Auth     AuthConfig          `yaml:"auth"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	Database db.MySQLConfig      `yaml:"database"`
	Kafka    KafkaConfig         `yaml:"kafka"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	TestPack TestPackConfig      `yaml:"testPack"`
	Metrics  MetricsConfig       `yaml:"metrics"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadEnvFile loads path into the process environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if cfg.Executor.BaseURL == "" {
		return nil, fmt.Errorf("executor baseURL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth jwtSecret is required")
	}
	if cfg.Redis.Addr == "" && cfg.Database.DSN == "" {
		return nil, fmt.Errorf("redis addr or database dsn is required")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"AUTOGRADE_EXECUTOR_URL", &cfg.Executor.BaseURL},
		{"AUTOGRADE_EXECUTOR_TOKEN", &cfg.Executor.AuthToken},
		{"AUTOGRADE_JWT_SECRET", &cfg.Auth.JWTSecret},
		{"AUTOGRADE_MYSQL_DSN", &cfg.Database.DSN},
		{"AUTOGRADE_REDIS_ADDR", &cfg.Redis.Addr},
		{"AUTOGRADE_REDIS_PASSWORD", &cfg.Redis.Password},
		{"AUTOGRADE_MINIO_ACCESS_KEY", &cfg.MinIO.AccessKey},
		{"AUTOGRADE_MINIO_SECRET_KEY", &cfg.MinIO.SecretKey},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && strings.TrimSpace(v) != "" {
			*o.dst = strings.TrimSpace(v)
		}
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Executor.DefaultLanguage == "" {
		cfg.Executor.DefaultLanguage = defaultLanguage
	}
	if cfg.Grading.MaxParallel <= 0 {
		cfg.Grading.MaxParallel = defaultMaxParallel
	}
	if cfg.Grading.MaxConcurrentJobs <= 0 {
		cfg.Grading.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if cfg.Grading.SlotTimeout == 0 {
		cfg.Grading.SlotTimeout = defaultSlotTimeout
	}
	if cfg.Grading.StatusTimeout == 0 {
		cfg.Grading.StatusTimeout = defaultStatusTimeout
	}
	if cfg.Grading.ResultTTL == 0 {
		cfg.Grading.ResultTTL = defaultResultTTL
	}
	if cfg.Grading.EmptyResultTTL == 0 {
		cfg.Grading.EmptyResultTTL = defaultEmptyResultTTL
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = defaultIssuer
	}
	if cfg.Kafka.JobTopic == "" {
		cfg.Kafka.JobTopic = defaultJobTopic
	}
	if cfg.Kafka.ResultTopic == "" {
		cfg.Kafka.ResultTopic = defaultResultTopic
	}
	if cfg.Kafka.Concurrency <= 0 {
		cfg.Kafka.Concurrency = cfg.Grading.MaxConcurrentJobs
	}
	if cfg.TestPack.Bucket == "" {
		cfg.TestPack.Bucket = cfg.MinIO.Bucket
	}
	if cfg.TestPack.Bucket == "" {
		cfg.TestPack.Bucket = defaultPackBucket
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Redis.Addr != "" {
		applyRedisDefaults(&cfg.Redis)
	}
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func (e ExecutorConfig) toExecutorConfig() executor.Config {
	return executor.Config{
		BaseURL:         e.BaseURL,
		AuthHeader:      e.AuthHeader,
		AuthToken:       e.AuthToken,
		RequestTimeout:  e.RequestTimeout,
		DefaultLanguage: e.DefaultLanguage,
		Languages:       e.Languages,
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		DialTimeout:  k.DialTimeout,
	}
}

func (k KafkaConfig) subscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   k.ConsumerGroup,
		Concurrency:     k.Concurrency,
		MaxRetries:      k.MaxRetries,
		RetryDelay:      k.RetryDelay,
		DeadLetterTopic: k.DeadLetter,
		MessageTTL:      k.MessageTTL,
	}
}

// parseIssueTarget splits a "role:subject" token request.
func parseIssueTarget(target string) (role, subject string, err error) {
	role, subject, ok := strings.Cut(target, ":")
	role = strings.TrimSpace(role)
	subject = strings.TrimSpace(subject)
	if !ok || role == "" || subject == "" {
		return "", "", fmt.Errorf("token target must be role:subject, got %q", target)
	}
	return role, subject, nil
}
