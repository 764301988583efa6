package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	App      AppConfig      `mapstructure:"app"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port                    int `mapstructure:"port"`
	OrderRateLimitPerMinute int `mapstructure:"order_rate_limit_per_minute"`
}

// AppConfig contains URLs the backend embeds into payment redirects and hosted links.
type AppConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	FrontendBaseURL string `mapstructure:"frontend_base_url"`
}

// AuthConfig contains JWT key material and token lifetimes.
type AuthConfig struct {
	PrivateKeyPath  string        `mapstructure:"private_key_path"`
	PublicKeyPath   string        `mapstructure:"public_key_path"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// StripeConfig contains the payment gateway credentials.
type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// UploadConfig contains limits applied to resume uploads.
type UploadConfig struct {
	MaxBytes  int64  `mapstructure:"max_bytes"`
	ClamdAddr string `mapstructure:"clamd_addr"`
}

// WorkerConfig contains background job settings.
type WorkerConfig struct {
	Concurrency         int    `mapstructure:"concurrency"`
	ExpirySweepSchedule string `mapstructure:"expiry_sweep_schedule"`
	QuotaResetSchedule  string `mapstructure:"quota_reset_schedule"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr returns the host:port address of the Redis server.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.order_rate_limit_per_minute", 10)
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.frontend_base_url", "http://localhost:3000")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "expertresume")
	v.SetDefault("database.user", "expertresume")
	v.SetDefault("database.password", "expertresume")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "hosted-resumes")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("upload.max_bytes", 10*1024*1024)
	v.SetDefault("upload.clamd_addr", "tcp://localhost:3310")
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.expiry_sweep_schedule", "@every 1h")
	v.SetDefault("worker.quota_reset_schedule", "@every 6h")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                        "API_PORT",
		"api.order_rate_limit_per_minute": "ORDER_RATE_LIMIT_PER_MINUTE",
		"app.base_url":                    "APP_BASE_URL",
		"app.frontend_base_url":           "FRONTEND_BASE_URL",
		"auth.private_key_path":           "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":            "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":           "ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":          "REFRESH_TOKEN_TTL",
		"database.host":                   "DATABASE_HOST",
		"database.port":                   "DATABASE_PORT",
		"database.name":                   "POSTGRES_DB",
		"database.user":                   "POSTGRES_USER",
		"database.password":               "POSTGRES_PASSWORD",
		"database.sslmode":                "DATABASE_SSLMODE",
		"redis.host":                      "REDIS_HOST",
		"redis.port":                      "REDIS_PORT",
		"minio.endpoint":                  "MINIO_ENDPOINT",
		"minio.public_endpoint":           "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":             "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":         "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                   "MINIO_USE_SSL",
		"minio.bucket":                    "MINIO_BUCKET",
		"minio.region":                    "MINIO_REGION",
		"minio.auto_create_bucket":        "MINIO_AUTO_CREATE_BUCKET",
		"stripe.secret_key":               "STRIPE_SECRET_KEY",
		"upload.max_bytes":                "UPLOAD_MAX_BYTES",
		"upload.clamd_addr":               "CLAMD_ADDR",
		"worker.concurrency":              "WORKER_CONCURRENCY",
		"worker.expiry_sweep_schedule":    "EXPIRY_SWEEP_SCHEDULE",
		"worker.quota_reset_schedule":     "QUOTA_RESET_SCHEDULE",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.App.BaseURL == "" {
		return errors.New("app base url is required")
	}
	if cfg.App.FrontendBaseURL == "" {
		return errors.New("frontend base url is required")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Upload.MaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
