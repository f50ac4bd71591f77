package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger drivers.
const (
	LedgerDriverPostgres = "postgres"
	LedgerDriverMemory   = "memory"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	AWS          AWSConfig
	MediaConvert MediaConvertConfig
	Zoom         ZoomConfig
	Ingest       IngestConfig
	Reconcile    ReconcileConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	LogLevel           string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Driver   string // postgres or memory
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/recordings?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// AWSConfig holds AWS credentials and S3 bucket names.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	OriginalsBucket      string
	StreamingBucket      string
	PresignExpireMinutes int
}

// MediaConvertConfig holds transcoder settings.
type MediaConvertConfig struct {
	Endpoint string // account-specific endpoint; empty uses the SDK default resolver
	RoleARN  string
	Queue    string
}

// ZoomConfig holds provider credentials and webhook settings.
type ZoomConfig struct {
	AccountID     string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	APIBaseURL    string
	OAuthBaseURL  string
	SDKKey        string
	SDKSecret     string
	UserID        string
	LookbackDays  int
	MaxSkew       time.Duration
}

// APIEnabled reports whether server-to-server OAuth credentials are configured.
func (c ZoomConfig) APIEnabled() bool {
	return c.AccountID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// SDKEnabled reports whether Meeting SDK credentials are configured.
func (c ZoomConfig) SDKEnabled() bool { return c.SDKKey != "" && c.SDKSecret != "" }

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	TempDir      string // empty = os.TempDir()
	Concurrency  int
	QueueMode    bool          // enqueue webhook deliveries for cmd/worker instead of ingesting in-process
	PendingLease time.Duration // how long a pending row stays claimed before another attempt may resume it
}

// ReconcileConfig holds transcode job polling settings.
type ReconcileConfig struct {
	Interval       time.Duration
	RecoverOnStart bool
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			LogLevel:           getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("LEDGER_DRIVER", LedgerDriverPostgres)),
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "recordings"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			OriginalsBucket:      getEnv("AWS_BUCKET_NAME", ""),
			StreamingBucket:      getEnv("AWS_STREAMING_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 60),
		},
		MediaConvert: MediaConvertConfig{
			Endpoint: getEnv("MEDIACONVERT_ENDPOINT", ""),
			RoleARN:  getEnv("MEDIACONVERT_ROLE_ARN", ""),
			Queue:    getEnv("MEDIACONVERT_QUEUE", ""),
		},
		Zoom: ZoomConfig{
			AccountID:     getEnv("ZOOM_ACCOUNT_ID", ""),
			ClientID:      getEnv("ZOOM_CLIENT_ID", ""),
			ClientSecret:  getEnv("ZOOM_CLIENT_SECRET", ""),
			WebhookSecret: getEnv("ZOOM_WEBHOOK_SECRET_TOKEN", ""),
			APIBaseURL:    getEnv("ZOOM_API_BASE_URL", ""),
			OAuthBaseURL:  getEnv("ZOOM_OAUTH_BASE_URL", ""),
			SDKKey:        getEnv("ZOOM_SDK_KEY", ""),
			SDKSecret:     getEnv("ZOOM_SDK_SECRET", ""),
			UserID:        getEnv("ZOOM_USER_ID", "me"),
			LookbackDays:  getEnvInt("ZOOM_RECORDING_LOOKBACK_DAYS", 30),
			MaxSkew:       time.Duration(getEnvInt("ZOOM_WEBHOOK_MAX_SKEW_SEC", 300)) * time.Second,
		},
		Ingest: IngestConfig{
			TempDir:      getEnv("INGEST_TEMP_DIR", ""),
			Concurrency:  getEnvInt("INGEST_CONCURRENCY", 4),
			QueueMode:    getEnvBool("INGEST_QUEUE_MODE", false),
			PendingLease: time.Duration(getEnvInt("INGEST_PENDING_LEASE_MIN", 30)) * time.Minute,
		},
		Reconcile: ReconcileConfig{
			Interval:       time.Duration(getEnvInt("RECONCILE_INTERVAL_SEC", 30)) * time.Second,
			RecoverOnStart: getEnvBool("RECONCILE_RECOVER_ON_START", true),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case LedgerDriverPostgres, LedgerDriverMemory:
	default:
		return fmt.Errorf("config: LEDGER_DRIVER must be %q or %q, got %q", LedgerDriverPostgres, LedgerDriverMemory, c.Database.Driver)
	}
	if c.Zoom.WebhookSecret == "" {
		return fmt.Errorf("config: ZOOM_WEBHOOK_SECRET_TOKEN is required")
	}
	if c.AWS.OriginalsBucket == "" || c.AWS.StreamingBucket == "" {
		return fmt.Errorf("config: AWS_BUCKET_NAME and AWS_STREAMING_BUCKET are required")
	}
	if c.MediaConvert.RoleARN == "" {
		return fmt.Errorf("config: MEDIACONVERT_ROLE_ARN is required")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("config: INGEST_CONCURRENCY must be positive")
	}
	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("config: RECONCILE_INTERVAL_SEC must be positive")
	}
	if c.Ingest.QueueMode && !c.Redis.Enabled() {
		return fmt.Errorf("config: INGEST_QUEUE_MODE requires REDIS_ADDR")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
