package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Blob      BlobConfig
	Dashboard DashboardConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name           string
	Port           int
	Environment    string
	LogLevel       string
	LogFormat      string
	MaxUploadBytes int64
}

// DatabaseConfig holds record store connection settings
type DatabaseConfig struct {
	Driver      string // "postgres" or "sqlite"
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
	SQLitePath  string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// QueueConfig holds task queue settings
type QueueConfig struct {
	Type              string // "redis", "memory" or "inline"
	Stream            string
	Group             string
	DeadLetterStream  string
	VisibilityTimeout time.Duration
	BlockTimeout      time.Duration
	RetryDelay        time.Duration
	MaxDeliveries     int
	BufferSize        int
	Concurrency       int
}

// BlobConfig holds blob store settings
type BlobConfig struct {
	Backend   string // "fs" or "s3"
	Dir       string
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	AccessKey string
	SecretKey string
}

// DashboardConfig holds aggregation view settings
type DashboardConfig struct {
	DefaultLat   float64
	DefaultLng   float64
	StatusRule   string
	ActiveWindow time.Duration
	AuthUser     string
	AuthPassword string
}

// CacheConfig holds cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// RateLimitConfig holds per-device upload limits
type RateLimitConfig struct {
	Enabled       bool
	UploadsPerMin int64
	WindowSeconds int
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// DefaultStatusRule marks a device active when it uploaded within the active window.
const DefaultStatusRule = `now - last_seen < active_window ? "active" : "idle"`

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:           serviceName,
			Port:           getEnvInt("PORT", 8080),
			Environment:    getEnv("ENVIRONMENT", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "text"),
			MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 64)) << 20,
		},
		Database: DatabaseConfig{
			Driver:      getEnv("DB_DRIVER", "postgres"),
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "audioingest"),
			User:        getEnv("POSTGRES_USER", "audioingest"),
			Password:    getEnv("POSTGRES_PASSWORD", "audioingest"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
			SQLitePath:  getEnv("SQLITE_PATH", "uploads.db"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Type:              getEnv("QUEUE_TYPE", "redis"),
			Stream:            getEnv("QUEUE_STREAM", "ingest.jobs"),
			Group:             getEnv("QUEUE_GROUP", "ingest_workers"),
			DeadLetterStream:  getEnv("QUEUE_DEAD_LETTER_STREAM", "ingest.jobs.dead"),
			VisibilityTimeout: getEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 60*time.Second),
			BlockTimeout:      getEnvDuration("QUEUE_BLOCK_TIMEOUT", 5*time.Second),
			RetryDelay:        getEnvDuration("QUEUE_RETRY_DELAY", 2*time.Second),
			MaxDeliveries:     getEnvInt("QUEUE_MAX_DELIVERIES", 5),
			BufferSize:        getEnvInt("QUEUE_BUFFER_SIZE", 1000),
			Concurrency:       getEnvInt("WORKER_CONCURRENCY", 2),
		},
		Blob: BlobConfig{
			Backend:   getEnv("BLOB_BACKEND", "fs"),
			Dir:       getEnv("UPLOAD_FOLDER", "uploads"),
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Prefix:    getEnv("S3_PREFIX", "uploads/"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
		Dashboard: DashboardConfig{
			DefaultLat:   getEnvFloat("DASHBOARD_DEFAULT_LAT", 6.5244),
			DefaultLng:   getEnvFloat("DASHBOARD_DEFAULT_LNG", 3.3792),
			StatusRule:   getEnv("DASHBOARD_STATUS_RULE", DefaultStatusRule),
			ActiveWindow: getEnvDuration("DASHBOARD_ACTIVE_WINDOW", 10*time.Minute),
			AuthUser:     getEnv("DASHBOARD_USER", ""),
			AuthPassword: getEnv("DASHBOARD_PASSWORD", ""),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvBool("RATE_LIMIT_ENABLED", false),
			UploadsPerMin: int64(getEnvInt("RATE_LIMIT_UPLOADS_PER_MIN", 120)),
			WindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns must be >= min_conns")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}

	switch c.Queue.Type {
	case "redis", "memory", "inline":
	default:
		return fmt.Errorf("unknown queue type: %s", c.Queue.Type)
	}
	if c.Queue.MaxDeliveries < 1 {
		return fmt.Errorf("queue max deliveries must be >= 1")
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be >= 1")
	}

	switch c.Blob.Backend {
	case "fs":
		if c.Blob.Dir == "" {
			return fmt.Errorf("upload folder is required")
		}
	case "s3":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
	default:
		return fmt.Errorf("unknown blob backend: %s", c.Blob.Backend)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
