package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database (postgres storage backend)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Market data
	Polygon PolygonConfig

	// Checkpoint pipeline
	Pipeline PipelineConfig

	// Durable storage
	Storage StorageConfig

	// Notification
	Notify NotifyConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PolygonConfig holds Polygon.io REST API configuration
type PolygonConfig struct {
	APIKey    string
	BaseURL   string
	RateLimit int    // requests per second, per process
	Exchange  string // MIC of the listing venue for the ticker universe
}

// PipelineConfig controls a checkpoint run
type PipelineConfig struct {
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
	MaxRetries            int
	RetryDelay            time.Duration
	PersistMaxRetries     int
	ScheduleFile          string
	Timezone              string
	MaxSymbols            int      // 0 = no limit (test mode uses a small number)
	UniverseSource        string   // static, polygon
	StaticSymbols         []string // used when UniverseSource == static
	GainersURL            string   // optional pre-market gainers page
}

// StorageConfig selects the dataset blob backend
type StorageConfig struct {
	Backend     string // local, s3, postgres
	DataDir     string
	FallbackDir string
	S3Bucket    string
	AWSRegion   string
}

// NotifyConfig selects the notifier
type NotifyConfig struct {
	Backend        string // log, sns
	SNSTopicARN    string
	AlertOnFailure bool
}

// SchedulerConfig holds job retry settings
type SchedulerConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Polygon: PolygonConfig{
			APIKey:    getEnv("POLYGON_API_KEY", ""),
			BaseURL:   getEnv("POLYGON_BASE_URL", "https://api.polygon.io"),
			RateLimit: getEnvAsInt("POLYGON_RATE_LIMIT", 50),
			Exchange:  getEnv("POLYGON_EXCHANGE", "XNAS"),
		},

		Pipeline: PipelineConfig{
			MaxConcurrentRequests: getEnvAsInt("MAX_CONCURRENT_REQUESTS", 35),
			RequestTimeout:        getEnvAsDuration("REQUEST_TIMEOUT", "18s"),
			MaxRetries:            getEnvAsInt("MAX_RETRIES", 3),
			RetryDelay:            getEnvAsDuration("RETRY_DELAY", "300ms"),
			PersistMaxRetries:     getEnvAsInt("PERSIST_MAX_RETRIES", 4),
			ScheduleFile:          getEnv("SCHEDULE_FILE", "checkpoints.yaml"),
			Timezone:              getEnv("TIMEZONE", ""),
			MaxSymbols:            getEnvAsInt("MAX_SYMBOLS", 0),
			UniverseSource:        getEnv("UNIVERSE_SOURCE", "polygon"),
			StaticSymbols:         getEnvAsList("STATIC_SYMBOLS"),
			GainersURL:            getEnv("GAINERS_URL", ""),
		},

		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", "local"),
			DataDir:     getEnv("DATA_DIR", "data"),
			FallbackDir: getEnv("FALLBACK_DIR", ""),
			S3Bucket:    getEnv("S3_BUCKET", ""),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
		},

		Notify: NotifyConfig{
			Backend:        getEnv("NOTIFIER", "log"),
			SNSTopicARN:    getEnv("SNS_TOPIC_ARN", ""),
			AlertOnFailure: getEnvAsBool("ALERT_ON_FAILURE", true),
		},

		Scheduler: SchedulerConfig{
			MaxRetries: getEnvAsInt("SCHEDULER_MAX_RETRIES", 1),
			RetryDelay: getEnvAsDuration("SCHEDULER_RETRY_DELAY", "20s"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Polygon.APIKey == "" {
		return fmt.Errorf("POLYGON_API_KEY is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for STORAGE_BACKEND=s3")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORAGE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of: local, s3, postgres")
	}

	switch c.Notify.Backend {
	case "log":
	case "sns":
		if c.Notify.SNSTopicARN == "" {
			return fmt.Errorf("SNS_TOPIC_ARN is required for NOTIFIER=sns")
		}
	default:
		return fmt.Errorf("NOTIFIER must be one of: log, sns")
	}

	switch c.Pipeline.UniverseSource {
	case "polygon":
	case "static":
		if len(c.Pipeline.StaticSymbols) == 0 {
			return fmt.Errorf("STATIC_SYMBOLS is required for UNIVERSE_SOURCE=static")
		}
	default:
		return fmt.Errorf("UNIVERSE_SOURCE must be one of: polygon, static")
	}

	if c.Pipeline.MaxConcurrentRequests < 1 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDuration accepts Go durations ("18s") and bare seconds ("18", "0.3")
func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
