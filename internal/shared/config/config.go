package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the waitlist service
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Kafka     KafkaConfig
	Jobs      JobsConfig

	// Engine knobs, processed by envconfig with the WAITLIST_ prefix
	Waitlist WaitlistConfig

	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
	// AutoMigrate runs gorm AutoMigrate plus index creation on startup
	AutoMigrate bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	ProfileCacheTTL time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret    string
	AccessTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	WindowDuration  time.Duration `json:"window_duration"`
	DefaultRequests int           `json:"default_requests"`
	UserRequests    int           `json:"user_requests"`
	AdminRequests   int           `json:"admin_requests"`
	HealthRequests  int           `json:"health_requests"`
	WhitelistedIPs  []string      `json:"whitelisted_ips"`
}

// KafkaConfig holds notification producer configuration
type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	NotificationTopic string
	RetryMax          int
}

// JobsConfig holds task-queue configuration
type JobsConfig struct {
	// Backend is "asynq" (Redis task queue) or "ticker" (in-process sweep only)
	Backend        string
	EmbeddedWorker bool
	Concurrency    int
	MaxRetry       int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	SweepCron      string
	SweepInterval  time.Duration
}

// WaitlistConfig holds engine tunables
type WaitlistConfig struct {
	MaxQuantityPerUser      int           `envconfig:"MAX_QUANTITY_PER_USER" default:"10"`
	ImmediateOfferThreshold int           `envconfig:"IMMEDIATE_OFFER_THRESHOLD" default:"5"`
	SweepBatchSize          int           `envconfig:"SWEEP_BATCH_SIZE" default:"100"`
	LockTTL                 time.Duration `envconfig:"LOCK_TTL" default:"10s"`
	LockWait                time.Duration `envconfig:"LOCK_WAIT" default:"5s"`
	StrategyFile            string        `envconfig:"STRATEGY_FILE"`
	BulkBatchSize           int           `envconfig:"BULK_BATCH_SIZE" default:"100"`

	// MaxNotifications retires an entry to EXPIRED after this many unanswered offers; 0 disables
	MaxNotifications int `envconfig:"MAX_NOTIFICATIONS" default:"3"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			Name:        getEnv("DB_NAME", "evently_db"),
			User:        getEnv("DB_USER", "evently_user"),
			Password:    getEnv("DB_PASSWORD", "evently_password"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			AutoMigrate: getBoolEnv("DB_AUTO_MIGRATE", true),
		},

		Redis: RedisConfig{
			Host:            getEnv("REDIS_HOST", "localhost"),
			Port:            getEnv("REDIS_PORT", "6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getIntEnv("REDIS_DB", 0),
			ProfileCacheTTL: getDurationEnv("REDIS_PROFILE_CACHE_TTL", 6*time.Hour),
		},

		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
			AccessTTL: getDurationEnv("JWT_ACCESS_TTL", 24*time.Hour),
		},

		RateLimit: RateLimitConfig{
			Enabled:         getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:  getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests: getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			UserRequests:    getIntEnv("RATE_LIMIT_USER_REQUESTS", 30),
			AdminRequests:   getIntEnv("RATE_LIMIT_ADMIN_REQUESTS", 200),
			HealthRequests:  getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			WhitelistedIPs:  getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		Kafka: KafkaConfig{
			Enabled:           getBoolEnv("KAFKA_ENABLED", true),
			Brokers:           getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			NotificationTopic: getEnv("NOTIFICATION_TOPIC", "waitlist-notifications"),
			RetryMax:          getIntEnv("KAFKA_RETRY_MAX", 3),
		},

		Jobs: JobsConfig{
			Backend:        getEnv("JOBS_BACKEND", "asynq"),
			EmbeddedWorker: getBoolEnv("JOBS_EMBEDDED_WORKER", false),
			Concurrency:    getIntEnv("JOBS_CONCURRENCY", 10),
			MaxRetry:       getIntEnv("JOBS_MAX_RETRY", 5),
			BaseBackoff:    getDurationEnv("JOBS_BASE_BACKOFF", 2*time.Second),
			MaxBackoff:     getDurationEnv("JOBS_MAX_BACKOFF", 5*time.Minute),
			SweepCron:      getEnv("JOBS_SWEEP_CRON", "@every 1m"),
			SweepInterval:  getDurationEnv("JOBS_SWEEP_INTERVAL", time.Minute),
		},

		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	if err := envconfig.Process("WAITLIST", &cfg.Waitlist); err != nil {
		return nil, fmt.Errorf("failed to process waitlist config: %w", err)
	}

	if cfg.Jobs.Backend != "asynq" && cfg.Jobs.Backend != "ticker" {
		return nil, fmt.Errorf("unsupported JOBS_BACKEND %q", cfg.Jobs.Backend)
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg, nil
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
