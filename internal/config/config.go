package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig
	Source      SourceConfig
	Pipeline    PipelineConfig
	Cache       CacheConfig
	Logger      LoggerConfig
	Runs        RunsConfig
	WebSocket   WebSocketConfig
	Environment string `validate:"oneof=development test production"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            int           `validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gte=0"`
	IdleTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	AllowedOrigins  []string      `validate:"min=1"`
}

// SourceConfig selects and configures the stock price source
type SourceConfig struct {
	Name      string        `validate:"oneof=stocksapi csv mock"`
	BaseURL   string        `validate:"omitempty,url"`
	CSVPath   string        `validate:"required_if=Name csv"`
	Timeout   time.Duration `validate:"gt=0"`
	RateLimit int           `validate:"min=1"`
	Burst     int           `validate:"min=1"`
	MockDelay time.Duration `validate:"gte=0"`
}

// PipelineConfig represents the aggregation and reduction settings
type PipelineConfig struct {
	MaxConcurrency int `validate:"min=1,max=256"`
	Sentinel       string
	MinRepeat      int           `validate:"min=1"`
	MaxRepeat      int           `validate:"gtfield=MinRepeat"`
	RunTimeout     time.Duration `validate:"gte=0"`
	PreviewPoints  int           `validate:"min=0"`
}

// CacheConfig represents series cache configuration
type CacheConfig struct {
	Enabled        bool
	Backend        string        `validate:"oneof=none redis memcached"`
	LocalTTL       time.Duration `validate:"gt=0"`
	DistributedTTL time.Duration `validate:"gt=0"`
	MaxLocalSize   int64         `validate:"min=1"`
	KeyPrefix      string
	RedisAddr      string `validate:"required_if=Backend redis"`
	RedisPassword  string
	RedisDB        int `validate:"min=0"`
	RedisPoolSize  int `validate:"min=1"`
	MemcachedHosts []string
	Timeout        time.Duration `validate:"gt=0"`
}

// LoggerConfig represents logging configuration
type LoggerConfig struct {
	Level      string `validate:"oneof=trace debug info warn warning error fatal panic"`
	Format     string `validate:"oneof=json text"`
	Output     string `validate:"oneof=stdout file both"`
	Filename   string
	MaxSize    int `validate:"min=1"`
	MaxAge     int `validate:"min=0"`
	MaxBackups int `validate:"min=0"`
	Compress   bool
}

// RunsConfig represents the async run registry settings
type RunsConfig struct {
	Retention     time.Duration `validate:"gt=0"`
	SweepInterval time.Duration `validate:"gt=0"`
	MaxActive     int           `validate:"min=1"`
}

// WebSocketConfig represents the notes stream settings
type WebSocketConfig struct {
	ReadBufferSize  int           `validate:"min=1"`
	WriteBufferSize int           `validate:"min=1"`
	PingInterval    time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
}

// Load loads configuration from .env and environment variables with defaults
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8010),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", "30s"),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", "0s"),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Source: SourceConfig{
			Name:      getEnv("STOCK_SOURCE", "stocksapi"),
			BaseURL:   getEnv("STOCKS_API_BASE_URL", "https://ps-async.fekberg.com"),
			CSVPath:   getEnv("STOCKS_CSV_PATH", "StockPrices_Small.csv"),
			Timeout:   getEnvAsDuration("STOCKS_API_TIMEOUT", "10s"),
			RateLimit: getEnvAsInt("STOCKS_API_RATE_LIMIT", 20),
			Burst:     getEnvAsInt("STOCKS_API_BURST", 20),
			MockDelay: getEnvAsDuration("MOCK_SOURCE_DELAY", "0s"),
		},
		Pipeline: PipelineConfig{
			MaxConcurrency: getEnvAsInt("PIPELINE_MAX_CONCURRENCY", 4),
			Sentinel:       getEnv("PIPELINE_SENTINEL", "MBI"),
			MinRepeat:      getEnvAsInt("PIPELINE_MIN_REPEAT", 50),
			MaxRepeat:      getEnvAsInt("PIPELINE_MAX_REPEAT", 60),
			RunTimeout:     getEnvAsDuration("PIPELINE_RUN_TIMEOUT", "0s"),
			PreviewPoints:  getEnvAsInt("PIPELINE_PREVIEW_POINTS", 5),
		},
		Cache: CacheConfig{
			Enabled:        getEnvAsBool("CACHE_ENABLED", false),
			Backend:        getEnv("CACHE_BACKEND", "none"),
			LocalTTL:       getEnvAsDuration("CACHE_LOCAL_TTL", "5m"),
			DistributedTTL: getEnvAsDuration("CACHE_DISTRIBUTED_TTL", "30m"),
			MaxLocalSize:   getEnvAsInt64("CACHE_MAX_LOCAL_SIZE", 1000),
			KeyPrefix:      getEnv("CACHE_KEY_PREFIX", "stock-analyzer:"),
			RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:  getEnv("REDIS_PASSWORD", ""),
			RedisDB:        getEnvAsInt("REDIS_DB", 0),
			RedisPoolSize:  getEnvAsInt("REDIS_POOL_SIZE", 10),
			MemcachedHosts: getEnvAsSlice("MEMCACHED_HOSTS", []string{"localhost:11211"}),
			Timeout:        getEnvAsDuration("CACHE_TIMEOUT", "2s"),
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			Filename:   getEnv("LOG_FILENAME", "logs/stock-analyzer.log"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 10),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
		},
		Runs: RunsConfig{
			Retention:     getEnvAsDuration("RUNS_RETENTION", "15m"),
			SweepInterval: getEnvAsDuration("RUNS_SWEEP_INTERVAL", "1m"),
			MaxActive:     getEnvAsInt("RUNS_MAX_ACTIVE", 32),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getEnvAsDuration("WS_PING_INTERVAL", "30s"),
			WriteTimeout:    getEnvAsDuration("WS_WRITE_TIMEOUT", "10s"),
		},
	}
}

// Validate checks the configuration against its struct constraints
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Source.Name == "stocksapi" && c.Source.BaseURL == "" {
		return fmt.Errorf("invalid configuration: STOCKS_API_BASE_URL is required for the stocksapi source")
	}
	if c.Cache.Enabled && c.Cache.Backend == "memcached" && len(c.Cache.MemcachedHosts) == 0 {
		return fmt.Errorf("invalid configuration: MEMCACHED_HOSTS is required for the memcached backend")
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if int64Value, err := strconv.ParseInt(value, 10, 64); err == nil {
			return int64Value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Second * 30
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
