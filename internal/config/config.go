package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the streaming engine
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Instruments subscribed at startup
	Instruments []string

	// Redis (last-known cache + snapshot sink)
	Redis RedisConfig

	// Components
	Session    SessionConfig
	Feed       FeedConfig
	Stream     StreamConfig
	Normalizer NormalizerConfig
	Candles    CandleConfig
	Indicators IndicatorConfig
	Dispatch   DispatchConfig
	History    HistoryConfig
	Snapshot   SnapshotConfig
	Server     ServerConfig
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// Addr returns the host:port address for the Redis client
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionConfig holds session-clock configuration
type SessionConfig struct {
	MIC             string        // exchange MIC code, e.g. "xnys"
	PreOpenLead     time.Duration // how long before the open the pre-open window starts
	PostCloseTail   time.Duration // how long after the close the post-close window lasts
	RefreshInterval time.Duration // how often the clock re-evaluates
}

// FeedConfig holds feed-selection policy configuration
type FeedConfig struct {
	ShortPollInterval  time.Duration // degraded fallback while the market is open
	MediumPollInterval time.Duration // pre-open / post-close polling
	CacheTTL           time.Duration // closed / holiday cached reads
	FailureThreshold   int           // consecutive reconnect failures before falling back to polling
}

// StreamConfig holds push-feed connection configuration
type StreamConfig struct {
	URL               string
	HandshakeTimeout  time.Duration
	HeartbeatTimeout  time.Duration // no frame within this window => degraded
	WriteTimeout      time.Duration
	ReconnectDelay    time.Duration // backoff base
	MaxReconnectDelay time.Duration // backoff cap
	BackoffJitter     float64       // fraction of the delay added as random jitter
	SuccessResetAfter time.Duration // connected this long => failure count resets
}

// NormalizerConfig holds tick normalization configuration
type NormalizerConfig struct {
	ReorderWindow  time.Duration // how long ticks are buffered to let reordering settle
	DedupeLookback time.Duration // how far back duplicate signatures are remembered
	FlushInterval  time.Duration // how often the reorder buffer is drained
}

// CandleConfig holds candle aggregation configuration
type CandleConfig struct {
	DefaultInterval time.Duration
	HistoryWindow   int // finalized candles retained per instrument
	MaxGapFill      int // cap on flat gap candles emitted for one tick
}

// IndicatorConfig holds indicator engine configuration
type IndicatorConfig struct {
	SeedBars     int           // candles fetched to seed indicator state
	SeedRetry    time.Duration // retry interval after a seeding failure
	DefaultKinds []string      // indicator kinds used when a subscription names none
}

// DispatchConfig holds event dispatcher configuration
type DispatchConfig struct {
	QueueSize int // bounded per-subscriber queue
}

// HistoryConfig holds historical-data collaborator configuration
type HistoryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SnapshotConfig holds the persistence snapshot configuration
type SnapshotConfig struct {
	Interval time.Duration
	TTL      time.Duration
}

// ServerConfig holds the metrics/health HTTP endpoint configuration
type ServerConfig struct {
	HealthCheckPort int
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory or parent directories
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Instruments: getEnvAsStringSlice("INSTRUMENTS", nil),
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Session: SessionConfig{
			MIC:             getEnv("SESSION_MIC", "xnys"),
			PreOpenLead:     getEnvAsDuration("SESSION_PRE_OPEN_LEAD", 90*time.Minute),
			PostCloseTail:   getEnvAsDuration("SESSION_POST_CLOSE_TAIL", 4*time.Hour),
			RefreshInterval: getEnvAsDuration("SESSION_REFRESH_INTERVAL", 30*time.Second),
		},
		Feed: FeedConfig{
			ShortPollInterval:  getEnvAsDuration("FEED_SHORT_POLL_INTERVAL", 5*time.Second),
			MediumPollInterval: getEnvAsDuration("FEED_MEDIUM_POLL_INTERVAL", 30*time.Second),
			CacheTTL:           getEnvAsDuration("FEED_CACHE_TTL", 15*time.Minute),
			FailureThreshold:   getEnvAsInt("FEED_FAILURE_THRESHOLD", 5),
		},
		Stream: StreamConfig{
			URL:               getEnv("STREAM_WS_URL", ""),
			HandshakeTimeout:  getEnvAsDuration("STREAM_HANDSHAKE_TIMEOUT", 10*time.Second),
			HeartbeatTimeout:  getEnvAsDuration("STREAM_HEARTBEAT_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvAsDuration("STREAM_WRITE_TIMEOUT", 10*time.Second),
			ReconnectDelay:    getEnvAsDuration("STREAM_RECONNECT_DELAY", 1*time.Second),
			MaxReconnectDelay: getEnvAsDuration("STREAM_MAX_RECONNECT_DELAY", 60*time.Second),
			BackoffJitter:     getEnvAsFloat("STREAM_BACKOFF_JITTER", 0.2),
			SuccessResetAfter: getEnvAsDuration("STREAM_SUCCESS_RESET_AFTER", 30*time.Second),
		},
		Normalizer: NormalizerConfig{
			ReorderWindow:  getEnvAsDuration("NORMALIZER_REORDER_WINDOW", 250*time.Millisecond),
			DedupeLookback: getEnvAsDuration("NORMALIZER_DEDUPE_LOOKBACK", 5*time.Second),
			FlushInterval:  getEnvAsDuration("NORMALIZER_FLUSH_INTERVAL", 50*time.Millisecond),
		},
		Candles: CandleConfig{
			DefaultInterval: getEnvAsDuration("CANDLE_DEFAULT_INTERVAL", time.Minute),
			HistoryWindow:   getEnvAsInt("CANDLE_HISTORY_WINDOW", 500),
			MaxGapFill:      getEnvAsInt("CANDLE_MAX_GAP_FILL", 500),
		},
		Indicators: IndicatorConfig{
			SeedBars:     getEnvAsInt("INDICATOR_SEED_BARS", 200),
			SeedRetry:    getEnvAsDuration("INDICATOR_SEED_RETRY", 10*time.Second),
			DefaultKinds: getEnvAsStringSlice("INDICATOR_DEFAULT_KINDS", []string{"ema_20", "rsi_14"}),
		},
		Dispatch: DispatchConfig{
			QueueSize: getEnvAsInt("DISPATCH_QUEUE_SIZE", 256),
		},
		History: HistoryConfig{
			BaseURL: getEnv("HISTORY_BASE_URL", ""),
			Timeout: getEnvAsDuration("HISTORY_TIMEOUT", 10*time.Second),
		},
		Snapshot: SnapshotConfig{
			Interval: getEnvAsDuration("SNAPSHOT_INTERVAL", 30*time.Second),
			TTL:      getEnvAsDuration("SNAPSHOT_TTL", 24*time.Hour),
		},
		Server: ServerConfig{
			HealthCheckPort: getEnvAsInt("HEALTH_PORT", 8081),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Stream.URL == "" {
		return fmt.Errorf("STREAM_WS_URL is required")
	}
	if c.History.BaseURL == "" {
		return fmt.Errorf("HISTORY_BASE_URL is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.Candles.DefaultInterval <= 0 {
		return fmt.Errorf("CANDLE_DEFAULT_INTERVAL must be positive")
	}
	if c.Feed.FailureThreshold < 1 {
		return fmt.Errorf("FEED_FAILURE_THRESHOLD must be at least 1")
	}
	if c.Stream.ReconnectDelay > c.Stream.MaxReconnectDelay {
		return fmt.Errorf("STREAM_RECONNECT_DELAY must not exceed STREAM_MAX_RECONNECT_DELAY")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
