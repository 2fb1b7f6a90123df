// Package config provides configuration management for the offline sync gateway.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMemory  = "memory"
	StorageSQLite  = "sqlite"
	StorageMongoDB = "mongodb"
)

// Config holds the complete application configuration.
type Config struct {
	Server  ServerConfig
	Remote  RemoteConfig
	Cache   CacheConfig
	Sync    SyncConfig
	Janitor JanitorConfig
	Storage StorageConfig
	Log     LogConfig
}

// ServerConfig holds local gateway HTTP configuration.
type ServerConfig struct {
	Port        string
	RateLimit   int
	RateBurst   int
	CORSOrigins []string
	SwaggerUser string
	SwaggerPass string
}

// RemoteConfig describes the remote API the gateway fronts.
type RemoteConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HealthPath string
	APIPrefix  string
	// ServerIDPaths are gjson paths tried against a CREATE response for the server-assigned id.
	ServerIDPaths []string
	// CircuitBreaker configuration
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration
}

// CacheConfig holds cache partition and interception configuration.
type CacheConfig struct {
	MaxAge          time.Duration
	NetworkTimeout  time.Duration
	HotSize         int
	HotTTL          time.Duration
	ImageMaxEntries int
}

// SyncConfig holds reconciler configuration.
type SyncConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Interval      time.Duration
	Rate          float64
	CheckInterval time.Duration
}

// JanitorConfig holds periodic maintenance configuration.
type JanitorConfig struct {
	Interval           time.Duration
	CompletedRetention time.Duration
	FailedRetention    time.Duration
	CriticalURLs       []string
}

// StorageConfig selects and configures the durable storage adapter.
type StorageConfig struct {
	Driver        string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string
	Pretty bool
}

// Load creates a Config from environment variables.
func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			RateLimit:   getEnvInt("RATE_LIMIT", 50),
			RateBurst:   getEnvInt("RATE_BURST", 100),
			CORSOrigins: parseCORSOrigins(os.Getenv("CORS_ORIGINS")),
			SwaggerUser: getEnv("SWAGGER_USER", ""),
			SwaggerPass: getEnv("SWAGGER_PASS", ""),
		},
		Remote: RemoteConfig{
			BaseURL:                        strings.TrimRight(getEnv("REMOTE_BASE_URL", "http://localhost:3000"), "/"),
			Timeout:                        getEnvDuration("REMOTE_TIMEOUT", 10*time.Second),
			HealthPath:                     getEnv("REMOTE_HEALTH_PATH", "/api/health"),
			APIPrefix:                      normalizePrefix(getEnv("API_PREFIX", "/api")),
			ServerIDPaths:                  parseList(getEnv("SERVER_ID_PATHS", "id,data.id")),
			CircuitBreakerFailureThreshold: getEnvInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5),
			CircuitBreakerSuccessThreshold: getEnvInt("CIRCUIT_BREAKER_SUCCESS_THRESHOLD", 1),
			CircuitBreakerTimeout:          getEnvDuration("CIRCUIT_BREAKER_TIMEOUT", 15*time.Second),
		},
		Cache: CacheConfig{
			MaxAge:          getEnvDuration("CACHE_MAX_AGE", 7*24*time.Hour),
			NetworkTimeout:  getEnvDuration("NETWORK_TIMEOUT", 3*time.Second),
			HotSize:         getEnvInt("HOT_CACHE_SIZE", 1000),
			HotTTL:          getEnvDuration("HOT_CACHE_TTL", time.Minute),
			ImageMaxEntries: getEnvInt("IMAGE_MAX_ENTRIES", 200),
		},
		Sync: SyncConfig{
			MaxRetries:    getEnvInt("SYNC_MAX_RETRIES", 5),
			BaseDelay:     getEnvDuration("SYNC_BASE_DELAY", time.Second),
			MaxDelay:      getEnvDuration("SYNC_MAX_DELAY", 5*time.Minute),
			Interval:      getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
			Rate:          getEnvFloat("SYNC_RATE", 20),
			CheckInterval: getEnvDuration("CHECK_INTERVAL", 15*time.Second),
		},
		Janitor: JanitorConfig{
			Interval:           getEnvDuration("JANITOR_INTERVAL", time.Hour),
			CompletedRetention: getEnvDuration("COMPLETED_RETENTION", 24*time.Hour),
			FailedRetention:    getEnvDuration("FAILED_RETENTION", 7*24*time.Hour),
			CriticalURLs:       parseList(os.Getenv("CRITICAL_URLS")),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(getEnv("STORAGE_DRIVER", StorageSQLite)),
			SQLitePath:    getEnv("SQLITE_PATH", "offline-sync.db"),
			MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase: getEnv("MONGODB_DATABASE", "offline_sync"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvBool("LOG_PRETTY", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			result = append(result, v)
		}
	}
	return result
}

// normalizePrefix returns the prefix with a leading slash and no trailing slash.
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func parseCORSOrigins(s string) []string {
	// Default origins for local development
	defaults := []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}
	if s == "" {
		return defaults
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts)+len(defaults))
	result = append(result, defaults...)
	for _, p := range parts {
		if origin := strings.TrimSpace(p); origin != "" {
			result = append(result, origin)
		}
	}
	return result
}
