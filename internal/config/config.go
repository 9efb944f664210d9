package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// SecurityConfig represents security configuration for the API surface
type SecurityConfig struct {
	EnableRateLimit       bool
	RateLimitPerSecond    float64
	RateLimitBurst        int
	EnableCORS            bool
	AllowedOrigins        []string
	EnableSecurityHeaders bool
	MaxRequestSize        int64
	EnableRequestID       bool
}

type Config struct {
	Port     int
	DataDir  string
	CacheTTL time.Duration

	// Search API credentials and client behavior
	ClientID     string
	ClientSecret string
	APITimeout   time.Duration
	MaxRetries   int

	// Raw tab keywords, possibly carrying exclusion terms ("economy -crypto")
	TabKeywords []string

	// Refresh orchestration
	RefreshInterval   time.Duration // 0 disables the scheduler
	StepDelay         time.Duration
	FetchDedupeWindow time.Duration

	// Storage
	PoolSize      int
	RetentionDays int // 0 disables startup retention cleanup

	EnableSwagger bool
	Security      SecurityConfig
}

func Load() *Config {
	return &Config{
		Port:     getEnvAsInt("PORT", 8080),
		DataDir:  getEnv("DATA_DIR", "./data"),
		CacheTTL: getEnvAsDuration("CACHE_TTL", time.Minute),

		ClientID:     getEnv("NAVER_CLIENT_ID", ""),
		ClientSecret: getEnv("NAVER_CLIENT_SECRET", ""),
		APITimeout:   getEnvAsDuration("API_TIMEOUT", 15*time.Second),
		MaxRetries:   getEnvAsInt("API_MAX_RETRIES", 3),

		TabKeywords: getEnvAsStringSlice("TAB_KEYWORDS", nil),

		RefreshInterval:   getEnvAsDuration("REFRESH_INTERVAL", 10*time.Minute),
		StepDelay:         getEnvAsDuration("STEP_DELAY", 300*time.Millisecond),
		FetchDedupeWindow: getEnvAsDuration("FETCH_DEDUPE_WINDOW", 10*time.Second),

		PoolSize:      getEnvAsInt("DB_POOL_SIZE", 10),
		RetentionDays: getEnvAsInt("RETENTION_DAYS", 30),

		EnableSwagger: getEnvAsBool("ENABLE_SWAGGER", true),
		Security:      loadSecurityConfig(),
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableRateLimit:       getEnvAsBool("ENABLE_RATE_LIMIT", true),
		RateLimitPerSecond:    getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10.0),
		RateLimitBurst:        getEnvAsInt("RATE_LIMIT_BURST", 20),
		EnableCORS:            getEnvAsBool("ENABLE_CORS", true),
		AllowedOrigins:        getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		EnableSecurityHeaders: getEnvAsBool("ENABLE_SECURITY_HEADERS", true),
		MaxRequestSize:        getEnvAsInt64("MAX_REQUEST_SIZE", 10<<20), // 10MB
		EnableRequestID:       getEnvAsBool("ENABLE_REQUEST_ID", true),
	}
}

// HasCredentials reports whether both API credential values are set.
func (c *Config) HasCredentials() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

func getEnv(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
