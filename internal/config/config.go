package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	LiveStatus LiveStatusConfig `yaml:"live_status"`
	Timetable  TimetableConfig  `yaml:"timetable"`
	Search     SearchConfig     `yaml:"search"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Auth       AuthConfig       `yaml:"auth"`
	Routes     RoutesConfig     `yaml:"routes"`
	Timezone   string           `yaml:"timezone" validate:"required"`
}

// ServerConfig holds http server configuration
type ServerConfig struct {
	Addr           string        `yaml:"addr" validate:"required"`
	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" validate:"gte=0"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" validate:"gte=0"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path                  string        `yaml:"path" validate:"required"`
	MaxOpenConnections    int           `yaml:"max_open_conns" validate:"gt=0"`
	MaxIdleConnections    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnectionMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectionMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// UpstreamConfig describes the availability/schedule provider.
type UpstreamConfig struct {
	BaseURL    string        `yaml:"base_url" validate:"required,url"`
	APIKey     string        `yaml:"api_key"`
	APIHost    string        `yaml:"api_host"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	RatePerSec float64       `yaml:"rate_per_sec" validate:"gt=0"`
	Burst      int           `yaml:"burst" validate:"gt=0"`
}

// LiveStatusConfig is the secondary route source.
type LiveStatusConfig struct {
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	ProxyURL string `yaml:"proxy_url" validate:"omitempty,url"`
}

// TimetableConfig is the last-resort route source. Disabled when BaseURL is empty.
type TimetableConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// SearchConfig tunes the stitching search.
type SearchConfig struct {
	PolitenessDelay      time.Duration `yaml:"politeness_delay" validate:"gte=0"`
	MinHopSpan           int           `yaml:"min_hop_span" validate:"gte=1"`
	SoftCallCap          int           `yaml:"soft_call_cap" validate:"gt=0"`
	HardCallCap          int           `yaml:"hard_call_cap" validate:"gtefield=SoftCallCap"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors" validate:"gt=0"`
	CacheSize            int           `yaml:"cache_size" validate:"gt=0"`
}

// RateLimitConfig holds per-caller fixed window limits
type RateLimitConfig struct {
	Window    time.Duration `yaml:"window" validate:"gt=0"`
	SearchCap int           `yaml:"search_cap" validate:"gt=0"`
	RouteCap  int           `yaml:"route_cap" validate:"gt=0"`
}

// AuthConfig maps caller names to bearer tokens. Empty disables auth.
type AuthConfig struct {
	Tokens map[string]string `yaml:"tokens"`
}

// RoutesConfig holds route store and warm-up configuration
type RoutesConfig struct {
	TTL             time.Duration `yaml:"ttl" validate:"gt=0"`
	WarmListPath    string        `yaml:"warm_list_path"`
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gte=0"`
	WarmConcurrency int           `yaml:"warm_concurrency" validate:"gt=0"`
}

// Load reads configuration from .env, environment variables and an optional
// YAML file named by SEATSTITCH_CONFIG, then validates the result.
func Load() (*Config, error) {
	// missing .env is normal outside development
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:           getEnv("SERVER_ADDR", ":8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvAsList("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Path:                  getEnv("DB_PATH", "./data/seatstitch.db"),
			MaxOpenConnections:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConnections:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnectionMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectionMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Upstream: UpstreamConfig{
			BaseURL:    getEnv("UPSTREAM_BASE_URL", "https://irctc1.p.rapidapi.com"),
			APIKey:     getEnv("UPSTREAM_API_KEY", ""),
			APIHost:    getEnv("UPSTREAM_API_HOST", "irctc1.p.rapidapi.com"),
			Timeout:    getEnvAsDuration("UPSTREAM_TIMEOUT", 30*time.Second),
			RatePerSec: getEnvAsFloat("UPSTREAM_RATE_PER_SEC", 5),
			Burst:      getEnvAsInt("UPSTREAM_BURST", 5),
		},
		LiveStatus: LiveStatusConfig{
			BaseURL:  getEnv("LIVE_STATUS_BASE_URL", "https://whereismytrain.in/cache/live_status"),
			ProxyURL: getEnv("PROXY_URL", ""),
		},
		Timetable: TimetableConfig{
			BaseURL: getEnv("TIMETABLE_BASE_URL", ""),
		},
		Search: SearchConfig{
			PolitenessDelay:      getEnvAsDuration("SEARCH_POLITENESS_DELAY", time.Second),
			MinHopSpan:           getEnvAsInt("SEARCH_MIN_HOP_SPAN", 2),
			SoftCallCap:          getEnvAsInt("SEARCH_SOFT_CALL_CAP", 18),
			HardCallCap:          getEnvAsInt("SEARCH_HARD_CALL_CAP", 20),
			MaxConsecutiveErrors: getEnvAsInt("SEARCH_MAX_CONSECUTIVE_ERRORS", 3),
			CacheSize:            getEnvAsInt("SEARCH_CACHE_SIZE", 512),
		},
		RateLimit: RateLimitConfig{
			Window:    getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			SearchCap: getEnvAsInt("RATE_LIMIT_SEARCH_CAP", 10),
			RouteCap:  getEnvAsInt("RATE_LIMIT_ROUTE_CAP", 15),
		},
		Auth: AuthConfig{
			Tokens: getEnvAsMap("AUTH_TOKENS"),
		},
		Routes: RoutesConfig{
			TTL:             getEnvAsDuration("ROUTES_TTL", 7*24*time.Hour),
			WarmListPath:    getEnv("ROUTES_WARM_LIST", "./data/trains.csv"),
			RefreshInterval: getEnvAsDuration("ROUTES_REFRESH_INTERVAL", 24*time.Hour),
			WarmConcurrency: getEnvAsInt("ROUTES_WARM_CONCURRENCY", 2),
		},
		Timezone: getEnv("TIMEZONE", "Asia/Kolkata"),
	}

	if path := os.Getenv("SEATSTITCH_CONFIG"); path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// overlayFile merges a YAML file over cfg; keys absent from the file keep their current values.
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsMap parses "name:token,name2:token2"
func getEnvAsMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range getEnvAsList(key, nil) {
		name, token, ok := strings.Cut(pair, ":")
		name, token = strings.TrimSpace(name), strings.TrimSpace(token)
		if !ok || name == "" || token == "" {
			continue
		}
		out[name] = token
	}
	return out
}
