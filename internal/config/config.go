package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort              = "8080"
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultGeocoderURL       = "https://nominatim.openstreetmap.org/search"
	DefaultGeocoderUserAgent = "flightfinder/1.0"
	DefaultMinFlights        = 5
	DefaultCandidateCount    = 3
	DefaultDropdownCount     = 2
	DefaultBudgetDivisor     = 2.0
	DefaultRateLimit         = 60
)

// Config holds all process configuration.
type Config struct {
	Port        string
	BearerToken string

	DatabaseURL   string
	MigrationsDir string
	RedisURL      string

	SerpAPIKey string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	GeocoderURL       string
	GeocoderUserAgent string

	AirportsCSV string

	CacheTTL        time.Duration
	CacheMaxEntries int

	MinFlights     int
	CandidateCount int
	DropdownCount  int
	BudgetDivisor  float64

	RateLimitPerMinute int
}

// Load reads configuration from the environment, after loading a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", DefaultPort),
		BearerToken: os.Getenv("BEARER_TOKEN"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MigrationsDir: os.Getenv("MIGRATIONS_DIR"),
		RedisURL:      os.Getenv("REDIS_URL"),

		SerpAPIKey: os.Getenv("SERPAPI_KEY"),

		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   getEnv("OPENAI_MODEL", DefaultOpenAIModel),

		GeocoderURL:       getEnv("GEOCODER_URL", DefaultGeocoderURL),
		GeocoderUserAgent: getEnv("GEOCODER_USER_AGENT", DefaultGeocoderUserAgent),

		AirportsCSV: os.Getenv("AIRPORTS_CSV"),

		CacheTTL:        getEnvAsDuration("CACHE_TTL", 0),
		CacheMaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 0),

		MinFlights:     getEnvAsInt("FINDER_MIN_FLIGHTS", DefaultMinFlights),
		CandidateCount: getEnvAsInt("FINDER_CANDIDATES", DefaultCandidateCount),
		DropdownCount:  getEnvAsInt("FINDER_DROPDOWN", DefaultDropdownCount),
		BudgetDivisor:  getEnvAsFloat("PLANNER_BUDGET_DIVISOR", DefaultBudgetDivisor),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", DefaultRateLimit),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BearerToken == "" {
		return fmt.Errorf("required environment variable BEARER_TOKEN not set")
	}
	if c.SerpAPIKey == "" {
		return fmt.Errorf("required environment variable SERPAPI_KEY not set")
	}
	if c.MinFlights < 1 || c.CandidateCount < 1 || c.DropdownCount < 1 {
		return fmt.Errorf("finder sizes must be positive (min=%d candidates=%d dropdown=%d)",
			c.MinFlights, c.CandidateCount, c.DropdownCount)
	}
	if c.BudgetDivisor <= 0 {
		return fmt.Errorf("PLANNER_BUDGET_DIVISOR must be positive, got %v", c.BudgetDivisor)
	}
	if c.RateLimitPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
