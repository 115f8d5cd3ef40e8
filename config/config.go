package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Sheet backends
const (
	BackendXLSX         = "xlsx"
	BackendGoogleSheets = "gsheets"
)

// Config represents the application configuration
type Config struct {
	// Storage
	DataDir       string
	WorkbookPath  string
	SheetsBackend string
	SpreadsheetID string
	// GoogleCredentials is a service account JSON file
	GoogleCredentials string

	// Job catalog
	JobsFile   string
	DefaultJob string

	// Redis configuration, publishing is disabled when RedisAddr is empty
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration, an in-process cache is used when empty
	MemcacheAddr string

	// Fetching
	NavRetries     int
	NavTimeout     time.Duration
	RequestTimeout time.Duration
	PageDelay      time.Duration
	RateLimitBlock time.Duration
	Headless       bool
	ChromePath     string

	// Proxy
	ProxyServer   string
	ProxyUsername string
	ProxyPassword string

	// Locale
	Timezone string
	Country  string

	// Currency
	ReferenceCurrency string
	FXURL             string
	FXCacheTTL        time.Duration
	StaticRates       map[string]float64

	// Credentials for dashboards behind a login
	AdtractionEmail    string
	AdtractionPassword string

	// Misc
	LogFile     string
	RunInterval time.Duration
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	dataDir := getEnv("DATA_DIR", "data")

	return &Config{
		DataDir:              dataDir,
		WorkbookPath:         getEnv("WORKBOOK_PATH", dataDir+"/data.xlsx"),
		SheetsBackend:        getEnv("SHEETS_BACKEND", BackendXLSX),
		SpreadsheetID:        getEnv("SPREADSHEET_ID", ""),
		GoogleCredentials:    getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		JobsFile:             getEnv("JOBS_FILE", ""),
		DefaultJob:           getEnv("DEFAULT_JOB", "adtraction_stats"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "measurements"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		NavRetries:           getEnvInt("NAV_RETRIES", 3),
		NavTimeout:           getEnvSeconds("NAV_TIMEOUT_SECONDS", 60),
		RequestTimeout:       getEnvSeconds("REQUEST_TIMEOUT_SECONDS", 30),
		PageDelay:            time.Duration(getEnvInt("PAGE_DELAY_MS", 800)) * time.Millisecond,
		RateLimitBlock:       getEnvSeconds("RATE_LIMIT_BLOCK_SECONDS", 300),
		Headless:             getEnv("HEADLESS", "true") != "false",
		ChromePath:           getEnv("CHROME_PATH", ""),
		ProxyServer:          getEnv("PROXY_SERVER", ""),
		ProxyUsername:        getEnv("PROXY_USERNAME", ""),
		ProxyPassword:        getEnv("PROXY_PASSWORD", ""),
		Timezone:             getEnv("TIMEZONE", "Europe/Stockholm"),
		Country:              strings.ToUpper(getEnv("COUNTRY", "SE")),
		ReferenceCurrency:    strings.ToUpper(getEnv("REFERENCE_CURRENCY", "SEK")),
		FXURL:                getEnv("FX_URL", "https://api.frankfurter.app"),
		FXCacheTTL:           getEnvSeconds("FX_CACHE_TTL_SECONDS", 6*3600),
		StaticRates:          parseRates(getEnv("STATIC_RATES", "")),
		AdtractionEmail:      getEnv("ADTRACTION_EMAIL", ""),
		AdtractionPassword:   getEnv("ADTRACTION_PASSWORD", ""),
		LogFile:              getEnv("LOG_FILE", ""),
		RunInterval:          getEnvSeconds("RUN_INTERVAL_SECONDS", 24*3600),
		Environment:          getEnv("METRIC_ENVIRONMENT", "development"),
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.SheetsBackend {
	case BackendXLSX:
		if c.WorkbookPath == "" {
			return fmt.Errorf("WORKBOOK_PATH is required for the xlsx backend")
		}
	case BackendGoogleSheets:
		if c.SpreadsheetID == "" {
			return fmt.Errorf("SPREADSHEET_ID is required for the gsheets backend")
		}
		if c.GoogleCredentials == "" {
			return fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS is required for the gsheets backend")
		}
	default:
		return fmt.Errorf("unknown SHEETS_BACKEND %q", c.SheetsBackend)
	}
	if c.NavRetries < 1 {
		return fmt.Errorf("NAV_RETRIES must be at least 1, got %d", c.NavRetries)
	}
	if c.RedisAddr != "" && c.RedisStreamCount < 1 {
		return fmt.Errorf("REDIS_STREAM_COUNT must be at least 1")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if len(c.ReferenceCurrency) != 3 {
		return fmt.Errorf("REFERENCE_CURRENCY must be an ISO code, got %q", c.ReferenceCurrency)
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

// parseRates reads "EUR=11.5,DKK=1.54" into reference units per unit.
func parseRates(raw string) map[string]float64 {
	rates := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		code, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || rate <= 0 {
			continue
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return rates
}
