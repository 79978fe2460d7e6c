package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"klinearchive/internal/adapters/logger" // Import the logger package for LogLevel
	"klinearchive/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// What to fetch
	Ticker   string
	Interval string
	Start    domain.Day // Zero: resume after the latest stored day
	End      domain.Day // Zero: stop before the current UTC day

	// Paging
	PagesPerDay  int           // Requests per day (e.g., 96)
	PageLimit    int           // Records per request (e.g., 900)
	RequestDelay time.Duration // Sleep after every page request
	DayPause     time.Duration // Sleep after every completed day

	// Failure handling
	RetryCooldown  time.Duration // Sleep before refetching a failed day
	MaxDayAttempts int           // 0 retries forever
	FailFast       bool          // Exit on the first failed day instead of retrying

	// Binance API
	APIKey      string
	SecretKey   string
	IsTestnet   bool
	BaseURL     string
	HTTPTimeout time.Duration

	// Storage
	DataDir  string // Local day file root
	StoreURL string // gocloud blob URL; overrides DataDir when set

	// Journal
	JournalDriver string
	JournalDSN    string // Empty disables the journal

	// Events
	KafkaBrokers []string
	KafkaTopic   string

	// Observability
	LogFile     string
	LogLevel    logger.LogLevel
	MetricsAddr string
}

// LoadConfig loads configuration from environment variables (.env file),
// then applies command-line overrides from args.
func LoadConfig(args []string) (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.Ticker = getEnv("TICKER", "BTCUSDT")
	cfg.Interval = getEnv("INTERVAL", "1s")
	startStr := getEnv("START_DATE", "")
	endStr := getEnv("END_DATE", "")

	cfg.PagesPerDay, err = getEnvAsIntRequired("PAGES_PER_DAY", 96)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAGES_PER_DAY: %v", err))
	}
	cfg.PageLimit, err = getEnvAsIntRequired("PAGE_LIMIT", 900)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAGE_LIMIT: %v", err))
	}
	cfg.RequestDelay, err = getEnvAsDurationRequired("REQUEST_DELAY_MS", 500, time.Millisecond)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUEST_DELAY_MS: %v", err))
	}
	cfg.DayPause, err = getEnvAsDurationRequired("DAY_PAUSE_SECONDS", 10, time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DAY_PAUSE_SECONDS: %v", err))
	}
	cfg.RetryCooldown, err = getEnvAsDurationRequired("RETRY_COOLDOWN_SECONDS", 300, time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RETRY_COOLDOWN_SECONDS: %v", err))
	}
	cfg.MaxDayAttempts, err = getEnvAsIntRequired("MAX_DAY_ATTEMPTS", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAY_ATTEMPTS: %v", err))
	}
	cfg.FailFast = getEnvAsBool("FAIL_FAST", false)

	// Binance API (klines are public; keys are optional)
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)
	cfg.BaseURL = getEnv("BINANCE_BASE_URL", "")
	cfg.HTTPTimeout = time.Duration(getEnvAsInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second

	cfg.DataDir = getEnv("DATA_DIR", "./data")
	cfg.StoreURL = getEnv("STORE_URL", "")

	cfg.JournalDriver = getEnv("JOURNAL_DRIVER", "sqlite3")
	cfg.JournalDSN = os.Getenv("JOURNAL_DSN")
	_, journalDSNSet := os.LookupEnv("JOURNAL_DSN")

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", "kline-days")

	cfg.LogFile = getEnv("LOG_FILE", "log.txt")
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Command-line flags override the environment.
	fs := flag.NewFlagSet("fetch_klines", flag.ContinueOnError)
	fs.StringVar(&cfg.Ticker, "ticker", cfg.Ticker, "Ticker symbol, e.g. BTCUSDT")
	fs.StringVar(&startStr, "start", startStr, "First day to fetch (YYYY-MM-DD); empty resumes after the latest day file")
	fs.StringVar(&endStr, "end", endStr, "Day to stop before (YYYY-MM-DD, exclusive); empty means today UTC")
	fs.DurationVar(&cfg.RequestDelay, "delay", cfg.RequestDelay, "Delay after every page request")
	fs.DurationVar(&cfg.RetryCooldown, "cooldown", cfg.RetryCooldown, "Cooldown before refetching a failed day")
	fs.BoolVar(&cfg.FailFast, "fail-fast", cfg.FailFast, "Exit on the first failed day instead of retrying")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Root directory for day files")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Address to serve Prometheus metrics on, e.g. :9100")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	// Unset JOURNAL_DSN keeps the journal next to the day files.
	if !journalDSNSet {
		cfg.JournalDSN = filepath.Join(cfg.DataDir, "journal.db")
	}

	if cfg.Ticker == "" {
		errs = append(errs, "TICKER must be set")
	}
	cfg.Ticker = strings.ToUpper(cfg.Ticker)

	if startStr != "" {
		if cfg.Start, err = domain.ParseDay(startStr); err != nil {
			errs = append(errs, fmt.Sprintf("invalid START_DATE: %v", err))
		}
	}
	if endStr != "" {
		if cfg.End, err = domain.ParseDay(endStr); err != nil {
			errs = append(errs, fmt.Sprintf("invalid END_DATE: %v", err))
		}
	}
	if !cfg.Start.IsZero() && !cfg.End.IsZero() && !cfg.Start.Before(cfg.End) {
		errs = append(errs, "START_DATE must be before END_DATE")
	}

	step, err := domain.ParseInterval(cfg.Interval)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INTERVAL: %v", err))
	}
	if cfg.PagesPerDay <= 0 || cfg.PageLimit <= 0 {
		errs = append(errs, "PAGES_PER_DAY and PAGE_LIMIT must be positive")
	} else if step > 0 && time.Duration(cfg.PagesPerDay)*time.Duration(cfg.PageLimit)*step != 24*time.Hour {
		errs = append(errs, fmt.Sprintf("PAGES_PER_DAY x PAGE_LIMIT x INTERVAL must cover exactly one day (got %d x %d x %s)",
			cfg.PagesPerDay, cfg.PageLimit, cfg.Interval))
	}
	if cfg.PageLimit > 1000 {
		errs = append(errs, "PAGE_LIMIT cannot exceed 1000")
	}
	if cfg.RequestDelay < 0 || cfg.RetryCooldown < 0 || cfg.DayPause < 0 {
		errs = append(errs, "delays cannot be negative")
	}
	if cfg.MaxDayAttempts < 0 {
		errs = append(errs, "MAX_DAY_ATTEMPTS cannot be negative")
	}
	if cfg.DataDir == "" && cfg.StoreURL == "" {
		errs = append(errs, "DATA_DIR or STORE_URL must be set")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsDurationRequired reads an integer count of unit.
func getEnvAsDurationRequired(key string, defaultValue int, unit time.Duration) (time.Duration, error) {
	n, err := getEnvAsIntRequired(key, defaultValue)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * unit, nil
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
