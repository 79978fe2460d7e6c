package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"klinearchive/internal/adapters/logger"
	"klinearchive/internal/domain"
)

// VerifyConfig holds the configuration of the day verifier. It reads only the
// settings that locate and describe stored days, so fetch settings such as
// START_DATE cannot stop a verification run.
type VerifyConfig struct {
	Ticker   string
	Interval string
	From     domain.Day // Zero: earliest stored day
	To       domain.Day // Zero: after the latest stored day

	DataDir  string
	StoreURL string

	JournalDriver string
	JournalDSN    string // Empty skips the journal comparison

	CSVPath  string // Empty disables the CSV export
	LogLevel logger.LogLevel
}

// LoadVerifyConfig loads the verifier configuration from the environment
// (.env file), then applies command-line overrides from args.
func LoadVerifyConfig(args []string) (*VerifyConfig, error) {
	_ = godotenv.Load()

	cfg := &VerifyConfig{}
	var errs []string

	cfg.Ticker = getEnv("TICKER", "BTCUSDT")
	cfg.Interval = getEnv("INTERVAL", "1s")
	cfg.DataDir = getEnv("DATA_DIR", "./data")
	cfg.StoreURL = getEnv("STORE_URL", "")
	cfg.JournalDriver = getEnv("JOURNAL_DRIVER", "sqlite3")
	cfg.JournalDSN = os.Getenv("JOURNAL_DSN")
	_, journalDSNSet := os.LookupEnv("JOURNAL_DSN")
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	var fromStr, toStr string
	fs := flag.NewFlagSet("verify_days", flag.ContinueOnError)
	fs.StringVar(&cfg.Ticker, "ticker", cfg.Ticker, "Ticker symbol, e.g. BTCUSDT")
	fs.StringVar(&fromStr, "from", "", "First day to verify (YYYY-MM-DD); empty means the earliest stored day")
	fs.StringVar(&toStr, "to", "", "Day to stop before (YYYY-MM-DD, exclusive); empty means after the latest stored day")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Root directory for day files")
	fs.StringVar(&cfg.StoreURL, "store", cfg.StoreURL, "gocloud blob URL; overrides -data when set")
	fs.StringVar(&cfg.CSVPath, "csv", "", "Write the records of every valid day to this CSV file")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if !journalDSNSet {
		cfg.JournalDSN = filepath.Join(cfg.DataDir, "journal.db")
	}

	if cfg.Ticker == "" {
		errs = append(errs, "TICKER must be set")
	}
	cfg.Ticker = strings.ToUpper(cfg.Ticker)

	var err error
	if fromStr != "" {
		if cfg.From, err = domain.ParseDay(fromStr); err != nil {
			errs = append(errs, fmt.Sprintf("invalid -from: %v", err))
		}
	}
	if toStr != "" {
		if cfg.To, err = domain.ParseDay(toStr); err != nil {
			errs = append(errs, fmt.Sprintf("invalid -to: %v", err))
		}
	}
	if !cfg.From.IsZero() && !cfg.To.IsZero() && !cfg.From.Before(cfg.To) {
		errs = append(errs, "-from must be before -to")
	}
	if _, err := domain.ParseInterval(cfg.Interval); err != nil {
		errs = append(errs, fmt.Sprintf("invalid INTERVAL: %v", err))
	}
	if cfg.DataDir == "" && cfg.StoreURL == "" {
		errs = append(errs, "DATA_DIR or STORE_URL must be set")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}
