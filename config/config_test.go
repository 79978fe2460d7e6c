package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinearchive/internal/adapters/logger"
)

var configKeys = []string{
	"TICKER", "INTERVAL", "START_DATE", "END_DATE", "PAGES_PER_DAY", "PAGE_LIMIT",
	"REQUEST_DELAY_MS", "DAY_PAUSE_SECONDS", "RETRY_COOLDOWN_SECONDS", "MAX_DAY_ATTEMPTS",
	"FAIL_FAST", "BINANCE_API_KEY", "BINANCE_API_SECRET", "IS_TESTNET", "BINANCE_BASE_URL",
	"HTTP_TIMEOUT_SECONDS", "DATA_DIR", "STORE_URL", "JOURNAL_DRIVER", "KAFKA_BROKERS",
	"KAFKA_TOPIC", "LOG_FILE", "LOG_LEVEL", "METRICS_ADDR",
}

// clearEnv blanks every variable LoadConfig reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
	t.Setenv("JOURNAL_DSN", "")
	os.Unsetenv("JOURNAL_DSN")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Ticker)
	assert.Equal(t, "1s", cfg.Interval)
	assert.True(t, cfg.Start.IsZero())
	assert.True(t, cfg.End.IsZero())
	assert.Equal(t, 96, cfg.PagesPerDay)
	assert.Equal(t, 900, cfg.PageLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.RequestDelay)
	assert.Equal(t, 5*time.Minute, cfg.RetryCooldown)
	assert.Equal(t, 10*time.Second, cfg.DayPause)
	assert.Equal(t, 0, cfg.MaxDayAttempts)
	assert.False(t, cfg.FailFast)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "sqlite3", cfg.JournalDriver)
	assert.Equal(t, filepath.Join("data", "journal.db"), cfg.JournalDSN)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "log.txt", cfg.LogFile)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
}

func TestLoadConfig_EnvAndFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICKER", "ethusdt")
	t.Setenv("START_DATE", "2024-01-01")
	t.Setenv("REQUEST_DELAY_MS", "250")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("JOURNAL_DSN", "")

	cfg, err := LoadConfig([]string{"-start", "2024-06-07", "-end", "2024-06-09", "-delay", "1s", "-fail-fast"})
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Ticker)
	assert.Equal(t, "2024-06-07", cfg.Start.String())
	assert.Equal(t, "2024-06-09", cfg.End.String())
	assert.Equal(t, time.Second, cfg.RequestDelay)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Empty(t, cfg.JournalDSN, "explicitly empty DSN disables the journal")
}

func TestLoadConfig_JournalFollowsDataDir(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", "/srv/klines")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/klines", "journal.db"), cfg.JournalDSN)

	cfg, err = LoadConfig([]string{"-data", "/mnt/archive"})
	require.NoError(t, err)
	assert.Equal(t, "/mnt/archive", cfg.DataDir)
	assert.Equal(t, filepath.Join("/mnt/archive", "journal.db"), cfg.JournalDSN)

	t.Setenv("JOURNAL_DSN", "/var/lib/klines/journal.db")
	cfg, err = LoadConfig([]string{"-data", "/mnt/archive"})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/klines/journal.db", cfg.JournalDSN, "an explicit DSN is kept")
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "bad start date", args: []string{"-start", "2024/06/07"}},
		{name: "start not before end", args: []string{"-start", "2024-06-09", "-end", "2024-06-09"}},
		{name: "pages do not cover a day", env: map[string]string{"PAGES_PER_DAY": "95"}},
		{name: "one minute interval with second paging", env: map[string]string{"INTERVAL": "1m"}},
		{name: "page limit above exchange maximum", env: map[string]string{"PAGES_PER_DAY": "48", "PAGE_LIMIT": "1800"}},
		{name: "non-numeric delay", env: map[string]string{"REQUEST_DELAY_MS": "fast"}},
		{name: "negative attempts", env: map[string]string{"MAX_DAY_ATTEMPTS": "-1"}},
		{name: "unknown flag", args: []string{"-bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_OneMinuteInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv("INTERVAL", "1m")
	t.Setenv("PAGES_PER_DAY", "2")
	t.Setenv("PAGE_LIMIT", "720")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "1m", cfg.Interval)
}
