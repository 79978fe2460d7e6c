package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"klinearchive/config"
	"klinearchive/internal/adapters/blobstore"
	"klinearchive/internal/adapters/filestore"
	"klinearchive/internal/adapters/logger"
	"klinearchive/internal/adapters/sqlstore"
	"klinearchive/internal/app"
	"klinearchive/internal/ports"
)

func main() {
	cfg, err := config.LoadVerifyConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	report, err := run(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Verification failed")
		os.Exit(1)
	}

	appLogger.Info(context.Background(), "Verification finished", map[string]interface{}{
		"ticker":   cfg.Ticker,
		"checked":  len(report.Days),
		"invalid":  report.Invalid,
		"missing":  len(report.Missing),
		"exported": report.Exported,
	})
	if report.Invalid > 0 {
		os.Exit(1)
	}
}

func run(cfg *config.VerifyConfig, appLogger *logger.StdLogger) (app.VerifyReport, error) {
	ctx := context.Background()

	var store ports.DayStore
	if cfg.StoreURL != "" {
		bs, err := blobstore.Open(ctx, cfg.StoreURL, appLogger)
		if err != nil {
			return app.VerifyReport{}, fmt.Errorf("failed to open blob store: %w", err)
		}
		defer bs.Close()
		store = bs
	} else {
		fs, err := filestore.New(filestore.Config{Root: cfg.DataDir, Logger: appLogger})
		if err != nil {
			return app.VerifyReport{}, fmt.Errorf("failed to initialize file store: %w", err)
		}
		store = fs
	}

	// The journal is compared when it exists; a missing database is not created.
	var journal ports.Journal
	if cfg.JournalDSN != "" && journalAvailable(cfg) {
		j, err := sqlstore.NewJournal(sqlstore.Config{
			Driver: cfg.JournalDriver,
			DSN:    cfg.JournalDSN,
			Logger: appLogger,
		})
		if err != nil {
			return app.VerifyReport{}, fmt.Errorf("failed to open fetch journal: %w", err)
		}
		defer j.Close()
		journal = j
	}

	verifier, err := app.NewVerifier(store, journal, appLogger, cfg.Ticker, cfg.Interval)
	if err != nil {
		return app.VerifyReport{}, err
	}

	var csv io.Writer
	if cfg.CSVPath != "" {
		f, err := os.Create(cfg.CSVPath)
		if err != nil {
			return app.VerifyReport{}, fmt.Errorf("failed to create CSV file: %w", err)
		}
		defer f.Close()
		csv = f
	}

	return verifier.Run(ctx, cfg.From, cfg.To, csv)
}

func journalAvailable(cfg *config.VerifyConfig) bool {
	if cfg.JournalDriver != sqlstore.DriverSQLite {
		return true
	}
	_, err := os.Stat(cfg.JournalDSN)
	return err == nil
}
