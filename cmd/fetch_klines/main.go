package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"

	"klinearchive/config"
	"klinearchive/internal/adapters/binanceclient"
	"klinearchive/internal/adapters/blobstore"
	"klinearchive/internal/adapters/filestore"
	"klinearchive/internal/adapters/kafkapub"
	"klinearchive/internal/adapters/logger"
	"klinearchive/internal/adapters/sqlstore"
	"klinearchive/internal/app"
	"klinearchive/internal/metrics"
	"klinearchive/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger (console + appended log file)
	appLogger, err := logger.NewAppendLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "file": cfg.LogFile})

	// run returns only after its deferred closers have run.
	err = run(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Archive run failed")
	} else {
		appLogger.Info(context.Background(), "Application finished gracefully.")
	}
	appLogger.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger *logger.StdLogger) error {
	ctx := context.Background()

	// 3. Initialize Day Store (local directory or blob bucket)
	var store ports.DayStore
	if cfg.StoreURL != "" {
		bs, err := blobstore.Open(ctx, cfg.StoreURL, appLogger)
		if err != nil {
			return fmt.Errorf("failed to open blob store: %w", err)
		}
		defer func() {
			if err := bs.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing blob store")
			}
		}()
		store = bs
	} else {
		fs, err := filestore.New(filestore.Config{Root: cfg.DataDir, Logger: appLogger})
		if err != nil {
			return fmt.Errorf("failed to initialize file store: %w", err)
		}
		store = fs
	}
	appLogger.Info(ctx, "Day store initialized")

	// 4. Initialize Journal (optional)
	var journal ports.Journal
	if cfg.JournalDSN != "" {
		j, err := sqlstore.NewJournal(sqlstore.Config{
			Driver: cfg.JournalDriver,
			DSN:    cfg.JournalDSN,
			Logger: appLogger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize fetch journal: %w", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing fetch journal")
			}
		}()
		journal = j
		appLogger.Info(ctx, "Fetch journal initialized", map[string]interface{}{"driver": cfg.JournalDriver})
	}

	// 5. Initialize Event Publisher
	var publisher ports.DayPublisher = kafkapub.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		p, err := kafkapub.New(kafkapub.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Logger:  appLogger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Kafka publisher: %w", err)
		}
		publisher = p
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing event publisher")
		}
	}()

	// 6. Initialize Metrics
	m := metrics.New()
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(metricsCtx, cfg.MetricsAddr); err != nil {
				appLogger.Error(ctx, err, "Metrics server stopped")
			}
		}()
		appLogger.Info(ctx, "Serving metrics", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 7. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:      cfg.APIKey,
		SecretKey:   cfg.SecretKey,
		UseTestnet:  cfg.IsTestnet,
		BaseURL:     cfg.BaseURL,
		HTTPTimeout: cfg.HTTPTimeout,
		Logger:      appLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Binance client: %w", err)
	}
	appLogger.Info(ctx, "Binance client initialized")

	// 8. Initialize Application Service
	archiveService, err := app.NewArchiveService(cfg, appLogger, binanceClient, store, journal, publisher, m)
	if err != nil {
		return fmt.Errorf("failed to initialize archive service: %w", err)
	}

	// 9. Start the Service
	return archiveService.Start(ctx)
}
