package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"klinearchive/config"
	"klinearchive/internal/codec"
	"klinearchive/internal/domain"
	"klinearchive/internal/metrics"
	"klinearchive/internal/ports"
)

// Summary describes what one Run did.
type Summary struct {
	RunID   string
	Written []domain.Day
	Skipped int
}

// ArchiveService runs the resolve → fetch → write loop for one ticker.
type ArchiveService struct {
	cfg       *config.Config
	logger    ports.Logger
	store     ports.DayStore
	journal   ports.Journal // optional
	publisher ports.DayPublisher
	metrics   *metrics.Metrics
	resolver  *Resolver
	fetcher   *DayFetcher
	runID     string
	now       func() time.Time
	sleep     sleepFunc
}

// NewArchiveService creates a new application service instance.
// journal may be nil; publisher may be a no-op.
func NewArchiveService(
	cfg *config.Config,
	logger ports.Logger,
	source ports.KlineSource,
	store ports.DayStore,
	journal ports.Journal,
	publisher ports.DayPublisher,
	m *metrics.Metrics,
) (*ArchiveService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || source == nil || store == nil || publisher == nil || m == nil {
		return nil, fmt.Errorf("missing required dependencies for ArchiveService")
	}
	if cfg.Ticker == "" {
		return nil, fmt.Errorf("configuration Ticker must be set")
	}

	maxAttempts := cfg.MaxDayAttempts
	if cfg.FailFast {
		maxAttempts = 1
	}

	runID := uuid.NewString()
	fetcher, err := NewDayFetcher(FetcherConfig{
		Ticker:        cfg.Ticker,
		Interval:      cfg.Interval,
		PagesPerDay:   cfg.PagesPerDay,
		PageLimit:     cfg.PageLimit,
		RequestDelay:  cfg.RequestDelay,
		RetryCooldown: cfg.RetryCooldown,
		MaxAttempts:   maxAttempts,
	}, source, logger, journal, m, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to create day fetcher: %w", err)
	}

	return &ArchiveService{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		journal:   journal,
		publisher: publisher,
		metrics:   m,
		resolver:  NewResolver(store, cfg.Ticker, cfg.Start, cfg.End),
		fetcher:   fetcher,
		runID:     runID,
		now:       time.Now,
		sleep:     sleepContext,
	}, nil
}

// RunID identifies this process in the journal and in published events.
func (s *ArchiveService) RunID() string { return s.runID }

// Start runs the fetch loop until every day is fetched or a shutdown signal arrives.
func (s *ArchiveService) Start(ctx context.Context) error {
	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel() // Cancel the main context
		case <-ctx.Done():
		}
	}()

	_, err := s.Run(ctx)
	if errors.Is(err, ports.ErrContextCanceled) || errors.Is(err, context.Canceled) {
		s.logger.Info(context.Background(), "Fetch stopped before completion; the current day will be fetched again on restart")
		return nil
	}
	return err
}

// Run fetches every missing day until the resolver reports completion.
// Fetch failures are retried inside the fetcher; anything returned here
// (storage failure, exhausted attempts, cancellation) ends the run.
func (s *ArchiveService) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: s.runID}
	ticker := s.cfg.Ticker

	s.logger.Info(ctx, "Starting Fetch", map[string]interface{}{"ticker": ticker, "runID": s.runID})

	if err := s.store.Prepare(ctx, ticker); err != nil {
		s.logger.Error(ctx, err, "Failed to prepare day store")
		return summary, err
	}

	for {
		res, err := s.resolver.Next(ctx)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to resolve next day")
			return summary, err
		}
		if res.Skipped > 0 {
			summary.Skipped += res.Skipped
			s.metrics.DaysSkipped.WithLabelValues(ticker).Add(float64(res.Skipped))
			s.logger.Debug(ctx, "Skipped days already on disk", map[string]interface{}{"count": res.Skipped})
		}
		if res.Done {
			s.logger.Info(ctx, "All data has been fetched", map[string]interface{}{"end": res.End.String(), "written": len(summary.Written)})
			return summary, nil
		}

		if err := s.processDay(ctx, res.Day); err != nil {
			return summary, err
		}
		summary.Written = append(summary.Written, res.Day)

		if s.cfg.DayPause > 0 {
			s.logger.Info(ctx, fmt.Sprintf("Wait for %s", s.cfg.DayPause))
			if err := s.sleep(ctx, s.cfg.DayPause); err != nil {
				return summary, fmt.Errorf("pause interrupted: %w: %w", ports.ErrContextCanceled, err)
			}
		}
	}
}

// processDay fetches, encodes, and stores one day, then journals and announces it.
func (s *ArchiveService) processDay(ctx context.Context, day domain.Day) error {
	ticker := s.cfg.Ticker
	s.logger.Info(ctx, fmt.Sprintf("Fetching %s", day))

	klines, attempts, err := s.fetcher.Fetch(ctx, day)
	if err != nil {
		if !errors.Is(err, ports.ErrContextCanceled) {
			s.logger.Error(ctx, err, "Error Occurred!", map[string]interface{}{"day": day.String()})
		}
		return err
	}

	payload := codec.Encode(klines)
	if err := s.store.WriteDay(ctx, ticker, day, payload); err != nil {
		s.logger.Error(ctx, err, "Failed to write day file", map[string]interface{}{"day": day.String()})
		return err
	}
	s.metrics.DaysWritten.WithLabelValues(ticker).Inc()
	s.logger.Info(ctx, fmt.Sprintf("%s Fetched!", day), map[string]interface{}{"records": len(klines), "attempts": attempts})

	sum := sha256.Sum256(payload)
	rec := &ports.DayRecord{
		RunID:     s.runID,
		Ticker:    ticker,
		Day:       day,
		Records:   len(klines),
		Bytes:     len(payload),
		SHA256:    hex.EncodeToString(sum[:]),
		Attempts:  attempts,
		FetchedAt: s.now(),
	}

	// The day file is already durable; bookkeeping failures are only logged.
	if s.journal != nil {
		if err := s.journal.RecordDay(ctx, rec); err != nil {
			s.logger.Warn(ctx, "Failed to journal fetched day", map[string]interface{}{"day": day.String(), "error": err.Error()})
		}
	}
	if err := s.publisher.PublishDay(ctx, rec); err != nil {
		s.logger.Warn(ctx, "Failed to publish fetched day", map[string]interface{}{"day": day.String(), "error": err.Error()})
	}
	return nil
}
