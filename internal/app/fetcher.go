package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"klinearchive/internal/domain"
	"klinearchive/internal/metrics"
	"klinearchive/internal/ports"
)

// FetcherConfig describes how a day is split into page requests.
type FetcherConfig struct {
	Ticker        string
	Interval      string
	PagesPerDay   int           // N
	PageLimit     int           // L, records per page
	RequestDelay  time.Duration // Sleep after every page request, success or not
	RetryCooldown time.Duration // Sleep between failed attempts of a day
	MaxAttempts   int           // Attempts per day; 0 means unlimited
}

// PageError reports the page that made a day attempt fail.
type PageError struct {
	Day  domain.Day
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("day %s page %d: %v", e.Day, e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// DayFetcher downloads one complete day of klines. Any failed page discards the
// whole attempt; after a cooldown the day is fetched again from page 0, so a
// returned day never mixes pages from different attempts.
type DayFetcher struct {
	cfg     FetcherConfig
	stepMs  int64
	source  ports.KlineSource
	logger  ports.Logger
	journal ports.Journal // optional
	metrics *metrics.Metrics
	runID   string
	now     func() time.Time
	sleep   sleepFunc
}

// NewDayFetcher validates cfg and creates a fetcher.
func NewDayFetcher(cfg FetcherConfig, source ports.KlineSource, logger ports.Logger, journal ports.Journal, m *metrics.Metrics, runID string) (*DayFetcher, error) {
	if source == nil || logger == nil || m == nil {
		return nil, fmt.Errorf("missing required dependencies for DayFetcher")
	}
	step, err := domain.ParseInterval(cfg.Interval)
	if err != nil {
		return nil, err
	}
	if cfg.PagesPerDay <= 0 || cfg.PageLimit <= 0 {
		return nil, fmt.Errorf("pages per day and page limit must be positive")
	}
	return &DayFetcher{
		cfg:     cfg,
		stepMs:  step.Milliseconds(),
		source:  source,
		logger:  logger,
		journal: journal,
		metrics: m,
		runID:   runID,
		now:     time.Now,
		sleep:   sleepContext,
	}, nil
}

// PageStart returns the open time of the first record of page i of day.
func (f *DayFetcher) PageStart(day domain.Day, i int) int64 {
	return day.Timestamp() + int64(i)*int64(f.cfg.PageLimit)*f.stepMs
}

// FetchOnce makes a single attempt at day. It fails on the first page that
// errors or does not hold exactly PageLimit records.
func (f *DayFetcher) FetchOnce(ctx context.Context, day domain.Day) ([]domain.Kline, error) {
	n, limit := f.cfg.PagesPerDay, f.cfg.PageLimit
	klines := make([]domain.Kline, 0, n*limit)

	for i := 0; i < n; i++ {
		f.logger.Debug(ctx, fmt.Sprintf("%d / %d", i, n))

		page, err := f.source.FetchPage(ctx, f.cfg.Ticker, f.cfg.Interval, f.PageStart(day, i), limit)
		if err == nil && len(page) != limit {
			err = fmt.Errorf("got %d records, want %d: %w", len(page), limit, ports.ErrShortPage)
		}

		// The delay applies after failed requests too.
		if serr := f.sleep(ctx, f.cfg.RequestDelay); serr != nil && err == nil {
			err = serr
		}

		if err != nil {
			f.metrics.PageFailures.WithLabelValues(f.cfg.Ticker, failureReason(err)).Inc()
			return nil, &PageError{Day: day, Page: i, Err: err}
		}
		f.metrics.PagesFetched.WithLabelValues(f.cfg.Ticker).Inc()
		klines = append(klines, page...)
	}
	return klines, nil
}

// Fetch retrieves the complete day, retrying whole-day attempts after the
// cooldown until one succeeds, MaxAttempts is reached, or ctx is done.
// It returns the klines and the number of attempts made.
func (f *DayFetcher) Fetch(ctx context.Context, day domain.Day) ([]domain.Kline, int, error) {
	started := f.now()
	var (
		klines   []domain.Kline
		attempts int
	)

	var policy backoff.BackOff = backoff.NewConstantBackOff(f.cfg.RetryCooldown)
	if f.cfg.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(f.cfg.MaxAttempts-1))
	}
	policy = backoff.WithContext(policy, ctx)

	attempt := func() error {
		attempts++
		ks, err := f.FetchOnce(ctx, day)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			f.recordFailure(ctx, day, attempts, err)
			return err
		}
		klines = ks
		return nil
	}

	notify := func(err error, wait time.Duration) {
		f.metrics.DayRetries.WithLabelValues(f.cfg.Ticker).Inc()
		f.logger.Info(ctx, fmt.Sprintf("Retrying %s from the first page after cooldown", day), map[string]interface{}{
			"attempt":  attempts + 1,
			"cooldown": wait.String(),
		})
	}

	err := backoff.RetryNotify(attempt, policy, notify)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempts, fmt.Errorf("fetch of %s interrupted: %w: %w", day, ports.ErrContextCanceled, ctxErr)
		}
		return nil, attempts, fmt.Errorf("fetch of %s failed after %d attempt(s): %w: %w", day, attempts, ports.ErrRetriesExhausted, err)
	}

	f.metrics.DayFetchDuration.WithLabelValues(f.cfg.Ticker).Observe(f.now().Sub(started).Seconds())
	return klines, attempts, nil
}

// recordFailure logs a failed attempt and writes it to the journal.
func (f *DayFetcher) recordFailure(ctx context.Context, day domain.Day, attempt int, err error) {
	page := -1
	var pe *PageError
	if errors.As(err, &pe) {
		page = pe.Page
	}

	f.logger.Error(ctx, err, fmt.Sprintf("Fetching %s failed", day), map[string]interface{}{
		"attempt": attempt,
		"page":    page,
		"reason":  failureReason(err),
	})

	if f.journal == nil {
		return
	}
	jerr := f.journal.RecordFailure(ctx, &ports.FailureRecord{
		RunID:      f.runID,
		Ticker:     f.cfg.Ticker,
		Day:        day,
		Attempt:    attempt,
		Page:       page,
		Error:      err.Error(),
		OccurredAt: f.now(),
	})
	if jerr != nil {
		f.logger.Warn(ctx, "Failed to journal fetch failure", map[string]interface{}{"error": jerr.Error()})
	}
}

// failureReason classifies a page error for metrics and logs. Every reason is
// handled the same way: the day is retried.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ports.ErrShortPage):
		return "short_page"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ports.ErrExchangeUnavailable):
		return "unavailable"
	case errors.Is(err, ports.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ports.ErrTimeout):
		return "timeout"
	case errors.Is(err, ports.ErrConnectionFailed):
		return "connection"
	case errors.Is(err, ports.ErrContextCanceled), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
