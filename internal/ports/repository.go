package ports

import (
	"context"
	"time"

	"klinearchive/internal/domain"
)

// DayStore persists encoded day files, one per ticker and UTC day.
// The presence of a day is the only evidence that it was fetched completely,
// so WriteDay must never expose a partially written day.
type DayStore interface {
	// Prepare makes the store ready for ticker (creating directories, removing
	// leftovers of interrupted writes). Called once before the fetch loop.
	Prepare(ctx context.Context, ticker string) error
	// ListDays returns every complete day stored for ticker, in ascending order.
	ListDays(ctx context.Context, ticker string) ([]domain.Day, error)
	// Exists reports whether the day file for ticker/day is present.
	Exists(ctx context.Context, ticker string, day domain.Day) (bool, error)
	// WriteDay atomically stores payload as the day file for ticker/day.
	WriteDay(ctx context.Context, ticker string, day domain.Day, payload []byte) error
	// ReadDay returns the stored payload for ticker/day.
	// Returns an error wrapping ErrNotFound if the day is absent.
	ReadDay(ctx context.Context, ticker string, day domain.Day) ([]byte, error)
}

// DayRecord is the journal entry written after a day file is stored.
type DayRecord struct {
	RunID     string
	Ticker    string
	Day       domain.Day
	Records   int
	Bytes     int
	SHA256    string
	Attempts  int
	FetchedAt time.Time
}

// FailureRecord is the journal entry written for each failed day attempt.
type FailureRecord struct {
	RunID      string
	Ticker     string
	Day        domain.Day
	Attempt    int
	Page       int
	Error      string
	OccurredAt time.Time
}

// Journal is an audit trail of fetch activity. It is never consulted to
// decide what to fetch next.
type Journal interface {
	// RecordDay stores a completed day entry.
	RecordDay(ctx context.Context, rec *DayRecord) error
	// RecordFailure stores a failed attempt entry.
	RecordFailure(ctx context.Context, rec *FailureRecord) error
	// FindDays returns the most recent completed day entries for ticker, newest
	// first, up to limit. A limit of zero or less returns all of them.
	FindDays(ctx context.Context, ticker string, limit int) ([]*DayRecord, error)
	// CountFailures counts failed attempts recorded for ticker/day.
	CountFailures(ctx context.Context, ticker string, day domain.Day) (int, error)
}

// DayPublisher announces completed days to downstream consumers.
type DayPublisher interface {
	PublishDay(ctx context.Context, rec *DayRecord) error
	Close() error
}
