package app

import (
	"context"
	"fmt"
	"time"

	"klinearchive/internal/domain"
	"klinearchive/internal/ports"
)

// NextDay returns the first day in [start, end) that is not in present.
// ok is false when every day in the range is present (or the range is empty).
func NextDay(present []domain.Day, start, end domain.Day) (day domain.Day, skipped int, ok bool) {
	have := make(map[int64]struct{}, len(present))
	for _, d := range present {
		have[d.Timestamp()] = struct{}{}
	}
	for d := start; d.Before(end); d = d.Next() {
		if _, found := have[d.Timestamp()]; !found {
			return d, skipped, true
		}
		skipped++
	}
	return domain.Day{}, skipped, false
}

// Resolver hands out the days that still need fetching for one ticker, in
// ascending order, each at most once. A day counts as fetched if and only if
// its file is present in the store.
type Resolver struct {
	store  ports.DayStore
	ticker string
	start  domain.Day // Zero: derive from the latest stored day
	end    domain.Day // Zero: the current UTC day
	now    func() time.Time

	cursor domain.Day
}

// NewResolver creates a resolver over store for ticker and the half-open range [start, end).
func NewResolver(store ports.DayStore, ticker string, start, end domain.Day) *Resolver {
	return &Resolver{store: store, ticker: ticker, start: start, end: end, now: time.Now}
}

// Resolution is the outcome of one Next call.
type Resolution struct {
	Day     domain.Day
	Done    bool // No day is left to fetch; normal termination
	Skipped int  // Days passed over because their file exists
	End     domain.Day
}

// Next lists the store and returns the next day to fetch.
func (r *Resolver) Next(ctx context.Context) (Resolution, error) {
	present, err := r.store.ListDays(ctx, r.ticker)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to list stored days: %w", err)
	}

	if r.cursor.IsZero() {
		switch {
		case !r.start.IsZero():
			r.cursor = r.start
		case len(present) > 0:
			r.cursor = present[len(present)-1].Next()
		default:
			return Resolution{}, fmt.Errorf("ticker %s: %w", r.ticker, ports.ErrNoProgress)
		}
	}

	end := r.end
	if end.IsZero() {
		// Today is still in progress, so it is never complete.
		end = domain.DayOf(r.now())
	}

	day, skipped, ok := NextDay(present, r.cursor, end)
	res := Resolution{Day: day, Skipped: skipped, Done: !ok, End: end}
	if ok {
		r.cursor = day.Next()
	} else if r.cursor.Before(end) {
		r.cursor = end
	}
	return res, nil
}
