package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"klinearchive/internal/codec"
	"klinearchive/internal/domain"
	"klinearchive/internal/ports"
	"klinearchive/internal/utils"
)

// VerifyDay checks that payload is a complete day: a whole number of records,
// one per interval step, with open times starting at midnight UTC and
// advancing by exactly one step. It returns the decoded klines.
func VerifyDay(day domain.Day, payload []byte, step time.Duration) ([]domain.Kline, error) {
	klines, err := codec.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("day %s: %w: %w", day, ports.ErrCorruptDay, err)
	}

	if len(klines) > 0 {
		if got := domain.DayFromTimestamp(int64(klines[0].OpenTime)); !got.Equal(day) {
			return klines, fmt.Errorf("day %s holds records of %s: %w", day, got, ports.ErrCorruptDay)
		}
	}

	want := int(24 * time.Hour / step)
	if len(klines) != want {
		return klines, fmt.Errorf("day %s has %d records, want %d: %w", day, len(klines), want, ports.ErrCorruptDay)
	}

	stepMs := uint64(step.Milliseconds())
	open := uint64(day.Timestamp())
	for i, k := range klines {
		if k.OpenTime != open {
			return klines, fmt.Errorf("day %s record %d opens at %d, want %d: %w", day, i, k.OpenTime, open, ports.ErrCorruptDay)
		}
		if k.CloseTime < k.OpenTime || k.CloseTime >= k.OpenTime+stepMs {
			return klines, fmt.Errorf("day %s record %d closes at %d outside its interval: %w", day, i, k.CloseTime, ports.ErrCorruptDay)
		}
		open += stepMs
	}
	return klines, nil
}

// DayCheck is the verification outcome of one stored day.
type DayCheck struct {
	Day      domain.Day
	Records  int
	SHA256   string
	Failures int   // Failed attempts recorded in the journal
	Err      error // Nil when the day is valid
}

// VerifyReport summarises a Verifier run.
type VerifyReport struct {
	Days     []DayCheck
	Invalid  int
	Exported int
	Missing  []domain.Day // Journaled days whose file is gone
}

// Verifier reads stored days back and checks them, and their journal entries
// when a journal is available.
type Verifier struct {
	store   ports.DayStore
	journal ports.Journal // optional
	logger  ports.Logger
	ticker  string
	step    time.Duration
}

// NewVerifier creates a verifier for ticker's days at the given interval.
// journal may be nil.
func NewVerifier(store ports.DayStore, journal ports.Journal, logger ports.Logger, ticker, interval string) (*Verifier, error) {
	if store == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Verifier")
	}
	step, err := domain.ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	return &Verifier{store: store, journal: journal, logger: logger, ticker: ticker, step: step}, nil
}

// Run verifies every stored day in [from, to); zero bounds are open. Valid
// days are written to csv when it is not nil, with a header before the first.
func (v *Verifier) Run(ctx context.Context, from, to domain.Day, csv io.Writer) (VerifyReport, error) {
	var report VerifyReport
	inRange := func(d domain.Day) bool {
		return (from.IsZero() || !d.Before(from)) && (to.IsZero() || d.Before(to))
	}

	days, err := v.store.ListDays(ctx, v.ticker)
	if err != nil {
		return report, err
	}

	journaled := make(map[string]*ports.DayRecord)
	if v.journal != nil {
		recs, err := v.journal.FindDays(ctx, v.ticker, 0)
		if err != nil {
			return report, err
		}
		for _, rec := range recs {
			if inRange(rec.Day) {
				journaled[rec.Day.String()] = rec
			}
		}
	}

	for _, day := range days {
		if !inRange(day) {
			continue
		}
		check, klines := v.checkDay(ctx, day, journaled[day.String()])
		report.Days = append(report.Days, check)
		if check.Err != nil {
			report.Invalid++
			v.logger.Error(ctx, check.Err, fmt.Sprintf("%s invalid", day))
			continue
		}
		v.logger.Debug(ctx, fmt.Sprintf("%s OK", day), map[string]interface{}{"records": check.Records, "failures": check.Failures})

		if csv != nil {
			if err := utils.WriteKlinesCSV(csv, klines, report.Exported == 0); err != nil {
				return report, fmt.Errorf("failed to export %s: %w", day, err)
			}
			report.Exported++
		}
	}

	// A journaled day without a file will be fetched again by the next run.
	for _, rec := range journaled {
		ok, err := v.store.Exists(ctx, v.ticker, rec.Day)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Missing = append(report.Missing, rec.Day)
			v.logger.Warn(ctx, fmt.Sprintf("%s is journaled but has no day file", rec.Day))
		}
	}
	sortDays(report.Missing)

	return report, nil
}

func (v *Verifier) checkDay(ctx context.Context, day domain.Day, rec *ports.DayRecord) (DayCheck, []domain.Kline) {
	check := DayCheck{Day: day}

	payload, err := v.store.ReadDay(ctx, v.ticker, day)
	if err != nil {
		check.Err = err
		return check, nil
	}
	sum := sha256.Sum256(payload)
	check.SHA256 = hex.EncodeToString(sum[:])

	klines, err := VerifyDay(day, payload, v.step)
	check.Records = len(klines)
	if err != nil {
		check.Err = err
		return check, nil
	}

	if v.journal == nil {
		return check, klines
	}
	if check.Failures, err = v.journal.CountFailures(ctx, v.ticker, day); err != nil {
		v.logger.Warn(ctx, "Failed to count journaled failures", map[string]interface{}{"day": day.String(), "error": err.Error()})
	}

	switch {
	case rec == nil:
		v.logger.Warn(ctx, fmt.Sprintf("%s has no journal entry", day))
	case rec.Records != check.Records:
		check.Err = fmt.Errorf("day %s has %d records, journal says %d: %w", day, check.Records, rec.Records, ports.ErrCorruptDay)
	case rec.SHA256 != check.SHA256:
		check.Err = fmt.Errorf("day %s checksum %s differs from journaled %s: %w", day, check.SHA256, rec.SHA256, ports.ErrCorruptDay)
	}
	if check.Err != nil {
		return check, nil
	}
	return check, klines
}

func sortDays(days []domain.Day) {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
}
