// Package blobstore implements ports.DayStore on a gocloud.dev blob bucket,
// so day files can live in any bucket URL (file://, mem://, ...).
//
// Keys are laid out as <ticker>/<YYYY-MM-DD>.bin. Blob writers only make an
// object visible on a successful Close; canceling the write context before
// Close discards it, which gives the same all-or-nothing guarantee as a
// rename on a local filesystem.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"klinearchive/internal/domain"
	"klinearchive/internal/ports"
)

const fileExt = ".bin"

// Store is a bucket-backed day store.
type Store struct {
	bucket *blob.Bucket
	logger ports.Logger
}

// Open opens the bucket at url.
func Open(ctx context.Context, url string, logger ports.Logger) (*Store, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for blob store")
	}
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket '%s': %w: %w", url, ports.ErrStorageFailed, err)
	}
	logger.Debug(ctx, "Blob bucket opened", map[string]interface{}{"url": url})
	return New(bucket, logger), nil
}

// New wraps an already opened bucket. The store takes ownership of it.
func New(bucket *blob.Bucket, logger ports.Logger) *Store {
	return &Store{bucket: bucket, logger: logger}
}

// Close closes the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func key(ticker string, day domain.Day) string {
	return ticker + "/" + day.String() + fileExt
}

// Prepare checks that the bucket is reachable. Buckets have no directories to create.
func (s *Store) Prepare(ctx context.Context, ticker string) error {
	ok, err := s.bucket.IsAccessible(ctx)
	if err != nil {
		return fmt.Errorf("failed to access bucket: %w: %w", ports.ErrStorageFailed, err)
	}
	if !ok {
		return fmt.Errorf("bucket is not accessible: %w", ports.ErrStorageFailed)
	}
	return nil
}

// ListDays returns the days stored for ticker in ascending order.
func (s *Store) ListDays(ctx context.Context, ticker string) ([]domain.Day, error) {
	prefix := ticker + "/"
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})

	var days []domain.Day
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list days for %s: %w: %w", ticker, ports.ErrStorageFailed, err)
		}
		if obj.IsDir {
			continue
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if !strings.HasSuffix(name, fileExt) {
			continue
		}
		day, err := domain.ParseDay(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// Exists reports whether the day object is present.
func (s *Store) Exists(ctx context.Context, ticker string, day domain.Day) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key(ticker, day))
	if err != nil {
		return false, fmt.Errorf("failed to check day %s/%s: %w: %w", ticker, day, ports.ErrStorageFailed, err)
	}
	return ok, nil
}

// WriteDay uploads payload; the object appears only once the upload completes.
func (s *Store) WriteDay(ctx context.Context, ticker string, day domain.Day, payload []byte) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	k := key(ticker, day)
	w, err := s.bucket.NewWriter(wctx, k, &blob.WriterOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to open writer for %s: %w: %w", k, ports.ErrStorageFailed, err)
	}
	if _, err := w.Write(payload); err != nil {
		cancel() // abort: nothing becomes visible
		w.Close()
		return fmt.Errorf("failed to write %s: %w: %w", k, ports.ErrStorageFailed, err)
	}
	if err := ctx.Err(); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("write of %s canceled: %w: %w", k, ports.ErrContextCanceled, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to commit %s: %w: %w", k, ports.ErrStorageFailed, err)
	}

	s.logger.Debug(ctx, "Day object written", map[string]interface{}{"key": k, "bytes": len(payload)})
	return nil
}

// ReadDay downloads a day object.
func (s *Store) ReadDay(ctx context.Context, ticker string, day domain.Day) ([]byte, error) {
	k := key(ticker, day)
	data, err := s.bucket.ReadAll(ctx, k)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("day %s: %w", k, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w: %w", k, ports.ErrStorageFailed, err)
	}
	return data, nil
}
