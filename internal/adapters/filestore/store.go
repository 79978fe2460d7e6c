package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"klinearchive/internal/domain"
	"klinearchive/internal/ports"
)

const (
	fileExt = ".bin"
	tempExt = ".tmp"
)

// Store implements ports.DayStore on a local directory laid out as <root>/<ticker>/<YYYY-MM-DD>.bin.
// Day files are written to a temporary file in the same directory, synced, and
// renamed into place, so a crash never leaves a partial file under a canonical name.
type Store struct {
	root   string
	logger ports.Logger

	// rename is os.Rename; tests replace it to simulate a crash mid-write.
	rename func(oldpath, newpath string) error
}

// Config holds configuration for the directory store.
type Config struct {
	Root   string
	Logger ports.Logger
}

// New creates the root directory if needed and returns a store rooted there.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for file store")
	}
	root := cfg.Root
	if root == "" {
		root = "./data" // Default path
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory '%s': %w", root, err)
	}
	cfg.Logger.Debug(context.Background(), "Data directory checked/created", map[string]interface{}{"path": root})

	return &Store{root: root, logger: cfg.Logger, rename: os.Rename}, nil
}

// Dir returns the directory holding the day files of ticker.
func (s *Store) Dir(ticker string) string {
	return filepath.Join(s.root, ticker)
}

// Path returns the canonical path of a day file.
func (s *Store) Path(ticker string, day domain.Day) string {
	return filepath.Join(s.Dir(ticker), day.String()+fileExt)
}

// Prepare creates the ticker directory and removes temporary files left behind
// by an interrupted write. It must run before the fetch loop starts.
func (s *Store) Prepare(ctx context.Context, ticker string) error {
	dir := s.Dir(ticker)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ticker directory '%s': %w: %w", dir, ports.ErrStorageFailed, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read ticker directory '%s': %w: %w", dir, ports.ErrStorageFailed, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), tempExt) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale temp file '%s': %w: %w", p, ports.ErrStorageFailed, err)
		}
		s.logger.Warn(ctx, "Removed stale temp file from interrupted write", map[string]interface{}{"path": p})
	}
	return nil
}

// ListDays returns the days present for ticker in ascending order.
// Files whose names are not <YYYY-MM-DD>.bin are ignored.
func (s *Store) ListDays(ctx context.Context, ticker string) ([]domain.Day, error) {
	entries, err := os.ReadDir(s.Dir(ticker))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list days for %s: %w: %w", ticker, ports.ErrStorageFailed, err)
	}

	days := make([]domain.Day, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
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

// Exists reports whether the day file is present.
func (s *Store) Exists(ctx context.Context, ticker string, day domain.Day) (bool, error) {
	_, err := os.Stat(s.Path(ticker, day))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat day %s/%s: %w: %w", ticker, day, ports.ErrStorageFailed, err)
}

// WriteDay writes payload to a temporary file next to the canonical path and renames it into place.
func (s *Store) WriteDay(ctx context.Context, ticker string, day domain.Day, payload []byte) (err error) {
	dir := s.Dir(ticker)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ticker directory '%s': %w: %w", dir, ports.ErrStorageFailed, err)
	}

	tmp, err := os.CreateTemp(dir, "."+day.String()+fileExt+".*"+tempExt)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s/%s: %w: %w", ticker, day, ports.ErrStorageFailed, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(payload); err != nil {
		return fmt.Errorf("failed to write day %s/%s: %w: %w", ticker, day, ports.ErrStorageFailed, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync day %s/%s: %w: %w", ticker, day, ports.ErrStorageFailed, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close day %s/%s: %w: %w", ticker, day, ports.ErrStorageFailed, err)
	}
	if err = ctx.Err(); err != nil {
		return fmt.Errorf("write of day %s/%s canceled: %w: %w", ticker, day, ports.ErrContextCanceled, err)
	}

	final := s.Path(ticker, day)
	if err = s.rename(tmpPath, final); err != nil {
		return fmt.Errorf("failed to rename day %s/%s into place: %w: %w", ticker, day, ports.ErrStorageFailed, err)
	}
	syncDir(dir)

	s.logger.Debug(ctx, "Day file written", map[string]interface{}{"path": final, "bytes": len(payload)})
	return nil
}

// ReadDay returns the contents of a day file.
func (s *Store) ReadDay(ctx context.Context, ticker string, day domain.Day) ([]byte, error) {
	data, err := os.ReadFile(s.Path(ticker, day))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("day %s/%s: %w", ticker, day, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read day %s/%s: %w: %w", ticker, day, ports.ErrStorageFailed, err)
	}
	return data, nil
}

// syncDir makes the rename durable where the platform allows syncing directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
