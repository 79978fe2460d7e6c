package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinearchive/internal/domain"
	"klinearchive/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Root: t.TempDir(), Logger: &mockLogger{}})
	require.NoError(t, err)
	return s
}

func mustDay(t *testing.T, s string) domain.Day {
	t.Helper()
	d, err := domain.ParseDay(s)
	require.NoError(t, err)
	return d
}

func TestStore_WriteListRead(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, d := range []string{"2024-06-08", "2024-06-07", "2023-12-31"} {
		require.NoError(t, s.WriteDay(ctx, "BTCUSDT", mustDay(t, d), []byte(d)))
	}

	days, err := s.ListDays(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2023-12-31", days[0].String())
	assert.Equal(t, "2024-06-07", days[1].String())
	assert.Equal(t, "2024-06-08", days[2].String())

	assert.FileExists(t, filepath.Join(s.Dir("BTCUSDT"), "2024-06-07.bin"))

	data, err := s.ReadDay(ctx, "BTCUSDT", mustDay(t, "2024-06-07"))
	require.NoError(t, err)
	assert.Equal(t, "2024-06-07", string(data))

	ok, err := s.Exists(ctx, "BTCUSDT", mustDay(t, "2024-06-08"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "BTCUSDT", mustDay(t, "2024-06-09"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.ReadDay(ctx, "BTCUSDT", mustDay(t, "2024-06-09"))
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStore_ListDays_MissingTickerIsEmpty(t *testing.T) {
	s := setupStore(t)
	days, err := s.ListDays(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestStore_ListDays_IgnoresForeignFiles(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Prepare(ctx, "BTCUSDT"))

	dir := s.Dir("BTCUSDT")
	for _, name := range []string{"notes.txt", "2024-06-07.csv", "garbage.bin", ".2024-06-08.bin.123.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "2024-06-09.bin"), 0755))

	days, err := s.ListDays(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestStore_WriteDay_CrashBeforeRenameLeavesNoCanonicalFile(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	day := mustDay(t, "2024-06-07")

	s.rename = func(oldpath, newpath string) error {
		return errors.New("simulated crash")
	}

	err := s.WriteDay(ctx, "BTCUSDT", day, make([]byte, 1024))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrStorageFailed)

	assert.NoFileExists(t, s.Path("BTCUSDT", day))
	entries, err := os.ReadDir(s.Dir("BTCUSDT"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be cleaned up")

	days, err := s.ListDays(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestStore_WriteDay_CanceledContext(t *testing.T) {
	s := setupStore(t)
	day := mustDay(t, "2024-06-07")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.WriteDay(ctx, "BTCUSDT", day, []byte("data"))
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
	assert.NoFileExists(t, s.Path("BTCUSDT", day))
}

func TestStore_Prepare_RemovesStaleTempFiles(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Prepare(ctx, "BTCUSDT"))

	// A process killed between create and rename leaves only the temp file.
	stale := filepath.Join(s.Dir("BTCUSDT"), ".2024-06-07.bin.42.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0644))
	require.NoError(t, s.WriteDay(ctx, "BTCUSDT", mustDay(t, "2024-06-06"), []byte("done")))

	require.NoError(t, s.Prepare(ctx, "BTCUSDT"))

	assert.NoFileExists(t, stale)
	assert.FileExists(t, s.Path("BTCUSDT", mustDay(t, "2024-06-06")))
}

func TestStore_WriteDay_Overwrite(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	day := mustDay(t, "2024-06-07")

	require.NoError(t, s.WriteDay(ctx, "BTCUSDT", day, []byte("first")))
	require.NoError(t, s.WriteDay(ctx, "BTCUSDT", day, []byte("second")))

	data, err := s.ReadDay(ctx, "BTCUSDT", day)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
