package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinearchive/internal/codec"
	"klinearchive/internal/domain"
	"klinearchive/internal/ports"
	"klinearchive/internal/testutils"
)

// minuteDay builds a complete 1m day (1440 records).
func minuteDay(day domain.Day) []domain.Kline {
	klines := make([]domain.Kline, 1440)
	for i := range klines {
		klines[i] = testutils.ExpectedKline(day.Timestamp()+int64(i)*60000, 60000)
	}
	return klines
}

func TestVerifyDay(t *testing.T) {
	day := mustDay(t, "2024-06-07")
	klines := minuteDay(day)

	got, err := VerifyDay(day, codec.Encode(klines), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, klines, got)
}

func TestVerifyDay_Invalid(t *testing.T) {
	day := mustDay(t, "2024-06-07")

	gap := minuteDay(day)
	gap[700].OpenTime += 60000

	badClose := minuteDay(day)
	badClose[3].CloseTime = badClose[3].OpenTime + 60000

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "truncated record", payload: codec.Encode(minuteDay(day))[:1440*codec.RecordSize-1]},
		{name: "missing record", payload: codec.Encode(minuteDay(day)[1:])},
		{name: "wrong day", payload: codec.Encode(minuteDay(day.Next()))},
		{name: "gap", payload: codec.Encode(gap)},
		{name: "close time outside interval", payload: codec.Encode(badClose)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyDay(day, tt.payload, time.Minute)
			assert.ErrorIs(t, err, ports.ErrCorruptDay)
		})
	}
}

// storeMinuteDay writes a valid 1m day and returns the journal entry describing it.
func storeMinuteDay(t *testing.T, store *memStore, day domain.Day) *ports.DayRecord {
	t.Helper()
	payload := codec.Encode(minuteDay(day))
	require.NoError(t, store.WriteDay(context.Background(), "BTCUSDT", day, payload))
	sum := sha256.Sum256(payload)
	return &ports.DayRecord{
		RunID:   "run-1",
		Ticker:  "BTCUSDT",
		Day:     day,
		Records: 1440,
		Bytes:   len(payload),
		SHA256:  hex.EncodeToString(sum[:]),
	}
}

func TestNewVerifier_Validation(t *testing.T) {
	_, err := NewVerifier(nil, nil, &mockLogger{}, "BTCUSDT", "1m")
	assert.Error(t, err)
	_, err = NewVerifier(newMemStore(), nil, &mockLogger{}, "BTCUSDT", "2m")
	assert.Error(t, err)
}

func TestVerifier_WithoutJournal(t *testing.T) {
	store := newMemStore()
	for _, d := range []string{"2024-06-06", "2024-06-07", "2024-06-08"} {
		storeMinuteDay(t, store, mustDay(t, d))
	}
	// A corrupt day outside the range is not looked at.
	require.NoError(t, store.WriteDay(context.Background(), "BTCUSDT", mustDay(t, "2024-06-09"), []byte{1, 2, 3}))

	v, err := NewVerifier(store, nil, &mockLogger{}, "BTCUSDT", "1m")
	require.NoError(t, err)

	var buf bytes.Buffer
	report, err := v.Run(context.Background(), mustDay(t, "2024-06-07"), mustDay(t, "2024-06-09"), &buf)
	require.NoError(t, err)

	require.Len(t, report.Days, 2)
	assert.Equal(t, "2024-06-07", report.Days[0].Day.String())
	assert.Equal(t, 1440, report.Days[0].Records)
	assert.Zero(t, report.Invalid)
	assert.Equal(t, 2, report.Exported)
	assert.Empty(t, report.Missing)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1+2*1440, "one header, then every record")
	assert.True(t, strings.HasPrefix(lines[0], "open_time,"))
	assert.True(t, strings.HasPrefix(lines[1], "2024-06-07T00:00:00.000Z,"))
}

func TestVerifier_ComparesJournal(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	journal := &mockJournal{}

	good := storeMinuteDay(t, store, mustDay(t, "2024-06-07"))
	tampered := storeMinuteDay(t, store, mustDay(t, "2024-06-08"))
	tampered.SHA256 = strings.Repeat("0", 64)
	miscounted := storeMinuteDay(t, store, mustDay(t, "2024-06-09"))
	miscounted.Records = 86400
	storeMinuteDay(t, store, mustDay(t, "2024-06-10")) // never journaled

	gone := &ports.DayRecord{Ticker: "BTCUSDT", Day: mustDay(t, "2024-06-11")}
	journal.days = []*ports.DayRecord{good, tampered, miscounted, gone}
	for attempt := 1; attempt <= 2; attempt++ {
		journal.failures = append(journal.failures, &ports.FailureRecord{Ticker: "BTCUSDT", Day: good.Day, Attempt: attempt})
	}

	logger := &mockLogger{}
	v, err := NewVerifier(store, journal, logger, "BTCUSDT", "1m")
	require.NoError(t, err)

	report, err := v.Run(ctx, domain.Day{}, domain.Day{}, nil)
	require.NoError(t, err)
	require.Len(t, report.Days, 4)

	assert.NoError(t, report.Days[0].Err)
	assert.Equal(t, 2, report.Days[0].Failures)
	assert.Equal(t, good.SHA256, report.Days[0].SHA256)

	assert.ErrorIs(t, report.Days[1].Err, ports.ErrCorruptDay, "checksum differs from the journal")
	assert.ErrorIs(t, report.Days[2].Err, ports.ErrCorruptDay, "record count differs from the journal")
	assert.NoError(t, report.Days[3].Err, "a day without journal entry is only a warning")
	assert.Contains(t, logger.warnMsgs, "2024-06-10 has no journal entry")

	assert.Equal(t, 2, report.Invalid)
	assert.Zero(t, report.Exported)
	require.Len(t, report.Missing, 1)
	assert.Equal(t, "2024-06-11", report.Missing[0].String())
}

func TestVerifier_TruncatedDay(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.WriteDay(context.Background(), "BTCUSDT", mustDay(t, "2024-06-07"), make([]byte, 5)))

	v, err := NewVerifier(store, nil, &mockLogger{}, "BTCUSDT", "1m")
	require.NoError(t, err)

	report, err := v.Run(context.Background(), domain.Day{}, domain.Day{}, nil)
	require.NoError(t, err)
	require.Len(t, report.Days, 1)
	assert.ErrorIs(t, report.Days[0].Err, ports.ErrCorruptDay)
	assert.Equal(t, 1, report.Invalid)
}
