package utils

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"klinearchive/internal/domain"
)

// CSVHeader is the first row written by WriteKlinesCSV.
var CSVHeader = []string{
	"open_time", "open", "high", "low", "close", "volume", "close_time",
	"base_volume", "trades", "taker_volume", "taker_base_volume",
}

// WriteKlinesCSV writes klines as CSV with a header row. Times are RFC 3339 with milliseconds in UTC.
func WriteKlinesCSV(w io.Writer, klines []domain.Kline, header bool) error {
	writer := csv.NewWriter(w)

	if header {
		if err := writer.Write(CSVHeader); err != nil {
			return err
		}
	}

	for _, k := range klines {
		if err := writer.Write(klineRow(k)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func klineRow(k domain.Kline) []string {
	return []string{
		formatMillis(k.OpenTime),
		strconv.FormatFloat(float64(k.Open), 'f', -1, 32),
		strconv.FormatFloat(float64(k.High), 'f', -1, 32),
		strconv.FormatFloat(float64(k.Low), 'f', -1, 32),
		strconv.FormatFloat(float64(k.Close), 'f', -1, 32),
		strconv.FormatFloat(k.Volume, 'f', -1, 64),
		formatMillis(k.CloseTime),
		strconv.FormatFloat(k.BaseVolume, 'f', -1, 64),
		strconv.FormatUint(uint64(k.Trades), 10),
		strconv.FormatFloat(k.TakerVolume, 'f', -1, 64),
		strconv.FormatFloat(k.TakerBaseVolume, 'f', -1, 64),
	}
}

func formatMillis(ms uint64) string {
	return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
