// Package codec encodes klines into the fixed-width day file layout.
//
// Each record is 68 bytes, packed, little-endian, in this order:
//
//	offset size field
//	0      8    open_time          uint64
//	8      4    open               float32
//	12     4    high               float32
//	16     4    low                float32
//	20     4    close              float32
//	24     8    volume             float64
//	32     8    close_time         uint64
//	40     8    base_volume        float64
//	48     4    trades             uint32
//	52     8    taker_volume       float64
//	60     8    taker_base_volume  float64
//
// A day file is a bare array of records with no header or footer.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"klinearchive/internal/domain"
)

// RecordSize is the encoded size of one kline in bytes.
const RecordSize = 68

// ErrTruncated is returned when a payload is not a whole number of records.
var ErrTruncated = errors.New("payload is not a whole number of records")

var le = binary.LittleEndian

// Encode returns the day file encoding of klines.
func Encode(klines []domain.Kline) []byte {
	buf := make([]byte, len(klines)*RecordSize)
	for i := range klines {
		PutRecord(buf[i*RecordSize:], &klines[i])
	}
	return buf
}

// PutRecord writes k into the first RecordSize bytes of b.
func PutRecord(b []byte, k *domain.Kline) {
	_ = b[RecordSize-1]
	le.PutUint64(b[0:], k.OpenTime)
	le.PutUint32(b[8:], math.Float32bits(k.Open))
	le.PutUint32(b[12:], math.Float32bits(k.High))
	le.PutUint32(b[16:], math.Float32bits(k.Low))
	le.PutUint32(b[20:], math.Float32bits(k.Close))
	le.PutUint64(b[24:], math.Float64bits(k.Volume))
	le.PutUint64(b[32:], k.CloseTime)
	le.PutUint64(b[40:], math.Float64bits(k.BaseVolume))
	le.PutUint32(b[48:], k.Trades)
	le.PutUint64(b[52:], math.Float64bits(k.TakerVolume))
	le.PutUint64(b[60:], math.Float64bits(k.TakerBaseVolume))
}

// Record decodes the first RecordSize bytes of b.
func Record(b []byte) domain.Kline {
	_ = b[RecordSize-1]
	return domain.Kline{
		OpenTime:        le.Uint64(b[0:]),
		Open:            math.Float32frombits(le.Uint32(b[8:])),
		High:            math.Float32frombits(le.Uint32(b[12:])),
		Low:             math.Float32frombits(le.Uint32(b[16:])),
		Close:           math.Float32frombits(le.Uint32(b[20:])),
		Volume:          math.Float64frombits(le.Uint64(b[24:])),
		CloseTime:       le.Uint64(b[32:]),
		BaseVolume:      math.Float64frombits(le.Uint64(b[40:])),
		Trades:          le.Uint32(b[48:]),
		TakerVolume:     math.Float64frombits(le.Uint64(b[52:])),
		TakerBaseVolume: math.Float64frombits(le.Uint64(b[60:])),
	}
}

// Decode parses a day file payload.
func Decode(payload []byte) ([]domain.Kline, error) {
	if len(payload)%RecordSize != 0 {
		return nil, fmt.Errorf("%d bytes: %w", len(payload), ErrTruncated)
	}
	klines := make([]domain.Kline, len(payload)/RecordSize)
	for i := range klines {
		klines[i] = Record(payload[i*RecordSize:])
	}
	return klines, nil
}
