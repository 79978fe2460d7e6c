package codec

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinearchive/internal/domain"
)

func TestEncode_Layout(t *testing.T) {
	k := domain.Kline{
		OpenTime:        0x0102030405060708,
		Open:            1.0,
		High:            2.0,
		Low:             0.5,
		Close:           -1.0,
		Volume:          1.0,
		CloseTime:       1717718400999,
		BaseVolume:      2.0,
		Trades:          7,
		TakerVolume:     0.5,
		TakerBaseVolume: 0,
	}

	b := Encode([]domain.Kline{k})
	require.Len(t, b, RecordSize)

	want := "0807060504030201" + // open_time
		"0000803f" + // open 1.0
		"00000040" + // high 2.0
		"0000003f" + // low 0.5
		"000080bf" + // close -1.0
		"000000000000f03f" + // volume 1.0
		"e7bffeef8f010000" + // close_time
		"0000000000000040" + // base_volume 2.0
		"07000000" + // trades
		"000000000000e03f" + // taker_volume 0.5
		"0000000000000000" // taker_base_volume
	assert.Equal(t, want, hex.EncodeToString(b))
}

func TestDecode_RoundTripPreservesOrder(t *testing.T) {
	klines := make([]domain.Kline, 3)
	for i := range klines {
		klines[i] = domain.Kline{
			OpenTime:  uint64(1000 * i),
			CloseTime: uint64(1000*i + 999),
			Open:      float32(i) + 0.25,
			Trades:    uint32(i),
			Volume:    float64(i) * 1.5,
		}
	}

	got, err := Decode(Encode(klines))
	require.NoError(t, err)
	assert.Equal(t, klines, got)
}

func TestDecode_Truncated(t *testing.T) {
	b := Encode(make([]domain.Kline, 2))

	_, err := Decode(b[:len(b)-1])
	assert.ErrorIs(t, err, ErrTruncated)

	got, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
