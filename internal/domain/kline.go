package domain

// Kline represents a single candlestick record as it is laid out in a day file.
// Field order matches the positional order of the exchange's kline array.
type Kline struct {
	OpenTime        uint64  // Start of the interval, unix milliseconds
	Open            float32 // Opening price
	High            float32 // Highest price
	Low             float32 // Lowest price
	Close           float32 // Closing price
	Volume          float64 // Traded volume
	CloseTime       uint64  // End of the interval, unix milliseconds
	BaseVolume      float64 // Traded volume in the other asset of the pair
	Trades          uint32  // Number of trades in the interval
	TakerVolume     float64 // Taker buy volume
	TakerBaseVolume float64 // Taker buy volume in the other asset of the pair
}
