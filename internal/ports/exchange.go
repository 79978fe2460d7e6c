package ports

import (
	"context"

	"klinearchive/internal/domain"
)

// KlineSource is a paginated read-only view of an exchange's historical klines.
type KlineSource interface {
	// FetchPage returns up to limit klines for symbol/interval whose open time is
	// at or after startMs, ordered by open time. A non-success status or a
	// malformed body is returned as an error.
	FetchPage(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]domain.Kline, error)
}
