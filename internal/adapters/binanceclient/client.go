package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"klinearchive/internal/domain"
	"klinearchive/internal/ports"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	defaultHTTPTimeout = 30 * time.Second
)

// Client implements the ports.KlineSource interface using the go-binance spot client.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey      string
	SecretKey   string
	UseTestnet  bool
	BaseURL     string // Overrides the production/testnet URL when set
	HTTPTimeout time.Duration
	Logger      ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	// Klines are a public endpoint; keys are optional.
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	cfg.Logger.Debug(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "timeout": timeout.String()})

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch {
		case apiErr.Code == -1003 || apiErr.Code == -1015: // Too many requests / orders
			mappedErr = ports.ErrRateLimited
		case apiErr.Code == -1000 || apiErr.Code == -1001 || apiErr.Code == -1008: // Unknown, disconnected, overloaded
			mappedErr = ports.ErrExchangeUnavailable
		case apiErr.Code == -1007: // Timeout waiting for backend
			mappedErr = ports.ErrTimeout
		case apiErr.Code <= -1100 && apiErr.Code > -1200: // Request parameter errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Debug(ctx, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	// Handle non-API errors (network, context cancellation, body parsing)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else if strings.Contains(err.Error(), "Client.Timeout") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else {
		// Whatever is left is an unreadable body or a translation failure.
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrMalformedResponse, err)
	}

	c.logger.Debug(ctx, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// FetchPage retrieves up to limit klines for symbol starting at startMs.
func (c *Client) FetchPage(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]domain.Kline, error) {
	op := "FetchPage"
	binanceKlines, err := c.spotClient.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(startMs).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	klines := make([]domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		k, err := translateBinanceKline(bk)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		klines = append(klines, k)
	}

	return klines, nil
}

// --- Translation Helpers ---

func translateBinanceKline(bk *binance.Kline) (domain.Kline, error) {
	if bk == nil {
		return domain.Kline{}, errors.New("received nil historical kline")
	}
	if bk.OpenTime < 0 || bk.CloseTime < 0 {
		return domain.Kline{}, fmt.Errorf("negative kline timestamps %d/%d", bk.OpenTime, bk.CloseTime)
	}
	if bk.TradeNum < 0 || bk.TradeNum > math.MaxUint32 {
		return domain.Kline{}, fmt.Errorf("trade count %d out of range", bk.TradeNum)
	}

	var err error
	price := func(field, s string) float32 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = strconv.ParseFloat(s, 32)
		if err != nil {
			err = fmt.Errorf("parsing %s '%s': %w", field, s, err)
		}
		return float32(v)
	}
	volume := func(field, s string) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = strconv.ParseFloat(s, 64)
		if err != nil {
			err = fmt.Errorf("parsing %s '%s': %w", field, s, err)
		}
		return v
	}

	k := domain.Kline{
		OpenTime:        uint64(bk.OpenTime),
		Open:            price("open price", bk.Open),
		High:            price("high price", bk.High),
		Low:             price("low price", bk.Low),
		Close:           price("close price", bk.Close),
		Volume:          volume("volume", bk.Volume),
		CloseTime:       uint64(bk.CloseTime),
		BaseVolume:      volume("quote asset volume", bk.QuoteAssetVolume),
		Trades:          uint32(bk.TradeNum),
		TakerVolume:     volume("taker buy base volume", bk.TakerBuyBaseAssetVolume),
		TakerBaseVolume: volume("taker buy quote volume", bk.TakerBuyQuoteAssetVolume),
	}
	if err != nil {
		return domain.Kline{}, err
	}
	return k, nil
}
