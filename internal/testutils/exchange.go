// Package testutils provides shared test infrastructure: a fake exchange REST
// server that serves deterministic klines and can inject failures.
package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"klinearchive/internal/domain"
)

// Failure is the way a single page request should misbehave.
type Failure int

const (
	NoFailure   Failure = iota
	ServerError         // HTTP 500 with a Binance error body
	RateLimited         // HTTP 429 with code -1003
	ShortPage           // One record fewer than requested
	EmptyPage           // Empty array
	Malformed           // Non-JSON body with status 200
)

// PageRequest records one request received by the fake exchange.
type PageRequest struct {
	Symbol   string
	Interval string
	StartMs  int64
	Limit    int
}

// FakeExchange is an httptest server mimicking GET /api/v3/klines.
type FakeExchange struct {
	Server *httptest.Server

	// Fail decides, for the n-th request (0-based), how it should fail.
	// Nil means every request succeeds.
	Fail func(n int, req PageRequest) Failure

	mu       sync.Mutex
	requests []PageRequest
}

// StartFakeExchange starts a fake exchange and registers its shutdown with t.Cleanup.
func StartFakeExchange(t *testing.T) *FakeExchange {
	t.Helper()
	fe := &FakeExchange{}
	fe.Server = httptest.NewServer(http.HandlerFunc(fe.serve))
	t.Cleanup(fe.Server.Close)
	return fe
}

// URL returns the base URL of the server.
func (fe *FakeExchange) URL() string { return fe.Server.URL }

// Requests returns a copy of all requests received so far.
func (fe *FakeExchange) Requests() []PageRequest {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return append([]PageRequest(nil), fe.requests...)
}

func (fe *FakeExchange) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v3/klines" {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	req := PageRequest{Symbol: q.Get("symbol"), Interval: q.Get("interval")}
	req.StartMs, _ = strconv.ParseInt(q.Get("startTime"), 10, 64)
	req.Limit, _ = strconv.Atoi(q.Get("limit"))

	step, err := domain.ParseInterval(req.Interval)
	if err != nil || req.Limit <= 0 {
		writeError(w, http.StatusBadRequest, -1120, "Invalid interval or limit.")
		return
	}

	fe.mu.Lock()
	n := len(fe.requests)
	fe.requests = append(fe.requests, req)
	fail := fe.Fail
	fe.mu.Unlock()

	mode := NoFailure
	if fail != nil {
		mode = fail(n, req)
	}

	count := req.Limit
	switch mode {
	case ServerError:
		writeError(w, http.StatusInternalServerError, -1000, "An unknown error occurred while processing the request.")
		return
	case RateLimited:
		writeError(w, http.StatusTooManyRequests, -1003, "Too many requests.")
		return
	case Malformed:
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[1,2,`))
		return
	case ShortPage:
		count--
	case EmptyPage:
		count = 0
	}

	stepMs := step.Milliseconds()
	rows := make([][]interface{}, 0, count)
	for i := 0; i < count; i++ {
		rows = append(rows, KlineRow(req.StartMs+int64(i)*stepMs, stepMs))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "msg": msg})
}

// ExpectedKline returns the kline the fake exchange serves for openMs.
// All values are exactly representable so parsing is lossless.
func ExpectedKline(openMs, stepMs int64) domain.Kline {
	sec := openMs / 1000
	price := 60000 + float64(sec%4096)*0.5
	return domain.Kline{
		OpenTime:        uint64(openMs),
		Open:            float32(price),
		High:            float32(price + 1),
		Low:             float32(price - 1),
		Close:           float32(price + 0.5),
		Volume:          float64(sec%97) * 0.125,
		CloseTime:       uint64(openMs + stepMs - 1),
		BaseVolume:      float64(sec%89) * 0.25,
		Trades:          uint32(sec % 53),
		TakerVolume:     float64(sec%31) * 0.0625,
		TakerBaseVolume: float64(sec%29) * 0.5,
	}
}

// KlineRow renders ExpectedKline in the exchange's positional array format,
// including the trailing unused field.
func KlineRow(openMs, stepMs int64) []interface{} {
	k := ExpectedKline(openMs, stepMs)
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []interface{}{
		int64(k.OpenTime),
		f(float64(k.Open)),
		f(float64(k.High)),
		f(float64(k.Low)),
		f(float64(k.Close)),
		f(k.Volume),
		int64(k.CloseTime),
		f(k.BaseVolume),
		int64(k.Trades),
		f(k.TakerVolume),
		f(k.TakerBaseVolume),
		"0",
	}
}
