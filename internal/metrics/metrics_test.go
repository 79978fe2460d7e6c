package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.DaysWritten.WithLabelValues("BTCUSDT").Inc()
	a.PageFailures.WithLabelValues("BTCUSDT", "short_page").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.DaysWritten.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.PageFailures.WithLabelValues("BTCUSDT", "short_page")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DaysWritten.WithLabelValues("BTCUSDT")))
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.PagesFetched.WithLabelValues("BTCUSDT").Add(96)

	expected := `
# HELP kline_pages_fetched_total Kline pages fetched with the expected record count
# TYPE kline_pages_fetched_total counter
kline_pages_fetched_total{ticker="BTCUSDT"} 96
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "kline_pages_fetched_total"))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.DaysWritten.WithLabelValues("BTCUSDT").Add(2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `kline_days_written_total{ticker="BTCUSDT"} 2`)
}

func TestMetrics_ServeUntilCanceled(t *testing.T) {
	m := New()
	m.DaysWritten.WithLabelValues("BTCUSDT").Inc()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `kline_days_written_total{ticker="BTCUSDT"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop after cancel")
	}
}

func TestMetrics_ServeBadAddress(t *testing.T) {
	err := New().Serve(context.Background(), "256.0.0.1:bad")
	assert.Error(t, err)
}
