package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"arb_monitor/internal/core"
	"arb_monitor/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) core.ILogger {
	t.Helper()
	logger, err := logging.NewZapLogger("error")
	require.NoError(t, err)
	return logger
}

func TestStreamURL(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	assert.Equal(t, "wss://stream.binance.com:9443/ws/pepeusdt@ticker",
		spec.StreamURL("PEPE", core.MarketSpot))
	assert.Equal(t, "wss://fstream.binance.com/ws/pepeusdt@ticker",
		spec.StreamURL("PEPE", core.MarketFutures))
	assert.Nil(t, spec.SubscribeFrame)
}

func TestParseTicker(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	raw := []byte(`{"e":"24hrTicker","E":1700000000123,"s":"BTCUSDT","c":"65000.10","v":"12345.6"}`)
	sample, reply := spec.ParseText("BTC", core.MarketSpot, raw)
	require.NotNil(t, sample)
	assert.Nil(t, reply)
	assert.Equal(t, "BTCUSDT", sample.Symbol)
	assert.True(t, sample.Price.Equal(decimal.RequireFromString("65000.10")))
	assert.Equal(t, int64(1700000000123), sample.Timestamp)
	assert.True(t, sample.Volume24h.Equal(decimal.RequireFromString("12345.6")))
}

func TestParseTicker_DropsNonTickerEvents(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	for _, raw := range []string{
		`{"e":"aggTrade","p":"1.0"}`,
		`{"result":null,"id":1}`,
		`not json`,
		`{"e":"24hrTicker","c":"not-a-number"}`,
	} {
		sample, reply := spec.ParseText("BTC", core.MarketSpot, []byte(raw))
		assert.Nil(t, sample, "payload %q", raw)
		assert.Nil(t, reply)
	}
}

func TestProbe(t *testing.T) {
	spot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BTCUSDT" {
			w.Write([]byte(`{"symbol":"BTCUSDT","price":"65000.10"}`))
			return
		}
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer spot.Close()

	futures := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer futures.Close()

	spec := Spec(Config{SpotRESTBase: spot.URL, FuturesRESTBase: futures.URL}, testLogger(t))

	result := spec.Probe(context.Background(), "BTC")
	assert.True(t, result.Spot)
	assert.False(t, result.Futures)
	assert.Equal(t, "BTCUSDT", result.Symbol)

	result = spec.Probe(context.Background(), "NOPE")
	assert.False(t, result.Spot)
	assert.False(t, result.Futures)
}

func TestProbe_ServerDownReadsUnlisted(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()

	spec := Spec(Config{SpotRESTBase: down.URL, FuturesRESTBase: down.URL}, testLogger(t))
	result := spec.Probe(context.Background(), "BTC")
	assert.False(t, result.Spot)
	assert.False(t, result.Futures)
}
