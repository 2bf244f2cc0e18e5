package mexc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"arb_monitor/internal/core"
	"arb_monitor/pkg/logging"
	"arb_monitor/pkg/wire"

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

func TestSubscribeFrames(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	spot := spec.SubscribeFrame("PEPE", core.MarketSpot).(map[string]interface{})
	assert.Equal(t, "SUBSCRIPTION", spot["method"])
	assert.Equal(t, []string{"spot@public.aggre.deals.v3.api.pb@100ms@PEPEUSDT"}, spot["params"])

	futures := spec.SubscribeFrame("PEPE", core.MarketFutures).(map[string]interface{})
	assert.Equal(t, "sub.ticker", futures["method"])
	assert.Equal(t, map[string]string{"symbol": "PEPE_USDT"}, futures["param"])
}

func TestStreamURLPerMarket(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))
	assert.Equal(t, "wss://wbs-api.mexc.com/ws", spec.StreamURL("PEPE", core.MarketSpot))
	assert.Equal(t, "wss://contract.mexc.com/edge", spec.StreamURL("PEPE", core.MarketFutures))
}

func TestParseBinary_DealsPush(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	payload := wire.AppendWrapper(nil, &wire.Wrapper{
		Channel: "spot@public.aggre.deals.v3.api.pb@100ms@PEPEUSDT",
		Symbol:  "PEPEUSDT",
		Deals: &wire.AggreDeals{
			Deals: []wire.Deal{{Price: "0.00001234", Quantity: "100", Time: 1700000000000}},
		},
	})

	sample, err := spec.ParseBinary("PEPE", core.MarketSpot, payload)
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, "PEPEUSDT", sample.Symbol)
	assert.True(t, sample.Price.Equal(decimal.RequireFromString("0.00001234")))
	assert.Equal(t, int64(1700000000000), sample.Timestamp)
}

func TestParseBinary_NoDealsYieldsNil(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	payload := wire.AppendWrapper(nil, &wire.Wrapper{Channel: "spot@public.aggre.deals.v3.api.pb@100ms@PEPEUSDT"})
	sample, err := spec.ParseBinary("PEPE", core.MarketSpot, payload)
	require.NoError(t, err)
	assert.Nil(t, sample)
}

func TestParseBinary_Malformed(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))
	_, err := spec.ParseBinary("PEPE", core.MarketSpot, []byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestParseText_FuturesTicker(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	raw := []byte(`{"channel":"push.ticker","symbol":"PEPE_USDT","data":{"symbol":"PEPE_USDT","lastPrice":0.0000125,"volume24":987654,"timestamp":1700000000456}}`)
	sample, reply := spec.ParseText("PEPE", core.MarketFutures, raw)
	require.NotNil(t, sample)
	assert.Nil(t, reply)
	assert.Equal(t, "PEPE_USDT", sample.Symbol)
	assert.True(t, sample.Price.Equal(decimal.NewFromFloat(0.0000125)))
	assert.Equal(t, int64(1700000000456), sample.Timestamp)
}

func TestParseText_ControlFramesDropped(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	for _, tc := range []struct {
		market core.MarketKind
		raw    string
	}{
		{core.MarketSpot, `{"id":0,"code":0,"msg":"spot@public.aggre.deals.v3.api.pb@100ms@PEPEUSDT"}`},
		{core.MarketSpot, `{"msg":"PONG"}`},
		{core.MarketFutures, `{"channel":"pong"}`},
		{core.MarketFutures, `{"channel":"rs.sub.ticker","data":"success"}`},
	} {
		sample, reply := spec.ParseText("PEPE", tc.market, []byte(tc.raw))
		assert.Nil(t, sample, "payload %q", tc.raw)
		assert.Nil(t, reply)
	}
}

func TestProbe(t *testing.T) {
	spot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-2011,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer spot.Close()

	futures := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PEPE_USDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"success":true,"code":0,"data":{"symbol":"PEPE_USDT"}}`))
	}))
	defer futures.Close()

	spec := Spec(Config{SpotRESTBase: spot.URL, FuturesRESTBase: futures.URL}, testLogger(t))

	result := spec.Probe(context.Background(), "pepe")
	assert.False(t, result.Spot)
	assert.True(t, result.Futures)
	assert.Equal(t, "PEPEUSDT", result.Symbol)
}
