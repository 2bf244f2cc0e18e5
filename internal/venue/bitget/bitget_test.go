package bitget

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

func TestSubscribeFrame(t *testing.T) {
	spot := subscribeFrame("pepe", core.MarketSpot).(map[string]interface{})
	assert.Equal(t, "subscribe", spot["op"])
	assert.Equal(t, []subscribeArg{{InstType: "SPOT", Channel: "ticker", InstID: "PEPEUSDT"}}, spot["args"])

	futures := subscribeFrame("pepe", core.MarketFutures).(map[string]interface{})
	assert.Equal(t, []subscribeArg{{InstType: "USDT-FUTURES", Channel: "ticker", InstID: "PEPEUSDT"}}, futures["args"])
}

func TestSharedEndpointForBothMarkets(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))
	assert.Equal(t, "wss://ws.bitget.com/v2/ws/public", spec.StreamURL("PEPE", core.MarketSpot))
	assert.Equal(t, "wss://ws.bitget.com/v2/ws/public", spec.StreamURL("PEPE", core.MarketFutures))
}

func TestParseText_TickerPush(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	raw := []byte(`{"action":"snapshot","arg":{"instType":"SPOT","channel":"ticker","instId":"PEPEUSDT"},"data":[{"instId":"PEPEUSDT","lastPr":"0.0000122","baseVolume":"123456","ts":"1700000000789"}],"ts":1700000000790}`)
	sample, reply := spec.ParseText("PEPE", core.MarketSpot, raw)
	require.NotNil(t, sample)
	assert.Nil(t, reply)
	assert.Equal(t, "PEPEUSDT", sample.Symbol)
	assert.True(t, sample.Price.Equal(decimal.RequireFromString("0.0000122")))
	assert.Equal(t, int64(1700000000789), sample.Timestamp)
	assert.True(t, sample.Volume24h.Equal(decimal.RequireFromString("123456")))
}

func TestParseText_InstTypeMismatchDropped(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	raw := []byte(`{"action":"snapshot","arg":{"instType":"USDT-FUTURES","instId":"PEPEUSDT"},"data":[{"instId":"PEPEUSDT","lastPr":"1","ts":"1"}]}`)
	sample, _ := spec.ParseText("PEPE", core.MarketSpot, raw)
	assert.Nil(t, sample)
}

func TestParseText_Heartbeats(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	sample, reply := spec.ParseText("PEPE", core.MarketSpot, []byte("pong"))
	assert.Nil(t, sample)
	assert.Nil(t, reply)

	sample, reply = spec.ParseText("PEPE", core.MarketSpot, []byte("ping"))
	assert.Nil(t, sample)
	require.NotNil(t, reply)
	assert.Equal(t, []byte("pong"), reply.Text)
}

func TestParseText_EventFramesDropped(t *testing.T) {
	spec := Spec(Config{}, testLogger(t))

	for _, raw := range []string{
		`{"event":"subscribe","arg":{"instType":"SPOT","channel":"ticker","instId":"PEPEUSDT"}}`,
		`{"event":"error","code":30001,"msg":"instId not found"}`,
		`{"action":"snapshot","arg":{"instType":"SPOT"},"data":[]}`,
	} {
		sample, reply := spec.ParseText("PEPE", core.MarketSpot, []byte(raw))
		assert.Nil(t, sample, "payload %q", raw)
		assert.Nil(t, reply)
	}
}

func TestProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/spot/market/tickers":
			w.Write([]byte(`{"code":"00000","msg":"success","data":[{"symbol":"PEPEUSDT","lastPr":"0.0000122"}]}`))
		case "/api/v2/mix/market/ticker":
			// Unknown contracts come back HTTP 200 with an error code.
			w.Write([]byte(`{"code":"40034","msg":"Parameter does not exist","data":null}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	spec := Spec(Config{RESTBase: server.URL}, testLogger(t))
	result := spec.Probe(context.Background(), "pepe")
	assert.True(t, result.Spot)
	assert.False(t, result.Futures)
	assert.Equal(t, "PEPEUSDT", result.Symbol)
}
