package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"arb_monitor/internal/core"
	"arb_monitor/internal/manager"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonitor struct {
	autoCalls  []string
	specCalls  []core.MonitoringSpec
	stopCalls  []string
	startErr   error
	stopErr    error
	statuses   map[string]core.SessionState
	healthy    bool
	threshold  decimal.Decimal
	monitoring []manager.MonitoringInfo
}

func (m *fakeMonitor) StartMonitoringAuto(_ context.Context, ticker string, threshold decimal.Decimal) error {
	m.autoCalls = append(m.autoCalls, ticker)
	m.threshold = threshold
	return m.startErr
}

func (m *fakeMonitor) StartMonitoring(_ context.Context, spec core.MonitoringSpec) error {
	m.specCalls = append(m.specCalls, spec)
	return m.startErr
}

func (m *fakeMonitor) StopMonitoring(ticker string) error {
	m.stopCalls = append(m.stopCalls, ticker)
	return m.stopErr
}

func (m *fakeMonitor) GetConnectionStatus(string) map[string]core.SessionState {
	return m.statuses
}

func (m *fakeMonitor) GetMonitoringInfo() []manager.MonitoringInfo { return m.monitoring }

func (m *fakeMonitor) HealthCheck() manager.HealthReport {
	return manager.HealthReport{Healthy: m.healthy, Sessions: len(m.statuses)}
}

type fakePrices struct {
	prices map[string]core.PriceSample
	opps   []core.ArbitrageOpportunity
}

func (p *fakePrices) GetPrices(string) map[string]core.PriceSample { return p.prices }

func (p *fakePrices) GetOpportunities(string) []core.ArbitrageOpportunity { return p.opps }

type fakeDiscovery struct {
	result *core.DiscoveryResult
	err    error
}

func (d *fakeDiscovery) Discover(_ context.Context, ticker string, threshold decimal.Decimal) (*core.DiscoveryResult, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.result != nil {
		return d.result, nil
	}
	return &core.DiscoveryResult{
		Ticker: ticker,
		Spec:   core.MonitoringSpec{Ticker: ticker, ThresholdPercent: threshold},
	}, nil
}

func newTestServer(t *testing.T, monitor *fakeMonitor, prices *fakePrices, disc *fakeDiscovery) http.Handler {
	t.Helper()
	logger, err := logging.NewZapLogger("error")
	require.NoError(t, err)
	if monitor.statuses == nil {
		monitor.statuses = map[string]core.SessionState{}
	}
	srv := NewServer(Config{Addr: ":0"}, monitor, prices, disc,
		[]string{"binance", "bitget", "gate", "mexc"}, logger)
	return srv.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStart_AutoConfig(t *testing.T) {
	monitor := &fakeMonitor{}
	handler := newTestServer(t, monitor, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/monitoring/start",
		map[string]interface{}{"ticker": "btc", "thresholdPercent": 2.5})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"BTC"}, monitor.autoCalls)
	assert.True(t, monitor.threshold.Equal(decimal.NewFromFloat(2.5)))

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
}

func TestStart_DefaultThreshold(t *testing.T) {
	monitor := &fakeMonitor{}
	handler := newTestServer(t, monitor, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/monitoring/start",
		map[string]interface{}{"ticker": "BTC", "someUnknownField": 7})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, monitor.threshold.Equal(decimal.NewFromInt(1)))
}

func TestStart_CustomConfig(t *testing.T) {
	monitor := &fakeMonitor{}
	handler := newTestServer(t, monitor, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/monitoring/start", map[string]interface{}{
		"ticker":        "eth",
		"useAutoConfig": false,
		"customConfig": map[string]interface{}{
			"venues": []map[string]interface{}{
				{"venue": "binance", "markets": []string{"spot"}},
			},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, monitor.specCalls, 1)
	spec := monitor.specCalls[0]
	assert.Equal(t, "ETH", spec.Ticker)
	assert.True(t, spec.ThresholdPercent.Equal(decimal.NewFromInt(1)))
	require.Len(t, spec.Venues, 1)
	assert.Equal(t, "binance", spec.Venues[0].Venue)
}

func TestStart_BadRequests(t *testing.T) {
	handler := newTestServer(t, &fakeMonitor{}, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/monitoring/start", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/monitoring/start",
		map[string]interface{}{"ticker": "BTC", "useAutoConfig": false})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStart_NoVenuesFound(t *testing.T) {
	monitor := &fakeMonitor{startErr: apperrors.ErrNoVenuesFound}
	handler := newTestServer(t, monitor, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/monitoring/start",
		map[string]interface{}{"ticker": "NOPE"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "no venues")
}

func TestStop(t *testing.T) {
	monitor := &fakeMonitor{}
	handler := newTestServer(t, monitor, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/monitoring/stop",
		map[string]interface{}{"ticker": "btc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"BTC"}, monitor.stopCalls)

	rec = doJSON(t, handler, http.MethodPost, "/api/monitoring/stop", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	monitor.stopErr = apperrors.ErrNotMonitored
	rec = doJSON(t, handler, http.MethodPost, "/api/monitoring/stop",
		map[string]interface{}{"ticker": "ETH"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus_PerTicker(t *testing.T) {
	monitor := &fakeMonitor{statuses: map[string]core.SessionState{
		"BTC|binance|spot": {Ticker: "BTC", Venue: "binance", Market: core.MarketSpot, Status: core.StatusConnected},
	}}
	prices := &fakePrices{
		prices: map[string]core.PriceSample{
			"binance": {Venue: "binance", Price: decimal.NewFromInt(100)},
		},
	}
	handler := newTestServer(t, monitor, prices, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodGet, "/api/monitoring/status?ticker=btc", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "connections")
	assert.Contains(t, resp, "prices")
	assert.Contains(t, resp, "opportunities")

	var ticker string
	require.NoError(t, json.Unmarshal(resp["ticker"], &ticker))
	assert.Equal(t, "BTC", ticker)
}

func TestStatus_Overview(t *testing.T) {
	monitor := &fakeMonitor{healthy: true, monitoring: []manager.MonitoringInfo{{Ticker: "BTC"}}}
	handler := newTestServer(t, monitor, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodGet, "/api/monitoring/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "monitoring")
	assert.Contains(t, resp, "health")
}

func TestDiscoverEndpoint(t *testing.T) {
	disc := &fakeDiscovery{result: &core.DiscoveryResult{
		Ticker: "BTC",
		Spec: core.MonitoringSpec{
			Ticker:           "BTC",
			Venues:           []core.VenueSelection{{Venue: "binance", Markets: []core.MarketKind{core.MarketSpot}}},
			ThresholdPercent: decimal.NewFromInt(1),
		},
		Recommendations: []string{"BTC is listed on 1 of 4 exchanges: binance"},
	}}
	handler := newTestServer(t, &fakeMonitor{}, &fakePrices{}, disc)

	rec := doJSON(t, handler, http.MethodPost, "/api/token/discover",
		map[string]interface{}{"ticker": "btc"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.DiscoveryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "BTC", result.Ticker)
	require.Len(t, result.Spec.Venues, 1)
}

func TestTokenConfig(t *testing.T) {
	handler := newTestServer(t, &fakeMonitor{}, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodPost, "/api/token/config",
		map[string]interface{}{"ticker": "sol", "thresholdPercent": 0.5})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "recommended")
	assert.Contains(t, resp, "recommendations")
}

func TestExchangesSupported(t *testing.T) {
	handler := newTestServer(t, &fakeMonitor{}, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodGet, "/api/exchanges/supported", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Exchanges []string `json:"exchanges"`
		Total     int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Total)
	assert.Contains(t, resp.Exchanges, "binance")
}

func TestHealthEndpoint(t *testing.T) {
	monitor := &fakeMonitor{healthy: true}
	handler := newTestServer(t, monitor, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	monitor.healthy = false
	rec = doJSON(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestServer(t, &fakeMonitor{}, &fakePrices{}, &fakeDiscovery{})

	rec := doJSON(t, handler, http.MethodGet, "/api/monitoring/start", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
