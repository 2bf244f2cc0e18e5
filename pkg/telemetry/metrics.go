package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricSamplesIngestedTotal  = "arb_monitor_samples_ingested_total"
	MetricSamplesRejectedTotal  = "arb_monitor_samples_rejected_total"
	MetricOpportunitiesTotal    = "arb_monitor_opportunities_total"
	MetricNotificationsTotal    = "arb_monitor_notifications_total"
	MetricReconnectsTotal       = "arb_monitor_reconnects_total"
	MetricRPCFailuresTotal      = "arb_monitor_rpc_failures_total"
	MetricActiveSessions        = "arb_monitor_active_sessions"
	MetricTopSpreadPercent      = "arb_monitor_top_spread_percent"
	MetricPollDurationSeconds   = "arb_monitor_poll_duration_seconds"
	MetricDecodeFailuresTotal   = "arb_monitor_decode_failures_total"
	MetricCallbackPanicsTotal   = "arb_monitor_callback_panics_total"
	MetricListingProbesTotal    = "arb_monitor_listing_probes_total"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	SamplesIngestedTotal metric.Int64Counter
	SamplesRejectedTotal metric.Int64Counter
	OpportunitiesTotal   metric.Int64Counter
	NotificationsTotal   metric.Int64Counter
	ReconnectsTotal      metric.Int64Counter
	RPCFailuresTotal     metric.Int64Counter
	DecodeFailuresTotal  metric.Int64Counter
	CallbackPanicsTotal  metric.Int64Counter
	ListingProbesTotal   metric.Int64Counter
	ActiveSessions       metric.Int64ObservableGauge
	TopSpreadPercent     metric.Float64ObservableGauge
	PollDuration         metric.Float64Histogram

	// State for observable gauges
	mu             sync.RWMutex
	sessionsMap    map[string]int64   // venue -> active session count
	topSpreadMap   map[string]float64 // ticker -> top spread percent
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			sessionsMap:  make(map[string]int64),
			topSpreadMap: make(map[string]float64),
		}
		// Instruments are created in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.SamplesIngestedTotal, err = meter.Int64Counter(MetricSamplesIngestedTotal, metric.WithDescription("Total valid price samples ingested"))
	if err != nil {
		return err
	}

	m.SamplesRejectedTotal, err = meter.Int64Counter(MetricSamplesRejectedTotal, metric.WithDescription("Total samples rejected at the store boundary"))
	if err != nil {
		return err
	}

	m.OpportunitiesTotal, err = meter.Int64Counter(MetricOpportunitiesTotal, metric.WithDescription("Total arbitrage opportunities computed"))
	if err != nil {
		return err
	}

	m.NotificationsTotal, err = meter.Int64Counter(MetricNotificationsTotal, metric.WithDescription("Total subscriber notifications dispatched"))
	if err != nil {
		return err
	}

	m.ReconnectsTotal, err = meter.Int64Counter(MetricReconnectsTotal, metric.WithDescription("Total websocket reconnect attempts"))
	if err != nil {
		return err
	}

	m.RPCFailuresTotal, err = meter.Int64Counter(MetricRPCFailuresTotal, metric.WithDescription("Total on-chain RPC failures"))
	if err != nil {
		return err
	}

	m.DecodeFailuresTotal, err = meter.Int64Counter(MetricDecodeFailuresTotal, metric.WithDescription("Total frames that failed to decode"))
	if err != nil {
		return err
	}

	m.CallbackPanicsTotal, err = meter.Int64Counter(MetricCallbackPanicsTotal, metric.WithDescription("Total subscriber callback panics recovered"))
	if err != nil {
		return err
	}

	m.ListingProbesTotal, err = meter.Int64Counter(MetricListingProbesTotal, metric.WithDescription("Total REST listing probes issued"))
	if err != nil {
		return err
	}

	m.PollDuration, err = meter.Float64Histogram(MetricPollDurationSeconds, metric.WithDescription("Duration of on-chain poll cycles"), metric.WithUnit("s"))
	if err != nil {
		return err
	}

	m.ActiveSessions, err = meter.Int64ObservableGauge(MetricActiveSessions, metric.WithDescription("Number of active adapter sessions"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for venue, val := range m.sessionsMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("venue", venue)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.TopSpreadPercent, err = meter.Float64ObservableGauge(MetricTopSpreadPercent, metric.WithDescription("Top opportunity spread per ticker"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for ticker, val := range m.topSpreadMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("ticker", ticker)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// SetActiveSessions records the number of active sessions for a venue
func (m *MetricsHolder) SetActiveSessions(venue string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionsMap[venue] = count
}

// SetTopSpread records the current top spread for a ticker
func (m *MetricsHolder) SetTopSpread(ticker string, spreadPercent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topSpreadMap[ticker] = spreadPercent
}

// ClearTicker drops gauge state for a ticker
func (m *MetricsHolder) ClearTicker(ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.topSpreadMap, ticker)
}
