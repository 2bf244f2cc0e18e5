// Package manager owns the active adapter set for every monitored ticker.
package manager

import (
	"context"
	"sync"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/store"
	"arb_monitor/internal/venue/dexpool"
	"arb_monitor/internal/venue/streaming"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceStore is the slice of the price store the manager drives.
type PriceStore interface {
	core.IPriceSink
	SetThreshold(ticker string, percent decimal.Decimal)
	ClearTicker(ticker string)
	Subscribe(ticker string, cb store.SubscriberFunc) store.UnsubscribeFunc
}

// VenueBuilder constructs streaming adapters by venue name. The venue
// registry satisfies it.
type VenueBuilder interface {
	Build(name, ticker string, sink core.IPriceSink, logger core.ILogger, opts streaming.Options) (core.IVenueAdapter, error)
	Names() []string
}

// Discoverer resolves a ticker into a monitoring spec.
type Discoverer interface {
	Discover(ctx context.Context, ticker string, threshold decimal.Decimal) (*core.DiscoveryResult, error)
}

// PoolBuilder constructs a polling adapter for one on-chain pool.
type PoolBuilder func(ticker string, selection core.PoolSelection, sink core.IPriceSink, logger core.ILogger) (core.IVenueAdapter, error)

// Options carries session defaults applied to every adapter the manager
// creates.
type Options struct {
	Streaming    streaming.Options
	PollInterval time.Duration

	// AlertSubscriber, when set, is registered as a store subscriber for
	// every ticker the manager starts and removed when it stops.
	AlertSubscriber func(ticker string) store.SubscriberFunc
}

// tickerEntry tracks one monitored ticker. venues maps venue name to its
// adapter; a streaming adapter is shared across that venue's markets.
type tickerEntry struct {
	spec        core.MonitoringSpec
	venues      map[string]core.IVenueAdapter
	markets     map[string][]core.MarketKind
	started     time.Time
	unsubscribe store.UnsubscribeFunc
}

// MonitoringInfo is the read model returned by GetMonitoringInfo.
type MonitoringInfo struct {
	Ticker           string              `json:"ticker"`
	ThresholdPercent decimal.Decimal     `json:"thresholdPercent"`
	Venues           []core.SessionState `json:"venues"`
	StartedAt        int64               `json:"startedAt"`
	Spec             core.MonitoringSpec `json:"spec"`
}

// HealthReport summarizes session health across all monitored tickers.
type HealthReport struct {
	Healthy  bool                     `json:"healthy"`
	Sessions int                      `json:"sessions"`
	ByStatus map[core.VenueStatus]int `json:"byStatus"`
	Tickers  []string                 `json:"tickers"`
}

// ConnectionManager starts, stops, and inspects monitoring sessions. Keys
// take the form ticker|venue|market and are opaque to consumers.
type ConnectionManager struct {
	store     PriceStore
	builder   VenueBuilder
	discovery Discoverer
	pools     PoolBuilder
	logger    core.ILogger
	opts      Options

	// baseCtx bounds every adapter's lifetime. Sessions end on
	// StopMonitoring, Disconnect, or Close, never when a caller's
	// request context expires.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.RWMutex
	tickers map[string]*tickerEntry

	subMu sync.RWMutex
	subs  map[uuid.UUID]core.StatusCallback

	metrics *telemetry.MetricsHolder
}

// NewConnectionManager wires a manager over the given store, venue builder,
// and discovery service. poolBuilder may be nil; on-chain pools then use the
// default dexpool adapter.
func NewConnectionManager(store PriceStore, builder VenueBuilder, discovery Discoverer, logger core.ILogger, opts Options, poolBuilder PoolBuilder) *ConnectionManager {
	m := &ConnectionManager{
		store:     store,
		builder:   builder,
		discovery: discovery,
		logger:    logger.WithField("component", "manager"),
		opts:      opts,
		tickers:   make(map[string]*tickerEntry),
		subs:      make(map[uuid.UUID]core.StatusCallback),
		metrics:   telemetry.GetGlobalMetrics(),
	}
	m.baseCtx, m.baseCancel = context.WithCancel(context.Background())
	m.pools = poolBuilder
	if m.pools == nil {
		m.pools = func(ticker string, selection core.PoolSelection, sink core.IPriceSink, l core.ILogger) (core.IVenueAdapter, error) {
			return dexpool.NewAdapter(ticker, selection, sink, l, dexpool.Config{PollInterval: opts.PollInterval})
		}
	}
	return m
}

// StartMonitoringAuto discovers the ticker's listings and starts monitoring
// on the result. Fails with ErrNoVenuesFound when nothing lists the ticker.
func (m *ConnectionManager) StartMonitoringAuto(ctx context.Context, ticker string, threshold decimal.Decimal) error {
	result, err := m.discovery.Discover(ctx, ticker, threshold)
	if err != nil {
		return err
	}
	if len(result.Spec.Venues) == 0 && len(result.Spec.Pools) == 0 {
		return apperrors.ErrNoVenuesFound
	}
	return m.StartMonitoring(ctx, result.Spec)
}

// StartMonitoring sets the store threshold and connects an adapter for every
// venue and pool in the spec. Adapter starts run in parallel; an individual
// failure is recorded and does not abort the rest. The call fails only when
// no adapter could be started at all.
//
// ctx bounds this call only. Started adapters are bound to the manager's
// lifetime and keep polling and reconnecting after ctx expires; they stop
// on StopMonitoring, EmergencyDisconnectAll, or Close.
func (m *ConnectionManager) StartMonitoring(ctx context.Context, spec core.MonitoringSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ticker := core.CanonicalTicker(spec.Ticker)
	if ticker == "" {
		return apperrors.ErrMissingTicker
	}
	spec.Ticker = ticker

	m.mu.Lock()
	if _, exists := m.tickers[ticker]; exists {
		m.mu.Unlock()
		return apperrors.ErrAlreadyMonitored
	}
	entry := &tickerEntry{
		spec:    spec,
		venues:  make(map[string]core.IVenueAdapter),
		markets: make(map[string][]core.MarketKind),
		started: time.Now(),
	}
	m.tickers[ticker] = entry
	m.mu.Unlock()

	m.store.SetThreshold(ticker, spec.ThresholdPercent)
	if m.opts.AlertSubscriber != nil {
		entry.unsubscribe = m.store.Subscribe(ticker, m.opts.AlertSubscriber(ticker))
	}

	type start struct {
		venue   string
		adapter core.IVenueAdapter
		markets []core.MarketKind
	}
	var (
		startMu sync.Mutex
		starts  []start
		failed  []error
	)

	var wg sync.WaitGroup
	for _, sel := range spec.Venues {
		sel := sel
		wg.Add(1)
		go func() {
			defer wg.Done()
			adapter, err := m.builder.Build(sel.Venue, ticker, m.store, m.logger, m.opts.Streaming)
			if err != nil {
				m.logger.Error("venue adapter start failed", "ticker", ticker, "venue", sel.Venue, "error", err)
				startMu.Lock()
				failed = append(failed, err)
				startMu.Unlock()
				return
			}
			adapter.OnStatusUpdate(m.fanOut)
			if err := adapter.Connect(m.baseCtx, sel.Markets); err != nil {
				m.logger.Error("venue connect failed", "ticker", ticker, "venue", sel.Venue, "error", err)
				startMu.Lock()
				failed = append(failed, err)
				startMu.Unlock()
				return
			}
			startMu.Lock()
			starts = append(starts, start{venue: sel.Venue, adapter: adapter, markets: sel.Markets})
			startMu.Unlock()
		}()
	}
	for _, pool := range spec.Pools {
		pool := pool
		wg.Add(1)
		go func() {
			defer wg.Done()
			adapter, err := m.pools(ticker, pool, m.store, m.logger)
			if err != nil {
				m.logger.Error("pool adapter start failed", "ticker", ticker, "chain", pool.Chain, "error", err)
				startMu.Lock()
				failed = append(failed, err)
				startMu.Unlock()
				return
			}
			adapter.OnStatusUpdate(m.fanOut)
			if err := adapter.Connect(m.baseCtx, []core.MarketKind{core.MarketDEX}); err != nil {
				m.logger.Error("pool connect failed", "ticker", ticker, "chain", pool.Chain, "error", err)
				startMu.Lock()
				failed = append(failed, err)
				startMu.Unlock()
				return
			}
			startMu.Lock()
			starts = append(starts, start{venue: adapter.Name(), adapter: adapter, markets: []core.MarketKind{core.MarketDEX}})
			startMu.Unlock()
		}()
	}
	wg.Wait()

	if len(starts) == 0 && len(failed) > 0 {
		m.mu.Lock()
		delete(m.tickers, ticker)
		m.mu.Unlock()
		if entry.unsubscribe != nil {
			entry.unsubscribe()
		}
		m.store.ClearTicker(ticker)
		return failed[0]
	}

	m.mu.Lock()
	for _, s := range starts {
		entry.venues[s.venue] = s.adapter
		entry.markets[s.venue] = s.markets
	}
	sessions := m.sessionCountLocked()
	m.mu.Unlock()
	m.metrics.SetActiveSessions("all", int64(sessions))

	m.logger.Info("monitoring started",
		"ticker", ticker,
		"venues", len(entry.venues),
		"failures", len(failed))
	return nil
}

// StopMonitoring disconnects every adapter for the ticker and clears its
// store state.
func (m *ConnectionManager) StopMonitoring(ticker string) error {
	ticker = core.CanonicalTicker(ticker)

	m.mu.Lock()
	entry, ok := m.tickers[ticker]
	if !ok {
		m.mu.Unlock()
		return apperrors.ErrNotMonitored
	}
	delete(m.tickers, ticker)
	sessions := m.sessionCountLocked()
	m.mu.Unlock()

	for name, adapter := range entry.venues {
		adapter.Disconnect(entry.markets[name])
	}
	if entry.unsubscribe != nil {
		entry.unsubscribe()
	}
	m.store.ClearTicker(ticker)
	m.metrics.SetActiveSessions("all", int64(sessions))

	m.logger.Info("monitoring stopped", "ticker", ticker)
	return nil
}

// ReconnectExchange forces a reconnect for one session, resetting its
// attempt budget. The restarted session is bound to the manager's lifetime,
// not ctx.
func (m *ConnectionManager) ReconnectExchange(ctx context.Context, ticker, venueName string, market core.MarketKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ticker = core.CanonicalTicker(ticker)

	m.mu.RLock()
	entry, ok := m.tickers[ticker]
	if !ok {
		m.mu.RUnlock()
		return apperrors.ErrNotMonitored
	}
	adapter, ok := entry.venues[venueName]
	m.mu.RUnlock()
	if !ok {
		return apperrors.ErrUnknownVenue
	}

	if m.metrics != nil && m.metrics.ReconnectsTotal != nil {
		m.metrics.ReconnectsTotal.Add(context.Background(), 1)
	}
	return adapter.Reconnect(m.baseCtx, market)
}

// GetConnectionStatus returns the session states keyed by session key. An
// empty ticker returns every session.
func (m *ConnectionManager) GetConnectionStatus(ticker string) map[string]core.SessionState {
	ticker = core.CanonicalTicker(ticker)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]core.SessionState)
	for t, entry := range m.tickers {
		if ticker != "" && t != ticker {
			continue
		}
		for _, adapter := range entry.venues {
			for _, state := range adapter.States() {
				out[core.SessionKey(state.Ticker, state.Venue, state.Market)] = state
			}
		}
	}
	return out
}

// HealthCheck summarizes all sessions. Healthy means no session sits in the
// error state.
func (m *ConnectionManager) HealthCheck() HealthReport {
	states := m.GetConnectionStatus("")

	report := HealthReport{
		Healthy:  true,
		Sessions: len(states),
		ByStatus: make(map[core.VenueStatus]int),
	}
	for _, state := range states {
		report.ByStatus[state.Status]++
		if state.Status == core.StatusError {
			report.Healthy = false
		}
	}

	m.mu.RLock()
	for t := range m.tickers {
		report.Tickers = append(report.Tickers, t)
	}
	m.mu.RUnlock()
	return report
}

// GetMonitoringInfo lists every active ticker with its session states.
func (m *ConnectionManager) GetMonitoringInfo() []MonitoringInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]MonitoringInfo, 0, len(m.tickers))
	for t, entry := range m.tickers {
		info := MonitoringInfo{
			Ticker:           t,
			ThresholdPercent: entry.spec.ThresholdPercent,
			StartedAt:        entry.started.UnixMilli(),
			Spec:             entry.spec,
		}
		for _, adapter := range entry.venues {
			info.Venues = append(info.Venues, adapter.States()...)
		}
		out = append(out, info)
	}
	return out
}

// OnStatusUpdate subscribes to all adapter status transitions. The returned
// function removes the subscription.
func (m *ConnectionManager) OnStatusUpdate(cb core.StatusCallback) func() {
	id := uuid.New()
	m.subMu.Lock()
	m.subs[id] = cb
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// EmergencyDisconnectAll stops monitoring for every active ticker. Safe to
// call repeatedly.
func (m *ConnectionManager) EmergencyDisconnectAll() {
	m.mu.RLock()
	tickers := make([]string, 0, len(m.tickers))
	for t := range m.tickers {
		tickers = append(tickers, t)
	}
	m.mu.RUnlock()

	for _, t := range tickers {
		if err := m.StopMonitoring(t); err != nil {
			m.logger.Warn("emergency stop failed", "ticker", t, "error", err)
		}
	}
}

// Close stops monitoring for every ticker and cancels the lifetime context
// shared by all adapters. The manager cannot start new sessions afterwards.
func (m *ConnectionManager) Close() {
	m.EmergencyDisconnectAll()
	m.baseCancel()
}

// ActiveTickers lists the tickers currently monitored.
func (m *ConnectionManager) ActiveTickers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.tickers))
	for t := range m.tickers {
		out = append(out, t)
	}
	return out
}

func (m *ConnectionManager) fanOut(update core.StatusUpdate) {
	m.subMu.RLock()
	cbs := make([]core.StatusCallback, 0, len(m.subs))
	for _, cb := range m.subs {
		cbs = append(cbs, cb)
	}
	m.subMu.RUnlock()

	for _, cb := range cbs {
		cb(update)
	}
}

// sessionCountLocked counts active (venue, market) sessions. Caller holds
// m.mu.
func (m *ConnectionManager) sessionCountLocked() int {
	n := 0
	for _, entry := range m.tickers {
		for _, markets := range entry.markets {
			n += len(markets)
		}
	}
	return n
}
