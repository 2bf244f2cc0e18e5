// Package store holds the in-memory price state and computes arbitrage
// opportunities on every ingested sample.
package store

import (
	"arb_monitor/internal/core"
	"arb_monitor/pkg/concurrency"
	"arb_monitor/pkg/telemetry"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "arb_monitor/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	hundred = decimal.NewFromInt(100)

	// Subscribers are notified only when the top spread moves at least this
	// many percentage points, or the opportunity count changes.
	notifyDelta = decimal.NewFromFloat(0.1)
)

// SubscriberFunc receives the latest opportunity set for a ticker whenever
// it changes significantly.
type SubscriberFunc func(opportunities []core.ArbitrageOpportunity)

// UnsubscribeFunc removes a subscription.
type UnsubscribeFunc func()

type tickerState struct {
	mu            sync.Mutex
	samples       map[string]core.PriceSample // venue -> latest sample
	threshold     decimal.Decimal
	opportunities []core.ArbitrageOpportunity
	subscribers   map[string]SubscriberFunc
}

// PriceStore merges venue samples per ticker, recomputes the opportunity set
// on every update, and fans significant changes out to subscribers. Locks
// are per ticker and never held across callback invocation.
type PriceStore struct {
	mu      sync.RWMutex
	tickers map[string]*tickerState

	pool    *concurrency.WorkerPool
	opts    Options
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
}

// Options size the notification worker pool. Zero values select the
// defaults: 8 workers, 1024 queued notifications.
type Options struct {
	NotifyWorkers int
	NotifyBuffer  int
}

// NewPriceStore creates a price store. The worker pool runs subscriber
// callbacks so ingestion never blocks on a slow consumer.
func NewPriceStore(logger core.ILogger, opts Options) *PriceStore {
	if opts.NotifyWorkers <= 0 {
		opts.NotifyWorkers = 8
	}
	if opts.NotifyBuffer <= 0 {
		opts.NotifyBuffer = 1024
	}
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "store_notify",
		MaxWorkers:  opts.NotifyWorkers,
		MaxCapacity: opts.NotifyBuffer,
	}, logger)

	return &PriceStore{
		tickers: make(map[string]*tickerState),
		pool:    pool,
		opts:    opts,
		logger:  logger.WithField("component", "price_store"),
		metrics: telemetry.GetGlobalMetrics(),
	}
}

// Close drains the notification pool.
func (s *PriceStore) Close() {
	s.pool.Stop()
}

func validateSample(sample core.PriceSample) error {
	if sample.Price.Sign() < 0 {
		return fmt.Errorf("%w: negative price %s", apperrors.ErrInvalidSample, sample.Price)
	}
	return nil
}

func (s *PriceStore) state(ticker string) *tickerState {
	s.mu.RLock()
	ts, ok := s.tickers[ticker]
	s.mu.RUnlock()
	if ok {
		return ts
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok = s.tickers[ticker]; ok {
		return ts
	}
	ts = &tickerState{
		samples:     make(map[string]core.PriceSample),
		subscribers: make(map[string]SubscriberFunc),
	}
	s.tickers[ticker] = ts
	return ts
}

// UpdatePrice overwrites the latest sample for (ticker, venue), recomputes
// the opportunity set, and notifies subscribers when the result changed
// significantly. Samples with a negative price are rejected and counted,
// never propagated.
func (s *PriceStore) UpdatePrice(ticker, venue string, sample core.PriceSample) {
	ticker = core.CanonicalTicker(ticker)

	if err := validateSample(sample); err != nil {
		if s.metrics != nil && s.metrics.SamplesRejectedTotal != nil {
			s.metrics.SamplesRejectedTotal.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("venue", venue)))
		}
		s.logger.Warn("Rejected price sample", "ticker", ticker, "venue", venue, "price", sample.Price, "error", err)
		return
	}

	ts := s.state(ticker)

	ts.mu.Lock()
	sample.Venue = venue
	ts.samples[venue] = sample

	newSet := computeOpportunities(ts.samples, ts.threshold)
	oldSet := ts.opportunities
	ts.opportunities = newSet

	notify := significantChange(oldSet, newSet)
	var callbacks []SubscriberFunc
	var snapshot []core.ArbitrageOpportunity
	if notify && len(ts.subscribers) > 0 {
		callbacks = make([]SubscriberFunc, 0, len(ts.subscribers))
		for _, cb := range ts.subscribers {
			callbacks = append(callbacks, cb)
		}
		snapshot = copyOpportunities(newSet)
	}
	ts.mu.Unlock()

	if s.metrics != nil && s.metrics.SamplesIngestedTotal != nil {
		s.metrics.SamplesIngestedTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("venue", venue)))
	}
	if s.metrics != nil && s.metrics.OpportunitiesTotal != nil && len(newSet) > 0 {
		s.metrics.OpportunitiesTotal.Add(context.Background(), int64(len(newSet)))
	}
	if s.metrics != nil {
		if len(newSet) > 0 {
			top, _ := newSet[0].SpreadPercent.Float64()
			s.metrics.SetTopSpread(ticker, top)
		} else {
			s.metrics.SetTopSpread(ticker, 0)
		}
	}

	for _, cb := range callbacks {
		s.dispatch(ticker, cb, snapshot)
	}
}

// dispatch runs one callback on the pool with panic containment. Callbacks
// execute outside every store lock, so a subscriber re-reading or even
// re-writing the store cannot deadlock.
func (s *PriceStore) dispatch(ticker string, cb SubscriberFunc, opportunities []core.ArbitrageOpportunity) {
	err := s.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				if s.metrics != nil && s.metrics.CallbackPanicsTotal != nil {
					s.metrics.CallbackPanicsTotal.Add(context.Background(), 1)
				}
				s.logger.Error("Subscriber callback panicked", "ticker", ticker, "panic", r)
			}
		}()
		cb(opportunities)
	})
	if err != nil {
		s.logger.Warn("Notification pool full, dropping notification", "ticker", ticker)
		return
	}
	if s.metrics != nil && s.metrics.NotificationsTotal != nil {
		s.metrics.NotificationsTotal.Add(context.Background(), 1)
	}
}

// SetThreshold replaces the per-ticker minimum spread percent. It does not
// itself trigger notifications; the new threshold applies from the next
// ingested sample.
func (s *PriceStore) SetThreshold(ticker string, percent decimal.Decimal) {
	ts := s.state(core.CanonicalTicker(ticker))
	ts.mu.Lock()
	ts.threshold = percent
	ts.mu.Unlock()
}

// GetThreshold returns the current threshold for a ticker.
func (s *PriceStore) GetThreshold(ticker string) decimal.Decimal {
	ts := s.state(core.CanonicalTicker(ticker))
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.threshold
}

// Subscribe registers a callback for significant opportunity-set changes on
// a ticker and returns its unsubscribe handle.
func (s *PriceStore) Subscribe(ticker string, cb SubscriberFunc) UnsubscribeFunc {
	ticker = core.CanonicalTicker(ticker)
	ts := s.state(ticker)
	id := uuid.NewString()

	ts.mu.Lock()
	ts.subscribers[id] = cb
	ts.mu.Unlock()

	return func() {
		ts.mu.Lock()
		delete(ts.subscribers, id)
		ts.mu.Unlock()
	}
}

// GetPrices snapshots the latest samples per venue for a ticker.
func (s *PriceStore) GetPrices(ticker string) map[string]core.PriceSample {
	ts := s.state(core.CanonicalTicker(ticker))
	ts.mu.Lock()
	defer ts.mu.Unlock()

	out := make(map[string]core.PriceSample, len(ts.samples))
	for venue, sample := range ts.samples {
		out[venue] = sample
	}
	return out
}

// GetOpportunities snapshots the current opportunity set for a ticker.
func (s *PriceStore) GetOpportunities(ticker string) []core.ArbitrageOpportunity {
	ts := s.state(core.CanonicalTicker(ticker))
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return copyOpportunities(ts.opportunities)
}

// ClearTicker drops samples, threshold, opportunities, and subscribers for
// a ticker.
func (s *PriceStore) ClearTicker(ticker string) {
	ticker = core.CanonicalTicker(ticker)
	s.mu.Lock()
	delete(s.tickers, ticker)
	s.mu.Unlock()
	s.metrics.ClearTicker(ticker)
}

// computeOpportunities builds the ranked opportunity set from the current
// samples. Every unordered venue pair whose spread clears the threshold is
// kept; the result is sorted descending by absolute profit, then spread.
func computeOpportunities(samples map[string]core.PriceSample, threshold decimal.Decimal) []core.ArbitrageOpportunity {
	if len(samples) < 2 {
		return nil
	}

	venues := make([]string, 0, len(samples))
	for v := range samples {
		venues = append(venues, v)
	}
	sort.Strings(venues)

	now := time.Now().UnixMilli()
	var out []core.ArbitrageOpportunity
	for i := 0; i < len(venues); i++ {
		for j := i + 1; j < len(venues); j++ {
			p, q := samples[venues[i]], samples[venues[j]]
			buy, sell := p, q
			if buy.Price.GreaterThan(sell.Price) {
				buy, sell = sell, buy
			}
			if buy.Price.IsZero() {
				continue
			}

			profit := sell.Price.Sub(buy.Price)
			// Spread percent at 0.01 pp precision, half away from zero.
			spread := profit.Div(buy.Price).Mul(hundred).Round(2)
			if spread.LessThan(threshold) {
				continue
			}

			out = append(out, core.ArbitrageOpportunity{
				Buy:           buy,
				Sell:          sell,
				SpreadPercent: spread,
				Profit:        profit,
				Timestamp:     now,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Profit.Equal(out[j].Profit) {
			return out[i].Profit.GreaterThan(out[j].Profit)
		}
		return out[i].SpreadPercent.GreaterThan(out[j].SpreadPercent)
	})
	return out
}

// significantChange implements notification suppression: subscribers hear
// about a new set only when its cardinality changed or the top spread moved
// by at least 0.1 pp against the previously retained set.
func significantChange(oldSet, newSet []core.ArbitrageOpportunity) bool {
	if len(oldSet) != len(newSet) {
		return true
	}
	if len(newSet) == 0 {
		return false
	}
	delta := newSet[0].SpreadPercent.Sub(oldSet[0].SpreadPercent).Abs()
	return delta.GreaterThanOrEqual(notifyDelta)
}

func copyOpportunities(in []core.ArbitrageOpportunity) []core.ArbitrageOpportunity {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.ArbitrageOpportunity, len(in))
	copy(out, in)
	return out
}
