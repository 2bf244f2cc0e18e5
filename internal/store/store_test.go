package store

import (
	"sync/atomic"
	"testing"
	"time"

	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *PriceStore {
	t.Helper()
	logger, err := logging.NewZapLogger("error")
	require.NoError(t, err)
	s := NewPriceStore(logger, Options{})
	t.Cleanup(s.Close)
	return s
}

func sample(price string) core.PriceSample {
	return core.PriceSample{
		Price:     decimal.RequireFromString(price),
		Timestamp: time.Now().UnixMilli(),
		Market:    core.MarketSpot,
	}
}

func TestComputeOpportunities_RankingAndRounding(t *testing.T) {
	s := newTestStore(t)
	s.SetThreshold("PEPE", decimal.NewFromInt(1))

	s.UpdatePrice("PEPE", "binance", sample("10"))
	s.UpdatePrice("PEPE", "mexc", sample("10.3"))
	s.UpdatePrice("PEPE", "gate", sample("10.6"))

	opps := s.GetOpportunities("PEPE")
	require.Len(t, opps, 3)

	// Highest absolute profit first.
	assert.Equal(t, "binance", opps[0].Buy.Venue)
	assert.Equal(t, "gate", opps[0].Sell.Venue)
	assert.True(t, opps[0].Profit.Equal(decimal.RequireFromString("0.6")), "profit %s", opps[0].Profit)
	assert.True(t, opps[0].SpreadPercent.Equal(decimal.RequireFromString("6")), "spread %s", opps[0].SpreadPercent)

	// Equal profit ties break on spread.
	assert.Equal(t, "binance", opps[1].Buy.Venue)
	assert.Equal(t, "mexc", opps[1].Sell.Venue)
	assert.True(t, opps[1].SpreadPercent.Equal(decimal.RequireFromString("3")))

	assert.Equal(t, "mexc", opps[2].Buy.Venue)
	assert.Equal(t, "gate", opps[2].Sell.Venue)
	assert.True(t, opps[2].SpreadPercent.Equal(decimal.RequireFromString("2.91")), "spread %s", opps[2].SpreadPercent)
}

func TestComputeOpportunities_ThresholdBoundary(t *testing.T) {
	s := newTestStore(t)
	s.SetThreshold("DOGE", decimal.NewFromInt(5))

	// Spread exactly at the threshold qualifies.
	s.UpdatePrice("DOGE", "binance", sample("100"))
	s.UpdatePrice("DOGE", "gate", sample("105"))
	require.Len(t, s.GetOpportunities("DOGE"), 1)

	// Just below does not.
	s.UpdatePrice("DOGE", "gate", sample("104.99"))
	assert.Empty(t, s.GetOpportunities("DOGE"))
}

func TestValidateSample(t *testing.T) {
	require.ErrorIs(t, validateSample(sample("-1")), apperrors.ErrInvalidSample)
	require.NoError(t, validateSample(sample("0")))
	require.NoError(t, validateSample(sample("3000")))
}

func TestUpdatePrice_RejectsNegative(t *testing.T) {
	s := newTestStore(t)

	s.UpdatePrice("SHIB", "binance", sample("-1"))
	assert.Empty(t, s.GetPrices("SHIB"))

	s.UpdatePrice("SHIB", "binance", sample("0.5"))
	prices := s.GetPrices("SHIB")
	require.Len(t, prices, 1)
	assert.True(t, prices["binance"].Price.Equal(decimal.RequireFromString("0.5")))
}

func TestSingleSampleNoOpportunities(t *testing.T) {
	s := newTestStore(t)
	s.UpdatePrice("BTC", "binance", sample("65000"))
	assert.Empty(t, s.GetOpportunities("BTC"))
}

func TestZeroPricePairSkipped(t *testing.T) {
	s := newTestStore(t)
	s.UpdatePrice("NEW", "binance", sample("0"))
	s.UpdatePrice("NEW", "gate", sample("1"))
	assert.Empty(t, s.GetOpportunities("NEW"))
}

func TestSignificantChange(t *testing.T) {
	mk := func(spreads ...string) []core.ArbitrageOpportunity {
		out := make([]core.ArbitrageOpportunity, 0, len(spreads))
		for _, sp := range spreads {
			out = append(out, core.ArbitrageOpportunity{SpreadPercent: decimal.RequireFromString(sp)})
		}
		return out
	}

	tests := []struct {
		name     string
		old, new []core.ArbitrageOpportunity
		want     bool
	}{
		{"both empty", nil, nil, false},
		{"first opportunity", nil, mk("5"), true},
		{"set emptied", mk("5"), nil, true},
		{"small drift", mk("5"), mk("5.05"), false},
		{"exactly 0.1pp", mk("5.05"), mk("5.15"), true},
		{"downward move", mk("5"), mk("4.8"), true},
		{"cardinality change", mk("5"), mk("5", "2"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, significantChange(tt.old, tt.new))
		})
	}
}

func TestSubscribeNotifyAndUnsubscribe(t *testing.T) {
	s := newTestStore(t)

	got := make(chan []core.ArbitrageOpportunity, 16)
	unsubscribe := s.Subscribe("PEPE", func(opps []core.ArbitrageOpportunity) {
		got <- opps
	})

	s.UpdatePrice("PEPE", "binance", sample("100"))
	s.UpdatePrice("PEPE", "gate", sample("105"))

	select {
	case opps := <-got:
		require.Len(t, opps, 1)
		assert.True(t, opps[0].SpreadPercent.Equal(decimal.NewFromInt(5)))
	case <-time.After(2 * time.Second):
		t.Fatal("expected notification")
	}

	unsubscribe()
	s.UpdatePrice("PEPE", "mexc", sample("110"))

	select {
	case <-got:
		t.Fatal("received notification after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotificationSuppression(t *testing.T) {
	s := newTestStore(t)

	var notifications atomic.Int64
	s.Subscribe("PEPE", func([]core.ArbitrageOpportunity) {
		notifications.Add(1)
	})

	s.UpdatePrice("PEPE", "binance", sample("100"))
	s.UpdatePrice("PEPE", "gate", sample("105")) // 5.00, first set
	require.Eventually(t, func() bool { return notifications.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.UpdatePrice("PEPE", "gate", sample("105.05")) // 5.05, drift below 0.1pp
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), notifications.Load())

	s.UpdatePrice("PEPE", "gate", sample("105.15")) // 5.15, 0.1pp from retained 5.05
	require.Eventually(t, func() bool { return notifications.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestCallbackPanicDoesNotStarveOthers(t *testing.T) {
	s := newTestStore(t)

	s.Subscribe("PEPE", func([]core.ArbitrageOpportunity) {
		panic("subscriber bug")
	})
	healthy := make(chan struct{}, 16)
	s.Subscribe("PEPE", func([]core.ArbitrageOpportunity) {
		healthy <- struct{}{}
	})

	s.UpdatePrice("PEPE", "binance", sample("100"))
	s.UpdatePrice("PEPE", "gate", sample("110"))

	select {
	case <-healthy:
	case <-time.After(2 * time.Second):
		t.Fatal("healthy subscriber never notified")
	}
}

func TestReentrantUpdateFromCallback(t *testing.T) {
	s := newTestStore(t)

	done := make(chan struct{}, 16)
	once := make(chan struct{}, 1)
	s.Subscribe("PEPE", func([]core.ArbitrageOpportunity) {
		select {
		case once <- struct{}{}:
			// Callbacks run off the store locks, so writing back is safe.
			s.UpdatePrice("PEPE", "mexc", sample("120"))
		default:
		}
		done <- struct{}{}
	})

	s.UpdatePrice("PEPE", "binance", sample("100"))
	s.UpdatePrice("PEPE", "gate", sample("110"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}

	require.Eventually(t, func() bool {
		return len(s.GetPrices("PEPE")) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClearTicker(t *testing.T) {
	s := newTestStore(t)

	notified := make(chan struct{}, 16)
	s.Subscribe("PEPE", func([]core.ArbitrageOpportunity) { notified <- struct{}{} })

	s.UpdatePrice("PEPE", "binance", sample("100"))
	s.UpdatePrice("PEPE", "gate", sample("110"))
	<-notified

	s.ClearTicker("PEPE")
	assert.Empty(t, s.GetPrices("PEPE"))
	assert.Empty(t, s.GetOpportunities("PEPE"))

	// Old subscribers are gone with the ticker state.
	s.UpdatePrice("PEPE", "binance", sample("100"))
	s.UpdatePrice("PEPE", "gate", sample("110"))
	select {
	case <-notified:
		t.Fatal("cleared subscriber still notified")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCanonicalTickerNormalization(t *testing.T) {
	s := newTestStore(t)
	s.UpdatePrice(" pepe ", "binance", sample("1"))
	prices := s.GetPrices("PEPE")
	require.Len(t, prices, 1)
}

func TestThresholdRoundTrip(t *testing.T) {
	s := newTestStore(t)
	s.SetThreshold("BTC", decimal.RequireFromString("2.5"))
	assert.True(t, s.GetThreshold("BTC").Equal(decimal.RequireFromString("2.5")))
}

func TestNewPriceStore_PoolSizing(t *testing.T) {
	logger, err := logging.NewZapLogger("error")
	require.NoError(t, err)

	s := NewPriceStore(logger, Options{NotifyWorkers: 2, NotifyBuffer: 16})
	t.Cleanup(s.Close)
	assert.Equal(t, 2, s.opts.NotifyWorkers)
	assert.Equal(t, 16, s.opts.NotifyBuffer)

	defaulted := NewPriceStore(logger, Options{})
	t.Cleanup(defaulted.Close)
	assert.Equal(t, 8, defaulted.opts.NotifyWorkers)
	assert.Equal(t, 1024, defaulted.opts.NotifyBuffer)
}
