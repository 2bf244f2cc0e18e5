// Package dexpool adapts Uniswap-V2-compatible AMM pools as a polling
// venue. Each adapter owns one (chain, pool) pair, reads reserves over
// JSON-RPC on a fixed cadence, and derives a stable-quoted price.
package dexpool

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/retry"
	"arb_monitor/pkg/telemetry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	minPollInterval     = 300 * time.Millisecond
	slowPollThreshold   = time.Second
)

// Config tunes one polling adapter. Caller and NativeCache are injectable
// for tests and for sharing one RPC client per chain.
type Config struct {
	PollInterval time.Duration
	RPCURL       string
	Caller       ContractCaller
	NativeCache  *NativePriceCache
}

// Adapter polls one AMM pool and emits PriceSamples. It implements the same
// capability set as the streaming adapters; the dex market is its only
// market.
type Adapter struct {
	chain  Chain
	pool   common.Address
	ticker string
	name   string
	sink   core.IPriceSink
	logger core.ILogger

	caller   ContractCaller
	native   *NativePriceCache
	interval time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	meta     *PoolMeta
	state    core.SessionState
	statusCB core.StatusCallback

	metrics *telemetry.MetricsHolder
}

// NewAdapter creates a polling adapter for one pool. The chain is resolved
// through the registry, including its RPC env override.
func NewAdapter(ticker string, selection core.PoolSelection, sink core.IPriceSink, logger core.ILogger, cfg Config) (*Adapter, error) {
	chain, err := ChainByName(selection.Chain)
	if err != nil {
		return nil, err
	}

	if cfg.RPCURL != "" {
		chain.RPCURL = cfg.RPCURL
	}

	caller := cfg.Caller
	if caller == nil {
		client, err := ethclient.Dial(chain.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial %s rpc: %w", chain.Name, err)
		}
		caller = client
	}

	native := cfg.NativeCache
	if native == nil {
		native = NewNativePriceCache(chain, caller, 0)
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if interval < minPollInterval {
		interval = minPollInterval
	}

	name := "dex:" + chain.Name
	ticker = core.CanonicalTicker(ticker)

	return &Adapter{
		chain:    chain,
		pool:     common.HexToAddress(selection.PoolAddress),
		ticker:   ticker,
		name:     name,
		sink:     sink,
		logger:   logger.WithFields(map[string]interface{}{"venue": name, "ticker": ticker, "pool": selection.PoolAddress}),
		caller:   caller,
		native:   native,
		interval: interval,
		state: core.SessionState{
			Ticker: ticker,
			Venue:  name,
			Market: core.MarketDEX,
			Status: core.StatusDisconnected,
		},
		metrics: telemetry.GetGlobalMetrics(),
	}, nil
}

// Name returns the venue identifier, e.g. "dex:ethereum".
func (a *Adapter) Name() string { return a.name }

// OnStatusUpdate registers the status callback. Must be called before
// Connect.
func (a *Adapter) OnStatusUpdate(cb core.StatusCallback) {
	a.mu.Lock()
	a.statusCB = cb
	a.mu.Unlock()
}

// Connect starts the poll loop. The markets argument is accepted for
// interface symmetry; a pool adapter only ever serves the dex market.
func (a *Adapter) Connect(ctx context.Context, _ []core.MarketKind) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.transition(core.StatusConnecting, "")

	a.wg.Add(1)
	go a.pollLoop(loopCtx)
	return nil
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	// First poll runs immediately; the ticker paces the rest.
	a.pollOnce(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *Adapter) pollOnce(ctx context.Context) {
	start := time.Now()
	price, err := a.poolPrice(ctx)
	elapsed := time.Since(start)

	if a.metrics != nil && a.metrics.PollDuration != nil {
		a.metrics.PollDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("chain", a.chain.Name)))
	}
	if elapsed > slowPollThreshold {
		a.logger.Warn("Slow poll cycle", "elapsed", elapsed.String())
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if a.metrics != nil && a.metrics.RPCFailuresTotal != nil {
			a.metrics.RPCFailuresTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("chain", a.chain.Name)))
		}
		a.logger.Warn("Poll failed, skipping sample", "error", err)
		return
	}

	a.mu.Lock()
	wasConnected := a.state.Status == core.StatusConnected
	a.state.LastUpdateMs = time.Now().UnixMilli()
	a.mu.Unlock()
	if !wasConnected {
		a.transition(core.StatusConnected, "")
	}

	a.sink.UpdatePrice(a.ticker, a.name, core.PriceSample{
		Symbol:    a.ticker + "/USD",
		Price:     price,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (a *Adapter) poolPrice(ctx context.Context) (decimal.Decimal, error) {
	a.mu.Lock()
	meta := a.meta
	a.mu.Unlock()

	if meta == nil {
		var fetched PoolMeta
		err := retry.Do(ctx, retry.DefaultPolicy, apperrors.IsTransient, func() error {
			var err error
			fetched, err = fetchPoolMeta(ctx, a.caller, a.pool)
			return err
		})
		if err != nil {
			return decimal.Zero, err
		}
		a.mu.Lock()
		a.meta = &fetched
		a.mu.Unlock()
		meta = &fetched
	}

	var reserve0, reserve1 *big.Int
	err := retry.Do(ctx, retry.DefaultPolicy, apperrors.IsTransient, func() error {
		var err error
		reserve0, reserve1, err = fetchReserves(ctx, a.caller, a.pool)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	return PoolPrice(a.chain, *meta, reserve0, reserve1, func() (decimal.Decimal, error) {
		return a.native.Price(ctx)
	})
}

func (a *Adapter) transition(status core.VenueStatus, errMsg string) {
	a.mu.Lock()
	a.state.Status = status
	a.state.Error = errMsg
	state := a.state
	cb := a.statusCB
	a.mu.Unlock()

	if cb != nil {
		cb(core.StatusUpdate{
			Key:   core.SessionKey(a.ticker, a.name, core.MarketDEX),
			State: state,
		})
	}
}

// Disconnect stops the poll loop. The loop observes cancellation before its
// next tick, so teardown completes within one poll interval plus any
// in-flight RPC call.
func (a *Adapter) Disconnect(_ []core.MarketKind) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	a.mu.Unlock()

	cancel()
	a.wg.Wait()
	a.transition(core.StatusDisconnected, "")
}

// Reconnect restarts the poll loop.
func (a *Adapter) Reconnect(ctx context.Context, _ core.MarketKind) error {
	a.Disconnect(nil)
	return a.Connect(ctx, nil)
}

// IsConnected reports whether the loop is running and has produced at least
// one successful poll.
func (a *Adapter) IsConnected(market core.MarketKind) bool {
	if market != core.MarketDEX {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running && a.state.Status == core.StatusConnected
}

// CheckListing always reads unlisted for pool adapters; pools are selected
// explicitly through configuration, not discovered.
func (a *Adapter) CheckListing(_ context.Context, _ string) core.ListingResult {
	return core.ListingResult{}
}

// States snapshots the adapter's single session state.
func (a *Adapter) States() []core.SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return []core.SessionState{a.state}
}
