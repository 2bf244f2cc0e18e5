package dexpool

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const nativePriceTTL = 3 * time.Second

// NativePriceCache serves a chain's wrapped-native price in stable terms
// from its native/USDT pool. Reads within the TTL share one cached value;
// concurrent refreshes collapse into a single RPC round trip.
type NativePriceCache struct {
	chain  Chain
	caller ContractCaller
	ttl    time.Duration

	group singleflight.Group

	mu        sync.Mutex
	meta      *PoolMeta
	price     decimal.Decimal
	fetchedAt time.Time
}

// NewNativePriceCache creates a cache for one chain. A zero ttl selects the
// 3s default.
func NewNativePriceCache(chain Chain, caller ContractCaller, ttl time.Duration) *NativePriceCache {
	if ttl <= 0 {
		ttl = nativePriceTTL
	}
	return &NativePriceCache{chain: chain, caller: caller, ttl: ttl}
}

// Price returns the wrapped-native price, refreshing when the cached value
// has aged out.
func (c *NativePriceCache) Price(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		price := c.price
		c.mu.Unlock()
		return price, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("native", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (c *NativePriceCache) refresh(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	meta := c.meta
	c.mu.Unlock()

	if meta == nil {
		fetched, err := fetchPoolMeta(ctx, c.caller, c.chain.NativeStablePool)
		if err != nil {
			return decimal.Zero, err
		}
		meta = &fetched
	}

	reserve0, reserve1, err := fetchReserves(ctx, c.caller, c.chain.NativeStablePool)
	if err != nil {
		return decimal.Zero, err
	}

	// The native/stable pool prices the wrapped native through the stable
	// path; no further fallback applies here.
	price, err := PoolPrice(c.chain, *meta, reserve0, reserve1, nil)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.meta = meta
	c.price = price
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return price, nil
}
