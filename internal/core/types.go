package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MarketKind identifies which market segment a sample or session belongs to.
type MarketKind string

const (
	MarketSpot    MarketKind = "spot"
	MarketFutures MarketKind = "futures"
	MarketDEX     MarketKind = "dex"
)

// VenueStatus is the lifecycle state of a single (venue, market) session.
type VenueStatus string

const (
	StatusConnecting   VenueStatus = "connecting"
	StatusConnected    VenueStatus = "connected"
	StatusDisconnected VenueStatus = "disconnected"
	StatusError        VenueStatus = "error"
)

// CanonicalTicker normalizes a user-supplied ticker to its canonical
// uppercase form.
func CanonicalTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// PriceSample is one normalized price observation from a venue. Only the
// latest sample per (ticker, venue) is retained downstream.
type PriceSample struct {
	Venue     string          `json:"venue"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	Market    MarketKind      `json:"market"`
	Volume24h decimal.Decimal `json:"volume24h,omitempty"`
}

// SessionState mirrors the live state of one adapter session.
type SessionState struct {
	Ticker            string      `json:"ticker"`
	Venue             string      `json:"venue"`
	Market            MarketKind  `json:"market"`
	Status            VenueStatus `json:"status"`
	LastUpdateMs      int64       `json:"lastUpdateMs"`
	Error             string      `json:"error,omitempty"`
	ReconnectAttempts int         `json:"reconnectAttempts"`
}

// SessionKey derives the opaque registry key for a session.
func SessionKey(ticker, venue string, market MarketKind) string {
	return ticker + "|" + venue + "|" + string(market)
}

// StatusUpdate is delivered to status subscribers on every session
// transition.
type StatusUpdate struct {
	Key   string       `json:"key"`
	State SessionState `json:"state"`
}

// VenueSelection names a venue together with the markets to activate on it.
type VenueSelection struct {
	Venue   string       `json:"venue"`
	Markets []MarketKind `json:"markets"`
}

// PoolSelection identifies one on-chain AMM pool to poll.
type PoolSelection struct {
	Chain       string `json:"chain"`
	PoolAddress string `json:"poolAddress"`
}

// MonitoringSpec is the resolved description of one monitoring session.
type MonitoringSpec struct {
	Ticker           string           `json:"ticker"`
	Venues           []VenueSelection `json:"venues"`
	Pools            []PoolSelection  `json:"pools,omitempty"`
	ThresholdPercent decimal.Decimal  `json:"thresholdPercent"`
}

// ArbitrageOpportunity pairs a buy-side and a sell-side sample whose spread
// clears the per-ticker threshold. Buy price is never above sell price.
type ArbitrageOpportunity struct {
	Buy           PriceSample     `json:"buy"`
	Sell          PriceSample     `json:"sell"`
	SpreadPercent decimal.Decimal `json:"spreadPercent"`
	Profit        decimal.Decimal `json:"profit"`
	Timestamp     int64           `json:"timestamp"`
}

// ListingResult reports which markets on a venue list a ticker.
type ListingResult struct {
	Spot    bool   `json:"spot"`
	Futures bool   `json:"futures"`
	Symbol  string `json:"symbol,omitempty"`
}

// DiscoveryResult is the outcome of probing every known venue for a ticker.
type DiscoveryResult struct {
	Ticker          string                   `json:"ticker"`
	Spec            MonitoringSpec           `json:"spec"`
	Listings        map[string]ListingResult `json:"listings"`
	Recommendations []string                 `json:"recommendations,omitempty"`
}
