// Package core defines the shared model and interfaces of the arbitrage monitor
package core

import (
	"context"
)

// IPriceSink is the ingestion contract adapters emit into. The price store
// implements it; tests substitute recorders.
type IPriceSink interface {
	UpdatePrice(ticker, venue string, sample PriceSample)
}

// StatusCallback receives session state transitions.
type StatusCallback func(update StatusUpdate)

// IVenueAdapter normalizes an exchange or on-chain pool to a common update
// contract. Streaming (websocket) and polling (on-chain) variants share this
// capability set and the IPriceSink emission contract; little else.
type IVenueAdapter interface {
	// Name returns the venue identifier, e.g. "binance".
	Name() string

	// Connect starts sessions for the given markets. Individual session
	// failures surface through the status callback, not the return value.
	Connect(ctx context.Context, markets []MarketKind) error

	// Disconnect tears down the given markets cleanly. No reconnection is
	// scheduled afterwards.
	Disconnect(markets []MarketKind)

	// Reconnect forces a fresh connection attempt for one market and resets
	// its reconnect budget.
	Reconnect(ctx context.Context, market MarketKind) error

	IsConnected(market MarketKind) bool

	// CheckListing probes the venue's REST listing endpoints. It never
	// returns an error; probe failures read as unlisted.
	CheckListing(ctx context.Context, ticker string) ListingResult

	// OnStatusUpdate registers the session status callback. Must be called
	// before Connect.
	OnStatusUpdate(cb StatusCallback)

	// States snapshots the adapter's active session states.
	States() []SessionState
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IHealthMonitor defines the interface for health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}
