// Package streaming provides the shared websocket venue adapter. Each venue
// contributes a VenueSpec (URLs, subscribe frames, parsers, heartbeat); the
// adapter owns the sessions and the per-market state machine.
package streaming

import (
	"context"
	"sync"
	"time"

	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/retry"
	"arb_monitor/pkg/telemetry"
	"arb_monitor/pkg/websocket"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Reply is a control frame a parser wants sent back to the venue, typically
// a pong. At most one of JSON and Text is set.
type Reply struct {
	JSON interface{}
	Text []byte
}

// VenueSpec describes one venue's streaming protocol surface.
type VenueSpec struct {
	Name string

	// StreamURL builds the websocket URL for a ticker and market.
	StreamURL func(ticker string, market core.MarketKind) string

	// SubscribeFrame builds the frame sent after open. Nil means the
	// subscription is carried entirely in the URL.
	SubscribeFrame func(ticker string, market core.MarketKind) interface{}

	// ParseText turns a text frame into a sample (nil for control frames)
	// and an optional reply to send back.
	ParseText func(ticker string, market core.MarketKind, data []byte) (*core.PriceSample, *Reply)

	// ParseBinary decodes a binary frame. Nil when the venue never sends
	// binary payloads.
	ParseBinary func(ticker string, market core.MarketKind, data []byte) (*core.PriceSample, error)

	// PingInterval and PingFrame drive the app-level keepalive; zero
	// interval disables it. A []byte frame goes out as raw text.
	PingInterval time.Duration
	PingFrame    func(market core.MarketKind) interface{}

	// Probe implements the two REST listing calls.
	Probe func(ctx context.Context, ticker string) core.ListingResult
}

// Options tune session behavior; zero values fall back to production
// defaults (5s dial timeout, 5 attempt budget, capped full-jitter backoff).
type Options struct {
	ConnectTimeout time.Duration
	MaxAttempts    int
	Backoff        retry.BackoffPolicy
}

type marketSession struct {
	session *websocket.Session
	state   core.SessionState
}

// Adapter runs one websocket session per selected market and normalizes the
// venue's frames into PriceSamples.
type Adapter struct {
	spec   VenueSpec
	ticker string
	sink   core.IPriceSink
	logger core.ILogger
	opts   Options

	mu       sync.Mutex
	sessions map[core.MarketKind]*marketSession
	statusCB core.StatusCallback

	decodeFailCounter metric.Int64Counter
}

// NewAdapter creates a streaming adapter for one ticker on one venue.
func NewAdapter(spec VenueSpec, ticker string, sink core.IPriceSink, logger core.ILogger, opts Options) *Adapter {
	meter := telemetry.GetMeter("venue-streaming")
	decodeFail, _ := meter.Int64Counter("venue_decode_failures_total",
		metric.WithDescription("Total frames that failed venue-specific decoding"))

	return &Adapter{
		spec:              spec,
		ticker:            core.CanonicalTicker(ticker),
		sink:              sink,
		logger:            logger.WithFields(map[string]interface{}{"venue": spec.Name, "ticker": ticker}),
		opts:              opts,
		sessions:          make(map[core.MarketKind]*marketSession),
		decodeFailCounter: decodeFail,
	}
}

// Name returns the venue identifier.
func (a *Adapter) Name() string { return a.spec.Name }

// OnStatusUpdate registers the status callback. Must be called before
// Connect.
func (a *Adapter) OnStatusUpdate(cb core.StatusCallback) {
	a.mu.Lock()
	a.statusCB = cb
	a.mu.Unlock()
}

// Connect opens one session per market. Markets that are already running
// are left untouched.
func (a *Adapter) Connect(ctx context.Context, markets []core.MarketKind) error {
	for _, market := range markets {
		a.mu.Lock()
		if _, exists := a.sessions[market]; exists {
			a.mu.Unlock()
			continue
		}

		ms := &marketSession{
			state: core.SessionState{
				Ticker: a.ticker,
				Venue:  a.spec.Name,
				Market: market,
				Status: core.StatusConnecting,
			},
		}
		ms.session = a.buildSession(market)
		a.sessions[market] = ms
		a.mu.Unlock()

		ms.session.Start(ctx)
	}
	return nil
}

func (a *Adapter) buildSession(market core.MarketKind) *websocket.Session {
	cfg := websocket.Config{
		URL:            a.spec.StreamURL(a.ticker, market),
		ConnectTimeout: a.opts.ConnectTimeout,
		MaxAttempts:    a.opts.MaxAttempts,
		Backoff:        a.opts.Backoff,
		PingInterval:   a.spec.PingInterval,
	}
	if a.spec.PingFrame != nil {
		cfg.PingFrame = func() interface{} { return a.spec.PingFrame(market) }
	}

	logger := a.logger.WithField("market", string(market))
	session := websocket.NewSession(cfg, logger)

	if a.spec.SubscribeFrame != nil {
		session.OnConnected(func() {
			frame := a.spec.SubscribeFrame(a.ticker, market)
			if frame == nil {
				return
			}
			if err := session.Send(frame); err != nil {
				logger.Error("Failed to send subscribe frame", "error", err)
			}
		})
	}

	session.OnText(func(data []byte) {
		sample, reply := a.spec.ParseText(a.ticker, market, data)
		if reply != nil {
			a.sendReply(session, logger, reply)
		}
		if sample != nil {
			a.emitSample(market, sample)
		}
	})

	if a.spec.ParseBinary != nil {
		session.OnBinary(func(data []byte) {
			sample, err := a.spec.ParseBinary(a.ticker, market, data)
			if err != nil {
				a.decodeFailCounter.Add(context.Background(), 1,
					metric.WithAttributes(attribute.String("venue", a.spec.Name)))
				logger.Warn("Failed to decode binary frame", "error", err)
				return
			}
			if sample != nil {
				a.emitSample(market, sample)
			}
		})
	}

	session.OnStatus(func(status core.VenueStatus, attempt int, err error) {
		a.transition(market, status, attempt, err)
	})

	return session
}

func (a *Adapter) sendReply(session *websocket.Session, logger core.ILogger, reply *Reply) {
	var err error
	switch {
	case reply.Text != nil:
		err = session.SendText(reply.Text)
	case reply.JSON != nil:
		err = session.Send(reply.JSON)
	}
	if err != nil {
		logger.Debug("Failed to send heartbeat reply", "error", err)
	}
}

func (a *Adapter) emitSample(market core.MarketKind, sample *core.PriceSample) {
	s := *sample
	s.Venue = a.spec.Name
	s.Market = market
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().UnixMilli()
	}

	a.mu.Lock()
	if ms, ok := a.sessions[market]; ok {
		ms.state.LastUpdateMs = time.Now().UnixMilli()
	}
	a.mu.Unlock()

	a.sink.UpdatePrice(a.ticker, a.spec.Name, s)
}

func (a *Adapter) transition(market core.MarketKind, status core.VenueStatus, attempt int, err error) {
	a.mu.Lock()
	ms, ok := a.sessions[market]
	if !ok {
		a.mu.Unlock()
		return
	}
	ms.state.Status = status
	ms.state.ReconnectAttempts = attempt
	if err != nil {
		ms.state.Error = err.Error()
	} else if status == core.StatusConnected {
		ms.state.Error = ""
	}
	state := ms.state
	cb := a.statusCB
	a.mu.Unlock()

	if cb != nil {
		cb(core.StatusUpdate{
			Key:   core.SessionKey(a.ticker, a.spec.Name, market),
			State: state,
		})
	}
}

// Disconnect tears down the given markets with a clean close. No further
// reconnection is scheduled for them.
func (a *Adapter) Disconnect(markets []core.MarketKind) {
	for _, market := range markets {
		a.mu.Lock()
		ms, ok := a.sessions[market]
		if ok {
			delete(a.sessions, market)
		}
		a.mu.Unlock()
		if !ok {
			continue
		}
		ms.session.Stop()

		cb := a.statusCB
		if cb != nil {
			state := ms.state
			state.Status = core.StatusDisconnected
			state.Error = ""
			cb(core.StatusUpdate{
				Key:   core.SessionKey(a.ticker, a.spec.Name, market),
				State: state,
			})
		}
	}
}

// Reconnect forces a fresh attempt for one market and resets its budget.
func (a *Adapter) Reconnect(ctx context.Context, market core.MarketKind) error {
	a.mu.Lock()
	ms, ok := a.sessions[market]
	a.mu.Unlock()
	if !ok {
		return apperrors.ErrNotMonitored
	}
	ms.session.Reconnect(ctx)
	return nil
}

// IsConnected reports whether the market's session currently holds an open
// socket.
func (a *Adapter) IsConnected(market core.MarketKind) bool {
	a.mu.Lock()
	ms, ok := a.sessions[market]
	a.mu.Unlock()
	return ok && ms.session.IsConnected()
}

// CheckListing probes the venue's REST endpoints. Probe failures read as
// unlisted; the method never returns an error.
func (a *Adapter) CheckListing(ctx context.Context, ticker string) core.ListingResult {
	return a.spec.Probe(ctx, core.CanonicalTicker(ticker))
}

// States snapshots the adapter's active session states.
func (a *Adapter) States() []core.SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.SessionState, 0, len(a.sessions))
	for _, ms := range a.sessions {
		out = append(out, ms.state)
	}
	return out
}
