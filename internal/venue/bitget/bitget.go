// Package bitget adapts Bitget v2 public ticker channels. One websocket
// endpoint serves both markets; the instType arg selects SPOT or
// USDT-FUTURES. Heartbeats are literal ping/pong text frames.
package bitget

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/venue/streaming"
	httpclient "arb_monitor/pkg/http"

	"github.com/shopspring/decimal"
)

const Name = "bitget"

const (
	defaultWSURL    = "wss://ws.bitget.com/v2/ws/public"
	defaultRESTBase = "https://api.bitget.com"

	instTypeSpot    = "SPOT"
	instTypeFutures = "USDT-FUTURES"

	pingInterval = 30 * time.Second
)

var (
	pingPayload = []byte("ping")
	pongPayload = []byte("pong")
)

// Config carries endpoint overrides, primarily for tests.
type Config struct {
	WSURL        string
	RESTBase     string
	RateLimitRPS float64
}

func (c *Config) applyDefaults() {
	if c.WSURL == "" {
		c.WSURL = defaultWSURL
	}
	if c.RESTBase == "" {
		c.RESTBase = defaultRESTBase
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 10
	}
}

type venue struct {
	cfg    Config
	rest   *httpclient.Client
	logger core.ILogger
}

// NewAdapter creates a Bitget streaming adapter for one ticker.
func NewAdapter(ticker string, sink core.IPriceSink, logger core.ILogger, cfg Config, opts streaming.Options) *streaming.Adapter {
	return streaming.NewAdapter(Spec(cfg, logger), ticker, sink, logger, opts)
}

// Spec builds the Bitget venue protocol description.
func Spec(cfg Config, logger core.ILogger) streaming.VenueSpec {
	cfg.applyDefaults()
	v := &venue{
		cfg:    cfg,
		rest:   httpclient.NewClient(cfg.RESTBase, httpclient.DefaultTimeout, cfg.RateLimitRPS),
		logger: logger.WithField("venue", Name),
	}

	return streaming.VenueSpec{
		Name:           Name,
		StreamURL:      func(string, core.MarketKind) string { return cfg.WSURL },
		SubscribeFrame: subscribeFrame,
		ParseText:      v.parseText,
		PingInterval:   pingInterval,
		PingFrame:      func(core.MarketKind) interface{} { return pingPayload },
		Probe:          v.probe,
	}
}

// Symbol returns the Bitget symbol for a ticker; both markets use the plain
// concatenated form.
func Symbol(ticker string) string {
	return core.CanonicalTicker(ticker) + "USDT"
}

func instTypeFor(market core.MarketKind) string {
	if market == core.MarketFutures {
		return instTypeFutures
	}
	return instTypeSpot
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

func subscribeFrame(ticker string, market core.MarketKind) interface{} {
	return map[string]interface{}{
		"op": "subscribe",
		"args": []subscribeArg{{
			InstType: instTypeFor(market),
			Channel:  "ticker",
			InstID:   Symbol(ticker),
		}},
	}
}

// push is the server data frame. Event frames (subscribe acks, errors)
// carry "event" instead of "action".
type push struct {
	Action string `json:"action"`
	Event  string `json:"event"`
	Arg    struct {
		InstType string `json:"instType"`
		InstID   string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		InstID     string `json:"instId"`
		LastPr     string `json:"lastPr"`
		BaseVolume string `json:"baseVolume"`
		TS         string `json:"ts"`
	} `json:"data"`
	TS int64 `json:"ts"`
}

func (v *venue) parseText(ticker string, market core.MarketKind, data []byte) (*core.PriceSample, *streaming.Reply) {
	// Literal heartbeat frames never parse as JSON.
	if bytes.Equal(data, pongPayload) {
		return nil, nil
	}
	if bytes.Equal(data, pingPayload) {
		return nil, &streaming.Reply{Text: pongPayload}
	}

	var msg push
	if err := json.Unmarshal(data, &msg); err != nil {
		v.logger.Warn("Failed to parse message", "error", err)
		return nil, nil
	}

	if msg.Event == "error" {
		v.logger.Warn("Server rejected request", "payload", string(data))
		return nil, nil
	}
	if msg.Event != "" || len(msg.Data) == 0 {
		return nil, nil
	}
	if msg.Arg.InstType != instTypeFor(market) {
		return nil, nil
	}

	tick := msg.Data[0]
	price, err := decimal.NewFromString(tick.LastPr)
	if err != nil {
		v.logger.Warn("Invalid price in ticker push", "price", tick.LastPr)
		return nil, nil
	}

	ts := msg.TS
	if parsed, err := decimal.NewFromString(tick.TS); err == nil {
		ts = parsed.IntPart()
	}

	sample := &core.PriceSample{
		Symbol:    tick.InstID,
		Price:     price,
		Timestamp: ts,
	}
	if vol, err := decimal.NewFromString(tick.BaseVolume); err == nil {
		sample.Volume24h = vol
	}
	return sample, nil
}

// listingResponse is the shared v2 REST envelope. Unknown symbols come back
// HTTP 200 with a non-zero code.
type listingResponse struct {
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
}

func (r *listingResponse) listed() bool {
	if r.Code != "00000" {
		return false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(r.Data, &items); err == nil {
		return len(items) > 0
	}
	return len(r.Data) > 0 && !bytes.Equal(r.Data, []byte("null"))
}

// probe issues the two REST listing calls; failures read as unlisted.
func (v *venue) probe(ctx context.Context, ticker string) core.ListingResult {
	symbol := Symbol(ticker)
	result := core.ListingResult{Symbol: symbol}

	var spot listingResponse
	if err := v.rest.GetJSON(ctx, "/api/v2/spot/market/tickers",
		map[string]string{"symbol": symbol}, &spot); err == nil && spot.listed() {
		result.Spot = true
	}

	var futures listingResponse
	if err := v.rest.GetJSON(ctx, "/api/v2/mix/market/ticker",
		map[string]string{"symbol": symbol, "productType": instTypeFutures}, &futures); err == nil && futures.listed() {
		result.Futures = true
	}

	return result
}
