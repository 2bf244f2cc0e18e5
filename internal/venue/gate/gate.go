// Package gate adapts Gate.io v4 spot and USDT futures ticker channels.
// Subscriptions are time/channel/event triples; pong control frames are
// dropped without emitting samples.
package gate

import (
	"context"
	"encoding/json"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/venue/streaming"
	httpclient "arb_monitor/pkg/http"

	"github.com/shopspring/decimal"
)

const Name = "gate"

const (
	defaultSpotWSURL    = "wss://api.gateio.ws/ws/v4/"
	defaultFuturesWSURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"
	defaultRESTBase     = "https://api.gateio.ws"

	spotTickersChannel    = "spot.tickers"
	futuresTickersChannel = "futures.tickers"

	pingInterval = 20 * time.Second
)

// Config carries endpoint overrides, primarily for tests.
type Config struct {
	SpotWSURL    string
	FuturesWSURL string
	RESTBase     string
	RateLimitRPS float64
}

func (c *Config) applyDefaults() {
	if c.SpotWSURL == "" {
		c.SpotWSURL = defaultSpotWSURL
	}
	if c.FuturesWSURL == "" {
		c.FuturesWSURL = defaultFuturesWSURL
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

// NewAdapter creates a Gate streaming adapter for one ticker.
func NewAdapter(ticker string, sink core.IPriceSink, logger core.ILogger, cfg Config, opts streaming.Options) *streaming.Adapter {
	return streaming.NewAdapter(Spec(cfg, logger), ticker, sink, logger, opts)
}

// Spec builds the Gate venue protocol description.
func Spec(cfg Config, logger core.ILogger) streaming.VenueSpec {
	cfg.applyDefaults()
	v := &venue{
		cfg:    cfg,
		rest:   httpclient.NewClient(cfg.RESTBase, httpclient.DefaultTimeout, cfg.RateLimitRPS),
		logger: logger.WithField("venue", Name),
	}

	return streaming.VenueSpec{
		Name:           Name,
		StreamURL:      v.streamURL,
		SubscribeFrame: v.subscribeFrame,
		ParseText:      v.parseText,
		PingInterval:   pingInterval,
		PingFrame:      pingFrame,
		Probe:          v.probe,
	}
}

// Symbol returns the Gate currency pair for a ticker. Both markets use the
// underscore form.
func Symbol(ticker string) string {
	return core.CanonicalTicker(ticker) + "_USDT"
}

func (v *venue) streamURL(_ string, market core.MarketKind) string {
	if market == core.MarketFutures {
		return v.cfg.FuturesWSURL
	}
	return v.cfg.SpotWSURL
}

func channelFor(market core.MarketKind) string {
	if market == core.MarketFutures {
		return futuresTickersChannel
	}
	return spotTickersChannel
}

// request is the client-to-server triple used for subscribes and pings.
type request struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event,omitempty"`
	Payload []string `json:"payload,omitempty"`
}

func (v *venue) subscribeFrame(ticker string, market core.MarketKind) interface{} {
	return request{
		Time:    time.Now().Unix(),
		Channel: channelFor(market),
		Event:   "subscribe",
		Payload: []string{Symbol(ticker)},
	}
}

func pingFrame(market core.MarketKind) interface{} {
	channel := "spot.ping"
	if market == core.MarketFutures {
		channel = "futures.ping"
	}
	return request{Time: time.Now().Unix(), Channel: channel}
}

// envelope is the server push frame.
type envelope struct {
	Time    int64           `json:"time"`
	TimeMS  int64           `json:"time_ms"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Result  json.RawMessage `json:"result"`
}

type spotTicker struct {
	CurrencyPair string `json:"currency_pair"`
	Last         string `json:"last"`
	BaseVolume   string `json:"base_volume"`
}

type futuresTicker struct {
	Contract  string `json:"contract"`
	Last      string `json:"last"`
	Volume24h string `json:"volume_24h"`
}

func (v *venue) parseText(ticker string, market core.MarketKind, data []byte) (*core.PriceSample, *streaming.Reply) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		v.logger.Warn("Failed to parse message", "error", err)
		return nil, nil
	}

	// Acks carry event "subscribe"; pongs come back on the *.pong channel.
	if env.Event != "update" || env.Channel != channelFor(market) {
		return nil, nil
	}

	ts := env.TimeMS
	if ts == 0 {
		ts = env.Time * 1000
	}

	if market == core.MarketFutures {
		return v.parseFuturesResult(env.Result, ts), nil
	}
	return v.parseSpotResult(env.Result, ts), nil
}

func (v *venue) parseSpotResult(result json.RawMessage, ts int64) *core.PriceSample {
	var tick spotTicker
	if err := json.Unmarshal(result, &tick); err != nil {
		v.logger.Warn("Failed to parse spot ticker", "error", err)
		return nil
	}
	return buildSample(tick.CurrencyPair, tick.Last, tick.BaseVolume, ts)
}

// parseFuturesResult handles both the array and the single-object shapes the
// futures endpoint pushes.
func (v *venue) parseFuturesResult(result json.RawMessage, ts int64) *core.PriceSample {
	var ticks []futuresTicker
	if err := json.Unmarshal(result, &ticks); err != nil {
		var single futuresTicker
		if err := json.Unmarshal(result, &single); err != nil {
			v.logger.Warn("Failed to parse futures ticker", "error", err)
			return nil
		}
		ticks = []futuresTicker{single}
	}
	if len(ticks) == 0 {
		return nil
	}
	tick := ticks[0]
	return buildSample(tick.Contract, tick.Last, tick.Volume24h, ts)
}

func buildSample(symbol, last, volume string, ts int64) *core.PriceSample {
	price, err := decimal.NewFromString(last)
	if err != nil {
		return nil
	}
	sample := &core.PriceSample{
		Symbol:    symbol,
		Price:     price,
		Timestamp: ts,
	}
	if vol, err := decimal.NewFromString(volume); err == nil {
		sample.Volume24h = vol
	}
	return sample
}

// probe issues the two REST listing calls; failures read as unlisted.
func (v *venue) probe(ctx context.Context, ticker string) core.ListingResult {
	symbol := Symbol(ticker)
	result := core.ListingResult{Symbol: symbol}

	if _, err := v.rest.Get(ctx, "/api/v4/spot/currency_pairs/"+symbol, nil); err == nil {
		result.Spot = true
	}
	if _, err := v.rest.Get(ctx, "/api/v4/futures/usdt/contracts/"+symbol, nil); err == nil {
		result.Futures = true
	}

	return result
}
