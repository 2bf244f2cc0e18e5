// Package binance adapts Binance spot and USDT-margined futures ticker
// streams. Subscription is carried entirely in the stream URL; both markets
// speak the 24h-ticker JSON shape.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"arb_monitor/internal/core"
	"arb_monitor/internal/venue/streaming"
	httpclient "arb_monitor/pkg/http"

	"github.com/shopspring/decimal"
)

const Name = "binance"

const (
	defaultSpotWSBase      = "wss://stream.binance.com:9443/ws"
	defaultFuturesWSBase   = "wss://fstream.binance.com/ws"
	defaultSpotRESTBase    = "https://api.binance.com"
	defaultFuturesRESTBase = "https://fapi.binance.com"
)

// Config carries endpoint overrides, primarily for tests.
type Config struct {
	SpotWSBase      string
	FuturesWSBase   string
	SpotRESTBase    string
	FuturesRESTBase string
	RateLimitRPS    float64
}

func (c *Config) applyDefaults() {
	if c.SpotWSBase == "" {
		c.SpotWSBase = defaultSpotWSBase
	}
	if c.FuturesWSBase == "" {
		c.FuturesWSBase = defaultFuturesWSBase
	}
	if c.SpotRESTBase == "" {
		c.SpotRESTBase = defaultSpotRESTBase
	}
	if c.FuturesRESTBase == "" {
		c.FuturesRESTBase = defaultFuturesRESTBase
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 10
	}
}

type venue struct {
	cfg         Config
	spotREST    *httpclient.Client
	futuresREST *httpclient.Client
	logger      core.ILogger
}

// NewAdapter creates a Binance streaming adapter for one ticker.
func NewAdapter(ticker string, sink core.IPriceSink, logger core.ILogger, cfg Config, opts streaming.Options) *streaming.Adapter {
	return streaming.NewAdapter(Spec(cfg, logger), ticker, sink, logger, opts)
}

// Spec builds the Binance venue protocol description.
func Spec(cfg Config, logger core.ILogger) streaming.VenueSpec {
	cfg.applyDefaults()
	v := &venue{
		cfg:         cfg,
		spotREST:    httpclient.NewClient(cfg.SpotRESTBase, httpclient.DefaultTimeout, cfg.RateLimitRPS),
		futuresREST: httpclient.NewClient(cfg.FuturesRESTBase, httpclient.DefaultTimeout, cfg.RateLimitRPS),
		logger:      logger.WithField("venue", Name),
	}

	return streaming.VenueSpec{
		Name:      Name,
		StreamURL: v.streamURL,
		ParseText: v.parseTicker,
		Probe:     v.probe,
	}
}

// Symbol returns the Binance pair symbol for a ticker.
func Symbol(ticker string) string {
	return core.CanonicalTicker(ticker) + "USDT"
}

func (v *venue) streamURL(ticker string, market core.MarketKind) string {
	stream := strings.ToLower(Symbol(ticker)) + "@ticker"
	if market == core.MarketFutures {
		return fmt.Sprintf("%s/%s", v.cfg.FuturesWSBase, stream)
	}
	return fmt.Sprintf("%s/%s", v.cfg.SpotWSBase, stream)
}

// tickerMessage is the 24h rolling window ticker event.
type tickerMessage struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	Volume    string `json:"v"`
}

func (v *venue) parseTicker(ticker string, market core.MarketKind, data []byte) (*core.PriceSample, *streaming.Reply) {
	var msg tickerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		v.logger.Warn("Failed to parse ticker message", "error", err)
		return nil, nil
	}
	if msg.EventType != "24hrTicker" || msg.LastPrice == "" {
		return nil, nil
	}

	price, err := decimal.NewFromString(msg.LastPrice)
	if err != nil {
		v.logger.Warn("Invalid price in ticker message", "price", msg.LastPrice)
		return nil, nil
	}

	sample := &core.PriceSample{
		Symbol:    msg.Symbol,
		Price:     price,
		Timestamp: msg.EventTime,
	}
	if vol, err := decimal.NewFromString(msg.Volume); err == nil {
		sample.Volume24h = vol
	}
	return sample, nil
}

// probe issues the two REST listing calls. A 2xx price lookup means the
// symbol trades on that market; any failure reads as unlisted.
func (v *venue) probe(ctx context.Context, ticker string) core.ListingResult {
	symbol := Symbol(ticker)
	result := core.ListingResult{Symbol: symbol}
	params := map[string]string{"symbol": symbol}

	if _, err := v.spotREST.Get(ctx, "/api/v3/ticker/price", params); err == nil {
		result.Spot = true
	}
	if _, err := v.futuresREST.Get(ctx, "/fapi/v1/ticker/price", params); err == nil {
		result.Futures = true
	}

	return result
}
