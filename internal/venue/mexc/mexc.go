// Package mexc adapts MEXC spot and futures streams. The spot deals channel
// pushes protobuf-wire binary frames decoded by pkg/wire; the futures edge
// endpoint speaks JSON.
package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/venue/streaming"
	httpclient "arb_monitor/pkg/http"
	"arb_monitor/pkg/wire"

	"github.com/shopspring/decimal"
)

const Name = "mexc"

const (
	defaultSpotWSURL       = "wss://wbs-api.mexc.com/ws"
	defaultFuturesWSURL    = "wss://contract.mexc.com/edge"
	defaultSpotRESTBase    = "https://api.mexc.com"
	defaultFuturesRESTBase = "https://contract.mexc.com"

	// Aggregated deals push channel, 100ms batches, protobuf encoded.
	spotDealsTopic = "spot@public.aggre.deals.v3.api.pb@100ms@%s"

	pingInterval = 20 * time.Second
)

// Config carries endpoint overrides, primarily for tests.
type Config struct {
	SpotWSURL       string
	FuturesWSURL    string
	SpotRESTBase    string
	FuturesRESTBase string
	RateLimitRPS    float64
}

func (c *Config) applyDefaults() {
	if c.SpotWSURL == "" {
		c.SpotWSURL = defaultSpotWSURL
	}
	if c.FuturesWSURL == "" {
		c.FuturesWSURL = defaultFuturesWSURL
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

// NewAdapter creates a MEXC streaming adapter for one ticker.
func NewAdapter(ticker string, sink core.IPriceSink, logger core.ILogger, cfg Config, opts streaming.Options) *streaming.Adapter {
	return streaming.NewAdapter(Spec(cfg, logger), ticker, sink, logger, opts)
}

// Spec builds the MEXC venue protocol description.
func Spec(cfg Config, logger core.ILogger) streaming.VenueSpec {
	cfg.applyDefaults()
	v := &venue{
		cfg:         cfg,
		spotREST:    httpclient.NewClient(cfg.SpotRESTBase, httpclient.DefaultTimeout, cfg.RateLimitRPS),
		futuresREST: httpclient.NewClient(cfg.FuturesRESTBase, httpclient.DefaultTimeout, cfg.RateLimitRPS),
		logger:      logger.WithField("venue", Name),
	}

	return streaming.VenueSpec{
		Name:           Name,
		StreamURL:      v.streamURL,
		SubscribeFrame: v.subscribeFrame,
		ParseText:      v.parseText,
		ParseBinary:    v.parseBinary,
		PingInterval:   pingInterval,
		PingFrame: func(core.MarketKind) interface{} {
			return map[string]string{"method": "ping"}
		},
		Probe: v.probe,
	}
}

// SpotSymbol returns the MEXC spot pair symbol for a ticker.
func SpotSymbol(ticker string) string {
	return core.CanonicalTicker(ticker) + "USDT"
}

// FuturesSymbol returns the MEXC contract symbol for a ticker.
func FuturesSymbol(ticker string) string {
	return core.CanonicalTicker(ticker) + "_USDT"
}

func (v *venue) streamURL(_ string, market core.MarketKind) string {
	if market == core.MarketFutures {
		return v.cfg.FuturesWSURL
	}
	return v.cfg.SpotWSURL
}

func (v *venue) subscribeFrame(ticker string, market core.MarketKind) interface{} {
	if market == core.MarketFutures {
		return map[string]interface{}{
			"method": "sub.ticker",
			"param":  map[string]string{"symbol": FuturesSymbol(ticker)},
		}
	}
	return map[string]interface{}{
		"method": "SUBSCRIPTION",
		"params": []string{fmt.Sprintf(spotDealsTopic, SpotSymbol(ticker))},
	}
}

// parseBinary decodes a spot deals push. The wrapper's first deal carries
// the latest trade price.
func (v *venue) parseBinary(ticker string, _ core.MarketKind, data []byte) (*core.PriceSample, error) {
	wrapper, err := wire.DecodeWrapper(data)
	if err != nil {
		return nil, err
	}
	deal := wrapper.FirstDeal()
	if deal == nil {
		return nil, nil
	}

	price, err := decimal.NewFromString(deal.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid deal price %q: %w", deal.Price, err)
	}

	symbol := wrapper.Symbol
	if symbol == "" {
		symbol = SpotSymbol(ticker)
	}
	return &core.PriceSample{
		Symbol:    symbol,
		Price:     price,
		Timestamp: deal.Time,
	}, nil
}

// futuresTicker is the push.ticker payload on the contract endpoint.
type futuresTicker struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Data    struct {
		Symbol    string  `json:"symbol"`
		LastPrice float64 `json:"lastPrice"`
		Volume24  float64 `json:"volume24"`
		Timestamp int64   `json:"timestamp"`
	} `json:"data"`
}

func (v *venue) parseText(ticker string, market core.MarketKind, data []byte) (*core.PriceSample, *streaming.Reply) {
	if market == core.MarketSpot {
		// Spot text frames are subscription acks and PONG responses.
		return nil, nil
	}

	var msg futuresTicker
	if err := json.Unmarshal(data, &msg); err != nil {
		v.logger.Warn("Failed to parse futures message", "error", err)
		return nil, nil
	}
	if msg.Channel != "push.ticker" {
		return nil, nil
	}

	symbol := msg.Data.Symbol
	if symbol == "" {
		symbol = msg.Symbol
	}
	return &core.PriceSample{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(msg.Data.LastPrice),
		Timestamp: msg.Data.Timestamp,
		Volume24h: decimal.NewFromFloat(msg.Data.Volume24),
	}, nil
}

type contractDetail struct {
	Success bool `json:"success"`
}

// probe issues the two REST listing calls; failures read as unlisted.
func (v *venue) probe(ctx context.Context, ticker string) core.ListingResult {
	result := core.ListingResult{Symbol: SpotSymbol(ticker)}

	if _, err := v.spotREST.Get(ctx, "/api/v3/ticker/price",
		map[string]string{"symbol": SpotSymbol(ticker)}); err == nil {
		result.Spot = true
	}

	var detail contractDetail
	if err := v.futuresREST.GetJSON(ctx, "/api/v1/contract/detail",
		map[string]string{"symbol": FuturesSymbol(ticker)}, &detail); err == nil && detail.Success {
		result.Futures = true
	}

	return result
}
