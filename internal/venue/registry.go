// Package venue resolves venue names to adapter constructors.
package venue

import (
	"sort"

	"arb_monitor/internal/core"
	"arb_monitor/internal/venue/binance"
	"arb_monitor/internal/venue/bitget"
	"arb_monitor/internal/venue/gate"
	"arb_monitor/internal/venue/mexc"
	"arb_monitor/internal/venue/streaming"
	apperrors "arb_monitor/pkg/errors"
)

// Factory builds an adapter bound to one ticker.
type Factory func(ticker string, sink core.IPriceSink, logger core.ILogger, opts streaming.Options) core.IVenueAdapter

// Overrides carries optional per-venue endpoint overrides from configuration.
// Empty fields fall through to each venue's production defaults.
type Overrides struct {
	SpotWSURL          string
	FuturesWSURL       string
	RestBaseURL        string
	FuturesRestBaseURL string
	RateLimitRPS       float64
}

// Registry maps venue names to their adapter factories.
type Registry struct {
	factories map[string]Factory
	names     []string
}

// NewRegistry builds the registry for the supported exchange venues.
// overrides may be nil.
func NewRegistry(overrides map[string]Overrides) *Registry {
	ov := func(name string) Overrides {
		if overrides == nil {
			return Overrides{}
		}
		return overrides[name]
	}

	factories := map[string]Factory{
		binance.Name: func(ticker string, sink core.IPriceSink, l core.ILogger, opts streaming.Options) core.IVenueAdapter {
			o := ov(binance.Name)
			return binance.NewAdapter(ticker, sink, l, binance.Config{
				SpotWSBase:      o.SpotWSURL,
				FuturesWSBase:   o.FuturesWSURL,
				SpotRESTBase:    o.RestBaseURL,
				FuturesRESTBase: o.FuturesRestBaseURL,
				RateLimitRPS:    o.RateLimitRPS,
			}, opts)
		},
		mexc.Name: func(ticker string, sink core.IPriceSink, l core.ILogger, opts streaming.Options) core.IVenueAdapter {
			o := ov(mexc.Name)
			return mexc.NewAdapter(ticker, sink, l, mexc.Config{
				SpotWSURL:       o.SpotWSURL,
				FuturesWSURL:    o.FuturesWSURL,
				SpotRESTBase:    o.RestBaseURL,
				FuturesRESTBase: o.FuturesRestBaseURL,
				RateLimitRPS:    o.RateLimitRPS,
			}, opts)
		},
		gate.Name: func(ticker string, sink core.IPriceSink, l core.ILogger, opts streaming.Options) core.IVenueAdapter {
			o := ov(gate.Name)
			return gate.NewAdapter(ticker, sink, l, gate.Config{
				SpotWSURL:    o.SpotWSURL,
				FuturesWSURL: o.FuturesWSURL,
				RESTBase:     o.RestBaseURL,
				RateLimitRPS: o.RateLimitRPS,
			}, opts)
		},
		bitget.Name: func(ticker string, sink core.IPriceSink, l core.ILogger, opts streaming.Options) core.IVenueAdapter {
			o := ov(bitget.Name)
			return bitget.NewAdapter(ticker, sink, l, bitget.Config{
				WSURL:        o.SpotWSURL,
				RESTBase:     o.RestBaseURL,
				RateLimitRPS: o.RateLimitRPS,
			}, opts)
		},
	}

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{factories: factories, names: names}
}

// Names lists the supported venue names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Build constructs an adapter for the named venue.
func (r *Registry) Build(name, ticker string, sink core.IPriceSink, logger core.ILogger, opts streaming.Options) (core.IVenueAdapter, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, apperrors.ErrUnknownVenue
	}
	return factory(ticker, sink, logger, opts), nil
}
