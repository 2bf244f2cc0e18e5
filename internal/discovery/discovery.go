// Package discovery probes every supported venue for a ticker and turns the
// listing picture into a monitoring spec.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/venue"
	"arb_monitor/internal/venue/dexpool"
	"arb_monitor/internal/venue/streaming"
	"arb_monitor/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const defaultProbeTimeout = 10 * time.Second

// discardSink satisfies the sink contract for probe-only adapters. Listing
// probes never emit samples.
type discardSink struct{}

func (discardSink) UpdatePrice(string, string, core.PriceSample) {}

// Service runs listing discovery across the venue registry and the supported
// chains.
type Service struct {
	registry     *venue.Registry
	logger       core.ILogger
	probeTimeout time.Duration
}

// NewService creates a discovery service over the given registry.
func NewService(registry *venue.Registry, logger core.ILogger) *Service {
	return &Service{
		registry:     registry,
		logger:       logger.WithField("component", "discovery"),
		probeTimeout: defaultProbeTimeout,
	}
}

// Discover probes all venues in parallel and builds the monitoring spec for
// the ticker. Probe failures read as unlisted; Discover itself only fails on
// context cancellation. The threshold is carried through verbatim.
func (s *Service) Discover(ctx context.Context, ticker string, threshold decimal.Decimal) (*core.DiscoveryResult, error) {
	ticker = core.CanonicalTicker(ticker)
	started := time.Now()

	names := s.registry.Names()
	listings := make([]core.ListingResult, len(names))

	g, probeCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			adapter, err := s.registry.Build(name, ticker, discardSink{}, s.logger, streaming.Options{})
			if err != nil {
				return err
			}
			callCtx, cancel := context.WithTimeout(probeCtx, s.probeTimeout)
			defer cancel()
			listings[i] = adapter.CheckListing(callCtx, ticker)
			if m := telemetry.GetGlobalMetrics(); m != nil && m.ListingProbesTotal != nil {
				m.ListingProbesTotal.Add(callCtx, 1, metric.WithAttributes(attribute.String("venue", name)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &core.DiscoveryResult{
		Ticker:   ticker,
		Listings: make(map[string]core.ListingResult, len(names)),
	}

	var selections []core.VenueSelection
	for i, name := range names {
		listing := listings[i]
		result.Listings[name] = listing

		var markets []core.MarketKind
		if listing.Spot {
			markets = append(markets, core.MarketSpot)
		}
		if listing.Futures {
			markets = append(markets, core.MarketFutures)
		}
		if len(markets) > 0 {
			selections = append(selections, core.VenueSelection{Venue: name, Markets: markets})
		}
	}

	// On-chain listing is not probed yet; chains are only monitored through
	// explicitly configured pools.
	var pools []core.PoolSelection
	for _, chain := range dexpool.SupportedChains() {
		if s.chainListed(ctx, chain, ticker) {
			pools = append(pools, core.PoolSelection{Chain: chain})
		}
	}

	result.Spec = core.MonitoringSpec{
		Ticker:           ticker,
		Venues:           selections,
		Pools:            pools,
		ThresholdPercent: threshold,
	}
	result.Recommendations = s.recommend(ticker, names, result.Listings)

	s.logger.Info("discovery completed",
		"ticker", ticker,
		"venues", len(selections),
		"elapsed", time.Since(started).String())
	return result, nil
}

// chainListed reports whether a chain has a discoverable pool for the
// ticker. On-chain symbol resolution is unsolved, so every chain currently
// reads as unlisted.
func (s *Service) chainListed(_ context.Context, _ string, _ string) bool {
	return false
}

func (s *Service) recommend(ticker string, names []string, listings map[string]core.ListingResult) []string {
	var listed, futures []string
	for _, name := range names {
		l := listings[name]
		if l.Spot || l.Futures {
			listed = append(listed, name)
		}
		if l.Futures {
			futures = append(futures, name)
		}
	}
	sort.Strings(listed)

	if len(listed) == 0 {
		return []string{fmt.Sprintf("%s is not listed on any supported exchange", ticker)}
	}

	recs := []string{
		fmt.Sprintf("%s is listed on %d of %d exchanges: %s",
			ticker, len(listed), len(names), strings.Join(listed, ", ")),
	}
	if len(listed) < 2 {
		recs = append(recs, "at least two venues are required for cross-venue arbitrage")
	}
	if len(futures) == 0 {
		recs = append(recs, "no futures markets list this ticker; monitoring spot only")
	}
	return recs
}
