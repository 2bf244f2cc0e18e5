// Package api exposes the monitoring control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/manager"
	apperrors "arb_monitor/pkg/errors"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Monitor is the manager surface the HTTP layer drives.
type Monitor interface {
	StartMonitoringAuto(ctx context.Context, ticker string, threshold decimal.Decimal) error
	StartMonitoring(ctx context.Context, spec core.MonitoringSpec) error
	StopMonitoring(ticker string) error
	GetConnectionStatus(ticker string) map[string]core.SessionState
	GetMonitoringInfo() []manager.MonitoringInfo
	HealthCheck() manager.HealthReport
}

// PriceReader is the store surface used by status queries.
type PriceReader interface {
	GetPrices(ticker string) map[string]core.PriceSample
	GetOpportunities(ticker string) []core.ArbitrageOpportunity
}

// Discoverer resolves a ticker into a monitoring spec.
type Discoverer interface {
	Discover(ctx context.Context, ticker string, threshold decimal.Decimal) (*core.DiscoveryResult, error)
}

// Config carries the server's listen address and timeouts.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP API over the connection manager, price store, and
// discovery service.
type Server struct {
	cfg       Config
	monitor   Monitor
	prices    PriceReader
	discovery Discoverer
	exchanges []string
	logger    core.ILogger
	hm        core.IHealthMonitor
	srv       *http.Server
}

// NewServer builds the server. exchanges is the list reported by
// /api/exchanges/supported.
func NewServer(cfg Config, monitor Monitor, prices PriceReader, discovery Discoverer, exchanges []string, logger core.ILogger) *Server {
	return &Server{
		cfg:       cfg,
		monitor:   monitor,
		prices:    prices,
		discovery: discovery,
		exchanges: exchanges,
		logger:    logger.WithField("component", "api"),
	}
}

// SetHealthMonitor attaches an aggregated component monitor; /health then
// reports its component statuses alongside the session summary.
func (s *Server) SetHealthMonitor(hm core.IHealthMonitor) {
	s.hm = hm
}

// Handler builds the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/monitoring/start", s.requireMethod(http.MethodPost, s.handleStart))
	mux.HandleFunc("/api/monitoring/stop", s.requireMethod(http.MethodPost, s.handleStop))
	mux.HandleFunc("/api/monitoring/status", s.requireMethod(http.MethodGet, s.handleStatus))
	mux.HandleFunc("/api/token/discover", s.requireMethod(http.MethodPost, s.handleDiscover))
	mux.HandleFunc("/api/token/config", s.requireMethod(http.MethodPost, s.handleTokenConfig))
	mux.HandleFunc("/api/exchanges/supported", s.requireMethod(http.MethodGet, s.handleExchanges))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		s.logger.Info("Starting API server", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next(w, r)
	}
}

type startRequest struct {
	Ticker           string               `json:"ticker"`
	ThresholdPercent *float64             `json:"thresholdPercent"`
	UseAutoConfig    *bool                `json:"useAutoConfig"`
	CustomConfig     *core.MonitoringSpec `json:"customConfig"`
}

type tickerRequest struct {
	Ticker           string   `json:"ticker"`
	ThresholdPercent *float64 `json:"thresholdPercent"`
}

func thresholdOf(pct *float64) decimal.Decimal {
	if pct == nil {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(*pct)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ticker := core.CanonicalTicker(req.Ticker)
	if ticker == "" {
		s.writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	useAuto := req.UseAutoConfig == nil || *req.UseAutoConfig
	if !useAuto && req.CustomConfig == nil {
		s.writeError(w, http.StatusBadRequest, "either useAutoConfig or customConfig is required")
		return
	}

	threshold := thresholdOf(req.ThresholdPercent)

	var err error
	if useAuto {
		err = s.monitor.StartMonitoringAuto(r.Context(), ticker, threshold)
	} else {
		spec := *req.CustomConfig
		spec.Ticker = ticker
		if spec.ThresholdPercent.IsZero() {
			spec.ThresholdPercent = threshold
		}
		err = s.monitor.StartMonitoring(r.Context(), spec)
	}
	if err != nil {
		s.writeMonitorError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "monitoring started for " + ticker,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req tickerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ticker := core.CanonicalTicker(req.Ticker)
	if ticker == "" {
		s.writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	if err := s.monitor.StopMonitoring(ticker); err != nil {
		s.writeMonitorError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "monitoring stopped for " + ticker,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ticker := core.CanonicalTicker(r.URL.Query().Get("ticker"))

	if ticker == "" {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"monitoring": s.monitor.GetMonitoringInfo(),
			"health":     s.monitor.HealthCheck(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":        ticker,
		"connections":   s.monitor.GetConnectionStatus(ticker),
		"prices":        s.prices.GetPrices(ticker),
		"opportunities": s.prices.GetOpportunities(ticker),
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req tickerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ticker := core.CanonicalTicker(req.Ticker)
	if ticker == "" {
		s.writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	result, err := s.discovery.Discover(r.Context(), ticker, thresholdOf(req.ThresholdPercent))
	if err != nil {
		s.logger.Error("discovery failed", "ticker", ticker, "error", err)
		s.writeError(w, http.StatusInternalServerError, "discovery failed")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTokenConfig(w http.ResponseWriter, r *http.Request) {
	var req tickerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ticker := core.CanonicalTicker(req.Ticker)
	if ticker == "" {
		s.writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	result, err := s.discovery.Discover(r.Context(), ticker, thresholdOf(req.ThresholdPercent))
	if err != nil {
		s.logger.Error("discovery failed", "ticker", ticker, "error", err)
		s.writeError(w, http.StatusInternalServerError, "discovery failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":          ticker,
		"recommended":     result.Spec,
		"recommendations": result.Recommendations,
	})
}

func (s *Server) handleExchanges(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"exchanges": s.exchanges,
		"total":     len(s.exchanges),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := s.monitor.HealthCheck()
	healthy := report.Healthy

	payload := map[string]interface{}{
		"healthy":  healthy,
		"sessions": report.Sessions,
		"byStatus": report.ByStatus,
		"tickers":  report.Tickers,
	}
	if s.hm != nil {
		payload["components"] = s.hm.GetStatus()
		if !s.hm.IsHealthy() {
			healthy = false
			payload["healthy"] = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, payload)
}

// writeMonitorError maps manager failures onto HTTP codes. Caller mistakes
// are 400s; everything else is a 500 with a short message.
func (s *Server) writeMonitorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrMissingTicker),
		errors.Is(err, apperrors.ErrUnknownVenue),
		errors.Is(err, apperrors.ErrAlreadyMonitored),
		errors.Is(err, apperrors.ErrNotMonitored):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("monitoring request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encoding failed", "error", err)
	}
}
