// Package bootstrap assembles the monitor's components from configuration
// and owns the process lifecycle.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"arb_monitor/internal/alert"
	"arb_monitor/internal/api"
	"arb_monitor/internal/config"
	"arb_monitor/internal/core"
	"arb_monitor/internal/discovery"
	"arb_monitor/internal/infrastructure/health"
	"arb_monitor/internal/manager"
	"arb_monitor/internal/store"
	"arb_monitor/internal/venue"
	"arb_monitor/internal/venue/dexpool"
	"arb_monitor/internal/venue/streaming"
	"arb_monitor/pkg/logging"
	"arb_monitor/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired application.
type App struct {
	Cfg       *config.Config
	Logger    core.ILogger
	Store     *store.PriceStore
	Manager   *manager.ConnectionManager
	Discovery *discovery.Service
	Server    *api.Server

	telemetry *telemetry.Telemetry
}

// NewApp loads configuration and wires every component. A non-zero
// portOverride replaces the configured server port.
func NewApp(configPath string, portOverride int) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if portOverride != 0 {
		cfg.Server.Port = portOverride
	}

	logger, err := logging.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	app := &App{Cfg: cfg, Logger: logger}

	if cfg.Telemetry.EnableMetrics {
		tel, err := telemetry.Setup(cfg.App.Name)
		if err != nil {
			logger.Warn("telemetry setup failed, continuing without metrics", "error", err)
		} else {
			app.telemetry = tel
		}
	}

	app.Store = store.NewPriceStore(logger, store.Options{
		NotifyWorkers: cfg.Concurrency.NotifyPoolSize,
		NotifyBuffer:  cfg.Concurrency.NotifyPoolBuffer,
	})

	registry := venue.NewRegistry(venueOverrides(cfg))
	app.Discovery = discovery.NewService(registry, logger)

	opts := manager.Options{
		Streaming: streaming.Options{
			ConnectTimeout: time.Duration(cfg.Monitoring.ConnectTimeoutSeconds) * time.Second,
			MaxAttempts:    cfg.Monitoring.MaxReconnectAttempts,
		},
	}
	if alerts := alertManager(cfg, logger); alerts != nil {
		opts.AlertSubscriber = func(ticker string) store.SubscriberFunc {
			return alert.NewNotifier(alerts, ticker).Notify
		}
	}
	app.Manager = manager.NewConnectionManager(app.Store, registry, app.Discovery, logger, opts, poolBuilder(cfg))

	app.Server = api.NewServer(api.Config{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}, app.Manager, app.Store, app.Discovery, registry.Names(), logger)

	hm := health.NewManager(logger)
	hm.Register("sessions", func() error {
		report := app.Manager.HealthCheck()
		if !report.Healthy {
			return fmt.Errorf("%d sessions in error state", report.ByStatus[core.StatusError])
		}
		return nil
	})
	app.Server.SetHealthMonitor(hm)

	return app, nil
}

// alertManager builds the alert fan-out when any channel is configured.
func alertManager(cfg *config.Config, logger core.ILogger) *alert.Manager {
	slack := cfg.Alerts.SlackWebhookURL
	tgToken, tgChat := cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatID
	if slack == "" && (tgToken == "" || tgChat == "") {
		return nil
	}

	m := alert.NewManager(logger)
	if slack != "" {
		m.AddChannel(alert.NewSlackChannel(slack))
	}
	if tgToken != "" && tgChat != "" {
		m.AddChannel(alert.NewTelegramChannel(tgToken, tgChat))
	}
	return m
}

// venueOverrides maps the venue section of the config onto registry
// overrides.
func venueOverrides(cfg *config.Config) map[string]venue.Overrides {
	out := make(map[string]venue.Overrides, len(cfg.Venues))
	for name, vc := range cfg.Venues {
		out[name] = venue.Overrides{
			SpotWSURL:          vc.SpotWSURL,
			FuturesWSURL:       vc.FuturesWSURL,
			RestBaseURL:        vc.RestBaseURL,
			FuturesRestBaseURL: vc.FuturesRestBaseURL,
			RateLimitRPS:       float64(vc.RateLimitRPS),
		}
	}
	return out
}

// poolBuilder applies per-chain RPC and poll-interval settings to on-chain
// adapters.
func poolBuilder(cfg *config.Config) manager.PoolBuilder {
	return func(ticker string, selection core.PoolSelection, sink core.IPriceSink, logger core.ILogger) (core.IVenueAdapter, error) {
		poolCfg := dexpool.Config{}
		if cc, ok := cfg.Chains[selection.Chain]; ok {
			poolCfg.RPCURL = cc.RPCURL
			poolCfg.PollInterval = time.Duration(cc.PollIntervalMS) * time.Millisecond
		}
		return dexpool.NewAdapter(ticker, selection, sink, logger, poolCfg)
	}
}

// Run serves until a termination signal arrives, then shuts down in reverse
// dependency order.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Logger.Info("Starting arbitrage monitor",
		"name", a.Cfg.App.Name,
		"port", a.Cfg.Server.Port,
		"venues", a.Cfg.App.ActiveVenues,
	)

	a.Server.Start()
	<-ctx.Done()

	a.Logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Server.Stop(shutdownCtx); err != nil {
		a.Logger.Error("API server shutdown failed", "error", err)
	}
	a.Manager.Close()
	a.Store.Close()

	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("Telemetry shutdown failed", "error", err)
		}
	}

	a.Logger.Info("Shutdown complete")
	return nil
}
