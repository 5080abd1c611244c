package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/rr-shield/internal/dns/common/clock"
	"github.com/haukened/rr-shield/internal/dns/common/log"
	"github.com/haukened/rr-shield/internal/dns/common/metrics"
	"github.com/haukened/rr-shield/internal/dns/config"
	"github.com/haukened/rr-shield/internal/dns/domain"
	"github.com/haukened/rr-shield/internal/dns/gateways/tun"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist/builtin"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist/lru"
	"github.com/haukened/rr-shield/internal/dns/repos/state"
	"github.com/haukened/rr-shield/internal/dns/repos/state/bolt"
	"github.com/haukened/rr-shield/internal/dns/services/lifecycle"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-shieldd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the interception daemon
type Application struct {
	config     *config.AppConfig
	controller *lifecycle.Controller
	store      state.Store
	registry   *prometheus.Registry
	metrics    *http.Server
	trigger    lifecycle.Trigger
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":       appName,
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.LogLevel,
		"tun":       cfg.Tun.Name,
		"address":   cfg.Tun.Address,
		"route":     cfg.Tun.Route,
		"dns":       cfg.Tun.DNS,
		"buffer":    cfg.Buffer.Size,
		"state":     cfg.State.Path,
		"trigger":   cfg.Trigger,
	}, "Starting RR-Shield")

	app, err := buildApplication(cfg, tun.NewEstablisher(log.GetLogger()))
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Failed to build application")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// SIGUSR1 enables interception, SIGUSR2 disables it.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	toggles := make(chan bool, 1)
	go func() {
		for sig := range sigChan {
			log.Info(map[string]any{"signal": sig.String()}, "Toggle signal received")
			toggles <- sig == syscall.SIGUSR1
		}
	}()

	if err := app.Run(ctx, toggles); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Daemon failed")
	}

	log.Info(nil, "RR-Shield stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig, est tun.Establisher) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	trigger, err := lifecycle.ParseTrigger(cfg.Trigger)
	if err != nil {
		return nil, err
	}

	repos, err := buildRepositories(cfg, logger, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	controller := lifecycle.New(lifecycle.Options{
		Establisher: est,
		Tun: tun.Config{
			Name:        cfg.Tun.Name,
			Address:     cfg.Tun.Address,
			Route:       cfg.Tun.Route,
			RouteMetric: cfg.Tun.RouteMetric,
			DNS:         cfg.Tun.DNS,
			MTU:         cfg.Tun.MTU,
		},
		Blocklist:  repos.blocklist,
		Store:      repos.store,
		Logger:     logger,
		Metrics:    recorder,
		BufferSize: cfg.Buffer.Size,
	})

	registry.MustRegister(
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rr_shield",
			Name:      "running",
			Help:      "1 while interception is running.",
		}, func() float64 {
			if controller.IsRunning() {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rr_shield",
			Name:      "blocked_total",
			Help:      "Cumulative blocked queries, persisted across restarts.",
		}, func() float64 { return float64(controller.TotalBlocked()) }),
	)

	app := &Application{
		config:     cfg,
		controller: controller,
		store:      repos.store,
		registry:   registry,
		trigger:    trigger,
	}
	if cfg.Metrics.Addr != "" {
		app.metrics = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           app.httpHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return app, nil
}

// repositories holds all repository implementations
type repositories struct {
	blocklist blocklist.Blocklist
	store     state.Store
}

// buildRepositories creates and configures all repository implementations
func buildRepositories(cfg *config.AppConfig, logger log.Logger, clk clock.Clock) (*repositories, error) {
	rules, err := builtin.Rules(logger, clk.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load builtin blocklist: %w", err)
	}

	cache, err := lru.New(cfg.Blocklist.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	repo := blocklist.NewRepository(rules, cache, bloom.NewFactory(), cfg.Blocklist.FPRate)
	stats := repo.Stats()
	log.Info(map[string]any{
		"patterns":   stats.Patterns,
		"lengths":    stats.Lengths,
		"cache_size": cfg.Blocklist.CacheSize,
		"fp_rate":    cfg.Blocklist.FPRate,
	}, "Blocklist loaded")

	if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	store, err := bolt.New(cfg.State.Path, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	prefs, err := store.Load()
	if err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "Failed to read persisted state")
	} else {
		log.Info(map[string]any{
			"path":    cfg.State.Path,
			"enabled": prefs.ServiceEnabled,
			"blocked": prefs.BlockedCount,
		}, "State store opened")
	}

	return &repositories{
		blocklist: repo,
		store:     store,
	}, nil
}

// httpHandler serves the Prometheus registry and the control endpoints.
func (app *Application) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /control/stats_reset", app.handleStatsReset)
	return mux
}

// handleStatsReset handles requests to the POST /control/stats_reset endpoint.
func (app *Application) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if err := app.controller.ResetStatistics(); err != nil {
		log.Error(map[string]any{"error": err.Error(), "remote": r.RemoteAddr}, "Failed to reset statistics")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Info(map[string]any{"remote": r.RemoteAddr}, "Statistics reset by request")
	w.WriteHeader(http.StatusNoContent)
}

// Run applies the startup trigger and keeps the daemon alive until ctx is
// cancelled. Values on toggles enable (true) or disable (false)
// interception.
func (app *Application) Run(ctx context.Context, toggles <-chan bool) error {
	if err := app.controller.HandleTrigger(ctx, app.trigger); err != nil {
		var se *lifecycle.StartError
		if !errors.As(err, &se) {
			app.close()
			return err
		}
		// The host may retry with a toggle; the daemon stays up.
		log.Error(map[string]any{"error": err.Error(), "trigger": string(app.trigger)}, "Failed to start interception")
	}

	if app.metrics != nil {
		go func() {
			log.Info(map[string]any{"address": app.metrics.Addr}, "HTTP endpoint started")
			if err := app.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(map[string]any{"error": err.Error()}, "HTTP endpoint failed")
			}
		}()
	}

	var flush <-chan time.Time
	if app.config.State.FlushInterval > 0 {
		ticker := time.NewTicker(app.config.State.FlushInterval)
		defer ticker.Stop()
		flush = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return app.shutdown()
		case enable := <-toggles:
			app.toggle(ctx, enable)
		case <-flush:
			if err := app.controller.Flush(); err != nil {
				log.Warn(map[string]any{"error": err.Error()}, "Failed to flush statistics")
			}
		}
	}
}

func (app *Application) toggle(ctx context.Context, enable bool) {
	var err error
	if enable {
		err = app.controller.Enable(ctx)
	} else {
		err = app.controller.Disable()
	}
	snap := app.controller.Snapshot()
	fields := map[string]any{
		"enable":        enable,
		"state":         snap.State.String(),
		"blocked_total": snap.TotalBlocked,
		"bytes_saved":   snap.BytesSaved,
	}
	if err != nil {
		fields["error"] = err.Error()
		log.Error(fields, "Failed to change interception state")
		return
	}
	log.Info(fields, "Interception state changed")
}

func (app *Application) shutdown() error {
	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- app.controller.Stop()
	}()

	if app.metrics != nil {
		if err := app.metrics.Shutdown(shutdownCtx); err != nil {
			log.Warn(map[string]any{"error": err.Error()}, "Error during metrics shutdown")
		}
	}

	select {
	case err := <-done:
		if err != nil {
			log.Warn(map[string]any{"error": err.Error()}, "Error persisting statistics")
		}
		snap := app.controller.Snapshot()
		log.Info(map[string]any{
			"blocked_total": snap.TotalBlocked,
			"mb_saved":      fmt.Sprintf("%.2f", domain.EstimatedMegabytesSaved(snap.TotalBlocked)),
		}, "Graceful shutdown completed")
		app.close()
		return nil
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout.String()}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}

func (app *Application) close() {
	if err := app.store.Close(); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "Error closing state store")
	}
}
