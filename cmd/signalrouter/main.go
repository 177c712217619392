// signalrouter daemon -- a libmapper-style signal-mapping router.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/go-signalmap/router/internal/adminbus"
	"github.com/go-signalmap/router/internal/config"
	"github.com/go-signalmap/router/internal/controlapi"
	"github.com/go-signalmap/router/internal/router"
	"github.com/go-signalmap/router/internal/routermetrics"
	"github.com/go-signalmap/router/internal/transport"
	appversion "github.com/go-signalmap/router/internal/version"
	"github.com/go-signalmap/router/internal/wire"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// livenessSweepInterval is the period of the link-liveness sweep ticker.
const livenessSweepInterval = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("signalrouter starting",
		slog.String("version", appversion.Version),
		slog.String("device", cfg.Device.Name),
		slog.String("control_addr", cfg.Control.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	// 4. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	collector := routermetrics.NewCollector(reg)

	// 5. Build the router's external collaborators and construct it.
	r, recv, sender, bus, err := buildRouter(cfg, collector, logger)
	if err != nil {
		logger.Error("failed to build router",
			slog.String("error", err.Error()),
		)
		return 1
	}
	defer closeCollaborator(sender, logger, "sender")
	defer closeCollaborator(recv, logger, "receiver")
	if bus != nil {
		defer closeCollaborator(bus, logger, "admin bus")
	}

	// 6. Run servers.
	if err := runServers(cfg, r, recv, bus, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("signalrouter exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("signalrouter stopped")
	return 0
}

// closer is satisfied by every external collaborator created in
// buildRouter; some (the admin bus when dbus is unavailable) may be nil.
type closer interface {
	Close() error
}

func closeCollaborator(c closer, logger *slog.Logger, name string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("failed to close collaborator",
			slog.String("collaborator", name),
			slog.String("error", err.Error()),
		)
	}
}

// buildRouter wires the production external collaborators -- a dbus
// admin bus, a UDP sender/receiver pair -- into a *router.Router.
func buildRouter(cfg *config.Config, collector *routermetrics.Collector, logger *slog.Logger) (*router.Router, *transport.UDPReceiver, *transport.UDPSender, *adminbus.DBus, error) {
	bus, err := adminbus.NewDBus(logger)
	if err != nil {
		logger.Warn("admin bus unavailable, running without peer discovery",
			slog.String("error", err.Error()),
		)
		bus = nil
	}

	localAddr, srcPort, err := splitHostPort(cfg.Device.DataAddr)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("parse device data_addr: %w", err)
	}

	codec := wire.NewOSCCodec()

	sender, err := transport.NewUDPSender(localAddr, srcPort, codec, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create UDP sender: %w", err)
	}

	device := &router.Device{
		Name:      cfg.Device.Name,
		AdminAddr: cfg.Device.AdminAddr,
		DataAddr:  cfg.Device.DataAddr,
	}

	opts := []router.Option{
		router.WithSender(sender),
		router.WithMetrics(collector),
		router.WithHistoryCapacity(cfg.Router.HistoryCapacity),
		router.WithSyncTimeout(cfg.Router.SyncTimeout),
	}
	if bus != nil {
		opts = append(opts, router.WithAdminBus(bus))
	}

	r := router.NewRouter(device, logger, opts...)

	recv, err := transport.NewUDPReceiver(localAddr, srcPort, codec, &droppingHandler{logger: logger}, logger)
	if err != nil {
		_ = sender.Close()
		return nil, nil, nil, nil, fmt.Errorf("create UDP receiver: %w", err)
	}

	return r, recv, sender, bus, nil
}

// droppingHandler is the default transport.Handler: it logs and drops
// received bundles. A full receive-side evaluate/write pipeline is out
// of scope for this bootstrap -- see internal/transport's doc comment.
type droppingHandler struct {
	logger *slog.Logger
}

func (h *droppingHandler) HandleBundle(from netip.AddrPort, _ wire.Bundle) {
	h.logger.Debug("dropping received bundle, no receive pipeline configured",
		slog.String("from", from.String()),
	)
}

func splitHostPort(addr string) (netip.Addr, uint16, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("parse %q: %w", addr, err)
	}
	return ap.Addr(), ap.Port(), nil
}

// runServers sets up and runs the admin-bus dispatch, control API, and
// metrics HTTP servers using an errgroup with signal-aware context for
// graceful shutdown.
func runServers(
	cfg *config.Config,
	r *router.Router,
	recv *transport.UDPReceiver,
	bus *adminbus.DBus,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	controlSrv := newControlServer(cfg.Control, r, logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return recv.Serve(gCtx)
	})

	if bus != nil {
		g.Go(func() error {
			return dispatchAddressUpdates(gCtx, r, bus)
		})
	}

	startHTTPServers(gCtx, g, cfg, controlSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)

	g.Go(func() error {
		return runLivenessSweeper(gCtx, r, logger)
	})

	g.Go(func() error {
		return runQueryTimer(gCtx, r, cfg.Router.QueryInterval)
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, controlSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// dispatchAddressUpdates feeds admin-bus address updates into the
// router until the bus is closed or ctx is cancelled.
func dispatchAddressUpdates(ctx context.Context, r *router.Router, bus *adminbus.DBus) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-bus.Updates():
			if !ok {
				return nil
			}
			r.ApplyAddressUpdate(update)
		}
	}
}

// runLivenessSweeper periodically sweeps link liveness, removing any
// link whose clock-sync deadline has passed without a response.
func runLivenessSweeper(ctx context.Context, r *router.Router, logger *slog.Logger) error {
	ticker := time.NewTicker(livenessSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			removed := r.RunLivenessSweep(ctx, now)
			for _, remote := range removed {
				logger.Info("link removed by liveness sweep", slog.String("remote", remote))
			}
		}
	}
}

// runQueryTimer periodically re-requests current values from every
// OUTGOING connection's destination, keeping local mirrors of remote
// state fresh even absent any new update on the source side.
func runQueryTimer(ctx context.Context, r *router.Router, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.QueryAll(ctx, r.Now())
		}
	}
}

// startHTTPServers registers the control API and metrics HTTP server
// goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	controlSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("control API listening", slog.String("addr", cfg.Control.Addr))
		return listenAndServe(ctx, &lc, controlSrv, cfg.Control.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd, indicating the daemon has
// completed initialization and is ready to serve.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd, indicating the daemon
// is beginning graceful shutdown.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd.
// The interval is WatchdogSec/2 as recommended by the systemd documentation.
// If watchdog is not configured, the goroutine exits immediately.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level only
// -------------------------------------------------------------------------

// handleSIGHUP listens for SIGHUP signals and reloads configuration.
// On reload, the log level is updated dynamically via the shared LevelVar.
// Declarative link reconciliation (adding/removing cfg.Links entries) is
// left to the admin bus and control API at runtime rather than reload,
// since links are keyed by device name and negotiated lazily on first use.
// Blocks until the context is cancelled (graceful shutdown).
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

// reloadConfig loads a fresh configuration from the given path and
// updates the dynamic log level. Errors during reload are logged but do
// not stop the daemon -- the previous configuration remains in effect.
func reloadConfig(
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown performs an orderly shutdown: signals systemd, then
// shuts down the control API and metrics HTTP servers.
//
// The parent context is already cancelled when this function is called.
// A fresh timeout context is created internally for server drain.
func gracefulShutdown(
	ctx context.Context,
	logger *slog.Logger,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// listenAndServe creates a TCP listener using the ListenConfig (for noctx
// compliance) and serves HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newControlServer creates an HTTP server for the JSON control API,
// served over h2c to match the transport the base daemon's gRPC
// endpoint used.
func newControlServer(cfg config.ControlConfig, r *router.Router, logger *slog.Logger) *http.Server {
	srv := controlapi.New(r, logger)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(srv, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
