// Command battwatch is the battery tracker daemon.
//
// It keeps a registered set of wireless devices, tracks their battery
// sources via the LAN bridge transport, and raises connect/disconnect and
// low-battery notifications. Devices are monitored either by push
// subscriptions (notification mode) or periodic reads (polling mode).
//
// Usage:
//
//	battwatch [flags]
//
// Flags:
//
//	-config string       Settings file path (default: user config dir)
//	-state-dir string    Override the state directory
//	-mode string         Override the mode: polling, notifications
//	-console             Run the interactive console (default true)
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-reset               Clear the persisted device list before starting
//
// Examples:
//
//	# Run with defaults plus the interactive console
//	battwatch
//
//	# Headless, notification mode, scratch state directory
//	battwatch -console=false -mode notifications -state-dir /tmp/battwatch
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/battwatch/battwatch-go/pkg/bridge"
	"github.com/battwatch/battwatch-go/pkg/config"
	"github.com/battwatch/battwatch-go/pkg/eventlog"
	"github.com/battwatch/battwatch-go/pkg/feed"
	"github.com/battwatch/battwatch-go/pkg/history"
	"github.com/battwatch/battwatch-go/pkg/metrics"
	"github.com/battwatch/battwatch-go/pkg/monitor"
	"github.com/battwatch/battwatch-go/pkg/notify"
	"github.com/battwatch/battwatch-go/pkg/registry"
	"github.com/battwatch/battwatch-go/pkg/service"
)

func main() {
	var (
		configPath = flag.String("config", "", "settings file path")
		stateDir   = flag.String("state-dir", "", "override the state directory")
		modeFlag   = flag.String("mode", "", "override the mode: polling, notifications")
		console    = flag.Bool("console", true, "run the interactive console")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
		reset      = flag.Bool("reset", false, "clear the persisted device list before starting")
	)
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	// Settings: a missing or broken file never prevents startup.
	path := *configPath
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Warn("using default settings", "error", err)
	}
	if *stateDir != "" {
		cfg.StateDir = *stateDir
	}
	if *modeFlag != "" {
		if _, err := monitor.ParseMode(*modeFlag); err != nil {
			log.Fatalf("bad -mode: %v", err)
		}
		cfg.Mode = *modeFlag
	}

	dir, err := cfg.StateDirFor()
	if err != nil {
		log.Fatalf("resolve state dir: %v", err)
	}

	// Device registry.
	fileStore := registry.NewFileStore(config.DevicesPath(dir))
	if *reset {
		if err := fileStore.Clear(); err != nil {
			logger.Warn("reset failed", "error", err)
		}
	}
	devices, dropped, err := fileStore.Load()
	if err != nil {
		logger.Warn("device list unreadable, starting empty", "error", err)
	}
	if dropped > 0 {
		logger.Warn("dropped unreadable device entries", "count", dropped)
	}
	store := registry.NewStore(fileStore, logger)

	// Engine event log: file capture plus console at debug level.
	engineLoggers := []eventlog.Logger{eventlog.NewSlogAdapter(logger)}
	if logPath := cfg.EventLogPathFor(dir); logPath != "" {
		fileLogger, err := eventlog.NewFileLogger(logPath)
		if err != nil {
			logger.Warn("event log disabled", "path", logPath, "error", err)
		} else {
			defer fileLogger.Close()
			engineLoggers = append(engineLoggers, fileLogger)
		}
	}

	// Metrics, registered only when the endpoint is enabled.
	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
	}
	mtr := metrics.New(registererOrNil(reg))
	store.OnChange(mtr.ObserveDevices)

	// Notification sinks: console always; feed clients when enabled.
	sinks := notify.MultiSink{notify.SlogSink{Log: logger}}
	var hub *feed.Hub
	if cfg.FeedAddr != "" {
		hub = feed.NewHub(logger)
		defer hub.Close()
		store.OnChange(hub.ObserveDevices)
		sinks = append(sinks, hub)
	}

	// Restore after observer wiring so the initial snapshot reaches the
	// metrics and feed layers.
	store.Restore(devices)

	var hist monitor.HistoryAppender
	var histStore *history.Store
	if cfg.History.Enabled {
		histStore = history.NewStore(cfg.HistoryDirFor(dir))
		hist = histStore
	}

	client := bridge.NewClient(bridge.ClientConfig{
		Instance:      cfg.Bridge.Instance,
		BrowseTimeout: cfg.Bridge.BrowseFor(),
		Log:           logger,
	})
	defer client.Close()

	flags := cfg.Notifications
	svc := service.New(service.Options{
		Store:        store,
		Transport:    client,
		Mode:         cfg.EngineMode(),
		PollInterval: cfg.PollEvery(),
		Flags:        func() notify.Flags { return flags },
		Sink:         sinks,
		History:      hist,
		Logger:       eventlog.NewMultiLogger(engineLoggers...),
		Hooks:        mtr,
		Log:          logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		log.Fatalf("start service: %v", err)
	}

	servers := startListeners(logger, cfg, reg, hub)

	if *console {
		c := newConsole(svc, histStore)
		// Route log output through readline so it doesn't garble the prompt.
		log.SetOutput(c.Stdout())
		slog.SetDefault(slog.New(slog.NewTextHandler(c.Stdout(), &slog.HandlerOptions{Level: levelFor(*logLevel)})))
		go c.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	svc.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelFor(level)}))
}

func levelFor(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func registererOrNil(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

// startListeners brings up the metrics and feed HTTP endpoints when
// configured.
func startListeners(logger *slog.Logger, cfg *config.Config, reg *prometheus.Registry, hub *feed.Hub) []*http.Server {
	var servers []*http.Server

	if cfg.MetricsAddr != "" && reg != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		servers = append(servers, srv)
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if cfg.FeedAddr != "" && hub != nil {
		mux := http.NewServeMux()
		mux.Handle("/feed", hub)
		srv := &http.Server{Addr: cfg.FeedAddr, Handler: mux}
		servers = append(servers, srv)
		go func() {
			logger.Info("feed listening", "addr", cfg.FeedAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("feed server failed", "error", err)
			}
		}()
	}

	return servers
}
