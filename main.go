package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storeprice/config"
	"storeprice/internal/catalog"
	"storeprice/internal/currency"
	"storeprice/internal/dashboard"
	"storeprice/internal/feed"
	"storeprice/internal/metrics"
	"storeprice/internal/prefs"
	"storeprice/internal/session"
	"storeprice/logger"
	"storeprice/reader"
)

type component interface {
	Stop()
}

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.StorePrice.Name,
		"version":     cfg.StorePrice.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting storeprice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.DashboardName)
		logger.CreateDefaultDashboard(ctx)
	}

	var registry *metrics.Registry
	if cfg.Metrics.Prometheus {
		registry = metrics.NewRegistry()
	}

	// Row feed, seeded from the bundled row files.
	rowFeed := feed.New()
	seedRows, seedFiles, err := reader.LoadGlobs(cfg.Feed.SeedFiles)
	if err != nil {
		log.WithError(err).Error("failed to load seed rows")
		os.Exit(1)
	}
	seeded := rowFeed.Seed(seedRows)
	logger.RecordFeedBatch("seed", seeded)
	if registry != nil {
		registry.ObserveFeedBatch("seed", seeded)
	}

	onBatch := func(source string, admitted int) {
		metrics.Emit(log, source, "rows_admitted", float64(admitted), metrics.Counter, nil)
		if registry != nil {
			registry.ObserveFeedBatch(source, admitted)
		}
	}

	var started []component

	if cfg.Feed.Files.Enabled {
		fr := reader.NewFileReader(cfg.Feed.Files, rowFeed)
		fr.MarkSeen(seedFiles...)
		fr.OnBatch(onBatch)
		if err := fr.Start(ctx); err != nil {
			log.WithError(err).Warn("file reader failed to start")
		} else {
			started = append(started, fr)
		}
	}

	if cfg.Feed.S3.Enabled {
		client, err := reader.NewS3Client(ctx, cfg.Feed.S3)
		if err != nil {
			log.WithError(err).Error("failed to create S3 client")
			os.Exit(1)
		}
		sr := reader.NewS3Reader(cfg.Feed.S3, client, rowFeed)
		sr.OnBatch(onBatch)
		if err := sr.Start(ctx); err != nil {
			log.WithError(err).Warn("s3 reader failed to start")
		} else {
			started = append(started, sr)
		}
	} else {
		log.WithComponent("main").Info("S3 feed disabled; skipping s3 reader")
	}

	if cfg.Feed.WebSocket.Enabled {
		wr := reader.NewWSReader(cfg.Feed.WebSocket, rowFeed)
		wr.OnBatch(onBatch)
		if err := wr.Start(ctx); err != nil {
			log.WithError(err).Warn("websocket reader failed to start")
		} else {
			started = append(started, wr)
		}
	}

	// Catalog.
	store := catalog.NewStore()
	syncer := catalog.NewSyncer(rowFeed, store, catalog.Timing{
		FastInterval:    cfg.Catalog.FastInterval,
		SlowInterval:    cfg.Catalog.SlowInterval,
		Warmup:          cfg.Catalog.Warmup,
		FailsafeTimeout: cfg.Catalog.FailsafeTimeout,
	})
	syncer.OnPass(func(p catalog.PassInfo) {
		logger.RecordCatalogPass(p.Items)
		metrics.Emit(log, "catalog", "items", float64(p.Items), metrics.Gauge, logger.Fields{
			"trigger": p.Trigger,
			"rows":    p.Rows,
		})
		if registry != nil {
			registry.ObserveCatalogPass(p.Trigger, p.Items, p.Duration)
		}
	})
	if err := syncer.Start(ctx); err != nil {
		log.WithError(err).Error("catalog syncer failed to start")
		os.Exit(1)
	}

	// Currencies.
	table, err := currency.NewTable(currency.Builtin(), cfg.Currency.Default)
	if err != nil {
		log.WithError(err).Error("failed to build currency table")
		os.Exit(1)
	}

	var refresher *currency.Refresher
	if svc := currency.NewService(cfg.Currency, table); svc != nil {
		refresher = currency.NewRefresher(table, svc, cfg.Currency.RefreshInterval, cfg.Currency.Timeout)
		refresher.OnResult(func(err error) {
			if registry != nil {
				registry.ObserveRateRefresh(err)
			}
			if err == nil {
				metrics.Emit(log, "rates", "refreshed", 1, metrics.Counter, nil)
			}
		})
		if err := refresher.Start(ctx); err != nil {
			log.WithError(err).Warn("rate refresher failed to start")
			refresher = nil
		}
	} else {
		log.WithComponent("main").Info("no rate provider configured; using built-in rates")
	}

	// Preferences.
	var prefStore *prefs.Store
	if cfg.Preferences.Path != "" {
		prefStore, err = prefs.Open(cfg.Preferences.Path)
		if err != nil {
			log.WithError(err).Warn("preferences unavailable; falling back to defaults")
			prefStore = nil
		}
	}

	sessions := session.NewManager(store, table)

	var wg sync.WaitGroup

	if cfg.Dashboard.SessionIdleTimeout > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweepSessions(ctx, sessions, registry, cfg.Dashboard.SessionIdleTimeout)
		}()
	}

	dashboardServer, err := dashboard.NewServer(cfg.Dashboard, log, dashboard.Deps{
		Feed:       rowFeed,
		Store:      store,
		Sessions:   sessions,
		Currencies: table,
		Refresher:  refresher,
		Prefs:      prefStore,
		Metrics:    registry,
	})
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}
	if dashboardServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dashboardServer.Run(ctx, cfg.StorePrice.Name); err != nil {
				log.WithError(err).Error("dashboard server stopped")
				cancel()
			}
		}()
	}

	log.WithFields(logger.Fields{
		"seed_rows":  seeded,
		"seed_files": len(seedFiles),
		"dashboard":  dashboardServer.Address(),
	}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown")
	cancel()

	if refresher != nil {
		log.Info("stopping rate refresher")
		refresher.Stop()
	}

	log.Info("stopping catalog syncer")
	syncer.Stop()

	log.Info("stopping feed readers")
	for _, c := range started {
		c.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	if prefStore != nil {
		if err := prefStore.Close(); err != nil {
			log.WithError(err).Warn("failed to close preferences")
		}
	}

	log.Info("storeprice stopped")
}

// sweepSessions drops sessions idle for longer than maxIdle.
func sweepSessions(ctx context.Context, sessions *session.Manager, registry *metrics.Registry, maxIdle time.Duration) {
	interval := maxIdle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep(maxIdle)
			if registry != nil {
				registry.SetSessions(sessions.Len())
			}
		}
	}
}
