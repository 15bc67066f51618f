// Command frl-proxy forwards FRL Online activation and deactivation
// requests to Adobe's licensing server and records every exchange.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/frl-toolbox/internal/audit"
	"github.com/technosupport/frl-toolbox/internal/config"
	"github.com/technosupport/frl-toolbox/internal/events"
	"github.com/technosupport/frl-toolbox/internal/metrics"
	"github.com/technosupport/frl-toolbox/internal/platform/paths"
	"github.com/technosupport/frl-toolbox/internal/platform/windows"
	"github.com/technosupport/frl-toolbox/internal/proxy"
	"github.com/technosupport/frl-toolbox/internal/ratelimit"
)

const (
	eventIDStart = 100
	eventIDStop  = 101
	eventIDError = 102
)

func main() {
	cfgPath := flag.String("config", "", "Config file (default: <data root>/config/frl-proxy.yaml)")
	flag.Parse()

	// 1. Platform Paths & Config
	if err := paths.EnsureDirs(); err != nil {
		log.Fatalf("Platform init error: %v", err)
	}
	cfg, err := config.Load(paths.ResolveConfigPath(*cfgPath))
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Windows Service Check
	isService := windows.IsWindowsService()
	elog := windows.NewEventLogger(cfg.Service.Name)
	defer elog.Close()

	// ctx ends on SIGINT/SIGTERM or when the service control manager stops us
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if isService {
		elog.Info(eventIDStart, "Starting as Windows Service")
		go func() {
			if err := windows.RunAsService(cfg.Service.Name, stop); err != nil {
				elog.Error(eventIDError, fmt.Sprintf("Service run error: %v", err))
				os.Exit(1)
			}
		}()
	}

	// probes are filled in below, before the collector starts
	probes := map[string]metrics.Probe{}
	collector := metrics.NewCollector(metrics.Config{Probes: probes})

	// 3. Transaction Log (optional)
	var records proxy.Recorder
	var auditService *audit.Service
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("DB open error: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			// spool until the database comes back
			elog.Warning(eventIDError, fmt.Sprintf("DB ping error: %v", err))
		}

		spoolDir := cfg.Spool.Dir
		if spoolDir == "" {
			spoolDir = paths.SpoolDir()
		}
		spool, err := audit.NewSpool(spoolDir, cfg.Spool.MaxMB)
		if err != nil {
			log.Fatalf("Spool init error: %v", err)
		}
		auditService = audit.NewService(db, spool)
		auditService.OnSpool = collector.Spooled
		auditService.OnReplay = collector.Replayed
		auditService.StartReplayer(ctx, cfg.Spool.ReplayInterval)
		go purgeLoop(ctx, auditService, cfg.Retention.Days)

		probes["postgres"] = db.PingContext
		records = auditService
	} else {
		log.Println("[frl-proxy] no database configured, transactions are not recorded")
	}

	// 4. Events (optional)
	var publisher proxy.Publisher
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			elog.Warning(eventIDError, fmt.Sprintf("NATS unavailable, events disabled: %v", err))
		} else {
			defer nc.Drain()
			dedup := events.NewDedup(cfg.NATS.DedupMaxKeys, cfg.NATS.DedupTTL)
			publisher = events.NewPublisher(nc, cfg.NATS.Subject, cfg.NATS.PublishRetryMax, dedup)
			probes["nats"] = func(context.Context) error {
				if nc.Status() != nats.CONNECTED {
					return fmt.Errorf("nats status %v", nc.Status())
				}
				return nil
			}
		}
	}

	// 5. Handler
	handler := proxy.NewHandler(proxy.Config{
		Scheme:  cfg.Upstream.Scheme,
		Host:    cfg.Upstream.Host,
		Timeout: cfg.Upstream.Timeout,
	}, nil, records, publisher, collector)

	routerCfg := proxy.RouterConfig{
		Timeout: cfg.Upstream.Timeout + 5*time.Second,
		Health: func(ctx context.Context) error {
			if auditService == nil {
				return nil
			}
			return auditService.DB.PingContext(ctx)
		},
	}
	if auditService != nil {
		routerCfg.Transactions = auditService
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		handler.WithCache(proxy.NewRedisCache(rdb, cfg.Redis.CacheTTL))
		routerCfg.Limiter = ratelimit.NewLimiter(rdb, cfg.Service.Name)
		routerCfg.Limit = cfg.RateLimit
		probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if cfg.Metrics.Enabled {
		routerCfg.Metrics = collector.Handler()
		go collector.Start(ctx)
	}

	// 6. Serve
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           proxy.NewRouter(handler, routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[frl-proxy] listening on %s, forwarding to %s://%s", cfg.Listen, cfg.Upstream.Scheme, cfg.Upstream.Host)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			elog.Error(eventIDError, fmt.Sprintf("HTTP server error: %v", err))
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	elog.Info(eventIDStop, "Stop requested")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		elog.Error(eventIDError, fmt.Sprintf("Graceful shutdown error: %v", err))
	}
	if auditService != nil {
		// flush what the replayer has not written yet
		auditService.ReplaySpool(shutdownCtx)
	}
	elog.Info(eventIDStop, "Server stopped gracefully")
}

// purgeLoop applies the retention policy once a day.
func purgeLoop(ctx context.Context, s *audit.Service, days int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		n, err := s.Purge(ctx, days)
		if err != nil {
			log.Printf("[frl-proxy] purge failed: %v", err)
		} else if n > 0 {
			log.Printf("[frl-proxy] purged %d transactions older than %d days", n, days)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
