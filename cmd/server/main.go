// Command server runs the property search serving core: the adaptive
// session pool, its autoscaler, the hybrid search orchestrator and the
// HTTP surface over them.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/autoscaler"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/cache"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/config"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/embeddings"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/health"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/metrics"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/notify"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/pool"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/search"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/textsearch"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/vectorsearch"
)

// probeInterval paces the pool health probe loop.
const probeInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfgs := config.NewStore(cfg)

	log := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level))
	log.Info("starting property search server",
		"host", cfg.Server.Host, "port", cfg.Server.Port)

	registry := prometheus.NewRegistry()
	exporter := metrics.NewExporter(registry)
	peakHour := func(hour int) bool {
		for _, h := range cfg.Autoscaling.PeakHours {
			if h == hour {
				return true
			}
		}
		return false
	}
	agg := metrics.NewAggregator(peakHour, exporter)

	factory, err := pool.NewPostgresFactory(cfg.Database.Endpoint, cfg.Database.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("database endpoint: %w", err)
	}
	defer func() { _ = factory.Close() }()

	sessions, err := pool.New(pool.Config{
		MinSessions: cfg.Autoscaling.MinSessions,
		MaxSessions: cfg.Autoscaling.MaxSessions,
		IdleTimeout: cfg.Database.IdleTimeout,
	}, factory.New, log, agg)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	if err := sessions.Start(startCtx); err != nil {
		return fmt.Errorf("start pool: %w", err)
	}

	listener := notify.Multi{
		&logListener{log: log.WithComponent("events")},
		&exportListener{exporter: exporter},
	}

	scaler := autoscaler.New(cfgs, sessions, agg, listener, log)
	evaluator := health.NewEvaluator()

	queryCache := cache.New(cache.Config{
		TTL:           cfg.Cache.TTL,
		Capacity:      cfg.Cache.Capacity,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	defer queryCache.Close()

	embedder := embeddings.NewClient(cfg.Embedding, log)
	textClient := textsearch.NewClient(cfg.TextSearch, log)
	executor := vectorsearch.NewExecutor(cfg.Search.SimilarityThreshold, log)

	orchestrator := search.NewOrchestrator(
		cfgs, sessions, agg, evaluator, queryCache,
		embedder, textClient, executor, listener, log,
	)

	router := api.NewRouter(api.Deps{
		Orchestrator: orchestrator,
		Pool:         sessions,
		Aggregator:   agg,
		Evaluator:    evaluator,
		Cache:        queryCache,
		Autoscaler:   scaler,
		Registry:     registry,
		Logger:       log,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Autoscaling.Enabled {
		go scaler.Run(rootCtx)
	}
	go probeLoop(rootCtx, sessions)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err.Error())
	}

	if leaked := sessions.Shutdown(cfg.Server.ShutdownGrace); leaked > 0 {
		log.Warn("sessions leaked at shutdown", "count", leaked)
	}
	log.Info("server stopped")
	return nil
}

// probeLoop pings the database through the pool on a fixed cadence so the
// ready/degraded transition tracks real connectivity.
func probeLoop(ctx context.Context, p *pool.Pool) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.HealthProbe(ctx)
		}
	}
}

// logListener writes scaling and request events to the structured log.
type logListener struct {
	log logging.Logger
}

func (l *logListener) OnPoolScaled(event notify.ScalingEvent) {
	l.log.Info("pool scaled",
		"action", string(event.Action),
		"reason", string(event.Reason),
		"old_max", event.OldMax,
		"new_max", event.NewMax,
		"utilization", fmt.Sprintf("%.2f", event.Snapshot.Utilization),
	)
}

func (l *logListener) OnSlowRequest(requestID, strategy string, elapsed time.Duration) {
	l.log.Warn("slow search request",
		"request_id", requestID,
		"strategy", strategy,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

func (l *logListener) OnHighUtilization(utilization float64) {
	l.log.Warn("pool utilization high", "utilization", fmt.Sprintf("%.2f", utilization))
}

// exportListener mirrors scaling events into the Prometheus counters.
type exportListener struct {
	exporter *metrics.Exporter
}

func (l *exportListener) OnPoolScaled(event notify.ScalingEvent) {
	l.exporter.CountScalingEvent(string(event.Action), string(event.Reason))
}

func (l *exportListener) OnSlowRequest(string, string, time.Duration) {}

func (l *exportListener) OnHighUtilization(float64) {}
