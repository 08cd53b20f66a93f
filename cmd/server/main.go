package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/scyber100-hub/realtimesignlanguage/internal/api"
	"github.com/scyber100-hub/realtimesignlanguage/internal/broadcast"
	"github.com/scyber100-hub/realtimesignlanguage/internal/gloss"
	"github.com/scyber100-hub/realtimesignlanguage/internal/pipeline"
	"github.com/scyber100-hub/realtimesignlanguage/internal/platform/config"
	"github.com/scyber100-hub/realtimesignlanguage/internal/platform/logger"
	"github.com/scyber100-hub/realtimesignlanguage/internal/platform/metrics"
	"github.com/scyber100-hub/realtimesignlanguage/internal/platform/tracing"
	"github.com/scyber100-hub/realtimesignlanguage/internal/ratelimit"
	"github.com/scyber100-hub/realtimesignlanguage/internal/session"
	"github.com/scyber100-hub/realtimesignlanguage/internal/stats"
	"github.com/scyber100-hub/realtimesignlanguage/internal/timeline"
)

const (
	serviceName     = "realtime-sign-pipeline"
	shutdownTimeout = 10 * time.Second
	redisDialWait   = 2 * time.Second
)

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("tracing init failed", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	sessions := session.NewRepository()
	bc := broadcast.New(broadcast.Options{
		QueueSize:   cfg.BroadcastQueueSize,
		SendTimeout: cfg.BroadcastSendTimeout,
		Logger:      log,
		Metrics:     met,
	})
	collector := stats.New(stats.Options{
		AlertHistory: cfg.AlertHistoryCapacity,
		Thresholds: stats.Thresholds{
			LatencyP90MS:   float64(cfg.AlertLatencyP90MS),
			ReplaceRatio:   cfg.AlertReplaceRatio,
			RateLimitRatio: cfg.AlertRateLimitRatio,
		},
		SessionCount:    sessions.Len,
		SubscriberCount: bc.Count,
	})

	local := ratelimit.NewSlidingWindow(cfg.MaxIngestRPS, cfg.RateWindow)
	var limiter ratelimit.Limiter = local
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, redisDialWait)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable at startup, admission falls back to local windows until it recovers",
				"addr", cfg.RedisAddr, "error", err)
		}
		pingCancel()
		limiter = ratelimit.NewRedisSlidingWindow(rdb, local, log)
	}

	lex := gloss.NewLexicon()
	var snapshots gloss.SnapshotStore = gloss.NewInMemorySnapshotStore()
	if cfg.LexiconDBPath != "" {
		store, err := gloss.NewSQLiteSnapshotStore(cfg.LexiconDBPath)
		if err != nil {
			log.Error("open lexicon snapshot store failed", "path", cfg.LexiconDBPath, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		snapshots = store
	}

	translator := gloss.NewRuleTranslator(lex)
	compiler := timeline.NewClipCompiler()
	settings := pipeline.NewSettings(pipeline.Values{
		IncludeAuxChannels: cfg.IncludeAuxChannels,
		DefaultStartMS:     int64(cfg.DefaultStartMS),
		DefaultGapMS:       int64(cfg.DefaultGapMS),
	})
	coord := pipeline.NewCoordinator(pipeline.Deps{
		Translator: translator,
		Compiler:   compiler,
		Limiter:    limiter,
		Sessions:   sessions,
		Publisher:  bc,
		Settings:   settings,
		Stats:      collector,
		Metrics:    met,
		Logger:     log,
	})
	h := api.NewHandler(api.Deps{
		Coordinator: coord,
		Sessions:    sessions,
		Broadcaster: bc,
		Stats:       collector,
		Limiter:     local,
		Settings:    settings,
		Translator:  translator,
		Compiler:    compiler,
		Overlays:    gloss.NewOverlays(lex, snapshots),
		Metrics:     met,
		Logger:      log,
	})

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(h.UpdateGauges).ServeHTTP(w, r)
	})
	h.Register(r, cfg.APIKey)

	sweeper := session.NewSweeper(sessions, cfg.SessionTTL, cfg.SessionSweepInterval, log)
	sweeper.OnPurge = met.AddSessionsPurged
	go sweeper.Run(ctx)
	go stats.NewPusher(collector, bc, cfg.StatsBroadcastInterval, log).Run(ctx)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: otelhttp.NewHandler(r, "http.server")}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"max_ingest_rps", cfg.MaxIngestRPS,
		"session_ttl", cfg.SessionTTL.String(),
		"redis", cfg.RedisAddr != "",
		"lexicon_db", cfg.LexiconDBPath,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	bc.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", "error", err)
	}

	log.Info("server stopped")
}
