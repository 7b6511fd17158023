package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelsched/engine/audit"
	"github.com/kestrelsched/engine/config"
	"github.com/kestrelsched/engine/crypto"
	"github.com/kestrelsched/engine/db"
	"github.com/kestrelsched/engine/handler"
	"github.com/kestrelsched/engine/logger"
	"github.com/kestrelsched/engine/metrics"
	"github.com/kestrelsched/engine/redisclient"
	"github.com/kestrelsched/engine/router"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().Str("env", cfg.Env).Msg("kestrel scheduling engine starting")

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database failed")
	}
	defer conn.Close()

	encryptor := crypto.NewTokenEncryptor(cfg.TokenEncryptKey)
	tokens := crypto.NewTokenCache(log)

	metricsRegistry := metrics.New()

	auditPipeline := audit.New(log, audit.DBSink{Conn: conn})
	auditPipeline.Start(context.Background())
	defer auditPipeline.Stop()

	var redis *redisclient.Client
	if cfg.RedisURL != "" {
		rc, err := redisclient.New(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without distributed cooldown")
		} else if err := rc.Ping(context.Background()); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, running without distributed cooldown")
		} else {
			redis = rc
			defer rc.Close()
		}
	}

	deps := &handler.Deps{
		DB:        conn,
		Logger:    log,
		Config:    cfg,
		Tokens:    tokens,
		Encryptor: encryptor,
		Metrics:   metricsRegistry,
		Audit:     auditPipeline,
		NewClient: handler.DefaultClientFactory(cfg, log),
		Redis:     redis,
	}
	deps.Coord = handler.NewEventCoordinator(deps)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go handler.NewPastDueSweeper(deps).Run(sweepCtx)

	r := router.NewRouter(cfg, log, deps)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.UpstreamCallTimeout + 20*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("engine listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("engine stopped gracefully")
	}
}
