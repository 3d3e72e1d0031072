package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leaguesim/internal/api"
	"leaguesim/internal/app"
	"leaguesim/internal/cache"
	"leaguesim/internal/config"
	"leaguesim/internal/metrics"

	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env", "err", err)
	}
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel)

	m := metrics.Default()
	engine, err := app.Open(ctx, app.Options{
		Store:       cfg.Store,
		League:      cfg.League,
		Notify:      cfg.Notify,
		NATSURL:     cfg.NATSURL,
		NATSSubject: cfg.NATSSubject,
		Metrics:     m,
	}, logger)
	if err != nil {
		logger.Error("engine init failed", "err", err)
		os.Exit(1)
	}
	defer engine.Close()

	c, err := cache.Connect(ctx, cfg.RedisURL, cfg.Store.LeagueID, logger)
	if err != nil {
		logger.Warn("redis unavailable, serving uncached", "err", err)
	}
	defer c.Close()

	server := api.New(cfg, logger, api.Deps{
		DB:      engine.DB,
		Phases:  engine.Phases,
		Driver:  engine.Driver,
		Hub:     engine.Hub,
		Cache:   c,
		Metrics: m,
		Events:  engine.Events,
		Rand:    engine.Rand,
	})
	defer server.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// a running play request ends at the next day boundary
		_ = engine.Driver.Stop(context.Background())
		engine.Phases.Abort()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("leaguesim api listening", "addr", cfg.Addr, "store", cfg.Store.Driver, "variant", engine.Variant.Name)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
