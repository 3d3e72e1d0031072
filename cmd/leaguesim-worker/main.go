package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"leaguesim/internal/app"
	"leaguesim/internal/autoplay"
	"leaguesim/internal/config"
	"leaguesim/internal/metrics"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env", "err", err)
	}
	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel)

	engine, err := app.Open(ctx, app.Options{
		Store:       cfg.Store,
		League:      cfg.League,
		Notify:      cfg.Notify,
		NATSURL:     cfg.NATSURL,
		NATSSubject: cfg.NATSSubject,
		Metrics:     metrics.Default(),
	}, logger)
	if err != nil {
		logger.Error("engine init failed", "err", err)
		os.Exit(1)
	}
	defer engine.Close()

	runner := autoplay.New(engine.DB, engine.Driver, engine.Phases, autoplay.Options{
		Days:    cfg.AutoplayDays,
		Seasons: cfg.AutoplaySeasons,
		Rand:    engine.Rand,
		Events:  engine.Events,
		Logger:  logger,
	})
	if cfg.AutoplaySeasons > 0 {
		if err := runner.Enable(ctx); err != nil {
			logger.Error("enable auto play failed", "err", err)
			os.Exit(1)
		}
	}

	if cfg.RunOnce {
		res, err := runner.Step(ctx)
		if err != nil {
			logger.Error("step failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "action", res.Action, "phase", res.Phase.String(), "days", res.Days)
		return
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		logger.Error("create scheduler failed", "err", err)
		os.Exit(1)
	}

	step := func() {
		res, err := runner.Step(ctx)
		if err != nil {
			logger.Error("auto play step failed", "err", err)
			return
		}
		if res.Action == "idle" {
			return
		}
		logger.Info("auto play step", "action", res.Action, "phase", res.Phase.String(), "season", res.Season, "days", res.Days, "games", res.Games)
		if res.Done {
			logger.Info("auto play finished", "season", res.Season)
		}
	}
	if _, err := s.NewJob(
		gocron.DurationJob(cfg.AutoplayEvery),
		gocron.NewTask(step),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		logger.Error("create auto play job failed", "err", err)
		os.Exit(1)
	}
	s.Start()

	logger.Info("worker started", "every", cfg.AutoplayEvery.String(), "days", cfg.AutoplayDays, "seasons", cfg.AutoplaySeasons)
	<-ctx.Done()
	_ = engine.Driver.Stop(context.Background())
	engine.Phases.Abort()
	if err := s.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", "err", err)
	}
	logger.Info("worker shutdown")
}
