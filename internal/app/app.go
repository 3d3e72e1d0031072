// Package app wires the engine services shared by the API server and the
// auto-play worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"leaguesim/internal/config"
	"leaguesim/internal/db"
	"leaguesim/internal/eventlog"
	"leaguesim/internal/gamesim"
	"leaguesim/internal/league"
	"leaguesim/internal/metrics"
	"leaguesim/internal/phase"
	"leaguesim/internal/random"
	"leaguesim/internal/realtime"
	"leaguesim/internal/setup"
	"leaguesim/internal/sim"
	"leaguesim/internal/store"
	"leaguesim/internal/variant"
)

type Options struct {
	Store       config.StoreConfig
	League      config.LeagueConfig
	Notify      config.NotifyConfig
	NATSURL     string
	NATSSubject string
	Metrics     *metrics.Metrics
}

type Engine struct {
	DB      store.Driver
	Rand    *random.Source
	Events  *eventlog.Log
	Hub     *realtime.Hub
	Phases  *phase.Machine
	Driver  *sim.Driver
	Variant variant.Variant

	closeDB func()
}

// Open connects the store, creates the league when configured to and
// builds the phase machine and game-day driver around it.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Engine, error) {
	d, closeDB, err := db.Open(ctx, opts.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	e := &Engine{DB: d, closeDB: closeDB}

	e.Rand = random.NewFromTime()
	if opts.League.Seed != 0 {
		e.Rand = random.New(opts.League.Seed)
	}

	e.Events = eventlog.New(logger, notifiers(opts.Notify, logger)...)
	e.Hub = realtime.NewHub(logger)
	if opts.NATSURL != "" {
		if err := e.Hub.ConnectNATS(opts.NATSURL, opts.NATSSubject); err != nil {
			logger.Warn("nats unavailable, updates stay in process", "err", err)
		}
	}

	if opts.League.StartupCreate {
		_, err := setup.NewLeague(ctx, d, setup.Options{
			Variant:  opts.League.Variant,
			NumTeams: opts.League.NumTeams,
			Season:   opts.League.StartingSeason,
			UserTid:  opts.League.UserTid,
			Rand:     e.Rand,
			Events:   e.Events,
			Logger:   logger,
		})
		if err != nil && !errors.Is(err, league.ErrLeagueExists) {
			e.Close()
			return nil, fmt.Errorf("create league: %w", err)
		}
	}

	e.Variant, err = storedVariant(ctx, d, opts.League.Variant)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.Phases = phase.New(d, phase.Options{Rand: e.Rand, Events: e.Events, Hub: e.Hub, Metrics: opts.Metrics, Logger: logger})
	e.Driver = sim.NewDriver(d, gamesim.New(e.Variant, e.Rand), sim.Options{
		Rand: e.Rand, Events: e.Events, Phases: e.Phases, Hub: e.Hub, Metrics: opts.Metrics, Logger: logger,
	})
	return e, nil
}

func (e *Engine) Close() {
	if e.Hub != nil {
		e.Hub.Close()
	}
	if e.Events != nil {
		e.Events.Close()
	}
	if e.closeDB != nil {
		e.closeDB()
	}
}

// storedVariant prefers the variant saved with the league over the
// configured one.
func storedVariant(ctx context.Context, d store.Driver, fallback string) (variant.Variant, error) {
	name := fallback
	err := store.Run(ctx, d, store.ReadOnly, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		s, err := league.NewRepo(tx).Settings(ctx)
		if err != nil {
			return err
		}
		name = s.Variant
		return nil
	})
	if err != nil && !errors.Is(err, league.ErrNoLeague) {
		return variant.Variant{}, err
	}
	return variant.ByName(name)
}

func notifiers(cfg config.NotifyConfig, logger *slog.Logger) []eventlog.Notifier {
	var out []eventlog.Notifier
	if cfg.TelegramToken != "" {
		tg, err := eventlog.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Warn("telegram notifications disabled", "err", err)
		} else {
			out = append(out, tg)
		}
	}
	if cfg.DiscordToken != "" {
		dc, err := eventlog.NewDiscord(cfg.DiscordToken, cfg.DiscordChannelID)
		if err != nil {
			logger.Warn("discord notifications disabled", "err", err)
		} else {
			out = append(out, dc)
		}
	}
	return out
}
