// Package sim is the game-day driver: it plays scheduled days through a
// Simulator, writes the results and moves the league to the playoffs and
// the draft when the games run out.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"leaguesim/internal/freeagents"
	"leaguesim/internal/league"
	"leaguesim/internal/metrics"
	"leaguesim/internal/playoffs"
	"leaguesim/internal/random"
	"leaguesim/internal/realtime"
	"leaguesim/internal/roster"
	"leaguesim/internal/store"
)

// Actions accepted by DaysFor.
const (
	ActionDay            = "day"
	ActionWeek           = "week"
	ActionMonth          = "month"
	ActionUntilPlayoffs  = "untilPlayoffs"
	ActionUntilEnd       = "untilEnd"
	ActionUntilPreseason = "untilPreseason"
)

var ErrUnknownAction = errors.New("unknown play action")

var dayStores = []string{
	league.StoreGameAttributes, league.StoreTeams, league.StoreTeamSeasons, league.StoreTeamStats,
	league.StorePlayers, league.StorePlayerStats, league.StorePlayoffSeries, league.StoreSchedule,
	league.StoreGames, league.StoreReleasedPlayers, league.StoreEvents,
}

type Request struct {
	Days          int
	UserInitiated bool
	// PlayByPlay asks the simulator for play-by-play on user team games.
	PlayByPlay bool
}

type Summary struct {
	Days    int          `json:"days"`
	Games   int          `json:"games"`
	Phase   league.Phase `json:"phase"`
	Season  int          `json:"season"`
	Stopped bool         `json:"stopped"`
}

type Options struct {
	Rand    *random.Source
	Events  league.EventLogger
	Phases  PhaseChanger
	Hub     *realtime.Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Driver struct {
	db      store.Driver
	sim     Simulator
	rng     *random.Source
	events  league.EventLogger
	phases  PhaseChanger
	hub     *realtime.Hub
	metrics *metrics.Metrics
	log     *slog.Logger

	stop    atomic.Bool
	running atomic.Bool
}

func NewDriver(db store.Driver, s Simulator, opts Options) *Driver {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rand == nil {
		opts.Rand = random.NewFromTime()
	}
	return &Driver{
		db:      db,
		sim:     s,
		rng:     opts.Rand,
		events:  opts.Events,
		phases:  opts.Phases,
		hub:     opts.Hub,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
}

// Running reports whether Play is in progress in this process.
func (d *Driver) Running() bool { return d.running.Load() }

// Stop asks a running Play to halt before its next day. The request is
// persisted so other processes sharing the league see it.
func (d *Driver) Stop(ctx context.Context) error {
	d.stop.Store(true)
	return d.setFlags(ctx, func(s *league.Settings) { s.StopGames = true })
}

func (d *Driver) setFlags(ctx context.Context, fn func(*league.Settings)) error {
	return store.Run(ctx, d.db, store.ReadWrite, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		repo := league.NewRepo(tx)
		s, err := repo.Settings(ctx)
		if err != nil {
			return err
		}
		fn(s)
		return repo.PutSettings(ctx, s)
	})
}

type peek struct {
	settings *league.Settings
	next     []league.ScheduleGame
}

func (d *Driver) peek(ctx context.Context) (peek, error) {
	var out peek
	err := store.Run(ctx, d.db, store.ReadOnly, []string{league.StoreGameAttributes, league.StoreSchedule}, func(tx store.Tx) error {
		repo := league.NewRepo(tx)
		s, err := repo.Settings(ctx)
		if err != nil {
			return err
		}
		next, err := repo.NextDay(ctx)
		if err != nil {
			return err
		}
		out = peek{settings: s, next: next}
		return nil
	})
	return out, err
}

// DaysFor converts a play action into a number of days.
func (d *Driver) DaysFor(ctx context.Context, action string) (int, error) {
	switch action {
	case ActionDay:
		return 1, nil
	case ActionWeek:
		return 7, nil
	case ActionMonth:
		return 30, nil
	}

	var days int
	err := store.Run(ctx, d.db, store.ReadOnly, []string{league.StoreGameAttributes, league.StoreSchedule, league.StorePlayoffSeries}, func(tx store.Tx) error {
		repo := league.NewRepo(tx)
		s, err := repo.Settings(ctx)
		if err != nil {
			return err
		}
		sched, err := repo.Schedule(ctx)
		if err != nil {
			return err
		}
		seen := make(map[int]bool)
		for _, g := range sched {
			seen[g.Day] = true
		}
		remaining := len(seen)

		switch action {
		case ActionUntilPlayoffs:
			if !s.Phase.RegularSeason() && s.Phase != league.PhasePreseason {
				return league.ErrWrongPhase
			}
			days = max(remaining, 1)
		case ActionUntilEnd:
			if !s.Phase.InSeason() && s.Phase != league.PhasePreseason {
				return league.ErrWrongPhase
			}
			ps, err := repo.PlayoffSeries(ctx, s.Season)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			// every remaining series could go the distance
			bound := 0
			for r := ps.CurrentRound; r < playoffs.NumRounds(s); r++ {
				bound += max(playoffs.GamesToWin(s, ps, r)*2-1, 1)
			}
			if s.Phase == league.PhasePlayoffs {
				days = max(bound, 1)
			} else {
				days = remaining + bound
			}
		case ActionUntilPreseason:
			if s.Phase != league.PhaseFreeAgency {
				return league.ErrWrongPhase
			}
			days = max(s.DaysLeft, 1)
		default:
			return fmt.Errorf("%w %q", ErrUnknownAction, action)
		}
		return nil
	})
	return days, err
}

// Play advances the league by up to req.Days days. Game days in the regular
// season and playoffs simulate every scheduled game; free agency days let AI
// teams sign players. Empty schedules trigger the next phase.
func (d *Driver) Play(ctx context.Context, req Request) (Summary, error) {
	if !d.running.CompareAndSwap(false, true) {
		return Summary{}, league.ErrGamesInProgress
	}
	defer d.running.Store(false)

	if req.UserInitiated {
		d.stop.Store(false)
	}
	if err := d.setFlags(ctx, func(s *league.Settings) {
		if req.UserInitiated {
			s.StopGames = false
		}
		s.GamesInProgress = true
	}); err != nil {
		return Summary{}, err
	}
	defer func() {
		if err := d.setFlags(context.WithoutCancel(ctx), func(s *league.Settings) { s.GamesInProgress = false }); err != nil {
			d.log.Warn("clear games in progress failed", "err", err)
		}
	}()

	var sum Summary
	for sum.Days < req.Days {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		pk, err := d.peek(ctx)
		if err != nil {
			return sum, err
		}
		s := pk.settings
		sum.Phase, sum.Season = s.Phase, s.Season
		if d.stop.Load() || s.StopGames {
			sum.Stopped = true
			break
		}

		switch {
		case s.Phase == league.PhasePreseason:
			if err := d.changePhase(ctx, league.PhaseRegularSeason); err != nil {
				return sum, err
			}
			continue

		case s.Phase == league.PhaseRegularSeason && s.TradeDeadlineDay > 0 && len(pk.next) > 0 && pk.next[0].Day >= s.TradeDeadlineDay:
			if err := d.changePhase(ctx, league.PhaseAfterTradeDeadline); err != nil {
				return sum, err
			}
			continue

		case s.Phase.RegularSeason() && len(pk.next) == 0:
			if err := d.changePhase(ctx, league.PhasePlayoffs); err != nil {
				return sum, err
			}
			continue

		case s.Phase == league.PhasePlayoffs && len(pk.next) == 0:
			more, err := d.schedulePlayoffDay(ctx)
			if err != nil {
				return sum, err
			}
			if !more {
				if err := d.changePhase(ctx, league.PhaseBeforeDraft); err != nil {
					return sum, err
				}
				sum.Phase = league.PhaseBeforeDraft
				return sum, nil
			}
			continue

		case s.Phase == league.PhaseFreeAgency:
			left, err := d.freeAgencyDay(ctx)
			if err != nil {
				return sum, err
			}
			sum.Days++
			if left <= 0 {
				if err := d.changePhase(ctx, league.PhasePreseason); err != nil {
					return sum, err
				}
				sum.Phase = league.PhasePreseason
				return sum, nil
			}
			continue

		case !s.Phase.InSeason():
			if sum.Days == 0 {
				return sum, fmt.Errorf("play in %s: %w", s.Phase, league.ErrWrongPhase)
			}
			return sum, nil
		}

		if err := d.checkRosters(ctx); err != nil {
			return sum, err
		}
		day, err := d.gameDay(ctx, req)
		if err != nil {
			return sum, err
		}
		sum.Days++
		sum.Games += day.games
		switch {
		case day.bracketDone:
			if err := d.changePhase(ctx, league.PhaseBeforeDraft); err != nil {
				return sum, err
			}
			sum.Phase = league.PhaseBeforeDraft
			return sum, nil
		case day.seasonDone:
			if err := d.changePhase(ctx, league.PhasePlayoffs); err != nil {
				return sum, err
			}
		}
	}

	pk, err := d.peek(ctx)
	if err == nil {
		sum.Phase, sum.Season = pk.settings.Phase, pk.settings.Season
	}
	return sum, err
}

func (d *Driver) changePhase(ctx context.Context, target league.Phase) error {
	if d.phases == nil {
		return fmt.Errorf("no phase machine to move to %s", target)
	}
	d.log.Info("games ran out, changing phase", "target", target.String())
	return d.phases.ChangePhase(ctx, target)
}

func (d *Driver) load(ctx context.Context, tx store.Tx) (*league.Context, error) {
	return league.Load(ctx, tx, d.rng, d.events, d.log)
}

// checkRosters repairs AI rosters and runs the in-season free agent
// micro-step. AI fixes are committed even when a user team blocks play.
func (d *Driver) checkRosters(ctx context.Context) error {
	var blocked error
	err := store.Run(ctx, d.db, store.ReadWrite, dayStores, func(tx store.Tx) error {
		blocked = nil
		c, err := d.load(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := roster.CheckAll(ctx, c); err != nil {
			if !league.IsValidation(err) {
				return err
			}
			blocked = err
			return nil
		}
		if c.Phase() == league.PhasePlayoffs {
			return nil
		}
		if c.Rand.Bool(c.Settings.FreeAgencyDailyChance) {
			n, err := freeagents.AutoSign(ctx, c)
			if err != nil {
				return err
			}
			if n > 0 {
				c.Log.Debug("in-season free agent signings", "count", n)
			}
		}
		return freeagents.DecreaseDemands(ctx, c)
	})
	if err != nil {
		return err
	}
	return blocked
}

func (d *Driver) schedulePlayoffDay(ctx context.Context) (bool, error) {
	var more bool
	err := store.Run(ctx, d.db, store.ReadWrite, dayStores, func(tx store.Tx) error {
		c, err := d.load(ctx, tx)
		if err != nil {
			return err
		}
		more, err = playoffs.ScheduleDay(ctx, c)
		return err
	})
	return more, err
}

// freeAgencyDay is one day of the free agency period. It returns the days
// left afterwards.
func (d *Driver) freeAgencyDay(ctx context.Context) (int, error) {
	var left int
	err := store.Run(ctx, d.db, store.ReadWrite, dayStores, func(tx store.Tx) error {
		c, err := d.load(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := freeagents.AutoSign(ctx, c); err != nil {
			return err
		}
		if err := freeagents.DecreaseDemands(ctx, c); err != nil {
			return err
		}
		c.Settings.DaysLeft = max(c.Settings.DaysLeft-1, 0)
		left = c.Settings.DaysLeft
		return c.SaveSettings(ctx)
	})
	if err != nil {
		return 0, err
	}
	d.hub.Publish(realtime.Update{Tags: []string{"playerMovement"}})
	return left, nil
}

type dayResult struct {
	games int
	// seasonDone is set when the regular season schedule is now empty,
	// bracketDone when the playoffs have a champion.
	seasonDone  bool
	bracketDone bool
}

// gameDay simulates the next scheduled day in one transaction.
func (d *Driver) gameDay(ctx context.Context, req Request) (dayResult, error) {
	start := time.Now()
	var (
		out         dayResult
		playoffGame bool
	)
	err := store.Run(ctx, d.db, store.ReadWrite, dayStores, func(tx store.Tx) error {
		out = dayResult{}
		c, err := d.load(ctx, tx)
		if err != nil {
			return err
		}
		playoffGame = c.Phase() == league.PhasePlayoffs
		games, err := c.Repo.NextDay(ctx)
		if err != nil || len(games) == 0 {
			return err
		}

		snaps := make(map[int]TeamSnapshot)
		snapshot := func(tid int) (TeamSnapshot, error) {
			if s, ok := snaps[tid]; ok {
				return s, nil
			}
			s, err := Snapshot(ctx, c, tid)
			if err == nil {
				snaps[tid] = s
			}
			return s, err
		}

		var tids []int
		for _, g := range games {
			home, err := snapshot(g.HomeTid)
			if err != nil {
				return err
			}
			away, err := snapshot(g.AwayTid)
			if err != nil {
				return err
			}
			opts := GameOptions{
				Playoffs:   playoffGame,
				PlayByPlay: req.PlayByPlay && (c.Settings.IsUserTeam(g.HomeTid) || c.Settings.IsUserTeam(g.AwayTid)),
			}
			res, err := d.sim.Simulate(ctx, g.Gid, home, away, opts)
			if err != nil {
				return fmt.Errorf("simulate game %d: %w", g.Gid, err)
			}
			res.Gid = g.Gid
			if err := writeResult(ctx, c, g, res, [2]TeamSnapshot{home, away}, playoffGame); err != nil {
				return fmt.Errorf("game %d: %w", g.Gid, err)
			}
			tids = append(tids, g.HomeTid, g.AwayTid)
			out.games++
		}
		if err := tickCounters(ctx, c, tids); err != nil {
			return err
		}

		if playoffGame {
			more, err := playoffs.ScheduleDay(ctx, c)
			if err != nil {
				return err
			}
			out.bracketDone = !more
			return nil
		}
		next, err := c.Repo.NextDay(ctx)
		if err != nil {
			return err
		}
		out.seasonDone = len(next) == 0
		return nil
	})
	if err != nil {
		return dayResult{}, err
	}

	d.metrics.ObserveDay(out.games, playoffGame, time.Since(start))
	d.hub.Publish(realtime.Update{Tags: []string{"gameSim"}})
	d.log.Debug("game day simulated", "games", out.games, "playoffs", playoffGame, "took", time.Since(start).String())
	return out, nil
}
