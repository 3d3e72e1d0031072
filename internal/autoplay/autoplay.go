// Package autoplay advances a league without a user: it plays game days
// and walks the off-season phases, drafting for every team.
package autoplay

import (
	"context"
	"fmt"
	"log/slog"

	"leaguesim/internal/draft"
	"leaguesim/internal/league"
	"leaguesim/internal/phase"
	"leaguesim/internal/random"
	"leaguesim/internal/sim"
	"leaguesim/internal/store"
)

// Player is the part of the game-day driver the runner uses.
type Player interface {
	Play(ctx context.Context, req sim.Request) (sim.Summary, error)
}

// Phaser is the part of the phase machine the runner uses.
type Phaser interface {
	NewPhase(ctx context.Context, target league.Phase, extra phase.Extra) error
	FinishFantasyDraft(ctx context.Context) error
}

type Options struct {
	// Days is how many game days one step plays.
	Days int
	// Seasons stops auto play after that many new seasons. Zero runs until
	// the autoPlay setting is turned off.
	Seasons int
	Rand    *random.Source
	Events  league.EventLogger
	Logger  *slog.Logger
}

type Runner struct {
	db     store.Driver
	player Player
	phases Phaser
	days   int
	left   int
	counts bool
	rng    *random.Source
	events league.EventLogger
	log    *slog.Logger
}

// Result says what one step did.
type Result struct {
	Action string       `json:"action"`
	Phase  league.Phase `json:"phase"`
	Season int          `json:"season"`
	Days   int          `json:"days"`
	Games  int          `json:"games"`
	// Done is set once the season budget is spent and autoPlay was switched
	// off.
	Done bool `json:"done"`
}

func New(db store.Driver, player Player, phases Phaser, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rand == nil {
		opts.Rand = random.NewFromTime()
	}
	if opts.Days <= 0 {
		opts.Days = 1
	}
	return &Runner{
		db:     db,
		player: player,
		phases: phases,
		days:   opts.Days,
		left:   opts.Seasons,
		counts: opts.Seasons > 0,
		rng:    opts.Rand,
		events: opts.Events,
		log:    opts.Logger,
	}
}

// Enable turns the league's autoPlay setting on.
func (r *Runner) Enable(ctx context.Context) error {
	return r.setAutoPlay(ctx, true)
}

// Step moves the league forward once. Nothing happens while autoPlay is
// off.
func (r *Runner) Step(ctx context.Context) (Result, error) {
	var s league.Settings
	err := store.Run(ctx, r.db, store.ReadOnly, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		cur, err := league.NewRepo(tx).Settings(ctx)
		if err != nil {
			return err
		}
		s = *cur
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{Phase: s.Phase, Season: s.Season}
	if !s.AutoPlay {
		res.Action = "idle"
		return res, nil
	}

	switch s.Phase {
	case league.PhasePreseason, league.PhaseRegularSeason, league.PhaseAfterTradeDeadline,
		league.PhasePlayoffs, league.PhaseFreeAgency:
		res.Action = "play"
		sum, err := r.player.Play(ctx, sim.Request{Days: r.days})
		if err != nil {
			return res, err
		}
		res.Days, res.Games = sum.Days, sum.Games
		res.Phase, res.Season = sum.Phase, sum.Season
		if s.Phase == league.PhaseFreeAgency && sum.Phase == league.PhasePreseason {
			done, err := r.seasonDone(ctx)
			if err != nil {
				return res, err
			}
			res.Done = done
		}
		return res, nil

	case league.PhaseBeforeDraft:
		return r.advance(ctx, res, league.PhaseDraft)

	case league.PhaseDraft:
		if err := r.draftAll(ctx); err != nil {
			return res, err
		}
		return r.advance(ctx, res, league.PhaseAfterDraft)

	case league.PhaseFantasyDraft:
		if err := r.draftAll(ctx); err != nil {
			return res, err
		}
		res.Action = "phase"
		if err := r.phases.FinishFantasyDraft(ctx); err != nil {
			return res, err
		}
		return r.reread(ctx, res)

	case league.PhaseAfterDraft:
		return r.advance(ctx, res, league.PhaseResignPlayers)

	case league.PhaseResignPlayers:
		return r.advance(ctx, res, league.PhaseFreeAgency)
	}
	return res, fmt.Errorf("%w: %s", league.ErrUnknownPhase, s.Phase)
}

func (r *Runner) advance(ctx context.Context, res Result, target league.Phase) (Result, error) {
	res.Action = "phase"
	if err := r.phases.NewPhase(ctx, target, phase.Extra{}); err != nil {
		return res, err
	}
	return r.reread(ctx, res)
}

func (r *Runner) reread(ctx context.Context, res Result) (Result, error) {
	err := store.Run(ctx, r.db, store.ReadOnly, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		s, err := league.NewRepo(tx).Settings(ctx)
		if err != nil {
			return err
		}
		res.Phase, res.Season = s.Phase, s.Season
		return nil
	})
	return res, err
}

func (r *Runner) draftAll(ctx context.Context) error {
	return store.Run(ctx, r.db, store.ReadWrite, league.AllStores, func(tx store.Tx) error {
		c, err := league.Load(ctx, tx, r.rng, r.events, r.log)
		if err != nil {
			return err
		}
		picked, err := draft.UntilUserOrEnd(ctx, c, true)
		if err != nil {
			return err
		}
		r.log.Info("auto draft", "season", c.Season(), "picks", len(picked))
		return nil
	})
}

// seasonDone counts down the season budget and switches autoPlay off when
// it runs out.
func (r *Runner) seasonDone(ctx context.Context) (bool, error) {
	if !r.counts {
		return false, nil
	}
	r.left--
	if r.left > 0 {
		return false, nil
	}
	r.log.Info("auto play season budget spent")
	return true, r.setAutoPlay(ctx, false)
}

func (r *Runner) setAutoPlay(ctx context.Context, on bool) error {
	return store.Run(ctx, r.db, store.ReadWrite, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		repo := league.NewRepo(tx)
		s, err := repo.Settings(ctx)
		if err != nil {
			return err
		}
		if s.AutoPlay == on {
			return nil
		}
		s.AutoPlay = on
		return repo.PutSettings(ctx, s)
	})
}
