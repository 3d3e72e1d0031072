// Package phase moves a league through its season: preseason, regular
// season, playoffs, draft, re-signing and free agency. Each transition runs
// one workflow in a single transaction scoped to the stores it touches.
package phase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leaguesim/internal/league"
	"leaguesim/internal/metrics"
	"leaguesim/internal/random"
	"leaguesim/internal/realtime"
	"leaguesim/internal/store"
)

// Extra carries optional arguments for a transition.
type Extra struct {
	// ReturnTo is where the league goes after a fantasy draft. It defaults
	// to the phase the draft was started from.
	ReturnTo *league.Phase
}

type Options struct {
	Rand    *random.Source
	Events  league.EventLogger
	Hub     *realtime.Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Now is overridable for tests of lock expiry.
	Now func() time.Time
}

type Machine struct {
	db      store.Driver
	rng     *random.Source
	events  league.EventLogger
	hub     *realtime.Hub
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	lock TransitionLock

	mu        sync.Mutex
	cancel    context.CancelFunc
	committed bool
}

func New(db store.Driver, opts Options) *Machine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rand == nil {
		opts.Rand = random.NewFromTime()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{
		db:      db,
		rng:     opts.Rand,
		events:  opts.Events,
		hub:     opts.Hub,
		metrics: opts.Metrics,
		log:     opts.Logger,
		now:     opts.Now,
	}
}

// ChangePhase is NewPhase without extras. It lets the game-day driver move
// the league when games run out.
func (m *Machine) ChangePhase(ctx context.Context, target league.Phase) error {
	return m.NewPhase(ctx, target, Extra{})
}

// FinishFantasyDraft returns the league to the phase stored when the
// fantasy draft started.
func (m *Machine) FinishFantasyDraft(ctx context.Context) error {
	var next *league.Phase
	err := store.Run(ctx, m.db, store.ReadOnly, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		s, err := league.NewRepo(tx).Settings(ctx)
		if err != nil {
			return err
		}
		if s.Phase != league.PhaseFantasyDraft {
			return fmt.Errorf("%w: not in a fantasy draft", league.ErrWrongPhase)
		}
		next = s.NextPhase
		return nil
	})
	if err != nil {
		return err
	}
	target := league.PhasePreseason
	if next != nil {
		target = *next
	}
	return m.NewPhase(ctx, target, Extra{})
}

// Current reads the league's phase and season.
func (m *Machine) Current(ctx context.Context) (league.Phase, int, error) {
	var (
		p      league.Phase
		season int
	)
	err := store.Run(ctx, m.db, store.ReadOnly, []string{league.StoreGameAttributes}, func(tx store.Tx) error {
		s, err := league.NewRepo(tx).Settings(ctx)
		if err != nil {
			return err
		}
		p, season = s.Phase, s.Season
		return nil
	})
	return p, season, err
}

// InProgress reports whether this process is running a transition.
func (m *Machine) InProgress() bool { return m.lock.Held() }

// NewPhase moves the league to target. Asking for the current phase does
// nothing. Only one transition runs at a time, across processes sharing the
// database.
func (m *Machine) NewPhase(ctx context.Context, target league.Phase, extra Extra) error {
	from, _, err := m.Current(ctx)
	if err != nil {
		return err
	}
	if from == target {
		m.log.Debug("already in phase", "phase", target.String())
		return nil
	}
	if !league.LegalTransition(from, target) {
		return fmt.Errorf("%w: %s to %s", league.ErrIllegalTransition, from, target)
	}

	if !m.lock.TryLock() {
		return league.ErrPhaseChangeInProgress
	}
	defer m.lock.Unlock()

	owner, err := acquire(ctx, m.db, target, m.now())
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx), m.db, owner); err != nil {
			m.log.Error("release phase lock", "err", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel, m.committed = cancel, false
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.cancel, m.committed = nil, false
		m.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	res, err := m.run(runCtx, from, target, extra)
	m.metrics.ObservePhase(target.String(), err, time.Since(start))
	if err != nil {
		m.log.Error("phase change failed", "from", from.String(), "to", target.String(), "err", err)
		return fmt.Errorf("phase %s: %w", target, err)
	}

	m.metrics.SetSeason(res.season)
	m.hub.Publish(realtime.Update{
		Tags:        append([]string{"newPhase"}, res.tags...),
		RedirectURL: res.redirect,
	})
	m.log.Info("phase changed", "from", from.String(), "to", res.phase.String(), "season", res.season, "took", time.Since(start))
	return nil
}

// Abort cancels an in-flight transition. It reports whether there was one
// to cancel; a transition that already committed stays committed.
func (m *Machine) Abort() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return false
	}
	if m.committed {
		m.log.Info("abort ignored, phase change already committed")
		return false
	}
	m.cancel()
	m.log.Warn("phase change aborted")
	return true
}

// outcome is what finalize reports to the presentation layer.
type outcome struct {
	phase    league.Phase
	season   int
	tags     []string
	redirect string
}

func (m *Machine) run(ctx context.Context, from, target league.Phase, extra Extra) (outcome, error) {
	wf, stores := workflowFor(from, target)
	var res outcome
	err := store.Run(ctx, m.db, store.ReadWrite, stores, func(tx store.Tx) error {
		c, err := league.Load(ctx, tx, m.rng, m.events, m.log)
		if err != nil {
			return err
		}
		// another process may have moved the league since we looked
		if c.Phase() != from {
			return fmt.Errorf("%w: phase changed to %s during request", league.ErrPhaseChangeInProgress, c.Phase())
		}
		r, err := wf(ctx, c, target, extra)
		if err != nil {
			return err
		}
		res = r
		res.phase, res.season = target, c.Season()
		if err := finalize(ctx, c, target); err != nil {
			return err
		}
		return m.committing(ctx)
	})
	if err != nil {
		return outcome{}, err
	}
	return res, nil
}

// committing marks the transition past the point of abort. From here Abort
// is a no-op, so the commit that follows can't be cancelled by it.
func (m *Machine) committing(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.committed = true
	return nil
}

// finalize persists the new phase inside the workflow transaction.
func finalize(ctx context.Context, c *league.Context, target league.Phase) error {
	c.Settings.Phase = target
	return c.SaveSettings(ctx)
}
