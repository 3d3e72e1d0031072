// Package contract runs contract negotiations between a team and a player.
package contract

import (
	"context"
	"errors"
	"fmt"
	"math"

	"leaguesim/internal/freeagents"
	"leaguesim/internal/league"
	"leaguesim/internal/player"
	"leaguesim/internal/random"
	"leaguesim/internal/store"
)

// MaxYears is the longest contract a player will sign.
const MaxYears = 5

func minExp(s *league.Settings) int {
	if s.Phase > league.PhasePlayoffs {
		return s.Season + 1
	}
	return s.Season
}

// Demand is what the player asks for a contract ending in exp: the further
// exp is from the preferred length, the higher the ask.
func Demand(s *league.Settings, n league.Negotiation, exp int) float64 {
	diff := math.Abs(float64(exp - n.Orig.Exp))
	amount := random.Round(n.Orig.Amount*(1+0.05*diff), 50)
	return random.Bound(amount, s.MinContract, s.MaxContract)
}

func validTerms(s *league.Settings, amount float64, exp int) error {
	if amount < s.MinContract || amount > s.MaxContract {
		return fmt.Errorf("%w: amount %.0f outside [%.0f, %.0f]", league.ErrInvalidContract, amount, s.MinContract, s.MaxContract)
	}
	if lo := minExp(s); exp < lo || exp > lo+MaxYears-1 {
		return fmt.Errorf("%w: expiration %d outside [%d, %d]", league.ErrInvalidContract, exp, lo, lo+MaxYears-1)
	}
	return nil
}

func checkRosterAndCap(ctx context.Context, c *league.Context, tid int, amount float64) error {
	s := c.Settings
	roster, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{tid}})
	if err != nil {
		return err
	}
	if len(roster) >= s.MaxRosterSize {
		return fmt.Errorf("%w: %d players", league.ErrRosterFull, len(roster))
	}
	payroll, err := c.Repo.Payroll(ctx, tid)
	if err != nil {
		return err
	}
	if payroll+amount > s.SalaryCap && amount > s.MinContract {
		return fmt.Errorf("%w: payroll %.0f + %.0f > %.0f", league.ErrOverCap, payroll, amount, s.SalaryCap)
	}
	return nil
}

// Start opens a negotiation. Free agents must have roster space and cap
// room available; re-signing skips both checks.
func Start(ctx context.Context, c *league.Context, pid, tid int, resigning bool) (league.Negotiation, error) {
	s := c.Settings
	if s.Phase == league.PhaseDraft || s.Phase == league.PhaseFantasyDraft {
		return league.Negotiation{}, fmt.Errorf("%w: %s", league.ErrWrongPhase, s.Phase)
	}
	p, err := c.Repo.Player(ctx, pid)
	if err != nil {
		return league.Negotiation{}, err
	}
	if resigning {
		if p.Tid != tid {
			return league.Negotiation{}, fmt.Errorf("%w: player %d is on team %d", league.ErrInvalidContract, pid, p.Tid)
		}
	} else {
		if p.Tid != league.FreeAgent {
			return league.Negotiation{}, fmt.Errorf("%w: pid %d", league.ErrNotFreeAgent, pid)
		}
		if freeagents.Mood(p, tid) < freeagents.RefuseBelow {
			return league.Negotiation{}, fmt.Errorf("%w: %s", league.ErrPlayerRefused, p.Name())
		}
		if err := checkRosterAndCap(ctx, c, tid, s.MinContract); err != nil {
			return league.Negotiation{}, err
		}
	}

	ask := league.Terms{Amount: freeagents.AskingAmount(s, p, tid), Exp: p.Contract.Exp}
	if resigning {
		fresh := player.GenContract(s, p, true)
		ask = league.Terms{Amount: freeagents.AskingAmount(s, league.Player{Contract: fresh, Mood: p.Mood}, tid), Exp: fresh.Exp}
	}
	ask.Exp = min(max(ask.Exp, minExp(s)), minExp(s)+MaxYears-1)
	n := league.Negotiation{Pid: pid, Tid: tid, Resigning: resigning, Player: ask, Team: ask, Orig: ask}
	if err := c.Repo.AddNegotiation(ctx, n); err != nil {
		return league.Negotiation{}, err
	}
	return n, nil
}

// Offer records the team's offer and the player's counter for that length.
func Offer(ctx context.Context, c *league.Context, pid int, amount float64, exp int) (league.Negotiation, error) {
	n, err := c.Repo.Negotiation(ctx, pid)
	if err != nil {
		return n, err
	}
	if err := validTerms(c.Settings, amount, exp); err != nil {
		return n, err
	}
	n.Team = league.Terms{Amount: amount, Exp: exp}
	n.Player = league.Terms{Amount: Demand(c.Settings, n, exp), Exp: exp}
	return n, c.Repo.PutNegotiation(ctx, n)
}

// Accept signs the player at the current counter. The cap applies except
// to re-signings and minimum contracts.
func Accept(ctx context.Context, c *league.Context, pid int) (league.Player, error) {
	n, err := c.Repo.Negotiation(ctx, pid)
	if err != nil {
		return league.Player{}, err
	}
	if err := validTerms(c.Settings, n.Player.Amount, n.Player.Exp); err != nil {
		return league.Player{}, err
	}
	if n.Team.Amount < n.Player.Amount || n.Team.Exp != n.Player.Exp {
		return league.Player{}, fmt.Errorf("%w: offer %.0f through %d, asking %.0f through %d",
			league.ErrPlayerRefused, n.Team.Amount, n.Team.Exp, n.Player.Amount, n.Player.Exp)
	}
	p, err := c.Repo.Player(ctx, pid)
	if err != nil {
		return p, err
	}
	if !n.Resigning {
		if p.Tid != league.FreeAgent {
			return p, fmt.Errorf("%w: pid %d", league.ErrNotFreeAgent, pid)
		}
		if err := checkRosterAndCap(ctx, c, n.Tid, n.Player.Amount); err != nil {
			return p, err
		}
	}
	contract := league.Contract{Amount: n.Player.Amount, Exp: n.Player.Exp}
	if err := player.Sign(ctx, c, &p, n.Tid, contract); err != nil {
		return p, err
	}
	if n.Resigning {
		p.GamesUntilTradable = 0
		if err := c.Repo.PutPlayer(ctx, p); err != nil {
			return p, err
		}
	}
	return p, c.Repo.DeleteNegotiation(ctx, pid)
}

// Cancel ends one negotiation. A player whose re-signing talks end goes to
// free agency.
func Cancel(ctx context.Context, c *league.Context, pid int) error {
	n, err := c.Repo.Negotiation(ctx, pid)
	if err != nil {
		return err
	}
	return cancel(ctx, c, n, nil)
}

func cancel(ctx context.Context, c *league.Context, n league.Negotiation, base map[int]float64) error {
	if err := c.Repo.DeleteNegotiation(ctx, n.Pid); err != nil {
		return err
	}
	if !n.Resigning {
		return nil
	}
	p, err := c.Repo.Player(ctx, n.Pid)
	if errors.Is(err, league.ErrPlayerNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.Tid != n.Tid {
		return nil
	}
	if base == nil {
		if base, err = freeagents.BaseMoods(ctx, c); err != nil {
			return err
		}
	}
	return freeagents.AddToFreeAgents(ctx, c, &p, base)
}

// CancelAll ends every open negotiation.
func CancelAll(ctx context.Context, c *league.Context) error {
	all, err := c.Repo.Negotiations(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return nil
	}
	base, err := freeagents.BaseMoods(ctx, c)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	for _, n := range all {
		if err := cancel(ctx, c, n, base); err != nil {
			return err
		}
	}
	return nil
}

// OpenResigning starts a re-signing negotiation for every user-team player
// whose contract expires this season.
func OpenResigning(ctx context.Context, c *league.Context) (int, error) {
	opened := 0
	for _, tid := range c.Settings.UserTids {
		if !c.UserControlled(tid) {
			continue
		}
		players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{tid}})
		if err != nil {
			return opened, err
		}
		for _, p := range players {
			if p.Contract.Exp > c.Season() {
				continue
			}
			_, err := Start(ctx, c, p.Pid, tid, true)
			if errors.Is(err, league.ErrNegotiationExists) {
				continue
			}
			if err != nil {
				return opened, err
			}
			opened++
		}
	}
	return opened, nil
}
