// Package freeagents runs the free agent pool: moods, demands and AI
// signings.
package freeagents

import (
	"context"
	"errors"
	"math"
	"sort"

	"leaguesim/internal/league"
	"leaguesim/internal/player"
	"leaguesim/internal/random"
	"leaguesim/internal/store"
)

// RefuseBelow is the mood under which a player will not talk to a team.
const RefuseBelow = 0.1

// BaseMoods rates how attractive each team is to free agents, from hype,
// last season's record and facilities rank. Values lie in [0, 1].
func BaseMoods(ctx context.Context, c *league.Context) (map[int]float64, error) {
	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]float64, len(teams))
	n := float64(max(c.Settings.NumTeams-1, 1))
	for _, t := range teams {
		ts, err := c.Repo.TeamSeason(ctx, t.Tid, c.Season())
		if errors.Is(err, store.ErrNotFound) {
			ts = league.TeamSeason{Hype: 0.5}
		} else if err != nil {
			return nil, err
		}
		winp := 0.5
		if ts.Won+ts.Lost+ts.Tied > 0 {
			winp = ts.WinPct()
		} else if prev, err := c.Repo.TeamSeason(ctx, t.Tid, c.Season()-1); err == nil && prev.GP > 0 {
			winp = prev.WinPct()
		}
		facilities := float64(c.Settings.NumTeams-t.Budget.Facilities.Rank) / n
		out[t.Tid] = random.Bound(0.5*ts.Hype+0.3*winp+0.2*facilities, 0, 1)
	}
	return out, nil
}

// GenBaseMoods regenerates every free agent's per-team mood from the base
// moods plus individual noise.
func GenBaseMoods(ctx context.Context, c *league.Context) error {
	base, err := BaseMoods(ctx, c)
	if err != nil {
		return err
	}
	players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{league.FreeAgent}})
	if err != nil {
		return err
	}
	for _, p := range players {
		p.Mood = moodFor(c, base)
		if err := c.Repo.PutPlayer(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func moodFor(c *league.Context, base map[int]float64) map[int]float64 {
	mood := make(map[int]float64, len(base))
	for tid, b := range base {
		mood[tid] = random.Bound(b+c.Rand.Gauss(0, 0.1), 0, 1)
	}
	return mood
}

// Mood returns the player's mood toward tid, defaulting to neutral.
func Mood(p league.Player, tid int) float64 {
	if m, ok := p.Mood[tid]; ok {
		return m
	}
	return 0.5
}

// AskingAmount scales the player's demand by mood toward tid: a happy
// player gives a discount, an unhappy one asks for more.
func AskingAmount(s *league.Settings, p league.Player, tid int) float64 {
	amount := p.Contract.Amount * (1.25 - 0.5*Mood(p, tid))
	amount = random.Round(amount, 50)
	return random.Bound(amount, s.MinContract, s.MaxContract)
}

// AddToFreeAgents moves p into the pool with a fresh demand and moods.
func AddToFreeAgents(ctx context.Context, c *league.Context, p *league.Player, base map[int]float64) error {
	p.Tid = league.FreeAgent
	p.Active = true
	player.UpdateValues(p, c.Season())
	p.Contract = player.GenContract(c.Settings, *p, true)
	if base != nil {
		p.Mood = moodFor(c, base)
	}
	return c.Repo.PutPlayer(ctx, *p)
}

// DecreaseDemands lowers every free agent's ask toward the minimum. It is
// applied once per simulated day.
func DecreaseDemands(ctx context.Context, c *league.Context) error {
	s := c.Settings
	players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{league.FreeAgent}})
	if err != nil {
		return err
	}
	for _, p := range players {
		amount := p.Contract.Amount - 0.025*(p.Contract.Amount-s.MinContract)
		amount = math.Max(s.MinContract, random.Round(amount, 10))
		p.Contract.Amount = amount
		minExp := s.Season
		if s.Phase > league.PhasePlayoffs {
			minExp++
		}
		p.Contract.Exp = max(p.Contract.Exp, minExp)
		if err := c.Repo.PutPlayer(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// AutoSign lets each AI team, in random order, sign at most one free agent:
// the most valuable one it can afford who is willing to join.
func AutoSign(ctx context.Context, c *league.Context) (int, error) {
	s := c.Settings
	pool, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{league.FreeAgent}})
	if err != nil {
		return 0, err
	}
	if len(pool) == 0 {
		return 0, nil
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Value > pool[j].Value })

	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return 0, err
	}
	signed := 0
	taken := make(map[int]bool)
	for _, t := range random.Shuffled(c.Rand, teams) {
		if c.UserControlled(t.Tid) {
			continue
		}
		roster, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{t.Tid}})
		if err != nil {
			return signed, err
		}
		if len(roster) >= s.MaxRosterSize {
			continue
		}
		payroll, err := c.Repo.Payroll(ctx, t.Tid)
		if err != nil {
			return signed, err
		}
		for i := range pool {
			p := &pool[i]
			if taken[p.Pid] || Mood(*p, t.Tid) < RefuseBelow {
				continue
			}
			amount := AskingAmount(s, *p, t.Tid)
			if payroll+amount > s.SalaryCap && amount > s.MinContract {
				continue
			}
			contract := league.Contract{Amount: amount, Exp: p.Contract.Exp}
			if err := player.Sign(ctx, c, p, t.Tid, contract); err != nil {
				return signed, err
			}
			taken[p.Pid] = true
			signed++
			break
		}
	}
	if signed > 0 {
		c.Log.Debug("free agents signed", "count", signed, "season", s.Season, "phase", s.Phase.String())
	}
	return signed, nil
}
