// Package gamesim is the default game simulator. It draws final scores from
// the variant's scoring model and splits them into box score lines; it does
// not model individual plays.
package gamesim

import (
	"context"
	"fmt"
	"sort"

	"leaguesim/internal/league"
	"leaguesim/internal/player"
	"leaguesim/internal/random"
	"leaguesim/internal/sim"
	"leaguesim/internal/variant"
)

// MaxOvertimes bounds overtime in variants without ties. A game still level
// afterwards goes to the better rated team.
const MaxOvertimes = 10

type Simple struct {
	v   variant.Variant
	rng *random.Source
}

func New(v variant.Variant, rng *random.Source) *Simple {
	if rng == nil {
		rng = random.NewFromTime()
	}
	return &Simple{v: v, rng: rng}
}

var _ sim.Simulator = (*Simple)(nil)

func (s *Simple) Simulate(ctx context.Context, gid int, home, away sim.TeamSnapshot, opts sim.GameOptions) (sim.GameResult, error) {
	if err := ctx.Err(); err != nil {
		return sim.GameResult{}, err
	}
	g := s.v.Game
	pts := [2]int{
		g.Score(s.rng, home.Ovr, away.Ovr, true),
		g.Score(s.rng, away.Ovr, home.Ovr, false),
	}

	var pbp []string
	log := func(format string, args ...any) {
		if opts.PlayByPlay {
			pbp = append(pbp, fmt.Sprintf(format, args...))
		}
	}
	log("End of regulation: %s %d, %s %d", home.Abbrev, pts[0], away.Abbrev, pts[1])

	ties := s.v.TiesAllowed && !opts.Playoffs
	ot := 0
	for pts[0] == pts[1] && ot < MaxOvertimes {
		if ties && ot == 1 {
			break
		}
		pts[0] += g.OvertimeScore(s.rng, home.Ovr, away.Ovr)
		pts[1] += g.OvertimeScore(s.rng, away.Ovr, home.Ovr)
		ot++
		log("End of overtime %d: %s %d, %s %d", ot, home.Abbrev, pts[0], away.Abbrev, pts[1])
	}
	if pts[0] == pts[1] && !ties {
		if away.Ovr > home.Ovr {
			pts[1]++
		} else {
			pts[0]++
		}
		log("Decided on a late score")
	}

	res := sim.GameResult{Gid: gid, Overtimes: ot}
	for t, snap := range [2]sim.TeamSnapshot{home, away} {
		res.Teams[t] = s.team(snap, pts[t])
	}
	log("Final: %s %d, %s %d", home.Abbrev, pts[0], away.Abbrev, pts[1])
	res.PlayByPlay = pbp
	return res, nil
}

// team builds one side of the box score. Only active, healthy players dress;
// the best NumStarters of them start.
func (s *Simple) team(snap sim.TeamSnapshot, pts int) sim.TeamResult {
	var dressed []sim.PlayerSnapshot
	for _, p := range snap.Players {
		if p.Active && !p.Injured {
			dressed = append(dressed, p)
		}
	}
	sort.SliceStable(dressed, func(i, j int) bool { return dressed[i].Ovr > dressed[j].Ovr })

	slots := make([]variant.Slot, len(dressed))
	for i, p := range dressed {
		slots[i] = variant.Slot{Pos: p.Pos, Ovr: p.Ovr, Starter: i < s.v.NumStarters}
	}
	lines := s.v.Game.Lines(s.rng, pts, slots)

	tr := sim.TeamResult{Tid: snap.Tid, Pts: pts, Stat: league.StatLine{}}
	for i, p := range dressed {
		if lines[i] == nil {
			continue
		}
		line := league.StatLine(lines[i])
		pr := sim.PlayerResult{Pid: p.Pid, Starter: slots[i].Starter, Stat: line}
		if s.rng.Bool(s.v.InjuryRate) {
			inj := player.RandomInjury(s.rng, s.v)
			pr.Injury = &inj
		}
		tr.Stat.Add(line)
		tr.Players = append(tr.Players, pr)
	}
	tr.Stat["pts"] = float64(pts)
	return tr
}
