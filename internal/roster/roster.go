// Package roster keeps team rosters legal: payroll limits, positional
// minimums, roster size and the active/inactive split.
package roster

import (
	"context"
	"fmt"
	"sort"

	"leaguesim/internal/league"
	"leaguesim/internal/player"
)

const (
	// Players this young or valuable are never cut to get under the cap.
	YoungAge  = 23
	CoreValue = 75
)

// Report lists what the engine did to one team, or for a user team, what
// the user has to fix.
type Report struct {
	Tid         int      `json:"tid"`
	Released    []int    `json:"released,omitempty"`
	Signed      []int    `json:"signed,omitempty"`
	Activated   []int    `json:"activated,omitempty"`
	Deactivated []int    `json:"deactivated,omitempty"`
	Messages    []string `json:"messages,omitempty"`
}

func (r Report) Changed() bool {
	return len(r.Released)+len(r.Signed)+len(r.Activated)+len(r.Deactivated) > 0
}

type team struct {
	c       *league.Context
	tid     int
	user    bool
	players []league.Player
	payroll float64
	report  Report
}

func byValueAsc(ps []league.Player) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Value < ps[j].Value })
}

func byValueDesc(ps []league.Player) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Value > ps[j].Value })
}

func (t *team) countPos(pos string) int {
	n := 0
	for _, p := range t.players {
		if p.Pos == pos {
			n++
		}
	}
	return n
}

// cuttable reports whether releasing p keeps every positional minimum.
func (t *team) cuttable(p league.Player) bool {
	floor := t.c.Variant.PositionMinimums[p.Pos]
	return floor == 0 || t.countPos(p.Pos) > floor
}

func (t *team) release(ctx context.Context, p league.Player, void bool) error {
	for i := range t.players {
		if t.players[i].Pid == p.Pid {
			t.players = append(t.players[:i], t.players[i+1:]...)
			break
		}
	}
	if void {
		t.payroll -= p.Contract.Amount
	}
	if err := player.Release(ctx, t.c, &p, void); err != nil {
		return err
	}
	t.report.Released = append(t.report.Released, p.Pid)
	return nil
}

func (t *team) sign(ctx context.Context, p league.Player) error {
	s := t.c.Settings
	contract := league.Contract{Amount: s.MinContract, Exp: max(p.Contract.Exp, s.Season)}
	if err := player.Sign(ctx, t.c, &p, t.tid, contract); err != nil {
		return err
	}
	t.players = append(t.players, p)
	t.payroll += contract.Amount
	t.report.Signed = append(t.report.Signed, p.Pid)
	return nil
}

// freeAgents returns the pool best first, optionally limited to pos.
func freeAgents(ctx context.Context, c *league.Context, pos string) ([]league.Player, error) {
	fas, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{league.FreeAgent}, Pos: pos})
	if err != nil {
		return nil, err
	}
	byValueDesc(fas)
	return fas, nil
}

// bestFreeAgent returns the most valuable free agent at pos, generating one
// when the pool is empty.
func (t *team) bestFreeAgent(ctx context.Context, pos string, taken map[int]bool) (league.Player, error) {
	fas, err := freeAgents(ctx, t.c, pos)
	if err != nil {
		return league.Player{}, err
	}
	for _, p := range fas {
		if !taken[p.Pid] {
			return p, nil
		}
	}
	age := t.c.Rand.RandInt(24, 30)
	p := player.Generate(t.c, league.FreeAgent, age, t.c.Season()-age+21, t.c.Rand.TruncGauss(35, 5, 20, 50))
	if pos != "" {
		p.Pos = pos
		p.Ratings[0].Pos = pos
	}
	return t.c.Repo.AddPlayer(ctx, p)
}

func (t *team) overCap(ctx context.Context) error {
	s := t.c.Settings
	if t.payroll <= s.SalaryCap {
		return nil
	}
	if t.user {
		t.report.Messages = append(t.report.Messages, fmt.Sprintf(
			"Your payroll of $%.0fk is over the salary cap of $%.0fk. Release players before continuing.", t.payroll, s.SalaryCap))
		return nil
	}
	candidates := append([]league.Player(nil), t.players...)
	byValueAsc(candidates)
	for _, p := range candidates {
		if t.payroll <= s.SalaryCap || len(t.players) <= s.MinRosterSize {
			break
		}
		if p.Age(s.Season) <= YoungAge || p.Value >= CoreValue || !t.cuttable(p) {
			continue
		}
		if err := t.release(ctx, p, true); err != nil {
			return err
		}
	}
	return nil
}

func (t *team) belowFloor(ctx context.Context) error {
	s := t.c.Settings
	if t.payroll >= s.MinPayroll || s.Phase == league.PhasePlayoffs {
		return nil
	}
	if t.user {
		t.report.Messages = append(t.report.Messages, fmt.Sprintf(
			"Your payroll of $%.0fk is under the minimum payroll of $%.0fk. Sign free agents before continuing.", t.payroll, s.MinPayroll))
		return nil
	}
	taken := make(map[int]bool)
	for t.payroll < s.MinPayroll && len(t.players) < s.MaxRosterSize {
		fas, err := freeAgents(ctx, t.c, "")
		if err != nil {
			return err
		}
		var pick *league.Player
		for i := range fas {
			if !taken[fas[i].Pid] {
				pick = &fas[i]
				break
			}
		}
		if pick == nil {
			return nil
		}
		taken[pick.Pid] = true
		if err := t.sign(ctx, *pick); err != nil {
			return err
		}
	}
	return nil
}

func (t *team) positions(ctx context.Context) error {
	v := t.c.Variant
	s := t.c.Settings
	for _, pos := range v.Positions {
		need := v.PositionMinimums[pos] - t.countPos(pos)
		if need <= 0 {
			continue
		}
		if t.user {
			t.report.Messages = append(t.report.Messages, fmt.Sprintf(
				"Your roster needs %d more %s. Sign free agents before continuing.", need, pos))
			continue
		}
		taken := make(map[int]bool)
		for ; need > 0; need-- {
			if len(t.players) >= s.MaxRosterSize {
				if err := t.cutLowest(ctx, false); err != nil {
					return err
				}
			}
			p, err := t.bestFreeAgent(ctx, pos, taken)
			if err != nil {
				return err
			}
			taken[p.Pid] = true
			if err := t.sign(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *team) cutLowest(ctx context.Context, void bool) error {
	candidates := append([]league.Player(nil), t.players...)
	byValueAsc(candidates)
	for _, p := range candidates {
		if t.cuttable(p) {
			return t.release(ctx, p, void)
		}
	}
	return fmt.Errorf("roster: team %d has no player that can be released", t.tid)
}

func (t *team) size(ctx context.Context) error {
	s := t.c.Settings
	n := len(t.players)
	if t.user {
		if n > s.MaxRosterSize {
			t.report.Messages = append(t.report.Messages, fmt.Sprintf(
				"Your roster has %d players, more than the maximum of %d. Release players before continuing.", n, s.MaxRosterSize))
		} else if n < s.MinRosterSize {
			t.report.Messages = append(t.report.Messages, fmt.Sprintf(
				"Your roster has %d players, fewer than the minimum of %d. Sign free agents before continuing.", n, s.MinRosterSize))
		}
		return nil
	}
	for len(t.players) > s.MaxRosterSize {
		if err := t.cutLowest(ctx, false); err != nil {
			return err
		}
	}
	taken := make(map[int]bool)
	for len(t.players) < s.MinRosterSize {
		p, err := t.bestFreeAgent(ctx, "", taken)
		if err != nil {
			return err
		}
		taken[p.Pid] = true
		if err := t.sign(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// activeOrder ranks healthy players by value, then injured ones.
func activeOrder(ps []league.Player) []league.Player {
	out := append([]league.Player(nil), ps...)
	sort.SliceStable(out, func(i, j int) bool {
		hi, hj := out[i].Injury.Healthy(), out[j].Injury.Healthy()
		if hi != hj {
			return hi
		}
		return out[i].Value > out[j].Value
	})
	return out
}

func (t *team) active(ctx context.Context) error {
	numActive := t.c.Variant.NumActive
	if numActive <= 0 {
		return nil
	}
	want := min(numActive, len(t.players))
	if t.user {
		got := 0
		for _, p := range t.players {
			if p.Active {
				got++
			}
		}
		if got != want {
			t.report.Messages = append(t.report.Messages, fmt.Sprintf(
				"You have %d active players but need exactly %d. Update your depth chart before continuing.", got, want))
		}
		return nil
	}
	for i, p := range activeOrder(t.players) {
		active := i < want
		if p.Active == active {
			continue
		}
		p.Active = active
		if err := t.c.Repo.PutPlayer(ctx, p); err != nil {
			return err
		}
		if active {
			t.report.Activated = append(t.report.Activated, p.Pid)
		} else {
			t.report.Deactivated = append(t.report.Deactivated, p.Pid)
		}
	}
	return nil
}

// Check runs every rule for tid in order. AI teams (and user teams in auto
// play) are repaired in place. Otherwise the report carries messages and
// nothing is written.
func Check(ctx context.Context, c *league.Context, tid int) (Report, error) {
	players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{tid}})
	if err != nil {
		return Report{Tid: tid}, err
	}
	payroll, err := c.Repo.Payroll(ctx, tid)
	if err != nil {
		return Report{Tid: tid}, err
	}
	t := &team{c: c, tid: tid, user: c.UserControlled(tid), players: players, payroll: payroll, report: Report{Tid: tid}}
	steps := []func(context.Context) error{t.overCap, t.belowFloor, t.positions, t.size, t.active}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return t.report, fmt.Errorf("roster check tid %d: %w", tid, err)
		}
	}
	if t.report.Changed() {
		c.Log.Debug("roster repaired", "tid", tid, "released", len(t.report.Released), "signed", len(t.report.Signed))
	}
	return t.report, nil
}

// CheckAll checks every team. User team problems are returned together as
// a *league.ValidationError after all AI teams have been repaired.
func CheckAll(ctx context.Context, c *league.Context) ([]Report, error) {
	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(teams))
	var messages []string
	for _, tm := range teams {
		r, err := Check(ctx, c, tm.Tid)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
		messages = append(messages, r.Messages...)
	}
	if len(messages) > 0 {
		return reports, &league.ValidationError{Messages: messages}
	}
	return reports, nil
}

// UpdateStrategies marks AI teams contending when they rank in the top
// half by team rating or won most of their games, rebuilding otherwise.
func UpdateStrategies(ctx context.Context, c *league.Context) error {
	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return err
	}
	ovr := make(map[int]float64, len(teams))
	for _, tm := range teams {
		players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{tm.Tid}})
		if err != nil {
			return err
		}
		ovr[tm.Tid] = c.Variant.Ratings.TeamOvr(player.Ovrs(players, false))
	}
	ranked := append([]league.Team(nil), teams...)
	sort.SliceStable(ranked, func(i, j int) bool { return ovr[ranked[i].Tid] > ovr[ranked[j].Tid] })

	for rank, tm := range ranked {
		if c.Settings.IsUserTeam(tm.Tid) {
			continue
		}
		winp := 0.5
		if ts, err := c.Repo.TeamSeason(ctx, tm.Tid, c.Season()); err == nil && ts.GP > 0 {
			winp = ts.WinPct()
		}
		strategy := league.StrategyRebuilding
		if rank < len(ranked)/2 || winp > 0.55 {
			strategy = league.StrategyContending
		}
		if strategy == tm.Strategy {
			continue
		}
		tm.Strategy = strategy
		if err := c.Repo.PutTeam(ctx, tm); err != nil {
			return err
		}
	}
	return nil
}
