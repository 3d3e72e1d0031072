// Package awards picks the season's award winners and all-league teams.
package awards

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"leaguesim/internal/league"
	"leaguesim/internal/playoffs"
	"leaguesim/internal/random"
	"leaguesim/internal/stats"
	"leaguesim/internal/store"
	"leaguesim/internal/variant"
)

const (
	MVP       = "Most Valuable Player"
	ROY       = "Rookie of the Year"
	DPOY      = "Defensive Player of the Year"
	SMOY      = "Sixth Man of the Year"
	FinalsMVP = "Finals MVP"
)

// MinGPShare is the fraction of the most games played that a player needs
// to be considered.
const MinGPShare = 0.5

type candidate struct {
	line   stats.Line
	player league.Player
	score  float64
}

func (cd candidate) winner() league.AwardWinner {
	return league.AwardWinner{Pid: cd.player.Pid, Tid: cd.line.Tid, Name: cd.player.Name(), Pos: cd.player.Pos, Score: cd.score}
}

// rank scores each candidate and sorts them best first. Scores are stored
// as z-scores against the field so they compare across award types.
func rank(cands []candidate, score func(candidate) float64) []candidate {
	out := make([]candidate, len(cands))
	raw := make([]float64, len(cands))
	for i, cd := range cands {
		raw[i] = score(cd)
	}
	z := random.ZScores(raw)
	for i, cd := range cands {
		cd.score = z[i]
		out[i] = cd
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func best(ranked []candidate) *league.AwardWinner {
	if len(ranked) == 0 {
		return nil
	}
	w := ranked[0].winner()
	return &w
}

// pickTeams fills n teams from ranked candidates. Each team takes players in
// rank order while their group still has quota left, until every quota is
// met. Players chosen for an earlier team are skipped.
func pickTeams(ranked []candidate, quota map[string]int, group func(string) string, n int) [][]league.AwardWinner {
	total := 0
	for _, q := range quota {
		total += q
	}
	used := make(map[int]bool)
	var out [][]league.AwardWinner
	for t := 0; t < n; t++ {
		filled := make(map[string]int)
		var team []league.AwardWinner
		for _, cd := range ranked {
			if len(team) == total {
				break
			}
			g := group(cd.player.Pos)
			if used[cd.player.Pid] || filled[g] >= quota[g] {
				continue
			}
			filled[g]++
			used[cd.player.Pid] = true
			team = append(team, cd.winner())
		}
		if len(team) == 0 {
			break
		}
		out = append(out, team)
	}
	return out
}

func records(rows []league.TeamSeason) (*league.TeamRecord, []league.TeamRecord) {
	var overall *league.TeamRecord
	byConf := make(map[int]league.TeamRecord)
	var confs []int
	for _, ts := range rows {
		r := league.TeamRecord{Tid: ts.Tid, Won: ts.Won, Lost: ts.Lost, Tied: ts.Tied, Winp: ts.WinPct()}
		if overall == nil || r.Winp > overall.Winp {
			rc := r
			overall = &rc
		}
		cur, ok := byConf[ts.Cid]
		if !ok {
			confs = append(confs, ts.Cid)
		}
		if !ok || r.Winp > cur.Winp {
			byConf[ts.Cid] = r
		}
	}
	slices.Sort(confs)
	out := make([]league.TeamRecord, 0, len(confs))
	for _, cid := range confs {
		out = append(out, byConf[cid])
	}
	return overall, out
}

// Compute picks every award for the current season without saving.
func Compute(ctx context.Context, c *league.Context) (league.Awards, error) {
	season := c.Season()
	v := c.Variant
	a := league.Awards{Season: season}

	rows, err := c.Repo.TeamSeasons(ctx, season)
	if err != nil {
		return a, err
	}
	winp := make(map[int]float64, len(rows))
	for _, ts := range rows {
		winp[ts.Tid] = ts.WinPct()
	}
	a.BestRecord, a.BestRecordConfs = records(rows)

	players, err := c.Repo.NonRetired(ctx)
	if err != nil {
		return a, err
	}
	byPid := make(map[int]league.Player, len(players))
	for _, p := range players {
		byPid[p.Pid] = p
	}

	lines, err := stats.SeasonLines(ctx, c, season, false)
	if err != nil {
		return a, err
	}
	maxGP := 0
	for _, l := range lines {
		maxGP = max(maxGP, l.GP)
	}
	minGP := max(1, int(math.Ceil(MinGPShare*float64(maxGP))))
	var cands []candidate
	for _, l := range lines {
		p, ok := byPid[l.Pid]
		if !ok || l.GP < minGP {
			continue
		}
		cands = append(cands, candidate{line: l, player: p})
	}

	mvpScore := func(cd candidate) float64 { return v.Awards.MVPScore(cd.line.PerGame, winp[cd.line.Tid]) }
	dpoyScore := func(cd candidate) float64 { return v.Awards.DPOYScore(cd.line.PerGame) }
	byMVP := rank(cands, mvpScore)
	a.MVP = best(byMVP)

	var rookies, bench, defenders []candidate
	for _, cd := range cands {
		if cd.player.Draft.Year == season-1 {
			rookies = append(rookies, cd)
		}
		if cd.line.GS*2 < cd.line.GP {
			bench = append(bench, cd)
		}
		if len(v.DefenseGroups) == 0 || slices.Contains(v.DefenseGroups, v.Awards.Group(cd.player.Pos)) {
			defenders = append(defenders, cd)
		}
	}
	a.ROY = best(rank(rookies, mvpScore))
	byDPOY := rank(defenders, dpoyScore)
	a.DPOY = best(byDPOY)
	if v.SixthMan {
		a.SMOY = best(rank(bench, mvpScore))
	}

	if v.AllLeagueTeams > 0 {
		a.AllLeague = pickTeams(byMVP, quotas(v.AllLeague), v.Awards.Group, v.AllLeagueTeams)
	}
	if v.AllDefenseTeams > 0 {
		a.AllDefense = pickTeams(byDPOY, quotas(v.AllDefense), v.Awards.Group, v.AllDefenseTeams)
	}

	ps, err := c.Repo.PlayoffSeries(ctx, season)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return a, err
	}
	if champ, ok := playoffs.Champion(c.Settings, ps); ok {
		plines, err := stats.SeasonLines(ctx, c, season, true)
		if err != nil {
			return a, err
		}
		var finals []candidate
		for _, l := range plines {
			p, ok := byPid[l.Pid]
			if ok && l.Tid == champ && p.Tid == champ && l.GP > 0 {
				finals = append(finals, candidate{line: l, player: p})
			}
		}
		a.FinalsMVP = best(rank(finals, func(cd candidate) float64 { return v.Awards.MVPScore(cd.line.PerGame, 1) }))
	}
	return a, nil
}

func quotas(qs []variant.Quota) map[string]int {
	m := make(map[string]int, len(qs))
	for _, q := range qs {
		m[q.Group] += q.N
	}
	return m
}

// Save stores a, credits each winner with a player award and tells user
// teams about their winners.
func Save(ctx context.Context, c *league.Context, a league.Awards) error {
	if err := c.Repo.PutAwards(ctx, a); err != nil {
		return err
	}
	type credit struct {
		w    *league.AwardWinner
		name string
	}
	credits := []credit{{a.MVP, MVP}, {a.ROY, ROY}, {a.DPOY, DPOY}, {a.SMOY, SMOY}, {a.FinalsMVP, FinalsMVP}}
	for i := range a.AllLeague {
		for j := range a.AllLeague[i] {
			credits = append(credits, credit{&a.AllLeague[i][j], ordinal(i) + " Team All-League"})
		}
	}
	for i := range a.AllDefense {
		for j := range a.AllDefense[i] {
			credits = append(credits, credit{&a.AllDefense[i][j], ordinal(i) + " Team All-Defensive"})
		}
	}
	for _, cr := range credits {
		if cr.w == nil {
			continue
		}
		p, err := c.Repo.Player(ctx, cr.w.Pid)
		if err != nil {
			return err
		}
		p.Awards = append(p.Awards, league.PlayerAward{Season: a.Season, Type: cr.name})
		if err := c.Repo.PutPlayer(ctx, p); err != nil {
			return err
		}
		if c.Settings.IsUserTeam(cr.w.Tid) {
			c.Event(ctx, league.Event{
				Type: "award", Text: fmt.Sprintf("%s won the %d %s award.", cr.w.Name, a.Season, cr.name),
				Tids: []int{cr.w.Tid}, Pids: []int{cr.w.Pid}, ShowNotification: true,
			})
		}
	}
	if a.BestRecord != nil && c.Settings.IsUserTeam(a.BestRecord.Tid) {
		c.Event(ctx, league.Event{
			Type: "award", Text: fmt.Sprintf("The %s had the best record in the league (%d-%d).", c.TeamName(ctx, a.BestRecord.Tid), a.BestRecord.Won, a.BestRecord.Lost),
			Tids: []int{a.BestRecord.Tid},
		})
	}
	return nil
}

func ordinal(i int) string {
	switch i {
	case 0:
		return "First"
	case 1:
		return "Second"
	case 2:
		return "Third"
	}
	return fmt.Sprintf("%dth", i+1)
}

// Run computes and saves the current season's awards.
func Run(ctx context.Context, c *league.Context) (league.Awards, error) {
	a, err := Compute(ctx, c)
	if err != nil {
		return a, fmt.Errorf("awards: %w", err)
	}
	return a, Save(ctx, c, a)
}
