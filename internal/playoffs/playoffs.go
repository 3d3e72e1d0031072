// Package playoffs seeds the bracket, schedules playoff games and tracks
// series results.
package playoffs

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"leaguesim/internal/finance"
	"leaguesim/internal/league"
	"leaguesim/internal/store"
	"leaguesim/internal/variant"
)

// NumRounds is how many rounds are played given the configured series and
// the number of teams: early rounds are dropped until the bracket fits.
func NumRounds(s *league.Settings) int {
	r := len(s.NumGamesPlayoffSeries)
	for r > 0 && 1<<r > s.NumTeams {
		r--
	}
	return r
}

// GamesToWin returns the wins needed to take a series in round.
func GamesToWin(s *league.Settings, ps league.PlayoffSeries, round int) int {
	i := ps.FirstRound + round
	if i < 0 || i >= len(s.NumGamesPlayoffSeries) {
		return 1
	}
	return variant.NumGamesToWin(s.NumGamesPlayoffSeries[i])
}

func seriesLength(s *league.Settings, ps league.PlayoffSeries, round int) int {
	i := ps.FirstRound + round
	if i < 0 || i >= len(s.NumGamesPlayoffSeries) {
		return 1
	}
	return s.NumGamesPlayoffSeries[i]
}

// Decided returns the winner and loser of m once either side has enough
// wins.
func Decided(m league.Matchup, toWin int) (winner, loser league.SeriesTeam, ok bool) {
	switch {
	case m.Home.Won >= toWin:
		return m.Home, m.Away, true
	case m.Away.Won >= toWin:
		return m.Away, m.Home, true
	}
	return league.SeriesTeam{}, league.SeriesTeam{}, false
}

type entry struct {
	tid, cid, did int
	winp          float64
}

// Seeds ranks each seeding group, best first. Division leaders are seeded
// ahead of all other teams in their group regardless of record. Groups are
// the conferences when the bracket divides evenly among them, otherwise
// the whole league.
func Seeds(ctx context.Context, c *league.Context) ([][]league.SeriesTeam, error) {
	s := c.Settings
	rounds := NumRounds(s)
	if rounds == 0 {
		return nil, nil
	}
	rows, err := c.Repo.TeamSeasons(ctx, s.Season)
	if err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(rows))
	for _, ts := range rows {
		entries = append(entries, entry{tid: ts.Tid, cid: ts.Cid, did: ts.Did, winp: ts.WinPct()})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].winp != entries[j].winp {
			return entries[i].winp > entries[j].winp
		}
		return entries[i].tid < entries[j].tid
	})

	bracket := 1 << rounds
	groups := [][]entry{entries}
	if n := len(s.Confs); n > 1 && bracket%n == 0 && bracket/n >= 2 && isPow2(bracket/n) {
		byConf := make(map[int][]entry, n)
		for _, e := range entries {
			byConf[e.cid] = append(byConf[e.cid], e)
		}
		split := make([][]entry, 0, n)
		for _, conf := range s.Confs {
			if len(byConf[conf.Cid]) < bracket/n {
				split = nil
				break
			}
			split = append(split, byConf[conf.Cid])
		}
		if split != nil {
			groups = split
		}
	}

	size := bracket / len(groups)
	out := make([][]league.SeriesTeam, 0, len(groups))
	for _, g := range groups {
		leaders := make([]entry, 0)
		rest := make([]entry, 0, len(g))
		seen := make(map[int]bool)
		for _, e := range g {
			if !seen[e.did] {
				seen[e.did] = true
				leaders = append(leaders, e)
			} else {
				rest = append(rest, e)
			}
		}
		ordered := append(leaders, rest...)
		seeds := make([]league.SeriesTeam, 0, size)
		for i := 0; i < size && i < len(ordered); i++ {
			seeds = append(seeds, league.SeriesTeam{Tid: ordered[i].tid, Cid: ordered[i].cid, Seed: i + 1})
		}
		out = append(out, seeds)
	}
	return out, nil
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// order lists seeds in bracket order so that adjacent pairs meet in the
// first round and the top seeds can only meet late.
func order(n int) []int {
	if n <= 1 {
		return []int{1}
	}
	if n == 2 {
		return []int{1, 2}
	}
	prev := order(n / 2)
	out := make([]int, 0, n)
	for _, s := range prev {
		out = append(out, s, n+1-s)
	}
	return out
}

// Bracket pairs each group's seeds into first round matchups, higher seed
// at home.
func Bracket(groups [][]league.SeriesTeam) []league.Matchup {
	var out []league.Matchup
	for _, seeds := range groups {
		pos := order(len(seeds))
		for i := 0; i+1 < len(pos); i += 2 {
			out = append(out, league.Matchup{Home: seeds[pos[i]-1], Away: seeds[pos[i+1]-1]})
		}
	}
	return out
}

// Start seeds and saves the bracket, then sets up qualifiers: playoff stats
// rows, hype and playoffRoundsWon. Non-qualifiers lose hype.
func Start(ctx context.Context, c *league.Context) (league.PlayoffSeries, error) {
	s := c.Settings
	groups, err := Seeds(ctx, c)
	if err != nil {
		return league.PlayoffSeries{}, err
	}
	ps := league.PlayoffSeries{
		Season:     s.Season,
		FirstRound: len(s.NumGamesPlayoffSeries) - NumRounds(s),
		Series:     [][]league.Matchup{Bracket(groups)},
	}
	if err := c.Repo.PutPlayoffSeries(ctx, ps); err != nil {
		return ps, err
	}

	qualified := make(map[int]bool)
	for _, g := range groups {
		for _, st := range g {
			qualified[st.Tid] = true
		}
	}
	rows, err := c.Repo.TeamSeasons(ctx, s.Season)
	if err != nil {
		return ps, err
	}
	for _, ts := range rows {
		q := qualified[ts.Tid]
		ts.Hype = finance.PlayoffHype(ts.Hype, q)
		if q {
			ts.PlayoffRoundsWon = 0
		} else {
			ts.PlayoffRoundsWon = -1
		}
		if err := c.Repo.PutTeamSeason(ctx, ts); err != nil {
			return ps, err
		}
		if !q {
			continue
		}
		if _, err := c.Repo.AddTeamStatsRow(ctx, ts.Tid, s.Season, true); err != nil {
			return ps, err
		}
		players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{ts.Tid}})
		if err != nil {
			return ps, err
		}
		for _, p := range players {
			if _, err := c.Repo.AddPlayerStatsRow(ctx, p.Pid, ts.Tid, s.Season, true); err != nil {
				return ps, err
			}
		}
		if c.Settings.IsUserTeam(ts.Tid) {
			c.Event(ctx, league.Event{
				Type: "playoffs", Text: fmt.Sprintf("The %s made the playoffs.", c.TeamName(ctx, ts.Tid)),
				Tids: []int{ts.Tid}, ShowNotification: true,
			})
		}
	}
	c.Log.Info("playoffs started", "season", s.Season, "teams", len(qualified), "rounds", NumRounds(s))
	return ps, nil
}

// higherSeedHome reports whether the higher seed hosts game number g
// (zero based) of a series of length n: 2-2-1-1-1 for long series,
// alternating otherwise.
func higherSeedHome(g, n int) bool {
	if n <= 3 {
		return g%2 == 0
	}
	switch {
	case g < 2:
		return true
	case g < 4:
		return false
	default:
		return g%2 == 0
	}
}

// ScheduleDay queues the next game of every live series. When the current
// round is over the next one is built first. It returns false once the
// final is decided.
func ScheduleDay(ctx context.Context, c *league.Context) (bool, error) {
	s := c.Settings
	ps, err := c.Repo.PlayoffSeries(ctx, s.Season)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(ps.Series) == 0 || len(ps.Series[0]) == 0 {
		return false, nil
	}

	round := ps.Series[ps.CurrentRound]
	toWin := GamesToWin(s, ps, ps.CurrentRound)
	live := 0
	for _, m := range round {
		if _, _, ok := Decided(m, toWin); !ok {
			live++
		}
	}
	if live == 0 {
		if len(round) == 1 {
			return false, nil
		}
		next := make([]league.Matchup, 0, len(round)/2)
		for i := 0; i+1 < len(round); i += 2 {
			a, _, _ := Decided(round[i], toWin)
			b, _, _ := Decided(round[i+1], toWin)
			a.Won, b.Won = 0, 0
			if b.Seed < a.Seed {
				a, b = b, a
			}
			next = append(next, league.Matchup{Home: a, Away: b})
		}
		ps.Series = append(ps.Series, next)
		ps.CurrentRound++
		if err := c.Repo.PutPlayoffSeries(ctx, ps); err != nil {
			return false, err
		}
		round = next
		toWin = GamesToWin(s, ps, ps.CurrentRound)
	}

	n := seriesLength(s, ps, ps.CurrentRound)
	for _, m := range round {
		if _, _, ok := Decided(m, toWin); ok {
			continue
		}
		home, away := m.Home.Tid, m.Away.Tid
		if !higherSeedHome(m.Home.Won+m.Away.Won, n) {
			home, away = away, home
		}
		gid, err := c.Repo.NextGid(ctx)
		if err != nil {
			return false, err
		}
		g := league.ScheduleGame{Gid: gid, Day: 1, HomeTid: home, AwayTid: away}
		if err := c.Repo.AddScheduleGame(ctx, g); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Result is the series outcome of one recorded playoff game.
type Result struct {
	SeriesOver bool
	Champion   bool
	Winner     league.SeriesTeam
	Loser      league.SeriesTeam
}

// RecordGame credits a playoff win to winnerTid in its current series. When
// the series is decided only the winner's playoffRoundsWon increments.
func RecordGame(ctx context.Context, c *league.Context, winnerTid int) (Result, error) {
	s := c.Settings
	ps, err := c.Repo.PlayoffSeries(ctx, s.Season)
	if err != nil {
		return Result{}, err
	}
	round := ps.Series[ps.CurrentRound]
	toWin := GamesToWin(s, ps, ps.CurrentRound)
	for i := range round {
		m := &round[i]
		if m.Home.Tid != winnerTid && m.Away.Tid != winnerTid {
			continue
		}
		if _, _, ok := Decided(*m, toWin); ok {
			return Result{}, fmt.Errorf("playoffs: series of tid %d already decided", winnerTid)
		}
		if m.Home.Tid == winnerTid {
			m.Home.Won++
		} else {
			m.Away.Won++
		}
		if err := c.Repo.PutPlayoffSeries(ctx, ps); err != nil {
			return Result{}, err
		}
		winner, loser, ok := Decided(*m, toWin)
		if !ok {
			return Result{}, nil
		}
		res := Result{SeriesOver: true, Winner: winner, Loser: loser, Champion: len(round) == 1}
		return res, seriesOver(ctx, c, res)
	}
	return Result{}, fmt.Errorf("playoffs: tid %d has no series in round %d", winnerTid, ps.CurrentRound)
}

func seriesOver(ctx context.Context, c *league.Context, res Result) error {
	s := c.Settings
	ts, err := c.Repo.TeamSeason(ctx, res.Winner.Tid, s.Season)
	if err != nil {
		return err
	}
	ts.PlayoffRoundsWon++
	if err := c.Repo.PutTeamSeason(ctx, ts); err != nil {
		return err
	}

	score := fmt.Sprintf("%d-%d", res.Winner.Won, res.Loser.Won)
	won, lost := c.TeamName(ctx, res.Winner.Tid), c.TeamName(ctx, res.Loser.Tid)
	switch {
	case res.Champion:
		c.Event(ctx, league.Event{
			Type: "playoffs", Text: fmt.Sprintf("The %s won the %d league championship, %s over the %s.", won, s.Season, score, lost),
			Tids: []int{res.Winner.Tid, res.Loser.Tid}, ShowNotification: true,
		})
	case s.IsUserTeam(res.Winner.Tid):
		c.Event(ctx, league.Event{
			Type: "playoffs", Text: fmt.Sprintf("The %s advanced past the %s, %s.", won, lost, score),
			Tids: []int{res.Winner.Tid, res.Loser.Tid}, ShowNotification: true,
		})
	case s.IsUserTeam(res.Loser.Tid):
		c.Event(ctx, league.Event{
			Type: "playoffs", Text: fmt.Sprintf("The %s were eliminated by the %s, %s.", lost, won, score),
			Tids: []int{res.Loser.Tid, res.Winner.Tid}, ShowNotification: true,
		})
	}
	return nil
}

// Champion returns the tid that won the final, if it has been decided.
func Champion(s *league.Settings, ps league.PlayoffSeries) (int, bool) {
	if len(ps.Series) == 0 {
		return 0, false
	}
	last := ps.Series[len(ps.Series)-1]
	if len(last) != 1 {
		return 0, false
	}
	w, _, ok := Decided(last[0], GamesToWin(s, ps, len(ps.Series)-1))
	return w.Tid, ok
}
