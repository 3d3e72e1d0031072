package playoffs

import (
	"context"
	"fmt"
	"testing"

	"leaguesim/internal/league"
	"leaguesim/internal/league/leaguetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRecords(t *testing.T, c *league.Context, won func(tid int) int) {
	t.Helper()
	ctx := context.Background()
	rows, err := c.Repo.TeamSeasons(ctx, c.Season())
	require.NoError(t, err)
	for _, ts := range rows {
		ts.Won = won(ts.Tid)
		ts.Lost = c.Settings.NumGames - ts.Won
		ts.GP = c.Settings.NumGames
		require.NoError(t, c.Repo.PutTeamSeason(ctx, ts))
	}
}

func TestSeedsCarveOutDivisionLeaders(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{Phase: league.PhaseRegularSeason})
	// later tids are worse, so the third division's leader trails five teams
	setRecords(t, c, func(tid int) int { return 70 - 2*tid })

	groups, err := Seeds(ctx, c)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	for _, g := range groups {
		assert.Len(t, g, 8)
	}
	top := func(g []league.SeriesTeam) []int {
		return []int{g[0].Tid, g[1].Tid, g[2].Tid, g[3].Tid}
	}
	assert.Equal(t, []int{0, 5, 10, 1}, top(groups[0]))
	assert.Equal(t, []int{15, 20, 25, 16}, top(groups[1]))
	for i, st := range groups[0] {
		assert.Equal(t, i+1, st.Seed)
		assert.Equal(t, 0, st.Cid)
	}
}

func TestBracketOrder(t *testing.T) {
	assert.Equal(t, []int{1, 8, 4, 5, 2, 7, 3, 6}, order(8))
	assert.Equal(t, []int{1, 2}, order(2))

	seeds := []league.SeriesTeam{{Tid: 10, Seed: 1}, {Tid: 11, Seed: 2}, {Tid: 12, Seed: 3}, {Tid: 13, Seed: 4}}
	ms := Bracket([][]league.SeriesTeam{seeds})
	require.Len(t, ms, 2)
	assert.Equal(t, 10, ms[0].Home.Tid)
	assert.Equal(t, 13, ms[0].Away.Tid)
	assert.Equal(t, 11, ms[1].Home.Tid)
	assert.Equal(t, 12, ms[1].Away.Tid)
}

func TestNumRoundsShrinksForSmallLeagues(t *testing.T) {
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 5})
	assert.Equal(t, 2, NumRounds(c.Settings))
	c.Settings.NumTeams = 30
	assert.Equal(t, 4, NumRounds(c.Settings))
}

func TestStartSetsUpQualifiers(t *testing.T) {
	ctx := context.Background()
	c, ev := leaguetest.New(t, leaguetest.Options{NumTeams: 6, Phase: league.PhaseRegularSeason})
	setRecords(t, c, func(tid int) int { return 60 - tid })
	p := leaguetest.AddPlayer(t, c, 0, "C", 50, 1000, 27)

	ps, err := Start(ctx, c)
	require.NoError(t, err)
	require.Len(t, ps.Series, 1)
	assert.Len(t, ps.Series[0], 2)
	assert.Equal(t, 2, ps.FirstRound)

	in := map[int]bool{}
	for _, m := range ps.Series[0] {
		in[m.Home.Tid], in[m.Away.Tid] = true, true
	}
	rows, err := c.Repo.TeamSeasons(ctx, c.Season())
	require.NoError(t, err)
	for _, ts := range rows {
		if in[ts.Tid] {
			assert.Equal(t, 0, ts.PlayoffRoundsWon)
			assert.InDelta(t, 0.55, ts.Hype, 1e-9)
			_, err := c.Repo.TeamStats(ctx, ts.Tid, c.Season(), true)
			assert.NoError(t, err)
		} else {
			assert.Equal(t, -1, ts.PlayoffRoundsWon)
			assert.InDelta(t, 0.45, ts.Hype, 1e-9)
		}
	}
	_, err = c.Repo.PlayerStats(ctx, p.Pid, c.Season(), true, 0)
	assert.NoError(t, err)
	assert.Contains(t, ev.Types(), "playoffs")
	assert.Contains(t, ev.List[len(ev.List)-1].Text, "City0 Team0 made the playoffs")
}

func TestDecidedSeriesOnlyCreditsWinner(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 4, Phase: league.PhasePlayoffs})
	setRecords(t, c, func(tid int) int { return 60 - tid })
	ps, err := Start(ctx, c)
	require.NoError(t, err)

	m := ps.Series[0][0]
	ps.Series[0][0].Home.Won = 3
	ps.Series[0][0].Away.Won = 3
	require.NoError(t, c.Repo.PutPlayoffSeries(ctx, ps))

	res, err := RecordGame(ctx, c, m.Away.Tid)
	require.NoError(t, err)
	assert.True(t, res.SeriesOver)
	assert.False(t, res.Champion)
	assert.Equal(t, m.Away.Tid, res.Winner.Tid)
	assert.Equal(t, 4, res.Winner.Won)

	winner, err := c.Repo.TeamSeason(ctx, m.Away.Tid, c.Season())
	require.NoError(t, err)
	loser, err := c.Repo.TeamSeason(ctx, m.Home.Tid, c.Season())
	require.NoError(t, err)
	assert.Equal(t, 1, winner.PlayoffRoundsWon)
	assert.Equal(t, 0, loser.PlayoffRoundsWon)

	_, err = RecordGame(ctx, c, m.Away.Tid)
	assert.Error(t, err)
}

func TestScheduleDayRunsBracketToChampion(t *testing.T) {
	ctx := context.Background()
	c, ev := leaguetest.New(t, leaguetest.Options{NumTeams: 4, Phase: league.PhasePlayoffs})
	setRecords(t, c, func(tid int) int { return 60 - tid })
	_, err := Start(ctx, c)
	require.NoError(t, err)

	days := 0
	for {
		more, err := ScheduleDay(ctx, c)
		require.NoError(t, err)
		if !more {
			break
		}
		games, err := c.Repo.NextDay(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, games)
		for _, g := range games {
			// home always wins
			_, err := RecordGame(ctx, c, g.HomeTid)
			require.NoError(t, err)
			require.NoError(t, c.Repo.DeleteScheduleGame(ctx, g))
		}
		days++
		require.Less(t, days, 50)
	}

	ps, err := c.Repo.PlayoffSeries(ctx, c.Season())
	require.NoError(t, err)
	require.Len(t, ps.Series, 2)
	champ, ok := Champion(c.Settings, ps)
	require.True(t, ok)
	ts, err := c.Repo.TeamSeason(ctx, champ, c.Season())
	require.NoError(t, err)
	assert.Equal(t, 2, ts.PlayoffRoundsWon)

	last := ev.List[len(ev.List)-1]
	assert.Contains(t, last.Text, fmt.Sprintf("The City%d Team%d won the %d league championship", champ, champ, c.Season()))
	assert.NotContains(t, last.Text, "Team "+fmt.Sprint(champ))
}

func TestHigherSeedHomePattern(t *testing.T) {
	var got []bool
	for g := 0; g < 7; g++ {
		got = append(got, higherSeedHome(g, 7))
	}
	assert.Equal(t, []bool{true, true, false, false, true, false, true}, got)
	assert.True(t, higherSeedHome(0, 1))
}
