package awards

import (
	"context"
	"testing"

	"leaguesim/internal/league"
	"leaguesim/internal/league/leaguetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putStats(t *testing.T, c *league.Context, p league.Player, playoffs bool, gp, gs int, perGame map[string]float64) {
	t.Helper()
	line := league.StatLine{}
	for k, x := range perGame {
		line[k] = x * float64(gp)
	}
	require.NoError(t, c.Repo.PutPlayerStats(context.Background(), league.PlayerStats{
		Pid: p.Pid, Tid: p.Tid, Season: c.Season(), Playoffs: playoffs, GP: gp, GS: gs, Stat: line,
	}))
}

func setRecord(t *testing.T, c *league.Context, tid, won, lost int) {
	t.Helper()
	ts, err := c.Repo.TeamSeason(context.Background(), tid, c.Season())
	require.NoError(t, err)
	ts.Won, ts.Lost, ts.GP = won, lost, won+lost
	require.NoError(t, c.Repo.PutTeamSeason(context.Background(), ts))
}

func TestComputeAndSave(t *testing.T) {
	ctx := context.Background()
	c, ev := leaguetest.New(t, leaguetest.Options{NumTeams: 2, Phase: league.PhasePlayoffs})
	setRecord(t, c, 0, 5, 5)
	setRecord(t, c, 1, 8, 2)

	star := leaguetest.AddPlayer(t, c, 0, "C", 70, 5000, 27)
	putStats(t, c, star, false, 10, 10, map[string]float64{"pts": 40})

	rookie := leaguetest.AddPlayer(t, c, 1, "PG", 60, 1000, 22)
	rookie.Draft.Year = c.Season() - 1
	require.NoError(t, c.Repo.PutPlayer(ctx, rookie))
	putStats(t, c, rookie, false, 10, 10, map[string]float64{"pts": 20, "stl": 3})
	putStats(t, c, rookie, true, 6, 6, map[string]float64{"pts": 25})

	sixth := leaguetest.AddPlayer(t, c, 1, "SG", 55, 1000, 27)
	putStats(t, c, sixth, false, 10, 0, map[string]float64{"pts": 15})
	putStats(t, c, sixth, true, 6, 0, map[string]float64{"pts": 10})

	cameo := leaguetest.AddPlayer(t, c, 0, "SF", 50, 1000, 27)
	putStats(t, c, cameo, false, 2, 2, map[string]float64{"pts": 100})

	require.NoError(t, c.Repo.PutPlayoffSeries(ctx, league.PlayoffSeries{
		Season: c.Season(), CurrentRound: 0, FirstRound: 3,
		Series: [][]league.Matchup{{{Home: league.SeriesTeam{Tid: 1, Seed: 1, Won: 4}, Away: league.SeriesTeam{Tid: 0, Seed: 2, Won: 2}}}},
	}))

	a, err := Run(ctx, c)
	require.NoError(t, err)

	require.NotNil(t, a.MVP)
	assert.Equal(t, star.Pid, a.MVP.Pid)
	require.NotNil(t, a.ROY)
	assert.Equal(t, rookie.Pid, a.ROY.Pid)
	require.NotNil(t, a.DPOY)
	assert.Equal(t, rookie.Pid, a.DPOY.Pid)
	require.NotNil(t, a.SMOY)
	assert.Equal(t, sixth.Pid, a.SMOY.Pid)
	require.NotNil(t, a.FinalsMVP)
	assert.Equal(t, rookie.Pid, a.FinalsMVP.Pid)

	require.NotNil(t, a.BestRecord)
	assert.Equal(t, 1, a.BestRecord.Tid)
	assert.Len(t, a.BestRecordConfs, 2)

	require.Len(t, a.AllLeague, 1, "too few players for a second team")
	var first []int
	for _, w := range a.AllLeague[0] {
		first = append(first, w.Pid)
		assert.NotEqual(t, cameo.Pid, w.Pid)
	}
	assert.ElementsMatch(t, []int{star.Pid, rookie.Pid, sixth.Pid}, first)

	saved, err := c.Repo.Awards(ctx, c.Season())
	require.NoError(t, err)
	assert.Equal(t, star.Pid, saved.MVP.Pid)
	p, err := c.Repo.Player(ctx, star.Pid)
	require.NoError(t, err)
	assert.Contains(t, p.Awards, league.PlayerAward{Season: c.Season(), Type: MVP})
	assert.Contains(t, ev.Types(), "award")
}

func TestPickTeamsRespectsQuotas(t *testing.T) {
	mk := func(pid int, pos string) candidate {
		return candidate{player: league.Player{Pid: pid, Pos: pos, FirstName: "A", LastName: "B"}}
	}
	ranked := []candidate{mk(1, "G"), mk(2, "G"), mk(3, "G"), mk(4, "C"), mk(5, "C"), mk(6, "F")}
	teams := pickTeams(ranked, map[string]int{"G": 2, "C": 1}, func(p string) string { return p }, 2)
	require.Len(t, teams, 2)
	pids := func(ws []league.AwardWinner) []int {
		var out []int
		for _, w := range ws {
			out = append(out, w.Pid)
		}
		return out
	}
	assert.Equal(t, []int{1, 2, 4}, pids(teams[0]))
	assert.Equal(t, []int{3, 5}, pids(teams[1]))
}
