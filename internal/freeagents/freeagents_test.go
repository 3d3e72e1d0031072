package freeagents

import (
	"context"
	"testing"

	"leaguesim/internal/league"
	"leaguesim/internal/league/leaguetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoSignBestAffordableForAITeams(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2})
	c.Settings.SalaryCap = 10000

	star := leaguetest.AddPlayer(t, c, league.FreeAgent, "C", 80, 9500, 27)
	role := leaguetest.AddPlayer(t, c, league.FreeAgent, "PG", 50, 750, 27)

	signed, err := AutoSign(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, signed, "team 0 is user controlled")

	got, err := c.Repo.Player(ctx, star.Pid)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Tid)

	still, err := c.Repo.Player(ctx, role.Pid)
	require.NoError(t, err)
	assert.Equal(t, league.FreeAgent, still.Tid)
}

func TestAutoSignRespectsCapExceptMinimumDeals(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2})
	c.Settings.SalaryCap = 5000
	leaguetest.AddPlayer(t, c, 1, "C", 60, 4900, 27)

	pricey := leaguetest.AddPlayer(t, c, league.FreeAgent, "C", 80, 9000, 27)
	cheap := leaguetest.AddPlayer(t, c, league.FreeAgent, "PG", 40, c.Settings.MinContract, 27)

	_, err := AutoSign(ctx, c)
	require.NoError(t, err)

	p, err := c.Repo.Player(ctx, pricey.Pid)
	require.NoError(t, err)
	assert.Equal(t, league.FreeAgent, p.Tid)
	p, err = c.Repo.Player(ctx, cheap.Pid)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Tid)
}

func TestAutoPlaySignsForUserTeamToo(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 1})
	c.Settings.AutoPlay = true
	leaguetest.AddPlayer(t, c, league.FreeAgent, "C", 50, 750, 27)

	signed, err := AutoSign(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, signed)
}

func TestDecreaseDemands(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2})
	p := leaguetest.AddPlayer(t, c, league.FreeAgent, "C", 50, 10750, 27)
	floor := leaguetest.AddPlayer(t, c, league.FreeAgent, "C", 50, c.Settings.MinContract, 27)

	require.NoError(t, DecreaseDemands(ctx, c))

	got, err := c.Repo.Player(ctx, p.Pid)
	require.NoError(t, err)
	assert.InDelta(t, 10500, got.Contract.Amount, 1e-9)
	got, err = c.Repo.Player(ctx, floor.Pid)
	require.NoError(t, err)
	assert.Equal(t, c.Settings.MinContract, got.Contract.Amount)
}

func TestMoodsAndAskingAmount(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 3})
	leaguetest.AddPlayer(t, c, league.FreeAgent, "C", 50, 4000, 27)

	require.NoError(t, GenBaseMoods(ctx, c))
	fas, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{league.FreeAgent}})
	require.NoError(t, err)
	require.Len(t, fas, 1)
	assert.Len(t, fas[0].Mood, 3)
	for _, m := range fas[0].Mood {
		assert.GreaterOrEqual(t, m, 0.0)
		assert.LessOrEqual(t, m, 1.0)
	}

	happy := league.Player{Contract: league.Contract{Amount: 4000}, Mood: map[int]float64{0: 1}}
	sad := league.Player{Contract: league.Contract{Amount: 4000}, Mood: map[int]float64{0: 0}}
	assert.Equal(t, 3000.0, AskingAmount(c.Settings, happy, 0))
	assert.Equal(t, 5000.0, AskingAmount(c.Settings, sad, 0))
	assert.Equal(t, 0.5, Mood(happy, 7))
}
