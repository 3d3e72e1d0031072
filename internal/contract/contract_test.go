package contract

import (
	"context"
	"testing"

	"leaguesim/internal/league"
	"leaguesim/internal/league/leaguetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateAndSignFreeAgent(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2, Phase: league.PhaseFreeAgency})
	p := leaguetest.AddPlayer(t, c, league.FreeAgent, "SG", 55, 5000, 26)

	n, err := Start(ctx, c, p.Pid, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, n.Player.Amount)

	_, err = Start(ctx, c, p.Pid, 1, false)
	assert.ErrorIs(t, err, league.ErrNegotiationExists)

	// a longer deal than preferred costs more
	longer := n.Orig.Exp + 2
	n, err = Offer(ctx, c, p.Pid, 5000, longer)
	require.NoError(t, err)
	assert.Equal(t, 5500.0, n.Player.Amount)

	_, err = Accept(ctx, c, p.Pid)
	assert.ErrorIs(t, err, league.ErrPlayerRefused)

	_, err = Offer(ctx, c, p.Pid, 5500, longer)
	require.NoError(t, err)
	signed, err := Accept(ctx, c, p.Pid)
	require.NoError(t, err)
	assert.Equal(t, 0, signed.Tid)
	assert.Equal(t, longer, signed.Contract.Exp)

	_, err = c.Repo.Negotiation(ctx, p.Pid)
	assert.ErrorIs(t, err, league.ErrNegotiationNotFound)
}

func TestOfferValidatesTerms(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2, Phase: league.PhaseFreeAgency})
	p := leaguetest.AddPlayer(t, c, league.FreeAgent, "SG", 55, 5000, 26)
	_, err := Start(ctx, c, p.Pid, 0, false)
	require.NoError(t, err)

	_, err = Offer(ctx, c, p.Pid, 100, c.Season()+2)
	assert.ErrorIs(t, err, league.ErrInvalidContract)
	_, err = Offer(ctx, c, p.Pid, 5000, c.Season())
	assert.ErrorIs(t, err, league.ErrInvalidContract, "season already over")
	_, err = Offer(ctx, c, p.Pid, 5000, c.Season()+9)
	assert.ErrorIs(t, err, league.ErrInvalidContract)
}

func TestStartRejectsFullRosterAndRostered(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2})
	c.Settings.MaxRosterSize = 1
	leaguetest.AddPlayer(t, c, 0, "C", 50, 1000, 26)
	fa := leaguetest.AddPlayer(t, c, league.FreeAgent, "C", 50, 1000, 26)
	rostered := leaguetest.AddPlayer(t, c, 1, "C", 50, 1000, 26)

	_, err := Start(ctx, c, fa.Pid, 0, false)
	assert.ErrorIs(t, err, league.ErrRosterFull)
	_, err = Start(ctx, c, rostered.Pid, 0, false)
	assert.ErrorIs(t, err, league.ErrNotFreeAgent)

	c.Settings.Phase = league.PhaseDraft
	_, err = Start(ctx, c, fa.Pid, 1, false)
	assert.ErrorIs(t, err, league.ErrWrongPhase)
}

func TestCancelAllReleasesResigningPlayers(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2, Phase: league.PhaseResignPlayers})
	expiring := leaguetest.AddPlayer(t, c, 0, "C", 60, 4000, 29)
	expiring.Contract.Exp = c.Season()
	require.NoError(t, c.Repo.PutPlayer(ctx, expiring))
	leaguetest.AddPlayer(t, c, 0, "PG", 60, 4000, 29) // exp next season

	opened, err := OpenResigning(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, opened)

	n, err := c.Repo.Negotiation(ctx, expiring.Pid)
	require.NoError(t, err)
	assert.True(t, n.Resigning)
	assert.Greater(t, n.Player.Exp, c.Season())

	require.NoError(t, CancelAll(ctx, c))
	p, err := c.Repo.Player(ctx, expiring.Pid)
	require.NoError(t, err)
	assert.Equal(t, league.FreeAgent, p.Tid)
	all, err := c.Repo.Negotiations(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestResigningIgnoresCap(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2, Phase: league.PhaseResignPlayers})
	c.Settings.SalaryCap = 1000
	p := leaguetest.AddPlayer(t, c, 0, "C", 70, 20000, 27)

	_, err := Start(ctx, c, p.Pid, 0, true)
	require.NoError(t, err)
	signed, err := Accept(ctx, c, p.Pid)
	require.NoError(t, err)
	assert.Equal(t, 0, signed.Tid)
	assert.Zero(t, signed.GamesUntilTradable)
}
