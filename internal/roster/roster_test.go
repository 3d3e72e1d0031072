package roster

import (
	"context"
	"testing"

	"leaguesim/internal/league"
	"leaguesim/internal/league/leaguetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallLeague(t *testing.T) *league.Context {
	t.Helper()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2, Phase: league.PhaseRegularSeason})
	s := c.Settings
	s.MinRosterSize, s.MaxRosterSize = 2, 5
	s.SalaryCap = 10000
	s.MinPayroll = 0
	c.Variant.NumActive = 5
	return c
}

func TestOverCapReleasesLowestValueEligible(t *testing.T) {
	ctx := context.Background()
	c := smallLeague(t)
	cheap := leaguetest.AddPlayer(t, c, 1, "PG", 50, 6000, 30)
	mid := leaguetest.AddPlayer(t, c, 1, "SG", 60, 6000, 30)
	young := leaguetest.AddPlayer(t, c, 1, "SF", 40, 3000, YoungAge)
	leaguetest.AddPlayer(t, c, 1, "C", CoreValue, 3000, 30)

	r, err := Check(ctx, c, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{cheap.Pid, mid.Pid}, r.Released)

	payroll, err := c.Repo.Payroll(ctx, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, payroll, c.Settings.SalaryCap)

	kept, err := c.Repo.Player(ctx, young.Pid)
	require.NoError(t, err)
	assert.Equal(t, 1, kept.Tid)

	// voided contracts leave no dead money
	tid := 1
	dead, err := c.Repo.ReleasedPlayers(ctx, &tid)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestOverCapStopsWhenNoEligibleRelease(t *testing.T) {
	ctx := context.Background()
	c := smallLeague(t)
	leaguetest.AddPlayer(t, c, 1, "PG", 40, 8000, 21)
	leaguetest.AddPlayer(t, c, 1, "C", 90, 8000, 30)

	r, err := Check(ctx, c, 1)
	require.NoError(t, err)
	assert.Empty(t, r.Released)
	payroll, err := c.Repo.Payroll(ctx, 1)
	require.NoError(t, err)
	assert.Greater(t, payroll, c.Settings.SalaryCap)
}

func TestUserTeamGetsMessagesInstead(t *testing.T) {
	ctx := context.Background()
	c := smallLeague(t)
	leaguetest.AddPlayer(t, c, 0, "PG", 50, 11000, 30)
	leaguetest.AddPlayer(t, c, 1, "C", 50, 1000, 30)
	leaguetest.AddPlayer(t, c, 1, "PG", 50, 1000, 30)

	reports, err := CheckAll(ctx, c)
	require.Error(t, err)
	assert.True(t, league.IsValidation(err))
	var ve *league.ValidationError
	require.ErrorAs(t, err, &ve)
	// over cap, missing a center, too few players
	assert.Len(t, ve.Messages, 3)
	require.Len(t, reports, 2)
	assert.False(t, reports[0].Changed())

	c.Settings.AutoPlay = true
	_, err = CheckAll(ctx, c)
	require.NoError(t, err)
}

func TestBelowFloorSignsBestFreeAgents(t *testing.T) {
	ctx := context.Background()
	c := smallLeague(t)
	c.Settings.MinPayroll = 3500
	leaguetest.AddPlayer(t, c, 1, "C", 50, 1000, 30)
	leaguetest.AddPlayer(t, c, 1, "PG", 50, 1000, 30)
	best := leaguetest.AddPlayer(t, c, league.FreeAgent, "SG", 70, 2000, 27)
	next := leaguetest.AddPlayer(t, c, league.FreeAgent, "SF", 60, 2000, 27)
	leaguetest.AddPlayer(t, c, league.FreeAgent, "PF", 40, 2000, 27)

	r, err := Check(ctx, c, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{best.Pid, next.Pid}, r.Signed)
	assert.Empty(t, r.Messages)

	payroll, err := c.Repo.Payroll(ctx, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, payroll, c.Settings.MinPayroll)

	// nobody is signed to reach the floor during the playoffs
	c.Settings.Phase = league.PhasePlayoffs
	c.Settings.MinPayroll = 1e6
	r, err = Check(ctx, c, 1)
	require.NoError(t, err)
	assert.Empty(t, r.Signed)
}

func TestUserTeamBelowFloorIsBlocked(t *testing.T) {
	ctx := context.Background()
	c := smallLeague(t)
	c.Settings.MinPayroll = 6000
	leaguetest.AddPlayer(t, c, 0, "C", 50, 1000, 30)
	leaguetest.AddPlayer(t, c, 0, "PG", 50, 1000, 30)
	leaguetest.AddPlayer(t, c, league.FreeAgent, "SG", 70, 2000, 27)

	r, err := Check(ctx, c, 0)
	require.NoError(t, err)
	assert.Empty(t, r.Signed)
	require.Len(t, r.Messages, 1)
	assert.Contains(t, r.Messages[0], "under the minimum payroll")

	payroll, err := c.Repo.Payroll(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, payroll)

	c.Settings.AutoPlay = true
	r, err = Check(ctx, c, 0)
	require.NoError(t, err)
	assert.Empty(t, r.Messages)
	assert.NotEmpty(t, r.Signed)
}

func TestFillsPositionsAndMinimumRoster(t *testing.T) {
	ctx := context.Background()
	c := smallLeague(t)
	c.Settings.MinRosterSize = 3
	fa := leaguetest.AddPlayer(t, c, league.FreeAgent, "PG", 55, 2000, 27)

	r, err := Check(ctx, c, 1)
	require.NoError(t, err)
	assert.Len(t, r.Signed, 3)
	assert.Contains(t, r.Signed, fa.Pid)

	players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{1}})
	require.NoError(t, err)
	assert.Len(t, players, 3)
	centers := 0
	for _, p := range players {
		if p.Pos == "C" {
			centers++
		}
		assert.Equal(t, c.Settings.MinContract, p.Contract.Amount)
	}
	assert.GreaterOrEqual(t, centers, 1)
}

func TestTrimsOversizedRoster(t *testing.T) {
	ctx := context.Background()
	c := smallLeague(t)
	c.Settings.SalaryCap = 1e9
	leaguetest.AddPlayer(t, c, 1, "C", 30, 750, 30)
	for i := 0; i < 5; i++ {
		leaguetest.AddPlayer(t, c, 1, "PG", 50+i, 750, 30)
	}

	r, err := Check(ctx, c, 1)
	require.NoError(t, err)
	require.Len(t, r.Released, 1)
	released, err := c.Repo.Player(ctx, r.Released[0])
	require.NoError(t, err)
	// the worst player is the only center, so the worst guard goes
	assert.Equal(t, "PG", released.Pos)
	assert.Equal(t, 50, released.Ovr())
}

func TestActiveSplitBenchesInjuredFirst(t *testing.T) {
	ctx := context.Background()
	c := smallLeague(t)
	c.Variant.NumActive = 2
	star := leaguetest.AddPlayer(t, c, 1, "C", 80, 750, 30)
	star.Injury = league.Injury{Type: "Sprained Ankle", GamesRemaining: 3}
	require.NoError(t, c.Repo.PutPlayer(ctx, star))
	leaguetest.AddPlayer(t, c, 1, "C", 50, 750, 30)
	leaguetest.AddPlayer(t, c, 1, "PG", 60, 750, 30)

	r, err := Check(ctx, c, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{star.Pid}, r.Deactivated)

	active, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{1}, OnlyActive: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestUpdateStrategies(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 4})
	for i := 0; i < 5; i++ {
		leaguetest.AddPlayer(t, c, 1, "C", 80, 750, 27)
		leaguetest.AddPlayer(t, c, 2, "C", 40, 750, 27)
		leaguetest.AddPlayer(t, c, 3, "C", 30, 750, 27)
	}
	require.NoError(t, UpdateStrategies(ctx, c))

	got := func(tid int) string {
		tm, err := c.Repo.Team(ctx, tid)
		require.NoError(t, err)
		return tm.Strategy
	}
	assert.Equal(t, league.StrategyContending, got(1))
	assert.Equal(t, league.StrategyRebuilding, got(3))
	assert.Equal(t, league.StrategyContending, got(0), "user team untouched")
}
