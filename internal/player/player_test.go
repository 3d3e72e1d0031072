package player

import (
	"context"
	"testing"

	"leaguesim/internal/league"
	"leaguesim/internal/league/leaguetest"
	"leaguesim/internal/random"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesRatedPlayer(t *testing.T) {
	for _, name := range []string{"basketball", "football"} {
		c, _ := leaguetest.New(t, leaguetest.Options{Variant: name, NumTeams: 4})
		p := Generate(c, league.Undrafted, 19, c.Season()+1, 45)

		require.Len(t, p.Ratings, 1)
		assert.Contains(t, c.Variant.Positions, p.Pos)
		assert.GreaterOrEqual(t, p.Pot(), p.Ovr())
		assert.Equal(t, c.Season()-19, p.Born.Year)
		assert.GreaterOrEqual(t, p.Contract.Amount, c.Settings.MinContract)
		assert.LessOrEqual(t, p.Contract.Amount, c.Settings.MaxContract)
	}
}

func TestAddRatingsRowOncePerSeason(t *testing.T) {
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 4})
	p := leaguetest.AddPlayer(t, c, 0, "SF", 50, 1000, 24)

	assert.False(t, AddRatingsRow(c, &p, 1), "row for this season already exists")
	c.Settings.Season++
	assert.True(t, AddRatingsRow(c, &p, 1))
	assert.False(t, AddRatingsRow(c, &p, 1))
	require.Len(t, p.Ratings, 2)
	assert.Equal(t, c.Season(), p.Latest().Season)

	p.Latest().R["hgt"] = 99
	assert.NotEqual(t, 99, p.Ratings[0].R["hgt"], "new row must not alias the old ratings map")
}

func TestDevelopYoungImprovesOldDeclines(t *testing.T) {
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 30, Seed: 3})
	young, old := 0, 0
	for i := 0; i < 40; i++ {
		y := leaguetest.AddPlayer(t, c, 0, "SF", 45, 1000, 19)
		o := leaguetest.AddPlayer(t, c, 0, "SF", 60, 1000, 34)
		Develop(c, &y, 1, 15)
		Develop(c, &o, 1, 15)
		young += y.Ovr() - 45
		old += o.Ovr() - 60
	}
	assert.Greater(t, young, 0)
	assert.Less(t, old, 0)
}

func TestCoachingFactor(t *testing.T) {
	assert.InDelta(t, 1.5, coachingFactor(1, 30, 1), 1e-9)
	assert.InDelta(t, 0.5, coachingFactor(1, 30, 30), 1e-9)
	assert.InDelta(t, 0.5, coachingFactor(-1, 30, 1), 1e-9)
	assert.InDelta(t, 1.5, coachingFactor(-1, 30, 30), 1e-9)
}

func TestGenFuzzBoundedByScouting(t *testing.T) {
	rng := random.New(9)
	for i := 0; i < 500; i++ {
		assert.LessOrEqual(t, abs(GenFuzz(rng, 30, 1)), 2.0)
		assert.LessOrEqual(t, abs(GenFuzz(rng, 30, 30)), 10.0)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestUpdateValuesWeighsPotentialForYoungPlayers(t *testing.T) {
	p := league.Player{Born: league.Born{Year: 2000}, Ratings: []league.Ratings{{Ovr: 40, Pot: 70}}}
	UpdateValues(&p, 2019)
	assert.InDelta(t, 0.8*70+0.2*40, p.Value, 1e-9)
	assert.InDelta(t, 40, p.ValueNoPot, 1e-9)

	UpdateValues(&p, 2032)
	assert.InDelta(t, 40*(1-0.025*4), p.Value, 1e-9)
}

func TestGenContractBoundsAndRounding(t *testing.T) {
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 4})
	s := c.Settings

	low := GenContract(s, league.Player{Value: 10, Born: league.Born{Year: 1995}}, false)
	assert.Equal(t, s.MinContract, low.Amount)
	assert.Equal(t, s.Season+3, low.Exp)

	high := GenContract(s, league.Player{Value: 99, Born: league.Born{Year: 1995}}, false)
	assert.Equal(t, s.MaxContract, high.Amount)

	mid := GenContract(s, league.Player{Value: 60, Born: league.Born{Year: 1995}}, false)
	assert.Zero(t, int(mid.Amount)%50)

	s.Phase = league.PhaseDraft
	assert.Equal(t, s.Season+4, GenContract(s, league.Player{Value: 60}, false).Exp)
}

func TestReleaseCreatesDeadMoneyUnlessVoided(t *testing.T) {
	ctx := context.Background()
	c, events := leaguetest.New(t, leaguetest.Options{NumTeams: 4})
	a := leaguetest.AddPlayer(t, c, 1, "C", 50, 2000, 28)
	b := leaguetest.AddPlayer(t, c, 1, "C", 50, 3000, 28)

	require.NoError(t, Release(ctx, c, &a, false))
	require.NoError(t, Release(ctx, c, &b, true))

	payroll, err := c.Repo.Payroll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, payroll)

	stored, err := c.Repo.Player(ctx, b.Pid)
	require.NoError(t, err)
	assert.Equal(t, league.FreeAgent, stored.Tid)
	assert.Equal(t, []string{"release", "release"}, events.Types())
	assert.Equal(t, "The City1 Team1 released Test Player50.", events.List[0].Text)
}

func TestSignDuringSeasonAddsStatsRow(t *testing.T) {
	ctx := context.Background()
	c, events := leaguetest.New(t, leaguetest.Options{NumTeams: 4, Phase: league.PhaseRegularSeason})
	p := leaguetest.AddPlayer(t, c, league.FreeAgent, "PG", 50, 750, 25)

	require.NoError(t, Sign(ctx, c, &p, 2, league.Contract{Amount: 750, Exp: c.Season() + 1}))
	_, err := c.Repo.PlayerStats(ctx, p.Pid, c.Season(), false, 2)
	require.NoError(t, err)
	assert.Equal(t, 15, p.GamesUntilTradable)
	require.Len(t, events.List, 1)
	assert.Contains(t, events.List[0].Text, "The City2 Team2 signed Test Player50")
}

func TestRetirement(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 4})
	young := leaguetest.AddPlayer(t, c, 0, "C", 70, 1000, 24)
	assert.False(t, ShouldRetire(c, young))

	ancient := leaguetest.AddPlayer(t, c, 0, "C", 20, 1000, 80)
	ancient.Ratings[0].Pot = 20
	retired := 0
	for i := 0; i < 50; i++ {
		if ShouldRetire(c, ancient) {
			retired++
		}
	}
	assert.Greater(t, retired, 45)

	require.NoError(t, Retire(ctx, c, &ancient))
	stored, err := c.Repo.Player(ctx, ancient.Pid)
	require.NoError(t, err)
	assert.Equal(t, league.Retired, stored.Tid)
	assert.Equal(t, c.Season(), stored.RetiredYear)
}

func TestHeal(t *testing.T) {
	p := league.Player{Injury: league.Injury{Type: "Sprained Ankle", GamesRemaining: 2}}
	Heal(&p, 1)
	assert.Equal(t, 1, p.Injury.GamesRemaining)
	Heal(&p, 5)
	assert.True(t, p.Injury.Healthy())
	assert.Equal(t, "Healthy", p.Injury.Type)
}
