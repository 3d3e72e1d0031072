package finance

import (
	"context"
	"testing"

	"leaguesim/internal/league"
	"leaguesim/internal/league/leaguetest"
	"leaguesim/internal/random"
	"leaguesim/internal/variant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceClampedAndRounded(t *testing.T) {
	v := variant.Basketball()
	s := leaguetest.Settings(v, 30, 2020)
	rng := random.New(1)

	for i := 0; i < 200; i++ {
		att := Attendance(rng, v, s, v.Attendance.Base(0.5, 2, false), 25, 1+i%30)
		assert.GreaterOrEqual(t, att, 0.0)
		assert.LessOrEqual(t, att, v.Attendance.Max())
		assert.Equal(t, float64(int(att)), att)
	}

	// an absurd ticket price empties the arena
	att := Attendance(rng, v, s, v.Attendance.Base(0.5, 2, false), 5000, 30)
	assert.Less(t, att, 100.0)
}

func meanAttendance(v variant.Variant, s *league.Settings, hype, pop float64, rank int) float64 {
	rng := random.New(11)
	sum := 0.0
	for i := 0; i < 200; i++ {
		sum += Attendance(rng, v, s, v.Attendance.Base(hype, pop, false), s.TicketPriceDefault, rank)
	}
	return sum / 200
}

func TestAttendanceTracksHypeAndPopulation(t *testing.T) {
	for _, v := range []variant.Variant{variant.Basketball(), variant.Football()} {
		t.Run(v.Name, func(t *testing.T) {
			s := leaguetest.Settings(v, 0, 2020)
			assert.InDelta(t, 1.0, PriceFactor(s, s.TicketPriceDefault), 1e-9)
			assert.Less(t, PriceFactor(s, 2*s.TicketPriceDefault), 1.0)

			low := meanAttendance(v, s, 0, 0.2, s.NumTeams)
			mid := meanAttendance(v, s, 0.5, 1, s.NumTeams/2)
			assert.Greater(t, low, 0.0)
			assert.Less(t, low, mid)
			assert.Less(t, mid, v.Attendance.Max())

			assert.Less(t, meanAttendance(v, s, 0.2, 1, 15), meanAttendance(v, s, 0.8, 1, 15))
			assert.Less(t, meanAttendance(v, s, 0.5, 0.5, 15), meanAttendance(v, s, 0.5, 1.5, 15))
		})
	}
}

func TestFacilitiesFactorRange(t *testing.T) {
	assert.InDelta(t, 1.125, FacilitiesFactor(30, 1), 1e-9)
	assert.InDelta(t, 1.05, FacilitiesFactor(30, 30), 1e-9)
	assert.Greater(t, FacilitiesFactor(30, 10), FacilitiesFactor(30, 20))
}

func TestHypeClampedAndDirectional(t *testing.T) {
	assert.Greater(t, Hype(0.5, 0.8, 0.5), 0.5)
	assert.Less(t, Hype(0.5, 0.2, 0.5), 0.5)
	assert.Equal(t, 1.0, Hype(0.999, 1, 0))
	assert.Equal(t, 0.0, Hype(0.001, 0, 1))
}

func TestTrailingWinpUsesFourSeasons(t *testing.T) {
	hist := []league.TeamSeason{
		{Season: 2014, Won: 0, Lost: 10},
		{Season: 2015, Won: 10, Lost: 0},
		{Season: 2016, Won: 5, Lost: 5},
		{Season: 2017, Won: 5, Lost: 5},
		{Season: 2018, Won: 10, Lost: 0},
		{Season: 2019, Won: 0, Lost: 0},
		{Season: 2020, Won: 0, Lost: 10},
	}
	// 2016..2019 count, 2019 has no games and 2020 is the current season
	assert.InDelta(t, 2.0/3.0, TrailingWinp(hist, 2020), 1e-9)
	assert.Equal(t, 0.5, TrailingWinp(nil, 2020))
}

func TestPlayoffHype(t *testing.T) {
	assert.InDelta(t, 0.55, PlayoffHype(0.5, true), 1e-9)
	assert.InDelta(t, 0.45, PlayoffHype(0.5, false), 1e-9)
	assert.Equal(t, 1.0, PlayoffHype(0.98, true))
}

func TestForGameHomeOnlyGate(t *testing.T) {
	v := variant.Basketball()
	s := leaguetest.Settings(v, 30, 2020)
	team := leaguetest.Team(s, 0)

	home := ForGame(s, team, 82000, 18000, true)
	away := ForGame(s, team, 82000, 18000, false)
	assert.InDelta(t, 25*18, home.Revenues.Ticket, 1e-9)
	assert.Zero(t, away.Revenues.Ticket)
	assert.Equal(t, home.Revenues.NationalTV, away.Revenues.NationalTV)
	assert.InDelta(t, 1000, home.Expenses.Salary, 1e-9)

	var ts league.TeamSeason
	home.Apply(&ts)
	assert.InDelta(t, home.Revenues.Total()-home.Expenses.Total(), ts.Cash, 1e-9)
}

func TestAssessPayrollTaxes(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 3})
	c.Settings.LuxuryPayroll = 10000
	c.Settings.MinPayroll = 5000
	c.Settings.LuxuryTax = 1.5

	leaguetest.AddPlayer(t, c, 0, "C", 60, 12000, 27) // 2000 over
	leaguetest.AddPlayer(t, c, 1, "C", 60, 4000, 27)  // 1000 under
	leaguetest.AddPlayer(t, c, 2, "C", 60, 8000, 27)

	require.NoError(t, AssessPayrollTaxes(ctx, c))

	t0, err := c.Repo.TeamSeason(ctx, 0, c.Season())
	require.NoError(t, err)
	assert.InDelta(t, 3000, t0.Expenses.LuxuryTax, 1e-9)
	assert.Zero(t, t0.Revenues.LuxuryTaxShare)

	t1, err := c.Repo.TeamSeason(ctx, 1, c.Season())
	require.NoError(t, err)
	assert.InDelta(t, 1000, t1.Expenses.MinTax, 1e-9)
	assert.InDelta(t, 1500, t1.Revenues.LuxuryTaxShare, 1e-9)

	t2, err := c.Repo.TeamSeason(ctx, 2, c.Season())
	require.NoError(t, err)
	assert.InDelta(t, 1500, t2.Revenues.LuxuryTaxShare, 1e-9)
}

func TestUpdateBudgetRanks(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 3})

	team, err := c.Repo.Team(ctx, 2)
	require.NoError(t, err)
	team.Budget.Facilities.Amount = 5000
	require.NoError(t, c.Repo.PutTeam(ctx, team))

	require.NoError(t, UpdateBudgetRanks(ctx, c))

	teams, err := c.Repo.Teams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, teams[2].Budget.Facilities.Rank)
	assert.Equal(t, 2, teams[0].Budget.Facilities.Rank)
	assert.Equal(t, 3, teams[1].Budget.Facilities.Rank)
}

func TestOwnerMoodDeltas(t *testing.T) {
	s := leaguetest.Settings(variant.Basketball(), 30, 2020)
	champ := OwnerMoodDeltas(s, league.TeamSeason{Won: 60, Lost: 22, PlayoffRoundsWon: 4})
	missed := OwnerMoodDeltas(s, league.TeamSeason{Won: 20, Lost: 62, PlayoffRoundsWon: -1})
	assert.InDelta(t, 0.2, champ.Playoffs, 1e-9)
	assert.InDelta(t, -0.2, missed.Playoffs, 1e-9)
	assert.Greater(t, champ.Wins, missed.Wins)
}
