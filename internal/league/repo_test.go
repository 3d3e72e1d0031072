package league

import (
	"context"
	"testing"

	"leaguesim/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*Repo, store.Tx) {
	t.Helper()
	tx, err := store.NewMemory().Begin(context.Background(), store.ReadWrite, AllStores...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return NewRepo(tx), tx
}

func TestAddSeasonRowTwiceKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	for tid := 0; tid < 3; tid++ {
		added, err := repo.AddSeasonRow(ctx, TeamSeason{Tid: tid, Season: 2021, Hype: 0.4})
		require.NoError(t, err)
		assert.True(t, added)
		added, err = repo.AddSeasonRow(ctx, TeamSeason{Tid: tid, Season: 2021, Hype: 0.9})
		require.NoError(t, err)
		assert.False(t, added)
	}

	rows, err := repo.TeamSeasons(ctx, 2021)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, 0.4, row.Hype)
	}
}

func TestTeamStatsRowIsLazyAndUnique(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	added, err := repo.AddTeamStatsRow(ctx, 4, 2021, true)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = repo.AddTeamStatsRow(ctx, 4, 2021, true)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = repo.TeamStats(ctx, 4, 2021, false)
	assert.ErrorIs(t, err, store.ErrNotFound)
	rows, err := repo.AllTeamStats(ctx, 2021, true)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPlayersFilterByTidIncludingSentinels(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	for _, tid := range []int{0, 0, 1, FreeAgent, Retired} {
		_, err := repo.AddPlayer(ctx, Player{Tid: tid, Pos: "C"})
		require.NoError(t, err)
	}

	team0, err := repo.Players(ctx, PlayerFilter{Tids: []int{0}})
	require.NoError(t, err)
	assert.Len(t, team0, 2)

	fas, err := repo.Players(ctx, PlayerFilter{Tids: []int{FreeAgent}})
	require.NoError(t, err)
	require.Len(t, fas, 1)
	assert.Equal(t, 3, fas[0].Pid)

	active, err := repo.NonRetired(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 4)
}

func TestPayrollIncludesDeadMoney(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	_, err := repo.AddPlayer(ctx, Player{Tid: 2, Contract: Contract{Amount: 5000, Exp: 2022}})
	require.NoError(t, err)
	require.NoError(t, repo.AddReleasedPlayer(ctx, ReleasedPlayer{Pid: 9, Tid: 2, Contract: Contract{Amount: 750, Exp: 2021}}))
	require.NoError(t, repo.AddReleasedPlayer(ctx, ReleasedPlayer{Pid: 8, Tid: 3, Contract: Contract{Amount: 900, Exp: 2021}}))

	payroll, err := repo.Payroll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 5750.0, payroll)
}

func TestNextDayReturnsEarliestSlice(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	day, err := repo.NextDay(ctx)
	require.NoError(t, err)
	assert.Empty(t, day)

	for i, d := range []int{2, 1, 1, 3} {
		require.NoError(t, repo.AddScheduleGame(ctx, ScheduleGame{Gid: i, Day: d, HomeTid: i, AwayTid: i + 10}))
	}
	day, err = repo.NextDay(ctx)
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, 1, day[0].Gid)
	assert.Equal(t, 2, day[1].Gid)

	require.NoError(t, repo.DeleteScheduleGame(ctx, day[0]))
	require.NoError(t, repo.DeleteScheduleGame(ctx, day[1]))
	day, err = repo.NextDay(ctx)
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, 2, day[0].Day)
}

func TestSettingsMissingIsNoLeague(t *testing.T) {
	repo, _ := newRepo(t)
	_, err := repo.Settings(context.Background())
	assert.ErrorIs(t, err, ErrNoLeague)
}

func TestNegotiationIsUniquePerPlayer(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	require.NoError(t, repo.AddNegotiation(ctx, Negotiation{Pid: 7, Tid: 1}))
	assert.ErrorIs(t, repo.AddNegotiation(ctx, Negotiation{Pid: 7, Tid: 2}), ErrNegotiationExists)
	_, err := repo.Negotiation(ctx, 8)
	assert.ErrorIs(t, err, ErrNegotiationNotFound)
}

func TestLegalTransitions(t *testing.T) {
	cases := []struct {
		from, to Phase
		ok       bool
	}{
		{PhasePreseason, PhaseRegularSeason, true},
		{PhaseRegularSeason, PhasePlayoffs, true},
		{PhaseRegularSeason, PhaseAfterTradeDeadline, true},
		{PhaseFreeAgency, PhasePreseason, true},
		{PhaseFreeAgency, PhaseFreeAgency, false},
		{PhaseResignPlayers, PhasePreseason, false},
		{PhaseDraft, PhaseFantasyDraft, true},
		{PhaseFantasyDraft, PhaseFreeAgency, true},
		{PhaseFantasyDraft, PhaseFantasyDraft, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, LegalTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("REGULAR_SEASON")
	require.NoError(t, err)
	assert.Equal(t, PhaseRegularSeason, p)
	p, err = ParsePhase("resign-players")
	require.NoError(t, err)
	assert.Equal(t, PhaseResignPlayers, p)
	_, err = ParsePhase("expansion draft")
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestWinPctCountsTiesAsHalf(t *testing.T) {
	ts := TeamSeason{Won: 8, Lost: 7, Tied: 2}
	assert.InDelta(t, 0.5294, ts.WinPct(), 1e-4)
	assert.Equal(t, 0.0, TeamSeason{}.WinPct())
}
