package sim

import (
	"context"
	"errors"
	"testing"

	"leaguesim/internal/league"
	"leaguesim/internal/league/leaguetest"
	"leaguesim/internal/metrics"
	"leaguesim/internal/playoffs"
	"leaguesim/internal/random"
	"leaguesim/internal/realtime"
	"leaguesim/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// homeWins scores every game 100 to 90 for the home team.
type homeWins struct {
	calls int
	opts  []GameOptions
}

func (h *homeWins) Simulate(_ context.Context, gid int, home, away TeamSnapshot, opts GameOptions) (GameResult, error) {
	h.calls++
	h.opts = append(h.opts, opts)
	team := func(s TeamSnapshot, pts int) TeamResult {
		tr := TeamResult{Tid: s.Tid, Pts: pts, Stat: league.StatLine{"pts": float64(pts)}}
		for i, p := range s.Players {
			line := league.StatLine{"min": 10}
			if i == 0 {
				line["pts"] = float64(pts)
			}
			tr.Players = append(tr.Players, PlayerResult{Pid: p.Pid, Starter: i < 5, Stat: line})
		}
		return tr
	}
	return GameResult{Gid: gid, Teams: [2]TeamResult{team(home, 100), team(away, 90)}}, nil
}

type failing struct{}

func (failing) Simulate(context.Context, int, TeamSnapshot, TeamSnapshot, GameOptions) (GameResult, error) {
	return GameResult{}, errors.New("engine exploded")
}

// fakePhases sets the phase directly and, for the playoffs, builds the
// bracket and its first day.
type fakePhases struct {
	db  store.Driver
	got []league.Phase
}

func (f *fakePhases) ChangePhase(ctx context.Context, target league.Phase) error {
	f.got = append(f.got, target)
	return store.Run(ctx, f.db, store.ReadWrite, league.AllStores, func(tx store.Tx) error {
		c, err := league.Load(ctx, tx, random.New(1), nil, nil)
		if err != nil {
			return err
		}
		c.Settings.Phase = target
		if target == league.PhasePlayoffs {
			if _, err := playoffs.Start(ctx, c); err != nil {
				return err
			}
			if _, err := playoffs.ScheduleDay(ctx, c); err != nil {
				return err
			}
		}
		return c.SaveSettings(ctx)
	})
}

type fixture struct {
	db      store.Driver
	driver  *Driver
	sim     *homeWins
	phases  *fakePhases
	hub     *realtime.Hub
	metrics *metrics.Metrics
	tradeP  league.Player
}

// newFixture commits a four team league with legal rosters and a two day
// regular season schedule.
func newFixture(t *testing.T, phase league.Phase, edit func(c *league.Context)) *fixture {
	t.Helper()
	ctx := context.Background()
	db := store.NewMemory()
	c, _ := leaguetest.NewWithDriver(t, db, leaguetest.Options{NumTeams: 4, Phase: phase})
	s := c.Settings
	s.MinRosterSize, s.MaxRosterSize = 5, 8
	s.MinPayroll = 0
	s.AutoPlay = true

	var tradeP league.Player
	for tid := 0; tid < 4; tid++ {
		for i, pos := range []string{"C", "PG", "SG", "SF", "PF"} {
			p := leaguetest.AddPlayer(t, c, tid, pos, 60-i, 1000, 27)
			if tid == 0 && i == 0 {
				p.GamesUntilTradable = 3
				require.NoError(t, c.Repo.PutPlayer(ctx, p))
				tradeP = p
			}
		}
	}
	for day, pairs := range [][][2]int{{{0, 1}, {2, 3}}, {{1, 0}, {3, 2}}} {
		for _, pr := range pairs {
			gid, err := c.Repo.NextGid(ctx)
			require.NoError(t, err)
			require.NoError(t, c.Repo.AddScheduleGame(ctx, league.ScheduleGame{Gid: gid, Day: day + 1, HomeTid: pr[0], AwayTid: pr[1]}))
		}
	}
	if edit != nil {
		edit(c)
	}
	require.NoError(t, c.SaveSettings(ctx))
	require.NoError(t, c.Repo.Tx().Commit(ctx))

	f := &fixture{
		db:      db,
		sim:     &homeWins{},
		phases:  &fakePhases{db: db},
		hub:     realtime.NewHub(nil),
		metrics: metrics.New(prometheus.NewRegistry()),
		tradeP:  tradeP,
	}
	f.driver = NewDriver(db, f.sim, Options{
		Rand:    random.New(7),
		Phases:  f.phases,
		Hub:     f.hub,
		Metrics: f.metrics,
	})
	return f
}

func (f *fixture) read(t *testing.T, fn func(c *league.Context)) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Run(ctx, f.db, store.ReadOnly, league.AllStores, func(tx store.Tx) error {
		c, err := league.Load(ctx, tx, random.New(1), nil, nil)
		if err != nil {
			return err
		}
		fn(c)
		return nil
	}))
}

func TestWriteTeamStatsRecordsWinAndLoss(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2, Phase: league.PhaseRegularSeason})
	ts, err := c.Repo.TeamSeason(ctx, 0, c.Season())
	require.NoError(t, err)
	ts.Streak = -3
	require.NoError(t, c.Repo.PutTeamSeason(ctx, ts))

	g := league.ScheduleGame{Gid: 1, Day: 1, HomeTid: 0, AwayTid: 1}
	res := GameResult{Gid: 1, Teams: [2]TeamResult{
		{Tid: 0, Pts: 100, Stat: league.StatLine{"pts": 100}},
		{Tid: 1, Pts: 95, Stat: league.StatLine{"pts": 95}},
	}}
	att, err := WriteTeamStats(ctx, c, g, res, false)
	require.NoError(t, err)
	assert.Greater(t, att, 0.0)

	home, err := c.Repo.TeamSeason(ctx, 0, c.Season())
	require.NoError(t, err)
	away, err := c.Repo.TeamSeason(ctx, 1, c.Season())
	require.NoError(t, err)

	assert.Equal(t, 1, home.Won)
	assert.Equal(t, 0, home.Lost)
	assert.Equal(t, 1, home.Streak)
	assert.Equal(t, []string{"W"}, home.LastTen)
	assert.Equal(t, 1, home.WonHome)
	assert.Zero(t, home.WonConf, "the two teams are in different conferences")
	assert.Equal(t, 1, home.GPHome)
	assert.Equal(t, att, home.Att)
	assert.Greater(t, home.Revenues.Ticket, 0.0)

	assert.Equal(t, 1, away.Lost)
	assert.Equal(t, -1, away.Streak)
	assert.Equal(t, 1, away.LostAway)
	assert.Equal(t, 0.0, away.Revenues.Ticket)
	assert.Greater(t, away.Revenues.NationalTV, 0.0)

	stats, err := c.Repo.TeamStats(ctx, 0, c.Season(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.GP)
	assert.Equal(t, 95.0, stats.OppPts)
}

func TestWriteTeamStatsPlayoffsLeaveRecordAlone(t *testing.T) {
	ctx := context.Background()
	c, _ := leaguetest.New(t, leaguetest.Options{NumTeams: 2, Phase: league.PhasePlayoffs})
	_, err := c.Repo.AddTeamStatsRow(ctx, 0, c.Season(), true)
	require.NoError(t, err)

	res := GameResult{Teams: [2]TeamResult{{Tid: 0, Pts: 3}, {Tid: 1, Pts: 7}}}
	_, err = WriteTeamStats(ctx, c, league.ScheduleGame{HomeTid: 0, AwayTid: 1}, res, true)
	require.NoError(t, err)

	ts, err := c.Repo.TeamSeason(ctx, 1, c.Season())
	require.NoError(t, err)
	assert.Equal(t, 0, ts.Won+ts.Lost)
	assert.Zero(t, ts.Expenses.Salary)
	st, err := c.Repo.TeamStats(ctx, 1, c.Season(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, st.GP)
}

func TestStreak(t *testing.T) {
	assert.Equal(t, 3, streak(2, outcomeWin))
	assert.Equal(t, 1, streak(-4, outcomeWin))
	assert.Equal(t, -1, streak(5, outcomeLoss))
	assert.Equal(t, 0, streak(5, outcomeTie))
}

func TestPlayOneDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, league.PhaseRegularSeason, nil)
	updates, stop := f.hub.Subscribe(8)
	defer stop()

	sum, err := f.driver.Play(ctx, Request{Days: 1, UserInitiated: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Days)
	assert.Equal(t, 2, sum.Games)
	assert.Equal(t, league.PhaseRegularSeason, sum.Phase)
	assert.Empty(t, f.phases.got)

	u := <-updates
	assert.True(t, u.Has("gameSim"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DaysSimulated))

	f.read(t, func(c *league.Context) {
		games, err := c.Repo.SeasonGames(ctx, c.Season())
		require.NoError(t, err)
		require.Len(t, games, 2)
		for _, g := range games {
			assert.Equal(t, g.Teams[0].Tid, g.WinnerTid)
			sum := 0.0
			for _, pb := range g.Teams[0].Players {
				sum += pb.Stat["pts"]
			}
			assert.Equal(t, float64(g.Teams[0].Pts), sum)
		}
		left, err := c.Repo.Schedule(ctx)
		require.NoError(t, err)
		assert.Len(t, left, 2)

		ts, err := c.Repo.TeamSeason(ctx, 0, c.Season())
		require.NoError(t, err)
		assert.Equal(t, 1, ts.Won)

		p, err := c.Repo.Player(ctx, f.tradeP.Pid)
		require.NoError(t, err)
		assert.Equal(t, 2, p.GamesUntilTradable)
		ps, err := c.Repo.PlayerStats(ctx, p.Pid, c.Season(), false, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, ps.GP)
		assert.Equal(t, 1, ps.GS)
		assert.Equal(t, 100.0, ps.Stat["pts"])

		assert.False(t, c.Settings.GamesInProgress)
	})
}

func TestPlayRunsSeasonThroughPlayoffs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, league.PhaseRegularSeason, nil)

	sum, err := f.driver.Play(ctx, Request{Days: 100, UserInitiated: true})
	require.NoError(t, err)
	assert.Equal(t, []league.Phase{league.PhasePlayoffs, league.PhaseBeforeDraft}, f.phases.got)
	assert.Equal(t, league.PhaseBeforeDraft, sum.Phase)
	// two regular season days, then two rounds that each go seven games
	// because the home team always wins
	assert.Equal(t, 16, sum.Days)
	for _, o := range f.sim.opts[4:] {
		assert.True(t, o.Playoffs)
	}

	f.read(t, func(c *league.Context) {
		ps, err := c.Repo.PlayoffSeries(ctx, c.Season())
		require.NoError(t, err)
		champ, ok := playoffs.Champion(c.Settings, ps)
		require.True(t, ok)
		ts, err := c.Repo.TeamSeason(ctx, champ, c.Season())
		require.NoError(t, err)
		assert.Equal(t, 2, ts.PlayoffRoundsWon)
		sched, err := c.Repo.Schedule(ctx)
		require.NoError(t, err)
		assert.Empty(t, sched)
	})
}

func TestStopHaltsUntilUserRestarts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, league.PhaseRegularSeason, nil)
	require.NoError(t, f.driver.Stop(ctx))

	sum, err := f.driver.Play(ctx, Request{Days: 2})
	require.NoError(t, err)
	assert.True(t, sum.Stopped)
	assert.Zero(t, sum.Days)
	assert.Zero(t, f.sim.calls)

	sum, err = f.driver.Play(ctx, Request{Days: 1, UserInitiated: true})
	require.NoError(t, err)
	assert.False(t, sum.Stopped)
	assert.Equal(t, 1, sum.Days)
}

func TestPlayRejectsConcurrentRuns(t *testing.T) {
	f := newFixture(t, league.PhaseRegularSeason, nil)
	f.driver.running.Store(true)
	_, err := f.driver.Play(context.Background(), Request{Days: 1})
	assert.ErrorIs(t, err, league.ErrGamesInProgress)
}

func TestPlayOutsideSeason(t *testing.T) {
	f := newFixture(t, league.PhaseDraft, nil)
	_, err := f.driver.Play(context.Background(), Request{Days: 1})
	assert.ErrorIs(t, err, league.ErrWrongPhase)
}

func TestFreeAgencyDaysEndInPreseason(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, league.PhaseFreeAgency, func(c *league.Context) { c.Settings.DaysLeft = 2 })

	days, err := f.driver.DaysFor(ctx, ActionUntilPreseason)
	require.NoError(t, err)
	assert.Equal(t, 2, days)

	sum, err := f.driver.Play(ctx, Request{Days: 30})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Days)
	assert.Equal(t, []league.Phase{league.PhasePreseason}, f.phases.got)
	f.read(t, func(c *league.Context) {
		assert.Zero(t, c.Settings.DaysLeft)
	})
}

func TestUserRosterViolationHalts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, league.PhaseRegularSeason, func(c *league.Context) {
		c.Settings.AutoPlay = false
		c.Settings.MinRosterSize = 6
	})
	_, err := f.driver.Play(ctx, Request{Days: 1, UserInitiated: true})
	require.Error(t, err)
	assert.True(t, league.IsValidation(err))
	assert.Zero(t, f.sim.calls)

	// AI teams were still repaired
	f.read(t, func(c *league.Context) {
		players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{1}})
		require.NoError(t, err)
		assert.Len(t, players, 6)
	})
}

func TestSimulatorErrorRollsBackDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, league.PhaseRegularSeason, nil)
	f.driver.sim = failing{}
	_, err := f.driver.Play(ctx, Request{Days: 1, UserInitiated: true})
	require.ErrorContains(t, err, "engine exploded")

	f.read(t, func(c *league.Context) {
		games, err := c.Repo.SeasonGames(ctx, c.Season())
		require.NoError(t, err)
		assert.Empty(t, games)
		sched, err := c.Repo.Schedule(ctx)
		require.NoError(t, err)
		assert.Len(t, sched, 4)
	})
}

func TestDaysFor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, league.PhaseRegularSeason, nil)
	for action, want := range map[string]int{ActionDay: 1, ActionWeek: 7, ActionMonth: 30, ActionUntilPlayoffs: 2} {
		got, err := f.driver.DaysFor(ctx, action)
		require.NoError(t, err)
		assert.Equal(t, want, got, action)
	}
	// two remaining days plus two best-of-seven rounds
	got, err := f.driver.DaysFor(ctx, ActionUntilEnd)
	require.NoError(t, err)
	assert.Equal(t, 16, got)

	_, err = f.driver.DaysFor(ctx, ActionUntilPreseason)
	assert.ErrorIs(t, err, league.ErrWrongPhase)
}
