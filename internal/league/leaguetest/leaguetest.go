// Package leaguetest builds small in-memory leagues for package tests.
package leaguetest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"leaguesim/internal/league"
	"leaguesim/internal/random"
	"leaguesim/internal/store"
	"leaguesim/internal/variant"

	"github.com/stretchr/testify/require"
)

type Options struct {
	Variant  string
	NumTeams int
	Season   int
	Phase    league.Phase
	Seed     uint64
}

// Events collects narrative events in memory.
type Events struct {
	List []league.Event
}

func (e *Events) Add(_ context.Context, _ store.Tx, ev league.Event) {
	e.List = append(e.List, ev)
}

func (e *Events) Types() []string {
	out := make([]string, 0, len(e.List))
	for _, ev := range e.List {
		out = append(out, ev.Type)
	}
	return out
}

// Settings derives league settings from the variant defaults.
func Settings(v variant.Variant, numTeams, season int) *league.Settings {
	d := v.Defaults
	if numTeams <= 0 {
		numTeams = d.NumTeams
	}
	s := &league.Settings{
		LeagueName:            "Test League",
		Variant:               v.Name,
		Season:                season,
		StartingSeason:        season,
		Phase:                 league.PhasePreseason,
		NumTeams:              numTeams,
		NumGames:              d.NumGames,
		NumGamesDiv:           d.ScheduleDiv,
		NumGamesConf:          d.ScheduleConf,
		NumGamesOther:         d.ScheduleOther,
		NumGamesPlayoffSeries: append([]int(nil), d.NumGamesPlayoffSeries...),
		SalaryCap:             d.SalaryCap,
		MinPayroll:            d.MinPayroll,
		LuxuryPayroll:         d.LuxuryPayroll,
		LuxuryTax:             d.LuxuryTax,
		MinContract:           d.MinContract,
		MaxContract:           d.MaxContract,
		MinRosterSize:         d.MinRosterSize,
		MaxRosterSize:         d.MaxRosterSize,
		DraftRounds:           d.DraftRounds,
		DraftType:             "lottery",
		BudgetDefault:         d.BudgetAmount,
		TicketPriceDefault:    d.TicketPrice,
		NationalTVRevenue:     d.NationalTVRevenue,
		UserTid:               0,
		UserTids:              []int{0},
		ValueRefreshEvery:     10,
	}
	for cid := 0; cid < d.NumConfs; cid++ {
		s.Confs = append(s.Confs, league.Conf{Cid: cid, Name: fmt.Sprintf("Conference %d", cid)})
		for j := 0; j < d.DivsPerConf; j++ {
			did := cid*d.DivsPerConf + j
			s.Divs = append(s.Divs, league.Div{Did: did, Cid: cid, Name: fmt.Sprintf("Division %d", did)})
		}
	}
	return s
}

// Team builds team tid with teams spread evenly over divisions.
func Team(s *league.Settings, tid int) league.Team {
	div := s.Divs[tid*len(s.Divs)/s.NumTeams]
	item := func(rank int) league.BudgetItem {
		return league.BudgetItem{Amount: s.BudgetDefault, Rank: rank}
	}
	return league.Team{
		Tid:      tid,
		Cid:      div.Cid,
		Did:      div.Did,
		Region:   fmt.Sprintf("City%d", tid),
		Name:     fmt.Sprintf("Team%d", tid),
		Abbrev:   fmt.Sprintf("T%02d", tid),
		Pop:      1 + float64(tid%5),
		Strategy: league.StrategyContending,
		Budget: league.Budget{
			TicketPrice: league.BudgetItem{Amount: s.TicketPriceDefault, Rank: tid + 1},
			Scouting:    item(tid + 1),
			Coaching:    item(tid + 1),
			Health:      item(tid + 1),
			Facilities:  item(tid + 1),
		},
	}
}

// New opens a read-write transaction over every store of a fresh memory
// driver and seeds settings, teams and current season rows.
func New(t *testing.T, opts Options) (*league.Context, *Events) {
	t.Helper()
	d := store.NewMemory()
	c, ev := NewWithDriver(t, d, opts)
	return c, ev
}

func NewWithDriver(t *testing.T, d store.Driver, opts Options) (*league.Context, *Events) {
	t.Helper()
	ctx := context.Background()
	if opts.Variant == "" {
		opts.Variant = "basketball"
	}
	if opts.Season == 0 {
		opts.Season = 2020
	}
	v, err := variant.ByName(opts.Variant)
	require.NoError(t, err)

	tx, err := d.Begin(ctx, store.ReadWrite, league.AllStores...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })

	s := Settings(v, opts.NumTeams, opts.Season)
	s.Phase = opts.Phase
	repo := league.NewRepo(tx)
	require.NoError(t, repo.PutSettings(ctx, s))
	for tid := 0; tid < s.NumTeams; tid++ {
		team := Team(s, tid)
		require.NoError(t, repo.PutTeam(ctx, team))
		_, err := repo.AddSeasonRow(ctx, league.TeamSeason{
			Tid: tid, Season: s.Season, Cid: team.Cid, Did: team.Did,
			Hype: 0.5, Pop: team.Pop, Cash: 10000, PlayoffRoundsWon: -1,
		})
		require.NoError(t, err)
		_, err = repo.AddTeamStatsRow(ctx, tid, s.Season, false)
		require.NoError(t, err)
	}

	events := &Events{}
	seed := opts.Seed
	if seed == 0 {
		seed = 42
	}
	return &league.Context{
		Repo:     repo,
		Settings: s,
		Variant:  v,
		Rand:     random.New(seed),
		Events:   events,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, events
}

// AddPlayer inserts a player with flat ratings at ovr on team tid.
func AddPlayer(t *testing.T, c *league.Context, tid int, pos string, ovr int, amount float64, age int) league.Player {
	t.Helper()
	r := make(map[string]int, len(c.Variant.RatingKeys))
	for _, k := range c.Variant.RatingKeys {
		r[k] = ovr
	}
	p := league.Player{
		Tid:       tid,
		FirstName: "Test",
		LastName:  fmt.Sprintf("Player%d", ovr),
		Pos:       pos,
		Born:      league.Born{Year: c.Season() - age, Loc: "Nowhere"},
		Draft:     league.DraftInfo{Year: c.Season() - age + 21, Tid: tid, OriginalTid: tid},
		Ratings: []league.Ratings{{
			Season: c.Season(), Ovr: ovr, Pot: max(ovr, ovr+(29-age)*2), Pos: pos, R: r,
		}},
		Contract: league.Contract{Amount: amount, Exp: c.Season() + 1},
		Value:    float64(ovr),
		Active:   true,
	}
	p, err := c.Repo.AddPlayer(context.Background(), p)
	require.NoError(t, err)
	if tid >= 0 {
		_, err = c.Repo.AddPlayerStatsRow(context.Background(), p.Pid, tid, c.Season(), false)
		require.NoError(t, err)
	}
	return p
}
