// Package setup creates a new league: settings, teams, rosters, free
// agents, prospect classes and future draft picks.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"leaguesim/internal/draft"
	"leaguesim/internal/finance"
	"leaguesim/internal/league"
	"leaguesim/internal/player"
	"leaguesim/internal/random"
	"leaguesim/internal/store"
	"leaguesim/internal/variant"
)

// payrollShare is the largest fraction of the cap a starting roster costs.
const payrollShare = 0.9

type Options struct {
	Name     string
	Variant  string
	NumTeams int
	Season   int
	UserTid  int
	Rand     *random.Source
	Events   league.EventLogger
	Logger   *slog.Logger
}

// Settings derives the league settings from the variant defaults. Leagues
// smaller than the default division count use a single division.
func Settings(v variant.Variant, opts Options) (*league.Settings, error) {
	d := v.Defaults
	n := opts.NumTeams
	if n <= 0 {
		n = d.NumTeams
	}
	if n < 2 {
		return nil, &league.ValidationError{Messages: []string{"a league needs at least two teams"}}
	}
	if opts.UserTid < 0 || opts.UserTid >= n {
		return nil, &league.ValidationError{Messages: []string{fmt.Sprintf("user team %d is not in a %d team league", opts.UserTid, n)}}
	}
	name := opts.Name
	if name == "" {
		name = "League 1"
	}
	s := &league.Settings{
		LeagueName:            name,
		Variant:               v.Name,
		Season:                opts.Season,
		StartingSeason:        opts.Season,
		Phase:                 league.PhasePreseason,
		NumTeams:              n,
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
		DraftType:             draft.TypeLottery,
		BudgetDefault:         d.BudgetAmount,
		TicketPriceDefault:    d.TicketPrice,
		NationalTVRevenue:     d.NationalTVRevenue,
		UserTid:               opts.UserTid,
		UserTids:              []int{opts.UserTid},
		FreeAgencyDailyChance: 0.2,
		ValueRefreshEvery:     10,
	}

	confs, divsPerConf := d.NumConfs, d.DivsPerConf
	// divisions must be the same size for the schedule to balance
	if n < confs*divsPerConf || n%(confs*divsPerConf) != 0 {
		confs, divsPerConf = 1, 1
	}
	for cid := 0; cid < confs; cid++ {
		s.Confs = append(s.Confs, league.Conf{Cid: cid, Name: confNames[cid%len(confNames)]})
		for j := 0; j < divsPerConf; j++ {
			did := cid*divsPerConf + j
			s.Divs = append(s.Divs, league.Div{Did: did, Cid: cid, Name: divNames[did%len(divNames)]})
		}
	}
	return s, nil
}

// Teams builds n teams spread evenly over the divisions, largest markets
// first.
func Teams(s *league.Settings) []league.Team {
	teams := make([]league.Team, 0, s.NumTeams)
	for tid := 0; tid < s.NumTeams; tid++ {
		div := s.Divs[tid*len(s.Divs)/s.NumTeams]
		region, pop := "City", 1.0
		if tid < len(regions) {
			region, pop = regions[tid].name, regions[tid].pop
		} else {
			region = fmt.Sprintf("City %d", tid)
		}
		nick := nicknames[tid%len(nicknames)]
		item := league.BudgetItem{Amount: s.BudgetDefault}
		teams = append(teams, league.Team{
			Tid:      tid,
			Cid:      div.Cid,
			Did:      div.Did,
			Region:   region,
			Name:     nick,
			Abbrev:   abbrev(region, tid),
			Pop:      pop,
			Strategy: league.StrategyContending,
			Budget: league.Budget{
				TicketPrice: league.BudgetItem{Amount: s.TicketPriceDefault},
				Scouting:    item,
				Coaching:    item,
				Health:      item,
				Facilities:  item,
			},
		})
	}
	return teams
}

func abbrev(region string, tid int) string {
	letters := make([]rune, 0, 3)
	for _, r := range region {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
			letters = append(letters, r)
		}
		if len(letters) == 3 {
			break
		}
	}
	if len(letters) < 3 {
		return fmt.Sprintf("T%02d", tid)
	}
	out := []rune{}
	for _, r := range letters {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// NewLeague writes a complete league through db in one transaction. It
// returns ErrLeagueExists when settings are already stored.
func NewLeague(ctx context.Context, db store.Driver, opts Options) (*league.Settings, error) {
	if opts.Variant == "" {
		opts.Variant = "basketball"
	}
	v, err := variant.ByName(opts.Variant)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rng := opts.Rand
	if rng == nil {
		rng = random.NewFromTime()
	}
	s, err := Settings(v, opts)
	if err != nil {
		return nil, err
	}

	err = store.Run(ctx, db, store.ReadWrite, league.AllStores, func(tx store.Tx) error {
		repo := league.NewRepo(tx)
		if _, err := repo.Settings(ctx); err == nil {
			return league.ErrLeagueExists
		} else if !errors.Is(err, league.ErrNoLeague) {
			return err
		}
		settings := *s
		c := &league.Context{Repo: repo, Settings: &settings, Variant: v, Rand: rng, Events: opts.Events, Log: logger}
		if err := c.SaveSettings(ctx); err != nil {
			return err
		}
		return populate(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("league created", "name", s.LeagueName, "variant", s.Variant, "teams", s.NumTeams, "season", s.Season)
	return s, nil
}

func populate(ctx context.Context, c *league.Context) error {
	s := c.Settings
	for _, t := range Teams(s) {
		if err := c.Repo.PutTeam(ctx, t); err != nil {
			return err
		}
		if _, err := c.Repo.AddSeasonRow(ctx, league.TeamSeason{
			Tid: t.Tid, Season: s.Season, Cid: t.Cid, Did: t.Did,
			Hype: c.Rand.Uniform(0.2, 0.6), Pop: t.Pop, Cash: 10000, PlayoffRoundsWon: -1,
		}); err != nil {
			return err
		}
		if _, err := c.Repo.AddTeamStatsRow(ctx, t.Tid, s.Season, false); err != nil {
			return err
		}
		if err := genRoster(ctx, c, t.Tid); err != nil {
			return err
		}
	}
	if err := finance.UpdateBudgetRanks(ctx, c); err != nil {
		return err
	}

	for i := 0; i < s.NumTeams; i++ {
		age := c.Rand.RandInt(22, 32)
		p := player.Generate(c, league.FreeAgent, age, s.Season-age+21, c.Rand.TruncGauss(36, 5, 20, 50))
		p.Contract = player.GenContract(s, p, true)
		if _, err := c.Repo.AddPlayer(ctx, p); err != nil {
			return err
		}
	}

	classes := []int{league.Undrafted, league.Undrafted2, league.Undrafted3}
	for i, tid := range classes {
		if err := draft.GenPlayers(ctx, c, tid, s.Season+i, draft.ClassSize(s)); err != nil {
			return err
		}
	}
	for season := s.Season; season <= s.Season+3; season++ {
		if err := draft.MintPicks(ctx, c, season); err != nil {
			return err
		}
	}

	c.Event(ctx, league.Event{
		Type: "newLeague",
		Text: fmt.Sprintf("%s was founded with %d teams.", s.LeagueName, s.NumTeams),
	})
	return nil
}

// fitPayroll scales contracts so a starting payroll sits between the
// minimum payroll and payrollShare of the cap. Contracts pinned at a bound
// don't move, so scaling repeats until the payroll fits.
func fitPayroll(s *league.Settings, players []league.Player, payroll float64) {
	limit := s.SalaryCap * payrollShare
	target := payroll
	switch {
	case payroll > limit:
		target = limit
	case payroll < s.MinPayroll:
		target = (s.MinPayroll + limit) / 2
	default:
		return
	}
	for pass := 0; pass < 5 && payroll > 0; pass++ {
		if payroll <= limit && payroll >= s.MinPayroll {
			return
		}
		scale := target / payroll
		payroll = 0
		for i := range players {
			amount := random.Round(players[i].Contract.Amount*scale, 50)
			players[i].Contract.Amount = random.Bound(amount, s.MinContract, s.MaxContract)
			payroll += players[i].Contract.Amount
		}
	}
}

// genRoster fills the position minimums first, then tops the roster up to
// one above the minimum size with random positions. Contracts are scaled
// so the payroll starts legal.
func genRoster(ctx context.Context, c *league.Context, tid int) error {
	s := c.Settings
	v := c.Variant
	var positions []string
	for _, pos := range v.Positions {
		for i := 0; i < v.PositionMinimums[pos]; i++ {
			positions = append(positions, pos)
		}
	}
	for len(positions) < min(s.MinRosterSize+1, s.MaxRosterSize) {
		positions = append(positions, player.PickPosition(c))
	}

	players := make([]league.Player, 0, len(positions))
	payroll := 0.0
	for _, pos := range positions {
		age := c.Rand.RandInt(20, 33)
		quality := c.Rand.TruncGauss(45, 7, 25, 70)
		p := player.GenerateAt(c, pos, tid, age, s.Season-age+21, quality)
		p.Draft = league.DraftInfo{Year: s.Season - age + 21, Tid: tid, OriginalTid: tid}
		p.Contract = player.GenContract(s, p, true)
		payroll += p.Contract.Amount
		players = append(players, p)
	}
	fitPayroll(s, players, payroll)

	sort.SliceStable(players, func(i, j int) bool { return players[i].Value > players[j].Value })
	for i := range players {
		players[i].Active = v.NumActive <= 0 || i < v.NumActive
	}

	for _, p := range players {
		p, err := c.Repo.AddPlayer(ctx, p)
		if err != nil {
			return err
		}
		if _, err := c.Repo.AddPlayerStatsRow(ctx, p.Pid, tid, s.Season, false); err != nil {
			return err
		}
	}
	return nil
}
