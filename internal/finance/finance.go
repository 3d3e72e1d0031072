// Package finance is the contract and finance calculator: attendance,
// per-game revenue and expense accrual, payroll taxes, budget ranks, hype
// and owner mood.
package finance

import (
	"context"
	"math"
	"sort"

	"leaguesim/internal/league"
	"leaguesim/internal/random"
	"leaguesim/internal/variant"
)

// priceElasticity sets how fast fans drop off as tickets get dearer.
const priceElasticity = 0.45 * 50

// Attendance applies noise, ticket price and facilities to the variant's
// base attendance, clamped to the variant maximum and rounded. The price
// factor is 1 at the league's default ticket price.
func Attendance(rng *random.Source, v variant.Variant, s *league.Settings, base, ticketPrice float64, facilitiesRank int) float64 {
	att := rng.Gauss(base, 1000)
	att *= PriceFactor(s, ticketPrice)
	att *= FacilitiesFactor(s.NumTeams, facilitiesRank)
	return math.Round(random.Bound(att, 0, v.Attendance.Max()))
}

// PriceFactor scales attendance for ticketPrice relative to the default
// price, both adjusted to the salary cap.
func PriceFactor(s *league.Settings, ticketPrice float64) float64 {
	f := s.SalaryCapFactor()
	ref := s.TicketPriceDefault / f
	if ref <= 0 {
		ref = 25
	}
	price := math.Max(ticketPrice/f, 0)
	return math.Pow((priceElasticity+ref)/(priceElasticity+price), 2)
}

// FacilitiesFactor is 1.125 for the best-ranked facilities down to 1.05 for
// the worst.
func FacilitiesFactor(numTeams, rank int) float64 {
	if numTeams <= 1 {
		return 1.05
	}
	return 1.05 + 0.075*float64(numTeams-rank)/float64(numTeams-1)
}

// GameRevenue is what one team books for one game.
type GameRevenue struct {
	Revenues league.Revenues
	Expenses league.Expenses
}

// ForGame computes a team's revenue and expenses for a single game. Gate,
// merchandise, sponsor and local TV money only accrue at home.
func ForGame(s *league.Settings, t league.Team, payroll, att float64, home bool) GameRevenue {
	f := s.SalaryCapFactor()
	numGames := float64(max(s.NumGames, 1))
	var out GameRevenue

	out.Revenues.NationalTV = s.NationalTVRevenue
	if home {
		out.Revenues.Ticket = t.Budget.TicketPrice.Amount * att / 1000
		out.Revenues.Merch = math.Min(f*4.5*att/1000, 250*f)
		out.Revenues.Sponsor = math.Min(f*15*att/1000, 600*f)
		out.Revenues.LocalTV = math.Min(f*15*att/1000, 1200*f)
	}

	out.Expenses.Salary = payroll / numGames
	out.Expenses.Scouting = t.Budget.Scouting.Amount / numGames
	out.Expenses.Coaching = t.Budget.Coaching.Amount / numGames
	out.Expenses.Health = t.Budget.Health.Amount / numGames
	out.Expenses.Facilities = t.Budget.Facilities.Amount / numGames
	return out
}

// Apply books g onto a season row and moves the cash balance.
func (g GameRevenue) Apply(ts *league.TeamSeason) {
	ts.Revenues.NationalTV += g.Revenues.NationalTV
	ts.Revenues.Ticket += g.Revenues.Ticket
	ts.Revenues.Merch += g.Revenues.Merch
	ts.Revenues.Sponsor += g.Revenues.Sponsor
	ts.Revenues.LocalTV += g.Revenues.LocalTV

	ts.Expenses.Salary += g.Expenses.Salary
	ts.Expenses.Scouting += g.Expenses.Scouting
	ts.Expenses.Coaching += g.Expenses.Coaching
	ts.Expenses.Health += g.Expenses.Health
	ts.Expenses.Facilities += g.Expenses.Facilities

	ts.Cash += g.Revenues.Total() - g.Expenses.Total()
}

// Hype moves hype toward the current win percentage and toward improvement
// over recent seasons.
func Hype(hype, winp, winpOld float64) float64 {
	hype += 0.01 * (winp - 0.55) / 0.45
	hype += 0.015 * (winp - winpOld) / 0.45
	return random.Bound(hype, 0, 1)
}

// MinGamesForHype is the regular season game count before hype reacts.
const MinGamesForHype = 5

// TrailingWinp averages the win percentage of up to four seasons before
// season. With no history it is 0.5.
func TrailingWinp(history []league.TeamSeason, season int) float64 {
	var winps []float64
	for _, ts := range history {
		if ts.Season < season && ts.Season >= season-4 && ts.Won+ts.Lost+ts.Tied > 0 {
			winps = append(winps, ts.WinPct())
		}
	}
	if len(winps) == 0 {
		return 0.5
	}
	return random.Mean(winps)
}

// PlayoffHype rewards qualification and punishes missing out.
func PlayoffHype(hype float64, qualified bool) float64 {
	if qualified {
		return random.Bound(hype+0.05, 0, 1)
	}
	return random.Bound(hype-0.05, 0, 1)
}

// AssessPayrollTaxes charges the luxury tax over LuxuryPayroll and the
// shortfall under MinPayroll, then splits luxury tax evenly among teams
// that did not pay it.
func AssessPayrollTaxes(ctx context.Context, c *league.Context) error {
	s := c.Settings
	rows, err := c.Repo.TeamSeasons(ctx, s.Season)
	if err != nil {
		return err
	}
	collected := 0.0
	var payers = make(map[int]bool)
	for i := range rows {
		payroll, err := c.Repo.Payroll(ctx, rows[i].Tid)
		if err != nil {
			return err
		}
		if payroll > s.LuxuryPayroll {
			tax := s.LuxuryTax * (payroll - s.LuxuryPayroll)
			rows[i].Expenses.LuxuryTax += tax
			rows[i].Cash -= tax
			collected += tax
			payers[rows[i].Tid] = true
		} else if payroll < s.MinPayroll {
			short := s.MinPayroll - payroll
			rows[i].Expenses.MinTax += short
			rows[i].Cash -= short
		}
	}
	receivers := len(rows) - len(payers)
	for i := range rows {
		if collected > 0 && receivers > 0 && !payers[rows[i].Tid] {
			share := collected / float64(receivers)
			rows[i].Revenues.LuxuryTaxShare += share
			rows[i].Cash += share
		}
		if err := c.Repo.PutTeamSeason(ctx, rows[i]); err != nil {
			return err
		}
	}
	c.Log.Info("payroll taxes assessed", "season", s.Season, "luxuryTax", collected, "payers", len(payers))
	return nil
}

// UpdateBudgetRanks ranks every budget item across the league, 1 being the
// largest spend. Ties go to the lower tid.
func UpdateBudgetRanks(ctx context.Context, c *league.Context) error {
	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return err
	}
	items := []func(*league.Team) *league.BudgetItem{
		func(t *league.Team) *league.BudgetItem { return &t.Budget.TicketPrice },
		func(t *league.Team) *league.BudgetItem { return &t.Budget.Scouting },
		func(t *league.Team) *league.BudgetItem { return &t.Budget.Coaching },
		func(t *league.Team) *league.BudgetItem { return &t.Budget.Health },
		func(t *league.Team) *league.BudgetItem { return &t.Budget.Facilities },
	}
	for _, item := range items {
		order := make([]int, len(teams))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return item(&teams[order[a]]).Amount > item(&teams[order[b]]).Amount
		})
		for rank, i := range order {
			item(&teams[i]).Rank = rank + 1
		}
	}
	for _, t := range teams {
		if err := c.Repo.PutTeam(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// OwnerMoodDeltas scores one finished season.
func OwnerMoodDeltas(s *league.Settings, ts league.TeamSeason) league.OwnerMood {
	var d league.OwnerMood
	d.Wins = 0.25 * (ts.WinPct() - 0.5) / 0.25
	rounds := s.NumPlayoffRounds()
	switch {
	case ts.PlayoffRoundsWon < 0:
		d.Playoffs = -0.2
	case rounds > 0 && ts.PlayoffRoundsWon >= rounds:
		d.Playoffs = 0.2
	case rounds > 0:
		d.Playoffs = 0.16 * float64(ts.PlayoffRoundsWon) / float64(rounds)
	}
	profit := (ts.Revenues.Total() - ts.Expenses.Total()) / 1000
	d.Money = (profit - 15*s.SalaryCapFactor()) / (100 * s.SalaryCapFactor())
	return d
}

// UpdateOwnerMood accumulates this season's deltas onto last season's mood.
func UpdateOwnerMood(ctx context.Context, c *league.Context, tid int) (league.OwnerMood, error) {
	s := c.Settings
	ts, err := c.Repo.TeamSeason(ctx, tid, s.Season)
	if err != nil {
		return league.OwnerMood{}, err
	}
	mood := league.OwnerMood{}
	if prev, err := c.Repo.TeamSeason(ctx, tid, s.Season-1); err == nil && prev.OwnerMood != nil {
		mood = *prev.OwnerMood
	}
	d := OwnerMoodDeltas(s, ts)
	mood.Wins = random.Bound(mood.Wins+d.Wins, -3, 3)
	mood.Playoffs = random.Bound(mood.Playoffs+d.Playoffs, -3, 3)
	mood.Money = random.Bound(mood.Money+d.Money, -3, 3)
	ts.OwnerMood = &mood
	return mood, c.Repo.PutTeamSeason(ctx, ts)
}
