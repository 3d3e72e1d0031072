// Package player holds the player lifecycle: generation, development,
// valuation, contracts, signing, release and retirement.
package player

import (
	"context"
	"fmt"
	"math"

	"leaguesim/internal/league"
	"leaguesim/internal/random"
	"leaguesim/internal/variant"
)

// Age range of generated draft prospects.
const (
	ProspectMinAge = 19
	ProspectMaxAge = 22
)

// Generate creates an unsaved player of the given age. quality shifts the
// mean of every rating.
func Generate(c *league.Context, tid, age, draftYear int, quality float64) league.Player {
	return GenerateAt(c, PickPosition(c), tid, age, draftYear, quality)
}

// GenerateAt is Generate with a fixed position.
func GenerateAt(c *league.Context, pos string, tid, age, draftYear int, quality float64) league.Player {
	v := c.Variant
	rng := c.Rand
	r := v.Ratings.Generate(rng, pos, quality)
	ovr := v.Ratings.Ovr(r, pos)

	p := league.Player{
		Tid:       tid,
		FirstName: firstNames[rng.IntN(len(firstNames))],
		LastName:  lastNames[rng.IntN(len(lastNames))],
		Pos:       pos,
		Born:      league.Born{Year: c.Season() - age, Loc: birthplaces[rng.IntN(len(birthplaces))]},
		Draft:     league.DraftInfo{Year: draftYear, Tid: -1, OriginalTid: -1},
		Ratings: []league.Ratings{{
			Season: c.Season(),
			Ovr:    ovr,
			Pot:    v.Ratings.Pot(ovr, age),
			Pos:    pos,
			R:      r,
		}},
		Active: true,
	}
	UpdateValues(&p, c.Season())
	p.Contract = GenContract(c.Settings, p, false)
	return p
}

// PickPosition draws a position weighted by the variant's roster minimums.
func PickPosition(c *league.Context) string {
	v := c.Variant
	weights := make([]float64, len(v.Positions))
	for i, pos := range v.Positions {
		weights[i] = float64(max(1, v.PositionMinimums[pos]))
	}
	return v.Positions[c.Rand.Choice(weights)]
}

// baseChange is the expected yearly rating movement at a given age.
func baseChange(age int) float64 {
	switch {
	case age <= 21:
		return 2
	case age <= 25:
		return 1
	case age <= 27:
		return 0
	case age <= 29:
		return -1
	case age <= 31:
		return -2
	default:
		return -3
	}
}

// coachingFactor amplifies improvement and dampens decline for well-ranked
// coaching staffs, and the reverse for poorly ranked ones.
func coachingFactor(change float64, numTeams, coachingRank int) float64 {
	if numTeams <= 1 || coachingRank <= 0 {
		return 1
	}
	quality := float64(numTeams-coachingRank) / float64(numTeams-1)
	if change >= 0 {
		return 0.5 + quality
	}
	return 1.5 - quality
}

// Develop ages the latest ratings row by years seasons.
func Develop(c *league.Context, p *league.Player, years, coachingRank int) {
	row := p.Latest()
	if row == nil {
		return
	}
	v := c.Variant
	age := p.Age(row.Season)
	for i := 0; i < years; i++ {
		change := baseChange(age+i) + c.Rand.Gauss(0, 2)
		change *= coachingFactor(change, c.Settings.NumTeams, coachingRank)
		v.Ratings.Progress(c.Rand, row.R, change)
	}
	row.Ovr = v.Ratings.Ovr(row.R, p.Pos)
	row.Pot = v.Ratings.Pot(row.Ovr, age+years)
	row.Pos = p.Pos
}

// AddRatingsRow copies the latest ratings into a row for the current
// season. A player never gets two rows for one season.
func AddRatingsRow(c *league.Context, p *league.Player, scoutingRank int) bool {
	last := p.Latest()
	if last == nil || last.Season >= c.Season() {
		return false
	}
	next := *last
	next.Season = c.Season()
	next.R = make(map[string]int, len(last.R))
	for k, x := range last.R {
		next.R[k] = x
	}
	next.Fuzz = GenFuzz(c.Rand, c.Settings.NumTeams, scoutingRank)
	p.Ratings = append(p.Ratings, next)
	return true
}

// GenFuzz draws scouting noise. Better scouting ranks shrink it.
func GenFuzz(rng *random.Source, numTeams, scoutingRank int) float64 {
	spread := 0.5
	if numTeams > 1 {
		spread = float64(scoutingRank-1) / float64(numTeams-1)
	}
	cutoff := 2 + 8*spread
	sigma := 1 + 2*spread
	return rng.TruncGauss(0, sigma, -cutoff, cutoff)
}

func potentialWeight(age int) float64 {
	switch {
	case age <= 19:
		return 0.8
	case age == 20:
		return 0.7
	case age == 21:
		return 0.5
	case age == 22:
		return 0.3
	case age == 23:
		return 0.15
	default:
		return 0
	}
}

func agePenalty(age int) float64 {
	if age < 29 {
		return 1
	}
	return math.Max(0.5, 1-0.025*float64(age-28))
}

// UpdateValues recomputes value, valueNoPot and the scouted valueFuzz.
func UpdateValues(p *league.Player, season int) {
	row := p.Latest()
	if row == nil {
		return
	}
	age := p.Age(season)
	w := potentialWeight(age)
	pen := agePenalty(age)
	ovr, pot := float64(row.Ovr), float64(row.Pot)

	p.ValueNoPot = ovr * pen
	p.Value = (w*pot + (1-w)*ovr) * pen
	p.ValueFuzz = (w*(pot+row.Fuzz) + (1-w)*(ovr+row.Fuzz)) * pen
	p.GamesSinceValue = 0
}

// GenContract sets the asking contract from value. With randomize the
// length varies by age.
func GenContract(s *league.Settings, p league.Player, randomize bool) league.Contract {
	amount := ((p.Value-1)/100 - 0.45) * 3.3 * s.MaxContract
	amount = random.Round(random.Bound(amount, s.MinContract, s.MaxContract), 50)
	amount = random.Bound(amount, s.MinContract, s.MaxContract)

	years := 3
	age := p.Age(s.Season)
	if randomize {
		switch {
		case age <= 25:
			years = 4
		case age <= 30:
			years = 3
		default:
			years = 1 + (p.Pid+s.Season)%2
		}
	}
	exp := s.Season + years
	if s.Phase > league.PhasePlayoffs {
		exp++
	}
	return league.Contract{Amount: amount, Exp: exp}
}

// Sign puts p on tid with contract. Stats rows start immediately when
// games are being played.
func Sign(ctx context.Context, c *league.Context, p *league.Player, tid int, contract league.Contract) error {
	p.Tid = tid
	p.Contract = contract
	p.GamesUntilTradable = 15
	p.Mood = nil
	if c.Phase().InSeason() {
		if _, err := c.Repo.AddPlayerStatsRow(ctx, p.Pid, tid, c.Season(), c.Phase() == league.PhasePlayoffs); err != nil {
			return err
		}
	}
	if err := c.Repo.PutPlayer(ctx, *p); err != nil {
		return err
	}
	c.Event(ctx, league.Event{
		Type: "freeAgent",
		Text: fmt.Sprintf("The %s signed %s for $%.0fk/year through %d.", c.TeamName(ctx, tid), p.Name(), contract.Amount, contract.Exp),
		Tids: []int{tid},
		Pids: []int{p.Pid},
	})
	return nil
}

// Release makes p a free agent. Unless void, the team still owes the
// remaining contract as dead money.
func Release(ctx context.Context, c *league.Context, p *league.Player, void bool) error {
	tid := p.Tid
	if !void {
		err := c.Repo.AddReleasedPlayer(ctx, league.ReleasedPlayer{Pid: p.Pid, Tid: tid, Contract: p.Contract})
		if err != nil {
			return err
		}
	}
	p.Tid = league.FreeAgent
	p.Active = true
	UpdateValues(p, c.Season())
	p.Contract = GenContract(c.Settings, *p, true)
	if err := c.Repo.PutPlayer(ctx, *p); err != nil {
		return err
	}
	c.Event(ctx, league.Event{
		Type: "release",
		Text: fmt.Sprintf("The %s released %s.", c.TeamName(ctx, tid), p.Name()),
		Tids: []int{tid},
		Pids: []int{p.Pid},
	})
	return nil
}

// ShouldRetire applies the age, potential and noise rule. Only old players
// and free agents are considered.
func ShouldRetire(c *league.Context, p league.Player) bool {
	age := p.Age(c.Season())
	if age <= 34 && p.Tid != league.FreeAgent {
		return false
	}
	excessAge := float64(age-34) / 20
	excessPot := float64(40-p.Pot()) / 50
	return excessAge+excessPot+c.Rand.Gauss(0, 1) > 0
}

func Retire(ctx context.Context, c *league.Context, p *league.Player) error {
	tid := p.Tid
	p.Tid = league.Retired
	p.RetiredYear = c.Season()
	p.Active = false
	p.Contract = league.Contract{}
	if err := c.Repo.PutPlayer(ctx, *p); err != nil {
		return err
	}
	if tid >= 0 && (c.Settings.IsUserTeam(tid) || p.Value >= 65) {
		c.Event(ctx, league.Event{
			Type: "retired",
			Text: fmt.Sprintf("%s retired at age %d.", p.Name(), p.Age(c.Season())),
			Tids: []int{tid},
			Pids: []int{p.Pid},
		})
	}
	return nil
}

// RandomInjury draws one of the variant's injuries.
func RandomInjury(rng *random.Source, v variant.Variant) league.Injury {
	if len(v.Injuries) == 0 {
		return league.Injury{Type: "Injury", GamesRemaining: 1}
	}
	inj := v.Injuries[rng.IntN(len(v.Injuries))]
	return league.Injury{Type: inj.Type, GamesRemaining: rng.RandInt(inj.MinGames, inj.MaxGames)}
}

// Heal advances an injury by games.
func Heal(p *league.Player, games int) {
	if p.Injury.GamesRemaining <= 0 {
		return
	}
	p.Injury.GamesRemaining -= games
	if p.Injury.GamesRemaining <= 0 {
		p.Injury = league.Injury{Type: "Healthy"}
	}
}

// Ovrs projects players onto what a RatingModel needs for team ratings,
// skipping injured players when healthyOnly is set.
func Ovrs(players []league.Player, healthyOnly bool) []variant.RatedPlayer {
	out := make([]variant.RatedPlayer, 0, len(players))
	for _, p := range players {
		if healthyOnly && !p.Injury.Healthy() {
			continue
		}
		out = append(out, variant.RatedPlayer{Pos: p.Pos, Ovr: p.Ovr()})
	}
	return out
}
