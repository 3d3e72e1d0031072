// Package variant holds the sport-specific strategies: rating formulas,
// attendance, award scoring, box score generation and league defaults.
package variant

import (
	"fmt"
	"sort"
	"strings"

	"leaguesim/internal/random"
)

// RatedPlayer is the minimum a RatingModel needs to rate a team.
type RatedPlayer struct {
	Pos string
	Ovr int
}

type RatingModel interface {
	Ovr(r map[string]int, pos string) int
	Pot(ovr, age int) int
	TeamOvr(players []RatedPlayer) float64
	Position(r map[string]int) string
	Generate(rng *random.Source, pos string, quality float64) map[string]int
	Progress(rng *random.Source, r map[string]int, change float64)
}

type AttendanceModel interface {
	// Base returns attendance before noise, ticket price and facilities.
	// pop is in millions.
	Base(hype, pop float64, playoffs bool) float64
	Max() float64
}

type AwardModel interface {
	MVPScore(perGame map[string]float64, winp float64) float64
	DPOYScore(perGame map[string]float64) float64
	// Group maps a position to its all-league quota group.
	Group(pos string) string
}

// Slot is one player on the floor for box score generation.
type Slot struct {
	Pos     string
	Ovr     int
	Starter bool
}

type GameModel interface {
	Score(rng *random.Source, ovr, oppOvr float64, home bool) int
	OvertimeScore(rng *random.Source, ovr, oppOvr float64) int
	// Lines splits pts into per-player stat lines whose "pts" sum to pts.
	Lines(rng *random.Source, pts int, slots []Slot) []map[string]float64
}

type Quota struct {
	Group string
	N     int
}

type Injury struct {
	Type     string
	MinGames int
	MaxGames int
}

type Defaults struct {
	NumTeams              int
	NumConfs              int
	DivsPerConf           int
	NumGames              int
	ScheduleDiv           int
	ScheduleConf          int
	ScheduleOther         int
	NumGamesPlayoffSeries []int
	SalaryCap             float64
	MinPayroll            float64
	LuxuryPayroll         float64
	LuxuryTax             float64
	MinContract           float64
	MaxContract           float64
	MinRosterSize         int
	MaxRosterSize         int
	DraftRounds           int
	BudgetAmount          float64
	TicketPrice           float64
	NationalTVRevenue     float64
	TradeDeadlineFraction float64
}

type Variant struct {
	Name             string
	Positions        []string
	RatingKeys       []string
	StatKeys         []string
	NumActive        int
	NumStarters      int
	PositionMinimums map[string]int
	TiesAllowed      bool
	SixthMan         bool
	AllLeague        []Quota
	AllLeagueTeams   int
	AllDefense       []Quota
	AllDefenseTeams  int
	DefenseGroups    []string
	InjuryRate       float64
	Injuries         []Injury
	Defaults         Defaults

	Ratings    RatingModel
	Attendance AttendanceModel
	Awards     AwardModel
	Game       GameModel

	derived func(line map[string]float64, gp float64) map[string]float64
}

// Derived computes per-game averages and percentages from season totals.
func (v Variant) Derived(line map[string]float64, gp float64) map[string]float64 {
	out := make(map[string]float64, len(line))
	if gp > 0 {
		for k, x := range line {
			out[k] = x / gp
		}
	}
	if v.derived != nil {
		for k, x := range v.derived(line, gp) {
			out[k] = x
		}
	}
	return out
}

// PlayoffTeams is the bracket size implied by the series lengths.
func PlayoffTeams(numGamesPlayoffSeries []int) int {
	if len(numGamesPlayoffSeries) == 0 {
		return 0
	}
	return 1 << len(numGamesPlayoffSeries)
}

// NumGamesToWin converts a series length into the wins needed.
func NumGamesToWin(seriesLength int) int {
	return seriesLength/2 + 1
}

var registry = map[string]func() Variant{
	"basketball": Basketball,
	"football":   Football,
}

func ByName(name string) (Variant, error) {
	fn, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Variant{}, fmt.Errorf("unknown variant %q", name)
	}
	return fn(), nil
}

func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func weighted(r map[string]int, weights map[string]float64) float64 {
	sum, total := 0.0, 0.0
	for k, w := range weights {
		sum += w * float64(r[k])
		total += w
	}
	return ratio(sum, total)
}

// shares splits n units among weights, largest remainder first, so the
// parts always sum to n.
func shares(n int, weights []float64) []int {
	out := make([]int, len(weights))
	if n <= 0 || len(weights) == 0 {
		return out
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		out[0] = n
		return out
	}
	type rem struct {
		i int
		r float64
	}
	rems := make([]rem, len(weights))
	used := 0
	for i, w := range weights {
		exact := float64(n) * w / total
		out[i] = int(exact)
		used += out[i]
		rems[i] = rem{i: i, r: exact - float64(out[i])}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].r > rems[b].r })
	for k := 0; used < n; k++ {
		out[rems[k%len(rems)].i]++
		used++
	}
	return out
}

// noisyWeights perturbs weights so box scores vary game to game.
func noisyWeights(rng *random.Source, base []float64, sigma float64) []float64 {
	out := make([]float64, len(base))
	for i, w := range base {
		out[i] = w * random.Bound(rng.Gauss(1, sigma), 0.05, 3)
	}
	return out
}
