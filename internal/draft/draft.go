// Package draft builds the draft order, generates prospect classes and runs
// selections, including the fantasy draft.
package draft

import (
	"context"
	"fmt"
	"math"
	"sort"

	"leaguesim/internal/freeagents"
	"leaguesim/internal/league"
	"leaguesim/internal/player"
	"leaguesim/internal/random"
)

const (
	TypeLottery   = "lottery"
	TypeNoLottery = "noLottery"
	TypeRandom    = "random"

	// LotteryPicks is how many picks the lottery decides.
	LotteryPicks = 3
)

var lotteryChances = []float64{250, 199, 156, 119, 88, 63, 43, 28, 17, 11, 8, 7, 6, 5}

func chances(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i < len(lotteryChances) {
			out[i] = lotteryChances[i]
		} else {
			out[i] = 5
		}
	}
	return out
}

type standing struct {
	tid    int
	winp   float64
	rounds int
}

// Order returns tids in draft order for the current season: lottery for
// non-playoff teams, then playoff teams by result.
func Order(ctx context.Context, c *league.Context) ([]int, error) {
	rows, err := c.Repo.TeamSeasons(ctx, c.Season())
	if err != nil {
		return nil, err
	}
	var missed, made []standing
	for _, ts := range rows {
		st := standing{tid: ts.Tid, winp: ts.WinPct(), rounds: ts.PlayoffRoundsWon}
		if ts.PlayoffRoundsWon < 0 {
			missed = append(missed, st)
		} else {
			made = append(made, st)
		}
	}
	if c.Settings.DraftType == TypeRandom {
		all := random.Shuffled(c.Rand, append(missed, made...))
		out := make([]int, len(all))
		for i, st := range all {
			out[i] = st.tid
		}
		return out, nil
	}

	// worst record first, ties to the lower tid
	sort.SliceStable(missed, func(i, j int) bool { return missed[i].winp < missed[j].winp })
	sort.SliceStable(made, func(i, j int) bool {
		if made[i].rounds != made[j].rounds {
			return made[i].rounds < made[j].rounds
		}
		return made[i].winp < made[j].winp
	})

	var order []int
	if c.Settings.DraftType != TypeNoLottery && len(missed) > 0 {
		weights := chances(len(missed))
		drawn := make(map[int]bool)
		for k := 0; k < min(LotteryPicks, len(missed)); k++ {
			i := c.Rand.Choice(weights)
			weights[i] = 0
			drawn[i] = true
			order = append(order, missed[i].tid)
		}
		for i, st := range missed {
			if !drawn[i] {
				order = append(order, st.tid)
			}
		}
	} else {
		for _, st := range missed {
			order = append(order, st.tid)
		}
	}
	for _, st := range made {
		order = append(order, st.tid)
	}
	return order, nil
}

// GenOrder numbers this season's picks. Teams missing a pick of their own
// get one minted.
func GenOrder(ctx context.Context, c *league.Context) error {
	order, err := Order(ctx, c)
	if err != nil {
		return err
	}
	slot := make(map[int]int, len(order))
	for i, tid := range order {
		slot[tid] = i + 1
	}
	if err := MintPicks(ctx, c, c.Season()); err != nil {
		return err
	}
	picks, err := c.Repo.DraftPicks(ctx, c.Season())
	if err != nil {
		return err
	}
	for _, dp := range picks {
		if dp.Fantasy {
			continue
		}
		dp.Pick = slot[dp.OriginalTid]
		if err := c.Repo.PutDraftPick(ctx, dp); err != nil {
			return err
		}
	}
	c.Event(ctx, league.Event{Type: "draftOrder", Text: fmt.Sprintf("The %d draft order is set.", c.Season()), Tids: order[:min(1, len(order))]})
	return nil
}

// GenOrderFantasy replaces all current picks with a random snake draft long
// enough for every team to fill a roster.
func GenOrderFantasy(ctx context.Context, c *league.Context) error {
	picks, err := c.Repo.DraftPicks(ctx, c.Season())
	if err != nil {
		return err
	}
	for _, dp := range picks {
		if dp.Fantasy {
			if err := c.Repo.DeleteDraftPick(ctx, dp.Dpid); err != nil {
				return err
			}
		}
	}
	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return err
	}
	tids := make([]int, len(teams))
	for i, t := range teams {
		tids[i] = t.Tid
	}
	tids = random.Shuffled(c.Rand, tids)
	rounds := c.Settings.MaxRosterSize
	for r := 1; r <= rounds; r++ {
		for i := range tids {
			tid := tids[i]
			if r%2 == 0 {
				tid = tids[len(tids)-1-i]
			}
			dp := league.DraftPick{Tid: tid, OriginalTid: tid, Round: r, Pick: i + 1, Season: c.Season(), Fantasy: true}
			if _, err := c.Repo.AddDraftPick(ctx, dp); err != nil {
				return err
			}
		}
	}
	return nil
}

// MintPicks gives every team one pick per round for season, skipping picks
// that already exist.
func MintPicks(ctx context.Context, c *league.Context, season int) error {
	existing, err := c.Repo.DraftPicks(ctx, season)
	if err != nil {
		return err
	}
	have := make(map[[2]int]bool)
	for _, dp := range existing {
		if !dp.Fantasy {
			have[[2]int{dp.OriginalTid, dp.Round}] = true
		}
	}
	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return err
	}
	for _, t := range teams {
		for r := 1; r <= c.Settings.DraftRounds; r++ {
			if have[[2]int{t.Tid, r}] {
				continue
			}
			if _, err := c.Repo.AddDraftPick(ctx, league.DraftPick{Tid: t.Tid, OriginalTid: t.Tid, Round: r, Season: season}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClassSize is the number of prospects generated per draft class.
func ClassSize(s *league.Settings) int {
	return int(math.Round(float64(s.NumTeams*s.DraftRounds) * 1.5))
}

// GenPlayers adds a prospect class with the given undrafted tid sentinel.
func GenPlayers(ctx context.Context, c *league.Context, tid, draftYear, n int) error {
	yearsOut := draftYear - c.Season()
	for i := 0; i < n; i++ {
		age := c.Rand.RandInt(player.ProspectMinAge, player.ProspectMaxAge) - yearsOut
		quality := c.Rand.TruncGauss(38, 6, 20, 60)
		p := player.Generate(c, tid, age, draftYear, quality)
		if _, err := c.Repo.AddPlayer(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ShiftProspects ages the prospect pools forward one cohort and generates a
// new furthest-future class.
func ShiftProspects(ctx context.Context, c *league.Context) error {
	shifts := []struct{ from, to int }{
		{league.Undrafted2, league.Undrafted},
		{league.Undrafted3, league.Undrafted2},
	}
	for _, sh := range shifts {
		players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{sh.from}})
		if err != nil {
			return err
		}
		for _, p := range players {
			p.Tid = sh.to
			if err := c.Repo.PutPlayer(ctx, p); err != nil {
				return err
			}
		}
	}
	return GenPlayers(ctx, c, league.Undrafted3, c.Season()+3, ClassSize(c.Settings))
}

// FixProspectYears repairs current prospects whose draft year does not
// match this season's draft.
func FixProspectYears(ctx context.Context, c *league.Context) (int, error) {
	players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{league.Undrafted}})
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, p := range players {
		if p.Draft.Year == c.Season() {
			continue
		}
		c.Log.Warn("prospect had wrong draft year", "pid", p.Pid, "draftYear", p.Draft.Year, "season", c.Season())
		p.Draft.Year = c.Season()
		if err := c.Repo.PutPlayer(ctx, p); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

// Picks returns this season's picks in selection order.
func Picks(ctx context.Context, c *league.Context) ([]league.DraftPick, error) {
	picks, err := c.Repo.DraftPicks(ctx, c.Season())
	if err != nil {
		return nil, err
	}
	fantasy := c.Phase() == league.PhaseFantasyDraft
	out := picks[:0]
	for _, dp := range picks {
		if dp.Fantasy == fantasy {
			out = append(out, dp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].Pick < out[j].Pick
	})
	return out, nil
}

func poolTid(c *league.Context) int {
	if c.Phase() == league.PhaseFantasyDraft {
		return league.UndraftedFantasyTemp
	}
	return league.Undrafted
}

// RookieSalary scales from the top pick down to the minimum at the end of
// the first round; later rounds earn the minimum.
func RookieSalary(s *league.Settings, round, pick int) float64 {
	if round > 1 || s.NumTeams <= 1 {
		return s.MinContract
	}
	top := 0.17 * s.MaxContract
	frac := 1 - float64(pick-1)/float64(s.NumTeams-1)
	amount := s.MinContract + (top-s.MinContract)*frac
	return random.Bound(random.Round(amount, 50), s.MinContract, s.MaxContract)
}

// SelectPlayer spends pick dp on pid.
func SelectPlayer(ctx context.Context, c *league.Context, dp league.DraftPick, pid int) error {
	p, err := c.Repo.Player(ctx, pid)
	if err != nil {
		return err
	}
	if p.Tid != poolTid(c) {
		return fmt.Errorf("%w: pid %d", league.ErrNotInDraftPool, pid)
	}
	p.Tid = dp.Tid
	if dp.Fantasy {
		player.UpdateValues(&p, c.Season())
		if p.Contract.Exp < c.Season() {
			p.Contract = player.GenContract(c.Settings, p, true)
		}
	} else {
		p.Draft = league.DraftInfo{
			Round: dp.Round, Pick: dp.Pick, Tid: dp.Tid, OriginalTid: dp.OriginalTid,
			Year: c.Season(), Ovr: p.Ovr(), Pot: p.Pot(),
		}
		years := 2
		if dp.Round == 1 {
			years = 3
		}
		p.Contract = league.Contract{Amount: RookieSalary(c.Settings, dp.Round, dp.Pick), Exp: c.Season() + years, Rookie: true}
	}
	p.GamesUntilTradable = 4
	if err := c.Repo.PutPlayer(ctx, p); err != nil {
		return err
	}
	if err := c.Repo.DeleteDraftPick(ctx, dp.Dpid); err != nil {
		return err
	}
	if c.Settings.IsUserTeam(dp.Tid) || dp.Round == 1 && dp.Pick <= 3 {
		c.Event(ctx, league.Event{
			Type: "draft",
			Text: fmt.Sprintf("The %s selected %s with pick %d of round %d.", c.TeamName(ctx, dp.Tid), p.Name(), dp.Pick, dp.Round),
			Tids: []int{dp.Tid},
			Pids: []int{p.Pid},
		})
	}
	return nil
}

// UntilUserOrEnd makes AI selections in order. It stops at the first pick
// owned by a user-controlled team unless untilEnd is set, in which case the
// best available player is taken for the user too.
func UntilUserOrEnd(ctx context.Context, c *league.Context, untilEnd bool) ([]int, error) {
	picks, err := Picks(ctx, c)
	if err != nil {
		return nil, err
	}
	pool, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{poolTid(c)}})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].ValueFuzz > pool[j].ValueFuzz })

	var drafted []int
	for _, dp := range picks {
		if len(pool) == 0 {
			if err := c.Repo.DeleteDraftPick(ctx, dp.Dpid); err != nil {
				return drafted, err
			}
			continue
		}
		if !untilEnd && c.UserControlled(dp.Tid) {
			return drafted, nil
		}
		pid := pool[0].Pid
		pool = pool[1:]
		if err := SelectPlayer(ctx, c, dp, pid); err != nil {
			return drafted, err
		}
		drafted = append(drafted, pid)
	}
	return drafted, nil
}

// UserPick spends the pick on the clock for a user team.
func UserPick(ctx context.Context, c *league.Context, pid int) error {
	picks, err := Picks(ctx, c)
	if err != nil {
		return err
	}
	if len(picks) == 0 || !c.Settings.IsUserTeam(picks[0].Tid) {
		return league.ErrNotUserPick
	}
	return SelectPlayer(ctx, c, picks[0], pid)
}

// Finish completes the draft: remaining picks are made automatically and
// undrafted players of this class become free agents.
func Finish(ctx context.Context, c *league.Context) error {
	if _, err := UntilUserOrEnd(ctx, c, true); err != nil {
		return err
	}
	left, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{poolTid(c)}})
	if err != nil {
		return err
	}
	if len(left) == 0 {
		return nil
	}
	base, err := freeagents.BaseMoods(ctx, c)
	if err != nil {
		return err
	}
	for i := range left {
		if err := freeagents.AddToFreeAgents(ctx, c, &left[i], base); err != nil {
			return err
		}
	}
	return nil
}
