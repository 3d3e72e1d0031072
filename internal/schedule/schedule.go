// Package schedule builds regular season schedules: who plays whom, who is
// home, and on which day.
package schedule

import (
	"context"
	"fmt"
	"math"
	"sort"

	"leaguesim/internal/league"
	"leaguesim/internal/random"
)

// Pairings returns every regular season game without days. Each pair of
// teams meets NumGamesDiv, NumGamesConf or NumGamesOther times depending on
// how they are related, split evenly home and away. Games still missing to
// reach NumGames come from whole rounds of a round robin, preferring rounds
// with the fewest division rematches.
func Pairings(rng *random.Source, s *league.Settings, teams []league.Team) ([]league.ScheduleGame, error) {
	n := len(teams)
	if n < 2 {
		return nil, nil
	}
	var games []league.ScheduleGame
	played := make(map[int]int, n)
	home := make(map[int]int, n)
	add := func(h, a int) {
		games = append(games, league.ScheduleGame{HomeTid: h, AwayTid: a})
		played[h]++
		played[a]++
		home[h]++
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := teams[i], teams[j]
			k := s.NumGamesOther
			switch {
			case a.Did == b.Did:
				k = s.NumGamesDiv
			case a.Cid == b.Cid:
				k = s.NumGamesConf
			}
			for g := 0; g < k/2; g++ {
				add(a.Tid, b.Tid)
				add(b.Tid, a.Tid)
			}
			if k%2 == 1 {
				// alternate who gets the extra home game
				if (a.Tid+b.Tid)%2 == 0 {
					add(a.Tid, b.Tid)
				} else {
					add(b.Tid, a.Tid)
				}
			}
		}
	}

	extra := s.NumGames - played[teams[0].Tid]
	for _, t := range teams {
		if got := s.NumGames - played[t.Tid]; got != extra {
			return nil, fmt.Errorf("schedule: teams have unequal base schedules (%d vs %d games left)", extra, got)
		}
	}
	if extra < 0 {
		return nil, fmt.Errorf("schedule: structure needs %d games but numGames is %d", played[teams[0].Tid], s.NumGames)
	}
	if extra == 0 {
		return games, nil
	}
	if n%2 == 1 && extra%(n-1) != 0 {
		return nil, fmt.Errorf("schedule: %d teams cannot each play %d more games", n, extra)
	}

	div := make(map[int]int, n)
	for _, t := range teams {
		div[t.Tid] = t.Did
	}
	rounds := roundRobin(random.Shuffled(rng, teams))
	sort.SliceStable(rounds, func(i, j int) bool {
		return rematches(rounds[i], div) < rematches(rounds[j], div)
	})
	// with an odd count every team sits out one round per cycle
	total := extra
	if n%2 == 1 {
		total = extra / (n - 1) * n
	}
	for r := 0; r < total; r++ {
		for _, m := range rounds[r%len(rounds)] {
			h, a := m[0], m[1]
			if home[h] > home[a] || home[h] == home[a] && rng.Bool(0.5) {
				h, a = a, h
			}
			add(h, a)
		}
	}
	return games, nil
}

// roundRobin returns n-1 rounds, each pairing every team exactly once. An
// odd count gets a bye slot, giving n rounds with one team idle in each.
func roundRobin(teams []league.Team) [][][2]int {
	const bye = -1
	ids := make([]int, 0, len(teams)+1)
	for _, t := range teams {
		ids = append(ids, t.Tid)
	}
	if len(ids)%2 == 1 {
		ids = append(ids, bye)
	}
	n := len(ids)
	rounds := make([][][2]int, 0, n-1)
	for r := 0; r < n-1; r++ {
		round := make([][2]int, 0, n/2)
		for i := 0; i < n/2; i++ {
			if ids[i] == bye || ids[n-1-i] == bye {
				continue
			}
			round = append(round, [2]int{ids[i], ids[n-1-i]})
		}
		rounds = append(rounds, round)
		// rotate all but the first
		last := ids[n-1]
		copy(ids[2:], ids[1:n-1])
		ids[1] = last
	}
	return rounds
}

func rematches(round [][2]int, div map[int]int) int {
	c := 0
	for _, m := range round {
		if div[m[0]] == div[m[1]] {
			c++
		}
	}
	return c
}

// Days shuffles games and places each on the earliest day where neither
// team already plays. Days are numbered from first.
func Days(rng *random.Source, games []league.ScheduleGame, first int) []league.ScheduleGame {
	games = random.Shuffled(rng, games)
	var busy []map[int]bool
	for i := range games {
		g := &games[i]
		d := 0
		for ; d < len(busy); d++ {
			if !busy[d][g.HomeTid] && !busy[d][g.AwayTid] {
				break
			}
		}
		if d == len(busy) {
			busy = append(busy, make(map[int]bool))
		}
		busy[d][g.HomeTid] = true
		busy[d][g.AwayTid] = true
		g.Day = first + d
	}
	sort.SliceStable(games, func(i, j int) bool { return games[i].Day < games[j].Day })
	return games
}

// NumDays counts the distinct days in games.
func NumDays(games []league.ScheduleGame) int {
	seen := make(map[int]struct{})
	for _, g := range games {
		seen[g.Day] = struct{}{}
	}
	return len(seen)
}

// Save replaces the queued schedule with games, assigning gids.
func Save(ctx context.Context, c *league.Context, games []league.ScheduleGame) error {
	if err := c.Repo.ClearSchedule(ctx); err != nil {
		return err
	}
	for _, g := range games {
		gid, err := c.Repo.NextGid(ctx)
		if err != nil {
			return err
		}
		g.Gid = gid
		if err := c.Repo.AddScheduleGame(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// New generates and saves the regular season schedule and sets the trade
// deadline day. It returns the number of days.
func New(ctx context.Context, c *league.Context) (int, error) {
	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return 0, err
	}
	games, err := Pairings(c.Rand, c.Settings, teams)
	if err != nil {
		return 0, err
	}
	games = Days(c.Rand, games, 1)
	if err := Save(ctx, c, games); err != nil {
		return 0, err
	}
	days := NumDays(games)
	if f := c.Variant.Defaults.TradeDeadlineFraction; f > 0 {
		c.Settings.TradeDeadlineDay = int(math.Round(float64(days) * f))
	} else {
		c.Settings.TradeDeadlineDay = 0
	}
	c.Log.Info("schedule generated", "season", c.Season(), "games", len(games), "days", days, "tradeDeadlineDay", c.Settings.TradeDeadlineDay)
	return days, nil
}
