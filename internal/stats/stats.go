// Package stats rolls single-game box score deltas into season rows and
// derives per-game values on read.
package stats

import (
	"context"
	"errors"
	"sort"

	"leaguesim/internal/league"
	"leaguesim/internal/store"
	"leaguesim/internal/variant"
)

// MergePlayer adds one game's line to the player's current season row. A
// missing row is synthesised so legacy leagues keep working.
func MergePlayer(ctx context.Context, c *league.Context, pid, tid int, playoffs, started bool, line league.StatLine) error {
	season := c.Season()
	row, err := c.Repo.PlayerStats(ctx, pid, season, playoffs, tid)
	if errors.Is(err, store.ErrNotFound) {
		c.Log.Warn("player stats row missing, adding one", "pid", pid, "tid", tid, "season", season, "playoffs", playoffs)
		row = league.PlayerStats{Pid: pid, Tid: tid, Season: season, Playoffs: playoffs, Stat: league.StatLine{}}
	} else if err != nil {
		return err
	}
	if row.Stat == nil {
		row.Stat = league.StatLine{}
	}
	row.GP++
	if started {
		row.GS++
	}
	row.Stat.Add(line)
	return c.Repo.PutPlayerStats(ctx, row)
}

// MergeTeam adds one game's team totals and the opponent's points.
func MergeTeam(ctx context.Context, c *league.Context, tid int, playoffs bool, line league.StatLine, oppPts float64) error {
	season := c.Season()
	row, err := c.Repo.TeamStats(ctx, tid, season, playoffs)
	if errors.Is(err, store.ErrNotFound) {
		c.Log.Warn("team stats row missing, adding one", "tid", tid, "season", season, "playoffs", playoffs)
		row = league.TeamStats{Tid: tid, Season: season, Playoffs: playoffs, Stat: league.StatLine{}}
	} else if err != nil {
		return err
	}
	if row.Stat == nil {
		row.Stat = league.StatLine{}
	}
	row.GP++
	row.Stat.Add(line)
	row.OppPts += oppPts
	return c.Repo.PutTeamStats(ctx, row)
}

// Sum collapses rows (for example one per team after a mid-season move)
// into a single total.
func Sum(rows []league.PlayerStats) league.PlayerStats {
	out := league.PlayerStats{Stat: league.StatLine{}}
	for i, r := range rows {
		if i == 0 {
			out.Pid, out.Season, out.Playoffs = r.Pid, r.Season, r.Playoffs
		}
		out.Tid = r.Tid
		out.GP += r.GP
		out.GS += r.GS
		out.Stat.Add(r.Stat)
	}
	return out
}

// Line is a derived, per-game view of a stats row.
type Line struct {
	Pid      int
	Tid      int
	Season   int
	GP       int
	GS       int
	PerGame  map[string]float64
	Totals   league.StatLine
	Playoffs bool
}

func Derive(v variant.Variant, row league.PlayerStats) Line {
	return Line{
		Pid:      row.Pid,
		Tid:      row.Tid,
		Season:   row.Season,
		GP:       row.GP,
		GS:       row.GS,
		PerGame:  v.Derived(row.Stat, float64(row.GP)),
		Totals:   row.Stat,
		Playoffs: row.Playoffs,
	}
}

// SeasonLines returns one derived line per player for a season, merging
// rows from multiple teams. For a player with several rows, Tid is their
// current team when they played for it that season, otherwise the team
// they played the most games for.
func SeasonLines(ctx context.Context, c *league.Context, season int, playoffs bool) ([]Line, error) {
	rows, err := c.Repo.SeasonPlayerStats(ctx, season, playoffs)
	if err != nil {
		return nil, err
	}
	byPid := make(map[int][]league.PlayerStats)
	var order []int
	for _, r := range rows {
		if _, ok := byPid[r.Pid]; !ok {
			order = append(order, r.Pid)
		}
		byPid[r.Pid] = append(byPid[r.Pid], r)
	}
	out := make([]Line, 0, len(order))
	for _, pid := range order {
		rows := byPid[pid]
		total := Sum(rows)
		if len(rows) > 1 {
			tid, err := seasonTeam(ctx, c, pid, rows)
			if err != nil {
				return nil, err
			}
			total.Tid = tid
		}
		out = append(out, Derive(c.Variant, total))
	}
	return out, nil
}

func seasonTeam(ctx context.Context, c *league.Context, pid int, rows []league.PlayerStats) (int, error) {
	p, err := c.Repo.Player(ctx, pid)
	if err != nil && !errors.Is(err, league.ErrPlayerNotFound) {
		return 0, err
	}
	if err == nil {
		for _, r := range rows {
			if r.Tid == p.Tid {
				return p.Tid, nil
			}
		}
	}
	best := rows[0]
	for _, r := range rows[1:] {
		if r.GP >= best.GP {
			best = r
		}
	}
	return best.Tid, nil
}

// Career sums every row of one player, regular season or playoffs.
func Career(ctx context.Context, c *league.Context, pid int, playoffs bool) (Line, error) {
	rows, err := c.Repo.PlayerCareer(ctx, pid)
	if err != nil {
		return Line{}, err
	}
	var keep []league.PlayerStats
	for _, r := range rows {
		if r.Playoffs == playoffs {
			keep = append(keep, r)
		}
	}
	total := Sum(keep)
	total.Pid = pid
	total.Season = 0
	return Derive(c.Variant, total), nil
}

// Leaders sorts lines by a per-game stat, descending, dropping players
// under minGP games.
func Leaders(lines []Line, stat string, minGP int) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.GP >= minGP {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PerGame[stat] > out[j].PerGame[stat] })
	return out
}
