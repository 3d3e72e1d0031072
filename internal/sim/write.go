package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"leaguesim/internal/finance"
	"leaguesim/internal/league"
	"leaguesim/internal/player"
	"leaguesim/internal/playoffs"
	"leaguesim/internal/stats"
	"leaguesim/internal/store"
	"leaguesim/internal/variant"
)

const defaultValueRefreshEvery = 10

// Snapshot reads team tid and its roster as the simulator sees them. The
// composite rating only counts active, healthy players.
func Snapshot(ctx context.Context, c *league.Context, tid int) (TeamSnapshot, error) {
	team, err := c.Repo.Team(ctx, tid)
	if err != nil {
		return TeamSnapshot{}, fmt.Errorf("team %d: %w", tid, err)
	}
	players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{tid}})
	if err != nil {
		return TeamSnapshot{}, err
	}
	sort.SliceStable(players, func(i, j int) bool { return players[i].Value > players[j].Value })

	snap := TeamSnapshot{Tid: tid, Abbrev: team.Abbrev, Players: make([]PlayerSnapshot, 0, len(players))}
	var rated []variant.RatedPlayer
	for _, p := range players {
		ps := PlayerSnapshot{
			Pid:     p.Pid,
			Name:    p.Name(),
			Pos:     p.Pos,
			Ovr:     p.Ovr(),
			Value:   p.Value,
			Active:  p.Active,
			Injured: !p.Injury.Healthy(),
		}
		if ps.Active && !ps.Injured {
			rated = append(rated, variant.RatedPlayer{Pos: ps.Pos, Ovr: ps.Ovr})
		}
		snap.Players = append(snap.Players, ps)
	}
	snap.Ovr = c.Variant.Ratings.TeamOvr(rated)
	return snap, nil
}

type outcome string

const (
	outcomeWin  outcome = "W"
	outcomeLoss outcome = "L"
	outcomeTie  outcome = "T"
)

func outcomeFor(res GameResult, t int) outcome {
	w, tie := res.Winner()
	switch {
	case tie:
		return outcomeTie
	case w == t:
		return outcomeWin
	}
	return outcomeLoss
}

func streak(cur int, o outcome) int {
	switch o {
	case outcomeWin:
		if cur > 0 {
			return cur + 1
		}
		return 1
	case outcomeLoss:
		if cur < 0 {
			return cur - 1
		}
		return -1
	}
	return 0
}

func seasonRow(ctx context.Context, c *league.Context, tid int) (league.TeamSeason, error) {
	ts, err := c.Repo.TeamSeason(ctx, tid, c.Season())
	if !errors.Is(err, store.ErrNotFound) {
		return ts, err
	}
	team, err := c.Repo.Team(ctx, tid)
	if err != nil {
		return ts, err
	}
	c.Log.Warn("team season row missing, adding one", "tid", tid, "season", c.Season())
	ts = league.TeamSeason{
		Tid: tid, Season: c.Season(), Cid: team.Cid, Did: team.Did,
		Hype: 0.5, Pop: team.Pop, PlayoffRoundsWon: -1,
	}
	_, err = c.Repo.AddSeasonRow(ctx, ts)
	return ts, err
}

// WriteTeamStats books one game onto both teams: stat totals, record and
// splits, attendance, revenue and expenses, and hype. It returns the
// attendance.
func WriteTeamStats(ctx context.Context, c *league.Context, g league.ScheduleGame, res GameResult, playoffs bool) (float64, error) {
	s := c.Settings
	rows := [2]league.TeamSeason{}
	teams := [2]league.Team{}
	for t, tid := range [2]int{g.HomeTid, g.AwayTid} {
		ts, err := seasonRow(ctx, c, tid)
		if err != nil {
			return 0, err
		}
		team, err := c.Repo.Team(ctx, tid)
		if err != nil {
			return 0, err
		}
		rows[t], teams[t] = ts, team
	}

	home := teams[0]
	base := c.Variant.Attendance.Base(rows[0].Hype, rows[0].Pop, playoffs)
	att := finance.Attendance(c.Rand, c.Variant, s, base, home.Budget.TicketPrice.Amount, home.Budget.Facilities.Rank)

	for t := range 2 {
		tr, opp := res.Teams[t], res.Teams[1-t]
		if err := stats.MergeTeam(ctx, c, tr.Tid, playoffs, tr.Stat, float64(opp.Pts)); err != nil {
			return 0, err
		}

		ts := rows[t]
		payroll, err := c.Repo.Payroll(ctx, tr.Tid)
		if err != nil {
			return 0, err
		}
		rev := finance.ForGame(s, teams[t], payroll, att, t == 0)
		if playoffs {
			rev.Expenses.Salary = 0
		}
		rev.Apply(&ts)
		if t == 0 {
			ts.GPHome++
			ts.Att += att
		}

		if !playoffs {
			o := outcomeFor(res, t)
			oppRow := rows[1-t]
			sameDiv, sameConf := ts.Did == oppRow.Did, ts.Cid == oppRow.Cid
			ts.GP++
			switch o {
			case outcomeWin:
				ts.Won++
				if t == 0 {
					ts.WonHome++
				} else {
					ts.WonAway++
				}
				if sameDiv {
					ts.WonDiv++
				}
				if sameConf {
					ts.WonConf++
				}
			case outcomeLoss:
				ts.Lost++
				if t == 0 {
					ts.LostHome++
				} else {
					ts.LostAway++
				}
				if sameDiv {
					ts.LostDiv++
				}
				if sameConf {
					ts.LostConf++
				}
			default:
				ts.Tied++
			}
			ts.LastTen = append([]string{string(o)}, ts.LastTen...)
			if len(ts.LastTen) > 10 {
				ts.LastTen = ts.LastTen[:10]
			}
			ts.Streak = streak(ts.Streak, o)

			if ts.GP >= finance.MinGamesForHype {
				history, err := c.Repo.TeamHistory(ctx, tr.Tid)
				if err != nil {
					return 0, err
				}
				ts.Hype = finance.Hype(ts.Hype, ts.WinPct(), finance.TrailingWinp(history, s.Season))
			}
		}

		if err := c.Repo.PutTeamSeason(ctx, ts); err != nil {
			return 0, err
		}
	}
	return att, nil
}

func boxScore(c *league.Context, g league.ScheduleGame, res GameResult, snaps [2]TeamSnapshot, att float64, playoffs bool) league.Game {
	out := league.Game{
		Gid:        g.Gid,
		Season:     c.Season(),
		Day:        g.Day,
		Playoffs:   playoffs,
		Overtimes:  res.Overtimes,
		Att:        att,
		PlayByPlay: res.PlayByPlay,
	}
	w, tie := res.Winner()
	out.Tie = tie
	out.WinnerTid = -1
	if !tie {
		out.WinnerTid = res.Teams[w].Tid
	}
	for t := range 2 {
		tr := res.Teams[t]
		names := make(map[int]PlayerSnapshot, len(snaps[t].Players))
		for _, ps := range snaps[t].Players {
			names[ps.Pid] = ps
		}
		box := league.TeamBox{Tid: tr.Tid, Pts: tr.Pts, Ovr: snaps[t].Ovr, Stat: tr.Stat}
		for _, pr := range tr.Players {
			ps := names[pr.Pid]
			box.Players = append(box.Players, league.PlayerBox{
				Pid: pr.Pid, Name: ps.Name, Pos: ps.Pos, GS: pr.Starter, Stat: pr.Stat, Injury: pr.Injury,
			})
		}
		out.Teams[t] = box
	}
	return out
}

func writeGame(ctx context.Context, c *league.Context, g league.ScheduleGame, res GameResult, snaps [2]TeamSnapshot, att float64, playoffGame bool) error {
	box := boxScore(c, g, res, snaps, att, playoffGame)
	if err := c.Repo.AddGame(ctx, box); err != nil {
		return fmt.Errorf("box score %d: %w", g.Gid, err)
	}

	for t := range 2 {
		tid := res.Teams[t].Tid
		if !c.Settings.IsUserTeam(tid) {
			continue
		}
		opp := snaps[1-t].Abbrev
		var text, typ string
		switch outcomeFor(res, t) {
		case outcomeWin:
			typ, text = "gameWon", fmt.Sprintf("%s beat %s %d-%d.", snaps[t].Abbrev, opp, res.Teams[t].Pts, res.Teams[1-t].Pts)
		case outcomeLoss:
			typ, text = "gameLost", fmt.Sprintf("%s lost to %s %d-%d.", snaps[t].Abbrev, opp, res.Teams[t].Pts, res.Teams[1-t].Pts)
		default:
			typ, text = "gameTied", fmt.Sprintf("%s tied %s %d-%d.", snaps[t].Abbrev, opp, res.Teams[t].Pts, res.Teams[1-t].Pts)
		}
		c.Event(ctx, league.Event{Type: typ, Text: text, Tids: []int{tid}})
	}

	if !playoffGame {
		return nil
	}
	w, tie := res.Winner()
	if tie {
		return fmt.Errorf("playoff game %d ended tied", g.Gid)
	}
	_, err := playoffs.RecordGame(ctx, c, res.Teams[w].Tid)
	return err
}

// writePlayers merges each player's line, applies new injuries and heals
// injured teammates who sat out.
func writePlayers(ctx context.Context, c *league.Context, res GameResult, playoffGame bool) error {
	every := c.Settings.ValueRefreshEvery
	if every <= 0 {
		every = defaultValueRefreshEvery
	}
	for t := range 2 {
		tr := res.Teams[t]
		played := make(map[int]PlayerResult, len(tr.Players))
		for _, pr := range tr.Players {
			played[pr.Pid] = pr
			if err := stats.MergePlayer(ctx, c, pr.Pid, tr.Tid, playoffGame, pr.Starter, pr.Stat); err != nil {
				return err
			}
		}

		roster, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{tr.Tid}})
		if err != nil {
			return err
		}
		for _, p := range roster {
			pr, ok := played[p.Pid]
			switch {
			case ok && pr.Injury != nil:
				p.Injury = *pr.Injury
				player.UpdateValues(&p, c.Season())
				p.GamesSinceValue = 0
				if c.Settings.IsUserTeam(p.Tid) {
					c.Event(ctx, league.Event{
						Type: "injured",
						Text: fmt.Sprintf("%s was injured (%s, out for %d games).", p.Name(), p.Injury.Type, p.Injury.GamesRemaining),
						Tids: []int{p.Tid}, Pids: []int{p.Pid}, ShowNotification: true,
					})
				}
			case ok:
				p.GamesSinceValue++
				if p.GamesSinceValue >= every {
					player.UpdateValues(&p, c.Season())
					p.GamesSinceValue = 0
				}
			case !p.Injury.Healthy():
				player.Heal(&p, 1)
			default:
				continue
			}
			if err := c.Repo.PutPlayer(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// tickCounters runs once per team per game day.
func tickCounters(ctx context.Context, c *league.Context, tids []int) error {
	players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: tids})
	if err != nil {
		return err
	}
	for _, p := range players {
		if p.GamesUntilTradable <= 0 {
			continue
		}
		p.GamesUntilTradable--
		if err := c.Repo.PutPlayer(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// writeResult stores one game in the required order: team stats, box
// score with playoff series, player stats, then the schedule entry.
func writeResult(ctx context.Context, c *league.Context, g league.ScheduleGame, res GameResult, snaps [2]TeamSnapshot, playoffGame bool) error {
	att, err := WriteTeamStats(ctx, c, g, res, playoffGame)
	if err != nil {
		return fmt.Errorf("team stats: %w", err)
	}
	if err := writeGame(ctx, c, g, res, snaps, att, playoffGame); err != nil {
		return err
	}
	if err := writePlayers(ctx, c, res, playoffGame); err != nil {
		return fmt.Errorf("player stats: %w", err)
	}
	return c.Repo.DeleteScheduleGame(ctx, g)
}
