package sim

import (
	"context"

	"leaguesim/internal/league"
)

// PlayerSnapshot is what a simulator may know about one player.
type PlayerSnapshot struct {
	Pid     int
	Name    string
	Pos     string
	Ovr     int
	Value   float64
	Active  bool
	Injured bool
}

// TeamSnapshot is a team as it takes the floor, with its composite rating.
type TeamSnapshot struct {
	Tid     int
	Abbrev  string
	Ovr     float64
	Players []PlayerSnapshot
}

type GameOptions struct {
	PlayByPlay bool
	// Playoffs games never end tied, even in variants that allow ties.
	Playoffs bool
}

type PlayerResult struct {
	Pid     int
	Starter bool
	Stat    league.StatLine
	Injury  *league.Injury
}

type TeamResult struct {
	Tid     int
	Pts     int
	Stat    league.StatLine
	Players []PlayerResult
}

// GameResult is a simulated game. Teams[0] is the home team.
type GameResult struct {
	Gid        int
	Overtimes  int
	Teams      [2]TeamResult
	PlayByPlay []string
}

// Winner returns the winning team index, or tie.
func (g GameResult) Winner() (idx int, tie bool) {
	switch {
	case g.Teams[0].Pts > g.Teams[1].Pts:
		return 0, false
	case g.Teams[1].Pts > g.Teams[0].Pts:
		return 1, false
	}
	return 0, true
}

// Simulator plays one game. It must not touch storage.
type Simulator interface {
	Simulate(ctx context.Context, gid int, home, away TeamSnapshot, opts GameOptions) (GameResult, error)
}

// PhaseChanger moves the league to another phase in its own transaction.
type PhaseChanger interface {
	ChangePhase(ctx context.Context, target league.Phase) error
}
