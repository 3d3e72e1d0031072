package league

import (
	"errors"
	"strings"
)

var (
	ErrPhaseChangeInProgress = errors.New("phase change already in progress")
	ErrIllegalTransition     = errors.New("illegal phase transition")
	ErrUnknownPhase          = errors.New("unknown phase")
	ErrNoLeague              = errors.New("league has not been created")
	ErrLeagueExists          = errors.New("league already exists")
	ErrTeamNotFound          = errors.New("team not found")
	ErrPlayerNotFound        = errors.New("player not found")
	ErrWrongPhase            = errors.New("action not allowed in current phase")
	ErrRosterFull            = errors.New("roster is full")
	ErrOverCap               = errors.New("contract would put team over the salary cap")
	ErrNegotiationNotFound   = errors.New("negotiation not found")
	ErrNegotiationExists     = errors.New("player is already negotiating")
	ErrNotFreeAgent          = errors.New("player is not a free agent")
	ErrPlayerRefused         = errors.New("player refused to negotiate")
	ErrInvalidContract       = errors.New("invalid contract")
	ErrInvalidAttribute      = errors.New("invalid game attribute")
	ErrGamesInProgress       = errors.New("games are already being simulated")
	ErrNotUserPick           = errors.New("no user pick is on the clock")
	ErrNotInDraftPool        = errors.New("player is not available in this draft")
)

// ValidationError carries user-facing messages that block an action, such
// as roster violations on a user-controlled team.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
