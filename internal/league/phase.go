package league

import (
	"fmt"
	"strings"
)

type Phase int

const (
	PhaseFantasyDraft       Phase = -1
	PhasePreseason          Phase = 0
	PhaseRegularSeason      Phase = 1
	PhaseAfterTradeDeadline Phase = 2
	PhasePlayoffs           Phase = 3
	PhaseBeforeDraft        Phase = 4
	PhaseDraft              Phase = 5
	PhaseAfterDraft         Phase = 6
	PhaseResignPlayers      Phase = 7
	PhaseFreeAgency         Phase = 8
)

var phaseNames = map[Phase]string{
	PhaseFantasyDraft:       "fantasy draft",
	PhasePreseason:          "preseason",
	PhaseRegularSeason:      "regular season",
	PhaseAfterTradeDeadline: "after trade deadline",
	PhasePlayoffs:           "playoffs",
	PhaseBeforeDraft:        "before draft",
	PhaseDraft:              "draft",
	PhaseAfterDraft:         "after draft",
	PhaseResignPlayers:      "re-sign players",
	PhaseFreeAgency:         "free agency",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Next is the following phase in the annual cycle.
func (p Phase) Next() Phase {
	if p == PhaseFreeAgency {
		return PhasePreseason
	}
	return p + 1
}

// InSeason reports whether games are played in this phase.
func (p Phase) InSeason() bool {
	return p == PhaseRegularSeason || p == PhaseAfterTradeDeadline || p == PhasePlayoffs
}

func (p Phase) RegularSeason() bool {
	return p == PhaseRegularSeason || p == PhaseAfterTradeDeadline
}

func ParsePhase(s string) (Phase, error) {
	norm := strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(strings.TrimSpace(s)))
	for p, name := range phaseNames {
		if norm == strings.ReplaceAll(name, "-", " ") {
			return p, nil
		}
	}
	switch norm {
	case "resign players", "resign":
		return PhaseResignPlayers, nil
	case "fantasy":
		return PhaseFantasyDraft, nil
	case "season":
		return PhaseRegularSeason, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// LegalTransition reports whether a league in phase from may move to to.
// Same-phase requests are handled by the caller as no-ops.
func LegalTransition(from, to Phase) bool {
	switch {
	case to == PhaseFantasyDraft:
		return from != PhaseFantasyDraft
	case from == PhaseFantasyDraft:
		return true
	case to == from.Next():
		return true
	case from == PhaseRegularSeason && to == PhasePlayoffs:
		return true
	}
	return false
}
