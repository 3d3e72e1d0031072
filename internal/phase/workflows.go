package phase

import (
	"context"
	"fmt"

	"leaguesim/internal/awards"
	"leaguesim/internal/contract"
	"leaguesim/internal/draft"
	"leaguesim/internal/finance"
	"leaguesim/internal/freeagents"
	"leaguesim/internal/league"
	"leaguesim/internal/player"
	"leaguesim/internal/playoffs"
	"leaguesim/internal/roster"
	"leaguesim/internal/schedule"
)

// FreeAgencyDays is how long free agency lasts before the next preseason.
const FreeAgencyDays = 30

type workflow func(ctx context.Context, c *league.Context, target league.Phase, extra Extra) (outcome, error)

var baseStores = []string{
	league.StoreGameAttributes, league.StoreTeams, league.StoreTeamSeasons, league.StoreTeamStats,
	league.StorePlayers, league.StorePlayerStats, league.StoreReleasedPlayers, league.StoreEvents,
	league.StoreMessages,
}

func with(extra ...string) []string {
	return append(append([]string(nil), baseStores...), extra...)
}

// workflowFor picks the workflow and its transaction scope. Leaving a
// fantasy draft skips the target's workflow.
func workflowFor(from, target league.Phase) (workflow, []string) {
	if from == league.PhaseFantasyDraft {
		return leaveFantasyDraft, with(league.StoreDraftPicks, league.StoreNegotiations)
	}
	switch target {
	case league.PhasePreseason:
		return newPhasePreseason, with()
	case league.PhaseRegularSeason:
		return newPhaseRegularSeason, with(league.StoreSchedule)
	case league.PhaseAfterTradeDeadline:
		return newPhaseAfterTradeDeadline, []string{league.StoreGameAttributes, league.StoreEvents}
	case league.PhasePlayoffs:
		return newPhasePlayoffs, with(league.StorePlayoffSeries, league.StoreSchedule)
	case league.PhaseBeforeDraft:
		return newPhaseBeforeDraft, with(league.StoreAwards, league.StorePlayoffSeries, league.StoreSchedule)
	case league.PhaseDraft:
		return newPhaseDraft, with(league.StoreDraftPicks, league.StorePlayoffSeries)
	case league.PhaseAfterDraft:
		return newPhaseAfterDraft, with(league.StoreDraftPicks)
	case league.PhaseResignPlayers:
		return newPhaseResignPlayers, with(league.StoreNegotiations)
	case league.PhaseFreeAgency:
		return newPhaseFreeAgency, with(league.StoreNegotiations, league.StoreDraftPicks)
	case league.PhaseFantasyDraft:
		return newPhaseFantasyDraft, with(league.StoreNegotiations, league.StoreDraftPicks)
	}
	return func(context.Context, *league.Context, league.Phase, Extra) (outcome, error) {
		return outcome{}, fmt.Errorf("%w: %s", league.ErrUnknownPhase, target)
	}, []string{league.StoreGameAttributes}
}

func newPhasePreseason(ctx context.Context, c *league.Context, _ league.Phase, _ Extra) (outcome, error) {
	if _, err := freeagents.AutoSign(ctx, c); err != nil {
		return outcome{}, fmt.Errorf("auto sign: %w", err)
	}

	prev := c.Season()
	c.Settings.Season++
	season := c.Season()

	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return outcome{}, err
	}
	coaching := make(map[int]int, len(teams))
	scouting := c.Settings.NumTeams / 2
	for _, t := range teams {
		coaching[t.Tid] = t.Budget.Coaching.Rank
		if t.Tid == c.Settings.UserTid {
			scouting = t.Budget.Scouting.Rank
		}

		row := league.TeamSeason{
			Tid: t.Tid, Season: season, Cid: t.Cid, Did: t.Did,
			Hype: 0.5, Pop: t.Pop, PlayoffRoundsWon: -1,
		}
		if last, err := c.Repo.TeamSeason(ctx, t.Tid, prev); err == nil {
			row.Hype, row.Pop, row.Cash = last.Hype, last.Pop, last.Cash
		}
		if _, err := c.Repo.AddSeasonRow(ctx, row); err != nil {
			return outcome{}, err
		}
		if _, err := c.Repo.AddTeamStatsRow(ctx, t.Tid, season, false); err != nil {
			return outcome{}, err
		}
	}

	players, err := c.Repo.NonRetired(ctx)
	if err != nil {
		return outcome{}, err
	}
	for _, p := range players {
		if player.AddRatingsRow(c, &p, scouting) {
			rank, ok := coaching[p.Tid]
			if !ok {
				rank = (c.Settings.NumTeams + 1) / 2
			}
			player.Develop(c, &p, 1, rank)
		}
		player.UpdateValues(&p, season)
		if err := c.Repo.PutPlayer(ctx, p); err != nil {
			return outcome{}, err
		}
		if p.Tid >= 0 {
			if _, err := c.Repo.AddPlayerStatsRow(ctx, p.Pid, p.Tid, season, false); err != nil {
				return outcome{}, err
			}
		}
	}

	if err := finance.UpdateBudgetRanks(ctx, c); err != nil {
		return outcome{}, err
	}
	c.Event(ctx, league.Event{Type: "newPhase", Text: fmt.Sprintf("The %d preseason is underway.", season)})
	return outcome{tags: []string{"playerMovement"}, redirect: "/roster"}, nil
}

func newPhaseRegularSeason(ctx context.Context, c *league.Context, _ league.Phase, _ Extra) (outcome, error) {
	if _, err := roster.CheckAll(ctx, c); err != nil {
		return outcome{}, err
	}
	if _, err := schedule.New(ctx, c); err != nil {
		return outcome{}, fmt.Errorf("schedule: %w", err)
	}

	msgs, err := c.Repo.Messages(ctx, c.Season())
	if err != nil {
		return outcome{}, err
	}
	if len(msgs) == 0 && !c.Settings.AutoPlay {
		err := c.Repo.AddMessage(ctx, league.Message{
			Season: c.Season(),
			From:   "The Owner",
			Text:   fmt.Sprintf("Welcome to the %d season. Win games, make the playoffs and keep the books in order.", c.Season()),
		})
		if err != nil {
			return outcome{}, err
		}
	}
	return outcome{tags: []string{"schedule"}, redirect: "/schedule"}, nil
}

func newPhaseAfterTradeDeadline(context.Context, *league.Context, league.Phase, Extra) (outcome, error) {
	return outcome{}, nil
}

func newPhasePlayoffs(ctx context.Context, c *league.Context, _ league.Phase, _ Extra) (outcome, error) {
	if err := finance.AssessPayrollTaxes(ctx, c); err != nil {
		return outcome{}, err
	}
	// a season cut short leaves games behind
	if err := c.Repo.ClearSchedule(ctx); err != nil {
		return outcome{}, err
	}
	if _, err := playoffs.Start(ctx, c); err != nil {
		return outcome{}, fmt.Errorf("playoffs: %w", err)
	}
	if _, err := playoffs.ScheduleDay(ctx, c); err != nil {
		return outcome{}, fmt.Errorf("playoff schedule: %w", err)
	}
	return outcome{tags: []string{"teamFinances"}, redirect: "/playoffs"}, nil
}

func newPhaseBeforeDraft(ctx context.Context, c *league.Context, _ league.Phase, _ Extra) (outcome, error) {
	if _, err := awards.Run(ctx, c); err != nil {
		return outcome{}, err
	}
	if err := c.Repo.ClearSchedule(ctx); err != nil {
		return outcome{}, err
	}

	players, err := c.Repo.Players(ctx, league.PlayerFilter{MinTid: league.TidAtLeast(league.FreeAgent)})
	if err != nil {
		return outcome{}, err
	}
	retired := 0
	for _, p := range players {
		if player.ShouldRetire(c, p) {
			if err := player.Retire(ctx, c, &p); err != nil {
				return outcome{}, err
			}
			retired++
			continue
		}
		if p.Injury.GamesRemaining > 0 {
			player.Heal(&p, c.Settings.NumGames)
			if err := c.Repo.PutPlayer(ctx, p); err != nil {
				return outcome{}, err
			}
		}
	}

	released, err := c.Repo.ReleasedPlayers(ctx, nil)
	if err != nil {
		return outcome{}, err
	}
	for _, rp := range released {
		if rp.Contract.Exp <= c.Season() {
			if err := c.Repo.DeleteReleasedPlayer(ctx, rp.Rid); err != nil {
				return outcome{}, err
			}
		}
	}

	if err := roster.UpdateStrategies(ctx, c); err != nil {
		return outcome{}, err
	}

	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return outcome{}, err
	}
	for _, t := range teams {
		mood, err := finance.UpdateOwnerMood(ctx, c, t.Tid)
		if err != nil {
			return outcome{}, err
		}
		if c.UserControlled(t.Tid) {
			if err := c.Repo.AddMessage(ctx, ownerMessage(c.Season(), mood)); err != nil {
				return outcome{}, err
			}
		}
		payroll, err := c.Repo.Payroll(ctx, t.Tid)
		if err != nil {
			return outcome{}, err
		}
		ts, err := c.Repo.TeamSeason(ctx, t.Tid, c.Season())
		if err != nil {
			return outcome{}, err
		}
		ts.PayrollEndOfSeason = &payroll
		if err := c.Repo.PutTeamSeason(ctx, ts); err != nil {
			return outcome{}, err
		}
	}
	c.Log.Info("season closed", "season", c.Season(), "retired", retired)
	return outcome{tags: []string{"playerMovement"}, redirect: "/history"}, nil
}

func ownerMessage(season int, mood league.OwnerMood) league.Message {
	total := mood.Wins + mood.Playoffs + mood.Money
	var text string
	switch {
	case total > 1:
		text = "Great season. Keep this up and you have a job for life."
	case total > -1:
		text = "A decent year, but I expect more from this franchise."
	default:
		text = "This is not acceptable. Turn it around next season or you are gone."
	}
	return league.Message{Season: season, From: "The Owner", Text: text}
}

func newPhaseDraft(ctx context.Context, c *league.Context, _ league.Phase, _ Extra) (outcome, error) {
	if err := draft.GenOrder(ctx, c); err != nil {
		return outcome{}, fmt.Errorf("draft order: %w", err)
	}
	if _, err := draft.FixProspectYears(ctx, c); err != nil {
		return outcome{}, err
	}
	return outcome{redirect: "/draft"}, nil
}

func newPhaseAfterDraft(ctx context.Context, c *league.Context, _ league.Phase, _ Extra) (outcome, error) {
	if err := draft.Finish(ctx, c); err != nil {
		return outcome{}, fmt.Errorf("finish draft: %w", err)
	}
	if err := draft.MintPicks(ctx, c, c.Season()+4); err != nil {
		return outcome{}, err
	}
	return outcome{tags: []string{"playerMovement"}}, nil
}

func newPhaseResignPlayers(ctx context.Context, c *league.Context, _ league.Phase, _ Extra) (outcome, error) {
	if err := freeagents.GenBaseMoods(ctx, c); err != nil {
		return outcome{}, err
	}
	n, err := contract.OpenResigning(ctx, c)
	if err != nil {
		return outcome{}, fmt.Errorf("open negotiations: %w", err)
	}
	c.Log.Info("re-signing window open", "season", c.Season(), "negotiations", n)
	return outcome{tags: []string{"playerMovement"}, redirect: "/negotiation"}, nil
}

func newPhaseFreeAgency(ctx context.Context, c *league.Context, _ league.Phase, _ Extra) (outcome, error) {
	if err := contract.CancelAll(ctx, c); err != nil {
		return outcome{}, err
	}

	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return outcome{}, err
	}
	rebuilding := make(map[int]bool, len(teams))
	for _, t := range teams {
		rebuilding[t.Tid] = t.Strategy == league.StrategyRebuilding
	}
	base, err := freeagents.BaseMoods(ctx, c)
	if err != nil {
		return outcome{}, err
	}
	players, err := c.Repo.Players(ctx, league.PlayerFilter{MinTid: league.TidAtLeast(0)})
	if err != nil {
		return outcome{}, err
	}
	kept, let := 0, 0
	for _, p := range players {
		if p.Contract.Exp > c.Season() || c.UserControlled(p.Tid) {
			continue
		}
		chance := p.Value / 100
		if rebuilding[p.Tid] {
			chance -= 0.4
		}
		if c.Rand.Bool(chance) {
			p.Contract = player.GenContract(c.Settings, p, true)
			if err := c.Repo.PutPlayer(ctx, p); err != nil {
				return outcome{}, err
			}
			kept++
			continue
		}
		if err := freeagents.AddToFreeAgents(ctx, c, &p, base); err != nil {
			return outcome{}, err
		}
		let++
	}

	if err := draft.ShiftProspects(ctx, c); err != nil {
		return outcome{}, err
	}
	c.Settings.DaysLeft = FreeAgencyDays
	c.Log.Info("free agency open", "season", c.Season(), "resigned", kept, "released", let)
	return outcome{tags: []string{"playerMovement"}, redirect: "/free_agents"}, nil
}

func newPhaseFantasyDraft(ctx context.Context, c *league.Context, _ league.Phase, extra Extra) (outcome, error) {
	if err := contract.CancelAll(ctx, c); err != nil {
		return outcome{}, err
	}
	if err := draft.GenOrderFantasy(ctx, c); err != nil {
		return outcome{}, err
	}

	players, err := c.Repo.Players(ctx, league.PlayerFilter{MinTid: league.TidAtLeast(league.FreeAgent)})
	if err != nil {
		return outcome{}, err
	}
	for _, p := range players {
		p.Tid = league.UndraftedFantasyTemp
		if err := c.Repo.PutPlayer(ctx, p); err != nil {
			return outcome{}, err
		}
	}

	released, err := c.Repo.ReleasedPlayers(ctx, nil)
	if err != nil {
		return outcome{}, err
	}
	for _, rp := range released {
		if err := c.Repo.DeleteReleasedPlayer(ctx, rp.Rid); err != nil {
			return outcome{}, err
		}
	}

	next := c.Phase()
	if extra.ReturnTo != nil {
		next = *extra.ReturnTo
	}
	c.Settings.NextPhase = &next
	return outcome{tags: []string{"playerMovement"}, redirect: "/draft"}, nil
}

// leaveFantasyDraft completes any remaining fantasy picks and returns the
// league to target without running target's own workflow.
func leaveFantasyDraft(ctx context.Context, c *league.Context, _ league.Phase, _ Extra) (outcome, error) {
	if err := draft.Finish(ctx, c); err != nil {
		return outcome{}, err
	}
	c.Settings.NextPhase = nil
	return outcome{tags: []string{"playerMovement"}, redirect: "/roster"}, nil
}
