package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	cl "leaguesim/internal/cli"
	"leaguesim/internal/config"
	"leaguesim/internal/sim"
	"leaguesim/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// playActions maps command line words to play actions.
var playActions = map[string]string{
	"day":             sim.ActionDay,
	"week":            sim.ActionWeek,
	"month":           sim.ActionMonth,
	"until-playoffs":  sim.ActionUntilPlayoffs,
	"until-end":       sim.ActionUntilEnd,
	"until-preseason": sim.ActionUntilPreseason,
	"stop":            "stop",
}

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL
	if p, err := cl.LoadProfile(); err == nil && p.APIBaseURL != "" && os.Getenv("LSIM_API_BASE_URL") == "" {
		apiBase = p.APIBaseURL
	}

	root := &cobra.Command{
		Use:          "lsim",
		Short:        "League simulator client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colour output")
	root.PersistentPreRun = func(*cobra.Command, []string) { setupColor() }

	root.AddCommand(
		newStatusCmd(&apiBase),
		newPlayCmd(&apiBase),
		newPhaseCmd(&apiBase),
		newAbortCmd(&apiBase),
		newStandingsCmd(&apiBase),
		newRosterCmd(&apiBase),
		newSearchCmd(&apiBase),
		newEventsCmd(&apiBase),
		newAutoPlayCmd(&apiBase),
		newSignCmd(&apiBase),
		newDraftCmd(&apiBase),
		newSyncCmd(&apiBase),
		newProfileCmd(&apiBase),
		newWatchCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func shortCtx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newStatusCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show season, phase and flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).League(ctx)
			if err != nil {
				return err
			}
			return renderLeague(out)
		},
	}
}

func newPlayCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:       "play [day|week|month|until-playoffs|until-end|until-preseason|stop]",
		Short:     "Simulate games",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"day", "week", "month", "until-playoffs", "until-end", "until-preseason", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			word := "day"
			if len(args) > 0 {
				word = strings.ToLower(strings.TrimSpace(args[0]))
			} else if interactive() {
				var err error
				word, err = promptChoice("Play", []string{"day", "week", "month", "until-playoffs", "until-end"}, "day")
				if err != nil {
					return err
				}
			}
			action, ok := playActions[word]
			if !ok {
				return fmt.Errorf("unknown play length %q", word)
			}

			idem := uuid.NewString()
			body := map[string]any{"action": action}
			client := newClient(apiBase)
			stopSpin := spinner(fmt.Sprintf("Playing %s", word))
			out, err := client.Play(cmd.Context(), action, idem)
			stopSpin()
			if err != nil {
				if action == "stop" {
					return err
				}
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/play",
					Body:           body,
					IdempotencyKey: idem,
				})
			}
			return renderPlay(out)
		},
	}
}

func newPhaseCmd(apiBase *string) *cobra.Command {
	var returnTo string
	cmd := &cobra.Command{
		Use:   "phase <name>",
		Short: "Move the league to a new phase",
		Long:  "Phases: preseason, regular season, playoffs, before draft, draft, after draft, re-sign players, free agency, fantasy draft.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			stopSpin := spinner(fmt.Sprintf("Moving to %s", name))
			out, err := newClient(apiBase).NewPhase(cmd.Context(), name, returnTo)
			stopSpin()
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Now in %v, season %v.", out["phaseName"], out["season"]))
			return nil
		},
	}
	cmd.Flags().StringVar(&returnTo, "return-to", "", "phase to resume after a fantasy draft")
	return cmd
}

func newAbortCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "abort",
		Short: "Cancel a running phase change",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).Abort(ctx)
			if err != nil {
				return err
			}
			if aborted, _ := out["aborted"].(bool); aborted {
				printWarn("Phase change aborted.")
				return nil
			}
			printInfo("No phase change was running.")
			return nil
		},
	}
}

func newStandingsCmd(apiBase *string) *cobra.Command {
	var season int
	cmd := &cobra.Command{
		Use:   "standings",
		Short: "Show division standings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).Standings(ctx, season)
			if err != nil {
				return err
			}
			return renderStandings(out)
		},
	}
	cmd.Flags().IntVar(&season, "season", 0, "season to show (default current)")
	return cmd
}

func newRosterCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "roster [tid]",
		Short: "Show a team roster",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			client := newClient(apiBase)
			tid, err := tidFromArgs(ctx, client, args)
			if err != nil {
				return err
			}
			out, err := client.Roster(ctx, tid)
			if err != nil {
				return err
			}
			return renderRoster(out)
		},
	}
}

// tidFromArgs takes the team from the argument, then the profile, then the
// league's user team.
func tidFromArgs(ctx context.Context, client *cl.Client, args []string) (int, error) {
	if len(args) > 0 {
		tid, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil || tid < 0 {
			return 0, fmt.Errorf("invalid tid %q", args[0])
		}
		return tid, nil
	}
	if p, err := cl.LoadProfile(); err == nil && p.Tid != nil {
		return *p.Tid, nil
	}
	lg, err := client.League(ctx)
	if err != nil {
		return 0, err
	}
	tid, _ := lg["userTid"].(float64)
	return int(tid), nil
}

func newSearchCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "search <name>",
		Short: "Find players by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return renderSearch(out)
		},
	}
}

func newEventsCmd(apiBase *string) *cobra.Command {
	var season, limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the league news feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).Events(ctx, season)
			if err != nil {
				return err
			}
			return renderEvents(out, limit)
		},
	}
	cmd.Flags().IntVar(&season, "season", 0, "season to show (default current)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	return cmd
}

func newAutoPlayCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:       "autoplay [on|off]",
		Short:     "Hand every team to the AI and let the worker play",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on := strings.EqualFold(args[0], "on")
			if !on && !strings.EqualFold(args[0], "off") {
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			if _, err := newClient(apiBase).SetAttributes(ctx, map[string]any{"autoPlay": on}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Auto play %s.", map[bool]string{true: "on", false: "off"}[on]))
			return nil
		},
	}
}

func newSignCmd(apiBase *string) *cobra.Command {
	var resign bool
	cmd := &cobra.Command{
		Use:   "sign <pid>",
		Short: "Negotiate with a free agent or one of your expiring players",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			client := newClient(apiBase)
			n, err := client.StartNegotiation(ctx, pid, resign)
			if err != nil {
				return err
			}
			ask, err := decodeInto[terms](n["player"])
			if err != nil {
				return err
			}
			accent.Printf("Asking %s through %d\n", formatMoney(ask.Amount), ask.Exp)

			amount, err := promptFloat("Offer (thousands per year)", 0)
			if err != nil {
				return err
			}
			exp, err := promptInt64("Through season", int64(ask.Exp))
			if err != nil {
				return err
			}
			n, err = client.Offer(ctx, pid, amount, int(exp))
			if err != nil {
				return err
			}
			counter, err := decodeInto[terms](n["player"])
			if err != nil {
				return err
			}
			if counter.Amount > amount {
				printWarn(fmt.Sprintf("Counter: %s through %d. Run `lsim sign %d` again to keep talking.", formatMoney(counter.Amount), counter.Exp, pid))
				return nil
			}
			if _, err := client.AcceptNegotiation(ctx, pid); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Signed for %s through %d.", formatMoney(amount), exp))
			return nil
		},
	}
	cmd.Flags().BoolVar(&resign, "resign", false, "re-sign a player from your roster")
	return cmd
}

func newDraftCmd(apiBase *string) *cobra.Command {
	draft := &cobra.Command{
		Use:   "draft",
		Short: "Draft commands",
	}
	var untilEnd bool
	auto := &cobra.Command{
		Use:   "auto",
		Short: "Let the AI pick until your turn or the end of the draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).AutoDraft(ctx, untilEnd)
			if err != nil {
				return err
			}
			picked, _ := out["drafted"].([]any)
			printSuccess(fmt.Sprintf("%d players drafted.", len(picked)))
			return nil
		},
	}
	auto.Flags().BoolVar(&untilEnd, "until-end", false, "also pick for your team")
	draft.AddCommand(auto, &cobra.Command{
		Use:   "pick <pid>",
		Short: "Use your current pick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			if _, err := newClient(apiBase).DraftPick(ctx, pid); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Drafted player %d.", pid))
			return nil
		},
	})
	return draft
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay play requests queued while the server was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ok, failures, err := syncq.Replay(func(q syncq.Command) error {
				_, err := client.Do(cmd.Context(), q.Method, q.Path, q.Body, q.IdempotencyKey)
				if err != nil {
					printError(fmt.Sprintf("Sync failed for %s %s: %v", q.Method, q.Path, err))
				}
				return err
			})
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", ok, len(failures)))
			return nil
		},
	}
}

func newProfileCmd(apiBase *string) *cobra.Command {
	var tid int
	var clearTid, reset bool
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Save the API address and default team",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset {
				if err := cl.ClearProfile(); err != nil {
					return err
				}
				printSuccess("Profile cleared.")
				return nil
			}
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("api") {
				p.APIBaseURL = *apiBase
			}
			if cmd.Flags().Changed("tid") {
				p.Tid = &tid
			}
			if clearTid {
				p.Tid = nil
			}
			if err := cl.SaveProfile(p); err != nil {
				return err
			}
			team := "league user team"
			if p.Tid != nil {
				team = strconv.Itoa(*p.Tid)
			}
			printSuccess(fmt.Sprintf("Profile saved: api=%s team=%s", *apiBase, team))
			return nil
		},
	}
	cmd.Flags().IntVar(&tid, "tid", 0, "default team for roster views")
	cmd.Flags().BoolVar(&clearTid, "clear-tid", false, "use the league's user team again")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the saved profile")
	return cmd
}

// queueOnNetworkError keeps requests the server never saw for `lsim sync`.
// Errors the server answered with are returned as they are.
func queueOnNetworkError(err error, q syncq.Command) error {
	if err == nil {
		return nil
	}
	if cl.IsAPIError(err) {
		return err
	}
	if qerr := syncq.Push(q); qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %w", err)
	}
	printWarn("Server unreachable. Request queued, run `lsim sync` to replay it.")
	return err
}
