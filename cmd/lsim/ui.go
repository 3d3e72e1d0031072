package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
	dim         = color.New(color.Faint)

	noColor bool
)

func setupColor() {
	if noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// termWidth falls back to 80 columns when stdout is not a terminal.
func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// spinner prints progress dots on stderr until the returned func is called.
func spinner(label string) func() {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		fmt.Fprint(os.Stderr, label)
		t := time.NewTicker(500 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-done:
				fmt.Fprintln(os.Stderr)
				return
			case <-t.C:
				fmt.Fprint(os.Stderr, ".")
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

type leagueView struct {
	Name            string `json:"name"`
	Variant         string `json:"variant"`
	Season          int    `json:"season"`
	PhaseName       string `json:"phaseName"`
	NumTeams        int    `json:"numTeams"`
	UserTid         int    `json:"userTid"`
	DaysLeft        int    `json:"daysLeft"`
	AutoPlay        bool   `json:"autoPlay"`
	GamesInProgress bool   `json:"gamesInProgress"`
	PhaseChange     bool   `json:"phaseChangeInProgress"`
}

type playView struct {
	Days      int    `json:"days"`
	Games     int    `json:"games"`
	Season    int    `json:"season"`
	PhaseName string `json:"phaseName"`
	Stopped   bool   `json:"stopped"`
	Replayed  bool   `json:"replayed"`
	Stopping  *bool  `json:"stopping"`
}

type standingRow struct {
	Tid    int     `json:"tid"`
	Abbrev string  `json:"abbrev"`
	Region string  `json:"region"`
	Name   string  `json:"name"`
	Won    int     `json:"won"`
	Lost   int     `json:"lost"`
	Tied   int     `json:"tied"`
	Winp   float64 `json:"winp"`
	GB     float64 `json:"gb"`
	Streak int     `json:"streak"`
}

type standingsView struct {
	Season int `json:"season"`
	Confs  []struct {
		Name string `json:"name"`
		Divs []struct {
			Name  string        `json:"name"`
			Teams []standingRow `json:"teams"`
		} `json:"divs"`
	} `json:"confs"`
}

type terms struct {
	Amount float64 `json:"amount"`
	Exp    int     `json:"exp"`
}

type rosterView struct {
	Tid     int `json:"tid"`
	Players []struct {
		Pid      int                `json:"pid"`
		Name     string             `json:"name"`
		Pos      string             `json:"pos"`
		Age      int                `json:"age"`
		Ovr      int                `json:"ovr"`
		Pot      int                `json:"pot"`
		Contract terms              `json:"contract"`
		Active   bool               `json:"active"`
		GP       int                `json:"gp"`
		PerGame  map[string]float64 `json:"perGame"`
		Injury   struct {
			Type           string `json:"type"`
			GamesRemaining int    `json:"gamesRemaining"`
		} `json:"injury"`
	} `json:"players"`
}

type searchView struct {
	Query   string `json:"query"`
	Players []struct {
		Pid  int    `json:"pid"`
		Tid  int    `json:"tid"`
		Name string `json:"name"`
		Pos  string `json:"pos"`
		Ovr  int    `json:"ovr"`
	} `json:"players"`
}

type eventsView struct {
	Season int `json:"season"`
	Events []struct {
		Type      string    `json:"type"`
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"events"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Fprintln(os.Stderr, msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptFloat(label string, min float64) (float64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			printWarn("Enter a valid number.")
			continue
		}
		if v <= min {
			printWarn(fmt.Sprintf("Value must be > %.0f", min))
			continue
		}
		return v, nil
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func renderLeague(raw map[string]any) error {
	out, err := decodeInto[leagueView](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s ==\n", strings.ToUpper(out.Name))
	fmt.Printf("%-18s %s\n", "Sport", out.Variant)
	fmt.Printf("%-18s %d\n", "Season", out.Season)
	fmt.Printf("%-18s %s\n", "Phase", out.PhaseName)
	fmt.Printf("%-18s %d\n", "Teams", out.NumTeams)
	fmt.Printf("%-18s %d\n", "Your team", out.UserTid)
	if out.DaysLeft > 0 {
		fmt.Printf("%-18s %d\n", "Free agency days", out.DaysLeft)
	}
	fmt.Printf("%-18s %s\n", "Auto play", onOff(out.AutoPlay))
	if out.GamesInProgress {
		warn.Println("Games are being simulated.")
	}
	if out.PhaseChange {
		warn.Println("A phase change is in progress.")
	}
	fmt.Println()
	return nil
}

func renderPlay(raw map[string]any) error {
	out, err := decodeInto[playView](raw)
	if err != nil {
		return err
	}
	if out.Stopping != nil {
		printWarn("Stop requested.")
		return nil
	}
	msg := fmt.Sprintf("Played %d days, %d games. Now in %s, season %d.", out.Days, out.Games, out.PhaseName, out.Season)
	if out.Replayed {
		msg += dim.Sprint(" (already played)")
	}
	printSuccess(msg)
	if out.Stopped {
		printWarn("Stopped before the requested days were played.")
	}
	return nil
}

func renderStandings(raw map[string]any) error {
	out, err := decodeInto[standingsView](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %d STANDINGS ==\n", out.Season)
	for _, conf := range out.Confs {
		for _, div := range conf.Divs {
			title := div.Name
			if len(out.Confs) > 1 {
				title = conf.Name + " / " + div.Name
			}
			neutral.Printf("\n%s\n", title)
			fmt.Printf("%-4s %-24s %4s %4s %4s %6s %5s %6s\n", "", "TEAM", "W", "L", "T", "PCT", "GB", "STRK")
			for _, row := range div.Teams {
				gb := "-"
				if row.GB > 0 {
					gb = strconv.FormatFloat(row.GB, 'f', 1, 64)
				}
				fmt.Printf("%-4s %-24s %4d %4d %4d %6s %5s %6s\n",
					row.Abbrev, truncate(row.Region+" "+row.Name, 24),
					row.Won, row.Lost, row.Tied, formatPct(row.Winp), gb, colorizeStreak(row.Streak))
			}
		}
	}
	fmt.Println()
	return nil
}

func renderRoster(raw map[string]any) error {
	out, err := decodeInto[rosterView](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== TEAM %d ROSTER ==\n", out.Tid)
	nameWidth := min(max(termWidth()-56, 16), 28)
	fmt.Printf("%-6s %-*s %-4s %4s %4s %4s %10s %5s %4s\n", "PID", nameWidth, "NAME", "POS", "AGE", "OVR", "POT", "CONTRACT", "EXP", "GP")
	for _, p := range out.Players {
		name := truncate(p.Name, nameWidth)
		line := fmt.Sprintf("%-6d %-*s %-4s %4d %4d %4d %10s %5d %4d",
			p.Pid, nameWidth, name, p.Pos, p.Age, p.Ovr, p.Pot, formatMoney(p.Contract.Amount), p.Contract.Exp, p.GP)
		switch {
		case p.Injury.GamesRemaining > 0:
			danger.Printf("%s  %s (%d)\n", line, p.Injury.Type, p.Injury.GamesRemaining)
		case !p.Active:
			dim.Println(line)
		default:
			fmt.Println(line)
		}
	}
	fmt.Println()
	return nil
}

func renderSearch(raw map[string]any) error {
	out, err := decodeInto[searchView](raw)
	if err != nil {
		return err
	}
	if len(out.Players) == 0 {
		printInfo(fmt.Sprintf("No players match %q.", out.Query))
		return nil
	}
	fmt.Printf("%-6s %-28s %-4s %4s %5s\n", "PID", "NAME", "POS", "OVR", "TEAM")
	for _, p := range out.Players {
		team := strconv.Itoa(p.Tid)
		if p.Tid < 0 {
			team = dim.Sprint("FA")
		}
		fmt.Printf("%-6d %-28s %-4s %4d %5s\n", p.Pid, truncate(p.Name, 28), p.Pos, p.Ovr, team)
	}
	return nil
}

func renderEvents(raw map[string]any, limit int) error {
	out, err := decodeInto[eventsView](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %d NEWS ==\n", out.Season)
	if len(out.Events) == 0 {
		printInfo("Nothing yet.")
		return nil
	}
	width := termWidth() - 20
	for i, e := range out.Events {
		if limit > 0 && i == limit {
			break
		}
		fmt.Printf("%s %s\n", dim.Sprint(e.CreatedAt.Local().Format("Jan 02 15:04")), truncate(e.Text, width))
	}
	fmt.Println()
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// formatMoney prints an amount given in thousands.
func formatMoney(thousands float64) string {
	if thousands >= 1000 || thousands <= -1000 {
		return fmt.Sprintf("$%.2fM", thousands/1000)
	}
	return fmt.Sprintf("$%.0fk", thousands)
}

func formatPct(p float64) string {
	s := strconv.FormatFloat(p, 'f', 3, 64)
	return strings.TrimPrefix(s, "0")
}

func colorizeStreak(n int) string {
	switch {
	case n > 0:
		return success.Sprintf("W%d", n)
	case n < 0:
		return danger.Sprintf("L%d", -n)
	default:
		return neutral.Sprint("-")
	}
}

func onOff(b bool) string {
	if b {
		return success.Sprint("on")
	}
	return neutral.Sprint("off")
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
