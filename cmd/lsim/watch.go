package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	cl "leaguesim/internal/cli"
	"leaguesim/internal/sim"

	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))
)

func newWatchCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live standings that refresh as games are played",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !interactive() {
				return fmt.Errorf("watch needs a terminal")
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			client := newClient(apiBase)
			updates := make(chan cl.Update, 16)
			go func() {
				defer close(updates)
				_ = client.Updates(ctx, func(u cl.Update) {
					select {
					case updates <- u:
					default:
					}
				})
			}()

			_, err := tea.NewProgram(newWatchModel(ctx, client, updates), tea.WithAltScreen()).Run()
			return err
		},
	}
}

type (
	refreshedMsg struct {
		league    leagueView
		standings standingsView
	}
	updateMsg  cl.Update
	streamDone struct{}
	playedMsg  struct{ view playView }
	errMsg     struct{ err error }
)

type watchModel struct {
	ctx     context.Context
	client  *cl.Client
	updates <-chan cl.Update

	table   table.Model
	spin    bspinner.Model
	league  leagueView
	season  int
	busy    bool
	live    bool
	status  string
	err     error
	updated time.Time
}

func newWatchModel(ctx context.Context, client *cl.Client, updates <-chan cl.Update) watchModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "TEAM", Width: 24},
			{Title: "W", Width: 4},
			{Title: "L", Width: 4},
			{Title: "T", Width: 3},
			{Title: "PCT", Width: 6},
			{Title: "GB", Width: 5},
			{Title: "STRK", Width: 5},
		}),
		table.WithFocused(true),
		table.WithHeight(16),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("14"))
	t.SetStyles(styles)

	s := bspinner.New()
	s.Spinner = bspinner.Dot
	return watchModel{ctx: ctx, client: client, updates: updates, table: t, spin: s, live: true}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.listen(), m.spin.Tick)
}

func (m watchModel) refresh() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
		defer cancel()
		rawLeague, err := m.client.League(ctx)
		if err != nil {
			return errMsg{err}
		}
		lg, err := decodeInto[leagueView](rawLeague)
		if err != nil {
			return errMsg{err}
		}
		rawStandings, err := m.client.Standings(ctx, 0)
		if err != nil {
			return errMsg{err}
		}
		st, err := decodeInto[standingsView](rawStandings)
		if err != nil {
			return errMsg{err}
		}
		return refreshedMsg{league: lg, standings: st}
	}
}

func (m watchModel) listen() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return streamDone{}
		}
		return updateMsg(u)
	}
}

func (m watchModel) play(action string) tea.Cmd {
	return func() tea.Msg {
		raw, err := m.client.Play(m.ctx, action, uuid.NewString())
		if err != nil {
			return errMsg{err}
		}
		v, err := decodeInto[playView](raw)
		if err != nil {
			return errMsg{err}
		}
		return playedMsg{view: v}
	}
}

func (m watchModel) stop() tea.Cmd {
	return func() tea.Msg {
		if _, err := m.client.Play(m.ctx, "stop", ""); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		case "s":
			m.status = "stopping"
			return m, m.stop()
		case "d", "w", "m", "p":
			if m.busy {
				return m, nil
			}
			action := map[string]string{"d": sim.ActionDay, "w": sim.ActionWeek, "m": sim.ActionMonth, "p": sim.ActionUntilPlayoffs}[msg.String()]
			m.busy, m.err = true, nil
			m.status = "playing " + action
			return m, m.play(action)
		}

	case refreshedMsg:
		m.league, m.season = msg.league, msg.standings.Season
		m.table.SetRows(standingsRows(msg.standings))
		m.updated = time.Now()
		return m, nil

	case updateMsg:
		// every update can change records, so refetch
		return m, tea.Batch(m.refresh(), m.listen())

	case streamDone:
		m.live = false
		return m, nil

	case playedMsg:
		m.busy = false
		m.status = fmt.Sprintf("played %d days, %d games", msg.view.Days, msg.view.Games)
		if msg.view.Stopped {
			m.status += " (stopped)"
		}
		return m, m.refresh()

	case errMsg:
		m.busy = false
		m.err = msg.err
		m.status = ""
		return m, nil

	case bspinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	var b strings.Builder
	head := fmt.Sprintf("%s  %d %s", m.league.Name, m.season, m.league.PhaseName)
	b.WriteString(titleStyle.Render(head))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(m.table.View()))
	b.WriteString("\n")

	line := m.status
	if m.busy {
		line = m.spin.View() + " " + line
	}
	if !m.updated.IsZero() {
		line += "  updated " + m.updated.Format("15:04:05")
	}
	if !m.live {
		line += "  (live updates off)"
	}
	b.WriteString(statusStyle.Render(line))
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("d day  w week  m month  p until playoffs  s stop  r refresh  q quit"))
	return b.String()
}

// standingsRows flattens every division into one table sorted by record.
func standingsRows(st standingsView) []table.Row {
	var all []standingRow
	for _, conf := range st.Confs {
		for _, div := range conf.Divs {
			all = append(all, div.Teams...)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Winp != all[j].Winp {
			return all[i].Winp > all[j].Winp
		}
		return all[i].Won > all[j].Won
	})
	rows := make([]table.Row, 0, len(all))
	for _, r := range all {
		streak := "-"
		switch {
		case r.Streak > 0:
			streak = "W" + strconv.Itoa(r.Streak)
		case r.Streak < 0:
			streak = "L" + strconv.Itoa(-r.Streak)
		}
		gb := "-"
		if r.GB > 0 {
			gb = strconv.FormatFloat(r.GB, 'f', 1, 64)
		}
		rows = append(rows, table.Row{
			truncate(r.Region+" "+r.Name, 24),
			strconv.Itoa(r.Won), strconv.Itoa(r.Lost), strconv.Itoa(r.Tied),
			formatPct(r.Winp), gb, streak,
		})
	}
	return rows
}
