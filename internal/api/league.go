package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"

	"leaguesim/internal/league"
	"leaguesim/internal/phase"
	"leaguesim/internal/stats"
	"leaguesim/internal/store"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

type leagueView struct {
	Name            string       `json:"name"`
	Variant         string       `json:"variant"`
	Season          int          `json:"season"`
	Phase           league.Phase `json:"phase"`
	PhaseName       string       `json:"phaseName"`
	NumTeams        int          `json:"numTeams"`
	UserTid         int          `json:"userTid"`
	DaysLeft        int          `json:"daysLeft"`
	AutoPlay        bool         `json:"autoPlay"`
	GamesInProgress bool         `json:"gamesInProgress"`
	PhaseChange     bool         `json:"phaseChangeInProgress"`
}

func (s *Server) handleLeague(w http.ResponseWriter, r *http.Request) {
	var out leagueView
	err := s.read(r.Context(), []string{league.StoreGameAttributes}, func(c *league.Context) error {
		st := c.Settings
		out = leagueView{
			Name: st.LeagueName, Variant: st.Variant, Season: st.Season,
			Phase: st.Phase, PhaseName: st.Phase.String(), NumTeams: st.NumTeams,
			UserTid: st.UserTid, DaysLeft: st.DaysLeft, AutoPlay: st.AutoPlay,
			GamesInProgress: st.GamesInProgress,
		}
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	lock, err := phase.ReadLock(r.Context(), s.db)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out.PhaseChange = lock.InProgress
	writeJSON(w, http.StatusOK, out)
}

// editableAttributes are the settings a user may change directly. Phase,
// season and the schedule shape only move through the engine.
var editableAttributes = []string{
	"leagueName", "userTid", "userTids", "autoPlay", "stopGames", "draftType",
	"salaryCap", "minPayroll", "luxuryPayroll", "luxuryTax", "minContract", "maxContract",
	"freeAgencyDailyChance", "valueRefreshEvery",
}

func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request) {
	var in map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in) == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var saved league.Settings
	err := s.write(r.Context(), []string{"gameAttributes"}, func(c *league.Context) error {
		next, err := applyAttributes(c.Settings, in)
		if err != nil {
			return err
		}
		c.Settings = next
		saved = *next
		return c.SaveSettings(r.Context())
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// applyAttributes overlays the editable keys of in onto a copy of cur.
func applyAttributes(cur *league.Settings, in map[string]json.RawMessage) (*league.Settings, error) {
	for k := range in {
		if !slices.Contains(editableAttributes, k) {
			return nil, fmt.Errorf("%w: %s", league.ErrInvalidAttribute, k)
		}
	}
	raw, err := json.Marshal(cur)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range in {
		merged[k] = v
	}
	raw, err = json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	next := &league.Settings{}
	if err := json.Unmarshal(raw, next); err != nil {
		return nil, fmt.Errorf("%w: %v", league.ErrInvalidAttribute, err)
	}
	if _, ok := in["userTid"]; ok {
		if _, both := in["userTids"]; !both && !next.IsUserTeam(next.UserTid) {
			next.UserTids = []int{next.UserTid}
		}
	}
	return next, validateSettings(next)
}

func validateSettings(st *league.Settings) error {
	var msgs []string
	if st.UserTid < 0 || st.UserTid >= st.NumTeams {
		msgs = append(msgs, fmt.Sprintf("userTid %d is not a team", st.UserTid))
	}
	for _, tid := range st.UserTids {
		if tid < 0 || tid >= st.NumTeams {
			msgs = append(msgs, fmt.Sprintf("userTids contains %d which is not a team", tid))
		}
	}
	if st.MinContract <= 0 || st.MinContract > st.MaxContract {
		msgs = append(msgs, "minContract must be positive and at most maxContract")
	}
	if st.MinPayroll > st.SalaryCap {
		msgs = append(msgs, "minPayroll must not exceed salaryCap")
	}
	if st.LuxuryPayroll < st.SalaryCap {
		msgs = append(msgs, "luxuryPayroll must be at least salaryCap")
	}
	if st.FreeAgencyDailyChance < 0 || st.FreeAgencyDailyChance > 1 {
		msgs = append(msgs, "freeAgencyDailyChance must be between 0 and 1")
	}
	switch st.DraftType {
	case "lottery", "noLottery", "random":
	default:
		msgs = append(msgs, fmt.Sprintf("unknown draftType %q", st.DraftType))
	}
	if len(msgs) > 0 {
		return &league.ValidationError{Messages: msgs}
	}
	return nil
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

type divStandings struct {
	Did   int           `json:"did"`
	Name  string        `json:"name"`
	Teams []standingRow `json:"teams"`
}

type confStandings struct {
	Cid  int            `json:"cid"`
	Name string         `json:"name"`
	Divs []divStandings `json:"divs"`
}

type standingsView struct {
	Season int             `json:"season"`
	Confs  []confStandings `json:"confs"`
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	season, err := intQuery(r, "season", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "season must be a number")
		return
	}
	var out standingsView
	if season > 0 && s.cache.GetJSON(r.Context(), s.cache.Key("standings", season), &out) {
		writeJSON(w, http.StatusOK, out)
		return
	}
	err = s.read(r.Context(), []string{league.StoreGameAttributes, league.StoreTeams, league.StoreTeamSeasons}, func(c *league.Context) error {
		if season == 0 {
			season = c.Season()
		}
		out, err = standings(r, c, season)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.cache.SetJSON(r.Context(), s.cache.Key("standings", season), out)
	writeJSON(w, http.StatusOK, out)
}

func standings(r *http.Request, c *league.Context, season int) (standingsView, error) {
	ctx := r.Context()
	teams, err := c.Repo.Teams(ctx)
	if err != nil {
		return standingsView{}, err
	}
	rows, err := c.Repo.TeamSeasons(ctx, season)
	if err != nil {
		return standingsView{}, err
	}
	byTid := make(map[int]league.Team, len(teams))
	for _, t := range teams {
		byTid[t.Tid] = t
	}
	byDiv := make(map[int][]standingRow)
	for _, ts := range rows {
		t := byTid[ts.Tid]
		byDiv[ts.Did] = append(byDiv[ts.Did], standingRow{
			Tid: ts.Tid, Abbrev: t.Abbrev, Region: t.Region, Name: t.Name,
			Won: ts.Won, Lost: ts.Lost, Tied: ts.Tied, Winp: ts.WinPct(), Streak: ts.Streak,
		})
	}

	out := standingsView{Season: season}
	for _, conf := range c.Settings.Confs {
		cs := confStandings{Cid: conf.Cid, Name: conf.Name}
		for _, div := range c.Settings.Divs {
			if div.Cid != conf.Cid {
				continue
			}
			list := byDiv[div.Did]
			sort.SliceStable(list, func(i, j int) bool {
				if list[i].Winp != list[j].Winp {
					return list[i].Winp > list[j].Winp
				}
				if list[i].Won != list[j].Won {
					return list[i].Won > list[j].Won
				}
				return list[i].Tid < list[j].Tid
			})
			if len(list) > 0 {
				lead := list[0]
				for i := range list {
					list[i].GB = float64((lead.Won-list[i].Won)+(list[i].Lost-lead.Lost)) / 2
				}
			}
			cs.Divs = append(cs.Divs, divStandings{Did: div.Did, Name: div.Name, Teams: list})
		}
		out.Confs = append(out.Confs, cs)
	}
	return out, nil
}

type rosterRow struct {
	Pid      int                `json:"pid"`
	Name     string             `json:"name"`
	Pos      string             `json:"pos"`
	Age      int                `json:"age"`
	Ovr      int                `json:"ovr"`
	Pot      int                `json:"pot"`
	Contract league.Contract    `json:"contract"`
	Injury   league.Injury      `json:"injury"`
	Active   bool               `json:"active"`
	GP       int                `json:"gp"`
	PerGame  map[string]float64 `json:"perGame,omitempty"`
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	tid, err := intParam(r, "tid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "tid must be a number")
		return
	}
	var rows []rosterRow
	err = s.read(r.Context(), []string{league.StoreGameAttributes, league.StoreTeams, league.StorePlayers, league.StorePlayerStats}, func(c *league.Context) error {
		ctx := r.Context()
		if _, err := c.Repo.Team(ctx, tid); err != nil {
			return err
		}
		players, err := c.Repo.Players(ctx, league.PlayerFilter{Tids: []int{tid}})
		if err != nil {
			return err
		}
		sort.SliceStable(players, func(i, j int) bool { return players[i].Value > players[j].Value })
		for _, p := range players {
			row := rosterRow{
				Pid: p.Pid, Name: p.Name(), Pos: p.Pos, Age: p.Age(c.Season()),
				Ovr: p.Ovr(), Pot: p.Pot(), Contract: p.Contract, Injury: p.Injury, Active: p.Active,
			}
			ps, err := c.Repo.PlayerStats(ctx, p.Pid, c.Season(), false, tid)
			switch {
			case err == nil:
				line := stats.Derive(c.Variant, ps)
				row.GP, row.PerGame = line.GP, line.PerGame
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tid": tid, "players": rows})
}

type searchHit struct {
	Pid  int    `json:"pid"`
	Tid  int    `json:"tid"`
	Name string `json:"name"`
	Pos  string `json:"pos"`
	Ovr  int    `json:"ovr"`
}

const maxSearchHits = 20

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	var hits []searchHit
	err := s.read(r.Context(), []string{league.StoreGameAttributes, league.StorePlayers}, func(c *league.Context) error {
		players, err := c.Repo.NonRetired(r.Context())
		if err != nil {
			return err
		}
		hits = search(q, players)
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "players": hits})
}

// search ranks subsequence matches first, then names within a small edit
// distance of the query to catch typos.
func search(q string, players []league.Player) []searchHit {
	type scored struct {
		p     league.Player
		exact bool
		dist  int
	}
	lq := strings.ToLower(q)
	var found []scored
	for _, p := range players {
		name := p.Name()
		if fuzzy.MatchNormalizedFold(q, name) {
			found = append(found, scored{p: p, exact: true, dist: fuzzy.RankMatchNormalizedFold(q, name)})
			continue
		}
		ln := strings.ToLower(name)
		dist := fuzzy.LevenshteinDistance(lq, ln)
		if 1-float64(dist)/float64(max(len(lq), len(ln))) > 0.6 {
			found = append(found, scored{p: p, dist: dist})
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].exact != found[j].exact {
			return found[i].exact
		}
		if found[i].dist != found[j].dist {
			return found[i].dist < found[j].dist
		}
		return found[i].p.Value > found[j].p.Value
	})
	out := make([]searchHit, 0, min(len(found), maxSearchHits))
	for _, f := range found {
		if len(out) == maxSearchHits {
			break
		}
		out = append(out, searchHit{Pid: f.p.Pid, Tid: f.p.Tid, Name: f.p.Name(), Pos: f.p.Pos, Ovr: f.p.Ovr()})
	}
	return out
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	season, err := intQuery(r, "season", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "season must be a number")
		return
	}
	var events []league.Event
	err = s.read(r.Context(), []string{league.StoreGameAttributes, league.StoreEvents}, func(c *league.Context) error {
		if season == 0 {
			season = c.Season()
		}
		events, err = c.Repo.Events(r.Context(), season)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	writeJSON(w, http.StatusOK, map[string]any{"season": season, "events": events})
}
