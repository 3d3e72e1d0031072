package league

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"leaguesim/internal/store"
)

// Object store names.
const (
	StoreGameAttributes  = "gameAttributes"
	StoreTeams           = "teams"
	StoreTeamSeasons     = "teamSeasons"
	StoreTeamStats       = "teamStats"
	StorePlayers         = "players"
	StorePlayerStats     = "playerStats"
	StorePlayoffSeries   = "playoffSeries"
	StoreSchedule        = "schedule"
	StoreGames           = "games"
	StoreNegotiations    = "negotiations"
	StoreReleasedPlayers = "releasedPlayers"
	StoreDraftPicks      = "draftPicks"
	StoreAwards          = "awards"
	StoreEvents          = "events"
	StoreMessages        = "messages"
)

var AllStores = []string{
	StoreGameAttributes, StoreTeams, StoreTeamSeasons, StoreTeamStats, StorePlayers,
	StorePlayerStats, StorePlayoffSeries, StoreSchedule, StoreGames, StoreNegotiations,
	StoreReleasedPlayers, StoreDraftPicks, StoreAwards, StoreEvents, StoreMessages,
}

const (
	keySettings    = "league"
	KeyPhaseChange = "phaseChange"
	keyCounters    = "counters"
)

// Repo is the typed repository the engine uses instead of raw store calls.
type Repo struct {
	tx store.Tx
}

func NewRepo(tx store.Tx) *Repo {
	return &Repo{tx: tx}
}

func (r *Repo) Tx() store.Tx { return r.tx }

func idx(v int) string { return store.Key(v) }

func (r *Repo) Settings(ctx context.Context) (*Settings, error) {
	s, err := store.Get[Settings](ctx, r.tx, StoreGameAttributes, keySettings)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoLeague
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) PutSettings(ctx context.Context, s *Settings) error {
	return store.Put(ctx, r.tx, StoreGameAttributes, keySettings, s, nil)
}

func (r *Repo) nextID(ctx context.Context, bump func(*Counters) int) (int, error) {
	c, err := store.Get[Counters](ctx, r.tx, StoreGameAttributes, keyCounters)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	id := bump(&c)
	if err := store.Put(ctx, r.tx, StoreGameAttributes, keyCounters, c, nil); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repo) NextPid(ctx context.Context) (int, error) {
	return r.nextID(ctx, func(c *Counters) int { c.Pid++; return c.Pid - 1 })
}

func (r *Repo) NextGid(ctx context.Context) (int, error) {
	return r.nextID(ctx, func(c *Counters) int { c.Gid++; return c.Gid - 1 })
}

func (r *Repo) NextDpid(ctx context.Context) (int, error) {
	return r.nextID(ctx, func(c *Counters) int { c.Dpid++; return c.Dpid - 1 })
}

func (r *Repo) NextRid(ctx context.Context) (int, error) {
	return r.nextID(ctx, func(c *Counters) int { c.Rid++; return c.Rid - 1 })
}

// Teams

func (r *Repo) Teams(ctx context.Context) ([]Team, error) {
	return store.All[Team](ctx, r.tx, StoreTeams, store.Query{})
}

func (r *Repo) Team(ctx context.Context, tid int) (Team, error) {
	t, err := store.Get[Team](ctx, r.tx, StoreTeams, store.Key(tid))
	if errors.Is(err, store.ErrNotFound) {
		return t, fmt.Errorf("%w: %d", ErrTeamNotFound, tid)
	}
	return t, err
}

func (r *Repo) PutTeam(ctx context.Context, t Team) error {
	return store.Put(ctx, r.tx, StoreTeams, store.Key(t.Tid), t, nil)
}

// Team seasons

func (r *Repo) TeamSeason(ctx context.Context, tid, season int) (TeamSeason, error) {
	return store.Get[TeamSeason](ctx, r.tx, StoreTeamSeasons, store.Key(tid, season))
}

// TeamSeasons returns every team's row for season ordered by tid.
func (r *Repo) TeamSeasons(ctx context.Context, season int) ([]TeamSeason, error) {
	return store.All[TeamSeason](ctx, r.tx, StoreTeamSeasons, store.Query{Index: "season", Value: idx(season)})
}

// TeamHistory returns a team's season rows, oldest first.
func (r *Repo) TeamHistory(ctx context.Context, tid int) ([]TeamSeason, error) {
	return store.All[TeamSeason](ctx, r.tx, StoreTeamSeasons, store.Query{Prefix: store.Key(tid) + ":"})
}

func (r *Repo) PutTeamSeason(ctx context.Context, ts TeamSeason) error {
	return store.Put(ctx, r.tx, StoreTeamSeasons, store.Key(ts.Tid, ts.Season), ts, store.Index{"season": idx(ts.Season)})
}

// AddSeasonRow inserts ts unless a row for the same team and season exists.
// It reports whether a row was written.
func (r *Repo) AddSeasonRow(ctx context.Context, ts TeamSeason) (bool, error) {
	err := store.Add(ctx, r.tx, StoreTeamSeasons, store.Key(ts.Tid, ts.Season), ts, store.Index{"season": idx(ts.Season)})
	return swallowDuplicate(err)
}

// Team stats

func (r *Repo) TeamStats(ctx context.Context, tid, season int, playoffs bool) (TeamStats, error) {
	return store.Get[TeamStats](ctx, r.tx, StoreTeamStats, store.Key(tid, season, playoffs))
}

func (r *Repo) AllTeamStats(ctx context.Context, season int, playoffs bool) ([]TeamStats, error) {
	return store.All[TeamStats](ctx, r.tx, StoreTeamStats, store.Query{Index: "season", Value: store.Key(season, playoffs)})
}

func (r *Repo) PutTeamStats(ctx context.Context, ts TeamStats) error {
	return store.Put(ctx, r.tx, StoreTeamStats, store.Key(ts.Tid, ts.Season, ts.Playoffs), ts,
		store.Index{"season": store.Key(ts.Season, ts.Playoffs)})
}

func (r *Repo) AddTeamStatsRow(ctx context.Context, tid, season int, playoffs bool) (bool, error) {
	ts := TeamStats{Tid: tid, Season: season, Playoffs: playoffs, Stat: StatLine{}}
	err := store.Add(ctx, r.tx, StoreTeamStats, store.Key(tid, season, playoffs), ts,
		store.Index{"season": store.Key(season, playoffs)})
	return swallowDuplicate(err)
}

// Players

// PlayerFilter selects players without exposing store cursors to callers.
type PlayerFilter struct {
	// Tids restricts to these tids, including sentinels. Empty means any.
	Tids        []int
	Pos         string
	OnlyHealthy bool
	OnlyActive  bool
	DraftYear   *int
	// MinTid drops players whose tid is below it, so FreeAgent keeps free
	// agents and rostered players.
	MinTid *int
}

// TidAtLeast is shorthand for PlayerFilter.MinTid.
func TidAtLeast(tid int) *int { return &tid }

func (f PlayerFilter) match(p Player) bool {
	if f.Pos != "" && p.Pos != f.Pos {
		return false
	}
	if f.OnlyHealthy && !p.Injury.Healthy() {
		return false
	}
	if f.OnlyActive && !p.Active {
		return false
	}
	if f.DraftYear != nil && p.Draft.Year != *f.DraftYear {
		return false
	}
	if f.MinTid != nil && p.Tid < *f.MinTid {
		return false
	}
	return true
}

func (r *Repo) Player(ctx context.Context, pid int) (Player, error) {
	p, err := store.Get[Player](ctx, r.tx, StorePlayers, store.Key(pid))
	if errors.Is(err, store.ErrNotFound) {
		return p, fmt.Errorf("%w: %d", ErrPlayerNotFound, pid)
	}
	return p, err
}

func (r *Repo) Players(ctx context.Context, f PlayerFilter) ([]Player, error) {
	var out []Player
	visit := func(p Player) (bool, error) {
		if f.match(p) {
			out = append(out, p)
		}
		return true, nil
	}
	if len(f.Tids) == 0 {
		err := store.Iterate(ctx, r.tx, StorePlayers, store.Query{}, visit)
		return out, err
	}
	for _, tid := range f.Tids {
		if err := store.Iterate(ctx, r.tx, StorePlayers, store.Query{Index: "tid", Value: idx(tid)}, visit); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NonRetired returns every player whose tid is not Retired.
func (r *Repo) NonRetired(ctx context.Context) ([]Player, error) {
	all, err := r.Players(ctx, PlayerFilter{})
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(p Player) bool { return p.Tid == Retired }), nil
}

func (r *Repo) PutPlayer(ctx context.Context, p Player) error {
	return store.Put(ctx, r.tx, StorePlayers, store.Key(p.Pid), p, store.Index{"tid": idx(p.Tid)})
}

// AddPlayer assigns a fresh pid and inserts p.
func (r *Repo) AddPlayer(ctx context.Context, p Player) (Player, error) {
	pid, err := r.NextPid(ctx)
	if err != nil {
		return p, err
	}
	p.Pid = pid
	return p, store.Add(ctx, r.tx, StorePlayers, store.Key(pid), p, store.Index{"tid": idx(p.Tid)})
}

// Payroll sums current contracts and dead money owed by tid.
func (r *Repo) Payroll(ctx context.Context, tid int) (float64, error) {
	players, err := r.Players(ctx, PlayerFilter{Tids: []int{tid}})
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, p := range players {
		total += p.Contract.Amount
	}
	released, err := r.ReleasedPlayers(ctx, &tid)
	if err != nil {
		return 0, err
	}
	for _, rp := range released {
		total += rp.Contract.Amount
	}
	return total, nil
}

// Player stats

func (r *Repo) PlayerStats(ctx context.Context, pid, season int, playoffs bool, tid int) (PlayerStats, error) {
	return store.Get[PlayerStats](ctx, r.tx, StorePlayerStats, store.Key(pid, season, playoffs, tid))
}

// PlayerCareer returns all stat rows of one player in season order.
func (r *Repo) PlayerCareer(ctx context.Context, pid int) ([]PlayerStats, error) {
	return store.All[PlayerStats](ctx, r.tx, StorePlayerStats, store.Query{Index: "pid", Value: idx(pid)})
}

func (r *Repo) SeasonPlayerStats(ctx context.Context, season int, playoffs bool) ([]PlayerStats, error) {
	return store.All[PlayerStats](ctx, r.tx, StorePlayerStats, store.Query{Index: "season", Value: store.Key(season, playoffs)})
}

func playerStatsIndex(ps PlayerStats) store.Index {
	return store.Index{"pid": idx(ps.Pid), "season": store.Key(ps.Season, ps.Playoffs)}
}

func (r *Repo) PutPlayerStats(ctx context.Context, ps PlayerStats) error {
	return store.Put(ctx, r.tx, StorePlayerStats, store.Key(ps.Pid, ps.Season, ps.Playoffs, ps.Tid), ps, playerStatsIndex(ps))
}

func (r *Repo) AddPlayerStatsRow(ctx context.Context, pid, tid, season int, playoffs bool) (bool, error) {
	ps := PlayerStats{Pid: pid, Tid: tid, Season: season, Playoffs: playoffs, Stat: StatLine{}}
	err := store.Add(ctx, r.tx, StorePlayerStats, store.Key(pid, season, playoffs, tid), ps, playerStatsIndex(ps))
	return swallowDuplicate(err)
}

// Playoffs

func (r *Repo) PlayoffSeries(ctx context.Context, season int) (PlayoffSeries, error) {
	return store.Get[PlayoffSeries](ctx, r.tx, StorePlayoffSeries, store.Key(season))
}

func (r *Repo) PutPlayoffSeries(ctx context.Context, ps PlayoffSeries) error {
	return store.Put(ctx, r.tx, StorePlayoffSeries, store.Key(ps.Season), ps, nil)
}

// Schedule

// Schedule returns the queued games ordered by day then gid.
func (r *Repo) Schedule(ctx context.Context) ([]ScheduleGame, error) {
	return store.All[ScheduleGame](ctx, r.tx, StoreSchedule, store.Query{})
}

// NextDay returns the games of the earliest scheduled day.
func (r *Repo) NextDay(ctx context.Context) ([]ScheduleGame, error) {
	first, err := store.First[ScheduleGame](ctx, r.tx, StoreSchedule, store.Query{})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return store.All[ScheduleGame](ctx, r.tx, StoreSchedule, store.Query{Prefix: store.Key(first.Day) + ":"})
}

func (r *Repo) AddScheduleGame(ctx context.Context, g ScheduleGame) error {
	return store.Add(ctx, r.tx, StoreSchedule, store.Key(g.Day, g.Gid), g, nil)
}

func (r *Repo) DeleteScheduleGame(ctx context.Context, g ScheduleGame) error {
	return r.tx.Delete(ctx, StoreSchedule, store.Key(g.Day, g.Gid))
}

// ClearSchedule drops every queued game.
func (r *Repo) ClearSchedule(ctx context.Context) error {
	games, err := r.Schedule(ctx)
	if err != nil {
		return err
	}
	for _, g := range games {
		if err := r.DeleteScheduleGame(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// Games

func (r *Repo) Game(ctx context.Context, gid int) (Game, error) {
	return store.Get[Game](ctx, r.tx, StoreGames, store.Key(gid))
}

func (r *Repo) SeasonGames(ctx context.Context, season int) ([]Game, error) {
	return store.All[Game](ctx, r.tx, StoreGames, store.Query{Index: "season", Value: idx(season)})
}

func (r *Repo) AddGame(ctx context.Context, g Game) error {
	return store.Add(ctx, r.tx, StoreGames, store.Key(g.Gid), g, store.Index{"season": idx(g.Season)})
}

// Negotiations

func (r *Repo) Negotiation(ctx context.Context, pid int) (Negotiation, error) {
	n, err := store.Get[Negotiation](ctx, r.tx, StoreNegotiations, store.Key(pid))
	if errors.Is(err, store.ErrNotFound) {
		return n, fmt.Errorf("%w: pid %d", ErrNegotiationNotFound, pid)
	}
	return n, err
}

func (r *Repo) Negotiations(ctx context.Context) ([]Negotiation, error) {
	return store.All[Negotiation](ctx, r.tx, StoreNegotiations, store.Query{})
}

func (r *Repo) AddNegotiation(ctx context.Context, n Negotiation) error {
	err := store.Add(ctx, r.tx, StoreNegotiations, store.Key(n.Pid), n, nil)
	if errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("%w: pid %d", ErrNegotiationExists, n.Pid)
	}
	return err
}

func (r *Repo) PutNegotiation(ctx context.Context, n Negotiation) error {
	return store.Put(ctx, r.tx, StoreNegotiations, store.Key(n.Pid), n, nil)
}

func (r *Repo) DeleteNegotiation(ctx context.Context, pid int) error {
	return r.tx.Delete(ctx, StoreNegotiations, store.Key(pid))
}

// Released players

// ReleasedPlayers returns dead money records, optionally for one team.
func (r *Repo) ReleasedPlayers(ctx context.Context, tid *int) ([]ReleasedPlayer, error) {
	if tid == nil {
		return store.All[ReleasedPlayer](ctx, r.tx, StoreReleasedPlayers, store.Query{})
	}
	return store.All[ReleasedPlayer](ctx, r.tx, StoreReleasedPlayers, store.Query{Index: "tid", Value: idx(*tid)})
}

func (r *Repo) AddReleasedPlayer(ctx context.Context, rp ReleasedPlayer) error {
	rid, err := r.NextRid(ctx)
	if err != nil {
		return err
	}
	rp.Rid = rid
	return store.Add(ctx, r.tx, StoreReleasedPlayers, store.Key(rid), rp, store.Index{"tid": idx(rp.Tid)})
}

func (r *Repo) DeleteReleasedPlayer(ctx context.Context, rid int) error {
	return r.tx.Delete(ctx, StoreReleasedPlayers, store.Key(rid))
}

// Draft picks

func (r *Repo) DraftPicks(ctx context.Context, season int) ([]DraftPick, error) {
	return store.All[DraftPick](ctx, r.tx, StoreDraftPicks, store.Query{Index: "season", Value: idx(season)})
}

func (r *Repo) AllDraftPicks(ctx context.Context) ([]DraftPick, error) {
	return store.All[DraftPick](ctx, r.tx, StoreDraftPicks, store.Query{})
}

func (r *Repo) PutDraftPick(ctx context.Context, dp DraftPick) error {
	return store.Put(ctx, r.tx, StoreDraftPicks, store.Key(dp.Dpid), dp,
		store.Index{"season": idx(dp.Season), "tid": idx(dp.Tid)})
}

// AddDraftPick assigns a fresh dpid and inserts dp.
func (r *Repo) AddDraftPick(ctx context.Context, dp DraftPick) (DraftPick, error) {
	dpid, err := r.NextDpid(ctx)
	if err != nil {
		return dp, err
	}
	dp.Dpid = dpid
	return dp, store.Add(ctx, r.tx, StoreDraftPicks, store.Key(dpid), dp,
		store.Index{"season": idx(dp.Season), "tid": idx(dp.Tid)})
}

func (r *Repo) DeleteDraftPick(ctx context.Context, dpid int) error {
	return r.tx.Delete(ctx, StoreDraftPicks, store.Key(dpid))
}

// Awards, events and messages

func (r *Repo) Awards(ctx context.Context, season int) (Awards, error) {
	return store.Get[Awards](ctx, r.tx, StoreAwards, store.Key(season))
}

func (r *Repo) PutAwards(ctx context.Context, a Awards) error {
	return store.Put(ctx, r.tx, StoreAwards, store.Key(a.Season), a, nil)
}

func (r *Repo) AddEvent(ctx context.Context, e Event) error {
	return store.Add(ctx, r.tx, StoreEvents, store.Key(e.Season, e.CreatedAt.UnixNano(), e.Eid), e,
		store.Index{"season": idx(e.Season)})
}

func (r *Repo) Events(ctx context.Context, season int) ([]Event, error) {
	return store.All[Event](ctx, r.tx, StoreEvents, store.Query{Index: "season", Value: idx(season)})
}

func (r *Repo) Messages(ctx context.Context, season int) ([]Message, error) {
	return store.All[Message](ctx, r.tx, StoreMessages, store.Query{Index: "season", Value: idx(season)})
}

func (r *Repo) AddMessage(ctx context.Context, m Message) error {
	msgs, err := store.All[Message](ctx, r.tx, StoreMessages, store.Query{})
	if err != nil {
		return err
	}
	m.Mid = len(msgs)
	for _, old := range msgs {
		m.Mid = max(m.Mid, old.Mid+1)
	}
	return store.Add(ctx, r.tx, StoreMessages, store.Key(m.Mid), m, store.Index{"season": idx(m.Season)})
}

func swallowDuplicate(err error) (bool, error) {
	if errors.Is(err, store.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
