package league

import "time"

// Player tid sentinels. Non-negative values are team ids.
const (
	FreeAgent            = -1
	Undrafted            = -2
	Retired              = -3
	Undrafted2           = -4
	Undrafted3           = -5
	UndraftedFantasyTemp = -6
)

const (
	StrategyContending = "contending"
	StrategyRebuilding = "rebuilding"
)

type Conf struct {
	Cid  int    `json:"cid"`
	Name string `json:"name"`
}

type Div struct {
	Did  int    `json:"did"`
	Cid  int    `json:"cid"`
	Name string `json:"name"`
}

// Settings is the league-wide game attributes record.
type Settings struct {
	LeagueName            string  `json:"leagueName"`
	Variant               string  `json:"variant"`
	Season                int     `json:"season"`
	StartingSeason        int     `json:"startingSeason"`
	Phase                 Phase   `json:"phase"`
	NextPhase             *Phase  `json:"nextPhase,omitempty"`
	NumTeams              int     `json:"numTeams"`
	NumGames              int     `json:"numGames"`
	NumGamesDiv           int     `json:"numGamesDiv"`
	NumGamesConf          int     `json:"numGamesConf"`
	NumGamesOther         int     `json:"numGamesOther"`
	NumGamesPlayoffSeries []int   `json:"numGamesPlayoffSeries"`
	SalaryCap             float64 `json:"salaryCap"`
	MinPayroll            float64 `json:"minPayroll"`
	LuxuryPayroll         float64 `json:"luxuryPayroll"`
	LuxuryTax             float64 `json:"luxuryTax"`
	MinContract           float64 `json:"minContract"`
	MaxContract           float64 `json:"maxContract"`
	MinRosterSize         int     `json:"minRosterSize"`
	MaxRosterSize         int     `json:"maxRosterSize"`
	DraftRounds           int     `json:"draftRounds"`
	DraftType             string  `json:"draftType"`
	BudgetDefault         float64 `json:"budgetDefault"`
	TicketPriceDefault    float64 `json:"ticketPriceDefault"`
	NationalTVRevenue     float64 `json:"nationalTvRevenue"`
	TradeDeadlineDay      int     `json:"tradeDeadlineDay"`
	UserTid               int     `json:"userTid"`
	UserTids              []int   `json:"userTids"`
	AutoPlay              bool    `json:"autoPlay"`
	StopGames             bool    `json:"stopGames"`
	GamesInProgress       bool    `json:"gamesInProgress"`
	DaysLeft              int     `json:"daysLeft"`
	FreeAgencyDailyChance float64 `json:"freeAgencyDailyChance"`
	ValueRefreshEvery     int     `json:"valueRefreshEvery"`
	Confs                 []Conf  `json:"confs"`
	Divs                  []Div   `json:"divs"`
}

func (s Settings) IsUserTeam(tid int) bool {
	for _, u := range s.UserTids {
		if u == tid {
			return true
		}
	}
	return false
}

// SalaryCapFactor scales money-denominated constants to the league's cap.
func (s Settings) SalaryCapFactor() float64 {
	if s.SalaryCap <= 0 {
		return 1
	}
	return s.SalaryCap / 90000
}

func (s Settings) NumPlayoffRounds() int { return len(s.NumGamesPlayoffSeries) }

// PhaseLock is the persisted re-entrancy guard for phase transitions.
type PhaseLock struct {
	InProgress bool      `json:"inProgress"`
	Owner      string    `json:"owner,omitempty"`
	Target     Phase     `json:"target"`
	Since      time.Time `json:"since,omitempty"`
}

type Counters struct {
	Pid  int `json:"pid"`
	Gid  int `json:"gid"`
	Dpid int `json:"dpid"`
	Rid  int `json:"rid"`
}

type BudgetItem struct {
	Amount float64 `json:"amount"`
	Rank   int     `json:"rank"`
}

type Budget struct {
	TicketPrice BudgetItem `json:"ticketPrice"`
	Scouting    BudgetItem `json:"scouting"`
	Coaching    BudgetItem `json:"coaching"`
	Health      BudgetItem `json:"health"`
	Facilities  BudgetItem `json:"facilities"`
}

type Team struct {
	Tid      int     `json:"tid"`
	Cid      int     `json:"cid"`
	Did      int     `json:"did"`
	Region   string  `json:"region"`
	Name     string  `json:"name"`
	Abbrev   string  `json:"abbrev"`
	Pop      float64 `json:"pop"`
	Strategy string  `json:"strategy"`
	Budget   Budget  `json:"budget"`
}

type Revenues struct {
	Merch          float64 `json:"merch"`
	Sponsor        float64 `json:"sponsor"`
	Ticket         float64 `json:"ticket"`
	NationalTV     float64 `json:"nationalTv"`
	LocalTV        float64 `json:"localTv"`
	LuxuryTaxShare float64 `json:"luxuryTaxShare"`
}

func (r Revenues) Total() float64 {
	return r.Merch + r.Sponsor + r.Ticket + r.NationalTV + r.LocalTV + r.LuxuryTaxShare
}

type Expenses struct {
	Salary     float64 `json:"salary"`
	LuxuryTax  float64 `json:"luxuryTax"`
	MinTax     float64 `json:"minTax"`
	Scouting   float64 `json:"scouting"`
	Coaching   float64 `json:"coaching"`
	Health     float64 `json:"health"`
	Facilities float64 `json:"facilities"`
}

func (e Expenses) Total() float64 {
	return e.Salary + e.LuxuryTax + e.MinTax + e.Scouting + e.Coaching + e.Health + e.Facilities
}

type OwnerMood struct {
	Wins     float64 `json:"wins"`
	Playoffs float64 `json:"playoffs"`
	Money    float64 `json:"money"`
}

// TeamSeason is the per-team per-year standings and finance row.
type TeamSeason struct {
	Tid                int        `json:"tid"`
	Season             int        `json:"season"`
	Cid                int        `json:"cid"`
	Did                int        `json:"did"`
	GP                 int        `json:"gp"`
	GPHome             int        `json:"gpHome"`
	Won                int        `json:"won"`
	Lost               int        `json:"lost"`
	Tied               int        `json:"tied"`
	WonHome            int        `json:"hw"`
	LostHome           int        `json:"hl"`
	WonAway            int        `json:"aw"`
	LostAway           int        `json:"al"`
	WonDiv             int        `json:"dw"`
	LostDiv            int        `json:"dl"`
	WonConf            int        `json:"cw"`
	LostConf           int        `json:"cl"`
	LastTen            []string   `json:"lastTen"`
	Streak             int        `json:"streak"`
	PlayoffRoundsWon   int        `json:"playoffRoundsWon"`
	Hype               float64    `json:"hype"`
	Pop                float64    `json:"pop"`
	Cash               float64    `json:"cash"`
	Att                float64    `json:"att"`
	Revenues           Revenues   `json:"revenues"`
	Expenses           Expenses   `json:"expenses"`
	OwnerMood          *OwnerMood `json:"ownerMood,omitempty"`
	PayrollEndOfSeason *float64   `json:"payrollEndOfSeason,omitempty"`
}

// WinPct counts ties as half a win.
func (ts TeamSeason) WinPct() float64 {
	gp := ts.Won + ts.Lost + ts.Tied
	if gp == 0 {
		return 0
	}
	return (float64(ts.Won) + 0.5*float64(ts.Tied)) / float64(gp)
}

type StatLine map[string]float64

func (s StatLine) Add(delta StatLine) {
	for k, v := range delta {
		s[k] += v
	}
}

type TeamStats struct {
	Tid      int      `json:"tid"`
	Season   int      `json:"season"`
	Playoffs bool     `json:"playoffs"`
	GP       int      `json:"gp"`
	Stat     StatLine `json:"stat"`
	OppPts   float64  `json:"oppPts"`
}

type Born struct {
	Year int    `json:"year"`
	Loc  string `json:"loc"`
}

type DraftInfo struct {
	Round       int `json:"round"`
	Pick        int `json:"pick"`
	Tid         int `json:"tid"`
	OriginalTid int `json:"originalTid"`
	Year        int `json:"year"`
	Ovr         int `json:"ovr"`
	Pot         int `json:"pot"`
}

type Ratings struct {
	Season int            `json:"season"`
	Ovr    int            `json:"ovr"`
	Pot    int            `json:"pot"`
	Fuzz   float64        `json:"fuzz"`
	Pos    string         `json:"pos"`
	R      map[string]int `json:"r"`
}

type Contract struct {
	Amount float64 `json:"amount"`
	Exp    int     `json:"exp"`
	Rookie bool    `json:"rookie,omitempty"`
}

type Injury struct {
	Type           string `json:"type"`
	GamesRemaining int    `json:"gamesRemaining"`
}

func (i Injury) Healthy() bool { return i.GamesRemaining <= 0 }

type PlayerAward struct {
	Season int    `json:"season"`
	Type   string `json:"type"`
}

type Player struct {
	Pid                int             `json:"pid"`
	Tid                int             `json:"tid"`
	FirstName          string          `json:"firstName"`
	LastName           string          `json:"lastName"`
	Pos                string          `json:"pos"`
	Born               Born            `json:"born"`
	Draft              DraftInfo       `json:"draft"`
	Ratings            []Ratings       `json:"ratings"`
	Contract           Contract        `json:"contract"`
	Injury             Injury          `json:"injury"`
	Value              float64         `json:"value"`
	ValueNoPot         float64         `json:"valueNoPot"`
	ValueFuzz          float64         `json:"valueFuzz"`
	Active             bool            `json:"active"`
	GamesUntilTradable int             `json:"gamesUntilTradable"`
	Awards             []PlayerAward   `json:"awards,omitempty"`
	RetiredYear        int             `json:"retiredYear,omitempty"`
	Mood               map[int]float64 `json:"mood,omitempty"`
	StatsTids          []int           `json:"statsTids,omitempty"`
	GamesSinceValue    int             `json:"gamesSinceValue"`
}

func (p Player) Name() string { return p.FirstName + " " + p.LastName }

func (p Player) Age(season int) int { return season - p.Born.Year }

// Latest returns the most recent ratings row.
func (p *Player) Latest() *Ratings {
	if len(p.Ratings) == 0 {
		return nil
	}
	return &p.Ratings[len(p.Ratings)-1]
}

func (p Player) Ovr() int {
	if len(p.Ratings) == 0 {
		return 0
	}
	return p.Ratings[len(p.Ratings)-1].Ovr
}

func (p Player) Pot() int {
	if len(p.Ratings) == 0 {
		return 0
	}
	return p.Ratings[len(p.Ratings)-1].Pot
}

type PlayerStats struct {
	Pid      int      `json:"pid"`
	Tid      int      `json:"tid"`
	Season   int      `json:"season"`
	Playoffs bool     `json:"playoffs"`
	GP       int      `json:"gp"`
	GS       int      `json:"gs"`
	Stat     StatLine `json:"stat"`
}

type SeriesTeam struct {
	Tid  int `json:"tid"`
	Cid  int `json:"cid"`
	Seed int `json:"seed"`
	Won  int `json:"won"`
}

type Matchup struct {
	Home SeriesTeam `json:"home"`
	Away SeriesTeam `json:"away"`
}

type PlayoffSeries struct {
	Season       int `json:"season"`
	CurrentRound int `json:"currentRound"`
	// FirstRound indexes NumGamesPlayoffSeries for Series[0]. Leagues too
	// small for the full bracket skip the early rounds.
	FirstRound int         `json:"firstRound"`
	Series     [][]Matchup `json:"series"`
}

type ScheduleGame struct {
	Gid     int `json:"gid"`
	Day     int `json:"day"`
	HomeTid int `json:"homeTid"`
	AwayTid int `json:"awayTid"`
}

type PlayerBox struct {
	Pid    int      `json:"pid"`
	Name   string   `json:"name"`
	Pos    string   `json:"pos"`
	GS     bool     `json:"gs"`
	Stat   StatLine `json:"stat"`
	Injury *Injury  `json:"injury,omitempty"`
}

type TeamBox struct {
	Tid     int         `json:"tid"`
	Pts     int         `json:"pts"`
	Ovr     float64     `json:"ovr"`
	Stat    StatLine    `json:"stat"`
	Players []PlayerBox `json:"players"`
}

// Game is the immutable box score of a played game. Teams[0] is home.
type Game struct {
	Gid        int        `json:"gid"`
	Season     int        `json:"season"`
	Day        int        `json:"day"`
	Playoffs   bool       `json:"playoffs"`
	Overtimes  int        `json:"overtimes"`
	Att        float64    `json:"att"`
	Teams      [2]TeamBox `json:"teams"`
	WinnerTid  int        `json:"winnerTid"`
	Tie        bool       `json:"tie"`
	PlayByPlay []string   `json:"playByPlay,omitempty"`
}

type Terms struct {
	Amount float64 `json:"amount"`
	Exp    int     `json:"exp"`
}

type Negotiation struct {
	Pid       int   `json:"pid"`
	Tid       int   `json:"tid"`
	Resigning bool  `json:"resigning"`
	Player    Terms `json:"player"`
	Team      Terms `json:"team"`
	Orig      Terms `json:"orig"`
}

// ReleasedPlayer is dead money still owed to a released player.
type ReleasedPlayer struct {
	Rid      int      `json:"rid"`
	Pid      int      `json:"pid"`
	Tid      int      `json:"tid"`
	Contract Contract `json:"contract"`
}

type DraftPick struct {
	Dpid        int `json:"dpid"`
	Tid         int `json:"tid"`
	OriginalTid int `json:"originalTid"`
	Round       int `json:"round"`
	Pick        int `json:"pick"`
	Season      int `json:"season"`
	// Fantasy picks are discarded once the fantasy draft ends.
	Fantasy bool `json:"fantasy,omitempty"`
}

type AwardWinner struct {
	Pid   int     `json:"pid"`
	Tid   int     `json:"tid"`
	Name  string  `json:"name"`
	Pos   string  `json:"pos"`
	Score float64 `json:"score"`
}

type TeamRecord struct {
	Tid  int     `json:"tid"`
	Won  int     `json:"won"`
	Lost int     `json:"lost"`
	Tied int     `json:"tied"`
	Winp float64 `json:"winp"`
}

type Awards struct {
	Season          int             `json:"season"`
	BestRecord      *TeamRecord     `json:"bestRecord,omitempty"`
	BestRecordConfs []TeamRecord    `json:"bestRecordConfs,omitempty"`
	MVP             *AwardWinner    `json:"mvp,omitempty"`
	ROY             *AwardWinner    `json:"roy,omitempty"`
	DPOY            *AwardWinner    `json:"dpoy,omitempty"`
	SMOY            *AwardWinner    `json:"smoy,omitempty"`
	FinalsMVP       *AwardWinner    `json:"finalsMvp,omitempty"`
	AllLeague       [][]AwardWinner `json:"allLeague,omitempty"`
	AllDefense      [][]AwardWinner `json:"allDefense,omitempty"`
}

type Event struct {
	Eid              string    `json:"eid"`
	Season           int       `json:"season"`
	Type             string    `json:"type"`
	Text             string    `json:"text"`
	Tids             []int     `json:"tids,omitempty"`
	Pids             []int     `json:"pids,omitempty"`
	ShowNotification bool      `json:"showNotification"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Message struct {
	Mid       int       `json:"mid"`
	Season    int       `json:"season"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
