package variant

import (
	"math"
	"sort"

	"leaguesim/internal/random"
)

var footballPosWeights = map[string]map[string]float64{
	"QB": {"thv": 3, "thp": 2, "tha": 3, "hgt": 0.5, "spd": 0.3},
	"RB": {"spd": 2, "elu": 2, "bsc": 2, "stre": 1, "rtr": 0.5, "hnd": 0.5},
	"WR": {"spd": 2, "rtr": 2, "hnd": 2, "hgt": 1, "elu": 0.5},
	"TE": {"hnd": 1.5, "rtr": 1, "rbk": 1.5, "stre": 1, "hgt": 1},
	"OL": {"rbk": 2, "pbk": 2, "stre": 1.5, "hgt": 0.5},
	"DL": {"prs": 2, "rns": 2, "stre": 1.5, "spd": 0.5, "hgt": 0.5},
	"LB": {"tck": 2, "rns": 1.5, "pcv": 1, "spd": 1, "prs": 0.5},
	"CB": {"pcv": 2.5, "spd": 2, "hgt": 0.5, "tck": 0.5},
	"S":  {"pcv": 1.5, "tck": 1.5, "spd": 1.5, "rns": 0.5},
	"K":  {"kpw": 1, "kac": 1},
	"P":  {"ppw": 1, "pac": 1},
}

// Starting depth per position and the weight of each starter.
var footballDepth = []struct {
	pos    string
	n      int
	weight float64
}{
	{"QB", 1, 0.14}, {"RB", 1, 0.04}, {"TE", 1, 0.03}, {"WR", 3, 0.03},
	{"OL", 5, 0.035}, {"DL", 4, 0.04}, {"LB", 3, 0.03}, {"CB", 2, 0.045},
	{"S", 2, 0.035}, {"K", 1, 0.01}, {"P", 1, 0.005},
}

var footballPositions = []string{"QB", "RB", "WR", "TE", "OL", "DL", "LB", "CB", "S", "K", "P"}

var footballRatingKeys = []string{
	"hgt", "stre", "spd", "endu", "thv", "thp", "tha", "bsc", "elu", "rtr", "hnd",
	"rbk", "pbk", "pcv", "tck", "prs", "rns", "kpw", "kac", "ppw", "pac",
}

func Football() Variant {
	return Variant{
		Name:       "football",
		Positions:  footballPositions,
		RatingKeys: footballRatingKeys,
		StatKeys: []string{
			"pts", "pss", "pssAtt", "pssYds", "pssTD", "pssInt",
			"rus", "rusYds", "rusTD", "rec", "recYds", "recTD",
			"fg", "fga", "xp", "tck", "sk", "defInt",
		},
		NumActive:   46,
		NumStarters: 22,
		PositionMinimums: map[string]int{
			"QB": 2, "RB": 2, "WR": 4, "TE": 2, "OL": 7, "DL": 6,
			"LB": 5, "CB": 4, "S": 3, "K": 1, "P": 1,
		},
		TiesAllowed: true,
		AllLeague: []Quota{
			{Group: "QB", N: 1}, {Group: "RB", N: 1}, {Group: "WR", N: 3}, {Group: "TE", N: 1},
			{Group: "OL", N: 5}, {Group: "DL", N: 4}, {Group: "LB", N: 3}, {Group: "CB", N: 2},
			{Group: "S", N: 3}, {Group: "K", N: 1}, {Group: "P", N: 1},
		},
		AllLeagueTeams: 1,
		DefenseGroups:  []string{"DL", "LB", "CB", "S"},
		InjuryRate:     0.008,
		Injuries: []Injury{
			{Type: "Concussion", MinGames: 1, MaxGames: 3},
			{Type: "High Ankle Sprain", MinGames: 2, MaxGames: 6},
			{Type: "Torn Hamstring", MinGames: 3, MaxGames: 8},
			{Type: "Broken Collarbone", MinGames: 6, MaxGames: 10},
			{Type: "Torn ACL", MinGames: 12, MaxGames: 20},
		},
		Defaults: Defaults{
			NumTeams:              32,
			NumConfs:              2,
			DivsPerConf:           4,
			NumGames:              17,
			ScheduleDiv:           2,
			ScheduleConf:          0,
			ScheduleOther:         0,
			NumGamesPlayoffSeries: []int{1, 1, 1, 1},
			SalaryCap:             200000,
			MinPayroll:            150000,
			LuxuryPayroll:         250000,
			LuxuryTax:             1.5,
			MinContract:           500,
			MaxContract:           30000,
			MinRosterSize:         45,
			MaxRosterSize:         53,
			DraftRounds:           7,
			BudgetAmount:          3000,
			TicketPrice:           35,
			NationalTVRevenue:     4000,
			TradeDeadlineFraction: 0.55,
		},
		Ratings:    footballRatings{},
		Attendance: footballAttendance{},
		Awards:     footballAwards{},
		Game:       footballGame{},
		derived:    footballDerived,
	}
}

type footballRatings struct{}

func (footballRatings) Ovr(r map[string]int, pos string) int {
	w, ok := footballPosWeights[pos]
	if !ok {
		return 0
	}
	return int(math.Round(weighted(r, w)))
}

func (footballRatings) Pot(ovr, age int) int {
	if age >= 29 {
		return ovr
	}
	return min(100, ovr+int(math.Round(2*float64(29-age))))
}

func (footballRatings) TeamOvr(players []RatedPlayer) float64 {
	byPos := make(map[string][]int)
	for _, p := range players {
		byPos[p.Pos] = append(byPos[p.Pos], p.Ovr)
	}
	sum, total := 0.0, 0.0
	for _, d := range footballDepth {
		ovrs := byPos[d.pos]
		sort.Sort(sort.Reverse(sort.IntSlice(ovrs)))
		for i := 0; i < d.n; i++ {
			ovr := 20
			if i < len(ovrs) {
				ovr = ovrs[i]
			}
			sum += d.weight * float64(ovr)
			total += d.weight
		}
	}
	return ratio(sum, total)
}

func (m footballRatings) Position(r map[string]int) string {
	best, bestOvr := "OL", -1
	for _, pos := range footballPositions {
		if ovr := m.Ovr(r, pos); ovr > bestOvr {
			best, bestOvr = pos, ovr
		}
	}
	return best
}

func (footballRatings) Generate(rng *random.Source, pos string, quality float64) map[string]int {
	keys := footballPosWeights[pos]
	out := make(map[string]int)
	for _, k := range footballRatingKeys {
		mean := quality - 18
		if _, ok := keys[k]; ok {
			mean = quality + 4
		}
		out[k] = int(math.Round(rng.TruncGauss(mean, 9, 0, 100)))
	}
	return out
}

func (footballRatings) Progress(rng *random.Source, r map[string]int, change float64) {
	for k := range r {
		if k == "hgt" {
			continue
		}
		delta := change + rng.Gauss(0, 1.5)
		if change < 0 && (k == "spd" || k == "elu" || k == "endu") {
			delta *= 1.5
		}
		r[k] = random.BoundInt(int(math.Round(float64(r[k])+delta)), 0, 100)
	}
}

type footballAttendance struct{}

func (footballAttendance) Base(hype, pop float64, playoffs bool) float64 {
	att := 3 * (10000 + (0.1+0.9*math.Pow(hype, 2))*pop*1000000*0.01)
	if playoffs {
		att *= 1.5
	}
	return att
}

func (footballAttendance) Max() float64 { return 70000 }

type footballAwards struct{}

func (footballAwards) MVPScore(pg map[string]float64, winp float64) float64 {
	perf := pg["pssYds"]/25 + 4*pg["pssTD"] - 2*pg["pssInt"] +
		pg["rusYds"]/10 + 6*pg["rusTD"] + pg["recYds"]/10 + 6*pg["recTD"]
	return perf + 10*winp
}

func (footballAwards) DPOYScore(pg map[string]float64) float64 {
	return pg["tck"] + 4*pg["sk"] + 5*pg["defInt"]
}

func (footballAwards) Group(pos string) string { return pos }

type footballGame struct{}

func poisson(rng *random.Source, lambda float64) int {
	l := math.Exp(-math.Max(lambda, 0.01))
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

func (footballGame) Score(rng *random.Source, ovr, oppOvr float64, home bool) int {
	edge := 0.04 * (ovr - oppOvr)
	if home {
		edge += 0.15
	}
	td := poisson(rng, 2.4+edge)
	fg := poisson(rng, 1.6+edge/3)
	return 7*td + 3*fg
}

func (footballGame) OvertimeScore(rng *random.Source, ovr, oppOvr float64) int {
	x := rng.Float64() + 0.01*(ovr-oppOvr)
	switch {
	case x > 0.7:
		return 7
	case x > 0.4:
		return 3
	default:
		return 0
	}
}

func (footballGame) Lines(rng *random.Source, pts int, slots []Slot) []map[string]float64 {
	out := make([]map[string]float64, len(slots))
	for i := range slots {
		out[i] = map[string]float64{}
	}
	if len(slots) == 0 {
		return out
	}

	byPos := func(positions ...string) []int {
		var idx []int
		for _, pos := range positions {
			var group []int
			for i, s := range slots {
				if s.Pos == pos {
					group = append(group, i)
				}
			}
			sort.SliceStable(group, func(a, b int) bool { return slots[group[a]].Ovr > slots[group[b]].Ovr })
			idx = append(idx, group...)
		}
		if len(idx) == 0 {
			idx = []int{0}
		}
		return idx
	}
	qb := byPos("QB")[0]
	rbs := byPos("RB")
	receivers := byPos("WR", "TE", "RB")
	k := byPos("K")[0]
	defenders := byPos("DL", "LB", "CB", "S")

	td := pts / 7
	for td > 0 && (pts-7*td)%3 != 0 {
		td--
	}
	fg := (pts - 7*td) / 3
	leftover := pts - 7*td - 3*fg

	passTD := 0
	for i := 0; i < td; i++ {
		if rng.Bool(0.6) {
			passTD++
		}
	}
	rushTD := td - passTD

	att := int(math.Round(math.Max(15, rng.Gauss(34, 5))))
	cmp := int(math.Round(float64(att) * random.Bound(rng.Gauss(0.63, 0.06), 0.3, 0.9)))
	yds := int(math.Round(math.Max(40, rng.Gauss(220+0.5*float64(slots[qb].Ovr-50), 55))))
	out[qb]["pss"] = float64(cmp)
	out[qb]["pssAtt"] = float64(att)
	out[qb]["pssYds"] = float64(yds)
	out[qb]["pssTD"] = float64(passTD)
	out[qb]["pssInt"] = float64(poisson(rng, 0.9))

	recW := make([]float64, len(receivers))
	for i, idx := range receivers {
		recW[i] = float64(slots[idx].Ovr) + 5
		if i >= 6 {
			recW[i] = 1
		}
	}
	recW = noisyWeights(rng, recW, 0.4)
	for i, n := range shares(cmp, recW) {
		out[receivers[i]]["rec"] += float64(n)
	}
	for i, n := range shares(yds, recW) {
		out[receivers[i]]["recYds"] += float64(n)
	}
	for i, n := range shares(passTD, recW) {
		out[receivers[i]]["recTD"] += float64(n)
		out[receivers[i]]["pts"] += float64(6 * n)
	}

	rus := int(math.Round(math.Max(10, rng.Gauss(26, 5))))
	rusYds := int(math.Round(rng.Gauss(110, 35)))
	rusW := make([]float64, len(rbs))
	for i := range rbs {
		rusW[i] = math.Pow(0.35, float64(i))
	}
	for i, n := range shares(rus, rusW) {
		out[rbs[i]]["rus"] += float64(n)
	}
	for i, n := range shares(max(rusYds, 0), rusW) {
		out[rbs[i]]["rusYds"] += float64(n)
	}
	for i, n := range shares(rushTD, rusW) {
		out[rbs[i]]["rusTD"] += float64(n)
		out[rbs[i]]["pts"] += float64(6 * n)
	}

	out[k]["fg"] = float64(fg)
	out[k]["fga"] = float64(fg + poisson(rng, 0.3))
	out[k]["xp"] = float64(td)
	out[k]["pts"] += float64(3*fg + td + leftover)

	defW := make([]float64, len(defenders))
	for i, idx := range defenders {
		defW[i] = float64(slots[idx].Ovr) + 5
	}
	defW = noisyWeights(rng, defW, 0.5)
	for i, n := range shares(int(math.Round(math.Max(30, rng.Gauss(60, 8)))), defW) {
		out[defenders[i]]["tck"] += float64(n)
	}
	for i, n := range shares(poisson(rng, 2.3), defW) {
		out[defenders[i]]["sk"] += float64(n)
	}
	for i, n := range shares(poisson(rng, 0.9), defW) {
		out[defenders[i]]["defInt"] += float64(n)
	}
	return out
}

func footballDerived(line map[string]float64, _ float64) map[string]float64 {
	return map[string]float64{
		"cmpPct":    100 * ratio(line["pss"], line["pssAtt"]),
		"ydsPerAtt": ratio(line["pssYds"], line["pssAtt"]),
		"ydsPerRus": ratio(line["rusYds"], line["rus"]),
		"fgPct":     100 * ratio(line["fg"], line["fga"]),
	}
}
