package variant

import (
	"math"
	"sort"

	"leaguesim/internal/random"
)

var basketballOvrWeights = map[string]float64{
	"hgt": 4, "stre": 1, "spd": 4, "jmp": 2, "endu": 3,
	"ins": 3, "dnk": 4, "ft": 1, "fg": 1, "tp": 2,
	"blk": 1, "stl": 1, "drb": 1, "pss": 3, "reb": 1,
}

// Position-specific shifts applied on top of the generated baseline.
var basketballPosShift = map[string]map[string]float64{
	"PG": {"hgt": -15, "pss": 15, "drb": 15, "spd": 10, "tp": 5, "reb": -10, "blk": -10},
	"SG": {"hgt": -8, "tp": 12, "drb": 6, "spd": 6, "fg": 5, "blk": -8},
	"SF": {"hgt": 2, "fg": 4, "dnk": 4},
	"PF": {"hgt": 12, "stre": 8, "reb": 10, "ins": 6, "tp": -6, "pss": -5},
	"C":  {"hgt": 24, "stre": 12, "reb": 15, "blk": 15, "ins": 10, "tp": -15, "drb": -15, "pss": -10, "spd": -10},
}

func Basketball() Variant {
	return Variant{
		Name:       "basketball",
		Positions:  []string{"PG", "SG", "SF", "PF", "C"},
		RatingKeys: []string{"hgt", "stre", "spd", "jmp", "endu", "ins", "dnk", "ft", "fg", "tp", "blk", "stl", "drb", "pss", "reb"},
		StatKeys: []string{
			"min", "pts", "fg", "fga", "tp", "tpa", "ft", "fta",
			"orb", "drb", "trb", "ast", "stl", "blk", "tov", "pf",
		},
		NumActive:        13,
		NumStarters:      5,
		PositionMinimums: map[string]int{"C": 1},
		SixthMan:         true,
		AllLeague:        []Quota{{Group: "G", N: 2}, {Group: "F", N: 2}, {Group: "C", N: 1}},
		AllLeagueTeams:   3,
		AllDefense:       []Quota{{Group: "G", N: 2}, {Group: "F", N: 2}, {Group: "C", N: 1}},
		AllDefenseTeams:  2,
		InjuryRate:       0.004,
		Injuries: []Injury{
			{Type: "Sprained Ankle", MinGames: 1, MaxGames: 8},
			{Type: "Bruised Knee", MinGames: 1, MaxGames: 5},
			{Type: "Hamstring Strain", MinGames: 3, MaxGames: 15},
			{Type: "Broken Hand", MinGames: 15, MaxGames: 35},
			{Type: "Torn ACL", MinGames: 60, MaxGames: 120},
		},
		Defaults: Defaults{
			NumTeams:              30,
			NumConfs:              2,
			DivsPerConf:           3,
			NumGames:              82,
			ScheduleDiv:           4,
			ScheduleConf:          3,
			ScheduleOther:         2,
			NumGamesPlayoffSeries: []int{7, 7, 7, 7},
			SalaryCap:             90000,
			MinPayroll:            60000,
			LuxuryPayroll:         100000,
			LuxuryTax:             1.5,
			MinContract:           750,
			MaxContract:           30000,
			MinRosterSize:         13,
			MaxRosterSize:         15,
			DraftRounds:           2,
			BudgetAmount:          1350,
			TicketPrice:           25,
			NationalTVRevenue:     250,
			TradeDeadlineFraction: 0.6,
		},
		Ratings:    basketballRatings{},
		Attendance: basketballAttendance{},
		Awards:     basketballAwards{},
		Game:       basketballGame{},
		derived:    basketballDerived,
	}
}

type basketballRatings struct{}

func (basketballRatings) Ovr(r map[string]int, _ string) int {
	sum := 0.0
	for k, w := range basketballOvrWeights {
		sum += w * float64(r[k])
	}
	return int(math.Round(sum / 32))
}

func (basketballRatings) Pot(ovr, age int) int {
	if age >= 29 {
		return ovr
	}
	return min(100, ovr+int(math.Round(2.5*float64(29-age))))
}

// TeamOvr predicts margin of victory from the ten best players, then maps
// it onto a 0-100 style scale.
func (basketballRatings) TeamOvr(players []RatedPlayer) float64 {
	ovrs := make([]int, 0, len(players))
	for _, p := range players {
		ovrs = append(ovrs, p.Ovr)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ovrs)))
	predictedMOV := -124.13
	for i := 0; i < 10; i++ {
		ovr := 20
		if i < len(ovrs) {
			ovr = ovrs[i]
		}
		predictedMOV += 0.4417 * math.Exp(-0.1905*float64(i)) * float64(ovr)
	}
	return predictedMOV*50/15 + 50
}

func (basketballRatings) Position(r map[string]int) string {
	hgt := r["hgt"]
	switch {
	case hgt >= 68:
		return "C"
	case hgt >= 56:
		if r["stre"]+r["reb"] > r["drb"]+r["tp"] {
			return "PF"
		}
		return "SF"
	case hgt >= 44:
		if r["pss"] > r["tp"]+10 {
			return "PG"
		}
		return "SG"
	default:
		return "PG"
	}
}

func (basketballRatings) Generate(rng *random.Source, pos string, quality float64) map[string]int {
	out := make(map[string]int, len(basketballOvrWeights))
	shift := basketballPosShift[pos]
	for k := range basketballOvrWeights {
		out[k] = int(math.Round(rng.TruncGauss(quality+shift[k], 8, 0, 100)))
	}
	return out
}

func (basketballRatings) Progress(rng *random.Source, r map[string]int, change float64) {
	for k := range r {
		if k == "hgt" {
			continue
		}
		delta := change + rng.Gauss(0, 1.5)
		switch k {
		case "spd", "jmp", "endu":
			// athleticism declines first
			if change < 0 {
				delta *= 1.5
			}
		case "tp", "ft", "fg", "pss":
			if change < 0 {
				delta *= 0.5
			}
		}
		r[k] = random.BoundInt(int(math.Round(float64(r[k])+delta)), 0, 100)
	}
}

type basketballAttendance struct{}

func (basketballAttendance) Base(hype, pop float64, playoffs bool) float64 {
	att := 10000 + (0.1+0.9*math.Pow(hype, 2))*pop*1000000*0.01
	if playoffs {
		att *= 1.5
	}
	return att
}

func (basketballAttendance) Max() float64 { return 25000 }

type basketballAwards struct{}

func (basketballAwards) MVPScore(pg map[string]float64, winp float64) float64 {
	perf := pg["pts"] + 0.4*pg["trb"] + 0.7*pg["ast"] + pg["stl"] + 0.7*pg["blk"] - 0.7*pg["tov"]
	return perf + 20*winp
}

func (basketballAwards) DPOYScore(pg map[string]float64) float64 {
	return 2*pg["stl"] + 2*pg["blk"] + 0.5*pg["drb"]
}

func (basketballAwards) Group(pos string) string {
	switch pos {
	case "PG", "SG":
		return "G"
	case "SF", "PF":
		return "F"
	default:
		return "C"
	}
}

type basketballGame struct{}

func (basketballGame) Score(rng *random.Source, ovr, oppOvr float64, home bool) int {
	mean := 100 + 0.5*(ovr-oppOvr)
	if home {
		mean += 1.5
	}
	return int(math.Round(math.Max(60, rng.Gauss(mean, 11))))
}

func (basketballGame) OvertimeScore(rng *random.Source, ovr, oppOvr float64) int {
	return int(math.Round(math.Max(0, rng.Gauss(10+0.05*(ovr-oppOvr), 3))))
}

var (
	rebWeight = map[string]float64{"PG": 1, "SG": 1.2, "SF": 1.6, "PF": 2.5, "C": 3}
	astWeight = map[string]float64{"PG": 3, "SG": 1.8, "SF": 1.3, "PF": 0.9, "C": 0.7}
	blkWeight = map[string]float64{"PG": 0.3, "SG": 0.4, "SF": 0.8, "PF": 1.6, "C": 3}
	tpShare   = map[string]float64{"PG": 0.35, "SG": 0.4, "SF": 0.3, "PF": 0.15, "C": 0.04}
)

func (basketballGame) Lines(rng *random.Source, pts int, slots []Slot) []map[string]float64 {
	out := make([]map[string]float64, len(slots))
	if len(slots) == 0 {
		return out
	}

	// ten-man rotation: starters, then the best of the bench
	order := make([]int, len(slots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := slots[order[a]], slots[order[b]]
		if sa.Starter != sb.Starter {
			return sa.Starter
		}
		return sa.Ovr > sb.Ovr
	})
	rotation := order[:min(10, len(order))]

	minW := make([]float64, len(rotation))
	for i, idx := range rotation {
		w := float64(slots[idx].Ovr) + 10
		if slots[idx].Starter {
			w *= 2.4
		}
		minW[i] = w
	}
	mins := shares(240, noisyWeights(rng, minW, 0.15))

	ptsW := make([]float64, len(rotation))
	for i, idx := range rotation {
		ptsW[i] = float64(mins[i]) * math.Pow(float64(slots[idx].Ovr)+1, 2)
	}
	ptsSplit := shares(pts, noisyWeights(rng, ptsW, 0.35))

	split := func(total float64, weights map[string]float64) []int {
		w := make([]float64, len(rotation))
		for i, idx := range rotation {
			w[i] = float64(mins[i]) * weights[slots[idx].Pos]
		}
		n := int(math.Round(math.Max(0, total)))
		return shares(n, noisyWeights(rng, w, 0.4))
	}
	even := map[string]float64{"PG": 1, "SG": 1, "SF": 1, "PF": 1, "C": 1}
	trb := split(rng.Gauss(44, 5), rebWeight)
	ast := split(rng.Gauss(24, 4), astWeight)
	stl := split(rng.Gauss(8, 2), astWeight)
	blk := split(rng.Gauss(5, 2), blkWeight)
	tov := split(rng.Gauss(14, 3), even)
	pf := split(rng.Gauss(20, 3), even)

	for i, idx := range rotation {
		if mins[i] == 0 {
			continue
		}
		p := ptsSplit[i]
		tp := int(float64(p) * tpShare[slots[idx].Pos] / 3)
		ft := int(float64(p) * 0.18)
		rest := p - 3*tp - ft
		if rest%2 == 1 {
			ft++
			rest--
		}
		fg := rest/2 + tp
		orb := int(math.Round(float64(trb[i]) * 0.25))
		out[idx] = map[string]float64{
			"min": float64(mins[i]),
			"pts": float64(p),
			"fg":  float64(fg),
			"fga": math.Max(float64(fg), math.Round(float64(fg)/0.47)),
			"tp":  float64(tp),
			"tpa": math.Max(float64(tp), math.Round(float64(tp)/0.36)),
			"ft":  float64(ft),
			"fta": math.Max(float64(ft), math.Round(float64(ft)/0.76)),
			"orb": float64(orb),
			"drb": float64(trb[i] - orb),
			"trb": float64(trb[i]),
			"ast": float64(ast[i]),
			"stl": float64(stl[i]),
			"blk": float64(blk[i]),
			"tov": float64(tov[i]),
			"pf":  float64(pf[i]),
		}
	}
	return out
}

func basketballDerived(line map[string]float64, _ float64) map[string]float64 {
	return map[string]float64{
		"fgp": 100 * ratio(line["fg"], line["fga"]),
		"tpp": 100 * ratio(line["tp"], line["tpa"]),
		"ftp": 100 * ratio(line["ft"], line["fta"]),
	}
}
