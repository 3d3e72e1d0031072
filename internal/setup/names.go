package setup

type region struct {
	name string
	pop  float64
}

// regions is ordered by market size in millions.
var regions = []region{
	{"New York", 20.1}, {"Los Angeles", 13.2}, {"Chicago", 9.5}, {"Dallas", 7.6},
	{"Houston", 7.1}, {"Washington", 6.3}, {"Philadelphia", 6.2}, {"Miami", 6.1},
	{"Atlanta", 6.0}, {"Boston", 4.9}, {"Phoenix", 4.8}, {"San Francisco", 4.7},
	{"Riverside", 4.6}, {"Detroit", 4.4}, {"Seattle", 4.0}, {"Minneapolis", 3.7},
	{"San Diego", 3.3}, {"Tampa", 3.2}, {"Denver", 3.0}, {"Baltimore", 2.8},
	{"St. Louis", 2.8}, {"Charlotte", 2.7}, {"Orlando", 2.7}, {"San Antonio", 2.6},
	{"Portland", 2.5}, {"Sacramento", 2.4}, {"Pittsburgh", 2.4}, {"Las Vegas", 2.3},
	{"Cincinnati", 2.3}, {"Austin", 2.3}, {"Kansas City", 2.2}, {"Columbus", 2.1},
	{"Indianapolis", 2.1}, {"Cleveland", 2.1}, {"San Jose", 2.0}, {"Nashville", 2.0},
}

var nicknames = []string{
	"Comets", "Wolves", "Foxes", "Pilots", "Miners", "Storm", "Rangers", "Hawks",
	"Bison", "Sharks", "Knights", "Falcons", "Owls", "Titans", "Rockets", "Bears",
	"Vipers", "Anchors", "Cyclones", "Lions", "Hornets", "Stallions", "Mustangs", "Spurs",
	"Lumberjacks", "Kings", "Steel", "Aces", "Flyers", "Outlaws", "Monarchs", "Explorers",
}

var confNames = []string{"Eastern Conference", "Western Conference"}

var divNames = []string{"Atlantic", "Central", "Southeast", "Southwest", "Northwest", "Pacific", "North", "South"}
