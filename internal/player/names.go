package player

var firstNames = []string{
	"Aaron", "Andre", "Ben", "Bobby", "Caleb", "Carlos", "Chris", "Damian", "Darius", "Derek",
	"Eli", "Elijah", "Evan", "Felix", "Gary", "Grant", "Hector", "Isaac", "Jalen", "Jamal",
	"Jason", "Jerome", "Joel", "Jordan", "Kevin", "Kyle", "Lamar", "Leon", "Luka", "Malik",
	"Marcus", "Mario", "Mike", "Nate", "Nikola", "Omar", "Oscar", "Paul", "Quinn", "Rashad",
	"Ray", "Ricky", "Sam", "Scott", "Terrence", "Tony", "Tyrese", "Victor", "Wes", "Zach",
}

var lastNames = []string{
	"Adams", "Allen", "Baker", "Bell", "Brooks", "Brown", "Carter", "Clark", "Collins", "Cook",
	"Davis", "Diaz", "Edwards", "Evans", "Fisher", "Foster", "Garcia", "Gibson", "Green", "Hall",
	"Harris", "Hayes", "Hill", "Howard", "Jackson", "James", "Johnson", "Jones", "King", "Lee",
	"Lewis", "Martin", "Miller", "Mitchell", "Moore", "Morris", "Nelson", "Parker", "Perry", "Price",
	"Reed", "Roberts", "Robinson", "Ross", "Smith", "Taylor", "Thomas", "Turner", "Walker", "Young",
}

var birthplaces = []string{
	"Atlanta", "Baltimore", "Boston", "Chicago", "Dallas", "Denver", "Detroit", "Houston",
	"Los Angeles", "Memphis", "Miami", "New York", "Oakland", "Philadelphia", "Seattle",
	"Toronto", "Belgrade", "Lagos", "Madrid", "Melbourne", "Paris", "Sao Paulo",
}
