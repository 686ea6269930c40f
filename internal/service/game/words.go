package game

import "math/rand/v2"

// Fixed word pool a game's secret word is drawn from.
var WORDS = []string{
	"Pizza", "Basketball", "School", "Netflix", "Soccer",
	"Seattle", "Airplane", "Coffee", "Concert", "Robots",
}

func pickWord() string {
	return WORDS[rand.IntN(len(WORDS))]
}

// imposterCount gives the imposter share for n players: 3->1, 5->2, 7->3,
// always strictly fewer imposters than players.
func imposterCount(n int) int {
	count := (n - 1) / 2
	if count < 1 {
		count = 1
	}

	return count
}
