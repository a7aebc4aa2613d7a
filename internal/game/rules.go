package game

import "math/rand"

// Rules configures a game round. Bounds are inclusive on both ends and are
// injectable so tests can run against a narrow range.
type Rules struct {
	MinGuess    int
	MaxGuess    int
	MaxAttempts int

	// Intn returns a uniform draw in [0, n). Defaults to math/rand.
	Intn func(n int) int
}

// DefaultRules returns the production rule set: guesses in [1, 100] with 10
// attempts per round.
func DefaultRules() Rules {
	return Rules{
		MinGuess:    1,
		MaxGuess:    100,
		MaxAttempts: 10,
	}
}

// drawTarget picks a target uniformly from [MinGuess, MaxGuess].
func (r Rules) drawTarget() int {
	intn := r.Intn
	if intn == nil {
		intn = rand.Intn
	}
	return r.MinGuess + intn(r.MaxGuess-r.MinGuess+1)
}
