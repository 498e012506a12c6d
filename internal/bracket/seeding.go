package bracket

import (
	"math/bits"

	"github.com/krystlih/swu-league-manager-sub000/internal/apperr"
)

const CodeBracketSize = "bracket_size"

func isPowerOfTwo(n int) bool {
	return n >= 2 && n&(n-1) == 0
}

// NearestPowerOfTwo returns the closest valid bracket size, rounding up on ties.
func NearestPowerOfTwo(n int) int {
	if n <= 2 {
		return 2
	}
	upper := 1 << bits.Len(uint(n-1))
	lower := upper >> 1
	if n-lower < upper-n {
		return lower
	}
	return upper
}

// ValidateSize rejects player counts that cannot fill an elimination bracket.
func ValidateSize(n int) error {
	if isPowerOfTwo(n) {
		return nil
	}
	return apperr.Validation(CodeBracketSize,
		"elimination brackets need a power-of-two player count, got %d (nearest valid size is %d)",
		n, NearestPowerOfTwo(n))
}

func log2(n int) int {
	return bits.Len(uint(n)) - 1
}

func SingleEliminationRounds(n int) (int, error) {
	if err := ValidateSize(n); err != nil {
		return 0, err
	}
	return log2(n), nil
}

// DoubleEliminationRounds returns the round budget of a double elimination
// bracket. The losers figure keeps one slot for a possible bracket reset on top
// of the 2*(winners-1) losers rounds that are actually played.
func DoubleEliminationRounds(n int) (winners, losers, total int, err error) {
	if err := ValidateSize(n); err != nil {
		return 0, 0, 0, err
	}
	winners = log2(n)
	losers = 2*winners - 1
	return winners, losers, winners + losers + 1, nil
}

// SeedFirstRound pairs seed k against seed N+1-k. Entrants must be in seed
// order. Tables are laid out so the top two seeds can only meet in the final.
func SeedFirstRound(kind Kind, entrants []Entrant) ([]Match, error) {
	if err := ValidateSize(len(entrants)); err != nil {
		return nil, err
	}

	// Each doubling mirrors every slot s into s and width-1-s
	slots := []int{0}
	for width := 2; width <= len(entrants); width *= 2 {
		mirrored := make([]int, 0, width)
		for _, s := range slots {
			mirrored = append(mirrored, s, width-1-s)
		}
		slots = mirrored
	}

	matches := make([]Match, 0, len(entrants)/2)
	for i := 0; i+1 < len(slots); i += 2 {
		p1, p2 := entrants[slots[i]], entrants[slots[i+1]]
		matches = append(matches, Match{
			Side:    WinnersSide,
			Round:   1,
			Number:  len(matches) + 1,
			Player1: &p1,
			Player2: &p2,
		})
	}

	winnersRounds := log2(len(entrants))
	for i := range matches {
		matches[i].WinnerNext = nextLink(kind, winnersRounds, &matches[i])
	}
	return matches, nil
}
