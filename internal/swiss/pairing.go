package swiss

type Pairing struct {
	TableNumber int
	Player1ID   string
	Player1Name string
	Player2ID   string
	Player2Name string
	Bye         bool
}

// Pair produces one round of pairings from the given records, which must
// already have current tiebreakers.
//
// Players are walked in rank order. Each unpaired player takes the first later
// unpaired player they have not met yet; if there is none they get the bye.
// The scan never backtracks or swaps earlier pairs, so an adversarial opponent
// history can hand out an avoidable bye that a global matcher would not.
func Pair(records []*PlayerRecord) []Pairing {
	ranked := Rank(records)
	paired := make([]bool, len(ranked))
	pairings := make([]Pairing, 0, (len(ranked)+1)/2)

	for i, p := range ranked {
		if paired[i] {
			continue
		}
		paired[i] = true

		table := len(pairings) + 1
		opponent := -1
		for j := i + 1; j < len(ranked); j++ {
			if !paired[j] && !p.HasPlayed(ranked[j].PlayerID) {
				opponent = j
				break
			}
		}

		if opponent < 0 {
			pairings = append(pairings, Pairing{
				TableNumber: table,
				Player1ID:   p.PlayerID,
				Player1Name: p.Name,
				Bye:         true,
			})
			continue
		}

		paired[opponent] = true
		pairings = append(pairings, Pairing{
			TableNumber: table,
			Player1ID:   p.PlayerID,
			Player1Name: p.Name,
			Player2ID:   ranked[opponent].PlayerID,
			Player2Name: ranked[opponent].Name,
		})
	}

	return pairings
}
