package swiss

// MinimumPercent is the floor applied to win percentages so that one early loss
// does not sink every opponent's tiebreakers.
const MinimumPercent = 0.33

func MatchPoints(wins, losses, draws int) int {
	return wins*3 + draws
}

// GameWinPercent returns 0 when no games were played.
func GameWinPercent(wins, losses int) float64 {
	played := wins + losses
	if played == 0 {
		return 0
	}
	return max(float64(wins)/float64(played), MinimumPercent)
}

// MatchWinPercent is match points earned over match points available.
func MatchWinPercent(wins, losses, draws int) float64 {
	played := wins + losses + draws
	if played == 0 {
		return 0
	}
	return max(float64(MatchPoints(wins, losses, draws))/float64(3*played), MinimumPercent)
}

// OpponentMatchWinPercent averages each opponent's floored match-win percentage.
// Opponents missing from all are skipped.
func OpponentMatchWinPercent(opponents []string, all map[string]*PlayerRecord) float64 {
	return averageOver(opponents, all, func(r *PlayerRecord) float64 {
		return MatchWinPercent(r.Wins, r.Losses, r.Draws)
	})
}

func OpponentGameWinPercent(opponents []string, all map[string]*PlayerRecord) float64 {
	return averageOver(opponents, all, func(r *PlayerRecord) float64 {
		return GameWinPercent(r.Wins, r.Losses)
	})
}

func averageOver(opponents []string, all map[string]*PlayerRecord, pct func(*PlayerRecord) float64) float64 {
	var sum float64
	var n int
	for _, id := range opponents {
		opp, ok := all[id]
		if !ok {
			continue
		}
		sum += max(pct(opp), MinimumPercent)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// UpdateTiebreakers recomputes points and all three percentages for every record.
// Any single result change shifts the tiebreakers of every opponent, so partial
// updates are never correct.
func UpdateTiebreakers(records []*PlayerRecord) {
	byID := make(map[string]*PlayerRecord, len(records))
	for _, r := range records {
		byID[r.PlayerID] = r
	}

	for _, r := range records {
		r.MatchPoints = MatchPoints(r.Wins, r.Losses, r.Draws)
		r.GameWinPercent = GameWinPercent(r.Wins, r.Losses)
		r.OpponentMatchWinPercent = OpponentMatchWinPercent(r.Opponents, byID)
		r.OpponentGameWinPercent = OpponentGameWinPercent(r.Opponents, byID)
	}
}
