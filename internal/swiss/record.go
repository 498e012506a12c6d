package swiss

import (
	"slices"
	"sort"
)

// PlayerRecord is a participant's running tally inside one league.
type PlayerRecord struct {
	PlayerID string
	Name     string

	Wins   int
	Losses int
	Draws  int

	MatchPoints             int
	OpponentMatchWinPercent float64
	GameWinPercent          float64
	OpponentGameWinPercent  float64

	// Distinct opponents faced, in the order they were met
	Opponents []string
	Dropped   bool
}

func NewPlayerRecord(playerID, name string) *PlayerRecord {
	return &PlayerRecord{PlayerID: playerID, Name: name}
}

func (r *PlayerRecord) HasPlayed(playerID string) bool {
	return slices.Contains(r.Opponents, playerID)
}

// AddOpponent records an opponent once, however many times they meet.
func (r *PlayerRecord) AddOpponent(playerID string) {
	if playerID == "" || playerID == r.PlayerID || r.HasPlayed(playerID) {
		return
	}
	r.Opponents = append(r.Opponents, playerID)
}

type Outcome int

const (
	Win Outcome = iota
	Loss
	Draw
)

// Apply adds delta (1 or -1) of the outcome to the tallies.
func (r *PlayerRecord) Apply(o Outcome, delta int) {
	switch o {
	case Win:
		r.Wins += delta
	case Loss:
		r.Losses += delta
	case Draw:
		r.Draws += delta
	}
}

// RanksAbove reports whether a ranks strictly above b by points, then OMW%, GW%, OGW%.
func RanksAbove(a, b *PlayerRecord) bool {
	if a.MatchPoints != b.MatchPoints {
		return a.MatchPoints > b.MatchPoints
	}
	if a.OpponentMatchWinPercent != b.OpponentMatchWinPercent {
		return a.OpponentMatchWinPercent > b.OpponentMatchWinPercent
	}
	if a.GameWinPercent != b.GameWinPercent {
		return a.GameWinPercent > b.GameWinPercent
	}
	return a.OpponentGameWinPercent > b.OpponentGameWinPercent
}

// Rank returns a sorted copy. Players equal on every tiebreaker keep their
// input order, which callers supply in seed order.
func Rank(records []*PlayerRecord) []*PlayerRecord {
	ranked := slices.Clone(records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return RanksAbove(ranked[i], ranked[j])
	})
	return ranked
}
