package standings

import "github.com/krystlih/swu-league-manager-sub000/internal/swiss"

type Entry struct {
	Rank       int    `json:"rank"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`

	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Draws       int `json:"draws"`
	MatchPoints int `json:"matchPoints"`

	OpponentMatchWinPercent float64 `json:"omwPercent"`
	GameWinPercent          float64 `json:"gwPercent"`
	OpponentGameWinPercent  float64 `json:"ogwPercent"`

	Dropped bool `json:"dropped"`
}

// Compute re-derives every tiebreaker and ranks all records from scratch.
// Dropped players keep their place in the table as history.
func Compute(records []*swiss.PlayerRecord) []Entry {
	swiss.UpdateTiebreakers(records)
	ranked := swiss.Rank(records)

	entries := make([]Entry, 0, len(ranked))
	for i, r := range ranked {
		entries = append(entries, Entry{
			Rank:                    i + 1,
			PlayerID:                r.PlayerID,
			PlayerName:              r.Name,
			Wins:                    r.Wins,
			Losses:                  r.Losses,
			Draws:                   r.Draws,
			MatchPoints:             r.MatchPoints,
			OpponentMatchWinPercent: r.OpponentMatchWinPercent,
			GameWinPercent:          r.GameWinPercent,
			OpponentGameWinPercent:  r.OpponentGameWinPercent,
			Dropped:                 r.Dropped,
		})
	}
	return entries
}

// Top returns the first n entries whose players have not dropped.
func Top(entries []Entry, n int) []Entry {
	top := make([]Entry, 0, n)
	for _, e := range entries {
		if len(top) == n {
			break
		}
		if e.Dropped {
			continue
		}
		top = append(top, e)
	}
	return top
}
