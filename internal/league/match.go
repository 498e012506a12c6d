package league

import (
	"time"

	"github.com/google/uuid"
)

type BracketSide string

const (
	SwissSide       BracketSide = ""
	WinnersSide     BracketSide = "winners"
	LosersSide      BracketSide = "losers"
	GrandFinalsSide BracketSide = "grand_finals"
	ResetSide       BracketSide = "reset"
)

type Match struct {
	ID          uuid.UUID `db:"id" json:"id"`
	LeagueID    uuid.UUID `db:"league_id" json:"leagueId"`
	RoundNumber int       `db:"round_number" json:"roundNumber"`
	TableNumber int       `db:"table_number" json:"tableNumber"`

	Player1ID   string  `db:"player1_id" json:"player1Id"`
	Player1Name string  `db:"player1_name" json:"player1Name"`
	Player2ID   *string `db:"player2_id" json:"player2Id,omitempty"`
	Player2Name *string `db:"player2_name" json:"player2Name,omitempty"`
	IsBye       bool    `db:"is_bye" json:"isBye"`

	Player1Wins int `db:"player1_wins" json:"player1Wins"`
	Player2Wins int `db:"player2_wins" json:"player2Wins"`
	Draws       int `db:"draws" json:"draws"`

	WinnerID   *string    `db:"winner_id" json:"winnerId,omitempty"`
	Completed  bool       `db:"completed" json:"completed"`
	ReportedAt *time.Time `db:"reported_at" json:"reportedAt,omitempty"`

	// Position in an elimination bracket, empty for Swiss matches
	BracketSide     BracketSide `db:"bracket_side" json:"bracketSide,omitempty"`
	BracketRound    int         `db:"bracket_round" json:"bracketRound,omitempty"`
	MatchNumber     int         `db:"match_number" json:"matchNumber,omitempty"`
	Source1         string      `db:"source1" json:"source1,omitempty"`
	Source2         string      `db:"source2" json:"source2,omitempty"`
	WinnerNextMatch *int        `db:"winner_next_match" json:"winnerNextMatch,omitempty"`
	WinnerNextSlot  *int        `db:"winner_next_slot" json:"winnerNextSlot,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

func (m Match) IsBracket() bool {
	return m.BracketSide != SwissSide
}

// HasPlayer reports whether the player sits in either slot.
func (m Match) HasPlayer(playerID string) bool {
	return m.Player1ID == playerID || (m.Player2ID != nil && *m.Player2ID == playerID)
}

// IsDraw reports a completed match without a winner.
func (m Match) IsDraw() bool {
	return m.Completed && m.WinnerID == nil
}
