package bracket

import "fmt"

type Kind int

const (
	Single Kind = iota
	Double
)

type Side string

const (
	WinnersSide     Side = "winners"
	LosersSide      Side = "losers"
	GrandFinalsSide Side = "grand_finals"
	ResetSide       Side = "reset"
)

func (s Side) prefix() string {
	switch s {
	case WinnersSide:
		return "W"
	case LosersSide:
		return "L"
	case GrandFinalsSide:
		return "GF"
	case ResetSide:
		return "R"
	}
	return "?"
}

type Entrant struct {
	ID   string
	Name string
}

// Link points at the slot a match winner fills downstream.
type Link struct {
	Side   Side
	Round  int
	Number int
	Slot   int
}

type Match struct {
	// Position in the bracket, rounds counted from bracket start
	Side   Side
	Round  int
	Number int

	Player1 *Entrant
	Player2 *Entrant
	Winner  *Entrant

	// Keys of the matches that fed each slot, empty for seeded slots
	Source1 string
	Source2 string

	WinnerNext *Link
}

// Key identifies a match inside one bracket, e.g. "W2-1" or "GF1-1".
func (m *Match) Key() string {
	return Key(m.Side, m.Round, m.Number)
}

func Key(side Side, round, number int) string {
	return fmt.Sprintf("%s%d-%d", side.prefix(), round, number)
}

func (m *Match) Completed() bool {
	return m.Winner != nil
}

// Loser returns the entrant beaten in a completed match.
func (m *Match) Loser() *Entrant {
	if m.Winner == nil || m.Player1 == nil || m.Player2 == nil {
		return nil
	}
	if m.Winner.ID == m.Player1.ID {
		return m.Player2
	}
	return m.Player1
}
