package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/krystlih/swu-league-manager-sub000/internal/bracket"
	"github.com/krystlih/swu-league-manager-sub000/internal/league"
	"github.com/krystlih/swu-league-manager-sub000/internal/swiss"
	"github.com/krystlih/swu-league-manager-sub000/internal/utils"
)

func bracketKind(l *league.League) bracket.Kind {
	if l.CompetitionType == league.DoubleElimination {
		return bracket.Double
	}
	return bracket.Single
}

// toBracketMatches picks the bracket rows out of a league's matches.
func toBracketMatches(matches []league.Match) []bracket.Match {
	out := make([]bracket.Match, 0, len(matches))
	for _, m := range matches {
		if !m.IsBracket() {
			continue
		}
		out = append(out, toBracketMatch(m))
	}
	return out
}

func toBracketMatch(m league.Match) bracket.Match {
	bm := bracket.Match{
		Side:    bracket.Side(m.BracketSide),
		Round:   m.BracketRound,
		Number:  m.MatchNumber,
		Player1: &bracket.Entrant{ID: m.Player1ID, Name: m.Player1Name},
		Source1: m.Source1,
		Source2: m.Source2,
	}
	if m.Player2ID != nil {
		bm.Player2 = &bracket.Entrant{ID: *m.Player2ID, Name: utils.OrZero(m.Player2Name)}
	}

	if m.WinnerID != nil {
		switch *m.WinnerID {
		case bm.Player1.ID:
			bm.Winner = bm.Player1
		case utils.OrZero(m.Player2ID):
			bm.Winner = bm.Player2
		}
	}
	return bm
}

func bracketKey(m *league.Match) string {
	return bracket.Key(bracket.Side(m.BracketSide), m.BracketRound, m.MatchNumber)
}

// fromBracketMatches turns generated bracket matches into rows of one league round.
func fromBracketMatches(leagueID uuid.UUID, round int, generated []bracket.Match, now time.Time) []league.Match {
	matches := make([]league.Match, 0, len(generated))
	for i, bm := range generated {
		m := league.Match{
			ID:           uuid.New(),
			LeagueID:     leagueID,
			RoundNumber:  round,
			TableNumber:  i + 1,
			Player1ID:    bm.Player1.ID,
			Player1Name:  bm.Player1.Name,
			BracketSide:  league.BracketSide(bm.Side),
			BracketRound: bm.Round,
			MatchNumber:  bm.Number,
			Source1:      bm.Source1,
			Source2:      bm.Source2,
			CreatedAt:    now,
		}
		if bm.Player2 != nil {
			m.Player2ID = utils.Ptr(bm.Player2.ID)
			m.Player2Name = utils.Ptr(bm.Player2.Name)
		}
		if bm.WinnerNext != nil {
			m.WinnerNextMatch = utils.Ptr(bm.WinnerNext.Number)
			m.WinnerNextSlot = utils.Ptr(bm.WinnerNext.Slot)
		}
		matches = append(matches, m)
	}
	return matches
}

// fromPairings turns Swiss pairings into rows of one league round. Byes come
// back already completed as a 2-0-0 win.
func fromPairings(leagueID uuid.UUID, round int, pairings []swiss.Pairing, now time.Time) []league.Match {
	matches := make([]league.Match, 0, len(pairings))
	for _, p := range pairings {
		m := league.Match{
			ID:          uuid.New(),
			LeagueID:    leagueID,
			RoundNumber: round,
			TableNumber: p.TableNumber,
			Player1ID:   p.Player1ID,
			Player1Name: p.Player1Name,
			CreatedAt:   now,
		}
		if p.Bye {
			m.IsBye = true
			m.Player1Wins = 2
			m.WinnerID = utils.Ptr(p.Player1ID)
			m.Completed = true
			m.ReportedAt = utils.Ptr(now)
		} else {
			m.Player2ID = utils.Ptr(p.Player2ID)
			m.Player2Name = utils.Ptr(p.Player2Name)
		}
		matches = append(matches, m)
	}
	return matches
}

func entrants(records []*swiss.PlayerRecord) []bracket.Entrant {
	out := make([]bracket.Entrant, 0, len(records))
	for _, r := range records {
		out = append(out, bracket.Entrant{ID: r.PlayerID, Name: r.Name})
	}
	return out
}
