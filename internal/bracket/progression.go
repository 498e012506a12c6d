package bracket

import (
	"slices"

	"github.com/krystlih/swu-league-manager-sub000/internal/apperr"
)

const (
	CodeRoundIncomplete = "bracket_round_incomplete"
	CodeNotSeeded       = "bracket_not_seeded"
	CodeBracketDecided  = "bracket_decided"
)

// Progress is the outcome of advancing a bracket by one round: either the
// matches to play next or the champion.
type Progress struct {
	Matches  []Match
	Champion *Entrant
}

// NeedsBracketReset reports whether the losers-bracket representative won
// grand finals, in which case the winners-bracket champion has only one loss
// and a deciding match is required.
func NeedsBracketReset(winnersChampionID, grandFinalsWinnerID string) bool {
	return grandFinalsWinnerID != winnersChampionID
}

// ReverseFeed orders winners-bracket losers for a losers-bracket feed round.
//
// Loser feed reversal: the loser of winners match i meets the survivor of
// losers match m+1-i. Players who came through the top of the winners bracket
// face survivors from the bottom of the losers bracket, which keeps players
// from the same region apart and preserves the seeding separation.
func ReverseFeed[T any](losers []T) []T {
	reversed := slices.Clone(losers)
	slices.Reverse(reversed)
	return reversed
}

type layout struct {
	rounds map[Side]map[int][]Match
}

func newLayout(matches []Match) layout {
	l := layout{rounds: make(map[Side]map[int][]Match)}
	for _, m := range matches {
		if l.rounds[m.Side] == nil {
			l.rounds[m.Side] = make(map[int][]Match)
		}
		l.rounds[m.Side][m.Round] = append(l.rounds[m.Side][m.Round], m)
	}
	for _, bySide := range l.rounds {
		for r := range bySide {
			slices.SortFunc(bySide[r], func(a, b Match) int { return a.Number - b.Number })
		}
	}
	return l
}

func (l layout) round(side Side, round int) []Match {
	return l.rounds[side][round]
}

func (l layout) lastRound(side Side) int {
	last := 0
	for r := range l.rounds[side] {
		last = max(last, r)
	}
	return last
}

func (l layout) winnersRounds() int {
	return log2(2 * len(l.round(WinnersSide, 1)))
}

func (l layout) single(side Side, round int) *Match {
	ms := l.round(side, round)
	if len(ms) != 1 {
		return nil
	}
	return &ms[0]
}

func checkComplete(matches []Match) error {
	if len(matches) == 0 {
		return apperr.Validation(CodeNotSeeded, "the bracket has no matches yet")
	}
	for _, m := range matches {
		if !m.Completed() {
			return apperr.Validation(CodeRoundIncomplete, "bracket match %s has not been decided", m.Key())
		}
	}
	return nil
}

// Champion reports the bracket winner once one has been decided.
func Champion(kind Kind, matches []Match) (*Entrant, bool) {
	l := newLayout(matches)
	if kind == Single {
		final := l.single(WinnersSide, l.winnersRounds())
		if final != nil && final.Completed() {
			return final.Winner, true
		}
		return nil, false
	}

	if reset := l.single(ResetSide, 1); reset != nil {
		if reset.Completed() {
			return reset.Winner, true
		}
		return nil, false
	}
	gf := l.single(GrandFinalsSide, 1)
	if gf == nil || !gf.Completed() {
		return nil, false
	}
	if NeedsBracketReset(gf.Player1.ID, gf.Winner.ID) {
		return nil, false
	}
	return gf.Winner, true
}

// NextRound builds the next round of a seeded bracket. Every existing match
// must be decided first.
func NextRound(kind Kind, matches []Match) (Progress, error) {
	if err := checkComplete(matches); err != nil {
		return Progress{}, err
	}
	if champion, ok := Champion(kind, matches); ok {
		return Progress{Champion: champion}, nil
	}

	l := newLayout(matches)
	var next []Match
	if kind == Single {
		next = l.nextWinnersRound()
	} else {
		next = l.nextDoubleRound()
	}

	if len(next) == 0 {
		return Progress{}, apperr.State(CodeBracketDecided, "the bracket has no further rounds to play")
	}

	winnersRounds := l.winnersRounds()
	for i := range next {
		next[i].WinnerNext = nextLink(kind, winnersRounds, &next[i])
	}
	return Progress{Matches: next}, nil
}

// pairAdjacent pairs winners of matches 2i-1 and 2i into match i of the next round.
func pairAdjacent(side Side, round int, from []Match) []Match {
	next := make([]Match, 0, len(from)/2)
	for i := 0; i+1 < len(from); i += 2 {
		a, b := from[i], from[i+1]
		next = append(next, Match{
			Side:    side,
			Round:   round,
			Number:  len(next) + 1,
			Player1: a.Winner,
			Player2: b.Winner,
			Source1: a.Key(),
			Source2: b.Key(),
		})
	}
	return next
}

func (l layout) nextWinnersRound() []Match {
	last := l.lastRound(WinnersSide)
	current := l.round(WinnersSide, last)
	if len(current) < 2 {
		return nil
	}
	return pairAdjacent(WinnersSide, last+1, current)
}

// nextDoubleRound advances both brackets in lock-step and opens grand finals
// or the reset match once both sides are down to a single finalist.
func (l layout) nextDoubleRound() []Match {
	winnersRounds := l.winnersRounds()
	losersRounds := 2 * (winnersRounds - 1)

	if gf := l.single(GrandFinalsSide, 1); gf != nil {
		if l.single(ResetSide, 1) != nil {
			return nil
		}
		return []Match{{
			Side:    ResetSide,
			Round:   1,
			Number:  1,
			Player1: gf.Player1,
			Player2: gf.Player2,
			Source1: gf.Key(),
			Source2: gf.Key(),
		}}
	}

	next := l.nextWinnersRound()
	next = append(next, l.nextLosersRound(losersRounds)...)
	if len(next) > 0 {
		return next
	}

	lastWinners := l.lastRound(WinnersSide)
	lastLosers := l.lastRound(LosersSide)
	if lastWinners != winnersRounds || lastLosers != losersRounds {
		return nil
	}

	wbFinal := l.single(WinnersSide, winnersRounds)
	gf := Match{
		Side:    GrandFinalsSide,
		Round:   1,
		Number:  1,
		Player1: wbFinal.Winner,
		Source1: wbFinal.Key(),
	}
	if losersRounds == 0 {
		// Two-player bracket: the only winners-round loser is the losers champion
		gf.Player2 = wbFinal.Loser()
		gf.Source2 = wbFinal.Key()
	} else {
		lbFinal := l.single(LosersSide, losersRounds)
		gf.Player2 = lbFinal.Winner
		gf.Source2 = lbFinal.Key()
	}
	return []Match{gf}
}

// nextLosersRound generates losers round k (1-based). Round 1 pairs the
// winners-round-1 losers. Other odd rounds consolidate survivors. Even rounds
// feed the losers of winners round k/2+1 in against the survivors.
func (l layout) nextLosersRound(losersRounds int) []Match {
	k := l.lastRound(LosersSide) + 1
	if k > losersRounds {
		return nil
	}

	if k == 1 {
		entering := l.round(WinnersSide, 1)
		next := make([]Match, 0, len(entering)/2)
		for i := 0; i+1 < len(entering); i += 2 {
			a, b := entering[i], entering[i+1]
			next = append(next, Match{
				Side:    LosersSide,
				Round:   1,
				Number:  len(next) + 1,
				Player1: a.Loser(),
				Player2: b.Loser(),
				Source1: a.Key(),
				Source2: b.Key(),
			})
		}
		return next
	}

	survivors := l.round(LosersSide, k-1)
	if k%2 == 1 {
		return pairAdjacent(LosersSide, k, survivors)
	}

	dropping := l.round(WinnersSide, k/2+1)
	if len(dropping) == 0 || len(dropping) != len(survivors) {
		return nil
	}

	feed := ReverseFeed(dropping)
	next := make([]Match, 0, len(survivors))
	for i := range survivors {
		next = append(next, Match{
			Side:    LosersSide,
			Round:   k,
			Number:  i + 1,
			Player1: feed[i].Loser(),
			Player2: survivors[i].Winner,
			Source1: feed[i].Key(),
			Source2: survivors[i].Key(),
		})
	}
	return next
}

// nextLink returns where the winner of m plays next, or nil after a final.
func nextLink(kind Kind, winnersRounds int, m *Match) *Link {
	adjacent := func(side Side) *Link {
		slot := 2
		if m.Number%2 != 0 {
			slot = 1
		}
		return &Link{Side: side, Round: m.Round + 1, Number: (m.Number + 1) / 2, Slot: slot}
	}

	switch m.Side {
	case WinnersSide:
		if m.Round < winnersRounds {
			return adjacent(WinnersSide)
		}
		if kind == Double {
			return &Link{Side: GrandFinalsSide, Round: 1, Number: 1, Slot: 1}
		}
	case LosersSide:
		losersRounds := 2 * (winnersRounds - 1)
		if m.Round == losersRounds {
			return &Link{Side: GrandFinalsSide, Round: 1, Number: 1, Slot: 2}
		}
		if (m.Round+1)%2 == 1 {
			return adjacent(LosersSide)
		}
		// Feed rounds keep the survivor in slot 2 of the same match number
		return &Link{Side: LosersSide, Round: m.Round + 1, Number: m.Number, Slot: 2}
	}
	return nil
}
