package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/krystlih/swu-league-manager-sub000/internal/apperr"
	"github.com/krystlih/swu-league-manager-sub000/internal/bracket"
	"github.com/krystlih/swu-league-manager-sub000/internal/league"
	"github.com/krystlih/swu-league-manager-sub000/internal/swiss"
	"github.com/krystlih/swu-league-manager-sub000/internal/timer"
	"github.com/krystlih/swu-league-manager-sub000/internal/utils"
)

const (
	CodeInvalidResult   = "invalid_result"
	CodeAlreadyReported = "already_reported"
	CodeNotReported     = "not_reported"
	CodeResultLocked    = "result_locked"
	CodeDropRefused     = "drop_refused"
	CodeAlreadyDropped  = "already_dropped"
)

// Result is a match score in games.
type Result struct {
	Player1Wins int `json:"player1Wins"`
	Player2Wins int `json:"player2Wins"`
	Draws       int `json:"draws"`
}

func validateResult(m *league.Match, r Result) error {
	switch {
	case m.IsBye:
		return apperr.Validation(CodeInvalidResult, "byes are scored automatically")
	case r.Player1Wins < 0 || r.Player2Wins < 0 || r.Draws < 0:
		return apperr.Validation(CodeInvalidResult, "game counts cannot be negative")
	case r.Player1Wins+r.Player2Wins+r.Draws == 0:
		return apperr.Validation(CodeInvalidResult, "a result needs at least one game")
	case m.IsBracket() && r.Player1Wins == r.Player2Wins:
		return apperr.Validation(CodeInvalidResult, "elimination matches cannot end in a draw")
	}
	return nil
}

// setResult records the score. The player with more game wins takes the
// match, equal game wins is a draw.
func setResult(m *league.Match, r Result, at time.Time) {
	m.Player1Wins = r.Player1Wins
	m.Player2Wins = r.Player2Wins
	m.Draws = r.Draws
	m.Completed = true
	m.ReportedAt = utils.Ptr(at)

	switch {
	case r.Player1Wins > r.Player2Wins:
		m.WinnerID = utils.Ptr(m.Player1ID)
	case r.Player2Wins > r.Player1Wins:
		m.WinnerID = utils.Ptr(utils.OrZero(m.Player2ID))
	default:
		m.WinnerID = nil
	}
}

type playerOutcome struct {
	playerID string
	outcome  swiss.Outcome
}

func outcomes(m *league.Match) []playerOutcome {
	if !m.Completed {
		return nil
	}
	if m.IsBye || m.Player2ID == nil {
		return []playerOutcome{{m.Player1ID, swiss.Win}}
	}

	p1, p2 := m.Player1ID, *m.Player2ID
	switch {
	case m.WinnerID == nil:
		return []playerOutcome{{p1, swiss.Draw}, {p2, swiss.Draw}}
	case *m.WinnerID == p1:
		return []playerOutcome{{p1, swiss.Win}, {p2, swiss.Loss}}
	default:
		return []playerOutcome{{p1, swiss.Loss}, {p2, swiss.Win}}
	}
}

// applyTallies adds (delta 1) or reverses (delta -1) a match on the persisted
// registration tallies.
func applyTallies(ctx context.Context, repo league.Repository, m *league.Match, delta int) error {
	for _, po := range outcomes(m) {
		reg, err := repo.GetRegistration(ctx, m.LeagueID, po.playerID)
		if err != nil {
			return fmt.Errorf("failed to get registration of %s: %w", po.playerID, err)
		}
		switch po.outcome {
		case swiss.Win:
			reg.Wins += delta
		case swiss.Loss:
			reg.Losses += delta
		case swiss.Draw:
			reg.Draws += delta
		}
		if err := repo.UpdateRegistration(ctx, reg); err != nil {
			return fmt.Errorf("failed to update tallies of %s: %w", po.playerID, err)
		}
	}
	return nil
}

// applyRecords mirrors applyTallies on the in-memory records. Reported
// opponents are remembered for pairing.
func applyRecords(st *leagueState, m *league.Match, delta int) {
	for _, po := range outcomes(m) {
		if r := st.byID[po.playerID]; r != nil {
			r.Apply(po.outcome, delta)
		}
	}
	if delta > 0 && !m.IsBye && m.Player2ID != nil {
		if r := st.byID[m.Player1ID]; r != nil {
			r.AddOpponent(*m.Player2ID)
		}
		if r := st.byID[*m.Player2ID]; r != nil {
			r.AddOpponent(m.Player1ID)
		}
	}
}

func (s *LeagueService) getMatch(ctx context.Context, repo league.Repository, id uuid.UUID) (*league.Match, error) {
	m, err := repo.GetMatch(ctx, id)
	if errors.Is(err, league.ErrNotFound) {
		return nil, apperr.NotFound(CodeMatchNotFound, "match %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match %s: %w", id, err)
	}
	return m, nil
}

// lockMatch loads a match and its running league and takes the league's
// record lock. The returned unlock must be called.
func (s *LeagueService) lockMatch(ctx context.Context, matchID uuid.UUID) (*league.Match, *league.League, *leagueState, func(), error) {
	m, err := s.getMatch(ctx, s.repo, matchID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	l, err := s.getLeague(ctx, m.LeagueID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if !l.Status.Active() {
		return nil, nil, nil, nil, stateError(l, CodeInvalidTransition, "results can only change while the league is running")
	}

	st := s.state(l.ID)
	st.mu.Lock()
	fail := func(err error) (*league.Match, *league.League, *leagueState, func(), error) {
		st.mu.Unlock()
		return nil, nil, nil, nil, err
	}

	// Re-read under the lock so two reports of one match cannot both pass
	if l, err = s.getLeague(ctx, m.LeagueID); err != nil {
		return fail(err)
	}
	if !l.Status.Active() {
		return fail(stateError(l, CodeInvalidTransition, "results can only change while the league is running"))
	}
	if m, err = s.getMatch(ctx, s.repo, matchID); err != nil {
		return fail(err)
	}
	if err := s.ensureLoaded(ctx, st, l.ID); err != nil {
		return fail(err)
	}
	return m, l, st, st.mu.Unlock, nil
}

// ReportMatchResult scores an unreported match and re-ranks the league.
func (s *LeagueService) ReportMatchResult(ctx context.Context, matchID uuid.UUID, r Result) (*league.Match, error) {
	m, l, st, unlock, err := s.lockMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := validateResult(m, r); err != nil {
		return nil, err
	}
	if m.Completed {
		return nil, validationError(l, CodeAlreadyReported,
			"table %d of round %d has already been reported, ask the league creator to modify it", m.TableNumber, m.RoundNumber)
	}

	setResult(m, r, s.now())
	err = s.repo.InTx(ctx, func(repo league.Repository) error {
		if err := repo.UpdateMatch(ctx, m); err != nil {
			return fmt.Errorf("failed to update match: %w", err)
		}
		return applyTallies(ctx, repo, m, 1)
	})
	if err != nil {
		return nil, err
	}

	applyRecords(st, m, 1)
	st.recompute()

	s.logger.Info("match reported",
		"league_id", l.ID, "round", m.RoundNumber, "table", m.TableNumber, "winner_id", utils.OrZero(m.WinnerID))

	if err := s.afterResult(ctx, l, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ModifyMatchResult lets the league creator correct a reported match. A
// bracket result is locked once a later bracket match was built from it.
func (s *LeagueService) ModifyMatchResult(ctx context.Context, actorID string, matchID uuid.UUID, r Result) (*league.Match, error) {
	m, l, st, unlock, err := s.lockMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := requireCreator(l, actorID); err != nil {
		return nil, err
	}
	if !m.Completed {
		return nil, validationError(l, CodeNotReported, "table %d of round %d has not been reported yet", m.TableNumber, m.RoundNumber)
	}
	if err := validateResult(m, r); err != nil {
		return nil, err
	}

	if m.IsBracket() {
		all, err := s.repo.ListMatches(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list matches: %w", err)
		}
		g, err := bracket.NewProgressionGraph(toBracketMatches(all))
		if err != nil {
			return nil, err
		}
		if key := bracketKey(m); !g.Editable(key) {
			return nil, stateError(l, CodeResultLocked, "bracket match %s already decided who plays next", key)
		}
	}

	previous := *m
	setResult(m, r, s.now())
	err = s.repo.InTx(ctx, func(repo league.Repository) error {
		if err := applyTallies(ctx, repo, &previous, -1); err != nil {
			return err
		}
		if err := repo.UpdateMatch(ctx, m); err != nil {
			return fmt.Errorf("failed to update match: %w", err)
		}
		return applyTallies(ctx, repo, m, 1)
	})
	if err != nil {
		return nil, err
	}

	applyRecords(st, &previous, -1)
	applyRecords(st, m, 1)
	st.recompute()

	s.logger.Info("match result modified",
		"league_id", l.ID, "round", m.RoundNumber, "table", m.TableNumber, "actor_id", actorID,
		"previous_winner_id", utils.OrZero(previous.WinnerID), "winner_id", utils.OrZero(m.WinnerID))

	if err := s.afterResult(ctx, l, m); err != nil {
		return nil, err
	}
	return m, nil
}

// afterResult stops the round timer once the round is fully reported and ends
// the league when this result decided it.
func (s *LeagueService) afterResult(ctx context.Context, l *league.League, m *league.Match) error {
	if m.RoundNumber != l.CurrentRound {
		return nil
	}
	all, err := s.repo.ListMatches(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("failed to list matches: %w", err)
	}
	for _, other := range all {
		if other.RoundNumber == l.CurrentRound && !other.Completed {
			return nil
		}
	}

	if s.scheduler != nil {
		s.scheduler.Cancel(timer.Key{LeagueID: l.ID, Round: l.CurrentRound})
	}

	switch {
	case m.IsBracket():
		champion, ok := bracket.Champion(bracketKind(l), toBracketMatches(all))
		if !ok {
			return nil
		}
		s.logger.Info("bracket decided", "league_id", l.ID, "champion_id", champion.ID)
	case l.CompetitionType == league.Swiss && l.SwissPhaseOver():
	default:
		return nil
	}
	return s.complete(ctx, l)
}

// DropPlayer withdraws a player from future pairings. Their results stay in
// the standings.
func (s *LeagueService) DropPlayer(ctx context.Context, leagueID uuid.UUID, playerID string) (*league.Registration, error) {
	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	switch {
	case l.Status.Terminal():
		return nil, stateError(l, CodeInvalidTransition, "league %q has already ended", l.Name)
	case l.Status == league.StatusTopCut || (l.Status == league.StatusInProgress && l.CompetitionType.IsElimination()):
		return nil, stateError(l, CodeDropRefused, "players cannot drop out of an elimination bracket")
	}

	var st *leagueState
	if l.Status.Active() {
		st = s.state(l.ID)
		st.mu.Lock()
		defer st.mu.Unlock()
	}

	reg, err := s.repo.GetRegistration(ctx, l.ID, playerID)
	if errors.Is(err, league.ErrNotFound) {
		return nil, apperr.NotFound(CodePlayerNotFound, "%s is not registered for %q", playerID, l.Name).
			WithLeague(l.ID, string(l.Status))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	if !reg.Active {
		return nil, validationError(l, CodeAlreadyDropped, "%s has already dropped", reg.PlayerName)
	}

	reg.Active = false
	if err := s.repo.UpdateRegistration(ctx, reg); err != nil {
		return nil, fmt.Errorf("failed to drop player: %w", err)
	}

	if st != nil {
		if err := s.ensureLoaded(ctx, st, l.ID); err != nil {
			return nil, err
		}
		if r := st.byID[playerID]; r != nil {
			r.Dropped = true
		}
		st.recompute()
	}

	s.logger.Info("player dropped", "league_id", l.ID, "player_id", playerID, "round", l.CurrentRound)
	return reg, nil
}
