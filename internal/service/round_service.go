package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/krystlih/swu-league-manager-sub000/internal/bracket"
	"github.com/krystlih/swu-league-manager-sub000/internal/league"
	"github.com/krystlih/swu-league-manager-sub000/internal/standings"
	"github.com/krystlih/swu-league-manager-sub000/internal/swiss"
	"github.com/krystlih/swu-league-manager-sub000/internal/timer"
	"github.com/krystlih/swu-league-manager-sub000/internal/utils"
)

const (
	CodeRoundIncomplete = "round_incomplete"
	CodeNoRound         = "no_round"
)

// RoundResult is what a round change produced: the new round's matches, or
// the outcome of a league that just finished.
type RoundResult struct {
	League  *league.League `json:"league"`
	Round   int            `json:"round"`
	Matches []league.Match `json:"matches,omitempty"`

	Completed    bool   `json:"completed"`
	ChampionID   string `json:"championId,omitempty"`
	ChampionName string `json:"championName,omitempty"`
}

// GenerateNextRound pairs the next round once every match of the current one
// has been reported. Only one round change per league runs at a time.
func (s *LeagueService) GenerateNextRound(ctx context.Context, leagueID uuid.UUID) (*RoundResult, error) {
	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}

	st := s.state(leagueID)
	if !st.advance.TryLock() {
		return nil, stateError(l, CodeAdvanceInFlight, "a round of %q is already being generated", l.Name)
	}
	defer st.advance.Unlock()

	return s.generateLocked(ctx, st, leagueID)
}

// RepairCurrentRound throws the current round away and pairs the same round
// number again from the restored records.
func (s *LeagueService) RepairCurrentRound(ctx context.Context, leagueID uuid.UUID) (*RoundResult, error) {
	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}

	st := s.state(leagueID)
	if !st.advance.TryLock() {
		return nil, stateError(l, CodeAdvanceInFlight, "a round of %q is already being generated", l.Name)
	}
	defer st.advance.Unlock()

	// Reports only take st.mu, so the round is read and discarded under it
	st.mu.Lock()
	fail := func(err error) (*RoundResult, error) {
		st.mu.Unlock()
		return nil, err
	}
	if l, err = s.getLeague(ctx, leagueID); err != nil {
		return fail(err)
	}
	if !l.Status.Active() {
		return fail(stateError(l, CodeInvalidTransition, "only a running league can repair a round"))
	}
	if l.CurrentRound == 0 {
		return fail(validationError(l, CodeNoRound, "no round has been generated yet"))
	}

	round := l.CurrentRound
	l.CurrentRound = round - 1

	var discarded int
	err = s.repo.InTx(ctx, func(repo league.Repository) error {
		matches, err := repo.ListRoundMatches(ctx, l.ID, round)
		if err != nil {
			return fmt.Errorf("failed to list round %d matches: %w", round, err)
		}
		for i := range matches {
			if !matches[i].Completed {
				continue
			}
			if err := applyTallies(ctx, repo, &matches[i], -1); err != nil {
				return err
			}
		}
		if err := repo.DeleteRoundMatches(ctx, l.ID, round); err != nil {
			return fmt.Errorf("failed to delete round %d matches: %w", round, err)
		}
		if err := repo.DeleteRound(ctx, l.ID, round); err != nil {
			return fmt.Errorf("failed to delete round %d: %w", round, err)
		}
		discarded = len(matches)
		return repo.UpdateLeague(ctx, l)
	})
	// The records are rebuilt from storage whether or not the rollback stuck
	st.loaded = false
	st.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if s.scheduler != nil {
		s.scheduler.Cancel(timer.Key{LeagueID: l.ID, Round: round})
	}
	s.logger.Info("round discarded for repair", "league_id", l.ID, "round", round, "matches", discarded)

	return s.generateLocked(ctx, st, l.ID)
}

// GetRoundMatches lists the pairings of one generated round, table by table.
func (s *LeagueService) GetRoundMatches(ctx context.Context, leagueID uuid.UUID, round int) ([]league.Match, error) {
	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	if round < 1 || round > l.CurrentRound {
		return nil, validationError(l, CodeNoRound, "round %d has not been generated, the league is on round %d", round, l.CurrentRound)
	}

	matches, err := s.repo.ListRoundMatches(ctx, l.ID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list round %d matches: %w", round, err)
	}
	return matches, nil
}

// generateLocked builds and persists the next round. Callers hold st.advance.
func (s *LeagueService) generateLocked(ctx context.Context, st *leagueState, leagueID uuid.UUID) (*RoundResult, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	if !l.Status.Active() {
		return nil, stateError(l, CodeInvalidTransition, "rounds can only be generated while the league is running")
	}

	all, err := s.repo.ListMatches(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	if l.CurrentRound > 0 {
		for _, m := range all {
			if m.RoundNumber == l.CurrentRound && !m.Completed {
				return nil, validationError(l, CodeRoundIncomplete,
					"round %d is not complete yet, table %d has not been reported", l.CurrentRound, m.TableNumber)
			}
		}
	}

	if err := s.ensureLoaded(ctx, st, l.ID); err != nil {
		return nil, err
	}

	now := s.now()
	round := l.CurrentRound + 1
	var matches []league.Match

	switch {
	case l.CompetitionType.IsElimination() || l.Status == league.StatusTopCut:
		var champion *bracket.Entrant
		matches, champion, err = s.nextBracketRound(l, st, all, round, now)
		if err != nil {
			return nil, err
		}
		if champion != nil {
			return s.finish(ctx, l, champion)
		}

	case !l.SwissPhaseOver():
		matches = fromPairings(l.ID, round, swiss.Pair(st.active()), now)

	case l.CompetitionType == league.SwissWithTopCut:
		if err := transition(l, league.StatusTopCut); err != nil {
			return nil, err
		}
		if matches, err = s.seedTopCut(l, st, round, now); err != nil {
			return nil, err
		}

	default:
		return s.finish(ctx, l, nil)
	}

	l.CurrentRound = round
	err = s.repo.InTx(ctx, func(repo league.Repository) error {
		if err := repo.CreateRound(ctx, &league.Round{ID: uuid.New(), LeagueID: l.ID, RoundNumber: round, StartedAt: now}); err != nil {
			return fmt.Errorf("failed to create round %d: %w", round, err)
		}
		if err := repo.CreateMatches(ctx, matches); err != nil {
			return fmt.Errorf("failed to create round %d matches: %w", round, err)
		}
		for i := range matches {
			if matches[i].IsBye {
				if err := applyTallies(ctx, repo, &matches[i], 1); err != nil {
					return err
				}
			}
		}
		return repo.UpdateLeague(ctx, l)
	})
	if err != nil {
		return nil, err
	}

	for i := range matches {
		if matches[i].IsBye {
			applyRecords(st, &matches[i], 1)
		}
	}
	st.recompute()

	s.startTimer(l, round)
	s.logger.Info("round generated",
		"league_id", l.ID, "round", round, "status", l.Status, "matches", len(matches))

	return &RoundResult{League: l, Round: round, Matches: matches}, nil
}

// nextBracketRound seeds the bracket on its first round and advances it
// afterwards. A decided bracket yields its champion instead of matches.
func (s *LeagueService) nextBracketRound(l *league.League, st *leagueState, all []league.Match, round int, now time.Time) ([]league.Match, *bracket.Entrant, error) {
	existing := toBracketMatches(all)
	if len(existing) == 0 {
		if l.Status == league.StatusTopCut {
			matches, err := s.seedTopCut(l, st, round, now)
			return matches, nil, err
		}
		generated, err := bracket.SeedFirstRound(bracketKind(l), entrants(st.active()))
		if err != nil {
			return nil, nil, err
		}
		return fromBracketMatches(l.ID, round, generated, now), nil, nil
	}

	progress, err := bracket.NextRound(bracketKind(l), existing)
	if err != nil {
		return nil, nil, err
	}
	if progress.Champion != nil {
		return nil, progress.Champion, nil
	}
	return fromBracketMatches(l.ID, round, progress.Matches, now), nil, nil
}

// seedTopCut seeds the best non-dropped finishers of the Swiss phase into a
// single elimination bracket, rank 1 as seed 1.
func (s *LeagueService) seedTopCut(l *league.League, st *leagueState, round int, now time.Time) ([]league.Match, error) {
	size := utils.OrZero(l.TopCutSize)
	top := standings.Top(standings.Compute(st.records), size)
	if len(top) < size {
		return nil, validationError(l, CodeNotEnoughPlayers,
			"a top cut of %d needs %d remaining players, have %d", size, size, len(top))
	}

	seeded := make([]bracket.Entrant, 0, len(top))
	for _, e := range top {
		seeded = append(seeded, bracket.Entrant{ID: e.PlayerID, Name: e.PlayerName})
	}
	generated, err := bracket.SeedFirstRound(bracket.Single, seeded)
	if err != nil {
		return nil, err
	}
	return fromBracketMatches(l.ID, round, generated, now), nil
}

func (s *LeagueService) finish(ctx context.Context, l *league.League, champion *bracket.Entrant) (*RoundResult, error) {
	if err := s.complete(ctx, l); err != nil {
		return nil, err
	}
	result := &RoundResult{League: l, Round: l.CurrentRound, Completed: true}
	if champion != nil {
		result.ChampionID = champion.ID
		result.ChampionName = champion.Name
	}
	return result, nil
}

func (s *LeagueService) startTimer(l *league.League, round int) {
	if s.scheduler == nil || l.RoundTimerMinutes == nil || l.AnnouncementChannelID == nil {
		return
	}
	s.scheduler.Start(
		timer.Key{LeagueID: l.ID, Round: round},
		timer.Target{ScopeID: l.GuildID, DestinationID: *l.AnnouncementChannelID},
		time.Duration(*l.RoundTimerMinutes)*time.Minute,
	)
}
