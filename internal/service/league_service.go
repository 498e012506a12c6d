package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/krystlih/swu-league-manager-sub000/internal/apperr"
	"github.com/krystlih/swu-league-manager-sub000/internal/bracket"
	"github.com/krystlih/swu-league-manager-sub000/internal/league"
	"github.com/krystlih/swu-league-manager-sub000/internal/standings"
	"github.com/krystlih/swu-league-manager-sub000/internal/swiss"
	"github.com/krystlih/swu-league-manager-sub000/internal/timer"
	"github.com/krystlih/swu-league-manager-sub000/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	CodeInvalidLeague      = "invalid_league"
	CodeLeagueExists       = "league_exists"
	CodeLeagueNotFound     = "league_not_found"
	CodeMatchNotFound      = "match_not_found"
	CodePlayerNotFound     = "player_not_found"
	CodeRegistrationClosed = "registration_closed"
	CodeAlreadyRegistered  = "already_registered"
	CodeNotEnoughPlayers   = "not_enough_players"
	CodeInvalidTransition  = "invalid_transition"
	CodeAdvanceInFlight    = "advance_in_flight"
	CodeNotCreator         = "not_creator"
)

// rebuildConcurrency bounds how many leagues are reloaded at once on startup.
const rebuildConcurrency = 4

var topCutSizes = []int{2, 4, 8}

// leagueState is the in-memory side of one running league. advance serializes
// round generation and repair, mu guards the records.
type leagueState struct {
	advance sync.Mutex

	mu        sync.Mutex
	loaded    bool
	records   []*swiss.PlayerRecord
	byID      map[string]*swiss.PlayerRecord
	standings []standings.Entry
}

func (st *leagueState) setRecords(records []*swiss.PlayerRecord) {
	st.records = records
	st.byID = make(map[string]*swiss.PlayerRecord, len(records))
	for _, r := range records {
		st.byID[r.PlayerID] = r
	}
	st.loaded = true
	st.recompute()
}

func (st *leagueState) recompute() {
	st.standings = standings.Compute(st.records)
}

// active returns the records still eligible for pairing, in seed order.
func (st *leagueState) active() []*swiss.PlayerRecord {
	out := make([]*swiss.PlayerRecord, 0, len(st.records))
	for _, r := range st.records {
		if !r.Dropped {
			out = append(out, r)
		}
	}
	return out
}

// LeagueService drives every league through its lifecycle. It owns the
// in-memory player records of running leagues and hands round timers to the
// scheduler.
type LeagueService struct {
	repo      league.Repository
	scheduler *timer.Scheduler
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	leagues map[uuid.UUID]*leagueState
}

func NewLeagueService(repo league.Repository, scheduler *timer.Scheduler, logger *slog.Logger) *LeagueService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeagueService{
		repo:      repo,
		scheduler: scheduler,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		leagues:   make(map[uuid.UUID]*leagueState),
	}
}

func (s *LeagueService) state(id uuid.UUID) *leagueState {
	s.mu.RLock()
	st, ok := s.leagues[id]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.leagues[id]; ok {
		return st
	}
	st = &leagueState{}
	s.leagues[id] = st
	return st
}

func (s *LeagueService) forget(id uuid.UUID) {
	s.mu.Lock()
	delete(s.leagues, id)
	s.mu.Unlock()
}

// ensureLoaded rebuilds the records from storage the first time a league is
// touched after a restart or a repair. Callers hold st.mu.
func (s *LeagueService) ensureLoaded(ctx context.Context, st *leagueState, leagueID uuid.UUID) error {
	if st.loaded {
		return nil
	}
	records, err := s.loadRecords(ctx, leagueID)
	if err != nil {
		return err
	}
	st.setRecords(records)
	return nil
}

// loadRecords reads registrations and matches concurrently and folds them into
// player records.
func (s *LeagueService) loadRecords(ctx context.Context, leagueID uuid.UUID) ([]*swiss.PlayerRecord, error) {
	var (
		registrations []league.Registration
		matches       []league.Match
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		registrations, err = s.repo.ListRegistrations(gctx, leagueID)
		if err != nil {
			return fmt.Errorf("failed to load registrations: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		matches, err = s.repo.ListMatches(gctx, leagueID)
		if err != nil {
			return fmt.Errorf("failed to load matches: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return buildRecords(registrations, matches), nil
}

// buildRecords restores tallies from the registrations and opponent history
// from completed matches. Registrations that never took part are left out.
func buildRecords(registrations []league.Registration, matches []league.Match) []*swiss.PlayerRecord {
	played := make(map[string]bool)
	for _, m := range matches {
		played[m.Player1ID] = true
		if m.Player2ID != nil {
			played[*m.Player2ID] = true
		}
	}

	records := make([]*swiss.PlayerRecord, 0, len(registrations))
	byID := make(map[string]*swiss.PlayerRecord, len(registrations))
	for _, reg := range registrations {
		if !reg.Active && !played[reg.PlayerID] {
			continue
		}
		r := swiss.NewPlayerRecord(reg.PlayerID, reg.PlayerName)
		r.Wins, r.Losses, r.Draws = reg.Wins, reg.Losses, reg.Draws
		r.Dropped = !reg.Active
		records = append(records, r)
		byID[r.PlayerID] = r
	}

	for _, m := range matches {
		if !m.Completed || m.IsBye || m.Player2ID == nil {
			continue
		}
		p1, p2 := byID[m.Player1ID], byID[*m.Player2ID]
		if p1 != nil {
			p1.AddOpponent(*m.Player2ID)
		}
		if p2 != nil {
			p2.AddOpponent(m.Player1ID)
		}
	}

	swiss.UpdateTiebreakers(records)
	return records
}

func (s *LeagueService) getLeague(ctx context.Context, id uuid.UUID) (*league.League, error) {
	l, err := s.repo.GetLeague(ctx, id)
	if errors.Is(err, league.ErrNotFound) {
		return nil, apperr.NotFound(CodeLeagueNotFound, "league %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get league %s: %w", id, err)
	}
	return l, nil
}

func stateError(l *league.League, code, format string, args ...any) error {
	return apperr.State(code, format, args...).WithLeague(l.ID, string(l.Status))
}

func validationError(l *league.League, code, format string, args ...any) error {
	return apperr.Validation(code, format, args...).WithLeague(l.ID, string(l.Status))
}

func requireCreator(l *league.League, actorID string) error {
	if actorID != l.CreatorID {
		return apperr.Permission(CodeNotCreator, "only the league creator can do this").
			WithLeague(l.ID, string(l.Status))
	}
	return nil
}

func transition(l *league.League, to league.Status) error {
	if !league.CanTransition(l.Status, to) {
		return stateError(l, CodeInvalidTransition, "league %q cannot move from %s to %s", l.Name, l.Status, to)
	}
	l.Status = to
	return nil
}

// defaultSwissRounds is ceil(log2(players)).
func defaultSwissRounds(players int) int {
	return bits.Len(uint(players - 1))
}

type CreateLeagueParams struct {
	GuildID         string
	CreatorID       string
	Name            string
	Format          string
	CompetitionType league.CompetitionType

	TotalRounds           *int
	RoundTimerMinutes     *int
	TopCutSize            *int
	AnnouncementChannelID string
}

func (p CreateLeagueParams) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation(CodeInvalidLeague, "league name must not be empty")
	}
	if strings.TrimSpace(p.CreatorID) == "" {
		return apperr.Validation(CodeInvalidLeague, "league creator must be set")
	}
	if !p.CompetitionType.Valid() {
		return apperr.Validation(CodeInvalidLeague, "unknown competition type %q", p.CompetitionType)
	}

	if p.CompetitionType == league.SwissWithTopCut {
		if p.TopCutSize == nil || !slices.Contains(topCutSizes, *p.TopCutSize) {
			return apperr.Validation(CodeInvalidLeague, "a top cut of 2, 4 or 8 players is required")
		}
	} else if p.TopCutSize != nil {
		return apperr.Validation(CodeInvalidLeague, "a top cut only applies to %s leagues", league.SwissWithTopCut)
	}

	if p.TotalRounds != nil {
		if !p.CompetitionType.IsSwiss() {
			return apperr.Validation(CodeInvalidLeague, "the number of rounds of an elimination bracket follows from its size")
		}
		if *p.TotalRounds <= 0 {
			return apperr.Validation(CodeInvalidLeague, "total rounds must be positive, got %d", *p.TotalRounds)
		}
	}
	if p.RoundTimerMinutes != nil && *p.RoundTimerMinutes <= 0 {
		return apperr.Validation(CodeInvalidLeague, "round timer must be positive, got %d minutes", *p.RoundTimerMinutes)
	}
	return nil
}

func (s *LeagueService) CreateLeague(ctx context.Context, p CreateLeagueParams) (*league.League, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(p.Name)

	_, err := s.repo.GetLeagueByName(ctx, p.GuildID, name)
	switch {
	case err == nil:
		return nil, apperr.Validation(CodeLeagueExists, "a league named %q already exists", name)
	case !errors.Is(err, league.ErrNotFound):
		return nil, fmt.Errorf("failed to check league name: %w", err)
	}

	l := &league.League{
		ID:                    uuid.New(),
		GuildID:               p.GuildID,
		CreatorID:             p.CreatorID,
		Name:                  name,
		Format:                strings.TrimSpace(p.Format),
		CompetitionType:       p.CompetitionType,
		Status:                league.StatusRegistration,
		TotalRounds:           p.TotalRounds,
		RoundTimerMinutes:     p.RoundTimerMinutes,
		TopCutSize:            p.TopCutSize,
		AnnouncementChannelID: utils.StringOrNil(p.AnnouncementChannelID),
		CreatedAt:             s.now(),
	}
	if err := s.repo.CreateLeague(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create league: %w", err)
	}

	s.logger.Info("league created", "league_id", l.ID, "name", l.Name, "competition_type", l.CompetitionType)
	return l, nil
}

// RegisterPlayer signs a player up while registration is open. A player who
// dropped before the start is re-activated under their original seed.
func (s *LeagueService) RegisterPlayer(ctx context.Context, leagueID uuid.UUID, playerID, playerName string) (*league.Registration, error) {
	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	if l.Status != league.StatusRegistration {
		return nil, validationError(l, CodeRegistrationClosed, "registration for %q is closed", l.Name)
	}
	if strings.TrimSpace(playerID) == "" {
		return nil, validationError(l, CodePlayerNotFound, "player id must not be empty")
	}
	if strings.TrimSpace(playerName) == "" {
		playerName = playerID
	}

	var reg *league.Registration
	err = s.repo.InTx(ctx, func(repo league.Repository) error {
		existing, err := repo.GetRegistration(ctx, leagueID, playerID)
		switch {
		case err == nil:
			if existing.Active {
				return validationError(l, CodeAlreadyRegistered, "%s is already registered for %q", existing.PlayerName, l.Name)
			}
			existing.Active = true
			existing.PlayerName = playerName
			reg = existing
			return repo.UpdateRegistration(ctx, existing)
		case !errors.Is(err, league.ErrNotFound):
			return fmt.Errorf("failed to get registration: %w", err)
		}

		registrations, err := repo.ListRegistrations(ctx, leagueID)
		if err != nil {
			return fmt.Errorf("failed to list registrations: %w", err)
		}
		reg = &league.Registration{
			ID:         uuid.New(),
			LeagueID:   leagueID,
			PlayerID:   playerID,
			PlayerName: playerName,
			Seed:       len(registrations) + 1,
			Active:     true,
			CreatedAt:  s.now(),
		}
		return repo.CreateRegistration(ctx, reg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("player registered", "league_id", leagueID, "player_id", playerID, "seed", reg.Seed)
	return reg, nil
}

// StartLeague closes registration and snapshots the active players.
func (s *LeagueService) StartLeague(ctx context.Context, leagueID uuid.UUID) (*league.League, error) {
	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}

	st := s.state(leagueID)
	if !st.advance.TryLock() {
		return nil, stateError(l, CodeAdvanceInFlight, "league %q is already being changed", l.Name)
	}
	defer st.advance.Unlock()

	if l, err = s.getLeague(ctx, leagueID); err != nil {
		return nil, err
	}
	if l.Status != league.StatusRegistration {
		return nil, stateError(l, CodeInvalidTransition, "league %q has already started", l.Name)
	}

	registrations, err := s.repo.ListRegistrations(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	records := make([]*swiss.PlayerRecord, 0, len(registrations))
	for _, reg := range registrations {
		if reg.Active {
			records = append(records, swiss.NewPlayerRecord(reg.PlayerID, reg.PlayerName))
		}
	}

	players := len(records)
	if players < 2 {
		return nil, validationError(l, CodeNotEnoughPlayers, "at least 2 active players are needed to start, have %d", players)
	}
	if l.CompetitionType.IsElimination() {
		if err := bracket.ValidateSize(players); err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) {
				return nil, appErr.WithLeague(l.ID, string(l.Status))
			}
			return nil, err
		}
	}
	if l.CompetitionType == league.SwissWithTopCut && players < utils.OrZero(l.TopCutSize) {
		return nil, validationError(l, CodeNotEnoughPlayers,
			"a top cut of %d needs at least %d players, have %d", *l.TopCutSize, *l.TopCutSize, players)
	}
	if l.CompetitionType.IsSwiss() && l.TotalRounds == nil {
		l.TotalRounds = utils.Ptr(defaultSwissRounds(players))
	}

	if err := transition(l, league.StatusInProgress); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLeague(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to start league: %w", err)
	}

	st.mu.Lock()
	st.setRecords(records)
	st.mu.Unlock()

	s.logger.Info("league started", "league_id", l.ID, "players", players, "total_rounds", utils.OrZero(l.TotalRounds))
	return l, nil
}

func (s *LeagueService) GetLeague(ctx context.Context, leagueID uuid.UUID) (*league.League, error) {
	return s.getLeague(ctx, leagueID)
}

// GetStandings ranks every player of the league. Finished leagues are ranked
// from storage, which holds their frozen tallies.
func (s *LeagueService) GetStandings(ctx context.Context, leagueID uuid.UUID) ([]standings.Entry, error) {
	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}

	if !l.Status.Active() {
		records, err := s.loadRecords(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		return standings.Compute(records), nil
	}

	st := s.state(l.ID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := s.ensureLoaded(ctx, st, l.ID); err != nil {
		return nil, err
	}
	return slices.Clone(st.standings), nil
}

// complete moves the league to COMPLETED and drops its in-memory state. The
// persisted tallies become the historical standings.
func (s *LeagueService) complete(ctx context.Context, l *league.League) error {
	if err := transition(l, league.StatusCompleted); err != nil {
		return err
	}
	if err := s.repo.UpdateLeague(ctx, l); err != nil {
		return fmt.Errorf("failed to complete league: %w", err)
	}
	s.release(l.ID)

	s.logger.Info("league completed", "league_id", l.ID, "round", l.CurrentRound)
	return nil
}

func (s *LeagueService) release(leagueID uuid.UUID) {
	if s.scheduler != nil {
		s.scheduler.CancelLeague(leagueID)
	}
	s.forget(leagueID)
}

func (s *LeagueService) EndTournament(ctx context.Context, actorID string, leagueID uuid.UUID) (*league.League, error) {
	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	if err := requireCreator(l, actorID); err != nil {
		return nil, err
	}

	st := s.state(leagueID)
	st.advance.Lock()
	defer st.advance.Unlock()

	if l, err = s.getLeague(ctx, leagueID); err != nil {
		return nil, err
	}
	if err := s.complete(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// CancelLeague stops a league that has not finished. Its rows are kept.
func (s *LeagueService) CancelLeague(ctx context.Context, actorID string, leagueID uuid.UUID) (*league.League, error) {
	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	if err := requireCreator(l, actorID); err != nil {
		return nil, err
	}

	st := s.state(leagueID)
	st.advance.Lock()
	defer st.advance.Unlock()

	if l, err = s.getLeague(ctx, leagueID); err != nil {
		return nil, err
	}
	if err := transition(l, league.StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLeague(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to cancel league: %w", err)
	}
	s.release(l.ID)

	s.logger.Info("league cancelled", "league_id", l.ID, "round", l.CurrentRound)
	return l, nil
}

// DeleteLeague removes the league and everything recorded for it.
func (s *LeagueService) DeleteLeague(ctx context.Context, actorID string, leagueID uuid.UUID) error {
	l, err := s.getLeague(ctx, leagueID)
	if err != nil {
		return err
	}
	if err := requireCreator(l, actorID); err != nil {
		return err
	}

	st := s.state(leagueID)
	st.advance.Lock()
	defer st.advance.Unlock()

	s.release(l.ID)
	if err := s.repo.DeleteLeague(ctx, l.ID); err != nil {
		if errors.Is(err, league.ErrNotFound) {
			return apperr.NotFound(CodeLeagueNotFound, "league %s does not exist", leagueID)
		}
		return fmt.Errorf("failed to delete league: %w", err)
	}

	s.logger.Info("league deleted", "league_id", l.ID, "name", l.Name)
	return nil
}

// Rebuild restores the records of every running league from storage. It must
// run before the service takes commands after a restart.
func (s *LeagueService) Rebuild(ctx context.Context) error {
	leagues, err := s.repo.ListLeaguesByStatus(ctx, league.StatusInProgress, league.StatusTopCut)
	if err != nil {
		return fmt.Errorf("failed to list running leagues: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildConcurrency)
	for _, l := range leagues {
		l := l
		g.Go(func() error {
			records, err := s.loadRecords(gctx, l.ID)
			if err != nil {
				return fmt.Errorf("failed to rebuild league %s: %w", l.ID, err)
			}

			st := s.state(l.ID)
			st.mu.Lock()
			st.setRecords(records)
			st.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("leagues rebuilt", "count", len(leagues))
	return nil
}
