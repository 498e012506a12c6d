package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/krystlih/swu-league-manager-sub000/internal/league"
)

const (
	createRegistrationQuery = `
		INSERT INTO registrations (id, league_id, player_id, player_name, seed, active, wins, losses, draws, created_at)
		VALUES (:id, :league_id, :player_id, :player_name, :seed, :active, :wins, :losses, :draws, :created_at)
	`
	getRegistrationQuery    = "SELECT * FROM registrations WHERE league_id = ? AND player_id = ?"
	listRegistrationsQuery  = "SELECT * FROM registrations WHERE league_id = ? ORDER BY seed ASC"
	updateRegistrationQuery = `
		UPDATE registrations SET
			player_name = :player_name,
			active = :active,
			wins = :wins,
			losses = :losses,
			draws = :draws
		WHERE id = :id
	`

	createRoundQuery = `
		INSERT INTO rounds (id, league_id, round_number, started_at)
		VALUES (:id, :league_id, :round_number, :started_at)
	`
	deleteRoundQuery = "DELETE FROM rounds WHERE league_id = ? AND round_number = ?"

	createMatchesQuery = `
		INSERT INTO matches (id, league_id, round_number, table_number, player1_id, player1_name, player2_id, player2_name,
			is_bye, player1_wins, player2_wins, draws, winner_id, completed, reported_at,
			bracket_side, bracket_round, match_number, source1, source2, winner_next_match, winner_next_slot, created_at)
		VALUES (:id, :league_id, :round_number, :table_number, :player1_id, :player1_name, :player2_id, :player2_name,
			:is_bye, :player1_wins, :player2_wins, :draws, :winner_id, :completed, :reported_at,
			:bracket_side, :bracket_round, :match_number, :source1, :source2, :winner_next_match, :winner_next_slot, :created_at)
	`
	getMatchQuery         = "SELECT * FROM matches WHERE id = ?"
	listMatchesQuery      = "SELECT * FROM matches WHERE league_id = ? ORDER BY round_number ASC, table_number ASC"
	listRoundMatchesQuery = "SELECT * FROM matches WHERE league_id = ? AND round_number = ? ORDER BY table_number ASC"
	updateMatchQuery      = `
		UPDATE matches SET
			player1_wins = :player1_wins,
			player2_wins = :player2_wins,
			draws = :draws,
			winner_id = :winner_id,
			completed = :completed,
			reported_at = :reported_at
		WHERE id = :id
	`
	deleteRoundMatchesQuery = "DELETE FROM matches WHERE league_id = ? AND round_number = ?"
)

func (s *LeagueStore) CreateRegistration(ctx context.Context, r *league.Registration) error {
	_, err := sqlx.NamedExecContext(ctx, s.exec, createRegistrationQuery, r)
	return err
}

func (s *LeagueStore) GetRegistration(ctx context.Context, leagueID uuid.UUID, playerID string) (*league.Registration, error) {
	var r league.Registration
	if err := s.get(ctx, &r, getRegistrationQuery, leagueID, playerID); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *LeagueStore) ListRegistrations(ctx context.Context, leagueID uuid.UUID) ([]league.Registration, error) {
	var registrations []league.Registration
	err := s.selectAll(ctx, &registrations, listRegistrationsQuery, leagueID)
	return registrations, err
}

func (s *LeagueStore) UpdateRegistration(ctx context.Context, r *league.Registration) error {
	return s.namedExec1(ctx, updateRegistrationQuery, r)
}

func (s *LeagueStore) CreateRound(ctx context.Context, r *league.Round) error {
	_, err := sqlx.NamedExecContext(ctx, s.exec, createRoundQuery, r)
	return err
}

func (s *LeagueStore) DeleteRound(ctx context.Context, leagueID uuid.UUID, roundNumber int) error {
	_, err := s.exec.ExecContext(ctx, s.exec.Rebind(deleteRoundQuery), leagueID, roundNumber)
	return err
}

func (s *LeagueStore) CreateMatches(ctx context.Context, matches []league.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, s.exec, createMatchesQuery, matches)
	return err
}

func (s *LeagueStore) GetMatch(ctx context.Context, id uuid.UUID) (*league.Match, error) {
	var m league.Match
	if err := s.get(ctx, &m, getMatchQuery, id); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *LeagueStore) ListMatches(ctx context.Context, leagueID uuid.UUID) ([]league.Match, error) {
	var matches []league.Match
	err := s.selectAll(ctx, &matches, listMatchesQuery, leagueID)
	return matches, err
}

func (s *LeagueStore) ListRoundMatches(ctx context.Context, leagueID uuid.UUID, roundNumber int) ([]league.Match, error) {
	var matches []league.Match
	err := s.selectAll(ctx, &matches, listRoundMatchesQuery, leagueID, roundNumber)
	return matches, err
}

func (s *LeagueStore) UpdateMatch(ctx context.Context, m *league.Match) error {
	return s.namedExec1(ctx, updateMatchQuery, m)
}

func (s *LeagueStore) DeleteRoundMatches(ctx context.Context, leagueID uuid.UUID, roundNumber int) error {
	_, err := s.exec.ExecContext(ctx, s.exec.Rebind(deleteRoundMatchesQuery), leagueID, roundNumber)
	return err
}
