package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/krystlih/swu-league-manager-sub000/internal/league"
)

const (
	createLeagueQuery = `
		INSERT INTO leagues (id, guild_id, creator_id, name, format, competition_type, status, current_round,
			total_rounds, round_timer_minutes, top_cut_size, announcement_channel_id, created_at)
		VALUES (:id, :guild_id, :creator_id, :name, :format, :competition_type, :status, :current_round,
			:total_rounds, :round_timer_minutes, :top_cut_size, :announcement_channel_id, :created_at)
	`
	getLeagueQuery       = "SELECT * FROM leagues WHERE id = ?"
	getLeagueByNameQuery = "SELECT * FROM leagues WHERE guild_id = ? AND name = ?"
	listLeaguesQuery     = "SELECT * FROM leagues WHERE status IN (?) ORDER BY created_at ASC"
	updateLeagueQuery    = `
		UPDATE leagues SET
			status = :status,
			current_round = :current_round,
			total_rounds = :total_rounds,
			round_timer_minutes = :round_timer_minutes,
			top_cut_size = :top_cut_size,
			announcement_channel_id = :announcement_channel_id
		WHERE id = :id
	`
	deleteLeagueQuery = "DELETE FROM leagues WHERE id = ?"
)

// LeagueStore persists leagues through sqlx. It works against either the
// database handle or a single transaction.
type LeagueStore struct {
	db   *sqlx.DB
	exec sqlx.ExtContext
}

func NewLeagueStore(db *sqlx.DB) *LeagueStore {
	return &LeagueStore{db: db, exec: db}
}

func (s *LeagueStore) InTx(ctx context.Context, fn func(repo league.Repository) error) error {
	if _, ok := s.exec.(*sqlx.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&LeagueStore{db: s.db, exec: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *LeagueStore) get(ctx context.Context, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, s.exec, dest, s.exec.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return league.ErrNotFound
	}
	return err
}

func (s *LeagueStore) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.exec, dest, s.exec.Rebind(query), args...)
}

func (s *LeagueStore) exec1(ctx context.Context, query string, args ...any) error {
	res, err := s.exec.ExecContext(ctx, s.exec.Rebind(query), args...)
	if err != nil {
		return err
	}
	return checkAffectedRows(res)
}

func (s *LeagueStore) namedExec1(ctx context.Context, query string, arg any) error {
	res, err := sqlx.NamedExecContext(ctx, s.exec, query, arg)
	if err != nil {
		return err
	}
	return checkAffectedRows(res)
}

func checkAffectedRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return league.ErrNotFound
	}
	return nil
}

func (s *LeagueStore) CreateLeague(ctx context.Context, l *league.League) error {
	_, err := sqlx.NamedExecContext(ctx, s.exec, createLeagueQuery, l)
	return err
}

func (s *LeagueStore) GetLeague(ctx context.Context, id uuid.UUID) (*league.League, error) {
	var l league.League
	if err := s.get(ctx, &l, getLeagueQuery, id); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *LeagueStore) GetLeagueByName(ctx context.Context, guildID, name string) (*league.League, error) {
	var l league.League
	if err := s.get(ctx, &l, getLeagueByNameQuery, guildID, name); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *LeagueStore) ListLeaguesByStatus(ctx context.Context, statuses ...league.Status) ([]league.League, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(listLeaguesQuery, statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to expand status filter: %w", err)
	}

	var leagues []league.League
	err = s.selectAll(ctx, &leagues, query, args...)
	return leagues, err
}

func (s *LeagueStore) UpdateLeague(ctx context.Context, l *league.League) error {
	return s.namedExec1(ctx, updateLeagueQuery, l)
}

func (s *LeagueStore) DeleteLeague(ctx context.Context, id uuid.UUID) error {
	return s.exec1(ctx, deleteLeagueQuery, id)
}
