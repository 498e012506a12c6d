package league

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the durable home of leagues and everything played in them.
// Lookups of missing rows return ErrNotFound.
type Repository interface {
	CreateLeague(ctx context.Context, l *League) error
	GetLeague(ctx context.Context, id uuid.UUID) (*League, error)
	GetLeagueByName(ctx context.Context, guildID, name string) (*League, error)
	ListLeaguesByStatus(ctx context.Context, statuses ...Status) ([]League, error)
	UpdateLeague(ctx context.Context, l *League) error
	DeleteLeague(ctx context.Context, id uuid.UUID) error

	CreateRegistration(ctx context.Context, r *Registration) error
	GetRegistration(ctx context.Context, leagueID uuid.UUID, playerID string) (*Registration, error)
	ListRegistrations(ctx context.Context, leagueID uuid.UUID) ([]Registration, error)
	UpdateRegistration(ctx context.Context, r *Registration) error

	CreateRound(ctx context.Context, r *Round) error
	DeleteRound(ctx context.Context, leagueID uuid.UUID, roundNumber int) error

	CreateMatches(ctx context.Context, matches []Match) error
	GetMatch(ctx context.Context, id uuid.UUID) (*Match, error)
	ListMatches(ctx context.Context, leagueID uuid.UUID) ([]Match, error)
	ListRoundMatches(ctx context.Context, leagueID uuid.UUID, roundNumber int) ([]Match, error)
	UpdateMatch(ctx context.Context, m *Match) error
	DeleteRoundMatches(ctx context.Context, leagueID uuid.UUID, roundNumber int) error

	// InTx runs fn against a repository bound to one transaction, committing
	// only when fn returns nil.
	InTx(ctx context.Context, fn func(repo Repository) error) error
}
