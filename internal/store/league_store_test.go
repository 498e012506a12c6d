package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/krystlih/swu-league-manager-sub000/internal/db"
	"github.com/krystlih/swu-league-manager-sub000/internal/league"
	"github.com/krystlih/swu-league-manager-sub000/internal/utils"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	_, err = database.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "sqlite3", driver)
	require.NoError(t, err, "Failed to create migrate instance")

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

func newTestLeague(name string) *league.League {
	return &league.League{
		ID:                uuid.New(),
		GuildID:           "guild-1",
		CreatorID:         "creator",
		Name:              name,
		Format:            "Premier",
		CompetitionType:   league.Swiss,
		Status:            league.StatusRegistration,
		RoundTimerMinutes: utils.Ptr(50),
		CreatedAt:         time.Now().UTC(),
	}
}

func TestCreateAndGetLeague(t *testing.T) {
	s := NewLeagueStore(setupTestDB(t))
	ctx := context.Background()

	l := newTestLeague("Tuesday Night")
	require.NoError(t, s.CreateLeague(ctx, l))

	got, err := s.GetLeague(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.Name, got.Name)
	assert.Equal(t, league.Swiss, got.CompetitionType)
	assert.Equal(t, league.StatusRegistration, got.Status)
	assert.Equal(t, 50, utils.OrZero(got.RoundTimerMinutes))
	assert.Nil(t, got.TotalRounds)

	byName, err := s.GetLeagueByName(ctx, "guild-1", "Tuesday Night")
	require.NoError(t, err)
	assert.Equal(t, l.ID, byName.ID)

	_, err = s.GetLeague(ctx, uuid.New())
	assert.ErrorIs(t, err, league.ErrNotFound)
}

func TestLeagueNameUniquePerGuild(t *testing.T) {
	s := NewLeagueStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.CreateLeague(ctx, newTestLeague("Weekly")))
	assert.Error(t, s.CreateLeague(ctx, newTestLeague("Weekly")))

	other := newTestLeague("Weekly")
	other.GuildID = "guild-2"
	assert.NoError(t, s.CreateLeague(ctx, other))
}

func TestUpdateAndListLeagues(t *testing.T) {
	s := NewLeagueStore(setupTestDB(t))
	ctx := context.Background()

	running := newTestLeague("Running")
	waiting := newTestLeague("Waiting")
	require.NoError(t, s.CreateLeague(ctx, running))
	require.NoError(t, s.CreateLeague(ctx, waiting))

	running.Status = league.StatusInProgress
	running.CurrentRound = 2
	running.TotalRounds = utils.Ptr(4)
	require.NoError(t, s.UpdateLeague(ctx, running))

	active, err := s.ListLeaguesByStatus(ctx, league.StatusInProgress, league.StatusTopCut)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, running.ID, active[0].ID)
	assert.Equal(t, 2, active[0].CurrentRound)
	assert.Equal(t, 4, utils.OrZero(active[0].TotalRounds))

	missing := newTestLeague("Ghost")
	assert.ErrorIs(t, s.UpdateLeague(ctx, missing), league.ErrNotFound)
}

func TestDeleteLeagueCascades(t *testing.T) {
	db := setupTestDB(t)
	s := NewLeagueStore(db)
	ctx := context.Background()

	l := newTestLeague("Doomed")
	require.NoError(t, s.CreateLeague(ctx, l))
	require.NoError(t, s.CreateRegistration(ctx, &league.Registration{
		ID: uuid.New(), LeagueID: l.ID, PlayerID: "p1", PlayerName: "Luke", Seed: 1, Active: true, CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, s.DeleteLeague(ctx, l.ID))

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM registrations"))
	assert.Zero(t, count)
	assert.ErrorIs(t, s.DeleteLeague(ctx, l.ID), league.ErrNotFound)
}

func TestDeleteLeagueCascadesOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	database, err := db.InitDB(db.DriverSQLite, filepath.Join(t.TempDir(), "league.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database.DB, db.DriverSQLite, "file://../../migrations"))

	// Hold one connection so the delete below runs on a different one
	pinned, err := database.Conn(ctx)
	require.NoError(t, err)
	defer pinned.Close()

	var fk int
	require.NoError(t, pinned.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	s := NewLeagueStore(database)
	l := newTestLeague("Orphan Check")
	require.NoError(t, s.CreateLeague(ctx, l))
	require.NoError(t, s.CreateRegistration(ctx, &league.Registration{
		ID: uuid.New(), LeagueID: l.ID, PlayerID: "p1", PlayerName: "Leia", Seed: 1, Active: true, CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, s.DeleteLeague(ctx, l.ID))

	var count int
	require.NoError(t, database.Get(&count, "SELECT COUNT(*) FROM registrations"))
	assert.Zero(t, count)
}

func TestRegistrations(t *testing.T) {
	s := NewLeagueStore(setupTestDB(t))
	ctx := context.Background()

	l := newTestLeague("Regs")
	require.NoError(t, s.CreateLeague(ctx, l))

	for i, name := range []string{"Luke", "Leia", "Han"} {
		require.NoError(t, s.CreateRegistration(ctx, &league.Registration{
			ID:         uuid.New(),
			LeagueID:   l.ID,
			PlayerID:   name,
			PlayerName: name,
			Seed:       3 - i,
			Active:     true,
			CreatedAt:  time.Now().UTC(),
		}))
	}

	dup := &league.Registration{ID: uuid.New(), LeagueID: l.ID, PlayerID: "Han", PlayerName: "Han", Seed: 4, Active: true}
	assert.Error(t, s.CreateRegistration(ctx, dup), "player registered twice")

	regs, err := s.ListRegistrations(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, regs, 3)
	assert.Equal(t, []string{"Han", "Leia", "Luke"}, []string{regs[0].PlayerID, regs[1].PlayerID, regs[2].PlayerID})

	leia, err := s.GetRegistration(ctx, l.ID, "Leia")
	require.NoError(t, err)
	leia.Wins = 2
	leia.Active = false
	require.NoError(t, s.UpdateRegistration(ctx, leia))

	leia, err = s.GetRegistration(ctx, l.ID, "Leia")
	require.NoError(t, err)
	assert.Equal(t, 2, leia.Wins)
	assert.False(t, leia.Active)

	_, err = s.GetRegistration(ctx, l.ID, "Vader")
	assert.ErrorIs(t, err, league.ErrNotFound)
}

func TestMatchesRoundTrip(t *testing.T) {
	s := NewLeagueStore(setupTestDB(t))
	ctx := context.Background()

	l := newTestLeague("Matches")
	require.NoError(t, s.CreateLeague(ctx, l))
	require.NoError(t, s.CreateRound(ctx, &league.Round{ID: uuid.New(), LeagueID: l.ID, RoundNumber: 1, StartedAt: time.Now().UTC()}))

	now := time.Now().UTC()
	matches := []league.Match{
		{
			ID: uuid.New(), LeagueID: l.ID, RoundNumber: 1, TableNumber: 1,
			Player1ID: "a", Player1Name: "A", Player2ID: utils.Ptr("b"), Player2Name: utils.Ptr("B"),
			BracketSide: league.WinnersSide, BracketRound: 1, MatchNumber: 1,
			WinnerNextMatch: utils.Ptr(1), WinnerNextSlot: utils.Ptr(1),
			CreatedAt: now,
		},
		{
			ID: uuid.New(), LeagueID: l.ID, RoundNumber: 1, TableNumber: 2,
			Player1ID: "c", Player1Name: "C", IsBye: true,
			Player1Wins: 2, WinnerID: utils.Ptr("c"), Completed: true,
			CreatedAt: now,
		},
	}
	require.NoError(t, s.CreateMatches(ctx, matches))
	require.NoError(t, s.CreateMatches(ctx, nil))

	round, err := s.ListRoundMatches(ctx, l.ID, 1)
	require.NoError(t, err)
	require.Len(t, round, 2)
	assert.Equal(t, "b", utils.OrZero(round[0].Player2ID))
	assert.Equal(t, league.WinnersSide, round[0].BracketSide)
	assert.Equal(t, 1, utils.OrZero(round[0].WinnerNextSlot))
	assert.True(t, round[1].IsBye)
	assert.Nil(t, round[1].Player2ID)

	m := round[0]
	m.Player1Wins = 2
	m.Player2Wins = 1
	m.WinnerID = utils.Ptr("a")
	m.Completed = true
	m.ReportedAt = utils.Ptr(now)
	require.NoError(t, s.UpdateMatch(ctx, &m))

	got, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Equal(t, "a", utils.OrZero(got.WinnerID))
	require.NotNil(t, got.ReportedAt)

	require.NoError(t, s.DeleteRoundMatches(ctx, l.ID, 1))
	require.NoError(t, s.DeleteRound(ctx, l.ID, 1))
	all, err := s.ListMatches(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = s.GetMatch(ctx, m.ID)
	assert.ErrorIs(t, err, league.ErrNotFound)
}

func TestInTxRollsBack(t *testing.T) {
	s := NewLeagueStore(setupTestDB(t))
	ctx := context.Background()

	l := newTestLeague("Atomic")
	boom := errors.New("boom")
	err := s.InTx(ctx, func(repo league.Repository) error {
		if err := repo.CreateLeague(ctx, l); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetLeague(ctx, l.ID)
	assert.ErrorIs(t, err, league.ErrNotFound)

	require.NoError(t, s.InTx(ctx, func(repo league.Repository) error {
		return repo.InTx(ctx, func(inner league.Repository) error {
			return inner.CreateLeague(ctx, l)
		})
	}))
	_, err = s.GetLeague(ctx, l.ID)
	assert.NoError(t, err)
}
