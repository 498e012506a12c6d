package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/krystlih/swu-league-manager-sub000/internal/apperr"
	"github.com/krystlih/swu-league-manager-sub000/internal/league"
	"github.com/krystlih/swu-league-manager-sub000/internal/standings"
	"github.com/krystlih/swu-league-manager-sub000/internal/store"
	"github.com/krystlih/swu-league-manager-sub000/internal/timer"
	"github.com/krystlih/swu-league-manager-sub000/internal/utils"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const creator = "creator-1"

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

type recordingAnnouncer struct {
	mu       sync.Mutex
	messages []string
}

func (a *recordingAnnouncer) Announce(_ context.Context, _, _, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
	return nil
}

func (a *recordingAnnouncer) sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.messages)
}

func (a *recordingAnnouncer) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	db        *sqlx.DB
	repo      *store.LeagueStore
	clock     *timer.ManualClock
	announcer *recordingAnnouncer
	scheduler *timer.Scheduler
	logger    *slog.Logger
	svc       *LeagueService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := setupTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := timer.NewManualClock()
	announcer := &recordingAnnouncer{}
	scheduler := timer.NewScheduler(clock, announcer, logger)
	repo := store.NewLeagueStore(db)

	return &harness{
		t:         t,
		ctx:       context.Background(),
		db:        db,
		repo:      repo,
		clock:     clock,
		announcer: announcer,
		scheduler: scheduler,
		logger:    logger,
		svc:       NewLeagueService(repo, scheduler, logger),
	}
}

func (h *harness) newLeague(ct league.CompetitionType, opts ...func(*CreateLeagueParams)) *league.League {
	h.t.Helper()
	p := CreateLeagueParams{
		GuildID:         "guild-1",
		CreatorID:       creator,
		Name:            "League " + uuid.NewString()[:8],
		Format:          "Premier",
		CompetitionType: ct,
	}
	for _, opt := range opts {
		opt(&p)
	}
	l, err := h.svc.CreateLeague(h.ctx, p)
	require.NoError(h.t, err)
	return l
}

func (h *harness) register(leagueID uuid.UUID, players ...string) {
	h.t.Helper()
	for _, p := range players {
		_, err := h.svc.RegisterPlayer(h.ctx, leagueID, p, "Player "+p)
		require.NoError(h.t, err)
	}
}

func (h *harness) start(ct league.CompetitionType, players []string, opts ...func(*CreateLeagueParams)) *league.League {
	h.t.Helper()
	l := h.newLeague(ct, opts...)
	h.register(l.ID, players...)
	started, err := h.svc.StartLeague(h.ctx, l.ID)
	require.NoError(h.t, err)
	return started
}

func (h *harness) generate(leagueID uuid.UUID) *RoundResult {
	h.t.Helper()
	res, err := h.svc.GenerateNextRound(h.ctx, leagueID)
	require.NoError(h.t, err)
	return res
}

// win reports a 2-0 for the given player.
func (h *harness) win(m league.Match, winnerID string) *league.Match {
	h.t.Helper()
	r := Result{Player1Wins: 2}
	if winnerID != m.Player1ID {
		r = Result{Player2Wins: 2}
	}
	got, err := h.svc.ReportMatchResult(h.ctx, m.ID, r)
	require.NoError(h.t, err)
	return got
}

func (h *harness) league(id uuid.UUID) *league.League {
	h.t.Helper()
	l, err := h.repo.GetLeague(h.ctx, id)
	require.NoError(h.t, err)
	return l
}

func (h *harness) registration(leagueID uuid.UUID, playerID string) *league.Registration {
	h.t.Helper()
	reg, err := h.repo.GetRegistration(h.ctx, leagueID, playerID)
	require.NoError(h.t, err)
	return reg
}

func (h *harness) standings(leagueID uuid.UUID) []standings.Entry {
	h.t.Helper()
	entries, err := h.svc.GetStandings(h.ctx, leagueID)
	require.NoError(h.t, err)
	return entries
}

func rankedIDs(entries []standings.Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.PlayerID)
	}
	return ids
}

func matchOf(t *testing.T, matches []league.Match, playerID string) league.Match {
	t.Helper()
	for _, m := range matches {
		if m.HasPlayer(playerID) {
			return m
		}
	}
	require.Failf(t, "no match", "player %s is not paired", playerID)
	return league.Match{}
}

func assertKind(t *testing.T, err error, kind apperr.Kind, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, kind), "want %s error, got %v", kind, err)
	assert.Equal(t, code, apperr.CodeOf(err))
}

func TestCreateLeagueValidation(t *testing.T) {
	tests := []struct {
		name   string
		params func(*CreateLeagueParams)
	}{
		{"empty name", func(p *CreateLeagueParams) { p.Name = "  " }},
		{"unknown type", func(p *CreateLeagueParams) { p.CompetitionType = "ROUND_ROBIN" }},
		{"top cut missing", func(p *CreateLeagueParams) { p.CompetitionType = league.SwissWithTopCut }},
		{"top cut of three", func(p *CreateLeagueParams) {
			p.CompetitionType = league.SwissWithTopCut
			p.TopCutSize = utils.Ptr(3)
		}},
		{"top cut on plain swiss", func(p *CreateLeagueParams) { p.TopCutSize = utils.Ptr(4) }},
		{"zero rounds", func(p *CreateLeagueParams) { p.TotalRounds = utils.Ptr(0) }},
		{"rounds on a bracket", func(p *CreateLeagueParams) {
			p.CompetitionType = league.SingleElimination
			p.TotalRounds = utils.Ptr(3)
		}},
		{"negative timer", func(p *CreateLeagueParams) { p.RoundTimerMinutes = utils.Ptr(-5) }},
	}

	h := newHarness(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := CreateLeagueParams{GuildID: "guild-1", CreatorID: creator, Name: "Weekly", CompetitionType: league.Swiss}
			tt.params(&p)

			_, err := h.svc.CreateLeague(h.ctx, p)
			assertKind(t, err, apperr.KindValidation, CodeInvalidLeague)
		})
	}
}

func TestCreateLeagueNameUniquePerGuild(t *testing.T) {
	h := newHarness(t)

	h.newLeague(league.Swiss, func(p *CreateLeagueParams) { p.Name = "Weekly" })

	_, err := h.svc.CreateLeague(h.ctx, CreateLeagueParams{
		GuildID: "guild-1", CreatorID: creator, Name: "Weekly", CompetitionType: league.Swiss,
	})
	assertKind(t, err, apperr.KindValidation, CodeLeagueExists)

	other := h.newLeague(league.Swiss, func(p *CreateLeagueParams) {
		p.Name = "Weekly"
		p.GuildID = "guild-2"
		p.AnnouncementChannelID = "  "
	})
	assert.Nil(t, other.AnnouncementChannelID)
}

func TestRegisterPlayer(t *testing.T) {
	h := newHarness(t)
	l := h.newLeague(league.Swiss)

	h.register(l.ID, "a", "b", "c")

	_, err := h.svc.RegisterPlayer(h.ctx, l.ID, "b", "Player b")
	assertKind(t, err, apperr.KindValidation, CodeAlreadyRegistered)

	dropped, err := h.svc.DropPlayer(h.ctx, l.ID, "b")
	require.NoError(t, err)
	assert.False(t, dropped.Active)

	back, err := h.svc.RegisterPlayer(h.ctx, l.ID, "b", "Bea")
	require.NoError(t, err)
	assert.True(t, back.Active)
	assert.Equal(t, 2, back.Seed, "re-registering keeps the original seed")
	assert.Equal(t, "Bea", back.PlayerName)

	_, err = h.svc.StartLeague(h.ctx, l.ID)
	require.NoError(t, err)

	_, err = h.svc.RegisterPlayer(h.ctx, l.ID, "d", "Player d")
	assertKind(t, err, apperr.KindValidation, CodeRegistrationClosed)

	_, err = h.svc.RegisterPlayer(h.ctx, uuid.New(), "d", "Player d")
	assertKind(t, err, apperr.KindNotFound, CodeLeagueNotFound)
}

func TestStartLeagueGuards(t *testing.T) {
	h := newHarness(t)

	t.Run("needs two players", func(t *testing.T) {
		l := h.newLeague(league.Swiss)
		h.register(l.ID, "solo")
		_, err := h.svc.StartLeague(h.ctx, l.ID)
		assertKind(t, err, apperr.KindValidation, CodeNotEnoughPlayers)
		assert.Equal(t, league.StatusRegistration, h.league(l.ID).Status)
	})

	t.Run("brackets need a power of two", func(t *testing.T) {
		l := h.newLeague(league.SingleElimination)
		h.register(l.ID, "a", "b", "c")
		_, err := h.svc.StartLeague(h.ctx, l.ID)
		assertKind(t, err, apperr.KindValidation, "bracket_size")
		assert.Contains(t, err.Error(), "nearest valid size is 4")

		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, l.ID, appErr.LeagueID)
		assert.Equal(t, string(league.StatusRegistration), appErr.State)
	})

	t.Run("top cut needs enough players", func(t *testing.T) {
		l := h.newLeague(league.SwissWithTopCut, func(p *CreateLeagueParams) { p.TopCutSize = utils.Ptr(4) })
		h.register(l.ID, "a", "b", "c")
		_, err := h.svc.StartLeague(h.ctx, l.ID)
		assertKind(t, err, apperr.KindValidation, CodeNotEnoughPlayers)
	})

	t.Run("swiss rounds default to log2 of the field", func(t *testing.T) {
		l := h.start(league.Swiss, []string{"a", "b", "c", "d", "e"})
		assert.Equal(t, league.StatusInProgress, l.Status)
		assert.Equal(t, 3, utils.OrZero(l.TotalRounds))
	})

	t.Run("only from registration", func(t *testing.T) {
		l := h.start(league.Swiss, []string{"a", "b"})
		_, err := h.svc.StartLeague(h.ctx, l.ID)
		assertKind(t, err, apperr.KindState, CodeInvalidTransition)
	})
}

func TestEndTournamentCreatorOnly(t *testing.T) {
	h := newHarness(t)
	l := h.start(league.Swiss, []string{"a", "b", "c", "d"}, func(p *CreateLeagueParams) {
		p.RoundTimerMinutes = utils.Ptr(50)
		p.AnnouncementChannelID = "chan-1"
	})
	h.generate(l.ID)

	_, err := h.svc.EndTournament(h.ctx, "someone-else", l.ID)
	assertKind(t, err, apperr.KindPermission, CodeNotCreator)

	ended, err := h.svc.EndTournament(h.ctx, creator, l.ID)
	require.NoError(t, err)
	assert.Equal(t, league.StatusCompleted, ended.Status)
	assert.False(t, h.scheduler.Active(timer.Key{LeagueID: l.ID, Round: 1}))

	_, err = h.svc.EndTournament(h.ctx, creator, l.ID)
	assertKind(t, err, apperr.KindState, CodeInvalidTransition)

	// Standings of a finished league come from the frozen tallies
	assert.Len(t, h.standings(l.ID), 4)
}

func TestCancelLeagueClearsRoundTimer(t *testing.T) {
	h := newHarness(t)
	l := h.start(league.Swiss, []string{"a", "b", "c", "d"}, func(p *CreateLeagueParams) {
		p.RoundTimerMinutes = utils.Ptr(50)
		p.AnnouncementChannelID = "chan-1"
	})
	h.generate(l.ID)

	key := timer.Key{LeagueID: l.ID, Round: 1}
	require.True(t, h.scheduler.Active(key))
	h.clock.Advance(5 * time.Minute)
	assert.Equal(t, []string{"Round 1 has started! You have 50 minutes."}, h.announcer.sent())
	h.announcer.reset()

	_, err := h.svc.CancelLeague(h.ctx, "someone-else", l.ID)
	assertKind(t, err, apperr.KindPermission, CodeNotCreator)

	cancelled, err := h.svc.CancelLeague(h.ctx, creator, l.ID)
	require.NoError(t, err)
	assert.Equal(t, league.StatusCancelled, cancelled.Status)
	assert.False(t, h.scheduler.Active(key))

	h.clock.Advance(3 * time.Hour)
	assert.Empty(t, h.announcer.sent(), "no announcement may fire after cancel")
	assert.Zero(t, h.clock.Pending())

	_, err = h.svc.CancelLeague(h.ctx, creator, l.ID)
	assertKind(t, err, apperr.KindState, CodeInvalidTransition)
	_, err = h.svc.GenerateNextRound(h.ctx, l.ID)
	assertKind(t, err, apperr.KindState, CodeInvalidTransition)
}

func TestDeleteLeague(t *testing.T) {
	h := newHarness(t)
	l := h.start(league.Swiss, []string{"a", "b", "c"}, func(p *CreateLeagueParams) {
		p.RoundTimerMinutes = utils.Ptr(30)
		p.AnnouncementChannelID = "chan-1"
	})
	h.generate(l.ID)

	assertKind(t, h.svc.DeleteLeague(h.ctx, "someone-else", l.ID), apperr.KindPermission, CodeNotCreator)

	require.NoError(t, h.svc.DeleteLeague(h.ctx, creator, l.ID))
	assert.False(t, h.scheduler.Active(timer.Key{LeagueID: l.ID, Round: 1}))

	_, err := h.svc.GetStandings(h.ctx, l.ID)
	assertKind(t, err, apperr.KindNotFound, CodeLeagueNotFound)

	var matches int
	require.NoError(t, h.db.Get(&matches, "SELECT COUNT(*) FROM matches"))
	assert.Zero(t, matches)
}

func TestRebuildRestoresRecords(t *testing.T) {
	h := newHarness(t)
	l := h.start(league.Swiss, []string{"a", "b", "c", "d"})
	finished := h.start(league.Swiss, []string{"x", "y"}, func(p *CreateLeagueParams) { p.TotalRounds = utils.Ptr(1) })

	round := h.generate(l.ID)
	h.win(matchOf(t, round.Matches, "a"), "a")
	h.win(matchOf(t, round.Matches, "c"), "c")
	before := h.standings(l.ID)

	final := h.generate(finished.ID)
	h.win(final.Matches[0], "x")
	require.Equal(t, league.StatusCompleted, h.league(finished.ID).Status)

	restarted := NewLeagueService(h.repo, h.scheduler, h.logger)
	require.NoError(t, restarted.Rebuild(h.ctx))

	restarted.mu.RLock()
	_, running := restarted.leagues[l.ID]
	_, done := restarted.leagues[finished.ID]
	restarted.mu.RUnlock()
	assert.True(t, running)
	assert.False(t, done, "finished leagues are not rebuilt")

	after, err := restarted.GetStandings(h.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	next, err := restarted.GenerateNextRound(h.ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, matchOf(t, next.Matches, "a").HasPlayer("c"))
	assert.True(t, matchOf(t, next.Matches, "b").HasPlayer("d"))
}

func TestStandingsLoadLazilyAfterRestart(t *testing.T) {
	h := newHarness(t)
	l := h.start(league.Swiss, []string{"a", "b", "c"})
	round := h.generate(l.ID)
	h.win(matchOf(t, round.Matches, "b"), "b")

	restarted := NewLeagueService(h.repo, h.scheduler, h.logger)
	entries, err := restarted.GetStandings(h.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, rankedIDs(h.standings(l.ID)), rankedIDs(entries))
	assert.Equal(t, "b", entries[0].PlayerID)
}
