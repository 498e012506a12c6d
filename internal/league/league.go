package league

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

type Status string

const (
	StatusRegistration Status = "REGISTRATION"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusTopCut       Status = "TOP_CUT"
	StatusCompleted    Status = "COMPLETED"
	StatusCancelled    Status = "CANCELLED"
)

type CompetitionType string

const (
	Swiss             CompetitionType = "SWISS"
	SwissWithTopCut   CompetitionType = "SWISS_WITH_TOP_CUT"
	SingleElimination CompetitionType = "SINGLE_ELIMINATION"
	DoubleElimination CompetitionType = "DOUBLE_ELIMINATION"
)

func (c CompetitionType) Valid() bool {
	switch c {
	case Swiss, SwissWithTopCut, SingleElimination, DoubleElimination:
		return true
	}
	return false
}

// IsElimination reports whether the league is a bracket from its first round.
func (c CompetitionType) IsElimination() bool {
	return c == SingleElimination || c == DoubleElimination
}

func (c CompetitionType) IsSwiss() bool {
	return c == Swiss || c == SwissWithTopCut
}

var allowedTransitions = map[Status][]Status{
	StatusRegistration: {StatusInProgress, StatusCancelled},
	StatusInProgress:   {StatusTopCut, StatusCompleted, StatusCancelled},
	StatusTopCut:       {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is allowed.
// COMPLETED and CANCELLED are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether rounds are being played.
func (s Status) Active() bool {
	return s == StatusInProgress || s == StatusTopCut
}

type League struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	GuildID         string          `db:"guild_id" json:"guildId"`
	CreatorID       string          `db:"creator_id" json:"creatorId"`
	Name            string          `db:"name" json:"name"`
	Format          string          `db:"format" json:"format"`
	CompetitionType CompetitionType `db:"competition_type" json:"competitionType"`
	Status          Status          `db:"status" json:"status"`
	CurrentRound    int             `db:"current_round" json:"currentRound"`

	TotalRounds           *int    `db:"total_rounds" json:"totalRounds,omitempty"`
	RoundTimerMinutes     *int    `db:"round_timer_minutes" json:"roundTimerMinutes,omitempty"`
	TopCutSize            *int    `db:"top_cut_size" json:"topCutSize,omitempty"`
	AnnouncementChannelID *string `db:"announcement_channel_id" json:"announcementChannelId,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// SwissPhaseOver reports whether every budgeted Swiss round has been generated.
func (l *League) SwissPhaseOver() bool {
	return l.TotalRounds != nil && l.CurrentRound >= *l.TotalRounds
}

type Registration struct {
	ID         uuid.UUID `db:"id" json:"id"`
	LeagueID   uuid.UUID `db:"league_id" json:"leagueId"`
	PlayerID   string    `db:"player_id" json:"playerId"`
	PlayerName string    `db:"player_name" json:"playerName"`
	Seed       int       `db:"seed" json:"seed"`
	Active     bool      `db:"active" json:"active"`

	Wins   int `db:"wins" json:"wins"`
	Losses int `db:"losses" json:"losses"`
	Draws  int `db:"draws" json:"draws"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Round struct {
	ID          uuid.UUID `db:"id" json:"id"`
	LeagueID    uuid.UUID `db:"league_id" json:"leagueId"`
	RoundNumber int       `db:"round_number" json:"roundNumber"`
	StartedAt   time.Time `db:"started_at" json:"startedAt"`
}
