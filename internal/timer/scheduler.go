// Package timer runs the timed announcements of a league round.
package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/krystlih/swu-league-manager-sub000/internal/notify"
)

const announceTimeout = 10 * time.Second

type Key struct {
	LeagueID uuid.UUID
	Round    int
}

type Target struct {
	ScopeID       string
	DestinationID string
}

// Task is the immutable snapshot handed to a scheduled callback.
type Task struct {
	Key        Key
	Generation uint64
	Target     Target
	Announcement
	Message string
}

type activeTimer struct {
	generation uint64
	target     Target
	stops      []Stopper
}

// Scheduler owns every pending round announcement, keyed by (league, round).
type Scheduler struct {
	clock     Clock
	announcer notify.Announcer
	logger    *slog.Logger

	mu         sync.Mutex
	timers     map[Key]*activeTimer
	generation uint64
}

func NewScheduler(clock Clock, announcer notify.Announcer, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:     clock,
		announcer: announcer,
		logger:    logger,
		timers:    make(map[Key]*activeTimer),
	}
}

// Start arms the announcements for a round, replacing any timer already
// running under the same key.
func (s *Scheduler) Start(key Key, target Target, duration time.Duration) {
	plan := Plan(duration)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(key)
	if len(plan) == 0 {
		return
	}

	s.generation++
	entry := &activeTimer{generation: s.generation, target: target}
	for _, a := range plan {
		task := Task{
			Key:          key,
			Generation:   entry.generation,
			Target:       target,
			Announcement: a,
			Message:      message(key.Round, a),
		}
		entry.stops = append(entry.stops, s.clock.AfterFunc(a.Offset, func() { s.fire(task) }))
	}
	s.timers[key] = entry

	s.logger.Info("round timer started",
		"league_id", key.LeagueID, "round", key.Round, "duration", duration, "announcements", len(plan))
}

func (s *Scheduler) fire(task Task) {
	s.mu.Lock()
	entry, ok := s.timers[task.Key]
	if !ok || entry.generation != task.Generation {
		s.mu.Unlock()
		s.logger.Debug("scheduler miss",
			"league_id", task.Key.LeagueID, "round", task.Key.Round, "kind", task.Kind.String(), "generation", task.Generation)
		return
	}
	if task.Kind == KindExpiry {
		delete(s.timers, task.Key)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()

	if err := s.announcer.Announce(ctx, task.Target.ScopeID, task.Target.DestinationID, task.Message); err != nil {
		s.logger.Warn("failed to send round announcement",
			"league_id", task.Key.LeagueID, "round", task.Key.Round, "kind", task.Kind.String(), "error", err)
	}
}

func (s *Scheduler) cancelLocked(key Key) bool {
	entry, ok := s.timers[key]
	if !ok {
		return false
	}
	for _, stop := range entry.stops {
		stop.Stop()
	}
	delete(s.timers, key)
	return true
}

// Cancel stops every pending announcement of one round.
func (s *Scheduler) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(key)
}

// CancelLeague stops the timers of every round in the league and returns how
// many were running.
func (s *Scheduler) CancelLeague(leagueID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.timers {
		if key.LeagueID == leagueID && s.cancelLocked(key) {
			n++
		}
	}
	return n
}

func (s *Scheduler) Active(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Stop cancels everything, used on shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.timers {
		s.cancelLocked(key)
	}
}
