package timer

import (
	"fmt"
	"slices"
	"time"
)

const (
	// GracePeriod gives players time to find their table before the clock runs.
	GracePeriod      = 5 * time.Minute
	ReminderInterval = 15 * time.Minute
)

// Warnings are always announced, whatever the reminder interval produces.
var Warnings = []time.Duration{15 * time.Minute, 10 * time.Minute, 5 * time.Minute}

type Kind int

const (
	KindStart Kind = iota
	KindExpiry
	KindWarning
	KindReminder
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindExpiry:
		return "expiry"
	case KindWarning:
		return "warning"
	case KindReminder:
		return "reminder"
	}
	return "unknown"
}

type Announcement struct {
	Offset    time.Duration
	Kind      Kind
	Remaining time.Duration
}

// Plan lists the announcements for a round of the given length, ordered by
// offset from the moment the timer is started. The clock starts after the
// grace period; reminders follow every interval until the round length is
// reached and expiry lands on grace+duration. Warnings are placed at
// duration-r from the timer start. When two announcements share an offset only
// one is kept, preferring start, then expiry, then warning, then reminder.
func Plan(duration time.Duration) []Announcement {
	if duration <= 0 {
		return nil
	}

	plan := []Announcement{
		{Offset: GracePeriod, Kind: KindStart, Remaining: duration},
		{Offset: GracePeriod + duration, Kind: KindExpiry},
	}
	for _, r := range Warnings {
		if r < duration {
			plan = append(plan, Announcement{Offset: duration - r, Kind: KindWarning, Remaining: r})
		}
	}
	for elapsed := ReminderInterval; elapsed < duration; elapsed += ReminderInterval {
		plan = append(plan, Announcement{Offset: GracePeriod + elapsed, Kind: KindReminder, Remaining: duration - elapsed})
	}

	// Stable on kind priority so the preferred entry survives deduplication
	slices.SortStableFunc(plan, func(a, b Announcement) int {
		if a.Offset != b.Offset {
			if a.Offset < b.Offset {
				return -1
			}
			return 1
		}
		return int(a.Kind) - int(b.Kind)
	})
	return slices.CompactFunc(plan, func(a, b Announcement) bool {
		return a.Offset == b.Offset
	})
}

func minutes(d time.Duration) int {
	return int(d.Round(time.Minute) / time.Minute)
}

func message(round int, a Announcement) string {
	switch a.Kind {
	case KindStart:
		return fmt.Sprintf("Round %d has started! You have %d minutes.", round, minutes(a.Remaining))
	case KindExpiry:
		return fmt.Sprintf("Round %d: time is up! Finish the current game and report your result.", round)
	default:
		return fmt.Sprintf("Round %d: %d minutes remaining.", round, minutes(a.Remaining))
	}
}
