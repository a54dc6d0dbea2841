package engine

import (
	"context"
	"fmt"
)

// TimePreference is a soft time-of-day preference. It never blocks placement,
// it only lowers the score of disfavored slots.
type TimePreference string

const (
	PreferenceNone     TimePreference = ""
	PreferBeforeLunch  TimePreference = "before_lunch"
	PreferAfterLunch   TimePreference = "after_lunch"
	PreferEarlyMorning TimePreference = "early_morning"
)

const (
	lunchMark        = 13 * 60
	earlyMorningMark = 10 * 60

	lunchSidePenalty   = 10
	earlyMorningPenalty = 15
)

// DayWindow is a teacher's declared working window for one day.
type DayWindow struct {
	Off   bool `json:"off"`
	Start int  `json:"start"`
	End   int  `json:"end"`
}

// UnavailableBlock is an ad hoc blocked interval. AllDays blocks apply to
// every teaching day.
type UnavailableBlock struct {
	Day     Weekday `json:"day"`
	AllDays bool    `json:"allDays"`
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Reason  string  `json:"reason"`
}

// TeacherAvailability is the full availability record for one teacher.
// Teachers without a record are treated as always available.
type TeacherAvailability struct {
	DailyWindows     map[Weekday]DayWindow `json:"dailyWindows"`
	Blocks           []UnavailableBlock    `json:"blocks"`
	Preference       TimePreference        `json:"preference"`
	MaxClassesPerDay int                   `json:"maxClassesPerDay"` // 0 = unlimited
}

// AvailabilitySource supplies availability snapshots. The retry controller
// takes one snapshot per attempt, so edits made between runs are honored
// without the validator reaching into mutable shared state.
type AvailabilitySource interface {
	Snapshot(ctx context.Context) (map[string]TeacherAvailability, error)
}

// StaticAvailability is an AvailabilitySource over a fixed in-memory map.
type StaticAvailability map[string]TeacherAvailability

// Snapshot returns the map itself; callers treat snapshots as read-only.
func (s StaticAvailability) Snapshot(context.Context) (map[string]TeacherAvailability, error) {
	return s, nil
}

// Checker answers availability questions against one immutable snapshot.
type Checker struct {
	data map[string]TeacherAvailability
}

// NewChecker wraps a snapshot taken at the start of an attempt.
func NewChecker(snapshot map[string]TeacherAvailability) *Checker {
	return &Checker{data: snapshot}
}

// IsAvailable reports whether the teacher can take the half-open interval
// [start, end) on the given day, with a human-readable reason on refusal.
func (c *Checker) IsAvailable(teacher string, day Weekday, start, end int) (bool, string) {
	rec, ok := c.data[teacher]
	if !ok {
		return true, "no constraints defined"
	}

	if window, ok := rec.DailyWindows[day]; ok {
		if window.Off {
			return false, fmt.Sprintf("%s has %s as off day", teacher, day)
		}
		if start < window.Start {
			return false, fmt.Sprintf("%s starts work at %s on %s", teacher, FormatClock12h(window.Start), day)
		}
		if end > window.End {
			return false, fmt.Sprintf("%s ends work at %s on %s", teacher, FormatClock12h(window.End), day)
		}
	}

	for _, block := range rec.Blocks {
		if !block.AllDays && block.Day != day {
			continue
		}
		if end <= block.Start || start >= block.End {
			continue
		}
		reason := block.Reason
		if reason == "" {
			reason = fmt.Sprintf("blocked %s-%s", FormatClock12h(block.Start), FormatClock12h(block.End))
		}
		return false, fmt.Sprintf("%s unavailable: %s", teacher, reason)
	}

	return true, "available"
}

// PreferencePenalty scores how far a candidate start time sits from the
// teacher's declared preference. Zero means aligned or no preference.
func (c *Checker) PreferencePenalty(teacher string, start int) int {
	rec, ok := c.data[teacher]
	if !ok {
		return 0
	}

	switch rec.Preference {
	case PreferBeforeLunch:
		if start >= lunchMark {
			return lunchSidePenalty
		}
	case PreferAfterLunch:
		if start < lunchMark {
			return lunchSidePenalty
		}
	case PreferEarlyMorning:
		if start >= earlyMorningMark {
			return earlyMorningPenalty
		}
	}
	return 0
}

// MaxClassesPerDay returns the teacher's daily ceiling, 0 when unlimited.
func (c *Checker) MaxClassesPerDay(teacher string) int {
	rec, ok := c.data[teacher]
	if !ok {
		return 0
	}
	return rec.MaxClassesPerDay
}

// WithinDailyLimit reports whether countSoFar more-or-equal classes would
// still respect the teacher's per-day ceiling.
func (c *Checker) WithinDailyLimit(teacher string, countSoFar int) bool {
	limit := c.MaxClassesPerDay(teacher)
	return limit == 0 || countSoFar < limit
}
