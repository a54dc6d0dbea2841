package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campusworks/timetable-api/internal/engine"
	"github.com/campusworks/timetable-api/internal/models"
)

type availabilityLister interface {
	ListAll(ctx context.Context) ([]models.TeacherAvailability, error)
}

// RepoAvailabilitySource adapts the availability repository to the engine's
// snapshot interface. The engine pulls one snapshot per attempt, so edits
// saved between retries take effect on the next attempt.
type RepoAvailabilitySource struct {
	repo availabilityLister
}

// NewRepoAvailabilitySource wraps the repository.
func NewRepoAvailabilitySource(repo availabilityLister) *RepoAvailabilitySource {
	return &RepoAvailabilitySource{repo: repo}
}

// Snapshot loads and decodes every availability record.
func (s *RepoAvailabilitySource) Snapshot(ctx context.Context) (map[string]engine.TeacherAvailability, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]engine.TeacherAvailability, len(records))
	for _, rec := range records {
		decoded, err := decodeAvailability(rec)
		if err != nil {
			return nil, fmt.Errorf("availability for %s: %w", rec.Teacher, err)
		}
		snapshot[rec.Teacher] = decoded
	}
	return snapshot, nil
}

func decodeAvailability(rec models.TeacherAvailability) (engine.TeacherAvailability, error) {
	out := engine.TeacherAvailability{
		Preference:       engine.TimePreference(rec.Preference),
		MaxClassesPerDay: rec.MaxClassesPerDay,
	}

	if len(rec.DailyWindows) > 0 {
		var raw map[string]models.AvailabilityWindow
		if err := json.Unmarshal(rec.DailyWindows, &raw); err != nil {
			return out, fmt.Errorf("decode daily windows: %w", err)
		}
		if len(raw) > 0 {
			out.DailyWindows = make(map[engine.Weekday]engine.DayWindow, len(raw))
		}
		for day, window := range raw {
			converted := engine.DayWindow{Off: window.Off}
			if !window.Off {
				var err error
				if converted.Start, err = engine.ParseClock(window.Start); err != nil {
					return out, fmt.Errorf("window start on %s: %w", day, err)
				}
				if converted.End, err = engine.ParseClock(window.End); err != nil {
					return out, fmt.Errorf("window end on %s: %w", day, err)
				}
			}
			out.DailyWindows[engine.Weekday(day)] = converted
		}
	}

	if len(rec.Blocks) > 0 {
		var raw []models.AvailabilityBlock
		if err := json.Unmarshal(rec.Blocks, &raw); err != nil {
			return out, fmt.Errorf("decode blocks: %w", err)
		}
		for i, block := range raw {
			converted := engine.UnavailableBlock{
				Day:     engine.Weekday(block.Day),
				AllDays: block.AllDays,
				Reason:  block.Reason,
			}
			var err error
			if converted.Start, err = engine.ParseClock(block.Start); err != nil {
				return out, fmt.Errorf("block %d start: %w", i, err)
			}
			if converted.End, err = engine.ParseClock(block.End); err != nil {
				return out, fmt.Errorf("block %d end: %w", i, err)
			}
			out.Blocks = append(out.Blocks, converted)
		}
	}

	return out, nil
}
