package dto

import (
	"time"

	"github.com/campusworks/timetable-api/internal/engine"
	"github.com/campusworks/timetable-api/internal/models"
)

// GenerateTimetableRequest starts a generation run for one semester.
type GenerateTimetableRequest struct {
	Semester string `json:"semester" validate:"required"`
	// Async queues the run on the background worker pool instead of blocking
	// the request.
	Async bool `json:"async"`
	// Seed overrides the configured seed when non-zero, pinning the run for
	// reproduction.
	Seed int64 `json:"seed" validate:"omitempty"`
}

// GenerationRunResponse reports run metadata plus engine diagnostics.
type GenerationRunResponse struct {
	ID             string                       `json:"id"`
	Semester       string                       `json:"semester"`
	Version        int                          `json:"version"`
	Status         models.GenerationRunStatus   `json:"status"`
	Success        bool                         `json:"success"`
	Attempts       int                          `json:"attempts"`
	Seed           int64                        `json:"seed"`
	Warnings       []string                     `json:"warnings,omitempty"`
	Unplaced       []engine.UnplacedDemand      `json:"unplaced,omitempty"`
	HardViolations []engine.Violation           `json:"hard_violations,omitempty"`
	SoftViolations []engine.PreferenceViolation `json:"soft_violations,omitempty"`
	CreatedAt      time.Time                    `json:"created_at"`
}

// QueuedRunResponse acknowledges an async generation request.
type QueuedRunResponse struct {
	ID       string                     `json:"id"`
	Semester string                     `json:"semester"`
	Status   models.GenerationRunStatus `json:"status"`
}

// TimetableResponse is a stored timetable with its run metadata.
type TimetableResponse struct {
	Run     GenerationRunResponse `json:"run"`
	Records []models.ClassRecord  `json:"records"`
}
