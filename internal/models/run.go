package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// GenerationRunStatus represents lifecycle phases of a generation run.
type GenerationRunStatus string

const (
	GenerationRunStatusPending   GenerationRunStatus = "PENDING"
	GenerationRunStatusRunning   GenerationRunStatus = "RUNNING"
	GenerationRunStatusCompleted GenerationRunStatus = "COMPLETED"
	GenerationRunStatusPartial   GenerationRunStatus = "PARTIAL"
	GenerationRunStatusFailed    GenerationRunStatus = "FAILED"
)

// GenerationRun captures one versioned timetable build for a semester.
type GenerationRun struct {
	ID             string              `db:"id" json:"id"`
	Semester       string              `db:"semester" json:"semester"`
	Version        int                 `db:"version" json:"version"`
	Status         GenerationRunStatus `db:"status" json:"status"`
	Success        bool                `db:"success" json:"success"`
	Attempts       int                 `db:"attempts" json:"attempts"`
	Seed           int64               `db:"seed" json:"seed"`
	Warnings       types.JSONText      `db:"warnings" json:"warnings"`
	Unplaced       types.JSONText      `db:"unplaced" json:"unplaced"`
	HardViolations types.JSONText      `db:"hard_violations" json:"hard_violations"`
	SoftViolations types.JSONText      `db:"soft_violations" json:"soft_violations"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// ClassRecord is one normalized timetable row belonging to a run. Position
// preserves the engine's section/day/slot ordering, which a lexical sort of
// the 12-hour time strings would not.
type ClassRecord struct {
	ID        string    `db:"id" json:"id"`
	RunID     string    `db:"run_id" json:"run_id"`
	Position  int       `db:"position" json:"position"`
	Semester  string    `db:"semester" json:"semester"`
	Section   string    `db:"section" json:"section"`
	Day       string    `db:"day" json:"day"`
	TimeRange string    `db:"time_range" json:"time_range"`
	Subject   string    `db:"subject" json:"subject"`
	Teacher   string    `db:"teacher" json:"teacher"`
	Room      string    `db:"room" json:"room"`
	Kind      string    `db:"kind" json:"kind"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
