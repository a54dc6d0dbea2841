package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/campusworks/timetable-api/internal/models"
)

// TimetableRepository persists versioned generation runs and their records.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// CreateVersioned inserts a run assigning the next version for the semester.
func (r *TimetableRepository) CreateVersioned(ctx context.Context, run *models.GenerationRun) error {
	if run == nil {
		return fmt.Errorf("run payload is nil")
	}
	if run.Semester == "" {
		return fmt.Errorf("semester is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.GenerationRunStatusPending
	}
	if len(run.Warnings) == 0 {
		run.Warnings = types.JSONText(`[]`)
	}
	if len(run.Unplaced) == 0 {
		run.Unplaced = types.JSONText(`[]`)
	}
	if len(run.HardViolations) == 0 {
		run.HardViolations = types.JSONText(`[]`)
	}
	if len(run.SoftViolations) == 0 {
		run.SoftViolations = types.JSONText(`[]`)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM generation_runs WHERE semester = $1`
	if err := r.db.GetContext(ctx, &run.Version, nextVersionQuery, run.Semester); err != nil {
		return fmt.Errorf("compute next run version: %w", err)
	}

	const insertQuery = `
INSERT INTO generation_runs (id, semester, version, status, success, attempts, seed, warnings, unplaced, hard_violations, soft_violations, created_at, updated_at)
VALUES (:id, :semester, :version, :status, :success, :attempts, :seed, :warnings, :unplaced, :hard_violations, :soft_violations, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, insertQuery, run); err != nil {
		return fmt.Errorf("insert generation run: %w", err)
	}
	return nil
}

// UpdateOutcome records the final state of a run after the engine finishes.
func (r *TimetableRepository) UpdateOutcome(ctx context.Context, run *models.GenerationRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	run.UpdatedAt = time.Now().UTC()

	const query = `
UPDATE generation_runs SET status = :status, success = :success, attempts = :attempts, seed = :seed,
	warnings = :warnings, unplaced = :unplaced, hard_violations = :hard_violations,
	soft_violations = :soft_violations, updated_at = :updated_at
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("update run outcome: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("run outcome rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindRun loads a run by its identifier.
func (r *TimetableRepository) FindRun(ctx context.Context, id string) (*models.GenerationRun, error) {
	const query = `SELECT id, semester, version, status, success, attempts, seed, warnings, unplaced, hard_violations, soft_violations, created_at, updated_at
FROM generation_runs WHERE id = $1`
	var run models.GenerationRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestCompleted returns the newest completed run for a semester.
func (r *TimetableRepository) LatestCompleted(ctx context.Context, semester string) (*models.GenerationRun, error) {
	const query = `SELECT id, semester, version, status, success, attempts, seed, warnings, unplaced, hard_violations, soft_violations, created_at, updated_at
FROM generation_runs WHERE semester = $1 AND status = $2 ORDER BY version DESC LIMIT 1`
	var run models.GenerationRun
	if err := r.db.GetContext(ctx, &run, query, semester, models.GenerationRunStatusCompleted); err != nil {
		return nil, err
	}
	return &run, nil
}

// ReplaceRecords atomically swaps the class records of a run.
func (r *TimetableRepository) ReplaceRecords(ctx context.Context, runID string, records []models.ClassRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin records tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM class_records WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clear class records: %w", err)
	}

	const insertQuery = `
INSERT INTO class_records (id, run_id, position, semester, section, day, time_range, subject, teacher, room, kind, created_at)
VALUES (:id, :run_id, :position, :semester, :section, :day, :time_range, :subject, :teacher, :room, :kind, :created_at)`
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		records[i].RunID = runID
		records[i].Position = i
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insertQuery, records[i]); err != nil {
			return fmt.Errorf("insert class record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit class records: %w", err)
	}
	return nil
}

// ListRecords returns the class records of a run in timetable order.
func (r *TimetableRepository) ListRecords(ctx context.Context, runID string) ([]models.ClassRecord, error) {
	const query = `SELECT id, run_id, position, semester, section, day, time_range, subject, teacher, room, kind, created_at
FROM class_records WHERE run_id = $1 ORDER BY position`
	var records []models.ClassRecord
	if err := r.db.SelectContext(ctx, &records, query, runID); err != nil {
		return nil, fmt.Errorf("list class records: %w", err)
	}
	return records, nil
}
