package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/campusworks/timetable-api/internal/models"
)

// AvailabilityRepository persists teacher scheduling constraints.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListAll returns every stored availability record. The generation engine
// snapshots this at the start of each attempt.
func (r *AvailabilityRepository) ListAll(ctx context.Context) ([]models.TeacherAvailability, error) {
	const query = `SELECT teacher, daily_windows, blocks, preference, max_classes_per_day, updated_at
FROM teacher_availability ORDER BY teacher`
	var records []models.TeacherAvailability
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list teacher availability: %w", err)
	}
	return records, nil
}

// FindByTeacher loads one teacher's record.
func (r *AvailabilityRepository) FindByTeacher(ctx context.Context, teacher string) (*models.TeacherAvailability, error) {
	const query = `SELECT teacher, daily_windows, blocks, preference, max_classes_per_day, updated_at
FROM teacher_availability WHERE teacher = $1`
	var record models.TeacherAvailability
	if err := r.db.GetContext(ctx, &record, query, teacher); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert inserts or replaces a teacher's availability record.
func (r *AvailabilityRepository) Upsert(ctx context.Context, record *models.TeacherAvailability) error {
	if record == nil {
		return fmt.Errorf("availability payload is nil")
	}
	if record.Teacher == "" {
		return fmt.Errorf("teacher is required")
	}
	if len(record.DailyWindows) == 0 {
		record.DailyWindows = types.JSONText(`{}`)
	}
	if len(record.Blocks) == 0 {
		record.Blocks = types.JSONText(`[]`)
	}
	record.UpdatedAt = time.Now().UTC()

	const query = `
INSERT INTO teacher_availability (teacher, daily_windows, blocks, preference, max_classes_per_day, updated_at)
VALUES (:teacher, :daily_windows, :blocks, :preference, :max_classes_per_day, :updated_at)
ON CONFLICT (teacher) DO UPDATE SET
	daily_windows = EXCLUDED.daily_windows,
	blocks = EXCLUDED.blocks,
	preference = EXCLUDED.preference,
	max_classes_per_day = EXCLUDED.max_classes_per_day,
	updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert teacher availability: %w", err)
	}
	return nil
}

// Delete removes a teacher's availability record.
func (r *AvailabilityRepository) Delete(ctx context.Context, teacher string) error {
	const query = `DELETE FROM teacher_availability WHERE teacher = $1`
	if _, err := r.db.ExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("delete teacher availability: %w", err)
	}
	return nil
}
