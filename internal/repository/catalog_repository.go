package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campusworks/timetable-api/internal/models"
)

// CatalogRepository loads the read-only scheduling catalogs for a semester.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListSections returns the cohort sections of a semester in display order.
func (r *CatalogRepository) ListSections(ctx context.Context, semester string) ([]models.Section, error) {
	const query = `SELECT semester, name FROM sections WHERE semester = $1 ORDER BY name`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, semester); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// ListSubjects returns the subject catalog of a semester.
func (r *CatalogRepository) ListSubjects(ctx context.Context, semester string) ([]models.Subject, error) {
	const query = `SELECT semester, code, name, lectures, is_lab, is_elective, is_open_elective
FROM subjects WHERE semester = $1 ORDER BY code`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, semester); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// ListRooms returns every bookable room. Rooms are shared across semesters.
func (r *CatalogRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	const query = `SELECT name, is_lab FROM rooms ORDER BY name`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// ListMappings returns the section-subject staffing of a semester.
func (r *CatalogRepository) ListMappings(ctx context.Context, semester string) ([]models.SubjectMapping, error) {
	const query = `SELECT semester, section, subject_code, theory_teacher, lab_teachers
FROM subject_mappings WHERE semester = $1 ORDER BY section, subject_code`
	var mappings []models.SubjectMapping
	if err := r.db.SelectContext(ctx, &mappings, query, semester); err != nil {
		return nil, fmt.Errorf("list subject mappings: %w", err)
	}
	return mappings, nil
}

// ListTimings returns the per-section day grid configuration of a semester.
func (r *CatalogRepository) ListTimings(ctx context.Context, semester string) ([]models.DayTiming, error) {
	const query = `SELECT semester, section, day, start_time, slot_length, slot_count, breaks
FROM day_timings WHERE semester = $1 ORDER BY section, day`
	var timings []models.DayTiming
	if err := r.db.SelectContext(ctx, &timings, query, semester); err != nil {
		return nil, fmt.Errorf("list day timings: %w", err)
	}
	return timings, nil
}

// ListOpenElectives returns the fixed open elective bookings of a semester.
func (r *CatalogRepository) ListOpenElectives(ctx context.Context, semester string) ([]models.OpenElective, error) {
	const query = `SELECT semester, section, subject_code, day, slot_index, room
FROM open_electives WHERE semester = $1 ORDER BY section, subject_code, day`
	var electives []models.OpenElective
	if err := r.db.SelectContext(ctx, &electives, query, semester); err != nil {
		return nil, fmt.Errorf("list open electives: %w", err)
	}
	return electives, nil
}
