package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusworks/timetable-api/internal/models"
	appErrors "github.com/campusworks/timetable-api/pkg/errors"
)

type availabilityRepository interface {
	ListAll(ctx context.Context) ([]models.TeacherAvailability, error)
	FindByTeacher(ctx context.Context, teacher string) (*models.TeacherAvailability, error)
	Upsert(ctx context.Context, record *models.TeacherAvailability) error
	Delete(ctx context.Context, teacher string) error
}

// AvailabilityService manages teacher scheduling constraints. Saved edits are
// picked up by the next generation attempt through the snapshot source.
type AvailabilityService struct {
	repo      availabilityRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(repo availabilityRepository, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AvailabilityService{repo: repo, validator: validate, logger: logger}
}

// List returns every stored availability record.
func (s *AvailabilityService) List(ctx context.Context) ([]models.TeacherAvailability, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability")
	}
	return records, nil
}

// Get loads one teacher's record.
func (s *AvailabilityService) Get(ctx context.Context, teacher string) (*models.TeacherAvailability, error) {
	record, err := s.repo.FindByTeacher(ctx, teacher)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no availability recorded for this teacher")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	return record, nil
}

// Save validates and stores a teacher's availability. The payload must decode
// into engine constraints; rejecting it here keeps generation runs from failing
// later on malformed stored data.
func (s *AvailabilityService) Save(ctx context.Context, record *models.TeacherAvailability) (*models.TeacherAvailability, error) {
	if record == nil || record.Teacher == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is required")
	}
	if _, err := decodeAvailability(*record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}

	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save availability")
	}
	s.logger.Info("availability saved", zap.String("teacher", record.Teacher))
	return record, nil
}

// Remove deletes a teacher's availability record.
func (s *AvailabilityService) Remove(ctx context.Context, teacher string) error {
	if teacher == "" {
		return appErrors.Clone(appErrors.ErrValidation, "teacher is required")
	}
	if err := s.repo.Delete(ctx, teacher); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete availability")
	}
	return nil
}
