package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/timetable-api/internal/models"
)

func newAvailabilityRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAvailabilityRepositoryListAll(t *testing.T) {
	db, mock, cleanup := newAvailabilityRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	rows := sqlmock.NewRows([]string{"teacher", "daily_windows", "blocks", "preference", "max_classes_per_day", "updated_at"}).
		AddRow("Rao", types.JSONText(`{"Monday":{"off":true}}`), types.JSONText(`[]`), "before_lunch", 4, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM teacher_availability ORDER BY teacher")).
		WillReturnRows(rows)

	records, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Rao", records[0].Teacher)
	assert.Equal(t, 4, records[0].MaxClassesPerDay)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newAvailabilityRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO teacher_availability")).
		WithArgs("Rao", sqlmock.AnyArg(), sqlmock.AnyArg(), "early_morning", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.TeacherAvailability{
		Teacher:          "Rao",
		Preference:       "early_morning",
		MaxClassesPerDay: 3,
	}
	require.NoError(t, repo.Upsert(context.Background(), record))
	assert.JSONEq(t, `{}`, string(record.DailyWindows))
	assert.JSONEq(t, `[]`, string(record.Blocks))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryUpsertRequiresTeacher(t *testing.T) {
	db, _, cleanup := newAvailabilityRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	assert.Error(t, repo.Upsert(context.Background(), &models.TeacherAvailability{}))
	assert.Error(t, repo.Upsert(context.Background(), nil))
}

func TestAvailabilityRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newAvailabilityRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM teacher_availability WHERE teacher = $1")).
		WithArgs("Rao").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "Rao"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
