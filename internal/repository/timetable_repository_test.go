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

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTimetableRepositoryCreateVersioned(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM generation_runs WHERE semester = $1")).
		WithArgs("3").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generation_runs")).
		WithArgs(sqlmock.AnyArg(), "3", 4, string(models.GenerationRunStatusPending), false, 0, int64(0),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.GenerationRun{Semester: "3"}
	err := repo.CreateVersioned(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 4, run.Version)
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryCreateVersionedRequiresSemester(t *testing.T) {
	db, _, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	err := repo.CreateVersioned(context.Background(), &models.GenerationRun{})
	assert.Error(t, err)
}

func TestTimetableRepositoryUpdateOutcome(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_runs SET")).
		WithArgs(string(models.GenerationRunStatusCompleted), true, 2, int64(99),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "run-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.GenerationRun{
		ID:             "run-1",
		Status:         models.GenerationRunStatusCompleted,
		Success:        true,
		Attempts:       2,
		Seed:           99,
		Warnings:       types.JSONText(`[]`),
		Unplaced:       types.JSONText(`[]`),
		HardViolations: types.JSONText(`[]`),
		SoftViolations: types.JSONText(`[]`),
	}
	require.NoError(t, repo.UpdateOutcome(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryLatestCompleted(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"id", "semester", "version", "status", "success", "attempts", "seed", "warnings", "unplaced", "hard_violations", "soft_violations", "created_at", "updated_at"}).
		AddRow("run-2", "3", 2, string(models.GenerationRunStatusCompleted), true, 1, int64(7),
			types.JSONText(`[]`), types.JSONText(`[]`), types.JSONText(`[]`), types.JSONText(`[]`), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY version DESC LIMIT 1")).
		WithArgs("3", string(models.GenerationRunStatusCompleted)).
		WillReturnRows(rows)

	run, err := repo.LatestCompleted(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "run-2", run.ID)
	assert.Equal(t, 2, run.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryReplaceRecords(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_records WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_records")).
		WithArgs(sqlmock.AnyArg(), "run-1", 0, "3", "A", "Monday", "9:00 AM-9:55 AM", "Operating Systems", "Rao", "R1", "theory", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_records")).
		WithArgs(sqlmock.AnyArg(), "run-1", 1, "3", "A", "Monday", "9:55 AM-11:45 AM", "OS Lab", "Rao/Iyer", "L1", "lab", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	records := []models.ClassRecord{
		{Semester: "3", Section: "A", Day: "Monday", TimeRange: "9:00 AM-9:55 AM", Subject: "Operating Systems", Teacher: "Rao", Room: "R1", Kind: "theory"},
		{Semester: "3", Section: "A", Day: "Monday", TimeRange: "9:55 AM-11:45 AM", Subject: "OS Lab", Teacher: "Rao/Iyer", Room: "L1", Kind: "lab"},
	}
	require.NoError(t, repo.ReplaceRecords(context.Background(), "run-1", records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListRecords(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"id", "run_id", "position", "semester", "section", "day", "time_range", "subject", "teacher", "room", "kind", "created_at"}).
		AddRow("rec-1", "run-1", 0, "3", "A", "Monday", "9:00 AM-9:55 AM", "Operating Systems", "Rao", "R1", "theory", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_records WHERE run_id = $1 ORDER BY position")).
		WithArgs("run-1").
		WillReturnRows(rows)

	records, err := repo.ListRecords(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Operating Systems", records[0].Subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}
