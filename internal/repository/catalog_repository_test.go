package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCatalogRepositoryListSubjects(t *testing.T) {
	db, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	rows := sqlmock.NewRows([]string{"semester", "code", "name", "lectures", "is_lab", "is_elective", "is_open_elective"}).
		AddRow("3", "CS301", "Operating Systems", 4, false, false, false).
		AddRow("3", "CS351", "OS Lab", 0, true, false, false)
	mock.ExpectQuery(regexp.QuoteMeta("FROM subjects WHERE semester = $1 ORDER BY code")).
		WithArgs("3").
		WillReturnRows(rows)

	subjects, err := repo.ListSubjects(context.Background(), "3")
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "CS301", subjects[0].Code)
	assert.True(t, subjects[1].IsLab)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryListMappings(t *testing.T) {
	db, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	rows := sqlmock.NewRows([]string{"semester", "section", "subject_code", "theory_teacher", "lab_teachers"}).
		AddRow("3", "A", "CS351", "", `{Rao,Iyer}`)
	mock.ExpectQuery(regexp.QuoteMeta("FROM subject_mappings WHERE semester = $1 ORDER BY section, subject_code")).
		WithArgs("3").
		WillReturnRows(rows)

	mappings, err := repo.ListMappings(context.Background(), "3")
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, []string{"Rao", "Iyer"}, []string(mappings[0].LabTeachers))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryListTimings(t *testing.T) {
	db, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	rows := sqlmock.NewRows([]string{"semester", "section", "day", "start_time", "slot_length", "slot_count", "breaks"}).
		AddRow("3", "A", "Monday", "08:55", 55, 7, types.JSONText(`[{"start":"11:30","end":"12:00"}]`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM day_timings WHERE semester = $1 ORDER BY section, day")).
		WithArgs("3").
		WillReturnRows(rows)

	timings, err := repo.ListTimings(context.Background(), "3")
	require.NoError(t, err)
	require.Len(t, timings, 1)
	assert.Equal(t, "08:55", timings[0].StartTime)
	assert.Equal(t, 7, timings[0].SlotCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryListOpenElectives(t *testing.T) {
	db, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	rows := sqlmock.NewRows([]string{"semester", "section", "subject_code", "day", "slot_index", "room"}).
		AddRow("7", "A", "OE401", "Friday", 0, "R4")
	mock.ExpectQuery(regexp.QuoteMeta("FROM open_electives WHERE semester = $1")).
		WithArgs("7").
		WillReturnRows(rows)

	electives, err := repo.ListOpenElectives(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, electives, 1)
	assert.Equal(t, "OE401", electives[0].SubjectCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
