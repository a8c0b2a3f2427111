package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

func newStatsRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStatsRepositoryStudentGradeStats(t *testing.T) {
	db, mock, cleanup := newStatsRepoMock(t)
	defer cleanup()

	repo := NewStatsRepository(db)
	rows := sqlmock.NewRows([]string{"graded_count", "mean_score", "min_score", "max_score"}).
		AddRow(3, 80.5, 62.0, 95.0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(g.id) AS graded_count")).
		WithArgs("stu-1", string(models.SubmissionStatusGraded), string(models.SubmissionStatusReturned)).
		WillReturnRows(rows)

	stats, err := repo.StudentGradeStats(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Equal(t, "stu-1", stats.StudentID)
	require.Equal(t, 3, stats.GradedCount)
	require.NotNil(t, stats.MeanScore)
	require.Equal(t, 80.5, *stats.MeanScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsRepositoryStudentGradeStatsNoGradedWork(t *testing.T) {
	db, mock, cleanup := newStatsRepoMock(t)
	defer cleanup()

	repo := NewStatsRepository(db)
	// SQL aggregates over zero rows: count 0, NULL extremes.
	rows := sqlmock.NewRows([]string{"graded_count", "mean_score", "min_score", "max_score"}).
		AddRow(0, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(g.id) AS graded_count")).
		WithArgs("stu-2", string(models.SubmissionStatusGraded), string(models.SubmissionStatusReturned)).
		WillReturnRows(rows)

	stats, err := repo.StudentGradeStats(context.Background(), "stu-2")
	require.NoError(t, err)
	require.Equal(t, 0, stats.GradedCount)
	require.Nil(t, stats.MeanScore)
	require.Nil(t, stats.MinScore)
	require.Nil(t, stats.MaxScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsRepositoryEnrollmentStatisticsSnapshot(t *testing.T) {
	db, mock, cleanup := newStatsRepoMock(t)
	defer cleanup()

	repo := NewStatsRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM enrollments")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("PENDING", 4).
			AddRow("APPROVED", 10))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT c.id AS course_id")).
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "course_code", "course_title", "capacity", "approved", "pending"}).
			AddRow("course-1", "CS101", "Intro", 30, 10, 4))
	mock.ExpectCommit()

	stats, err := repo.EnrollmentStatistics(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.ByStatus, 2)
	require.Len(t, stats.ByCourse, 1)
	require.Equal(t, 10, stats.ByCourse[0].Approved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsRepositoryUserStatisticsSnapshot(t *testing.T) {
	db, mock, cleanup := newStatsRepoMock(t)
	defer cleanup()

	repo := NewStatsRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role, COUNT(*) AS count FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"role", "count"}).
			AddRow("ADMIN", 2).
			AddRow("STUDENT", 120))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(department, '') AS department")).
		WillReturnRows(sqlmock.NewRows([]string{"department", "count"}).
			AddRow("Mathematics", 40).
			AddRow("Physics", 35))
	mock.ExpectCommit()

	stats, err := repo.UserStatistics(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.ByRole, 2)
	require.Len(t, stats.ByDepartment, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}
