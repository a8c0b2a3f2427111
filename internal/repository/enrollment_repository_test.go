package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryCreateDefaultsPending(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", CourseID: "course-1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	require.False(t, enrollment.RequestedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"?column?"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments")).
		WithArgs("stu-1", "course-1", string(models.EnrollmentStatusPending), string(models.EnrollmentStatusApproved)).
		WillReturnRows(rows)

	exists, err := repo.ExistsActive(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.True(t, exists)

	// A fully rejected history does not block a new request.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments")).
		WithArgs("stu-2", "course-1", string(models.EnrollmentStatusPending), string(models.EnrollmentStatusApproved)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsActive(context.Background(), "stu-2", "course-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDecideGuardsPending(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	decidedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2")).
		WithArgs("enr-1", string(models.EnrollmentStatusApproved), "admin-1", decidedAt, string(models.EnrollmentStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Decide(context.Background(), "enr-1", models.EnrollmentStatusApproved, "admin-1", decidedAt))

	// Second decision on the same row finds no pending state left.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2")).
		WithArgs("enr-1", string(models.EnrollmentStatusRejected), "admin-2", decidedAt, string(models.EnrollmentStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Decide(context.Background(), "enr-1", models.EnrollmentStatusRejected, "admin-2", decidedAt)
	require.ErrorIs(t, err, ErrNoTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteRequiresDecidedState(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs("enr-1", string(models.EnrollmentStatusApproved), string(models.EnrollmentStatusRejected)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "enr-1"))

	// Pending rows never match the guard.
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs("enr-2", string(models.EnrollmentStatusApproved), string(models.EnrollmentStatusRejected)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Delete(context.Background(), "enr-2"), ErrNoTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "status", "requested_at", "decided_at", "decided_by", "student_name", "course_code", "course_title"}).
		AddRow("enr-1", "stu-1", "course-1", "PENDING", now, nil, nil, "Student One", "CS101", "Intro")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT e.id, e.student_id")).
		WithArgs("course-1", string(models.EnrollmentStatusPending)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("course-1", string(models.EnrollmentStatusPending)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{
		CourseID: "course-1",
		Status:   models.EnrollmentStatusPending,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, enrollments, 1)
	require.Equal(t, "enr-1", enrollments[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
