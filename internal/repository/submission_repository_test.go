package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

func newSubmissionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSubmissionRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	submission := &models.Submission{AssignmentID: "asg-1", StudentID: "stu-1", ContentRef: "blob-1"}
	require.NoError(t, repo.Create(context.Background(), submission))
	require.NotEmpty(t, submission.ID)
	require.Equal(t, models.SubmissionStatusSubmitted, submission.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryCreateDuplicatePair(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnError(&pq.Error{Code: pq.ErrorCode(pqUniqueViolation)})

	submission := &models.Submission{AssignmentID: "asg-1", StudentID: "stu-1", ContentRef: "blob-2"}
	err := repo.Create(context.Background(), submission)
	require.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpdateContentOnlyWhileSubmitted(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET content_ref = $2")).
		WithArgs("sub-1", "blob-2", now, string(models.SubmissionStatusSubmitted)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateContent(context.Background(), "sub-1", "blob-2", now))

	// Graded submissions are frozen.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET content_ref = $2")).
		WithArgs("sub-2", "blob-3", now, string(models.SubmissionStatusSubmitted)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.UpdateContent(context.Background(), "sub-2", "blob-3", now), ErrNoTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryMarkReturnedGuardsGraded(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $2")).
		WithArgs("sub-1", string(models.SubmissionStatusReturned), now, string(models.SubmissionStatusGraded)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkReturned(context.Background(), "sub-1", now))

	// Returning twice, or returning an ungraded submission, finds no match.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $2")).
		WithArgs("sub-1", string(models.SubmissionStatusReturned), now, string(models.SubmissionStatusGraded)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.MarkReturned(context.Background(), "sub-1", now), ErrNoTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListFiltersByCourseOwner(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "assignment_id", "student_id", "content_ref", "status", "grade_id", "submitted_at", "updated_at", "assignment_title", "course_id", "max_score", "course_owner_id", "score"}).
		AddRow("sub-1", "asg-1", "stu-1", "blob-1", "SUBMITTED", nil, now, now, "Homework 1", "course-1", 100.0, "fac-1", nil)
	mock.ExpectQuery(regexp.QuoteMeta("c.owner_id = $1")).
		WithArgs("fac-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("fac-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.SubmissionFilter{CourseOwnerID: "fac-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, total)
	require.Equal(t, "fac-1", list[0].CourseOwnerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryFindDetailByID(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	now := time.Now()
	score := 85.0
	rows := sqlmock.NewRows([]string{"id", "assignment_id", "student_id", "content_ref", "status", "grade_id", "submitted_at", "updated_at", "assignment_title", "course_id", "max_score", "course_owner_id", "score"}).
		AddRow("sub-1", "asg-1", "stu-1", "blob-1", "GRADED", "grade-1", now, now, "Homework 1", "course-1", 100.0, "fac-1", score)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id, s.assignment_id")).
		WithArgs("sub-1").
		WillReturnRows(rows)

	detail, err := repo.FindDetailByID(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Equal(t, "fac-1", detail.CourseOwnerID)
	require.NotNil(t, detail.Score)
	require.Equal(t, score, *detail.Score)
	require.NoError(t, mock.ExpectationsWereMet())
}
