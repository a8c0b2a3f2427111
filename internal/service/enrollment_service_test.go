package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/repository"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	active      map[string]bool
	created     *models.Enrollment
	decided     []string
	deleted     []string
	decideErr   error
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		list = append(list, models.EnrollmentDetail{Enrollment: e})
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.active[studentID+"|"+courseID], nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "enr-new"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) Decide(ctx context.Context, id string, status models.EnrollmentStatus, actorID string, decidedAt time.Time) error {
	if m.decideErr != nil {
		return m.decideErr
	}
	e, ok := m.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusPending {
		return repository.ErrNoTransition
	}
	e.Status = status
	e.DecidedBy = &actorID
	e.DecidedAt = &decidedAt
	m.enrollments[id] = e
	m.decided = append(m.decided, id)
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	e, ok := m.enrollments[id]
	if !ok || e.Status == models.EnrollmentStatusPending {
		return repository.ErrNoTransition
	}
	delete(m.enrollments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockCourseReader struct {
	courses map[string]*models.CourseOffering
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.CourseOffering, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockStatsInvalidator struct {
	calls int
}

func (m *mockStatsInvalidator) Invalidate(ctx context.Context) {
	m.calls++
}

var (
	admin   = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	faculty = models.Actor{ID: "fac-1", Role: models.RoleFaculty}
	student = models.Actor{ID: "stu-1", Role: models.RoleStudent}
)

func newEnrollmentService(repo *mockEnrollmentRepo, courses *mockCourseReader) *EnrollmentService {
	if courses == nil {
		courses = &mockCourseReader{courses: map[string]*models.CourseOffering{
			"course-1": {ID: "course-1", Code: "CS101", OwnerID: "fac-1"},
		}}
	}
	return NewEnrollmentService(repo, courses, nil, nil)
}

func TestEnrollmentRequestCreatesPending(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := newEnrollmentService(repo, nil)

	detail, err := svc.Request(context.Background(), student, RequestEnrollmentRequest{CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPending, detail.Status)
	assert.Equal(t, "stu-1", detail.StudentID)
	assert.Nil(t, detail.DecidedBy)
}

func TestEnrollmentRequestRoleGated(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := newEnrollmentService(repo, nil)

	_, err := svc.Request(context.Background(), faculty, RequestEnrollmentRequest{CourseID: "course-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Request(context.Background(), admin, RequestEnrollmentRequest{CourseID: "course-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestEnrollmentRequestDuplicateActiveConflicts(t *testing.T) {
	repo := &mockEnrollmentRepo{active: map[string]bool{"stu-1|course-1": true}}
	svc := newEnrollmentService(repo, nil)

	_, err := svc.Request(context.Background(), student, RequestEnrollmentRequest{CourseID: "course-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Nil(t, repo.created)
}

func TestEnrollmentRequestUnknownCourse(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := newEnrollmentService(repo, &mockCourseReader{})

	_, err := svc.Request(context.Background(), student, RequestEnrollmentRequest{CourseID: "missing"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestEnrollmentDecideApprove(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", CourseID: "course-1", Status: models.EnrollmentStatusPending},
	}}
	svc := newEnrollmentService(repo, nil)

	detail, err := svc.Decide(context.Background(), admin, "enr-1", DecideEnrollmentRequest{Decision: models.EnrollmentDecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, detail.Status)
	require.NotNil(t, detail.DecidedBy)
	assert.Equal(t, "admin-1", *detail.DecidedBy)
	assert.NotNil(t, detail.DecidedAt)
}

func TestEnrollmentDecideAdminOnly(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusPending},
	}}
	svc := newEnrollmentService(repo, nil)

	for _, actor := range []models.Actor{faculty, student} {
		_, err := svc.Decide(context.Background(), actor, "enr-1", DecideEnrollmentRequest{Decision: models.EnrollmentDecisionApprove})
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	}
	// Denied callers never learn whether the record exists.
	_, err := svc.Decide(context.Background(), student, "missing", DecideEnrollmentRequest{Decision: models.EnrollmentDecisionApprove})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestEnrollmentDecideAlreadyDecided(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusApproved},
	}}
	svc := newEnrollmentService(repo, nil)

	_, err := svc.Decide(context.Background(), admin, "enr-1", DecideEnrollmentRequest{Decision: models.EnrollmentDecisionReject})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestEnrollmentDecideLostRace(t *testing.T) {
	// The read sees PENDING but another admin decides first; the guarded
	// update reports no transition and the caller gets invalid-state.
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusPending},
		},
		decideErr: repository.ErrNoTransition,
	}
	svc := newEnrollmentService(repo, nil)

	_, err := svc.Decide(context.Background(), admin, "enr-1", DecideEnrollmentRequest{Decision: models.EnrollmentDecisionApprove})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestEnrollmentRemove(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", Status: models.EnrollmentStatusRejected},
		"enr-2": {ID: "enr-2", Status: models.EnrollmentStatusPending},
	}}
	svc := newEnrollmentService(repo, nil)

	require.NoError(t, svc.Remove(context.Background(), admin, "enr-1"))
	assert.Contains(t, repo.deleted, "enr-1")

	err := svc.Remove(context.Background(), admin, "enr-2")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	err = svc.Remove(context.Background(), admin, "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestEnrollmentWritesInvalidateStatsCache(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", CourseID: "course-1", Status: models.EnrollmentStatusPending},
		"enr-2": {ID: "enr-2", Status: models.EnrollmentStatusRejected},
	}}
	svc := newEnrollmentService(repo, nil)
	stats := &mockStatsInvalidator{}
	svc.BindStatsInvalidator(stats)

	_, err := svc.Request(context.Background(), models.Actor{ID: "stu-2", Role: models.RoleStudent}, RequestEnrollmentRequest{CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.calls)

	_, err = svc.Decide(context.Background(), admin, "enr-1", DecideEnrollmentRequest{Decision: models.EnrollmentDecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.calls)

	require.NoError(t, svc.Remove(context.Background(), admin, "enr-2"))
	assert.Equal(t, 3, stats.calls)

	// A write that never lands leaves the cache alone.
	_, err = svc.Decide(context.Background(), admin, "enr-1", DecideEnrollmentRequest{Decision: models.EnrollmentDecisionReject})
	require.Error(t, err)
	assert.Equal(t, 3, stats.calls)
}

func TestEnrollmentListScopesStudents(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusApproved},
		"enr-2": {ID: "enr-2", StudentID: "stu-2", Status: models.EnrollmentStatusPending},
	}}
	svc := newEnrollmentService(repo, nil)

	list, _, err := svc.List(context.Background(), student, models.EnrollmentFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "stu-1", list[0].StudentID)

	list, _, err = svc.List(context.Background(), admin, models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestEnrollmentGetOwnershipDeny(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-2", Status: models.EnrollmentStatusApproved},
	}}
	svc := newEnrollmentService(repo, nil)

	// A student probing another student's enrollment gets FORBIDDEN, the
	// same as probing a nonexistent one.
	_, err := svc.Get(context.Background(), student, "enr-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	_, err = svc.Get(context.Background(), student, "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
