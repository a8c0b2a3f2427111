package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

var allRoles = []models.UserRole{models.RoleAdmin, models.RoleFaculty, models.RoleStudent}

func TestAuthorizeTotalOverMatrix(t *testing.T) {
	// Every (role, operation) pair must yield a deterministic allow or a
	// FORBIDDEN denial; no combination may panic or fall through undefined.
	for _, role := range allRoles {
		actor := models.Actor{ID: "actor-1", Role: role}
		for _, op := range Operations {
			err := Authorize(actor, op, Target{})
			if err != nil {
				require.True(t, appErrors.Is(err, appErrors.ErrForbidden),
					"op %s role %s: denial must be FORBIDDEN", op, role)
			}
			// Same inputs, same verdict.
			again := Authorize(actor, op, Target{})
			assert.Equal(t, err == nil, again == nil, "op %s role %s not deterministic", op, role)
		}
	}
}

func TestAuthorizeUnknownOperationDenied(t *testing.T) {
	err := Authorize(models.Actor{ID: "a", Role: models.RoleAdmin}, Operation("bogus.op"), Target{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestAdminOnlyOperations(t *testing.T) {
	adminOnly := []Operation{
		OpUserCreate, OpUserDisable, OpUserRoleChange,
		OpEnrollmentDecide, OpEnrollmentRemove,
		OpStatsEnrollments, OpStatsUsers,
		OpAnnouncementPin, OpAnnouncementDelete,
	}
	for _, op := range adminOnly {
		assert.True(t, Allowed(models.Actor{ID: "a", Role: models.RoleAdmin}, op, Target{}), "admin denied %s", op)
		assert.False(t, Allowed(models.Actor{ID: "f", Role: models.RoleFaculty}, op, Target{}), "faculty allowed %s", op)
		assert.False(t, Allowed(models.Actor{ID: "s", Role: models.RoleStudent}, op, Target{}), "student allowed %s", op)
	}
}

func TestCourseOwnerScoping(t *testing.T) {
	owner := models.Actor{ID: "fac-1", Role: models.RoleFaculty}
	other := models.Actor{ID: "fac-2", Role: models.RoleFaculty}
	admin := models.Actor{ID: "adm-1", Role: models.RoleAdmin}
	target := Target{CourseOwnerID: "fac-1"}

	for _, op := range []Operation{OpAssignmentPublish, OpSubmissionGrade, OpSubmissionReturn, OpCourseUpdate} {
		assert.True(t, Allowed(owner, op, target), "owning faculty denied %s", op)
		assert.False(t, Allowed(other, op, target), "non-owning faculty allowed %s", op)
		assert.True(t, Allowed(admin, op, target), "admin denied %s", op)
	}

	// Missing ownership context denies faculty rather than allowing by default.
	assert.False(t, Allowed(owner, OpSubmissionGrade, Target{}))
}

func TestSelfScoping(t *testing.T) {
	student := models.Actor{ID: "stu-1", Role: models.RoleStudent}
	stranger := models.Actor{ID: "stu-2", Role: models.RoleStudent}

	own := Target{OwnerID: "stu-1"}
	assert.True(t, Allowed(student, OpGradesRead, own))
	assert.True(t, Allowed(student, OpStatsStudentGrades, own))
	assert.True(t, Allowed(student, OpSubmissionRead, own))
	assert.False(t, Allowed(stranger, OpGradesRead, own))
	assert.False(t, Allowed(stranger, OpSubmissionRead, own))

	// Self scoping never applies without an owner in the target.
	assert.False(t, Allowed(student, OpGradesRead, Target{}))
}

func TestStudentWorkflowEntryPoints(t *testing.T) {
	student := models.Actor{ID: "stu-1", Role: models.RoleStudent}
	faculty := models.Actor{ID: "fac-1", Role: models.RoleFaculty}

	assert.True(t, Allowed(student, OpEnrollmentRequest, Target{}))
	assert.True(t, Allowed(student, OpSubmissionCreate, Target{}))
	assert.False(t, Allowed(faculty, OpEnrollmentRequest, Target{}))
	assert.False(t, Allowed(faculty, OpSubmissionCreate, Target{}))
}
