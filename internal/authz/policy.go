// Package authz holds the capability matrix consulted before every
// state-changing operation. The matrix is declarative and side-effect free:
// each operation maps to the set of roles allowed to perform it, optionally
// narrowed by an ownership predicate evaluated against the target context.
package authz

import (
	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

// Operation enumerates every gated portal operation.
type Operation string

const (
	OpUserCreate     Operation = "user.create"
	OpUserRead       Operation = "user.read"
	OpUserUpdate     Operation = "user.update"
	OpUserDisable    Operation = "user.disable"
	OpUserRoleChange Operation = "user.role_change"

	OpCourseCreate Operation = "course.create"
	OpCourseRead   Operation = "course.read"
	OpCourseUpdate Operation = "course.update"
	OpCourseDelete Operation = "course.delete"

	OpEnrollmentRequest Operation = "enrollment.request"
	OpEnrollmentRead    Operation = "enrollment.read"
	OpEnrollmentDecide  Operation = "enrollment.decide"
	OpEnrollmentRemove  Operation = "enrollment.remove"

	OpAssignmentCreate  Operation = "assignment.create"
	OpAssignmentRead    Operation = "assignment.read"
	OpAssignmentUpdate  Operation = "assignment.update"
	OpAssignmentPublish Operation = "assignment.publish"

	OpSubmissionCreate  Operation = "submission.create"
	OpSubmissionRead    Operation = "submission.read"
	OpSubmissionReplace Operation = "submission.replace"
	OpSubmissionGrade   Operation = "submission.grade"
	OpSubmissionReturn  Operation = "submission.return"

	OpGradesRead Operation = "grades.read"

	OpStatsStudentGrades Operation = "stats.student_grades"
	OpStatsEnrollments   Operation = "stats.enrollments"
	OpStatsUsers         Operation = "stats.users"

	OpAnnouncementCreate Operation = "announcement.create"
	OpAnnouncementUpdate Operation = "announcement.update"
	OpAnnouncementDelete Operation = "announcement.delete"
	OpAnnouncementPin    Operation = "announcement.pin"

	OpReportRequest Operation = "report.request"
)

// Operations lists every enumerated operation, for exhaustive checks.
var Operations = []Operation{
	OpUserCreate, OpUserRead, OpUserUpdate, OpUserDisable, OpUserRoleChange,
	OpCourseCreate, OpCourseRead, OpCourseUpdate, OpCourseDelete,
	OpEnrollmentRequest, OpEnrollmentRead, OpEnrollmentDecide, OpEnrollmentRemove,
	OpAssignmentCreate, OpAssignmentRead, OpAssignmentUpdate, OpAssignmentPublish,
	OpSubmissionCreate, OpSubmissionRead, OpSubmissionReplace, OpSubmissionGrade, OpSubmissionReturn,
	OpGradesRead,
	OpStatsStudentGrades, OpStatsEnrollments, OpStatsUsers,
	OpAnnouncementCreate, OpAnnouncementUpdate, OpAnnouncementDelete, OpAnnouncementPin,
	OpReportRequest,
}

// Target carries the ownership context an operation is evaluated against.
// OwnerID identifies the record owner for self-scoped operations (a student's
// own submission or grades). CourseOwnerID identifies the owning faculty of
// the course a record belongs to, for owner-scoped faculty operations.
type Target struct {
	OwnerID       string
	CourseOwnerID string
}

type rule struct {
	roles map[models.UserRole]struct{}
	// self grants access when the actor is the record owner regardless of role.
	self bool
	// courseOwner restricts FACULTY access to the owning faculty member;
	// admins remain unrestricted.
	courseOwner bool
}

func roles(rs ...models.UserRole) map[models.UserRole]struct{} {
	set := make(map[models.UserRole]struct{}, len(rs))
	for _, r := range rs {
		set[r] = struct{}{}
	}
	return set
}

var policy = map[Operation]rule{
	OpUserCreate:     {roles: roles(models.RoleAdmin)},
	OpUserRead:       {roles: roles(models.RoleAdmin, models.RoleFaculty), self: true},
	OpUserUpdate:     {roles: roles(models.RoleAdmin), self: true},
	OpUserDisable:    {roles: roles(models.RoleAdmin)},
	OpUserRoleChange: {roles: roles(models.RoleAdmin)},

	OpCourseCreate: {roles: roles(models.RoleAdmin)},
	OpCourseRead:   {roles: roles(models.RoleAdmin, models.RoleFaculty, models.RoleStudent)},
	OpCourseUpdate: {roles: roles(models.RoleAdmin, models.RoleFaculty), courseOwner: true},
	OpCourseDelete: {roles: roles(models.RoleAdmin)},

	OpEnrollmentRequest: {roles: roles(models.RoleStudent)},
	OpEnrollmentRead:    {roles: roles(models.RoleAdmin, models.RoleFaculty), self: true},
	OpEnrollmentDecide:  {roles: roles(models.RoleAdmin)},
	OpEnrollmentRemove:  {roles: roles(models.RoleAdmin)},

	OpAssignmentCreate:  {roles: roles(models.RoleAdmin, models.RoleFaculty), courseOwner: true},
	OpAssignmentRead:    {roles: roles(models.RoleAdmin, models.RoleFaculty, models.RoleStudent)},
	OpAssignmentUpdate:  {roles: roles(models.RoleAdmin, models.RoleFaculty), courseOwner: true},
	OpAssignmentPublish: {roles: roles(models.RoleAdmin, models.RoleFaculty), courseOwner: true},

	OpSubmissionCreate:  {roles: roles(models.RoleStudent)},
	OpSubmissionRead:    {roles: roles(models.RoleAdmin, models.RoleFaculty), self: true, courseOwner: true},
	// Replace carries no role grant: only the owning student qualifies.
	OpSubmissionReplace: {self: true},
	OpSubmissionGrade:   {roles: roles(models.RoleAdmin, models.RoleFaculty), courseOwner: true},
	OpSubmissionReturn:  {roles: roles(models.RoleAdmin, models.RoleFaculty), courseOwner: true},

	OpGradesRead: {roles: roles(models.RoleAdmin, models.RoleFaculty), self: true},

	OpStatsStudentGrades: {roles: roles(models.RoleAdmin, models.RoleFaculty), self: true},
	OpStatsEnrollments:   {roles: roles(models.RoleAdmin)},
	OpStatsUsers:         {roles: roles(models.RoleAdmin)},

	OpAnnouncementCreate: {roles: roles(models.RoleAdmin, models.RoleFaculty)},
	OpAnnouncementUpdate: {roles: roles(models.RoleAdmin), self: true},
	OpAnnouncementDelete: {roles: roles(models.RoleAdmin)},
	OpAnnouncementPin:    {roles: roles(models.RoleAdmin)},

	OpReportRequest: {roles: roles(models.RoleAdmin, models.RoleFaculty), courseOwner: true},
}

// Authorize decides whether the actor may perform op against target.
// Denial is always ErrForbidden, independent of whether the target resource
// exists, so unauthorized callers cannot probe for existence. Unknown
// operations are denied, making the function total over its inputs.
func Authorize(actor models.Actor, op Operation, target Target) error {
	r, ok := policy[op]
	if !ok {
		return appErrors.ErrForbidden
	}

	if r.self && target.OwnerID != "" && actor.ID == target.OwnerID {
		return nil
	}

	if _, allowed := r.roles[actor.Role]; !allowed {
		return appErrors.ErrForbidden
	}

	// Faculty role membership alone is not enough for owner-scoped
	// operations: the actor must own the course. Admins bypass the check.
	if r.courseOwner && actor.Role == models.RoleFaculty {
		if target.CourseOwnerID == "" || actor.ID != target.CourseOwnerID {
			return appErrors.ErrForbidden
		}
	}

	return nil
}

// Allowed is a convenience wrapper returning a boolean verdict.
func Allowed(actor models.Actor, op Operation, target Target) bool {
	return Authorize(actor, op, target) == nil
}
