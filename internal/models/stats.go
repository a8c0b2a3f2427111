package models

// StudentGradeStats summarises graded work for one student. Only submissions
// in GRADED or RETURNED state contribute; ungraded submissions are excluded.
type StudentGradeStats struct {
	StudentID   string   `json:"student_id"`
	GradedCount int      `db:"graded_count" json:"graded_count"`
	MeanScore   *float64 `db:"mean_score" json:"mean_score,omitempty"`
	MinScore    *float64 `db:"min_score" json:"min_score,omitempty"`
	MaxScore    *float64 `db:"max_score" json:"max_score,omitempty"`
}

// EnrollmentStatusCount groups enrollments by status.
type EnrollmentStatusCount struct {
	Status EnrollmentStatus `db:"status" json:"status"`
	Count  int              `db:"count" json:"count"`
}

// EnrollmentCourseCount groups enrollments per course offering.
type EnrollmentCourseCount struct {
	CourseID    string `db:"course_id" json:"course_id"`
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
	Capacity    int    `db:"capacity" json:"capacity"`
	Approved    int    `db:"approved" json:"approved"`
	Pending     int    `db:"pending" json:"pending"`
}

// EnrollmentStatistics is the aggregate projection over enrollments.
type EnrollmentStatistics struct {
	ByStatus []EnrollmentStatusCount `json:"by_status"`
	ByCourse []EnrollmentCourseCount `json:"by_course"`
}

// UserRoleCount groups users by role.
type UserRoleCount struct {
	Role  UserRole `db:"role" json:"role"`
	Count int      `db:"count" json:"count"`
}

// UserDepartmentCount groups users by department.
type UserDepartmentCount struct {
	Department string `db:"department" json:"department"`
	Count      int    `db:"count" json:"count"`
}

// UserStatistics is the aggregate projection over users.
type UserStatistics struct {
	ByRole       []UserRoleCount       `json:"by_role"`
	ByDepartment []UserDepartmentCount `json:"by_department"`
}
