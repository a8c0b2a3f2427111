package models

import "time"

// SubmissionStatus represents the grading lifecycle of a submission.
// Legal transitions: SUBMITTED→GRADED, GRADED→RETURNED, RETURNED→GRADED.
type SubmissionStatus string

const (
	SubmissionStatusSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionStatusGraded    SubmissionStatus = "GRADED"
	SubmissionStatusReturned  SubmissionStatus = "RETURNED"
)

// Submission is create-once per (assignment, student). It may only exist for
// a published assignment and an approved enrollment in its course.
type Submission struct {
	ID           string           `db:"id" json:"id"`
	AssignmentID string           `db:"assignment_id" json:"assignment_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	ContentRef   string           `db:"content_ref" json:"content_ref"`
	Status       SubmissionStatus `db:"status" json:"status"`
	GradeID      *string          `db:"grade_id" json:"grade_id,omitempty"`
	SubmittedAt  time.Time        `db:"submitted_at" json:"submitted_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// SubmissionDetail enriches Submission with assignment and course context.
type SubmissionDetail struct {
	Submission
	AssignmentTitle string   `db:"assignment_title" json:"assignment_title"`
	CourseID        string   `db:"course_id" json:"course_id"`
	CourseOwnerID   string   `db:"course_owner_id" json:"course_owner_id"`
	MaxScore        float64  `db:"max_score" json:"max_score"`
	Score           *float64 `db:"score" json:"score,omitempty"`
}

// SubmissionFilter provides filters for listing submissions.
type SubmissionFilter struct {
	AssignmentID  string
	StudentID     string
	CourseOwnerID string
	Status        SubmissionStatus
	Page          int
	PageSize      int
}
