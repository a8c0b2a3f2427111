package models

import "time"

// Grade is the current scored result for one submission. The ledger keeps
// exactly one row per submission: regrading overwrites score, grader and
// timestamp under the same grade id. Prior scores are not retained.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	Score        float64   `db:"score" json:"score"`
	GradedBy     string    `db:"graded_by" json:"graded_by"`
	GradedAt     time.Time `db:"graded_at" json:"graded_at"`
}

// GradeDetail enriches Grade with assignment and student context.
type GradeDetail struct {
	Grade
	AssignmentID    string  `db:"assignment_id" json:"assignment_id"`
	AssignmentTitle string  `db:"assignment_title" json:"assignment_title"`
	StudentID       string  `db:"student_id" json:"student_id"`
	MaxScore        float64 `db:"max_score" json:"max_score"`
}
