package models

import "time"

// AssignmentStatus represents assignment visibility.
// Publication is one-way: a published assignment never reverts to draft.
type AssignmentStatus string

const (
	AssignmentStatusDraft     AssignmentStatus = "DRAFT"
	AssignmentStatusPublished AssignmentStatus = "PUBLISHED"
)

// Assignment belongs to a course offering. It is visible to enrolled students
// only once published. The due date may still change after publication.
type Assignment struct {
	ID          string           `db:"id" json:"id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	Title       string           `db:"title" json:"title"`
	Description *string          `db:"description" json:"description,omitempty"`
	DueDate     time.Time        `db:"due_date" json:"due_date"`
	MaxScore    float64          `db:"max_score" json:"max_score"`
	Status      AssignmentStatus `db:"status" json:"status"`
	CreatedBy   string           `db:"created_by" json:"created_by"`
	PublishedAt *time.Time       `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// AssignmentDetail enriches Assignment with its course ownership context,
// needed for owner-scoped capability checks.
type AssignmentDetail struct {
	Assignment
	CourseCode    string `db:"course_code" json:"course_code"`
	CourseOwnerID string `db:"course_owner_id" json:"course_owner_id"`
}

// AssignmentFilter provides filters for listing assignments.
type AssignmentFilter struct {
	CourseID      string
	Status        AssignmentStatus
	PublishedOnly bool
	Page          int
	PageSize      int
}
