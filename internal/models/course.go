package models

import "time"

// CourseOffering represents a course offered by a department and owned by a
// faculty member. Capacity is informational: requests may over-subscribe and
// approval does not enforce it.
type CourseOffering struct {
	ID         string    `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Title      string    `db:"title" json:"title"`
	Department string    `db:"department" json:"department"`
	OwnerID    string    `db:"owner_id" json:"owner_id"`
	Capacity   int       `db:"capacity" json:"capacity"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CourseOfferingDetail enriches CourseOffering with owner info.
type CourseOfferingDetail struct {
	CourseOffering
	OwnerName string `db:"owner_name" json:"owner_name"`
}

// CourseFilter provides filters for listing course offerings.
type CourseFilter struct {
	Department string
	OwnerID    string
	Search     string
	Page       int
	PageSize   int
}
