package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionLogout           = "LOGOUT"
	AuditActionUserCreate       = "USER_CREATE"
	AuditActionUserUpdate       = "USER_UPDATE"
	AuditActionUserDisable      = "USER_DISABLE"
	AuditActionRoleChange       = "ROLE_CHANGE"
	AuditActionPasswordChange   = "PASSWORD_CHANGE"
	AuditActionEnrollmentDecide = "ENROLLMENT_DECIDE"
	AuditActionEnrollmentRemove = "ENROLLMENT_REMOVE"
	AuditActionAssignmentPub    = "ASSIGNMENT_PUBLISH"
	AuditActionGradeRecord      = "GRADE_RECORD"
	AuditActionPinToggle        = "PIN_TOGGLE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
