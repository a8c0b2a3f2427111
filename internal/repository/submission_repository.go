package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// SubmissionRepository handles persistence of submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionDetailColumns = `s.id, s.assignment_id, s.student_id, s.content_ref, s.status, s.grade_id, s.submitted_at, s.updated_at,
        a.title AS assignment_title, a.course_id AS course_id, a.max_score AS max_score,
        c.owner_id AS course_owner_id, g.score AS score`

const submissionDetailJoins = `FROM submissions s
        JOIN assignments a ON a.id = s.assignment_id
        JOIN courses c ON c.id = a.course_id
        LEFT JOIN grades g ON g.submission_id = s.id`

// FindByID returns a submission by its ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, content_ref, status, grade_id, submitted_at, updated_at
        FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return &submission, nil
}

// FindDetailByID returns a submission joined with its assignment, course
// ownership and current score.
func (r *SubmissionRepository) FindDetailByID(ctx context.Context, id string) (*models.SubmissionDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE s.id = $1`, submissionDetailColumns, submissionDetailJoins)
	var detail models.SubmissionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission detail: %w", err)
	}
	return &detail, nil
}

// FindByAssignmentAndStudent returns the single submission for the pair.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, content_ref, status, grade_id, submitted_at, updated_at
        FROM submissions WHERE assignment_id = $1 AND student_id = $2 LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission by pair: %w", err)
	}
	return &submission, nil
}

// List returns submissions filtered by the provided criteria.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.AssignmentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.assignment_id = $%d", len(args)+1))
		args = append(args, filter.AssignmentID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseOwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("c.owner_id = $%d", len(args)+1))
		args = append(args, filter.CourseOwnerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY s.submitted_at DESC LIMIT %d OFFSET %d`,
		submissionDetailColumns, submissionDetailJoins+clause, size, offset)

	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", submissionDetailJoins+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return submissions, total, nil
}

// Create persists a new submission. The unique index on
// (assignment_id, student_id) makes create-once authoritative: a concurrent
// duplicate attempt loses with ErrDuplicate rather than producing two rows.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = now
	}
	submission.UpdatedAt = now
	if submission.Status == "" {
		submission.Status = models.SubmissionStatusSubmitted
	}
	const query = `INSERT INTO submissions (id, assignment_id, student_id, content_ref, status, grade_id, submitted_at, updated_at)
        VALUES (:id, :assignment_id, :student_id, :content_ref, :status, :grade_id, :submitted_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// UpdateContent replaces the submitted content, guarded on the row still
// being SUBMITTED. Once graded the content is frozen until returned.
func (r *SubmissionRepository) UpdateContent(ctx context.Context, id, contentRef string, updatedAt time.Time) error {
	const query = `UPDATE submissions SET content_ref = $2, updated_at = $3
        WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, contentRef, updatedAt, models.SubmissionStatusSubmitted)
	if err != nil {
		return fmt.Errorf("update submission content: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission content result: %w", err)
	}
	if affected == 0 {
		return ErrNoTransition
	}
	return nil
}

// MarkReturned transitions GRADED → RETURNED, guarded on the current state so
// concurrent returns (or a return racing a regrade) resolve to one winner.
func (r *SubmissionRepository) MarkReturned(ctx context.Context, id string, updatedAt time.Time) error {
	const query = `UPDATE submissions SET status = $2, updated_at = $3
        WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.SubmissionStatusReturned, updatedAt, models.SubmissionStatusGraded)
	if err != nil {
		return fmt.Errorf("return submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("return submission result: %w", err)
	}
	if affected == 0 {
		return ErrNoTransition
	}
	return nil
}
