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

// AssignmentRepository handles persistence of assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `a.id, a.course_id, a.title, a.description, a.due_date, a.max_score, a.status, a.created_by, a.published_at, a.created_at, a.updated_at`

// FindByID returns an assignment by its ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	const query = `SELECT id, course_id, title, description, due_date, max_score, status, created_by, published_at, created_at, updated_at
        FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return &assignment, nil
}

// FindDetailByID returns an assignment joined with its course ownership
// context, so callers can run owner-scoped capability checks.
func (r *AssignmentRepository) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s, c.code AS course_code, c.owner_id AS course_owner_id
        FROM assignments a
        JOIN courses c ON c.id = a.course_id
        WHERE a.id = $1`, assignmentColumns)
	var detail models.AssignmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment detail: %w", err)
	}
	return &detail, nil
}

// List returns assignments filtered by the provided criteria.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error) {
	base := `FROM assignments a JOIN courses c ON c.id = a.course_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("a.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.PublishedOnly {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, models.AssignmentStatusPublished)
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

	query := fmt.Sprintf(`SELECT %s, c.code AS course_code, c.owner_id AS course_owner_id
        %s ORDER BY a.due_date ASC LIMIT %d OFFSET %d`, assignmentColumns, base+clause, size, offset)

	var assignments []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	return assignments, total, nil
}

// Create persists a new draft assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusDraft
	}
	const query = `INSERT INTO assignments (id, course_id, title, description, due_date, max_score, status, created_by, published_at, created_at, updated_at)
        VALUES (:id, :course_id, :title, :description, :due_date, :max_score, :status, :created_by, :published_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Update modifies mutable fields of a draft assignment. Title, description
// and max score are frozen once published; the guard enforces that here so a
// concurrent publish cannot interleave with an edit.
func (r *AssignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	assignment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assignments SET title = :title, description = :description, due_date = :due_date, max_score = :max_score, updated_at = :updated_at
        WHERE id = :id AND status = 'DRAFT'`
	res, err := r.db.NamedExecContext(ctx, query, assignment)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update assignment result: %w", err)
	}
	if affected == 0 {
		return ErrNoTransition
	}
	return nil
}

// UpdateDueDate changes the due date regardless of publication state.
func (r *AssignmentRepository) UpdateDueDate(ctx context.Context, id string, dueDate, updatedAt time.Time) error {
	const query = `UPDATE assignments SET due_date = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, dueDate, updatedAt); err != nil {
		return fmt.Errorf("update assignment due date: %w", err)
	}
	return nil
}

// Publish flips a draft assignment to published, guarded on the row still
// being DRAFT. Publication is one-way; a second publish attempt or a race
// between two publishers yields ErrNoTransition for the loser.
func (r *AssignmentRepository) Publish(ctx context.Context, id string, publishedAt time.Time) error {
	const query = `UPDATE assignments SET status = $2, published_at = $3, updated_at = $3
        WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.AssignmentStatusPublished, publishedAt, models.AssignmentStatusDraft)
	if err != nil {
		return fmt.Errorf("publish assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("publish assignment result: %w", err)
	}
	if affected == 0 {
		return ErrNoTransition
	}
	return nil
}

// Delete removes a draft assignment. Published assignments with submissions
// stay; the draft guard keeps student work from being orphaned.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM assignments WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, models.AssignmentStatusDraft)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment result: %w", err)
	}
	if affected == 0 {
		return ErrNoTransition
	}
	return nil
}
