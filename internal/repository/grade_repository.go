package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// GradeRepository owns the grade ledger: at most one grade row per
// submission, overwritten in place on regrade.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// FindBySubmissionID returns the grade for a submission, if any.
func (r *GradeRepository) FindBySubmissionID(ctx context.Context, submissionID string) (*models.Grade, error) {
	const query = `SELECT id, submission_id, score, graded_by, graded_at FROM grades WHERE submission_id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grade: %w", err)
	}
	return &grade, nil
}

// RecordForSubmission writes a grade and moves its submission to GRADED in
// one transaction. The submission row is locked first so a racing return or
// second grade serialises behind this write instead of interleaving with it.
//
// Grading is legal from SUBMITTED, GRADED and RETURNED. An upsert keyed on
// submission_id keeps the ledger at one row per submission: a regrade
// replaces score, grader and timestamp under the original grade id.
func (r *GradeRepository) RecordForSubmission(ctx context.Context, submissionID string, score float64, gradedBy string, gradedAt time.Time) (*models.Grade, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin grade tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status models.SubmissionStatus
	const lockQuery = `SELECT status FROM submissions WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &status, lockQuery, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock submission: %w", err)
	}

	switch status {
	case models.SubmissionStatusSubmitted, models.SubmissionStatusGraded, models.SubmissionStatusReturned:
	default:
		return nil, ErrNoTransition
	}

	grade := models.Grade{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		Score:        score,
		GradedBy:     gradedBy,
		GradedAt:     gradedAt,
	}
	const upsertQuery = `INSERT INTO grades (id, submission_id, score, graded_by, graded_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (submission_id)
        DO UPDATE SET score = EXCLUDED.score, graded_by = EXCLUDED.graded_by, graded_at = EXCLUDED.graded_at
        RETURNING id`
	if err := tx.GetContext(ctx, &grade.ID, upsertQuery, grade.ID, grade.SubmissionID, grade.Score, grade.GradedBy, grade.GradedAt); err != nil {
		return nil, fmt.Errorf("upsert grade: %w", err)
	}

	const updateQuery = `UPDATE submissions SET status = $2, grade_id = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateQuery, submissionID, models.SubmissionStatusGraded, grade.ID, gradedAt); err != nil {
		return nil, fmt.Errorf("mark submission graded: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grade tx: %w", err)
	}
	return &grade, nil
}

// ListByStudent returns a student's grades with assignment context.
func (r *GradeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error) {
	const query = `SELECT g.id, g.submission_id, g.score, g.graded_by, g.graded_at,
        s.assignment_id, a.title AS assignment_title, s.student_id, a.max_score
        FROM grades g
        JOIN submissions s ON s.id = g.submission_id
        JOIN assignments a ON a.id = s.assignment_id
        WHERE s.student_id = $1
        ORDER BY g.graded_at DESC`
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list grades by student: %w", err)
	}
	return grades, nil
}

// ListByAssignment returns every grade recorded for one assignment.
func (r *GradeRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.GradeDetail, error) {
	const query = `SELECT g.id, g.submission_id, g.score, g.graded_by, g.graded_at,
        s.assignment_id, a.title AS assignment_title, s.student_id, a.max_score
        FROM grades g
        JOIN submissions s ON s.id = g.submission_id
        JOIN assignments a ON a.id = s.assignment_id
        WHERE s.assignment_id = $1
        ORDER BY g.graded_at DESC`
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list grades by assignment: %w", err)
	}
	return grades, nil
}
