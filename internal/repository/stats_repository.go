package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// StatsRepository computes aggregate projections. Multi-query aggregations
// run inside a repeatable-read read-only transaction so every bucket reflects
// the same snapshot; concurrent writes land before or after the snapshot,
// never half inside it.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

var snapshotTxOptions = &sql.TxOptions{
	Isolation: sql.LevelRepeatableRead,
	ReadOnly:  true,
}

// StudentGradeStats aggregates a student's graded work. A single statement
// is its own snapshot, so no explicit transaction is needed here.
func (r *StatsRepository) StudentGradeStats(ctx context.Context, studentID string) (*models.StudentGradeStats, error) {
	const query = `SELECT COUNT(g.id) AS graded_count,
        AVG(g.score) AS mean_score,
        MIN(g.score) AS min_score,
        MAX(g.score) AS max_score
        FROM submissions s
        JOIN grades g ON g.submission_id = s.id
        WHERE s.student_id = $1 AND s.status IN ($2, $3)`
	var stats models.StudentGradeStats
	err := r.db.GetContext(ctx, &stats, query, studentID,
		models.SubmissionStatusGraded, models.SubmissionStatusReturned)
	if err != nil {
		return nil, fmt.Errorf("student grade stats: %w", err)
	}
	stats.StudentID = studentID
	return &stats, nil
}

// EnrollmentStatistics aggregates enrollments by status and by course.
func (r *StatsRepository) EnrollmentStatistics(ctx context.Context) (*models.EnrollmentStatistics, error) {
	tx, err := r.db.BeginTxx(ctx, snapshotTxOptions)
	if err != nil {
		return nil, fmt.Errorf("begin stats tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var stats models.EnrollmentStatistics

	const byStatusQuery = `SELECT status, COUNT(*) AS count FROM enrollments GROUP BY status ORDER BY status`
	if err := tx.SelectContext(ctx, &stats.ByStatus, byStatusQuery); err != nil {
		return nil, fmt.Errorf("enrollments by status: %w", err)
	}

	const byCourseQuery = `SELECT c.id AS course_id, c.code AS course_code, c.title AS course_title, c.capacity,
        COUNT(*) FILTER (WHERE e.status = 'APPROVED') AS approved,
        COUNT(*) FILTER (WHERE e.status = 'PENDING') AS pending
        FROM courses c
        LEFT JOIN enrollments e ON e.course_id = c.id
        GROUP BY c.id, c.code, c.title, c.capacity
        ORDER BY c.code`
	if err := tx.SelectContext(ctx, &stats.ByCourse, byCourseQuery); err != nil {
		return nil, fmt.Errorf("enrollments by course: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stats tx: %w", err)
	}
	return &stats, nil
}

// UserStatistics aggregates users by role and by department.
func (r *StatsRepository) UserStatistics(ctx context.Context) (*models.UserStatistics, error) {
	tx, err := r.db.BeginTxx(ctx, snapshotTxOptions)
	if err != nil {
		return nil, fmt.Errorf("begin stats tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var stats models.UserStatistics

	const byRoleQuery = `SELECT role, COUNT(*) AS count FROM users WHERE active = TRUE GROUP BY role ORDER BY role`
	if err := tx.SelectContext(ctx, &stats.ByRole, byRoleQuery); err != nil {
		return nil, fmt.Errorf("users by role: %w", err)
	}

	const byDepartmentQuery = `SELECT COALESCE(department, '') AS department, COUNT(*) AS count
        FROM users WHERE active = TRUE GROUP BY department ORDER BY department`
	if err := tx.SelectContext(ctx, &stats.ByDepartment, byDepartmentQuery); err != nil {
		return nil, fmt.Errorf("users by department: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stats tx: %w", err)
	}
	return &stats, nil
}
