package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/authz"
	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type gradeRepository interface {
	FindBySubmissionID(ctx context.Context, submissionID string) (*models.Grade, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.GradeDetail, error)
}

// GradeService exposes read access to the grade ledger. Writes go through
// the submission workflow, never directly through this service.
type GradeService struct {
	repo        gradeRepository
	assignments assignmentDetailReader
	logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(repo gradeRepository, assignments assignmentDetailReader, logger *zap.Logger) *GradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, assignments: assignments, logger: logger}
}

// ListByStudent returns a student's grades: their own, or staff.
func (s *GradeService) ListByStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.GradeDetail, error) {
	if err := authz.Authorize(actor, authz.OpGradesRead, authz.Target{OwnerID: studentID}); err != nil {
		return nil, err
	}
	grades, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Store(err, "failed to list grades")
	}
	return grades, nil
}

// ListByAssignment returns every grade on an assignment, restricted to the
// owning faculty member or an admin.
func (s *GradeService) ListByAssignment(ctx context.Context, actor models.Actor, assignmentID string) ([]models.GradeDetail, error) {
	assignment, err := s.assignments.FindDetailByID(ctx, assignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			if authzErr := authz.Authorize(actor, authz.OpSubmissionGrade, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Store(err, "failed to load assignment")
	}
	if err := authz.Authorize(actor, authz.OpSubmissionGrade, authz.Target{CourseOwnerID: assignment.CourseOwnerID}); err != nil {
		return nil, err
	}
	grades, err := s.repo.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Store(err, "failed to list grades")
	}
	return grades, nil
}
