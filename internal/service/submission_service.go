package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/authz"
	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/repository"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type submissionRepository interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindDetailByID(ctx context.Context, id string) (*models.SubmissionDetail, error)
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	UpdateContent(ctx context.Context, id, contentRef string, updatedAt time.Time) error
	MarkReturned(ctx context.Context, id string, updatedAt time.Time) error
}

type assignmentDetailReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
}

type approvedEnrollmentReader interface {
	FindApproved(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
}

type gradeRecorder interface {
	RecordForSubmission(ctx context.Context, submissionID string, score float64, gradedBy string, gradedAt time.Time) (*models.Grade, error)
}

// CreateSubmissionRequest describes a student hand-in payload.
type CreateSubmissionRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required"`
	ContentRef   string `json:"content_ref" validate:"required"`
}

// ReplaceSubmissionRequest swaps the content of an ungraded submission.
type ReplaceSubmissionRequest struct {
	ContentRef string `json:"content_ref" validate:"required"`
}

// GradeSubmissionRequest records a score for a submission.
type GradeSubmissionRequest struct {
	Score float64 `json:"score" validate:"min=0"`
}

// SubmissionService orchestrates the submission and grading workflow.
type SubmissionService struct {
	repo        submissionRepository
	assignments assignmentDetailReader
	enrollments approvedEnrollmentReader
	grades      gradeRecorder
	stats       statsInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// BindStatsInvalidator attaches the cache invalidation hook fired after
// grade writes.
func (s *SubmissionService) BindStatsInvalidator(stats statsInvalidator) {
	s.stats = stats
}

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(repo submissionRepository, assignments assignmentDetailReader, enrollments approvedEnrollmentReader, grades gradeRecorder, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		repo:        repo,
		assignments: assignments,
		enrollments: enrollments,
		grades:      grades,
		validator:   validate,
		logger:      logger,
	}
}

// List returns submissions the actor may see. Students are forced onto
// their own submissions, faculty onto the courses they own.
func (s *SubmissionService) List(ctx context.Context, actor models.Actor, filter models.SubmissionFilter) ([]models.SubmissionDetail, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleStudent:
		filter.StudentID = actor.ID
	case models.RoleFaculty:
		filter.CourseOwnerID = actor.ID
	}
	if err := authz.Authorize(actor, authz.OpSubmissionRead, authz.Target{OwnerID: filter.StudentID, CourseOwnerID: filter.CourseOwnerID}); err != nil {
		return nil, nil, err
	}
	submissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Store(err, "failed to list submissions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return submissions, pagination, nil
}

// Get returns one submission: its owner, the owning faculty or an admin.
func (s *SubmissionService) Get(ctx context.Context, actor models.Actor, id string) (*models.SubmissionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			// Empty target keeps the deny uniform with the unowned case.
			if authzErr := authz.Authorize(actor, authz.OpSubmissionRead, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Store(err, "failed to load submission")
	}
	if err := authz.Authorize(actor, authz.OpSubmissionRead, authz.Target{OwnerID: detail.StudentID, CourseOwnerID: detail.CourseOwnerID}); err != nil {
		return nil, err
	}
	return detail, nil
}

// Submit hands in work for an assignment. Preconditions: the assignment is
// published and the acting student holds an approved enrollment in its
// course. Each (assignment, student) pair accepts exactly one submission.
func (s *SubmissionService) Submit(ctx context.Context, actor models.Actor, req CreateSubmissionRequest) (*models.SubmissionDetail, error) {
	if err := authz.Authorize(actor, authz.OpSubmissionCreate, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	assignment, err := s.assignments.FindDetailByID(ctx, req.AssignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Store(err, "failed to load assignment")
	}
	if assignment.Status != models.AssignmentStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "assignment is not published")
	}
	if _, err := s.enrollments.FindApproved(ctx, actor.ID, assignment.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "approved enrollment required to submit")
		}
		return nil, appErrors.Store(err, "failed to verify enrollment")
	}
	submission := &models.Submission{
		AssignmentID: req.AssignmentID,
		StudentID:    actor.ID,
		ContentRef:   req.ContentRef,
		Status:       models.SubmissionStatusSubmitted,
		SubmittedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "submission already exists for assignment")
		}
		return nil, appErrors.Store(err, "failed to create submission")
	}
	s.logger.Info("submission created",
		zap.String("submission_id", submission.ID),
		zap.String("assignment_id", req.AssignmentID),
		zap.String("student_id", actor.ID))
	return s.loadDetail(ctx, submission.ID)
}

// Replace swaps the content of the actor's own submission while it is still
// ungraded. Graded and returned submissions are frozen.
func (s *SubmissionService) Replace(ctx context.Context, actor models.Actor, id string, req ReplaceSubmissionRequest) (*models.SubmissionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	submission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			if authzErr := authz.Authorize(actor, authz.OpSubmissionReplace, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Store(err, "failed to load submission")
	}
	if err := authz.Authorize(actor, authz.OpSubmissionReplace, authz.Target{OwnerID: submission.StudentID}); err != nil {
		return nil, err
	}
	if submission.Status != models.SubmissionStatusSubmitted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "submission content frozen after grading")
	}
	if err := s.repo.UpdateContent(ctx, id, req.ContentRef, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNoTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "submission content frozen after grading")
		}
		return nil, appErrors.Store(err, "failed to update submission")
	}
	return s.loadDetail(ctx, id)
}

// Grade records a score for a submission and moves it to GRADED. Regrading a
// graded or returned submission overwrites the existing grade in place. The
// score must fall within [0, max score] of the assignment.
func (s *SubmissionService) Grade(ctx context.Context, actor models.Actor, id string, req GradeSubmissionRequest) (*models.SubmissionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	detail, err := s.authorizedDetail(ctx, actor, id, authz.OpSubmissionGrade)
	if err != nil {
		return nil, err
	}
	if req.Score < 0 || req.Score > detail.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score out of range for assignment")
	}
	grade, err := s.grades.RecordForSubmission(ctx, id, req.Score, actor.ID, time.Now().UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		if errors.Is(err, repository.ErrNoTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "submission not gradable from current state")
		}
		return nil, appErrors.Store(err, "failed to record grade")
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
	s.logger.Info("submission graded",
		zap.String("submission_id", id),
		zap.String("grade_id", grade.ID),
		zap.Float64("score", req.Score),
		zap.String("graded_by", actor.ID))
	return s.loadDetail(ctx, id)
}

// Return hands a graded submission back to the student. Only the GRADED
// state allows it; regrading afterwards moves the submission back to GRADED.
func (s *SubmissionService) Return(ctx context.Context, actor models.Actor, id string) (*models.SubmissionDetail, error) {
	detail, err := s.authorizedDetail(ctx, actor, id, authz.OpSubmissionReturn)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.SubmissionStatusGraded {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only graded submissions can be returned")
	}
	if err := s.repo.MarkReturned(ctx, id, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNoTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "only graded submissions can be returned")
		}
		return nil, appErrors.Store(err, "failed to return submission")
	}
	s.logger.Info("submission returned",
		zap.String("submission_id", id),
		zap.String("returned_by", actor.ID))
	return s.loadDetail(ctx, id)
}

func (s *SubmissionService) authorizedDetail(ctx context.Context, actor models.Actor, id string, op authz.Operation) (*models.SubmissionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			if authzErr := authz.Authorize(actor, op, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Store(err, "failed to load submission")
	}
	if err := authz.Authorize(actor, op, authz.Target{CourseOwnerID: detail.CourseOwnerID}); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *SubmissionService) loadDetail(ctx context.Context, id string) (*models.SubmissionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load submission detail")
	}
	return detail, nil
}
