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

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsActive(ctx context.Context, studentID, courseID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Decide(ctx context.Context, id string, status models.EnrollmentStatus, actorID string, decidedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseOffering, error)
}

// statsInvalidator drops cached statistics after a write that changes the
// underlying aggregates. Invalidation is best effort; a missed drop only
// extends staleness to the cache TTL.
type statsInvalidator interface {
	Invalidate(ctx context.Context)
}

// RequestEnrollmentRequest describes an enrollment request payload.
type RequestEnrollmentRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// DecideEnrollmentRequest carries the admin verdict for a pending enrollment.
type DecideEnrollmentRequest struct {
	Decision models.EnrollmentDecision `json:"decision" validate:"required,oneof=APPROVE REJECT"`
}

// EnrollmentService orchestrates the enrollment workflow.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseReader
	stats     statsInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// BindStatsInvalidator attaches the cache invalidation hook fired after
// enrollment writes.
func (s *EnrollmentService) BindStatsInvalidator(stats statsInvalidator) {
	s.stats = stats
}

func (s *EnrollmentService) invalidateStats(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// List returns enrollments the actor may see. Students are forced onto their
// own records; faculty and admins see everything matching the filter.
func (s *EnrollmentService) List(ctx context.Context, actor models.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if actor.Role == models.RoleStudent {
		filter.StudentID = actor.ID
	}
	if err := authz.Authorize(actor, authz.OpEnrollmentRead, authz.Target{OwnerID: filter.StudentID}); err != nil {
		return nil, nil, err
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Store(err, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// Get returns one enrollment, owner or staff only.
func (s *EnrollmentService) Get(ctx context.Context, actor models.Actor, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			// Empty target: a caller whose access would hinge on owning the
			// record gets the same FORBIDDEN whether or not it exists.
			if authzErr := authz.Authorize(actor, authz.OpEnrollmentRead, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Store(err, "failed to load enrollment")
	}
	if err := authz.Authorize(actor, authz.OpEnrollmentRead, authz.Target{OwnerID: detail.StudentID}); err != nil {
		return nil, err
	}
	return detail, nil
}

// Request creates a pending enrollment for the acting student. At most one
// non-rejected enrollment may exist per (student, course) pair.
func (s *EnrollmentService) Request(ctx context.Context, actor models.Actor, req RequestEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := authz.Authorize(actor, authz.OpEnrollmentRequest, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Store(err, "failed to load course")
	}
	exists, err := s.repo.ExistsActive(ctx, actor.ID, req.CourseID)
	if err != nil {
		return nil, appErrors.Store(err, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment already pending or approved for course")
	}
	enrollment := &models.Enrollment{
		StudentID:   actor.ID,
		CourseID:    req.CourseID,
		Status:      models.EnrollmentStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment already pending or approved for course")
		}
		return nil, appErrors.Store(err, "failed to create enrollment")
	}
	s.invalidateStats(ctx)
	s.logger.Info("enrollment requested",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", actor.ID),
		zap.String("course_id", req.CourseID))
	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load enrollment detail")
	}
	return detail, nil
}

// Decide applies an admin verdict to a pending enrollment. The state guard
// lives in the repository; when two admins race, the loser gets an
// invalid-transition error rather than overwriting the winner's verdict.
func (s *EnrollmentService) Decide(ctx context.Context, actor models.Actor, id string, req DecideEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := authz.Authorize(actor, authz.OpEnrollmentDecide, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Store(err, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment already decided")
	}

	status := models.EnrollmentStatusApproved
	if req.Decision == models.EnrollmentDecisionReject {
		status = models.EnrollmentStatusRejected
	}
	if err := s.repo.Decide(ctx, id, status, actor.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNoTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment already decided")
		}
		return nil, appErrors.Store(err, "failed to decide enrollment")
	}
	s.invalidateStats(ctx)
	s.logger.Info("enrollment decided",
		zap.String("enrollment_id", id),
		zap.String("decision", string(req.Decision)),
		zap.String("decided_by", actor.ID))
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load enrollment detail")
	}
	return detail, nil
}

// Remove deletes a decided enrollment. Pending requests cannot be removed;
// they must be decided first.
func (s *EnrollmentService) Remove(ctx context.Context, actor models.Actor, id string) error {
	if err := authz.Authorize(actor, authz.OpEnrollmentRemove, authz.Target{}); err != nil {
		return err
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Store(err, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidState, "pending enrollment must be decided before removal")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNoTransition) {
			return appErrors.Clone(appErrors.ErrInvalidState, "pending enrollment must be decided before removal")
		}
		return appErrors.Store(err, "failed to remove enrollment")
	}
	s.invalidateStats(ctx)
	s.logger.Info("enrollment removed", zap.String("enrollment_id", id), zap.String("removed_by", actor.ID))
	return nil
}
