package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/authz"
	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseOfferingDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.CourseOffering, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseOfferingDetail, error)
	Create(ctx context.Context, course *models.CourseOffering) error
	Update(ctx context.Context, course *models.CourseOffering) error
	Delete(ctx context.Context, id string) error
}

type facultyReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateCourseRequest describes a course offering payload.
type CreateCourseRequest struct {
	Code       string `json:"code" validate:"required,max=20"`
	Title      string `json:"title" validate:"required,max=200"`
	Department string `json:"department" validate:"required,max=100"`
	OwnerID    string `json:"owner_id" validate:"required"`
	Capacity   int    `json:"capacity" validate:"min=0"`
}

// UpdateCourseRequest describes mutable course fields.
type UpdateCourseRequest struct {
	Title      string `json:"title" validate:"required,max=200"`
	Department string `json:"department" validate:"required,max=100"`
	OwnerID    string `json:"owner_id" validate:"required"`
	Capacity   int    `json:"capacity" validate:"min=0"`
}

// CourseService manages course offerings.
type CourseService struct {
	repo      courseRepository
	users     facultyReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, users facultyReader, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, users: users, validator: validate, logger: logger}
}

// List returns course offerings. Visible to every authenticated role.
func (s *CourseService) List(ctx context.Context, actor models.Actor, filter models.CourseFilter) ([]models.CourseOfferingDetail, *models.Pagination, error) {
	if err := authz.Authorize(actor, authz.OpCourseRead, authz.Target{}); err != nil {
		return nil, nil, err
	}
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Store(err, "failed to list courses")
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
	return courses, pagination, nil
}

// Get returns one course offering.
func (s *CourseService) Get(ctx context.Context, actor models.Actor, id string) (*models.CourseOfferingDetail, error) {
	if err := authz.Authorize(actor, authz.OpCourseRead, authz.Target{}); err != nil {
		return nil, err
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Store(err, "failed to load course")
	}
	return detail, nil
}

// Create registers a new course offering owned by a faculty member. Admin only.
func (s *CourseService) Create(ctx context.Context, actor models.Actor, req CreateCourseRequest) (*models.CourseOfferingDetail, error) {
	if err := authz.Authorize(actor, authz.OpCourseCreate, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := s.validateOwner(ctx, req.OwnerID); err != nil {
		return nil, err
	}
	course := &models.CourseOffering{
		Code:       req.Code,
		Title:      req.Title,
		Department: req.Department,
		OwnerID:    req.OwnerID,
		Capacity:   req.Capacity,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Store(err, "failed to create course")
	}
	s.logger.Info("course created",
		zap.String("course_id", course.ID),
		zap.String("code", course.Code),
		zap.String("created_by", actor.ID))
	detail, err := s.repo.FindDetailByID(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load course detail")
	}
	return detail, nil
}

// Update edits a course offering: its owning faculty member or an admin.
func (s *CourseService) Update(ctx context.Context, actor models.Actor, id string, req UpdateCourseRequest) (*models.CourseOfferingDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			if authzErr := authz.Authorize(actor, authz.OpCourseUpdate, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Store(err, "failed to load course")
	}
	if err := authz.Authorize(actor, authz.OpCourseUpdate, authz.Target{CourseOwnerID: course.OwnerID}); err != nil {
		return nil, err
	}
	// Only admins may reassign ownership.
	if req.OwnerID != course.OwnerID {
		if actor.Role != models.RoleAdmin {
			return nil, appErrors.ErrForbidden
		}
		if err := s.validateOwner(ctx, req.OwnerID); err != nil {
			return nil, err
		}
	}
	course.Title = req.Title
	course.Department = req.Department
	course.OwnerID = req.OwnerID
	course.Capacity = req.Capacity
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Store(err, "failed to update course")
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load course detail")
	}
	return detail, nil
}

// Delete removes a course offering. Admin only.
func (s *CourseService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := authz.Authorize(actor, authz.OpCourseDelete, authz.Target{}); err != nil {
		return err
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Store(err, "failed to load course")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Store(err, "failed to delete course")
	}
	return nil
}

func (s *CourseService) validateOwner(ctx context.Context, ownerID string) error {
	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrValidation, "owner does not exist")
		}
		return appErrors.Store(err, "failed to load owner")
	}
	if owner.Role != models.RoleFaculty && owner.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrValidation, "owner must hold a faculty role")
	}
	if !owner.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "owner account is inactive")
	}
	return nil
}
