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

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	UpdateDueDate(ctx context.Context, id string, dueDate, updatedAt time.Time) error
	Publish(ctx context.Context, id string, publishedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// CreateAssignmentRequest describes an assignment creation payload.
type CreateAssignmentRequest struct {
	CourseID    string    `json:"course_id" validate:"required"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description *string   `json:"description,omitempty"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	MaxScore    float64   `json:"max_score" validate:"required,gt=0"`
}

// UpdateAssignmentRequest describes mutable draft fields.
type UpdateAssignmentRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description *string   `json:"description,omitempty"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	MaxScore    float64   `json:"max_score" validate:"required,gt=0"`
}

// UpdateDueDateRequest changes only the due date; allowed after publication.
type UpdateDueDateRequest struct {
	DueDate time.Time `json:"due_date" validate:"required"`
}

// AssignmentService orchestrates the assignment workflow.
type AssignmentService struct {
	repo      assignmentRepository
	courses   courseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, courses courseReader, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// List returns assignments. Students only ever see published ones; drafts
// are invisible to them regardless of filters.
func (s *AssignmentService) List(ctx context.Context, actor models.Actor, filter models.AssignmentFilter) ([]models.AssignmentDetail, *models.Pagination, error) {
	if err := authz.Authorize(actor, authz.OpAssignmentRead, authz.Target{}); err != nil {
		return nil, nil, err
	}
	if actor.Role == models.RoleStudent {
		filter.PublishedOnly = true
		filter.Status = ""
	}
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Store(err, "failed to list assignments")
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
	return assignments, pagination, nil
}

// Get returns one assignment. A draft is visible only to staff; students get
// NOT_FOUND for drafts so unpublished work never leaks.
func (s *AssignmentService) Get(ctx context.Context, actor models.Actor, id string) (*models.AssignmentDetail, error) {
	if err := authz.Authorize(actor, authz.OpAssignmentRead, authz.Target{}); err != nil {
		return nil, err
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Store(err, "failed to load assignment")
	}
	if detail.Status == models.AssignmentStatusDraft && actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	return detail, nil
}

// Create persists a new draft assignment on a course the actor controls.
func (s *AssignmentService) Create(ctx context.Context, actor models.Actor, req CreateAssignmentRequest) (*models.AssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			// Empty target keeps the deny uniform with the unowned case.
			if authzErr := authz.Authorize(actor, authz.OpAssignmentCreate, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Store(err, "failed to load course")
	}
	if err := authz.Authorize(actor, authz.OpAssignmentCreate, authz.Target{CourseOwnerID: course.OwnerID}); err != nil {
		return nil, err
	}
	assignment := &models.Assignment{
		CourseID:    req.CourseID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		MaxScore:    req.MaxScore,
		Status:      models.AssignmentStatusDraft,
		CreatedBy:   actor.ID,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Store(err, "failed to create assignment")
	}
	s.logger.Info("assignment created",
		zap.String("assignment_id", assignment.ID),
		zap.String("course_id", req.CourseID),
		zap.String("created_by", actor.ID))
	return s.loadDetail(ctx, assignment.ID)
}

// Update edits a draft assignment. Published assignments reject full edits;
// only the due date may change after publication.
func (s *AssignmentService) Update(ctx context.Context, actor models.Actor, id string, req UpdateAssignmentRequest) (*models.AssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	detail, err := s.authorizedDetail(ctx, actor, id, authz.OpAssignmentUpdate)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.AssignmentStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "published assignment accepts due date changes only")
	}
	assignment := detail.Assignment
	assignment.Title = req.Title
	assignment.Description = req.Description
	assignment.DueDate = req.DueDate
	assignment.MaxScore = req.MaxScore
	if err := s.repo.Update(ctx, &assignment); err != nil {
		if errors.Is(err, repository.ErrNoTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "published assignment accepts due date changes only")
		}
		return nil, appErrors.Store(err, "failed to update assignment")
	}
	return s.loadDetail(ctx, id)
}

// UpdateDueDate changes the due date of a draft or published assignment.
func (s *AssignmentService) UpdateDueDate(ctx context.Context, actor models.Actor, id string, req UpdateDueDateRequest) (*models.AssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid due date payload")
	}
	if _, err := s.authorizedDetail(ctx, actor, id, authz.OpAssignmentUpdate); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateDueDate(ctx, id, req.DueDate, time.Now().UTC()); err != nil {
		return nil, appErrors.Store(err, "failed to update due date")
	}
	return s.loadDetail(ctx, id)
}

// Publish makes a draft assignment visible to enrolled students. The
// transition is one-way; publishing twice is an invalid transition.
func (s *AssignmentService) Publish(ctx context.Context, actor models.Actor, id string) (*models.AssignmentDetail, error) {
	detail, err := s.authorizedDetail(ctx, actor, id, authz.OpAssignmentPublish)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.AssignmentStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "assignment already published")
	}
	if err := s.repo.Publish(ctx, id, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNoTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "assignment already published")
		}
		return nil, appErrors.Store(err, "failed to publish assignment")
	}
	s.logger.Info("assignment published",
		zap.String("assignment_id", id),
		zap.String("published_by", actor.ID))
	return s.loadDetail(ctx, id)
}

// Delete removes a draft assignment.
func (s *AssignmentService) Delete(ctx context.Context, actor models.Actor, id string) error {
	detail, err := s.authorizedDetail(ctx, actor, id, authz.OpAssignmentUpdate)
	if err != nil {
		return err
	}
	if detail.Status != models.AssignmentStatusDraft {
		return appErrors.Clone(appErrors.ErrInvalidState, "published assignment cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNoTransition) {
			return appErrors.Clone(appErrors.ErrInvalidState, "published assignment cannot be deleted")
		}
		return appErrors.Store(err, "failed to delete assignment")
	}
	return nil
}

func (s *AssignmentService) authorizedDetail(ctx context.Context, actor models.Actor, id string, op authz.Operation) (*models.AssignmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			if authzErr := authz.Authorize(actor, op, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Store(err, "failed to load assignment")
	}
	if err := authz.Authorize(actor, op, authz.Target{CourseOwnerID: detail.CourseOwnerID}); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *AssignmentService) loadDetail(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load assignment detail")
	}
	return detail, nil
}
