package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/authz"
	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	SetPinned(ctx context.Context, id string, pinned bool, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// CreateAnnouncementRequest describes an announcement payload.
type CreateAnnouncementRequest struct {
	Title    string                      `json:"title" validate:"required,max=200"`
	Content  string                      `json:"content" validate:"required"`
	Audience models.AnnouncementAudience `json:"audience" validate:"required,oneof=ALL FACULTY STUDENTS"`
}

// SetPinRequest sets the target pin state of an announcement.
type SetPinRequest struct {
	Pinned *bool `json:"pinned" validate:"required"`
}

// AnnouncementService manages announcements and their pin state.
type AnnouncementService struct {
	repo      announcementRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs AnnouncementService.
func NewAnnouncementService(repo announcementRepository, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, validator: validate, logger: logger}
}

// List returns announcements visible to the actor's role, pinned first.
func (s *AnnouncementService) List(ctx context.Context, actor models.Actor, filter models.AnnouncementFilter) ([]models.Announcement, *models.Pagination, error) {
	if actor.Role != models.RoleAdmin {
		filter.AudienceRoles = []models.UserRole{actor.Role}
	}
	announcements, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Store(err, "failed to list announcements")
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
	return announcements, pagination, nil
}

// Create publishes a new announcement.
func (s *AnnouncementService) Create(ctx context.Context, actor models.Actor, req CreateAnnouncementRequest) (*models.Announcement, error) {
	if err := authz.Authorize(actor, authz.OpAnnouncementCreate, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	announcement := &models.Announcement{
		Title:     req.Title,
		Content:   req.Content,
		Audience:  req.Audience,
		CreatedBy: actor.ID,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Store(err, "failed to create announcement")
	}
	s.logger.Info("announcement created",
		zap.String("announcement_id", announcement.ID),
		zap.String("created_by", actor.ID))
	return announcement, nil
}

// Update edits an announcement: its author or an admin.
func (s *AnnouncementService) Update(ctx context.Context, actor models.Actor, id string, req CreateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	announcement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			if authzErr := authz.Authorize(actor, authz.OpAnnouncementUpdate, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Store(err, "failed to load announcement")
	}
	if err := authz.Authorize(actor, authz.OpAnnouncementUpdate, authz.Target{OwnerID: announcement.CreatedBy}); err != nil {
		return nil, err
	}
	announcement.Title = req.Title
	announcement.Content = req.Content
	announcement.Audience = req.Audience
	if err := s.repo.Update(ctx, announcement); err != nil {
		return nil, appErrors.Store(err, "failed to update announcement")
	}
	return announcement, nil
}

// SetPin sets the pin flag. Admin only. The request carries the target state
// rather than a blind toggle, so concurrent identical requests converge on
// the same final state.
func (s *AnnouncementService) SetPin(ctx context.Context, actor models.Actor, id string, req SetPinRequest) (*models.Announcement, error) {
	if err := authz.Authorize(actor, authz.OpAnnouncementPin, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pin payload")
	}
	if err := s.repo.SetPinned(ctx, id, *req.Pinned, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Store(err, "failed to set pin state")
	}
	s.logger.Info("announcement pin state set",
		zap.String("announcement_id", id),
		zap.Bool("pinned", *req.Pinned),
		zap.String("set_by", actor.ID))
	announcement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load announcement")
	}
	return announcement, nil
}

// Delete removes an announcement. Admin only.
func (s *AnnouncementService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := authz.Authorize(actor, authz.OpAnnouncementDelete, authz.Target{}); err != nil {
		return err
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Store(err, "failed to load announcement")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Store(err, "failed to delete announcement")
	}
	return nil
}
