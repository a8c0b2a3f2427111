package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-portal-api/internal/authz"
	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id, fullName string, department *string, updatedAt time.Time) error
	UpdateRole(ctx context.Context, id string, role models.UserRole, updatedAt time.Time) error
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest describes an admin-created account.
type CreateUserRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required,min=6"`
	FullName   string          `json:"full_name" validate:"required,max=150"`
	Role       models.UserRole `json:"role" validate:"required,oneof=ADMIN FACULTY STUDENT"`
	Department *string         `json:"department,omitempty"`
}

// UpdateUserRequest describes mutable profile fields.
type UpdateUserRequest struct {
	FullName   string  `json:"full_name" validate:"required,max=150"`
	Department *string `json:"department,omitempty"`
}

// ChangeRoleRequest reassigns a user's single role.
type ChangeRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,oneof=ADMIN FACULTY STUDENT"`
}

// UserService manages user accounts.
type UserService struct {
	repo      userRepository
	stats     statsInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// BindStatsInvalidator attaches the cache invalidation hook fired after
// account writes.
func (s *UserService) BindStatsInvalidator(stats statsInvalidator) {
	s.stats = stats
}

func (s *UserService) invalidateStats(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

// NewUserService constructs UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns users matching the filter. Staff only.
func (s *UserService) List(ctx context.Context, actor models.Actor, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if err := authz.Authorize(actor, authz.OpUserRead, authz.Target{}); err != nil {
		return nil, nil, err
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Store(err, "failed to list users")
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
	return users, pagination, nil
}

// Get returns one user: staff or the user themself.
func (s *UserService) Get(ctx context.Context, actor models.Actor, id string) (*models.User, error) {
	if err := authz.Authorize(actor, authz.OpUserRead, authz.Target{OwnerID: id}); err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Store(err, "failed to load user")
	}
	return user, nil
}

// Create registers a new account with exactly one role. Admin only.
func (s *UserService) Create(ctx context.Context, actor models.Actor, req CreateUserRequest) (*models.User, error) {
	if err := authz.Authorize(actor, authz.OpUserCreate, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Store(err, "failed to check email")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		Department:   req.Department,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Store(err, "failed to create user")
	}
	s.invalidateStats(ctx)
	s.audit(ctx, actor.ID, models.AuditActionUserCreate, user.ID, map[string]any{"role": user.Role})
	s.logger.Info("user created",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("created_by", actor.ID))
	return user, nil
}

// Update edits profile fields: the user themself or an admin.
func (s *UserService) Update(ctx context.Context, actor models.Actor, id string, req UpdateUserRequest) (*models.User, error) {
	if err := authz.Authorize(actor, authz.OpUserUpdate, authz.Target{OwnerID: id}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Store(err, "failed to load user")
	}
	if err := s.repo.UpdateProfile(ctx, id, req.FullName, req.Department, time.Now().UTC()); err != nil {
		return nil, appErrors.Store(err, "failed to update user")
	}
	s.audit(ctx, actor.ID, models.AuditActionUserUpdate, id, nil)
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load user")
	}
	return user, nil
}

// ChangeRole reassigns a user's role. Admin only; admins cannot demote
// themselves, which would risk locking the last admin out.
func (s *UserService) ChangeRole(ctx context.Context, actor models.Actor, id string, req ChangeRoleRequest) (*models.User, error) {
	if err := authz.Authorize(actor, authz.OpUserRoleChange, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	if actor.ID == id {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot change own role")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Store(err, "failed to load user")
	}
	if user.Role == req.Role {
		return user, nil
	}
	if err := s.repo.UpdateRole(ctx, id, req.Role, time.Now().UTC()); err != nil {
		return nil, appErrors.Store(err, "failed to change role")
	}
	s.invalidateStats(ctx)
	s.audit(ctx, actor.ID, models.AuditActionRoleChange, id, map[string]any{"from": user.Role, "to": req.Role})
	s.logger.Info("user role changed",
		zap.String("user_id", id),
		zap.String("from", string(user.Role)),
		zap.String("to", string(req.Role)),
		zap.String("changed_by", actor.ID))
	user.Role = req.Role
	return user, nil
}

// SetActive toggles the soft-disable flag. Admin only. Accounts referenced
// by enrollments or submissions are deactivated, never deleted.
func (s *UserService) SetActive(ctx context.Context, actor models.Actor, id string, active bool) error {
	if err := authz.Authorize(actor, authz.OpUserDisable, authz.Target{}); err != nil {
		return err
	}
	if actor.ID == id && !active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot disable own account")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Store(err, "failed to load user")
	}
	if err := s.repo.SetActive(ctx, id, active, time.Now().UTC()); err != nil {
		return appErrors.Store(err, "failed to update account state")
	}
	s.invalidateStats(ctx)
	s.audit(ctx, actor.ID, models.AuditActionUserDisable, id, map[string]any{"active": active})
	return nil
}

func (s *UserService) audit(ctx context.Context, actorID, action, resourceID string, values map[string]any) {
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "user",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
