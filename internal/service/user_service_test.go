package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type mockUserRepo struct {
	users map[string]*models.User
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	repo := &mockUserRepo{users: map[string]*models.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var list []models.User
	for _, u := range m.users {
		list = append(list, *u)
	}
	return list, len(list), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-new"
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, id, fullName string, department *string, updatedAt time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.FullName = fullName
	u.Department = department
	return nil
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, id string, role models.UserRole, updatedAt time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	return nil
}

func (m *mockUserRepo) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = active
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

func TestUserCreateAdminOnly(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, nil, nil)

	req := CreateUserRequest{Email: "f@example.edu", Password: "secret1", FullName: "New Faculty", Role: models.RoleFaculty}
	for _, actor := range []models.Actor{faculty, student} {
		_, err := svc.Create(context.Background(), actor, req)
		assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	}

	user, err := svc.Create(context.Background(), admin, req)
	require.NoError(t, err)
	assert.Equal(t, models.RoleFaculty, user.Role)
	assert.True(t, user.Active)
}

func TestUserChangeRoleGuards(t *testing.T) {
	repo := newMockUserRepo(
		&models.User{ID: "admin-1", Email: "a@example.edu", Role: models.RoleAdmin, Active: true},
		&models.User{ID: "fac-1", Email: "f@example.edu", Role: models.RoleFaculty, Active: true},
	)
	svc := NewUserService(repo, nil, nil)

	// Admins cannot reassign their own role.
	_, err := svc.ChangeRole(context.Background(), admin, "admin-1", ChangeRoleRequest{Role: models.RoleStudent})
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))

	user, err := svc.ChangeRole(context.Background(), admin, "fac-1", ChangeRoleRequest{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
}

func TestUserMutationsInvalidateStatsCache(t *testing.T) {
	repo := newMockUserRepo(
		&models.User{ID: "fac-1", Email: "f@example.edu", Role: models.RoleFaculty, Active: true},
	)
	svc := NewUserService(repo, nil, nil)
	stats := &mockStatsInvalidator{}
	svc.BindStatsInvalidator(stats)

	_, err := svc.Create(context.Background(), admin, CreateUserRequest{Email: "s@example.edu", Password: "secret1", FullName: "New Student", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.calls)

	_, err = svc.ChangeRole(context.Background(), admin, "fac-1", ChangeRoleRequest{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.calls)

	require.NoError(t, svc.SetActive(context.Background(), admin, "fac-1", false))
	assert.Equal(t, 3, stats.calls)

	// A denied mutation leaves the cache alone.
	_, err = svc.Create(context.Background(), student, CreateUserRequest{Email: "x@example.edu", Password: "secret1", FullName: "Nope", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, 3, stats.calls)
}
