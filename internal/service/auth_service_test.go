package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type mockAuthRepo struct {
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
	tokens       map[string]*models.RefreshToken
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		usersByEmail: map[string]*models.User{},
		usersByID:    map[string]*models.User{},
		tokens:       map[string]*models.RefreshToken{},
	}
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.usersByID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-new"
	}
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if u, ok := m.usersByID[id]; ok {
		u.PasswordHash = passwordHash
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.tokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.tokens {
		if t.ID == id {
			t.Revoked = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

func newAuthFixture() (*AuthService, *mockAuthRepo) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "campus-portal-api",
	})
	return svc, repo
}

func seedUser(repo *mockAuthRepo, email, password string, role models.UserRole, active bool) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &models.User{
		ID:           "user-" + email,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Seeded User",
		Role:         role,
		Active:       active,
	}
	repo.usersByEmail[email] = user
	repo.usersByID[user.ID] = user
	return user
}

func TestRegisterCreatesStudentAccount(t *testing.T) {
	svc, repo := newAuthFixture()
	stats := &mockStatsInvalidator{}
	svc.BindStatsInvalidator(stats)

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "new@example.edu",
		Password: "secret1",
		FullName: "New Student",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, info.Role)

	created := repo.usersByEmail["new@example.edu"]
	require.NotNil(t, created)
	assert.True(t, created.Active)
	assert.NotEqual(t, "secret1", created.PasswordHash)

	// The new account shifts the user aggregates.
	assert.Equal(t, 1, stats.calls)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "taken@example.edu", "secret1", models.RoleStudent, true)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "taken@example.edu",
		Password: "secret1",
		FullName: "Second Try",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "stu@example.edu", "secret1", models.RoleStudent, true)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "stu@example.edu", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "user-stu@example.edu", claims.UserID)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "stu@example.edu", "secret1", models.RoleStudent, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "stu@example.edu", Password: "wrong12"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	// Unknown email fails with the same code.
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.edu", Password: "secret1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "off@example.edu", "secret1", models.RoleStudent, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "off@example.edu", Password: "secret1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "stu@example.edu", "secret1", models.RoleStudent, true)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "stu@example.edu", Password: "secret1"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: res.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, res.RefreshToken, refreshed.RefreshToken)

	// The used token is revoked and cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: res.RefreshToken})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
