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

type mockAnnouncementRepo struct {
	announcements map[string]*models.Announcement
	lastFilter    models.AnnouncementFilter
}

func (m *mockAnnouncementRepo) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	m.lastFilter = filter
	var list []models.Announcement
	for _, a := range m.announcements {
		list = append(list, *a)
	}
	return list, len(list), nil
}

func (m *mockAnnouncementRepo) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	if a, ok := m.announcements[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAnnouncementRepo) Create(ctx context.Context, announcement *models.Announcement) error {
	if m.announcements == nil {
		m.announcements = make(map[string]*models.Announcement)
	}
	if announcement.ID == "" {
		announcement.ID = "ann-new"
	}
	m.announcements[announcement.ID] = announcement
	return nil
}

func (m *mockAnnouncementRepo) Update(ctx context.Context, announcement *models.Announcement) error {
	if _, ok := m.announcements[announcement.ID]; !ok {
		return sql.ErrNoRows
	}
	m.announcements[announcement.ID] = announcement
	return nil
}

func (m *mockAnnouncementRepo) SetPinned(ctx context.Context, id string, pinned bool, updatedAt time.Time) error {
	a, ok := m.announcements[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.IsPinned = pinned
	return nil
}

func (m *mockAnnouncementRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.announcements[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.announcements, id)
	return nil
}

func boolPtr(b bool) *bool { return &b }

func TestAnnouncementPinAdminOnly(t *testing.T) {
	repo := &mockAnnouncementRepo{announcements: map[string]*models.Announcement{
		"ann-1": {ID: "ann-1", Title: "Welcome", Audience: models.AnnouncementAudienceAll, CreatedBy: "fac-1"},
	}}
	svc := NewAnnouncementService(repo, nil, nil)

	_, err := svc.SetPin(context.Background(), faculty, "ann-1", SetPinRequest{Pinned: boolPtr(true)})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	_, err = svc.SetPin(context.Background(), student, "ann-1", SetPinRequest{Pinned: boolPtr(true)})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	announcement, err := svc.SetPin(context.Background(), admin, "ann-1", SetPinRequest{Pinned: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, announcement.IsPinned)
}

func TestAnnouncementPinTargetStateConverges(t *testing.T) {
	repo := &mockAnnouncementRepo{announcements: map[string]*models.Announcement{
		"ann-1": {ID: "ann-1", Title: "Welcome", Audience: models.AnnouncementAudienceAll, CreatedBy: "admin-1"},
	}}
	svc := NewAnnouncementService(repo, nil, nil)

	// Two identical requests land in the same final state.
	first, err := svc.SetPin(context.Background(), admin, "ann-1", SetPinRequest{Pinned: boolPtr(true)})
	require.NoError(t, err)
	second, err := svc.SetPin(context.Background(), admin, "ann-1", SetPinRequest{Pinned: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, first.IsPinned)
	assert.True(t, second.IsPinned)

	unpinned, err := svc.SetPin(context.Background(), admin, "ann-1", SetPinRequest{Pinned: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, unpinned.IsPinned)
}

func TestAnnouncementPinMissing(t *testing.T) {
	repo := &mockAnnouncementRepo{}
	svc := NewAnnouncementService(repo, nil, nil)

	_, err := svc.SetPin(context.Background(), admin, "nope", SetPinRequest{Pinned: boolPtr(true)})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestAnnouncementCreateRoleGated(t *testing.T) {
	repo := &mockAnnouncementRepo{}
	svc := NewAnnouncementService(repo, nil, nil)
	req := CreateAnnouncementRequest{Title: "Midterm schedule", Content: "Posted.", Audience: models.AnnouncementAudienceStudents}

	_, err := svc.Create(context.Background(), student, req)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	announcement, err := svc.Create(context.Background(), faculty, req)
	require.NoError(t, err)
	assert.Equal(t, "fac-1", announcement.CreatedBy)
}

func TestAnnouncementUpdateAuthorOrAdmin(t *testing.T) {
	repo := &mockAnnouncementRepo{announcements: map[string]*models.Announcement{
		"ann-1": {ID: "ann-1", Title: "Welcome", Content: "Hi", Audience: models.AnnouncementAudienceAll, CreatedBy: "fac-1"},
	}}
	svc := NewAnnouncementService(repo, nil, nil)
	req := CreateAnnouncementRequest{Title: "Welcome back", Content: "Hi again", Audience: models.AnnouncementAudienceAll}

	otherFaculty := models.Actor{ID: "fac-2", Role: models.RoleFaculty}
	_, err := svc.Update(context.Background(), otherFaculty, "ann-1", req)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	updated, err := svc.Update(context.Background(), faculty, "ann-1", req)
	require.NoError(t, err)
	assert.Equal(t, "Welcome back", updated.Title)

	_, err = svc.Update(context.Background(), admin, "ann-1", req)
	assert.NoError(t, err)
}

func TestAnnouncementListScopesAudience(t *testing.T) {
	repo := &mockAnnouncementRepo{announcements: map[string]*models.Announcement{}}
	svc := NewAnnouncementService(repo, nil, nil)

	_, _, err := svc.List(context.Background(), student, models.AnnouncementFilter{})
	require.NoError(t, err)
	assert.Equal(t, []models.UserRole{models.RoleStudent}, repo.lastFilter.AudienceRoles)

	_, _, err = svc.List(context.Background(), admin, models.AnnouncementFilter{})
	require.NoError(t, err)
	assert.Nil(t, repo.lastFilter.AudienceRoles)
}

func TestAnnouncementDeleteAdminOnly(t *testing.T) {
	repo := &mockAnnouncementRepo{announcements: map[string]*models.Announcement{
		"ann-1": {ID: "ann-1", CreatedBy: "fac-1"},
	}}
	svc := NewAnnouncementService(repo, nil, nil)

	err := svc.Delete(context.Background(), faculty, "ann-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, svc.Delete(context.Background(), admin, "ann-1"))
	assert.Empty(t, repo.announcements)
}
