package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type mockStatsRepo struct {
	gradeStats      *models.StudentGradeStats
	enrollmentStats *models.EnrollmentStatistics
	userStats       *models.UserStatistics
	gradeCalls      int
	enrollmentCalls int
}

func (m *mockStatsRepo) StudentGradeStats(ctx context.Context, studentID string) (*models.StudentGradeStats, error) {
	m.gradeCalls++
	stats := *m.gradeStats
	stats.StudentID = studentID
	return &stats, nil
}

func (m *mockStatsRepo) EnrollmentStatistics(ctx context.Context) (*models.EnrollmentStatistics, error) {
	m.enrollmentCalls++
	return m.enrollmentStats, nil
}

func (m *mockStatsRepo) UserStatistics(ctx context.Context) (*models.UserStatistics, error) {
	return m.userStats, nil
}

// mockStatsCache stores JSON like the redis-backed cache does.
type mockStatsCache struct {
	entries map[string][]byte
	deleted []string
}

func newMockStatsCache() *mockStatsCache {
	return &mockStatsCache{entries: make(map[string][]byte)}
}

func (m *mockStatsCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *mockStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = data
	return nil
}

func (m *mockStatsCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	m.entries = make(map[string][]byte)
	return nil
}

func sampleGradeStats() *models.StudentGradeStats {
	mean, min, max := 82.5, 70.0, 95.0
	return &models.StudentGradeStats{GradedCount: 4, MeanScore: &mean, MinScore: &min, MaxScore: &max}
}

func TestStudentGradeStatsCachesResult(t *testing.T) {
	repo := &mockStatsRepo{gradeStats: sampleGradeStats()}
	cache := newMockStatsCache()
	svc := NewStatsService(repo, cache, time.Minute, nil)

	first, err := svc.StudentGradeStats(context.Background(), student, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 4, first.GradedCount)
	assert.Equal(t, 1, repo.gradeCalls)

	// Second read is served from cache.
	second, err := svc.StudentGradeStats(context.Background(), student, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.gradeCalls)
}

func TestStudentGradeStatsOwnershipDeny(t *testing.T) {
	repo := &mockStatsRepo{gradeStats: sampleGradeStats()}
	svc := NewStatsService(repo, nil, time.Minute, nil)

	_, err := svc.StudentGradeStats(context.Background(), student, "stu-2")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	// Staff may read any student's numbers.
	_, err = svc.StudentGradeStats(context.Background(), faculty, "stu-2")
	assert.NoError(t, err)
	_, err = svc.StudentGradeStats(context.Background(), admin, "stu-2")
	assert.NoError(t, err)
}

func TestEnrollmentStatisticsStaffOnly(t *testing.T) {
	repo := &mockStatsRepo{enrollmentStats: &models.EnrollmentStatistics{
		ByStatus: []models.EnrollmentStatusCount{{Status: models.EnrollmentStatusApproved, Count: 12}},
	}}
	svc := NewStatsService(repo, nil, time.Minute, nil)

	_, err := svc.EnrollmentStatistics(context.Background(), student)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	stats, err := svc.EnrollmentStatistics(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 12, stats.ByStatus[0].Count)
}

func TestUserStatisticsAdminOnly(t *testing.T) {
	repo := &mockStatsRepo{userStats: &models.UserStatistics{
		ByRole: []models.UserRoleCount{{Role: models.RoleStudent, Count: 200}},
	}}
	svc := NewStatsService(repo, nil, time.Minute, nil)

	_, err := svc.UserStatistics(context.Background(), faculty)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	_, err = svc.UserStatistics(context.Background(), student)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	stats, err := svc.UserStatistics(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 200, stats.ByRole[0].Count)
}

func TestInvalidateDropsCachedStats(t *testing.T) {
	repo := &mockStatsRepo{enrollmentStats: &models.EnrollmentStatistics{}}
	cache := newMockStatsCache()
	svc := NewStatsService(repo, cache, time.Minute, nil)

	_, err := svc.EnrollmentStatistics(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.enrollmentCalls)

	svc.Invalidate(context.Background())
	assert.Equal(t, []string{"stats:*"}, cache.deleted)

	_, err = svc.EnrollmentStatistics(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.enrollmentCalls)
}

func TestStatsNilCacheRecomputes(t *testing.T) {
	repo := &mockStatsRepo{gradeStats: sampleGradeStats()}
	svc := NewStatsService(repo, nil, time.Minute, nil)

	_, err := svc.StudentGradeStats(context.Background(), student, "stu-1")
	require.NoError(t, err)
	_, err = svc.StudentGradeStats(context.Background(), student, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.gradeCalls)
}
