package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/authz"
	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type statsRepository interface {
	StudentGradeStats(ctx context.Context, studentID string) (*models.StudentGradeStats, error)
	EnrollmentStatistics(ctx context.Context) (*models.EnrollmentStatistics, error)
	UserStatistics(ctx context.Context) (*models.UserStatistics, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const statsCachePrefix = "stats:"

// StatsService serves aggregate projections. Results are point-in-time
// snapshots: each aggregation reads a consistent state of the store, and a
// cached result may lag behind writes by at most the configured TTL.
type StatsService struct {
	repo     statsRepository
	cache    statsCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewStatsService constructs StatsService. A nil cache disables caching.
func NewStatsService(repo statsRepository, cache statsCache, cacheTTL time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// StudentGradeStats summarises graded work for one student. The student may
// read their own numbers; faculty and admins may read anyone's.
func (s *StatsService) StudentGradeStats(ctx context.Context, actor models.Actor, studentID string) (*models.StudentGradeStats, error) {
	if err := authz.Authorize(actor, authz.OpStatsStudentGrades, authz.Target{OwnerID: studentID}); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%sstudent_grades:%s", statsCachePrefix, studentID)
	if s.cache != nil {
		var cached models.StudentGradeStats
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}
	stats, err := s.repo.StudentGradeStats(ctx, studentID)
	if err != nil {
		return nil, appErrors.Store(err, "failed to compute student grade stats")
	}
	s.store(ctx, key, stats)
	return stats, nil
}

// EnrollmentStatistics aggregates enrollments by status and course.
func (s *StatsService) EnrollmentStatistics(ctx context.Context, actor models.Actor) (*models.EnrollmentStatistics, error) {
	if err := authz.Authorize(actor, authz.OpStatsEnrollments, authz.Target{}); err != nil {
		return nil, err
	}
	key := statsCachePrefix + "enrollments"
	if s.cache != nil {
		var cached models.EnrollmentStatistics
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}
	stats, err := s.repo.EnrollmentStatistics(ctx)
	if err != nil {
		return nil, appErrors.Store(err, "failed to compute enrollment statistics")
	}
	s.store(ctx, key, stats)
	return stats, nil
}

// UserStatistics aggregates active users by role and department.
func (s *StatsService) UserStatistics(ctx context.Context, actor models.Actor) (*models.UserStatistics, error) {
	if err := authz.Authorize(actor, authz.OpStatsUsers, authz.Target{}); err != nil {
		return nil, err
	}
	key := statsCachePrefix + "users"
	if s.cache != nil {
		var cached models.UserStatistics
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}
	stats, err := s.repo.UserStatistics(ctx)
	if err != nil {
		return nil, appErrors.Store(err, "failed to compute user statistics")
	}
	s.store(ctx, key, stats)
	return stats, nil
}

// Invalidate drops every cached statistics payload. Called by write paths
// that change the underlying aggregates.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, statsCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}

func (s *StatsService) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache stats payload", zap.String("key", key), zap.Error(err))
	}
}
