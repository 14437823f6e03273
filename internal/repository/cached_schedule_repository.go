package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

// CachedScheduleRepository layers a Redis read cache over active-by-period
// schedule lookups. InvalidatePeriod is the explicit "read-your-writes"
// refresh the sequential orchestrator calls before every unit, so a stage
// always sees the assignments committed by the previous one.
type CachedScheduleRepository struct {
	inner  *ScheduleRepository
	cache  *CacheRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedScheduleRepository wraps a schedule repository with a cache.
func NewCachedScheduleRepository(inner *ScheduleRepository, cache *CacheRepository, ttl time.Duration, logger *zap.Logger) *CachedScheduleRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedScheduleRepository{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func periodKey(period string) string {
	return fmt.Sprintf("schedules:active:%s", period)
}

// ListActiveByPeriod serves from cache when possible.
func (r *CachedScheduleRepository) ListActiveByPeriod(ctx context.Context, period string) ([]models.AcademicSchedule, error) {
	key := periodKey(period)

	var cached []models.AcademicSchedule
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		r.logger.Warn("schedule cache read failed", zap.String("key", key), zap.Error(err))
	}

	schedules, err := r.inner.ListActiveByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, schedules, r.ttl); err != nil {
		r.logger.Warn("schedule cache write failed", zap.String("key", key), zap.Error(err))
	}
	return schedules, nil
}

// InvalidatePeriod drops the cached view of a period.
func (r *CachedScheduleRepository) InvalidatePeriod(ctx context.Context, period string) error {
	return r.cache.Delete(ctx, periodKey(period))
}
