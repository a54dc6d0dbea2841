package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campusworks/timetable-api/internal/dto"
)

// ResultCache stores the latest published timetable per semester. Lookups and
// writes are best-effort; a cache outage must never fail a request.
type ResultCache interface {
	GetTimetable(ctx context.Context, semester string) (*dto.TimetableResponse, bool)
	SetTimetable(ctx context.Context, semester string, payload *dto.TimetableResponse)
	Invalidate(ctx context.Context, semester string)
}

// RedisResultCache backs ResultCache with Redis.
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisResultCache builds the cache with the given TTL.
func NewRedisResultCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &RedisResultCache{client: client, ttl: ttl, logger: logger}
}

func timetableKey(semester string) string {
	return fmt.Sprintf("timetable:latest:%s", semester)
}

// GetTimetable returns a cached timetable, reporting whether one was found.
func (c *RedisResultCache) GetTimetable(ctx context.Context, semester string) (*dto.TimetableResponse, bool) {
	raw, err := c.client.Get(ctx, timetableKey(semester)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("timetable cache read failed", zap.String("semester", semester), zap.Error(err))
		}
		return nil, false
	}
	var payload dto.TimetableResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn("timetable cache entry corrupt", zap.String("semester", semester), zap.Error(err))
		return nil, false
	}
	return &payload, true
}

// SetTimetable stores the timetable under the semester key.
func (c *RedisResultCache) SetTimetable(ctx context.Context, semester string, payload *dto.TimetableResponse) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("timetable cache marshal failed", zap.String("semester", semester), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, timetableKey(semester), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("timetable cache write failed", zap.String("semester", semester), zap.Error(err))
	}
}

// Invalidate drops the cached timetable for a semester.
func (c *RedisResultCache) Invalidate(ctx context.Context, semester string) {
	if err := c.client.Del(ctx, timetableKey(semester)).Err(); err != nil {
		c.logger.Warn("timetable cache invalidation failed", zap.String("semester", semester), zap.Error(err))
	}
}

// NoopResultCache satisfies ResultCache when caching is disabled.
type NoopResultCache struct{}

func (NoopResultCache) GetTimetable(context.Context, string) (*dto.TimetableResponse, bool) {
	return nil, false
}
func (NoopResultCache) SetTimetable(context.Context, string, *dto.TimetableResponse) {}
func (NoopResultCache) Invalidate(context.Context, string)                           {}
