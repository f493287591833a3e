// Package quota gates lookups by a monthly per-user search allowance. The
// counter lives in Redis so every instance sees the same usage.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/gobacklinks/internal/logger"
)

// Plan is a usage tier. Unlimited plans skip the counter entirely.
type Plan string

const (
	PlanFree      Plan = "free"
	PlanPro       Plan = "pro"
	PlanUnlimited Plan = "unlimited"
)

// Limits maps each plan to its monthly search allowance.
type Limits struct {
	FreeSearches int
	ProSearches  int
}

// Service decides whether a user may search and records usage.
type Service interface {
	CanPerformSearch(ctx context.Context, userID string, plan Plan) (bool, string, error)
	RecordSearch(ctx context.Context, userID string, query string, resultCount int) error
}

// RedisService counts searches per user per calendar month. Keys expire after
// two months so stale counters clean themselves up.
type RedisService struct {
	client *redis.Client
	limits Limits
	log    logger.Logger
}

const counterTTL = 62 * 24 * time.Hour

func NewRedisService(client *redis.Client, limits Limits, log logger.Logger) *RedisService {
	return &RedisService{
		client: client,
		limits: limits,
		log:    log,
	}
}

func monthKey(userID string, now time.Time) string {
	return fmt.Sprintf("quota:%s:%s", userID, now.UTC().Format("2006-01"))
}

func (s *RedisService) limitFor(plan Plan) int {
	switch plan {
	case PlanPro:
		return s.limits.ProSearches
	case PlanUnlimited:
		return 0
	default:
		return s.limits.FreeSearches
	}
}

// CanPerformSearch reports whether the user has allowance left this month.
// A Redis outage fails open: search is allowed and the error is returned for
// the caller to log.
func (s *RedisService) CanPerformSearch(ctx context.Context, userID string, plan Plan) (bool, string, error) {
	limit := s.limitFor(plan)
	if limit <= 0 {
		return true, "", nil
	}

	used, err := s.client.Get(ctx, monthKey(userID, time.Now())).Int()
	if err == redis.Nil {
		return true, "", nil
	}
	if err != nil {
		return true, "", fmt.Errorf("read quota counter: %w", err)
	}

	if used >= limit {
		return false, fmt.Sprintf("monthly search limit of %d reached", limit), nil
	}
	return true, "", nil
}

// RecordSearch increments the user's monthly counter.
func (s *RedisService) RecordSearch(ctx context.Context, userID string, query string, resultCount int) error {
	key := monthKey(userID, time.Now())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record search: %w", err)
	}

	s.log.Debug("recorded search",
		logger.String("user_id", userID),
		logger.String("query", query),
		logger.Int("results", resultCount),
		logger.Int64("used", incr.Val()),
	)
	return nil
}
