package cache

import (
	"context"
	"time"

	"pasteleria/backend/internal/domain"
)

const planKeyPrefix = "plan:"

// PlanKey names the cache entry holding one delivery date's plan.
func PlanKey(date string) string {
	return planKeyPrefix + date
}

type PlanCache interface {
	Get(ctx context.Context, key string) (*domain.ProductionPlan, bool, error)
	Set(ctx context.Context, key string, value *domain.ProductionPlan, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	// InvalidateAll drops every cached plan. Stock-level changes touch the
	// CurrentStock column of every date's plan, not just one key.
	InvalidateAll(ctx context.Context) error
}

type NoopPlanCache struct{}

func (NoopPlanCache) Get(_ context.Context, _ string) (*domain.ProductionPlan, bool, error) {
	return nil, false, nil
}

func (NoopPlanCache) Set(_ context.Context, _ string, _ *domain.ProductionPlan, _ time.Duration) error {
	return nil
}

func (NoopPlanCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

func (NoopPlanCache) InvalidateAll(_ context.Context) error {
	return nil
}
