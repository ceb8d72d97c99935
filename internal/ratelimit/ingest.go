package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/fitmirror/fitmirror/internal/config"
)

const keyIngestShop = "tryon:ingest:shop:%s"

// IngestLimiter throttles widget event ingestion per shop. Rate and burst
// come from the shop's plan tier, so upgrading a plan loosens the limiter
// without a deploy.
//
// A deployment without Redis runs unthrottled: the monthly usage cap in the
// shops table is still enforced, this is only burst protection.
type IngestLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker
	plans  *config.PlanCatalogHolder
}

func NewIngestLimiter(cfg config.Config, plans *config.PlanCatalogHolder) *IngestLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &IngestLimiter{plans: plans}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &IngestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		plans:   plans,
	}
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowShop spends one token from the shop's bucket. Unknown plan keys fall
// back to the trial tier's limits.
func (l *IngestLimiter) AllowShop(ctx context.Context, shopID, planKey string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}

	catalog := l.plans.Catalog()
	plan, ok := catalog.ByKey(planKey)
	if !ok {
		plan = catalog.Trial()
	}
	rate := plan.IngestRate
	burst := plan.IngestBurst
	if rate <= 0 || burst <= 0 {
		return &Result{Allowed: true}, nil
	}

	return l.bucket.Allow(ctx, fmt.Sprintf(keyIngestShop, strings.TrimSpace(shopID)), rate, burst)
}

// Lock exposes the shared locker for jobs that must run on one instance.
func (l *IngestLimiter) Lock() *Locker {
	if l == nil {
		return nil
	}
	return l.locker
}
