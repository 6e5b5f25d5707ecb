package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/memoria/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyCodeBatchRequest = "memoria:codebatch:request:%s"
	keyPayoutLock       = "memoria:payout:lock:%s"
	keyGenerationLock   = "memoria:codebatch:generate:%s"
)

// Guard throttles partner requests and serializes payout creation and code
// generation across instances. A Guard without Redis allows everything and
// runs callbacks unlocked; the database constraints still hold on their own.
type Guard struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	codeBatchRate  float64
	codeBatchBurst int
	lockTTL        time.Duration
}

type GuardParams struct {
	fx.In

	Config config.Config
	Client redis.UniversalClient
	Log    *zap.Logger
}

func NewGuard(p GuardParams) *Guard {
	if p.Client == nil {
		p.Log.Info("redis not configured, rate limits and locks disabled")
		return &Guard{}
	}
	limits := p.Config.RateLimit
	ttl := limits.LockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Guard{
		enabled:        true,
		bucket:         NewTokenBucket(p.Client),
		locker:         NewLocker(p.Client),
		codeBatchRate:  limits.CodeBatchRate,
		codeBatchBurst: limits.CodeBatchBurst,
		lockTTL:        ttl,
	}
}

func NewGuardWith(client redis.UniversalClient, limits config.RateLimitConfig) *Guard {
	return NewGuard(GuardParams{
		Config: config.Config{RateLimit: limits},
		Client: client,
		Log:    zap.NewNop(),
	})
}

func (g *Guard) Enabled() bool {
	return g != nil && g.enabled
}

func (g *Guard) AllowCodeBatchRequest(ctx context.Context, partnerID snowflake.ID) (Result, error) {
	if !g.Enabled() || g.codeBatchRate <= 0 || g.codeBatchBurst <= 0 {
		return Result{Allowed: true}, nil
	}
	return g.bucket.Allow(ctx, fmt.Sprintf(keyCodeBatchRequest, partnerID.String()), g.codeBatchRate, g.codeBatchBurst)
}

func (g *Guard) WithPayoutLock(ctx context.Context, partnerID snowflake.ID, fn func(context.Context) error) error {
	return g.with(ctx, fmt.Sprintf(keyPayoutLock, partnerID.String()), fn)
}

func (g *Guard) WithGenerationLock(ctx context.Context, batchID snowflake.ID, fn func(context.Context) error) error {
	return g.with(ctx, fmt.Sprintf(keyGenerationLock, batchID.String()), fn)
}

func (g *Guard) with(ctx context.Context, key string, fn func(context.Context) error) error {
	if !g.Enabled() {
		return fn(ctx)
	}
	return g.locker.WithLock(ctx, strings.TrimSpace(key), g.lockTTL, fn)
}
