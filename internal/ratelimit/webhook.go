package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maintly/maintly/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyWebhookSource    = "webhook:billing:source:%s"
	keyWebhookEventLock = "webhook:billing:event:%s:%s"

	webhookEventLockTTL = 30 * time.Second
)

// WebhookLimiter bounds billing webhook ingestion per source address and
// guards concurrent deliveries of the same provider event. A nil limiter
// (rate limiting disabled) allows everything.
type WebhookLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate  float64
	burst int
}

func NewWebhookLimiter(cfg config.Config) (*WebhookLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.WebhookRate <= 0 || limitCfg.WebhookBurst <= 0 {
		return nil, errors.New("webhook rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &WebhookLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.WebhookRate,
		burst:   limitCfg.WebhookBurst,
	}, nil
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowSource rate-limits deliveries by their source address.
func (l *WebhookLimiter) AllowSource(ctx context.Context, source string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookSource, strings.TrimSpace(source)), l.rate, l.burst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// TryLockEvent takes a short-lived guard so concurrent redeliveries of the
// same provider event are serialized before they reach the database.
func (l *WebhookLimiter) TryLockEvent(ctx context.Context, provider, eventID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	key := fmt.Sprintf(keyWebhookEventLock, strings.TrimSpace(provider), strings.TrimSpace(eventID))
	return l.locker.TryLock(ctx, key, webhookEventLockTTL)
}

// ReleaseEvent releases the guard taken by TryLockEvent.
func (l *WebhookLimiter) ReleaseEvent(ctx context.Context, provider, eventID, token string) error {
	if !l.Enabled() {
		return nil
	}
	key := fmt.Sprintf(keyWebhookEventLock, strings.TrimSpace(provider), strings.TrimSpace(eventID))
	return l.locker.Release(ctx, key, token)
}
