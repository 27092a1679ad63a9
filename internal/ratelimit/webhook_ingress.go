package ratelimit

import (
	"context"

	"github.com/orcafacil/billing/internal/config"
	"go.uber.org/zap"
)

// WebhookIngressLimiter throttles inbound gateway notifications per provider.
// Nil when redis is not configured; Allow then always admits.
type WebhookIngressLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewWebhookIngressLimiter(bucket *TokenBucket, cfg config.Config, log *zap.Logger) *WebhookIngressLimiter {
	if bucket == nil {
		return nil
	}
	return &WebhookIngressLimiter{
		bucket: bucket,
		rate:   cfg.WebhookRate,
		burst:  cfg.WebhookBurst,
		log:    log.Named("ratelimit.webhook"),
	}
}

// Allow reports whether the notification may be accepted. Redis failures
// admit the request; dropping gateway notifications costs more than letting
// a burst through.
func (l *WebhookIngressLimiter) Allow(ctx context.Context, provider string) bool {
	if l == nil || l.bucket == nil {
		return true
	}
	res, err := l.bucket.Allow(ctx, "webhook:ingress:"+provider, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, admitting request", zap.Error(err))
		return true
	}
	return res.Allowed
}
