package ratelimit

import (
	"context"
	"strings"
	"time"

	"sitewatch/internal/config"
	"sitewatch/internal/constants"
	"sitewatch/internal/logger"
	apperrors "sitewatch/pkg/errors"
	"sitewatch/pkg/metrics"
	"sitewatch/pkg/models"
)

// Policy decides whether an event may be emitted now. Acquire reserves the
// (kind, url) slot; Release gives it back when delivery did not happen.
type Policy interface {
	Acquire(ctx context.Context, kind models.Kind, url string) (bool, error)
	Release(ctx context.Context, kind models.Kind, url string)
}

// NewPolicy builds the policy selected by cfg.
func NewPolicy(cfg config.RateLimitConfig, store Store, log logger.Logger) Policy {
	if strings.ToLower(cfg.Policy) == constants.RateLimitPolicyNone {
		return NoopPolicy{}
	}
	return NewCooldownPolicy(store, cfg, log)
}

// NoopPolicy never suppresses.
type NoopPolicy struct{}

func (NoopPolicy) Acquire(context.Context, models.Kind, string) (bool, error) { return true, nil }
func (NoopPolicy) Release(context.Context, models.Kind, string)               {}

// CooldownPolicy allows one emission per (kind, url) per cooldown window.
// The window starts when the slot is acquired and is cleared by Release.
type CooldownPolicy struct {
	store        Store
	fingerprint  *Fingerprinter
	cooldown     time.Duration
	onStoreError string
	logger       logger.Logger
}

func NewCooldownPolicy(store Store, cfg config.RateLimitConfig, log logger.Logger) *CooldownPolicy {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = constants.DefaultCooldown
	}
	onStoreError := strings.ToLower(cfg.OnStoreError)
	if onStoreError == "" {
		onStoreError = constants.FallbackAllow
	}

	return &CooldownPolicy{
		store:        store,
		fingerprint:  NewFingerprinter(cfg.HashAlgorithm),
		cooldown:     cooldown,
		onStoreError: onStoreError,
		logger:       log,
	}
}

func (p *CooldownPolicy) Acquire(ctx context.Context, kind models.Kind, url string) (bool, error) {
	key := p.fingerprint.Key(kind, url)

	acquired, err := p.store.SetNX(ctx, key, time.Now().Unix(), p.cooldown)
	if err != nil {
		return p.handleStoreError(ctx, err, kind, url)
	}

	decision := "suppressed"
	if acquired {
		decision = "allowed"
	}
	metrics.RateLimitDecisionsTotal.WithLabelValues(string(kind), decision).Inc()
	return acquired, nil
}

func (p *CooldownPolicy) Release(ctx context.Context, kind models.Kind, url string) {
	if err := p.store.Delete(ctx, p.fingerprint.Key(kind, url)); err != nil {
		p.logger.WarnwCtx(ctx, "Failed to release rate limit slot",
			"kind", kind,
			"url", url,
			"error", err,
		)
	}
}

func (p *CooldownPolicy) handleStoreError(ctx context.Context, err error, kind models.Kind, url string) (bool, error) {
	metrics.RateLimitDecisionsTotal.WithLabelValues(string(kind), "error").Inc()

	if p.onStoreError == constants.FallbackAllow {
		metrics.FallbackUsageTotal.WithLabelValues("ratelimit", "allow_on_error").Inc()
		p.logger.WarnwCtx(ctx, "Rate limit store error, allowing event (fallback: allow)",
			"kind", kind,
			"url", url,
			"error", err,
		)
		return true, nil
	}

	metrics.FallbackUsageTotal.WithLabelValues("ratelimit", "deny_on_error").Inc()
	return false, apperrors.ErrStoreUnavailable.
		WithCause(err).
		WithDetail("kind", string(kind)).
		WithDetail("url", url)
}

// ReportSize periodically publishes the number of active suppression keys
// until ctx is cancelled.
func (p *CooldownPolicy) ReportSize(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			size, err := p.store.Size(ctx, p.fingerprint.Prefix())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Debugw("Failed to get rate limit store size", "error", err)
				continue
			}
			metrics.SetRateLimitActiveKeys(size)
		case <-ctx.Done():
			return
		}
	}
}
