package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"sitewatch/internal/config"
	"sitewatch/pkg/circuitbreaker"
)

const breakerName = "ratelimit-store"

// CircuitBreakerStore stops hammering an unhealthy backend. While the
// breaker is open every call fails fast and the policy fallback decides.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) *CircuitBreakerStore {
	if !cfg.Enabled {
		return &CircuitBreakerStore{store: store}
	}

	cbConfig := circuitbreaker.DefaultConfig(breakerName)
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerStore) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if s.cb == nil {
		return s.store.SetNX(ctx, key, value, ttl)
	}
	return execute(ctx, s.cb, func() (bool, error) {
		return s.store.SetNX(ctx, key, value, ttl)
	})
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, key string) error {
	if s.cb == nil {
		return s.store.Delete(ctx, key)
	}
	_, err := execute(ctx, s.cb, func() (struct{}, error) {
		return struct{}{}, s.store.Delete(ctx, key)
	})
	return err
}

func (s *CircuitBreakerStore) Size(ctx context.Context, prefix string) (int, error) {
	if s.cb == nil {
		return s.store.Size(ctx, prefix)
	}
	return execute(ctx, s.cb, func() (int, error) {
		return s.store.Size(ctx, prefix)
	})
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}

func (s *CircuitBreakerStore) IsOpen() bool {
	if s.cb == nil {
		return false
	}
	return s.cb.IsOpen()
}

func execute[T any](ctx context.Context, cb *circuitbreaker.Wrapper, fn func() (T, error)) (T, error) {
	var zero T

	result, err := cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return fn()
	})

	cb.RecordRequest(err == nil)

	if err != nil {
		if cb.IsOpen() {
			return zero, fmt.Errorf("circuit breaker is open for %s: %w", cb.Name(), err)
		}
		return zero, err
	}

	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("store returned invalid result type %T", result)
	}
	return typed, nil
}
