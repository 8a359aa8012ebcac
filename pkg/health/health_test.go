package health

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerRegistry(t *testing.T) {
	ok := NewFuncChecker("ok", func(context.Context) error { return nil })
	degraded := NewFuncChecker("sitemap", func(context.Context) error {
		return fmt.Errorf("%w: last check returned 500", ErrDegraded)
	})
	broken := NewFuncChecker("broken", func(context.Context) error { return errors.New("down") })

	t.Run("healthy", func(t *testing.T) {
		r := NewCheckerRegistry()
		r.Register(ok)
		h := r.Check(context.Background())
		assert.Equal(t, StatusHealthy, h.Status)
		assert.Equal(t, StatusHealthy, h.Checks["ok"].Status)
	})

	t.Run("degraded", func(t *testing.T) {
		r := NewCheckerRegistry()
		r.Register(ok)
		r.Register(degraded)
		h := r.Check(context.Background())
		assert.Equal(t, StatusDegraded, h.Status)
		assert.Contains(t, h.Checks["sitemap"].Message, "500")
	})

	t.Run("unhealthy wins", func(t *testing.T) {
		r := NewCheckerRegistry()
		r.Register(degraded)
		r.Register(broken)
		h := r.Check(context.Background())
		assert.Equal(t, StatusUnhealthy, h.Status)
		assert.Equal(t, "down", h.Checks["broken"].Message)
	})
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisChecker(client)
	assert.Equal(t, "redis", c.Name())
	require.NoError(t, c.Check(context.Background()))

	mr.Close()
	assert.Error(t, c.Check(context.Background()))
}
