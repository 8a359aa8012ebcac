package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestIncNotFoundSignal(t *testing.T) {
	before := testutil.ToFloat64(NotFoundSignalsTotal.WithLabelValues("ignored_static"))
	IncNotFoundSignal("ignored_static")
	assert.Equal(t, before+1, testutil.ToFloat64(NotFoundSignalsTotal.WithLabelValues("ignored_static")))
}

func TestSetRateLimitActiveKeys(t *testing.T) {
	SetRateLimitActiveKeys(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(RateLimitActiveKeys))
}
