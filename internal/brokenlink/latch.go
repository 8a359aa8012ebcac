package brokenlink

import (
	"context"
	"sync/atomic"
)

// Latch guarantees at most one detection per inbound request, even when the
// not-found signal is raised more than once while serving it.
type Latch struct {
	tripped atomic.Bool
}

// TryTrip reports whether this call was the first to trip the latch.
func (l *Latch) TryTrip() bool {
	return l.tripped.CompareAndSwap(false, true)
}

func (l *Latch) Tripped() bool {
	return l.tripped.Load()
}

type latchKey struct{}

// WithLatch returns ctx carrying a fresh latch. A context that already holds
// one is returned unchanged.
func WithLatch(ctx context.Context) context.Context {
	if LatchFromContext(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, latchKey{}, &Latch{})
}

func LatchFromContext(ctx context.Context) *Latch {
	l, _ := ctx.Value(latchKey{}).(*Latch)
	return l
}
