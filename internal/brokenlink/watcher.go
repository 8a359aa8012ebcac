package brokenlink

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

type Handler interface {
	Handle(ctx context.Context, sig Signal) Outcome
}

// Watcher feeds 404 responses into the pipeline off the request path.
type Watcher struct {
	handler Handler
	wg      sync.WaitGroup
}

func NewWatcher(handler Handler) *Watcher {
	return &Watcher{handler: handler}
}

// Middleware installs the per-request latch and reports the request once the
// rest of the chain has produced a 404.
func (w *Watcher) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithLatch(c.Request.Context()))

		c.Next()

		if c.Writer.Status() == http.StatusNotFound {
			w.Report(c)
		}
	}
}

// Report dispatches a not-found signal for the current request. Handlers may
// call it before writing the response; the latch keeps the middleware from
// reporting the same request again.
func (w *Watcher) Report(c *gin.Context) {
	sig := Signal{
		NotFound:   true,
		URL:        RequestURL(c.Request),
		Header:     c.Request.Header.Clone(),
		RemoteAddr: c.Request.RemoteAddr,
	}
	ctx := context.WithoutCancel(c.Request.Context())

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.handler.Handle(ctx, sig)
	}()
}

// Wait blocks until every dispatched signal has been handled or ctx is done.
func (w *Watcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
