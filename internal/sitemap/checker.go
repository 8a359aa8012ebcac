package sitemap

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sitewatch/internal/config"
	"sitewatch/internal/constants"
	"sitewatch/internal/logger"
	"sitewatch/internal/notify"
	"sitewatch/internal/ratelimit"
	"sitewatch/pkg/metrics"
	"sitewatch/pkg/models"
	"sitewatch/pkg/tracing"
)

const (
	userAgent    = "sitewatch-sitemap-check/1.0"
	maxBodyDrain = 1 << 20
)

type Status string

const (
	StatusDisabled    Status = "disabled"
	StatusOK          Status = "ok"
	StatusUnreachable Status = "unreachable"
	StatusSuppressed  Status = "suppressed"
)

// Result describes one check. ErrorCode and ErrorMessage are set for
// StatusUnreachable and StatusSuppressed.
type Result struct {
	Status       Status
	URL          string
	StatusCode   int
	ErrorCode    string
	ErrorMessage string
	EventID      string
	Notified     bool
	CheckedAt    time.Time
	Duration     time.Duration
}

type Notifier interface {
	Notify(ctx context.Context, evt models.ErrorEvent) notify.DeliveryResult
}

type Checker struct {
	client   *http.Client
	policy   ratelimit.Policy
	notifier Notifier
	settings notify.SettingsSource
	now      func() time.Time
	tracer   trace.Tracer
	logger   logger.Logger

	mu   sync.RWMutex
	last *Result
}

func NewChecker(cfg config.SitemapConfig, policy ratelimit.Policy, notifier Notifier, settings notify.SettingsSource, log logger.Logger) *Checker {
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > constants.DefaultSitemapTimeout {
		timeout = constants.DefaultSitemapTimeout
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects < 0 {
		maxRedirects = constants.DefaultSitemapMaxRedirects
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: tracing.Transport(http.DefaultTransport.(*http.Transport).Clone()),
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	return &Checker{
		client:   client,
		policy:   policy,
		notifier: notifier,
		settings: settings,
		now:      time.Now,
		tracer:   tracing.GetTracer("sitewatch/sitemap"),
		logger:   log,
	}
}

// Check fetches the configured sitemap and notifies when it is unreachable.
// The only error returned is ctx's, in which case nothing was emitted.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "sitemap.check")
	defer span.End()

	url := strings.TrimSpace(c.settings.Notification().SitemapURL)
	res := Result{URL: url, CheckedAt: c.now()}

	if url == "" {
		res.Status = StatusDisabled
		c.finish(res)
		return res, nil
	}
	span.SetAttributes(attribute.String("sitemap.url", url))

	start := time.Now()
	statusCode, err := c.fetch(ctx, url)
	res.Duration = time.Since(start)
	metrics.ObserveSitemapCheckDuration(res.Duration)

	if ctxErr := ctx.Err(); ctxErr != nil {
		c.logger.InfowCtx(ctx, "Sitemap check cancelled", "url", url)
		return Result{}, ctxErr
	}

	res.StatusCode = statusCode
	switch {
	case err != nil:
		res.ErrorCode, res.ErrorMessage = ClassifyTransportError(err)
	case statusCode != http.StatusOK:
		res.ErrorCode = strconv.Itoa(statusCode)
		res.ErrorMessage = http.StatusText(statusCode)
		if res.ErrorMessage == "" {
			res.ErrorMessage = "Unexpected status"
		}
	default:
		res.Status = StatusOK
		c.logger.DebugwCtx(ctx, "Sitemap reachable", "url", url, "duration_ms", res.Duration.Milliseconds())
		c.finish(res)
		return res, nil
	}
	span.SetAttributes(attribute.String("sitemap.error_code", res.ErrorCode))

	acquired, err := c.policy.Acquire(ctx, models.KindSitemapUnreachable, url)
	if err != nil || !acquired {
		res.Status = StatusSuppressed
		c.logger.InfowCtx(ctx, "Sitemap unreachable, alert suppressed",
			"url", url,
			"error_code", res.ErrorCode,
			"error", err,
		)
		c.finish(res)
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		c.policy.Release(context.WithoutCancel(ctx), models.KindSitemapUnreachable, url)
		return Result{}, ctxErr
	}

	evt := models.NewSitemapEvent(url, res.ErrorCode, res.ErrorMessage, res.CheckedAt)
	res.Status = StatusUnreachable
	res.EventID = evt.ID

	delivery := c.notifier.Notify(ctx, evt)
	if delivery.Skipped || delivery.Err != nil {
		c.policy.Release(context.WithoutCancel(ctx), models.KindSitemapUnreachable, url)
	}
	res.Notified = delivery.Delivered

	c.logger.WarnwCtx(ctx, "Sitemap unreachable",
		"event_id", evt.ID,
		"url", url,
		"error_code", res.ErrorCode,
		"error_message", res.ErrorMessage,
		"notified", res.Notified,
	)
	c.finish(res)
	return res, nil
}

// Last returns the most recent completed check.
func (c *Checker) Last() (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Result{}, false
	}
	return *c.last, true
}

func (c *Checker) fetch(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyDrain))

	return resp.StatusCode, nil
}

func (c *Checker) finish(res Result) {
	metrics.IncSitemapCheck(string(res.Status))

	c.mu.Lock()
	c.last = &res
	c.mu.Unlock()
}
