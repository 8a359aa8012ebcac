package brokenlink

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sitewatch/internal/classifier"
	"sitewatch/internal/logger"
	"sitewatch/internal/notify"
	"sitewatch/internal/ratelimit"
	"sitewatch/pkg/cel"
	apperrors "sitewatch/pkg/errors"
	"sitewatch/pkg/metrics"
	"sitewatch/pkg/models"
	"sitewatch/pkg/tracing"
)

type Outcome string

const (
	OutcomeIgnoredNotFound Outcome = "ignored_not_found"
	OutcomeIgnoredLatched  Outcome = "ignored_latched"
	OutcomeIgnoredStatic   Outcome = "ignored_static"
	OutcomeIgnoredReferrer Outcome = "ignored_referrer"
	OutcomeIgnoredRule     Outcome = "ignored_rule"
	OutcomeSuppressed      Outcome = "suppressed"
	OutcomeNotified        Outcome = "notified"
	OutcomeDeliveryFailed  Outcome = "delivery_failed"
	OutcomeSkipped         Outcome = "skipped"
)

// Signal is what the serving layer knows about one finished request.
type Signal struct {
	NotFound   bool
	URL        string
	Header     http.Header
	RemoteAddr string
}

type Notifier interface {
	Notify(ctx context.Context, evt models.ErrorEvent) notify.DeliveryResult
}

// Pipeline turns not-found signals into deduplicated broken link alerts.
// It is safe for concurrent use; the rate limit store is its only shared state.
type Pipeline struct {
	policy   ratelimit.Policy
	notifier Notifier
	settings notify.SettingsSource
	rules    *cel.RuleSet
	now      func() time.Time
	tracer   trace.Tracer
	logger   logger.Logger
}

// NewPipeline wires the pipeline. rules may be nil.
func NewPipeline(policy ratelimit.Policy, notifier Notifier, settings notify.SettingsSource, rules *cel.RuleSet, log logger.Logger) *Pipeline {
	return &Pipeline{
		policy:   policy,
		notifier: notifier,
		settings: settings,
		rules:    rules,
		now:      time.Now,
		tracer:   tracing.GetTracer("sitewatch/brokenlink"),
		logger:   log,
	}
}

// Handle classifies sig and notifies at most once per distinct broken URL per
// cooldown window. It never returns an error and never panics.
func (p *Pipeline) Handle(ctx context.Context, sig Signal) (outcome Outcome) {
	ctx, span := p.tracer.Start(ctx, "brokenlink.handle", trace.WithAttributes(
		attribute.String("url", sig.URL),
	))

	defer func() {
		if r := recover(); r != nil {
			err := apperrors.RecoverPanic(r)
			tracing.RecordError(span, err)
			p.logger.ErrorwCtx(ctx, "Recovered from panic in broken link pipeline",
				"url", sig.URL,
				"error", err,
			)
			outcome = OutcomeSkipped
		}
		span.SetAttributes(attribute.String("outcome", string(outcome)))
		span.End()
		metrics.IncNotFoundSignal(string(outcome))
	}()

	if !sig.NotFound {
		return OutcomeIgnoredNotFound
	}

	if latch := LatchFromContext(ctx); latch != nil && !latch.TryTrip() {
		return OutcomeIgnoredLatched
	}

	if classifier.IsStaticAsset(sig.URL) {
		return OutcomeIgnoredStatic
	}

	settings := p.settings.Notification()
	siteURL := settings.SiteURL
	if siteURL == "" {
		siteURL = sig.URL
	}

	referrer := sig.Header.Get("Referer")
	if referrer == "" || !classifier.IsInternalReferrer(referrer, siteURL) {
		return OutcomeIgnoredReferrer
	}

	userAgent := sig.Header.Get("User-Agent")
	clientIP := classifier.ResolveClientIP(sig.Header, sig.RemoteAddr)

	if p.rules.Len() > 0 {
		matched, errs := p.rules.Match(ctx, cel.Request{
			URL:       sig.URL,
			Path:      urlPath(sig.URL),
			Referrer:  referrer,
			UserAgent: userAgent,
			ClientIP:  clientIP,
		})
		for _, err := range errs {
			p.logger.WarnwCtx(ctx, "Ignore rule failed, skipping it", "error", err)
		}
		if matched != "" {
			p.logger.DebugwCtx(ctx, "Not-found signal ignored by rule",
				"url", sig.URL,
				"rule", matched,
			)
			return OutcomeIgnoredRule
		}
	}

	evt := models.NewBrokenLinkEvent(sig.URL, referrer, userAgent, clientIP, p.now())
	span.SetAttributes(attribute.String("event.id", evt.ID))

	acquired, err := p.policy.Acquire(ctx, evt.Kind, evt.URL)
	if err != nil {
		p.logger.WarnwCtx(ctx, "Rate limit unavailable, suppressing broken link alert",
			"url", evt.URL,
			"error", err,
		)
		return OutcomeSuppressed
	}
	if !acquired {
		p.logger.DebugwCtx(ctx, "Broken link alert suppressed by cooldown", "url", evt.URL)
		return OutcomeSuppressed
	}

	res := p.notifier.Notify(ctx, evt)
	switch {
	case res.Skipped:
		p.policy.Release(ctx, evt.Kind, evt.URL)
		return OutcomeSkipped
	case res.Err != nil:
		p.policy.Release(ctx, evt.Kind, evt.URL)
		p.logger.DebugwCtx(ctx, "Cooldown released after failed delivery",
			"url", evt.URL,
			"error_code", apperrors.Code(res.Err),
		)
		return OutcomeDeliveryFailed
	}

	p.logger.InfowCtx(ctx, "Broken internal link reported",
		"event_id", evt.ID,
		"url", evt.URL,
		"referrer", evt.Referrer,
	)
	return OutcomeNotified
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}
