package notify

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"sitewatch/internal/config"
	"sitewatch/internal/logger"
	apperrors "sitewatch/pkg/errors"
	"sitewatch/pkg/logging"
	"sitewatch/pkg/metrics"
	"sitewatch/pkg/models"
	"sitewatch/pkg/tracing"
)

const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusThrottled = "throttled"
)

// Sender delivers a rendered message to its recipient.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// SettingsSource yields the notification settings in effect right now.
type SettingsSource interface {
	Notification() config.NotificationSettings
}

// DeliveryResult describes what happened to a single event. Skipped means no
// usable recipient was configured and nothing was attempted.
type DeliveryResult struct {
	Delivered bool
	Skipped   bool
	Recipient string
	Err       error
}

type Notifier struct {
	sender    Sender
	settings  SettingsSource
	formatter *Formatter
	validate  *validator.Validate
	limiter   *rate.Limiter
	tracer    trace.Tracer
	logger    logger.Logger
}

func NewNotifier(sender Sender, settings SettingsSource, cfg config.NotificationConfig, log logger.Logger) *Notifier {
	n := &Notifier{
		sender:    sender,
		settings:  settings,
		formatter: NewFormatter(),
		validate:  validator.New(),
		tracer:    tracing.GetTracer("sitewatch/notify"),
		logger:    log,
	}
	if cfg.MaxPerHour > 0 {
		n.limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.MaxPerHour)), cfg.MaxPerHour)
	}
	return n
}

// Notify formats evt and hands it to the sender once. Failures are reported
// in the result, never retried.
func (n *Notifier) Notify(ctx context.Context, evt models.ErrorEvent) DeliveryResult {
	ctx = logging.WithEventID(ctx, evt.ID)
	ctx, span := n.tracer.Start(ctx, "notify.deliver", trace.WithAttributes(
		attribute.String("event.id", evt.ID),
		attribute.String("event.kind", string(evt.Kind)),
		attribute.String("sender", n.sender.Name()),
	))
	defer span.End()

	settings := n.settings.Notification()

	to, ok := n.resolveRecipient(settings)
	if !ok {
		metrics.IncEvent(string(evt.Kind), StatusSkipped)
		n.logger.WarnwCtx(ctx, "No valid recipient configured, notification skipped",
			"kind", evt.Kind,
			"url", evt.URL,
		)
		span.SetAttributes(attribute.Bool("skipped", true))
		return DeliveryResult{Skipped: true}
	}

	if n.limiter != nil && !n.limiter.Allow() {
		metrics.IncEvent(string(evt.Kind), StatusThrottled)
		n.logger.WarnwCtx(ctx, "Hourly notification limit reached, dropping event",
			"kind", evt.Kind,
			"url", evt.URL,
		)
		err := apperrors.ErrThrottled.WithDetail("kind", string(evt.Kind))
		tracing.RecordError(span, err)
		return DeliveryResult{Recipient: to, Err: err}
	}

	msg, err := n.formatter.Format(evt, settings, to)
	if err != nil {
		metrics.IncEvent(string(evt.Kind), StatusFailed)
		err = apperrors.Wrap(err, apperrors.ErrDelivery)
		tracing.RecordError(span, err)
		n.logger.ErrorwCtx(ctx, "Failed to render notification", "error", err)
		return DeliveryResult{Recipient: to, Err: err}
	}

	if err := n.sender.Send(ctx, msg); err != nil {
		metrics.IncEvent(string(evt.Kind), StatusFailed)
		err = apperrors.ErrDelivery.WithCause(err).WithDetail("recipient", to)
		tracing.RecordError(span, err)
		n.logger.ErrorwCtx(ctx, "Failed to deliver notification",
			"kind", evt.Kind,
			"url", evt.URL,
			"recipient", to,
			"sender", n.sender.Name(),
			"error", err,
		)
		return DeliveryResult{Recipient: to, Err: err}
	}

	metrics.IncEvent(string(evt.Kind), StatusDelivered)
	n.logger.InfowCtx(ctx, "Notification delivered",
		"kind", evt.Kind,
		"url", evt.URL,
		"recipient", to,
		"sender", n.sender.Name(),
	)
	return DeliveryResult{Delivered: true, Recipient: to}
}

// resolveRecipient prefers the site recipient and falls back to the admin
// address when the former is missing or malformed.
func (n *Notifier) resolveRecipient(settings config.NotificationSettings) (string, bool) {
	for _, candidate := range []string{settings.RecipientEmail, settings.AdminEmail} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if n.validate.Var(candidate, "required,email") == nil {
			return candidate, true
		}
	}
	return "", false
}
