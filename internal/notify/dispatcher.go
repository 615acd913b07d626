// Package notify delivers generated messages to recipients.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/sems-monitoring/internal/common"
	"github.com/example/sems-monitoring/internal/message"
)

var (
	ErrValidation         = errors.New("invalid input")
	ErrConfiguration      = errors.New("mail transport not configured")
	ErrDelivery           = errors.New("delivery failed")
	ErrUnsupportedChannel = errors.New("unsupported channel")
)

const (
	msgInvalidInput   = "Invalid input provided."
	msgNotConfigured  = "SendGrid API Key or From Email is not configured."
	msgSMSUnsupported = "SMS notifications are not currently supported."
)

var dispatchCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notify_dispatch_total",
	Help: "Dispatch attempts by channel and outcome",
}, []string{"channel", "outcome"})

// Result is what the caller shows to staff. It is built fresh for every
// attempt and never retried.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Dispatcher struct {
	transport Transport
	config    MailConfig
	events    EventPublisher
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewDispatcher(t Transport, cfg MailConfig, events EventPublisher, logger zerolog.Logger) *Dispatcher {
	if events == nil {
		events = NopPublisher{}
	}
	return &Dispatcher{
		transport: t,
		config:    cfg,
		events:    events,
		logger:    logger,
		tracer:    otel.Tracer("dispatcher"),
		now:       time.Now,
	}
}

// Dispatch makes one delivery attempt. Every failure is reported in the
// Result; the error kinds are only visible in logs, metrics and events.
func (d *Dispatcher) Dispatch(ctx context.Context, recipient, subject, body, channel string) Result {
	ctx, span := d.tracer.Start(ctx, "dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("channel", channel))

	res, err := d.dispatch(ctx, recipient, subject, body, channel)

	outcome := outcomeOf(err)
	dispatchCounter.WithLabelValues(channelLabel(channel), outcome).Inc()
	logger := common.WithContext(ctx, d.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		logger.Warn().Err(err).Str("channel", channel).Str("outcome", outcome).Msg("notification not sent")
	} else {
		logger.Info().Str("channel", channel).Msg("notification sent")
	}

	event := Event{
		ID:              uuid.NewString(),
		Type:            "notification.dispatched",
		Channel:         channel,
		Success:         res.Success,
		Outcome:         outcome,
		RecipientDomain: domainOf(recipient),
		EmittedAt:       d.now().UTC(),
	}
	if d.transport != nil {
		event.Provider = d.transport.Name()
	}
	if perr := d.events.Publish(ctx, event); perr != nil {
		logger.Error().Err(perr).Str("event_id", event.ID).Msg("failed to publish dispatch event")
	}
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, recipient, subject, body, channel string) (Result, error) {
	switch {
	case strings.TrimSpace(recipient) == "":
		return failure(msgInvalidInput), fmt.Errorf("%w: recipient is required", ErrValidation)
	case strings.TrimSpace(body) == "":
		return failure(msgInvalidInput), fmt.Errorf("%w: body is required", ErrValidation)
	case strings.TrimSpace(channel) == "":
		return failure(msgInvalidInput), fmt.Errorf("%w: channel is required", ErrValidation)
	}

	ch, err := message.ParseChannel(channel)
	if err != nil {
		return failure(fmt.Sprintf("The notification method \"%s\" is not supported.", channel)),
			fmt.Errorf("%w: %v", ErrUnsupportedChannel, err)
	}

	switch ch {
	case message.ChannelEmail:
		return d.sendEmail(ctx, recipient, subject, body)
	case message.ChannelSMS:
		return failure(msgSMSUnsupported), fmt.Errorf("%w: sms", ErrUnsupportedChannel)
	default:
		return failure(fmt.Sprintf("The notification method \"%s\" is not supported.", channel)),
			fmt.Errorf("%w: %s", ErrUnsupportedChannel, ch)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, recipient, subject, body string) (Result, error) {
	if d.transport == nil || !d.config.complete() {
		return failure(msgNotConfigured), ErrConfiguration
	}
	mail := Mail{
		To:      strings.TrimSpace(recipient),
		From:    d.config.FromAddress,
		Subject: subject,
		Text:    body,
		HTML:    TextToHTML(body),
	}
	if err := d.transport.Send(ctx, d.config.APIKey, mail); err != nil {
		return failure(fmt.Sprintf("Failed to send email via %s.", d.transport.Name())),
			fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Notification successfully sent to %s via %s.", mail.To, message.ChannelEmail),
	}, nil
}

func failure(msg string) Result {
	return Result{Success: false, Message: msg}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrConfiguration):
		return "not_configured"
	case errors.Is(err, ErrUnsupportedChannel):
		return "unsupported"
	case errors.Is(err, ErrDelivery):
		return "delivery_failed"
	default:
		return "error"
	}
}

// channelLabel keeps metric cardinality bounded.
func channelLabel(channel string) string {
	ch, err := message.ParseChannel(channel)
	if err != nil {
		return "other"
	}
	return strings.ToLower(string(ch))
}

func domainOf(recipient string) string {
	if i := strings.LastIndex(recipient, "@"); i >= 0 {
		return strings.ToLower(strings.TrimSpace(recipient[i+1:]))
	}
	return ""
}
