package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/sems-monitoring/internal/common"
)

var generations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "message_generations_total",
	Help: "Notification drafts by kind, backend and outcome",
}, []string{"kind", "backend", "outcome"})

// maxAlertSMSRunes keeps an alert within a single SMS segment.
const maxAlertSMSRunes = 160

// Backend drafts messages. Its output is untrusted until the Engine checked it.
type Backend interface {
	Name() string
	Alert(ctx context.Context, f AlertFacts) (Message, error)
	Billing(ctx context.Context, f BillingFacts) (Message, error)
}

type Engine struct {
	backend Backend
	catalog *Catalog
	tracer  trace.Tracer
	logger  zerolog.Logger
}

func NewEngine(backend Backend, catalog *Catalog, logger zerolog.Logger) *Engine {
	return &Engine{
		backend: backend,
		catalog: catalog,
		tracer:  otel.Tracer("message"),
		logger:  logger,
	}
}

func (e *Engine) GenerateAlert(ctx context.Context, f AlertFacts) (Message, error) {
	if err := f.Validate(); err != nil {
		return Message{}, err
	}
	ctx, span := e.tracer.Start(ctx, "generate_alert")
	defer span.End()
	span.SetAttributes(
		attribute.String("alert.type", string(f.AlertType)),
		attribute.String("channel", string(f.Channel)),
		attribute.String("meter.id", f.MeterID),
	)

	msg, err := e.backend.Alert(ctx, f)
	if err == nil {
		msg, err = e.checkAlert(f, msg)
	}
	return e.finish(ctx, span, "alert", f.MeterID, msg, err)
}

func (e *Engine) GenerateBilling(ctx context.Context, f BillingFacts) (Message, error) {
	if err := f.Validate(); err != nil {
		return Message{}, err
	}
	ctx, span := e.tracer.Start(ctx, "generate_billing")
	defer span.End()
	span.SetAttributes(
		attribute.String("channel", string(f.Channel)),
		attribute.String("meter.id", f.MeterID),
	)

	msg, err := e.backend.Billing(ctx, f)
	if err == nil {
		msg, err = e.checkBilling(f, msg)
	}
	return e.finish(ctx, span, "billing", f.MeterID, msg, err)
}

func (e *Engine) finish(ctx context.Context, span trace.Span, kind, meterID string, msg Message, err error) (Message, error) {
	logger := common.WithContext(ctx, e.logger)
	if err != nil {
		var ge *GenerationError
		if !errors.As(err, &ge) {
			err = generationFailure(e.backend.Name()+" backend", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		generations.WithLabelValues(kind, e.backend.Name(), "failed").Inc()
		logger.Warn().Err(err).Str("kind", kind).Str("meter_id", meterID).Msg("message generation failed")
		return Message{}, err
	}
	generations.WithLabelValues(kind, e.backend.Name(), "ok").Inc()
	logger.Debug().Str("kind", kind).Str("meter_id", meterID).Msg("message generated")
	return msg, nil
}

func (e *Engine) checkAlert(f AlertFacts, msg Message) (Message, error) {
	msg.Subject = strings.TrimSpace(msg.Subject)
	msg.Body = strings.TrimSpace(msg.Body)
	words := e.catalog.alert(f.AlertType)

	if msg.Body == "" {
		return Message{}, generationFailure("empty body", nil)
	}
	if f.MeterID != "" && (strings.Contains(msg.Body, f.MeterID) || strings.Contains(msg.Subject, f.MeterID)) {
		return Message{}, generationFailure("draft mentions the meter id", nil)
	}
	if f.AlertType == AlertOutageScheduled && !strings.Contains(msg.Body, f.OutageDetails) {
		return Message{}, generationFailure("draft omits the outage details", nil)
	}

	if f.Channel == ChannelSMS {
		if !strings.HasPrefix(msg.Body, e.catalog.Alerts.SMSPrefix) {
			return Message{}, generationFailure("sms must start with "+e.catalog.Alerts.SMSPrefix, nil)
		}
		if n := utf8.RuneCountInString(msg.Body); n > maxAlertSMSRunes {
			return Message{}, generationFailure(fmt.Sprintf("sms is %d characters, limit is %d", n, maxAlertSMSRunes), nil)
		}
		return Message{Body: msg.Body}, nil
	}

	upper := strings.ToUpper(msg.Subject)
	if !strings.HasPrefix(upper, "URGENT") && !strings.HasPrefix(upper, "IMPORTANT") {
		return Message{}, generationFailure("subject must be marked urgent or important", nil)
	}
	if !strings.HasPrefix(msg.Body, words.Opener) {
		return Message{}, generationFailure("email must open with: "+words.Opener, nil)
	}
	if f.AlertType.Security() && !strings.Contains(strings.ToLower(msg.Body), "support") {
		return Message{}, generationFailure("tampering email must point to support", nil)
	}
	return msg, nil
}

func (e *Engine) checkBilling(f BillingFacts, msg Message) (Message, error) {
	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return Message{}, generationFailure("empty body", nil)
	}
	amount := e.catalog.Billing.Currency + f.AmountDue

	if f.Channel == ChannelSMS {
		switch {
		case strings.Contains(body, "\n"):
			return Message{}, generationFailure("sms must be a single line", nil)
		case !strings.Contains(body, amount) || !strings.Contains(body, f.DueDate):
			return Message{}, generationFailure("sms must state amount and due date", nil)
		case strings.Contains(body, f.Usage) || strings.Contains(body, f.StatementLink):
			return Message{}, generationFailure("sms must not include usage or statement link", nil)
		}
		return Message{Body: body}, nil
	}

	want := []string{
		"Amount Due: " + amount,
		"Due Date: " + f.DueDate,
		"Usage: " + f.Usage,
	}
	lines := strings.Split(body, "\n")
	if len(lines) != len(want) {
		return Message{}, generationFailure("billing email must have exactly three lines", nil)
	}
	for i, line := range lines {
		if strings.TrimSpace(line) != want[i] {
			return Message{}, generationFailure(fmt.Sprintf("billing email line %d is malformed", i+1), nil)
		}
		lines[i] = want[i]
	}
	// the subject is fixed regardless of what the backend drafted
	return Message{Subject: e.catalog.Billing.Subject, Body: strings.Join(lines, "\n")}, nil
}
