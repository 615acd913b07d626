// Package message turns alert and billing fact sheets into notification text.
//
// A Backend drafts the subject and body; the Engine checks every draft against
// the content rules of its kind and channel before handing it out, so a
// message either satisfies the rules in full or is not produced at all.
package message

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "Email"
)

var ErrUnknownChannel = errors.New("unknown channel")

// ParseChannel accepts the canonical names in any case and the legacy "GMail"
// spelling for email.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sms":
		return ChannelSMS, nil
	case "email", "gmail":
		return ChannelEmail, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

type AlertType string

const (
	AlertTampering                  AlertType = "Tampering"
	AlertOutageScheduled            AlertType = "Outage-Scheduled"
	AlertOutageUnscheduledMaint     AlertType = "Outage-Unscheduled-Maintenance"
	AlertOutageUnscheduledTampering AlertType = "Outage-Unscheduled-Tampering"
)

var AlertTypes = []AlertType{
	AlertTampering,
	AlertOutageScheduled,
	AlertOutageUnscheduledMaint,
	AlertOutageUnscheduledTampering,
}

func (a AlertType) Valid() bool {
	for _, t := range AlertTypes {
		if a == t {
			return true
		}
	}
	return false
}

// Security reports whether the alert is about tampering.
func (a AlertType) Security() bool {
	return a == AlertTampering || a == AlertOutageUnscheduledTampering
}

type AlertFacts struct {
	CustomerName string    `json:"customerName"`
	MeterID      string    `json:"meterId"`
	AlertType    AlertType `json:"alertType"`
	Channel      Channel   `json:"notificationMethod"`
	// OutageDetails is only used for scheduled outages.
	OutageDetails string `json:"outageDetails,omitempty"`
}

type BillingFacts struct {
	CustomerName  string  `json:"customerName"`
	MeterID       string  `json:"meterId"`
	AmountDue     string  `json:"amountDue"`
	DueDate       string  `json:"dueDate"`
	Usage         string  `json:"usage"`
	StatementLink string  `json:"statementLink"`
	Channel       Channel `json:"notificationMethod"`
}

// Message is a finished notification. Subject is empty for SMS.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

var (
	ErrInvalidFacts = errors.New("invalid fact sheet")
	ErrGeneration   = errors.New("message generation failed")
)

// GenerationError reports a backend failure or a draft that broke a content
// rule. errors.Is(err, ErrGeneration) holds for every GenerationError.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrGeneration, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrGeneration, e.Reason)
}

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

func (e *GenerationError) Unwrap() error { return e.Err }

func generationFailure(reason string, err error) error {
	return &GenerationError{Reason: reason, Err: err}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFacts, fmt.Sprintf(format, args...))
}

func validChannel(c Channel) bool { return c == ChannelSMS || c == ChannelEmail }

func (f AlertFacts) Validate() error {
	switch {
	case strings.TrimSpace(f.CustomerName) == "":
		return invalid("customer name is required")
	case !f.AlertType.Valid():
		return invalid("unknown alert type %q", f.AlertType)
	case !validChannel(f.Channel):
		return invalid("unknown notification method %q", f.Channel)
	case f.AlertType == AlertOutageScheduled && strings.TrimSpace(f.OutageDetails) == "":
		return invalid("outage details are required for scheduled outages")
	}
	return nil
}

var amountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

func (f BillingFacts) Validate() error {
	switch {
	case strings.TrimSpace(f.CustomerName) == "":
		return invalid("customer name is required")
	case !amountPattern.MatchString(f.AmountDue):
		return invalid("amount due %q is not a decimal amount", f.AmountDue)
	case strings.TrimSpace(f.DueDate) == "":
		return invalid("due date is required")
	case strings.TrimSpace(f.Usage) == "":
		return invalid("usage is required")
	case !validChannel(f.Channel):
		return invalid("unknown notification method %q", f.Channel)
	}
	u, err := url.Parse(f.StatementLink)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("statement link %q is not an absolute http(s) URL", f.StatementLink)
	}
	return nil
}
