package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu    sync.Mutex
	calls []Mail
	creds []string
	err   error
}

func (r *recordingTransport) Name() string { return "SendGrid" }

func (r *recordingTransport) Send(_ context.Context, credential string, m Mail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, m)
	r.creds = append(r.creds, credential)
	return r.err
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.events = append(p.events, e)
	return p.err
}

var configured = MailConfig{APIKey: "SG.test", FromAddress: "alerts@sems.example"}

func TestDispatchResults(t *testing.T) {
	cases := []struct {
		name      string
		cfg       MailConfig
		recipient string
		body      string
		channel   string
		sendErr   error
		success   bool
		message   string
		sends     int
	}{
		{"empty recipient", configured, "", "hello", "Email", nil, false, "Invalid input provided.", 0},
		{"blank recipient wins over bad channel", configured, "   ", "hello", "Fax", nil, false, "Invalid input provided.", 0},
		{"empty body", configured, "a@b.com", "", "Email", nil, false, "Invalid input provided.", 0},
		{"empty channel", configured, "a@b.com", "hello", "", nil, false, "Invalid input provided.", 0},
		{"sms", configured, "0917", "hello", "SMS", nil, false, "SMS notifications are not currently supported.", 0},
		{"sms without config", MailConfig{}, "0917", "hello", "sms", nil, false, "SMS notifications are not currently supported.", 0},
		{"unknown channel", configured, "a@b.com", "hello", "Fax", nil, false, `The notification method "Fax" is not supported.`, 0},
		{"missing api key", MailConfig{FromAddress: "x@y.z"}, "a@b.com", "hello", "Email", nil, false, "SendGrid API Key or From Email is not configured.", 0},
		{"missing sender", MailConfig{APIKey: "k"}, "a@b.com", "hello", "Email", nil, false, "SendGrid API Key or From Email is not configured.", 0},
		{"transport failure", configured, "a@b.com", "hello", "Email", errors.New("503"), false, "Failed to send email via SendGrid.", 1},
		{"sent", configured, "a@b.com", "hello", "Email", nil, true, "Notification successfully sent to a@b.com via Email.", 1},
		{"legacy gmail alias", configured, "a@b.com", "hello", "GMail", nil, true, "Notification successfully sent to a@b.com via Email.", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &recordingTransport{err: tc.sendErr}
			pub := &recordingPublisher{}
			d := NewDispatcher(tr, tc.cfg, pub, zerolog.Nop())

			res := d.Dispatch(context.Background(), tc.recipient, "Subject", tc.body, tc.channel)

			assert.Equal(t, tc.success, res.Success)
			assert.Equal(t, tc.message, res.Message)
			assert.Len(t, tr.calls, tc.sends)
			require.Len(t, pub.events, 1)
			assert.Equal(t, tc.success, pub.events[0].Success)
			assert.Equal(t, tc.success, pub.events[0].Outcome == "sent")
		})
	}
}

func TestDispatchBuildsMail(t *testing.T) {
	tr := &recordingTransport{}
	d := NewDispatcher(tr, configured, nil, zerolog.Nop())

	res := d.Dispatch(context.Background(), " jane@example.com ", "Your Monthly Electricity Bill is Ready", "Amount Due: ₱2511.00\nDue Date: 3/2/2024", "Email")
	require.True(t, res.Success)
	require.Len(t, tr.calls, 1)

	m := tr.calls[0]
	assert.Equal(t, "jane@example.com", m.To)
	assert.Equal(t, "alerts@sems.example", m.From)
	assert.Equal(t, "Your Monthly Electricity Bill is Ready", m.Subject)
	assert.Equal(t, "Amount Due: ₱2511.00\nDue Date: 3/2/2024", m.Text)
	assert.Equal(t, "<p>Amount Due: ₱2511.00<br>Due Date: 3/2/2024</p>", m.HTML)
	assert.Equal(t, []string{"SG.test"}, tr.creds)
}

func TestDispatchWithoutTransportIsNotConfigured(t *testing.T) {
	d := NewDispatcher(nil, configured, nil, zerolog.Nop())
	res := d.Dispatch(context.Background(), "a@b.com", "s", "b", "Email")
	assert.False(t, res.Success)
	assert.Equal(t, "SendGrid API Key or From Email is not configured.", res.Message)
}

func TestDispatchIgnoresPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	d := NewDispatcher(&recordingTransport{}, configured, pub, zerolog.Nop())
	d.now = func() time.Time { return time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC) }

	res := d.Dispatch(context.Background(), "jane@Example.com", "s", "b", "Email")
	assert.True(t, res.Success)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "example.com", pub.events[0].RecipientDomain)
	assert.Equal(t, "sent", pub.events[0].Outcome)
	assert.Equal(t, "SendGrid", pub.events[0].Provider)
	assert.Equal(t, time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC), pub.events[0].EmittedAt)
}

func TestDispatchEventOmitsRecipientAddress(t *testing.T) {
	for _, tc := range []struct {
		name    string
		sendErr error
	}{
		{"sent", nil},
		{"delivery failed", errors.New("503")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			d := NewDispatcher(&recordingTransport{err: tc.sendErr}, configured, pub, zerolog.Nop())

			res := d.Dispatch(context.Background(), "jane.doe@example.com", "s", "b", "Email")
			if tc.sendErr == nil {
				require.Contains(t, res.Message, "jane.doe@example.com")
			}

			require.Len(t, pub.events, 1)
			payload, err := json.Marshal(pub.events[0])
			require.NoError(t, err)
			assert.NotContains(t, string(payload), "jane.doe")
			assert.Equal(t, "example.com", pub.events[0].RecipientDomain)
		})
	}
}

func TestTextToHTML(t *testing.T) {
	cases := map[string]string{
		"one line":         "<p>one line</p>",
		"a\nb":             "<p>a<br>b</p>",
		"a\r\nb":           "<p>a<br>b</p>",
		"<b>x</b> & \"y\"": "<p>&lt;b&gt;x&lt;/b&gt; &amp; &#34;y&#34;</p>",
	}
	for in, want := range cases {
		assert.Equal(t, want, TextToHTML(in), in)
	}
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "sent", outcomeOf(nil))
	assert.Equal(t, "invalid", outcomeOf(ErrValidation))
	assert.Equal(t, "not_configured", outcomeOf(ErrConfiguration))
	assert.Equal(t, "unsupported", outcomeOf(ErrUnsupportedChannel))
	assert.Equal(t, "delivery_failed", outcomeOf(ErrDelivery))
	assert.Equal(t, "error", outcomeOf(errors.New("x")))
}
