package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func TestSendGridTransportPostsV3Payload(t *testing.T) {
	var got sgRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := &SendGridTransport{Endpoint: srv.URL, Client: srv.Client()}
	err := tr.Send(context.Background(), "SG.key", Mail{
		To: "jane@example.com", From: "alerts@sems.example", Subject: "Hi", Text: "a\nb", HTML: "<p>a<br>b</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer SG.key", auth)
	assert.Equal(t, "jane@example.com", got.Personalizations[0].To[0].Email)
	assert.Equal(t, "alerts@sems.example", got.From.Email)
	assert.Equal(t, "Hi", got.Subject)
	require.Len(t, got.Content, 2)
	assert.Equal(t, "text/plain", got.Content[0].Type)
	assert.Equal(t, "<p>a<br>b</p>", got.Content[1].Value)
}

func TestSendGridTransportRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	tr := &SendGridTransport{Endpoint: srv.URL, Client: srv.Client()}
	err := tr.Send(context.Background(), "bad", Mail{To: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestSMTPTransportBuildsMessage(t *testing.T) {
	var dialer *gomail.Dialer
	var msg *gomail.Message
	tr := &SMTPTransport{Host: "smtp.example.com", Port: 587, dial: func(d *gomail.Dialer, m *gomail.Message) error {
		dialer, msg = d, m
		return nil
	}}

	err := tr.Send(context.Background(), "app-password", Mail{To: "a@b.c", From: "alerts@sems.example", Subject: "Hi", Text: "t", HTML: "<p>t</p>"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", dialer.Host)
	assert.Equal(t, "alerts@sems.example", dialer.Username)
	assert.Equal(t, "app-password", dialer.Password)
	assert.Equal(t, []string{"a@b.c"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Hi"}, msg.GetHeader("Subject"))
}

func TestSMTPTransportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &SMTPTransport{dial: func(*gomail.Dialer, *gomail.Message) error {
		t.Fatal("must not dial")
		return nil
	}}
	assert.ErrorIs(t, tr.Send(ctx, "p", Mail{}), context.Canceled)
}

type flakyWriter struct {
	failures int
	written  []kafka.Message
}

func (w *flakyWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func TestKafkaPublisherRetries(t *testing.T) {
	w := &flakyWriter{failures: 2}
	p := &KafkaPublisher{Writer: w, MaxElapsed: time.Second}

	err := p.Publish(context.Background(), Event{ID: "evt-1", Channel: "Email", Success: true, Outcome: "sent"})
	require.NoError(t, err)
	require.Len(t, w.written, 1)
	assert.Equal(t, "evt-1", string(w.written[0].Key))

	var decoded Event
	require.NoError(t, json.Unmarshal(w.written[0].Value, &decoded))
	assert.Equal(t, "sent", decoded.Outcome)
}

func TestKafkaPublisherGivesUp(t *testing.T) {
	w := &flakyWriter{failures: 1 << 20}
	p := &KafkaPublisher{Writer: w, MaxElapsed: 100 * time.Millisecond}
	assert.Error(t, p.Publish(context.Background(), Event{ID: "evt-2"}))
	assert.Empty(t, w.written)
}
