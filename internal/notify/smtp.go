package notify

import (
	"context"

	"gopkg.in/gomail.v2"
)

// SMTPTransport sends through an SMTP relay such as Gmail. The credential is
// the account password; Username is the login.
type SMTPTransport struct {
	Host     string
	Port     int
	Username string

	dial func(d *gomail.Dialer, m *gomail.Message) error
}

func (t *SMTPTransport) Name() string { return "SMTP" }

func (t *SMTPTransport) Send(ctx context.Context, password string, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Text)
	msg.AddAlternative("text/html", m.HTML)

	username := t.Username
	if username == "" {
		username = m.From
	}
	d := gomail.NewDialer(t.Host, t.Port, username, password)
	if t.dial != nil {
		return t.dial(d, msg)
	}
	return d.DialAndSend(msg)
}
