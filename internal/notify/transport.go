package notify

import (
	"context"
	"html"
	"strings"
)

// Mail is one outgoing email with a plain-text and an HTML part.
type Mail struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers mail in a single attempt. The credential is resolved by
// the caller for every send.
type Transport interface {
	Name() string
	Send(ctx context.Context, credential string, m Mail) error
}

// MailConfig is the sender configuration handed to the Dispatcher.
type MailConfig struct {
	APIKey      string
	FromAddress string
}

func (c MailConfig) complete() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.FromAddress) != ""
}

// TextToHTML escapes text and turns line breaks into <br>.
func TextToHTML(text string) string {
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}
