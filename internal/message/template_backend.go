package message

import (
	"context"
	"fmt"
	"strings"
	"text/template"
)

// TemplateBackend renders the catalog wording directly.
type TemplateBackend struct {
	catalog *Catalog
	alerts  map[AlertType]alertTemplates
	billing map[Channel]*template.Template
}

type alertTemplates struct {
	email *template.Template
	sms   *template.Template
}

type alertData struct {
	Prefix        string
	Opener        string
	Organization  string
	CustomerName  string
	OutageDetails string
}

type billingData struct {
	Currency     string
	CustomerName string
	AmountDue    string
	DueDate      string
	Usage        string
	Link         string
}

func NewTemplateBackend(c *Catalog) (*TemplateBackend, error) {
	b := &TemplateBackend{
		catalog: c,
		alerts:  map[AlertType]alertTemplates{},
		billing: map[Channel]*template.Template{},
	}
	for _, t := range AlertTypes {
		words := c.alert(t)
		email, err := parse(string(t)+"/email", words.Email)
		if err != nil {
			return nil, err
		}
		sms, err := parse(string(t)+"/sms", words.SMS)
		if err != nil {
			return nil, err
		}
		b.alerts[t] = alertTemplates{email: email, sms: sms}
	}
	var err error
	if b.billing[ChannelEmail], err = parse("billing/email", c.Billing.Email); err != nil {
		return nil, err
	}
	if b.billing[ChannelSMS], err = parse("billing/sms", c.Billing.SMS); err != nil {
		return nil, err
	}
	return b, nil
}

func parse(name, text string) (*template.Template, error) {
	tpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return tpl, nil
}

func (b *TemplateBackend) Name() string { return "template" }

func (b *TemplateBackend) Alert(_ context.Context, f AlertFacts) (Message, error) {
	words := b.catalog.alert(f.AlertType)
	tpls, ok := b.alerts[f.AlertType]
	if !ok {
		return Message{}, generationFailure("no template for alert type "+string(f.AlertType), nil)
	}
	data := alertData{
		Prefix:        b.catalog.Alerts.SMSPrefix,
		Opener:        words.Opener,
		Organization:  b.catalog.Organization,
		CustomerName:  f.CustomerName,
		OutageDetails: f.OutageDetails,
	}
	if f.Channel == ChannelSMS {
		body, err := render(tpls.sms, data)
		if err != nil {
			return Message{}, err
		}
		return Message{Body: body}, nil
	}
	body, err := render(tpls.email, data)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: words.Subject, Body: body}, nil
}

func (b *TemplateBackend) Billing(_ context.Context, f BillingFacts) (Message, error) {
	data := billingData{
		Currency:     b.catalog.Billing.Currency,
		CustomerName: f.CustomerName,
		AmountDue:    f.AmountDue,
		DueDate:      f.DueDate,
		Usage:        f.Usage,
		Link:         f.StatementLink,
	}
	body, err := render(b.billing[f.Channel], data)
	if err != nil {
		return Message{}, err
	}
	if f.Channel == ChannelSMS {
		return Message{Body: body}, nil
	}
	return Message{Subject: b.catalog.Billing.Subject, Body: body}, nil
}

func render(tpl *template.Template, data any) (string, error) {
	if tpl == nil {
		return "", generationFailure("no template for channel", nil)
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", generationFailure("render "+tpl.Name(), err)
	}
	return strings.TrimSpace(sb.String()), nil
}
