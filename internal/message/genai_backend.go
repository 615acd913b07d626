package message

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/genai"
)

const draftSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["subject", "body"],
  "properties": {
    "subject": {"type": "string"},
    "body": {"type": "string", "minLength": 1}
  }
}`

var compiledDraftSchema = jsonschema.MustCompileString("https://sems.local/schemas/draft.json", draftSchema)

// contentGenerator is satisfied by (*genai.Client).Models.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIBackend drafts messages with a Gemini model in JSON mode.
type GenAIBackend struct {
	models  contentGenerator
	model   string
	catalog *Catalog
	alert   *template.Template
	billing *template.Template
}

func NewGenAIBackend(ctx context.Context, apiKey, model string, c *Catalog) (*GenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGenAIBackend(client.Models, model, c), nil
}

func newGenAIBackend(models contentGenerator, model string, c *Catalog) *GenAIBackend {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GenAIBackend{
		models:  models,
		model:   model,
		catalog: c,
		alert:   template.Must(template.New("alert").Parse(alertPrompt)),
		billing: template.Must(template.New("billing").Parse(billingPrompt)),
	}
}

func (b *GenAIBackend) Name() string { return "genai" }

func (b *GenAIBackend) Alert(ctx context.Context, f AlertFacts) (Message, error) {
	words := b.catalog.alert(f.AlertType)
	// the prompt never carries the meter id
	prompt, err := b.prompt(b.alert, map[string]any{
		"Organization":  b.catalog.Organization,
		"CustomerName":  f.CustomerName,
		"Channel":       f.Channel,
		"AlertType":     f.AlertType,
		"OutageDetails": f.OutageDetails,
		"Subject":       words.Subject,
		"Opener":        words.Opener,
		"Security":      f.AlertType.Security(),
		"SMSPrefix":     b.catalog.Alerts.SMSPrefix,
	})
	if err != nil {
		return Message{}, err
	}
	return b.draft(ctx, prompt)
}

func (b *GenAIBackend) Billing(ctx context.Context, f BillingFacts) (Message, error) {
	prompt, err := b.prompt(b.billing, map[string]any{
		"Organization": b.catalog.Organization,
		"CustomerName": f.CustomerName,
		"Channel":      f.Channel,
		"Currency":     b.catalog.Billing.Currency,
		"AmountDue":    f.AmountDue,
		"DueDate":      f.DueDate,
		"Usage":        f.Usage,
		"Subject":      b.catalog.Billing.Subject,
	})
	if err != nil {
		return Message{}, err
	}
	return b.draft(ctx, prompt)
}

func (b *GenAIBackend) prompt(tpl *template.Template, data map[string]any) (string, error) {
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", generationFailure("build prompt", err)
	}
	return sb.String(), nil
}

func (b *GenAIBackend) draft(ctx context.Context, prompt string) (Message, error) {
	resp, err := b.models.GenerateContent(ctx, b.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.2),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"subject": {Type: genai.TypeString},
				"body":    {Type: genai.TypeString},
			},
			Required: []string{"subject", "body"},
		},
	})
	if err != nil {
		return Message{}, generationFailure("gemini request", err)
	}
	if resp == nil {
		return Message{}, generationFailure("gemini returned no response", nil)
	}
	return decodeDraft(resp.Text())
}

func decodeDraft(text string) (Message, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if strings.TrimSpace(text) == "" {
		return Message{}, generationFailure("gemini returned an empty draft", nil)
	}

	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Message{}, generationFailure("draft is not JSON", err)
	}
	if err := compiledDraftSchema.Validate(raw); err != nil {
		return Message{}, generationFailure("draft does not match the output shape", err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return Message{}, generationFailure("decode draft", err)
	}
	return msg, nil
}

const alertPrompt = `You are an assistant for {{.Organization}}, a smart electricity provider.
Write a short security or outage alert for a customer. The tone is serious, direct and clear.
Do not use salutations such as "Dear" or closings such as "Sincerely".
Do not include any meter number or other device identifier.

Customer name: {{.CustomerName}}
Notification method: {{.Channel}}
Alert type: {{.AlertType}}
{{- if .OutageDetails}}
Outage details: {{.OutageDetails}}
{{- end}}

Instructions:
{{- if eq (print .Channel) "Email"}}
- subject: exactly "{{.Subject}}".
- body: begin with the sentence "{{.Opener}}"
{{- if .Security}} Then tell the customer to contact {{.Organization}} support.{{end}}
{{- if .OutageDetails}} Then include the outage details exactly as given: {{.OutageDetails}}{{end}}
{{- if eq (print .AlertType) "Outage-Unscheduled-Maintenance"}} Then apologize for the inconvenience.{{end}}
{{- else}}
- subject: an empty string.
- body: one very short text message starting with "{{.SMSPrefix}}" that states the alert.
{{- if .OutageDetails}} Include the outage details exactly as given: {{.OutageDetails}}{{end}}
{{- end}}
Respond with a JSON object with the fields "subject" and "body".
`

const billingPrompt = `You are an assistant for {{.Organization}}, a smart electricity provider.
Write a billing notification. The tone is direct and transactional.

Customer name: {{.CustomerName}}
Notification method: {{.Channel}}
Amount due: {{.Currency}}{{.AmountDue}}
Due date: {{.DueDate}}
Usage: {{.Usage}}

Instructions:
{{- if eq (print .Channel) "Email"}}
- subject: exactly "{{.Subject}}".
- body: exactly these three lines and nothing else, no greeting and no signature:
Amount Due: {{.Currency}}{{.AmountDue}}
Due Date: {{.DueDate}}
Usage: {{.Usage}}
{{- else}}
- subject: an empty string.
- body: one short line that starts with a greeting and states only the amount due and the due date,
  for example: Hello and good day! Your bill of {{.Currency}}{{.AmountDue}} is due on {{.DueDate}}.
{{- end}}
Respond with a JSON object with the fields "subject" and "body".
`
