package message

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog holds the fixed wording of every notification kind. Templates use
// text/template syntax.
type Catalog struct {
	Organization string       `yaml:"organization"`
	Alerts       AlertCatalog `yaml:"alerts"`
	Billing      BillingWords `yaml:"billing"`
}

type AlertCatalog struct {
	SMSPrefix string                `yaml:"smsPrefix"`
	Types     map[string]AlertWords `yaml:"types"`
}

type AlertWords struct {
	Subject string `yaml:"subject"`
	Opener  string `yaml:"opener"`
	Email   string `yaml:"email"`
	SMS     string `yaml:"sms"`
}

type BillingWords struct {
	Subject  string `yaml:"subject"`
	Currency string `yaml:"currency"`
	Email    string `yaml:"email"`
	SMS      string `yaml:"sms"`
}

// LoadCatalog reads the catalog at path, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read message catalog: %w", err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse message catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if c.Alerts.SMSPrefix == "" {
		return fmt.Errorf("message catalog: alerts.smsPrefix is required")
	}
	for _, t := range AlertTypes {
		w, ok := c.Alerts.Types[string(t)]
		if !ok {
			return fmt.Errorf("message catalog: no wording for alert type %s", t)
		}
		if w.Opener == "" || w.Email == "" || w.SMS == "" {
			return fmt.Errorf("message catalog: alert type %s needs opener, email and sms", t)
		}
		upper := strings.ToUpper(w.Subject)
		if !strings.HasPrefix(upper, "URGENT") && !strings.HasPrefix(upper, "IMPORTANT") {
			return fmt.Errorf("message catalog: subject for %s must start with URGENT or IMPORTANT", t)
		}
	}
	if c.Billing.Subject == "" || c.Billing.Email == "" || c.Billing.SMS == "" {
		return fmt.Errorf("message catalog: billing needs subject, email and sms")
	}
	return nil
}

func (c *Catalog) alert(t AlertType) AlertWords {
	return c.Alerts.Types[string(t)]
}
