package email

import (
	"context"

	"marine_leads_backend/platform/config"
)

// Alert describes a lead that needs an operator's attention.
type Alert struct {
	Kind     string
	LeadID   string
	TenantID string
	Reason   string
	Detail   string
	VendorID string
	Category string
	ZipCode  string
	Attempts int
}

type Sender interface {
	SendOperatorAlert(ctx context.Context, toEmail string, alert Alert) error
}

// NewSender returns an SMTP sender when email is configured and a no-op
// sender otherwise.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.IsEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

type NoopSender struct{}

func (NoopSender) SendOperatorAlert(context.Context, string, Alert) error {
	return nil
}
