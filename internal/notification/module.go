// Package notification alerts an operator when a lead stops short of the CRM.
// It subscribes to lead failure events so the pipeline never needs to know
// about mail delivery.
package notification

import (
	"context"

	"marine_leads_backend/internal/email"
	"marine_leads_backend/internal/events"
	"marine_leads_backend/platform/config"
	"marine_leads_backend/platform/logger"
)

// Subscriber is the subscribe side of the event bus.
type Subscriber interface {
	Subscribe(eventName string, handler events.Handler)
}

// Module handles lead failure events.
type Module struct {
	sender   email.Sender
	operator string
	enabled  bool
	log      *logger.Logger
}

// New creates the notification module.
func New(sender email.Sender, cfg config.EmailConfig, log *logger.Logger) *Module {
	return &Module{
		sender:   sender,
		operator: cfg.GetOperatorEmail(),
		enabled:  cfg.IsEmailEnabled(),
		log:      log,
	}
}

// RegisterHandlers subscribes the module to the events it alerts on.
func (m *Module) RegisterHandlers(bus Subscriber) {
	bus.Subscribe(events.LeadSyncFailed{}.EventName(), m)
	bus.Subscribe(events.LeadRoutingFailed{}.EventName(), m)
}

// Handle implements events.Handler.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadSyncFailed:
		return m.alert(ctx, email.Alert{
			Kind:     email.AlertSyncFailed,
			LeadID:   e.LeadID.String(),
			TenantID: e.TenantID.String(),
			Reason:   "sync",
			Detail:   e.Detail,
			VendorID: e.VendorID.String(),
			Attempts: e.Attempts,
		})
	case events.LeadRoutingFailed:
		return m.alert(ctx, email.Alert{
			Kind:     email.AlertRoutingFailed,
			LeadID:   e.LeadID.String(),
			TenantID: e.TenantID.String(),
			Reason:   e.Reason,
			Category: e.Category,
			ZipCode:  e.ZipCode,
		})
	default:
		return nil
	}
}

func (m *Module) alert(ctx context.Context, alert email.Alert) error {
	m.log.Warn("lead needs operator attention",
		"kind", alert.Kind, "leadId", alert.LeadID, "tenantId", alert.TenantID, "reason", alert.Reason)
	if !m.enabled {
		return nil
	}

	if err := m.sender.SendOperatorAlert(ctx, m.operator, alert); err != nil {
		m.log.Error("failed to send operator alert", "leadId", alert.LeadID, "error", err)
		return err
	}
	m.log.Info("operator alert sent", "leadId", alert.LeadID, "kind", alert.Kind)
	return nil
}
