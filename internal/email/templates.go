package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
}

type operatorAlertEmailData struct {
	baseEmailData
	Alert
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func alertSubject(alert Alert) string {
	switch alert.Kind {
	case AlertSyncFailed:
		return fmt.Sprintf(subjectSyncFailedFmt, alert.LeadID)
	case AlertRoutingFailed:
		return fmt.Sprintf(subjectRoutingFailedFmt, alert.LeadID)
	default:
		return fmt.Sprintf(subjectAlertFmt, alert.LeadID)
	}
}

const (
	AlertSyncFailed    = "sync_failed"
	AlertRoutingFailed = "routing_failed"
)
