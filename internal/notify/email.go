// Package notify delivers threshold alerts over SMTP. When SMTP is not
// configured the mailer logs the rendered message and reports success, so
// development environments exercise the full alert path without a relay.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"text/template"
	"time"

	"github.com/vitalsync/vitalsync/internal/alert"
)

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Configured reports whether the relay credentials are present.
func (c SMTPConfig) Configured() bool {
	return c.User != "" && c.Pass != ""
}

// Mailer implements alert.Notifier over SMTP.
type Mailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ alert.Notifier = (*Mailer)(nil)

// NewMailer creates a Mailer.
func NewMailer(cfg SMTPConfig, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{cfg: cfg, logger: logger, send: smtp.SendMail}
}

var alertTemplate = template.Must(template.New("threshold").Parse(`Hi {{.UserName}},

Your heart rate reading of {{printf "%.0f" .Value}} bpm at {{.ObservedAt.Format "15:04 MST, Jan 2"}} crossed your configured {{.Kind}} threshold of {{printf "%.0f" .Threshold}} bpm.

If this reading is unexpected, consider checking in with your care provider.

---
VitalSync Alerts
`))

// SendThresholdAlert renders and sends one alert. Synchronous: a nil return
// means the relay accepted the message.
func (m *Mailer) SendThresholdAlert(ctx context.Context, a alert.ThresholdAlert) error {
	if a.Recipient == "" {
		return fmt.Errorf("notify: no recipient")
	}
	if a.UserName == "" {
		a.UserName = "there"
	}

	var body bytes.Buffer
	if err := alertTemplate.Execute(&body, a); err != nil {
		return fmt.Errorf("notify: render alert: %w", err)
	}

	subject := fmt.Sprintf("Heart rate %s alert: %.0f bpm", a.Kind, a.Value)

	if !m.cfg.Configured() {
		m.logger.Info("SMTP not configured, skipping email",
			"to", a.Recipient, "subject", subject)
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\n\r\n%s",
		m.cfg.From, a.Recipient, subject,
		time.Now().Format(time.RFC1123Z), body.String())

	if err := ctx.Err(); err != nil {
		return err
	}
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{a.Recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}

	m.logger.Info("Threshold alert email sent", "to", a.Recipient, "kind", a.Kind)
	return nil
}
