package report

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"catalogsync-backend/internal/catalog"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("catalogsync.internal.report")

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && len(c.To) > 0
}

type Mailer struct {
	config SmtpConfig
}

func NewMailer(config SmtpConfig) Mailer {
	if config.Port == 0 {
		config.Port = 587
	}
	return Mailer{config: config}
}

func (m Mailer) message(summary *catalog.Summary) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("catalogsync <%s>", m.config.EmailAddress)
	mail.To = m.config.To

	status := "ok"
	if summary.Errors() > 0 {
		status = fmt.Sprintf("%d error(s)", summary.Errors())
	}
	mail.Subject = fmt.Sprintf(
		"catalogsync: %d inserted, %d updated, %s",
		summary.Inserted(), summary.Updated(), status,
	)
	mail.Text = []byte(String(summary))
	return mail
}

// Send emails the summary, servers without AUTH are retried without
// credentials.
func (m Mailer) Send(ctx context.Context, summary *catalog.Summary) error {
	_, span := tracer.Start(ctx, "Send")
	defer span.End()

	mail := m.message(summary)
	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)

	err := mail.Send(addr, smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
