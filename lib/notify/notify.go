package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kubecompat/lib/history"
)

var tracer = otel.Tracer("kubecompat/lib/notify")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Config struct {
	Smtp SmtpConfig `json:"smtp"`
	To   []string   `json:"to"`
	// OnlyFailures suppresses reports where every application updated.
	OnlyFailures bool `json:"only_failures"`
}

func (c Config) Enabled() bool {
	return c.Smtp.Server != "" && len(c.To) > 0
}

// Report is the outcome of one scrape invocation.
type Report struct {
	Batch string
	Runs  []history.Run
}

func (r Report) Failed() int {
	failed := 0
	for _, run := range r.Runs {
		if run.Error != "" {
			failed++
		}
	}
	return failed
}

func (r Report) Subject() string {
	failed := r.Failed()
	return fmt.Sprintf(
		"kubecompat %s: %d updated, %d failed",
		r.Batch, len(r.Runs)-failed, failed,
	)
}

func (r Report) Body() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Application", "Candidates", "Versions", "Duration", "Error"})
	for _, run := range r.Runs {
		errMsg := run.Error
		if errMsg == "" {
			errMsg = "-"
		}
		t.AppendRow(table.Row{
			run.App,
			run.Candidates,
			run.Versions,
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String(),
			errMsg,
		})
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Ledger update %s finished.\n\n", r.Batch)
	body.WriteString(t.Render())
	body.WriteString("\n")
	return body.String()
}

type Mailer struct {
	config Config
}

func NewMailer(config Config) Mailer {
	return Mailer{config: config}
}

// ShouldSend reports whether report warrants an email under the config.
func (m Mailer) ShouldSend(report Report) bool {
	if !m.config.Enabled() || len(report.Runs) == 0 {
		return false
	}
	return !m.config.OnlyFailures || report.Failed() > 0
}

func (m Mailer) Send(ctx context.Context, report Report) error {
	ctx, span := tracer.Start(ctx, "Send")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch", report.Batch),
		attribute.Int("failed", report.Failed()),
	)

	smtpConfig := m.config.Smtp
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("kubecompat <%s>", smtpConfig.EmailAddress)
	mail.To = m.config.To
	mail.Subject = report.Subject()
	mail.Text = []byte(report.Body())

	addr := fmt.Sprintf("%s:%d", smtpConfig.Server, smtpConfig.Port)
	var auth smtp.Auth
	if smtpConfig.Password != "" {
		auth = smtp.PlainAuth("", smtpConfig.EmailAddress, smtpConfig.Password, smtpConfig.Server)
	}
	err := mail.Send(addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
