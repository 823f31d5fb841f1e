// Package notify sends the failure notice of a sync run by e-mail.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"

	"github.com/JonMunkholm/publsync/internal/config"
	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/pipeline"
	"github.com/JonMunkholm/publsync/internal/schema"
)

// Mailer sends run notices over SMTP.
type Mailer struct {
	cfg  config.NotifyConfig
	log  *slog.Logger
	send func(e *email.Email, addr string, auth smtp.Auth) error
}

// New creates a Mailer. A nil logger uses slog.Default.
func New(cfg config.NotifyConfig, log *slog.Logger) *Mailer {
	if log == nil {
		log = slog.Default()
	}
	return &Mailer{
		cfg:  cfg,
		log:  log.With("component", "notify"),
		send: func(e *email.Email, addr string, auth smtp.Auth) error { return e.Send(addr, auth) },
	}
}

// NotifyFailure sends a notice when res did not succeed. It is a no-op for
// successful runs or when notification is not configured.
func (m *Mailer) NotifyFailure(ctx context.Context, res pipeline.Result) error {
	if !m.cfg.Enabled() || res.Status() != schema.StatusFailed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := Message(m.from(), m.cfg.To, res)
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}
	err := m.send(msg, addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = m.send(msg, addr, nil)
	}
	if err != nil {
		m.log.Error("failure notice not sent", "run_id", res.RunID, "error", err)
		return fmt.Errorf("send notice: %w", err)
	}
	m.log.Info("failure notice sent", "run_id", res.RunID, "to", len(m.cfg.To))
	return nil
}

func (m *Mailer) from() string {
	if m.cfg.From != "" {
		return m.cfg.From
	}
	return m.cfg.SMTPUser
}

// Message builds the notice for a failed run.
func Message(from string, to []string, res pipeline.Result) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("publsync <%s>", from)
	mail.To = to
	mail.Subject = fmt.Sprintf("[publsync] sync %s (%s)", strings.ToLower(res.Status()), res.Started.Format("2006-01-02 15:04"))

	var body bytes.Buffer
	fmt.Fprintf(&body, "Run %s finished with status %s after %s.\n\n", res.RunID, res.Status(), res.Duration.Round(100*time.Millisecond))
	if res.Fatal != nil {
		fmt.Fprintf(&body, "The run stopped early: %s\n  %v\n\n", core.FormatUserError(res.Fatal), res.Fatal)
	}
	if failed := res.Failed(); len(failed) > 0 {
		body.WriteString("Failed stages:\n")
		for _, s := range failed {
			fmt.Fprintf(&body, "- %s: %s\n  %v\n", s.Name, core.FormatUserError(s.Err), s.Err)
		}
		body.WriteString("\n")
	}
	fmt.Fprintf(&body, "New members: %d\nNew orders: %d\nNew refunds: %d\nUpdated refunds: %d\n",
		res.Members.Inserted, res.Orders.Inserted, res.Refunds.Insert.Inserted, res.Refunds.Status.Updated)
	mail.Text = body.Bytes()
	return mail
}
