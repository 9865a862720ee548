package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
)

// SMTPMailer sends emails through an SMTP server.
type SMTPMailer struct {
	cfg       config.SMTPConfig
	templates *Templates
}

// NewSMTPMailer creates a mailer. It does not connect until the first send.
func NewSMTPMailer(cfg config.SMTPConfig, templates *Templates) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, templates: templates}
}

func (m *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{mail.WithPort(m.cfg.Port)}
	if m.cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	c, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return c, nil
}

// TestConnection dials the server and authenticates.
func (m *SMTPMailer) TestConnection(ctx context.Context) error {
	c, err := m.client()
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s:%d: %w", m.cfg.Host, m.cfg.Port, err)
	}
	return c.Close()
}

func (m *SMTPMailer) send(ctx context.Context, recipient, tmpl string, data any) error {
	subject, body, err := m.templates.Render(tmpl, data)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.Sender); err != nil {
		return fmt.Errorf("invalid sender %q: %w", m.cfg.Sender, err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", recipient, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	c, err := m.client()
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	slog.Debug("email sent", "template", tmpl, "recipient", recipient)
	return nil
}

func (m *SMTPMailer) SendAttendanceNotification(ctx context.Context, n AttendanceNotice) error {
	return m.send(ctx, n.Recipient, tmplAttendance, n)
}

func (m *SMTPMailer) SendDailySummary(ctx context.Context, s Summary) error {
	return m.send(ctx, s.Recipient, tmplSummary, s)
}

func (m *SMTPMailer) SendLateArrivalAlert(ctx context.Context, a LateAlert) error {
	return m.send(ctx, a.Recipient, tmplLate, a)
}

func (m *SMTPMailer) SendAbsenceAlert(ctx context.Context, a AbsenceAlert) error {
	return m.send(ctx, a.Recipient, tmplAbsence, a)
}
