// Package notify e-mails the clinic, and the client when an address is
// known, about booked and cancelled appointments.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/odonto-agent/pkg/logging"
)

const defaultFromName = "Agendamento da Clínica"

// NoticeKind tags a message with the booking event it reports.
type NoticeKind string

const (
	KindConfirmed NoticeKind = "appointment_confirmed"
	KindCancelled NoticeKind = "appointment_cancelled"
)

// EmailSender delivers one booking e-mail.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one booking e-mail for one recipient. Kind and EventID are
// forwarded to the provider as tags so bounces can be traced to the event.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
	Kind    NoticeKind
	EventID string
}

// SenderConfig is the clinic mailbox notifications are sent from. Replies go
// to ReplyTo when set, usually the front desk.
type SenderConfig struct {
	FromEmail string
	FromName  string
	ReplyTo   string
}

func (c SenderConfig) normalized() (SenderConfig, bool) {
	c.FromEmail = strings.TrimSpace(c.FromEmail)
	if c.FromEmail == "" {
		return c, false
	}
	if c.FromName == "" {
		c.FromName = defaultFromName
	}
	return c, true
}

// maskAddress keeps the first letter and the domain of an address so logs
// can be correlated without holding patient e-mails.
func maskAddress(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" {
		return "***"
	}
	return string([]rune(local)[0]) + "***@" + domain
}

// SendGridSender sends booking e-mails through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	cfg    SenderConfig
	logger *logging.Logger
}

// NewSendGridSender returns nil without an API key or a from address.
func NewSendGridSender(apiKey string, cfg SenderConfig, logger *logging.Logger) *SendGridSender {
	cfg, ok := cfg.normalized()
	if apiKey == "" || !ok {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey), cfg: cfg, logger: logger}
}

func (s *SendGridSender) message(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.cfg.FromName, s.cfg.FromEmail))
	m.Subject = msg.Subject
	if s.cfg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail(s.cfg.FromName, s.cfg.ReplyTo))
	}

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	if msg.EventID != "" {
		p.SetCustomArg("event_id", msg.EventID)
	}
	m.AddPersonalizations(p)

	m.AddContent(mail.NewContent("text/plain", msg.Body))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.Kind != "" {
		m.AddCategories(string(msg.Kind))
	}
	return m
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	response, err := s.client.SendWithContext(ctx, s.message(msg))
	if err != nil {
		return fmt.Errorf("notify: sendgrid %s: %w", msg.Kind, err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected booking e-mail",
			"status", response.StatusCode, "kind", msg.Kind, "event_id", msg.EventID, "recipient", maskAddress(msg.To))
		return fmt.Errorf("notify: sendgrid %s: status %d", msg.Kind, response.StatusCode)
	}
	s.logger.Debug("booking e-mail accepted by sendgrid",
		"kind", msg.Kind, "event_id", msg.EventID, "recipient", maskAddress(msg.To))
	return nil
}

// StubEmailSender logs booking e-mails instead of sending them.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("booking e-mail not sent; no provider configured",
		"kind", msg.Kind, "event_id", msg.EventID, "recipient", maskAddress(msg.To))
	return nil
}
