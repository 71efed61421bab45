package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/odonto-agent/internal/conversation"
	"github.com/wolfman30/odonto-agent/internal/timeutil"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// Config addresses booking notifications.
type Config struct {
	ClinicName  string
	ClinicEmail string
}

// Service implements conversation.BookingNotifier over an EmailSender.
type Service struct {
	email  EmailSender
	cfg    Config
	logger *logging.Logger
}

var _ conversation.BookingNotifier = (*Service)(nil)

func NewService(email EmailSender, cfg Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "Clínica"
	}
	return &Service{email: email, cfg: cfg, logger: logger}
}

type noticeKind struct {
	kind     NoticeKind
	subject  string
	headline string
}

var (
	confirmedNotice = noticeKind{kind: KindConfirmed, subject: "Consulta confirmada", headline: "Agendamento confirmado"}
	cancelledNotice = noticeKind{kind: KindCancelled, subject: "Consulta cancelada", headline: "Agendamento cancelado"}
)

func (s *Service) AppointmentConfirmed(ctx context.Context, notice conversation.BookingNotice) error {
	return s.notify(ctx, confirmedNotice, notice)
}

func (s *Service) AppointmentCancelled(ctx context.Context, notice conversation.BookingNotice) error {
	return s.notify(ctx, cancelledNotice, notice)
}

func (s *Service) notify(ctx context.Context, kind noticeKind, notice conversation.BookingNotice) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping notification")
		return nil
	}

	recipients := make([]string, 0, 2)
	if s.cfg.ClinicEmail != "" {
		recipients = append(recipients, s.cfg.ClinicEmail)
	}
	if notice.ClientEmail != "" && !strings.EqualFold(notice.ClientEmail, s.cfg.ClinicEmail) {
		recipients = append(recipients, notice.ClientEmail)
	}
	if len(recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("%s - %s", kind.subject, notice.ClientName)
	lines := noticeLines(notice)
	body := fmt.Sprintf("%s\n\n%s\n\n%s", kind.headline, strings.Join(lines, "\n"), s.cfg.ClinicName)

	var rows strings.Builder
	for _, line := range lines {
		label, value, _ := strings.Cut(line, ": ")
		fmt.Fprintf(&rows, "  <tr><td><strong>%s:</strong></td><td>%s</td></tr>\n", html.EscapeString(label), html.EscapeString(value))
	}
	htmlBody := fmt.Sprintf("<div style=\"font-family: sans-serif; max-width: 600px;\">\n<h2>%s</h2>\n<table>\n%s</table>\n<p style=\"color: #6b7280; font-size: 12px;\">%s</p>\n</div>",
		html.EscapeString(kind.headline), rows.String(), html.EscapeString(s.cfg.ClinicName))

	var errs []error
	for _, to := range recipients {
		msg := EmailMessage{To: to, Subject: subject, Body: body, HTML: htmlBody, Kind: kind.kind, EventID: notice.EventID}
		if to == notice.ClientEmail {
			msg.ToName = notice.ClientName
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: booking e-mail failed", "error", err, "kind", kind.kind, "event_id", notice.EventID, "recipient", maskAddress(to))
			errs = append(errs, err)
			continue
		}
		s.logger.Info("notify: booking e-mail sent", "kind", kind.kind, "event_id", notice.EventID, "recipient", maskAddress(to))
	}
	return errors.Join(errs...)
}

func noticeLines(n conversation.BookingNotice) []string {
	lines := []string{
		"Cliente: " + n.ClientName,
		"Telefone: " + n.Phone,
		"Procedimento: " + n.ProcedureName,
		fmt.Sprintf("Data: %s, %s", timeutil.WeekdayLabel(n.Date), timeutil.FormatDateBR(n.Date)),
		fmt.Sprintf("Horário: %s às %s", timeutil.FormatTimeBR(n.Start), timeutil.FormatTimeBR(n.End)),
	}
	if n.EventID != "" {
		lines = append(lines, "Evento: "+n.EventID)
	}
	return lines
}
