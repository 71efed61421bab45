package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/odonto-agent/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends booking e-mails through SES v2, tagging each message with
// the notice kind and calendar event.
type SESSender struct {
	client sesAPI
	cfg    SenderConfig
	logger *logging.Logger
}

// NewSESSender returns nil without a client or a from address.
func NewSESSender(client sesAPI, cfg SenderConfig, logger *logging.Logger) *SESSender {
	cfg, ok := cfg.normalized()
	if client == nil || !ok {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{client: client, cfg: cfg, logger: logger}
}

func (s *SESSender) input(msg EmailMessage) *sesv2.SendEmailInput {
	body := &types.Body{Text: utf8Content(msg.Body)}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	}
	if s.cfg.ReplyTo != "" {
		in.ReplyToAddresses = []string{s.cfg.ReplyTo}
	}
	if msg.Kind != "" {
		in.EmailTags = append(in.EmailTags, types.MessageTag{Name: aws.String("kind"), Value: aws.String(tagValue(string(msg.Kind)))})
	}
	if msg.EventID != "" {
		in.EmailTags = append(in.EmailTags, types.MessageTag{Name: aws.String("event_id"), Value: aws.String(tagValue(msg.EventID))})
	}
	return in
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: SES client not configured")
	}
	out, err := s.client.SendEmail(ctx, s.input(msg))
	if err != nil {
		return fmt.Errorf("notify: SES %s: %w", msg.Kind, err)
	}
	s.logger.Debug("booking e-mail accepted by SES",
		"kind", msg.Kind, "event_id", msg.EventID, "recipient", maskAddress(msg.To), "message_id", aws.ToString(out.MessageId))
	return nil
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

// tagValue replaces characters SES does not accept in tag values.
func tagValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, v)
}

var (
	_ EmailSender = (*SESSender)(nil)
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
