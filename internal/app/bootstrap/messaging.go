package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/odonto-agent/internal/config"
	"github.com/wolfman30/odonto-agent/internal/conversation"
	"github.com/wolfman30/odonto-agent/internal/notify"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// BuildOutbox returns the SQS outbox when OUTBOUND_QUEUE_URL is set and a
// logging outbox otherwise.
func BuildOutbox(cfg *appconfig.Config, sqsClient *sqs.Client, logger *logging.Logger) conversation.ReplyMessenger {
	if cfg != nil && sqsClient != nil && strings.TrimSpace(cfg.OutboundQueueURL) != "" {
		return conversation.NewSQSOutbox(sqsClient, cfg.OutboundQueueURL)
	}
	if logger != nil {
		logger.Warn("no outbound queue configured; replies will only be logged")
	}
	return conversation.NewLogOutbox(logger)
}

// BuildNotifier wires booking e-mails through the configured provider. It
// returns nil when there is nobody to notify.
func BuildNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) conversation.BookingNotifier {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	from := notify.SenderConfig{FromEmail: cfg.EmailFrom, FromName: cfg.EmailFromName, ReplyTo: cfg.ClinicNotifyEmail}
	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "ses":
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), from, logger); s != nil {
			sender = s
		} else {
			logger.Warn("ses selected without EMAIL_FROM; using stub email sender")
		}
	case "sendgrid":
		if s := notify.NewSendGridSender(cfg.SendGridAPIKey, from, logger); s != nil {
			sender = s
		} else {
			logger.Warn("sendgrid selected without SENDGRID_API_KEY or EMAIL_FROM; using stub email sender")
		}
	}
	if sender == nil {
		sender = notify.NewStubEmailSender(logger)
	}

	return notify.NewService(sender, notify.Config{
		ClinicName:  cfg.ClinicName,
		ClinicEmail: cfg.ClinicNotifyEmail,
	}, logger)
}
