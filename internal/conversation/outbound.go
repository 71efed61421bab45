package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// ReplyMessenger delivers engine replies back to the client through the
// messaging transport.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply Reply) error
}

// SQSOutbox hands replies to the transport's outbound queue.
type SQSOutbox struct {
	client   sqsAPI
	queueURL string
}

func NewSQSOutbox(client sqsAPI, queueURL string) *SQSOutbox {
	if client == nil {
		panic("conversation: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("conversation: outbound queueURL cannot be empty")
	}
	return &SQSOutbox{client: client, queueURL: queueURL}
}

func (o *SQSOutbox) SendReply(ctx context.Context, reply Reply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("conversation: failed to encode reply: %w", err)
	}
	_, err = o.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(o.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to send reply: %w", err)
	}
	return nil
}

// LogOutbox writes replies to the log instead of delivering them.
type LogOutbox struct {
	logger *logging.Logger
}

func NewLogOutbox(logger *logging.Logger) *LogOutbox {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogOutbox{logger: logger}
}

func (o *LogOutbox) SendReply(_ context.Context, reply Reply) error {
	o.logger.Info("outbound reply",
		"conversation_id", reply.ConversationID,
		"to", reply.To,
		"stage", string(reply.Stage),
		"text", reply.Text,
	)
	return nil
}
