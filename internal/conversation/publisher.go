package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// Publisher enqueues inbound messages for the conversation worker.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueMessage publishes one inbound message and returns the job id.
func (p *Publisher) EnqueueMessage(ctx context.Context, msg InboundMessage) (string, error) {
	payload, body, err := encodePayload(queuePayload{ID: msg.MessageID, Kind: jobTypeMessage, Message: msg})
	if err != nil {
		return "", err
	}

	if err := p.queue.Send(ctx, outgoingMessage{Body: body, GroupID: msg.ConversationID, DedupID: payload.ID}); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "conversation_id", msg.ConversationID)
	return payload.ID, nil
}
