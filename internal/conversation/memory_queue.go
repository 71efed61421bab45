package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const defaultMemoryQueueBuffer = 128

// MemoryQueue is a queueClient backed by a buffered channel. Ordering hints
// are ignored; a single channel already delivers in send order.
type MemoryQueue struct {
	ch chan queueMessage
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = defaultMemoryQueueBuffer
	}
	return &MemoryQueue{ch: make(chan queueMessage, buffer)}
}

// Send enqueues a body or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, msg outgoingMessage) error {
	qm := queueMessage{
		ID:            uuid.NewString(),
		Body:          msg.Body,
		ReceiptHandle: uuid.NewString(),
	}
	select {
	case q.ch <- qm:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until at least one message is available, ctx is done, or
// waitSeconds elapses. A non-positive wait blocks on ctx alone.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var expired <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, nil
	case first := <-q.ch:
		batch := []queueMessage{first}
		for len(batch) < maxMessages {
			select {
			case next := <-q.ch:
				batch = append(batch, next)
			default:
				return batch, nil
			}
		}
		return batch, nil
	}
}

// Delete is a no-op; receiving already removed the message.
func (q *MemoryQueue) Delete(context.Context, string) error {
	return nil
}

// Len reports how many messages are waiting.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
