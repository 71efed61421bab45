package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// MessageHandler runs one conversation turn.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg InboundMessage) (Reply, error)
}

// Worker consumes inbound messages from the queue, runs the turn and hands
// the reply to the messenger.
type Worker struct {
	handler   MessageHandler
	queue     queueClient
	messenger ReplyMessenger
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	maxAttempts      int
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultMaxAttempts   = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	maxReceiveBackoff    = 5 * time.Second
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithMaxAttempts bounds how often a message is requeued while its
// conversation is locked by another turn.
func WithMaxAttempts(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.maxAttempts = n
		}
	}
}

// NewWorker constructs a queue consumer.
func NewWorker(handler MessageHandler, queue queueClient, messenger ReplyMessenger, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("conversation: message handler cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		maxAttempts:      defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		handler:   handler,
		queue:     queue,
		messenger: messenger,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches the consumer goroutines. They stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until every consumer goroutine has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxReceiveBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	// A job that could not be requeued stays on the queue and is redelivered
	// once its visibility timeout lapses.
	retained := false
	defer func() {
		if !retained {
			w.deleteMessage(ctx, msg.ReceiptHandle)
		}
	}()

	payload, err := decodePayload(msg.Body)
	if err != nil {
		w.logger.Error("dropping undecodable conversation job", "message_id", msg.ID, "error", err)
		return
	}
	if payload.Kind != jobTypeMessage {
		w.logger.Warn("dropping conversation job of unknown kind", "job_id", payload.ID, "kind", payload.Kind)
		return
	}

	reply, err := w.handler.HandleMessage(ctx, payload.Message)
	if errors.Is(err, ErrLockNotAcquired) {
		retained = !w.requeue(ctx, payload)
		return
	}
	if err != nil {
		w.logger.Error("conversation turn failed", "job_id", payload.ID,
			"conversation_id", payload.Message.ConversationID, "error", err)
	}
	if reply.Text == "" || w.messenger == nil {
		return
	}
	if err := w.messenger.SendReply(ctx, reply); err != nil {
		w.logger.Error("failed to deliver reply", "job_id", payload.ID,
			"conversation_id", reply.ConversationID, "error", err)
	}
}

// requeue sends a job back when its conversation is busy so it runs after
// the turn holding the lock. It reports false only when the send failed and
// the original message must be kept.
func (w *Worker) requeue(ctx context.Context, payload queuePayload) bool {
	payload.Attempt++
	if payload.Attempt >= w.cfg.maxAttempts {
		w.logger.Error("dropping conversation job after repeated lock contention",
			"job_id", payload.ID, "conversation_id", payload.Message.ConversationID, "attempts", payload.Attempt)
		return true
	}
	_, body, err := encodePayload(payload)
	if err != nil {
		w.logger.Error("dropping conversation job that cannot be re-encoded", "job_id", payload.ID, "error", err)
		return true
	}
	out := outgoingMessage{
		Body:    body,
		GroupID: payload.Message.ConversationID,
		DedupID: fmt.Sprintf("%s-%d", payload.ID, payload.Attempt),
	}
	if err := w.queue.Send(ctx, out); err != nil {
		w.logger.Error("failed to requeue conversation job; leaving it for redelivery", "job_id", payload.ID, "error", err)
		return false
	}
	w.logger.Debug("conversation job requeued", "job_id", payload.ID, "attempt", payload.Attempt)
	return true
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
