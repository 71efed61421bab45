package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/odonto-agent/internal/dedup"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// Dispatcher takes an accepted inbound message off the HTTP path, either by
// enqueueing it or by running the turn inline.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg InboundMessage) error
}

// Dispatch enqueues msg for the worker.
func (p *Publisher) Dispatch(ctx context.Context, msg InboundMessage) error {
	_, err := p.EnqueueMessage(ctx, msg)
	return err
}

// InlineDispatcher runs the turn in the request and delivers the reply.
type InlineDispatcher struct {
	handler   MessageHandler
	messenger ReplyMessenger
	logger    *logging.Logger
}

func NewInlineDispatcher(handler MessageHandler, messenger ReplyMessenger, logger *logging.Logger) *InlineDispatcher {
	if handler == nil {
		panic("conversation: message handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &InlineDispatcher{handler: handler, messenger: messenger, logger: logger}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, msg InboundMessage) error {
	reply, err := d.handler.HandleMessage(ctx, msg)
	if errors.Is(err, ErrLockNotAcquired) {
		return err
	}
	if err != nil {
		d.logger.Error("conversation turn failed", "conversation_id", msg.ConversationID, "error", err)
	}
	if reply.Text == "" || d.messenger == nil {
		return nil
	}
	if err := d.messenger.SendReply(ctx, reply); err != nil {
		d.logger.Error("failed to deliver reply", "conversation_id", msg.ConversationID, "error", err)
	}
	return nil
}

// InboundRecorder counts webhook deliveries by status.
type InboundRecorder interface {
	ObserveInbound(status string)
}

// Inbound statuses.
const (
	inboundAccepted  = "accepted"
	inboundDuplicate = "duplicate"
	inboundInvalid   = "invalid"
	inboundBusy      = "busy"
	inboundFailed    = "failed"
)

// Handler serves the messaging transport's webhook.
type Handler struct {
	dispatcher Dispatcher
	seen       *dedup.Window
	recorder   InboundRecorder
	logger     *logging.Logger
}

// NewHandler creates a webhook handler. A nil window disables dedup.
func NewHandler(dispatcher Dispatcher, seen *dedup.Window, recorder InboundRecorder, logger *logging.Logger) *Handler {
	if dispatcher == nil {
		panic("conversation: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		dispatcher: dispatcher,
		seen:       seen,
		recorder:   recorder,
		logger:     logger,
	}
}

type inboundRequest struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Phone          string `json:"phone"`
	Text           string `json:"text"`
}

type inboundResponse struct {
	Status string `json:"status"`
}

// Receive handles POST /webhooks/messages.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode inbound message", "error", err)
		h.respond(w, http.StatusBadRequest, inboundInvalid)
		return
	}
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.ConversationID == "" || req.Phone == "" || strings.TrimSpace(req.Text) == "" {
		h.respond(w, http.StatusBadRequest, inboundInvalid)
		return
	}

	if req.MessageID != "" && h.seen != nil && h.seen.Seen(req.MessageID) {
		h.logger.Debug("duplicate inbound message", "message_id", req.MessageID)
		h.respond(w, http.StatusOK, inboundDuplicate)
		return
	}

	msg := InboundMessage{
		MessageID:      req.MessageID,
		ConversationID: req.ConversationID,
		Phone:          req.Phone,
		Text:           req.Text,
		ReceivedAt:     time.Now().UTC(),
	}
	if err := h.dispatcher.Dispatch(r.Context(), msg); err != nil {
		// Let the transport retry this id.
		if req.MessageID != "" && h.seen != nil {
			h.seen.Forget(req.MessageID)
		}
		if errors.Is(err, ErrLockNotAcquired) {
			w.Header().Set("Retry-After", "1")
			h.respond(w, http.StatusServiceUnavailable, inboundBusy)
			return
		}
		h.logger.Error("failed to dispatch inbound message", "conversation_id", msg.ConversationID, "error", err)
		h.respond(w, http.StatusInternalServerError, inboundFailed)
		return
	}

	h.respond(w, http.StatusAccepted, inboundAccepted)
}

func (h *Handler) respond(w http.ResponseWriter, status int, label string) {
	if h.recorder != nil {
		h.recorder.ObserveInbound(label)
	}
	h.writeJSON(w, status, inboundResponse{Status: label})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
