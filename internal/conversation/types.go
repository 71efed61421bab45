// Package conversation runs the scheduling dialogue: one inbound message in,
// one reply out, with the stage and profile persisted between turns.
package conversation

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
)

// ErrNotFound is returned by stores when a conversation, client or
// appointment does not exist.
var ErrNotFound = errors.New("conversation: not found")

// Stage names a state of the booking dialogue.
type Stage string

const (
	StageGreeting         Stage = "greeting"
	StageIntent           Stage = "intent"
	StageDataCollection   Stage = "data_collection"
	StageScheduleProposal Stage = "schedule_proposal"
	StageConfirmation     Stage = "confirmation"
	StageClosing          Stage = "closing"
)

// Stages lists every stage in dialogue order.
func Stages() []Stage {
	return []Stage{
		StageGreeting, StageIntent, StageDataCollection,
		StageScheduleProposal, StageConfirmation, StageClosing,
	}
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, known := range Stages() {
		if s == known {
			return true
		}
	}
	return false
}

// State is the persisted position of one conversation.
type State struct {
	ConversationID string
	Stage          Stage
	Profile        Profile
	UpdatedAt      time.Time
}

// Client is a patient, identified by phone number.
type Client struct {
	ID              int64
	Phone           string
	FullName        string
	Email           string
	Active          bool
	CreatedAt       time.Time
	LastInteraction time.Time
}

// AppointmentStatus is the lifecycle state of an appointment row.
type AppointmentStatus string

const (
	AppointmentTentative AppointmentStatus = "tentative"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a booked procedure mirrored by an external calendar event.
type Appointment struct {
	ID              int64
	ClientID        int64
	ConversationID  string
	ProcedureCode   string
	Date            civil.Date
	Start           civil.Time
	End             civil.Time
	Status          AppointmentStatus
	ExternalEventID string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InboundMessage is one message delivered by the messaging transport.
type InboundMessage struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Phone          string    `json:"phone"`
	Text           string    `json:"text"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Reply is what the engine wants delivered back. Text is always displayable.
type Reply struct {
	ConversationID string `json:"conversation_id"`
	To             string `json:"to"`
	Text           string `json:"text"`
	Stage          Stage  `json:"stage"`
}

// StateStore persists conversation state.
type StateStore interface {
	LoadState(ctx context.Context, conversationID string) (State, error)
	SaveState(ctx context.Context, state State) error
}

// ClientStore finds and upserts clients by phone.
type ClientStore interface {
	EnsureClient(ctx context.Context, phone, fullName, email string) (Client, error)
	ClientByPhone(ctx context.Context, phone string) (Client, error)
}

// AppointmentStore records booked and cancelled appointments. Inserting an
// appointment whose external event id already exists returns the stored row.
type AppointmentStore interface {
	InsertAppointment(ctx context.Context, appt Appointment) (Appointment, error)
	NextConfirmedAppointment(ctx context.Context, clientID int64, from civil.DateTime) (Appointment, error)
	MarkAppointmentCancelled(ctx context.Context, appointmentID int64) error
}

// TransitionLog appends stage changes to an audit trail.
type TransitionLog interface {
	RecordTransition(ctx context.Context, conversationID string, from, to Stage) error
}

// Store is everything the engine needs from persistence.
type Store interface {
	StateStore
	ClientStore
	AppointmentStore
	TransitionLog
}

// BookingNotice describes a confirmed or cancelled appointment for
// notification purposes.
type BookingNotice struct {
	ClientName    string
	ClientEmail   string
	Phone         string
	ProcedureName string
	Date          civil.Date
	Start         civil.Time
	End           civil.Time
	EventID       string
}

// BookingNotifier is told about confirmations and cancellations. Failures
// never affect the turn.
type BookingNotifier interface {
	AppointmentConfirmed(ctx context.Context, notice BookingNotice) error
	AppointmentCancelled(ctx context.Context, notice BookingNotice) error
}

// TurnRecorder observes turn outcomes and stage changes.
type TurnRecorder interface {
	ObserveTurn(stage, outcome string, elapsed time.Duration)
	ObserveTransition(from, to string)
}
