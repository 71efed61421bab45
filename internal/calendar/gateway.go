// Package calendar is the idempotent event gateway in front of the clinic's
// external calendar, which is the source of truth for busy time.
package calendar

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Gateway creates, updates and cancels calendar events and reports busy time.
// CreateEvent must return the same id for the same key no matter how many
// times it is called.
type Gateway interface {
	CreateEvent(ctx context.Context, details EventDetails, key string) (string, error)
	UpdateEvent(ctx context.Context, eventID string, update EventUpdate) error
	CancelEvent(ctx context.Context, eventID string) error
	ListBusyIntervals(ctx context.Context, day civil.Date) ([]Interval, error)
}

// Interval is a half-open [Start, End) range of occupied time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects the interval.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

// EventDetails describes a booking to place on the calendar. Times are wall
// clock in the clinic's timezone.
type EventDetails struct {
	ClientID      int64
	ClientName    string
	Phone         string
	ProcedureCode string
	ProcedureName string
	Date          civil.Date
	Start         civil.Time
	End           civil.Time
	Notes         string
}

// EventUpdate carries optional changes; nil fields are left as they are.
type EventUpdate struct {
	Date  *civil.Date
	Start *civil.Time
	End   *civil.Time
	Notes *string
}

// IdempotencyKey derives the creation key from the immutable booking inputs.
// The result is lowercase hex, which is also a valid Google event id.
func IdempotencyKey(clientID int64, date civil.Date, start civil.Time, procedureCode string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d-%s-%s-%s", clientID, date.String(), start.String(), procedureCode)))
	return hex.EncodeToString(sum[:])
}

const notesMarker = "\n\nObservações:"

// Summary renders the event title.
func Summary(d EventDetails) string {
	return fmt.Sprintf("%s - %s", d.ProcedureName, d.ClientName)
}

// Description renders the event body, with the notes section last.
func Description(d EventDetails) string {
	body := fmt.Sprintf("Cliente: %s\nProcedimento: %s\nTelefone: %s", d.ClientName, d.ProcedureName, d.Phone)
	return MergeNotes(body, d.Notes)
}

// MergeNotes replaces any existing notes section of description with notes.
// Empty notes remove the section.
func MergeNotes(description, notes string) string {
	if idx := strings.Index(description, notesMarker); idx >= 0 {
		description = description[:idx]
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return description
	}
	return description + notesMarker + " " + notes
}
