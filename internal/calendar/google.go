package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/wolfman30/odonto-agent/internal/timeutil"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

const (
	statusCancelled = "cancelled"
	statusConfirmed = "confirmed"

	// conflictLookupWindow bounds the search for an event whose insert
	// reported a duplicate id.
	conflictLookupWindow = 5 * time.Minute
)

// GoogleGateway talks to one Google Calendar. The idempotency key doubles as
// the event id, so a replayed insert comes back as 409 and is resolved to the
// existing event.
type GoogleGateway struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
	logger     *logging.Logger
	tracer     trace.Tracer
}

// NewGoogleGateway wraps an authenticated Calendar service.
func NewGoogleGateway(svc *gcal.Service, calendarID string, loc *time.Location, logger *logging.Logger) *GoogleGateway {
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleGateway{
		svc:        svc,
		calendarID: calendarID,
		loc:        loc,
		logger:     logger,
		tracer:     otel.Tracer("odonto.internal.calendar"),
	}
}

func (g *GoogleGateway) eventTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: g.loc.String()}
}

// CreateEvent inserts the booking with key as its id.
func (g *GoogleGateway) CreateEvent(ctx context.Context, details EventDetails, key string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "calendar.create_event", trace.WithAttributes(attribute.String("idempotency_key", key)))
	defer span.End()

	start := timeutil.Combine(details.Date, details.Start, g.loc)
	end := timeutil.Combine(details.Date, details.End, g.loc)
	if !end.After(start) {
		err := &Error{Op: "create", Kind: KindInvalid, Err: fmt.Errorf("end %s not after start %s", details.End, details.Start)}
		span.RecordError(err)
		return "", err
	}

	event := &gcal.Event{
		Id:          key,
		Summary:     Summary(details),
		Description: Description(details),
		Start:       g.eventTime(start),
		End:         g.eventTime(end),
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "popup", Minutes: 24 * 60},
				{Method: "popup", Minutes: 60},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := g.svc.Events.Insert(g.calendarID, event).Context(ctx).Do()
	if err == nil {
		g.logger.Info("calendar event created", "event_id", created.Id, "client_id", details.ClientID)
		return created.Id, nil
	}
	if statusCode(err) != http.StatusConflict {
		span.RecordError(err)
		return "", wrap("create", err)
	}

	id, resolveErr := g.resolveConflict(ctx, details, key, start)
	if resolveErr != nil {
		span.RecordError(resolveErr)
		return "", resolveErr
	}
	g.logger.Info("calendar event already existed", "event_id", id, "client_id", details.ClientID)
	return id, nil
}

// resolveConflict finds the event behind a duplicate-id insert: first by a
// narrow time window plus text match, then by id. A cancelled event found by
// id is restored.
func (g *GoogleGateway) resolveConflict(ctx context.Context, details EventDetails, key string, start time.Time) (string, error) {
	query := fmt.Sprintf("%s %s", details.ProcedureName, details.ClientName)
	list, err := g.svc.Events.List(g.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(start.Add(conflictLookupWindow).Format(time.RFC3339)).
		Q(query).
		SingleEvents(true).
		Context(ctx).
		Do()
	if err != nil {
		g.logger.Warn("conflict lookup by window failed", "error", err, "idempotency_key", key)
	} else {
		for _, item := range list.Items {
			if item.Status != statusCancelled {
				return item.Id, nil
			}
		}
	}

	existing, err := g.svc.Events.Get(g.calendarID, key).Context(ctx).Do()
	if err != nil {
		g.logger.Warn("conflict lookup by id failed", "error", err, "idempotency_key", key)
		return "", &Error{Op: "create", Kind: KindConflictUnresolved, Err: ErrConflictUnresolved}
	}
	if existing.Status != statusCancelled {
		return existing.Id, nil
	}

	existing.Status = statusConfirmed
	existing.Summary = Summary(details)
	existing.Description = Description(details)
	existing.Start = g.eventTime(start)
	existing.End = g.eventTime(timeutil.Combine(details.Date, details.End, g.loc))
	restored, err := g.svc.Events.Update(g.calendarID, key, existing).Context(ctx).Do()
	if err != nil {
		return "", wrap("create", err)
	}
	return restored.Id, nil
}

// UpdateEvent moves an event and/or replaces its notes. Moving only the
// start keeps the event's duration.
func (g *GoogleGateway) UpdateEvent(ctx context.Context, eventID string, update EventUpdate) error {
	ctx, span := g.tracer.Start(ctx, "calendar.update_event", trace.WithAttributes(attribute.String("event_id", eventID)))
	defer span.End()

	event, err := g.svc.Events.Get(g.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return wrap("update", err)
	}

	if update.Date != nil || update.Start != nil || update.End != nil {
		if err := g.reschedule(event, update); err != nil {
			span.RecordError(err)
			return err
		}
	}
	if update.Notes != nil {
		event.Description = MergeNotes(event.Description, *update.Notes)
	}

	if _, err := g.svc.Events.Update(g.calendarID, eventID, event).Context(ctx).Do(); err != nil {
		span.RecordError(err)
		return wrap("update", err)
	}
	return nil
}

func (g *GoogleGateway) reschedule(event *gcal.Event, update EventUpdate) error {
	if event.Start == nil || event.End == nil || event.Start.DateTime == "" || event.End.DateTime == "" {
		return &Error{Op: "update", Kind: KindInvalid, Err: errors.New("event has no timed start/end")}
	}
	curStart, err := time.Parse(time.RFC3339, event.Start.DateTime)
	if err != nil {
		return &Error{Op: "update", Kind: KindInvalid, Err: err}
	}
	curEnd, err := time.Parse(time.RFC3339, event.End.DateTime)
	if err != nil {
		return &Error{Op: "update", Kind: KindInvalid, Err: err}
	}
	local := civil.DateTimeOf(curStart.In(g.loc))

	date, startTime := local.Date, local.Time
	if update.Date != nil {
		date = *update.Date
	}
	if update.Start != nil {
		startTime = *update.Start
	}
	newStart := timeutil.Combine(date, startTime, g.loc)
	newEnd := newStart.Add(curEnd.Sub(curStart))
	if update.End != nil {
		newEnd = timeutil.Combine(date, *update.End, g.loc)
	}
	if !newEnd.After(newStart) {
		return &Error{Op: "update", Kind: KindInvalid, Err: errors.New("end not after start")}
	}
	event.Start = g.eventTime(newStart)
	event.End = g.eventTime(newEnd)
	return nil
}

// CancelEvent deletes the event. An event that is already gone counts as
// cancelled.
func (g *GoogleGateway) CancelEvent(ctx context.Context, eventID string) error {
	ctx, span := g.tracer.Start(ctx, "calendar.cancel_event", trace.WithAttributes(attribute.String("event_id", eventID)))
	defer span.End()

	err := g.svc.Events.Delete(g.calendarID, eventID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	if KindOf(err) == KindNotFound {
		g.logger.Info("calendar event already absent", "event_id", eventID)
		return nil
	}
	span.RecordError(err)
	return wrap("cancel", err)
}

// ListBusyIntervals returns the occupied ranges on day, skipping cancelled
// and transparent (free) events. All-day events block the whole day.
func (g *GoogleGateway) ListBusyIntervals(ctx context.Context, day civil.Date) ([]Interval, error) {
	ctx, span := g.tracer.Start(ctx, "calendar.list_busy", trace.WithAttributes(attribute.String("day", day.String())))
	defer span.End()

	dayStart := timeutil.Combine(day, civil.Time{}, g.loc)
	dayEnd := timeutil.Combine(day.AddDays(1), civil.Time{}, g.loc)

	var busy []Interval
	call := g.svc.Events.List(g.calendarID).
		TimeMin(dayStart.Format(time.RFC3339)).
		TimeMax(dayEnd.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == statusCancelled || item.Transparency == "transparent" {
				continue
			}
			iv, ok := g.interval(item)
			if !ok {
				g.logger.Warn("skipping calendar event with unreadable times", "event_id", item.Id)
				continue
			}
			busy = append(busy, iv)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, wrap("list_busy", err)
	}
	return busy, nil
}

func (g *GoogleGateway) interval(item *gcal.Event) (Interval, bool) {
	if item.Start == nil || item.End == nil {
		return Interval{}, false
	}
	start, ok := g.parseEventTime(item.Start)
	if !ok {
		return Interval{}, false
	}
	end, ok := g.parseEventTime(item.End)
	if !ok {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

func (g *GoogleGateway) parseEventTime(t *gcal.EventDateTime) (time.Time, bool) {
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		return parsed, err == nil
	}
	if t.Date != "" {
		d, err := civil.ParseDate(t.Date)
		if err != nil {
			return time.Time{}, false
		}
		return timeutil.Combine(d, civil.Time{}, g.loc), true
	}
	return time.Time{}, false
}
