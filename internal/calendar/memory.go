package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/odonto-agent/internal/timeutil"
)

// MemoryEvent is an event held by MemoryGateway.
type MemoryEvent struct {
	ID          string
	Key         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Cancelled   bool
}

// MemoryGateway is an in-process Gateway for local runs and tests. It keeps
// the same idempotency and cancel semantics as the Google adapter.
type MemoryGateway struct {
	mu     sync.Mutex
	loc    *time.Location
	events map[string]*MemoryEvent
	byKey  map[string]string
	seq    int
}

// NewMemoryGateway interprets wall-clock times in loc.
func NewMemoryGateway(loc *time.Location) *MemoryGateway {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryGateway{
		loc:    loc,
		events: make(map[string]*MemoryEvent),
		byKey:  make(map[string]string),
	}
}

func (m *MemoryGateway) CreateEvent(ctx context.Context, details EventDetails, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrap("create", err)
	}
	start := timeutil.Combine(details.Date, details.Start, m.loc)
	end := timeutil.Combine(details.Date, details.End, m.loc)
	if !end.After(start) {
		return "", &Error{Op: "create", Kind: KindInvalid, Err: fmt.Errorf("end %s not after start %s", details.End, details.Start)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[key]; ok {
		m.events[id].Cancelled = false
		return id, nil
	}
	m.seq++
	id := fmt.Sprintf("evt-%d", m.seq)
	m.events[id] = &MemoryEvent{
		ID:          id,
		Key:         key,
		Summary:     Summary(details),
		Description: Description(details),
		Start:       start,
		End:         end,
	}
	m.byKey[key] = id
	return id, nil
}

func (m *MemoryGateway) UpdateEvent(ctx context.Context, eventID string, update EventUpdate) error {
	if err := ctx.Err(); err != nil {
		return wrap("update", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return &Error{Op: "update", Kind: KindNotFound, Err: fmt.Errorf("event %s", eventID)}
	}

	local := civil.DateTimeOf(ev.Start.In(m.loc))
	date, startTime := local.Date, local.Time
	if update.Date != nil {
		date = *update.Date
	}
	if update.Start != nil {
		startTime = *update.Start
	}
	newStart := timeutil.Combine(date, startTime, m.loc)
	newEnd := newStart.Add(ev.End.Sub(ev.Start))
	if update.End != nil {
		newEnd = timeutil.Combine(date, *update.End, m.loc)
	}
	if !newEnd.After(newStart) {
		return &Error{Op: "update", Kind: KindInvalid, Err: fmt.Errorf("end not after start")}
	}
	ev.Start, ev.End = newStart, newEnd
	if update.Notes != nil {
		ev.Description = MergeNotes(ev.Description, *update.Notes)
	}
	return nil
}

func (m *MemoryGateway) CancelEvent(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return wrap("cancel", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.events[eventID]; ok {
		ev.Cancelled = true
	}
	return nil
}

func (m *MemoryGateway) ListBusyIntervals(ctx context.Context, day civil.Date) ([]Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list_busy", err)
	}
	dayStart := timeutil.Combine(day, civil.Time{}, m.loc)
	dayEnd := timeutil.Combine(day.AddDays(1), civil.Time{}, m.loc)

	m.mu.Lock()
	defer m.mu.Unlock()
	var busy []Interval
	for _, ev := range m.events {
		if ev.Cancelled {
			continue
		}
		iv := Interval{Start: ev.Start, End: ev.End}
		if iv.Overlaps(dayStart, dayEnd) {
			busy = append(busy, iv)
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

// Block adds a busy event that was not created through CreateEvent.
func (m *MemoryGateway) Block(start, end time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("blk-%d", m.seq)
	m.events[id] = &MemoryEvent{ID: id, Summary: "Ocupado", Start: start, End: end}
	return id
}

// Event returns a copy of the stored event.
func (m *MemoryGateway) Event(id string) (MemoryEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return MemoryEvent{}, false
	}
	return *ev, true
}

// Len counts non-cancelled events.
func (m *MemoryGateway) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if !ev.Cancelled {
			n++
		}
	}
	return n
}
