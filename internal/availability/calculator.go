// Package availability computes bookable slots from business hours and the
// busy time reported by the external calendar.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/odonto-agent/internal/calendar"
	"github.com/wolfman30/odonto-agent/internal/clinic"
	"github.com/wolfman30/odonto-agent/internal/timeutil"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

const (
	defaultStrideMinutes = 30
	defaultLookaheadDays = 14
	defaultLimit         = 3
)

// BusySource reports occupied intervals for a calendar day, excluding
// cancelled entries.
type BusySource interface {
	ListBusyIntervals(ctx context.Context, day civil.Date) ([]calendar.Interval, error)
}

// Slot is one bookable interval.
type Slot struct {
	Date    civil.Date `json:"date"`
	Start   civil.Time `json:"start_time"`
	End     civil.Time `json:"end_time"`
	Label   string     `json:"label"`
	Weekday string     `json:"weekday"`
}

// Query narrows a slot search. Zero From/To select today and today plus the
// lookahead; an empty Window means the whole business day.
type Query struct {
	From        civil.Date
	To          civil.Date
	DurationMin int
	Window      string
	Limit       int
}

// Calculator lists free slots. Each call recomputes from scratch.
type Calculator struct {
	hours     clinic.Source
	busy      BusySource
	windows   timeutil.Windows
	clock     timeutil.Clock
	loc       *time.Location
	stride    int
	lookahead int
	limit     int
	logger    *logging.Logger
	tracer    trace.Tracer
}

// Option customizes a Calculator.
type Option func(*Calculator)

// WithStride sets the spacing between candidate starts, in minutes.
func WithStride(minutes int) Option {
	return func(c *Calculator) {
		if minutes > 0 {
			c.stride = minutes
		}
	}
}

// WithLookahead sets how many days past From a default search covers.
func WithLookahead(days int) Option {
	return func(c *Calculator) {
		if days >= 0 {
			c.lookahead = days
		}
	}
}

// WithDefaultLimit sets the slot cap used when Query.Limit is zero.
func WithDefaultLimit(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithWindows overrides the time-of-day windows.
func WithWindows(w timeutil.Windows) Option {
	return func(c *Calculator) {
		if len(w) > 0 {
			c.windows = w
		}
	}
}

// WithClock pins "today" and "now".
func WithClock(clock timeutil.Clock) Option {
	return func(c *Calculator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLocation sets the clinic timezone.
func WithLocation(loc *time.Location) Option {
	return func(c *Calculator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Calculator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCalculator builds a calculator over hours and busy.
func NewCalculator(hours clinic.Source, busy BusySource, opts ...Option) *Calculator {
	if hours == nil {
		panic("availability: hours source cannot be nil")
	}
	if busy == nil {
		panic("availability: busy source cannot be nil")
	}
	c := &Calculator{
		hours:     hours,
		busy:      busy,
		windows:   timeutil.DefaultWindows(),
		clock:     timeutil.SystemClock{},
		loc:       time.UTC,
		stride:    defaultStrideMinutes,
		lookahead: defaultLookaheadDays,
		limit:     defaultLimit,
		logger:    logging.Default(),
		tracer:    otel.Tracer("odonto.internal.availability"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListFreeSlots walks the days of q in order and returns up to the limit of
// free slots across all days. Candidates that already started are skipped.
func (c *Calculator) ListFreeSlots(ctx context.Context, q Query) ([]Slot, error) {
	from, to := q.From, q.To
	if from == (civil.Date{}) {
		from = timeutil.Today(c.clock, c.loc)
	}
	if to == (civil.Date{}) {
		to = from.AddDays(c.lookahead)
	}
	duration := q.DurationMin
	if duration <= 0 {
		duration = clinic.DefaultDurationMin
	}
	limit := q.Limit
	if limit <= 0 {
		limit = c.limit
	}
	window, hasWindow := c.windows.Resolve(q.Window)

	ctx, span := c.tracer.Start(ctx, "availability.list_free_slots", trace.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
		attribute.Int("duration_min", duration),
		attribute.String("window", q.Window),
	))
	defer span.End()

	now := c.clock.Now()
	var slots []Slot
	for day := from; !to.Before(day) && len(slots) < limit; day = day.AddDays(1) {
		hours, err := c.hours.BusinessHours(ctx, timeutil.MondayIndex(day))
		if errors.Is(err, clinic.ErrNotFound) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("availability: business hours for %s: %w", day, err)
		}
		if hours.Closed {
			continue
		}

		openAt, closeAt := timeutil.MinuteOfDay(hours.Open), timeutil.MinuteOfDay(hours.Close)
		if hasWindow {
			openAt = max(openAt, timeutil.MinuteOfDay(window.Start))
			closeAt = min(closeAt, timeutil.MinuteOfDay(window.End))
		}
		if openAt+duration > closeAt {
			continue
		}

		busy, err := c.busy.ListBusyIntervals(ctx, day)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("availability: busy intervals for %s: %w", day, err)
		}

		for start := openAt; start+duration <= closeAt && len(slots) < limit; start += c.stride {
			st, en := timeutil.TimeAt(start), timeutil.TimeAt(start+duration)
			startAt := timeutil.Combine(day, st, c.loc)
			if startAt.Before(now) {
				continue
			}
			if overlapsAny(busy, startAt, timeutil.Combine(day, en, c.loc)) {
				continue
			}
			slots = append(slots, Slot{
				Date:    day,
				Start:   st,
				End:     en,
				Label:   timeutil.SlotLabel(day, st),
				Weekday: timeutil.WeekdayLabel(day),
			})
		}
	}

	c.logger.Debug("free slots computed", "from", from.String(), "to", to.String(), "count", len(slots))
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return slots, nil
}

// overlapsAny uses half-open exclusion: touching intervals are free.
func overlapsAny(busy []calendar.Interval, start, end time.Time) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
