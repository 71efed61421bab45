package calendar

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

// WithTimeout bounds every gateway call by d. Timeouts surface as KindTimeout.
func WithTimeout(gw Gateway, d time.Duration) Gateway {
	if d <= 0 {
		return gw
	}
	return &timeoutGateway{next: gw, timeout: d}
}

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

func (t *timeoutGateway) CreateEvent(ctx context.Context, details EventDetails, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	id, err := t.next.CreateEvent(ctx, details, key)
	return id, wrap("create", err)
}

func (t *timeoutGateway) UpdateEvent(ctx context.Context, eventID string, update EventUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return wrap("update", t.next.UpdateEvent(ctx, eventID, update))
}

func (t *timeoutGateway) CancelEvent(ctx context.Context, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return wrap("cancel", t.next.CancelEvent(ctx, eventID))
}

func (t *timeoutGateway) ListBusyIntervals(ctx context.Context, day civil.Date) ([]Interval, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	busy, err := t.next.ListBusyIntervals(ctx, day)
	return busy, wrap("list_busy", err)
}

// CallRecorder observes gateway calls. The metrics package implements it.
type CallRecorder interface {
	ObserveGatewayCall(op, outcome string, elapsed time.Duration)
}

// Instrument reports each call's outcome ("ok" or the failure kind) to rec.
func Instrument(gw Gateway, rec CallRecorder) Gateway {
	if rec == nil {
		return gw
	}
	return &instrumentedGateway{next: gw, rec: rec}
}

type instrumentedGateway struct {
	next Gateway
	rec  CallRecorder
}

func (i *instrumentedGateway) observe(op string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	i.rec.ObserveGatewayCall(op, outcome, time.Since(started))
}

func (i *instrumentedGateway) CreateEvent(ctx context.Context, details EventDetails, key string) (string, error) {
	started := time.Now()
	id, err := i.next.CreateEvent(ctx, details, key)
	i.observe("create", started, err)
	return id, err
}

func (i *instrumentedGateway) UpdateEvent(ctx context.Context, eventID string, update EventUpdate) error {
	started := time.Now()
	err := i.next.UpdateEvent(ctx, eventID, update)
	i.observe("update", started, err)
	return err
}

func (i *instrumentedGateway) CancelEvent(ctx context.Context, eventID string) error {
	started := time.Now()
	err := i.next.CancelEvent(ctx, eventID)
	i.observe("cancel", started, err)
	return err
}

func (i *instrumentedGateway) ListBusyIntervals(ctx context.Context, day civil.Date) ([]Interval, error) {
	started := time.Now()
	busy, err := i.next.ListBusyIntervals(ctx, day)
	i.observe("list_busy", started, err)
	return busy, err
}
