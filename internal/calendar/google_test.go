package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/wolfman30/odonto-agent/internal/timeutil"
)

var saoPaulo = timeutil.LoadLocation("America/Sao_Paulo")

func sampleDetails() EventDetails {
	return EventDetails{
		ClientID:      7,
		ClientName:    "Maria Silva",
		Phone:         "+5511999990000",
		ProcedureCode: "limpeza",
		ProcedureName: "Limpeza",
		Date:          civil.Date{Year: 2026, Month: time.October, Day: 20},
		Start:         civil.Time{Hour: 9},
		End:           civil.Time{Hour: 9, Minute: 30},
	}
}

type fakeCalendar struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    []string
}

func newFakeCalendar(t *testing.T) (*fakeCalendar, *GoogleGateway) {
	t.Helper()
	fc := &fakeCalendar{t: t, handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(srv.Close)

	svc, err := gcal.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return fc, NewGoogleGateway(svc, "primary", saoPaulo, nil)
}

func (f *fakeCalendar) on(method, path string, h http.HandlerFunc) {
	f.handlers[method+" "+path] = h
}

func (f *fakeCalendar) serve(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.calls = append(f.calls, route)
	f.mu.Unlock()
	h, ok := f.handlers[route]
	if !ok {
		writeAPIError(w, http.StatusNotFound)
		return
	}
	h(w, r)
}

func (f *fakeCalendar) called(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == route {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": http.StatusText(code)},
	})
}

func TestGoogleCreateEvent(t *testing.T) {
	fc, gw := newFakeCalendar(t)
	key := IdempotencyKey(7, sampleDetails().Date, sampleDetails().Start, "limpeza")

	var got gcal.Event
	fc.on(http.MethodPost, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]any{"id": got.Id, "status": "confirmed"})
	})

	id, err := gw.CreateEvent(context.Background(), sampleDetails(), key)
	require.NoError(t, err)
	assert.Equal(t, key, id)
	assert.Equal(t, key, got.Id)
	assert.Equal(t, "Limpeza - Maria Silva", got.Summary)
	assert.Equal(t, "Cliente: Maria Silva\nProcedimento: Limpeza\nTelefone: +5511999990000", got.Description)
	assert.Equal(t, "2026-10-20T09:00:00-03:00", got.Start.DateTime)
	assert.Equal(t, "America/Sao_Paulo", got.Start.TimeZone)
	require.NotNil(t, got.Reminders)
	assert.False(t, got.Reminders.UseDefault)
	require.Len(t, got.Reminders.Overrides, 2)
	assert.EqualValues(t, 1440, got.Reminders.Overrides[0].Minutes)
	assert.EqualValues(t, 60, got.Reminders.Overrides[1].Minutes)
}

func TestGoogleCreateEventConflictResolvedByWindow(t *testing.T) {
	fc, gw := newFakeCalendar(t)
	key := "abc123"

	fc.on(http.MethodPost, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusConflict)
	})
	fc.on(http.MethodGet, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Limpeza Maria Silva", r.URL.Query().Get("q"))
		assert.Equal(t, "2026-10-20T09:00:00-03:00", r.URL.Query().Get("timeMin"))
		assert.Equal(t, "2026-10-20T09:05:00-03:00", r.URL.Query().Get("timeMax"))
		writeJSON(w, map[string]any{"items": []map[string]any{
			{"id": "old", "status": "cancelled"},
			{"id": key, "status": "confirmed"},
		}})
	})

	for i := 0; i < 2; i++ {
		id, err := gw.CreateEvent(context.Background(), sampleDetails(), key)
		require.NoError(t, err)
		assert.Equal(t, key, id)
	}
	assert.Equal(t, 0, fc.called("GET /calendars/primary/events/"+key))
}

func TestGoogleCreateEventConflictRestoresCancelled(t *testing.T) {
	fc, gw := newFakeCalendar(t)
	key := "abc123"

	fc.on(http.MethodPost, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusConflict)
	})
	fc.on(http.MethodGet, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"items": []any{}})
	})
	fc.on(http.MethodGet, "/calendars/primary/events/"+key, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": key, "status": "cancelled"})
	})
	var restored gcal.Event
	fc.on(http.MethodPut, "/calendars/primary/events/"+key, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&restored))
		writeJSON(w, map[string]any{"id": key, "status": restored.Status})
	})

	id, err := gw.CreateEvent(context.Background(), sampleDetails(), key)
	require.NoError(t, err)
	assert.Equal(t, key, id)
	assert.Equal(t, "confirmed", restored.Status)
}

func TestGoogleCreateEventConflictUnresolved(t *testing.T) {
	fc, gw := newFakeCalendar(t)
	fc.on(http.MethodPost, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusConflict)
	})
	fc.on(http.MethodGet, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"items": []any{}})
	})

	_, err := gw.CreateEvent(context.Background(), sampleDetails(), "missing")
	require.Error(t, err)
	assert.Equal(t, KindConflictUnresolved, KindOf(err))
	assert.True(t, errors.Is(err, ErrConflictUnresolved))
}

func TestGoogleCreateEventServerError(t *testing.T) {
	fc, gw := newFakeCalendar(t)
	fc.on(http.MethodPost, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusServiceUnavailable)
	})

	_, err := gw.CreateEvent(context.Background(), sampleDetails(), "k")
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestGoogleCancelEvent(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
		kind    Kind
	}{
		{name: "deleted", status: http.StatusNoContent},
		{name: "not found is success", status: http.StatusNotFound},
		{name: "gone is success", status: http.StatusGone},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true, kind: KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, gw := newFakeCalendar(t)
			fc.on(http.MethodDelete, "/calendars/primary/events/evt1", func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusNoContent {
					w.WriteHeader(tt.status)
					return
				}
				writeAPIError(w, tt.status)
			})

			err := gw.CancelEvent(context.Background(), "evt1")
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestGoogleUpdateEventMergesNotesAndKeepsDuration(t *testing.T) {
	fc, gw := newFakeCalendar(t)
	fc.on(http.MethodGet, "/calendars/primary/events/evt1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":          "evt1",
			"description": "Cliente: Ana\n\nObservações: antiga",
			"start":       map[string]any{"dateTime": "2026-10-20T09:00:00-03:00"},
			"end":         map[string]any{"dateTime": "2026-10-20T10:30:00-03:00"},
		})
	})
	var sent gcal.Event
	fc.on(http.MethodPut, "/calendars/primary/events/evt1", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		writeJSON(w, sent)
	})

	notes := "nova"
	newStart := civil.Time{Hour: 14}
	err := gw.UpdateEvent(context.Background(), "evt1", EventUpdate{Start: &newStart, Notes: &notes})
	require.NoError(t, err)

	assert.Equal(t, "Cliente: Ana\n\nObservações: nova", sent.Description)
	assert.Equal(t, "2026-10-20T14:00:00-03:00", sent.Start.DateTime)
	assert.Equal(t, "2026-10-20T15:30:00-03:00", sent.End.DateTime)
}

func TestGoogleUpdateEventNotFound(t *testing.T) {
	_, gw := newFakeCalendar(t)
	notes := "x"
	err := gw.UpdateEvent(context.Background(), "nope", EventUpdate{Notes: &notes})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestGoogleListBusyIntervals(t *testing.T) {
	fc, gw := newFakeCalendar(t)
	fc.on(http.MethodGet, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-10-20T00:00:00-03:00", r.URL.Query().Get("timeMin"))
		assert.Equal(t, "2026-10-21T00:00:00-03:00", r.URL.Query().Get("timeMax"))
		assert.Equal(t, "startTime", r.URL.Query().Get("orderBy"))
		writeJSON(w, map[string]any{"items": []map[string]any{
			{"id": "a", "status": "confirmed",
				"start": map[string]any{"dateTime": "2026-10-20T09:00:00-03:00"},
				"end":   map[string]any{"dateTime": "2026-10-20T10:00:00-03:00"}},
			{"id": "b", "status": "cancelled",
				"start": map[string]any{"dateTime": "2026-10-20T11:00:00-03:00"},
				"end":   map[string]any{"dateTime": "2026-10-20T12:00:00-03:00"}},
			{"id": "c", "status": "confirmed", "transparency": "transparent",
				"start": map[string]any{"dateTime": "2026-10-20T13:00:00-03:00"},
				"end":   map[string]any{"dateTime": "2026-10-20T14:00:00-03:00"}},
			{"id": "d", "status": "confirmed",
				"start": map[string]any{"date": "2026-10-20"},
				"end":   map[string]any{"date": "2026-10-21"}},
		}})
	})

	busy, err := gw.ListBusyIntervals(context.Background(), civil.Date{Year: 2026, Month: time.October, Day: 20})
	require.NoError(t, err)
	require.Len(t, busy, 2)
	assert.True(t, busy[0].Start.Equal(time.Date(2026, time.October, 20, 9, 0, 0, 0, saoPaulo)))
	assert.True(t, busy[0].End.Equal(time.Date(2026, time.October, 20, 10, 0, 0, 0, saoPaulo)))
	assert.True(t, busy[1].Start.Equal(time.Date(2026, time.October, 20, 0, 0, 0, 0, saoPaulo)))
	assert.True(t, busy[1].End.Equal(time.Date(2026, time.October, 21, 0, 0, 0, 0, saoPaulo)))
}

func TestWithTimeoutReportsTimeoutKind(t *testing.T) {
	fc, gw := newFakeCalendar(t)
	fc.on(http.MethodGet, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := WithTimeout(gw, 50*time.Millisecond).ListBusyIntervals(context.Background(), civil.Date{Year: 2026, Month: time.October, Day: 20})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, strings.HasPrefix(err.Error(), "calendar: list_busy"))
}
