package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
)

// Transition is one recorded stage change.
type Transition struct {
	ConversationID string
	From           Stage
	To             Stage
	At             time.Time
}

// MemoryStore keeps all engine state in process memory. It backs tests and
// the single-binary development mode.
type MemoryStore struct {
	mu           sync.Mutex
	states       map[string]State
	clients      map[string]Client
	appointments []Appointment
	transitions  []Transition
	prompts      map[Stage]StagePrompt
	nextClient   int64
	nextAppt     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:  make(map[string]State),
		clients: make(map[string]Client),
		prompts: make(map[Stage]StagePrompt),
	}
}

func (m *MemoryStore) LoadState(_ context.Context, conversationID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[conversationID]
	if !ok {
		return State{}, ErrNotFound
	}
	return cloneState(s), nil
}

func (m *MemoryStore) SaveState(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	m.states[state.ConversationID] = cloneState(state)
	return nil
}

func cloneState(s State) State {
	s.Profile.ProposedSlots = append(s.Profile.ProposedSlots[:0:0], s.Profile.ProposedSlots...)
	return s
}

func (m *MemoryStore) EnsureClient(_ context.Context, phone, fullName, email string) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	c, ok := m.clients[phone]
	if !ok {
		m.nextClient++
		c = Client{ID: m.nextClient, Phone: phone, Active: true, CreatedAt: now}
	}
	if fullName != "" {
		c.FullName = fullName
	}
	if email != "" {
		c.Email = email
	}
	c.LastInteraction = now
	m.clients[phone] = c
	return c, nil
}

func (m *MemoryStore) ClientByPhone(_ context.Context, phone string) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[phone]
	if !ok {
		return Client{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) InsertAppointment(_ context.Context, appt Appointment) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if appt.ExternalEventID != "" {
		for _, existing := range m.appointments {
			if existing.ExternalEventID == appt.ExternalEventID {
				return existing, nil
			}
		}
	}
	m.nextAppt++
	now := time.Now()
	appt.ID = m.nextAppt
	appt.CreatedAt, appt.UpdatedAt = now, now
	m.appointments = append(m.appointments, appt)
	return appt, nil
}

// NextConfirmedAppointment returns the earliest confirmed appointment that
// starts at or after from.
func (m *MemoryStore) NextConfirmedAppointment(_ context.Context, clientID int64, from civil.DateTime) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []Appointment
	for _, a := range m.appointments {
		starts := civil.DateTime{Date: a.Date, Time: a.Start}
		if a.ClientID == clientID && a.Status == AppointmentConfirmed && !starts.Before(from) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return Appointment{}, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Date != candidates[j].Date {
			return candidates[i].Date.Before(candidates[j].Date)
		}
		return candidates[i].Start.Hour*60+candidates[i].Start.Minute <
			candidates[j].Start.Hour*60+candidates[j].Start.Minute
	})
	return candidates[0], nil
}

func (m *MemoryStore) MarkAppointmentCancelled(_ context.Context, appointmentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.appointments {
		if m.appointments[i].ID == appointmentID {
			m.appointments[i].Status = AppointmentCancelled
			m.appointments[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) RecordTransition(_ context.Context, conversationID string, from, to Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, Transition{ConversationID: conversationID, From: from, To: to, At: time.Now()})
	return nil
}

func (m *MemoryStore) StagePrompt(_ context.Context, stage Stage) (StagePrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[stage]
	if !ok {
		return StagePrompt{}, ErrNotFound
	}
	return p, nil
}

// SetStagePrompt stores an override for a stage prompt.
func (m *MemoryStore) SetStagePrompt(p StagePrompt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[p.Stage] = p
}

// Appointments returns a copy of every stored appointment.
func (m *MemoryStore) Appointments() []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Appointment(nil), m.appointments...)
}

// Transitions returns a copy of the recorded stage changes.
func (m *MemoryStore) Transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.transitions...)
}
