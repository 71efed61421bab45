// Package store persists conversation state, clients, appointments and the
// clinic catalog in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/odonto-agent/internal/clinic"
	"github.com/wolfman30/odonto-agent/internal/conversation"
)

// ErrNotFound is returned when a conversation, client or appointment row is
// missing. Catalog lookups return clinic.ErrNotFound instead.
var ErrNotFound = conversation.ErrNotFound

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements conversation.Store, conversation.PromptSource and
// clinic.Source.
type Postgres struct {
	db     querier
	tracer trace.Tracer
}

var (
	_ conversation.Store        = (*Postgres)(nil)
	_ conversation.PromptSource = (*Postgres)(nil)
	_ clinic.Source             = (*Postgres)(nil)
)

// NewPostgres creates a store backed by a pgx pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return newPostgresWithQuerier(pool)
}

func newPostgresWithQuerier(db querier) *Postgres {
	return &Postgres{db: db, tracer: otel.Tracer("odonto.internal.store")}
}

func (s *Postgres) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "store."+name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	return err
}

func (s *Postgres) LoadState(ctx context.Context, conversationID string) (conversation.State, error) {
	ctx, span := s.span(ctx, "load_state", attribute.String("conversation_id", conversationID))
	defer span.End()

	query := `
		SELECT stage, profile, updated_at
		FROM conversation_state
		WHERE conversation_id = $1
	`
	var (
		stage   string
		profile []byte
		state   = conversation.State{ConversationID: conversationID}
	)
	if err := s.db.QueryRow(ctx, query, conversationID).Scan(&stage, &profile, &state.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.State{}, ErrNotFound
		}
		return conversation.State{}, fail(span, fmt.Errorf("store: load state: %w", err))
	}
	p, err := conversation.DecodeProfile(profile)
	if err != nil {
		return conversation.State{}, fail(span, fmt.Errorf("store: load state: %w", err))
	}
	state.Stage = conversation.Stage(stage)
	state.Profile = p
	return state, nil
}

func (s *Postgres) SaveState(ctx context.Context, state conversation.State) error {
	ctx, span := s.span(ctx, "save_state", attribute.String("conversation_id", state.ConversationID))
	defer span.End()

	profile, err := state.Profile.Encode()
	if err != nil {
		return fail(span, fmt.Errorf("store: save state: %w", err))
	}
	query := `
		INSERT INTO conversation_state (conversation_id, stage, profile, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (conversation_id) DO UPDATE
		SET stage = EXCLUDED.stage,
		    profile = EXCLUDED.profile,
		    updated_at = NOW()
	`
	if _, err := s.db.Exec(ctx, query, state.ConversationID, string(state.Stage), string(profile)); err != nil {
		return fail(span, fmt.Errorf("store: save state: %w", err))
	}
	return nil
}

const clientColumns = `id, phone, COALESCE(full_name, ''), COALESCE(email, ''), active, created_at, last_interaction`

func scanClient(row pgx.Row) (conversation.Client, error) {
	var c conversation.Client
	err := row.Scan(&c.ID, &c.Phone, &c.FullName, &c.Email, &c.Active, &c.CreatedAt, &c.LastInteraction)
	return c, err
}

// EnsureClient upserts by phone. Empty name or email never overwrite stored
// values.
func (s *Postgres) EnsureClient(ctx context.Context, phone, fullName, email string) (conversation.Client, error) {
	ctx, span := s.span(ctx, "ensure_client")
	defer span.End()

	query := `
		INSERT INTO clients (phone, full_name, email)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		ON CONFLICT (phone) DO UPDATE
		SET full_name = COALESCE(EXCLUDED.full_name, clients.full_name),
		    email = COALESCE(EXCLUDED.email, clients.email),
		    last_interaction = NOW()
		RETURNING ` + clientColumns
	c, err := scanClient(s.db.QueryRow(ctx, query, phone, fullName, email))
	if err != nil {
		return conversation.Client{}, fail(span, fmt.Errorf("store: ensure client: %w", err))
	}
	return c, nil
}

func (s *Postgres) ClientByPhone(ctx context.Context, phone string) (conversation.Client, error) {
	ctx, span := s.span(ctx, "client_by_phone")
	defer span.End()

	query := `SELECT ` + clientColumns + ` FROM clients WHERE phone = $1`
	c, err := scanClient(s.db.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.Client{}, ErrNotFound
		}
		return conversation.Client{}, fail(span, fmt.Errorf("store: client by phone: %w", err))
	}
	return c, nil
}

// InsertAppointment is idempotent on ExternalEventID: inserting the same
// event twice returns the stored row, restored to the new status.
func (s *Postgres) InsertAppointment(ctx context.Context, appt conversation.Appointment) (conversation.Appointment, error) {
	ctx, span := s.span(ctx, "insert_appointment",
		attribute.String("conversation_id", appt.ConversationID),
		attribute.String("event_id", appt.ExternalEventID),
	)
	defer span.End()

	if appt.Status == "" {
		appt.Status = conversation.AppointmentConfirmed
	}
	query := `
		INSERT INTO appointments (client_id, conversation_id, procedure_code, appt_date,
		                          start_time, end_time, status, google_event_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))
		ON CONFLICT (google_event_id) DO UPDATE
		SET status = EXCLUDED.status,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRow(ctx, query,
		appt.ClientID,
		appt.ConversationID,
		appt.ProcedureCode,
		toPGDate(appt.Date),
		toPGTime(appt.Start),
		toPGTime(appt.End),
		string(appt.Status),
		appt.ExternalEventID,
		appt.Notes,
	).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return conversation.Appointment{}, fail(span, fmt.Errorf("store: insert appointment: %w", err))
	}
	return appt, nil
}

func (s *Postgres) NextConfirmedAppointment(ctx context.Context, clientID int64, from civil.DateTime) (conversation.Appointment, error) {
	ctx, span := s.span(ctx, "next_confirmed_appointment", attribute.Int64("client_id", clientID))
	defer span.End()

	query := `
		SELECT id, client_id, conversation_id, procedure_code, appt_date::text,
		       start_time::text, end_time::text, status, COALESCE(google_event_id, ''),
		       COALESCE(notes, ''), created_at, updated_at
		FROM appointments
		WHERE client_id = $1 AND status = 'confirmed' AND (appt_date, start_time) >= ($2, $3)
		ORDER BY appt_date, start_time
		LIMIT 1
	`
	var (
		a                  conversation.Appointment
		date, start, endAt string
		status             string
	)
	err := s.db.QueryRow(ctx, query, clientID, toPGDate(from.Date), toPGTime(from.Time)).Scan(
		&a.ID, &a.ClientID, &a.ConversationID, &a.ProcedureCode, &date,
		&start, &endAt, &status, &a.ExternalEventID,
		&a.Notes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.Appointment{}, ErrNotFound
		}
		return conversation.Appointment{}, fail(span, fmt.Errorf("store: next appointment: %w", err))
	}
	if a.Date, err = civil.ParseDate(date); err != nil {
		return conversation.Appointment{}, fail(span, fmt.Errorf("store: next appointment: %w", err))
	}
	if a.Start, err = civil.ParseTime(start); err != nil {
		return conversation.Appointment{}, fail(span, fmt.Errorf("store: next appointment: %w", err))
	}
	if a.End, err = civil.ParseTime(endAt); err != nil {
		return conversation.Appointment{}, fail(span, fmt.Errorf("store: next appointment: %w", err))
	}
	a.Status = conversation.AppointmentStatus(status)
	return a, nil
}

func (s *Postgres) MarkAppointmentCancelled(ctx context.Context, appointmentID int64) error {
	ctx, span := s.span(ctx, "cancel_appointment", attribute.Int64("appointment_id", appointmentID))
	defer span.End()

	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1
	`, appointmentID)
	if err != nil {
		return fail(span, fmt.Errorf("store: cancel appointment: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) RecordTransition(ctx context.Context, conversationID string, from, to conversation.Stage) error {
	ctx, span := s.span(ctx, "record_transition", attribute.String("conversation_id", conversationID))
	defer span.End()

	_, err := s.db.Exec(ctx, `
		INSERT INTO stage_history (conversation_id, from_stage, to_stage)
		VALUES ($1, $2, $3)
	`, conversationID, string(from), string(to))
	if err != nil {
		return fail(span, fmt.Errorf("store: record transition: %w", err))
	}
	return nil
}

func (s *Postgres) StagePrompt(ctx context.Context, stage conversation.Stage) (conversation.StagePrompt, error) {
	ctx, span := s.span(ctx, "stage_prompt", attribute.String("stage", string(stage)))
	defer span.End()

	p := conversation.StagePrompt{Stage: stage}
	err := s.db.QueryRow(ctx, `
		SELECT system_prompt, user_template, active
		FROM stage_prompt
		WHERE stage_name = $1
	`, string(stage)).Scan(&p.SystemPrompt, &p.UserTemplate, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.StagePrompt{}, ErrNotFound
		}
		return conversation.StagePrompt{}, fail(span, fmt.Errorf("store: stage prompt: %w", err))
	}
	return p, nil
}

func (s *Postgres) Procedure(ctx context.Context, code string) (clinic.Procedure, error) {
	ctx, span := s.span(ctx, "procedure", attribute.String("code", code))
	defer span.End()

	var p clinic.Procedure
	err := s.db.QueryRow(ctx, `
		SELECT code, name, duration_min, active
		FROM procedure_catalog
		WHERE code = $1
	`, code).Scan(&p.Code, &p.Name, &p.DurationMin, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clinic.Procedure{}, clinic.ErrNotFound
		}
		return clinic.Procedure{}, fail(span, fmt.Errorf("store: procedure: %w", err))
	}
	return p, nil
}

// Procedures lists active catalog entries.
func (s *Postgres) Procedures(ctx context.Context) ([]clinic.Procedure, error) {
	ctx, span := s.span(ctx, "procedures")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT code, name, duration_min, active
		FROM procedure_catalog
		WHERE active
		ORDER BY code
	`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("store: procedures: %w", err))
	}
	defer rows.Close()

	var procs []clinic.Procedure
	for rows.Next() {
		var p clinic.Procedure
		if err := rows.Scan(&p.Code, &p.Name, &p.DurationMin, &p.Active); err != nil {
			return nil, fail(span, fmt.Errorf("store: procedures: %w", err))
		}
		procs = append(procs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("store: procedures: %w", err))
	}
	return procs, nil
}

// BusinessHours reads one weekday (Monday=0). A row without times is closed.
func (s *Postgres) BusinessHours(ctx context.Context, weekday int) (clinic.DayHours, error) {
	ctx, span := s.span(ctx, "business_hours", attribute.Int("weekday", weekday))
	defer span.End()

	var (
		open, closeAt string
		closed        bool
	)
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(open_time::text, ''), COALESCE(close_time::text, ''), closed
		FROM business_hours
		WHERE weekday = $1
	`, weekday).Scan(&open, &closeAt, &closed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clinic.DayHours{}, clinic.ErrNotFound
		}
		return clinic.DayHours{}, fail(span, fmt.Errorf("store: business hours: %w", err))
	}

	h := clinic.DayHours{Weekday: weekday, Closed: closed}
	if closed || open == "" || closeAt == "" {
		h.Closed = true
		return h, nil
	}
	if h.Open, err = civil.ParseTime(open); err != nil {
		return clinic.DayHours{}, fail(span, fmt.Errorf("store: business hours: %w", err))
	}
	if h.Close, err = civil.ParseTime(closeAt); err != nil {
		return clinic.DayHours{}, fail(span, fmt.Errorf("store: business hours: %w", err))
	}
	return h, nil
}

func toPGDate(d civil.Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func toPGTime(t civil.Time) pgtype.Time {
	micros := (int64(t.Hour)*3600+int64(t.Minute)*60+int64(t.Second))*1_000_000 + int64(t.Nanosecond)/1000
	return pgtype.Time{Microseconds: micros, Valid: true}
}
