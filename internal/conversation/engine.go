package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/odonto-agent/internal/availability"
	"github.com/wolfman30/odonto-agent/internal/calendar"
	"github.com/wolfman30/odonto-agent/internal/clinic"
	"github.com/wolfman30/odonto-agent/internal/extraction"
	"github.com/wolfman30/odonto-agent/internal/llm"
	"github.com/wolfman30/odonto-agent/internal/timeutil"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// User-facing texts.
const (
	msgAskName             = "Por favor, me informe seu nome completo."
	msgAskProcedure        = "Que tipo de atendimento você precisa?"
	msgIntentNoProcedure   = "Que tipo de atendimento você precisa? Temos limpeza, consulta, restauração, canal, entre outros."
	msgIntentAskName       = "Primeiro, qual é o seu nome completo?"
	msgIntentAskPreference = "Tem alguma preferência de horário? Manhã, tarde ou um dia específico?"
	msgCheckingSlots       = "Aguarde um momento enquanto verifico os horários disponíveis..."
	msgAgendaFull          = "No momento estamos com a agenda lotada. Podemos agendar para daqui 2 semanas. Tudo bem para você?"
	msgProposalFooter      = "Qual horário prefere? (responda 1, 2 ou 3)"
	msgReschedule          = "Claro! Para qual data e horário você gostaria de remarcar?"
	msgPickSlot            = "Por favor, escolha um dos horários sugeridos (1, 2 ou 3) ou digite 'cancelar' para desistir."
	msgCreateFailed        = "Houve um erro ao confirmar o agendamento. Por favor, tente novamente."
	msgCancelled           = "Seu agendamento foi cancelado com sucesso. Gostaria de marcar um novo horário?"
	msgNothingToCancel     = "Não encontrei nenhum agendamento ativo para cancelar. Posso ajudar com algo mais?"
	msgCancelFailed        = "Não consegui cancelar seu agendamento agora. Por favor, tente novamente em instantes."
	msgCalendarUnavailable = "Não consegui consultar a agenda agora. Pode tentar novamente em instantes?"
	msgClosing             = "Foi um prazer atender você! Qualquer dúvida, estamos à disposição. 😊"
	msgDefaultGreeting     = "Olá! Sou o assistente de agendamento da clínica. Como posso ajudar?"
	msgUnknownStage        = "Desculpe, houve um erro. Vamos recomeçar?"
	msgPersistenceFailure  = "Desculpe, tivemos um problema técnico. Pode enviar sua mensagem novamente?"
	msgBusy                = "Ainda estou processando sua mensagem anterior. Um instante, por favor."
)

// Turn outcomes reported to the recorder.
const (
	outcomeOK          = "ok"
	outcomeExternal    = "external_error"
	outcomePersistence = "persistence_error"
	outcomeBusy        = "busy"
)

// SlotFinder lists bookable slots.
type SlotFinder interface {
	ListFreeSlots(ctx context.Context, q availability.Query) ([]availability.Slot, error)
}

// TextGenerator answers free-form prompts. It always returns displayable text.
type TextGenerator interface {
	Generate(ctx context.Context, p llm.Prompt) string
}

// Engine is the per-message state machine.
type Engine struct {
	store     Store
	catalog   clinic.Source
	slots     SlotFinder
	gateway   calendar.Gateway
	extractor *extraction.Extractor
	validator *extraction.Validator
	generator TextGenerator
	prompts   PromptSource
	history   History
	locker    Locker
	notifier  BookingNotifier
	recorder  TurnRecorder
	clock     timeutil.Clock
	loc       *time.Location
	limit     int
	logger    *logging.Logger
	tracer    trace.Tracer
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

func WithGenerator(g TextGenerator) EngineOption {
	return func(e *Engine) { e.generator = g }
}

func WithPromptSource(src PromptSource) EngineOption {
	return func(e *Engine) { e.prompts = src }
}

func WithHistory(h History) EngineOption {
	return func(e *Engine) { e.history = h }
}

func WithLocker(l Locker) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

func WithNotifier(n BookingNotifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func WithRecorder(r TurnRecorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

func WithClock(c timeutil.Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithProposalLimit caps how many slots one proposal lists.
func WithProposalLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

func WithExtractor(x *extraction.Extractor) EngineOption {
	return func(e *Engine) { e.extractor = x }
}

func WithValidator(v *extraction.Validator) EngineOption {
	return func(e *Engine) { e.validator = v }
}

func WithEngineLogger(logger *logging.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine wires the state machine. Extraction and validation default to
// the engine clock and location with the built-in procedure codes.
func NewEngine(store Store, catalog clinic.Source, slots SlotFinder, gateway calendar.Gateway, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if slots == nil {
		panic("conversation: slot finder cannot be nil")
	}
	if gateway == nil {
		panic("conversation: calendar gateway cannot be nil")
	}
	e := &Engine{
		store:   store,
		catalog: catalog,
		slots:   slots,
		gateway: gateway,
		locker:  NewMemoryLocker(),
		clock:   timeutil.SystemClock{},
		loc:     time.UTC,
		limit:   3,
		logger:  logging.Default(),
		tracer:  otel.Tracer("odonto.internal.conversation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.extractor == nil {
		e.extractor = extraction.NewExtractor(e.clock, e.loc)
	}
	if e.validator == nil {
		e.validator = extraction.NewValidator(e.clock, e.loc, clinic.ProcedureCodes(), e.logger)
	}
	return e
}

// turnResult is what a stage handler decides.
type turnResult struct {
	text    string
	next    Stage
	outcome string
}

func advance(text string, next Stage) turnResult {
	return turnResult{text: text, next: next, outcome: outcomeOK}
}

// HandleMessage runs one turn under the conversation lock. The returned
// Reply is always deliverable; a non-nil error reports a persistence or
// locking failure after which the stored state is unchanged.
func (e *Engine) HandleMessage(ctx context.Context, msg InboundMessage) (Reply, error) {
	started := e.clock.Now()
	ctx, span := e.tracer.Start(ctx, "conversation.handle_message",
		trace.WithAttributes(attribute.String("conversation.id", msg.ConversationID)))
	defer span.End()

	reply := Reply{ConversationID: msg.ConversationID, To: msg.Phone}
	var stageBefore Stage
	outcome := outcomeOK

	err := e.locker.WithLock(ctx, msg.ConversationID, func(ctx context.Context) error {
		var turnErr error
		stageBefore, reply, outcome, turnErr = e.turn(ctx, msg)
		return turnErr
	})
	if errors.Is(err, ErrLockNotAcquired) {
		outcome = outcomeBusy
		reply = Reply{ConversationID: msg.ConversationID, To: msg.Phone, Text: msgBusy}
	}
	if err != nil {
		span.RecordError(err)
		e.logger.Error("conversation turn failed",
			"conversation_id", msg.ConversationID, "stage", string(stageBefore), "error", err)
		if outcome == outcomeOK {
			outcome = outcomePersistence
		}
		if reply.Text == "" {
			reply.Text = msgPersistenceFailure
			reply.Stage = stageBefore
		}
	}

	if e.recorder != nil {
		e.recorder.ObserveTurn(string(stageBefore), outcome, e.clock.Now().Sub(started))
	}
	return reply, err
}

func (e *Engine) turn(ctx context.Context, msg InboundMessage) (Stage, Reply, string, error) {
	reply := Reply{ConversationID: msg.ConversationID, To: msg.Phone}

	state, err := e.store.LoadState(ctx, msg.ConversationID)
	if errors.Is(err, ErrNotFound) {
		state = State{ConversationID: msg.ConversationID, Stage: StageGreeting, Profile: NewProfile()}
	} else if err != nil {
		reply.Text = msgPersistenceFailure
		return "", reply, outcomePersistence, fmt.Errorf("conversation: load state: %w", err)
	}
	current := state.Stage
	if current == "" {
		current = StageGreeting
	}
	reply.Stage = current

	profile := state.Profile
	profile.Merge(e.validator.Validate(e.extractor.Extract(msg.Text)))
	if profile.Phone == "" {
		profile.Phone = msg.Phone
	}

	var history []Turn
	if e.history != nil {
		history, err = e.history.Recent(ctx, msg.ConversationID, historyTurns)
		if err != nil {
			e.logger.Warn("failed to load conversation history", "conversation_id", msg.ConversationID, "error", err)
		}
	}

	res, err := e.dispatch(ctx, current, &profile, msg, history)
	if err != nil {
		reply.Text = msgPersistenceFailure
		return current, reply, outcomePersistence, err
	}

	state.Stage = res.next
	state.Profile = profile
	state.UpdatedAt = e.clock.Now()
	if err := e.store.SaveState(ctx, state); err != nil {
		reply.Text = msgPersistenceFailure
		return current, reply, outcomePersistence, fmt.Errorf("conversation: save state: %w", err)
	}

	if res.next != current {
		if err := e.store.RecordTransition(ctx, msg.ConversationID, current, res.next); err != nil {
			e.logger.Warn("failed to record stage transition", "conversation_id", msg.ConversationID, "error", err)
		}
		if e.recorder != nil {
			e.recorder.ObserveTransition(string(current), string(res.next))
		}
		e.logger.Info("conversation stage changed",
			"conversation_id", msg.ConversationID, "from", string(current), "to", string(res.next))
	}

	if e.history != nil {
		now := e.clock.Now()
		if err := e.history.Append(ctx, msg.ConversationID,
			Turn{Direction: DirectionInbound, Text: msg.Text, At: now},
			Turn{Direction: DirectionOutbound, Text: res.text, At: now},
		); err != nil {
			e.logger.Warn("failed to append conversation history", "conversation_id", msg.ConversationID, "error", err)
		}
	}

	reply.Text = res.text
	reply.Stage = res.next
	return current, reply, res.outcome, nil
}

func (e *Engine) dispatch(ctx context.Context, stage Stage, p *Profile, msg InboundMessage, history []Turn) (turnResult, error) {
	switch stage {
	case StageGreeting:
		return e.handleGreeting(ctx, p, msg, history)
	case StageIntent:
		return e.handleIntent(ctx, p)
	case StageDataCollection:
		return e.handleDataCollection(ctx, p)
	case StageScheduleProposal:
		return e.handleScheduleProposal(ctx, p)
	case StageConfirmation:
		return e.handleConfirmation(ctx, p, msg)
	case StageClosing:
		return advance(msgClosing, StageClosing), nil
	default:
		e.logger.Warn("unknown conversation stage", "conversation_id", msg.ConversationID, "stage", string(stage))
		return advance(msgUnknownStage, StageGreeting), nil
	}
}

// handleGreeting hands straight to the intent stage when the first message
// already asks to book; otherwise it answers through text generation.
func (e *Engine) handleGreeting(ctx context.Context, p *Profile, msg InboundMessage, history []Turn) (turnResult, error) {
	if extraction.HasBookingIntent(msg.Text) || p.Procedure != "" {
		return e.handleIntent(ctx, p)
	}
	if e.generator == nil {
		return advance(msgDefaultGreeting, StageGreeting), nil
	}

	prompt, err := resolvePrompt(ctx, e.prompts, StageGreeting)
	if err != nil {
		e.logger.Warn("failed to load stage prompt, using default", "stage", string(StageGreeting), "error", err)
	}
	vars := promptVars(StageGreeting, *p, history, msg.Text)
	text := e.generator.Generate(ctx, llm.Prompt{
		System: prompt.SystemPrompt,
		User:   RenderTemplate(prompt.UserTemplate, vars),
	})
	return advance(text, StageGreeting), nil
}

func (e *Engine) handleIntent(ctx context.Context, p *Profile) (turnResult, error) {
	if p.Procedure == "" {
		return advance(msgIntentNoProcedure, StageIntent), nil
	}
	proc := e.procedure(ctx, p.Procedure)
	text := fmt.Sprintf("Ótimo! Vamos agendar %s. ", strings.ToLower(proc.Name))
	if p.FullName == "" {
		text += msgIntentAskName
	} else {
		text += msgIntentAskPreference
	}
	return advance(text, StageDataCollection), nil
}

func (e *Engine) handleDataCollection(ctx context.Context, p *Profile) (turnResult, error) {
	switch p.MissingField() {
	case "nome":
		return advance(msgAskName, StageDataCollection), nil
	case "procedimento":
		return advance(msgAskProcedure, StageDataCollection), nil
	}

	if _, err := e.store.EnsureClient(ctx, p.Phone, p.FullName, p.Email); err != nil {
		return turnResult{}, fmt.Errorf("conversation: ensure client: %w", err)
	}
	return advance(msgCheckingSlots, StageScheduleProposal), nil
}

func (e *Engine) handleScheduleProposal(ctx context.Context, p *Profile) (turnResult, error) {
	proc := e.procedure(ctx, p.Procedure)

	q := availability.Query{
		DurationMin: proc.DurationMin,
		Window:      p.DesiredWindow,
		Limit:       e.limit,
	}
	if p.DesiredDate != nil {
		q.From, q.To = *p.DesiredDate, *p.DesiredDate
	}

	slots, err := e.slots.ListFreeSlots(ctx, q)
	if err != nil {
		e.logger.Error("failed to list free slots", "procedure", proc.Code, "kind", calendar.KindOf(err).String(), "error", err)
		return turnResult{text: msgCalendarUnavailable, next: StageScheduleProposal, outcome: outcomeExternal}, nil
	}

	if len(slots) == 0 {
		if p.DesiredDate != nil {
			text := fmt.Sprintf("Não temos horários disponíveis em %s. Posso verificar outras datas. Qual seria sua segunda opção?",
				timeutil.FormatDateBR(*p.DesiredDate))
			p.DesiredDate = nil
			return advance(text, StageDataCollection), nil
		}
		return advance(msgAgendaFull, StageDataCollection), nil
	}

	p.ProposedSlots = slots

	var b strings.Builder
	fmt.Fprintf(&b, "Tenho os seguintes horários disponíveis para %s:\n\n", proc.Name)
	for i, s := range slots {
		fmt.Fprintf(&b, "%d. %s, %s\n", i+1, s.Weekday, s.Label)
	}
	b.WriteString("\n" + msgProposalFooter)
	return advance(b.String(), StageConfirmation), nil
}

// handleConfirmation resolves the chosen slot. Cancellation is checked first
// so "cancelar" always wins over any number or time in the same message.
func (e *Engine) handleConfirmation(ctx context.Context, p *Profile, msg InboundMessage) (turnResult, error) {
	if extraction.IsCancellation(msg.Text) {
		return e.cancelAppointment(ctx, p)
	}
	if extraction.IsReschedule(msg.Text) {
		p.ProposedSlots = nil
		return advance(msgReschedule, StageDataCollection), nil
	}

	slot, found := chooseSlot(msg.Text, p.ProposedSlots)
	if !found {
		return advance(msgPickSlot, StageConfirmation), nil
	}
	return e.book(ctx, p, msg, slot)
}

// chooseSlot tries an index, then an explicit time, then a generic yes.
func chooseSlot(text string, slots []availability.Slot) (availability.Slot, bool) {
	trimmed := strings.TrimSpace(text)
	switch trimmed {
	case "1", "2", "3":
		idx, _ := strconv.Atoi(trimmed)
		if idx-1 < len(slots) {
			return slots[idx-1], true
		}
		return availability.Slot{}, false
	}

	at, hasTime := extraction.ExtractTime(text)
	if !hasTime {
		at, hasTime = timeutil.ParseTime(text)
	}
	if hasTime {
		for _, s := range slots {
			if timeutil.MinuteOfDay(s.Start) == timeutil.MinuteOfDay(at) {
				return s, true
			}
		}
	}

	if extraction.IsAffirmative(text) && len(slots) > 0 {
		return slots[0], true
	}
	return availability.Slot{}, false
}

func (e *Engine) book(ctx context.Context, p *Profile, msg InboundMessage, slot availability.Slot) (turnResult, error) {
	client, err := e.store.EnsureClient(ctx, p.Phone, p.FullName, p.Email)
	if err != nil {
		return turnResult{}, fmt.Errorf("conversation: ensure client: %w", err)
	}

	proc := e.procedure(ctx, p.Procedure)
	name := p.FullName
	if name == "" {
		name = "Cliente"
	}
	details := calendar.EventDetails{
		ClientID:      client.ID,
		ClientName:    name,
		Phone:         p.Phone,
		ProcedureCode: proc.Code,
		ProcedureName: proc.Name,
		Date:          slot.Date,
		Start:         slot.Start,
		End:           slot.End,
		Notes:         p.Notes,
	}
	key := calendar.IdempotencyKey(client.ID, slot.Date, slot.Start, proc.Code)

	eventID, err := e.gateway.CreateEvent(ctx, details, key)
	if err != nil {
		e.logger.Error("failed to create calendar event",
			"conversation_id", msg.ConversationID, "kind", calendar.KindOf(err).String(), "error", err)
		return turnResult{text: msgCreateFailed, next: StageConfirmation, outcome: outcomeExternal}, nil
	}

	if _, err := e.store.InsertAppointment(ctx, Appointment{
		ClientID:        client.ID,
		ConversationID:  msg.ConversationID,
		ProcedureCode:   proc.Code,
		Date:            slot.Date,
		Start:           slot.Start,
		End:             slot.End,
		Status:          AppointmentConfirmed,
		ExternalEventID: eventID,
		Notes:           p.Notes,
	}); err != nil {
		return turnResult{}, fmt.Errorf("conversation: insert appointment: %w", err)
	}

	e.notify(ctx, true, BookingNotice{
		ClientName:    name,
		ClientEmail:   p.Email,
		Phone:         p.Phone,
		ProcedureName: proc.Name,
		Date:          slot.Date,
		Start:         slot.Start,
		End:           slot.End,
		EventID:       eventID,
	})

	p.ProposedSlots = nil
	text := fmt.Sprintf("✅ Agendamento confirmado!\n\n📅 %s\n👤 %s\n🦷 %s\n\nEnviaremos um lembrete no dia anterior. Até lá!",
		slot.Label, name, proc.Name)
	return advance(text, StageClosing), nil
}

// cancelAppointment cancels the client's earliest upcoming confirmed
// appointment, if any.
func (e *Engine) cancelAppointment(ctx context.Context, p *Profile) (turnResult, error) {
	client, err := e.store.ClientByPhone(ctx, p.Phone)
	if errors.Is(err, ErrNotFound) {
		return advance(msgNothingToCancel, StageClosing), nil
	}
	if err != nil {
		return turnResult{}, fmt.Errorf("conversation: find client: %w", err)
	}

	appt, err := e.store.NextConfirmedAppointment(ctx, client.ID, civil.DateTimeOf(e.clock.Now().In(e.loc)))
	if errors.Is(err, ErrNotFound) {
		return advance(msgNothingToCancel, StageClosing), nil
	}
	if err != nil {
		return turnResult{}, fmt.Errorf("conversation: find appointment: %w", err)
	}

	if appt.ExternalEventID != "" {
		if err := e.gateway.CancelEvent(ctx, appt.ExternalEventID); err != nil {
			e.logger.Error("failed to cancel calendar event",
				"appointment_id", appt.ID, "kind", calendar.KindOf(err).String(), "error", err)
			return turnResult{text: msgCancelFailed, next: StageConfirmation, outcome: outcomeExternal}, nil
		}
	}
	if err := e.store.MarkAppointmentCancelled(ctx, appt.ID); err != nil {
		return turnResult{}, fmt.Errorf("conversation: cancel appointment: %w", err)
	}

	proc := e.procedure(ctx, appt.ProcedureCode)
	e.notify(ctx, false, BookingNotice{
		ClientName:    client.FullName,
		ClientEmail:   client.Email,
		Phone:         client.Phone,
		ProcedureName: proc.Name,
		Date:          appt.Date,
		Start:         appt.Start,
		End:           appt.End,
		EventID:       appt.ExternalEventID,
	})

	p.ResetBooking()
	return advance(msgCancelled, StageIntent), nil
}

func (e *Engine) procedure(ctx context.Context, code string) clinic.Procedure {
	proc, err := clinic.ResolveProcedure(ctx, e.catalog, code)
	if err != nil {
		e.logger.Warn("failed to load procedure, using default", "procedure", code, "error", err)
	}
	return proc
}

func (e *Engine) notify(ctx context.Context, confirmed bool, notice BookingNotice) {
	if e.notifier == nil {
		return
	}
	var err error
	if confirmed {
		err = e.notifier.AppointmentConfirmed(ctx, notice)
	} else {
		err = e.notifier.AppointmentCancelled(ctx, notice)
	}
	if err != nil {
		e.logger.Warn("failed to send booking notification", "event_id", notice.EventID, "error", err)
	}
}
