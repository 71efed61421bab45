package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/odonto-agent/internal/timeutil"
)

// StagePrompt is the system prompt and user template used when a stage
// answers through text generation.
type StagePrompt struct {
	Stage        Stage
	SystemPrompt string
	UserTemplate string
	Active       bool
}

// PromptSource returns the admin-managed prompt for a stage, or ErrNotFound
// when none is active.
type PromptSource interface {
	StagePrompt(ctx context.Context, stage Stage) (StagePrompt, error)
}

var defaultPrompts = map[Stage]StagePrompt{
	StageGreeting: {
		SystemPrompt: "Você é um assistente de agendamento odontológico. Seja breve, amigável e direto. " +
			"Responda com no máximo 20 palavras. Identifique se é cliente novo ou recorrente.",
		UserTemplate: "Cliente disse: {message}\nContexto: {context}",
	},
	StageIntent: {
		SystemPrompt: "Identifique a intenção do cliente: agendar, reagendar, cancelar ou dúvida. " +
			"Responda confirmando o que entendeu, em no máximo 20 palavras.",
		UserTemplate: "Cliente disse: {message}\nHistórico: {history}",
	},
	StageDataCollection: {
		SystemPrompt: "Colete os dados necessários: nome, procedimento e horário desejado. " +
			"Faça UMA pergunta por vez. Máximo 20 palavras. Seja específico e claro.",
		UserTemplate: "Cliente disse: {message}\nDados já coletados: {collected_data}\nDados faltantes: {missing_data}",
	},
	StageScheduleProposal: {
		SystemPrompt: "Proponha 2-3 horários disponíveis baseados na preferência do cliente. " +
			"Seja direto e ofereça opções claras. Máximo 30 palavras.",
		UserTemplate: "Cliente deseja: {preference}\nProcedimento: {procedure}",
	},
	StageConfirmation: {
		SystemPrompt: "Confirme o horário escolhido pelo cliente. Repita os dados principais. Máximo 25 palavras.",
		UserTemplate: "Cliente escolheu: {choice}\nDados do agendamento: {collected_data}",
	},
	StageClosing: {
		SystemPrompt: "Finalize o atendimento com um resumo e agradecimento. Máximo 25 palavras. Seja cordial e profissional.",
		UserTemplate: "Resumo do agendamento: {collected_data}",
	},
}

// DefaultStagePrompt returns the built-in prompt for stage, falling back to
// the greeting prompt for unknown stages.
func DefaultStagePrompt(stage Stage) StagePrompt {
	p, ok := defaultPrompts[stage]
	if !ok {
		p = defaultPrompts[StageGreeting]
	}
	p.Stage = stage
	p.Active = true
	return p
}

var placeholderPattern = regexp.MustCompile(`\{[^}]+\}`)

// RenderTemplate substitutes {name} placeholders from vars and strips any
// placeholder left without a value.
func RenderTemplate(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	out = placeholderPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// promptVars builds the values a stage template can reference.
func promptVars(stage Stage, p Profile, history []Turn, message string) map[string]string {
	vars := map[string]string{
		"message":        message,
		"stage":          string(stage),
		"history":        formatHistory(history),
		"context":        formatClientContext(p),
		"collected_data": formatCollected(p),
		"missing_data":   formatMissing(p),
		"choice":         message,
		"procedure":      p.Procedure,
		"preference":     formatPreference(p),
	}
	if vars["procedure"] == "" {
		vars["procedure"] = "consulta"
	}
	return vars
}

const (
	historyTurns   = 3
	historySnippet = 50
)

func formatHistory(turns []Turn) string {
	if len(turns) == 0 {
		return "Início da conversa"
	}
	if len(turns) > historyTurns {
		turns = turns[len(turns)-historyTurns:]
	}
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		who := "Assistente"
		if t.Direction == DirectionInbound {
			who = "Cliente"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", who, truncateRunes(t.Text, historySnippet)))
	}
	return strings.Join(parts, " | ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func formatClientContext(p Profile) string {
	var parts []string
	if p.FullName != "" {
		parts = append(parts, "Nome: "+p.FullName)
	}
	if p.Phone != "" {
		parts = append(parts, "Telefone: "+p.Phone)
	}
	if len(parts) == 0 {
		return "Cliente novo"
	}
	return strings.Join(parts, ", ")
}

func formatCollected(p Profile) string {
	var parts []string
	if p.FullName != "" {
		parts = append(parts, "Nome: "+p.FullName)
	}
	if p.Procedure != "" {
		parts = append(parts, "Procedimento: "+p.Procedure)
	}
	if p.DesiredDate != nil {
		parts = append(parts, "Data: "+timeutil.FormatDateBR(*p.DesiredDate))
	}
	if p.DesiredTime != nil {
		parts = append(parts, "Horário: "+timeutil.FormatTimeBR(*p.DesiredTime))
	}
	if p.DesiredWindow != "" {
		parts = append(parts, "Período: "+p.DesiredWindow)
	}
	if len(parts) == 0 {
		return "Nenhum dado coletado ainda"
	}
	return strings.Join(parts, ", ")
}

func formatMissing(p Profile) string {
	var missing []string
	if p.FullName == "" {
		missing = append(missing, "nome")
	}
	if p.Procedure == "" {
		missing = append(missing, "procedimento")
	}
	if p.DesiredDate == nil && p.DesiredWindow == "" {
		missing = append(missing, "preferência de horário")
	}
	if len(missing) == 0 {
		return "Nenhum"
	}
	return strings.Join(missing, ", ")
}

func formatPreference(p Profile) string {
	var parts []string
	if p.DesiredDate != nil {
		parts = append(parts, timeutil.FormatDateBR(*p.DesiredDate))
	}
	if p.DesiredTime != nil {
		parts = append(parts, timeutil.FormatTimeBR(*p.DesiredTime))
	}
	if p.DesiredWindow != "" {
		parts = append(parts, p.DesiredWindow)
	}
	if len(parts) == 0 {
		return "qualquer horário"
	}
	return strings.Join(parts, " ")
}

// resolvePrompt prefers an active stored prompt over the built-in default.
func resolvePrompt(ctx context.Context, src PromptSource, stage Stage) (StagePrompt, error) {
	if src == nil {
		return DefaultStagePrompt(stage), nil
	}
	p, err := src.StagePrompt(ctx, stage)
	if errors.Is(err, ErrNotFound) || (err == nil && !p.Active) {
		return DefaultStagePrompt(stage), nil
	}
	if err != nil {
		return DefaultStagePrompt(stage), err
	}
	return p, nil
}
