package extraction

import "strings"

type synonymGroup struct {
	code     string
	keywords []string
}

// procedureSynonyms maps free-text keywords to catalog codes. Order matters:
// the first group with a matching keyword wins.
var procedureSynonyms = []synonymGroup{
	{"limpeza", []string{"limpeza", "limpar", "profilaxia"}},
	{"consulta", []string{"consulta", "consultar", "avaliação inicial"}},
	{"avaliacao", []string{"avaliação", "avaliacao", "avaliar", "checkup", "check-up", "exame"}},
	{"ortodontia", []string{"ortodontia", "aparelho", "ortodôntico", "brackets"}},
	{"restauracao", []string{"restauração", "restauracao", "restaurar", "obturação", "obturacao", "cárie"}},
	{"canal", []string{"canal", "endodontia", "tratamento de canal"}},
	{"extracao", []string{"extração", "extracao", "extrair", "arrancar", "tirar dente"}},
	{"clareamento", []string{"clareamento", "clarear", "branqueamento"}},
	{"implante", []string{"implante", "implantar", "prótese"}},
}

var (
	bookingKeywords    = []string{"agendar", "marcar", "consulta", "horário"}
	cancelKeywords     = []string{"cancelar", "cancela", "desmarcar"}
	rescheduleKeywords = []string{"remarcar", "reagendar", "mudar", "trocar"}
	affirmKeywords     = []string{"sim", "ok", "okay", "confirma", "confirmo", "isso", "perfeito", "claro", "beleza", "fechado"}
	affirmPhrases      = [][]string{{"pode", "ser"}, {"pode", "marcar"}, {"pode", "agendar"}}
)

// refusalTokens veto a yes: a negation or a request for another option.
var refusalTokens = map[string]bool{
	"não": true, "nao": true, "nenhum": true, "nenhuma": true, "nem": true,
	"nunca": true, "outro": true, "outra": true,
}

// windowPhrases maps window mentions to canonical labels, longest first so
// "de manhã" is preferred over a bare "manhã".
var windowPhrases = []struct {
	phrase string
	label  string
}{
	{"pela manhã", "manhã"}, {"de manhã", "manhã"}, {"manhã", "manhã"}, {"manha", "manhã"},
	{"de tarde", "tarde"}, {"à tarde", "tarde"}, {"a tarde", "tarde"}, {"tarde", "tarde"},
	{"de noite", "noite"}, {"à noite", "noite"}, {"a noite", "noite"}, {"noite", "noite"},
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// NormalizeProcedure maps text mentioning a procedure to its catalog code.
func NormalizeProcedure(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, group := range procedureSynonyms {
		if containsAny(lower, group.keywords) {
			return group.code, true
		}
	}
	return "", false
}

// HasBookingIntent reports whether text asks to book.
func HasBookingIntent(text string) bool {
	return containsAny(strings.ToLower(text), bookingKeywords)
}

// IsCancellation reports whether text asks to cancel.
func IsCancellation(text string) bool {
	return containsAny(strings.ToLower(text), cancelKeywords)
}

// IsReschedule reports whether text asks to move an appointment.
func IsReschedule(text string) bool {
	return containsAny(strings.ToLower(text), rescheduleKeywords)
}

// IsAffirmative reports whether text is a generic yes. Keywords must be whole
// words, and any refusal word in the message makes it a no.
func IsAffirmative(text string) bool {
	tokens := tokenize(strings.ToLower(text))
	for _, tok := range tokens {
		if refusalTokens[tok] {
			return false
		}
	}
	for i, tok := range tokens {
		for _, w := range affirmKeywords {
			if tok == w {
				return true
			}
		}
		for _, phrase := range affirmPhrases {
			if i+len(phrase) <= len(tokens) && equalTokens(tokens[i:i+len(phrase)], phrase) {
				return true
			}
		}
	}
	return false
}

func equalTokens(a, b []string) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
