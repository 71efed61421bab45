// Package extraction pulls candidate booking fields out of free text and
// gates them through business rules before they reach a client profile.
package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/odonto-agent/internal/timeutil"
)

// Fields holds whatever could be parsed from one message. Zero values mean
// "not mentioned".
type Fields struct {
	FullName  string
	Email     string
	Procedure string
	Date      *civil.Date
	Time      *civil.Time
	Window    string
}

// Empty reports whether nothing was extracted.
func (f Fields) Empty() bool {
	return f.FullName == "" && f.Email == "" && f.Procedure == "" &&
		f.Date == nil && f.Time == nil && f.Window == ""
}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:sou o|sou a|sou)\s+([A-Za-zÀ-ÿ\s]+)`),
	regexp.MustCompile(`(?i)(?:meu nome é|me chamo)\s+([A-Za-zÀ-ÿ\s]+)`),
	regexp.MustCompile(`(?i)(?:é o|é a)\s+([A-Za-zÀ-ÿ\s]+)\s+(?:aqui|falando)`),
	regexp.MustCompile(`(?i)^([A-Za-zÀ-ÿ]+)\s+(?:aqui|falando)`),
}

// nameStopWords end a captured name; "sou a Maria quero marcar" yields "Maria".
var nameStopWords = map[string]bool{
	"quero": true, "queria": true, "gostaria": true, "preciso": true,
	"tenho": true, "aqui": true, "falando": true,
}

var (
	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	explicitDate    = regexp.MustCompile(`\b(\d{1,2})[/\-](\d{1,2})(?:[/\-](\d{2,4}))?\b`)
	explicitTime    = regexp.MustCompile(`\b(\d{1,2})(?:h|:)(\d{0,2})\b`)
	relativeOffsets = []struct {
		token  string
		offset int
	}{
		{"depois de amanhã", 2}, {"depois de amanha", 2},
		{"amanhã", 1}, {"amanha", 1},
		{"hoje", 0},
	}
)

// Extractor parses Portuguese booking messages. It never fails; it returns
// only what it can parse with confidence.
type Extractor struct {
	clock timeutil.Clock
	loc   *time.Location
}

// NewExtractor resolves relative dates against clock in loc.
func NewExtractor(clock timeutil.Clock, loc *time.Location) *Extractor {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{clock: clock, loc: loc}
}

// Extract runs every field extractor over text.
func (e *Extractor) Extract(text string) Fields {
	var f Fields
	f.FullName = ExtractName(text)
	f.Email = emailPattern.FindString(text)
	if code, ok := NormalizeProcedure(text); ok {
		f.Procedure = code
	}
	if d, ok := e.ExtractDate(text); ok {
		f.Date = &d
	}
	if t, ok := ExtractTime(text); ok {
		f.Time = &t
	}
	f.Window = ExtractWindow(text)
	return f
}

// ExtractName finds a self-introduction and returns the capitalized name.
func ExtractName(text string) string {
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		var words []string
		for _, w := range strings.Fields(m[1]) {
			if nameStopWords[strings.ToLower(w)] {
				break
			}
			words = append(words, w)
		}
		for len(words) > 0 && namePrepositions[strings.ToLower(words[len(words)-1])] {
			words = words[:len(words)-1]
		}
		name := titleName(words)
		if n := len([]rune(name)); n >= 2 && n <= 100 {
			return name
		}
	}
	return ""
}

// ExtractDate recognizes relative words, weekday names and dd/mm[/yy[yy]].
// Only today or later dates are returned.
func (e *Extractor) ExtractDate(text string) (civil.Date, bool) {
	lower := strings.ToLower(text)
	today := timeutil.Today(e.clock, e.loc)

	for _, rel := range relativeOffsets {
		if strings.Contains(lower, rel.token) {
			return today.AddDays(rel.offset), true
		}
	}

	// Three-letter abbreviations collide with common words ("ter", "qua").
	for _, tok := range tokenize(lower) {
		if len([]rune(tok)) <= 3 {
			continue
		}
		if idx, ok := timeutil.WeekdayIndex[tok]; ok {
			return timeutil.NextWeekday(today, idx), true
		}
	}

	if m := explicitDate.FindStringSubmatch(text); m != nil {
		spec := fmt.Sprintf("%s/%s", m[1], m[2])
		if m[3] != "" {
			year, _ := strconv.Atoi(m[3])
			if year < 100 {
				year += 2000
			}
			spec = fmt.Sprintf("%s/%04d", spec, year)
		}
		d, ok := timeutil.ParseDate(spec, today)
		if ok && !d.Before(today) {
			return d, true
		}
	}
	return civil.Date{}, false
}

// ExtractTime recognizes "14h", "14h30", "14:30" and "meio-dia". A bare
// morning-looking hour is moved to the afternoon when the text says
// "tarde" or "noite".
func ExtractTime(text string) (civil.Time, bool) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "meio-dia") || strings.Contains(lower, "meio dia") {
		return civil.Time{Hour: 12}, true
	}
	m := explicitTime.FindStringSubmatch(text)
	if m == nil {
		return civil.Time{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour < 12 && (strings.Contains(lower, "tarde") || strings.Contains(lower, "noite")) {
		hour += 12
	}
	t := civil.Time{Hour: hour, Minute: minute}
	if !t.IsValid() {
		return civil.Time{}, false
	}
	return t, true
}

// ExtractWindow returns the canonical window label mentioned in text.
// Phrases match on whole words so "amanhã" does not read as "manhã".
func ExtractWindow(text string) string {
	normalized := " " + strings.Join(tokenize(strings.ToLower(text)), " ") + " "
	for _, w := range windowPhrases {
		if strings.Contains(normalized, " "+w.phrase+" ") {
			return w.label
		}
	}
	return ""
}

func tokenize(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})
}

func capitalize(word string) string {
	runes := []rune(strings.ToLower(word))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
