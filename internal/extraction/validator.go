package extraction

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/odonto-agent/internal/timeutil"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// MaxAdvanceDays bounds how far ahead a desired date may be.
const MaxAdvanceDays = 90

var namePrepositions = map[string]bool{"de": true, "da": true, "do": true, "dos": true, "das": true, "e": true}

// Validator drops or normalizes extracted fields that break business rules.
type Validator struct {
	clock  timeutil.Clock
	loc    *time.Location
	codes  map[string]bool
	open   civil.Time
	close  civil.Time
	logger *logging.Logger
}

// NewValidator accepts procedures from codes and desired times within
// [08:00, 18:00).
func NewValidator(clock timeutil.Clock, loc *time.Location, codes []string, logger *logging.Logger) *Validator {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return &Validator{
		clock:  clock,
		loc:    loc,
		codes:  set,
		open:   civil.Time{Hour: 8},
		close:  civil.Time{Hour: 18},
		logger: logger,
	}
}

// Validate returns f with every invalid field cleared.
func (v *Validator) Validate(f Fields) Fields {
	var out Fields
	if f.Email != "" {
		if email, ok := ValidateEmail(f.Email); ok {
			out.Email = email
		} else {
			v.logger.Debug("rejected email", "email", f.Email)
		}
	}
	if f.FullName != "" {
		if name, ok := ValidateName(f.FullName); ok {
			out.FullName = name
		} else {
			v.logger.Debug("rejected name", "name", f.FullName)
		}
	}
	if f.Procedure != "" && v.codes[f.Procedure] {
		out.Procedure = f.Procedure
	}
	if f.Date != nil {
		if d, ok := v.ValidateDate(*f.Date); ok {
			out.Date = &d
		} else {
			v.logger.Debug("rejected date", "date", f.Date.String())
		}
	}
	if f.Time != nil {
		if t, ok := v.ValidateTime(*f.Time); ok {
			out.Time = &t
		} else {
			v.logger.Debug("rejected time", "time", f.Time.String())
		}
	}
	if f.Window != "" {
		if w, ok := timeutil.CanonicalWindow(f.Window); ok {
			out.Window = w
		}
	}
	return out
}

// ValidateName accepts 2 to 100 letters and spaces and title-cases the result,
// keeping connecting prepositions lowercase.
func ValidateName(name string) (string, bool) {
	words := strings.Fields(name)
	joined := strings.Join(words, " ")
	if n := len([]rune(joined)); n < 2 || n > 100 {
		return "", false
	}
	for _, r := range joined {
		if r != ' ' && !unicode.IsLetter(r) {
			return "", false
		}
	}
	return titleName(words), true
}

func titleName(words []string) string {
	out := make([]string, len(words))
	for i, w := range words {
		lower := strings.ToLower(w)
		if i > 0 && namePrepositions[lower] {
			out[i] = lower
			continue
		}
		out[i] = capitalize(w)
	}
	return strings.Join(out, " ")
}

// ValidateDate accepts today through today+MaxAdvanceDays.
func (v *Validator) ValidateDate(d civil.Date) (civil.Date, bool) {
	today := timeutil.Today(v.clock, v.loc)
	if !d.IsValid() || d.Before(today) || today.AddDays(MaxAdvanceDays).Before(d) {
		return civil.Date{}, false
	}
	return d, true
}

// ValidateTime accepts times inside business hours, rounding up to the next
// half hour. A time that rounds onto or past closing is rejected.
func (v *Validator) ValidateTime(t civil.Time) (civil.Time, bool) {
	if !t.IsValid() {
		return civil.Time{}, false
	}
	m := timeutil.MinuteOfDay(t)
	if m < timeutil.MinuteOfDay(v.open) {
		return civil.Time{}, false
	}
	if m%30 != 0 {
		m += 30 - m%30
	}
	if m >= timeutil.MinuteOfDay(v.close) {
		return civil.Time{}, false
	}
	return timeutil.TimeAt(m), true
}

var emailExact = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9\-]+(\.[a-z0-9\-]+)*\.[a-z]{2,}$`)

// ValidateEmail lowercases raw and accepts it when it is a plain address of at
// most 254 characters.
func ValidateEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if len(email) > 254 || !emailExact.MatchString(email) {
		return "", false
	}
	return email, true
}
