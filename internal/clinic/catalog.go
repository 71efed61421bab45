// Package clinic describes what the clinic offers and when it is open:
// the procedure catalog and weekly business hours.
package clinic

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
)

// ErrNotFound is returned when a procedure code or weekday has no entry.
var ErrNotFound = errors.New("clinic: not found")

// DefaultDurationMin and DefaultProcedureName apply when a procedure code
// is missing from the catalog.
const (
	DefaultDurationMin   = 45
	DefaultProcedureName = "Consulta"
)

// Procedure is one catalog entry.
type Procedure struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	DurationMin int    `json:"duration_min"`
	Active      bool   `json:"active"`
}

// DayHours holds opening hours for one weekday (Monday=0 … Sunday=6).
// Open and Close are meaningless when Closed is set.
type DayHours struct {
	Weekday int        `json:"weekday"`
	Open    civil.Time `json:"open_time"`
	Close   civil.Time `json:"close_time"`
	Closed  bool       `json:"closed"`
}

// Source reads the catalog and business hours. Both are admin-managed and
// read-only to the scheduling flow.
type Source interface {
	Procedure(ctx context.Context, code string) (Procedure, error)
	Procedures(ctx context.Context) ([]Procedure, error)
	BusinessHours(ctx context.Context, weekday int) (DayHours, error)
}

// DefaultProcedures is the seeded catalog, in keyword-matching priority order.
func DefaultProcedures() []Procedure {
	return []Procedure{
		{Code: "limpeza", Name: "Limpeza", DurationMin: 30, Active: true},
		{Code: "consulta", Name: "Consulta", DurationMin: 45, Active: true},
		{Code: "avaliacao", Name: "Avaliação", DurationMin: 30, Active: true},
		{Code: "ortodontia", Name: "Ortodontia", DurationMin: 60, Active: true},
		{Code: "restauracao", Name: "Restauração", DurationMin: 45, Active: true},
		{Code: "canal", Name: "Tratamento de Canal", DurationMin: 90, Active: true},
		{Code: "extracao", Name: "Extração", DurationMin: 60, Active: true},
		{Code: "clareamento", Name: "Clareamento", DurationMin: 60, Active: true},
		{Code: "implante", Name: "Implante", DurationMin: 120, Active: true},
	}
}

// ProcedureCodes returns the codes of DefaultProcedures.
func ProcedureCodes() []string {
	procs := DefaultProcedures()
	codes := make([]string, 0, len(procs))
	for _, p := range procs {
		codes = append(codes, p.Code)
	}
	return codes
}

// DefaultBusinessHours is Mon–Fri 08:00–18:00, Sat 08:00–12:00, Sun closed.
func DefaultBusinessHours() []DayHours {
	hours := make([]DayHours, 0, 7)
	for wd := 0; wd < 5; wd++ {
		hours = append(hours, DayHours{Weekday: wd, Open: civil.Time{Hour: 8}, Close: civil.Time{Hour: 18}})
	}
	hours = append(hours,
		DayHours{Weekday: 5, Open: civil.Time{Hour: 8}, Close: civil.Time{Hour: 12}},
		DayHours{Weekday: 6, Closed: true},
	)
	return hours
}

// ResolveProcedure looks code up in src, falling back to the default
// duration and name when it is unknown or inactive.
func ResolveProcedure(ctx context.Context, src Source, code string) (Procedure, error) {
	fallback := Procedure{Code: code, Name: DefaultProcedureName, DurationMin: DefaultDurationMin}
	if src == nil || code == "" {
		return fallback, nil
	}
	p, err := src.Procedure(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	if !p.Active || p.DurationMin <= 0 {
		return fallback, nil
	}
	return p, nil
}
