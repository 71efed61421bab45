package timeutil

import (
	"fmt"

	"cloud.google.com/go/civil"
)

var weekdayLabels = [7]string{
	"Segunda-feira",
	"Terça-feira",
	"Quarta-feira",
	"Quinta-feira",
	"Sexta-feira",
	"Sábado",
	"Domingo",
}

// WeekdayLabel returns the Portuguese weekday name for d.
func WeekdayLabel(d civil.Date) string {
	return weekdayLabels[MondayIndex(d)]
}

// FormatTimeBR renders HH:MM.
func FormatTimeBR(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// FormatDateBR renders dd/mm/yyyy.
func FormatDateBR(d civil.Date) string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

// SlotLabel renders "dd/mm às HH:MM".
func SlotLabel(d civil.Date, t civil.Time) string {
	return fmt.Sprintf("%02d/%02d às %s", d.Day, int(d.Month), FormatTimeBR(t))
}
