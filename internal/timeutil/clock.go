// Package timeutil holds the date, time and business-day helpers shared by
// extraction, availability and the conversation engine.
package timeutil

import (
	"time"

	"cloud.google.com/go/civil"
)

// Clock supplies the current instant. Components take a Clock instead of
// calling time.Now so date-relative rules can be pinned in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// Today returns the calendar date of clock's current instant in loc.
func Today(clock Clock, loc *time.Location) civil.Date {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(clock.Now().In(loc))
}

// LoadLocation resolves an IANA zone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Combine builds the instant for a local date and wall-clock time in loc.
func Combine(d civil.Date, t civil.Time, loc *time.Location) time.Time {
	return civil.DateTime{Date: d, Time: t}.In(loc)
}

// MondayIndex numbers weekdays Monday=0 through Sunday=6.
func MondayIndex(d civil.Date) int {
	return (int(d.Weekday()) + 6) % 7
}

// IsBusinessDay reports whether d is Monday through Saturday. Per-day
// closures configured in business hours are not consulted.
func IsBusinessDay(d civil.Date) bool {
	return MondayIndex(d) < 6
}

// NextBusinessDay returns the first business day strictly after d.
func NextBusinessDay(d civil.Date) civil.Date {
	next := d.AddDays(1)
	for !IsBusinessDay(next) {
		next = next.AddDays(1)
	}
	return next
}

// MinuteOfDay returns t as minutes past midnight.
func MinuteOfDay(t civil.Time) int {
	return t.Hour*60 + t.Minute
}

// TimeAt converts minutes past midnight back to a wall-clock time.
func TimeAt(minutes int) civil.Time {
	return civil.Time{Hour: minutes / 60, Minute: minutes % 60}
}
