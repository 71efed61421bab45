package timeutil

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-10-14 is a Wednesday.
var wednesday = civil.Date{Year: 2026, Month: time.October, Day: 14}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want civil.Date
		ok   bool
	}{
		{"20/10/2026", civil.Date{Year: 2026, Month: 10, Day: 20}, true},
		{"20/10/27", civil.Date{Year: 2027, Month: 10, Day: 20}, true},
		{"20/10", civil.Date{Year: 2026, Month: 10, Day: 20}, true},
		{"02/01", civil.Date{Year: 2027, Month: 1, Day: 2}, true}, // already passed this year
		{"14/10", wednesday, true},                                 // today does not roll
		{"2026-12-01", civil.Date{Year: 2026, Month: 12, Day: 1}, true},
		{"05-11-2026", civil.Date{Year: 2026, Month: 11, Day: 5}, true},
		{"05-11-26", civil.Date{Year: 2026, Month: 11, Day: 5}, true},
		{"31/02/2026", civil.Date{}, false},
		{"amanhã", civil.Date{}, false},
		{"", civil.Date{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in, wednesday)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want civil.Time
		ok   bool
	}{
		{"14:30", civil.Time{Hour: 14, Minute: 30}, true},
		{"09:15:20", civil.Time{Hour: 9, Minute: 15, Second: 20}, true},
		{"14h30", civil.Time{Hour: 14, Minute: 30}, true},
		{"14 h 30", civil.Time{Hour: 14, Minute: 30}, true},
		{"14h", civil.Time{Hour: 14}, true},
		{"14hs", civil.Time{Hour: 14}, true},
		{"9hrs", civil.Time{Hour: 9}, true},
		{"1430", civil.Time{Hour: 14, Minute: 30}, true},
		{"930", civil.Time{Hour: 9, Minute: 30}, true},
		{"8", civil.Time{Hour: 8}, true},
		{"23", civil.Time{Hour: 23}, true},
		{"24", civil.Time{}, false},
		{"25:00", civil.Time{}, false},
		{"tarde", civil.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRelativeDateTomorrowForAnyCallTime(t *testing.T) {
	start := civil.Date{Year: 2026, Month: time.January, Day: 1}
	for i := 0; i < 400; i++ {
		today := start.AddDays(i)
		got, ok := ParseRelativeDate("amanhã", today)
		require.True(t, ok)
		require.Equal(t, today.AddDays(1), got, "today=%s", today)
	}
}

func TestParseRelativeDateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want civil.Date
	}{
		{"hoje", wednesday},
		{"HJ", wednesday},
		{"amanha", wednesday.AddDays(1)},
		{"depois de amanhã", wednesday.AddDays(2)},
		{"sexta", wednesday.AddDays(2)},
		{"próxima segunda", wednesday.AddDays(5)},
		{"terça-feira", wednesday.AddDays(6)},
		{"domingo", wednesday.AddDays(4)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRelativeDate(tt.in, wednesday)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := ParseRelativeDate("semana que vem", wednesday)
	assert.False(t, ok)
}

func TestParseRelativeDateSameWeekdayIsNextWeek(t *testing.T) {
	names := []string{"segunda", "terça", "quarta", "quinta", "sexta", "sábado", "domingo"}
	monday := civil.Date{Year: 2026, Month: time.October, Day: 19}
	for i, name := range names {
		today := monday.AddDays(i)
		got, ok := ParseRelativeDate(name, today)
		require.True(t, ok)
		assert.Equal(t, today.AddDays(7), got, "%s on %s", name, today)
	}
}
