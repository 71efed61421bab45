package conversation

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/odonto-agent/internal/extraction"
)

func TestDecodeProfileEmpty(t *testing.T) {
	for _, raw := range []string{"", "null"} {
		p, err := DecodeProfile([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, NewProfile(), p)
	}
}

func TestDecodeProfileUpgradesLegacy(t *testing.T) {
	raw := `{"full_name":"Maria Silva","procedure":"limpeza","desired_date":"2026-10-20",
		"proposed_slots":[{"date":"2026-10-20","start_time":"09:00:00","end_time":"09:30:00","formatted":"20/10 às 09:00"},
		{"date":"2026-10-20","start_time":"10:00:00","end_time":"10:30:00"}]}`

	p, err := DecodeProfile([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, ProfileVersion, p.Version)
	assert.Equal(t, "Maria Silva", p.FullName)
	require.NotNil(t, p.DesiredDate)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.October, Day: 20}, *p.DesiredDate)
	require.Len(t, p.ProposedSlots, 2)
	assert.Equal(t, "20/10 às 09:00", p.ProposedSlots[0].Label)
	assert.Equal(t, "20/10 às 10:00", p.ProposedSlots[1].Label)
	assert.Equal(t, "Terça-feira", p.ProposedSlots[1].Weekday)
}

func TestDecodeProfileRejectsNewerVersion(t *testing.T) {
	_, err := DecodeProfile([]byte(`{"version":2,"full_name":"Maria"}`))
	assert.ErrorIs(t, err, ErrProfileVersion)
}

func TestProfileRoundTrip(t *testing.T) {
	d := civil.Date{Year: 2026, Month: time.October, Day: 20}
	tm := civil.Time{Hour: 15}
	in := Profile{FullName: "Maria Silva", Procedure: "canal", DesiredDate: &d, DesiredTime: &tm, ProposedSlots: proposed(9)}

	data, err := in.Encode()
	require.NoError(t, err)
	out, err := DecodeProfile(data)
	require.NoError(t, err)

	in.Version = ProfileVersion
	assert.Equal(t, in, out)
}

func TestMergeIsMonotonic(t *testing.T) {
	d := civil.Date{Year: 2026, Month: time.October, Day: 20}
	p := Profile{FullName: "Maria Silva", Procedure: "limpeza", DesiredWindow: "manhã"}

	p.Merge(extraction.Fields{})
	assert.Equal(t, "Maria Silva", p.FullName)
	assert.Equal(t, "limpeza", p.Procedure)

	p.Merge(extraction.Fields{Procedure: "canal", Date: &d, Window: "tarde"})
	assert.Equal(t, "Maria Silva", p.FullName)
	assert.Equal(t, "canal", p.Procedure)
	assert.Equal(t, "tarde", p.DesiredWindow)
	require.NotNil(t, p.DesiredDate)

	d = d.AddDays(1)
	assert.Equal(t, 20, p.DesiredDate.Day, "merge must copy, not alias")
}

func TestResetBookingKeepsIdentity(t *testing.T) {
	d := civil.Date{Year: 2026, Month: time.October, Day: 20}
	p := Profile{FullName: "Maria Silva", Email: "m@example.com", Phone: "+55", Procedure: "canal", DesiredDate: &d, ProposedSlots: proposed(9)}
	p.ResetBooking()
	assert.Equal(t, Profile{FullName: "Maria Silva", Email: "m@example.com", Phone: "+55"}, p)
}

func TestMissingField(t *testing.T) {
	assert.Equal(t, "nome", Profile{Procedure: "limpeza"}.MissingField())
	assert.Equal(t, "procedimento", Profile{FullName: "Ana Lima"}.MissingField())
	assert.Equal(t, "", Profile{FullName: "Ana Lima", Procedure: "limpeza"}.MissingField())
}
