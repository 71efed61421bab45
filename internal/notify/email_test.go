package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/odonto-agent/pkg/logging"
)

var clinicSender = SenderConfig{FromEmail: "agenda@sorrisofeliz.com.br", ReplyTo: "recepcao@sorrisofeliz.com.br"}

func bookingMessage() EmailMessage {
	return EmailMessage{
		To:      "maria@example.com",
		ToName:  "Maria Silva",
		Subject: "Consulta confirmada - Maria Silva",
		Body:    "Agendamento confirmado",
		HTML:    "<h2>Agendamento confirmado</h2>",
		Kind:    KindConfirmed,
		EventID: "9f2c0a",
	}
}

func TestNewSendGridSender(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		cfg    SenderConfig
		want   string
	}{
		{name: "missing api key", cfg: clinicSender},
		{name: "missing from address", apiKey: "test-key", cfg: SenderConfig{FromName: "Sorriso Feliz"}},
		{name: "default from name", apiKey: "test-key", cfg: clinicSender, want: defaultFromName},
		{name: "custom from name", apiKey: "test-key", cfg: SenderConfig{FromEmail: "a@b.com", FromName: "Sorriso Feliz"}, want: "Sorriso Feliz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := NewSendGridSender(tt.apiKey, tt.cfg, nil)
			if tt.want == "" {
				assert.Nil(t, sender)
				return
			}
			require.NotNil(t, sender)
			assert.Equal(t, tt.want, sender.cfg.FromName)
		})
	}
}

func TestSendGridMessageCarriesBookingTags(t *testing.T) {
	sender := NewSendGridSender("test-key", clinicSender, nil)
	require.NotNil(t, sender)

	m := sender.message(bookingMessage())

	assert.Equal(t, "agenda@sorrisofeliz.com.br", m.From.Address)
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, "recepcao@sorrisofeliz.com.br", m.ReplyTo.Address)
	assert.Equal(t, []string{"appointment_confirmed"}, m.Categories)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "maria@example.com", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "9f2c0a", m.Personalizations[0].CustomArgs["event_id"])
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
}

func TestSendGridSenderNilClient(t *testing.T) {
	err := (&SendGridSender{}).Send(context.Background(), bookingMessage())
	assert.Error(t, err)
}

func TestStubEmailSenderMasksRecipient(t *testing.T) {
	var buf bytes.Buffer
	sender := NewStubEmailSender(logging.NewWithWriter("info", &buf))

	require.NoError(t, sender.Send(context.Background(), bookingMessage()))
	assert.Contains(t, buf.String(), "m***@example.com")
	assert.NotContains(t, buf.String(), "maria@example.com")
	assert.Contains(t, buf.String(), "appointment_confirmed")
}

func TestMaskAddress(t *testing.T) {
	assert.Equal(t, "m***@example.com", maskAddress("maria@example.com"))
	assert.Equal(t, "***", maskAddress("sem-arroba"))
	assert.Equal(t, "***", maskAddress("@example.com"))
}

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSenderBuildsTaggedMessage(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, clinicSender, nil)
	require.NotNil(t, sender)

	msg := bookingMessage()
	msg.EventID = "evt:9f2c/0a"
	require.NoError(t, sender.Send(context.Background(), msg))
	require.Len(t, api.inputs, 1)
	in := api.inputs[0]
	assert.Equal(t, "Agendamento da Clínica <agenda@sorrisofeliz.com.br>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"maria@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"recepcao@sorrisofeliz.com.br"}, in.ReplyToAddresses)
	assert.Equal(t, "Consulta confirmada - Maria Silva", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "Agendamento confirmado", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.Equal(t, "<h2>Agendamento confirmado</h2>", aws.ToString(in.Content.Simple.Body.Html.Data))
	assert.Equal(t, []types.MessageTag{
		{Name: aws.String("kind"), Value: aws.String("appointment_confirmed")},
		{Name: aws.String("event_id"), Value: aws.String("evt_9f2c_0a")},
	}, in.EmailTags)
}

func TestSESSenderWrapsErrors(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, clinicSender, nil)
	err := sender.Send(context.Background(), bookingMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify: SES appointment_confirmed")
}

func TestNewSESSenderNeedsClientAndFrom(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, clinicSender, nil))
	assert.Nil(t, NewSESSender(&fakeSES{}, SenderConfig{}, nil))
}
