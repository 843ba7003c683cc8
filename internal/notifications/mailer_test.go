package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/require"
)

type stubSendGrid struct {
	sent *mail.SGMailV3
	resp *rest.Response
	err  error
}

func (s *stubSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	s.sent = email
	return s.resp, s.err
}

func TestSendGridMailerBuildsMessage(t *testing.T) {
	t.Parallel()

	client := &stubSendGrid{resp: &rest.Response{StatusCode: 202}}
	m, err := NewSendGridMailer(SendGridConfig{From: "shop@example.com", FromName: "Religionne00", client: client})
	require.NoError(t, err)

	err = m.Send(context.Background(), Envelope{
		To:         []string{"a@example.com", " ", "b@example.com"},
		Subject:    "hello",
		Text:       "plain",
		HTML:       "<p>html</p>",
		Categories: []string{"order_confirmation"},
	})
	require.NoError(t, err)

	require.NotNil(t, client.sent)
	require.Equal(t, "hello", client.sent.Subject)
	require.Equal(t, "shop@example.com", client.sent.From.Address)
	require.Len(t, client.sent.Personalizations, 1)
	require.Len(t, client.sent.Personalizations[0].To, 2)
	require.Len(t, client.sent.Content, 2)
	require.Equal(t, "text/plain", client.sent.Content[0].Type)
	require.Equal(t, []string{"order_confirmation"}, client.sent.Categories)
}

func TestSendGridMailerErrors(t *testing.T) {
	t.Parallel()

	client := &stubSendGrid{resp: &rest.Response{StatusCode: 401, Body: "unauthorized"}}
	m, err := NewSendGridMailer(SendGridConfig{From: "shop@example.com", client: client})
	require.NoError(t, err)

	err = m.Send(context.Background(), Envelope{To: []string{"a@example.com"}, Subject: "x", Text: "y"})
	require.ErrorContains(t, err, "401")

	client.err = errors.New("dial tcp: timeout")
	err = m.Send(context.Background(), Envelope{To: []string{"a@example.com"}, Subject: "x", Text: "y"})
	require.ErrorContains(t, err, "timeout")

	err = m.Send(context.Background(), Envelope{Subject: "x"})
	require.Error(t, err)
}

func TestNewSendGridMailerRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewSendGridMailer(SendGridConfig{From: "shop@example.com"})
	require.Error(t, err)
	_, err = NewSendGridMailer(SendGridConfig{APIKey: "SG.x"})
	require.Error(t, err)
}

func TestLogMailerRecords(t *testing.T) {
	t.Parallel()

	var events []string
	m := NewLogMailer(func(_ context.Context, event string, _ map[string]any) {
		events = append(events, event)
	})
	require.NoError(t, m.Send(context.Background(), Envelope{To: []string{"a@example.com"}}))
	require.Equal(t, []string{"mail.skipped"}, events)
}
