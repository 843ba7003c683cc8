package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Envelope is a fully rendered mail ready for delivery.
type Envelope struct {
	To         []string
	Subject    string
	Text       string
	HTML       string
	Categories []string
}

// Mailer delivers rendered mail. Implementations make a single attempt.
type Mailer interface {
	Send(ctx context.Context, env Envelope) error
}

type sendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig configures the SendGrid mailer.
type SendGridConfig struct {
	APIKey   string
	From     string
	FromName string
	client   sendGridClient
}

// SendGridMailer sends mail through the SendGrid v3 API.
type SendGridMailer struct {
	client sendGridClient
	from   *mail.Email
}

// NewSendGridMailer constructs a SendGrid-backed mailer.
func NewSendGridMailer(cfg SendGridConfig) (*SendGridMailer, error) {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return nil, errors.New("sendgrid mailer: from address is required")
	}
	client := cfg.client
	if client == nil {
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return nil, errors.New("sendgrid mailer: api key is required")
		}
		client = sendgrid.NewSendClient(key)
	}
	return &SendGridMailer{
		client: client,
		from:   mail.NewEmail(strings.TrimSpace(cfg.FromName), from),
	}, nil
}

// Send delivers env to every recipient in a single personalization.
func (m *SendGridMailer) Send(ctx context.Context, env Envelope) error {
	if len(env.To) == 0 {
		return errors.New("sendgrid mailer: at least one recipient is required")
	}

	msg := mail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.Subject = env.Subject
	personalization := mail.NewPersonalization()
	for _, addr := range env.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			personalization.AddTos(mail.NewEmail("", addr))
		}
	}
	msg.AddPersonalizations(personalization)
	if env.Text != "" {
		msg.AddContent(mail.NewContent("text/plain", env.Text))
	}
	if env.HTML != "" {
		msg.AddContent(mail.NewContent("text/html", env.HTML))
	}
	if len(env.Categories) > 0 {
		msg.AddCategories(env.Categories...)
	}

	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid mailer: send: %w", err)
	}
	if resp != nil && resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid mailer: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}

// LogMailer records mail instead of sending it. Used when no provider is configured.
type LogMailer struct {
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger func(ctx context.Context, event string, fields map[string]any)) *LogMailer {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &LogMailer{logger: logger}
}

// Send logs the envelope metadata.
func (m *LogMailer) Send(ctx context.Context, env Envelope) error {
	m.logger(ctx, "mail.skipped", map[string]any{
		"to":         env.To,
		"subject":    env.Subject,
		"categories": env.Categories,
	})
	return nil
}
