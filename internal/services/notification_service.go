package services

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/3ureka-official/religionne00-sub001/internal/notifications"
)

// MailRenderer renders a named mail template.
type MailRenderer interface {
	Render(name string, locale string, data map[string]any) (notifications.Message, error)
}

// NotificationServiceDeps bundles collaborators required to construct the notification service.
type NotificationServiceDeps struct {
	Renderer        MailRenderer
	Mailer          notifications.Mailer
	AdminRecipients []string
	Locale          string
	AdminOrderURL   string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	renderer MailRenderer
	mailer   notifications.Mailer
	admins   []string
	locale   string
	adminURL string
	logger   func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a NotificationService.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Renderer == nil {
		return nil, errors.New("notification service: renderer is required")
	}
	if deps.Mailer == nil {
		return nil, errors.New("notification service: mailer is required")
	}
	admins := make([]string, 0, len(deps.AdminRecipients))
	for _, addr := range deps.AdminRecipients {
		if addr = strings.TrimSpace(addr); addr != "" {
			admins = append(admins, addr)
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &notificationService{
		renderer: deps.Renderer,
		mailer:   deps.Mailer,
		admins:   admins,
		locale:   strings.TrimSpace(deps.Locale),
		adminURL: strings.TrimRight(strings.TrimSpace(deps.AdminOrderURL), "/"),
		logger:   logger,
	}, nil
}

// OrderCreated sends the customer confirmation and the admin alert
// concurrently. Both sends run to completion; their errors are joined.
func (s *notificationService) OrderCreated(ctx context.Context, order Order) error {
	var confirmErr, alertErr error
	var g errgroup.Group
	g.Go(func() error {
		confirmErr = s.SendConfirmation(ctx, order)
		return nil
	})
	g.Go(func() error {
		alertErr = s.SendAdminAlert(ctx, order)
		return nil
	})
	_ = g.Wait()
	return errors.Join(confirmErr, alertErr)
}

func (s *notificationService) OrderShipped(ctx context.Context, order Order) error {
	return s.SendShipmentNotice(ctx, order)
}

func (s *notificationService) SendConfirmation(ctx context.Context, order Order) error {
	if strings.TrimSpace(order.Email) == "" {
		return &ValidationError{Fields: map[string]string{"email": "order has no customer email"}}
	}
	return s.send(ctx, notifications.TemplateOrderConfirmation, []string{order.Email}, order, nil)
}

func (s *notificationService) SendAdminAlert(ctx context.Context, order Order) error {
	if len(s.admins) == 0 {
		s.logger(ctx, "notifications.admin_alert.skipped", map[string]any{"orderId": order.ID})
		return nil
	}
	extra := map[string]any{}
	if s.adminURL != "" {
		extra["AdminURL"] = s.adminURL + "/" + url.PathEscape(order.ID)
	}
	return s.send(ctx, notifications.TemplateAdminAlert, s.admins, order, extra)
}

func (s *notificationService) SendShipmentNotice(ctx context.Context, order Order) error {
	if strings.TrimSpace(order.Email) == "" {
		return &ValidationError{Fields: map[string]string{"email": "order has no customer email"}}
	}
	return s.send(ctx, notifications.TemplateShipmentNotice, []string{order.Email}, order, nil)
}

func (s *notificationService) send(ctx context.Context, template string, to []string, order Order, extra map[string]any) error {
	data := map[string]any{"Order": order}
	for k, v := range extra {
		data[k] = v
	}
	msg, err := s.renderer.Render(template, s.locale, data)
	if err != nil {
		return err
	}
	err = s.mailer.Send(ctx, notifications.Envelope{
		To:         to,
		Subject:    msg.Subject,
		Text:       msg.Text,
		HTML:       msg.HTML,
		Categories: []string{template},
	})
	fields := map[string]any{
		"orderId":    order.ID,
		"template":   template,
		"recipients": len(to),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "notifications.send.failed", fields)
		return err
	}
	s.logger(ctx, "notifications.sent", fields)
	return nil
}
