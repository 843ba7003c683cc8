package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3ureka-official/religionne00-sub001/internal/notifications"
	"github.com/3ureka-official/religionne00-sub001/internal/payments"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/config"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/observability"
	"github.com/3ureka-official/religionne00-sub001/internal/repositories"
	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

// Infrastructure bundles the clients and adapters built at startup. Only
// Orders and Products are mandatory; every other field degrades the matching
// feature when nil.
type Infrastructure struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Health   repositories.HealthRepository

	Card   payments.CardGateway
	Wallet payments.WalletGateway

	Mailer   notifications.Mailer
	Renderer services.MailRenderer
	Events   services.OrderEventPublisher

	CatalogCache services.CatalogCache
	ImageSigner  services.ImageUploadSigner
	ReportWriter services.ReportWriter

	Build  services.BuildInfo
	Clock  func() time.Time
	Logger *zap.Logger
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders        services.OrderLifecycleService
	Catalog       services.CatalogService
	Sales         services.SalesService
	Notifications services.NotificationService
	System        services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config   config.Config
	Services Services

	closers []func(context.Context) error
}

// NewContainer constructs the runtime services from cfg and infra.
func NewContainer(_ context.Context, cfg config.Config, infra Infrastructure) (*Container, error) {
	if infra.Orders == nil {
		return nil, errors.New("di: order repository is required")
	}
	if infra.Products == nil {
		return nil, errors.New("di: product repository is required")
	}

	svc, err := buildServices(cfg, infra)
	if err != nil {
		return nil, err
	}
	return &Container{Config: cfg, Services: svc}, nil
}

// OnClose registers a release hook. Hooks run in reverse registration order.
func (c *Container) OnClose(fn func(context.Context) error) {
	if c == nil || fn == nil {
		return
	}
	c.closers = append(c.closers, fn)
}

// Close releases resources registered through OnClose.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func buildServices(cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	if infra.Renderer != nil && infra.Mailer != nil {
		notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
			Renderer:        infra.Renderer,
			Mailer:          infra.Mailer,
			AdminRecipients: cfg.Mail.AdminRecipients,
			Locale:          cfg.Mail.DefaultLocale,
			AdminOrderURL:   adminOrderURL(cfg),
			Logger:          observability.EventLogger(logger.Named("notifications")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification service: %w", err)
		}
		svc.Notifications = notificationSvc
	}

	deps := services.OrderLifecycleDeps{
		Orders:   infra.Orders,
		Products: infra.Products,
		Card:     infra.Card,
		Wallet:   infra.Wallet,
		Events:   infra.Events,
		Config: services.OrderLifecycleConfig{
			Shipping: services.ShippingRules{
				FreeShippingThreshold: cfg.Shipping.FreeShippingThreshold,
				DomesticFee:           cfg.Shipping.DomesticFee,
				IslandFee:             cfg.Shipping.IslandFee,
				IslandPrefectures:     cfg.Shipping.IslandPrefectures,
			},
			WalletRedirectURL: cfg.PayPay.RedirectURL,
		},
		Clock:  clock,
		Logger: observability.EventLogger(logger.Named("orders")),
	}
	if svc.Notifications != nil {
		deps.Notifier = svc.Notifications
	}
	orderSvc, err := services.NewOrderLifecycle(deps)
	if err != nil {
		return Services{}, fmt.Errorf("build order lifecycle: %w", err)
	}
	svc.Orders = orderSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:    infra.Products,
		Cache:       infra.CatalogCache,
		Images:      infra.ImageSigner,
		ImageBucket: cfg.Storage.ProductImagesBucket,
		Clock:       clock,
		Logger:      observability.EventLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	salesSvc, err := services.NewSalesService(services.SalesServiceDeps{
		Orders:       infra.Orders,
		Writer:       infra.ReportWriter,
		ExportBucket: cfg.Storage.ExportsBucket,
		Logger:       observability.EventLogger(logger.Named("sales")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build sales service: %w", err)
	}
	svc.Sales = salesSvc

	if infra.Health != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: infra.Health,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func adminOrderURL(cfg config.Config) string {
	if cfg.Storefront.BaseURL == "" {
		return ""
	}
	return cfg.Storefront.BaseURL + "/admin/orders"
}
