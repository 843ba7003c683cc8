package services

import (
	"context"
	"time"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
	"github.com/3ureka-official/religionne00-sub001/internal/payments"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderListFilter    = domain.OrderListFilter
	PaymentMethod      = domain.PaymentMethod
	Address            = domain.Address
	Product            = domain.Product
	SizeStock          = domain.SizeStock
	ProductListFilter  = domain.ProductListFilter
	SalesSummary       = domain.SalesSummary
	SystemHealthReport = domain.SystemHealthReport
)

// CustomerInfo is the contact and shipping data entered at checkout.
type CustomerInfo struct {
	Name    string
	Email   string
	Phone   string
	Address Address
}

// CreateOrderCommand is the checkout request.
type CreateOrderCommand struct {
	Customer      CustomerInfo
	Items         []OrderItem
	PaymentMethod PaymentMethod
}

// CreateOrderResult carries the persisted order and, for wallet payments,
// the URL the customer must be redirected to.
type CreateOrderResult struct {
	Order       Order
	RedirectURL string
}

// RefundResult reports the recorded refund.
type RefundResult struct {
	Order        Order
	RefundAmount int64
}

// OrderLifecycleService drives orders from checkout to shipment or refund.
type OrderLifecycleService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error)
	CreateCardIntent(ctx context.Context, orderID string) (payments.CardIntent, error)
	FinalizeCardPayment(ctx context.Context, orderID string, paymentIntentID string) (Order, error)
	CompleteWalletPayment(ctx context.Context, orderID string) (Order, error)
	TransitionToShipped(ctx context.Context, orderID string) (Order, error)
	Refund(ctx context.Context, orderID string, amount *int64) (RefundResult, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error)
}

// OrderNotifier receives lifecycle notifications. Errors are reported to the
// caller for logging only.
type OrderNotifier interface {
	OrderCreated(ctx context.Context, order Order) error
	OrderShipped(ctx context.Context, order Order) error
}

// NotificationService renders and sends transactional mail.
type NotificationService interface {
	OrderNotifier
	SendConfirmation(ctx context.Context, order Order) error
	SendAdminAlert(ctx context.Context, order Order) error
	SendShipmentNotice(ctx context.Context, order Order) error
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	PreviousStatus string
	CurrentStatus  string
	PaymentMethod  string
	Total          int64
	OccurredAt     time.Time
	Metadata       map[string]string
}

// UpsertProductCommand creates or replaces a product.
type UpsertProductCommand struct {
	ID          string
	Name        string
	Description string
	Price       int64
	PurchaseURL string
	Category    string
	Published   bool
	Recommended bool
	ImageURLs   []string
	Stock       []SizeStock
}

// SignedUpload is a pre-signed PUT target for a product image.
type SignedUpload struct {
	UploadURL string
	PublicURL string
	ObjectKey string
	ExpiresAt time.Time
}

// CatalogService manages products.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	GetProduct(ctx context.Context, productID string, publishedOnly bool) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	ImageUploadURL(ctx context.Context, productID string, contentType string) (SignedUpload, error)
}

// SalesExport identifies a written CSV report.
type SalesExport struct {
	Bucket     string
	ObjectPath string
	Rows       int
}

// SalesService aggregates order revenue for the back office.
type SalesService interface {
	Summary(ctx context.Context, from, to time.Time) (SalesSummary, error)
	Export(ctx context.Context, from, to time.Time) (SalesExport, error)
}

// SystemService reports dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
