package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// Page wraps a slice of results with the token for the following page.
type Page[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order is persisted but payment is not confirmed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid indicates payment succeeded or the order is cash on delivery.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusRefunded indicates the order was refunded in full or in part.
	OrderStatusRefunded OrderStatus = "refunded"
)

// Valid reports whether the status is one of the known states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusRefunded:
		return true
	}
	return false
}

// PaymentMethod enumerates how the customer pays.
type PaymentMethod string

const (
	// PaymentMethodCard is a Stripe card payment.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodWallet is a PayPay wallet payment.
	PaymentMethodWallet PaymentMethod = "wallet"
	// PaymentMethodCOD is cash on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
)

// Valid reports whether the method is supported.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodWallet, PaymentMethodCOD:
		return true
	}
	return false
}

// UsesGateway reports whether the method settles through an external gateway.
func (m PaymentMethod) UsesGateway() bool {
	return m == PaymentMethodCard || m == PaymentMethodWallet
}

// Address is a Japanese shipping address.
type Address struct {
	PostalCode string
	Prefecture string
	City       string
	Line1      string
	Line2      string
}

// OrderItem is one purchased product line.
type OrderItem struct {
	ProductID string
	Name      string
	Price     int64
	Quantity  int
	Size      string
}

// Checkout bounds. With these limits an order total stays far below the
// int64 range.
const (
	MaxUnitPrice    int64 = 10_000_000
	MaxLineQuantity       = 99
	MaxOrderLines         = 50
)

// LineTotal returns price times quantity.
func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// Order is the persisted purchase record. Amounts are in yen.
type Order struct {
	ID                string
	Customer          string
	Email             string
	Phone             string
	Items             []OrderItem
	Address           Address
	PaymentMethod     PaymentMethod
	Subtotal          int64
	ShippingFee       int64
	Total             int64
	Status            OrderStatus
	PaymentIntentID   string
	MerchantPaymentID string
	RefundedAmount    *int64
	RefundID          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            *time.Time
	ShippedDate       *time.Time
	RefundedAt        *time.Time
	Version           int64
}

// ItemCount sums the quantities of all lines.
func (o Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}

// HasRefund reports whether a refund amount has been recorded.
func (o Order) HasRefund() bool {
	return o.RefundedAmount != nil
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Status     []OrderStatus
	CreatedGTE *time.Time
	CreatedLT  *time.Time
	Pagination Pagination
}

// SizeStock is the stock level for one size label.
type SizeStock struct {
	Size     string
	Quantity int
}

// Product is a catalog entry managed in the back office.
type Product struct {
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
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TotalStock sums stock over all sizes.
func (p Product) TotalStock() int {
	total := 0
	for _, s := range p.Stock {
		total += s.Quantity
	}
	return total
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category        string
	PublishedOnly   bool
	RecommendedOnly bool
}

// HealthStatus summarises dependency health.
type HealthStatus string

const (
	// HealthStatusOK indicates the dependency responded normally.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded indicates the dependency returned an error.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError indicates the dependency timed out or was cancelled.
	HealthStatusError HealthStatus = "error"
)

func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusOK, "":
		return 0
	case HealthStatusError:
		return 2
	default:
		return 1
	}
}

// WorstHealth returns the most severe status among checks, or ok when there
// are none. Unknown statuses count as degraded.
func WorstHealth(checks map[string]SystemHealthCheck) HealthStatus {
	worst := HealthStatusOK
	for _, check := range checks {
		if check.Status.severity() > worst.severity() {
			worst = check.Status
			if worst != HealthStatusError {
				worst = HealthStatusDegraded
			}
		}
	}
	return worst
}

// SystemHealthCheck is the outcome of one dependency probe.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates every dependency probe.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
