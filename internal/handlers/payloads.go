package handlers

import (
	"strings"
	"time"

	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

type addressPayload struct {
	PostalCode string `json:"postalCode"`
	Prefecture string `json:"prefecture"`
	City       string `json:"city"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

type orderPayload struct {
	ID                string             `json:"id"`
	Customer          string             `json:"customer"`
	Email             string             `json:"email"`
	Phone             string             `json:"phone"`
	Items             []orderItemPayload `json:"items"`
	Address           addressPayload     `json:"address"`
	PaymentMethod     string             `json:"paymentMethod"`
	Subtotal          int64              `json:"subtotal"`
	ShippingFee       int64              `json:"shippingFee"`
	Total             int64              `json:"total"`
	Status            string             `json:"status"`
	PaymentIntentID   string             `json:"paymentIntentId,omitempty"`
	MerchantPaymentID string             `json:"merchantPaymentId,omitempty"`
	RefundedAmount    *int64             `json:"refundedAmount,omitempty"`
	RefundID          string             `json:"refundId,omitempty"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt,omitempty"`
	PaidAt            string             `json:"paidAt,omitempty"`
	ShippedDate       string             `json:"shippedDate,omitempty"`
	RefundedAt        string             `json:"refundedAt,omitempty"`
}

func newOrderPayload(o services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemPayload(item))
	}
	return orderPayload{
		ID:                o.ID,
		Customer:          o.Customer,
		Email:             o.Email,
		Phone:             o.Phone,
		Items:             items,
		Address:           addressPayload(o.Address),
		PaymentMethod:     string(o.PaymentMethod),
		Subtotal:          o.Subtotal,
		ShippingFee:       o.ShippingFee,
		Total:             o.Total,
		Status:            string(o.Status),
		PaymentIntentID:   o.PaymentIntentID,
		MerchantPaymentID: o.MerchantPaymentID,
		RefundedAmount:    o.RefundedAmount,
		RefundID:          o.RefundID,
		CreatedAt:         formatTime(o.CreatedAt),
		UpdatedAt:         formatTime(o.UpdatedAt),
		PaidAt:            formatTimePtr(o.PaidAt),
		ShippedDate:       formatTimePtr(o.ShippedDate),
		RefundedAt:        formatTimePtr(o.RefundedAt),
	}
}

// toOrder converts an inline order body, as sent by the storefront with the
// email triggers, into the domain model.
func (p orderPayload) toOrder() services.Order {
	items := make([]services.OrderItem, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, services.OrderItem(item))
	}
	order := services.Order{
		ID:            strings.TrimSpace(p.ID),
		Customer:      p.Customer,
		Email:         p.Email,
		Phone:         p.Phone,
		Items:         items,
		Address:       services.Address(p.Address),
		PaymentMethod: services.PaymentMethod(p.PaymentMethod),
		Subtotal:      p.Subtotal,
		ShippingFee:   p.ShippingFee,
		Total:         p.Total,
		Status:        services.OrderStatus(p.Status),
	}
	order.CreatedAt, _ = time.Parse(time.RFC3339, p.CreatedAt)
	return order
}

type sizeStockPayload struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

type productPayload struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Price       int64              `json:"price"`
	PurchaseURL string             `json:"purchaseUrl,omitempty"`
	Category    string             `json:"category"`
	Published   bool               `json:"published"`
	Recommended bool               `json:"recommended"`
	ImageURLs   []string           `json:"imageUrls"`
	Stock       []sizeStockPayload `json:"stock"`
	TotalStock  int                `json:"totalStock"`
	CreatedAt   string             `json:"createdAt,omitempty"`
	UpdatedAt   string             `json:"updatedAt,omitempty"`
}

func newProductPayload(p services.Product) productPayload {
	stock := make([]sizeStockPayload, 0, len(p.Stock))
	for _, s := range p.Stock {
		stock = append(stock, sizeStockPayload(s))
	}
	images := p.ImageURLs
	if images == nil {
		images = []string{}
	}
	return productPayload{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		PurchaseURL: p.PurchaseURL,
		Category:    p.Category,
		Published:   p.Published,
		Recommended: p.Recommended,
		ImageURLs:   images,
		Stock:       stock,
		TotalStock:  p.TotalStock(),
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
