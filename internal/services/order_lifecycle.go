package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
	"github.com/3ureka-official/religionne00-sub001/internal/payments"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/pagination"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/textutil"
	"github.com/3ureka-official/religionne00-sub001/internal/repositories"
)

const (
	orderEventPrefix = "order."
)

func cardIntentKey(orderID string) string { return "order-intent-" + orderID }

// refundKey is shared by every refund attempt for an order so the gateway
// settles at most one of them.
func refundKey(orderID string) string { return "order-refund-" + orderID }

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {domain.OrderStatusPaid},
	domain.OrderStatusPaid:    {domain.OrderStatusShipped, domain.OrderStatusRefunded},
	domain.OrderStatusShipped: {domain.OrderStatusRefunded},
}

// ShippingRules is the fee table applied at checkout.
type ShippingRules struct {
	FreeShippingThreshold int
	DomesticFee           int64
	IslandFee             int64
	IslandPrefectures     []string
}

// OrderLifecycleConfig is the explicit configuration of the lifecycle controller.
type OrderLifecycleConfig struct {
	Shipping ShippingRules
	// WalletRedirectURL is the callback PayPay sends the customer back to; the
	// order id is appended as the orderId query parameter.
	WalletRedirectURL string
}

// ProductReader resolves catalog entries at checkout.
type ProductReader interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// OrderLifecycleDeps bundles collaborators required to construct the lifecycle controller.
type OrderLifecycleDeps struct {
	Orders      repositories.OrderRepository
	Products    ProductReader
	Card        payments.CardGateway
	Wallet      payments.WalletGateway
	Notifier    OrderNotifier
	Events      OrderEventPublisher
	Config      OrderLifecycleConfig
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderLifecycle struct {
	orders   repositories.OrderRepository
	products ProductReader
	payments *payments.Manager
	notifier OrderNotifier
	events   OrderEventPublisher
	shipping ShippingRules
	islands  map[string]struct{}
	redirect string
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderLifecycle wires dependencies into an OrderLifecycleService. Card and
// wallet gateways may be nil; orders using them then fail with ErrUnavailable.
func NewOrderLifecycle(deps OrderLifecycleDeps) (OrderLifecycleService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order lifecycle: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order lifecycle: product reader is required")
	}
	rules := deps.Config.Shipping
	if rules.FreeShippingThreshold < 0 || rules.DomesticFee < 0 || rules.IslandFee < 0 {
		return nil, errors.New("order lifecycle: shipping fees and threshold must be non-negative")
	}

	islands := make(map[string]struct{}, len(rules.IslandPrefectures))
	for _, pref := range rules.IslandPrefectures {
		if key := textutil.Fold(pref); key != "" {
			islands[key] = struct{}{}
		}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderLifecycle{
		orders:   deps.Orders,
		products: deps.Products,
		payments: payments.NewManager(deps.Card, deps.Wallet),
		notifier: deps.Notifier,
		events:   deps.Events,
		shipping: rules,
		islands:  islands,
		redirect: strings.TrimSpace(deps.Config.WalletRedirectURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderLifecycle) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error) {
	customer := normalizeCustomer(cmd.Customer)
	if err := validateCreateOrder(customer, cmd.Items, cmd.PaymentMethod); err != nil {
		return CreateOrderResult{}, err
	}

	items, subtotal, err := s.priceItems(ctx, cmd.Items)
	if err != nil {
		return CreateOrderResult{}, err
	}

	now := s.clock()
	order := Order{
		ID:            s.newID(),
		Customer:      customer.Name,
		Email:         customer.Email,
		Phone:         customer.Phone,
		Items:         items,
		Address:       customer.Address,
		PaymentMethod: cmd.PaymentMethod,
		Subtotal:      subtotal,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	order.ShippingFee = s.shippingFee(order.ItemCount(), order.Address.Prefecture)
	order.Total = order.Subtotal + order.ShippingFee
	if order.PaymentMethod == domain.PaymentMethodWallet {
		order.MerchantPaymentID = order.ID
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return CreateOrderResult{}, mapRepositoryError(err)
	}
	s.logger(ctx, "orders.created", map[string]any{
		"orderId":       order.ID,
		"paymentMethod": string(order.PaymentMethod),
		"total":         order.Total,
		"itemCount":     order.ItemCount(),
	})
	s.publishEvent(ctx, order, "")

	switch order.PaymentMethod {
	case domain.PaymentMethodCOD:
		paid, err := s.markPaid(ctx, order, "")
		if err != nil {
			return CreateOrderResult{Order: order}, err
		}
		return CreateOrderResult{Order: paid}, nil

	case domain.PaymentMethodWallet:
		redirectURL, err := s.payments.CreateWalletOrder(ctx, payments.WalletOrderRequest{
			OrderID:     order.MerchantPaymentID,
			Amount:      order.Total,
			Items:       walletLineItems(order),
			RedirectURL: s.walletCallbackURL(order.ID),
		})
		if err != nil {
			return CreateOrderResult{Order: order}, s.gatewayFailure(ctx, "create_wallet_order", order.ID, err)
		}
		return CreateOrderResult{Order: order, RedirectURL: redirectURL}, nil

	default:
		return CreateOrderResult{Order: order}, nil
	}
}

// priceItems rebuilds the order lines from the catalog. Client-sent names and
// prices are ignored; unknown, unpublished or sold-out lines fail validation.
func (s *orderLifecycle) priceItems(ctx context.Context, requested []OrderItem) ([]OrderItem, int64, error) {
	var v validator
	held := make(map[string]int, len(requested))
	items := make([]OrderItem, 0, len(requested))
	var subtotal int64
	for i, item := range requested {
		field := fmt.Sprintf("items[%d]", i)
		product, err := s.products.FindByID(ctx, strings.TrimSpace(item.ProductID))
		if err != nil {
			if errors.Is(mapRepositoryError(err), ErrNotFound) {
				v.add(field+".productId", "is not a known product")
				continue
			}
			return nil, 0, mapRepositoryError(err)
		}
		if !product.Published {
			v.add(field+".productId", "is not on sale")
			continue
		}
		if product.Price < 0 || product.Price > domain.MaxUnitPrice {
			v.add(field+".productId", "has no valid price")
			continue
		}
		stock, ok := sizeStock(product, item.Size)
		if !ok {
			v.add(field+".size", "is not offered for this product")
			continue
		}
		key := product.ID + "|" + textutil.Key(stock.Size)
		held[key] += item.Quantity
		if held[key] > stock.Quantity {
			v.add(field+".quantity", "exceeds available stock")
			continue
		}

		line := OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  item.Quantity,
			Size:      stock.Size,
		}
		subtotal += line.LineTotal()
		items = append(items, line)
	}
	if err := v.err(); err != nil {
		return nil, 0, err
	}
	return items, subtotal, nil
}

// sizeStock finds the stock entry for size. A blank size selects the only
// entry of a single-size product.
func sizeStock(product domain.Product, size string) (domain.SizeStock, bool) {
	size = textutil.Fold(size)
	if size == "" {
		if len(product.Stock) == 1 {
			return product.Stock[0], true
		}
		return domain.SizeStock{}, false
	}
	idx := slices.IndexFunc(product.Stock, func(entry domain.SizeStock) bool {
		return textutil.Key(entry.Size) == textutil.Key(size)
	})
	if idx < 0 {
		return domain.SizeStock{}, false
	}
	return product.Stock[idx], true
}

// shippingFee returns 0 at or above the free-shipping item count, otherwise
// the island or domestic fee for the prefecture.
func (s *orderLifecycle) shippingFee(itemCount int, prefecture string) int64 {
	if itemCount >= s.shipping.FreeShippingThreshold {
		return 0
	}
	if _, ok := s.islands[textutil.Fold(prefecture)]; ok {
		return s.shipping.IslandFee
	}
	return s.shipping.DomesticFee
}

func (s *orderLifecycle) CreateCardIntent(ctx context.Context, orderID string) (payments.CardIntent, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return payments.CardIntent{}, err
	}
	if order.PaymentMethod != domain.PaymentMethodCard {
		return payments.CardIntent{}, fmt.Errorf("%w: order %s is not a card order", ErrInvalidTransition, order.ID)
	}
	if order.Status != domain.OrderStatusPending {
		return payments.CardIntent{}, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
	}

	intent, err := s.payments.CreateCardIntent(ctx, payments.CardIntentRequest{
		OrderID:        order.ID,
		Amount:         order.Total,
		Email:          order.Email,
		IdempotencyKey: cardIntentKey(order.ID),
	})
	if err != nil {
		return payments.CardIntent{}, s.gatewayFailure(ctx, "create_card_intent", order.ID, err)
	}
	return intent, nil
}

func (s *orderLifecycle) FinalizeCardPayment(ctx context.Context, orderID string, paymentIntentID string) (Order, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return Order{}, &ValidationError{Fields: map[string]string{"paymentIntentId": "is required"}}
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.PaymentMethod != domain.PaymentMethodCard {
		return Order{}, fmt.Errorf("%w: order %s is not a card order", ErrInvalidTransition, order.ID)
	}
	if order.Status == domain.OrderStatusPaid && order.PaymentIntentID == paymentIntentID {
		return order, nil
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
	}

	confirmed, err := s.payments.ConfirmCard(ctx, paymentIntentID)
	if err != nil {
		return Order{}, s.gatewayFailure(ctx, "confirm_card", order.ID, err)
	}
	if confirmed.OrderID != order.ID {
		s.logger(ctx, "orders.payment.intent_mismatch", map[string]any{
			"orderId":       order.ID,
			"paymentIntent": paymentIntentID,
			"intentOrderId": confirmed.OrderID,
		})
		return Order{}, fmt.Errorf("%w: payment intent %s was not created for order %s", ErrGateway, paymentIntentID, order.ID)
	}
	if confirmed.Amount != order.Total {
		s.logger(ctx, "orders.payment.amount_mismatch", map[string]any{
			"orderId":       order.ID,
			"paymentIntent": paymentIntentID,
			"captured":      confirmed.Amount,
			"total":         order.Total,
		})
		return Order{}, fmt.Errorf("%w: captured %d does not match order total %d", ErrGateway, confirmed.Amount, order.Total)
	}

	return s.markPaid(ctx, order, paymentIntentID)
}

func (s *orderLifecycle) CompleteWalletPayment(ctx context.Context, orderID string) (Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.PaymentMethod != domain.PaymentMethodWallet {
		return Order{}, fmt.Errorf("%w: order %s is not a wallet order", ErrInvalidTransition, order.ID)
	}
	if order.Status == domain.OrderStatusPaid && order.PaymentIntentID != "" {
		return order, nil
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
	}

	merchantPaymentID := order.MerchantPaymentID
	if merchantPaymentID == "" {
		merchantPaymentID = order.ID
	}
	payment, err := s.payments.WalletPayment(ctx, merchantPaymentID)
	if err != nil {
		return Order{}, s.gatewayFailure(ctx, "wallet_payment_details", order.ID, err)
	}
	if payment.Status != payments.StatusSucceeded {
		return Order{}, fmt.Errorf("%w: wallet payment for order %s is %s", ErrPaymentIncomplete, order.ID, payment.Status)
	}
	switch {
	case payment.Amount <= 0:
		return Order{}, fmt.Errorf("%w: wallet payment for order %s reported no amount", ErrGateway, order.ID)
	case payment.Amount != order.Total:
		return Order{}, fmt.Errorf("%w: paid %d does not match order total %d", ErrGateway, payment.Amount, order.Total)
	}

	return s.markPaid(ctx, order, payment.PaymentID)
}

func (s *orderLifecycle) TransitionToShipped(ctx context.Context, orderID string) (Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	prevStatus := order.Status
	if !canTransition(prevStatus, domain.OrderStatusShipped) {
		return Order{}, fmt.Errorf("%w: cannot ship order in status %s", ErrInvalidTransition, prevStatus)
	}

	now := s.clock()
	updated, err := s.orders.Update(ctx, order.ID, order.Version, func(current *domain.Order) error {
		if !canTransition(current.Status, domain.OrderStatusShipped) {
			return fmt.Errorf("%w: cannot ship order in status %s", ErrInvalidTransition, current.Status)
		}
		current.Status = domain.OrderStatusShipped
		current.ShippedDate = &now
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Order{}, passThroughOrMap(err)
	}

	s.logger(ctx, "orders.shipped", map[string]any{"orderId": updated.ID})
	s.publishEvent(ctx, updated, prevStatus)
	if s.notifier != nil {
		if err := s.notifier.OrderShipped(ctx, updated); err != nil {
			s.logger(ctx, "orders.notification.failed", map[string]any{
				"orderId": updated.ID,
				"kind":    "shipment",
				"error":   err.Error(),
			})
		}
	}
	return updated, nil
}

func (s *orderLifecycle) Refund(ctx context.Context, orderID string, amount *int64) (RefundResult, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return RefundResult{}, err
	}
	if order.Status == domain.OrderStatusRefunded || order.HasRefund() {
		return RefundResult{}, fmt.Errorf("%w: order %s", ErrAlreadyRefunded, order.ID)
	}
	if !canTransition(order.Status, domain.OrderStatusRefunded) {
		return RefundResult{}, fmt.Errorf("%w: cannot refund order in status %s", ErrInvalidTransition, order.Status)
	}

	refundAmount := order.Total
	if amount != nil {
		if *amount <= 0 {
			return RefundResult{}, &ValidationError{Fields: map[string]string{"amount": "must be positive"}}
		}
		refundAmount = min(*amount, order.Total)
	}

	var refundID string
	if order.PaymentMethod.UsesGateway() {
		if strings.TrimSpace(order.PaymentIntentID) == "" {
			return RefundResult{}, fmt.Errorf("%w: order %s", ErrMissingPaymentReference, order.ID)
		}
		refundID, err = s.payments.Refund(ctx, order.PaymentMethod, payments.RefundRequest{
			Reference:      order.PaymentIntentID,
			Amount:         refundAmount,
			IdempotencyKey: refundKey(order.ID),
		})
		if err != nil {
			return RefundResult{}, s.gatewayFailure(ctx, "refund", order.ID, err)
		}
	}

	prevStatus := order.Status
	now := s.clock()
	updated, err := s.orders.Update(ctx, order.ID, order.Version, func(current *domain.Order) error {
		if current.Status == domain.OrderStatusRefunded || current.HasRefund() {
			return fmt.Errorf("%w: order %s", ErrAlreadyRefunded, current.ID)
		}
		current.Status = domain.OrderStatusRefunded
		current.RefundedAmount = &refundAmount
		current.RefundID = refundID
		current.RefundedAt = &now
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		if refundID != "" {
			s.logger(ctx, "orders.refund.record_failed", map[string]any{
				"orderId":  order.ID,
				"refundId": refundID,
				"amount":   refundAmount,
				"error":    err.Error(),
			})
		}
		return RefundResult{}, passThroughOrMap(err)
	}

	s.logger(ctx, "orders.refunded", map[string]any{
		"orderId":       updated.ID,
		"paymentMethod": string(updated.PaymentMethod),
		"amount":        refundAmount,
		"refundId":      refundID,
	})
	s.publishEvent(ctx, updated, prevStatus)
	return RefundResult{Order: updated, RefundAmount: refundAmount}, nil
}

func (s *orderLifecycle) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return s.loadOrder(ctx, orderID)
}

func (s *orderLifecycle) ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return domain.Page[Order]{}, &ValidationError{Fields: map[string]string{"status": fmt.Sprintf("unknown status %q", status)}}
		}
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.Page[Order]{}, &ValidationError{Fields: map[string]string{"pageToken": "is invalid"}}
		}
		return domain.Page[Order]{}, mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderLifecycle) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, &ValidationError{Fields: map[string]string{"orderId": "is required"}}
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	return order, nil
}

// markPaid moves a pending order to paid, records the payment reference and
// dispatches the creation notifications.
func (s *orderLifecycle) markPaid(ctx context.Context, order Order, paymentRef string) (Order, error) {
	now := s.clock()
	updated, err := s.orders.Update(ctx, order.ID, order.Version, func(current *domain.Order) error {
		if !canTransition(current.Status, domain.OrderStatusPaid) {
			return fmt.Errorf("%w: cannot mark order in status %s as paid", ErrInvalidTransition, current.Status)
		}
		current.Status = domain.OrderStatusPaid
		if paymentRef != "" {
			current.PaymentIntentID = paymentRef
		}
		current.PaidAt = &now
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Order{}, passThroughOrMap(err)
	}

	s.logger(ctx, "orders.paid", map[string]any{
		"orderId":       updated.ID,
		"paymentMethod": string(updated.PaymentMethod),
	})
	s.publishEvent(ctx, updated, order.Status)
	if s.notifier != nil {
		if err := s.notifier.OrderCreated(ctx, updated); err != nil {
			s.logger(ctx, "orders.notification.failed", map[string]any{
				"orderId": updated.ID,
				"kind":    "created",
				"error":   err.Error(),
			})
		}
	}
	return updated, nil
}

func (s *orderLifecycle) gatewayFailure(ctx context.Context, op string, orderID string, err error) error {
	fields := map[string]any{
		"orderId": orderID,
		"op":      op,
		"error":   err.Error(),
	}
	var gwErr *payments.GatewayError
	if errors.As(err, &gwErr) {
		fields["provider"] = gwErr.Provider
		fields["code"] = gwErr.Code
		fields["temporary"] = gwErr.Temporary
	}
	s.logger(ctx, "orders.gateway.failed", fields)

	if errors.Is(err, payments.ErrGatewayNotConfigured) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrGateway, err)
}

func (s *orderLifecycle) publishEvent(ctx context.Context, order Order, prevStatus domain.OrderStatus) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:           orderEventPrefix + string(order.Status),
		OrderID:        order.ID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		PaymentMethod:  string(order.PaymentMethod),
		Total:          order.Total,
		OccurredAt:     s.clock(),
	}
	if order.RefundedAmount != nil {
		event.Metadata = map[string]string{"refundedAmount": fmt.Sprintf("%d", *order.RefundedAmount)}
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "orders.event.publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderLifecycle) walletCallbackURL(orderID string) string {
	if s.redirect == "" {
		return ""
	}
	u, err := url.Parse(s.redirect)
	if err != nil {
		return s.redirect
	}
	q := u.Query()
	q.Set("orderId", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}

func canTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

func walletLineItems(order Order) []payments.WalletLineItem {
	items := make([]payments.WalletLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payments.WalletLineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}
	return items
}

func normalizeCustomer(c CustomerInfo) CustomerInfo {
	return CustomerInfo{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: textutil.NormalizePhone(c.Phone),
		Address: Address{
			PostalCode: textutil.NormalizePostalCode(c.Address.PostalCode),
			Prefecture: textutil.Fold(c.Address.Prefecture),
			City:       strings.TrimSpace(c.Address.City),
			Line1:      strings.TrimSpace(c.Address.Line1),
			Line2:      strings.TrimSpace(c.Address.Line2),
		},
	}
}

func validateCreateOrder(c CustomerInfo, items []OrderItem, method PaymentMethod) error {
	var v validator
	v.require("customer.name", c.Name)
	v.require("customer.email", c.Email)
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			v.add("customer.email", "is not a valid address")
		}
	}
	v.require("customer.phone", c.Phone)
	v.require("customer.address.postalCode", c.Address.PostalCode)
	v.require("customer.address.prefecture", c.Address.Prefecture)
	v.require("customer.address.city", c.Address.City)
	v.require("customer.address.line1", c.Address.Line1)

	switch {
	case len(items) == 0:
		v.add("items", "must contain at least one item")
	case len(items) > domain.MaxOrderLines:
		v.add("items", fmt.Sprintf("must not contain more than %d lines", domain.MaxOrderLines))
	}
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.ProductID) == "" {
			v.add(field+".productId", "is required")
		}
		switch {
		case item.Quantity <= 0:
			v.add(field+".quantity", "must be positive")
		case item.Quantity > domain.MaxLineQuantity:
			v.add(field+".quantity", fmt.Sprintf("must not exceed %d", domain.MaxLineQuantity))
		}
		switch {
		case item.Price < 0:
			v.add(field+".price", "must not be negative")
		case item.Price > domain.MaxUnitPrice:
			v.add(field+".price", fmt.Sprintf("must not exceed %d", domain.MaxUnitPrice))
		}
	}

	if !method.Valid() {
		v.add("paymentMethod", "must be one of card, wallet, cod")
	}
	return v.err()
}
