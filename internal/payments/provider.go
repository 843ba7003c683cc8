package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
)

// Status enumerates the normalised payment states shared across gateways.
type Status string

const (
	// StatusPending indicates the payment awaits customer action.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the payment failed, expired or was cancelled.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded.
	StatusRefunded Status = "refunded"
)

var (
	// ErrGatewayNotConfigured is returned when the gateway for a method has no credentials.
	ErrGatewayNotConfigured = errors.New("payments: gateway not configured")
	// ErrUnsupportedMethod is returned for methods that never reach a gateway.
	ErrUnsupportedMethod = errors.New("payments: payment method has no gateway")
)

// GatewayError carries the provider's failure details.
type GatewayError struct {
	Provider  string
	Op        string
	Code      string
	Message   string
	Temporary bool
	Err       error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s (%s)", e.Provider, e.Op, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Op, msg)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// UserMessage returns the provider message suitable for display.
func (e *GatewayError) UserMessage() string {
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return "payment provider request failed"
}

// CardIntentRequest asks the card gateway for a new payment intent.
type CardIntentRequest struct {
	OrderID        string
	Amount         int64
	Email          string
	IdempotencyKey string
}

// CardIntent is the client-side handle for a card payment.
type CardIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Status       Status
}

// CardConfirmation describes a succeeded intent. OrderID is the order the
// intent was created for, read back from the gateway.
type CardConfirmation struct {
	IntentID string
	OrderID  string
	Amount   int64
}

// RefundRequest refunds Amount against the payment identified by Reference.
// Requests sharing an IdempotencyKey settle at most once at the gateway.
type RefundRequest struct {
	Reference      string
	Amount         int64
	IdempotencyKey string
}

// CardGateway is a synchronous card processor.
type CardGateway interface {
	CreateIntent(ctx context.Context, req CardIntentRequest) (CardIntent, error)
	// Confirm succeeds only when the intent has been captured.
	Confirm(ctx context.Context, intentID string) (CardConfirmation, error)
	Refund(ctx context.Context, req RefundRequest) (string, error)
}

// WalletLineItem is one product line shown on the wallet payment page.
type WalletLineItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
}

// WalletOrderRequest opens a redirect-based wallet payment.
type WalletOrderRequest struct {
	OrderID     string
	Amount      int64
	Items       []WalletLineItem
	RedirectURL string
}

// WalletPayment reports the state of a wallet payment.
type WalletPayment struct {
	PaymentID         string
	MerchantPaymentID string
	Status            Status
	Amount            int64
}

// WalletGateway is a redirect-based wallet processor.
type WalletGateway interface {
	CreateOrder(ctx context.Context, req WalletOrderRequest) (string, error)
	PaymentDetails(ctx context.Context, merchantPaymentID string) (WalletPayment, error)
	Refund(ctx context.Context, req RefundRequest) (string, error)
}

// Manager routes payment operations to the gateway serving each method.
type Manager struct {
	card   CardGateway
	wallet WalletGateway
}

// NewManager builds a Manager. Either gateway may be nil when not configured;
// calls that need it fail with ErrGatewayNotConfigured.
func NewManager(card CardGateway, wallet WalletGateway) *Manager {
	return &Manager{card: card, wallet: wallet}
}

// CreateCardIntent opens a card payment intent.
func (m *Manager) CreateCardIntent(ctx context.Context, req CardIntentRequest) (CardIntent, error) {
	if m == nil || m.card == nil {
		return CardIntent{}, fmt.Errorf("%w: card", ErrGatewayNotConfigured)
	}
	return m.card.CreateIntent(ctx, req)
}

// ConfirmCard reports the captured amount and owning order of the intent.
func (m *Manager) ConfirmCard(ctx context.Context, intentID string) (CardConfirmation, error) {
	if m == nil || m.card == nil {
		return CardConfirmation{}, fmt.Errorf("%w: card", ErrGatewayNotConfigured)
	}
	return m.card.Confirm(ctx, intentID)
}

// CreateWalletOrder opens a wallet payment and returns the redirect URL.
func (m *Manager) CreateWalletOrder(ctx context.Context, req WalletOrderRequest) (string, error) {
	if m == nil || m.wallet == nil {
		return "", fmt.Errorf("%w: wallet", ErrGatewayNotConfigured)
	}
	return m.wallet.CreateOrder(ctx, req)
}

// WalletPayment looks up a wallet payment by merchant payment id.
func (m *Manager) WalletPayment(ctx context.Context, merchantPaymentID string) (WalletPayment, error) {
	if m == nil || m.wallet == nil {
		return WalletPayment{}, fmt.Errorf("%w: wallet", ErrGatewayNotConfigured)
	}
	return m.wallet.PaymentDetails(ctx, merchantPaymentID)
}

// Refund refunds amount against the gateway serving method and returns the
// gateway refund id.
func (m *Manager) Refund(ctx context.Context, method domain.PaymentMethod, req RefundRequest) (string, error) {
	switch method {
	case domain.PaymentMethodCard:
		if m == nil || m.card == nil {
			return "", fmt.Errorf("%w: card", ErrGatewayNotConfigured)
		}
		return m.card.Refund(ctx, req)
	case domain.PaymentMethodWallet:
		if m == nil || m.wallet == nil {
			return "", fmt.Errorf("%w: wallet", ErrGatewayNotConfigured)
		}
		return m.wallet.Refund(ctx, req)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
}
