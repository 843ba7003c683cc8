package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const stripeProviderName = "stripe"

// GatewayLogger defines the logging contract for gateway operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Currency string
	Logger   GatewayLogger
	Clients  *stripeClients
}

// StripeGateway implements CardGateway on Stripe PaymentIntents.
type StripeGateway struct {
	api      stripeClients
	currency string
	logger   GatewayLogger
}

var _ CardGateway = (*StripeGateway)(nil)

// NewStripeGateway constructs a StripeGateway. Network retries are disabled
// in the Stripe backend so every call is a single attempt.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		backendCfg := &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(0)}
		backends := &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
		}
		sc := client.New(apiKey, backends)
		clients = stripeClients{intents: sc.PaymentIntents, refunds: sc.Refunds}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyJPY)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{api: clients, currency: currency, logger: logger}, nil
}

// CreateIntent creates a PaymentIntent for the order total.
func (g *StripeGateway) CreateIntent(ctx context.Context, req CardIntentRequest) (CardIntent, error) {
	if req.Amount <= 0 {
		return CardIntent{}, &GatewayError{Provider: stripeProviderName, Op: "create_intent", Message: "amount must be positive"}
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("orderId", req.OrderID)
	if email := strings.TrimSpace(req.Email); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	intent, err := g.api.intents.New(params)
	if err != nil {
		return CardIntent{}, g.wrap("create_intent", err)
	}
	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       req.OrderID,
		"amount":        intent.Amount,
	})
	return CardIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Status:       stripeStatus(intent),
	}, nil
}

// Confirm verifies the intent succeeded and returns the amount received
// together with the order id stored in its metadata.
func (g *StripeGateway) Confirm(ctx context.Context, intentID string) (CardConfirmation, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return CardConfirmation{}, &GatewayError{Provider: stripeProviderName, Op: "confirm", Message: "payment intent id is required"}
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := g.api.intents.Get(intentID, params)
	if err != nil {
		return CardConfirmation{}, g.wrap("confirm", err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return CardConfirmation{}, &GatewayError{
			Provider: stripeProviderName,
			Op:       "confirm",
			Code:     string(intent.Status),
			Message:  "payment has not completed",
		}
	}
	orderID := intent.Metadata["orderId"]
	g.logger(ctx, "payments.stripe.intent.confirmed", map[string]any{
		"paymentIntent":  intent.ID,
		"orderId":        orderID,
		"amountReceived": intent.AmountReceived,
	})
	return CardConfirmation{IntentID: intent.ID, OrderID: orderID, Amount: intent.AmountReceived}, nil
}

// Refund refunds req.Amount against the intent in req.Reference. The
// idempotency key makes a repeated request return the original refund.
func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.Reference),
		Amount:        stripe.Int64(req.Amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	refund, err := g.api.refunds.New(params)
	if err != nil {
		return "", g.wrap("refund", err)
	}
	g.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": req.Reference,
		"refundId":      refund.ID,
		"amount":        refund.Amount,
		"status":        refund.Status,
	})
	return refund.ID, nil
}

func (g *StripeGateway) wrap(op string, err error) error {
	gwErr := &GatewayError{Provider: stripeProviderName, Op: op, Err: err}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		gwErr.Code = string(stripeErr.Code)
		gwErr.Message = stripeErr.Msg
		gwErr.Temporary = stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	} else {
		gwErr.Message = fmt.Sprintf("stripe request failed: %v", err)
		gwErr.Temporary = true
	}
	return gwErr
}

func stripeStatus(intent *stripe.PaymentIntent) Status {
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}
