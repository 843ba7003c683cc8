package payments

import (
	"bytes"
	"cmp"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	paypayProviderName   = "paypay"
	paypayDefaultTimeout = 10 * time.Second
	paypayCurrency       = "JPY"
	paypayResultSuccess  = "SUCCESS"
	paypayCreatedCode    = "CREATED"
	maxPayPayErrorBody   = 4 << 10
)

// PayPayGatewayConfig configures the PayPay Open Payment API client.
type PayPayGatewayConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	MerchantID string
	Timeout    time.Duration
	HTTPClient *http.Client
	Clock      func() time.Time
	Nonce      func() string
	Logger     GatewayLogger
}

// PayPayGateway implements WalletGateway against the PayPay web payment API.
type PayPayGateway struct {
	baseURL    string
	apiKey     string
	apiSecret  []byte
	merchantID string
	http       *http.Client
	now        func() time.Time
	nonce      func() string
	logger     GatewayLogger
}

var _ WalletGateway = (*PayPayGateway)(nil)

// NewPayPayGateway constructs the client. Requests are signed with the
// OPA-Auth HMAC scheme and are never retried.
func NewPayPayGateway(cfg PayPayGatewayConfig) (*PayPayGateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("paypay: base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, errors.New("paypay: api key and secret are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = paypayDefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	nonce := cfg.Nonce
	if nonce == nil {
		nonce = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:8] }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PayPayGateway{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiSecret:  []byte(strings.TrimSpace(cfg.APISecret)),
		merchantID: strings.TrimSpace(cfg.MerchantID),
		http:       httpClient,
		now:        clock,
		nonce:      nonce,
		logger:     logger,
	}, nil
}

type paypayMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type paypayOrderItem struct {
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	ProductID string      `json:"productId,omitempty"`
	UnitPrice paypayMoney `json:"unitPrice"`
}

type paypayCreateCodeRequest struct {
	MerchantPaymentID string            `json:"merchantPaymentId"`
	Amount            paypayMoney       `json:"amount"`
	CodeType          string            `json:"codeType"`
	OrderItems        []paypayOrderItem `json:"orderItems,omitempty"`
	RedirectURL       string            `json:"redirectUrl"`
	RedirectType      string            `json:"redirectType"`
	RequestedAt       int64             `json:"requestedAt"`
}

type paypayRefundRequest struct {
	MerchantRefundID string      `json:"merchantRefundId"`
	PaymentID        string      `json:"paymentId"`
	Amount           paypayMoney `json:"amount"`
	RequestedAt      int64       `json:"requestedAt"`
}

type paypayResultInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	CodeID  string `json:"codeId"`
}

type paypayEnvelope struct {
	ResultInfo paypayResultInfo `json:"resultInfo"`
	Data       json.RawMessage  `json:"data"`
}

type paypayCodeData struct {
	CodeID            string `json:"codeId"`
	URL               string `json:"url"`
	MerchantPaymentID string `json:"merchantPaymentId"`
}

type paypayPaymentData struct {
	PaymentID         string      `json:"paymentId"`
	MerchantPaymentID string      `json:"merchantPaymentId"`
	Status            string      `json:"status"`
	Amount            paypayMoney `json:"amount"`
}

type paypayRefundData struct {
	Status           string `json:"status"`
	MerchantRefundID string `json:"merchantRefundId"`
	PaymentID        string `json:"paymentId"`
}

// CreateOrder creates a dynamic QR code order and returns the PayPay
// payment page URL the customer is redirected to.
func (g *PayPayGateway) CreateOrder(ctx context.Context, req WalletOrderRequest) (string, error) {
	if strings.TrimSpace(req.OrderID) == "" || req.Amount <= 0 {
		return "", &GatewayError{Provider: paypayProviderName, Op: "create_order", Message: "order id and positive amount are required"}
	}
	items := make([]paypayOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, paypayOrderItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			ProductID: item.ProductID,
			UnitPrice: paypayMoney{Amount: item.UnitPrice, Currency: paypayCurrency},
		})
	}
	body := paypayCreateCodeRequest{
		MerchantPaymentID: req.OrderID,
		Amount:            paypayMoney{Amount: req.Amount, Currency: paypayCurrency},
		CodeType:          "ORDER_QR",
		OrderItems:        items,
		RedirectURL:       req.RedirectURL,
		RedirectType:      "WEB_LINK",
		RequestedAt:       g.now().Unix(),
	}

	var data paypayCodeData
	if err := g.do(ctx, "create_order", http.MethodPost, "/v2/codes", body, &data, paypayCreatedCode); err != nil {
		return "", err
	}
	if strings.TrimSpace(data.URL) == "" {
		return "", &GatewayError{Provider: paypayProviderName, Op: "create_order", Message: "response did not include a payment url"}
	}
	g.logger(ctx, "payments.paypay.code.created", map[string]any{
		"merchantPaymentId": req.OrderID,
		"codeId":            data.CodeID,
	})
	return data.URL, nil
}

// PaymentDetails fetches the payment created for merchantPaymentID.
func (g *PayPayGateway) PaymentDetails(ctx context.Context, merchantPaymentID string) (WalletPayment, error) {
	merchantPaymentID = strings.TrimSpace(merchantPaymentID)
	if merchantPaymentID == "" {
		return WalletPayment{}, &GatewayError{Provider: paypayProviderName, Op: "payment_details", Message: "merchant payment id is required"}
	}
	var data paypayPaymentData
	path := "/v2/codes/payments/" + url.PathEscape(merchantPaymentID)
	if err := g.do(ctx, "payment_details", http.MethodGet, path, nil, &data); err != nil {
		return WalletPayment{}, err
	}
	return WalletPayment{
		PaymentID:         data.PaymentID,
		MerchantPaymentID: data.MerchantPaymentID,
		Status:            paypayStatus(data.Status),
		Amount:            data.Amount.Amount,
	}, nil
}

// Refund refunds req.Amount against a completed payment and returns the
// merchant refund id. PayPay rejects a second refund with the same merchant
// refund id, so the idempotency key is used as that id when present.
func (g *PayPayGateway) Refund(ctx context.Context, req RefundRequest) (string, error) {
	body := paypayRefundRequest{
		MerchantRefundID: cmp.Or(strings.TrimSpace(req.IdempotencyKey), ulid.Make().String()),
		PaymentID:        req.Reference,
		Amount:           paypayMoney{Amount: req.Amount, Currency: paypayCurrency},
		RequestedAt:      g.now().Unix(),
	}
	var data paypayRefundData
	if err := g.do(ctx, "refund", http.MethodPost, "/v2/refunds", body, &data); err != nil {
		return "", err
	}
	g.logger(ctx, "payments.paypay.refund.created", map[string]any{
		"paymentId":        req.Reference,
		"merchantRefundId": body.MerchantRefundID,
		"status":           data.Status,
	})
	return body.MerchantRefundID, nil
}

func (g *PayPayGateway) do(ctx context.Context, op, method, path string, body any, out any, okCodes ...string) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("paypay: encode %s request: %w", op, err)
		}
		payload = encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("paypay: build %s request: %w", op, err)
	}
	contentType := ""
	if payload != nil {
		contentType = "application/json;charset=UTF-8"
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", g.authorization(method, path, contentType, payload))
	if g.merchantID != "" {
		req.Header.Set("X-ASSUME-MERCHANT", g.merchantID)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return &GatewayError{Provider: paypayProviderName, Op: op, Message: "paypay request failed", Temporary: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &GatewayError{Provider: paypayProviderName, Op: op, Message: "paypay response unreadable", Temporary: true, Err: err}
	}

	var envelope paypayEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		snippet := raw
		if len(snippet) > maxPayPayErrorBody {
			snippet = snippet[:maxPayPayErrorBody]
		}
		return &GatewayError{
			Provider:  paypayProviderName,
			Op:        op,
			Code:      strconv.Itoa(resp.StatusCode),
			Message:   strings.TrimSpace(string(snippet)),
			Temporary: resp.StatusCode >= http.StatusInternalServerError,
			Err:       err,
		}
	}

	if !paypayAccepted(envelope.ResultInfo.Code, okCodes) || resp.StatusCode >= http.StatusBadRequest {
		return &GatewayError{
			Provider:  paypayProviderName,
			Op:        op,
			Code:      envelope.ResultInfo.Code,
			Message:   envelope.ResultInfo.Message,
			Temporary: resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &GatewayError{Provider: paypayProviderName, Op: op, Message: "paypay response malformed", Err: err}
		}
	}
	return nil
}

// authorization builds the "hmac OPA-Auth" header. Requests without a body
// sign the literal "empty" for both content type and body hash.
func (g *PayPayGateway) authorization(method, path, contentType string, body []byte) string {
	nonce := g.nonce()
	epoch := strconv.FormatInt(g.now().Unix(), 10)

	hash := "empty"
	signedType := "empty"
	if len(body) > 0 {
		digest := md5.New()
		digest.Write([]byte(contentType))
		digest.Write(body)
		hash = base64.StdEncoding.EncodeToString(digest.Sum(nil))
		signedType = contentType
	}

	mac := hmac.New(sha256.New, g.apiSecret)
	mac.Write([]byte(strings.Join([]string{path, method, nonce, epoch, signedType, hash}, "\n")))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("hmac OPA-Auth:%s:%s:%s:%s:%s", g.apiKey, signature, nonce, epoch, hash)
}

func paypayAccepted(code string, okCodes []string) bool {
	if code == paypayResultSuccess {
		return true
	}
	for _, ok := range okCodes {
		if code == ok {
			return true
		}
	}
	return false
}

func paypayStatus(status string) Status {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return StatusSucceeded
	case "REFUNDED":
		return StatusRefunded
	case "FAILED", "CANCELED", "EXPIRED":
		return StatusFailed
	default:
		return StatusPending
	}
}
