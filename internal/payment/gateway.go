// Package payment adapts the lead payment gateway. Razorpay is the only real
// provider; Mock stands in for it in development and tests.
package payment

//go:generate mockgen -source=gateway.go -destination=mock_gateway.go -package=payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bazaar/leadhub/internal/config"
	"bazaar/leadhub/internal/utils"
)

// DummyKeyID is the placeholder key shipped in sample environments.
const DummyKeyID = "rzp_test_dummy_key"

const maxReceiptLen = 40

// OrderRequest describes a lead purchase.
type OrderRequest struct {
	AmountPaise int
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Order is what the client needs to open the checkout.
type Order struct {
	ID       string `json:"id"`
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	KeyID    string `json:"key_id,omitempty"`
	Mock     bool   `json:"mock,omitempty"`
}

// Gateway creates orders and verifies checkout signatures.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

// NewGateway picks Razorpay when real credentials are configured and Mock otherwise.
func NewGateway(cfg *config.Config) Gateway {
	if cfg.MockPayments() {
		return &Mock{}
	}
	return NewRazorpay(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
}

// Receipt builds the order receipt lead_<inquiry>_<user>_<unixms>, capped to
// the 40 characters the gateway accepts.
func Receipt(inquiryID, userID utils.SixID, now time.Time) string {
	r := fmt.Sprintf("lead_%s_%s_%d", inquiryID, userID, now.UnixMilli())
	if len(r) > maxReceiptLen {
		r = r[:maxReceiptLen]
	}
	return r
}

// Signature computes hex(HMAC-SHA256(secret, orderID|paymentID)).
func Signature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Razorpay talks to the Razorpay orders API.
type Razorpay struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

func NewRazorpay(baseURL, keyID, keySecret string) *Razorpay {
	return &Razorpay{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type razorpayOrderRequest struct {
	Amount   int               `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Error    *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.AmountPaise,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	httpReq.SetBasicAuth(r.keyID, r.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("razorpay order request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read razorpay response: %w", err)
	}

	var out razorpayOrderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode razorpay response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || out.ID == "" {
		if out.Error != nil {
			return nil, fmt.Errorf("razorpay rejected order (status %d): %s: %s", resp.StatusCode, out.Error.Code, out.Error.Description)
		}
		return nil, fmt.Errorf("razorpay rejected order (status %d)", resp.StatusCode)
	}

	return &Order{
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Receipt:  out.Receipt,
		KeyID:    r.keyID,
	}, nil
}

func (r *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := Signature(r.keySecret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Mock simulates the gateway: every order succeeds and every proof verifies.
type Mock struct{}

func (m *Mock) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	return &Order{
		ID:       "mock_order_" + utils.NextSnowflake(),
		Amount:   req.AmountPaise,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Mock:     true,
	}, nil
}

func (m *Mock) VerifySignature(orderID, paymentID, signature string) bool {
	return true
}
