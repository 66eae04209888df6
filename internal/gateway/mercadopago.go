// Package gateway talks to the MercadoPago REST API: it creates checkout
// preferences and fetches payment details referenced by webhooks.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://api.mercadopago.com"

var (
	ErrUnavailable      = errors.New("payment gateway unavailable")
	ErrUnexpectedStatus = errors.New("payment gateway returned unexpected status")
)

// Payment statuses reported by MercadoPago.
const (
	StatusPending     = "pending"
	StatusApproved    = "approved"
	StatusAuthorized  = "authorized"
	StatusInProcess   = "in_process"
	StatusInMediation = "in_mediation"
	StatusRejected    = "rejected"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

// IsTerminal reports whether status is final for a payment.
func IsTerminal(status string) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusCancelled, StatusRefunded, StatusChargedBack:
		return true
	}
	return false
}

type Config struct {
	BaseURL     string        `mapstructure:"base_url"`
	AccessToken string        `mapstructure:"-"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type Client struct {
	// baseURL is the MercadoPago API root.
	baseURL string

	// accessToken authenticates every call as a Bearer token.
	accessToken string

	hc *http.Client
}

func NewClient(c Config) *Client {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     base,
		accessToken: c.AccessToken,
		hc:          &http.Client{Timeout: timeout},
	}
}

type PreferenceRequest struct {
	Title             string
	Quantity          int
	UnitPrice         decimal.Decimal
	Currency          string
	ExternalReference string
	UserID            string
	NotificationURL   string
	SuccessURL        string
	FailureURL        string
	PendingURL        string
	PayerEmail        string
	PayerName         string
}

type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type preferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id,omitempty"`
}

type preferenceBody struct {
	Items             []preferenceItem  `json:"items"`
	Payer             map[string]string `json:"payer,omitempty"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	AutoReturn        string            `json:"auto_return,omitempty"`
	Metadata          map[string]string `json:"metadata"`
}

// CreatePreference creates a checkout preference and returns its payable link.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}
	body := preferenceBody{
		Items: []preferenceItem{{
			Title:      req.Title,
			Quantity:   qty,
			UnitPrice:  req.UnitPrice.InexactFloat64(),
			CurrencyID: req.Currency,
		}},
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
		Metadata:          map[string]string{"user_id": req.UserID},
	}
	if req.PayerEmail != "" {
		body.Payer = map[string]string{"email": req.PayerEmail, "name": req.PayerName}
	}
	if req.SuccessURL != "" {
		body.BackURLs = map[string]string{
			"success": req.SuccessURL,
			"failure": req.FailureURL,
			"pending": req.PendingURL,
		}
		body.AutoReturn = "approved"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal preference: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create preference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", uuid.NewString())

	var pref Preference
	if err := c.do(httpReq, &pref); err != nil {
		return nil, fmt.Errorf("create preference: %w", err)
	}
	if pref.InitPoint == "" {
		pref.InitPoint = pref.SandboxInitPoint
	}
	if pref.ID == "" || pref.InitPoint == "" {
		return nil, fmt.Errorf("create preference: %w: empty preference in response", ErrUnexpectedStatus)
	}
	return &pref, nil
}

type FeeDetail struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

type TransactionDetails struct {
	NetReceivedAmount decimal.Decimal `json:"net_received_amount"`
}

// Payment is the subset of /v1/payments/{id} the ticket mirror needs.
type Payment struct {
	ID                 json.Number        `json:"id"`
	Status             string             `json:"status"`
	StatusDetail       string             `json:"status_detail"`
	PaymentMethodID    string             `json:"payment_method_id"`
	DateApproved       *time.Time         `json:"date_approved"`
	TransactionAmount  decimal.Decimal    `json:"transaction_amount"`
	FeeDetails         []FeeDetail        `json:"fee_details"`
	TransactionDetails TransactionDetails `json:"transaction_details"`
	Installments       *int               `json:"installments"`
	ExternalReference  string             `json:"external_reference"`
	Metadata           map[string]any     `json:"metadata"`
}

// UserID returns metadata.user_id, or "" when the payment is not correlated.
func (p *Payment) UserID() string {
	v, ok := p.Metadata["user_id"]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// Fee returns the first fee detail amount, zero when there is none.
func (p *Payment) Fee() decimal.Decimal {
	if len(p.FeeDetails) == 0 {
		return decimal.Zero
	}
	return p.FeeDetails[0].Amount
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	endpoint := c.baseURL + "/v1/payments/" + url.PathEscape(paymentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("get payment request: %w", err)
	}

	var p Payment
	if err := c.do(httpReq, &p); err != nil {
		return nil, fmt.Errorf("get payment %s: %w", paymentID, err)
	}
	return &p, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, truncate(body, 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
