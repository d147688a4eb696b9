// Package gateway wraps the hosted-checkout payment provider. The
// provider takes a checkout preference and returns a redirect URL for
// card payments or a copy-and-paste code plus QR image for PIX.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vmachado/lojapos-backend/pkg/config"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

// Client talks to the payment provider's checkout API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the gateway client from config.
func NewClient(cfg config.GatewayConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway base url is required")
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway access token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: token,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// PreferenceItem is one order line sent to the provider. Amounts cross
// the wire as decimal strings, not floats.
type PreferenceItem struct {
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PreferenceRequest describes the checkout preference for one order.
type PreferenceRequest struct {
	ExternalReference uuid.UUID        `json:"external_reference"`
	Items             []PreferenceItem `json:"items"`
	PayerEmail        string           `json:"payer_email,omitempty"`
	NotificationURL   string           `json:"notification_url,omitempty"`
}

// Preference is the provider's answer: where to send the shopper.
type Preference struct {
	ID          string
	InitPoint   string
	PixCode     string
	PixQRBase64 string
}

// CreatePreference registers the order with the provider and returns
// the redirect/PIX handles.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway client not configured")
	}
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "preference requires at least one item")
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "preference item has invalid quantity or price")
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal preference request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build preference request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute preference request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "preference request failed")
	}

	var apiResp struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
		Pix       struct {
			Code     string `json:"qr_code"`
			QRBase64 string `json:"qr_code_base64"`
		} `json:"point_of_interaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode preference response")
	}
	if apiResp.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "preference response missing id")
	}

	return &Preference{
		ID:          apiResp.ID,
		InitPoint:   apiResp.InitPoint,
		PixCode:     apiResp.Pix.Code,
		PixQRBase64: apiResp.Pix.QRBase64,
	}, nil
}

// PaymentStatus is the provider's view of one payment.
type PaymentStatus struct {
	ID                string
	Status            string
	ExternalReference string
	Amount            decimal.Decimal
}

// GetPayment fetches the payment tied to a provider payment ID, used
// when handling webhook notifications.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*PaymentStatus, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway client not configured")
	}
	trimmed := strings.TrimSpace(paymentID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+trimmed, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build payment request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute payment request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found at gateway")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "payment request failed")
	}

	var apiResp struct {
		ID                string          `json:"id"`
		Status            string          `json:"status"`
		ExternalReference string          `json:"external_reference"`
		TransactionAmount decimal.Decimal `json:"transaction_amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment response")
	}

	return &PaymentStatus{
		ID:                apiResp.ID,
		Status:            apiResp.Status,
		ExternalReference: apiResp.ExternalReference,
		Amount:            apiResp.TransactionAmount,
	}, nil
}
