package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/afrikoin/likeledger/pkg/credits"
)

const (
	checkoutSessionPath = "/v1/checkout/sessions/"
	paymentStatusPaid   = "paid"
	maxResponseBytes    = 1 << 20
)

// Client confirms checkout sessions against the payment provider's REST API.
// It implements credits.PaymentProvider.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient wires a payment provider client.
func NewClient(baseURL string, secretKey string, timeout time.Duration) (*Client, error) {
	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		return nil, fmt.Errorf("payment base url is required")
	}
	if _, err := url.Parse(trimmedBase); err != nil {
		return nil, fmt.Errorf("parse payment base url: %w", err)
	}
	if strings.TrimSpace(secretKey) == "" {
		return nil, fmt.Errorf("payment secret key is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    trimmedBase,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type checkoutSessionPayload struct {
	ID            string `json:"id"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
}

type providerErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ConfirmSession fetches the checkout session identified by token and reports
// whether the provider considers it paid.
func (client *Client) ConfirmSession(ctx context.Context, token string) (credits.PaymentConfirmation, error) {
	endpoint := client.baseURL + checkoutSessionPath + url.PathEscape(token)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return credits.PaymentConfirmation{}, fmt.Errorf("build session request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+client.secretKey)
	request.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return credits.PaymentConfirmation{}, fmt.Errorf("fetch session: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return credits.PaymentConfirmation{}, fmt.Errorf("read session response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		var providerError providerErrorPayload
		if unmarshalErr := json.Unmarshal(body, &providerError); unmarshalErr == nil && providerError.Error.Message != "" {
			return credits.PaymentConfirmation{}, fmt.Errorf("provider rejected session: %s", providerError.Error.Message)
		}
		return credits.PaymentConfirmation{}, fmt.Errorf("provider returned status %d", response.StatusCode)
	}

	var payload checkoutSessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return credits.PaymentConfirmation{}, fmt.Errorf("decode session response: %w", err)
	}
	return credits.PaymentConfirmation{
		Paid:        payload.PaymentStatus == paymentStatusPaid,
		AmountCents: payload.AmountTotal,
		Currency:    strings.ToLower(payload.Currency),
	}, nil
}
