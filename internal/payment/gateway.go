package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Gateway is the outbound contract with the external payment provider. Only
// the call shapes are modeled here; provider internals are out of scope.
type Gateway interface {
	InitiatePayment(ctx context.Context, orderID string, amountCents int64, method string) (string, error)
	Refund(ctx context.Context, paymentID string, amountCents int64) error
}

// HTTPGateway talks to the provider-facing gateway service.
type HTTPGateway struct {
	client  *http.Client
	baseURL string
}

func NewHTTPGateway(client *http.Client, baseURL string) *HTTPGateway {
	if baseURL != "" && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &HTTPGateway{client: client, baseURL: baseURL}
}

type initiateRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
}

type initiateResponse struct {
	RedirectURL string `json:"redirect_url"`
}

func (g *HTTPGateway) InitiatePayment(ctx context.Context, orderID string, amountCents int64, method string) (string, error) {
	body, err := json.Marshal(initiateRequest{OrderID: orderID, AmountCents: amountCents, Method: method})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/payments", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment gateway error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("payment gateway returned status: %d", resp.StatusCode)
	}

	var decoded initiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return decoded.RedirectURL, nil
}

type refundRequest struct {
	PaymentID   string `json:"payment_id"`
	AmountCents int64  `json:"amount_cents"`
}

func (g *HTTPGateway) Refund(ctx context.Context, paymentID string, amountCents int64) error {
	body, err := json.Marshal(refundRequest{PaymentID: paymentID, AmountCents: amountCents})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/refunds", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("payment gateway error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("refund returned status: %d", resp.StatusCode)
	}
	return nil
}
