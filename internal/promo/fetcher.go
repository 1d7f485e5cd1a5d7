package promo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-purchase/internal/logger"
)

// Fetcher resolves promo codes against the external promo service.
type Fetcher struct {
	client  *http.Client
	baseURL string
	logger  *logger.Logger
}

func NewFetcher(client *http.Client, baseURL string, log *logger.Logger) *Fetcher {
	if baseURL != "" && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &Fetcher{client: client, baseURL: baseURL, logger: log}
}

type resolveRequest struct {
	Code           string `json:"code"`
	CartTotalCents int64  `json:"cart_total_cents"`
}

type resolveResponse struct {
	DiscountCents int64 `json:"discount_cents"`
}

func (f *Fetcher) ResolvePromo(ctx context.Context, code string, cartTotalCents int64) (int64, error) {
	if code == "" {
		return 0, nil
	}

	body, err := json.Marshal(resolveRequest{Code: code, CartTotalCents: cartTotalCents})
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/internal/v1/promos/resolve", f.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create promo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("PROMO", fmt.Sprintf("Promo service error: %v", err))
		return 0, fmt.Errorf("promo service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		f.logger.Warn("PROMO", fmt.Sprintf("Promo code not found: %s", code))
		return 0, fmt.Errorf("unknown promo code %q", code)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("promo service returned status: %d", resp.StatusCode)
	}

	var decoded resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("failed to decode promo response: %w", err)
	}

	discount := Clamp(decoded.DiscountCents, cartTotalCents)
	f.logger.Info("PROMO", fmt.Sprintf("Promo %s resolved to %d cents off", code, discount))
	return discount, nil
}
