/**
 * @description
 * This package provides a client for the external exchange-rate API. It
 * encapsulates the logic for making authenticated HTTP requests to the rate
 * provider's pair-conversion endpoint, handling response parsing, and
 * validating the returned rate before it crosses into the service.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package rateclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"
)

// Client is a client for the exchange-rate provider API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new exchange-rate client. The timeout bounds every
// lookup so a slow provider cannot stall a transfer indefinitely.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PairConversionResponse is the expected response from the provider's pair endpoint.
type PairConversionResponse struct {
	Result         string  `json:"result"`
	BaseCode       string  `json:"base_code"`
	TargetCode     string  `json:"target_code"`
	ConversionRate float64 `json:"conversion_rate"`
	ErrorType      string  `json:"error-type,omitempty"`
}

// GetRate fetches the conversion rate from one currency to another.
func (c *Client) GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	url := fmt.Sprintf("%s/v6/%s/pair/%s/%s", c.BaseURL, c.APIKey, fromCurrency, toCurrency)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute rate request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read rate response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=rate_client op=get_rate pair=%s/%s status=%d msg=\"non-2xx response\"", fromCurrency, toCurrency, resp.StatusCode)
		return 0, fmt.Errorf("rate provider returned status %d", resp.StatusCode)
	}

	var pairResp PairConversionResponse
	if err := json.Unmarshal(bodyBytes, &pairResp); err != nil {
		return 0, fmt.Errorf("failed to decode rate response: %w", err)
	}
	if pairResp.Result != "success" {
		log.Printf("level=warn component=rate_client op=get_rate pair=%s/%s result=%q error_type=%q", fromCurrency, toCurrency, pairResp.Result, pairResp.ErrorType)
		return 0, fmt.Errorf("rate provider error: %s", pairResp.ErrorType)
	}

	// A zero, negative, or non-finite rate would corrupt every downstream
	// conversion, so it is rejected at the boundary.
	rate := pairResp.ConversionRate
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("rate provider returned invalid rate %v for %s/%s", rate, fromCurrency, toCurrency)
	}

	return rate, nil
}
