/**
 * @description
 * This package provides a client for communicating with the rate catalog
 * service, the system of record for per-room rental rates. The booking
 * service reads rates here when pricing a stay; it never caches or owns
 * rate data.
 */
package ratecatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentrooms/booking-service/internal/domain"
)

// Client is a client for the rate catalog service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new rate catalog client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// rateResponse defines the response from the rate lookup endpoint.
type rateResponse struct {
	RoomID    string   `json:"room_id"`
	PriceType string   `json:"price_type"`
	Rate      *float64 `json:"rate"`
}

// GetRate fetches the rate of a room for a price granularity (Day, Week or
// Month). The second return value is false when the room exists but has no
// rate configured for that granularity; the caller decides what a missing
// rate means.
func (c *Client) GetRate(ctx context.Context, roomID uuid.UUID, priceType domain.PriceType) (float64, bool, error) {
	if c.baseURL == "" {
		return 0, false, fmt.Errorf("rate catalog base url is empty")
	}

	url := fmt.Sprintf("%s/internal/rooms/%s/rates?price_type=%s", c.baseURL, roomID, priceType)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("failed to execute request to rate catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.StatusCode >= 400 {
		return 0, false, fmt.Errorf("rate catalog returned error status %d", resp.StatusCode)
	}

	var response rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Rate == nil {
		return 0, false, nil
	}
	return *response.Rate, true, nil
}
