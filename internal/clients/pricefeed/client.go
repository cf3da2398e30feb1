// Package pricefeed provides a client for the external daily price feed.
package pricefeed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/petrakis/factorlab/internal/domain"
)

// Client fetches daily bars over HTTP. It satisfies the history loader
// boundary used by the price sync job.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a price feed client. The base URL must point at the feed
// root, e.g. "https://feed.example.com/v1".
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "pricefeed").Logger(),
	}
}

// barsResponse is the feed's response envelope.
type barsResponse struct {
	Success bool                `json:"success"`
	Error   *string             `json:"error"`
	Bars    []domain.DailyPrice `json:"bars"`
}

// FetchDailyPrices returns bars for one security strictly after the given
// date ("" means full history), dates ascending.
func (c *Client) FetchDailyPrices(isin string, since string) ([]domain.DailyPrice, error) {
	reqURL := fmt.Sprintf("%s/prices/daily?isin=%s", c.baseURL, url.QueryEscape(isin))
	if since != "" {
		reqURL += "&since=" + url.QueryEscape(since)
	}

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build price feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price feed returned status %d for %s", resp.StatusCode, isin)
	}

	var payload barsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode price feed response: %w", err)
	}
	if !payload.Success {
		msg := "unknown error"
		if payload.Error != nil {
			msg = *payload.Error
		}
		return nil, fmt.Errorf("price feed error for %s: %s", isin, msg)
	}

	c.log.Debug().Str("isin", isin).Int("bars", len(payload.Bars)).Msg("Fetched daily bars")
	return payload.Bars, nil
}
