// Package macro fetches the slow-moving macro indicators the regime engine
// consumes: the US dollar index (DXY) and BTC market-cap dominance. Both are
// polled hourly and cached; readers apply their own freshness windows.
package macro

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultDXYURL serves the latest DXY quote as CSV (Stooq "dx.f" is the
	// ICE dollar index future).
	DefaultDXYURL = "https://stooq.com/q/l/?s=dx.f&f=sd2t2ohlcv&h&e=csv"

	// DefaultGlobalURL serves global crypto market data including BTC
	// dominance.
	DefaultGlobalURL = "https://api.coingecko.com/api/v3/global"
)

// Client fetches macro indicator values over plain HTTP.
type Client struct {
	dxyURL     string
	globalURL  string
	httpClient *http.Client
}

// NewClient creates a macro indicator client. Empty URLs use the public
// defaults.
func NewClient(dxyURL, globalURL string) *Client {
	if dxyURL == "" {
		dxyURL = DefaultDXYURL
	}
	if globalURL == "" {
		globalURL = DefaultGlobalURL
	}
	return &Client{
		dxyURL:    dxyURL,
		globalURL: globalURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// get issues a GET and returns the body for 2xx responses.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return body, nil
}
