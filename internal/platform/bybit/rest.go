// Package bybit implements the Bybit v5 market-data and trading clients:
// a REST client for kline backfill, wallet balance, and market orders, and a
// WebSocket client for the public linear stream.
package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/knoxfield/regimebot/internal/crypto"
	"github.com/knoxfield/regimebot/internal/domain"
)

// DefaultBaseURL is the production v5 REST endpoint. Use
// "https://api-testnet.bybit.com" for the testnet.
const DefaultBaseURL = "https://api.bybit.com"

// category is the product scope for all requests. The bot trades USDT
// perpetuals only.
const category = "linear"

// Client is the REST client for the Bybit v5 API. Public endpoints work
// without auth; private endpoints require it.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

// NewClient creates a Bybit REST client. auth may be nil for a client that
// only hits public market-data endpoints.
func NewClient(baseURL string, auth *crypto.HMACAuth) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetKlines returns up to limit candles for the symbol at the given interval
// ("1", "5", "60", "D"), oldest first. The still-forming bar, if present, is
// returned unconfirmed.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/v5/market/kline", params, nil, false)
	if err != nil {
		return nil, fmt.Errorf("bybit: get klines %s: %w", symbol, err)
	}

	var result klineResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("bybit: decode klines: %w", err)
	}

	barLen := intervalDuration(interval)
	now := time.Now().UTC()

	// Rows arrive newest first; reverse into chronological order.
	candles := make([]domain.Candle, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		if candle, ok := klineRowToCandle(symbol, interval, result.List[i], barLen, now); ok {
			candles = append(candles, candle)
		}
	}
	return candles, nil
}

// GetWalletBalance returns the total equity of the unified trading account
// in USD terms.
func (c *Client) GetWalletBalance(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")

	body, err := c.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", params, nil, true)
	if err != nil {
		return 0, fmt.Errorf("bybit: get wallet balance: %w", err)
	}

	var result walletResult
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("bybit: decode wallet balance: %w", err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("bybit: wallet balance: empty account list")
	}

	equity, err := strconv.ParseFloat(result.List[0].TotalEquity, 64)
	if err != nil {
		return 0, fmt.Errorf("bybit: parse total equity %q: %w", result.List[0].TotalEquity, err)
	}
	return equity, nil
}

// PlaceMarketOrder opens a position with a market order. LONG buys, SHORT
// sells.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, dir domain.TradeDirection, size float64) error {
	return c.createOrder(ctx, symbol, sideForEntry(dir), size, false)
}

// CloseMarketOrder closes a position with a reduce-only market order on the
// opposite side of the entry.
func (c *Client) CloseMarketOrder(ctx context.Context, symbol string, dir domain.TradeDirection, size float64) error {
	return c.createOrder(ctx, symbol, sideForExit(dir), size, true)
}

func (c *Client) createOrder(ctx context.Context, symbol, side string, size float64, reduceOnly bool) error {
	req := orderCreateRequest{
		Category:   category,
		Symbol:     symbol,
		Side:       side,
		OrderType:  "Market",
		Qty:        strconv.FormatFloat(size, 'f', -1, 64),
		ReduceOnly: reduceOnly,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", nil, req, true)
	if err != nil {
		return fmt.Errorf("bybit: create order %s %s: %w", symbol, side, err)
	}

	var result orderCreateResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("bybit: decode order response: %w", err)
	}
	if result.OrderID == "" {
		return fmt.Errorf("bybit: order accepted without an order ID")
	}
	return nil
}

func sideForEntry(dir domain.TradeDirection) string {
	if dir == domain.DirectionShort {
		return "Sell"
	}
	return "Buy"
}

func sideForExit(dir domain.TradeDirection) string {
	if dir == domain.DirectionShort {
		return "Buy"
	}
	return "Sell"
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, optionally signs, sends, and reads a v5 request. The
// signing payload is the raw query string for GET and the JSON body for
// POST.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, reqBody any, signed bool) ([]byte, error) {
	query := ""
	if len(params) > 0 {
		query = params.Encode()
	}

	var (
		bodyReader io.Reader
		payload    = query
	)
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
		payload = string(jsonBody)
	}

	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if signed {
		if c.auth == nil {
			return nil, fmt.Errorf("bybit: API credentials not configured")
		}
		for k, v := range c.auth.Headers(payload) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var envelope restEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.RetCode != 0 {
		return nil, fmt.Errorf("API error %d: %s", envelope.RetCode, envelope.RetMsg)
	}

	return envelope.Result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
