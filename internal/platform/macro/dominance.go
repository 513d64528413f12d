package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// globalResponse is the relevant slice of the CoinGecko /global payload.
type globalResponse struct {
	Data struct {
		MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
		UpdatedAt           int64              `json:"updated_at"`
	} `json:"data"`
}

// FetchBTCDominance returns BTC's share of total crypto market cap as a
// percentage (e.g. 54.3).
func (c *Client) FetchBTCDominance(ctx context.Context) (domain.IndicatorPoint, error) {
	body, err := c.get(ctx, c.globalURL)
	if err != nil {
		return domain.IndicatorPoint{}, fmt.Errorf("macro: fetch btc dominance: %w", err)
	}

	var resp globalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.IndicatorPoint{}, fmt.Errorf("macro: decode global data: %w", err)
	}

	dominance, ok := resp.Data.MarketCapPercentage["btc"]
	if !ok {
		return domain.IndicatorPoint{}, fmt.Errorf("macro: global data has no btc dominance")
	}

	ts := time.Now().UTC()
	if resp.Data.UpdatedAt > 0 {
		ts = time.Unix(resp.Data.UpdatedAt, 0).UTC()
	}

	return domain.IndicatorPoint{Value: dominance, Timestamp: ts}, nil
}
