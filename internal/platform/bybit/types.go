package bybit

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// --------------------------------------------------------------------------
// REST types (v5 API)
// --------------------------------------------------------------------------

// restEnvelope is the common v5 response wrapper. RetCode 0 means success.
type restEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// klineResult is the result payload of GET /v5/market/kline. Each row is
// [startMs, open, high, low, close, volume, turnover] as strings, newest
// first.
type klineResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}

// walletResult is the result payload of GET /v5/account/wallet-balance.
type walletResult struct {
	List []struct {
		AccountType string `json:"accountType"`
		TotalEquity string `json:"totalEquity"`
	} `json:"list"`
}

// orderCreateRequest is the body of POST /v5/order/create.
type orderCreateRequest struct {
	Category   string `json:"category"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"` // "Buy" or "Sell"
	OrderType  string `json:"orderType"`
	Qty        string `json:"qty"`
	ReduceOnly bool   `json:"reduceOnly,omitempty"`
}

// orderCreateResult is the result payload of POST /v5/order/create.
type orderCreateResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// klineRowToCandle converts one REST kline row into a domain candle. A row
// whose bar has fully elapsed by now is confirmed.
func klineRowToCandle(symbol, interval string, row []string, barLen time.Duration, now time.Time) (domain.Candle, bool) {
	if len(row) < 6 {
		return domain.Candle{}, false
	}

	startMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return domain.Candle{}, false
	}
	openTime := time.UnixMilli(startMs).UTC()

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return domain.Candle{}, false
		}
		vals[i] = v
	}

	return domain.Candle{
		Symbol:    symbol,
		Interval:  interval,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		OpenTime:  openTime,
		Confirmed: !now.Before(openTime.Add(barLen)),
	}, true
}

// --------------------------------------------------------------------------
// WebSocket types (v5 public stream)
// --------------------------------------------------------------------------

// wsCommand is an outbound op message ("subscribe", "unsubscribe", "ping").
type wsCommand struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

// wsEnvelope is the inbound message wrapper. Data messages carry a topic;
// op acknowledgements carry op/success instead.
type wsEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"` // "snapshot" or "delta" for topic messages
	TS      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
}

// wsKline is one entry of a kline.{interval}.{symbol} data array.
type wsKline struct {
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Interval string `json:"interval"`
	Open     string `json:"open"`
	Close    string `json:"close"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Volume   string `json:"volume"`
	Confirm  bool   `json:"confirm"`
}

// wsTrade is one entry of a publicTrade.{symbol} data array.
type wsTrade struct {
	TradeTimeMs int64  `json:"T"`
	Symbol      string `json:"s"`
	Side        string `json:"S"` // taker side, "Buy" or "Sell"
	Size        string `json:"v"`
	Price       string `json:"p"`
	TradeID     string `json:"i"`
}

// wsOrderbook is the data payload of orderbook.{depth}.{symbol}.
type wsOrderbook struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"` // [price, size]
	Asks   [][]string `json:"a"`
	Update int64      `json:"u"`
	Seq    int64      `json:"seq"`
}

func (k wsKline) toCandle(symbol string) domain.Candle {
	return domain.Candle{
		Symbol:    symbol,
		Interval:  k.Interval,
		Open:      parseFloat(k.Open),
		High:      parseFloat(k.High),
		Low:       parseFloat(k.Low),
		Close:     parseFloat(k.Close),
		Volume:    parseFloat(k.Volume),
		OpenTime:  time.UnixMilli(k.Start).UTC(),
		Confirmed: k.Confirm,
	}
}

func (t wsTrade) toTrade() domain.MarketTrade {
	return domain.MarketTrade{
		Symbol:    t.Symbol,
		Price:     parseFloat(t.Price),
		Quantity:  parseFloat(t.Size),
		Side:      t.Side,
		Timestamp: time.UnixMilli(t.TradeTimeMs).UTC(),
	}
}

func (b wsOrderbook) toSnapshot(ts int64) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Symbol:    b.Symbol,
		Bids:      parseLevels(b.Bids),
		Asks:      parseLevels(b.Asks),
		Timestamp: time.UnixMilli(ts).UTC(),
	}
}

func parseLevels(rows [][]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		levels = append(levels, domain.PriceLevel{
			Price: parseFloat(row[0]),
			Size:  parseFloat(row[1]),
		})
	}
	return levels
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// intervalDuration maps a Bybit kline interval string ("1", "5", "60", "D")
// to its bar length.
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "D":
		return 24 * time.Hour
	case "W":
		return 7 * 24 * time.Hour
	}
	if mins, err := strconv.Atoi(interval); err == nil && mins > 0 {
		return time.Duration(mins) * time.Minute
	}
	return 5 * time.Minute
}
