package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/knoxfield/regimebot/internal/domain"
)

// DefaultWSURL is the production v5 public stream for linear contracts.
const DefaultWSURL = "wss://stream.bybit.com/v5/public/linear"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the time allowed between inbound messages before the
	// connection is considered dead. Bybit answers app-level pings, so any
	// healthy connection produces traffic well within this window.
	readWait = 60 * time.Second

	// pingPeriod sends app-level pings at this interval. Bybit recommends
	// one every 20 seconds. Must be less than readWait.
	pingPeriod = 20 * time.Second

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// CandleHandler is called for every kline update, confirmed or not.
type CandleHandler func(domain.Candle)

// TradeHandler is called for every public trade print.
type TradeHandler func(domain.MarketTrade)

// OrderbookHandler is called for every full orderbook snapshot.
type OrderbookHandler func(domain.OrderbookSnapshot)

// WSClient is a WebSocket client for the Bybit v5 public data stream. It
// manages the connection lifecycle, subscriptions, and dispatches messages
// to registered handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Topics to restore on reconnect.
	topics []string

	// Handlers
	candleHandlers    []CandleHandler
	tradeHandlers     []TradeHandler
	orderbookHandlers []OrderbookHandler
	handlerMu         sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a new WebSocket client for the given stream URL. An
// empty URL uses the production linear stream.
func NewWSClient(wsURL string) *WSClient {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("bybit/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bybit/ws: connect: %w", err)
	}

	w.conn = conn
	w.conn.SetReadDeadline(time.Now().Add(readWait))

	go w.readLoop(conn)
	go w.pingLoop(conn)

	// Restore any previous subscriptions after reconnect.
	if len(w.topics) > 0 {
		if err := w.sendCommand(wsCommand{Op: "subscribe", Args: w.topics}); err != nil {
			return fmt.Errorf("bybit/ws: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to the given topics, e.g. "kline.5.BTCUSDT",
// "publicTrade.BTCUSDT", "orderbook.50.BTCUSDT".
func (w *WSClient) Subscribe(ctx context.Context, topics ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("bybit/ws: not connected")
	}

	if err := w.sendCommand(wsCommand{Op: "subscribe", Args: topics}); err != nil {
		return fmt.Errorf("bybit/ws: subscribe: %w", err)
	}

	// Track for reconnection, skipping duplicates.
	known := make(map[string]struct{}, len(w.topics))
	for _, t := range w.topics {
		known[t] = struct{}{}
	}
	for _, t := range topics {
		if _, dup := known[t]; !dup {
			w.topics = append(w.topics, t)
		}
	}

	return nil
}

// Unsubscribe unsubscribes from the given topics.
func (w *WSClient) Unsubscribe(ctx context.Context, topics ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("bybit/ws: not connected")
	}

	if err := w.sendCommand(wsCommand{Op: "unsubscribe", Args: topics}); err != nil {
		return fmt.Errorf("bybit/ws: unsubscribe: %w", err)
	}

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
	}
	kept := w.topics[:0]
	for _, t := range w.topics {
		if _, gone := drop[t]; !gone {
			kept = append(kept, t)
		}
	}
	w.topics = kept

	return nil
}

// Close shuts down the WebSocket connection and stops the loops.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// OnCandle registers a handler for kline updates.
func (w *WSClient) OnCandle(handler CandleHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.candleHandlers = append(w.candleHandlers, handler)
}

// OnTrade registers a handler for public trade prints.
func (w *WSClient) OnTrade(handler TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tradeHandlers = append(w.tradeHandlers, handler)
}

// OnOrderbook registers a handler for orderbook snapshots.
func (w *WSClient) OnOrderbook(handler OrderbookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.orderbookHandlers = append(w.orderbookHandlers, handler)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON op message. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages from the given connection and
// dispatches them. On disconnect it attempts to reconnect with exponential
// backoff; a successful Connect starts a fresh readLoop.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return
		}

		conn.SetReadDeadline(time.Now().Add(readWait))
		w.handleMessage(message)
	}
}

// pingLoop sends Bybit app-level ping messages to keep the stream alive.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, _ := json.Marshal(wsCommand{Op: "ping"})
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw message and routes topic data to the matching
// handlers. Op acknowledgements and pongs are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope wsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return // Silently drop unparseable messages.
	}

	if envelope.Topic == "" {
		return // subscribe ack or pong
	}

	switch {
	case strings.HasPrefix(envelope.Topic, "kline."):
		symbol := topicSymbol(envelope.Topic)
		var klines []wsKline
		if err := json.Unmarshal(envelope.Data, &klines); err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.candleHandlers
		w.handlerMu.RUnlock()

		for _, k := range klines {
			candle := k.toCandle(symbol)
			for _, h := range handlers {
				h(candle)
			}
		}

	case strings.HasPrefix(envelope.Topic, "publicTrade."):
		var trades []wsTrade
		if err := json.Unmarshal(envelope.Data, &trades); err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.tradeHandlers
		w.handlerMu.RUnlock()

		for _, t := range trades {
			trade := t.toTrade()
			for _, h := range handlers {
				h(trade)
			}
		}

	case strings.HasPrefix(envelope.Topic, "orderbook."):
		// Depth deltas would need book reassembly; the trackers only use
		// full snapshots.
		if envelope.Type != "snapshot" {
			return
		}
		var book wsOrderbook
		if err := json.Unmarshal(envelope.Data, &book); err != nil {
			return
		}
		snap := book.toSnapshot(envelope.TS)

		w.handlerMu.RLock()
		handlers := w.orderbookHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(snap)
		}
	}
}

// topicSymbol extracts the trailing symbol from a topic like
// "kline.5.BTCUSDT".
func topicSymbol(topic string) string {
	idx := strings.LastIndex(topic, ".")
	if idx < 0 {
		return topic
	}
	return topic[idx+1:]
}

// reconnect attempts to re-establish the connection with exponential
// backoff. It blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
