// Package pricefeed contains the transport clients for the underlying
// asset's reference price: a streaming WebSocket client and a REST client
// used for polling and candle pre-seeding.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	// heartbeatPeriod is how often the feed expects a "PING" text frame.
	heartbeatPeriod = 5 * time.Second

	streamWriteWait = 10 * time.Second
)

// PriceHandler receives each reference price delivered over the stream.
type PriceHandler func(domain.ReferencePrice)

// DisconnectHandler is invoked once when the stream drops for any reason
// other than Close.
type DisconnectHandler func(err error)

type subscribeFrame struct {
	Action        string         `json:"action"`
	Subscriptions []subscription `json:"subscriptions"`
}

type subscription struct {
	Topic   string   `json:"topic"`
	Type    string   `json:"type"`
	Filters []string `json:"filters"`
}

type updateFrame struct {
	Topic   string `json:"topic"`
	Payload struct {
		Value     json.Number `json:"value"`
		Timestamp int64       `json:"timestamp"`
	} `json:"payload"`
}

// StreamClient subscribes to the crypto_prices topic for one symbol. Like
// the market stream, it never reconnects itself; the owning feed decides
// what to do when the connection drops.
type StreamClient struct {
	wsURL  string
	symbol string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	handlerMu       sync.RWMutex
	priceHandlers   []PriceHandler
	onDisconnect    DisconnectHandler
	disconnectFired bool

	done chan struct{}
}

// NewStreamClient creates a stream client for the given endpoint and symbol
// (e.g. "BTC").
func NewStreamClient(wsURL, symbol string) *StreamClient {
	return &StreamClient{
		wsURL:  wsURL,
		symbol: symbol,
		done:   make(chan struct{}),
	}
}

// Connect dials the feed and subscribes to price updates for the symbol.
func (s *StreamClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("pricefeed/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("pricefeed/ws: connect: %w", err)
	}
	s.conn = conn
	s.connected = true

	sub := subscribeFrame{
		Action: "subscribe",
		Subscriptions: []subscription{{
			Topic:   "crypto_prices",
			Type:    "update",
			Filters: []string{s.symbol},
		}},
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("pricefeed/ws: marshal subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		s.connected = false
		return fmt.Errorf("pricefeed/ws: subscribe: %w", err)
	}

	go s.readLoop(conn)
	go s.heartbeatLoop(conn)

	return nil
}

// Connected reports whether the stream currently has a live connection.
func (s *StreamClient) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Close shuts the stream down without firing the disconnect handler.
func (s *StreamClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.connected = false
	close(s.done)

	if s.conn != nil {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return s.conn.Close()
	}
	return nil
}

// OnPrice registers a handler for streamed reference prices.
func (s *StreamClient) OnPrice(h PriceHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.priceHandlers = append(s.priceHandlers, h)
}

// OnDisconnect registers the handler called when the connection drops.
func (s *StreamClient) OnDisconnect(h DisconnectHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.onDisconnect = h
}

func (s *StreamClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.markDisconnected(err)
			return
		}

		s.handleFrame(message)
	}
}

// heartbeatLoop sends the feed's application-level "PING" text frame. The
// feed drops subscribers that go quiet.
func (s *StreamClient) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				return
			}
		}
	}
}

func (s *StreamClient) markDisconnected(err error) {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	s.handlerMu.Lock()
	fired := s.disconnectFired
	s.disconnectFired = true
	h := s.onDisconnect
	s.handlerMu.Unlock()

	if h != nil && !fired {
		h(fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err))
	}
}

// handleFrame parses one inbound frame. "PONG" replies and anything that
// is not a crypto_prices update are dropped.
func (s *StreamClient) handleFrame(raw []byte) {
	var frame updateFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}
	if frame.Topic != "crypto_prices" {
		return
	}

	value, err := strconv.ParseFloat(frame.Payload.Value.String(), 64)
	if err != nil || value <= 0 {
		return
	}

	ts := time.Now()
	if frame.Payload.Timestamp > 0 {
		ts = time.UnixMilli(frame.Payload.Timestamp)
	}

	price := domain.ReferencePrice{
		Symbol:    s.symbol,
		Value:     value,
		Timestamp: ts,
		Source:    domain.SourceStream,
	}

	s.handlerMu.RLock()
	handlers := s.priceHandlers
	s.handlerMu.RUnlock()
	for _, h := range handlers {
		h(price)
	}
}
