package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// BookHandler receives full orderbook snapshots from the market channel.
type BookHandler func(domain.BookSnapshot)

// TradePriceHandler receives price_change and last_trade_price updates.
type TradePriceHandler func(assetID string, price float64, ts time.Time)

// DisconnectHandler is invoked once when the stream drops for any reason
// other than Close.
type DisconnectHandler func(err error)

// MarketStream is a WebSocket client for the CLOB market channel. It does
// not reconnect on its own: when the connection drops it flips its
// connectivity flag and notifies the disconnect handler, and the owner
// decides whether to open a fresh stream. Handlers run on the read
// goroutine, so book handlers see frames in arrival order.
type MarketStream struct {
	wsURL string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	handlerMu       sync.RWMutex
	bookHandlers    []BookHandler
	priceHandlers   []TradePriceHandler
	onDisconnect    DisconnectHandler
	disconnectFired bool

	done chan struct{}
}

// NewMarketStream creates a stream for the market channel endpoint,
// e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewMarketStream(wsURL string) *MarketStream {
	return &MarketStream{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect dials the endpoint and subscribes to the given asset IDs. The
// subscription rides on the initial frame, so there is no separate
// Subscribe step.
func (m *MarketStream) Connect(ctx context.Context, assetIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, m.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	m.conn = conn
	m.connected = true

	m.conn.SetReadDeadline(time.Now().Add(pongWait))
	m.conn.SetPongHandler(func(string) error {
		m.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sub := wsSubscribe{AssetIDs: assetIDs, Type: "market"}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal subscribe: %w", err)
	}
	m.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.conn.Close()
		m.connected = false
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}

	go m.readLoop(conn)
	go m.pingLoop(conn)

	return nil
}

// Connected reports whether the stream currently has a live connection.
func (m *MarketStream) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Close shuts the stream down. The disconnect handler is not invoked for
// an explicit close.
func (m *MarketStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.done)

	if m.conn != nil {
		_ = m.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return m.conn.Close()
	}
	return nil
}

// OnBook registers a handler for full book snapshots.
func (m *MarketStream) OnBook(h BookHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.bookHandlers = append(m.bookHandlers, h)
}

// OnTradePrice registers a handler for price_change and last_trade_price
// frames.
func (m *MarketStream) OnTradePrice(h TradePriceHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.priceHandlers = append(m.priceHandlers, h)
}

// OnDisconnect registers the handler called when the connection drops.
func (m *MarketStream) OnDisconnect(h DisconnectHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onDisconnect = h
}

func (m *MarketStream) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-m.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-m.done:
				return
			default:
			}
			m.markDisconnected(err)
			return
		}

		m.handleFrame(message)
	}
}

func (m *MarketStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *MarketStream) markDisconnected(err error) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()

	m.handlerMu.Lock()
	fired := m.disconnectFired
	m.disconnectFired = true
	h := m.onDisconnect
	m.handlerMu.Unlock()

	if h != nil && !fired {
		h(fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err))
	}
}

// handleFrame parses one wire frame. The market channel batches events in
// JSON arrays; single objects also occur. Malformed frames are dropped.
func (m *MarketStream) handleFrame(raw []byte) {
	trimmed := trimSpaceLeft(raw)
	if len(trimmed) == 0 {
		return
	}

	if trimmed[0] == '[' {
		var events []json.RawMessage
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return
		}
		for _, ev := range events {
			m.handleEvent(ev)
		}
		return
	}
	m.handleEvent(trimmed)
}

func (m *MarketStream) handleEvent(raw []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.EventType {
	case "book":
		var book BookMessage
		if err := json.Unmarshal(raw, &book); err != nil {
			return
		}
		snap := book.ToDomainSnapshot()

		m.handlerMu.RLock()
		handlers := m.bookHandlers
		m.handlerMu.RUnlock()
		for _, h := range handlers {
			h(snap)
		}

	case "price_change":
		var pc PriceChangeMessage
		if err := json.Unmarshal(raw, &pc); err != nil {
			return
		}
		ts := parseMillis(pc.Timestamp)

		m.handlerMu.RLock()
		handlers := m.priceHandlers
		m.handlerMu.RUnlock()
		for _, change := range pc.PriceChanges {
			price, err := parsePrice(change.Price)
			if err != nil {
				continue
			}
			for _, h := range handlers {
				h(change.AssetID, price, ts)
			}
		}

	case "last_trade_price":
		var lt LastTradePriceMessage
		if err := json.Unmarshal(raw, &lt); err != nil {
			return
		}
		price, err := parsePrice(lt.Price)
		if err != nil {
			return
		}

		m.handlerMu.RLock()
		handlers := m.priceHandlers
		m.handlerMu.RUnlock()
		for _, h := range handlers {
			h(lt.AssetID, price, parseMillis(lt.Timestamp))
		}
	}
}

func trimSpaceLeft(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t' || b[0] == '\n' || b[0] == '\r') {
		b = b[1:]
	}
	return b
}
