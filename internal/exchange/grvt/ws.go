// ws.go implements the GRVT order stream.
//
// The trade-data websocket speaks JSON-RPC: one subscribe request per stream,
// then feed messages carrying full order states. The session cookie from the
// REST login authenticates the connection. Reconnects use exponential
// backoff (1s → 30s max) and resubscribe on every connection.
package grvt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxReconnectWait = 30 * time.Second
	readTimeout      = 90 * time.Second
	writeTimeout     = 10 * time.Second
)

// wsOrderFeed is the order state carried by one feed message.
type wsOrderFeed struct {
	OrderID string `json:"order_id"`
	State   struct {
		Status     string   `json:"status"`
		TradedSize []string `json:"traded_size"`
		BookSize   []string `json:"book_size"`
	} `json:"state"`
	Legs []struct {
		Instrument    string `json:"instrument"`
		IsBuyingAsset bool   `json:"is_buying_asset"`
		Size          string `json:"size"`
		LimitPrice    string `json:"limit_price"`
	} `json:"legs"`
	Metadata struct {
		ClientOrderID string `json:"client_order_id"`
	} `json:"metadata"`
}

type wsFeedMessage struct {
	Method string       `json:"method"`
	Feed   *wsOrderFeed `json:"feed"`
}

// OrderStream maintains the authenticated order feed for one instrument.
type OrderStream struct {
	url        string
	instrument string
	auth       *Auth
	onOrder    func(wsOrderFeed)
	logger     *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
}

// NewOrderStream creates the stream client. onOrder receives every feed
// message for the subscribed instrument.
func NewOrderStream(url, instrument string, auth *Auth, onOrder func(wsOrderFeed), logger *slog.Logger) *OrderStream {
	return &OrderStream{
		url:        url,
		instrument: instrument,
		auth:       auth,
		onOrder:    onOrder,
		logger:     logger.With("component", "grvt_ws"),
	}
}

// Run connects and maintains the stream with auto-reconnect.
// Blocks until ctx is cancelled.
func (s *OrderStream) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("order stream disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close tears down the connection.
func (s *OrderStream) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *OrderStream) connectAndRead(ctx context.Context) error {
	cookie, accountID := s.auth.Session()
	if cookie == nil {
		return fmt.Errorf("no session, login before connecting")
	}

	header := http.Header{}
	header.Set("Cookie", cookie.String())
	if accountID != "" {
		header.Set("X-Grvt-Account-Id", accountID)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	sub := map[string]any{
		"jsonrpc": "2.0",
		"method":  "subscribe",
		"params": map[string]any{
			"stream":    "v1.order",
			"selectors": []string{s.instrument},
		},
		"id": 1,
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.logger.Info("order stream connected", "instrument", s.instrument)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg wsFeedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Error("unmarshal feed message", "error", err)
			continue
		}
		if msg.Feed == nil {
			// Subscription ack or heartbeat.
			s.logger.Debug("non-feed message", "method", msg.Method)
			continue
		}
		if s.onOrder != nil {
			s.onOrder(*msg.Feed)
		}
	}
}
