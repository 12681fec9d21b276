// ws.go implements the Lighter stream client.
//
// One connection carries two channels:
//
//   - order_book/{market_index} (public): one snapshot on subscribe, then
//     offset-sequenced deltas into the local book. A sequence gap triggers
//     unsubscribe+resubscribe for a fresh snapshot; a crossed book does the
//     same. If recovery fails the connection is torn down and redialed.
//
//   - account_orders/{market_index}/{account_index} (authenticated): order
//     lifecycle events, forwarded raw to the adapter's normalizer. The auth
//     token expires after 10 minutes and is refreshed on every (re)subscribe.
//
// The server sends ping control messages; we answer with pong. The book is
// reset the moment the connection drops, so stale prices are never served
// across a disconnect; reconnects use exponential backoff (1s → 30s max).
package lighter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhanghongchuang/perp-dex-tools/internal/market"
	"github.com/zhanghongchuang/perp-dex-tools/pkg/types"
)

const (
	maxReconnectWait = 30 * time.Second
	readTimeout      = 90 * time.Second
	writeTimeout     = 10 * time.Second
	resubscribeDelay = time.Second
)

// wsLevel is one price level on the wire. Prices and sizes arrive as strings.
type wsLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wsOrder is one account order event on the wire.
type wsOrder struct {
	OrderIndex        int64  `json:"order_index"`
	ClientOrderIndex  int64  `json:"client_order_index"`
	MarketIndex       int64  `json:"market_index"`
	IsAsk             bool   `json:"is_ask"`
	Status            string `json:"status"`
	Price             string `json:"price"`
	InitialBaseAmount string `json:"initial_base_amount"`
	FilledBaseAmount  string `json:"filled_base_amount"`
	RemainingBaseAmt  string `json:"remaining_base_amount"`
}

type wsMessage struct {
	Type      string `json:"type"`
	Channel   string `json:"channel,omitempty"`
	OrderBook *struct {
		Offset int64     `json:"offset"`
		Bids   []wsLevel `json:"bids"`
		Asks   []wsLevel `json:"asks"`
	} `json:"order_book,omitempty"`
	Orders map[string][]wsOrder `json:"orders,omitempty"`
}

type wsControl struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Auth    string `json:"auth,omitempty"`
}

// Stream owns the Lighter websocket connection and the local order book.
type Stream struct {
	url          string
	marketIndex  int64
	accountIndex int64
	signer       *signer
	book         *market.Book
	onOrders     func([]wsOrder)
	logger       *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
}

// NewStream creates a stream client for one market. onOrders receives raw
// account order events for the adapter's normalizer.
func NewStream(url string, marketIndex, accountIndex int64, sig *signer, onOrders func([]wsOrder), logger *slog.Logger) *Stream {
	return &Stream{
		url:          url,
		marketIndex:  marketIndex,
		accountIndex: accountIndex,
		signer:       sig,
		book:         market.NewBook(),
		onOrders:     onOrders,
		logger:       logger.With("component", "lighter_ws"),
	}
}

// Book exposes the stream-maintained order book.
func (s *Stream) Book() *market.Book {
	return s.book
}

// Run connects and maintains the connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("websocket disconnected, reconnecting",
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
func (s *Stream) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	// Stale prices must not survive a disconnect: the book empties on every
	// exit path, before the reconnect backoff starts.
	defer s.book.Reset()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
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

	if err := s.subscribeBook(); err != nil {
		return fmt.Errorf("subscribe order book: %w", err)
	}
	if err := s.subscribeOrders(); err != nil {
		return fmt.Errorf("subscribe account orders: %w", err)
	}

	s.logger.Info("websocket connected", "market_index", s.marketIndex)

	// The account_orders token expires after 10 minutes; resubscribe with a
	// fresh one ahead of the deadline. The refresh goroutine lives only as
	// long as this connection.
	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()
	refresh := time.NewTicker(authTokenTTL - time.Minute)
	defer refresh.Stop()
	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case <-refresh.C:
				if err := s.subscribeOrders(); err != nil {
					s.logger.Warn("auth token refresh failed", "error", err)
					return
				}
				s.logger.Info("account orders auth token refreshed")
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if err := s.dispatchMessage(raw); err != nil {
			return err
		}
	}
}

func (s *Stream) dispatchMessage(raw []byte) error {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Error("unmarshal ws message", "error", err)
		return nil
	}

	switch msg.Type {
	case "subscribed/order_book":
		if msg.OrderBook == nil {
			s.logger.Warn("snapshot missing order_book payload")
			return nil
		}
		bids, asks := parseLevels(msg.OrderBook.Bids), parseLevels(msg.OrderBook.Asks)
		if res := s.book.ApplySnapshot(msg.OrderBook.Offset, bids, asks); res == market.Crossed {
			s.logger.Warn("crossed snapshot, resubscribing")
			return s.resubscribeBook()
		}
		depthBids, depthAsks := s.book.Depth()
		s.logger.Info("order book snapshot loaded",
			"offset", msg.OrderBook.Offset,
			"bids", depthBids,
			"asks", depthAsks,
		)

	case "update/order_book":
		if msg.OrderBook == nil {
			s.logger.Warn("delta missing order_book payload")
			return nil
		}
		bids, asks := parseLevels(msg.OrderBook.Bids), parseLevels(msg.OrderBook.Asks)
		switch s.book.ApplyDelta(msg.OrderBook.Offset, bids, asks) {
		case market.Applied, market.Stale:
		case market.Gap:
			s.logger.Warn("sequence gap, requesting fresh snapshot", "offset", msg.OrderBook.Offset)
			return s.resubscribeBook()
		case market.Crossed:
			s.logger.Warn("crossed book, requesting fresh snapshot")
			return s.resubscribeBook()
		}

	case "update/account_orders":
		orders := msg.Orders[strconv.FormatInt(s.marketIndex, 10)]
		if len(orders) > 0 && s.onOrders != nil {
			s.onOrders(orders)
		}

	case "ping":
		if err := s.writeControl(wsControl{Type: "pong"}); err != nil {
			return fmt.Errorf("pong: %w", err)
		}

	case "subscribed/account_orders":
		// Subscription ack, nothing to apply.

	default:
		s.logger.Debug("unknown ws message type", "type", msg.Type)
	}
	return nil
}

func (s *Stream) subscribeBook() error {
	return s.writeControl(wsControl{
		Type:    "subscribe",
		Channel: fmt.Sprintf("order_book/%d", s.marketIndex),
	})
}

func (s *Stream) subscribeOrders() error {
	token, err := s.signer.FreshAuthToken()
	if err != nil {
		return fmt.Errorf("auth token: %w", err)
	}
	return s.writeControl(wsControl{
		Type:    "subscribe",
		Channel: fmt.Sprintf("account_orders/%d/%d", s.marketIndex, s.accountIndex),
		Auth:    token,
	})
}

// resubscribeBook drops the book and cycles the subscription to force a
// fresh snapshot. An error here bubbles up and triggers a full reconnect.
func (s *Stream) resubscribeBook() error {
	s.book.Reset()
	if err := s.writeControl(wsControl{
		Type:    "unsubscribe",
		Channel: fmt.Sprintf("order_book/%d", s.marketIndex),
	}); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	time.Sleep(resubscribeDelay)
	if err := s.subscribeBook(); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}
	return nil
}

func (s *Stream) writeControl(msg wsControl) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

func parseLevels(raw []wsLevel) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, l := range raw {
		price, err := parseDecimal(l.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		size, err := parseDecimal(l.Size)
		if err != nil || size.IsNegative() {
			continue
		}
		levels = append(levels, types.PriceLevel{Price: price, Size: size})
	}
	return levels
}
