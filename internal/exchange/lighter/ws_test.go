package lighter

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStreamResetsBookOnDisconnect(t *testing.T) {
	t.Parallel()

	dropConn := make(chan struct{})
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Reconnect attempts get no snapshot, so the book can only become
		// ready through the first connection.
		if conns.Add(1) > 1 {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}

		// order_book subscribe, then account_orders subscribe.
		conn.ReadMessage()
		conn.ReadMessage()

		conn.WriteJSON(map[string]any{
			"type": "subscribed/order_book",
			"order_book": map[string]any{
				"offset": 10,
				"bids":   []map[string]string{{"price": "100", "size": "1000"}},
				"asks":   []map[string]string{{"price": "101", "size": "1000"}},
			},
		})

		<-dropConn
	}))
	defer srv.Close()

	c := testClient(t, "http://unused")
	stream := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), 3, 1, c.signer, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx)

	waitFor(t, 5*time.Second, func() bool {
		_, _, ok := stream.Book().BestBidAsk()
		return ok
	}, "book never became ready from the snapshot")

	// The server drops the connection; the book must empty before the
	// reconnect backoff can serve anything stale.
	close(dropConn)
	waitFor(t, time.Second, func() bool {
		_, _, ok := stream.Book().BestBidAsk()
		return !ok
	}, "book still serves prices after the disconnect")
}
