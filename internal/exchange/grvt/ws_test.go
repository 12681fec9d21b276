package grvt

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestOrderStreamDeliversFeed(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") == "" {
			t.Error("stream dial must carry the session cookie")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if sub["method"] != "subscribe" {
			t.Errorf("first message method = %v, want subscribe", sub["method"])
		}

		// Ack, then one order feed message.
		conn.WriteJSON(map[string]any{"method": "subscribe", "id": 1})
		conn.WriteJSON(map[string]any{
			"method": "v1.order",
			"feed": map[string]any{
				"order_id": "ord-9",
				"state":    map[string]any{"status": "OPEN", "traded_size": []string{"0"}},
				"legs": []map[string]any{{
					"instrument":      "ETH_USDT_Perp",
					"is_buying_asset": true,
					"size":            "0.1",
					"limit_price":     "2500",
				}},
			},
		})

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	auth, err := NewAuth("key", testKey, "12345", "testnet")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	auth.cookie = &http.Cookie{Name: "gravity", Value: "session"}

	feeds := make(chan wsOrderFeed, 1)
	stream := NewOrderStream(
		"ws"+strings.TrimPrefix(srv.URL, "http"),
		"ETH_USDT_Perp",
		auth,
		func(f wsOrderFeed) { feeds <- f },
		slog.Default(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()

	select {
	case f := <-feeds:
		if f.OrderID != "ord-9" || f.State.Status != "OPEN" {
			t.Errorf("feed = %+v", f)
		}
		if len(f.Legs) != 1 || f.Legs[0].Instrument != "ETH_USDT_Perp" {
			t.Errorf("feed legs = %+v", f.Legs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no feed message delivered")
	}

	cancel()
	stream.Close()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestOrderStreamRequiresSession(t *testing.T) {
	t.Parallel()

	auth, err := NewAuth("key", testKey, "12345", "testnet")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}

	stream := NewOrderStream("ws://unused", "ETH_USDT_Perp", auth, nil, slog.Default())
	if err := stream.connectAndRead(context.Background()); err == nil {
		t.Fatal("connectAndRead should fail without a login session")
	}
}

func TestOrderStreamIgnoresNonFeedMessages(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage() // subscribe

		conn.WriteJSON(map[string]any{"method": "subscribe", "id": 1})
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(map[string]any{
			"method": "v1.order",
			"feed":   map[string]any{"order_id": "ord-1", "state": map[string]any{"status": "OPEN"}},
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	auth, err := NewAuth("key", testKey, "12345", "testnet")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	auth.cookie = &http.Cookie{Name: "gravity", Value: "session"}

	feeds := make(chan wsOrderFeed, 2)
	stream := NewOrderStream(
		"ws"+strings.TrimPrefix(srv.URL, "http"),
		"ETH_USDT_Perp",
		auth,
		func(f wsOrderFeed) { feeds <- f },
		slog.Default(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx)

	// Only the real feed message survives the ack and the garbage line.
	select {
	case f := <-feeds:
		if f.OrderID != "ord-1" {
			t.Errorf("feed order id = %q, want ord-1", f.OrderID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("feed message not delivered")
	}
	select {
	case f := <-feeds:
		t.Errorf("unexpected extra feed %+v", f)
	case <-time.After(50 * time.Millisecond):
	}

	stream.Close()
}
