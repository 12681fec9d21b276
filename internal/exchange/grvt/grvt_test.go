package grvt

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/zhanghongchuang/perp-dex-tools/internal/config"
	"github.com/zhanghongchuang/perp-dex-tools/internal/exchange"
	"github.com/zhanghongchuang/perp-dex-tools/pkg/types"
)

// Throwaway secp256k1 key for signing in tests.
const testKey = "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testClient(t *testing.T) *Client {
	t.Helper()
	cfg := &config.Config{
		Trading: config.TradingConfig{
			Exchange:  "grvt",
			Ticker:    "ETH",
			Quantity:  d("0.1"),
			Direction: types.Buy,
		},
		GRVT: config.GRVTConfig{
			Env:              "testnet",
			APIKey:           "test-api-key",
			PrivateKey:       testKey,
			TradingAccountID: "12345",
		},
	}
	cli, err := New(cfg, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cli.(*Client)
}

func TestNewRejectsBadKey(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{GRVT: config.GRVTConfig{PrivateKey: "xyz"}}
	if _, err := New(cfg, slog.Default()); !errors.Is(err, exchange.ErrConfig) {
		t.Fatalf("New with bad key: err = %v, want ErrConfig", err)
	}
}

func TestEnvEndpoints(t *testing.T) {
	t.Parallel()

	prod := envEndpoints("prod")
	if prod.edge != "https://edge.grvt.io" {
		t.Errorf("prod edge = %q", prod.edge)
	}
	testnet := envEndpoints("testnet")
	if testnet.tradeData != "https://trades.testnet.grvt.io" {
		t.Errorf("testnet trade data = %q", testnet.tradeData)
	}
	// Unknown environments fall back to prod.
	if got := envEndpoints("something"); got.edge != prod.edge {
		t.Errorf("unknown env edge = %q, want prod", got.edge)
	}
}

func TestGetContractAttributes(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/full/v1/instruments" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[
			{"instrument":"BTC_USDT_Perp","instrument_hash":"0x01","base":"BTC","quote":"USDT","kind":"PERPETUAL","tick_size":"0.1","min_size":"0.001"},
			{"instrument":"ETH_USDT_Perp","instrument_hash":"0x030501","base":"ETH","quote":"USDT","kind":"PERPETUAL","tick_size":"0.01","min_size":"0.01"}
		]}`))
	}))
	defer srv.Close()

	c := testClient(t)
	c.eps.marketData = srv.URL

	attrs, err := c.GetContractAttributes(context.Background())
	if err != nil {
		t.Fatalf("GetContractAttributes: %v", err)
	}
	if attrs.ContractID != "ETH_USDT_Perp" {
		t.Errorf("ContractID = %q, want ETH_USDT_Perp", attrs.ContractID)
	}
	if !attrs.TickSize.Equal(d("0.01")) {
		t.Errorf("TickSize = %s, want 0.01", attrs.TickSize)
	}
	if c.instrumentHash != "0x030501" {
		t.Errorf("instrumentHash = %q", c.instrumentHash)
	}
}

func TestGetContractAttributesQuantityBelowMinimum(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[
			{"instrument":"ETH_USDT_Perp","instrument_hash":"0x030501","base":"ETH","quote":"USDT","kind":"PERPETUAL","tick_size":"0.01","min_size":"1"}
		]}`))
	}))
	defer srv.Close()

	c := testClient(t)
	c.eps.marketData = srv.URL

	if _, err := c.GetContractAttributes(context.Background()); !errors.Is(err, exchange.ErrConfig) {
		t.Fatalf("quantity below minimum: err = %v, want ErrConfig", err)
	}
}

func TestFetchBBOPrices(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{
			"bids":[{"price":"2500.00","size":"10"},{"price":"2499.00","size":"5"}],
			"asks":[{"price":"2500.10","size":"8"}]
		}}`))
	}))
	defer srv.Close()

	c := testClient(t)
	c.eps.marketData = srv.URL
	c.contractID = "ETH_USDT_Perp"

	bid, ask, err := c.FetchBBOPrices(context.Background(), c.contractID)
	if err != nil {
		t.Fatalf("FetchBBOPrices: %v", err)
	}
	if !bid.Equal(d("2500.00")) || !ask.Equal(d("2500.10")) {
		t.Errorf("bbo = %s/%s, want 2500.00/2500.10", bid, ask)
	}
}

func TestFetchBBOPricesCrossedBook(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{
			"bids":[{"price":"2501.00","size":"10"}],
			"asks":[{"price":"2500.00","size":"8"}]
		}}`))
	}))
	defer srv.Close()

	c := testClient(t)
	c.eps.marketData = srv.URL

	if _, _, err := c.FetchBBOPrices(context.Background(), "ETH_USDT_Perp"); !errors.Is(err, exchange.ErrMarketData) {
		t.Fatalf("crossed book: err = %v, want ErrMarketData", err)
	}
}

func TestMapStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw    string
		filled string
		want   types.OrderStatus
	}{
		{"OPEN", "0", types.StatusOpen},
		{"OPEN", "0.05", types.StatusPartiallyFilled},
		{"FILLED", "0.1", types.StatusFilled},
		{"CANCELLED", "0", types.StatusCanceled},
		{"REJECTED", "0", types.StatusCanceled},
		{"PENDING", "0", types.StatusPending},
	}
	for _, tt := range tests {
		if got := mapStatus(tt.raw, d(tt.filled)); got != tt.want {
			t.Errorf("mapStatus(%q, %s) = %q, want %q", tt.raw, tt.filled, got, tt.want)
		}
	}
}

func TestOrderToInfo(t *testing.T) {
	t.Parallel()
	c := testClient(t)

	o := &apiOrder{OrderID: "ord-1"}
	o.State.Status = "OPEN"
	o.State.TradedSize = []string{"0.03"}
	o.State.BookSize = []string{"0.07"}
	o.Legs = append(o.Legs, struct {
		Instrument    string `json:"instrument"`
		IsBuyingAsset bool   `json:"is_buying_asset"`
		Size          string `json:"size"`
		LimitPrice    string `json:"limit_price"`
	}{Instrument: "ETH_USDT_Perp", IsBuyingAsset: true, Size: "0.1", LimitPrice: "2500"})

	info := c.orderToInfo(o)
	if info.OrderID != "ord-1" || info.Side != types.Buy {
		t.Errorf("info = %+v", info)
	}
	if info.Status != types.StatusPartiallyFilled {
		t.Errorf("status = %q, want PARTIALLY_FILLED with traded size", info.Status)
	}
	if !info.FilledSize.Equal(d("0.03")) || !info.RemainingSize.Equal(d("0.07")) {
		t.Errorf("sizes = %s/%s", info.FilledSize, info.RemainingSize)
	}
}

// ————————————————————————————————————————————————————————————————————————
// Order feed normalization
// ————————————————————————————————————————————————————————————————————————

func feedClient(t *testing.T) (*Client, *[]types.OrderUpdate) {
	c := testClient(t)
	c.contractID = "ETH_USDT_Perp"
	var mu sync.Mutex
	got := &[]types.OrderUpdate{}
	c.SetOrderUpdateHandler(func(u types.OrderUpdate) {
		mu.Lock()
		defer mu.Unlock()
		*got = append(*got, u)
	})
	return c, got
}

func feedEvent(orderID, status, filled string, buying bool) wsOrderFeed {
	var f wsOrderFeed
	f.OrderID = orderID
	f.State.Status = status
	f.State.TradedSize = []string{filled}
	f.Legs = append(f.Legs, struct {
		Instrument    string `json:"instrument"`
		IsBuyingAsset bool   `json:"is_buying_asset"`
		Size          string `json:"size"`
		LimitPrice    string `json:"limit_price"`
	}{Instrument: "ETH_USDT_Perp", IsBuyingAsset: buying, Size: "0.1", LimitPrice: "2500"})
	return f
}

func TestHandleOrderFeedFiltersOtherInstruments(t *testing.T) {
	t.Parallel()
	c, got := feedClient(t)

	ev := feedEvent("o1", "OPEN", "0", true)
	ev.Legs[0].Instrument = "BTC_USDT_Perp"
	c.handleOrderFeed(ev)

	if len(*got) != 0 {
		t.Errorf("other-instrument feed must be dropped, got %v", *got)
	}
}

func TestHandleOrderFeedDropsMalformed(t *testing.T) {
	t.Parallel()
	c, got := feedClient(t)

	c.handleOrderFeed(feedEvent("", "OPEN", "0", true))
	c.handleOrderFeed(feedEvent("o1", "", "0", true))

	if len(*got) != 0 {
		t.Errorf("malformed feeds must be dropped, got %v", *got)
	}
}

func TestHandleOrderFeedDedupesUnchangedOpens(t *testing.T) {
	t.Parallel()
	c, got := feedClient(t)

	c.handleOrderFeed(feedEvent("o1", "OPEN", "0", true))
	c.handleOrderFeed(feedEvent("o1", "OPEN", "0", true)) // replay

	if len(*got) != 1 {
		t.Fatalf("updates = %d, want 1 (duplicate suppressed)", len(*got))
	}

	// A fill change comes through as PARTIALLY_FILLED.
	c.handleOrderFeed(feedEvent("o1", "OPEN", "0.04", true))
	if len(*got) != 2 {
		t.Fatalf("updates = %d, want 2 after fill change", len(*got))
	}
	if (*got)[1].Status != types.StatusPartiallyFilled {
		t.Errorf("status = %q, want PARTIALLY_FILLED", (*got)[1].Status)
	}
}

func TestHandleOrderFeedTerminalEvictsMemo(t *testing.T) {
	t.Parallel()
	c, got := feedClient(t)

	c.handleOrderFeed(feedEvent("o1", "OPEN", "0", true))
	c.handleOrderFeed(feedEvent("o1", "FILLED", "0.1", true))

	if len(*got) != 2 {
		t.Fatalf("updates = %d, want 2", len(*got))
	}
	if (*got)[1].Status != types.StatusFilled {
		t.Errorf("status = %q, want FILLED", (*got)[1].Status)
	}
	if _, ok := c.ordersMemo["o1"]; ok {
		t.Error("terminal event must evict the memo entry")
	}
}

func TestHandleOrderFeedDerivesOrderType(t *testing.T) {
	t.Parallel()
	c, got := feedClient(t) // buy direction → close side sell

	c.handleOrderFeed(feedEvent("o1", "OPEN", "0", true))   // buy leg → OPEN
	c.handleOrderFeed(feedEvent("o2", "OPEN", "0", false))  // sell leg → CLOSE

	if len(*got) != 2 {
		t.Fatalf("updates = %d, want 2", len(*got))
	}
	if (*got)[0].OrderType != types.OrderTypeOpen || (*got)[1].OrderType != types.OrderTypeClose {
		t.Errorf("order types = %q/%q, want OPEN/CLOSE", (*got)[0].OrderType, (*got)[1].OrderType)
	}
}

func TestSignOrderProducesRecoverableSignature(t *testing.T) {
	t.Parallel()
	c := testClient(t)

	r, s, v, err := c.auth.SignOrder("0x030501", true, false, true, false,
		d("0.1").Mul(scale).BigInt(), d("2500").Mul(scale).BigInt(),
		"GOOD_TILL_TIME", 7, 1700000000000000000)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if len(r) != 64 || len(s) != 64 {
		t.Errorf("r/s lengths = %d/%d, want 64 hex chars each", len(r), len(s))
	}
	if v != 27 && v != 28 {
		t.Errorf("v = %d, want 27 or 28", v)
	}
}

func TestCurrentOrderIsNil(t *testing.T) {
	t.Parallel()
	c := testClient(t)
	if c.CurrentOrder() != nil {
		t.Error("grvt keeps no stream-side current order")
	}
}
