package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSideOpposite(t *testing.T) {
	t.Parallel()

	if got := Buy.Opposite(); got != Sell {
		t.Errorf("Buy.Opposite() = %q, want %q", got, Sell)
	}
	if got := Sell.Opposite(); got != Buy {
		t.Errorf("Sell.Opposite() = %q, want %q", got, Buy)
	}
}

func TestSideValid(t *testing.T) {
	t.Parallel()

	if !Buy.Valid() || !Sell.Valid() {
		t.Error("buy and sell must be valid sides")
	}
	if Side("long").Valid() {
		t.Error(`Side("long") should not be valid`)
	}
	if Side("").Valid() {
		t.Error("empty side should not be valid")
	}
}

func TestDeriveOrderType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		side      Side
		closeSide Side
		want      OrderType
	}{
		{Sell, Sell, OrderTypeClose},
		{Buy, Sell, OrderTypeOpen},
		{Buy, Buy, OrderTypeClose},
		{Sell, Buy, OrderTypeOpen},
	}

	for _, tt := range tests {
		if got := DeriveOrderType(tt.side, tt.closeSide); got != tt.want {
			t.Errorf("DeriveOrderType(%q, %q) = %q, want %q", tt.side, tt.closeSide, got, tt.want)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{StatusFilled, true},
		{StatusCanceled, true},
		{StatusRejected, true},
		{StatusOpen, false},
		{StatusPending, false},
		{StatusPartiallyFilled, false},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("OrderStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRoundToTick(t *testing.T) {
	t.Parallel()

	tests := []struct {
		price string
		tick  string
		want  string
	}{
		{"100.123", "0.01", "100.12"},
		{"100.125", "0.01", "100.13"},
		{"100.1", "0.5", "100"},
		{"100.3", "0.5", "100.5"},
		{"2501", "1", "2501"},
		{"100.123", "0", "100.123"}, // zero tick passes through
	}

	for _, tt := range tests {
		price := decimal.RequireFromString(tt.price)
		tick := decimal.RequireFromString(tt.tick)
		want := decimal.RequireFromString(tt.want)
		if got := RoundToTick(price, tick); !got.Equal(want) {
			t.Errorf("RoundToTick(%s, %s) = %s, want %s", tt.price, tt.tick, got, want)
		}
	}
}

func TestPriceLevelNotional(t *testing.T) {
	t.Parallel()

	l := PriceLevel{
		Price: decimal.RequireFromString("2500"),
		Size:  decimal.RequireFromString("0.4"),
	}
	if got := l.Notional(); !got.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("Notional() = %s, want 1000", got)
	}
}
