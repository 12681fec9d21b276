// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — order sides, lifecycle
// statuses, normalized order results, and order book levels. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: buy or sell.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the other side. The close side of a strategy is the
// opposite of its open direction.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus is the canonical order lifecycle status. Each venue adapter
// maps its own status vocabulary onto these values.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "OPEN"
	StatusFilled          OrderStatus = "FILLED"
	StatusPending         OrderStatus = "PENDING"
	StatusRejected        OrderStatus = "REJECTED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
)

// Terminal reports whether no further updates can arrive for an order
// in this status.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// OrderType distinguishes opening orders from take-profit closes.
// It is derived from the event side versus the strategy's close side.
type OrderType string

const (
	OrderTypeOpen  OrderType = "OPEN"
	OrderTypeClose OrderType = "CLOSE"
)

// DeriveOrderType classifies an order event by its side: events on the
// close side are CLOSE orders, everything else is an OPEN.
func DeriveOrderType(side, closeSide Side) OrderType {
	if side == closeSide {
		return OrderTypeClose
	}
	return OrderTypeOpen
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// OrderResult is the synchronous response to an order command. Success only
// means the command was accepted by the venue; Status carries the resolved
// lifecycle state where the adapter waited for one.
type OrderResult struct {
	Success      bool
	OrderID      string
	Side         Side
	Size         decimal.Decimal
	Price        decimal.Decimal
	Status       OrderStatus
	ErrorMessage string
	FilledSize   decimal.Decimal
}

// OrderInfo is a queried snapshot of one order. FilledSize + RemainingSize
// never exceeds Size; when Status is FILLED, FilledSize equals Size.
type OrderInfo struct {
	OrderID       string
	Side          Side
	Size          decimal.Decimal
	Price         decimal.Decimal
	Status        OrderStatus
	FilledSize    decimal.Decimal
	RemainingSize decimal.Decimal
	CancelReason  string
}

// OrderUpdate is the canonical order lifecycle event delivered from a venue
// stream into the trading engine. Adapters normalize their wire formats to
// this shape and drop events for other contracts before forwarding.
type OrderUpdate struct {
	OrderID    string
	Side       Side
	OrderType  OrderType
	Status     OrderStatus
	Size       decimal.Decimal
	Price      decimal.Decimal
	FilledSize decimal.Decimal
	ContractID string
}

// OrderUpdateHandler receives canonical order updates, one call per event,
// in venue stream order. It is invoked from the adapter's stream goroutine.
type OrderUpdateHandler func(update OrderUpdate)

// CloseOrder is one entry in the engine's index of active take-profit orders.
type CloseOrder struct {
	ID        string
	Price     decimal.Decimal
	Size      decimal.Decimal
	CreatedAt time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in an order book.
// A Size of zero in a delta means the level was removed.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Notional returns Price × Size in quote units.
func (l PriceLevel) Notional() decimal.Decimal {
	return l.Price.Mul(l.Size)
}

// RoundToTick snaps a price to the nearest multiple of tick (half up).
// Venues reject orders whose price is not tick-aligned.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return price
	}
	return price.Div(tick).Round(0).Mul(tick)
}
