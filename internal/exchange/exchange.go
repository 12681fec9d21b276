// Package exchange defines the venue adapter contract shared by all venues,
// plus the registry, error kinds, bounded query retry, and rate limiting
// that adapters build on. Venue implementations live in subpackages.
package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/zhanghongchuang/perp-dex-tools/pkg/types"
)

// Error kinds. Adapters and the engine wrap these with fmt.Errorf("…: %w")
// and callers branch with errors.Is.
var (
	// ErrConfig marks startup-time configuration problems (bad ticker,
	// quantity below the venue minimum). Fatal: the process exits.
	ErrConfig = errors.New("config error")

	// ErrMarketData marks an unusable book: a missing side, a non-positive
	// price, or bid >= ask. The engine logs and retries on the next tick.
	ErrMarketData = errors.New("market data error")

	// ErrOrderRejected marks a post-only order the venue refused. Adapters
	// retry the same cycle with fresh prices.
	ErrOrderRejected = errors.New("order rejected")

	// ErrOrderTimeout marks an order stuck in PENDING past its deadline.
	// The current cycle aborts; the loop continues.
	ErrOrderTimeout = errors.New("order timeout")

	// ErrSafety marks an invariant violation found by the duplicate-order
	// guards. The current cycle aborts; the loop continues.
	ErrSafety = errors.New("safety check failed")

	// ErrUnknownVenue is returned by the registry for unregistered names.
	ErrUnknownVenue = errors.New("unknown venue")
)

// ContractAttributes is the venue-resolved identity of the traded instrument.
type ContractAttributes struct {
	ContractID string
	TickSize   decimal.Decimal
}

// ExchangeClient is the uniform capability contract every venue adapter
// satisfies. Command methods talk REST; lifecycle events arrive through the
// registered update handler from the adapter's own stream goroutines.
type ExchangeClient interface {
	// Name returns the lowercase venue name.
	Name() string

	// Connect acquires network resources (REST session, streams).
	// GetContractAttributes must be called before Connect so the streams
	// know which contract to subscribe to.
	Connect(ctx context.Context) error

	// Disconnect releases all network resources. Safe to call on all exit
	// paths, including after a failed Connect.
	Disconnect() error

	// GetContractAttributes resolves the configured ticker to the venue's
	// contract identifier and tick size. Fails with ErrConfig when the
	// ticker is unknown or the configured quantity is below the venue
	// minimum.
	GetContractAttributes(ctx context.Context) (ContractAttributes, error)

	// FetchBBOPrices returns the current best bid and ask. Fails with
	// ErrMarketData when either side is missing, non-positive, or crossed.
	FetchBBOPrices(ctx context.Context, contractID string) (bid, ask decimal.Decimal, err error)

	// GetOrderPrice computes the canonical maker price for an open order in
	// the given direction: best_ask - tick for buys, best_bid + tick for sells.
	GetOrderPrice(ctx context.Context, direction types.Side) (decimal.Decimal, error)

	// PlaceOpenOrder submits a post-only open order at the canonical maker
	// price, retrying on rejection with refreshed prices. Every fifth
	// attempt re-reads active orders and fails with ErrSafety if more than
	// one open-side order is resting.
	PlaceOpenOrder(ctx context.Context, contractID string, quantity decimal.Decimal, direction types.Side) (types.OrderResult, error)

	// PlaceCloseOrder submits a post-only take-profit order, adjusting the
	// price when it would cross and rounding to tick. Same rejection retry
	// and fifth-attempt close-order-growth guard as PlaceOpenOrder.
	PlaceCloseOrder(ctx context.Context, contractID string, quantity, price decimal.Decimal, side types.Side) (types.OrderResult, error)

	// PlaceMarketOrder submits an immediate close. Used by boost mode.
	PlaceMarketOrder(ctx context.Context, contractID string, quantity decimal.Decimal, side types.Side) (types.OrderResult, error)

	// CancelOrder cancels an order. Succeeds even when the order is
	// already terminal.
	CancelOrder(ctx context.Context, orderID string) (types.OrderResult, error)

	// GetOrderInfo returns a snapshot of one order, by venue order id or
	// client order id. Returns nil when the order is unknown.
	GetOrderInfo(ctx context.Context, orderID string) (*types.OrderInfo, error)

	// GetActiveOrders lists currently resting orders for the contract.
	GetActiveOrders(ctx context.Context, contractID string) ([]types.OrderInfo, error)

	// GetAccountPositions returns the net position size for the contract.
	// Sign convention varies by venue; the engine compares absolute values.
	GetAccountPositions(ctx context.Context) (decimal.Decimal, error)

	// SetOrderUpdateHandler registers the callback invoked once per
	// canonical OrderUpdate, in venue stream order. Must be called before
	// Connect.
	SetOrderUpdateHandler(handler types.OrderUpdateHandler)

	// CurrentOrder returns the adapter's live view of the order placed by
	// the most recent PlaceOpenOrder, or nil on venues without stream-side
	// order tracking. The engine uses this to pick the post-cancel wait.
	CurrentOrder() *types.OrderInfo
}
