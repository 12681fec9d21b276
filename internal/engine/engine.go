// Package engine runs the grid trading loop.
//
// Each iteration refreshes the set of resting take-profit orders, runs the
// safety and price gates, applies cool-down pacing, and, when everything
// clears, executes one open cycle: place a post-only open order, wait for a
// fill, and hedge whatever filled with a take-profit close. The loop never
// holds an unhedged fill: every filled quantity gets a close order before the
// next cycle starts.
//
// Order lifecycle events arrive on the adapter's stream goroutine through
// handleOrderUpdate; the loop goroutine waits on one-shot signals the handler
// fires. All mutable state shared between the two goroutines sits behind mu.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhanghongchuang/perp-dex-tools/internal/config"
	"github.com/zhanghongchuang/perp-dex-tools/internal/exchange"
	"github.com/zhanghongchuang/perp-dex-tools/internal/metrics"
	"github.com/zhanghongchuang/perp-dex-tools/internal/notify"
	"github.com/zhanghongchuang/perp-dex-tools/pkg/types"
)

const (
	startupDelay      = 5 * time.Second
	statusLogInterval = 60 * time.Second
	fillWaitTimeout   = 10 * time.Second
	staleRecheckDelay = 5 * time.Second
	cancelPollTimeout = 10 * time.Second
	cancelPollDelay   = 100 * time.Millisecond
	cancelWaitTimeout = 5 * time.Second
	pauseDelay        = 5 * time.Second
	gridRetryDelay    = time.Second
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
	twoHund = decimal.NewFromInt(200)
)

// Engine drives one (venue, ticker, direction) grid strategy.
type Engine struct {
	cfg      *config.Config
	client   exchange.ExchangeClient
	notifier *notify.Notifier
	logger   *slog.Logger

	contractID string
	tickSize   decimal.Decimal

	// Tunable delays, set from the package constants and shrunk in tests.
	startupDelay      time.Duration
	statusLogInterval time.Duration
	fillWaitTimeout   time.Duration
	staleRecheckDelay time.Duration
	cancelPollTimeout time.Duration
	cancelPollDelay   time.Duration
	cancelWaitTimeout time.Duration
	pauseDelay        time.Duration
	gridRetryDelay    time.Duration

	// Loop-goroutine state. Not shared; no locking needed.
	activeCloseOrders []types.CloseOrder
	closeOrderTimes   map[string]time.Time
	lastCloseOrders   int
	lastOpenOrderTime time.Time
	lastLogTime       time.Time

	// Shared with the stream goroutine.
	mu                 sync.Mutex
	currentOrderStatus types.OrderStatus
	orderFilledAmount  decimal.Decimal

	filled   *signal
	canceled *signal

	shutdown       atomic.Bool
	shutdownReason string
}

// New builds an engine over an already-resolved contract and registers the
// order update handler. Must run before client.Connect so the stream never
// drops an event.
func New(cfg *config.Config, client exchange.ExchangeClient, notifier *notify.Notifier, attrs exchange.ContractAttributes, logger *slog.Logger) *Engine {
	e := &Engine{
		cfg:      cfg,
		client:   client,
		notifier: notifier,
		logger:   logger.With("component", "engine"),

		contractID: attrs.ContractID,
		tickSize:   attrs.TickSize,

		startupDelay:      startupDelay,
		statusLogInterval: statusLogInterval,
		fillWaitTimeout:   fillWaitTimeout,
		staleRecheckDelay: staleRecheckDelay,
		cancelPollTimeout: cancelPollTimeout,
		cancelPollDelay:   cancelPollDelay,
		cancelWaitTimeout: cancelWaitTimeout,
		pauseDelay:        pauseDelay,
		gridRetryDelay:    gridRetryDelay,

		closeOrderTimes: make(map[string]time.Time),
		filled:          newSignal(),
		canceled:        newSignal(),
	}
	client.SetOrderUpdateHandler(e.handleOrderUpdate)
	return e
}

// RequestShutdown asks the loop to exit after the current iteration.
func (e *Engine) RequestShutdown(reason string) {
	if e.shutdown.CompareAndSwap(false, true) {
		e.shutdownReason = reason
		e.logger.Info("shutdown requested", "reason", reason)
	}
}

// Run executes the trading loop until ctx is cancelled or a shutdown is
// requested. The caller owns Connect/Disconnect.
func (e *Engine) Run(ctx context.Context) error {
	e.logBanner()

	// Let the streams settle before trading against them.
	if !sleepCtx(ctx, e.startupDelay) {
		return ctx.Err()
	}

	for ctx.Err() == nil && !e.shutdown.Load() {
		if err := e.refreshActiveOrders(ctx); err != nil {
			e.logger.Error("refresh active orders", "error", err)
			sleepCtx(ctx, e.gridRetryDelay)
			continue
		}

		mismatch := e.logStatus(ctx)

		if e.cfg.Trading.CloseRefreshInterval > 0 {
			e.refreshStaleCloseOrders(ctx)
		}

		stop, pause, err := e.checkPriceGates(ctx)
		if err != nil {
			e.logger.Error("price gate check", "error", err)
			sleepCtx(ctx, e.gridRetryDelay)
			continue
		}
		if stop {
			msg := fmt.Sprintf("WARNING: [%s_%s]\nStopped trading due to stop price triggered",
				strings.ToUpper(e.cfg.Trading.Exchange), strings.ToUpper(e.cfg.Trading.Ticker))
			e.notifier.Notify(ctx, msg)
			e.RequestShutdown("stop price triggered")
			continue
		}
		if pause {
			sleepCtx(ctx, e.pauseDelay)
			continue
		}

		if mismatch {
			continue
		}

		if wait := e.nextWait(time.Now()); wait > 0 {
			sleepCtx(ctx, wait)
			continue
		}

		ok, err := e.gridStepSatisfied(ctx)
		if err != nil {
			e.logger.Error("grid step check", "error", err)
			sleepCtx(ctx, e.gridRetryDelay)
			continue
		}
		if !ok {
			sleepCtx(ctx, e.gridRetryDelay)
			continue
		}

		if err := e.placeAndMonitorOpenOrder(ctx); err != nil {
			e.logger.Error("open cycle failed", "error", err)
		}
		// Bias the pacing check toward waiting after every cycle, even when
		// the fill is still settling into the active-order list.
		e.lastCloseOrders++
	}

	if ctx.Err() != nil {
		e.logger.Info("stopping on context cancellation")
		return ctx.Err()
	}
	e.logger.Info("stopping", "reason", e.shutdownReason)
	return nil
}

func (e *Engine) logBanner() {
	t := e.cfg.Trading
	e.logger.Info("trading configuration",
		"exchange", t.Exchange,
		"ticker", t.Ticker,
		"contract_id", e.contractID,
		"tick_size", e.tickSize.String(),
		"quantity", t.Quantity.String(),
		"take_profit_pct", t.TakeProfit.String(),
		"direction", t.Direction,
		"max_orders", t.MaxOrders,
		"wait_time", t.WaitTime,
		"grid_step_pct", t.GridStep.String(),
		"stop_price", t.StopPrice.String(),
		"pause_price", t.PausePrice.String(),
		"boost_mode", t.BoostMode,
		"close_refresh_interval", t.CloseRefreshInterval,
	)
}

// ————————————————————————————————————————————————————————————————————————
// Active order tracking
// ————————————————————————————————————————————————————————————————————————

// refreshActiveOrders rebuilds the close-order index from the venue and
// reconciles the creation-time ledger: new orders get a timestamp, orders
// that no longer rest are evicted.
func (e *Engine) refreshActiveOrders(ctx context.Context) error {
	orders, err := e.client.GetActiveOrders(ctx, e.contractID)
	if err != nil {
		return err
	}

	closeSide := e.cfg.Trading.CloseOrderSide()
	now := time.Now()
	e.activeCloseOrders = e.activeCloseOrders[:0]
	live := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		if o.Side != closeSide {
			continue
		}
		e.activeCloseOrders = append(e.activeCloseOrders, types.CloseOrder{
			ID:    o.OrderID,
			Price: o.Price,
			Size:  o.RemainingSize,
		})
		live[o.OrderID] = struct{}{}
		if _, ok := e.closeOrderTimes[o.OrderID]; !ok {
			e.closeOrderTimes[o.OrderID] = now
		}
	}
	for id := range e.closeOrderTimes {
		if _, ok := live[id]; !ok {
			delete(e.closeOrderTimes, id)
		}
	}

	metrics.SetActiveCloseOrders(len(e.activeCloseOrders))
	return nil
}

// logStatus logs position and close-order totals at most once per interval
// and checks the position against the resting close quantity. A divergence
// beyond twice the per-order quantity means fills and closes have drifted
// apart; the bot alerts and stops rather than compounding the imbalance.
func (e *Engine) logStatus(ctx context.Context) bool {
	if !e.lastLogTime.IsZero() && time.Since(e.lastLogTime) < e.statusLogInterval {
		return false
	}

	position, err := e.client.GetAccountPositions(ctx)
	if err != nil {
		e.logger.Error("fetch positions", "error", err)
		return false
	}

	closeAmount := decimal.Zero
	for _, o := range e.activeCloseOrders {
		closeAmount = closeAmount.Add(o.Size)
	}

	e.logger.Info("status",
		"position", position.String(),
		"active_close_amount", closeAmount.String(),
		"active_close_orders", len(e.activeCloseOrders),
	)
	e.lastLogTime = time.Now()
	metrics.SetPosition(position)

	drift := position.Abs().Sub(closeAmount).Abs()
	if drift.GreaterThan(e.cfg.Trading.Quantity.Mul(decimal.NewFromInt(2))) {
		msg := fmt.Sprintf(
			"ERROR: [%s_%s] Position mismatch detected\n"+
				"Please manually rebalance your position and take-profit orders\n"+
				"current position: %s | active closing amount: %s | order quantity: %d",
			strings.ToUpper(e.cfg.Trading.Exchange), strings.ToUpper(e.cfg.Trading.Ticker),
			position.String(), closeAmount.String(), len(e.activeCloseOrders),
		)
		e.logger.Error("position mismatch",
			"position", position.String(),
			"active_close_amount", closeAmount.String(),
		)
		e.notifier.Notify(ctx, msg)
		e.RequestShutdown("position mismatch")
		return true
	}
	return false
}

// ————————————————————————————————————————————————————————————————————————
// Gates and pacing
// ————————————————————————————————————————————————————————————————————————

// checkPriceGates evaluates the stop and pause thresholds against the side
// of the book an open order would trade on: the ask for buys, the bid for
// sells. A value of -1 disables a threshold.
func (e *Engine) checkPriceGates(ctx context.Context) (stop, pause bool, err error) {
	t := e.cfg.Trading
	minusOne := decimal.NewFromInt(-1)
	stopSet := !t.StopPrice.Equal(minusOne)
	pauseSet := !t.PausePrice.Equal(minusOne)
	if !stopSet && !pauseSet {
		return false, false, nil
	}

	bid, ask, err := e.client.FetchBBOPrices(ctx, e.contractID)
	if err != nil {
		return false, false, err
	}
	metrics.SetBBO(bid, ask)

	ref := ask
	if t.Direction == types.Sell {
		ref = bid
	}
	crossed := func(threshold decimal.Decimal) bool {
		if t.Direction == types.Buy {
			return ref.GreaterThanOrEqual(threshold)
		}
		return ref.LessThanOrEqual(threshold)
	}

	if stopSet && crossed(t.StopPrice) {
		stop = true
	}
	if pauseSet && crossed(t.PausePrice) {
		pause = true
	}
	return stop, pause, nil
}

// nextWait computes the pacing delay before the next open attempt. The
// cool-down scales with how full the close-order book is; the loop re-checks
// every second rather than sleeping the whole cool-down, so gate conditions
// stay fresh. A shrinking close count means a close just filled, which
// clears the wait entirely.
func (e *Engine) nextWait(now time.Time) time.Duration {
	n := len(e.activeCloseOrders)
	if n < e.lastCloseOrders {
		e.lastCloseOrders = n
		return 0
	}
	e.lastCloseOrders = n

	t := e.cfg.Trading
	if n >= t.MaxOrders {
		return time.Second
	}

	ratio := float64(n) / float64(t.MaxOrders)
	var coolDown time.Duration
	switch {
	case ratio >= 2.0/3.0:
		coolDown = 2 * t.WaitTime
	case ratio >= 1.0/3.0:
		coolDown = t.WaitTime
	case ratio >= 1.0/6.0:
		coolDown = t.WaitTime / 2
	default:
		coolDown = t.WaitTime / 4
	}

	// Orders found at startup still count against the cool-down.
	if e.lastOpenOrderTime.IsZero() && n > 0 {
		e.lastOpenOrderTime = now
	}

	if now.Sub(e.lastOpenOrderTime) > coolDown {
		return 0
	}
	return time.Second
}

// gridStepSatisfied checks that a new close order would land at least
// grid_step percent away from the nearest resting close order. With no
// resting closes the gate always passes; grid_step -100 disables it.
func (e *Engine) gridStepSatisfied(ctx context.Context) (bool, error) {
	if len(e.activeCloseOrders) == 0 {
		return true, nil
	}

	t := e.cfg.Trading
	next := e.activeCloseOrders[0].Price
	for _, o := range e.activeCloseOrders[1:] {
		if t.Direction == types.Buy && o.Price.LessThan(next) {
			next = o.Price
		}
		if t.Direction == types.Sell && o.Price.GreaterThan(next) {
			next = o.Price
		}
	}

	bid, ask, err := e.client.FetchBBOPrices(ctx, e.contractID)
	if err != nil {
		return false, err
	}
	metrics.SetBBO(bid, ask)

	threshold := one.Add(t.GridStep.Div(hundred))
	tp := t.TakeProfit.Div(hundred)
	if t.Direction == types.Buy {
		newClose := ask.Mul(one.Add(tp))
		return next.Div(newClose).GreaterThan(threshold), nil
	}
	newClose := bid.Mul(one.Sub(tp))
	return newClose.Div(next).GreaterThan(threshold), nil
}

// ————————————————————————————————————————————————————————————————————————
// Open cycle
// ————————————————————————————————————————————————————————————————————————

// placeAndMonitorOpenOrder runs one open cycle: place the post-only open
// order, wait for the fill, and make sure any filled quantity ends up with a
// take-profit close. Unfilled remainders are cancelled; partial fills get a
// close sized to the fill at the original attempt price.
func (e *Engine) placeAndMonitorOpenOrder(ctx context.Context) error {
	t := e.cfg.Trading

	e.filled.Clear()
	e.mu.Lock()
	e.currentOrderStatus = types.StatusOpen
	e.orderFilledAmount = decimal.Zero
	e.mu.Unlock()

	result, err := e.client.PlaceOpenOrder(ctx, e.contractID, t.Quantity, t.Direction)
	if err != nil {
		metrics.IncOpenCycle("noop")
		return fmt.Errorf("place open order: %w", err)
	}
	if !result.Success {
		metrics.IncOpenCycle("noop")
		return fmt.Errorf("place open order: %s", result.ErrorMessage)
	}
	metrics.IncOrder("OPEN", string(t.Direction), string(result.Status))

	if result.Status != types.StatusFilled {
		e.filled.Wait(ctx, e.fillWaitTimeout)
	}

	if e.filled.Fired() || result.Status == types.StatusFilled {
		metrics.IncOpenCycle("filled")
		return e.placeCloseForFill(ctx, result)
	}

	return e.cancelAndSettle(ctx, result)
}

// placeCloseForFill hedges a fully filled open order. Boost mode closes at
// market immediately; otherwise a take-profit limit rests at the configured
// offset from the fill price.
func (e *Engine) placeCloseForFill(ctx context.Context, open types.OrderResult) error {
	t := e.cfg.Trading
	closeSide := t.CloseOrderSide()

	if t.BoostMode {
		result, err := e.client.PlaceMarketOrder(ctx, e.contractID, t.Quantity, closeSide)
		if err != nil {
			return fmt.Errorf("place market close: %w", err)
		}
		metrics.IncOrder("CLOSE", string(closeSide), string(result.Status))
		return nil
	}

	e.lastOpenOrderTime = time.Now()
	closePrice := e.closePrice(open.Price, t.TakeProfit)
	result, err := e.client.PlaceCloseOrder(ctx, e.contractID, t.Quantity, closePrice, closeSide)
	if err != nil {
		return fmt.Errorf("place close order: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("place close order: %s", result.ErrorMessage)
	}
	metrics.IncOrder("CLOSE", string(closeSide), string(result.Status))
	if result.OrderID != "" {
		e.closeOrderTimes[result.OrderID] = time.Now()
	}
	return nil
}

// cancelAndSettle re-checks a resting open order against the current maker
// price, waits while the order is still the best it can be, then cancels and
// hedges whatever filled in the meantime at the original attempt price.
func (e *Engine) cancelAndSettle(ctx context.Context, open types.OrderResult) error {
	t := e.cfg.Trading

	// While the market has not moved past our price, the order still has the
	// best chance of filling; re-check instead of churning cancels.
	for ctx.Err() == nil {
		newPrice, err := e.client.GetOrderPrice(ctx, t.Direction)
		if err != nil {
			return fmt.Errorf("refresh order price: %w", err)
		}
		stale := false
		if t.Direction == types.Buy {
			stale = newPrice.GreaterThan(open.Price)
		} else {
			stale = newPrice.LessThan(open.Price)
		}
		if stale {
			break
		}
		if e.openOrderStatus() != types.StatusOpen {
			break
		}
		e.logger.Info("waiting for open order to fill", "order_id", open.OrderID, "price", open.Price.String())
		if !sleepCtx(ctx, e.staleRecheckDelay) {
			return ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	e.canceled.Clear()
	e.logger.Info("cancelling open order", "order_id", open.OrderID)

	filledAmount, err := e.cancelOpenOrder(ctx, open.OrderID)
	if err != nil {
		metrics.IncOpenCycle("noop")
		return err
	}
	metrics.IncOpenCycle("canceled")

	if filledAmount.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	// Hedge the partial fill. The close prices off the original attempt
	// price, not the current market, so the grid spacing holds.
	closeSide := t.CloseOrderSide()
	closePrice := e.closePrice(open.Price, t.TakeProfit)
	if t.BoostMode {
		closePrice = open.Price
	}
	result, err := e.client.PlaceCloseOrder(ctx, e.contractID, filledAmount, closePrice, closeSide)
	e.lastOpenOrderTime = time.Now()
	if err != nil {
		return fmt.Errorf("place close order for partial fill: %w", err)
	}
	if !result.Success {
		e.logger.Error("close order for partial fill rejected", "error", result.ErrorMessage)
		return nil
	}
	metrics.IncOrder("CLOSE", string(closeSide), string(result.Status))
	if result.OrderID != "" {
		e.closeOrderTimes[result.OrderID] = time.Now()
	}
	return nil
}

// cancelOpenOrder cancels the resting open order and resolves how much of it
// filled. Venues that track the live order stream-side are polled directly;
// the rest settle through the canceled event with a REST fallback.
func (e *Engine) cancelOpenOrder(ctx context.Context, orderID string) (decimal.Decimal, error) {
	result, err := e.client.CancelOrder(ctx, orderID)

	if tracked := e.client.CurrentOrder(); tracked != nil {
		if err != nil {
			return decimal.Zero, fmt.Errorf("cancel order: %w", err)
		}
		deadline := time.Now().Add(e.cancelPollTimeout)
		for {
			current := e.client.CurrentOrder()
			if current == nil {
				break
			}
			if current.Status == types.StatusCanceled || current.Status == types.StatusFilled {
				return current.FilledSize, nil
			}
			if time.Now().After(deadline) {
				return decimal.Zero, fmt.Errorf("cancel order %s: order still %s", orderID, current.Status)
			}
			if !sleepCtx(ctx, e.cancelPollDelay) {
				return decimal.Zero, ctx.Err()
			}
		}
	}

	if err != nil || !result.Success {
		// Terminal orders cannot be cancelled; resolve through the query path.
		e.canceled.Set()
		e.logger.Warn("cancel failed, resolving order state", "order_id", orderID, "error", err)
	}

	if e.canceled.Wait(ctx, e.cancelWaitTimeout) {
		e.mu.Lock()
		amount := e.orderFilledAmount
		e.mu.Unlock()
		return amount, nil
	}

	info, err := e.client.GetOrderInfo(ctx, orderID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resolve cancelled order: %w", err)
	}
	if info == nil {
		return decimal.Zero, nil
	}
	return info.FilledSize, nil
}

// openOrderStatus reads the live status of the resting open order, from the
// adapter's stream-side tracking when available, otherwise from the last
// stream event.
func (e *Engine) openOrderStatus() types.OrderStatus {
	if tracked := e.client.CurrentOrder(); tracked != nil {
		return tracked.Status
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentOrderStatus
}

// closePrice computes the take-profit price for a close resting opposite the
// open direction: above the fill for longs, below for shorts.
func (e *Engine) closePrice(fillPrice, takeProfit decimal.Decimal) decimal.Decimal {
	offset := takeProfit.Div(hundred)
	if e.cfg.Trading.CloseOrderSide() == types.Sell {
		return fillPrice.Mul(one.Add(offset))
	}
	return fillPrice.Mul(one.Sub(offset))
}

// ————————————————————————————————————————————————————————————————————————
// Close-order refresh
// ————————————————————————————————————————————————————————————————————————

// refreshStaleCloseOrders re-quotes close orders that have rested longer
// than the configured interval: cancel, then replace at half the take-profit
// offset from the current book so the close fills sooner.
func (e *Engine) refreshStaleCloseOrders(ctx context.Context) {
	t := e.cfg.Trading
	now := time.Now()

	for _, order := range e.activeCloseOrders {
		created, ok := e.closeOrderTimes[order.ID]
		if !ok || now.Sub(created) <= t.CloseRefreshInterval {
			continue
		}

		e.logger.Info("refreshing stale close order", "order_id", order.ID, "age", now.Sub(created))

		cancelResult, err := e.client.CancelOrder(ctx, order.ID)
		if err != nil || !cancelResult.Success {
			e.logger.Error("cancel stale close order", "order_id", order.ID, "error", err)
			continue
		}

		bid, ask, err := e.client.FetchBBOPrices(ctx, e.contractID)
		if err != nil {
			e.logger.Error("fetch prices for close refresh", "error", err)
			continue
		}

		// Half the take-profit offset, priced from the current book.
		closeSide := t.CloseOrderSide()
		var newPrice decimal.Decimal
		if closeSide == types.Sell {
			newPrice = bid.Mul(one.Add(t.TakeProfit.Div(twoHund)))
		} else {
			newPrice = ask.Mul(one.Sub(t.TakeProfit.Div(twoHund)))
		}

		result, err := e.client.PlaceCloseOrder(ctx, e.contractID, order.Size, newPrice, closeSide)
		if err != nil || !result.Success {
			e.logger.Error("replace stale close order", "order_id", order.ID, "error", err)
			continue
		}
		e.logger.Info("stale close order replaced",
			"old_order_id", order.ID,
			"new_order_id", result.OrderID,
			"price", newPrice.String(),
		)

		delete(e.closeOrderTimes, order.ID)
		if result.OrderID != "" {
			e.closeOrderTimes[result.OrderID] = now
		}
	}
}

// ————————————————————————————————————————————————————————————————————————
// Stream events
// ————————————————————————————————————————————————————————————————————————

// handleOrderUpdate consumes canonical order events from the adapter stream.
// Runs on the stream goroutine; only touches state behind mu and the
// one-shot signals.
func (e *Engine) handleOrderUpdate(update types.OrderUpdate) {
	metrics.IncOrderUpdate(string(update.OrderType), string(update.Status))

	if update.OrderType == types.OrderTypeOpen {
		e.mu.Lock()
		e.currentOrderStatus = update.Status
		e.mu.Unlock()
	}

	switch update.Status {
	case types.StatusFilled:
		if update.OrderType == types.OrderTypeOpen {
			e.mu.Lock()
			e.orderFilledAmount = update.FilledSize
			e.mu.Unlock()
			e.filled.Set()
		}
		e.logger.Info("order filled",
			"kind", update.OrderType,
			"order_id", update.OrderID,
			"size", update.Size.String(),
			"price", update.Price.String(),
		)
	case types.StatusCanceled:
		if update.OrderType == types.OrderTypeOpen {
			e.mu.Lock()
			e.orderFilledAmount = update.FilledSize
			e.mu.Unlock()
			e.canceled.Set()
		}
		e.logger.Info("order canceled",
			"kind", update.OrderType,
			"order_id", update.OrderID,
			"filled_size", update.FilledSize.String(),
		)
	default:
		e.logger.Info("order update",
			"kind", update.OrderType,
			"order_id", update.OrderID,
			"status", update.Status,
			"filled_size", update.FilledSize.String(),
		)
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
