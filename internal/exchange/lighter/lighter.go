// Package lighter implements the Lighter venue adapter.
//
// REST (resty) covers market metadata, active orders, positions, and signed
// transaction submission. The custom stream client in ws.go supplies the
// order book and account order events; prices are always read from the
// stream, never polled.
//
// Lighter amounts are integers scaled by per-market decimals; this adapter
// converts at the wire boundary and exposes decimals everywhere else.
package lighter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/zhanghongchuang/perp-dex-tools/internal/config"
	"github.com/zhanghongchuang/perp-dex-tools/internal/exchange"
	"github.com/zhanghongchuang/perp-dex-tools/pkg/types"
)

func init() {
	exchange.MustRegister("lighter", New)
}

const (
	orderTypeLimit  = 0
	orderTypeMarket = 1

	tifImmediateOrCancel = 0
	tifGoodTillTime      = 1
	tifPostOnly          = 2

	fillWaitTimeout   = 10 * time.Second
	fillPollInterval  = 100 * time.Millisecond
	closeSettleDelay  = 5 * time.Second
	marketSlippagePct = 2
)

// Client is the Lighter adapter.
type Client struct {
	cfg    *config.Config
	http   *resty.Client
	rl     *exchange.RateLimiter
	signer *signer
	logger *slog.Logger

	contractID  string
	marketIndex int64
	tickSize    decimal.Decimal
	sizeScale   decimal.Decimal // 10^size_decimals
	priceScale  decimal.Decimal // 10^price_decimals

	stream     *Stream
	streamStop context.CancelFunc

	handler types.OrderUpdateHandler

	mu            sync.Mutex
	ordersMemo    map[string]memoEntry
	currentOrder  *types.OrderInfo
	currentCOI    int64 // client order index of the in-flight open order
	closeSide     types.Side
}

type memoEntry struct {
	status     types.OrderStatus
	filledSize decimal.Decimal
}

// New builds a Lighter adapter from config. Satisfies exchange.Constructor.
func New(cfg *config.Config, logger *slog.Logger) (exchange.ExchangeClient, error) {
	sig, err := newSigner(cfg.Lighter.PrivateKey, cfg.Lighter.AccountIndex, cfg.Lighter.APIKeyIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: lighter: %v", exchange.ErrConfig, err)
	}

	httpClient := resty.New().
		SetBaseURL(cfg.Lighter.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		cfg:        cfg,
		http:       httpClient,
		rl:         exchange.NewRateLimiter(),
		signer:     sig,
		logger:     logger.With("component", "lighter"),
		ordersMemo: make(map[string]memoEntry),
		closeSide:  cfg.Trading.CloseOrderSide(),
	}, nil
}

// Name returns the venue name.
func (c *Client) Name() string { return "lighter" }

// SetOrderUpdateHandler registers the canonical order update callback.
func (c *Client) SetOrderUpdateHandler(handler types.OrderUpdateHandler) {
	c.handler = handler
}

// CurrentOrder returns the stream-tracked view of the in-flight open order.
func (c *Client) CurrentOrder() *types.OrderInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentOrder == nil {
		return nil
	}
	cp := *c.currentOrder
	return &cp
}

// ————————————————————————————————————————————————————————————————————————
// Contract resolution and connection lifecycle
// ————————————————————————————————————————————————————————————————————————

type marketInfo struct {
	Symbol                 string `json:"symbol"`
	MarketID               int64  `json:"market_id"`
	SupportedSizeDecimals  int32  `json:"supported_size_decimals"`
	SupportedPriceDecimals int32  `json:"supported_price_decimals"`
	MinBaseAmount          string `json:"min_base_amount"`
}

type orderBooksResponse struct {
	OrderBooks []marketInfo `json:"order_books"`
}

type orderBookDetailsResponse struct {
	OrderBookDetails []struct {
		PriceDecimals int32 `json:"price_decimals"`
	} `json:"order_book_details"`
}

// GetContractAttributes resolves the ticker to a Lighter market index and
// tick size, and validates the configured quantity against the venue minimum.
func (c *Client) GetContractAttributes(ctx context.Context) (exchange.ContractAttributes, error) {
	if err := c.rl.Market.Wait(ctx); err != nil {
		return exchange.ContractAttributes{}, err
	}

	var books orderBooksResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&books).
		Get("/api/v1/orderBooks")
	if err != nil {
		return exchange.ContractAttributes{}, fmt.Errorf("get order books: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return exchange.ContractAttributes{}, fmt.Errorf("get order books: status %d: %s", resp.StatusCode(), resp.String())
	}

	var info *marketInfo
	for i := range books.OrderBooks {
		if books.OrderBooks[i].Symbol == c.cfg.Trading.Ticker {
			info = &books.OrderBooks[i]
			break
		}
	}
	if info == nil {
		return exchange.ContractAttributes{}, fmt.Errorf("%w: ticker %q not found on lighter", exchange.ErrConfig, c.cfg.Trading.Ticker)
	}

	if info.MinBaseAmount != "" {
		minSize, err := parseDecimal(info.MinBaseAmount)
		if err == nil && c.cfg.Trading.Quantity.LessThan(minSize) {
			return exchange.ContractAttributes{}, fmt.Errorf("%w: quantity %s below lighter minimum %s",
				exchange.ErrConfig, c.cfg.Trading.Quantity, minSize)
		}
	}

	var details orderBookDetailsResponse
	resp, err = c.http.R().
		SetContext(ctx).
		SetQueryParam("market_id", strconv.FormatInt(info.MarketID, 10)).
		SetResult(&details).
		Get("/api/v1/orderBookDetails")
	if err != nil {
		return exchange.ContractAttributes{}, fmt.Errorf("get order book details: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || len(details.OrderBookDetails) == 0 {
		return exchange.ContractAttributes{}, fmt.Errorf("get order book details: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.marketIndex = info.MarketID
	c.contractID = strconv.FormatInt(info.MarketID, 10)
	c.sizeScale = decimal.New(1, info.SupportedSizeDecimals)
	c.priceScale = decimal.New(1, info.SupportedPriceDecimals)
	c.tickSize = decimal.New(1, -details.OrderBookDetails[0].PriceDecimals)

	c.logger.Info("contract resolved",
		"ticker", c.cfg.Trading.Ticker,
		"market_index", c.marketIndex,
		"tick_size", c.tickSize,
	)
	return exchange.ContractAttributes{ContractID: c.contractID, TickSize: c.tickSize}, nil
}

// Connect starts the stream. GetContractAttributes must have been called.
func (c *Client) Connect(ctx context.Context) error {
	if c.contractID == "" {
		return fmt.Errorf("%w: contract not resolved before connect", exchange.ErrConfig)
	}

	c.stream = NewStream(c.cfg.Lighter.WSURL, c.marketIndex, c.cfg.Lighter.AccountIndex, c.signer, c.handleOrderEvents, c.logger)

	streamCtx, cancel := context.WithCancel(context.Background())
	c.streamStop = cancel
	go func() {
		if err := c.stream.Run(streamCtx); err != nil && streamCtx.Err() == nil {
			c.logger.Error("stream terminated", "error", err)
		}
	}()

	// Give the snapshot a moment to land so the first pricing calls succeed.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if c.stream.Book().Ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	c.logger.Warn("order book not ready after connect, continuing")
	return nil
}

// Disconnect stops the stream and closes the connection.
func (c *Client) Disconnect() error {
	if c.streamStop != nil {
		c.streamStop()
	}
	if c.stream != nil {
		return c.stream.Close()
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// FetchBBOPrices returns best bid/ask from the stream-maintained book.
func (c *Client) FetchBBOPrices(ctx context.Context, contractID string) (decimal.Decimal, decimal.Decimal, error) {
	if c.stream == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: stream not connected", exchange.ErrMarketData)
	}
	bid, ask, ok := c.stream.Book().BestBidAsk()
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: order book not ready", exchange.ErrMarketData)
	}
	if !bid.IsPositive() || !ask.IsPositive() || bid.GreaterThanOrEqual(ask) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: invalid bbo %s/%s", exchange.ErrMarketData, bid, ask)
	}
	return bid, ask, nil
}

// GetOrderPrice computes the canonical maker price for an open order.
func (c *Client) GetOrderPrice(ctx context.Context, direction types.Side) (decimal.Decimal, error) {
	bid, ask, err := c.FetchBBOPrices(ctx, c.contractID)
	if err != nil {
		return decimal.Zero, err
	}
	var price decimal.Decimal
	if direction == types.Buy {
		price = ask.Sub(c.tickSize)
	} else {
		price = bid.Add(c.tickSize)
	}
	return types.RoundToTick(price, c.tickSize), nil
}

// ————————————————————————————————————————————————————————————————————————
// Transaction submission
// ————————————————————————————————————————————————————————————————————————

type createOrderTx struct {
	AccountIndex     int64  `json:"account_index"`
	ApiKeyIndex      int64  `json:"api_key_index"`
	MarketIndex      int64  `json:"market_index"`
	ClientOrderIndex int64  `json:"client_order_index"`
	BaseAmount       int64  `json:"base_amount"`
	Price            int64  `json:"price"`
	IsAsk            bool   `json:"is_ask"`
	OrderType        int    `json:"type"`
	TimeInForce      int    `json:"time_in_force"`
	ReduceOnly       bool   `json:"reduce_only"`
	TriggerPrice     int64  `json:"trigger_price"`
	Nonce            int64  `json:"nonce"`
	ExpiredAt        int64  `json:"expired_at"`
	Signature        string `json:"sig,omitempty"`
}

type cancelOrderTx struct {
	AccountIndex int64  `json:"account_index"`
	ApiKeyIndex  int64  `json:"api_key_index"`
	MarketIndex  int64  `json:"market_index"`
	OrderIndex   int64  `json:"order_index"`
	Nonce        int64  `json:"nonce"`
	Signature    string `json:"sig,omitempty"`
}

type nextNonceResponse struct {
	Nonce int64 `json:"nonce"`
}

type sendTxResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TxHash  string `json:"tx_hash"`
}

func (c *Client) nextNonce(ctx context.Context) (int64, error) {
	if err := c.rl.Query.Wait(ctx); err != nil {
		return 0, err
	}
	var out nextNonceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("account_index", strconv.FormatInt(c.cfg.Lighter.AccountIndex, 10)).
		SetQueryParam("api_key_index", strconv.FormatInt(c.cfg.Lighter.APIKeyIndex, 10)).
		SetResult(&out).
		Get("/api/v1/nextNonce")
	if err != nil {
		return 0, fmt.Errorf("next nonce: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("next nonce: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Nonce, nil
}

func (c *Client) sendTx(ctx context.Context, txType int, tx any) error {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode tx: %w", err)
	}
	var out sendTxResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"tx_type": strconv.Itoa(txType),
			"tx_info": string(payload),
		}).
		SetResult(&out).
		Post("/api/v1/sendTx")
	if err != nil {
		return fmt.Errorf("send tx: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || out.Code != 200 {
		return fmt.Errorf("%w: send tx: status %d code %d: %s", exchange.ErrOrderRejected, resp.StatusCode(), out.Code, out.Message)
	}
	return nil
}

const (
	txTypeCreateOrder = 14
	txTypeCancelOrder = 15
)

// placeLimitOrder signs and submits one limit order, returning the client
// order index used to correlate stream events.
func (c *Client) placeLimitOrder(ctx context.Context, quantity, price decimal.Decimal, side types.Side, tif int) (int64, error) {
	nonce, err := c.nextNonce(ctx)
	if err != nil {
		return 0, err
	}

	coi := time.Now().UnixMilli() % 1_000_000
	tx := createOrderTx{
		AccountIndex:     c.cfg.Lighter.AccountIndex,
		ApiKeyIndex:      c.cfg.Lighter.APIKeyIndex,
		MarketIndex:      c.marketIndex,
		ClientOrderIndex: coi,
		BaseAmount:       quantity.Mul(c.sizeScale).IntPart(),
		Price:            price.Mul(c.priceScale).IntPart(),
		IsAsk:            side == types.Sell,
		OrderType:        orderTypeLimit,
		TimeInForce:      tif,
		Nonce:            nonce,
		ExpiredAt:        time.Now().Add(24 * time.Hour).UnixMilli(),
	}
	sig, err := c.signer.SignTx(tx)
	if err != nil {
		return 0, err
	}
	tx.Signature = sig

	if err := c.sendTx(ctx, txTypeCreateOrder, tx); err != nil {
		return 0, err
	}
	return coi, nil
}

// ————————————————————————————————————————————————————————————————————————
// Order commands
// ————————————————————————————————————————————————————————————————————————

// PlaceOpenOrder submits a post-only open order at the canonical maker price
// and waits up to 10s for the stream to resolve its status. Every fifth
// attempt re-checks active orders for duplicate opens.
func (c *Client) PlaceOpenOrder(ctx context.Context, contractID string, quantity decimal.Decimal, direction types.Side) (types.OrderResult, error) {
	for attempt := 1; ; attempt++ {
		if attempt%5 == 0 {
			if err := c.checkDuplicateOpens(ctx, direction); err != nil {
				return types.OrderResult{}, err
			}
		}

		price, err := c.GetOrderPrice(ctx, direction)
		if err != nil {
			return types.OrderResult{}, err
		}

		c.mu.Lock()
		c.currentOrder = nil
		c.currentCOI = 0
		c.mu.Unlock()

		coi, err := c.placeLimitOrder(ctx, quantity, price, direction, tifPostOnly)
		if err != nil {
			if ctx.Err() != nil {
				return types.OrderResult{}, ctx.Err()
			}
			c.logger.Info("open order rejected, retrying", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		c.currentCOI = coi
		c.mu.Unlock()

		return c.awaitOpenResolution(ctx, coi, quantity, price, direction)
	}
}

// awaitOpenResolution waits for the stream to report the submitted order,
// resolving PENDING into a live status within the fill window.
func (c *Client) awaitOpenResolution(ctx context.Context, coi int64, quantity, price decimal.Decimal, direction types.Side) (types.OrderResult, error) {
	deadline := time.Now().Add(fillWaitTimeout)
	for {
		cur := c.CurrentOrder()
		if cur != nil && cur.Status == types.StatusFilled {
			return types.OrderResult{
				Success: true,
				OrderID: cur.OrderID,
				Side:    direction,
				Size:    quantity,
				Price:   price,
				Status:  cur.Status,
			}, nil
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return types.OrderResult{}, ctx.Err()
		case <-time.After(fillPollInterval):
		}
	}

	result := types.OrderResult{
		Success: true,
		OrderID: strconv.FormatInt(coi, 10),
		Side:    direction,
		Size:    quantity,
		Price:   price,
		Status:  types.StatusOpen,
	}
	if cur := c.CurrentOrder(); cur != nil {
		result.OrderID = cur.OrderID
		result.Status = cur.Status
	}
	return result, nil
}

func (c *Client) checkDuplicateOpens(ctx context.Context, direction types.Side) error {
	orders, err := c.GetActiveOrders(ctx, c.contractID)
	if err != nil {
		return err
	}
	count := 0
	for _, o := range orders {
		if o.Side == direction {
			count++
		}
	}
	if count > 1 {
		return fmt.Errorf("%w: %d open-side orders active", exchange.ErrSafety, count)
	}
	return nil
}

// PlaceCloseOrder submits a post-only take-profit order, adjusting the price
// when it would cross and rounding to tick.
func (c *Client) PlaceCloseOrder(ctx context.Context, contractID string, quantity, price decimal.Decimal, side types.Side) (types.OrderResult, error) {
	baseline, err := c.countCloseOrders(ctx)
	if err != nil {
		return types.OrderResult{}, err
	}

	for attempt := 1; ; attempt++ {
		if attempt%5 == 0 {
			count, err := c.countCloseOrders(ctx)
			if err != nil {
				return types.OrderResult{}, err
			}
			if count-baseline > 1 {
				return types.OrderResult{}, fmt.Errorf("%w: close orders grew by %d during placement", exchange.ErrSafety, count-baseline)
			}
		}

		adjusted, err := c.adjustClosePrice(ctx, price, side)
		if err != nil {
			return types.OrderResult{}, err
		}

		coi, err := c.placeLimitOrder(ctx, quantity, adjusted, side, tifPostOnly)
		if err != nil {
			if ctx.Err() != nil {
				return types.OrderResult{}, ctx.Err()
			}
			c.logger.Info("close order rejected, retrying", "attempt", attempt, "error", err)
			continue
		}

		// Give the transaction time to land so reconciliation sees it.
		select {
		case <-ctx.Done():
			return types.OrderResult{}, ctx.Err()
		case <-time.After(closeSettleDelay):
		}

		return types.OrderResult{
			Success: true,
			OrderID: strconv.FormatInt(coi, 10),
			Side:    side,
			Size:    quantity,
			Price:   adjusted,
			Status:  types.StatusOpen,
		}, nil
	}
}

// adjustClosePrice guarantees maker placement: a sell at or under the best
// bid moves to one tick above it, a buy at or over the best ask moves to one
// tick under it.
func (c *Client) adjustClosePrice(ctx context.Context, price decimal.Decimal, side types.Side) (decimal.Decimal, error) {
	bid, ask, err := c.FetchBBOPrices(ctx, c.contractID)
	if err != nil {
		return decimal.Zero, err
	}
	adjusted := price
	if side == types.Sell && price.LessThanOrEqual(bid) {
		adjusted = bid.Add(c.tickSize)
	} else if side == types.Buy && price.GreaterThanOrEqual(ask) {
		adjusted = ask.Sub(c.tickSize)
	}
	return types.RoundToTick(adjusted, c.tickSize), nil
}

func (c *Client) countCloseOrders(ctx context.Context) (int, error) {
	orders, err := c.GetActiveOrders(ctx, c.contractID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, o := range orders {
		if o.Side == c.closeSide {
			count++
		}
	}
	return count, nil
}

// PlaceMarketOrder submits an immediate-or-cancel order with a bounded
// slippage price. Boost mode uses this to close fills instantly.
func (c *Client) PlaceMarketOrder(ctx context.Context, contractID string, quantity decimal.Decimal, side types.Side) (types.OrderResult, error) {
	bid, ask, err := c.FetchBBOPrices(ctx, c.contractID)
	if err != nil {
		return types.OrderResult{}, err
	}

	slip := decimal.NewFromInt(marketSlippagePct).Div(decimal.NewFromInt(100))
	var price decimal.Decimal
	if side == types.Buy {
		price = ask.Mul(decimal.NewFromInt(1).Add(slip))
	} else {
		price = bid.Mul(decimal.NewFromInt(1).Sub(slip))
	}
	price = types.RoundToTick(price, c.tickSize)

	coi, err := c.placeLimitOrder(ctx, quantity, price, side, tifImmediateOrCancel)
	if err != nil {
		return types.OrderResult{}, err
	}
	return types.OrderResult{
		Success: true,
		OrderID: strconv.FormatInt(coi, 10),
		Side:    side,
		Size:    quantity,
		Price:   price,
		Status:  types.StatusFilled,
	}, nil
}

// CancelOrder cancels by venue order index. Succeeds even when the order is
// already terminal.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (types.OrderResult, error) {
	orderIndex, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return types.OrderResult{}, fmt.Errorf("parse order id %q: %w", orderID, err)
	}

	nonce, err := c.nextNonce(ctx)
	if err != nil {
		return types.OrderResult{}, err
	}

	tx := cancelOrderTx{
		AccountIndex: c.cfg.Lighter.AccountIndex,
		ApiKeyIndex:  c.cfg.Lighter.APIKeyIndex,
		MarketIndex:  c.marketIndex,
		OrderIndex:   orderIndex,
		Nonce:        nonce,
	}
	sig, err := c.signer.SignTx(tx)
	if err != nil {
		return types.OrderResult{}, err
	}
	tx.Signature = sig

	if err := c.sendTx(ctx, txTypeCancelOrder, tx); err != nil {
		return types.OrderResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	return types.OrderResult{Success: true, OrderID: orderID}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Queries
// ————————————————————————————————————————————————————————————————————————

type restOrder struct {
	OrderIndex        int64  `json:"order_index"`
	IsAsk             bool   `json:"is_ask"`
	Status            string `json:"status"`
	Price             string `json:"price"`
	InitialBaseAmount string `json:"initial_base_amount"`
	FilledBaseAmount  string `json:"filled_base_amount"`
	RemainingBaseAmt  string `json:"remaining_base_amount"`
}

type activeOrdersResponse struct {
	Orders []restOrder `json:"orders"`
}

type accountResponse struct {
	Accounts []struct {
		Positions []struct {
			MarketID int64  `json:"market_id"`
			Position string `json:"position"`
		} `json:"positions"`
	} `json:"accounts"`
}

// GetActiveOrders lists resting orders for the contract.
func (c *Client) GetActiveOrders(ctx context.Context, contractID string) ([]types.OrderInfo, error) {
	return exchange.QueryReraise(ctx, func(ctx context.Context) ([]types.OrderInfo, error) {
		if err := c.rl.Query.Wait(ctx); err != nil {
			return nil, err
		}
		token, err := c.signer.FreshAuthToken()
		if err != nil {
			return nil, err
		}

		var out activeOrdersResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Authorization", token).
			SetQueryParam("account_index", strconv.FormatInt(c.cfg.Lighter.AccountIndex, 10)).
			SetQueryParam("market_id", c.contractID).
			SetResult(&out).
			Get("/api/v1/accountActiveOrders")
		if err != nil {
			return nil, fmt.Errorf("get active orders: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("get active orders: status %d: %s", resp.StatusCode(), resp.String())
		}

		orders := make([]types.OrderInfo, 0, len(out.Orders))
		for _, o := range out.Orders {
			size, err := parseDecimal(o.InitialBaseAmount)
			if err != nil || !size.IsPositive() {
				continue
			}
			price, _ := parseDecimal(o.Price)
			filled, _ := parseDecimal(o.FilledBaseAmount)
			remaining, _ := parseDecimal(o.RemainingBaseAmt)
			orders = append(orders, types.OrderInfo{
				OrderID:       strconv.FormatInt(o.OrderIndex, 10),
				Side:          sideFromAsk(o.IsAsk),
				Size:          size,
				Price:         price,
				Status:        normalizeStatus(o.Status, filled),
				FilledSize:    filled,
				RemainingSize: remaining,
			})
		}
		return orders, nil
	})
}

// GetOrderInfo returns the stream-tracked current order when the id matches,
// otherwise scans active orders. Returns nil for unknown orders.
func (c *Client) GetOrderInfo(ctx context.Context, orderID string) (*types.OrderInfo, error) {
	if cur := c.CurrentOrder(); cur != nil && cur.OrderID == orderID {
		return cur, nil
	}
	orders, err := c.GetActiveOrders(ctx, c.contractID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].OrderID == orderID {
			return &orders[i], nil
		}
	}
	return nil, nil
}

// GetAccountPositions returns the signed net position for the contract.
func (c *Client) GetAccountPositions(ctx context.Context) (decimal.Decimal, error) {
	return exchange.QueryReraise(ctx, func(ctx context.Context) (decimal.Decimal, error) {
		if err := c.rl.Query.Wait(ctx); err != nil {
			return decimal.Zero, err
		}
		var out accountResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("by", "index").
			SetQueryParam("value", strconv.FormatInt(c.cfg.Lighter.AccountIndex, 10)).
			SetResult(&out).
			Get("/api/v1/account")
		if err != nil {
			return decimal.Zero, fmt.Errorf("get account: %w", err)
		}
		if resp.StatusCode() != http.StatusOK || len(out.Accounts) == 0 {
			return decimal.Zero, fmt.Errorf("get account: status %d: %s", resp.StatusCode(), resp.String())
		}
		for _, p := range out.Accounts[0].Positions {
			if p.MarketID == c.marketIndex {
				return parseDecimal(p.Position)
			}
		}
		return decimal.Zero, nil
	})
}

// ————————————————————————————————————————————————————————————————————————
// Order update normalization
// ————————————————————————————————————————————————————————————————————————

// handleOrderEvents converts raw stream order events into canonical updates.
// Duplicate OPEN events with unchanged fill are suppressed via a per-order
// memo; terminal events evict the memo.
func (c *Client) handleOrderEvents(events []wsOrder) {
	for _, ev := range events {
		if ev.MarketIndex != c.marketIndex {
			continue
		}

		side := sideFromAsk(ev.IsAsk)
		orderType := types.DeriveOrderType(side, c.closeSide)
		orderID := strconv.FormatInt(ev.OrderIndex, 10)

		size, _ := parseDecimal(ev.InitialBaseAmount)
		price, _ := parseDecimal(ev.Price)
		filled, _ := parseDecimal(ev.FilledBaseAmount)
		remaining, _ := parseDecimal(ev.RemainingBaseAmt)
		rawStatus := types.OrderStatus(strings.ToUpper(ev.Status))

		c.mu.Lock()
		if memo, ok := c.ordersMemo[orderID]; ok {
			if memo.status == types.StatusOpen && rawStatus == types.StatusOpen && filled.Equal(memo.filledSize) {
				c.mu.Unlock()
				continue
			}
			if rawStatus == types.StatusFilled || rawStatus == types.StatusCanceled {
				delete(c.ordersMemo, orderID)
			} else {
				c.ordersMemo[orderID] = memoEntry{status: rawStatus, filledSize: filled}
			}
		} else if rawStatus == types.StatusOpen {
			c.ordersMemo[orderID] = memoEntry{status: rawStatus, filledSize: filled}
		}

		status := rawStatus
		if status == types.StatusOpen && filled.IsPositive() {
			status = types.StatusPartiallyFilled
		}

		if ev.ClientOrderIndex == c.currentCOI || orderType == types.OrderTypeOpen {
			c.currentOrder = &types.OrderInfo{
				OrderID:       orderID,
				Side:          side,
				Size:          size,
				Price:         price,
				Status:        status,
				FilledSize:    filled,
				RemainingSize: remaining,
			}
		}
		c.mu.Unlock()

		if status == types.StatusOpen {
			c.logger.Info("order update",
				"kind", orderType, "order_id", orderID, "status", status,
				"size", size, "price", price)
		} else {
			c.logger.Info("order update",
				"kind", orderType, "order_id", orderID, "status", status,
				"filled", filled, "price", price)
		}
		if status == types.StatusFilled || status == types.StatusCanceled {
			c.logger.Info("transaction",
				slog.Group("tx",
					"order_id", orderID, "side", side,
					"size", filled, "price", price, "status", status))
		}

		if c.handler != nil {
			c.handler(types.OrderUpdate{
				OrderID:    orderID,
				Side:       side,
				OrderType:  orderType,
				Status:     status,
				Size:       size,
				Price:      price,
				FilledSize: filled,
				ContractID: c.contractID,
			})
		}
	}
}

func sideFromAsk(isAsk bool) types.Side {
	if isAsk {
		return types.Sell
	}
	return types.Buy
}

func normalizeStatus(raw string, filled decimal.Decimal) types.OrderStatus {
	status := types.OrderStatus(strings.ToUpper(raw))
	if status == types.StatusOpen && filled.IsPositive() {
		return types.StatusPartiallyFilled
	}
	return status
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
