// Package grvt implements the GRVT venue adapter.
//
// GRVT splits its API across three gateways: edge (auth), market-data
// (instruments, book), and trade-data (orders, positions, and the order
// stream in ws.go). All endpoints are JSON POST. Orders are EIP-712 signed;
// acceptance is asynchronous, so placement polls the order out of PENDING
// with a 10-second deadline.
package grvt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zhanghongchuang/perp-dex-tools/internal/config"
	"github.com/zhanghongchuang/perp-dex-tools/internal/exchange"
	"github.com/zhanghongchuang/perp-dex-tools/pkg/types"
)

func init() {
	exchange.MustRegister("grvt", New)
}

const (
	pendingPollDeadline = 10 * time.Second
	pendingPollInterval = 50 * time.Millisecond
	orderExpiryWindow   = 24 * time.Hour
)

// scale converts decimal prices/sizes to the fixed 9-decimal integers the
// signing payload uses.
var scale = decimal.New(1, 9)

type endpoints struct {
	edge       string
	marketData string
	tradeData  string
	wsTrade    string
}

func envEndpoints(env string) endpoints {
	switch strings.ToLower(env) {
	case "testnet":
		return endpoints{
			edge:       "https://edge.testnet.grvt.io",
			marketData: "https://market-data.testnet.grvt.io",
			tradeData:  "https://trades.testnet.grvt.io",
			wsTrade:    "wss://trades.testnet.grvt.io/ws/full",
		}
	default:
		return endpoints{
			edge:       "https://edge.grvt.io",
			marketData: "https://market-data.grvt.io",
			tradeData:  "https://trades.grvt.io",
			wsTrade:    "wss://trades.grvt.io/ws/full",
		}
	}
}

// Client is the GRVT adapter.
type Client struct {
	cfg    *config.Config
	http   *resty.Client
	rl     *exchange.RateLimiter
	auth   *Auth
	eps    endpoints
	logger *slog.Logger

	contractID     string
	instrumentHash string
	tickSize       decimal.Decimal

	stream     *OrderStream
	streamStop context.CancelFunc

	handler types.OrderUpdateHandler

	mu         sync.Mutex
	ordersMemo map[string]decimal.Decimal // order id -> last seen filled size on OPEN
	closeSide  types.Side
}

// New builds a GRVT adapter from config. Satisfies exchange.Constructor.
func New(cfg *config.Config, logger *slog.Logger) (exchange.ExchangeClient, error) {
	auth, err := NewAuth(cfg.GRVT.APIKey, cfg.GRVT.PrivateKey, cfg.GRVT.TradingAccountID, cfg.GRVT.Env)
	if err != nil {
		return nil, fmt.Errorf("%w: grvt: %v", exchange.ErrConfig, err)
	}

	httpClient := resty.New().
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
		auth:       auth,
		eps:        envEndpoints(cfg.GRVT.Env),
		logger:     logger.With("component", "grvt"),
		ordersMemo: make(map[string]decimal.Decimal),
		closeSide:  cfg.Trading.CloseOrderSide(),
	}, nil
}

// Name returns the venue name.
func (c *Client) Name() string { return "grvt" }

// SetOrderUpdateHandler registers the canonical order update callback.
func (c *Client) SetOrderUpdateHandler(handler types.OrderUpdateHandler) {
	c.handler = handler
}

// CurrentOrder always returns nil: GRVT placement resolves synchronously via
// the PENDING poll, so no stream-side current-order tracker is kept.
func (c *Client) CurrentOrder() *types.OrderInfo { return nil }

// ————————————————————————————————————————————————————————————————————————
// Contract resolution and connection lifecycle
// ————————————————————————————————————————————————————————————————————————

type instrument struct {
	Instrument     string `json:"instrument"`
	InstrumentHash string `json:"instrument_hash"`
	Base           string `json:"base"`
	Quote          string `json:"quote"`
	Kind           string `json:"kind"`
	TickSize       string `json:"tick_size"`
	MinSize        string `json:"min_size"`
}

type instrumentsResponse struct {
	Result []instrument `json:"result"`
}

// GetContractAttributes resolves the ticker to a GRVT perpetual instrument
// and validates the configured quantity against the venue minimum.
func (c *Client) GetContractAttributes(ctx context.Context) (exchange.ContractAttributes, error) {
	if err := c.rl.Market.Wait(ctx); err != nil {
		return exchange.ContractAttributes{}, err
	}

	var out instrumentsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"kind": []string{"PERPETUAL"}, "quote": []string{"USDT"}, "is_active": true}).
		SetResult(&out).
		Post(c.eps.marketData + "/full/v1/instruments")
	if err != nil {
		return exchange.ContractAttributes{}, fmt.Errorf("get instruments: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return exchange.ContractAttributes{}, fmt.Errorf("get instruments: status %d: %s", resp.StatusCode(), resp.String())
	}

	for _, inst := range out.Result {
		if inst.Base != c.cfg.Trading.Ticker || inst.Quote != "USDT" || inst.Kind != "PERPETUAL" {
			continue
		}

		tick, err := decimal.NewFromString(inst.TickSize)
		if err != nil {
			return exchange.ContractAttributes{}, fmt.Errorf("%w: bad tick size %q", exchange.ErrConfig, inst.TickSize)
		}
		if inst.MinSize != "" {
			minSize, err := decimal.NewFromString(inst.MinSize)
			if err == nil && c.cfg.Trading.Quantity.LessThan(minSize) {
				return exchange.ContractAttributes{}, fmt.Errorf("%w: quantity %s below grvt minimum %s",
					exchange.ErrConfig, c.cfg.Trading.Quantity, minSize)
			}
		}

		c.contractID = inst.Instrument
		c.instrumentHash = inst.InstrumentHash
		c.tickSize = tick
		c.logger.Info("contract resolved",
			"ticker", c.cfg.Trading.Ticker,
			"instrument", c.contractID,
			"tick_size", c.tickSize,
		)
		return exchange.ContractAttributes{ContractID: c.contractID, TickSize: tick}, nil
	}
	return exchange.ContractAttributes{}, fmt.Errorf("%w: ticker %q not found on grvt", exchange.ErrConfig, c.cfg.Trading.Ticker)
}

// Connect logs in and starts the order stream.
func (c *Client) Connect(ctx context.Context) error {
	if c.contractID == "" {
		return fmt.Errorf("%w: contract not resolved before connect", exchange.ErrConfig)
	}
	if err := c.auth.Login(ctx, c.http, c.eps.edge); err != nil {
		return err
	}

	c.stream = NewOrderStream(c.eps.wsTrade, c.contractID, c.auth, c.handleOrderFeed, c.logger)

	streamCtx, cancel := context.WithCancel(context.Background())
	c.streamStop = cancel
	go func() {
		if err := c.stream.Run(streamCtx); err != nil && streamCtx.Err() == nil {
			c.logger.Error("order stream terminated", "error", err)
		}
	}()
	return nil
}

// Disconnect stops the stream.
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

type bookResponse struct {
	Result struct {
		Bids []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"asks"`
	} `json:"result"`
}

// FetchBBOPrices polls the top of book from market data.
func (c *Client) FetchBBOPrices(ctx context.Context, contractID string) (decimal.Decimal, decimal.Decimal, error) {
	return fetchBBO(ctx, c, contractID)
}

func fetchBBO(ctx context.Context, c *Client, contractID string) (decimal.Decimal, decimal.Decimal, error) {
	type bbo struct{ bid, ask decimal.Decimal }
	out, err := exchange.QueryReraise(ctx, func(ctx context.Context) (bbo, error) {
		if err := c.rl.Market.Wait(ctx); err != nil {
			return bbo{}, err
		}
		var book bookResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]any{"instrument": contractID, "depth": 10}).
			SetResult(&book).
			Post(c.eps.marketData + "/full/v1/book")
		if err != nil {
			return bbo{}, fmt.Errorf("get book: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return bbo{}, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
		}
		if len(book.Result.Bids) == 0 || len(book.Result.Asks) == 0 {
			return bbo{}, fmt.Errorf("%w: empty book side", exchange.ErrMarketData)
		}
		bid, err := decimal.NewFromString(book.Result.Bids[0].Price)
		if err != nil {
			return bbo{}, fmt.Errorf("%w: bad bid price", exchange.ErrMarketData)
		}
		ask, err := decimal.NewFromString(book.Result.Asks[0].Price)
		if err != nil {
			return bbo{}, fmt.Errorf("%w: bad ask price", exchange.ErrMarketData)
		}
		if !bid.IsPositive() || !ask.IsPositive() || bid.GreaterThanOrEqual(ask) {
			return bbo{}, fmt.Errorf("%w: invalid bbo %s/%s", exchange.ErrMarketData, bid, ask)
		}
		return bbo{bid: bid, ask: ask}, nil
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return out.bid, out.ask, nil
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
// Order submission
// ————————————————————————————————————————————————————————————————————————

type apiOrder struct {
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

type orderResponse struct {
	Result apiOrder `json:"result"`
}

func (c *Client) authedRequest(ctx context.Context) (*resty.Request, error) {
	if err := c.auth.Login(ctx, c.http, c.eps.edge); err != nil {
		return nil, err
	}
	cookie, accountID := c.auth.Session()
	r := c.http.R().SetContext(ctx).SetCookie(cookie)
	if accountID != "" {
		r.SetHeader("X-Grvt-Account-Id", accountID)
	}
	return r, nil
}

// createOrder signs and submits one order, returning the venue's view of it.
func (c *Client) createOrder(ctx context.Context, quantity, price decimal.Decimal, side types.Side, isMarket, postOnly bool) (*apiOrder, error) {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	tif := "GOOD_TILL_TIME"
	if isMarket {
		tif = "IMMEDIATE_OR_CANCEL"
	}
	nonce := uint32(time.Now().UnixNano())
	expiration := time.Now().Add(orderExpiryWindow).UnixNano()
	sizeScaled := quantity.Mul(scale).BigInt()
	priceScaled := price.Mul(scale).BigInt()
	if isMarket {
		priceScaled = big.NewInt(0)
	}

	r, s, v, err := c.auth.SignOrder(c.instrumentHash, side == types.Buy, isMarket, postOnly, false,
		sizeScaled, priceScaled, tif, nonce, expiration)
	if err != nil {
		return nil, err
	}

	clientOrderID := uuid.NewString()
	body := map[string]any{
		"order": map[string]any{
			"sub_account_id": c.cfg.GRVT.TradingAccountID,
			"is_market":      isMarket,
			"time_in_force":  tif,
			"post_only":      postOnly,
			"reduce_only":    false,
			"legs": []map[string]any{{
				"instrument":      c.contractID,
				"size":            quantity.String(),
				"limit_price":     price.String(),
				"is_buying_asset": side == types.Buy,
			}},
			"signature": map[string]any{
				"signer":     c.auth.Signer().Hex(),
				"r":          "0x" + r,
				"s":          "0x" + s,
				"v":          v,
				"expiration": fmt.Sprintf("%d", expiration),
				"nonce":      nonce,
			},
			"metadata": map[string]any{
				"client_order_id": clientOrderID,
			},
		},
	}

	req, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out orderResponse
	resp, err := req.SetBody(body).SetResult(&out).Post(c.eps.tradeData + "/full/v1/create_order")
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: create order: status %d: %s", exchange.ErrOrderRejected, resp.StatusCode(), resp.String())
	}
	if out.Result.Metadata.ClientOrderID == "" {
		out.Result.Metadata.ClientOrderID = clientOrderID
	}
	return &out.Result, nil
}

// placePostOnlyOrder submits a maker order and polls it out of PENDING,
// bounded by a 10-second deadline.
func (c *Client) placePostOnlyOrder(ctx context.Context, quantity, price decimal.Decimal, side types.Side) (*types.OrderInfo, error) {
	order, err := c.createOrder(ctx, quantity, price, side, false, true)
	if err != nil {
		return nil, err
	}

	info := c.orderToInfo(order)
	deadline := time.Now().Add(pendingPollDeadline)
	for info.Status == types.StatusPending {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: order %s still pending after %s", exchange.ErrOrderTimeout, info.OrderID, pendingPollDeadline)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pendingPollInterval):
		}
		fresh, err := c.getOrderByClientID(ctx, order.Metadata.ClientOrderID)
		if err != nil {
			continue
		}
		if fresh != nil {
			info = fresh
		}
	}
	return info, nil
}

// PlaceOpenOrder submits a post-only open order at the canonical maker price,
// retrying on rejection with refreshed prices. Every fifth attempt re-checks
// active orders for duplicate opens.
func (c *Client) PlaceOpenOrder(ctx context.Context, contractID string, quantity decimal.Decimal, direction types.Side) (types.OrderResult, error) {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return types.OrderResult{}, ctx.Err()
		}
		if attempt%5 == 0 {
			c.logger.Info("open placement attempt", "attempt", attempt)
			orders, err := c.GetActiveOrders(ctx, contractID)
			if err != nil {
				return types.OrderResult{}, err
			}
			count := 0
			for _, o := range orders {
				if o.Side == direction {
					count++
				}
			}
			if count > 1 {
				return types.OrderResult{}, fmt.Errorf("%w: %d open-side orders active", exchange.ErrSafety, count)
			}
		}

		price, err := c.GetOrderPrice(ctx, direction)
		if err != nil {
			return types.OrderResult{Success: false, ErrorMessage: err.Error()}, nil
		}

		info, err := c.placePostOnlyOrder(ctx, quantity, price, direction)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return types.OrderResult{}, ctxErr
			}
			if isFatalPlacement(err) {
				return types.OrderResult{}, err
			}
			c.logger.Info("open order placement failed, retrying", "attempt", attempt, "error", err)
			continue
		}

		switch info.Status {
		case types.StatusRejected:
			continue
		case types.StatusOpen, types.StatusFilled, types.StatusPartiallyFilled:
			return types.OrderResult{
				Success: true,
				OrderID: info.OrderID,
				Side:    direction,
				Size:    quantity,
				Price:   price,
				Status:  info.Status,
			}, nil
		default:
			return types.OrderResult{}, fmt.Errorf("unexpected order status %s after placement", info.Status)
		}
	}
}

// PlaceCloseOrder submits a post-only take-profit order, adjusting the price
// to guarantee maker placement. Every fifth attempt checks that the close
// order count has not grown abnormally.
func (c *Client) PlaceCloseOrder(ctx context.Context, contractID string, quantity, price decimal.Decimal, side types.Side) (types.OrderResult, error) {
	baseline, err := c.countCloseOrders(ctx, contractID)
	if err != nil {
		return types.OrderResult{}, err
	}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return types.OrderResult{}, ctx.Err()
		}
		if attempt%5 == 0 {
			c.logger.Info("close placement attempt", "attempt", attempt)
			count, err := c.countCloseOrders(ctx, contractID)
			if err != nil {
				return types.OrderResult{}, err
			}
			if count-baseline > 1 {
				return types.OrderResult{}, fmt.Errorf("%w: close orders grew from %d to %d during placement", exchange.ErrSafety, baseline, count)
			}
			baseline = count
		}

		bid, ask, err := c.FetchBBOPrices(ctx, contractID)
		if err != nil {
			return types.OrderResult{Success: false, ErrorMessage: err.Error()}, nil
		}
		adjusted := price
		if side == types.Sell && price.LessThanOrEqual(bid) {
			adjusted = bid.Add(c.tickSize)
		} else if side == types.Buy && price.GreaterThanOrEqual(ask) {
			adjusted = ask.Sub(c.tickSize)
		}
		adjusted = types.RoundToTick(adjusted, c.tickSize)

		info, err := c.placePostOnlyOrder(ctx, quantity, adjusted, side)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return types.OrderResult{}, ctxErr
			}
			if isFatalPlacement(err) {
				return types.OrderResult{}, err
			}
			c.logger.Info("close order placement failed, retrying", "attempt", attempt, "error", err)
			continue
		}

		switch info.Status {
		case types.StatusRejected:
			continue
		case types.StatusOpen, types.StatusFilled, types.StatusPartiallyFilled:
			return types.OrderResult{
				Success: true,
				OrderID: info.OrderID,
				Side:    side,
				Size:    quantity,
				Price:   adjusted,
				Status:  info.Status,
			}, nil
		default:
			return types.OrderResult{}, fmt.Errorf("unexpected order status %s after placement", info.Status)
		}
	}
}

// PlaceMarketOrder submits an immediate market order. Boost mode uses this
// to close fills instantly.
func (c *Client) PlaceMarketOrder(ctx context.Context, contractID string, quantity decimal.Decimal, side types.Side) (types.OrderResult, error) {
	order, err := c.createOrder(ctx, quantity, decimal.Zero, side, true, false)
	if err != nil {
		return types.OrderResult{}, err
	}
	info := c.orderToInfo(order)
	return types.OrderResult{
		Success: true,
		OrderID: info.OrderID,
		Side:    side,
		Size:    quantity,
		Status:  info.Status,
	}, nil
}

// CancelOrder cancels by venue order id. Succeeds even when the order is
// already terminal.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (types.OrderResult, error) {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return types.OrderResult{}, err
	}
	req, err := c.authedRequest(ctx)
	if err != nil {
		return types.OrderResult{}, err
	}
	resp, err := req.
		SetBody(map[string]any{"order_id": orderID, "sub_account_id": c.cfg.GRVT.TradingAccountID}).
		Post(c.eps.tradeData + "/full/v1/cancel_order")
	if err != nil {
		return types.OrderResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderResult{Success: false, ErrorMessage: resp.String()}, nil
	}
	return types.OrderResult{Success: true, OrderID: orderID}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Queries
// ————————————————————————————————————————————————————————————————————————

// GetOrderInfo fetches one order by venue id. Returns nil for unknown orders.
func (c *Client) GetOrderInfo(ctx context.Context, orderID string) (*types.OrderInfo, error) {
	return c.fetchOrder(ctx, map[string]any{"order_id": orderID, "sub_account_id": c.cfg.GRVT.TradingAccountID})
}

func (c *Client) getOrderByClientID(ctx context.Context, clientOrderID string) (*types.OrderInfo, error) {
	return c.fetchOrder(ctx, map[string]any{"client_order_id": clientOrderID, "sub_account_id": c.cfg.GRVT.TradingAccountID})
}

func (c *Client) fetchOrder(ctx context.Context, body map[string]any) (*types.OrderInfo, error) {
	if err := c.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out orderResponse
	resp, err := req.SetBody(body).SetResult(&out).Post(c.eps.tradeData + "/full/v1/order")
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get order: status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Result.OrderID == "" && len(out.Result.Legs) == 0 {
		return nil, nil
	}
	return c.orderToInfo(&out.Result), nil
}

type openOrdersResponse struct {
	Result []apiOrder `json:"result"`
}

// GetActiveOrders lists resting orders for the contract.
func (c *Client) GetActiveOrders(ctx context.Context, contractID string) ([]types.OrderInfo, error) {
	return exchange.QueryReraise(ctx, func(ctx context.Context) ([]types.OrderInfo, error) {
		if err := c.rl.Query.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := c.authedRequest(ctx)
		if err != nil {
			return nil, err
		}
		var out openOrdersResponse
		resp, err := req.
			SetBody(map[string]any{"sub_account_id": c.cfg.GRVT.TradingAccountID, "kind": []string{"PERPETUAL"}}).
			SetResult(&out).
			Post(c.eps.tradeData + "/full/v1/open_orders")
		if err != nil {
			return nil, fmt.Errorf("get open orders: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("get open orders: status %d: %s", resp.StatusCode(), resp.String())
		}

		orders := make([]types.OrderInfo, 0, len(out.Result))
		for i := range out.Result {
			o := &out.Result[i]
			if len(o.Legs) == 0 || o.Legs[0].Instrument != contractID {
				continue
			}
			orders = append(orders, *c.orderToInfo(o))
		}
		return orders, nil
	})
}

func (c *Client) countCloseOrders(ctx context.Context, contractID string) (int, error) {
	orders, err := c.GetActiveOrders(ctx, contractID)
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

type positionsResponse struct {
	Result []struct {
		Instrument string `json:"instrument"`
		Size       string `json:"size"`
	} `json:"result"`
}

// GetAccountPositions returns the absolute net position for the contract.
func (c *Client) GetAccountPositions(ctx context.Context) (decimal.Decimal, error) {
	return exchange.QueryReraise(ctx, func(ctx context.Context) (decimal.Decimal, error) {
		if err := c.rl.Query.Wait(ctx); err != nil {
			return decimal.Zero, err
		}
		req, err := c.authedRequest(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		var out positionsResponse
		resp, err := req.
			SetBody(map[string]any{"sub_account_id": c.cfg.GRVT.TradingAccountID, "kind": []string{"PERPETUAL"}}).
			SetResult(&out).
			Post(c.eps.tradeData + "/full/v1/positions")
		if err != nil {
			return decimal.Zero, fmt.Errorf("get positions: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return decimal.Zero, fmt.Errorf("get positions: status %d: %s", resp.StatusCode(), resp.String())
		}
		for _, p := range out.Result {
			if p.Instrument == c.contractID {
				size, err := decimal.NewFromString(p.Size)
				if err != nil {
					return decimal.Zero, fmt.Errorf("parse position size %q: %w", p.Size, err)
				}
				return size.Abs(), nil
			}
		}
		return decimal.Zero, nil
	})
}

// ————————————————————————————————————————————————————————————————————————
// Normalization
// ————————————————————————————————————————————————————————————————————————

func (c *Client) orderToInfo(o *apiOrder) *types.OrderInfo {
	info := &types.OrderInfo{OrderID: o.OrderID}
	if len(o.Legs) > 0 {
		leg := o.Legs[0]
		if leg.IsBuyingAsset {
			info.Side = types.Buy
		} else {
			info.Side = types.Sell
		}
		info.Size, _ = decimal.NewFromString(leg.Size)
		info.Price, _ = decimal.NewFromString(leg.LimitPrice)
	}
	if len(o.State.TradedSize) > 0 {
		info.FilledSize, _ = decimal.NewFromString(o.State.TradedSize[0])
	}
	if len(o.State.BookSize) > 0 {
		info.RemainingSize, _ = decimal.NewFromString(o.State.BookSize[0])
	}
	info.Status = mapStatus(o.State.Status, info.FilledSize)
	return info
}

// mapStatus maps GRVT's status vocabulary to the canonical one.
func mapStatus(raw string, filled decimal.Decimal) types.OrderStatus {
	switch raw {
	case "OPEN":
		if filled.IsPositive() {
			return types.StatusPartiallyFilled
		}
		return types.StatusOpen
	case "FILLED":
		return types.StatusFilled
	case "CANCELLED", "REJECTED":
		return types.StatusCanceled
	case "PENDING":
		return types.StatusPending
	default:
		return types.OrderStatus(raw)
	}
}

// handleOrderFeed converts stream feed messages into canonical updates.
// Duplicate OPEN events with unchanged fill are suppressed; terminal events
// evict the memo.
func (c *Client) handleOrderFeed(feed wsOrderFeed) {
	if len(feed.Legs) == 0 || feed.Legs[0].Instrument != c.contractID {
		return
	}
	if feed.OrderID == "" || feed.State.Status == "" {
		return
	}

	leg := feed.Legs[0]
	side := types.Sell
	if leg.IsBuyingAsset {
		side = types.Buy
	}
	orderType := types.DeriveOrderType(side, c.closeSide)

	size, _ := decimal.NewFromString(leg.Size)
	price, _ := decimal.NewFromString(leg.LimitPrice)
	var filled decimal.Decimal
	if len(feed.State.TradedSize) > 0 {
		filled, _ = decimal.NewFromString(feed.State.TradedSize[0])
	}

	status := mapStatus(feed.State.Status, filled)
	switch status {
	case types.StatusOpen, types.StatusPartiallyFilled, types.StatusFilled, types.StatusCanceled:
	default:
		c.logger.Debug("ignoring order update", "status", status)
		return
	}

	c.mu.Lock()
	if last, ok := c.ordersMemo[feed.OrderID]; ok {
		if status == types.StatusOpen && filled.Equal(last) {
			c.mu.Unlock()
			return
		}
		if status.Terminal() {
			delete(c.ordersMemo, feed.OrderID)
		} else {
			c.ordersMemo[feed.OrderID] = filled
		}
	} else if status == types.StatusOpen {
		c.ordersMemo[feed.OrderID] = filled
	}
	c.mu.Unlock()

	if status == types.StatusFilled || status == types.StatusCanceled {
		c.logger.Info("transaction",
			slog.Group("tx",
				"order_id", feed.OrderID, "side", side,
				"size", filled, "price", price, "status", status))
	}

	if c.handler != nil {
		c.handler(types.OrderUpdate{
			OrderID:    feed.OrderID,
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

// isFatalPlacement reports whether a placement error should abort the retry
// loop instead of refreshing prices and trying again.
func isFatalPlacement(err error) bool {
	return errors.Is(err, exchange.ErrOrderTimeout) || errors.Is(err, exchange.ErrSafety)
}
