package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Investmeows/extendedbot/internal/exchange"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Client is the REST binding to the Extended Exchange API. Every call runs
// under the configured timeout; a hung venue call surfaces as an error
// instead of stalling the control loop.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	http      *http.Client
	log       *zap.Logger
}

func New(baseURL, apiKey, userAgent string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		userAgent: userAgent,
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type orderbookLevel struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

type orderbookResponse struct {
	Data struct {
		Ask []orderbookLevel `json:"ask"`
		Bid []orderbookLevel `json:"bid"`
	} `json:"data"`
}

// Orderbook fetches the best bid and ask for a market.
func (c *Client) Orderbook(ctx context.Context, market string) (exchange.Orderbook, error) {
	var resp orderbookResponse
	path := fmt.Sprintf("/info/markets/%s/orderbook", url.PathEscape(market))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return exchange.Orderbook{}, fmt.Errorf("orderbook %s: %w", market, err)
	}
	if len(resp.Data.Ask) == 0 || len(resp.Data.Bid) == 0 {
		return exchange.Orderbook{}, fmt.Errorf("orderbook %s: empty book", market)
	}
	ask, err := strconv.ParseFloat(resp.Data.Ask[0].Price, 64)
	if err != nil {
		return exchange.Orderbook{}, fmt.Errorf("orderbook %s: bad ask %q", market, resp.Data.Ask[0].Price)
	}
	bid, err := strconv.ParseFloat(resp.Data.Bid[0].Price, 64)
	if err != nil {
		return exchange.Orderbook{}, fmt.Errorf("orderbook %s: bad bid %q", market, resp.Data.Bid[0].Price)
	}
	if ask <= 0 || bid <= 0 {
		return exchange.Orderbook{}, fmt.Errorf("orderbook %s: non-positive top of book", market)
	}
	return exchange.Orderbook{BestBid: bid, BestAsk: ask}, nil
}

type marketsResponse struct {
	Data []struct {
		Name           string `json:"name"`
		AssetPrecision int    `json:"assetPrecision"`
		TradingConfig  struct {
			MinOrderSize       string `json:"minOrderSize"`
			MinOrderSizeChange string `json:"minOrderSizeChange"`
			MinPriceChange     string `json:"minPriceChange"`
		} `json:"tradingConfig"`
	} `json:"data"`
}

// MarketPrecision fetches the live order increments for a market.
func (c *Client) MarketPrecision(ctx context.Context, market string) (exchange.MarketPrecision, error) {
	var resp marketsResponse
	if err := c.get(ctx, "/info/markets", url.Values{"market": {market}}, &resp); err != nil {
		return exchange.MarketPrecision{}, fmt.Errorf("market precision %s: %w", market, err)
	}
	if len(resp.Data) == 0 {
		return exchange.MarketPrecision{}, fmt.Errorf("market precision %s: unknown market", market)
	}
	cfg := resp.Data[0].TradingConfig
	minSize, err := decimal.NewFromString(cfg.MinOrderSize)
	if err != nil {
		return exchange.MarketPrecision{}, fmt.Errorf("market precision %s: bad minOrderSize %q", market, cfg.MinOrderSize)
	}
	sizeStep, err := decimal.NewFromString(cfg.MinOrderSizeChange)
	if err != nil {
		return exchange.MarketPrecision{}, fmt.Errorf("market precision %s: bad minOrderSizeChange %q", market, cfg.MinOrderSizeChange)
	}
	priceStep, err := decimal.NewFromString(cfg.MinPriceChange)
	if err != nil {
		return exchange.MarketPrecision{}, fmt.Errorf("market precision %s: bad minPriceChange %q", market, cfg.MinPriceChange)
	}
	prec := exchange.MarketPrecision{
		MinOrderSize:       minSize,
		MinOrderSizeChange: sizeStep,
		MinPriceChange:     priceStep,
		AssetPrecision:     resp.Data[0].AssetPrecision,
	}
	if !prec.Valid() {
		return exchange.MarketPrecision{}, fmt.Errorf("market precision %s: non-positive increments", market)
	}
	return prec, nil
}

type positionsResponse struct {
	Data []struct {
		Market        string `json:"market"`
		Size          string `json:"size"`
		Side          string `json:"side"`
		MarkPrice     string `json:"markPrice"`
		UnrealisedPnl string `json:"unrealisedPnl"`
		Leverage      string `json:"leverage"`
	} `json:"data"`
}

// Positions returns the live position snapshot, normalized and with dust
// filtered out.
func (c *Client) Positions(ctx context.Context) ([]exchange.Position, error) {
	var resp positionsResponse
	if err := c.get(ctx, "/user/positions", nil, &resp); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	positions := make([]exchange.Position, 0, len(resp.Data))
	for _, raw := range resp.Data {
		size, err := strconv.ParseFloat(raw.Size, 64)
		if err != nil {
			c.log.Warn("skipping position with bad size", zap.String("market", raw.Market), zap.String("size", raw.Size))
			continue
		}
		if math.Abs(size) <= exchange.FlatEpsilon {
			continue
		}
		mark, _ := strconv.ParseFloat(raw.MarkPrice, 64)
		pnl, _ := strconv.ParseFloat(raw.UnrealisedPnl, 64)
		lev, _ := strconv.ParseFloat(raw.Leverage, 64)
		positions = append(positions, exchange.Position{
			Market:        raw.Market,
			Size:          size,
			Side:          exchange.Side(strings.ToUpper(raw.Side)),
			MarkPrice:     mark,
			UnrealizedPnl: pnl,
			Leverage:      lev,
		})
	}
	return positions, nil
}

type placeOrderRequest struct {
	Market      string `json:"market"`
	Side        string `json:"side"`
	Qty         string `json:"qty"`
	Price       string `json:"price"`
	TimeInForce string `json:"timeInForce"`
	ExternalID  string `json:"externalId,omitempty"`
}

type placeOrderResponse struct {
	Status string `json:"status"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
	Data struct {
		ID         json.Number `json:"id"`
		ExternalID string      `json:"externalId"`
	} `json:"data"`
}

// PlaceOrder submits an IOC limit order. A venue-side rejection comes back
// wrapped in exchange.ErrRejected so callers can tell it from a transport
// failure.
func (c *Client) PlaceOrder(ctx context.Context, order exchange.Order) (string, error) {
	tif := order.TimeInForce
	if tif == "" {
		tif = exchange.TifIOC
	}
	req := placeOrderRequest{
		Market:      order.Market,
		Side:        string(order.Side),
		Qty:         order.Qty,
		Price:       order.Price,
		TimeInForce: tif,
		ExternalID:  order.ClientOrderID,
	}
	var resp placeOrderResponse
	if err := c.post(ctx, "/user/order", req, &resp); err != nil {
		return "", fmt.Errorf("place order %s: %w", order.Market, err)
	}
	if resp.Status != "OK" {
		msg := resp.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("place order %s: %s: %w", order.Market, msg, exchange.ErrRejected)
	}
	return resp.Data.ID.String(), nil
}

// CancelAll mass-cancels every resting order on the account. Idempotent on
// an empty order book.
func (c *Client) CancelAll(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.post(ctx, "/user/order/massCancel", struct{}{}, &resp); err != nil {
		return fmt.Errorf("mass cancel: %w", err)
	}
	return nil
}

// SetLeverage updates the account leverage for one market.
func (c *Client) SetLeverage(ctx context.Context, market string, leverage int) error {
	req := struct {
		Market   string `json:"market"`
		Leverage int    `json:"leverage"`
	}{Market: market, Leverage: leverage}
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.patch(ctx, "/user/leverage", req, &resp); err != nil {
		return fmt.Errorf("set leverage %s: %w", market, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, http.MethodPost, path, body, out)
}

func (c *Client) patch(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if rejection(resp.StatusCode) {
			err = fmt.Errorf("%w: %w", exchange.ErrRejected, err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// rejection reports whether a status code means the venue understood and
// refused the request. Throttling and timeouts stay transient.
func rejection(status int) bool {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return false
	}
	return status >= 400 && status < 500
}
