package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Investmeows/extendedbot/internal/basket"
	"github.com/Investmeows/extendedbot/internal/exchange"
	"github.com/Investmeows/extendedbot/internal/metrics"
	"github.com/Investmeows/extendedbot/internal/quant"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultPriceBuffer widens an IOC limit order past the top of book so it
// fills like a market order with a price cap.
const DefaultPriceBuffer = 0.0075

// MarketData is the read-only slice of the venue the manager prices from.
type MarketData interface {
	Orderbook(ctx context.Context, market string) (exchange.Orderbook, error)
	MarketPrecision(ctx context.Context, market string) (exchange.MarketPrecision, error)
}

// Placer submits and cancels orders; in production this is the Executor.
type Placer interface {
	PlaceOrder(ctx context.Context, order exchange.Order) (string, error)
	CancelAll(ctx context.Context) error
}

// Manager computes per-leg prices and quantities and drives placement for a
// whole basket. Legs are independent: one failed leg does not stop the rest,
// but any failure is reported so the caller treats the basket as not
// converged. Every placement is an irreversible venue action; recovery from
// partial fills belongs to the reconciliation loop, not here.
type Manager struct {
	market  MarketData
	exec    Placer
	log     *zap.Logger
	metrics *metrics.Metrics

	priceBuffer  float64
	cancelSettle time.Duration
	retryDelay   time.Duration

	now func() time.Time
}

func New(market MarketData, exec Placer, log *zap.Logger, m *metrics.Metrics, priceBuffer float64, cancelSettle, retryDelay time.Duration) *Manager {
	if priceBuffer <= 0 {
		priceBuffer = DefaultPriceBuffer
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Manager{
		market:       market,
		exec:         exec,
		log:          log,
		metrics:      m,
		priceBuffer:  priceBuffer,
		cancelSettle: cancelSettle,
		retryDelay:   retryDelay,
		now:          time.Now,
	}
}

// PlanOpen derives the IOC order that opens one leg: long legs buy at
// ask*(1+buffer), short legs sell at bid*(1-buffer). Quantity is the target
// notional at the quantized price, raised to the venue minimum order size,
// then quantized up to the size step.
func PlanOpen(target basket.PairTarget, book exchange.Orderbook, prec exchange.MarketPrecision, buffer float64) (exchange.Order, error) {
	if !prec.Valid() {
		return exchange.Order{}, fmt.Errorf("%s: invalid market precision", target.Pair)
	}
	if target.TargetNotional <= 0 {
		return exchange.Order{}, fmt.Errorf("%s: target notional must be positive", target.Pair)
	}
	var priceRaw float64
	if target.Direction == basket.Short {
		priceRaw = book.BestBid * (1 - buffer)
	} else {
		priceRaw = book.BestAsk * (1 + buffer)
	}
	if priceRaw <= 0 {
		return exchange.Order{}, fmt.Errorf("%s: no usable top of book", target.Pair)
	}
	price := quant.QuantizeFloat(priceRaw, prec.MinPriceChange)
	priceDec, err := decimal.NewFromString(price)
	if err != nil || !priceDec.IsPositive() {
		return exchange.Order{}, fmt.Errorf("%s: bad quantized price %q", target.Pair, price)
	}
	qtyRaw := decimal.NewFromFloat(target.TargetNotional).Div(priceDec)
	if qtyRaw.LessThan(prec.MinOrderSize) {
		qtyRaw = prec.MinOrderSize
	}
	qty := quant.Quantize(qtyRaw, prec.MinOrderSizeChange)
	return exchange.Order{
		Market:      target.Pair,
		Side:        target.Direction.OpenSide(),
		Qty:         qty,
		Price:       price,
		TimeInForce: exchange.TifIOC,
	}, nil
}

// PlanClose mirrors PlanOpen for an existing position: a long sells at
// bid*(1-buffer), a short buys at ask*(1+buffer). Quantity is the absolute
// live size, not a re-derived target.
func PlanClose(pos exchange.Position, book exchange.Orderbook, prec exchange.MarketPrecision, buffer float64) (exchange.Order, error) {
	if !prec.Valid() {
		return exchange.Order{}, fmt.Errorf("%s: invalid market precision", pos.Market)
	}
	size := pos.Size
	if size < 0 {
		size = -size
	}
	if size <= exchange.FlatEpsilon {
		return exchange.Order{}, fmt.Errorf("%s: position already flat", pos.Market)
	}
	var side exchange.OrderSide
	var priceRaw float64
	if pos.Side == exchange.SideLong {
		side = exchange.Sell
		priceRaw = book.BestBid * (1 - buffer)
	} else {
		side = exchange.Buy
		priceRaw = book.BestAsk * (1 + buffer)
	}
	if priceRaw <= 0 {
		return exchange.Order{}, fmt.Errorf("%s: no usable top of book", pos.Market)
	}
	return exchange.Order{
		Market:      pos.Market,
		Side:        side,
		Qty:         quant.QuantizeFloat(size, prec.MinOrderSizeChange),
		Price:       quant.QuantizeFloat(priceRaw, prec.MinPriceChange),
		TimeInForce: exchange.TifIOC,
	}, nil
}

// OpenBasket cancels resting orders and places one opening IOC order per
// leg. Prices and precision are fetched fresh for the whole basket in one
// pass before any order goes out.
func (m *Manager) OpenBasket(ctx context.Context, targets basket.Basket) error {
	if len(targets) == 0 {
		return errors.New("no pairs configured to open")
	}
	if err := m.cancelFirst(ctx); err != nil {
		return err
	}
	books, precisions, err := m.fetchMarketData(ctx, targets.Pairs())
	if err != nil {
		return err
	}
	stamp := m.now().UTC().Format("20060102T150405Z")
	var failed []error
	for _, target := range targets {
		order, err := PlanOpen(target, books[target.Pair], precisions[target.Pair], m.priceBuffer)
		if err != nil {
			m.log.Error("leg sizing failed", zap.String("pair", target.Pair), zap.Error(err))
			failed = append(failed, err)
			continue
		}
		order.ClientOrderID = fmt.Sprintf("open-%s-%s", target.Pair, stamp)
		m.log.Info("opening leg",
			zap.String("pair", target.Pair),
			zap.String("direction", string(target.Direction)),
			zap.String("qty", order.Qty),
			zap.String("price", order.Price),
			zap.Float64("target_notional", target.TargetNotional),
		)
		if err := m.placeLeg(ctx, order); err != nil {
			failed = append(failed, fmt.Errorf("open %s: %w", target.Pair, err))
		}
	}
	return errors.Join(failed...)
}

// CloseAll cancels resting orders and places one closing IOC order per live
// position.
func (m *Manager) CloseAll(ctx context.Context, positions []exchange.Position) error {
	if len(positions) == 0 {
		m.log.Info("no positions to close")
		return nil
	}
	if err := m.cancelFirst(ctx); err != nil {
		return err
	}
	markets := make([]string, 0, len(positions))
	for _, pos := range positions {
		if pos.Flat() {
			continue
		}
		markets = append(markets, pos.Market)
	}
	if len(markets) == 0 {
		return nil
	}
	books, precisions, err := m.fetchMarketData(ctx, markets)
	if err != nil {
		return err
	}
	stamp := m.now().UTC().Format("20060102T150405Z")
	var failed []error
	for _, pos := range positions {
		if pos.Flat() {
			continue
		}
		order, err := PlanClose(pos, books[pos.Market], precisions[pos.Market], m.priceBuffer)
		if err != nil {
			m.log.Error("close sizing failed", zap.String("pair", pos.Market), zap.Error(err))
			failed = append(failed, err)
			continue
		}
		order.ClientOrderID = fmt.Sprintf("close-%s-%s", pos.Market, stamp)
		m.log.Info("closing leg",
			zap.String("pair", pos.Market),
			zap.String("side", string(order.Side)),
			zap.String("qty", order.Qty),
			zap.String("price", order.Price),
		)
		if err := m.placeLeg(ctx, order); err != nil {
			failed = append(failed, fmt.Errorf("close %s: %w", pos.Market, err))
		}
	}
	return errors.Join(failed...)
}

// cancelFirst mass-cancels before computing new orders, then waits for the
// venue to settle the cancels. Idempotent on an empty book.
func (m *Manager) cancelFirst(ctx context.Context) error {
	if err := m.exec.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancel resting orders: %w", err)
	}
	return sleep(ctx, m.cancelSettle)
}

// fetchMarketData batch-fetches top of book and precision for every market.
// Nothing is cached across cycles; the venue may change increments.
func (m *Manager) fetchMarketData(ctx context.Context, markets []string) (map[string]exchange.Orderbook, map[string]exchange.MarketPrecision, error) {
	books := make(map[string]exchange.Orderbook, len(markets))
	precisions := make(map[string]exchange.MarketPrecision, len(markets))
	for _, market := range markets {
		if _, ok := books[market]; ok {
			continue
		}
		book, err := m.market.Orderbook(ctx, market)
		if err != nil {
			return nil, nil, err
		}
		prec, err := m.market.MarketPrecision(ctx, market)
		if err != nil {
			return nil, nil, err
		}
		books[market] = book
		precisions[market] = prec
	}
	return books, precisions, nil
}

// placeLeg submits one order, retrying exactly once after a short delay. The
// retry carries a fresh client order ID so idempotent placement does not
// swallow it.
func (m *Manager) placeLeg(ctx context.Context, order exchange.Order) error {
	_, err := m.exec.PlaceOrder(ctx, order)
	if err == nil {
		m.metrics.OrdersPlaced.Inc()
		return nil
	}
	m.log.Error("leg placement failed, retrying once",
		zap.String("pair", order.Market),
		zap.String("side", string(order.Side)),
		zap.Error(err),
	)
	if serr := sleep(ctx, m.retryDelay); serr != nil {
		m.metrics.OrdersFailed.Inc()
		return serr
	}
	retry := order
	if retry.ClientOrderID != "" {
		retry.ClientOrderID += "-r1"
	}
	if _, err = m.exec.PlaceOrder(ctx, retry); err != nil {
		m.metrics.OrdersFailed.Inc()
		return err
	}
	m.log.Info("leg retry succeeded", zap.String("pair", order.Market))
	m.metrics.OrdersPlaced.Inc()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
