package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Investmeows/extendedbot/internal/exchange"
	"github.com/Investmeows/extendedbot/internal/state"

	"go.uber.org/zap"
)

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
)

// RestClient is the slice of the venue binding the executor needs.
type RestClient interface {
	PlaceOrder(ctx context.Context, order exchange.Order) (string, error)
	CancelAll(ctx context.Context) error
}

// Executor wraps venue calls with bounded retry for transient failures and
// idempotent placement keyed by client order ID. Placing an order is
// irreversible, so a replayed client ID returns the recorded venue order ID
// instead of submitting again.
type Executor struct {
	rest  RestClient
	store state.Store
	log   *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

func New(rest RestClient, store state.Store, log *zap.Logger) *Executor {
	return &Executor{
		rest:  rest,
		store: store,
		log:   log,
		cache: make(map[string]string),
	}
}

func (e *Executor) PlaceOrder(ctx context.Context, order exchange.Order) (string, error) {
	if order.ClientOrderID == "" {
		return e.placeWithRetry(ctx, order)
	}
	cacheKey := "cloid:" + order.ClientOrderID
	e.mu.Lock()
	if oid, ok := e.cache[cacheKey]; ok {
		e.mu.Unlock()
		return oid, nil
	}
	e.mu.Unlock()
	if e.store != nil {
		if oid, ok, err := e.store.Get(ctx, cacheKey); err != nil {
			return "", err
		} else if ok {
			e.mu.Lock()
			e.cache[cacheKey] = oid
			e.mu.Unlock()
			return oid, nil
		}
	}
	orderID, err := e.placeWithRetry(ctx, order)
	if err != nil {
		return "", err
	}
	if e.store != nil {
		if err := e.store.Set(ctx, cacheKey, orderID); err != nil {
			e.log.Warn("failed to persist order id", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.cache[cacheKey] = orderID
	e.mu.Unlock()
	return orderID, nil
}

// CancelAll mass-cancels resting orders, retrying transient failures.
func (e *Executor) CancelAll(ctx context.Context) error {
	return e.retry(ctx, func() error {
		return e.rest.CancelAll(ctx)
	})
}

func (e *Executor) placeWithRetry(ctx context.Context, order exchange.Order) (string, error) {
	var orderID string
	err := e.retry(ctx, func() error {
		var err error
		orderID, err = e.rest.PlaceOrder(ctx, order)
		return err
	})
	if err != nil {
		return "", err
	}
	if orderID == "" {
		return "", errors.New("empty order id")
	}
	return orderID, nil
}

// retry runs fn up to maxAttempts times with doubling backoff. A venue
// rejection is terminal: the same order would be rejected again.
func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, exchange.ErrRejected) {
			return err
		}
		if attempt == maxAttempts {
			return fmt.Errorf("retry failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}
