package app

import (
	"context"
	"time"

	"github.com/Investmeows/extendedbot/internal/basket"
	"github.com/Investmeows/extendedbot/internal/exchange"
	"github.com/Investmeows/extendedbot/internal/history"
	"github.com/Investmeows/extendedbot/internal/state"
	"github.com/Investmeows/extendedbot/internal/strategy"

	"go.uber.org/zap"
)

// reconcileStartup decides the initial lifecycle state from the venue, not
// from local state. A validating basket resumes as OPEN; anything else is
// swept and the bot starts WAITING.
func (a *App) reconcileStartup(ctx context.Context) error {
	positions, err := a.rest.Positions(ctx)
	if err != nil {
		return err
	}
	valid, details := basket.Validate(positions, a.basket)
	a.recordValidation(details)
	if valid {
		day := a.scheduler.InferTradingDay()
		if snapshot, ok, err := state.LoadLifecycleSnapshot(ctx, a.store); err != nil {
			a.log.Warn("lifecycle snapshot load failed", zap.Error(err))
		} else if ok && snapshot.State == string(strategy.StateOpen) {
			if persisted, ok := snapshot.TradingDayIn(a.scheduler.Location()); ok {
				day = persisted
			}
		}
		a.lifecycle.SetState(strategy.StateOpen)
		a.scheduler.MarkTradingDay(day)
		a.persistSnapshot(ctx, "startup: basket verified open")
		a.log.Info("resumed with open basket",
			zap.Time("trading_day", day),
			zap.Int("positions", len(positions)),
		)
		a.alerts.Sendf(ctx, "Resumed with verified open basket (trading day %s)", day.Format("2006-01-02"))
		return nil
	}
	if len(positions) > 0 {
		a.log.Warn("startup positions do not match basket, closing",
			zap.Int("positions", len(positions)),
			zap.Any("details", legSummaries(details)),
		)
		if err := a.orders.CloseAll(ctx, positions); err != nil {
			a.log.Error("startup close failed", zap.Error(err))
		}
		a.alerts.Sendf(ctx, "Startup found %d position(s) not matching the basket; closing", len(positions))
	}
	a.lifecycle.SetState(strategy.StateWaiting)
	a.scheduler.ResetTradingDay()
	a.persistSnapshot(ctx, "startup: no verified basket")
	return nil
}

// cycle runs one reconciliation pass for the current lifecycle state.
func (a *App) cycle(ctx context.Context) error {
	switch a.lifecycle.State() {
	case strategy.StateWaiting:
		if a.scheduler.ShouldOpen() {
			return a.openBasket(ctx)
		}
	case strategy.StateOpening:
		return a.verifyOpen(ctx)
	case strategy.StateOpen:
		if a.scheduler.ShouldClose() {
			return a.closeBasket(ctx)
		}
	case strategy.StateClosing:
		return a.verifyClose(ctx)
	}
	return nil
}

func (a *App) openBasket(ctx context.Context) error {
	a.metrics.OpenCycles.Inc()
	a.pendingOpenDay = a.scheduler.Today()
	a.transition(ctx, strategy.EventOpenTriggered, "open window reached")
	if err := a.orders.OpenBasket(ctx, a.basket); err != nil {
		// placement gaps do not abort: verification decides from the venue
		a.log.Error("basket open incomplete", zap.Error(err))
	}
	return nil
}

func (a *App) verifyOpen(ctx context.Context) error {
	if err := a.pause(ctx, a.settleDelay); err != nil {
		return err
	}
	valid, err := a.validateBasket(ctx)
	if err != nil {
		return err
	}
	if !valid {
		if err := a.pause(ctx, a.verifyRetryDelay); err != nil {
			return err
		}
		if valid, err = a.validateBasket(ctx); err != nil {
			return err
		}
	}
	if valid {
		a.scheduler.MarkTradingDay(a.pendingOpenDay)
		a.transition(ctx, strategy.EventOpenVerified, "basket validated")
		a.alerts.Sendf(ctx, "Basket open verified for trading day %s", a.pendingOpenDay.Format("2006-01-02"))
		return nil
	}
	a.metrics.ValidationFailures.Inc()
	a.transition(ctx, strategy.EventOpenFailed, "basket did not validate")
	a.log.Error("basket open did not validate, positions may be partial")
	a.alerts.Sendf(ctx, "Basket open FAILED validation; check positions")
	return nil
}

func (a *App) closeBasket(ctx context.Context) error {
	a.metrics.CloseCycles.Inc()
	reason := "close time reached"
	if a.scheduler.MissedClose() {
		a.metrics.MissedCloseRecoveries.Inc()
		reason = "past expected close date"
		a.log.Warn("closing basket past its expected close date")
	}
	a.transition(ctx, strategy.EventCloseTriggered, reason)
	positions, err := a.rest.Positions(ctx)
	if err != nil {
		return err
	}
	if err := a.orders.CloseAll(ctx, positions); err != nil {
		a.log.Error("basket close incomplete", zap.Error(err))
	}
	return nil
}

func (a *App) verifyClose(ctx context.Context) error {
	if err := a.pause(ctx, a.settleDelay); err != nil {
		return err
	}
	flat, positions, err := a.allFlat(ctx)
	if err != nil {
		return err
	}
	if !flat {
		if err := a.orders.CloseAll(ctx, positions); err != nil {
			a.log.Error("close retry incomplete", zap.Error(err))
		}
		if err := a.pause(ctx, a.verifyRetryDelay); err != nil {
			return err
		}
		if flat, _, err = a.allFlat(ctx); err != nil {
			return err
		}
	}
	if flat {
		a.scheduler.ResetTradingDay()
		a.transition(ctx, strategy.EventCloseVerified, "all positions flat")
		a.alerts.Sendf(ctx, "Basket closed, all positions flat")
		return nil
	}
	a.metrics.ValidationFailures.Inc()
	a.transition(ctx, strategy.EventCloseFailed, "positions remain after close")
	a.log.Error("positions remain after close attempts")
	a.alerts.Sendf(ctx, "Basket close FAILED, positions remain open")
	return nil
}

// validateBasket pulls a fresh venue snapshot and checks it against the
// configured targets, logging every leg's deviation.
func (a *App) validateBasket(ctx context.Context) (bool, error) {
	positions, err := a.rest.Positions(ctx)
	if err != nil {
		return false, err
	}
	valid, details := basket.Validate(positions, a.basket)
	a.recordValidation(details)
	for _, detail := range details {
		if detail.Valid {
			a.log.Info("leg validated",
				zap.String("pair", detail.Pair),
				zap.Float64("target_notional", detail.TargetNotional),
				zap.Float64("actual_notional", detail.ActualNotional),
				zap.Float64("deviation_pct", detail.Deviation*100),
			)
			continue
		}
		a.log.Warn("leg invalid",
			zap.String("pair", detail.Pair),
			zap.Float64("target_notional", detail.TargetNotional),
			zap.Float64("actual_notional", detail.ActualNotional),
			zap.String("reason", detail.Reason),
		)
	}
	return valid, nil
}

func (a *App) allFlat(ctx context.Context) (bool, []exchange.Position, error) {
	positions, err := a.rest.Positions(ctx)
	if err != nil {
		return false, nil, err
	}
	for _, pos := range positions {
		if !pos.Flat() {
			return false, positions, nil
		}
	}
	return true, positions, nil
}

// transition applies an event, persists the resulting snapshot, and streams
// the change to history.
func (a *App) transition(ctx context.Context, event strategy.Event, reason string) {
	from := a.lifecycle.State()
	to := a.lifecycle.Apply(event)
	if to == from {
		return
	}
	a.log.Info("lifecycle transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	a.persistSnapshot(ctx, reason)
	snapshot := history.LifecycleEvent{
		Time:      time.Now().UTC(),
		FromState: string(from),
		ToState:   string(to),
		Reason:    reason,
	}
	if day, ok := a.scheduler.LastTradingDay(); ok {
		snapshot.TradingDay = day.Format("2006-01-02")
	}
	a.history.EnqueueEvent(snapshot)
}

func (a *App) persistSnapshot(ctx context.Context, reason string) {
	snapshot := state.LifecycleSnapshot{
		State:          string(a.lifecycle.State()),
		TransitionedAt: time.Now().UnixMilli(),
	}
	if day, ok := a.scheduler.LastTradingDay(); ok {
		snapshot.SetTradingDay(day)
	}
	if err := state.SaveLifecycleSnapshot(ctx, a.store, snapshot); err != nil {
		a.log.Warn("lifecycle snapshot save failed", zap.String("reason", reason), zap.Error(err))
	}
}

func (a *App) recordValidation(details []basket.LegDetail) {
	if a.history == nil {
		return
	}
	now := time.Now().UTC()
	byPair := make(map[string]basket.PairTarget, len(a.basket))
	for _, target := range a.basket {
		byPair[target.Pair] = target
	}
	for _, detail := range details {
		a.history.EnqueueLeg(history.LegSnapshot{
			Time:           now,
			Pair:           detail.Pair,
			Side:           string(byPair[detail.Pair].Direction),
			TargetNotional: detail.TargetNotional,
			ActualNotional: detail.ActualNotional,
			Valid:          detail.Valid,
			Reason:         detail.Reason,
		})
	}
}

func legSummaries(details []basket.LegDetail) []string {
	out := make([]string, 0, len(details))
	for _, detail := range details {
		if detail.Valid {
			continue
		}
		out = append(out, detail.Pair+": "+detail.Reason)
	}
	return out
}

func (a *App) pause(ctx context.Context, d time.Duration) error {
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
