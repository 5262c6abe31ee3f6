package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Investmeows/extendedbot/internal/alerts"
	"github.com/Investmeows/extendedbot/internal/basket"
	"github.com/Investmeows/extendedbot/internal/config"
	"github.com/Investmeows/extendedbot/internal/exec"
	"github.com/Investmeows/extendedbot/internal/exchange/rest"
	"github.com/Investmeows/extendedbot/internal/history"
	"github.com/Investmeows/extendedbot/internal/metrics"
	"github.com/Investmeows/extendedbot/internal/orders"
	"github.com/Investmeows/extendedbot/internal/schedule"
	"github.com/Investmeows/extendedbot/internal/state"
	"github.com/Investmeows/extendedbot/internal/state/sqlite"
	"github.com/Investmeows/extendedbot/internal/strategy"

	"go.uber.org/zap"
)

const (
	userAgent       = "extendedbot/1.0"
	shutdownTimeout = 15 * time.Second
)

// App owns the full wiring: venue client, executor, order manager, scheduler
// and the lifecycle state machine, plus the ambient pieces (store, metrics,
// alerts, history).
type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	rest      *rest.Client
	executor  *exec.Executor
	orders    *orders.Manager
	scheduler *schedule.Scheduler
	basket    basket.Basket
	lifecycle *strategy.StateMachine
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	alerts    *alerts.Telegram
	history   *history.Writer

	settleDelay      time.Duration
	verifyRetryDelay time.Duration

	// trading day captured at open trigger, marked on verified open
	pendingOpenDay time.Time
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(os.Getenv("EXT_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("EXT_API_KEY is required")
	}
	restClient := rest.New(cfg.REST.BaseURL, apiKey, userAgent, cfg.REST.Timeout, log)
	executor := exec.New(restClient, store, log)

	scheduler, err := schedule.New(cfg.Schedule.OpenTime, cfg.Schedule.CloseTime, cfg.Schedule.Timezone)
	if err != nil {
		return nil, err
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	manager := orders.New(restClient, executor, log, m,
		cfg.Orders.PriceBuffer, cfg.Orders.CancelSettle, cfg.Orders.LegRetryDelay)

	writer, err := history.New(cfg.History, log)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:              cfg,
		log:              log,
		store:            store,
		rest:             restClient,
		executor:         executor,
		orders:           manager,
		scheduler:        scheduler,
		basket:           buildBasket(cfg.Basket),
		lifecycle:        strategy.NewStateMachine(),
		metrics:          m,
		prom:             prom,
		alerts:           alerts.NewTelegram(cfg.Telegram, log),
		history:          writer,
		settleDelay:      cfg.Orders.SettleDelay,
		verifyRetryDelay: cfg.Orders.VerifyRetryDelay,
	}, nil
}

func buildBasket(cfg config.BasketConfig) basket.Basket {
	targets := make(basket.Basket, 0, len(cfg.Long)+len(cfg.Short))
	for _, leg := range cfg.Long {
		targets = append(targets, basket.PairTarget{
			Pair:           leg.Pair,
			TargetNotional: leg.TargetNotional,
			Direction:      basket.Long,
		})
	}
	for _, leg := range cfg.Short {
		targets = append(targets, basket.PairTarget{
			Pair:           leg.Pair,
			TargetNotional: leg.TargetNotional,
			Direction:      basket.Short,
		})
	}
	return targets
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	a.history.Start(ctx)
	defer a.history.Close()
	if a.prom != nil {
		a.serveMetrics(ctx)
	}

	if a.cfg.Safety.DeadManSwitchEnabled() {
		if err := a.executor.CancelAll(ctx); err != nil {
			a.log.Warn("startup cancel failed", zap.Error(err))
		}
	}
	a.setupLeverage(ctx)
	if err := a.reconcileStartup(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(a.scheduler.NextPollInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			a.shutdownSweep()
			return ctx.Err()
		case <-timer.C:
			if err := a.cycle(ctx); err != nil {
				a.log.Warn("cycle failed", zap.Error(err))
			}
			timer.Reset(a.scheduler.NextPollInterval())
		}
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}
	go func() {
		a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// setupLeverage applies the configured leverage per leg. Best effort: a
// rejected leverage change is logged, not fatal, since the venue keeps the
// previous setting.
func (a *App) setupLeverage(ctx context.Context) {
	for _, target := range a.basket {
		leverage := a.cfg.Leverage.Long
		if target.Direction == basket.Short {
			leverage = a.cfg.Leverage.Short
		}
		if err := a.rest.SetLeverage(ctx, target.Pair, leverage); err != nil {
			a.log.Warn("leverage setup failed",
				zap.String("pair", target.Pair),
				zap.Int("leverage", leverage),
				zap.Error(err),
			)
		}
	}
}

// shutdownSweep cancels resting orders and closes every position on a fresh
// timeout context, since the run context is already cancelled.
func (a *App) shutdownSweep() {
	if !a.cfg.Safety.DeadManSwitchEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.log.Info("shutdown sweep: cancelling orders and closing positions")
	if err := a.executor.CancelAll(ctx); err != nil {
		a.log.Error("shutdown cancel failed", zap.Error(err))
	}
	positions, err := a.rest.Positions(ctx)
	if err != nil {
		a.log.Error("shutdown position fetch failed", zap.Error(err))
		return
	}
	if err := a.orders.CloseAll(ctx, positions); err != nil {
		a.log.Error("shutdown close failed", zap.Error(err))
	}
}
