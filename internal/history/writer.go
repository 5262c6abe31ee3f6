package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Investmeows/extendedbot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// LifecycleEvent records a single state transition of the position lifecycle.
type LifecycleEvent struct {
	Time       time.Time
	FromState  string
	ToState    string
	TradingDay string
	Reason     string
}

// LegSnapshot records one basket leg as seen during validation.
type LegSnapshot struct {
	Time           time.Time
	Pair           string
	Side           string
	TargetNotional float64
	ActualNotional float64
	MarkPrice      float64
	Size           float64
	Valid          bool
	Reason         string
}

// Writer streams lifecycle events and leg snapshots into Postgres/TimescaleDB
// off the trading path. A nil Writer is a no-op so callers never guard.
type Writer struct {
	db       *sql.DB
	log      *zap.Logger
	schema   string
	events   chan LifecycleEvent
	legs     chan LegSnapshot
	started  atomic.Bool
	dropEvt  atomic.Uint64
	dropLegs atomic.Uint64
}

func New(cfg config.HistoryConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		events: make(chan LifecycleEvent, queueSize),
		legs:   make(chan LegSnapshot, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueEvent(event LifecycleEvent) {
	if w == nil {
		return
	}
	select {
	case w.events <- event:
		return
	default:
		if w.dropEvt.Add(1) == 1 && w.log != nil {
			w.log.Warn("history event queue full")
		}
	}
}

func (w *Writer) EnqueueLeg(leg LegSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.legs <- leg:
		return
	default:
		if w.dropLegs.Add(1) == 1 && w.log != nil {
			w.log.Warn("history leg queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.events:
			w.writeEvent(ctx, event)
		case leg := <-w.legs:
			w.writeLeg(ctx, leg)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		trading_day TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`, w.table("lifecycle_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		pair TEXT NOT NULL,
		side TEXT NOT NULL,
		target_notional DOUBLE PRECISION NOT NULL,
		actual_notional DOUBLE PRECISION NOT NULL,
		mark_price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		valid BOOLEAN NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`, w.table("basket_leg_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("lifecycle_events"))); err != nil && w.log != nil {
		w.log.Warn("lifecycle_events hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("basket_leg_snapshots"))); err != nil && w.log != nil {
		w.log.Warn("basket_leg_snapshots hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeEvent(ctx context.Context, event LifecycleEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, from_state, to_state, trading_day, reason)
		VALUES ($1,$2,$3,$4,$5)`, w.table("lifecycle_events"))
	if _, err := w.db.ExecContext(ctx, query,
		event.Time, event.FromState, event.ToState, event.TradingDay, event.Reason,
	); err != nil && w.log != nil {
		w.log.Warn("history event write failed", zap.Error(err))
	}
}

func (w *Writer) writeLeg(ctx context.Context, leg LegSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, pair, side, target_notional, actual_notional, mark_price, size, valid, reason
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, w.table("basket_leg_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		leg.Time, leg.Pair, leg.Side, leg.TargetNotional, leg.ActualNotional,
		leg.MarkPrice, leg.Size, leg.Valid, leg.Reason,
	); err != nil && w.log != nil {
		w.log.Warn("history leg write failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
