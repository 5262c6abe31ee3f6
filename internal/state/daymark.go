package state

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

const LifecycleSnapshotKey = "lifecycle:last_snapshot"

// LifecycleSnapshot records the last verified state transition. It is
// informational only: startup reconciliation always revalidates against the
// venue, this just gives operators continuity across restarts.
type LifecycleSnapshot struct {
	State          string `json:"state"`
	TradingDay     string `json:"trading_day,omitempty"`
	TransitionedAt int64  `json:"transitioned_at_ms"`
}

const tradingDayLayout = "2006-01-02"

// SetTradingDay stores the trading day as a calendar date.
func (s *LifecycleSnapshot) SetTradingDay(day time.Time) {
	s.TradingDay = day.Format(tradingDayLayout)
}

// TradingDayIn parses the stored trading day in the given zone.
func (s *LifecycleSnapshot) TradingDayIn(loc *time.Location) (time.Time, bool) {
	if s.TradingDay == "" {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(tradingDayLayout, s.TradingDay, loc)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func LoadLifecycleSnapshot(ctx context.Context, store Store) (LifecycleSnapshot, bool, error) {
	if store == nil {
		return LifecycleSnapshot{}, false, nil
	}
	raw, ok, err := store.Get(ctx, LifecycleSnapshotKey)
	if err != nil {
		return LifecycleSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return LifecycleSnapshot{}, false, nil
	}
	var snapshot LifecycleSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return LifecycleSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveLifecycleSnapshot(ctx context.Context, store Store, snapshot LifecycleSnapshot) error {
	if store == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, LifecycleSnapshotKey, string(payload))
}
