package state

import "context"

// Store is a small durable key/value surface used for order idempotency
// records and lifecycle snapshots. The venue's live position snapshot stays
// the source of truth for reconciliation; nothing here is required to
// rebuild state after a restart.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
