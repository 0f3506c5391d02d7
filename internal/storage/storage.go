package storage

import (
	"context"
	"errors"

	"tokenpulse/internal/model"
)

// ErrNotFound is returned by lookups with no matching row.
var ErrNotFound = errors.New("not found")

// SnapshotStore persists market snapshots keyed by (token address, block
// number). Upsert must be idempotent: re-delivery of the same key overwrites
// the mutable columns and never duplicates rows.
//
// The read methods back external collaborators (query surface, operator
// tooling); they are plain ordered reads with no extra logic.
type SnapshotStore interface {
	Upsert(ctx context.Context, snapshot *model.MarketSnapshot) error
	Latest(ctx context.Context, tokenAddress string) (*model.MarketSnapshot, error)
	History(ctx context.Context, tokenAddress string, limit, offset int) ([]model.MarketSnapshot, error)
	AllLatest(ctx context.Context) ([]model.MarketSnapshot, error)
	InBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.MarketSnapshot, error)
}
