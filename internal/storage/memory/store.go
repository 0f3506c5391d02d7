package memory

import (
	"context"
	"sort"
	"sync"

	"tokenpulse/internal/model"
	"tokenpulse/internal/storage"
)

type key struct {
	token string
	block uint64
}

// Store is an in-memory SnapshotStore with the same upsert semantics as the
// Postgres implementation. Used by tests and as a supervisor fake.
type Store struct {
	mu   sync.RWMutex
	rows map[key]model.MarketSnapshot
}

func NewStore() *Store {
	return &Store{rows: make(map[key]model.MarketSnapshot)}
}

var _ storage.SnapshotStore = (*Store)(nil)

// Upsert overwrites the row for (token, block), last writer wins.
func (s *Store) Upsert(ctx context.Context, snapshot *model.MarketSnapshot) error {
	s.mu.Lock()
	s.rows[key{token: snapshot.TokenAddress, block: snapshot.BlockNumber}] = *snapshot
	s.mu.Unlock()
	return nil
}

func (s *Store) Latest(ctx context.Context, tokenAddress string) (*model.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *model.MarketSnapshot
	for k, row := range s.rows {
		if k.token != tokenAddress {
			continue
		}
		if best == nil || row.BlockNumber > best.BlockNumber {
			row := row
			best = &row
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best, nil
}

func (s *Store) History(ctx context.Context, tokenAddress string, limit, offset int) ([]model.MarketSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	rows := make([]model.MarketSnapshot, 0)
	for k, row := range s.rows {
		if k.token == tokenAddress {
			rows = append(rows, row)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].BlockNumber > rows[j].BlockNumber })
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) AllLatest(ctx context.Context) ([]model.MarketSnapshot, error) {
	s.mu.RLock()
	latest := make(map[string]model.MarketSnapshot)
	for k, row := range s.rows {
		if existing, ok := latest[k.token]; !ok || row.BlockNumber > existing.BlockNumber {
			latest[k.token] = row
		}
	}
	s.mu.RUnlock()

	rows := make([]model.MarketSnapshot, 0, len(latest))
	for _, row := range latest {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TokenAddress < rows[j].TokenAddress })
	return rows, nil
}

func (s *Store) InBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.MarketSnapshot, error) {
	s.mu.RLock()
	rows := make([]model.MarketSnapshot, 0)
	for _, row := range s.rows {
		if row.BlockNumber >= fromBlock && row.BlockNumber <= toBlock {
			rows = append(rows, row)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BlockNumber != rows[j].BlockNumber {
			return rows[i].BlockNumber < rows[j].BlockNumber
		}
		return rows[i].TokenAddress < rows[j].TokenAddress
	})
	return rows, nil
}

// Len reports the stored row count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
