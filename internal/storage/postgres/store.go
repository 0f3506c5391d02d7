package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tokenpulse/internal/model"
	"tokenpulse/internal/storage"
)

// Store provides Postgres persistence for market snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool wraps an existing pool, shared with external collaborators
// such as the retention job.
func NewStoreWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying connection pool for migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

var _ storage.SnapshotStore = (*Store)(nil)

const snapshotColumns = `
	token_address, block_number, block_hash, symbol, name,
	price_usd, price_eth, volume_tokens, volume_usd,
	total_liquidity_usd, total_supply, market_cap_usd,
	transfer_count, unique_address_count, holder_count,
	price_history, captured_at
`

// Upsert inserts or overwrites the snapshot row for (token, block).
// Last writer wins on every mutable column.
func (s *Store) Upsert(ctx context.Context, snapshot *model.MarketSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is nil")
	}

	history, err := json.Marshal(snapshot.PriceHistory)
	if err != nil {
		return fmt.Errorf("marshal price history: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO market_snapshots (
			token_address, block_number, block_hash, symbol, name,
			price_usd, price_eth, volume_tokens, volume_usd,
			total_liquidity_usd, total_supply, market_cap_usd,
			transfer_count, unique_address_count, holder_count,
			price_history, captured_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (token_address, block_number)
		DO UPDATE SET
			block_hash = EXCLUDED.block_hash,
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			price_usd = EXCLUDED.price_usd,
			price_eth = EXCLUDED.price_eth,
			volume_tokens = EXCLUDED.volume_tokens,
			volume_usd = EXCLUDED.volume_usd,
			total_liquidity_usd = EXCLUDED.total_liquidity_usd,
			total_supply = EXCLUDED.total_supply,
			market_cap_usd = EXCLUDED.market_cap_usd,
			transfer_count = EXCLUDED.transfer_count,
			unique_address_count = EXCLUDED.unique_address_count,
			holder_count = EXCLUDED.holder_count,
			price_history = EXCLUDED.price_history,
			captured_at = EXCLUDED.captured_at
	`,
		snapshot.TokenAddress,
		int64(snapshot.BlockNumber),
		snapshot.BlockHash,
		snapshot.Symbol,
		snapshot.Name,
		snapshot.PriceUsd,
		snapshot.PriceEth,
		snapshot.VolumeTokens,
		snapshot.VolumeUsd,
		snapshot.TotalLiquidityUsd,
		snapshot.TotalSupply,
		snapshot.MarketCapUsd,
		int64(snapshot.TransferCount),
		int64(snapshot.UniqueAddressCount),
		int64(snapshot.HolderCount),
		history,
		snapshot.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s@%d: %w", snapshot.TokenAddress, snapshot.BlockNumber, err)
	}
	return nil
}

// Latest returns the most recent snapshot for a token.
func (s *Store) Latest(ctx context.Context, tokenAddress string) (*model.MarketSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM market_snapshots
		WHERE token_address = $1
		ORDER BY block_number DESC
		LIMIT 1
	`, tokenAddress)
	return scanSnapshot(row)
}

// History returns snapshots for a token, newest block first.
func (s *Store) History(ctx context.Context, tokenAddress string, limit, offset int) ([]model.MarketSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM market_snapshots
		WHERE token_address = $1
		ORDER BY block_number DESC
		LIMIT $2 OFFSET $3
	`, tokenAddress, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// AllLatest returns the newest snapshot per token, ordered by token address.
func (s *Store) AllLatest(ctx context.Context) ([]model.MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (token_address) `+snapshotColumns+`
		FROM market_snapshots
		ORDER BY token_address, block_number DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all latest: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// InBlockRange returns snapshots within an inclusive block range.
func (s *Store) InBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM market_snapshots
		WHERE block_number BETWEEN $1 AND $2
		ORDER BY block_number, token_address
	`, int64(fromBlock), int64(toBlock))
	if err != nil {
		return nil, fmt.Errorf("query block range: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func scanSnapshots(rows pgx.Rows) ([]model.MarketSnapshot, error) {
	snapshots := make([]model.MarketSnapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func scanSnapshot(row pgx.Row) (*model.MarketSnapshot, error) {
	var snapshot model.MarketSnapshot
	var blockNumber, transferCount, uniqueCount, holderCount int64
	var history []byte

	err := row.Scan(
		&snapshot.TokenAddress,
		&blockNumber,
		&snapshot.BlockHash,
		&snapshot.Symbol,
		&snapshot.Name,
		&snapshot.PriceUsd,
		&snapshot.PriceEth,
		&snapshot.VolumeTokens,
		&snapshot.VolumeUsd,
		&snapshot.TotalLiquidityUsd,
		&snapshot.TotalSupply,
		&snapshot.MarketCapUsd,
		&transferCount,
		&uniqueCount,
		&holderCount,
		&history,
		&snapshot.CapturedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	snapshot.BlockNumber = uint64(blockNumber)
	snapshot.TransferCount = uint64(transferCount)
	snapshot.UniqueAddressCount = uint64(uniqueCount)
	snapshot.HolderCount = uint64(holderCount)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &snapshot.PriceHistory); err != nil {
			return nil, fmt.Errorf("unmarshal price history: %w", err)
		}
	}
	return &snapshot, nil
}
