package aggregate

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenpulse/internal/model"
)

// MetadataSource resolves market metadata for a set of token addresses.
// Tokens missing from the result are unenrichable for the current block.
type MetadataSource interface {
	Many(ctx context.Context, addresses []string) map[string]model.TokenMetadata
}

// Aggregator folds one block's transfer events into per-token market
// snapshots.
type Aggregator struct {
	metadata MetadataSource
	logger   *zap.Logger
	now      func() time.Time
}

func NewAggregator(metadata MetadataSource, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{metadata: metadata, logger: logger, now: time.Now}
}

// tokenActivity accumulates the per-token counters of one block.
type tokenActivity struct {
	volume    *big.Int
	transfers uint64
	owners    map[string]struct{}
}

func newTokenActivity() *tokenActivity {
	return &tokenActivity{volume: new(big.Int), owners: make(map[string]struct{})}
}

func (a *tokenActivity) add(event model.TransferEvent) {
	if event.TransferValue != nil {
		a.volume.Add(a.volume, event.TransferValue)
	}
	a.transfers++
	if event.OwnerAddress != "" {
		a.owners[event.OwnerAddress] = struct{}{}
	}
}

// Aggregate partitions events by token, enriches each token through the
// metadata source, and emits one snapshot per resolvable token. Tokens with
// no metadata are logged and skipped; the rest of the block still produces
// output. Results are ordered by token address so persistence order is
// deterministic.
func (a *Aggregator) Aggregate(ctx context.Context, blockNumber uint64, blockHash string, events []model.TransferEvent) []model.MarketSnapshot {
	if len(events) == 0 {
		return nil
	}

	activity := make(map[string]*tokenActivity)
	order := make([]string, 0)
	for _, event := range events {
		if event.TokenAddress == "" {
			continue
		}
		acc := activity[event.TokenAddress]
		if acc == nil {
			acc = newTokenActivity()
			activity[event.TokenAddress] = acc
			order = append(order, event.TokenAddress)
		}
		acc.add(event)
	}
	sort.Strings(order)

	resolved := a.metadata.Many(ctx, order)
	capturedAt := a.now().UTC()

	snapshots := make([]model.MarketSnapshot, 0, len(order))
	for _, token := range order {
		meta, ok := resolved[token]
		if !ok {
			a.logger.Info("skipping token without metadata",
				zap.String("token", token),
				zap.Uint64("block_number", blockNumber),
			)
			continue
		}

		acc := activity[token]
		volumeTokens := decimal.NewFromBigInt(acc.volume, -int32(meta.Decimals))
		volumeUsd := volumeTokens.Mul(meta.PriceUsd)

		marketCapUsd := decimal.Zero
		if supply, ok := new(big.Int).SetString(meta.TotalSupply, 10); ok {
			supplyTokens := decimal.NewFromBigInt(supply, -int32(meta.Decimals))
			marketCapUsd = supplyTokens.Mul(meta.PriceUsd)
		} else if meta.TotalSupply != "" {
			a.logger.Warn("unparseable total supply",
				zap.String("token", token),
				zap.String("total_supply", meta.TotalSupply),
			)
		}

		snapshots = append(snapshots, model.MarketSnapshot{
			TokenAddress:       token,
			BlockNumber:        blockNumber,
			BlockHash:          blockHash,
			Symbol:             meta.Symbol,
			Name:               meta.Name,
			PriceUsd:           meta.PriceUsd,
			PriceEth:           meta.PriceEth,
			VolumeTokens:       volumeTokens,
			VolumeUsd:          volumeUsd,
			TotalLiquidityUsd:  meta.TotalLiquidityUsd,
			TotalSupply:        meta.TotalSupply,
			MarketCapUsd:       marketCapUsd,
			TransferCount:      acc.transfers,
			UniqueAddressCount: uint64(len(acc.owners)),
			HolderCount:        meta.HolderCount,
			PriceHistory:       meta.PriceHistory,
			CapturedAt:         capturedAt,
		})
	}

	return snapshots
}
