package metadata

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenpulse/internal/model"
)

// CacheConfig configures the metadata cache TTLs and the reference price.
type CacheConfig struct {
	// TokenTTL bounds how long a token's metadata is served without refetch.
	TokenTTL time.Duration
	// ReferenceTTL bounds the native-asset USD price.
	ReferenceTTL time.Duration
	// NativeToken is the wrapped-native token address whose OHLC close is
	// used as the reference price.
	NativeToken string
	// DefaultReferencePrice is used when the reference fetch fails; it keeps
	// the priceEth derivation away from a zero divisor.
	DefaultReferencePrice decimal.Decimal
}

type tokenEntry struct {
	meta      model.TokenMetadata
	fetchedAt time.Time
}

// Cache is the process-wide token metadata cache. All external metadata
// reads go through it; an undo signal clears it wholesale.
type Cache struct {
	provider Provider
	cfg      CacheConfig
	logger   *zap.Logger
	now      func() time.Time

	mu           sync.RWMutex
	tokens       map[string]tokenEntry
	refPrice     decimal.Decimal
	refFetchedAt time.Time
	refValid     bool
}

func NewCache(provider Provider, cfg CacheConfig, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 5 * time.Minute
	}
	if cfg.ReferenceTTL <= 0 {
		cfg.ReferenceTTL = time.Minute
	}
	if cfg.DefaultReferencePrice.IsZero() {
		cfg.DefaultReferencePrice = decimal.NewFromInt(2500)
	}
	return &Cache{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		tokens:   make(map[string]tokenEntry),
	}
}

// Token returns metadata for one token, fetching from the provider on a
// miss or an expired entry. ErrNotFound means the token is unenrichable and
// callers must skip it for the current block.
func (c *Cache) Token(ctx context.Context, address string) (model.TokenMetadata, error) {
	if address == "" {
		return model.TokenMetadata{}, fmt.Errorf("token address is required")
	}

	now := c.now()
	c.mu.RLock()
	entry, ok := c.tokens[address]
	c.mu.RUnlock()
	if ok && now.Sub(entry.fetchedAt) < c.cfg.TokenTTL {
		return entry.meta, nil
	}

	meta, err := c.fetchToken(ctx, address)
	if err != nil {
		return model.TokenMetadata{}, err
	}

	c.mu.Lock()
	c.tokens[address] = tokenEntry{meta: meta, fetchedAt: c.now()}
	c.mu.Unlock()
	return meta, nil
}

// Many resolves metadata for a set of addresses, deduplicated, one provider
// fetch at a time (the provider is rate limited). Unresolvable tokens are
// logged and left out of the result.
func (c *Cache) Many(ctx context.Context, addresses []string) map[string]model.TokenMetadata {
	resolved := make(map[string]model.TokenMetadata, len(addresses))
	for _, address := range addresses {
		if _, ok := resolved[address]; ok {
			continue
		}
		meta, err := c.Token(ctx, address)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.logger.Debug("token unenrichable", zap.String("token", address))
			} else {
				c.logger.Warn("token metadata fetch failed", zap.String("token", address), zap.Error(err))
			}
			continue
		}
		resolved[address] = meta
	}
	return resolved
}

// ReferencePrice returns the native-asset USD price, refreshed lazily on its
// own TTL. It never fails and never returns zero: a failed fetch falls back
// to the configured default.
func (c *Cache) ReferencePrice(ctx context.Context) decimal.Decimal {
	now := c.now()
	c.mu.RLock()
	valid := c.refValid && now.Sub(c.refFetchedAt) < c.cfg.ReferenceTTL
	price := c.refPrice
	c.mu.RUnlock()
	if valid {
		return price
	}

	price, err := c.fetchReferencePrice(ctx)
	if err != nil || price.IsZero() {
		c.logger.Warn("reference price fetch failed, using default",
			zap.String("default", c.cfg.DefaultReferencePrice.String()),
			zap.Error(err),
		)
		return c.cfg.DefaultReferencePrice
	}

	c.mu.Lock()
	c.refPrice = price
	c.refFetchedAt = c.now()
	c.refValid = true
	c.mu.Unlock()
	return price
}

// InvalidateAll drops every cached entry, including the reference price.
// Called on an undo signal: a reorg may have changed any derived value.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.tokens = make(map[string]tokenEntry)
	c.refValid = false
	c.refPrice = decimal.Zero
	c.mu.Unlock()
}

func (c *Cache) fetchToken(ctx context.Context, address string) (model.TokenMetadata, error) {
	desc, err := c.provider.TokenDescriptor(ctx, address)
	if err != nil {
		return model.TokenMetadata{}, fmt.Errorf("token descriptor %s: %w", address, err)
	}

	history, err := c.provider.PriceHistory(ctx, address)
	if err != nil {
		return model.TokenMetadata{}, fmt.Errorf("price history %s: %w", address, err)
	}
	priceUsd := history[0].Close

	// Missing decimals default to the ERC-20 convention.
	decimals := uint8(18)
	if desc.Decimals != nil {
		decimals = *desc.Decimals
	}

	referencePrice := c.ReferencePrice(ctx)
	priceEth := priceUsd.Div(referencePrice)

	// Liquidity is estimated from the top-holder balances; a failed holder
	// lookup degrades the estimate to zero instead of dropping the token.
	liquidityUsd := decimal.Zero
	holders, err := c.provider.TopHolders(ctx, address)
	if err != nil {
		c.logger.Debug("holder lookup failed", zap.String("token", address), zap.Error(err))
	} else {
		liquidityUsd = holderLiquidityUsd(holders, decimals, priceUsd)
	}

	return model.TokenMetadata{
		Address:           address,
		Symbol:            desc.Symbol,
		Name:              desc.Name,
		Decimals:          decimals,
		TotalSupply:       desc.TotalSupply,
		PriceUsd:          priceUsd,
		PriceEth:          priceEth,
		TotalLiquidityUsd: liquidityUsd,
		HolderCount:       desc.HolderCount,
		PriceHistory:      history,
	}, nil
}

func (c *Cache) fetchReferencePrice(ctx context.Context) (decimal.Decimal, error) {
	if c.cfg.NativeToken == "" {
		return decimal.Zero, fmt.Errorf("native token address not configured")
	}
	history, err := c.provider.PriceHistory(ctx, c.cfg.NativeToken)
	if err != nil {
		return decimal.Zero, err
	}
	return history[0].Close, nil
}

func holderLiquidityUsd(holders []Holder, decimals uint8, priceUsd decimal.Decimal) decimal.Decimal {
	sum := new(big.Int)
	for _, holder := range holders {
		balance, ok := new(big.Int).SetString(holder.Balance, 10)
		if !ok {
			continue
		}
		sum.Add(sum, balance)
	}
	if sum.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(sum, -int32(decimals)).Mul(priceUsd)
}
