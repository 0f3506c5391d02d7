package aggregate

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/model"
)

type staticMetadata struct {
	tokens map[string]model.TokenMetadata
	asked  []string
}

func (m *staticMetadata) Many(_ context.Context, addresses []string) map[string]model.TokenMetadata {
	m.asked = append(m.asked, addresses...)
	resolved := make(map[string]model.TokenMetadata)
	for _, address := range addresses {
		if meta, ok := m.tokens[address]; ok {
			resolved[address] = meta
		}
	}
	return resolved
}

func event(token, owner, value string) model.TransferEvent {
	v, _ := new(big.Int).SetString(value, 10)
	return model.TransferEvent{
		TokenAddress:  token,
		OwnerAddress:  owner,
		TransferValue: v,
		BlockNumber:   19000001,
		BlockHash:     "0xblock",
	}
}

func tokenMeta(symbol string, decimals uint8, priceUsd, supply string) model.TokenMetadata {
	return model.TokenMetadata{
		Symbol:      symbol,
		Name:        symbol + " Token",
		Decimals:    decimals,
		TotalSupply: supply,
		PriceUsd:    decimal.RequireFromString(priceUsd),
		PriceEth:    decimal.RequireFromString(priceUsd).Div(decimal.NewFromInt(3000)),
		HolderCount: 100,
	}
}

func TestAggregateSingleToken(t *testing.T) {
	metadata := &staticMetadata{tokens: map[string]model.TokenMetadata{
		"0xAAA": tokenMeta("AAA", 6, "3.0", "1000000000"),
	}}
	agg := NewAggregator(metadata, nil)

	snapshots := agg.Aggregate(context.Background(), 19000001, "0xblock", []model.TransferEvent{
		event("0xAAA", "0x1", "1000000"),
		event("0xAAA", "0x2", "2000000"),
	})

	require.Len(t, snapshots, 1)
	snap := snapshots[0]
	assert.Equal(t, "0xAAA", snap.TokenAddress)
	assert.Equal(t, uint64(19000001), snap.BlockNumber)
	assert.Equal(t, "0xblock", snap.BlockHash)
	assert.Equal(t, "AAA", snap.Symbol)

	// 3_000_000 base units at 6 decimals is 3.0 tokens.
	assert.True(t, snap.VolumeTokens.Equal(decimal.RequireFromString("3.0")), "got %s", snap.VolumeTokens)
	assert.True(t, snap.VolumeUsd.Equal(decimal.RequireFromString("9.0")), "got %s", snap.VolumeUsd)
	// Supply 1_000_000_000 base units is 1000 tokens at 3 USD.
	assert.True(t, snap.MarketCapUsd.Equal(decimal.RequireFromString("3000")), "got %s", snap.MarketCapUsd)
	assert.Equal(t, uint64(2), snap.TransferCount)
	assert.Equal(t, uint64(2), snap.UniqueAddressCount)
	assert.Equal(t, uint64(100), snap.HolderCount)
	assert.False(t, snap.CapturedAt.IsZero())
}

func TestAggregateUniqueOwners(t *testing.T) {
	metadata := &staticMetadata{tokens: map[string]model.TokenMetadata{
		"0xAAA": tokenMeta("AAA", 6, "1", "0"),
	}}
	agg := NewAggregator(metadata, nil)

	snapshots := agg.Aggregate(context.Background(), 1, "0xblock", []model.TransferEvent{
		event("0xAAA", "0x1", "1"),
		event("0xAAA", "0x1", "2"),
		event("0xAAA", "0x2", "3"),
	})

	require.Len(t, snapshots, 1)
	assert.Equal(t, uint64(3), snapshots[0].TransferCount)
	assert.Equal(t, uint64(2), snapshots[0].UniqueAddressCount)
}

func TestAggregateSkipsUnenrichableTokens(t *testing.T) {
	metadata := &staticMetadata{tokens: map[string]model.TokenMetadata{
		"0xAAA": tokenMeta("AAA", 18, "2", "0"),
	}}
	agg := NewAggregator(metadata, nil)

	snapshots := agg.Aggregate(context.Background(), 1, "0xblock", []model.TransferEvent{
		event("0xAAA", "0x1", "1000000000000000000"),
		event("0xDEAD", "0x2", "5"),
	})

	require.Len(t, snapshots, 1)
	assert.Equal(t, "0xAAA", snapshots[0].TokenAddress)
	// Both tokens were submitted for enrichment before the skip.
	assert.ElementsMatch(t, []string{"0xAAA", "0xDEAD"}, metadata.asked)
}

func TestAggregateDeterministicOrder(t *testing.T) {
	metadata := &staticMetadata{tokens: map[string]model.TokenMetadata{
		"0xAAA": tokenMeta("AAA", 18, "1", "0"),
		"0xBBB": tokenMeta("BBB", 18, "1", "0"),
		"0xCCC": tokenMeta("CCC", 18, "1", "0"),
	}}
	agg := NewAggregator(metadata, nil)

	snapshots := agg.Aggregate(context.Background(), 1, "0xblock", []model.TransferEvent{
		event("0xCCC", "0x1", "1"),
		event("0xAAA", "0x2", "1"),
		event("0xBBB", "0x3", "1"),
	})

	require.Len(t, snapshots, 3)
	assert.Equal(t, "0xAAA", snapshots[0].TokenAddress)
	assert.Equal(t, "0xBBB", snapshots[1].TokenAddress)
	assert.Equal(t, "0xCCC", snapshots[2].TokenAddress)
}

func TestAggregateUnparseableSupply(t *testing.T) {
	metadata := &staticMetadata{tokens: map[string]model.TokenMetadata{
		"0xAAA": tokenMeta("AAA", 6, "3.0", "not-a-number"),
	}}
	agg := NewAggregator(metadata, nil)

	snapshots := agg.Aggregate(context.Background(), 1, "0xblock", []model.TransferEvent{
		event("0xAAA", "0x1", "1000000"),
	})

	require.Len(t, snapshots, 1)
	assert.True(t, snapshots[0].MarketCapUsd.IsZero())
	assert.True(t, snapshots[0].VolumeUsd.Equal(decimal.RequireFromString("3.0")))
}

func TestAggregateEmptyBlock(t *testing.T) {
	agg := NewAggregator(&staticMetadata{}, nil)
	assert.Nil(t, agg.Aggregate(context.Background(), 1, "0xblock", nil))
}
