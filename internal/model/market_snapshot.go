package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is one row of per-token, per-block market state.
// (TokenAddress, BlockNumber) is the unique storage key; re-delivery of the
// same block overwrites the mutable columns and never duplicates rows.
type MarketSnapshot struct {
	TokenAddress       string          `json:"token_address"`
	BlockNumber        uint64          `json:"block_number"`
	BlockHash          string          `json:"block_hash"`
	Symbol             string          `json:"symbol"`
	Name               string          `json:"name"`
	PriceUsd           decimal.Decimal `json:"price_usd"`
	PriceEth           decimal.Decimal `json:"price_eth"`
	VolumeTokens       decimal.Decimal `json:"current_block_volume_tokens"`
	VolumeUsd          decimal.Decimal `json:"current_block_volume_usd"`
	TotalLiquidityUsd  decimal.Decimal `json:"total_liquidity_usd"`
	TotalSupply        string          `json:"total_supply"`
	MarketCapUsd       decimal.Decimal `json:"market_cap_usd"`
	TransferCount      uint64          `json:"transfer_count_in_block"`
	UniqueAddressCount uint64          `json:"unique_address_count_in_block"`
	HolderCount        uint64          `json:"holder_count"`
	PriceHistory       []PricePoint    `json:"price_history"`
	CapturedAt         time.Time       `json:"captured_at"`
}
