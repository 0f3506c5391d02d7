package model

import "github.com/shopspring/decimal"

// TokenMetadata captures the market metadata fetched for one token.
type TokenMetadata struct {
	Address           string          `json:"address"`
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Decimals          uint8           `json:"decimals"`
	TotalSupply       string          `json:"total_supply"`
	PriceUsd          decimal.Decimal `json:"price_usd"`
	PriceEth          decimal.Decimal `json:"price_eth"`
	TotalLiquidityUsd decimal.Decimal `json:"total_liquidity_usd"`
	HolderCount       uint64          `json:"holder_count"`
	PriceHistory      []PricePoint    `json:"price_history"`
}

// PricePoint is one OHLC entry, most recent first in TokenMetadata.PriceHistory.
type PricePoint struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
}
