package model

import "math/big"

// TransferEvent is the canonical form of a provider balance-change record.
type TransferEvent struct {
	TokenAddress  string   `json:"token_address"`
	OwnerAddress  string   `json:"owner_address"`
	TransferValue *big.Int `json:"transfer_value"`
	BlockNumber   uint64   `json:"block_number"`
	BlockHash     string   `json:"block_hash"`
}
