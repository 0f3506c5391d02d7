package ingest

import (
	"math/big"

	"tokenpulse/internal/model"
	"tokenpulse/internal/stream"
)

// DecodeBalanceChange converts one raw provider record into a TransferEvent.
// Records with no contract address or an unparseable transfer value are
// discarded, not errors. The transformation is pure.
func DecodeBalanceChange(raw stream.BalanceChange, blockNumber uint64, blockHash string) (model.TransferEvent, bool) {
	if raw.Contract == "" {
		return model.TransferEvent{}, false
	}

	value := new(big.Int)
	if raw.TransferValue != "" {
		parsed, ok := new(big.Int).SetString(raw.TransferValue, 10)
		if !ok {
			return model.TransferEvent{}, false
		}
		value = parsed
	}

	return model.TransferEvent{
		TokenAddress:  raw.Contract,
		OwnerAddress:  raw.Owner,
		TransferValue: value,
		BlockNumber:   blockNumber,
		BlockHash:     blockHash,
	}, true
}

func decodeBlock(block stream.Block) []model.TransferEvent {
	events := make([]model.TransferEvent, 0, len(block.BalanceChanges))
	for _, raw := range block.BalanceChanges {
		event, ok := DecodeBalanceChange(raw, block.Number, block.Hash)
		if !ok {
			continue
		}
		events = append(events, event)
	}
	return events
}
