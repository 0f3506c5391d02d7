package stream

import (
	"encoding/json"
	"fmt"
)

// Message is one inbound item on a streaming session. It is exactly one of
// BlockScopedData, UndoSignal, or Progress.
type Message interface {
	isStreamMessage()
}

// BalanceChange is a raw provider record describing a token balance delta
// for one owner in one block. Fields are opaque provider strings; validation
// happens in the decoder.
type BalanceChange struct {
	Contract      string `json:"contract"`
	Owner         string `json:"owner"`
	TransferValue string `json:"transfer_value"`
}

// Block carries the payload of one streamed block.
type Block struct {
	Number         uint64          `json:"number"`
	Hash           string          `json:"hash"`
	BalanceChanges []BalanceChange `json:"balance_changes"`
}

// BlockScopedData delivers the balance changes of a single block.
type BlockScopedData struct {
	Block Block `json:"block"`
}

// UndoSignal announces a chain reorganization: every block above
// LastValidBlock has been retracted by the provider.
type UndoSignal struct {
	LastValidBlock uint64 `json:"last_valid_block"`
}

// Progress reports the provider's monotonically increasing count of blocks
// processed on this session.
type Progress struct {
	ProcessedBlocks uint64 `json:"processed_blocks"`
}

func (BlockScopedData) isStreamMessage() {}
func (UndoSignal) isStreamMessage()      {}
func (Progress) isStreamMessage()        {}

const (
	msgTypeBlockScopedData = "block_scoped_data"
	msgTypeUndoSignal      = "undo_signal"
	msgTypeProgress        = "progress"
)

type envelope struct {
	Type string `json:"type"`
}

// ParseMessage decodes one wire frame into its message type.
// Frames with an unrecognized type yield ErrUnknownMessage so callers can
// skip them without tearing down the session.
func ParseMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse message envelope: %w", err)
	}

	switch env.Type {
	case msgTypeBlockScopedData:
		var msg BlockScopedData
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("parse block scoped data: %w", err)
		}
		return msg, nil
	case msgTypeUndoSignal:
		var msg UndoSignal
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("parse undo signal: %w", err)
		}
		return msg, nil
	case msgTypeProgress:
		var msg Progress
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("parse progress: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}
