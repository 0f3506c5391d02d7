package ingest

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/stream"
)

func TestDecodeBalanceChange(t *testing.T) {
	raw := stream.BalanceChange{Contract: "0xABC", Owner: "0xDEF", TransferValue: "500"}

	event, ok := DecodeBalanceChange(raw, 19000001, "0xhash")
	require.True(t, ok)
	assert.Equal(t, "0xABC", event.TokenAddress)
	assert.Equal(t, "0xDEF", event.OwnerAddress)
	assert.Equal(t, big.NewInt(500), event.TransferValue)
	assert.Equal(t, uint64(19000001), event.BlockNumber)
	assert.Equal(t, "0xhash", event.BlockHash)
}

func TestDecodeBalanceChangeNoContract(t *testing.T) {
	raw := stream.BalanceChange{Contract: "", Owner: "0xDEF", TransferValue: "500"}

	_, ok := DecodeBalanceChange(raw, 1, "0xhash")
	assert.False(t, ok)
}

func TestDecodeBalanceChangeEmptyValue(t *testing.T) {
	raw := stream.BalanceChange{Contract: "0xABC", Owner: "0xDEF"}

	event, ok := DecodeBalanceChange(raw, 1, "0xhash")
	require.True(t, ok)
	assert.Zero(t, event.TransferValue.Sign())
}

func TestDecodeBalanceChangeUnparseableValue(t *testing.T) {
	raw := stream.BalanceChange{Contract: "0xABC", Owner: "0xDEF", TransferValue: "not-a-number"}

	_, ok := DecodeBalanceChange(raw, 1, "0xhash")
	assert.False(t, ok)
}

func TestDecodeBalanceChangeLargeValue(t *testing.T) {
	// 2^128, well past uint64.
	raw := stream.BalanceChange{
		Contract:      "0xABC",
		Owner:         "0xDEF",
		TransferValue: "340282366920938463463374607431768211456",
	}

	event, ok := DecodeBalanceChange(raw, 1, "0xhash")
	require.True(t, ok)

	want, _ := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	assert.Zero(t, event.TransferValue.Cmp(want))
}

func TestDecodeBlock(t *testing.T) {
	block := stream.Block{
		Number: 7,
		Hash:   "0xblock",
		BalanceChanges: []stream.BalanceChange{
			{Contract: "0xAAA", Owner: "0x1", TransferValue: "10"},
			{Contract: "", Owner: "0x2", TransferValue: "20"},
			{Contract: "0xBBB", Owner: "0x3", TransferValue: "bogus"},
			{Contract: "0xAAA", Owner: "0x4", TransferValue: "30"},
		},
	}

	events := decodeBlock(block)
	require.Len(t, events, 2)
	assert.Equal(t, "0xAAA", events[0].TokenAddress)
	assert.Equal(t, "0xAAA", events[1].TokenAddress)
	assert.Equal(t, uint64(7), events[0].BlockNumber)
}
