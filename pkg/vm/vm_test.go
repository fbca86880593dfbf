package vm

import (
	"math/big"
	"testing"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReturnCodeString(t *testing.T) {
	assert.Equal(t, "ok", Success.String())
	assert.Equal(t, "execution failed", ExecutionFailed.String())
	assert.Equal(t, "unknown return code 200", ReturnCode(200).String())
	assert.Equal(t, ReturnCode(10), ExecutionFailed)
}

func TestFromVMError(t *testing.T) {
	r := FromVMError("DCDTNFTAddURI expects at least 3 arguments")
	assert.Equal(t, ExecutionFailed, r.Status)
	assert.Equal(t, "DCDTNFTAddURI expects at least 3 arguments", r.Message)
	assert.False(t, r.Succeeded())
	assert.Empty(t, r.Logs)
}

func TestTxInputHash(t *testing.T) {
	in := &TxInput{
		From:     types.MustAddressFromName("alice"),
		To:       types.MustAddressFromName("alice"),
		Function: "DCDTNFTAddURI",
		Args:     [][]byte{[]byte("NFT-123456"), {0x05}, []byte("uri")},
		GasLimit: 1000,
	}
	h := in.Hash()
	assert.False(t, h.IsZero())

	same := *in
	assert.Equal(t, h, same.Hash())

	// A zero call value hashes like an unset one.
	same.CallValue = new(big.Int)
	assert.Equal(t, h, same.Hash())

	// Argument boundaries are part of the hash.
	split := *in
	split.Args = [][]byte{[]byte("NFT-12345"), []byte("6"), {0x05}, []byte("uri")}
	assert.NotEqual(t, h, split.Hash())

	other := *in
	other.GasLimit = 1001
	assert.NotEqual(t, h, other.Hash())
}

func TestTxInputValue(t *testing.T) {
	in := &TxInput{}
	assert.Zero(t, in.Value().Sign())
	in.CallValue = big.NewInt(3)
	assert.Equal(t, int64(3), in.Value().Int64())
}

func TestResultMerge(t *testing.T) {
	r := &TxResult{Logs: []TxLog{{Endpoint: "a"}}, GasUsed: 5}
	r.Merge(&TxResult{Logs: []TxLog{{Endpoint: "b"}}, ReturnData: [][]byte{{1}}, GasUsed: 7})
	require.Len(t, r.Logs, 2)
	assert.Equal(t, "b", r.Logs[1].Endpoint)
	assert.Equal(t, [][]byte{{1}}, r.ReturnData)
	assert.Equal(t, uint64(12), r.GasUsed)
}

func TestGasMeter(t *testing.T) {
	m := NewGasMeter(100)
	require.NoError(t, m.Consume(60))
	assert.Equal(t, uint64(40), m.Remaining())
	assert.ErrorIs(t, m.Consume(41), ErrOutOfGas)
	assert.Equal(t, uint64(60), m.Consumed())
	require.NoError(t, m.Consume(40))
	assert.Zero(t, m.Remaining())
	assert.Equal(t, uint64(100), m.Limit())
}

func TestGasMeterUnmetered(t *testing.T) {
	m := NewGasMeter(0)
	assert.True(t, m.Unmetered())
	require.NoError(t, m.Consume(1_000_000_000))
	assert.Equal(t, uint64(1_000_000_000), m.Consumed())
}

func TestGasScheduleCost(t *testing.T) {
	s := DefaultGasSchedule()
	args := [][]byte{[]byte("abc"), {1}}
	assert.Equal(t, GasDCDTNFTAddURI+4*GasPerDataByte, s.Cost("DCDTNFTAddURI", args))
	assert.Equal(t, 4*GasPerDataByte, s.Cost("unknown", args))

	var none *GasSchedule
	assert.Zero(t, none.Cost("DCDTNFTAddURI", args))
}
