package receipts

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = types.MustAddressFromName("alice")
	bob   = types.MustAddressFromName("bob")
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipts", "receipts.db")
	s, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func transferReceipt(seq uint64, from types.Address, endpoint string, n int) *Receipt {
	in := &vm.TxInput{
		From:      from,
		To:        bob,
		Function:  endpoint,
		Args:      [][]byte{[]byte("TOK-123456"), big.NewInt(int64(seq)).Bytes()},
		CallValue: new(big.Int),
	}
	result := &vm.TxResult{Status: vm.Success, GasUsed: 10}
	for i := 0; i < n; i++ {
		result.Logs = append(result.Logs, vm.TxLog{
			Address:  from,
			Endpoint: endpoint,
			Topics:   [][]byte{[]byte("TOK-123456"), {byte(i + 1)}},
			Data:     []byte{},
		})
	}
	return NewReceipt(seq, in, result)
}

func TestPutGetReceipt(t *testing.T) {
	s, _ := openStore(t)
	r := transferReceipt(1, alice, "DCDTTransfer", 2)
	require.NoError(t, s.PutReceipt(r))

	got, err := s.GetReceipt(1)
	require.NoError(t, err)
	assert.Equal(t, r.TxHash, got.TxHash)
	assert.Equal(t, alice, got.From)
	assert.Equal(t, "DCDTTransfer", got.Function)
	assert.True(t, got.Succeeded())
	require.Len(t, got.Logs, 2)
	assert.Equal(t, []byte{2}, got.Logs[1].Topics[1])

	byHash, err := s.GetReceiptByHash(r.TxHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), byHash.Sequence)

	_, err = s.GetReceipt(2)
	assert.ErrorIs(t, err, ErrReceiptNotFound)
	_, err = s.GetReceiptByHash(types.Hash{})
	assert.ErrorIs(t, err, ErrReceiptNotFound)

	assert.ErrorIs(t, s.PutReceipt(r), ErrDuplicate)
	assert.Equal(t, uint64(1), s.Count())
}

func TestFailedReceiptNotIndexed(t *testing.T) {
	s, _ := openStore(t)
	r := transferReceipt(1, alice, "DCDTTransfer", 1)
	r.Status = vm.ExecutionFailed
	r.Message = "insufficient funds"
	require.NoError(t, s.PutReceipt(r))

	got, err := s.GetReceipt(1)
	require.NoError(t, err)
	assert.False(t, got.Succeeded())
	assert.Equal(t, "insufficient funds", got.Message)

	logs, err := s.GetLogsForAddress(alice, nil)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestLogsForAddress(t *testing.T) {
	s, _ := openStore(t)
	require.NoError(t, s.PutReceipt(transferReceipt(1, alice, "DCDTTransfer", 2)))
	require.NoError(t, s.PutReceipt(transferReceipt(2, bob, "DCDTTransfer", 1)))
	require.NoError(t, s.PutReceipt(transferReceipt(3, alice, "DCDTLocalMint", 1)))

	logs, err := s.GetLogsForAddress(alice, nil)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	// Newest first.
	assert.Equal(t, uint64(3), logs[0].Sequence)
	assert.Equal(t, uint64(1), logs[1].Sequence)
	assert.Equal(t, uint32(1), logs[1].Index)
	assert.Equal(t, uint32(0), logs[2].Index)

	tests := []struct {
		name string
		opts *LogQueryOptions
		want []uint64
	}{
		{"limit", &LogQueryOptions{Limit: 1}, []uint64{3}},
		{"endpoint", &LogQueryOptions{Endpoint: "DCDTTransfer"}, []uint64{1, 1}},
		{"min sequence", &LogQueryOptions{MinSequence: 2}, []uint64{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := s.GetLogsForAddress(alice, tt.opts)
			require.NoError(t, err)
			var seqs []uint64
			for _, l := range logs {
				seqs = append(seqs, l.Sequence)
			}
			assert.Equal(t, tt.want, seqs)
		})
	}

	logs, err = s.GetLogsForAddress(types.MustAddressFromName("carol"), nil)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestReopenKeepsMetadata(t *testing.T) {
	s, path := openStore(t)
	require.NoError(t, s.PutReceipt(transferReceipt(4, alice, "DCDTTransfer", 1)))
	require.NoError(t, s.PutReceipt(transferReceipt(2, alice, "DCDTTransfer", 1)))
	require.NoError(t, s.Close())

	_, err := s.GetReceipt(4)
	assert.ErrorIs(t, err, ErrClosed)

	reopened, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint64(4), reopened.LatestSequence())
	assert.Equal(t, uint64(2), reopened.Count())

	got, err := reopened.GetReceipt(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Sequence)
}
