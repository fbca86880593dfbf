package executor

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/logstream"
	"github.com/fortiblox/stratus-builtins/pkg/receipts"
	"github.com/fortiblox/stratus-builtins/pkg/txcache"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/fortiblox/stratus-builtins/pkg/vm/builtin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	alice    = types.MustAddressFromName("alice")
	bob      = types.MustAddressFromName("bob")
	contract = types.MustAddressFromName("contract")

	token = []byte("TOK-123456")
)

func seed(t *testing.T, db accounts.DB) {
	t.Helper()
	a := accounts.NewAccount(alice)
	a.Balance.SetInt64(100)
	a.IncreaseTokenBalance(token, 0, big.NewInt(100))
	require.NoError(t, db.SetAccount(alice, a))

	c := accounts.NewAccount(contract)
	c.Code = []byte{0x00, 0x61, 0x73, 0x6d}
	c.Owner = alice
	require.NoError(t, db.SetAccount(contract, c))
}

func newExecutor(t *testing.T, mutate func(*Config)) (*Executor, *accounts.MemoryDB) {
	t.Helper()
	db := accounts.NewMemoryDB()
	seed(t, db)
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(db, nil, cfg), db
}

func account(t *testing.T, db accounts.DB, addr types.Address) *accounts.Account {
	t.Helper()
	acc, err := db.GetAccount(addr)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return accounts.NewAccount(addr)
	}
	require.NoError(t, err)
	return acc
}

func TestBuiltinCommitted(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockLogSink(ctrl)
	rs := NewMockReceiptSink(ctrl)
	exec, db := newExecutor(t, func(c *Config) {
		c.Logs = sink
		c.Receipts = rs
	})

	in := &vm.TxInput{
		From:     alice,
		To:       alice,
		Function: builtin.DCDTNFTAddURI,
		Args:     [][]byte{[]byte("TOKEN-abcdef"), {0x05}, []byte("https://a"), []byte("https://b")},
	}
	rs.EXPECT().PutReceipt(gomock.Any()).DoAndReturn(func(r *receipts.Receipt) error {
		assert.Equal(t, uint64(1), r.Sequence)
		assert.Equal(t, in.Hash(), r.TxHash)
		assert.True(t, r.Succeeded())
		return nil
	})
	sink.EXPECT().Publish(in.Hash(), uint64(1), gomock.Len(1))

	result, err := exec.Execute(in)
	require.NoError(t, err)
	require.True(t, result.Succeeded(), result.Message)

	inst := account(t, db, alice).TokenInstance([]byte("TOKEN-abcdef"), 5)
	require.NotNil(t, inst)
	assert.Equal(t, [][]byte{[]byte("https://a"), []byte("https://b")}, inst.URIs)
	assert.Equal(t, uint64(1), db.GetSequence())
}

func TestBuiltinFailureDiscarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockLogSink(ctrl)
	rs := NewMockReceiptSink(ctrl)
	exec, db := newExecutor(t, func(c *Config) {
		c.Logs = sink
		c.Receipts = rs
	})
	rs.EXPECT().PutReceipt(gomock.Any()).DoAndReturn(func(r *receipts.Receipt) error {
		assert.Equal(t, vm.ExecutionFailed, r.Status)
		return nil
	})

	result, err := exec.Execute(&vm.TxInput{
		From:     bob,
		To:       bob,
		Function: builtin.DCDTNFTAddURI,
		Args:     [][]byte{[]byte("TOKEN-abcdef"), {0x05}},
	})
	require.NoError(t, err)
	assert.Equal(t, vm.ExecutionFailed, result.Status)
	assert.Equal(t, "DCDTNFTAddURI expects at least 3 arguments", result.Message)

	exists, err := db.HasAccount(bob)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, uint64(1), db.GetSequence())
}

func TestValueTransfer(t *testing.T) {
	exec, db := newExecutor(t, nil)

	result, err := exec.Execute(&vm.TxInput{From: alice, To: bob, CallValue: big.NewInt(30)})
	require.NoError(t, err)
	require.True(t, result.Succeeded(), result.Message)
	assert.Equal(t, int64(70), account(t, db, alice).Balance.Int64())
	assert.Equal(t, int64(30), account(t, db, bob).Balance.Int64())

	result, err = exec.Execute(&vm.TxInput{From: alice, To: bob, CallValue: big.NewInt(71)})
	require.NoError(t, err)
	assert.Equal(t, vm.OutOfFunds, result.Status)
	assert.Equal(t, int64(70), account(t, db, alice).Balance.Int64())
}

func TestUnknownFunctionOnPlainAccount(t *testing.T) {
	exec, _ := newExecutor(t, nil)

	result, err := exec.Execute(&vm.TxInput{From: alice, To: bob, Function: "transferOwnership"})
	require.NoError(t, err)
	assert.Equal(t, vm.FunctionNotFound, result.Status)
}

func TestContractCallWithoutCaller(t *testing.T) {
	exec, db := newExecutor(t, nil)

	result, err := exec.Execute(&vm.TxInput{From: alice, To: contract, Function: "deposit", CallValue: big.NewInt(5)})
	require.NoError(t, err)
	assert.Equal(t, vm.ContractInvalid, result.Status)
	assert.Equal(t, int64(100), account(t, db, alice).Balance.Int64())
}

func TestContractCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	caller := NewMockContractCaller(ctrl)
	exec, db := newExecutor(t, func(c *Config) { c.Contracts = caller })

	caller.EXPECT().Call(gomock.Any(), gomock.Any(), 0).DoAndReturn(
		func(in *vm.TxInput, cache *txcache.TxCache, depth int) (*vm.TxResult, error) {
			// The value has already moved when the contract runs.
			acc, err := cache.Read(contract)
			require.NoError(t, err)
			assert.Equal(t, int64(5), acc.Balance.Int64())

			err = cache.Mutate(contract, func(acc *accounts.Account) error {
				acc.Storage["counter"] = []byte{1}
				return nil
			})
			return &vm.TxResult{Status: vm.Success, ReturnData: [][]byte{{1}}}, err
		})

	result, err := exec.Execute(&vm.TxInput{From: alice, To: contract, Function: "increment", CallValue: big.NewInt(5)})
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Equal(t, [][]byte{{1}}, result.ReturnData)

	c := account(t, db, contract)
	assert.Equal(t, []byte{1}, c.Storage["counter"])
	assert.Equal(t, int64(5), c.Balance.Int64())
	assert.Equal(t, int64(95), account(t, db, alice).Balance.Int64())
}

func TestFailedContractCallReverted(t *testing.T) {
	ctrl := gomock.NewController(t)
	caller := NewMockContractCaller(ctrl)
	exec, db := newExecutor(t, func(c *Config) { c.Contracts = caller })

	caller.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(in *vm.TxInput, cache *txcache.TxCache, depth int) (*vm.TxResult, error) {
			require.NoError(t, cache.Mutate(contract, func(acc *accounts.Account) error {
				acc.Storage["counter"] = []byte{1}
				return nil
			}))
			return vm.Failed(vm.UserError, "counter overflow"), nil
		})

	result, err := exec.Execute(&vm.TxInput{From: alice, To: contract, Function: "increment", CallValue: big.NewInt(5)})
	require.NoError(t, err)
	assert.Equal(t, vm.UserError, result.Status)
	assert.Equal(t, "counter overflow", result.Message)

	c := account(t, db, contract)
	assert.Empty(t, c.Storage)
	assert.Zero(t, c.Balance.Sign())
	assert.Equal(t, int64(100), account(t, db, alice).Balance.Int64())
}

func TestContractCallerErrorCommitsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	caller := NewMockContractCaller(ctrl)
	exec, db := newExecutor(t, func(c *Config) { c.Contracts = caller })

	caller.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("wasm runtime crashed"))

	_, err := exec.Execute(&vm.TxInput{From: alice, To: contract, Function: "increment", CallValue: big.NewInt(5)})
	require.Error(t, err)
	assert.Equal(t, uint64(0), db.GetSequence())
	assert.Equal(t, int64(100), account(t, db, alice).Balance.Int64())
}

func transferAndCall(fn string) *vm.TxInput {
	return &vm.TxInput{
		From:     alice,
		To:       contract,
		Function: builtin.DCDTTransfer,
		Args:     [][]byte{token, {40}, []byte(fn), []byte("arg")},
	}
}

func TestTransferFollowUpCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	caller := NewMockContractCaller(ctrl)
	exec, db := newExecutor(t, func(c *Config) { c.Contracts = caller })

	caller.EXPECT().Call(gomock.Any(), gomock.Any(), 1).DoAndReturn(
		func(in *vm.TxInput, cache *txcache.TxCache, depth int) (*vm.TxResult, error) {
			assert.Equal(t, "deposit", in.Function)
			assert.Equal(t, [][]byte{[]byte("arg")}, in.Args)
			assert.Equal(t, alice, in.From)

			// The tokens are visible to the contract.
			acc, err := cache.Read(contract)
			require.NoError(t, err)
			assert.Equal(t, int64(40), acc.TokenBalance(token, 0).Int64())
			return &vm.TxResult{
				Status: vm.Success,
				Logs:   []vm.TxLog{{Address: contract, Endpoint: "deposit", Topics: [][]byte{[]byte("ok")}, Data: []byte{}}},
			}, nil
		})

	result, err := exec.Execute(transferAndCall("deposit"))
	require.NoError(t, err)
	require.True(t, result.Succeeded(), result.Message)
	require.Len(t, result.Logs, 2)
	assert.Equal(t, builtin.DCDTTransfer, result.Logs[0].Endpoint)
	assert.Equal(t, "deposit", result.Logs[1].Endpoint)

	assert.Equal(t, int64(60), account(t, db, alice).TokenBalance(token, 0).Int64())
	assert.Equal(t, int64(40), account(t, db, contract).TokenBalance(token, 0).Int64())
}

func TestTransferAbortedByFailedFollowUp(t *testing.T) {
	ctrl := gomock.NewController(t)
	caller := NewMockContractCaller(ctrl)
	exec, db := newExecutor(t, func(c *Config) { c.Contracts = caller })

	caller.EXPECT().Call(gomock.Any(), gomock.Any(), 1).Return(vm.Failed(vm.UserError, "deposits closed"), nil)

	result, err := exec.Execute(transferAndCall("deposit"))
	require.NoError(t, err)
	assert.Equal(t, vm.UserError, result.Status)
	assert.Equal(t, "deposits closed", result.Message)
	assert.Empty(t, result.Logs)

	assert.Equal(t, int64(100), account(t, db, alice).TokenBalance(token, 0).Int64())
	assert.Zero(t, account(t, db, contract).TokenBalance(token, 0).Sign())
}

func TestContractCallsBuiltin(t *testing.T) {
	ctrl := gomock.NewController(t)
	caller := NewMockContractCaller(ctrl)
	var exec *Executor
	exec, db := newExecutor(t, func(c *Config) { c.Contracts = caller })

	caller.EXPECT().Call(gomock.Any(), gomock.Any(), 0).DoAndReturn(
		func(in *vm.TxInput, cache *txcache.TxCache, depth int) (*vm.TxResult, error) {
			mint := &vm.TxInput{
				From:     contract,
				To:       contract,
				Function: builtin.DCDTLocalMint,
				Args:     [][]byte{[]byte("REWARD-000001"), {9}},
			}
			return exec.ExecuteNested(mint, cache, depth+1)
		})

	result, err := exec.Execute(&vm.TxInput{From: alice, To: contract, Function: "mintReward"})
	require.NoError(t, err)
	require.True(t, result.Succeeded(), result.Message)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, contract, result.Logs[0].Address)
	assert.Equal(t, int64(9), account(t, db, contract).TokenBalance([]byte("REWARD-000001"), 0).Int64())
}

func TestCallDepthLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	caller := NewMockContractCaller(ctrl)
	var exec *Executor
	exec, _ = newExecutor(t, func(c *Config) {
		c.Contracts = caller
		c.MaxCallDepth = 3
	})

	// A contract that keeps calling itself.
	caller.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Any()).Times(4).DoAndReturn(
		func(in *vm.TxInput, cache *txcache.TxCache, depth int) (*vm.TxResult, error) {
			return exec.ExecuteNested(in, cache, depth+1)
		})

	result, err := exec.Execute(&vm.TxInput{From: alice, To: contract, Function: "recurse"})
	require.NoError(t, err)
	assert.Equal(t, vm.CallStackOverflow, result.Status)
}

func TestCommitToBadgerWithReceiptsAndStream(t *testing.T) {
	cfg := accounts.DefaultBadgerDBConfig("")
	cfg.InMemory = true
	db, err := accounts.NewBadgerDB(cfg)
	require.NoError(t, err)
	defer db.Close()
	seed(t, db)

	store, err := receipts.Open(receipts.DefaultConfig(filepath.Join(t.TempDir(), "receipts.db")))
	require.NoError(t, err)
	defer store.Close()

	hub := logstream.NewHub(nil)
	sub := hub.Subscribe(logstream.Filter{}, 8)

	execCfg := DefaultConfig()
	execCfg.Receipts = store
	execCfg.Logs = hub
	exec := New(db, nil, execCfg)

	for i := 0; i < 3; i++ {
		result, err := exec.Execute(&vm.TxInput{
			From:     alice,
			To:       bob,
			Function: builtin.DCDTTransfer,
			Args:     [][]byte{token, {10}},
		})
		require.NoError(t, err)
		require.True(t, result.Succeeded(), result.Message)
	}

	assert.Equal(t, uint64(3), db.GetSequence())
	assert.Equal(t, int64(70), account(t, db, alice).TokenBalance(token, 0).Int64())
	assert.Equal(t, int64(30), account(t, db, bob).TokenBalance(token, 0).Int64())

	assert.Equal(t, uint64(3), store.Count())
	logs, err := store.GetLogsForAddress(alice, nil)
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	for seq := uint64(1); seq <= 3; seq++ {
		ev := <-sub.C
		assert.Equal(t, seq, ev.Sequence)
		assert.Equal(t, builtin.DCDTTransfer, ev.Log.Endpoint)
	}
}

func TestReceiptFailureKeepsCommittedResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockLogSink(ctrl)
	rs := NewMockReceiptSink(ctrl)
	exec, db := newExecutor(t, func(c *Config) {
		c.Logs = sink
		c.Receipts = rs
	})

	in := &vm.TxInput{
		From:     alice,
		To:       alice,
		Function: builtin.DCDTNFTAddURI,
		Args:     [][]byte{[]byte("TOKEN-abcdef"), {0x05}, []byte("https://a")},
	}
	rs.EXPECT().PutReceipt(gomock.Any()).Return(errors.New("disk full"))
	sink.EXPECT().Publish(in.Hash(), uint64(1), gomock.Len(1))

	result, err := exec.Execute(in)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Succeeded(), result.Message)

	assert.Equal(t, uint64(1), db.GetSequence())
	assert.NotNil(t, account(t, db, alice).TokenInstance([]byte("TOKEN-abcdef"), 5))
}
