package builtin

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/txcache"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice    = types.MustAddressFromName("alice")
	bob      = types.MustAddressFromName("bob")
	contract = types.MustAddressFromName("contract")

	fungible = []byte("TOK-123456")
	nft      = []byte("NFT-abcdef")
)

func u64(v uint64) []byte { return types.EncodeUint64(v) }

func big64(v int64) []byte { return types.EncodeBigUint(big.NewInt(v)) }

// newCache returns a cache over a store seeded with accs.
func newCache(t *testing.T, accs ...*accounts.Account) (*accounts.MemoryDB, *txcache.TxCache) {
	t.Helper()
	db := accounts.NewMemoryDB()
	for _, acc := range accs {
		require.NoError(t, db.SetAccount(acc.Address, acc))
	}
	return db, txcache.New(db)
}

func call(fn string, from, to types.Address, args ...[]byte) *vm.TxInput {
	return &vm.TxInput{From: from, To: to, Function: fn, Args: args}
}

func run(t *testing.T, cache *txcache.TxCache, in *vm.TxInput) (*vm.TxResult, *txcache.BlockchainUpdate) {
	t.Helper()
	return runCtx(t, DefaultContext(), cache, in)
}

func runCtx(t *testing.T, ctx *Context, cache *txcache.TxCache, in *vm.TxInput) (*vm.TxResult, *txcache.BlockchainUpdate) {
	t.Helper()
	fn, ok := DefaultRegistry().Lookup(in.Function)
	require.True(t, ok, "unknown builtin %s", in.Function)
	return Execute(fn, ctx, in, cache, nil)
}

func requireSuccess(t *testing.T, result *vm.TxResult, update *txcache.BlockchainUpdate) {
	t.Helper()
	require.Equal(t, vm.Success, result.Status, result.Message)
	require.False(t, update.IsEmpty())
}

func requireFailure(t *testing.T, result *vm.TxResult, update *txcache.BlockchainUpdate, message string) {
	t.Helper()
	require.Equal(t, vm.ExecutionFailed, result.Status)
	require.Equal(t, message, result.Message)
	require.True(t, update.IsEmpty())
	require.Empty(t, result.Logs)
}

func holder(addr types.Address) *accounts.Account {
	acc := accounts.NewAccount(addr)
	acc.IncreaseTokenBalance(fungible, 0, big.NewInt(100))
	return acc
}

func TestAddURIScenario(t *testing.T) {
	token := []byte("TOKEN-abcdef")
	_, cache := newCache(t)

	result, update := run(t, cache, call(DCDTNFTAddURI, alice, alice,
		token, u64(5), []byte("https://a"), []byte("https://b")))
	requireSuccess(t, result, update)

	require.Len(t, result.Logs, 1)
	log := result.Logs[0]
	assert.Equal(t, alice, log.Address)
	assert.Equal(t, DCDTNFTAddURI, log.Endpoint)
	assert.Equal(t, [][]byte{token, {0x05}, {}, []byte("https://a"), []byte("https://b")}, log.Topics)
	assert.Empty(t, log.Data)

	require.Equal(t, []types.Address{alice}, update.Addresses())
	inst := update.Get(alice).TokenInstance(token, 5)
	require.NotNil(t, inst)
	assert.Equal(t, [][]byte{[]byte("https://a"), []byte("https://b")}, inst.URIs)
}

func TestAddURIMissingArgumentScenario(t *testing.T) {
	db, cache := newCache(t)

	result, update := run(t, cache, call(DCDTNFTAddURI, alice, alice, []byte("TOKEN-abcdef"), u64(5)))
	requireFailure(t, result, update, "DCDTNFTAddURI expects at least 3 arguments")

	exists, err := db.HasAccount(alice)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, cache.IsDirty(alice))
}

func TestAddURIAppendOnly(t *testing.T) {
	_, cache := newCache(t)
	batches := [][][]byte{
		{[]byte("a")},
		{[]byte("b"), []byte("c")},
		{[]byte("a")},
	}
	var want [][]byte
	for _, uris := range batches {
		args := append([][]byte{nft, u64(1)}, uris...)
		result, update := run(t, cache, call(DCDTNFTAddURI, alice, alice, args...))
		requireSuccess(t, result, update)
		want = append(want, uris...)

		acc, err := cache.Read(alice)
		require.NoError(t, err)
		assert.Equal(t, want, acc.TokenInstance(nft, 1).URIs)
	}
}

func TestMinimumArity(t *testing.T) {
	tests := []struct {
		name string
		min  int
	}{
		{DCDTLocalMint, 2},
		{DCDTLocalBurn, 2},
		{DCDTNFTCreate, 7},
		{DCDTNFTAddQuantity, 3},
		{DCDTNFTBurn, 3},
		{DCDTNFTAddURI, 3},
		{DCDTNFTUpdateAttributes, 3},
		{DCDTTransfer, 2},
		{DCDTNFTTransfer, 4},
		{MultiDCDTNFTTransfer, 2},
		{ChangeOwnerAddress, 1},
		{SetUserName, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for n := 0; n < tt.min; n++ {
				_, cache := newCache(t, holder(alice))
				args := make([][]byte, n)
				for i := range args {
					args[i] = []byte{0x01}
				}
				result, update := run(t, cache, call(tt.name, alice, alice, args...))
				requireFailure(t, result, update, fmt.Sprintf("%s expects at least %d arguments", tt.name, tt.min))
				assert.False(t, cache.IsDirty(alice))
			}
		})
	}
}

func TestNonceOverflowRejected(t *testing.T) {
	_, cache := newCache(t)
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}

	result, update := run(t, cache, call(DCDTNFTAddURI, alice, alice, nft, nonce, []byte("uri")))
	requireFailure(t, result, update, "DCDTNFTAddURI: invalid nonce: value does not fit into 64 bits")
}

func TestNonceLeadingZerosReencodedMinimal(t *testing.T) {
	_, cache := newCache(t)

	result, update := run(t, cache, call(DCDTNFTAddURI, alice, alice, nft, []byte{0x00, 0x05}, []byte("uri")))
	requireSuccess(t, result, update)
	assert.Equal(t, []byte{0x05}, result.Logs[0].Topics[1])
}

func TestLocalMintAndBurn(t *testing.T) {
	_, cache := newCache(t)

	result, update := run(t, cache, call(DCDTLocalMint, alice, alice, fungible, big64(300)))
	requireSuccess(t, result, update)
	assert.Equal(t, [][]byte{fungible, {}, big64(300)}, result.Logs[0].Topics)
	assert.Equal(t, int64(300), update.Get(alice).TokenBalance(fungible, 0).Int64())

	result, update = run(t, cache, call(DCDTLocalBurn, alice, alice, fungible, big64(120)))
	requireSuccess(t, result, update)
	assert.Equal(t, [][]byte{fungible, {}, big64(120)}, result.Logs[0].Topics)
	assert.Equal(t, DCDTLocalBurn, result.Logs[0].Endpoint)
	assert.Equal(t, int64(180), update.Get(alice).TokenBalance(fungible, 0).Int64())

	result, update = run(t, cache, call(DCDTLocalBurn, alice, alice, fungible, big64(181)))
	requireFailure(t, result, update, "insufficient funds")

	result, update = run(t, cache, call(DCDTLocalMint, alice, alice, fungible, []byte{}))
	requireFailure(t, result, update, "DCDTLocalMint: zero value: invalid value")
}

func TestLocalMintArbitraryPrecision(t *testing.T) {
	_, cache := newCache(t)
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	result, update := run(t, cache, call(DCDTLocalMint, alice, alice, fungible, huge.Bytes()))
	requireSuccess(t, result, update)
	assert.Zero(t, huge.Cmp(update.Get(alice).TokenBalance(fungible, 0)))
	assert.Equal(t, huge.Bytes(), result.Logs[0].Topics[2])
}

func createNFT(t *testing.T, cache *txcache.TxCache, amount int64) uint64 {
	t.Helper()
	result, update := run(t, cache, call(DCDTNFTCreate, alice, alice,
		nft, big64(amount), []byte("name"), u64(500), []byte("hash"), []byte("attrs"), []byte("uri-1")))
	requireSuccess(t, result, update)
	require.Len(t, result.ReturnData, 1)
	nonce, err := types.DecodeUint64(result.ReturnData[0])
	require.NoError(t, err)
	return nonce
}

func TestNFTCreate(t *testing.T) {
	_, cache := newCache(t)

	result, update := run(t, cache, call(DCDTNFTCreate, alice, alice,
		nft, big64(3), []byte("name"), u64(500), []byte("hash"), []byte("attrs"), []byte("uri-1"), []byte("uri-2")))
	requireSuccess(t, result, update)
	assert.Equal(t, [][]byte{{0x01}}, result.ReturnData)
	assert.Equal(t, [][]byte{nft, {0x01}, {0x03}, {}}, result.Logs[0].Topics)

	inst := update.Get(alice).TokenInstance(nft, 1)
	require.NotNil(t, inst)
	assert.Equal(t, []byte("name"), inst.Name)
	assert.Equal(t, alice, inst.Creator)
	assert.Equal(t, uint64(500), inst.Royalties)
	assert.Equal(t, []byte("hash"), inst.Hash)
	assert.Equal(t, []byte("attrs"), inst.Attributes)
	assert.Equal(t, [][]byte{[]byte("uri-1"), []byte("uri-2")}, inst.URIs)
	assert.Equal(t, int64(3), inst.Balance.Int64())

	assert.Equal(t, uint64(2), createNFT(t, cache, 1))

	result, update = run(t, cache, call(DCDTNFTCreate, alice, alice,
		nft, big64(1), []byte("name"), u64(10_001), []byte("hash"), []byte("attrs"), []byte("uri")))
	requireFailure(t, result, update, "DCDTNFTCreate: invalid royalties: invalid argument")
}

func TestNFTAddQuantityAndBurn(t *testing.T) {
	_, cache := newCache(t)
	nonce := createNFT(t, cache, 2)

	result, update := run(t, cache, call(DCDTNFTAddQuantity, alice, alice, nft, u64(nonce), big64(8)))
	requireSuccess(t, result, update)
	assert.Equal(t, [][]byte{nft, u64(nonce), big64(8)}, result.Logs[0].Topics)
	assert.Equal(t, int64(10), update.Get(alice).TokenBalance(nft, nonce).Int64())

	result, update = run(t, cache, call(DCDTNFTBurn, alice, alice, nft, u64(nonce), big64(4)))
	requireSuccess(t, result, update)
	assert.Equal(t, [][]byte{nft, u64(nonce), big64(4)}, result.Logs[0].Topics)
	assert.Equal(t, int64(6), update.Get(alice).TokenBalance(nft, nonce).Int64())

	result, update = run(t, cache, call(DCDTNFTBurn, alice, alice, nft, u64(nonce), big64(7)))
	requireFailure(t, result, update, "insufficient funds")

	result, update = run(t, cache, call(DCDTNFTAddQuantity, alice, alice, nft, u64(99), big64(1)))
	requireFailure(t, result, update, "token instance not found")

	result, update = run(t, cache, call(DCDTNFTAddQuantity, alice, alice, nft, u64(0), big64(1)))
	requireFailure(t, result, update, "DCDTNFTAddQuantity: invalid nonce: invalid argument")
}

func TestNFTUpdateAttributes(t *testing.T) {
	_, cache := newCache(t)
	nonce := createNFT(t, cache, 1)

	result, update := run(t, cache, call(DCDTNFTUpdateAttributes, alice, alice, nft, u64(nonce), []byte("new")))
	requireSuccess(t, result, update)
	assert.Equal(t, [][]byte{nft, u64(nonce), {}, []byte("new")}, result.Logs[0].Topics)

	inst := update.Get(alice).TokenInstance(nft, nonce)
	assert.Equal(t, []byte("new"), inst.Attributes)
	assert.Equal(t, [][]byte{[]byte("uri-1")}, inst.URIs)
}

func TestDCDTTransfer(t *testing.T) {
	_, cache := newCache(t, holder(alice))

	result, update := run(t, cache, call(DCDTTransfer, alice, bob, fungible, big64(40)))
	requireSuccess(t, result, update)
	assert.Equal(t, [][]byte{fungible, {}, big64(40), bob.Bytes()}, result.Logs[0].Topics)
	assert.Equal(t, alice, result.Logs[0].Address)
	assert.Equal(t, int64(60), update.Get(alice).TokenBalance(fungible, 0).Int64())
	assert.Equal(t, int64(40), update.Get(bob).TokenBalance(fungible, 0).Int64())

	result, update = run(t, cache, call(DCDTTransfer, alice, bob, fungible, big64(61)))
	requireFailure(t, result, update, "insufficient funds")
}

func TestDCDTTransferFollowUp(t *testing.T) {
	_, cache := newCache(t, holder(alice))
	fn, _ := DefaultRegistry().Lookup(DCDTTransfer)

	p, fail := Begin(fn, DefaultContext(), call(DCDTTransfer, alice, contract,
		fungible, big64(1), []byte("deposit"), []byte("x")), cache)
	require.Nil(t, fail)
	assert.Nil(t, p.FollowUp())
	require.NoError(t, p.Apply())

	follow := p.FollowUp()
	require.NotNil(t, follow)
	assert.Equal(t, alice, follow.From)
	assert.Equal(t, contract, follow.To)
	assert.Equal(t, "deposit", follow.Function)
	assert.Equal(t, [][]byte{[]byte("x")}, follow.Args)
}

func TestNFTTransferCarriesMetadata(t *testing.T) {
	_, cache := newCache(t)
	nonce := createNFT(t, cache, 1)

	result, update := run(t, cache, call(DCDTNFTTransfer, alice, alice, nft, u64(nonce), big64(1), bob.Bytes()))
	requireSuccess(t, result, update)
	assert.Equal(t, [][]byte{nft, u64(nonce), big64(1), bob.Bytes()}, result.Logs[0].Topics)

	assert.Nil(t, update.Get(alice).TokenInstance(nft, nonce))
	inst := update.Get(bob).TokenInstance(nft, nonce)
	require.NotNil(t, inst)
	assert.Equal(t, []byte("name"), inst.Name)
	assert.Equal(t, alice, inst.Creator)
	assert.Equal(t, int64(1), inst.Balance.Int64())

	result, update = run(t, cache, call(DCDTNFTTransfer, alice, alice, nft, u64(nonce), big64(1), []byte("short")))
	requireFailure(t, result, update, "DCDTNFTTransfer: invalid address: invalid argument")
}

func TestMultiNFTTransfer(t *testing.T) {
	_, cache := newCache(t, holder(alice))
	nonce := createNFT(t, cache, 5)

	result, update := run(t, cache, call(MultiDCDTNFTTransfer, alice, alice,
		bob.Bytes(), u64(2),
		fungible, u64(0), big64(10),
		nft, u64(nonce), big64(2)))
	requireSuccess(t, result, update)

	require.Len(t, result.Logs, 2)
	assert.Equal(t, [][]byte{fungible, {}, big64(10), bob.Bytes()}, result.Logs[0].Topics)
	assert.Equal(t, [][]byte{nft, u64(nonce), big64(2), bob.Bytes()}, result.Logs[1].Topics)
	for _, log := range result.Logs {
		assert.Equal(t, MultiDCDTNFTTransfer, log.Endpoint)
	}

	b := update.Get(bob)
	assert.Equal(t, int64(10), b.TokenBalance(fungible, 0).Int64())
	assert.Equal(t, int64(2), b.TokenBalance(nft, nonce).Int64())
	assert.Equal(t, []byte("name"), b.TokenInstance(nft, nonce).Name)
	assert.Equal(t, int64(3), update.Get(alice).TokenBalance(nft, nonce).Int64())
}

func TestMultiNFTTransferValidation(t *testing.T) {
	_, cache := newCache(t, holder(alice))

	result, update := run(t, cache, call(MultiDCDTNFTTransfer, alice, alice,
		bob.Bytes(), u64(2), fungible, u64(0), big64(10)))
	requireFailure(t, result, update, "MultiDCDTNFTTransfer expects at least 8 arguments")

	// Repeated pairs are checked against their sum.
	result, update = run(t, cache, call(MultiDCDTNFTTransfer, alice, alice,
		bob.Bytes(), u64(2),
		fungible, u64(0), big64(60),
		fungible, u64(0), big64(60)))
	requireFailure(t, result, update, "insufficient funds")

	result, update = run(t, cache, call(MultiDCDTNFTTransfer, alice, alice, bob.Bytes(), u64(0)))
	requireFailure(t, result, update, "MultiDCDTNFTTransfer: invalid number of transfers: invalid argument")
}

func contractAccount(owner types.Address, rewards int64) *accounts.Account {
	acc := accounts.NewAccount(contract)
	acc.Code = []byte{0x00, 0x61, 0x73, 0x6d}
	acc.Owner = owner
	acc.DeveloperRewards.SetInt64(rewards)
	return acc
}

func TestChangeOwnerAddress(t *testing.T) {
	_, cache := newCache(t, contractAccount(alice, 0), holder(bob))

	result, update := run(t, cache, call(ChangeOwnerAddress, bob, contract, alice.Bytes()))
	requireFailure(t, result, update, "operation in account not permitted")

	result, update = run(t, cache, call(ChangeOwnerAddress, alice, contract, bob.Bytes()))
	requireSuccess(t, result, update)
	log := result.Logs[0]
	assert.Equal(t, contract, log.Address)
	assert.Equal(t, [][]byte{bob.Bytes()}, log.Topics)
	assert.Equal(t, bob, update.Get(contract).Owner)

	result, update = run(t, cache, call(ChangeOwnerAddress, bob, bob, alice.Bytes()))
	requireFailure(t, result, update, "destination is not a smart contract")
}

func TestSetUserName(t *testing.T) {
	_, cache := newCache(t)

	result, update := run(t, cache, call(SetUserName, alice, alice, []byte("alice.x")))
	requireSuccess(t, result, update)
	assert.Equal(t, [][]byte{[]byte("alice.x")}, result.Logs[0].Topics)
	assert.Equal(t, []byte("alice.x"), update.Get(alice).Username)

	result, update = run(t, cache, call(SetUserName, alice, alice, []byte("other.x")))
	requireFailure(t, result, update, "username already set")
}

func TestClaimDeveloperRewards(t *testing.T) {
	_, cache := newCache(t, contractAccount(alice, 500))

	result, update := run(t, cache, call(ClaimDeveloperRewards, alice, contract))
	requireSuccess(t, result, update)
	log := result.Logs[0]
	assert.Equal(t, contract, log.Address)
	assert.Equal(t, [][]byte{big64(500), alice.Bytes()}, log.Topics)
	assert.Equal(t, int64(500), update.Get(alice).Balance.Int64())
	assert.Zero(t, update.Get(contract).DeveloperRewards.Sign())

	result, update = run(t, cache, call(ClaimDeveloperRewards, alice, contract))
	requireFailure(t, result, update, "no developer rewards to claim")
}

func TestCallValueRejected(t *testing.T) {
	_, cache := newCache(t)
	in := call(DCDTNFTAddURI, alice, alice, nft, u64(1), []byte("uri"))
	in.CallValue = big.NewInt(1)

	result, update := run(t, cache, in)
	requireFailure(t, result, update, ErrCallValueNotZero.Error())
}

func TestGasAccounting(t *testing.T) {
	_, cache := newCache(t)
	args := [][]byte{nft, u64(1), []byte("uri")}
	cost := vm.DefaultGasSchedule().Cost(DCDTNFTAddURI, args)

	in := call(DCDTNFTAddURI, alice, alice, args...)
	in.GasLimit = cost - 1
	result, update := run(t, cache, in)
	assert.Equal(t, vm.OutOfGas, result.Status)
	assert.True(t, update.IsEmpty())

	in.GasLimit = cost
	result, update = run(t, cache, in)
	requireSuccess(t, result, update)
	assert.Equal(t, cost, result.GasUsed)
}

func TestRoleEnforcement(t *testing.T) {
	ctx := DefaultContext()
	ctx.EnforceRoles = true
	_, cache := newCache(t)

	result, update := runCtx(t, ctx, cache, call(DCDTLocalMint, alice, alice, fungible, big64(1)))
	requireFailure(t, result, update, "action is not allowed")

	result, update = runCtx(t, ctx, cache, call(DCDTNFTAddURI, alice, alice, nft, u64(1), []byte("uri")))
	requireFailure(t, result, update, "action is not allowed")

	granted := accounts.NewAccount(bob)
	granted.SetRoles(fungible, accounts.RoleLocalMint)
	_, cache = newCache(t, granted)
	result, update = runCtx(t, ctx, cache, call(DCDTLocalMint, bob, bob, fungible, big64(1)))
	requireSuccess(t, result, update)
}

func TestPendingPhases(t *testing.T) {
	_, cache := newCache(t)
	fn, _ := DefaultRegistry().Lookup(DCDTNFTAddURI)

	p, fail := Begin(fn, nil, call(DCDTNFTAddURI, alice, alice, nft, u64(1), []byte("uri")), cache)
	require.Nil(t, fail)
	assert.Equal(t, PhaseValidated, p.Phase())
	assert.False(t, cache.IsDirty(alice), "Begin must not mutate")

	_, _, err := p.Finalize()
	assert.ErrorIs(t, err, ErrInvalidPhase)

	require.NoError(t, p.Apply())
	assert.Equal(t, PhaseMutated, p.Phase())
	assert.ErrorIs(t, p.Apply(), ErrInvalidPhase)

	result, update, err := p.Finalize()
	require.NoError(t, err)
	assert.Equal(t, PhaseFinalized, p.Phase())
	requireSuccess(t, result, update)

	_, _, err = p.Abort("late")
	assert.ErrorIs(t, err, ErrInvalidPhase)
	_, _, err = p.Finalize()
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestPendingAbortReverts(t *testing.T) {
	_, cache := newCache(t, holder(alice))
	fn, _ := DefaultRegistry().Lookup(DCDTTransfer)

	p, fail := Begin(fn, nil, call(DCDTTransfer, alice, bob, fungible, big64(30)), cache)
	require.Nil(t, fail)
	require.NoError(t, p.Apply())
	assert.True(t, cache.IsDirty(bob))

	result, update, err := p.Abort("follow-up call failed")
	require.NoError(t, err)
	requireFailure(t, result, update, "follow-up call failed")
	assert.Equal(t, PhaseAborted, p.Phase())
	assert.Same(t, result, p.Failure())

	acc, err := cache.Read(alice)
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.TokenBalance(fungible, 0).Int64())
	assert.False(t, cache.IsDirty(alice))
	assert.False(t, cache.IsDirty(bob))
}

// faultyFunction mutates the cache and then fails, exercising rollback of a
// partially applied effect.
type faultyFunction struct{}

func (faultyFunction) Name() string { return "Faulty" }

func (faultyFunction) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	return func(cache *txcache.TxCache) (*Outcome, error) {
		err := cache.Mutate(in.From, func(acc *accounts.Account) error {
			acc.IncreaseTokenBalance(fungible, 0, big.NewInt(1))
			return nil
		})
		if err != nil {
			return nil, err
		}
		return nil, errors.New("overflow")
	}, nil
}

func TestEffectFailureRollsBack(t *testing.T) {
	_, cache := newCache(t, holder(alice))
	calls := 0

	result, update := Execute(faultyFunction{}, nil, call("Faulty", alice, alice), cache, func() { calls++ })
	requireFailure(t, result, update, "overflow")
	assert.Zero(t, calls, "continuation must not run for failed calls")

	acc, err := cache.Read(alice)
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.TokenBalance(fungible, 0).Int64())
	assert.True(t, cache.Update().IsEmpty())
}

func TestContinuationInvokedOnce(t *testing.T) {
	_, cache := newCache(t)
	fn, _ := DefaultRegistry().Lookup(DCDTNFTAddURI)
	calls := 0

	result, update := Execute(fn, nil, call(DCDTNFTAddURI, alice, alice, nft, u64(1), []byte("uri")), cache, func() {
		calls++
		// The continuation observes the mutation.
		acc, err := cache.Read(alice)
		require.NoError(t, err)
		assert.NotNil(t, acc.TokenInstance(nft, 1))
	})
	requireSuccess(t, result, update)
	assert.Equal(t, 1, calls)
}

func TestSharedCacheComposes(t *testing.T) {
	db, cache := newCache(t)

	result, _ := run(t, cache, call(DCDTLocalMint, alice, alice, fungible, big64(50)))
	require.True(t, result.Succeeded())
	result, _ = run(t, cache, call(DCDTTransfer, alice, bob, fungible, big64(20)))
	require.True(t, result.Succeeded())

	update, err := cache.IntoUpdate()
	require.NoError(t, err)
	require.NoError(t, update.Apply(db))

	a, err := db.GetAccount(alice)
	require.NoError(t, err)
	assert.Equal(t, int64(30), a.TokenBalance(fungible, 0).Int64())
	b, err := db.GetAccount(bob)
	require.NoError(t, err)
	assert.Equal(t, int64(20), b.TokenBalance(fungible, 0).Int64())
}

func TestAtomicity(t *testing.T) {
	inputs := []*vm.TxInput{
		call(DCDTLocalMint, alice, alice, fungible, big64(5)),
		call(DCDTLocalMint, alice, alice, fungible),
		call(DCDTLocalBurn, alice, alice, fungible, big64(1000)),
		call(DCDTTransfer, alice, bob, fungible, big64(1)),
		call(DCDTNFTAddURI, alice, alice, nft, u64(3), []byte("u")),
		call(DCDTNFTAddURI, alice, alice, nft),
		call(DCDTNFTBurn, alice, alice, nft, u64(3), big64(1)),
		call(SetUserName, alice, alice, []byte{}),
		call(ClaimDeveloperRewards, alice, bob),
	}
	for _, in := range inputs {
		_, cache := newCache(t, holder(alice))
		result, update := run(t, cache, in)
		assert.Equal(t, result.Succeeded(), !update.IsEmpty(), "%s: %s", in.Function, result.Message)
		if !result.Succeeded() {
			assert.True(t, cache.Update().IsEmpty(), in.Function)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, 13, r.Len())

	names := r.Names()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, DCDTNFTAddURI)

	fn, ok := r.Lookup(DCDTNFTAddURI)
	require.True(t, ok)
	assert.Equal(t, DCDTNFTAddURI, fn.Name())

	_, ok = r.Lookup("transferOwnership")
	assert.False(t, ok)

	assert.Panics(t, func() { NewRegistry(NewNFTAddURI(), NewNFTAddURI()) })
}
