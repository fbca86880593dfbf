package builtin

import (
	"math/big"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/txcache"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/pkg/errors"
)

// maxTransfers bounds the number of transfers in one MultiDCDTNFTTransfer.
const maxTransfers = 256

// transfer is one movement of (token, nonce) value between two accounts.
type transfer struct {
	token []byte
	nonce uint64
	value *big.Int
}

// moveInstance debits t from src and credits it to dest. Metadata of an NFT
// instance travels with it when dest doesn't hold the instance yet.
func moveInstance(cache *txcache.TxCache, src, dest types.Address, t transfer) error {
	var meta *accounts.TokenInstance
	err := cache.Mutate(src, func(acc *accounts.Account) error {
		if t.nonce != 0 {
			meta = acc.TokenInstance(t.token, t.nonce).Clone()
		}
		return acc.DecreaseTokenBalance(t.token, t.nonce, t.value)
	})
	if err != nil {
		return err
	}
	return cache.Mutate(dest, func(acc *accounts.Account) error {
		acc.ReceiveInstance(t.token, t.nonce, t.value, meta)
		return nil
	})
}

// checkBalances verifies that sender can cover every transfer, summing
// repeated (token, nonce) pairs.
func checkBalances(sender *accounts.Account, transfers []transfer) error {
	type key struct {
		token string
		nonce uint64
	}
	totals := make(map[key]*big.Int)
	for _, t := range transfers {
		k := key{string(t.token), t.nonce}
		if totals[k] == nil {
			totals[k] = new(big.Int)
		}
		totals[k].Add(totals[k], t.value)
		if sender.TokenBalance(t.token, t.nonce).Cmp(totals[k]) < 0 {
			return ErrInsufficientFunds
		}
	}
	return nil
}

// dcdtTransfer moves fungible tokens from the sender to the receiver of the
// transaction, optionally followed by a contract call on the receiver.
//
// Arguments: token, value, [function, args...].
// Topics: token, "", value, destination.
type dcdtTransfer struct{}

const dcdtTransferMinArgs = 2

// NewDCDTTransfer returns the DCDTTransfer builtin.
func NewDCDTTransfer() BuiltinFunction { return dcdtTransfer{} }

func (dcdtTransfer) Name() string { return DCDTTransfer }

func (dcdtTransfer) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	if err := requireArgs(DCDTTransfer, in.Args, dcdtTransferMinArgs); err != nil {
		return nil, err
	}
	value, err := decodeValue(DCDTTransfer, in.Args[1])
	if err != nil {
		return nil, err
	}
	t := transfer{token: cloneArg(in.Args[0]), value: value}
	dest := in.To

	sender, err := cache.Read(in.From)
	if err != nil {
		return nil, err
	}
	if err := checkBalances(sender, []transfer{t}); err != nil {
		return nil, err
	}
	if err := cache.Load(dest); err != nil {
		return nil, err
	}
	call := followUp(in, dest, in.Args[2:])

	return func(cache *txcache.TxCache) (*Outcome, error) {
		if err := moveInstance(cache, in.From, dest, t); err != nil {
			return nil, err
		}
		return &Outcome{
			Logs:     []vm.TxLog{tokenLog(in.From, DCDTTransfer, t.token, 0, t.value, dest[:])},
			FollowUp: call,
		}, nil
	}, nil
}

// nftTransfer moves an NFT/SFT instance to the destination named in the
// arguments. Receiver of the transaction is the sender itself.
//
// Arguments: token, nonce, value, destination, [function, args...].
// Topics: token, nonce, value, destination.
type nftTransfer struct{}

const nftTransferMinArgs = 4

// NewNFTTransfer returns the DCDTNFTTransfer builtin.
func NewNFTTransfer() BuiltinFunction { return nftTransfer{} }

func (nftTransfer) Name() string { return DCDTNFTTransfer }

func (nftTransfer) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	if err := requireArgs(DCDTNFTTransfer, in.Args, nftTransferMinArgs); err != nil {
		return nil, err
	}
	nonce, err := decodeNonce(DCDTNFTTransfer, in.Args[1])
	if err != nil {
		return nil, err
	}
	if nonce == 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s: invalid nonce", DCDTNFTTransfer)
	}
	value, err := decodeValue(DCDTNFTTransfer, in.Args[2])
	if err != nil {
		return nil, err
	}
	dest, err := decodeAddress(DCDTNFTTransfer, in.Args[3])
	if err != nil {
		return nil, err
	}
	t := transfer{token: cloneArg(in.Args[0]), nonce: nonce, value: value}

	sender, err := cache.Read(in.From)
	if err != nil {
		return nil, err
	}
	if err := checkBalances(sender, []transfer{t}); err != nil {
		return nil, err
	}
	if err := cache.Load(dest); err != nil {
		return nil, err
	}
	call := followUp(in, dest, in.Args[4:])

	return func(cache *txcache.TxCache) (*Outcome, error) {
		if err := moveInstance(cache, in.From, dest, t); err != nil {
			return nil, err
		}
		return &Outcome{
			Logs:     []vm.TxLog{tokenLog(in.From, DCDTNFTTransfer, t.token, t.nonce, t.value, dest[:])},
			FollowUp: call,
		}, nil
	}, nil
}

// multiTransfer moves several token instances to one destination.
//
// Arguments: destination, n, (token, nonce, value) x n, [function, args...].
// Topics, one log per transfer: token, nonce, value, destination.
type multiTransfer struct{}

const multiTransferMinArgs = 2

// NewMultiNFTTransfer returns the MultiDCDTNFTTransfer builtin.
func NewMultiNFTTransfer() BuiltinFunction { return multiTransfer{} }

func (multiTransfer) Name() string { return MultiDCDTNFTTransfer }

func (multiTransfer) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	if err := requireArgs(MultiDCDTNFTTransfer, in.Args, multiTransferMinArgs); err != nil {
		return nil, err
	}
	dest, err := decodeAddress(MultiDCDTNFTTransfer, in.Args[0])
	if err != nil {
		return nil, err
	}
	n, err := decodeCount(MultiDCDTNFTTransfer, in.Args[1])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s: invalid number of transfers", MultiDCDTNFTTransfer)
	}
	if err := requireArgs(MultiDCDTNFTTransfer, in.Args, multiTransferMinArgs+3*n); err != nil {
		return nil, err
	}

	transfers := make([]transfer, 0, n)
	for i := 0; i < n; i++ {
		base := multiTransferMinArgs + 3*i
		nonce, err := decodeNonce(MultiDCDTNFTTransfer, in.Args[base+1])
		if err != nil {
			return nil, err
		}
		value, err := decodeValue(MultiDCDTNFTTransfer, in.Args[base+2])
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, transfer{
			token: cloneArg(in.Args[base]),
			nonce: nonce,
			value: value,
		})
	}

	sender, err := cache.Read(in.From)
	if err != nil {
		return nil, err
	}
	if err := checkBalances(sender, transfers); err != nil {
		return nil, err
	}
	if err := cache.Load(dest); err != nil {
		return nil, err
	}
	call := followUp(in, dest, in.Args[multiTransferMinArgs+3*n:])

	return func(cache *txcache.TxCache) (*Outcome, error) {
		logs := make([]vm.TxLog, 0, len(transfers))
		for _, t := range transfers {
			if err := moveInstance(cache, in.From, dest, t); err != nil {
				return nil, err
			}
			logs = append(logs, tokenLog(in.From, MultiDCDTNFTTransfer, t.token, t.nonce, t.value, dest[:]))
		}
		return &Outcome{Logs: logs, FollowUp: call}, nil
	}, nil
}
