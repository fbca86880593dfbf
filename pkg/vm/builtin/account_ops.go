package builtin

import (
	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/txcache"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/pkg/errors"
)

// readContract loads the contract at addr and checks that sender owns it.
func readContract(cache *txcache.TxCache, addr, sender types.Address) (*accounts.Account, error) {
	contract, err := cache.Read(addr)
	if err != nil {
		return nil, err
	}
	if !contract.IsContract() {
		return nil, ErrNotContract
	}
	if contract.Owner != sender {
		return nil, ErrNotOwner
	}
	return contract, nil
}

// changeOwner transfers ownership of the receiving contract.
//
// Arguments: new owner address.
// Topics: new owner. The log is emitted by the contract.
type changeOwner struct{}

const changeOwnerMinArgs = 1

// NewChangeOwnerAddress returns the ChangeOwnerAddress builtin.
func NewChangeOwnerAddress() BuiltinFunction { return changeOwner{} }

func (changeOwner) Name() string { return ChangeOwnerAddress }

func (changeOwner) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	if err := requireArgs(ChangeOwnerAddress, in.Args, changeOwnerMinArgs); err != nil {
		return nil, err
	}
	newOwner, err := decodeAddress(ChangeOwnerAddress, in.Args[0])
	if err != nil {
		return nil, err
	}
	if _, err := readContract(cache, in.To, in.From); err != nil {
		return nil, err
	}
	contract := in.To

	return func(cache *txcache.TxCache) (*Outcome, error) {
		err := cache.Mutate(contract, func(acc *accounts.Account) error {
			acc.Owner = newOwner
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Logs: []vm.TxLog{{
				Address:  contract,
				Endpoint: ChangeOwnerAddress,
				Topics:   [][]byte{newOwner.Bytes()},
				Data:     []byte{},
			}},
		}, nil
	}, nil
}

// setUserName assigns a username to the sender. It can only be set once.
//
// Arguments: username.
// Topics: username.
type setUserName struct{}

const setUserNameMinArgs = 1

// NewSetUserName returns the SetUserName builtin.
func NewSetUserName() BuiltinFunction { return setUserName{} }

func (setUserName) Name() string { return SetUserName }

func (setUserName) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	if err := requireArgs(SetUserName, in.Args, setUserNameMinArgs); err != nil {
		return nil, err
	}
	if len(in.Args[0]) == 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s: empty username", SetUserName)
	}
	username := cloneArg(in.Args[0])

	sender, err := cache.Read(in.From)
	if err != nil {
		return nil, err
	}
	if len(sender.Username) > 0 {
		return nil, ErrUserNameAlreadySet
	}

	return func(cache *txcache.TxCache) (*Outcome, error) {
		err := cache.Mutate(in.From, func(acc *accounts.Account) error {
			acc.Username = cloneArg(username)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Logs: []vm.TxLog{{
				Address:  in.From,
				Endpoint: SetUserName,
				Topics:   [][]byte{username},
				Data:     []byte{},
			}},
		}, nil
	}, nil
}

// claimRewards moves the developer rewards of the receiving contract to its
// owner's balance.
//
// Arguments: none.
// Topics: value, owner. The log is emitted by the contract.
type claimRewards struct{}

// NewClaimDeveloperRewards returns the ClaimDeveloperRewards builtin.
func NewClaimDeveloperRewards() BuiltinFunction { return claimRewards{} }

func (claimRewards) Name() string { return ClaimDeveloperRewards }

func (claimRewards) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	contract, err := readContract(cache, in.To, in.From)
	if err != nil {
		return nil, err
	}
	value := contract.DeveloperRewards
	if value == nil || value.Sign() == 0 {
		return nil, ErrNoRewards
	}
	if err := cache.Load(in.From); err != nil {
		return nil, err
	}
	addr := in.To

	return func(cache *txcache.TxCache) (*Outcome, error) {
		err := cache.Mutate(addr, func(acc *accounts.Account) error {
			acc.DeveloperRewards.SetInt64(0)
			return nil
		})
		if err != nil {
			return nil, err
		}
		err = cache.Mutate(in.From, func(acc *accounts.Account) error {
			acc.Balance.Add(acc.Balance, value)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Logs: []vm.TxLog{{
				Address:  addr,
				Endpoint: ClaimDeveloperRewards,
				Topics:   [][]byte{types.EncodeBigUint(value), in.From.Bytes()},
				Data:     []byte{},
			}},
		}, nil
	}, nil
}
