package builtin

import (
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/txcache"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
)

// localSupply mints or burns fungible tokens on the sender's own account.
//
// Arguments: token identifier, value.
// Topics: token, "", value.
type localSupply struct {
	name string
	role string
	burn bool
}

const localSupplyMinArgs = 2

// NewLocalMint returns the DCDTLocalMint builtin.
func NewLocalMint() BuiltinFunction {
	return &localSupply{name: DCDTLocalMint, role: accounts.RoleLocalMint}
}

// NewLocalBurn returns the DCDTLocalBurn builtin.
func NewLocalBurn() BuiltinFunction {
	return &localSupply{name: DCDTLocalBurn, role: accounts.RoleLocalBurn, burn: true}
}

func (f *localSupply) Name() string { return f.name }

func (f *localSupply) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	if err := requireArgs(f.name, in.Args, localSupplyMinArgs); err != nil {
		return nil, err
	}
	token := cloneArg(in.Args[0])
	value, err := decodeValue(f.name, in.Args[1])
	if err != nil {
		return nil, err
	}

	sender, err := cache.Read(in.From)
	if err != nil {
		return nil, err
	}
	if err := checkRole(ctx, sender, token, f.role); err != nil {
		return nil, err
	}
	if f.burn && sender.TokenBalance(token, 0).Cmp(value) < 0 {
		return nil, ErrInsufficientFunds
	}

	return func(cache *txcache.TxCache) (*Outcome, error) {
		err := cache.Mutate(in.From, func(acc *accounts.Account) error {
			if f.burn {
				return acc.DecreaseTokenBalance(token, 0, value)
			}
			acc.IncreaseTokenBalance(token, 0, value)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Logs: []vm.TxLog{tokenLog(in.From, f.name, token, 0, value)},
		}, nil
	}, nil
}
