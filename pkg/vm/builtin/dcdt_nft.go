package builtin

import (
	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/txcache"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/pkg/errors"
)

// maxRoyalties is 100% in hundredths of a percent.
const maxRoyalties = 10_000

// nftCreate creates a new NFT/SFT instance on the sender's account.
//
// Arguments: token, amount, name, royalties, hash, attributes, uri...
// Topics: token, nonce, amount, "". Return data: the new nonce.
type nftCreate struct{}

const nftCreateMinArgs = 7

// NewNFTCreate returns the DCDTNFTCreate builtin.
func NewNFTCreate() BuiltinFunction { return nftCreate{} }

func (nftCreate) Name() string { return DCDTNFTCreate }

func (nftCreate) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	if err := requireArgs(DCDTNFTCreate, in.Args, nftCreateMinArgs); err != nil {
		return nil, err
	}
	token := cloneArg(in.Args[0])
	amount, err := decodeValue(DCDTNFTCreate, in.Args[1])
	if err != nil {
		return nil, err
	}
	royalties, err := types.DecodeUint64(in.Args[3])
	if err != nil || royalties > maxRoyalties {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s: invalid royalties", DCDTNFTCreate)
	}

	sender, err := cache.Read(in.From)
	if err != nil {
		return nil, err
	}
	if err := checkRole(ctx, sender, token, accounts.RoleNFTCreate); err != nil {
		return nil, err
	}

	uris := make([][]byte, 0, len(in.Args)-6)
	for _, uri := range in.Args[6:] {
		uris = append(uris, cloneArg(uri))
	}
	instance := &accounts.TokenInstance{
		Balance:    amount,
		Name:       cloneArg(in.Args[2]),
		Creator:    in.From,
		Royalties:  royalties,
		Hash:       cloneArg(in.Args[4]),
		Attributes: cloneArg(in.Args[5]),
		URIs:       uris,
	}

	return func(cache *txcache.TxCache) (*Outcome, error) {
		var nonce uint64
		err := cache.Mutate(in.From, func(acc *accounts.Account) error {
			nonce = acc.CreateNFT(token, instance)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Logs:       []vm.TxLog{tokenLog(in.From, DCDTNFTCreate, token, nonce, amount, []byte{})},
			ReturnData: [][]byte{types.EncodeUint64(nonce)},
		}, nil
	}, nil
}

// nftQuantity adds to or burns from the balance of an existing instance.
//
// Arguments: token, nonce, value.
// Topics: token, nonce, value.
type nftQuantity struct {
	name string
	role string
	burn bool
}

const nftQuantityMinArgs = 3

// NewNFTAddQuantity returns the DCDTNFTAddQuantity builtin.
func NewNFTAddQuantity() BuiltinFunction {
	return &nftQuantity{name: DCDTNFTAddQuantity, role: accounts.RoleNFTAddQuantity}
}

// NewNFTBurn returns the DCDTNFTBurn builtin.
func NewNFTBurn() BuiltinFunction {
	return &nftQuantity{name: DCDTNFTBurn, role: accounts.RoleNFTBurn, burn: true}
}

func (f *nftQuantity) Name() string { return f.name }

func (f *nftQuantity) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	if err := requireArgs(f.name, in.Args, nftQuantityMinArgs); err != nil {
		return nil, err
	}
	token := cloneArg(in.Args[0])
	nonce, err := decodeNonce(f.name, in.Args[1])
	if err != nil {
		return nil, err
	}
	if nonce == 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s: invalid nonce", f.name)
	}
	value, err := decodeValue(f.name, in.Args[2])
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
	if sender.TokenInstance(token, nonce) == nil {
		return nil, ErrTokenNotFound
	}
	if f.burn && sender.TokenBalance(token, nonce).Cmp(value) < 0 {
		return nil, ErrInsufficientFunds
	}

	return func(cache *txcache.TxCache) (*Outcome, error) {
		err := cache.Mutate(in.From, func(acc *accounts.Account) error {
			if f.burn {
				return acc.DecreaseTokenBalance(token, nonce, value)
			}
			acc.IncreaseTokenBalance(token, nonce, value)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Logs: []vm.TxLog{tokenLog(in.From, f.name, token, nonce, value)},
		}, nil
	}, nil
}

// nftAddURI appends URIs to an instance. The URI list is append-only.
//
// Arguments: token, nonce, uri...
// Topics: token, nonce, "", uri...
type nftAddURI struct{}

const nftAddURIMinArgs = 3

// NewNFTAddURI returns the DCDTNFTAddURI builtin.
func NewNFTAddURI() BuiltinFunction { return nftAddURI{} }

func (nftAddURI) Name() string { return DCDTNFTAddURI }

func (nftAddURI) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	if err := requireArgs(DCDTNFTAddURI, in.Args, nftAddURIMinArgs); err != nil {
		return nil, err
	}
	token := cloneArg(in.Args[0])
	nonce, err := decodeNonce(DCDTNFTAddURI, in.Args[1])
	if err != nil {
		return nil, err
	}
	uris := make([][]byte, 0, len(in.Args)-2)
	for _, uri := range in.Args[2:] {
		uris = append(uris, cloneArg(uri))
	}

	sender, err := cache.Read(in.From)
	if err != nil {
		return nil, err
	}
	if err := checkRole(ctx, sender, token, accounts.RoleNFTAddURI); err != nil {
		return nil, err
	}

	return func(cache *txcache.TxCache) (*Outcome, error) {
		err := cache.Mutate(in.From, func(acc *accounts.Account) error {
			acc.AddURIs(token, nonce, uris)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Logs: []vm.TxLog{tokenLog(in.From, DCDTNFTAddURI, token, nonce, nil, uris...)},
		}, nil
	}, nil
}

// nftUpdateAttributes replaces the attributes of an instance.
//
// Arguments: token, nonce, attributes.
// Topics: token, nonce, "", attributes.
type nftUpdateAttributes struct{}

const nftUpdateAttributesMinArgs = 3

// NewNFTUpdateAttributes returns the DCDTNFTUpdateAttributes builtin.
func NewNFTUpdateAttributes() BuiltinFunction { return nftUpdateAttributes{} }

func (nftUpdateAttributes) Name() string { return DCDTNFTUpdateAttributes }

func (nftUpdateAttributes) Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error) {
	if err := requireArgs(DCDTNFTUpdateAttributes, in.Args, nftUpdateAttributesMinArgs); err != nil {
		return nil, err
	}
	token := cloneArg(in.Args[0])
	nonce, err := decodeNonce(DCDTNFTUpdateAttributes, in.Args[1])
	if err != nil {
		return nil, err
	}
	attributes := cloneArg(in.Args[2])

	sender, err := cache.Read(in.From)
	if err != nil {
		return nil, err
	}
	if err := checkRole(ctx, sender, token, accounts.RoleNFTUpdateAttributes); err != nil {
		return nil, err
	}

	return func(cache *txcache.TxCache) (*Outcome, error) {
		err := cache.Mutate(in.From, func(acc *accounts.Account) error {
			acc.SetAttributes(token, nonce, attributes)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Logs: []vm.TxLog{tokenLog(in.From, DCDTNFTUpdateAttributes, token, nonce, nil, attributes)},
		}, nil
	}, nil
}
