package builtin

import (
	"math/big"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/pkg/errors"
)

// requireArgs checks the minimum arity of fn.
func requireArgs(fn string, args [][]byte, min int) error {
	if len(args) < min {
		return errors.Errorf("%s expects at least %d arguments", fn, min)
	}
	return nil
}

// decodeNonce decodes a token nonce argument.
func decodeNonce(fn string, b []byte) (uint64, error) {
	nonce, err := types.DecodeUint64(b)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: invalid nonce", fn)
	}
	return nonce, nil
}

// decodeCount decodes a small count argument, such as a number of transfers.
func decodeCount(fn string, b []byte) (int, error) {
	n, err := types.DecodeUint64(b)
	if err != nil || n > uint64(maxTransfers) {
		return 0, errors.Wrapf(ErrInvalidArgument, "%s: invalid number of transfers", fn)
	}
	return int(n), nil
}

// decodeValue decodes a strictly positive amount.
func decodeValue(fn string, b []byte) (*big.Int, error) {
	v := types.DecodeBigUint(b)
	if v.Sign() == 0 {
		return nil, errors.Wrapf(ErrInvalidValue, "%s: zero value", fn)
	}
	return v, nil
}

// decodeAddress decodes a 32-byte address argument.
func decodeAddress(fn string, b []byte) (types.Address, error) {
	addr, err := types.AddressFromBytes(b)
	if err != nil {
		return types.Address{}, errors.Wrapf(ErrInvalidArgument, "%s: invalid address", fn)
	}
	return addr, nil
}

// checkRole fails with ErrActionNotAllowed when roles are enforced and acc
// lacks role for token.
func checkRole(ctx *Context, acc *accounts.Account, token []byte, role string) error {
	if !ctx.EnforceRoles || acc.HasRole(token, role) {
		return nil
	}
	return ErrActionNotAllowed
}

// tokenLog builds the common log layout: token, nonce, value, then extra
// topics. Zero nonce and zero value encode as empty topics.
func tokenLog(addr types.Address, endpoint string, token []byte, nonce uint64, value *big.Int, extra ...[]byte) vm.TxLog {
	topics := make([][]byte, 0, 3+len(extra))
	topics = append(topics, cloneArg(token), types.EncodeUint64(nonce), types.EncodeBigUint(value))
	for _, t := range extra {
		topics = append(topics, cloneArg(t))
	}
	return vm.TxLog{
		Address:  addr,
		Endpoint: endpoint,
		Topics:   topics,
		Data:     []byte{},
	}
}

// followUp parses an optional contract call trailing a transfer's arguments.
func followUp(in *vm.TxInput, dest types.Address, rest [][]byte) *vm.TxInput {
	if len(rest) == 0 || len(rest[0]) == 0 {
		return nil
	}
	args := make([][]byte, 0, len(rest)-1)
	for _, a := range rest[1:] {
		args = append(args, cloneArg(a))
	}
	return &vm.TxInput{
		From:     in.From,
		To:       dest,
		Function: string(rest[0]),
		Args:     args,
		GasLimit: in.GasLimit,
	}
}

func cloneArg(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
