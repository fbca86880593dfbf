package scenario

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/pkg/errors"
)

// ErrBadValue is returned for values that don't follow the notation.
var ErrBadValue = errors.New("bad value")

// ParseValue converts a value written in scenario notation to bytes.
//
//	""            empty
//	"str:abc"     the UTF-8 bytes of abc
//	"address:bob" the address named bob
//	"0x0102"      hex bytes
//	"u64:5"       8-byte big-endian
//	"u32:5"       4-byte big-endian
//	"biguint:5"   minimal big-endian
//	"1_000"       minimal big-endian, underscores ignored
//
// Parts joined with "|" are concatenated.
func ParseValue(s string) ([]byte, error) {
	if !strings.Contains(s, "|") || strings.HasPrefix(s, "str:") {
		return parsePart(s)
	}
	out := []byte{}
	for _, part := range strings.Split(s, "|") {
		b, err := parsePart(part)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func parsePart(s string) ([]byte, error) {
	switch {
	case s == "":
		return []byte{}, nil
	case strings.HasPrefix(s, "str:"):
		return []byte(s[len("str:"):]), nil
	case strings.HasPrefix(s, "address:"):
		addr, err := types.AddressFromName(s[len("address:"):])
		if err != nil {
			return nil, errors.Wrapf(ErrBadValue, "%q: %v", s, err)
		}
		return addr.Bytes(), nil
	case strings.HasPrefix(s, "0x"):
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, errors.Wrapf(ErrBadValue, "%q: %v", s, err)
		}
		return b, nil
	case strings.HasPrefix(s, "u64:"):
		v, err := parseBig(s[len("u64:"):])
		if err != nil || v.BitLen() > 64 {
			return nil, errors.Wrapf(ErrBadValue, "%q", s)
		}
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, v.Uint64())
		return b, nil
	case strings.HasPrefix(s, "u32:"):
		v, err := parseBig(s[len("u32:"):])
		if err != nil || v.BitLen() > 32 {
			return nil, errors.Wrapf(ErrBadValue, "%q", s)
		}
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v.Uint64()))
		return b, nil
	case strings.HasPrefix(s, "biguint:"):
		v, err := parseBig(s[len("biguint:"):])
		if err != nil {
			return nil, errors.Wrapf(ErrBadValue, "%q", s)
		}
		return types.EncodeBigUint(v), nil
	default:
		v, err := parseBig(s)
		if err != nil {
			return nil, errors.Wrapf(ErrBadValue, "%q", s)
		}
		return types.EncodeBigUint(v), nil
	}
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.ReplaceAll(s, "_", ""), 10)
	if !ok || v.Sign() < 0 {
		return nil, ErrBadValue
	}
	return v, nil
}

// ParseBig parses a numeric value in scenario notation.
func ParseBig(s string) (*big.Int, error) {
	b, err := ParseValue(s)
	if err != nil {
		return nil, err
	}
	return types.DecodeBigUint(b), nil
}

// ParseUint64 parses a numeric value that must fit into 64 bits.
func ParseUint64(s string) (uint64, error) {
	b, err := ParseValue(s)
	if err != nil {
		return 0, err
	}
	v, err := types.DecodeUint64(b)
	if err != nil {
		return 0, errors.Wrapf(ErrBadValue, "%q: %v", s, err)
	}
	return v, nil
}

// ParseAddress parses an address written as "address:name", hex or base58.
func ParseAddress(s string) (types.Address, error) {
	if strings.HasPrefix(s, "address:") || strings.HasPrefix(s, "0x") {
		b, err := ParseValue(s)
		if err != nil {
			return types.Address{}, err
		}
		addr, err := types.AddressFromBytes(b)
		if err != nil {
			return types.Address{}, errors.Wrapf(ErrBadValue, "%q: %v", s, err)
		}
		return addr, nil
	}
	addr, err := types.AddressFromBase58(s)
	if err != nil {
		return types.Address{}, errors.Wrapf(ErrBadValue, "%q: %v", s, err)
	}
	return addr, nil
}
