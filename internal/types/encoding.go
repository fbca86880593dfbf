package types

import (
	"math/big"

	"github.com/pkg/errors"
)

// ErrUint64Overflow is returned when a minimal big-endian buffer holds more
// than 8 significant bytes.
var ErrUint64Overflow = errors.New("value does not fit into 64 bits")

// EncodeUint64 encodes v as minimal big-endian bytes.
// Zero encodes as the empty buffer.
func EncodeUint64(v uint64) []byte {
	if v == 0 {
		return []byte{}
	}
	var buf [8]byte
	n := 0
	for shift := 56; shift >= 0; shift -= 8 {
		b := byte(v >> uint(shift))
		if n == 0 && b == 0 {
			continue
		}
		buf[n] = b
		n++
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out
}

// DecodeUint64 decodes big-endian bytes into a uint64.
// The empty buffer decodes to zero. Leading zero bytes are tolerated, but a
// buffer with more than 8 significant bytes is rejected.
func DecodeUint64(b []byte) (uint64, error) {
	for len(b) > 0 && b[0] == 0 {
		b = b[1:]
	}
	if len(b) > 8 {
		return 0, ErrUint64Overflow
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

// EncodeBigUint encodes a non-negative big integer as minimal big-endian
// bytes. Nil and zero encode as the empty buffer.
func EncodeBigUint(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return []byte{}
	}
	return v.Bytes()
}

// DecodeBigUint decodes big-endian bytes into a non-negative big integer.
func DecodeBigUint(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
