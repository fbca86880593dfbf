package types

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeUint64(t *testing.T) {
	tests := []struct {
		value uint64
		want  []byte
	}{
		{0, []byte{}},
		{1, []byte{0x01}},
		{5, []byte{0x05}},
		{255, []byte{0xff}},
		{256, []byte{0x01, 0x00}},
		{0x0102030405, []byte{0x01, 0x02, 0x03, 0x04, 0x05}},
		{math.MaxUint64, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		got := EncodeUint64(tt.value)
		require.Equal(t, tt.want, got, "EncodeUint64(%d)", tt.value)
	}
}

func TestUint64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 255, 256, 65535, 65536, 1 << 40, math.MaxUint64 - 1, math.MaxUint64}
	for _, v := range values {
		got, err := DecodeUint64(EncodeUint64(v))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestDecodeUint64(t *testing.T) {
	v, err := DecodeUint64(nil)
	require.NoError(t, err)
	require.Zero(t, v)

	v, err = DecodeUint64([]byte{0x00, 0x00, 0x07})
	require.NoError(t, err)
	require.Equal(t, uint64(7), v)

	_, err = DecodeUint64([]byte{0x01, 0, 0, 0, 0, 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrUint64Overflow)
}

func TestBigUintRoundTrip(t *testing.T) {
	require.Empty(t, EncodeBigUint(nil))
	require.Empty(t, EncodeBigUint(big.NewInt(0)))

	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	for _, v := range []*big.Int{big.NewInt(1), big.NewInt(1000), huge} {
		require.Zero(t, v.Cmp(DecodeBigUint(EncodeBigUint(v))))
	}
	require.Zero(t, DecodeBigUint(nil).Sign())
}

func TestAddressFromName(t *testing.T) {
	a, err := AddressFromName("alice")
	require.NoError(t, err)
	require.Equal(t, "alice___________________________", string(a[:]))

	_, err = AddressFromName("a-name-that-is-way-too-long-for-an-address")
	require.ErrorIs(t, err, ErrNameTooLong)
}

func TestAddressBase58RoundTrip(t *testing.T) {
	a := MustAddressFromName("bob")
	parsed, err := AddressFromBase58(a.String())
	require.NoError(t, err)
	require.Equal(t, a, parsed)

	text, err := a.MarshalText()
	require.NoError(t, err)
	var b Address
	require.NoError(t, b.UnmarshalText(text))
	require.Equal(t, a, b)

	_, err = AddressFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestComputeHash(t *testing.T) {
	h1 := ComputeHash([]byte("abc"))
	h2 := ComputeHash([]byte("abc"))
	h3 := ComputeHash([]byte("abd"))
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
	require.False(t, h1.IsZero())

	parsed, err := HashFromHex(h1.Hex())
	require.NoError(t, err)
	require.Equal(t, h1, parsed)
}
